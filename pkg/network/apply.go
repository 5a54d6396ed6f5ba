package network

import (
	"github.com/gridflow/gridflow/pkg/model"
)

// ApplyUpdate merges a sparse update set into the receiver, which must be a
// working copy obtained from Clone. Fields left nil in an update record keep
// their current value. Updates can only mutate existing components; an
// unknown id fails with an id-not-found error before anything else about the
// record is applied.
func (n *Network) ApplyUpdate(u *model.UpdateSet) error {
	updateNotFound := func(ct model.ComponentType, id int) error {
		return model.NewError(model.KindIDNotFound,
			"update references a component that does not exist").
			WithComponent(ct, id).
			WithOp("update")
	}

	for _, up := range u.Lines {
		i, ok := n.lineIdx[up.ID]
		if !ok {
			return updateNotFound(model.ComponentLine, up.ID)
		}
		if up.FromStatus != nil {
			n.Lines[i].FromStatus = *up.FromStatus
		}
		if up.ToStatus != nil {
			n.Lines[i].ToStatus = *up.ToStatus
		}
	}

	for _, up := range u.Sources {
		i, ok := n.sourceIdx[up.ID]
		if !ok {
			return updateNotFound(model.ComponentSource, up.ID)
		}
		if up.Status != nil {
			n.Sources[i].Status = *up.Status
		}
		if up.URef != nil {
			n.Sources[i].URef = *up.URef
		}
	}

	for _, up := range u.SymLoads {
		i, ok := n.loadIdx[up.ID]
		if !ok {
			return updateNotFound(model.ComponentSymLoad, up.ID)
		}
		if up.Status != nil {
			n.SymLoads[i].Status = *up.Status
		}
		if up.PSpecified != nil {
			n.SymLoads[i].PSpecified = *up.PSpecified
		}
		if up.QSpecified != nil {
			n.SymLoads[i].QSpecified = *up.QSpecified
		}
	}

	for _, up := range u.SymVoltageSensors {
		i, ok := n.vSensorIdx[up.ID]
		if !ok {
			return updateNotFound(model.ComponentSymVoltageSensor, up.ID)
		}
		if up.USigma != nil {
			n.SymVoltageSensors[i].USigma = *up.USigma
		}
		if up.UMeasured != nil {
			n.SymVoltageSensors[i].UMeasured = *up.UMeasured
		}
	}

	for _, up := range u.SymPowerSensors {
		i, ok := n.pSensorIdx[up.ID]
		if !ok {
			return updateNotFound(model.ComponentSymPowerSensor, up.ID)
		}
		if up.PowerSigma != nil {
			n.SymPowerSensors[i].PowerSigma = *up.PowerSigma
		}
		if up.PMeasured != nil {
			n.SymPowerSensors[i].PMeasured = *up.PMeasured
		}
		if up.QMeasured != nil {
			n.SymPowerSensors[i].QMeasured = *up.QMeasured
		}
	}

	return nil
}
