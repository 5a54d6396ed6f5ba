package model

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// recordValidator checks struct tags on individual records. Cross-record
// rules (referential integrity, voltage classes) live in the network compiler.
var recordValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every record in the dataset against its field constraints.
// The first violation is returned as a validation error carrying the
// offending component type and id.
func (d *Dataset) Validate() error {
	for i := range d.Nodes {
		if err := recordValidator.Struct(&d.Nodes[i]); err != nil {
			return validationError(ComponentNode, d.Nodes[i].ID, err)
		}
	}
	for i := range d.Lines {
		if err := recordValidator.Struct(&d.Lines[i]); err != nil {
			return validationError(ComponentLine, d.Lines[i].ID, err)
		}
	}
	for i := range d.Sources {
		if err := recordValidator.Struct(&d.Sources[i]); err != nil {
			return validationError(ComponentSource, d.Sources[i].ID, err)
		}
	}
	for i := range d.SymLoads {
		if err := recordValidator.Struct(&d.SymLoads[i]); err != nil {
			return validationError(ComponentSymLoad, d.SymLoads[i].ID, err)
		}
	}
	for i := range d.SymVoltageSensors {
		if err := recordValidator.Struct(&d.SymVoltageSensors[i]); err != nil {
			return validationError(ComponentSymVoltageSensor, d.SymVoltageSensors[i].ID, err)
		}
	}
	for i := range d.SymPowerSensors {
		if err := recordValidator.Struct(&d.SymPowerSensors[i]); err != nil {
			return validationError(ComponentSymPowerSensor, d.SymPowerSensors[i].ID, err)
		}
	}
	return nil
}

func validationError(ct ComponentType, id int, err error) error {
	msg := "record has invalid attributes"
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		msg = fmt.Sprintf("field %s fails constraint %q", verrs[0].Field(), verrs[0].Tag())
	}
	return NewError(KindValidation, msg).
		WithComponent(ct, id).
		WithOp("construction").
		WithErr(err)
}
