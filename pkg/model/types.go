// Package model defines the typed component records that describe a power
// network, the sparse update records used for scenario variation, and the
// classified error type shared by the compiler, solvers and batch engine.
package model

// ComponentType identifies the kind of a component record.
type ComponentType string

const (
	// ComponentNode is a busbar with a rated voltage.
	ComponentNode ComponentType = "node"

	// ComponentLine is a branch connecting two nodes.
	ComponentLine ComponentType = "line"

	// ComponentSource is a voltage reference attached to a node.
	ComponentSource ComponentType = "source"

	// ComponentSymLoad is a symmetric load attached to a node.
	ComponentSymLoad ComponentType = "sym_load"

	// ComponentSymVoltageSensor measures voltage magnitude at a node.
	ComponentSymVoltageSensor ComponentType = "sym_voltage_sensor"

	// ComponentSymPowerSensor measures active/reactive power at a terminal.
	ComponentSymPowerSensor ComponentType = "sym_power_sensor"
)

// LoadType is the voltage characteristic of a symmetric load.
type LoadType string

const (
	// LoadConstPower draws its specified power regardless of voltage.
	LoadConstPower LoadType = "const_power"

	// LoadConstCurrent draws power proportional to voltage magnitude.
	LoadConstCurrent LoadType = "const_current"

	// LoadConstImpedance draws power proportional to voltage magnitude squared.
	LoadConstImpedance LoadType = "const_impedance"
)

// TerminalType identifies which terminal of a component a power sensor measures.
type TerminalType string

const (
	// TerminalBranchFrom measures at the from side of a line.
	TerminalBranchFrom TerminalType = "branch_from"

	// TerminalBranchTo measures at the to side of a line.
	TerminalBranchTo TerminalType = "branch_to"

	// TerminalSource measures the injection of a source.
	TerminalSource TerminalType = "source"

	// TerminalLoad measures the consumption of a load.
	TerminalLoad TerminalType = "load"
)

// Node is a busbar. All components attached to a node share its voltage class.
type Node struct {
	// ID is the unique identifier, shared across all component types.
	ID int `json:"id" yaml:"id" validate:"gte=0"`

	// URated is the rated line-to-line voltage in volt.
	URated float64 `json:"u_rated" yaml:"u_rated" validate:"required,gt=0"`
}

// Line is a branch between two nodes with a pi-equivalent circuit.
// Each side can be switched independently; a line that is closed on one side
// only still energizes its shunt admittance from that side.
type Line struct {
	ID       int `json:"id" yaml:"id" validate:"gte=0"`
	FromNode int `json:"from_node" yaml:"from_node" validate:"gte=0"`
	ToNode   int `json:"to_node" yaml:"to_node" validate:"gte=0"`

	// FromStatus and ToStatus are the switch positions at each side.
	FromStatus bool `json:"from_status" yaml:"from_status"`
	ToStatus   bool `json:"to_status" yaml:"to_status"`

	// R1 and X1 are the series resistance and reactance in ohm.
	R1 float64 `json:"r1" yaml:"r1" validate:"gte=0"`
	X1 float64 `json:"x1" yaml:"x1"`

	// C1 is the total shunt capacitance in farad, Tan1 the loss angle tangent.
	C1   float64 `json:"c1" yaml:"c1" validate:"gte=0"`
	Tan1 float64 `json:"tan1" yaml:"tan1" validate:"gte=0"`

	// IN is the rated current in ampere, used for loading ratios.
	// Zero means unrated; loading is reported as zero in that case.
	IN float64 `json:"i_n" yaml:"i_n" validate:"gte=0"`
}

// Source is a voltage reference with negligible internal impedance, attached
// to a node. The node hosting an active source acts as the angle reference.
type Source struct {
	ID     int  `json:"id" yaml:"id" validate:"gte=0"`
	Node   int  `json:"node" yaml:"node" validate:"gte=0"`
	Status bool `json:"status" yaml:"status"`

	// URef is the reference voltage in per-unit of the node's rated voltage.
	URef float64 `json:"u_ref" yaml:"u_ref" validate:"required,gt=0"`
}

// SymLoad is a symmetric load or generation appliance attached to a node.
// Negative specified power models generation.
type SymLoad struct {
	ID     int  `json:"id" yaml:"id" validate:"gte=0"`
	Node   int  `json:"node" yaml:"node" validate:"gte=0"`
	Status bool `json:"status" yaml:"status"`

	// Type selects the voltage characteristic.
	Type LoadType `json:"type" yaml:"type" validate:"required,oneof=const_power const_current const_impedance"`

	// PSpecified and QSpecified are the consumed power at rated voltage,
	// in watt and var.
	PSpecified float64 `json:"p_specified" yaml:"p_specified"`
	QSpecified float64 `json:"q_specified" yaml:"q_specified"`
}

// SymVoltageSensor measures the voltage magnitude of a node.
type SymVoltageSensor struct {
	ID int `json:"id" yaml:"id" validate:"gte=0"`

	// MeasuredObject is the id of the measured node.
	MeasuredObject int `json:"measured_object" yaml:"measured_object" validate:"gte=0"`

	// USigma is the standard deviation of the measurement in volt.
	USigma float64 `json:"u_sigma" yaml:"u_sigma" validate:"required,gt=0"`

	// UMeasured is the measured line-to-line voltage magnitude in volt.
	UMeasured float64 `json:"u_measured" yaml:"u_measured" validate:"required,gt=0"`
}

// SymPowerSensor measures active and reactive power at a component terminal.
type SymPowerSensor struct {
	ID int `json:"id" yaml:"id" validate:"gte=0"`

	// MeasuredObject is the id of the measured line, source or load.
	MeasuredObject int `json:"measured_object" yaml:"measured_object" validate:"gte=0"`

	// MeasuredTerminalType selects which terminal of the object is measured.
	MeasuredTerminalType TerminalType `json:"measured_terminal_type" yaml:"measured_terminal_type" validate:"required,oneof=branch_from branch_to source load"`

	// PowerSigma is the standard deviation of both power readings, in VA.
	PowerSigma float64 `json:"power_sigma" yaml:"power_sigma" validate:"required,gt=0"`

	// PMeasured and QMeasured are the measured powers in watt and var,
	// using the consumption sign convention of the measured terminal.
	PMeasured float64 `json:"p_measured" yaml:"p_measured"`
	QMeasured float64 `json:"q_measured" yaml:"q_measured"`
}

// Dataset is the full set of component records supplied at construction.
type Dataset struct {
	Nodes             []Node             `json:"node,omitempty" yaml:"node,omitempty"`
	Lines             []Line             `json:"line,omitempty" yaml:"line,omitempty"`
	Sources           []Source           `json:"source,omitempty" yaml:"source,omitempty"`
	SymLoads          []SymLoad          `json:"sym_load,omitempty" yaml:"sym_load,omitempty"`
	SymVoltageSensors []SymVoltageSensor `json:"sym_voltage_sensor,omitempty" yaml:"sym_voltage_sensor,omitempty"`
	SymPowerSensors   []SymPowerSensor   `json:"sym_power_sensor,omitempty" yaml:"sym_power_sensor,omitempty"`
}

// ComponentCount returns the total number of component records.
func (d *Dataset) ComponentCount() int {
	return len(d.Nodes) + len(d.Lines) + len(d.Sources) +
		len(d.SymLoads) + len(d.SymVoltageSensors) + len(d.SymPowerSensors)
}
