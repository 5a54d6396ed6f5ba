package model

// Scenario update records. A nil pointer field means "leave unchanged"; an
// update can only mutate components that already exist in the base model.

// LineUpdate changes the switch positions of an existing line.
type LineUpdate struct {
	ID         int   `json:"id" yaml:"id"`
	FromStatus *bool `json:"from_status,omitempty" yaml:"from_status,omitempty"`
	ToStatus   *bool `json:"to_status,omitempty" yaml:"to_status,omitempty"`
}

// SourceUpdate changes the status or reference voltage of an existing source.
type SourceUpdate struct {
	ID     int      `json:"id" yaml:"id"`
	Status *bool    `json:"status,omitempty" yaml:"status,omitempty"`
	URef   *float64 `json:"u_ref,omitempty" yaml:"u_ref,omitempty"`
}

// SymLoadUpdate changes the status or specified power of an existing load.
type SymLoadUpdate struct {
	ID         int      `json:"id" yaml:"id"`
	Status     *bool    `json:"status,omitempty" yaml:"status,omitempty"`
	PSpecified *float64 `json:"p_specified,omitempty" yaml:"p_specified,omitempty"`
	QSpecified *float64 `json:"q_specified,omitempty" yaml:"q_specified,omitempty"`
}

// SymVoltageSensorUpdate changes the reading of an existing voltage sensor.
type SymVoltageSensorUpdate struct {
	ID        int      `json:"id" yaml:"id"`
	USigma    *float64 `json:"u_sigma,omitempty" yaml:"u_sigma,omitempty"`
	UMeasured *float64 `json:"u_measured,omitempty" yaml:"u_measured,omitempty"`
}

// SymPowerSensorUpdate changes the readings of an existing power sensor.
type SymPowerSensorUpdate struct {
	ID         int      `json:"id" yaml:"id"`
	PowerSigma *float64 `json:"power_sigma,omitempty" yaml:"power_sigma,omitempty"`
	PMeasured  *float64 `json:"p_measured,omitempty" yaml:"p_measured,omitempty"`
	QMeasured  *float64 `json:"q_measured,omitempty" yaml:"q_measured,omitempty"`
}

// UpdateSet is one scenario's sparse set of component mutations.
type UpdateSet struct {
	Lines             []LineUpdate             `json:"line,omitempty" yaml:"line,omitempty"`
	Sources           []SourceUpdate           `json:"source,omitempty" yaml:"source,omitempty"`
	SymLoads          []SymLoadUpdate          `json:"sym_load,omitempty" yaml:"sym_load,omitempty"`
	SymVoltageSensors []SymVoltageSensorUpdate `json:"sym_voltage_sensor,omitempty" yaml:"sym_voltage_sensor,omitempty"`
	SymPowerSensors   []SymPowerSensorUpdate   `json:"sym_power_sensor,omitempty" yaml:"sym_power_sensor,omitempty"`
}

// Empty reports whether the update set contains no records at all.
func (u *UpdateSet) Empty() bool {
	return len(u.Lines) == 0 && len(u.Sources) == 0 && len(u.SymLoads) == 0 &&
		len(u.SymVoltageSensors) == 0 && len(u.SymPowerSensors) == 0
}

// Bool returns a pointer to b, for building update records inline.
func Bool(b bool) *bool { return &b }

// Float returns a pointer to f, for building update records inline.
func Float(f float64) *float64 { return &f }
