package solver

// NodeResult is the solved state of one node.
type NodeResult struct {
	ID        int     `json:"id" yaml:"id"`
	Energized bool    `json:"energized" yaml:"energized"`
	U         float64 `json:"u" yaml:"u"`             // line-to-line voltage magnitude, volt
	UPU       float64 `json:"u_pu" yaml:"u_pu"`       // magnitude in per-unit of u_rated
	UAngle    float64 `json:"u_angle" yaml:"u_angle"` // angle, radian
}

// LineResult is the solved flow of one line. Powers use the convention that
// positive flows into the line at each side.
type LineResult struct {
	ID        int     `json:"id" yaml:"id"`
	Energized bool    `json:"energized" yaml:"energized"`
	PFrom     float64 `json:"p_from" yaml:"p_from"` // watt
	QFrom     float64 `json:"q_from" yaml:"q_from"` // var
	PTo       float64 `json:"p_to" yaml:"p_to"`
	QTo       float64 `json:"q_to" yaml:"q_to"`
	IFrom     float64 `json:"i_from" yaml:"i_from"` // ampere
	ITo       float64 `json:"i_to" yaml:"i_to"`
	Loading   float64 `json:"loading" yaml:"loading"` // max side current over rated current
}

// ApplianceResult is the solved power of a source or load terminal. Sources
// use the generation convention, loads the consumption convention.
type ApplianceResult struct {
	ID        int     `json:"id" yaml:"id"`
	Energized bool    `json:"energized" yaml:"energized"`
	P         float64 `json:"p" yaml:"p"` // watt
	Q         float64 `json:"q" yaml:"q"` // var
}

// ResultSet is the full output of one solve: one record per component,
// in the same order as the input records.
type ResultSet struct {
	Nodes    []NodeResult      `json:"node" yaml:"node"`
	Lines    []LineResult      `json:"line" yaml:"line"`
	Sources  []ApplianceResult `json:"source" yaml:"source"`
	SymLoads []ApplianceResult `json:"sym_load" yaml:"sym_load"`
}
