// Package network compiles component records into an immutable electrical
// graph with per-unit parameters, and applies sparse scenario updates to
// working copies of it.
//
// A compiled Network splits into two parts: structural data (index tables,
// adjacency) that is never mutated and is aliased by every clone, and
// attribute arrays (statuses, impedances, specified powers) that each clone
// owns privately. Batch scenario execution shares one base Network read-only
// and gives every scenario its own Clone.
package network

import (
	"fmt"

	"github.com/gridflow/gridflow/pkg/model"
)

// BasePower is the power base for per-unit conversion, in VA.
const BasePower = 1e6

// Frequency is the system frequency used for shunt susceptance, in Hz.
const Frequency = 50.0

// Network is a compiled model: validated component records plus the
// structural tables derived from them.
type Network struct {
	// Attribute arrays, deep-copied by Clone. Indexed densely per type.
	Nodes             []model.Node
	Lines             []model.Line
	Sources           []model.Source
	SymLoads          []model.SymLoad
	SymVoltageSensors []model.SymVoltageSensor
	SymPowerSensors   []model.SymPowerSensor

	// Structural data, immutable after Compile and aliased by clones.
	nodeIdx    map[int]int // node id -> dense index
	lineIdx    map[int]int
	sourceIdx  map[int]int
	loadIdx    map[int]int
	vSensorIdx map[int]int
	pSensorIdx map[int]int

	// lineFrom and lineTo are dense node indices per line.
	lineFrom []int
	lineTo   []int

	// sourceNode and loadNode are dense node indices per appliance.
	sourceNode []int
	loadNode   []int

	// adjacency lists dense line indices incident to each dense node index.
	adjacency [][]int

	// nodesAtSource and nodesAtLoad list appliance dense indices per node.
	sourcesAtNode [][]int
	loadsAtNode   [][]int
}

// Compile validates the dataset and builds a compiled network.
// It fails with a construction error (duplicate-id, id-not-found,
// voltage-mismatch or validation) and never returns a partial model.
func Compile(d *model.Dataset) (*Network, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}

	n := &Network{
		Nodes:             append([]model.Node(nil), d.Nodes...),
		Lines:             append([]model.Line(nil), d.Lines...),
		Sources:           append([]model.Source(nil), d.Sources...),
		SymLoads:          append([]model.SymLoad(nil), d.SymLoads...),
		SymVoltageSensors: append([]model.SymVoltageSensor(nil), d.SymVoltageSensors...),
		SymPowerSensors:   append([]model.SymPowerSensor(nil), d.SymPowerSensors...),
	}

	if err := n.buildIndexTables(); err != nil {
		return nil, err
	}
	if err := n.resolveReferences(); err != nil {
		return nil, err
	}
	n.buildAdjacency()

	return n, nil
}

// buildIndexTables assigns dense indices and rejects duplicate ids across
// the shared id-space of all component types.
func (n *Network) buildIndexTables() error {
	owner := make(map[int]model.ComponentType, len(n.Nodes)+len(n.Lines))

	claim := func(id int, ct model.ComponentType) error {
		if prev, ok := owner[id]; ok {
			return model.NewError(model.KindDuplicateID,
				fmt.Sprintf("id already used by a %s record", prev)).
				WithComponent(ct, id).
				WithOp("construction")
		}
		owner[id] = ct
		return nil
	}

	n.nodeIdx = make(map[int]int, len(n.Nodes))
	for i, c := range n.Nodes {
		if err := claim(c.ID, model.ComponentNode); err != nil {
			return err
		}
		n.nodeIdx[c.ID] = i
	}
	n.lineIdx = make(map[int]int, len(n.Lines))
	for i, c := range n.Lines {
		if err := claim(c.ID, model.ComponentLine); err != nil {
			return err
		}
		n.lineIdx[c.ID] = i
	}
	n.sourceIdx = make(map[int]int, len(n.Sources))
	for i, c := range n.Sources {
		if err := claim(c.ID, model.ComponentSource); err != nil {
			return err
		}
		n.sourceIdx[c.ID] = i
	}
	n.loadIdx = make(map[int]int, len(n.SymLoads))
	for i, c := range n.SymLoads {
		if err := claim(c.ID, model.ComponentSymLoad); err != nil {
			return err
		}
		n.loadIdx[c.ID] = i
	}
	n.vSensorIdx = make(map[int]int, len(n.SymVoltageSensors))
	for i, c := range n.SymVoltageSensors {
		if err := claim(c.ID, model.ComponentSymVoltageSensor); err != nil {
			return err
		}
		n.vSensorIdx[c.ID] = i
	}
	n.pSensorIdx = make(map[int]int, len(n.SymPowerSensors))
	for i, c := range n.SymPowerSensors {
		if err := claim(c.ID, model.ComponentSymPowerSensor); err != nil {
			return err
		}
		n.pSensorIdx[c.ID] = i
	}
	return nil
}

// resolveReferences checks referential integrity and voltage classes, and
// caches dense endpoint indices for lines and appliances.
func (n *Network) resolveReferences() error {
	refNotFound := func(ct model.ComponentType, id, ref int, field string) error {
		return model.NewError(model.KindIDNotFound,
			fmt.Sprintf("%s references unknown id %d", field, ref)).
			WithComponent(ct, id).
			WithOp("construction")
	}

	n.lineFrom = make([]int, len(n.Lines))
	n.lineTo = make([]int, len(n.Lines))
	for i, ln := range n.Lines {
		from, ok := n.nodeIdx[ln.FromNode]
		if !ok {
			return refNotFound(model.ComponentLine, ln.ID, ln.FromNode, "from_node")
		}
		to, ok := n.nodeIdx[ln.ToNode]
		if !ok {
			return refNotFound(model.ComponentLine, ln.ID, ln.ToNode, "to_node")
		}
		if uf, ut := n.Nodes[from].URated, n.Nodes[to].URated; uf != ut {
			return model.NewError(model.KindVoltageMismatch,
				fmt.Sprintf("endpoints node %d (%.0f V) and node %d (%.0f V) have different rated voltages",
					ln.FromNode, uf, ln.ToNode, ut)).
				WithComponent(model.ComponentLine, ln.ID).
				WithOp("construction").
				WithDetail("u_rated_from", uf).
				WithDetail("u_rated_to", ut)
		}
		n.lineFrom[i] = from
		n.lineTo[i] = to
	}

	n.sourceNode = make([]int, len(n.Sources))
	for i, s := range n.Sources {
		idx, ok := n.nodeIdx[s.Node]
		if !ok {
			return refNotFound(model.ComponentSource, s.ID, s.Node, "node")
		}
		n.sourceNode[i] = idx
	}

	n.loadNode = make([]int, len(n.SymLoads))
	for i, l := range n.SymLoads {
		idx, ok := n.nodeIdx[l.Node]
		if !ok {
			return refNotFound(model.ComponentSymLoad, l.ID, l.Node, "node")
		}
		n.loadNode[i] = idx
	}

	for _, s := range n.SymVoltageSensors {
		if _, ok := n.nodeIdx[s.MeasuredObject]; !ok {
			return refNotFound(model.ComponentSymVoltageSensor, s.ID, s.MeasuredObject, "measured_object")
		}
	}
	for _, s := range n.SymPowerSensors {
		var ok bool
		switch s.MeasuredTerminalType {
		case model.TerminalBranchFrom, model.TerminalBranchTo:
			_, ok = n.lineIdx[s.MeasuredObject]
		case model.TerminalSource:
			_, ok = n.sourceIdx[s.MeasuredObject]
		case model.TerminalLoad:
			_, ok = n.loadIdx[s.MeasuredObject]
		}
		if !ok {
			return refNotFound(model.ComponentSymPowerSensor, s.ID, s.MeasuredObject, "measured_object")
		}
	}
	return nil
}

// buildAdjacency fills the per-node incidence lists. Membership never
// changes after compilation; only switch statuses vary per scenario.
func (n *Network) buildAdjacency() {
	n.adjacency = make([][]int, len(n.Nodes))
	for i := range n.Lines {
		n.adjacency[n.lineFrom[i]] = append(n.adjacency[n.lineFrom[i]], i)
		n.adjacency[n.lineTo[i]] = append(n.adjacency[n.lineTo[i]], i)
	}
	n.sourcesAtNode = make([][]int, len(n.Nodes))
	for i := range n.Sources {
		n.sourcesAtNode[n.sourceNode[i]] = append(n.sourcesAtNode[n.sourceNode[i]], i)
	}
	n.loadsAtNode = make([][]int, len(n.Nodes))
	for i := range n.SymLoads {
		n.loadsAtNode[n.loadNode[i]] = append(n.loadsAtNode[n.loadNode[i]], i)
	}
}

// Clone returns a working copy that owns its attribute arrays and aliases
// all structural data. The receiver is left untouched.
func (n *Network) Clone() *Network {
	c := *n
	c.Nodes = append([]model.Node(nil), n.Nodes...)
	c.Lines = append([]model.Line(nil), n.Lines...)
	c.Sources = append([]model.Source(nil), n.Sources...)
	c.SymLoads = append([]model.SymLoad(nil), n.SymLoads...)
	c.SymVoltageSensors = append([]model.SymVoltageSensor(nil), n.SymVoltageSensors...)
	c.SymPowerSensors = append([]model.SymPowerSensor(nil), n.SymPowerSensors...)
	return &c
}

// NodeIndex returns the dense index of a node id.
func (n *Network) NodeIndex(id int) (int, bool) {
	i, ok := n.nodeIdx[id]
	return i, ok
}

// LineIndex returns the dense index of a line id.
func (n *Network) LineIndex(id int) (int, bool) {
	i, ok := n.lineIdx[id]
	return i, ok
}

// SourceIndex returns the dense index of a source id.
func (n *Network) SourceIndex(id int) (int, bool) {
	i, ok := n.sourceIdx[id]
	return i, ok
}

// LoadIndex returns the dense index of a sym_load id.
func (n *Network) LoadIndex(id int) (int, bool) {
	i, ok := n.loadIdx[id]
	return i, ok
}

// LineEndpoints returns the dense node indices of a line's from and to side.
func (n *Network) LineEndpoints(line int) (from, to int) {
	return n.lineFrom[line], n.lineTo[line]
}

// SourceNode returns the dense node index hosting a source.
func (n *Network) SourceNode(source int) int { return n.sourceNode[source] }

// LoadNode returns the dense node index hosting a sym_load.
func (n *Network) LoadNode(load int) int { return n.loadNode[load] }

// SourcesAt returns the dense source indices attached to a node.
func (n *Network) SourcesAt(node int) []int { return n.sourcesAtNode[node] }

// LoadsAt returns the dense sym_load indices attached to a node.
func (n *Network) LoadsAt(node int) []int { return n.loadsAtNode[node] }

// LinesAt returns the dense line indices incident to a node.
func (n *Network) LinesAt(node int) []int { return n.adjacency[node] }
