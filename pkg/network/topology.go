package network

// Energization is the connectivity state of one scenario: which components
// are reachable from at least one active source through closed switches.
// De-energized components are excluded from the numerical solve but still
// appear in results with zero output.
type Energization struct {
	// NodeEnergized, LineEnergized, SourceEnergized and LoadEnergized are
	// flags per dense index.
	NodeEnergized   []bool
	LineEnergized   []bool
	SourceEnergized []bool
	LoadEnergized   []bool

	// SolveOf maps a dense node index to its position in the reduced solve
	// system, or -1 for de-energized nodes. NodeOf is the inverse.
	SolveOf []int
	NodeOf  []int
}

// Energize recomputes connectivity from the current switch statuses.
// A line conducts between its endpoints only when both sides are closed;
// a half-open line energizes nothing beyond its closed terminal.
func (n *Network) Energize() *Energization {
	e := &Energization{
		NodeEnergized:   make([]bool, len(n.Nodes)),
		LineEnergized:   make([]bool, len(n.Lines)),
		SourceEnergized: make([]bool, len(n.Sources)),
		LoadEnergized:   make([]bool, len(n.SymLoads)),
		SolveOf:         make([]int, len(n.Nodes)),
	}

	// Breadth-first search from every node hosting an active source.
	queue := make([]int, 0, len(n.Nodes))
	for i, s := range n.Sources {
		if s.Status && !e.NodeEnergized[n.sourceNode[i]] {
			e.NodeEnergized[n.sourceNode[i]] = true
			queue = append(queue, n.sourceNode[i])
		}
	}
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		for _, li := range n.adjacency[node] {
			ln := &n.Lines[li]
			if !ln.FromStatus || !ln.ToStatus {
				continue
			}
			other := n.lineFrom[li]
			if other == node {
				other = n.lineTo[li]
			}
			if !e.NodeEnergized[other] {
				e.NodeEnergized[other] = true
				queue = append(queue, other)
			}
		}
	}

	// A line is energized at a terminal when that side is closed and the
	// terminal node carries voltage.
	for i, ln := range n.Lines {
		from, to := n.lineFrom[i], n.lineTo[i]
		e.LineEnergized[i] = (ln.FromStatus && e.NodeEnergized[from]) ||
			(ln.ToStatus && e.NodeEnergized[to])
	}
	for i, s := range n.Sources {
		e.SourceEnergized[i] = s.Status && e.NodeEnergized[n.sourceNode[i]]
	}
	for i, l := range n.SymLoads {
		e.LoadEnergized[i] = l.Status && e.NodeEnergized[n.loadNode[i]]
	}

	// Dense solve indices over the energized subset, in node order so that
	// repeated solves of the same scenario are deterministic.
	for i := range n.Nodes {
		e.SolveOf[i] = -1
	}
	for i := range n.Nodes {
		if e.NodeEnergized[i] {
			e.SolveOf[i] = len(e.NodeOf)
			e.NodeOf = append(e.NodeOf, i)
		}
	}
	return e
}

// EnergizedNodeCount returns the size of the reduced solve system.
func (e *Energization) EnergizedNodeCount() int { return len(e.NodeOf) }
