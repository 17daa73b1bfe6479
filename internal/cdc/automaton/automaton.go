package automaton

import "math"

// Relation is a directed, weighted edge between two nodes. A NaN weight
// forbids the relation.
type Relation[T any] struct {
	From   T
	To     T
	Weight float64
}

// Forbidden reports whether the relation was rejected.
func (r Relation[T]) Forbidden() bool { return math.IsNaN(r.Weight) }

// RunStats summarises one automaton run.
type RunStats struct {
	Rounds       int // relaxation sweeps, including the final sweep without change
	CyclesBroken int // relations ignored because they closed a cycle
	Assigned     int // nodes with a finite state
	Edges        int // relations between usable nodes
}

type edge struct {
	from, to int
	weight   float64
	ignored  bool
}

// CellularAutomaton computes, for every node, the weight of the best path
// ending at it:
//
//	state(B) = weight(B) + max(0, max over relations A->B of state(A) + w(A,B))
//
// Taken, masked and NaN-weighted nodes are excluded. Relations closing a
// cycle are found with a depth-first search in node order and ignored, so
// every run terminates. Equal candidates are resolved by, in order: longer
// path, larger |relation weight|, earlier relation.
type CellularAutomaton[T NodePtr] struct{}

// Apply runs the automaton over nodes. Relations referencing nodes absent
// from nodes are ignored.
func (ca *CellularAutomaton[T]) Apply(nodes []T, relations []Relation[T]) RunStats {
	var stats RunStats
	index := make(map[T]int, len(nodes))
	for i, n := range nodes {
		index[n] = i
		c := n.AutomatonCell()
		c.ClearFlag(FlagAssigned | FlagStart | FlagCycle)
		c.pred, c.length, c.predW = -1, 0, 0
		if c.usable() {
			c.State, c.length = c.Weight, 1
		} else {
			c.State = NoContinuation
		}
	}

	var edges []edge
	out := make([][]int, len(nodes))
	in := make([][]int, len(nodes))
	for _, r := range relations {
		if r.Forbidden() {
			continue
		}
		from, okFrom := index[r.From]
		to, okTo := index[r.To]
		if !okFrom || !okTo || from == to {
			continue
		}
		if !nodes[from].AutomatonCell().usable() || !nodes[to].AutomatonCell().usable() {
			continue
		}
		out[from] = append(out[from], len(edges))
		in[to] = append(in[to], len(edges))
		edges = append(edges, edge{from: from, to: to, weight: r.Weight})
	}

	stats.Edges = len(edges)
	order := breakCycles(nodes, edges, out, &stats)

	for changed := len(nodes) > 0; changed; {
		changed = false
		stats.Rounds++
		for _, b := range order {
			cb := nodes[b].AutomatonCell()
			if !cb.usable() {
				continue
			}
			for _, ei := range in[b] {
				e := edges[ei]
				if e.ignored {
					continue
				}
				cf := nodes[e.from].AutomatonCell()
				if math.IsInf(cf.State, -1) {
					continue
				}
				cand := cf.State + e.weight + cb.Weight
				length := cf.length + 1
				if better(cand, length, e.weight, cb) {
					cb.State, cb.length, cb.pred, cb.predW = cand, length, int32(e.from), e.weight
					changed = true
				}
			}
		}
	}

	for _, n := range nodes {
		c := n.AutomatonCell()
		if math.IsInf(c.State, -1) {
			continue
		}
		stats.Assigned++
		c.SetFlag(FlagAssigned)
		if c.pred < 0 {
			c.SetFlag(FlagStart)
		}
	}
	return stats
}

// better reports whether a candidate predecessor improves on the current
// state of c. The comparison is strict so that equal candidates keep the
// earlier relation.
func better(state float64, length int32, w float64, c *Cell) bool {
	switch {
	case state != c.State:
		return state > c.State
	case length != c.length:
		return length > c.length
	case c.pred < 0:
		return false
	default:
		return math.Abs(w) > math.Abs(c.predW)
	}
}

// breakCycles marks back edges of a depth-first traversal as ignored and
// returns the nodes in topological order of the remaining graph.
func breakCycles[T NodePtr](nodes []T, edges []edge, out [][]int, stats *RunStats) []int {
	const (
		white = iota
		grey
		black
	)
	color := make([]uint8, len(nodes))
	post := make([]int, 0, len(nodes))
	type frame struct{ node, next int }

	for root := range nodes {
		if color[root] != white {
			continue
		}
		stack := []frame{{node: root}}
		color[root] = grey
		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			if top.next == len(out[top.node]) {
				color[top.node] = black
				post = append(post, top.node)
				stack = stack[:len(stack)-1]
				continue
			}
			ei := out[top.node][top.next]
			top.next++
			e := &edges[ei]
			switch color[e.to] {
			case white:
				color[e.to] = grey
				stack = append(stack, frame{node: e.to})
			case grey:
				e.ignored = true
				stats.CyclesBroken++
				nodes[e.from].AutomatonCell().SetFlag(FlagCycle)
				nodes[e.to].AutomatonCell().SetFlag(FlagCycle)
			}
		}
	}

	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}

// BestEnd returns the index of the node ending the best path: highest
// state, then longest path, then larger |relation weight|, then lowest
// index. ok is false when no node has a finite state.
func BestEnd[T Node](nodes []T) (best int, ok bool) {
	best = -1
	for i, n := range nodes {
		c := n.AutomatonCell()
		if math.IsInf(c.State, -1) || !c.HasFlag(FlagAssigned) {
			continue
		}
		if best < 0 {
			best = i
			continue
		}
		b := nodes[best].AutomatonCell()
		switch {
		case c.State != b.State:
			if c.State > b.State {
				best = i
			}
		case c.length != b.length:
			if c.length > b.length {
				best = i
			}
		case math.Abs(c.predW) > math.Abs(b.predW):
			best = i
		}
	}
	return best, best >= 0
}

// TracePath follows the best predecessors back from end and returns the
// path in forward order.
func TracePath[T Node](nodes []T, end int) []T {
	var rev []T
	for i := end; i >= 0; i = int(nodes[i].AutomatonCell().pred) {
		rev = append(rev, nodes[i])
		if len(rev) > len(nodes) {
			break
		}
	}
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}
