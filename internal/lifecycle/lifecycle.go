// Package lifecycle provides a small reusable transition-table checker,
// the same O(1)-lookup idiom the teacher repo uses for its position state
// machine, generalized here for lifecycle graphs such as the position
// lifecycle (unknown -> tracked-without-basis -> tracked-with-basis).
// positions.Manager is its only user; the order book does not check
// order transitions against a Table. A rejected transition is never
// fatal: positions.Manager logs it as a protocol anomaly and still moves
// to the new state.
package lifecycle

import "fmt"

// State is any comparable lifecycle state value.
type State string

// Transition names one edge of a lifecycle graph.
type Transition struct {
	From   State
	To     State
	Reason string
}

// Table is a precomputed lookup for valid transitions.
type Table struct {
	edges map[State]map[State]map[string]bool
}

// NewTable builds a Table from a flat transition list.
func NewTable(transitions []Transition) *Table {
	t := &Table{edges: make(map[State]map[State]map[string]bool)}
	for _, tr := range transitions {
		if t.edges[tr.From] == nil {
			t.edges[tr.From] = make(map[State]map[string]bool)
		}
		if t.edges[tr.From][tr.To] == nil {
			t.edges[tr.From][tr.To] = make(map[string]bool)
		}
		t.edges[tr.From][tr.To][tr.Reason] = true
	}
	return t
}

// Check reports whether moving from -> to for the given reason is a
// defined edge. It never mutates anything; callers decide what to do
// with a rejection.
func (t *Table) Check(from, to State, reason string) error {
	if byTo, ok := t.edges[from]; ok {
		if byReason, ok := byTo[to]; ok {
			if byReason[reason] {
				return nil
			}
		}
	}
	return fmt.Errorf("lifecycle: invalid transition %s -> %s (%s)", from, to, reason)
}
