// Package phase models the pipeline phase enumeration, the fixed progress
// mapping, and the no-regression rule for a single execution attempt.
package phase

// Phase is a named stage of the multi-step pipeline
type Phase string

const (
	None      Phase = "none"
	Thought   Phase = "thought"
	Plan      Phase = "plan"
	Executing Phase = "executing"
	Summary   Phase = "summary"
	Completed Phase = "completed"
	Failed    Phase = "failed"
)

// ordinals order the phases along the pipeline. Failed sits outside the
// pipeline order and is handled explicitly by Advance.
var ordinals = map[Phase]int{
	None:      0,
	Thought:   1,
	Plan:      2,
	Executing: 3,
	Summary:   4,
	Completed: 5,
}

// progress is the fixed phase → percent table. It is a lookup, not a
// derivation from ordinals.
var progress = map[Phase]int{
	None:      0,
	Thought:   25,
	Plan:      50,
	Executing: 75,
	Summary:   90,
	Completed: 100,
	Failed:    0,
}

// Progress returns the display percentage for the phase. Unknown phases
// report zero.
func (p Phase) Progress() int {
	return progress[p]
}

// Terminal reports whether the phase ends the current execution attempt.
func (p Phase) Terminal() bool {
	return p == Completed || p == Failed
}

// Valid reports whether p is a known phase value.
func (p Phase) Valid() bool {
	if p == Failed {
		return true
	}
	_, ok := ordinals[p]
	return ok
}

// Machine tracks the current phase of one execution attempt and enforces
// the transition rules: phases only move forward along the pipeline order,
// failed is reachable from any non-terminal state, and terminal phases only
// change via Reset.
type Machine struct {
	current Phase
}

// NewMachine returns a machine in the None phase.
func NewMachine() *Machine {
	return &Machine{current: None}
}

// Current returns the machine's phase.
func (m *Machine) Current() Phase {
	if m.current == "" {
		return None
	}
	return m.current
}

// Advance moves the machine to next when the transition is legal and returns
// the resulting phase. A lower-ordinal phase for an already-advanced attempt
// is ignored; failed always wins from a non-terminal state; terminal states
// hold until Reset.
func (m *Machine) Advance(next Phase) Phase {
	cur := m.Current()

	if cur.Terminal() {
		return cur
	}
	if next == Failed {
		m.current = Failed
		return Failed
	}
	nextOrd, ok := ordinals[next]
	if !ok {
		return cur
	}
	if nextOrd < ordinals[cur] {
		return cur
	}
	m.current = next
	return next
}

// Reset returns the machine to None for a fresh execution attempt.
func (m *Machine) Reset() {
	m.current = None
}
