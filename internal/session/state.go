package session

import (
	"github.com/wsyeabsera/taskstream/internal/phase"
	"github.com/wsyeabsera/taskstream/internal/protocol"
)

// State is the ephemeral per-session state owned by the controller. It is
// created empty when the controller is built, fully reset on a new
// conversation, and torn down with the controller.
type State struct {
	// Phase is the current pipeline phase for the active execution attempt.
	Phase phase.Phase

	// IsStreaming is true while a push channel or poll loop is actively
	// expected to produce updates.
	IsStreaming bool

	// Correlation identifiers, set by stream/poll events.
	CurrentExecutionID string
	CurrentTaskID      string

	// PendingInputs is the currently unresolved set of requested fields.
	PendingInputs []protocol.PendingInput

	// LiveEntryID references the transcript entry currently being updated
	// in place. The transcript owns the entry; this is only a back-reference.
	LiveEntryID string
}

// Reset returns the state to its initial empty value. Reset is always total;
// there is no partial clear.
func (s *State) Reset() {
	*s = State{Phase: phase.None}
}

// ProgressPercent is the display progress derived from the current phase.
func (s *State) ProgressPercent() int {
	return s.Phase.Progress()
}

// clone returns a copy safe to hand outside the controller's lock.
func (s *State) clone() State {
	c := *s
	if len(s.PendingInputs) > 0 {
		c.PendingInputs = append([]protocol.PendingInput(nil), s.PendingInputs...)
	}
	return c
}
