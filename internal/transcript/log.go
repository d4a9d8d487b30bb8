// Package transcript holds the ordered conversation log for a live session
// and the merge rules that keep it consistent while the stream consumer and
// the poll loop fold updates into it. Entries are append-mostly: history is
// never removed or reordered, and only the most recently created assistant
// entry is ever patched in place.
package transcript

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/wsyeabsera/taskstream/internal/phase"
	"github.com/wsyeabsera/taskstream/internal/protocol"
)

// Kind classifies a transcript entry
type Kind string

const (
	KindUser          Kind = "user"
	KindAssistant     Kind = "assistant"
	KindSystem        Kind = "system"
	KindInputRequired Kind = "input_required"
)

// Entry is one conversation message
type Entry struct {
	ID        string
	Kind      Kind
	Content   string
	Timestamp time.Time

	// Phase is set only on assistant entries.
	Phase phase.Phase

	// PendingInputs is set only on input_required entries.
	PendingInputs []protocol.PendingInput

	// Correlation identifiers, set when known.
	TaskID      string
	ExecutionID string

	// IsLoading marks the assistant entry that represents an in-flight phase.
	IsLoading bool
}

// clone returns a deep copy so callers can never mutate stored history.
func (e *Entry) clone() Entry {
	c := *e
	if len(e.PendingInputs) > 0 {
		c.PendingInputs = append([]protocol.PendingInput(nil), e.PendingInputs...)
	}
	return c
}

// Log is the ordered transcript for one session. All mutations are appends
// or patches of the newest assistant entry, so a concurrent reader can never
// observe a shorter transcript than it did previously.
type Log struct {
	mu      sync.RWMutex
	entries []*Entry
}

// NewLog creates an empty transcript
func NewLog() *Log {
	return &Log{}
}

func newEntry(kind Kind, content string) *Entry {
	return &Entry{
		ID:        uuid.New().String(),
		Kind:      kind,
		Content:   content,
		Timestamp: time.Now().UTC(),
	}
}

// AppendUser appends an immutable user entry and returns a copy of it.
func (l *Log) AppendUser(content string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := newEntry(KindUser, content)
	l.entries = append(l.entries, e)
	return e.clone()
}

// AppendSystem appends a system diagnostic entry. System entries stay in the
// model but are suppressed by every rendering surface.
func (l *Log) AppendSystem(content string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := newEntry(KindSystem, content)
	l.entries = append(l.entries, e)
	return e.clone()
}

// AppendAssistant appends a fresh assistant entry for a new execution
// attempt. The entry becomes the live target for UpdateLive.
func (l *Log) AppendAssistant(content string, ph phase.Phase, loading bool) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := newEntry(KindAssistant, content)
	e.Phase = ph
	e.IsLoading = loading
	l.entries = append(l.entries, e)
	return e.clone()
}

// AppendInputRequired appends an entry describing the fields the pipeline is
// waiting for. Input-required entries are never mutated afterwards.
func (l *Log) AppendInputRequired(inputs []protocol.PendingInput, taskID, executionID string) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := newEntry(KindInputRequired, describePendingInputs(inputs))
	e.PendingInputs = append([]protocol.PendingInput(nil), inputs...)
	e.TaskID = taskID
	e.ExecutionID = executionID
	l.entries = append(l.entries, e)
	return e.clone()
}

// UpdateLive patches the most recently created assistant entry, scanning
// from the end. When no assistant entry exists yet one is created and
// appended. Returns a copy of the patched entry.
func (l *Log) UpdateLive(content string, ph phase.Phase, loading bool) Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.liveLocked()
	if e == nil {
		e = newEntry(KindAssistant, "")
		l.entries = append(l.entries, e)
	}
	e.Content = content
	e.Phase = ph
	e.IsLoading = loading
	return e.clone()
}

// SetLiveCorrelation records the task/execution identifiers on the live
// assistant entry once they become known. Empty values leave the existing
// identifiers untouched.
func (l *Log) SetLiveCorrelation(taskID, executionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e := l.liveLocked()
	if e == nil {
		return
	}
	if taskID != "" {
		e.TaskID = taskID
	}
	if executionID != "" {
		e.ExecutionID = executionID
	}
}

// ResolvePending appends a user entry summarizing the submitted values. The
// input_required entry that prompted the submission stays in the log as
// history.
func (l *Log) ResolvePending(values []protocol.SubmittedInput) Entry {
	return l.AppendUser(describeSubmittedInputs(values))
}

// Live returns a copy of the most recently created assistant entry, or
// nil when the transcript holds none.
func (l *Log) Live() *Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e := l.liveLocked()
	if e == nil {
		return nil
	}
	c := e.clone()
	return &c
}

// Len returns the number of entries
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Snapshot returns copies of all entries in append order
func (l *Log) Snapshot() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, 0, len(l.entries))
	for _, e := range l.entries {
		out = append(out, e.clone())
	}
	return out
}

// LoadingCount returns how many entries currently have IsLoading set.
// The controller maintains the invariant that this never exceeds one.
func (l *Log) LoadingCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := 0
	for _, e := range l.entries {
		if e.IsLoading {
			n++
		}
	}
	return n
}

func (l *Log) liveLocked() *Entry {
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].Kind == KindAssistant {
			return l.entries[i]
		}
	}
	return nil
}

func describePendingInputs(inputs []protocol.PendingInput) string {
	if len(inputs) == 0 {
		return "The pipeline is waiting for additional input."
	}
	fields := make([]string, 0, len(inputs))
	for _, in := range inputs {
		if in.Description != "" {
			fields = append(fields, fmt.Sprintf("%s (%s)", in.Field, in.Description))
		} else {
			fields = append(fields, in.Field)
		}
	}
	return fmt.Sprintf("The pipeline is waiting for: %s", strings.Join(fields, ", "))
}

func describeSubmittedInputs(values []protocol.SubmittedInput) string {
	pairs := make([]string, 0, len(values))
	for _, v := range values {
		pairs = append(pairs, fmt.Sprintf("%s: %q", v.Field, v.Value))
	}
	return fmt.Sprintf("Provided inputs: %s", strings.Join(pairs, ", "))
}
