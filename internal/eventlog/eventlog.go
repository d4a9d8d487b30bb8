package eventlog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/wsyeabsera/taskstream/internal/ndjson"
	"github.com/wsyeabsera/taskstream/internal/protocol"
)

// EventLog writes everything the session controller observes to an NDJSON
// file: push-channel frames and the snapshots fetched by the poll loop.
// It exists for diagnostics only; the live transcript is never rebuilt from it.
type EventLog struct {
	file    *os.File
	encoder *ndjson.Encoder
	logger  *slog.Logger
	mu      sync.Mutex
}

// record is the envelope written for each observation
type record struct {
	Kind       string                          `json:"kind"`
	ObservedAt time.Time                       `json:"observed_at"`
	Frame      *protocol.StreamEvent           `json:"frame,omitempty"`
	Task       *protocol.TaskSnapshot          `json:"task,omitempty"`
	Orch       *protocol.OrchestrationSnapshot `json:"orchestration,omitempty"`
}

// NewEventLog creates a new event log at logPath, creating directories as
// needed and appending to an existing file.
func NewEventLog(logPath string, logger *slog.Logger) (*EventLog, error) {
	dir := filepath.Dir(logPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &EventLog{
		file:    file,
		encoder: ndjson.NewEncoder(file, logger),
		logger:  logger,
	}, nil
}

// WriteFrame records a push-channel frame
func (l *EventLog) WriteFrame(evt *protocol.StreamEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.encoder.Encode(record{
		Kind:       "frame",
		ObservedAt: time.Now().UTC(),
		Frame:      evt,
	})
}

// WriteTaskSnapshot records a task snapshot fetched during polling
func (l *EventLog) WriteTaskSnapshot(snap *protocol.TaskSnapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.encoder.Encode(record{
		Kind:       "task_snapshot",
		ObservedAt: time.Now().UTC(),
		Task:       snap,
	})
}

// WriteOrchestrationSnapshot records an orchestration snapshot fetched
// during polling
func (l *EventLog) WriteOrchestrationSnapshot(snap *protocol.OrchestrationSnapshot) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.encoder.Encode(record{
		Kind:       "orchestration_snapshot",
		ObservedAt: time.Now().UTC(),
		Orch:       snap,
	})
}

// Close closes the event log file
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}
