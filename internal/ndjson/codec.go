package ndjson

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/wsyeabsera/taskstream/internal/protocol"
)

// MaxFrameSize is the maximum NDJSON frame size (256 KiB)
const MaxFrameSize = 256 * 1024

// Encoder writes NDJSON frames to an output stream
type Encoder struct {
	writer *bufio.Writer
	logger *slog.Logger
}

// NewEncoder creates a new NDJSON encoder
func NewEncoder(w io.Writer, logger *slog.Logger) *Encoder {
	return &Encoder{
		writer: bufio.NewWriter(w),
		logger: logger,
	}
}

// Encode writes a value as a single JSON line and flushes immediately so
// frames reach the peer in real time.
func (e *Encoder) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}

	if len(data) > MaxFrameSize {
		e.logger.Error("frame exceeds size limit",
			"size", len(data),
			"limit", MaxFrameSize)
		return fmt.Errorf("frame size %d exceeds limit %d", len(data), MaxFrameSize)
	}

	if _, err := e.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}
	if err := e.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	if err := e.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush output: %w", err)
	}

	return nil
}

// Decoder reads NDJSON frames from an input stream
type Decoder struct {
	scanner *bufio.Scanner
	logger  *slog.Logger
	lineNum int
}

// NewDecoder creates a new NDJSON decoder
func NewDecoder(r io.Reader, logger *slog.Logger) *Decoder {
	scanner := bufio.NewScanner(r)

	buf := make([]byte, MaxFrameSize)
	scanner.Buffer(buf, MaxFrameSize)

	return &Decoder{
		scanner: scanner,
		logger:  logger,
	}
}

// Decode reads the next NDJSON frame into v. Empty lines are skipped.
func (d *Decoder) Decode(v any) error {
	for {
		if !d.scanner.Scan() {
			if err := d.scanner.Err(); err != nil {
				return fmt.Errorf("scanner error at line %d: %w", d.lineNum, err)
			}
			return io.EOF
		}

		d.lineNum++
		data := d.scanner.Bytes()
		if len(data) == 0 {
			continue
		}

		if err := json.Unmarshal(data, v); err != nil {
			d.logger.Error("failed to unmarshal JSON",
				"line", d.lineNum,
				"error", err,
				"data", string(data[:min(100, len(data))]))
			return fmt.Errorf("failed to unmarshal line %d: %w", d.lineNum, err)
		}

		return nil
	}
}

// DecodeEvent reads the next stream event frame, validating that the frame
// carries a known event name.
func (d *Decoder) DecodeEvent() (*protocol.StreamEvent, error) {
	var evt protocol.StreamEvent
	if err := d.Decode(&evt); err != nil {
		return nil, err
	}

	switch evt.Event {
	case protocol.EventThought,
		protocol.EventPlan,
		protocol.EventStep,
		protocol.EventSummary,
		protocol.EventError,
		protocol.EventComplete:
		return &evt, nil
	case "":
		return nil, fmt.Errorf("line %d: missing 'event' field", d.lineNum)
	default:
		d.logger.Warn("unknown event name",
			"line", d.lineNum,
			"event", evt.Event)
		return nil, fmt.Errorf("line %d: unknown event name: %s", d.lineNum, evt.Event)
	}
}
