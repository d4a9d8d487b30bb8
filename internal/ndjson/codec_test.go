package ndjson

import (
	"bytes"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/wsyeabsera/taskstream/internal/protocol"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, testLogger())

	evt := protocol.StreamEvent{
		Event:   protocol.EventThought,
		Payload: map[string]any{"status": protocol.StatusGenerating},
	}
	require.NoError(t, enc.Encode(evt))
	require.True(t, strings.HasSuffix(buf.String(), "\n"), "frames are newline terminated")

	dec := NewDecoder(&buf, testLogger())
	decoded, err := dec.DecodeEvent()
	require.NoError(t, err)
	require.Equal(t, protocol.EventThought, decoded.Event)
	require.Equal(t, protocol.StatusGenerating, decoded.Status())
}

func TestDecodeSkipsEmptyLines(t *testing.T) {
	input := "\n\n{\"event\":\"plan\",\"payload\":{\"status\":\"completed\"}}\n\n"
	dec := NewDecoder(strings.NewReader(input), testLogger())

	evt, err := dec.DecodeEvent()
	require.NoError(t, err)
	require.Equal(t, protocol.EventPlan, evt.Event)

	_, err = dec.DecodeEvent()
	require.ErrorIs(t, err, io.EOF)
}

func TestDecodeEventRejectsUnknownName(t *testing.T) {
	dec := NewDecoder(strings.NewReader(`{"event":"bogus"}`+"\n"), testLogger())
	_, err := dec.DecodeEvent()
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown event name")
}

func TestDecodeEventRejectsMissingName(t *testing.T) {
	dec := NewDecoder(strings.NewReader(`{"payload":{}}`+"\n"), testLogger())
	_, err := dec.DecodeEvent()
	require.Error(t, err)
	require.Contains(t, err.Error(), "missing 'event' field")
}

func TestDecodeInvalidJSON(t *testing.T) {
	dec := NewDecoder(strings.NewReader("{not json}\n"), testLogger())
	var v map[string]any
	require.Error(t, dec.Decode(&v))
}

func TestEncodeRejectsOversizedFrame(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, testLogger())

	huge := protocol.StreamEvent{
		Event:   protocol.EventSummary,
		Payload: map[string]any{"summary": strings.Repeat("x", MaxFrameSize)},
	}
	err := enc.Encode(huge)
	require.Error(t, err)
	require.Contains(t, err.Error(), "exceeds limit")
	require.Zero(t, buf.Len(), "nothing written for rejected frames")
}

func TestDecodeMultipleFrames(t *testing.T) {
	var buf bytes.Buffer
	enc := NewEncoder(&buf, testLogger())

	names := []protocol.EventName{protocol.EventThought, protocol.EventStep, protocol.EventComplete}
	for _, name := range names {
		require.NoError(t, enc.Encode(protocol.StreamEvent{Event: name}))
	}

	dec := NewDecoder(&buf, testLogger())
	for _, want := range names {
		evt, err := dec.DecodeEvent()
		require.NoError(t, err)
		require.Equal(t, want, evt.Event)
	}
	_, err := dec.DecodeEvent()
	require.ErrorIs(t, err, io.EOF)
}
