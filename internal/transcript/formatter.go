package transcript

import (
	"fmt"
	"strings"

	"github.com/wsyeabsera/taskstream/internal/phase"
)

// Formatter formats transcript entries for console output
type Formatter struct{}

// NewFormatter creates a new transcript formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

// FormatEntry formats an entry for console display. System entries are part
// of the model but never rendered; they format to the empty string.
func (f *Formatter) FormatEntry(e *Entry) string {
	switch e.Kind {
	case KindUser:
		return fmt.Sprintf("[you] %s", e.Content)

	case KindAssistant:
		label := "assistant"
		if e.Phase != "" && e.Phase != phase.None {
			label = fmt.Sprintf("assistant:%s %d%%", e.Phase, e.Phase.Progress())
		}
		if e.IsLoading {
			return fmt.Sprintf("[%s] %s …", label, e.Content)
		}
		return fmt.Sprintf("[%s] %s", label, e.Content)

	case KindInputRequired:
		fields := make([]string, 0, len(e.PendingInputs))
		for _, in := range e.PendingInputs {
			if in.Description != "" {
				fields = append(fields, fmt.Sprintf("%s (%s)", in.Field, in.Description))
			} else {
				fields = append(fields, in.Field)
			}
		}
		if len(fields) == 0 {
			return "[input required]"
		}
		return fmt.Sprintf("[input required] %s", strings.Join(fields, ", "))

	case KindSystem:
		return ""

	default:
		return fmt.Sprintf("[%s] %s", e.Kind, e.Content)
	}
}

// FormatProgress formats a phase for a one-line status display
func (f *Formatter) FormatProgress(p phase.Phase) string {
	return fmt.Sprintf("[%s] %d%%", p, p.Progress())
}
