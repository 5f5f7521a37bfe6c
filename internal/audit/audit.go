// Package audit provides append-only structured logging for dispatched hook
// events. Log entries follow a key=value format suitable for parsing and
// analysis. One sink exists per concern (commands, file edits, prompts,
// loop transitions, tool failures); a sink write failure is reported to the
// diagnostic log but never changes a verdict.
package audit

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Concern identifies which audit trail an entry belongs to.
type Concern string

// Audit concerns, each backed by its own append-only file.
const (
	ConcernCommands Concern = "commands"
	ConcernFiles    Concern = "files"
	ConcernPrompts  Concern = "prompts"
	ConcernLoop     Concern = "loop"
	ConcernFailures Concern = "failures"
	ConcernEvents   Concern = "events"
)

// Entry represents one dispatched event and its outcome.
type Entry struct {
	// Timestamp is when the decision was finalized.
	Timestamp time.Time

	// Kind is the lifecycle event name (PreToolUse, Stop, ...).
	Kind string

	// Operation summarizes the action under evaluation: the command line,
	// the target path, or the prompt excerpt.
	Operation string

	// Detail is the host's human summary of the operation, when it sends
	// one (the description accompanying a shell command).
	Detail string

	// Decision is the final decision string (allow, block).
	Decision string

	// Reason explains a block, a bypass, or a parse failure.
	Reason string

	// Category is the rule category that decided, if any.
	Category string

	// Session is the host session identifier, if known.
	Session string
}

// Format returns the log entry as a formatted string.
// Format: 2024-01-15T14:32:05Z HOOKGATE PreToolUse decision=block op="rm -rf /" detail="..." reason="..." category="destructive"
func (e *Entry) Format() string {
	var b strings.Builder

	b.WriteString(e.Timestamp.UTC().Format(time.RFC3339))
	b.WriteString(" HOOKGATE ")
	b.WriteString(e.Kind)

	b.WriteString(" decision=")
	b.WriteString(e.Decision)

	writeOptionalField(&b, "op", e.Operation)
	writeOptionalField(&b, "detail", e.Detail)
	writeOptionalField(&b, "reason", e.Reason)
	writeOptionalField(&b, "category", e.Category)
	writeOptionalField(&b, "session", e.Session)

	return b.String()
}

// writeOptionalField appends " key=quoted_value" to the builder if value is non-empty.
func writeOptionalField(b *strings.Builder, key, value string) {
	if value == "" {
		return
	}
	b.WriteString(" ")
	b.WriteString(key)
	b.WriteString("=")
	b.WriteString(quoteValue(value))
}

// quoteValue returns a quoted string value.
// Values are always quoted for consistency and to handle spaces/special chars.
func quoteValue(s string) string {
	return fmt.Sprintf("%q", s)
}

// Sink writes audit entries to an io.Writer, one line per entry.
type Sink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewSink creates a new audit sink that writes to the given writer.
func NewSink(w io.Writer) *Sink {
	return &Sink{w: w}
}

// Log writes an entry to the sink.
func (s *Sink) Log(e *Entry) error {
	if s == nil || s.w == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	line := e.Format() + "\n"
	_, err := s.w.Write([]byte(line))
	if err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}
