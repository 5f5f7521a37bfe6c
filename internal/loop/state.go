// Package loop implements the iteration controller: a persisted,
// crash-tolerant state machine that keeps an agent session alive until it
// produces a completion promise or exhausts its iteration budget.
package loop

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Phase names the lifecycle phase of a loop record.
type Phase string

// Loop phases. A record with Active=true is in PhaseActive; terminal
// phases are distinguished by EndReason.
const (
	PhaseActive             Phase = "active"
	PhaseCompletedByPromise Phase = "completed_by_promise"
	PhaseCompletedByBudget  Phase = "completed_by_budget"
	PhaseCancelled          Phase = "cancelled"
	PhaseEndedIdle          Phase = "ended_idle"
)

// End reasons stamped on terminal records.
const (
	EndReasonPromise   = "promise_fulfilled"
	EndReasonBudget    = "max_iterations"
	EndReasonCancelled = "user_cancelled"
	EndReasonIdle      = "idle_detected"
)

// Record is one persisted loop: a structured header plus the immutable
// task text that gets re-injected on every non-terminal iteration.
type Record struct {
	ID              string     `yaml:"id"`
	Active          bool       `yaml:"active"`
	Iteration       int        `yaml:"iteration"`
	MaxIterations   int        `yaml:"max_iterations"`
	CompletionToken string     `yaml:"completion_token"`
	ConsecutiveIdle int        `yaml:"consecutive_idle,omitempty"`
	StartedAt       time.Time  `yaml:"started_at"`
	EndedAt         *time.Time `yaml:"ended_at,omitempty"`
	EndReason       string     `yaml:"end_reason,omitempty"`

	// Task is the original instruction, stored as the file body after the
	// header. It never changes after creation.
	Task string `yaml:"-"`
}

// Phase derives the record's lifecycle phase from its fields.
func (r *Record) Phase() Phase {
	if r.Active {
		return PhaseActive
	}
	switch r.EndReason {
	case EndReasonPromise:
		return PhaseCompletedByPromise
	case EndReasonBudget:
		return PhaseCompletedByBudget
	case EndReasonCancelled:
		return PhaseCancelled
	case EndReasonIdle:
		return PhaseEndedIdle
	default:
		return PhaseCancelled
	}
}

// end stamps the record terminal with the given reason.
func (r *Record) end(reason string, now time.Time) {
	r.Active = false
	r.EndReason = reason
	ended := now.UTC()
	r.EndedAt = &ended
}

// frontmatterFence delimits the YAML header in the state file.
const frontmatterFence = "---"

// Marshal serializes a record to its file form: a fenced YAML header
// followed by the task text.
func Marshal(r *Record) ([]byte, error) {
	header, err := yaml.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal loop header: %w", err)
	}

	var b bytes.Buffer
	b.WriteString(frontmatterFence + "\n")
	b.Write(header)
	b.WriteString(frontmatterFence + "\n\n")
	b.WriteString(r.Task)
	if !strings.HasSuffix(r.Task, "\n") {
		b.WriteString("\n")
	}
	return b.Bytes(), nil
}

// Unmarshal parses a state file back into a Record. The header must be a
// well-formed fenced YAML block with no unknown fields; anything else is a
// configuration error, because guessing at a half-readable loop state
// risks restarting from a stale count.
func Unmarshal(data []byte) (*Record, error) {
	text := string(data)
	if !strings.HasPrefix(text, frontmatterFence) {
		return nil, errors.New("parse loop state: missing frontmatter header")
	}

	rest := text[len(frontmatterFence):]
	idx := strings.Index(rest, "\n"+frontmatterFence)
	if idx < 0 {
		return nil, errors.New("parse loop state: unterminated frontmatter header")
	}

	headerText := rest[:idx]
	body := rest[idx+len("\n"+frontmatterFence):]
	body = strings.TrimPrefix(body, "\n")
	body = strings.TrimPrefix(body, "\n")

	var r Record
	dec := yaml.NewDecoder(strings.NewReader(headerText))
	dec.KnownFields(true)
	if err := dec.Decode(&r); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse loop state header: %w", err)
	}

	if err := validateRecord(&r); err != nil {
		return nil, err
	}

	r.Task = strings.TrimRight(body, "\n")
	return &r, nil
}

// validateRecord checks header invariants after parsing.
func validateRecord(r *Record) error {
	if r.Iteration < 1 {
		return fmt.Errorf("parse loop state: iteration must be >= 1, got %d", r.Iteration)
	}
	if r.MaxIterations < 1 {
		return fmt.Errorf("parse loop state: max_iterations must be >= 1, got %d", r.MaxIterations)
	}
	if r.CompletionToken == "" {
		return errors.New("parse loop state: completion_token must be non-empty")
	}
	return nil
}
