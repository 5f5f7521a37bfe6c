package loop

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/xdg/hookgate/internal/hlog"
)

// promisePattern extracts wrapped completion promises from assistant text.
// The wrapped form is required: a bare token in prose ("I am not DONE yet")
// must not end the loop.
var promisePattern = regexp.MustCompile(`(?is)<promise>(.*?)</promise>`)

// idlePatterns match whole responses that signal the agent is waiting for
// input rather than working.
var idlePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^\.*$`),
	regexp.MustCompile(`(?i)^standing by\.?$`),
	regexp.MustCompile(`(?i)^ready\.?$`),
	regexp.MustCompile(`(?i)^ready when you are\.?$`),
	regexp.MustCompile(`(?i)^awaiting.*input\.?$`),
	regexp.MustCompile(`(?i)^listening\.?$`),
	regexp.MustCompile(`(?i)^waiting\.?$`),
}

// idleLengthThreshold: responses shorter than this that carry no markup
// are treated as idle chatter.
const idleLengthThreshold = 20

// Controller drives the loop state machine. It owns no I/O beyond the
// store: transcript access goes through LastAssistantText, decisions come
// back as values for the dispatcher to act on.
type Controller struct {
	store   *Store
	maxIdle int

	// now is the clock, swappable in tests.
	now func() time.Time
}

// NewController returns a controller over the given store. maxIdle is the
// number of consecutive idle assistant turns before the loop ends on its
// own; values below 1 disable idle detection.
func NewController(store *Store, maxIdle int) *Controller {
	return &Controller{
		store:   store,
		maxIdle: maxIdle,
		now:     time.Now,
	}
}

// SetupParams describe a new loop.
type SetupParams struct {
	Session         string
	Task            string
	MaxIterations   int
	CompletionToken string
}

// Setup starts a loop for a session. Setup is idempotent while a loop is
// active: the existing record is returned untouched, so a re-run cannot
// reset the iteration count. A terminal record from an earlier loop does
// not block a new one.
func (c *Controller) Setup(p SetupParams) (*Record, error) {
	if strings.TrimSpace(p.Task) == "" {
		return nil, fmt.Errorf("loop setup: task must be non-empty")
	}
	if p.MaxIterations < 1 {
		return nil, fmt.Errorf("loop setup: max iterations must be >= 1, got %d", p.MaxIterations)
	}
	if strings.TrimSpace(p.CompletionToken) == "" {
		return nil, fmt.Errorf("loop setup: completion token must be non-empty")
	}

	existing, err := c.store.Load(p.Session)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Active {
		hlog.Info("loop setup: session %q already active at iteration %d, leaving as is",
			p.Session, existing.Iteration)
		return existing, nil
	}

	rec := &Record{
		ID:              uuid.New().String(),
		Active:          true,
		Iteration:       1,
		MaxIterations:   p.MaxIterations,
		CompletionToken: strings.TrimSpace(p.CompletionToken),
		StartedAt:       c.now().UTC(),
		Task:            p.Task,
	}
	if err := c.store.Save(p.Session, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Cancel ends an active loop with the user-cancelled reason. Cancelling a
// session with no record returns (nil, nil); an already-terminal record is
// returned unchanged.
func (c *Controller) Cancel(session string) (*Record, error) {
	rec, err := c.store.Load(session)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, nil
	}
	if !rec.Active {
		return rec, nil
	}

	rec.end(EndReasonCancelled, c.now())
	if err := c.store.Save(session, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// Status returns the current record for a session, or (nil, nil) when no
// loop has ever been set up.
func (c *Controller) Status(session string) (*Record, error) {
	return c.store.Load(session)
}

// Purge removes a session's state file. Loop transitions keep terminal
// records around for status inspection; deleting one is an explicit
// operator action.
func (c *Controller) Purge(session string) error {
	return c.store.Remove(session)
}

// StopOutcome is the controller's decision for a session-stop event.
type StopOutcome struct {
	// Continue reports whether the stop must be blocked and the task
	// re-injected for another iteration.
	Continue bool

	// Iteration and MaxIterations describe the loop position after the
	// decision; meaningful only when a loop record exists.
	Iteration     int
	MaxIterations int

	// Task is the text to re-inject when Continue is true.
	Task string

	// Phase is the loop phase after the decision.
	Phase Phase

	// Reason is a one-line human explanation of the decision.
	Reason string
}

// OnSessionStop decides whether a stopping session must be re-injected.
// Order matters: a fulfilled promise ends the loop even on the final
// budgeted iteration, then idle detection, then the budget check, and only
// then continuation. Every state change is durable before the outcome is
// returned; a save failure is surfaced so the caller can signal that the
// iteration count may not have been recorded.
func (c *Controller) OnSessionStop(session, transcriptPath string) (*StopOutcome, error) {
	rec, err := c.store.Load(session)
	if err != nil {
		// An unreadable record cannot justify holding the session hostage.
		hlog.Error("loop: unreadable state for session %q: %v", session, err)
		return &StopOutcome{Reason: "loop state unreadable, allowing stop"}, nil
	}
	if rec == nil {
		return &StopOutcome{Phase: "", Reason: "no loop configured"}, nil
	}
	if !rec.Active {
		return c.outcome(rec, false, "loop already ended"), nil
	}

	// Without a transcript there is nothing to judge: no promise, no idle
	// signal. The loop just continues against its budget.
	if transcriptPath != "" {
		lastText := LastAssistantText(transcriptPath)

		if promiseFulfilled(lastText, rec.CompletionToken) {
			rec.end(EndReasonPromise, c.now())
			if err := c.store.Save(session, rec); err != nil {
				return nil, err
			}
			return c.outcome(rec, false,
				fmt.Sprintf("completion promise %q fulfilled", rec.CompletionToken)), nil
		}

		if c.maxIdle > 0 && isIdleResponse(lastText) {
			rec.ConsecutiveIdle++
			if rec.ConsecutiveIdle >= c.maxIdle {
				rec.end(EndReasonIdle, c.now())
				if err := c.store.Save(session, rec); err != nil {
					return nil, err
				}
				return c.outcome(rec, false,
					fmt.Sprintf("agent idle for %d consecutive turns", rec.ConsecutiveIdle)), nil
			}
		} else {
			rec.ConsecutiveIdle = 0
		}
	}

	if rec.Iteration >= rec.MaxIterations {
		rec.end(EndReasonBudget, c.now())
		if err := c.store.Save(session, rec); err != nil {
			return nil, err
		}
		return c.outcome(rec, false,
			fmt.Sprintf("iteration budget exhausted (%d/%d)", rec.Iteration, rec.MaxIterations)), nil
	}

	rec.Iteration++
	if err := c.store.Save(session, rec); err != nil {
		return nil, err
	}
	return c.outcome(rec, true,
		fmt.Sprintf("loop continuing (%d/%d)", rec.Iteration, rec.MaxIterations)), nil
}

func (c *Controller) outcome(rec *Record, cont bool, reason string) *StopOutcome {
	return &StopOutcome{
		Continue:      cont,
		Iteration:     rec.Iteration,
		MaxIterations: rec.MaxIterations,
		Task:          rec.Task,
		Phase:         rec.Phase(),
		Reason:        reason,
	}
}

// promiseFulfilled reports whether text contains the completion token in
// wrapped form. Matching is case-insensitive on both tag and token;
// whitespace inside the tag is ignored.
func promiseFulfilled(text, token string) bool {
	if text == "" {
		return false
	}
	want := strings.ToUpper(strings.TrimSpace(token))
	for _, m := range promisePattern.FindAllStringSubmatch(text, -1) {
		if strings.ToUpper(strings.TrimSpace(m[1])) == want {
			return true
		}
	}
	return false
}

// isIdleResponse reports whether an assistant turn looks like waiting
// rather than work: a known idle phrase, or a very short reply with no
// markup.
func isIdleResponse(text string) bool {
	text = strings.TrimSpace(text)
	for _, p := range idlePatterns {
		if p.MatchString(text) {
			return true
		}
	}
	return len(text) < idleLengthThreshold && !strings.HasPrefix(text, "<")
}
