// Package dispatch routes parsed hook events to the guards and the
// iteration controller, and records exactly one audit entry per event
// after the decision is final.
package dispatch

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/xdg/hookgate/internal/audit"
	"github.com/xdg/hookgate/internal/guard"
	"github.com/xdg/hookgate/internal/guard/rules"
	"github.com/xdg/hookgate/internal/hlog"
	"github.com/xdg/hookgate/internal/hook"
	"github.com/xdg/hookgate/internal/loop"
)

// promptExcerptLimit caps prompt text recorded in the audit trail.
const promptExcerptLimit = 500

// Outcome is the dispatcher's final word on one hook event. The command
// layer translates it into exit codes and output streams.
type Outcome struct {
	// Block reports that the proposed operation (or session stop) must be
	// refused.
	Block bool

	// Reason explains a block or a notable allow (bypass, parse failure).
	Reason string

	// Loop carries the iteration controller's decision for stop events:
	// when Loop.Continue is set, the host expects a structured
	// continuation response rather than a plain refusal.
	Loop *loop.StopOutcome

	// PersistenceFailure reports that loop state could not be made
	// durable. It is surfaced separately from Block because the caller
	// signals it with a distinct exit code.
	PersistenceFailure bool
}

// Dispatcher wires the guards, the iteration controller, and the audit
// recorder behind a single entry point for raw envelopes.
type Dispatcher struct {
	commands *guard.CommandGuard
	paths    *guard.PathGuard
	loops    *loop.Controller
	rec      *audit.Recorder

	// projectDir is the operator's explicit project root. When empty, the
	// cwd each envelope reports is used instead, so anchored path globs
	// work without the flag.
	projectDir string
}

// New builds a dispatcher. Any component may be nil in tests; nil guards
// allow everything and a nil recorder drops audit entries. projectDir
// overrides the per-event cwd when non-empty.
func New(commands *guard.CommandGuard, paths *guard.PathGuard, loops *loop.Controller, rec *audit.Recorder, projectDir string) *Dispatcher {
	return &Dispatcher{
		commands:   commands,
		paths:      paths,
		loops:      loops,
		rec:        rec,
		projectDir: projectDir,
	}
}

// Dispatch parses one envelope and routes it. This is the single place
// where the fail-open policy lives: an envelope hookgate cannot parse is
// allowed through with the failure recorded, because refusing every
// operation after a host-side format change would strand the session.
func (d *Dispatcher) Dispatch(data []byte) Outcome {
	ev, err := hook.Parse(data)
	if err != nil {
		hlog.Error("dispatch: %v", err)
		d.record(audit.ConcernFailures, &audit.Entry{
			Kind:     "Unparsed",
			Decision: "allow",
			Reason:   fmt.Sprintf("envelope not parsed, failing open: %v", err),
		})
		return Outcome{Reason: "envelope not parsed, failing open"}
	}

	switch ev.Kind {
	case hook.KindPreInvocation:
		return d.preInvocation(ev)
	case hook.KindPostInvocation:
		d.record(audit.ConcernEvents, d.entry(ev, "allow", "", "", ev.Tool))
		return Outcome{}
	case hook.KindPostInvocationFailure:
		d.record(audit.ConcernFailures, d.entry(ev, "allow", ev.Error, "", ev.Tool))
		return Outcome{}
	case hook.KindPromptSubmitted:
		d.record(audit.ConcernPrompts, d.entry(ev, "allow", "", "", excerpt(ev.Prompt)))
		return Outcome{}
	case hook.KindSessionStop, hook.KindSubagentStop:
		return d.sessionStop(ev)
	default:
		d.record(audit.ConcernEvents, d.entry(ev, "allow", "", "", ""))
		return Outcome{}
	}
}

// preInvocation routes a proposed tool use to the matching guard. Tools
// outside the mediated set are allowed and recorded on the events trail.
func (d *Dispatcher) preInvocation(ev *hook.Event) Outcome {
	switch {
	case ev.IsCommand():
		v := d.check(d.commands != nil, func() rules.Verdict { return d.commands.Check(ev.Command) })
		e := d.verdictEntry(ev, v, ev.Command)
		e.Detail = ev.Description
		d.record(audit.ConcernCommands, e)
		return verdictOutcome(v)

	case ev.IsFileMutation():
		dir := d.projectDir
		if dir == "" {
			dir = ev.Cwd
		}
		v := d.check(d.paths != nil, func() rules.Verdict { return d.paths.Check(ev.Paths, ev.Content, dir) })
		d.record(audit.ConcernFiles, d.verdictEntry(ev, v, strings.Join(ev.Paths, " ")))
		return verdictOutcome(v)

	default:
		d.record(audit.ConcernEvents, d.entry(ev, "allow", "", "", ev.Tool))
		return Outcome{}
	}
}

// sessionStop delegates to the iteration controller. A save failure is
// surfaced as a persistence failure, not silently converted into either
// an allow or a block.
func (d *Dispatcher) sessionStop(ev *hook.Event) Outcome {
	if d.loops == nil {
		d.record(audit.ConcernLoop, d.entry(ev, "allow", "no loop controller", "", ""))
		return Outcome{}
	}

	out, err := d.loops.OnSessionStop(ev.SessionID, ev.TranscriptPath)
	if err != nil {
		hlog.Error("dispatch: loop state not durable: %v", err)
		d.record(audit.ConcernLoop, d.entry(ev, "allow", err.Error(), "", ""))
		return Outcome{
			Reason:             "loop state could not be persisted",
			PersistenceFailure: true,
		}
	}

	decision := "allow"
	if out.Continue {
		decision = "block"
	}
	e := d.entry(ev, decision, out.Reason, "", "")
	if out.Iteration > 0 {
		e.Operation = fmt.Sprintf("iteration %d/%d", out.Iteration, out.MaxIterations)
	}
	d.record(audit.ConcernLoop, e)

	return Outcome{
		Block:  out.Continue,
		Reason: out.Reason,
		Loop:   out,
	}
}

// check runs a guard when it is wired, and allows otherwise.
func (d *Dispatcher) check(wired bool, fn func() rules.Verdict) rules.Verdict {
	if !wired {
		return rules.Verdict{Decision: rules.Allow}
	}
	return fn()
}

func (d *Dispatcher) record(concern audit.Concern, e *audit.Entry) {
	d.rec.Record(concern, e)
}

func (d *Dispatcher) entry(ev *hook.Event, decision, reason, category, op string) *audit.Entry {
	return &audit.Entry{
		Kind:      ev.Kind.String(),
		Operation: op,
		Decision:  decision,
		Reason:    reason,
		Category:  category,
		Session:   ev.SessionID,
	}
}

func (d *Dispatcher) verdictEntry(ev *hook.Event, v rules.Verdict, op string) *audit.Entry {
	decision := "allow"
	if !v.Allowed() {
		decision = "block"
	}
	return d.entry(ev, decision, v.Reason, string(v.Category), op)
}

func verdictOutcome(v rules.Verdict) Outcome {
	return Outcome{
		Block:  !v.Allowed(),
		Reason: v.Reason,
	}
}

// excerpt truncates prompt text for the audit trail. The cut backs up to a
// rune boundary so multi-byte text is never split mid-sequence.
func excerpt(s string) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= promptExcerptLimit {
		return s
	}
	cut := promptExcerptLimit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
