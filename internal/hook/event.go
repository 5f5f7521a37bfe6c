// Package hook defines the event envelope hookgate receives from the host
// runtime, one structured JSON record per lifecycle point on stdin.
package hook

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Kind identifies the lifecycle point an event was emitted at.
type Kind int

const (
	// KindUnknown is the zero value, never produced by a successful parse.
	KindUnknown Kind = iota
	// KindPreInvocation fires before a tool runs and requires a verdict.
	KindPreInvocation
	// KindPostInvocation fires after a tool ran successfully.
	KindPostInvocation
	// KindPostInvocationFailure fires after a tool failed.
	KindPostInvocationFailure
	// KindPromptSubmitted fires when the operator submits a prompt.
	KindPromptSubmitted
	// KindSessionStop fires when the agent session is about to end.
	KindSessionStop
	// KindSubagentStop fires when a subagent session is about to end.
	KindSubagentStop
)

// String returns the host-side event name for the kind.
func (k Kind) String() string {
	switch k {
	case KindPreInvocation:
		return "PreToolUse"
	case KindPostInvocation:
		return "PostToolUse"
	case KindPostInvocationFailure:
		return "PostToolUseFailure"
	case KindPromptSubmitted:
		return "UserPromptSubmit"
	case KindSessionStop:
		return "Stop"
	case KindSubagentStop:
		return "SubagentStop"
	default:
		return "Unknown"
	}
}

// kindNames maps host event names to kinds.
var kindNames = map[string]Kind{
	"PreToolUse":         KindPreInvocation,
	"PostToolUse":        KindPostInvocation,
	"PostToolUseFailure": KindPostInvocationFailure,
	"UserPromptSubmit":   KindPromptSubmitted,
	"Stop":               KindSessionStop,
	"SubagentStop":       KindSubagentStop,
}

// Tool names the host uses for operations hookgate mediates.
const (
	ToolBash      = "Bash"
	ToolWrite     = "Write"
	ToolEdit      = "Edit"
	ToolMultiEdit = "MultiEdit"
)

// Event is one parsed hook envelope.
type Event struct {
	Kind Kind

	// Tool is the host tool name, set for Pre/Post invocation kinds.
	Tool string

	// Command and Description are set for shell invocations.
	Command     string
	Description string

	// Paths are the file targets of a write or edit. MultiEdit envelopes
	// may carry several.
	Paths []string

	// Content is the proposed file content: the full body for a write, or
	// the concatenated replacement strings for edits.
	Content string

	// Prompt is set for PromptSubmitted events.
	Prompt string

	// Error is the failure summary for PostInvocationFailure events.
	Error string

	TranscriptPath string
	SessionID      string
	Cwd            string
}

// IsCommand reports whether the event proposes a shell invocation.
func (e *Event) IsCommand() bool {
	return e.Tool == ToolBash
}

// IsFileMutation reports whether the event proposes a file write or edit.
func (e *Event) IsFileMutation() bool {
	switch e.Tool {
	case ToolWrite, ToolEdit, ToolMultiEdit:
		return true
	}
	return false
}

// envelope mirrors the host's JSON wire shape.
type envelope struct {
	HookEventName  string          `json:"hook_event_name"`
	ToolName       string          `json:"tool_name"`
	ToolInput      json.RawMessage `json:"tool_input"`
	Prompt         string          `json:"prompt"`
	UserPrompt     string          `json:"user_prompt"`
	Error          string          `json:"error"`
	TranscriptPath string          `json:"transcript_path"`
	SessionID      string          `json:"session_id"`
	Cwd            string          `json:"cwd"`
}

// toolInput mirrors the operation-specific payload. Fields for all mediated
// tools live side by side; absent ones are zero.
type toolInput struct {
	Command     string      `json:"command"`
	Description string      `json:"description"`
	FilePath    string      `json:"file_path"`
	Content     string      `json:"content"`
	OldString   string      `json:"old_string"`
	NewString   string      `json:"new_string"`
	Edits       []editInput `json:"edits"`
}

// editInput is one entry in a MultiEdit payload. Hosts have shipped both
// "file_path" and "path" for the target, so both are accepted.
type editInput struct {
	FilePath  string `json:"file_path"`
	Path      string `json:"path"`
	OldString string `json:"old_string"`
	NewString string `json:"new_string"`
}

// Parse decodes one envelope. A malformed envelope or an unknown event name
// is a parse failure: the caller decides the fail-open/fail-closed policy,
// Parse only reports.
func Parse(data []byte) (*Event, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode hook envelope: %w", err)
	}

	kind, ok := kindNames[env.HookEventName]
	if !ok {
		return nil, fmt.Errorf("unknown hook event name %q", env.HookEventName)
	}

	ev := &Event{
		Kind:           kind,
		Tool:           env.ToolName,
		Error:          env.Error,
		TranscriptPath: env.TranscriptPath,
		SessionID:      env.SessionID,
		Cwd:            env.Cwd,
	}

	if ev.Prompt = env.Prompt; ev.Prompt == "" {
		ev.Prompt = env.UserPrompt
	}

	if len(env.ToolInput) > 0 {
		var in toolInput
		if err := json.Unmarshal(env.ToolInput, &in); err != nil {
			return nil, fmt.Errorf("decode tool input: %w", err)
		}
		applyToolInput(ev, &in)
	}

	if kind == KindPreInvocation && ev.Tool == "" {
		return nil, fmt.Errorf("PreToolUse envelope missing tool_name")
	}

	return ev, nil
}

// applyToolInput fills the operation-specific event fields.
func applyToolInput(ev *Event, in *toolInput) {
	ev.Command = in.Command
	ev.Description = in.Description

	seen := make(map[string]bool)
	addPath := func(p string) {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			return
		}
		seen[p] = true
		ev.Paths = append(ev.Paths, p)
	}

	addPath(in.FilePath)
	for _, e := range in.Edits {
		if e.FilePath != "" {
			addPath(e.FilePath)
		} else {
			addPath(e.Path)
		}
	}

	var content strings.Builder
	content.WriteString(in.Content)
	if in.NewString != "" {
		content.WriteString(in.NewString)
	}
	for _, e := range in.Edits {
		if e.NewString != "" {
			content.WriteString(e.NewString)
		}
	}
	ev.Content = content.String()
}
