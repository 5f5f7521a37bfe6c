// Package guard provides the pure classifiers that turn a proposed agent
// operation into an allow/block verdict: CommandGuard for shell
// invocations, PathGuard for file writes and edits.
package guard

import (
	"regexp"
	"strings"

	shellquote "github.com/kballard/go-shellquote"

	"github.com/xdg/hookgate/internal/config"
	"github.com/xdg/hookgate/internal/guard/rules"
)

// builtinCommandSpecs is the built-in command denylist, grouped by risk
// category. Order matters within the list: the first matching block rule
// provides the verdict reason. Built-in exceptions carve out the
// known-safe forms that regexp's lack of lookahead cannot express inline.
func builtinCommandSpecs() []rules.Spec {
	return []rules.Spec{
		// Destructive filesystem operations
		{Pattern: `\brm\s+(-[a-z]*\s+)*-[a-z]*r[a-z]*f\b`, Category: rules.CategoryDestructive, Reason: "recursive force delete (rm -rf)"},
		{Pattern: `\brm\s+(-[a-z]*\s+)*-[a-z]*f[a-z]*r\b`, Category: rules.CategoryDestructive, Reason: "recursive force delete (rm -fr)"},
		{Pattern: `\brm\s+(-[a-z]*\s+)*-[a-z]*r\b`, Category: rules.CategoryDestructive, Reason: "recursive delete (rm -r)"},
		{Pattern: `\bdd\s+[^|;&]*\bof=/dev/`, Category: rules.CategoryDestructive, Reason: "low-level write to a block device (dd)"},
		{Pattern: `\bmkfs(\.[a-z0-9]+)?\b`, Category: rules.CategoryDestructive, Reason: "filesystem format (mkfs)"},
		{Pattern: `\bshred\b`, Category: rules.CategoryDestructive, Reason: "secure file destruction (shred)"},
		{Pattern: `:\(\)\s*\{\s*:\s*\|\s*:\s*&\s*\}\s*;\s*:`, Category: rules.CategoryDestructive, Reason: "fork bomb"},

		// Privilege escalation
		{Pattern: `^sudo\s`, Category: rules.CategoryPrivilege, Reason: "superuser invocation (sudo)"},
		{Pattern: `^doas\s`, Category: rules.CategoryPrivilege, Reason: "superuser invocation (doas)"},

		// Remote-code-execution patterns
		{Pattern: `\b(curl|wget)\b[^|;&]*\|\s*(sh|bash|zsh|python3?|perl|ruby)\b`, Category: rules.CategoryRemoteExec, Reason: "fetched content piped into an interpreter"},
		{Pattern: `\b(curl|wget)\b[^;&]*&&\s*(sh|bash|chmod\s+\+x)\b`, Category: rules.CategoryRemoteExec, Reason: "download and execute"},
		{Pattern: `\bbase64\s+(-d|--decode)\b[^|;&]*\|\s*(sh|bash)\b`, Category: rules.CategoryRemoteExec, Reason: "decoded payload piped into a shell"},
		{Pattern: `\beval\s+.*\$\(`, Category: rules.CategoryRemoteExec, Reason: "shell evaluation of command substitution"},

		// Supply-chain risk: ad hoc package execution and unpinned installs
		{Pattern: `^npx\s`, Category: rules.CategorySupplyChain, Reason: "ad hoc package execution (npx)"},
		{Pattern: `\|\s*npx\s`, Category: rules.CategorySupplyChain, Reason: "piped ad hoc package execution (npx)"},
		{Pattern: `^npm\s+(install|i)\s`, Category: rules.CategorySupplyChain, Reason: "npm install can run postinstall scripts"},
		{Pattern: `^pip3?\s+install\s+(https?://|git\+)`, Category: rules.CategorySupplyChain, Reason: "package install from an arbitrary URL"},
		{Pattern: `^pip3?\s+install\s`, Category: rules.CategorySupplyChain, Reason: "unpinned package install (pip)"},
		// Known-safe install forms
		{Pattern: `^pip3?\s+install\s+-r\s+requirements`, Category: rules.CategorySupplyChain, Exception: true},
		{Pattern: `^pip3?\s+install\s+-e\s+\.`, Category: rules.CategorySupplyChain, Exception: true},
		{Pattern: `^pip3?\s+install\s+--upgrade\s+pip\b`, Category: rules.CategorySupplyChain, Exception: true},
		{Pattern: `^npm\s+install\s+--save-dev\s+@types/`, Category: rules.CategorySupplyChain, Exception: true},

		// Version-control safety
		{Pattern: `\bgit\s+push\b[^;&|]*(\s--force\b|\s-f\b)`, Category: rules.CategoryVCS, Reason: "force push rewrites remote history"},
		{Pattern: `\bgit\s+push\s+(origin|upstream)\s+(main|master)\b`, Category: rules.CategoryVCS, Reason: "direct push to a protected branch"},
		{Pattern: `\bgit\s+commit\b.*co-authored-by`, Category: rules.CategoryVCS, Reason: "commit with an injected co-author trailer"},
	}
}

// CommandGuard decides whether a proposed shell invocation may run.
// It is a pure classifier: no side effects, the caller logs.
type CommandGuard struct {
	set *rules.RuleSet
}

// NewCommandGuard builds a CommandGuard from the built-in denylist plus the
// operator's configured block and exception rules. Operator block rules are
// appended after the built-ins; exceptions are position-independent because
// they are category-scoped.
func NewCommandGuard(cfg *config.CommandsConfig) (*CommandGuard, error) {
	specs := builtinCommandSpecs()
	for _, r := range cfg.Block {
		specs = append(specs, rules.Spec{
			Pattern:  r.Pattern,
			Category: rules.Category(r.Category),
			Reason:   r.Reason,
		})
	}
	for _, r := range cfg.Exceptions {
		specs = append(specs, rules.Spec{
			Pattern:   r.Pattern,
			Category:  rules.Category(r.Category),
			Reason:    r.Reason,
			Exception: true,
		})
	}

	set, err := rules.Compile(specs, true)
	if err != nil {
		return nil, err
	}
	return &CommandGuard{set: set}, nil
}

// Check evaluates a command line. An empty command is allowed with an
// informational reason: absence of a command is not itself dangerous.
// Compound commands are split on shell control operators and each segment
// is evaluated separately, so anchored patterns still catch a dangerous
// command hidden behind "safe-looking && dangerous".
func (g *CommandGuard) Check(command string) rules.Verdict {
	if strings.TrimSpace(command) == "" {
		return rules.Verdict{Decision: rules.Allow, Reason: "empty command"}
	}

	for _, segment := range splitSegments(command) {
		if v := g.set.Evaluate(segment); !v.Allowed() {
			return v
		}
	}
	return rules.Verdict{Decision: rules.Allow}
}

// controlOperator matches the shell control operators that separate
// command segments, whether they arrive as their own token or embedded in
// one ("true&&sudo x" tokenizes as a single word).
var controlOperator = regexp.MustCompile(`\|\||&&|[;|&]`)

// splitSegments breaks a command line into individually evaluable segments.
// Tokenizing with shell quoting rules strips quotes, so obfuscations like
// "r"m -rf are normalized before matching. Operators embedded inside a
// token still split: segments are only ever checked for blocks, so
// over-splitting quoted text cannot turn a block into an allow. The whole
// command line is always evaluated too, preserving patterns that span
// operators (pipes into interpreters). If tokenization fails (unbalanced
// quotes), only the whole line is evaluated.
func splitSegments(command string) []string {
	segments := []string{command}

	words, err := shellquote.Split(command)
	if err != nil {
		return segments
	}

	var current []string
	flush := func() {
		if len(current) > 0 {
			segments = append(segments, strings.Join(current, " "))
			current = nil
		}
	}
	for _, w := range words {
		if !controlOperator.MatchString(w) {
			current = append(current, w)
			continue
		}
		parts := controlOperator.Split(w, -1)
		for i, p := range parts {
			if p != "" {
				current = append(current, p)
			}
			if i < len(parts)-1 {
				flush()
			}
		}
	}
	flush()

	return segments
}
