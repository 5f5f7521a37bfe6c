// Package rules provides ordered pattern rule evaluation for hookgate guards.
// A rule set is compiled once at guard startup and is immutable afterwards,
// so evaluation is pure computation with no I/O.
package rules

import (
	"fmt"
	"regexp"
)

// Decision represents the outcome of evaluating a candidate string.
type Decision int

const (
	// Allow indicates the operation may proceed.
	Allow Decision = iota
	// Block indicates the operation must be rejected.
	Block
)

// String returns a human-readable representation of a Decision.
func (d Decision) String() string {
	switch d {
	case Allow:
		return "allow"
	case Block:
		return "block"
	default:
		return "unknown"
	}
}

// Category identifies the risk class a rule belongs to. Exception rules are
// scoped to a category: an exception for "supply-chain" suppresses block
// rules of that category only.
type Category string

// Built-in command guard categories.
const (
	CategoryDestructive Category = "destructive"
	CategoryPrivilege   Category = "privilege-escalation"
	CategoryRemoteExec  Category = "remote-exec"
	CategorySupplyChain Category = "supply-chain"
	CategoryVCS         Category = "vcs-safety"
)

// Path guard categories.
const (
	CategoryProtectedPath Category = "protected-path"
	CategorySentinel      Category = "sentinel-marker"
)

// Verdict is the result of evaluating a candidate against a rule set.
// A Block verdict always carries a non-empty Reason.
type Verdict struct {
	Decision Decision
	Reason   string
	Category Category // category of the rule that decided, empty on plain allow
	Pattern  string   // pattern of the rule that decided, empty on plain allow
}

// Allowed reports whether the verdict permits the operation.
func (v Verdict) Allowed() bool {
	return v.Decision == Allow
}

// Spec describes one rule before compilation: a regex pattern, the risk
// category it belongs to, a static reason, and whether it is an
// allow-exception rather than a block rule.
type Spec struct {
	Pattern   string
	Category  Category
	Reason    string
	Exception bool
}

// rule is a compiled Spec.
type rule struct {
	re        *regexp.Regexp
	pattern   string
	category  Category
	reason    string
	exception bool
}

// RuleSet is an ordered, compiled collection of rules sharing one matching
// convention (case-sensitive or not).
type RuleSet struct {
	rules []rule
}

// Compile compiles specs into a RuleSet. When caseInsensitive is true every
// pattern matches without regard to case (command text); otherwise matching
// is exact (file paths). An invalid pattern is a configuration defect:
// Compile fails rather than skipping the rule, so a typo cannot silently
// disable a protection.
func Compile(specs []Spec, caseInsensitive bool) (*RuleSet, error) {
	rs := &RuleSet{rules: make([]rule, 0, len(specs))}
	for i, s := range specs {
		p := s.Pattern
		if caseInsensitive {
			p = "(?i)" + p
		}
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile rule %d (%s) %q: %w", i, s.Category, s.Pattern, err)
		}
		reason := s.Reason
		if reason == "" {
			reason = fmt.Sprintf("matched %s pattern %q", s.Category, s.Pattern)
		}
		rs.rules = append(rs.rules, rule{
			re:        re,
			pattern:   s.Pattern,
			category:  s.Category,
			reason:    reason,
			exception: s.Exception,
		})
	}
	return rs, nil
}

// MustCompile is like Compile but panics on error. It is intended for the
// built-in rule tables, which are validated by tests.
func MustCompile(specs []Spec, caseInsensitive bool) *RuleSet {
	rs, err := Compile(specs, caseInsensitive)
	if err != nil {
		panic(err)
	}
	return rs
}

// Evaluate checks candidate against the rule set in declaration order and
// returns a Verdict. The first matching block rule decides, unless an
// exception rule of the same category also matches: category-scoped
// exceptions win over their block rules regardless of declaration order, so
// operators can allowlist without reordering the core denylist. If no block
// rule matches, the verdict is Allow with no reason.
func (rs *RuleSet) Evaluate(candidate string) Verdict {
	excepted := make(map[Category]bool)
	for _, r := range rs.rules {
		if r.exception && r.re.MatchString(candidate) {
			excepted[r.category] = true
		}
	}

	for _, r := range rs.rules {
		if r.exception || excepted[r.category] {
			continue
		}
		if r.re.MatchString(candidate) {
			return Verdict{
				Decision: Block,
				Reason:   r.reason,
				Category: r.category,
				Pattern:  r.pattern,
			}
		}
	}

	return Verdict{Decision: Allow}
}

// Len returns the number of rules in the set.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}
