// Package redact strips secret-shaped substrings from observation text
// before it is persisted, so captured tool output never carries credentials
// into the long-lived store.
package redact

import (
	"regexp"
	"strings"
)

// Pattern is one user-visible redaction rule: a compiled regexp and the
// placeholder text that replaces every match, in the shared
// `[REDACTED:<kind>]` shape. Replacement is a template fed to
// ReplaceAllString (so it can reference capture groups); ReplaceFunc, when
// set, takes precedence and lets the kind vary with what matched.
type Pattern struct {
	Name        string
	re          *regexp.Regexp
	Replacement string
	ReplaceFunc func(match string) string
}

// envAssignmentKind derives the `<kind>` for an env-style assignment from
// the variable name, so `API_KEY=...` redacts to `[REDACTED:api_key]`
// rather than a generic `[REDACTED:env]`.
func envAssignmentKind(varName string) string {
	upper := strings.ToUpper(varName)
	switch {
	case strings.Contains(upper, "API_KEY") || strings.Contains(upper, "APIKEY"):
		return "api_key"
	case strings.Contains(upper, "TOKEN"):
		return "token"
	case strings.Contains(upper, "SECRET"):
		return "secret"
	case strings.Contains(upper, "PASSWORD") || strings.Contains(upper, "PASSWD"):
		return "password"
	case strings.Contains(upper, "CREDENTIAL"):
		return "credential"
	case strings.Contains(upper, "KEY"):
		return "key"
	default:
		return "env"
	}
}

// builtinPatterns mirrors the line-classification style of the teacher's
// parseAiderLine: a flat switch of substring/pattern checks, applied in
// order. Each pattern targets one secret shape rather than attempting a
// single catch-all regexp.
var builtinPatterns = []Pattern{
	{
		Name: "env_assignment",
		re:   regexp.MustCompile(`(?i)\b([A-Z_][A-Z0-9_]*(?:KEY|TOKEN|SECRET|PASSWORD|PASSWD|CREDENTIAL)[A-Z0-9_]*)\s*=\s*\S+`),
		ReplaceFunc: func(match string) string {
			name := match[:strings.IndexByte(match, '=')]
			name = strings.TrimRight(name, " \t")
			return name + "=[REDACTED:" + envAssignmentKind(name) + "]"
		},
	},
	{
		Name:        "jwt",
		re:          regexp.MustCompile(`\beyJ[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\b`),
		Replacement: "[REDACTED:jwt]",
	},
	{
		Name:        "connection_string",
		re:          regexp.MustCompile(`\b(\w+://)[^:\s/]+:[^@\s/]+@`),
		Replacement: "${1}[REDACTED:connection_string]@",
	},
	{
		Name:        "private_key_block",
		re:          regexp.MustCompile(`(?s)-----BEGIN [A-Z ]*PRIVATE KEY-----.*?-----END [A-Z ]*PRIVATE KEY-----`),
		Replacement: "[REDACTED:private_key]",
	},
	{
		Name:        "openai_key",
		re:          regexp.MustCompile(`\bsk-[A-Za-z0-9]{20,}\b`),
		Replacement: "[REDACTED:api_key]",
	},
	{
		Name:        "github_token",
		re:          regexp.MustCompile(`\bgh[pousr]_[A-Za-z0-9]{20,}\b`),
		Replacement: "[REDACTED:token]",
	},
	{
		Name:        "aws_access_key",
		re:          regexp.MustCompile(`\b(AKIA|ASIA)[A-Z0-9]{16}\b`),
		Replacement: "[REDACTED:aws_key]",
	},
}

// Redactor applies a fixed set of patterns to text. The zero value uses the
// built-in pattern set; callers needing project-specific patterns build
// one with NewRedactor.
type Redactor struct {
	patterns []Pattern
}

// NewRedactor builds a Redactor from the built-in patterns plus any
// user-supplied extras, letting a project extend (never replace) the
// built-in coverage.
func NewRedactor(extra ...Pattern) *Redactor {
	patterns := make([]Pattern, 0, len(builtinPatterns)+len(extra))
	patterns = append(patterns, builtinPatterns...)
	patterns = append(patterns, extra...)
	return &Redactor{patterns: patterns}
}

// Redact applies every pattern in order and returns the scrubbed text.
// Patterns run against their own output only implicitly through ordering;
// a later pattern never re-widens an earlier replacement since placeholders
// contain no characters any pattern matches.
func (r *Redactor) Redact(text string) string {
	for _, p := range r.patterns {
		if p.ReplaceFunc != nil {
			text = p.re.ReplaceAllStringFunc(text, p.ReplaceFunc)
			continue
		}
		text = p.re.ReplaceAllString(text, p.Replacement)
	}
	return text
}

// Compile builds a Pattern from a user-supplied regexp string, validating
// it can compile before it is added to a Redactor.
func Compile(name, pattern, replacement string) (Pattern, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Pattern{}, err
	}
	return Pattern{Name: name, re: re, Replacement: replacement}, nil
}
