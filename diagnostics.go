package typesetd

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// unknownErrorMessage is emitted when a reported failure yields no usable
// diagnostics, so callers never receive an empty list.
const unknownErrorMessage = "Unknown compilation error"

// locMatcher pairs a location pattern with an extractor that fills in a
// diagnostic from the submatches. Matchers are tried in priority order and
// the first hit wins.
type locMatcher struct {
	re      *regexp.Regexp
	extract func(d *Diagnostic, m []string)
}

// locMatchers recovers source locations from free-text engine messages.
// The cascade is heuristic; keep the most specific shapes first.
var locMatchers = []locMatcher{
	// path:line:col: message
	{
		re: regexp.MustCompile(`^([^\s:]+):(\d+):(\d+):\s*(.+)$`),
		extract: func(d *Diagnostic, m []string) {
			d.File = m[1]
			d.Line = intPtr(mustAtoi(m[2]))
			d.Column = intPtr(mustAtoi(m[3]))
			d.Message = m[4]
		},
	},
	// at line L, column C
	{
		re: regexp.MustCompile(`(?i)at line (\d+),\s*column (\d+)`),
		extract: func(d *Diagnostic, m []string) {
			d.Line = intPtr(mustAtoi(m[1]))
			d.Column = intPtr(mustAtoi(m[2]))
		},
	},
	// line L
	{
		re: regexp.MustCompile(`(?i)\bline (\d+)`),
		extract: func(d *Diagnostic, m []string) {
			d.Line = intPtr(mustAtoi(m[1]))
		},
	},
	// bare :L:C: anywhere
	{
		re: regexp.MustCompile(`:(\d+):(\d+):`),
		extract: func(d *Diagnostic, m []string) {
			d.Line = intPtr(mustAtoi(m[1]))
			d.Column = intPtr(mustAtoi(m[2]))
		},
	},
}

// hintRE extracts a trailing "hint:" or "note:" fragment. Runs
// independently of the location cascade.
var hintRE = regexp.MustCompile(`(?is)(?:^|\n)\s*(?:hint|note):\s*(.+?)\s*$`)

// Normalize collapses a raw diagnostic payload into the canonical list
// plus a human-readable summary. The returned list is never empty.
func Normalize(payload RawPayload, mainFile string) ([]Diagnostic, string) {
	var diags []Diagnostic

	switch p := payload.(type) {
	case StructuredPayload:
		for _, raw := range p {
			diags = append(diags, normalizeStructured(raw, mainFile))
		}
	case TextPayload:
		text := strings.TrimSpace(string(p))
		if text != "" {
			diags = append(diags, normalizeText(text, mainFile))
		}
	}

	if len(diags) == 0 {
		diags = []Diagnostic{{
			Severity: SeverityError,
			Message:  unknownErrorMessage,
			File:     mainFile,
		}}
	}

	return diags, summarize(diags)
}

// NormalizeError converts a Go error from the engine boundary into the
// canonical form, running the message through the same text cascade used
// for string diagnostics.
func NormalizeError(err error, mainFile string) ([]Diagnostic, string) {
	if err == nil {
		return Normalize(TextPayload(""), mainFile)
	}
	return Normalize(TextPayload(err.Error()), mainFile)
}

// normalizeStructured maps one diagnostic-like object directly, filling
// defaults where the engine left fields out. Explicit location fields are
// taken as-is; the text cascade never runs for structured input.
func normalizeStructured(raw RawDiagnostic, mainFile string) Diagnostic {
	d := Diagnostic{
		Severity:  SeverityError,
		Message:   raw.Message,
		File:      mainFile,
		Line:      raw.Line,
		Column:    raw.Column,
		EndLine:   raw.EndLine,
		EndColumn: raw.EndColumn,
		Hint:      raw.Hint,
	}
	if raw.Severity == string(SeverityWarning) {
		d.Severity = SeverityWarning
	}
	if raw.Path != "" {
		d.File = raw.Path
	}
	if d.Hint == "" && len(raw.Hints) > 0 {
		d.Hint = strings.Join(raw.Hints, "; ")
	}
	if d.Message == "" {
		d.Message = unknownErrorMessage
	}
	return d
}

// normalizeText recovers a best-effort location from a free-text message.
func normalizeText(text, mainFile string) Diagnostic {
	d := Diagnostic{
		Severity: SeverityError,
		File:     mainFile,
	}

	// Hint extraction first, so the matchers see the message without it.
	msg := text
	if m := hintRE.FindStringSubmatchIndex(msg); m != nil {
		d.Hint = strings.TrimSpace(msg[m[2]:m[3]])
		msg = strings.TrimSpace(msg[:m[0]])
	}
	d.Message = msg

	for _, lm := range locMatchers {
		if m := lm.re.FindStringSubmatch(msg); m != nil {
			lm.extract(&d, m)
			break
		}
	}

	if d.Message == "" {
		d.Message = unknownErrorMessage
	}
	return d
}

// summarize renders the human-readable failure summary. Multiple
// diagnostics get a categorized count; a single one uses its first line.
func summarize(diags []Diagnostic) string {
	if len(diags) == 1 {
		return firstLine(diags[0].Message)
	}

	var errors, warnings int
	for _, d := range diags {
		if d.Severity == SeverityWarning {
			warnings++
		} else {
			errors++
		}
	}

	var parts []string
	if errors > 0 {
		parts = append(parts, fmt.Sprintf("%d error(s)", errors))
	}
	if warnings > 0 {
		parts = append(parts, fmt.Sprintf("%d warning(s)", warnings))
	}
	return "Compilation failed: " + strings.Join(parts, ", ")
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func intPtr(v int) *int { return &v }

// mustAtoi converts digits already validated by a \d+ submatch.
func mustAtoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}
