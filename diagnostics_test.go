package typesetd

import (
	"errors"
	"strings"
	"testing"
)

func TestNormalize_PathLineColPattern(t *testing.T) {
	diags, _ := Normalize(TextPayload("main.typ:10:5: unexpected token"), MainFilePath)

	if len(diags) != 1 {
		t.Fatalf("got %d diagnostics, want 1", len(diags))
	}
	d := diags[0]
	if d.File != "main.typ" {
		t.Errorf("file = %q, want main.typ", d.File)
	}
	if d.Line == nil || *d.Line != 10 {
		t.Errorf("line = %v, want 10", d.Line)
	}
	if d.Column == nil || *d.Column != 5 {
		t.Errorf("column = %v, want 5", d.Column)
	}
	if d.Message != "unexpected token" {
		t.Errorf("message = %q, want %q", d.Message, "unexpected token")
	}
}

func TestNormalize_AtLineColumnPattern(t *testing.T) {
	diags, _ := Normalize(TextPayload("error at line 7, column 3"), MainFilePath)

	d := diags[0]
	if d.Line == nil || *d.Line != 7 {
		t.Errorf("line = %v, want 7", d.Line)
	}
	if d.Column == nil || *d.Column != 3 {
		t.Errorf("column = %v, want 3", d.Column)
	}
	if d.File != MainFilePath {
		t.Errorf("file = %q, want default %q", d.File, MainFilePath)
	}
	if d.Message != "error at line 7, column 3" {
		t.Errorf("message = %q, full string should be kept", d.Message)
	}
}

func TestNormalize_LineOnlyPattern(t *testing.T) {
	diags, _ := Normalize(TextPayload("line 42"), MainFilePath)

	d := diags[0]
	if d.Line == nil || *d.Line != 42 {
		t.Errorf("line = %v, want 42", d.Line)
	}
	if d.Column != nil {
		t.Errorf("column = %v, want unset", d.Column)
	}
}

func TestNormalize_BareColonPattern(t *testing.T) {
	diags, _ := Normalize(TextPayload("something exploded near :13:9: in the lexer"), MainFilePath)

	d := diags[0]
	if d.Line == nil || *d.Line != 13 {
		t.Errorf("line = %v, want 13", d.Line)
	}
	if d.Column == nil || *d.Column != 9 {
		t.Errorf("column = %v, want 9", d.Column)
	}
}

func TestNormalize_NoPatternKeepsFullMessage(t *testing.T) {
	diags, _ := Normalize(TextPayload("the engine grew confused"), MainFilePath)

	d := diags[0]
	if d.Line != nil || d.Column != nil {
		t.Errorf("line/column = %v/%v, want unset", d.Line, d.Column)
	}
	if d.Message != "the engine grew confused" {
		t.Errorf("message = %q", d.Message)
	}
	if d.Severity != SeverityError {
		t.Errorf("severity = %q, want error", d.Severity)
	}
}

func TestNormalize_HintIndependentOfLocation(t *testing.T) {
	diags, _ := Normalize(TextPayload("main.typ:3:1: unexpected token\nhint: did you mean 'let'?"), MainFilePath)

	d := diags[0]
	if d.Hint != "did you mean 'let'?" {
		t.Errorf("hint = %q", d.Hint)
	}
	if d.Line == nil || *d.Line != 3 {
		t.Errorf("line = %v, want 3 (location must still parse)", d.Line)
	}
	if strings.Contains(d.Message, "hint") {
		t.Errorf("message %q should not contain the hint fragment", d.Message)
	}
}

func TestNormalize_HintWithoutLocation(t *testing.T) {
	diags, _ := Normalize(TextPayload("unexpected token\nhint: did you mean 'let'?"), MainFilePath)

	d := diags[0]
	if d.Hint != "did you mean 'let'?" {
		t.Errorf("hint = %q", d.Hint)
	}
	if d.Message != "unexpected token" {
		t.Errorf("message = %q", d.Message)
	}
}

func TestNormalize_NoteFragment(t *testing.T) {
	diags, _ := Normalize(TextPayload("bad import\nNote: packages are resolved locally"), MainFilePath)

	if diags[0].Hint != "packages are resolved locally" {
		t.Errorf("hint = %q", diags[0].Hint)
	}
}

func TestNormalize_StructuredRoundTrip(t *testing.T) {
	line, col := 10, 5
	diags, _ := Normalize(StructuredPayload{{
		Severity: "error",
		Message:  "main.typ:99:99: misleading text location",
		Path:     "/lib.typ",
		Line:     &line,
		Column:   &col,
	}}, MainFilePath)

	d := diags[0]
	// Explicit fields win; the text cascade must not run.
	if d.Line == nil || *d.Line != 10 || d.Column == nil || *d.Column != 5 {
		t.Errorf("line/column = %v/%v, want 10/5 from explicit fields", d.Line, d.Column)
	}
	if d.File != "/lib.typ" {
		t.Errorf("file = %q, want /lib.typ", d.File)
	}
}

func TestNormalize_StructuredDefaults(t *testing.T) {
	diags, _ := Normalize(StructuredPayload{{Message: "vague complaint"}}, MainFilePath)

	d := diags[0]
	if d.Severity != SeverityError {
		t.Errorf("severity = %q, want default error", d.Severity)
	}
	if d.File != MainFilePath {
		t.Errorf("file = %q, want default %q", d.File, MainFilePath)
	}
	if d.Line != nil {
		t.Errorf("line = %v, want unset", d.Line)
	}
}

func TestNormalize_StructuredHintsJoined(t *testing.T) {
	diags, _ := Normalize(StructuredPayload{{
		Message: "unknown function",
		Hints:   []string{"check the import", "check the spelling"},
	}}, MainFilePath)

	if diags[0].Hint != "check the import; check the spelling" {
		t.Errorf("hint = %q", diags[0].Hint)
	}
}

func TestNormalize_SummaryCounts(t *testing.T) {
	diags, summary := Normalize(StructuredPayload{
		{Severity: "error", Message: "a"},
		{Severity: "error", Message: "b"},
		{Severity: "warning", Message: "c"},
	}, MainFilePath)

	if len(diags) != 3 {
		t.Fatalf("got %d diagnostics, want 3", len(diags))
	}
	if summary != "Compilation failed: 2 error(s), 1 warning(s)" {
		t.Errorf("summary = %q", summary)
	}
}

func TestNormalize_SummaryOmitsZeroCategory(t *testing.T) {
	_, summary := Normalize(StructuredPayload{
		{Severity: "error", Message: "a"},
		{Severity: "error", Message: "b"},
	}, MainFilePath)

	if summary != "Compilation failed: 2 error(s)" {
		t.Errorf("summary = %q", summary)
	}
}

func TestNormalize_SummarySingleTextIsFirstLine(t *testing.T) {
	_, summary := Normalize(TextPayload("first line of trouble\nsecond line detail"), MainFilePath)

	if summary != "first line of trouble" {
		t.Errorf("summary = %q", summary)
	}
}

func TestNormalize_EmptyYieldsUnknownError(t *testing.T) {
	for name, payload := range map[string]RawPayload{
		"nil":              nil,
		"empty text":       TextPayload(""),
		"whitespace":       TextPayload("  \n "),
		"empty structured": StructuredPayload{},
	} {
		diags, summary := Normalize(payload, MainFilePath)
		if len(diags) != 1 {
			t.Fatalf("%s: got %d diagnostics, want 1", name, len(diags))
		}
		if diags[0].Message != "Unknown compilation error" {
			t.Errorf("%s: message = %q", name, diags[0].Message)
		}
		if summary != "Unknown compilation error" {
			t.Errorf("%s: summary = %q", name, summary)
		}
	}
}

func TestNormalizeError_UsesTextCascade(t *testing.T) {
	diags, _ := NormalizeError(errors.New("engine fault at line 12, column 8"), MainFilePath)

	d := diags[0]
	if d.Line == nil || *d.Line != 12 || d.Column == nil || *d.Column != 8 {
		t.Errorf("line/column = %v/%v, want 12/8", d.Line, d.Column)
	}
}

func TestNormalizeError_NilError(t *testing.T) {
	diags, _ := NormalizeError(nil, MainFilePath)

	if len(diags) != 1 || diags[0].Message != "Unknown compilation error" {
		t.Errorf("diags = %+v", diags)
	}
}
