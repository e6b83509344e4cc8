package typesetd

// MainFilePath is the absolute path under which the entry document is
// registered in every engine instance. Diagnostics with no recoverable
// location are attributed to it.
const MainFilePath = "/main.typ"

// FormatPDF is the only output format requested from the engine.
const FormatPDF = "pdf"

// CompileRequest is one accepted compile job. It is immutable once built
// by the boundary adapter; the scheduler only ever holds or drops it.
type CompileRequest struct {
	Source string
	Files  map[string][]byte
}

// FontAsset is a single font supplied at setup time and copied into every
// fresh engine instance.
type FontAsset struct {
	Name string
	Data []byte
}

// Severity classifies a diagnostic.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Diagnostic is one normalized compiler message. Line/column fields are
// nil when the engine reported no location and none could be recovered
// from the message text.
type Diagnostic struct {
	Severity  Severity `json:"severity"`
	Message   string   `json:"message"`
	File      string   `json:"file"`
	Line      *int     `json:"line,omitempty"`
	Column    *int     `json:"column,omitempty"`
	EndLine   *int     `json:"endLine,omitempty"`
	EndColumn *int     `json:"endColumn,omitempty"`
	Hint      string   `json:"hint,omitempty"`
}

// CompileOutcome is the tagged result of one compilation. Exactly one of
// the two branches is populated: OK with Artifact, or !OK with Summary and
// a non-empty Diagnostics list.
type CompileOutcome struct {
	OK          bool
	Artifact    []byte
	Summary     string
	Diagnostics []Diagnostic
}

// Success builds an OK outcome carrying the compiled artifact.
func Success(artifact []byte) CompileOutcome {
	return CompileOutcome{OK: true, Artifact: artifact}
}

// Failure builds a failed outcome. The caller guarantees diags is
// non-empty; the normalizer enforces this for all engine-derived paths.
func Failure(summary string, diags []Diagnostic) CompileOutcome {
	return CompileOutcome{OK: false, Summary: summary, Diagnostics: diags}
}

// RawDiagnostic is one diagnostic-like object as emitted by the engine,
// before normalization. All fields are optional on the wire.
type RawDiagnostic struct {
	Severity  string   `json:"severity"`
	Message   string   `json:"message"`
	Path      string   `json:"path"`
	Line      *int     `json:"line"`
	Column    *int     `json:"column"`
	EndLine   *int     `json:"endLine"`
	EndColumn *int     `json:"endColumn"`
	Hint      string   `json:"hint"`
	Hints     []string `json:"hints"`
}

// RawPayload is the tagged union of diagnostic shapes an engine result can
// carry: a single free-text message or a sequence of structured objects.
type RawPayload interface {
	isRawPayload()
}

// TextPayload is a free-text diagnostic (or an exception message).
type TextPayload string

// StructuredPayload is a sequence of diagnostic-like objects.
type StructuredPayload []RawDiagnostic

func (TextPayload) isRawPayload()       {}
func (StructuredPayload) isRawPayload() {}
