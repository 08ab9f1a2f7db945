package simi

// Severity grades a diagnostic.
type Severity string

// Diagnostic severities distinguish skipped data from documented fallbacks.
const (
	// SeverityWarn flags a record that was dropped or ignored.
	SeverityWarn Severity = "warn"
	// SeverityLog records a fallback applied by documented policy.
	SeverityLog Severity = "log"
)

// DiagnosticCode classifies the recovered condition behind a diagnostic.
type DiagnosticCode string

const (
	// DiagMalformedRecord marks a line that does not match its expected shape.
	DiagMalformedRecord DiagnosticCode = "malformed_record"
	// DiagUnresolvedParent marks a parent reference absent from the document.
	DiagUnresolvedParent DiagnosticCode = "unresolved_parent"
	// DiagDuplicateName marks a repeated cell declaration.
	DiagDuplicateName DiagnosticCode = "duplicate_name"
)

// Diagnostic reports one condition the parser recovered from. Line numbers
// are 1-based positions in the lineage file; Cell names the affected cell
// when one is known.
type Diagnostic struct {
	Code     DiagnosticCode
	Severity Severity
	Line     int
	Cell     string
	Message  string
}
