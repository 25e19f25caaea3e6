// Package recovery defines the error-handling policy shared by every layer
// below the document boundary. Real-world PDFs are routinely non-conformant,
// so components report defects to a Strategy and, unless it answers
// ActionFail, continue with a best-effort value.
package recovery

// Strategy decides what a component does when it hits malformed input.
type Strategy interface {
	OnError(err error, location Location) Action
}

// Location pins a diagnostic to a place in the file.
type Location struct {
	ByteOffset int64
	ObjectNum  int
	ObjectGen  int
	Component  string
}

type Action int

const (
	// ActionFail propagates the error and aborts the current operation.
	ActionFail Action = iota
	// ActionSkip drops the malformed construct and continues.
	ActionSkip
	// ActionFix continues with a best-effort substitute value.
	ActionFix
)

// Diagnostic is a recorded defect: the underlying error plus where it was
// observed.
type Diagnostic struct {
	Err error
	Loc Location
}

func (d Diagnostic) Error() string { return d.Err.Error() }
func (d Diagnostic) Unwrap() error { return d.Err }
