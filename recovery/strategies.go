package recovery

import "pdflib/observability"

// Strict fails fast on the first structural defect. Useful for validators
// and for tests that must not mask corruption.
type Strict struct{}

func NewStrict() *Strict { return &Strict{} }

func (*Strict) OnError(err error, location Location) Action { return ActionFail }

// Lenient records every defect and continues with best-effort values. This
// is the default policy: cross-reference corruption and malformed objects
// must never abort a whole document parse.
type Lenient struct {
	Logger observability.Logger

	diags []Diagnostic
}

func NewLenient(logger observability.Logger) *Lenient {
	if logger == nil {
		logger = observability.NopLogger{}
	}
	return &Lenient{Logger: logger}
}

func (l *Lenient) OnError(err error, location Location) Action {
	l.diags = append(l.diags, Diagnostic{Err: err, Loc: location})
	l.Logger.Warn("recovered from malformed input",
		observability.String("component", location.Component),
		observability.Int64("offset", location.ByteOffset),
		observability.Int("obj", location.ObjectNum),
		observability.Error("err", err),
	)
	return ActionFix
}

// Diagnostics returns everything recorded so far, oldest first.
func (l *Lenient) Diagnostics() []Diagnostic { return l.diags }
