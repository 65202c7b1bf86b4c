package core

// CallEnvelope carries the caller's tool context together with the hidden
// writer. It travels through the model invocation loop as a single value and
// is split back into its two halves at the tool boundary, so the writer never
// appears inside the caller-defined context value.
type CallEnvelope struct {
	userContext any
	writer      Writer
}

// NewCallEnvelope wraps a caller context and an optional writer.
func NewCallEnvelope(userContext any, w Writer) *CallEnvelope {
	return &CallEnvelope{userContext: userContext, writer: w}
}

// EnvelopeFor builds the envelope for a call.
func EnvelopeFor(p CallParameters) *CallEnvelope {
	return NewCallEnvelope(p.Context, p.Writer)
}

// UserContext returns the caller-defined value. Safe on a nil envelope.
func (e *CallEnvelope) UserContext() any {
	if e == nil {
		return nil
	}
	return e.userContext
}

// Writer returns the hidden writer or nil. Safe on a nil envelope.
func (e *CallEnvelope) Writer() Writer {
	if e == nil {
		return nil
	}
	return e.writer
}
