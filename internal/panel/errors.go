package panel

import "errors"

// Kind classifies panel failures. It is comparable and implements error so
// callers can match with errors.Is(err, panel.CommandFailure).
type Kind string

func (k Kind) Error() string { return string(k) }

const (
	// ResourceUnavailable: a rail, the reset line or the orientation could
	// not be resolved at attach time.
	ResourceUnavailable Kind = "resource_unavailable"
	// PowerSequenceFailure: a rail failed to enable during prepare.
	PowerSequenceFailure Kind = "power_sequence_failure"
	// CommandFailure: a burst or standard command was rejected.
	CommandFailure Kind = "command_failure"
	// AttachFailure: the panel could not attach to its host link.
	AttachFailure Kind = "attach_failure"
)

// Error carries the kind, the failing operation and its cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := "panel: " + string(e.Kind)
	if e.Op != "" {
		msg += ": " + e.Op
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the kind so both errors.Is(err, CommandFailure) and
// errors.Is(err, cause) hold.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// KindOf extracts the Kind from err, or "" when err carries none.
func KindOf(err error) Kind {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return ""
}

func newError(k Kind, op string, err error) *Error {
	return &Error{Kind: k, Op: op, Err: err}
}
