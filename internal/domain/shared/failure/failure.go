package failure

import "errors"

// Kind classifies an error for callers deciding how to report or retry it.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindForbidden  Kind = "forbidden"
	KindTransient  Kind = "transient"
)

// Error is a classified error. Domain packages declare their sentinels with New.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

var (
	ErrValidation = &Error{Kind: KindValidation}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrForbidden  = &Error{Kind: KindForbidden}
	ErrTransient  = &Error{Kind: KindTransient}
)

func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Transient wraps an infrastructure error that the caller may retry.
func Transient(msg string, err error) *Error {
	return &Error{Kind: KindTransient, Msg: msg, Err: err}
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports kind equality against the bare kind sentinels only.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Msg != "" || t.Err != nil {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the kind of the first classified error in the chain or "".
func KindOf(err error) Kind {
	var classified *Error
	if errors.As(err, &classified) {
		return classified.Kind
	}
	return ""
}
