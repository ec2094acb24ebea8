package preview

import (
	"errors"
	"fmt"
)

// Kind classifies pipeline failures so callers can map them to a status.
type Kind string

// Failure kinds surfaced by the pipeline.
const (
	KindInvalidRequest     Kind = "invalid_request"
	KindTransport          Kind = "transport"
	KindLengthHintExceeded Kind = "length_hint_exceeded"
	KindLengthExceeded     Kind = "length_exceeded"
	KindTeapot             Kind = "teapot"
	KindBadEncoding        Kind = "bad_encoding"
	KindNoHeadStart        Kind = "no_head_start"
	KindNoHeadEnd          Kind = "no_head_end"
	KindMalformedMarkup    Kind = "malformed_markup"
)

// Error is a tagged pipeline failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError tags err with kind.
func NewError(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the Kind carried by err, or "" when err is not tagged.
func KindOf(err error) Kind {
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Kind
	}
	return ""
}
