package core

import "github.com/pkg/errors"

var (
	ErrDocumentNotFound = errors.New("document not found")
	// ErrPermissionDenied is returned when the store rejects a write, e.g. an unsolicited second admin.
	ErrPermissionDenied = errors.New("permission denied")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		return "validation failed"
	}
	return err.Err.Error()
}

// TransportError reports that the store or the identity provider could not be reached.
type TransportError struct {
	Op  string
	Err error
}

func NewTransportError(op string, err error) error {
	return &TransportError{Op: op, Err: err}
}

func (err *TransportError) Error() string {
	if err.Err == nil {
		return err.Op + ": transport error"
	}
	return err.Op + ": " + err.Err.Error()
}

func (err *TransportError) Unwrap() error { return err.Err }

func IsTransport(err error) bool {
	var terr *TransportError
	return errors.As(err, &terr)
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
