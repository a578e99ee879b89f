package models

import "errors"

// Failure taxonomy shared by the server and the client library.
var (
	ErrUnauthorized     = errors.New("no accepted connection between the parties")
	ErrForbidden        = errors.New("forbidden")
	ErrNotFound         = errors.New("not found")
	ErrDuplicatePending = errors.New("duplicate pending request")
	ErrAlreadyAccepted  = errors.New("request already accepted")
	ErrUnavailable      = errors.New("unavailable")
	ErrMalformed        = ErrMalformedPayload
	ErrInvalidInput     = errors.New("invalid input")
)

const (
	CodeUnauthorized     = "unauthorized"
	CodeForbidden        = "forbidden"
	CodeNotFound         = "not_found"
	CodeDuplicatePending = "duplicate_pending"
	CodeAlreadyAccepted  = "already_accepted"
	CodeUnavailable      = "unavailable"
	CodeMalformed        = "malformed"
	CodeInvalidInput     = "invalid_input"
)

var codeErrors = []struct {
	code string
	err  error
}{
	{CodeUnauthorized, ErrUnauthorized},
	{CodeForbidden, ErrForbidden},
	{CodeNotFound, ErrNotFound},
	{CodeDuplicatePending, ErrDuplicatePending},
	{CodeAlreadyAccepted, ErrAlreadyAccepted},
	{CodeUnavailable, ErrUnavailable},
	{CodeMalformed, ErrMalformed},
	{CodeInvalidInput, ErrInvalidInput},
}

// ErrorCode returns the wire code for err, or "" when it is outside the taxonomy.
func ErrorCode(err error) string {
	for _, entry := range codeErrors {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return ""
}

func ErrorForCode(code string) error {
	for _, entry := range codeErrors {
		if entry.code == code {
			return entry.err
		}
	}
	return nil
}

// Retryable reports whether the caller may retry the same call unchanged.
func Retryable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
