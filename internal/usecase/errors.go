package usecase

import "fmt"

type ErrorCode string

const (
	ErrorInvalidInput            ErrorCode = "INVALID_INPUT"
	ErrorSequenceMismatch        ErrorCode = "SEQUENCE_MISMATCH"
	ErrorQuestionnaireIncomplete ErrorCode = "QUESTIONNAIRE_INCOMPLETE"
	ErrorQuestionnaireComplete   ErrorCode = "QUESTIONNAIRE_COMPLETE"
	ErrorNotFound                ErrorCode = "NOT_FOUND"
	ErrorInternal                ErrorCode = "INTERNAL_ERROR"
)

// Error is returned by every service operation that fails. Message, when
// set, is safe to show to the caller.
type Error struct {
	Code    ErrorCode
	Reason  string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

func newErrorf(code ErrorCode, reason string, format string, args ...any) *Error {
	return &Error{Code: code, Reason: reason, Message: fmt.Sprintf(format, args...)}
}
