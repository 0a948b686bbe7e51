package timer

import (
	"errors"
	"fmt"
)

// ErrorCode classifies a rejected join or command.
type ErrorCode string

const (
	CodeUserNotFound       ErrorCode = "USER_NOT_FOUND"
	CodeExamNotFound       ErrorCode = "EXAM_NOT_FOUND"
	CodeStudentNotEnrolled ErrorCode = "STUDENT_NOT_ENROLLED"
	CodeNotOwner           ErrorCode = "NOT_OWNER"
	CodeNotAuthority       ErrorCode = "NOT_AUTHORITY"
	CodeNotJoined          ErrorCode = "NOT_JOINED"
	CodeSessionNotFound    ErrorCode = "SESSION_NOT_FOUND"
	CodeInvalidTransition  ErrorCode = "INVALID_TRANSITION"
	CodeAdjustmentTooLarge ErrorCode = "ADJUSTMENT_TOO_LARGE"
	CodeInvalidRequest     ErrorCode = "INVALID_REQUEST"
	CodeInternal           ErrorCode = "INTERNAL"
)

// CommandError is a rejection reported back to the calling connection.
// It never tears the connection down.
type CommandError struct {
	Code    ErrorCode
	Message string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newCommandError(code ErrorCode, format string, args ...any) *CommandError {
	return &CommandError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the error code of err, or CodeInternal.
func CodeOf(err error) ErrorCode {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Code
	}
	return CodeInternal
}

// messageOf returns the human readable part of err.
func messageOf(err error) string {
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) {
		return cmdErr.Message
	}
	return err.Error()
}
