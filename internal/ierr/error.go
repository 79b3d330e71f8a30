package ierr

import (
	"errors"
	"net/http"
)

type ErrorCode string

const (
	ErrorCodeInvalidArgument    ErrorCode = "InvalidArgument"
	ErrorCodeNotFound           ErrorCode = "NotFound"
	ErrorCodeAlreadyExists      ErrorCode = "AlreadyExists"
	ErrorCodeFailedPrecondition ErrorCode = "FailedPrecondition"
	ErrorCodePermissionDenied   ErrorCode = "PermissionDenied"
	ErrorCodeUnauthenticated    ErrorCode = "Unauthenticated"
	ErrorCodeInternal           ErrorCode = "Internal"
)

type Error struct {
	Code    ErrorCode `json:"error"`
	Message string    `json:"message"`

	cause error
}

func New(code ErrorCode, cause error) Error {
	return Error{
		Code:    code,
		Message: cause.Error(),
		cause:   cause,
	}
}

// Newf builds an error whose message is exposed verbatim to clients.
func Newf(code ErrorCode, message string) Error {
	return New(code, errors.New(message))
}

func (e Error) Error() string {
	return string(e.Code) + ": " + e.cause.Error()
}

func (e Error) Unwrap() error {
	return e.cause
}

func (e Error) HTTPStatus() int {
	return HTTPStatus(e.Code)
}

func HTTPStatus(code ErrorCode) int {
	switch code {
	case ErrorCodeInvalidArgument, ErrorCodeFailedPrecondition:
		return http.StatusBadRequest
	case ErrorCodeNotFound:
		return http.StatusNotFound
	case ErrorCodeAlreadyExists:
		return http.StatusConflict
	case ErrorCodePermissionDenied:
		return http.StatusForbidden
	case ErrorCodeUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// CodeOf returns the code of the first ierr.Error in the chain, or Internal.
func CodeOf(err error) ErrorCode {
	var e Error
	if errors.As(err, &e) {
		return e.Code
	}

	return ErrorCodeInternal
}
