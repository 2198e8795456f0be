package apierr

import "fmt"

// Error is what the review API hands back when a request fails: a stable
// code clients can branch on, a message for humans, the HTTP status to
// respond with, and an optional cause kept out of the wire format.
type Error struct {
	code    Code
	message string
	status  int
	cause   error
}

// New builds an Error with no underlying cause.
func New(code Code, status int, message string) *Error {
	return &Error{code: code, message: message, status: status}
}

// Wrap builds an Error around an underlying cause so logs and
// errors.Is/As still see it.
func Wrap(code Code, status int, message string, cause error) *Error {
	return &Error{code: code, message: message, status: status, cause: cause}
}

// Error renders the code, message, and cause (when present) for logs.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

// Unwrap exposes the cause to the errors package.
func (e *Error) Unwrap() error { return e.cause }

// Code is the machine-readable code.
func (e *Error) Code() Code { return e.code }

// Message is the human-readable message.
func (e *Error) Message() string { return e.message }

// Status is the HTTP status to write.
func (e *Error) Status() int { return e.status }

// ErrorResponse is the JSON envelope written to clients. The cause never
// appears here.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries the client-visible fields of an error.
type ErrorBody struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
}

// Response converts the error into its wire envelope.
func (e *Error) Response() ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    e.code,
			Message: e.message,
		},
	}
}
