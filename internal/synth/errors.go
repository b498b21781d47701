package synth

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dgnsrekt/cuecard/internal/diag"
)

// Reasons a request never reached the service.
var (
	// ErrNoAPIKey indicates no ElevenLabs key is configured
	ErrNoAPIKey = errors.New("no ElevenLabs API key configured")

	// ErrEmptyText indicates nothing speakable was left after sanitising
	ErrEmptyText = errors.New("empty text")

	// ErrNoVoice indicates the request had no voice id
	ErrNoVoice = errors.New("no voice id")

	// ErrFallbackVoice indicates a built-in placeholder voice was requested
	ErrFallbackVoice = errors.New("fallback voice has no audio")

	// ErrEmptyResponse indicates a 2xx response without a body
	ErrEmptyResponse = errors.New("empty audio response")
)

// ErrorCode identifies specific error types
type ErrorCode string

const (
	ErrorCodeHTTPStatus  ErrorCode = "HTTP_STATUS"
	ErrorCodeRateLimited ErrorCode = "RATE_LIMITED"
	ErrorCodeTransport   ErrorCode = "TRANSPORT"
	ErrorCodeTimeout     ErrorCode = "TIMEOUT"
	ErrorCodeCanceled    ErrorCode = "CANCELED"
	ErrorCodeDecode      ErrorCode = "DECODE"
)

// Error is a failed call to the synthesis service.
type Error struct {
	Code    ErrorCode
	Status  int // HTTP status, 0 when no response arrived
	Message string
	Cause   error
}

// Error implements the error interface
func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Code, e.Message)
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (%d %s)", msg, e.Status, http.StatusText(e.Status))
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// IsRetryable returns true if the same request may succeed later
func (e *Error) IsRetryable() bool {
	switch e.Code {
	case ErrorCodeRateLimited, ErrorCodeTransport, ErrorCodeTimeout:
		return true
	case ErrorCodeHTTPStatus:
		return e.Status >= 500
	default:
		return false
	}
}

func statusError(status int) *Error {
	code := ErrorCodeHTTPStatus
	if status == http.StatusTooManyRequests {
		code = ErrorCodeRateLimited
	}
	return &Error{Code: code, Status: status, Message: "unexpected status"}
}

// kindOf maps an error to its diagnostic kind.
func kindOf(err error) diag.Kind {
	var se *Error
	if errors.As(err, &se) {
		return diag.KindTransport
	}
	return diag.KindInput
}
