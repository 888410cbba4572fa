package asr

import (
	"errors"
	"fmt"
)

// Error is a recognizer API failure. The provider reports its business
// status in the X-Api-Status-Code response header, not the body.
type Error struct {
	// StatusCode is the provider status from X-Api-Status-Code.
	StatusCode string
	// Message is the provider message from X-Api-Message.
	Message string
	// HTTPStatus is the transport status.
	HTTPStatus int
	// Body is a truncated response body for diagnosis.
	Body string
}

func (e *Error) Error() string {
	return fmt.Sprintf("asr: %s (status=%s, http=%d): %s",
		e.Message, e.StatusCode, e.HTTPStatus, e.Body)
}

// AsError extracts a provider error from an error chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// okStatus lists the provider codes that mean accepted or in flight.
var okStatus = map[string]bool{
	"20000000": true,
	"20000001": true,
	"20000002": true,
	"20000003": true,
}

func truncateBody(b []byte) string {
	const max = 300
	if len(b) > max {
		b = b[:max]
	}
	return string(b)
}
