package api

import (
	"errors"
	"fmt"
)

var (
	ErrOffline           = errors.New("server unreachable")
	ErrTimeout           = errors.New("request timed out")
	ErrMalformedResponse = errors.New("malformed server response")
	ErrHTTPStatus        = errors.New("unexpected http status")
	ErrRejected          = errors.New("rejected by server")
)

// ResponseError describes a server answer that could not be used.
type ResponseError struct {
	Err        error
	StatusCode int
	// Snippet is the beginning of the body, for logs.
	Snippet string
	// Message is the server supplied message, if any.
	Message string
}

func (e *ResponseError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("%v (status %d): %s", e.Err, e.StatusCode, e.Message)
	case e.Snippet != "":
		return fmt.Sprintf("%v (status %d): %q", e.Err, e.StatusCode, e.Snippet)
	default:
		return fmt.Sprintf("%v (status %d)", e.Err, e.StatusCode)
	}
}

func (e *ResponseError) Unwrap() error { return e.Err }

// IsConfigError reports errors that indicate a misconfigured backend rather
// than a data problem: PHP source, HTML pages, invalid JSON or HTTP errors.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrHTTPStatus)
}

// IsTransient reports errors that may go away on their own.
func IsTransient(err error) bool {
	return errors.Is(err, ErrOffline) || errors.Is(err, ErrTimeout)
}

// Message extracts a user facing message from err.
func Message(err error) string {
	var re *ResponseError
	if errors.As(err, &re) && re.Message != "" {
		return re.Message
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
