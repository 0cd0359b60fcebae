package client

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

const maxErrorBody = 512

// UpstreamError normalizes every failure of an outbound call: transport
// errors, timeouts, unexpected status codes and undecodable bodies.
type UpstreamError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Body != "":
		return fmt.Sprintf("%s: upstream status %d: %s", e.Op, e.StatusCode, e.Body)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: upstream status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op + ": upstream error"
	}
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsUpstream reports whether err came from an outbound call.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

func statusError(op string, status int, body []byte) *UpstreamError {
	return &UpstreamError{Op: op, StatusCode: status, Body: truncateBody(body)}
}

// truncateBody cuts body to at most maxErrorBody bytes on a rune boundary.
func truncateBody(body []byte) string {
	if len(body) <= maxErrorBody {
		return string(body)
	}
	n := maxErrorBody
	for n > 0 && !utf8.RuneStart(body[n]) {
		n--
	}
	return string(body[:n])
}
