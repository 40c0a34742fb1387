package client

import (
	"bytes"
	"errors"
	"fmt"
)

// ErrHTMLResponse marks a JSON-expecting call that got an HTML document back.
// That almost always means the request was routed to a web page instead of
// the API, so it gets its own diagnosis instead of a generic parse error.
var ErrHTMLResponse = errors.New("received an HTML page instead of JSON; check the API base URL or proxy configuration")

// HTTPError is a non-2xx response with whatever body the server attached.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("HTTP %d: %s", e.Status, e.Body)
	}

	return fmt.Sprintf("HTTP %d", e.Status)
}

// IsHTML reports whether a body looks like an HTML document rather than
// JSON. Only the prefix is inspected: a doctype or an opening <html tag,
// case-insensitive, after leading whitespace.
func IsHTML(body []byte) bool {
	trimmed := bytes.ToLower(bytes.TrimSpace(body))

	return bytes.HasPrefix(trimmed, []byte("<!doctype html")) ||
		bytes.HasPrefix(trimmed, []byte("<html"))
}

// StatusError converts a status code and body into the error the caller
// should see: nil for 2xx, ErrHTMLResponse for HTML-shaped failures and
// *HTTPError otherwise.
func StatusError(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	if IsHTML(body) {
		return fmt.Errorf("HTTP %d: %w", status, ErrHTMLResponse)
	}

	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}

	return &HTTPError{Status: status, Body: string(bytes.TrimSpace(body))}
}
