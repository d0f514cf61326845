package transport

import (
	"net/http"
	"time"
)

// Response is an HTTP response received by the Client.
type Response struct {
	StatusCode int
	Headers    http.Header
	Body       []byte

	// Duration is the round trip measured with the monotonic clock.
	Duration time.Duration

	// URL is the final URL after redirects.
	URL string
}

// BodyString returns the response body as a string.
func (r *Response) BodyString() string {
	return string(r.Body)
}
