// Package transport sends injection probes over HTTP. The Prober splices a
// rendered fragment into one parameter of a Target and measures the round
// trip; the Client underneath owns proxying, rate limiting and timeouts.
package transport

import (
	"maps"
	"time"
)

// Request is one HTTP request sent by the Client.
type Request struct {
	Method      string
	URL         string
	Headers     map[string]string
	Body        string
	ContentType string
	Cookies     map[string]string

	// Timeout overrides the client timeout when non-zero. Time based
	// probes raise it above the injected delay.
	Timeout time.Duration
}

// Clone returns a deep copy of the Request.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	clone := *r
	clone.Headers = maps.Clone(r.Headers)
	clone.Cookies = maps.Clone(r.Cookies)
	return &clone
}
