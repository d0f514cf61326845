// Package oracle turns target responses into answers: a boolean for the
// Blind and Time strategies, the reflected text for Normal and Error.
package oracle

import (
	"context"
	"errors"
	"time"
)

// ErrAmbiguous means a page matched neither the true nor the false
// reference. Callers retry the same question a bounded number of times.
var ErrAmbiguous = errors.New("oracle: ambiguous response")

// ErrIndistinguishable means the true and false reference tests did not
// produce two distinct, stable page patterns.
var ErrIndistinguishable = errors.New("oracle: true and false pages are not distinguishable")

// Response is what a probe observed. Elapsed is measured with the
// monotonic clock.
type Response struct {
	Body    []byte
	Elapsed time.Duration
	Status  int
}

// Prober sends a rendered fragment to the injection point. It is the only
// network-facing dependency of the engine.
type Prober interface {
	Probe(ctx context.Context, query string) (*Response, error)
}

// ProberFunc adapts a function to Prober.
type ProberFunc func(ctx context.Context, query string) (*Response, error)

func (f ProberFunc) Probe(ctx context.Context, query string) (*Response, error) {
	return f(ctx, query)
}

// Oracle answers a boolean check rendered by the dialect.
type Oracle interface {
	Ask(ctx context.Context, check string) (bool, error)
}
