package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/0x6d61/sqlsiphon/internal/payload"
)

// Time answers checks by latency: a check is true when the response took
// at least the injected delay. A single slow hop can produce a false
// positive; retries belong to the caller.
type Time struct {
	prober    Prober
	builder   *payload.Builder
	threshold time.Duration
}

// NewTime returns a time oracle whose threshold is the builder's delay.
func NewTime(p Prober, b *payload.Builder) *Time {
	return &Time{
		prober:    p,
		builder:   b,
		threshold: time.Duration(b.SleepTime) * time.Second,
	}
}

// Threshold returns the latency above which a check reads true.
func (o *Time) Threshold() time.Duration { return o.threshold }

// Calibrate checks that the first true test is delayed and the first false
// test is not.
func (o *Time) Calibrate(ctx context.Context) error {
	trueTests, falseTests, _ := o.builder.Checks()
	if len(trueTests) == 0 || len(falseTests) == 0 {
		return fmt.Errorf("time: %w", payload.ErrUnsupported)
	}
	slow, err := o.Ask(ctx, trueTests[0])
	if err != nil {
		return err
	}
	fast, err := o.Ask(ctx, falseTests[0])
	if err != nil {
		return err
	}
	if !slow || fast {
		return ErrIndistinguishable
	}
	return nil
}

// Ask embeds check in the dialect's time template.
func (o *Time) Ask(ctx context.Context, check string) (bool, error) {
	q, err := o.builder.Time(check)
	if err != nil {
		return false, err
	}
	resp, err := o.prober.Probe(ctx, q)
	if err != nil {
		return false, fmt.Errorf("time probe: %w", err)
	}
	return resp.Elapsed >= o.threshold, nil
}
