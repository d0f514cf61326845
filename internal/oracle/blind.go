package oracle

import (
	"context"
	"fmt"

	"github.com/0x6d61/sqlsiphon/internal/detector"
	"github.com/0x6d61/sqlsiphon/internal/payload"
)

// defaultMinRatio is the line ratio below which a page resembles neither
// reference.
const defaultMinRatio = 0.5

// Blind answers checks by comparing the page against the TRUE and FALSE
// reference pages collected by Calibrate.
type Blind struct {
	prober   Prober
	builder  *payload.Builder
	diff     *detector.DiffEngine
	minRatio float64

	truePage  *Response
	falsePage *Response
	byStatus  bool
}

// NewBlind returns a blind oracle. It must be calibrated before use.
func NewBlind(p Prober, b *payload.Builder) *Blind {
	return &Blind{
		prober:   p,
		builder:  b,
		diff:     detector.NewDiffEngine(),
		minRatio: defaultMinRatio,
	}
}

// SetMinRatio changes the similarity a page needs with a reference.
func (o *Blind) SetMinRatio(r float64) {
	if r > 0 && r <= 1 {
		o.minRatio = r
	}
}

// Calibrate probes every true and false test of the dialect. The first
// answers become the references; the rest must classify consistently and
// the initialization check must read true.
func (o *Blind) Calibrate(ctx context.Context) error {
	trueTests, falseTests, init := o.builder.Checks()
	if len(trueTests) == 0 || len(falseTests) == 0 {
		return fmt.Errorf("blind: %w", payload.ErrUnsupported)
	}

	var err error
	if o.truePage, err = o.probe(ctx, trueTests[0]); err != nil {
		return err
	}
	if o.falsePage, err = o.probe(ctx, falseTests[0]); err != nil {
		return err
	}
	o.byStatus = o.truePage.Status != o.falsePage.Status
	if !o.byStatus && o.diff.Ratio(o.truePage.Body, o.falsePage.Body) == 1.0 {
		return ErrIndistinguishable
	}

	check := func(tests []string, want bool) error {
		for _, t := range tests {
			got, err := o.Ask(ctx, t)
			if err != nil {
				return fmt.Errorf("%w: %q: %v", ErrIndistinguishable, t, err)
			}
			if got != want {
				return fmt.Errorf("%w: %q read %v", ErrIndistinguishable, t, got)
			}
		}
		return nil
	}
	if err := check(trueTests[1:], true); err != nil {
		return err
	}
	if err := check(falseTests[1:], false); err != nil {
		return err
	}
	if init != "" {
		if err := check([]string{init}, true); err != nil {
			return err
		}
	}
	return nil
}

// Ask embeds check in the dialect's blind template and classifies the page.
func (o *Blind) Ask(ctx context.Context, check string) (bool, error) {
	resp, err := o.probe(ctx, check)
	if err != nil {
		return false, err
	}
	return o.Classify(resp)
}

// Classify reads a page as true or false. References that differ by
// status code are told apart by status alone.
func (o *Blind) Classify(resp *Response) (bool, error) {
	if o.truePage == nil || o.falsePage == nil {
		return false, fmt.Errorf("blind: not calibrated")
	}
	if o.byStatus {
		switch resp.Status {
		case o.truePage.Status:
			return true, nil
		case o.falsePage.Status:
			return false, nil
		default:
			return false, ErrAmbiguous
		}
	}

	rt := o.diff.Ratio(resp.Body, o.truePage.Body)
	rf := o.diff.Ratio(resp.Body, o.falsePage.Body)
	if rt < o.minRatio && rf < o.minRatio {
		return false, ErrAmbiguous
	}
	switch o.diff.Closer(resp.Body, o.truePage.Body, o.falsePage.Body) {
	case -1:
		return true, nil
	case 1:
		return false, nil
	default:
		return false, ErrAmbiguous
	}
}

func (o *Blind) probe(ctx context.Context, check string) (*Response, error) {
	q, err := o.builder.Blind(check)
	if err != nil {
		return nil, err
	}
	resp, err := o.prober.Probe(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("blind probe: %w", err)
	}
	return resp, nil
}
