// Package detector compares target pages and picks the parameters worth
// injecting into.
package detector

import (
	"context"
	"fmt"
)

// defaultThreshold is the default similarity threshold. Responses with a
// body ratio below this value are considered "different".
const defaultThreshold = 0.98

// Sender requests the page with value as the raw value of one parameter.
type Sender interface {
	Send(ctx context.Context, value string) ([]byte, error)
}

// ErrorFunc names the vendor whose error signatures body shows, or "".
type ErrorFunc func(body []byte) string

// HeuristicResult contains results of the initial checks for a parameter.
type HeuristicResult struct {
	Parameter      string
	CausesError    bool    // a single quote causes a DB error
	Vendor         string  // vendor of the error page, if any
	DynamicContent bool    // the parameter value affects the response
	PageRatio      float64 // similarity between baseline and error probe
	Injectable     bool    // overall assessment
}

// Heuristic performs quick probes to identify injectable parameters.
type Heuristic struct {
	diff      *DiffEngine
	errors    ErrorFunc
	threshold float64
}

// NewHeuristic returns a Heuristic recognizing error pages with errs. A
// nil errs disables the error probe verdict.
func NewHeuristic(diff *DiffEngine, errs ErrorFunc) *Heuristic {
	if errs == nil {
		errs = func([]byte) string { return "" }
	}
	return &Heuristic{diff: diff, errors: errs, threshold: defaultThreshold}
}

// Check probes the parameter called name, whose original value is value.
// numeric selects unquoted boolean probes.
func (h *Heuristic) Check(ctx context.Context, name, value string, numeric bool, s Sender) (*HeuristicResult, error) {
	result := &HeuristicResult{Parameter: name}

	baseline, err := s.Send(ctx, value)
	if err != nil {
		return nil, fmt.Errorf("baseline request: %w", err)
	}

	errorPage, err := s.Send(ctx, value+"'")
	if err != nil {
		return nil, fmt.Errorf("error probe: %w", err)
	}
	if vendor := h.errors(errorPage); vendor != "" {
		result.CausesError = true
		result.Vendor = vendor
	}
	result.PageRatio = h.diff.Ratio(baseline, errorPage)

	truePayload, falsePayload := value+"' AND '1'='1", value+"' AND '1'='2"
	if numeric {
		truePayload, falsePayload = value+" AND 1=1", value+" AND 1=2"
	}
	truePage, err := s.Send(ctx, truePayload)
	if err != nil {
		return nil, fmt.Errorf("boolean true probe: %w", err)
	}
	falsePage, err := s.Send(ctx, falsePayload)
	if err != nil {
		return nil, fmt.Errorf("boolean false probe: %w", err)
	}

	trueRatio := h.diff.Ratio(baseline, truePage)
	falseRatio := h.diff.Ratio(baseline, falsePage)
	result.DynamicContent = h.diff.IsDifferent(baseline, falsePage, h.threshold)

	boolean := trueRatio >= h.threshold && falseRatio < h.threshold
	result.Injectable = result.CausesError || boolean
	return result, nil
}
