package fingerprint

import (
	"context"
	"fmt"

	"github.com/0x6d61/sqlsiphon/internal/oracle"
)

// Match returns the vendor whose signatures match body most often, or nil
// when none matches. Ties go to the dialect registered first.
func (id *Identifier) Match(body []byte) *Match {
	return best(id.hits(body, nil))
}

// Identify sends every probe through p and returns the vendor with the
// most signature matches over all responses. It returns nil when no
// signature matched.
func (id *Identifier) Identify(ctx context.Context, p oracle.Prober) (*Match, error) {
	var totals []*Match
	for _, probe := range id.probes {
		resp, err := p.Probe(ctx, probe)
		if err != nil {
			return nil, fmt.Errorf("fingerprint probe %q: %w", probe, err)
		}
		totals = id.hits(resp.Body, totals)
	}
	return best(totals), nil
}

// hits adds the matches of body to acc, one entry per vendor.
func (id *Identifier) hits(body []byte, acc []*Match) []*Match {
	if acc == nil {
		acc = make([]*Match, len(id.vendors))
		for i, v := range id.vendors {
			acc[i] = &Match{Dialect: v.d}
		}
	}
	for i, v := range id.vendors {
		for _, re := range v.patterns {
			if m := re.Find(body); m != nil {
				acc[i].Hits++
				acc[i].Evidence = append(acc[i].Evidence, string(m))
			}
		}
	}
	return acc
}

func best(acc []*Match) *Match {
	var out *Match
	for _, m := range acc {
		if m.Hits > 0 && (out == nil || m.Hits > out.Hits) {
			out = m
		}
	}
	return out
}
