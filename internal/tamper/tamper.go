// Package tamper rewrites SQL fragments before they are spliced into a
// request, to get past filters matching on SQL syntax.
//
// Tampers work on the fragment only: the boundary prefix and suffix are
// added afterwards. Quoted strings and identifiers are left untouched so
// the markers and separators of a fragment reach the database intact.
//
// Built-in tampers:
//   - space2comment: Replaces spaces with /**/ comments
//   - uppercase:     Converts SQL keywords to UPPER CASE
//   - randomcase:    Mixes the case of SQL keywords
//   - charencode:    Percent-encodes non-alphanumeric characters (%XX)
//   - between:       Replaces "> N" with "NOT BETWEEN 0 AND N"
//
// Usage:
//
//	chain, err := tamper.BuildChain("space2comment", "uppercase")
//	prober = tamper.Wrap(prober, chain)
package tamper

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/0x6d61/sqlsiphon/internal/oracle"
)

// Tamper transforms a SQL fragment.
type Tamper interface {
	// Name returns the tamper's short identifier (e.g. "space2comment").
	Name() string
	// Apply transforms the fragment and returns the modified version.
	Apply(s string) string
}

// Chain applies multiple tampers sequentially.
type Chain []Tamper

// Apply runs each tamper in order and returns the fully-transformed string.
func (c Chain) Apply(s string) string {
	for _, t := range c {
		s = t.Apply(s)
	}
	return s
}

// Names returns the names of the tampers of c, in order.
func (c Chain) Names() []string {
	names := make([]string, len(c))
	for i, t := range c {
		names[i] = t.Name()
	}
	return names
}

// registry maps tamper names to their constructors.
var registry = map[string]func() Tamper{
	"space2comment": func() Tamper { return &space2commentTamper{} },
	"uppercase":     func() Tamper { return &uppercaseTamper{} },
	"randomcase":    func() Tamper { return newRandomCaseTamper() },
	"charencode":    func() Tamper { return &charEncodeTamper{} },
	"between":       func() Tamper { return &betweenTamper{} },
}

// Lookup returns the Tamper for the given name, or nil if not found.
func Lookup(name string) Tamper {
	fn, ok := registry[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil
	}
	return fn()
}

// Available returns all registered tamper names in alphabetical order.
func Available() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// BuildChain constructs a Chain from the given tamper names. Blank names
// are skipped; an unknown name is an error.
func BuildChain(names ...string) (Chain, error) {
	var chain Chain
	for _, name := range names {
		if strings.TrimSpace(name) == "" {
			continue
		}
		t := Lookup(name)
		if t == nil {
			return nil, fmt.Errorf("unknown tamper %q (available: %s)", name, strings.Join(Available(), ", "))
		}
		chain = append(chain, t)
	}
	return chain, nil
}

// Wrap returns a prober applying chain to every fragment before p sends
// it. If chain is empty, p is returned unchanged.
func Wrap(p oracle.Prober, chain Chain) oracle.Prober {
	if len(chain) == 0 {
		return p
	}
	return oracle.ProberFunc(func(ctx context.Context, query string) (*oracle.Response, error) {
		return p.Probe(ctx, chain.Apply(query))
	})
}

// outsideQuotes applies fn to the parts of s outside quoted strings and
// quoted identifiers ('...', "..." and `...`).
func outsideQuotes(s string, fn func(string) string) string {
	var b strings.Builder
	b.Grow(len(s))
	start := 0
	for i := 0; i < len(s); i++ {
		q := s[i]
		if q != '\'' && q != '"' && q != '`' {
			continue
		}
		end := strings.IndexByte(s[i+1:], q)
		if end < 0 {
			break
		}
		end += i + 2
		b.WriteString(fn(s[start:i]))
		b.WriteString(s[i:end])
		start = end
		i = end - 1
	}
	b.WriteString(fn(s[start:]))
	return b.String()
}
