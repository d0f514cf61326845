// Package payload turns dialect templates into SQL fragments. Rendering is
// two passes: semantic placeholders first (Render), then the dialect's
// syntax atoms (ResolveAtoms).
package payload

import (
	"errors"
	"slices"
	"strings"

	"github.com/0x6d61/sqlsiphon/internal/dialect"
)

// ErrUnsupported is returned when the dialect has no template for an
// operation, such as file writes on SQLite.
var ErrUnsupported = errors.New("operation not supported by dialect")

// Render replaces every occurrence of every key of subs in tmpl. Keys are
// matched literally and replaced values are not scanned again.
func Render(tmpl string, subs map[string]string) string {
	if len(subs) == 0 {
		return tmpl
	}
	keys := make([]string, 0, len(subs))
	for k := range subs {
		keys = append(keys, k)
	}
	// longest first so a key never shadows a longer one sharing its prefix
	slices.SortFunc(keys, func(a, b string) int { return len(b) - len(a) })

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, subs[k])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// ResolveAtoms replaces ${NAME} for every atom name in atoms.
func ResolveAtoms(s string, atoms map[string]string) string {
	if !strings.Contains(s, "${") {
		return s
	}
	subs := make(map[string]string, len(atoms))
	for name, v := range atoms {
		subs[dialect.AtomToken(name)] = v
	}
	return Render(s, subs)
}

// Unresolved returns the ${...} tokens left in s.
func Unresolved(s string) []string {
	return dialect.Tokens(s)
}

// Payload is a rendered fragment spliced into the original parameter value.
type Payload struct {
	Prefix string // closes the original query context (e.g. "'" or ")")
	Core   string // rendered fragment
	Suffix string // comments out the rest (e.g. "-- -")
}

// String returns Prefix + Core + Suffix, separated so the fragment never
// glues onto the closing quote.
func (p Payload) String() string {
	var b strings.Builder
	b.WriteString(p.Prefix)
	if p.Core != "" {
		b.WriteByte(' ')
		b.WriteString(p.Core)
	}
	if p.Suffix != "" {
		b.WriteByte(' ')
		b.WriteString(p.Suffix)
	}
	return b.String()
}
