// Package strategy defines the four extraction strategies and the selector
// choosing one per injection point.
package strategy

import (
	"fmt"
	"slices"
	"strings"

	"github.com/0x6d61/sqlsiphon/internal/dialect"
)

// Kind is one of Normal, Error, Blind or Time.
type Kind int

const (
	Normal Kind = iota // union reflection
	Error              // error message reflection
	Blind              // boolean page oracle
	Time               // boolean timing oracle
)

// Mode is the extraction entry point a strategy uses.
type Mode int

const (
	// Direct reads up to a capacity of characters per request.
	Direct Mode = iota
	// Search reads one bit per request.
	Search
)

func (m Mode) String() string {
	if m == Search {
		return "search"
	}
	return "direct"
}

// All returns every kind in priority order.
func All() []Kind {
	return []Kind{Normal, Error, Blind, Time}
}

// String returns the strategy name.
func (k Kind) String() string {
	switch k {
	case Normal:
		return "normal"
	case Error:
		return "error"
	case Blind:
		return "blind"
	case Time:
		return "time"
	default:
		return "unknown"
	}
}

// Code returns the one-letter code used on the command line.
func (k Kind) Code() string {
	return strings.ToUpper(k.String()[:1])
}

// Mode returns Direct for Normal and Error, Search for Blind and Time.
func (k Kind) Mode() Mode {
	if k == Blind || k == Time {
		return Search
	}
	return Direct
}

// Priority orders the candidates. Lower values are tried first.
func (k Kind) Priority() int { return int(k) }

// ParseKinds parses a comma separated list of codes or names, such as
// "N,E,B,T" or "blind,time". The result is in priority order without
// duplicates. An empty string selects every kind.
func ParseKinds(s string) ([]Kind, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return All(), nil
	}
	var out []Kind
	for _, part := range strings.Split(s, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" {
			continue
		}
		found := false
		for _, k := range All() {
			if part == strings.ToLower(k.Code()) || part == k.String() {
				if !slices.Contains(out, k) {
					out = append(out, k)
				}
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("unknown strategy %q", part)
		}
	}
	slices.Sort(out)
	return out, nil
}

// Strategy is the strategy active for a session with its capacity, the
// maximum number of characters one request can carry.
type Strategy struct {
	Kind     Kind
	Capacity int
	// Method is the error method in use, for Error only.
	Method *dialect.ErrorMethod
}

func (s Strategy) String() string {
	if s.Method != nil {
		return fmt.Sprintf("%s(%s)", s.Kind, s.Method.Name)
	}
	return s.Kind.String()
}
