// Package fingerprint identifies the database vendor behind an injection
// point from the error pages it returns. Signatures are dialect data: the
// Fingerprint.Errors patterns of each descriptor.
package fingerprint

import (
	"regexp"

	"github.com/0x6d61/sqlsiphon/internal/dialect"
)

// DefaultProbes are fragments that break the enclosing query, so the
// target shows the vendor's syntax error.
var DefaultProbes = []string{"'", `"`, ")", `\`}

// Match is the vendor identified for a target.
type Match struct {
	Dialect *dialect.Descriptor
	// Hits counts the signature matches over every probe.
	Hits     int
	Evidence []string
}

type vendor struct {
	d        *dialect.Descriptor
	patterns []*regexp.Regexp
}

// Identifier matches pages against the signatures of a set of dialects.
type Identifier struct {
	vendors []vendor
	probes  []string
}

// New compiles the signatures of dialects. probes defaults to
// DefaultProbes.
func New(dialects []*dialect.Descriptor, probes ...string) (*Identifier, error) {
	if len(probes) == 0 {
		probes = DefaultProbes
	}
	id := &Identifier{probes: probes}
	for _, d := range dialects {
		v := vendor{d: d}
		for _, expr := range d.Fingerprint.Errors {
			re, err := regexp.Compile(expr)
			if err != nil {
				return nil, &dialect.ConfigError{Dialect: d.Name, Template: "fingerprint.errors", Reason: err.Error()}
			}
			v.patterns = append(v.patterns, re)
		}
		id.vendors = append(id.vendors, v)
	}
	return id, nil
}
