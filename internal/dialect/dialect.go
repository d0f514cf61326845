// Package dialect holds the per-vendor SQL vocabulary used by the extraction
// engine. A Descriptor is data only: templates with ${...} placeholders and
// the syntax atoms (separators, enclosures, markers) resolved into them.
// Vendor differences live here, never in engine code.
package dialect

import (
	"maps"
	"strings"
)

// SearchCapacity is the window size used by the Blind and Time strategies.
// Search mode reads one bit per request so the window only bounds the
// substring handed to the length and bit tests. 65565 is deliberate,
// not a typo for 65535.
const SearchCapacity = 65565

// BitOrder selects which bit of a character is asked first.
type BitOrder string

const (
	MSBFirst BitOrder = "msb"
	LSBFirst BitOrder = "lsb"
)

// Descriptor is the in-memory form of one vendor dialect.
type Descriptor struct {
	Name        string            `yaml:"name"`
	Aliases     []string          `yaml:"aliases"`
	Atoms       map[string]string `yaml:"atoms"`
	Schema      Schema            `yaml:"schema"`
	File        File              `yaml:"file"`
	Strategy    Strategy          `yaml:"strategy"`
	Fingerprint Fingerprint       `yaml:"fingerprint"`

	// atoms is Atoms merged over DefaultAtoms, fixed by finalize.
	atoms map[string]string
}

// Schema groups the metadata and row listing templates.
type Schema struct {
	Info      string `yaml:"info"`
	Databases string `yaml:"databases"`
	Tables    string `yaml:"tables"`
	Columns   string `yaml:"columns"`
	Row       Row    `yaml:"row"`
}

// Row describes how a row of several columns is flattened into one value.
type Row struct {
	Query  string `yaml:"query"`
	Field  string `yaml:"field"`
	Concat string `yaml:"concat"`
}

// File holds the file read and write templates. Empty templates mean the
// vendor does not support the operation.
type File struct {
	Privilege string `yaml:"privilege"`
	Read      string `yaml:"read"`
	Create    Create `yaml:"create"`
}

type Create struct {
	Content string `yaml:"content"`
	Query   string `yaml:"query"`
}

// Strategy holds the templates of every extraction strategy.
type Strategy struct {
	Configuration Configuration `yaml:"configuration"`
	Normal        *Normal       `yaml:"normal"`
	Error         []ErrorMethod `yaml:"error"`
	Boolean       *Boolean      `yaml:"boolean"`
}

type Configuration struct {
	SlidingWindow string   `yaml:"slidingWindow"`
	Failsafe      string   `yaml:"failsafe"`
	Calibrator    string   `yaml:"calibrator"`
	Limit         string   `yaml:"limit"`
	LimitBoundary int      `yaml:"limitBoundary"`
	BitOrder      BitOrder `yaml:"bitOrder"`
	BitsPerChar   int      `yaml:"bitsPerChar"`
}

// Normal is the union based reflection strategy.
type Normal struct {
	Indices  string `yaml:"indices"`
	Capacity string `yaml:"capacity"`
	OrderBy  string `yaml:"orderBy"`
}

// ErrorMethod is one way of leaking a value through a database error
// message. Capacity bounds how many characters the message carries.
type ErrorMethod struct {
	Name     string `yaml:"name"`
	Query    string `yaml:"query"`
	Capacity int    `yaml:"capacity"`
}

type Boolean struct {
	Test  BooleanTest `yaml:"test"`
	Blind string      `yaml:"blind"`
	Time  string      `yaml:"time"`
}

type BooleanTest struct {
	True           []string `yaml:"true"`
	False          []string `yaml:"false"`
	Initialization string   `yaml:"initialization"`
	Bit            string   `yaml:"bit"`
	Length         string   `yaml:"length"`
}

// Fingerprint lists regular expressions matching the vendor's error pages.
type Fingerprint struct {
	Errors []string `yaml:"errors"`
}

// Atom returns the resolved value of a syntax atom.
func (d *Descriptor) Atom(name string) string {
	if d.atoms == nil {
		if v, ok := d.Atoms[name]; ok {
			return v
		}
		return DefaultAtoms[name]
	}
	return d.atoms[name]
}

// ResolvedAtoms returns a copy of the atom set keyed by atom name.
func (d *Descriptor) ResolvedAtoms() map[string]string {
	if d.atoms == nil {
		return merge(d.Atoms)
	}
	return maps.Clone(d.atoms)
}

// Names returns the canonical name followed by the aliases, lower-cased.
func (d *Descriptor) Names() []string {
	names := []string{strings.ToLower(d.Name)}
	for _, a := range d.Aliases {
		names = append(names, strings.ToLower(a))
	}
	return names
}

// HasNormal reports whether the union strategy is described.
func (d *Descriptor) HasNormal() bool {
	return d.Strategy.Normal != nil && d.Strategy.Normal.Indices != ""
}

// HasBoolean reports whether the blind and time strategies are described.
func (d *Descriptor) HasBoolean() bool {
	return d.Strategy.Boolean != nil && d.Strategy.Boolean.Test.Bit != ""
}

// Bits returns the unit width and bit order for search mode. Units are
// UTF-8 bytes up to 8 bits and UTF-16 code units at 16.
func (d *Descriptor) Bits() (int, BitOrder) {
	c := d.Strategy.Configuration
	n := c.BitsPerChar
	if n <= 0 {
		n = 8
	}
	order := c.BitOrder
	if order == "" {
		order = MSBFirst
	}
	return n, order
}

// finalize fixes the atom set. Called once at load, before the descriptor
// is shared.
func (d *Descriptor) finalize() {
	d.atoms = merge(d.Atoms)
}

func merge(overrides map[string]string) map[string]string {
	atoms := maps.Clone(DefaultAtoms)
	maps.Copy(atoms, overrides)
	return atoms
}
