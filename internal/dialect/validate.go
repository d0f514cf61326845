package dialect

import (
	"fmt"
	"regexp"
	"slices"
)

// tokenPattern matches any ${...} token, known or not.
var tokenPattern = regexp.MustCompile(`\$\{[^}]*\}`)

// ConfigError reports a dialect that cannot be used: an unknown vendor, a
// malformed descriptor or a template with a placeholder nothing fills.
// It is never retried.
type ConfigError struct {
	Dialect  string
	Template string
	Token    string
	Reason   string
}

func (e *ConfigError) Error() string {
	switch {
	case e.Token != "":
		return fmt.Sprintf("dialect %q: template %s: unknown placeholder %s", e.Dialect, e.Template, e.Token)
	case e.Template != "":
		return fmt.Sprintf("dialect %q: template %s: %s", e.Dialect, e.Template, e.Reason)
	default:
		return fmt.Sprintf("dialect %q: %s", e.Dialect, e.Reason)
	}
}

// Tokens returns every ${...} token in s, in order of appearance.
func Tokens(s string) []string {
	return tokenPattern.FindAllString(s, -1)
}

// Validate checks that every template only references placeholders it is
// given at render time or atoms of the dialect.
func (d *Descriptor) Validate() error {
	if d.Name == "" {
		return &ConfigError{Reason: "missing name"}
	}
	cfg := d.Strategy.Configuration
	if cfg.SlidingWindow == "" {
		return &ConfigError{Dialect: d.Name, Template: "strategy.configuration.slidingWindow", Reason: "empty template"}
	}
	if cfg.Failsafe == "" {
		return &ConfigError{Dialect: d.Name, Template: "strategy.configuration.failsafe", Reason: "empty template"}
	}
	switch cfg.BitOrder {
	case "", MSBFirst, LSBFirst:
	default:
		return &ConfigError{Dialect: d.Name, Template: "strategy.configuration.bitOrder", Reason: fmt.Sprintf("unknown bit order %q", cfg.BitOrder)}
	}
	switch cfg.BitsPerChar {
	case 0, 7, 8, 16:
	default:
		return &ConfigError{Dialect: d.Name, Template: "strategy.configuration.bitsPerChar", Reason: fmt.Sprintf("unsupported width %d", cfg.BitsPerChar)}
	}
	for _, m := range d.Strategy.Error {
		if m.Capacity <= 0 {
			return &ConfigError{Dialect: d.Name, Template: "strategy.error." + m.Name, Reason: "capacity must be positive"}
		}
	}

	atoms := d.ResolvedAtoms()
	for _, slot := range d.slots() {
		for _, tok := range Tokens(slot.value) {
			if slices.Contains(slot.allowed, tok) {
				continue
			}
			if _, ok := atoms[tok[2:len(tok)-1]]; ok {
				continue
			}
			return &ConfigError{Dialect: d.Name, Template: slot.path, Token: tok}
		}
	}
	for _, expr := range d.Fingerprint.Errors {
		if _, err := regexp.Compile(expr); err != nil {
			return &ConfigError{Dialect: d.Name, Template: "fingerprint.errors", Reason: err.Error()}
		}
	}
	return nil
}
