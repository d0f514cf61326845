package dialect

import (
	"fmt"
	"strings"
)

// Registry maps vendor names and aliases to descriptors. It only ever holds
// validated descriptors and is read-only once built.
type Registry struct {
	byName map[string]*Descriptor
	order  []*Descriptor
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Descriptor)}
}

// Add validates d and registers it under its name and aliases. A later
// descriptor with the same canonical name replaces the earlier one, which
// lets a user directory override a built-in vendor.
func (r *Registry) Add(d *Descriptor) error {
	if err := d.Validate(); err != nil {
		return err
	}
	if d.atoms == nil {
		d.finalize()
	}
	old := r.byName[strings.ToLower(d.Name)]
	for _, n := range d.Names() {
		if other, ok := r.byName[n]; ok && other != d && other != old {
			return &ConfigError{Dialect: d.Name, Reason: fmt.Sprintf("alias %q already used by %s", n, other.Name)}
		}
	}
	if old != nil {
		for _, n := range old.Names() {
			delete(r.byName, n)
		}
		for i, o := range r.order {
			if o == old {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	for _, n := range d.Names() {
		r.byName[n] = d
	}
	r.order = append(r.order, d)
	return nil
}

// Merge adds every descriptor of other to r.
func (r *Registry) Merge(other *Registry) error {
	for _, d := range other.order {
		if err := r.Add(d); err != nil {
			return err
		}
	}
	return nil
}

// Lookup resolves a vendor identifier case-insensitively.
func (r *Registry) Lookup(vendor string) (*Descriptor, error) {
	d, ok := r.byName[strings.ToLower(strings.TrimSpace(vendor))]
	if !ok {
		return nil, &ConfigError{Dialect: vendor, Reason: "no descriptor for vendor"}
	}
	return d, nil
}

// All returns the descriptors in registration order.
func (r *Registry) All() []*Descriptor {
	out := make([]*Descriptor, len(r.order))
	copy(out, r.order)
	return out
}
