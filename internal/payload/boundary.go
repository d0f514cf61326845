package payload

// Boundary is the prefix/suffix pair splicing a fragment into the original
// parameter value.
type Boundary struct {
	Prefix string
	Suffix string
}

// Wrap returns the payload carrying core inside b.
func (b Boundary) Wrap(core string) Payload {
	return Payload{Prefix: b.Prefix, Core: core, Suffix: b.Suffix}
}
