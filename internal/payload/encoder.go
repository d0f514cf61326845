package payload

import (
	"fmt"
	"strings"
	"unicode"
)

// isUnreserved reports RFC 3986 unreserved characters:
// ALPHA / DIGIT / "-" / "." / "_" / "~".
func isUnreserved(c byte) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '.' || c == '_' || c == '~'
}

// percentEncode applies RFC 3986 percent-encoding to every byte that is not
// an unreserved character. Spaces become %20 (not +).
func percentEncode(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) {
			b.WriteByte(c)
		} else {
			fmt.Fprintf(&b, "%%%02X", c)
		}
	}
	return b.String()
}

// Encoder transforms a value before it is substituted into a template.
type Encoder interface {
	Name() string
	Encode(s string) string
}

// URLEncoder percent-encodes names that travel inside a URL.
type URLEncoder struct{}

func (e *URLEncoder) Name() string { return "url" }

func (e *URLEncoder) Encode(s string) string {
	return percentEncode(s)
}

// HexEncoder renders each byte as two lowercase hex digits, the form taken
// by the .HEX placeholders and by file content.
type HexEncoder struct{}

func (e *HexEncoder) Name() string { return "hex" }

func (e *HexEncoder) Encode(s string) string {
	var b strings.Builder
	b.Grow(2 * len(s))
	for i := 0; i < len(s); i++ {
		fmt.Fprintf(&b, "%02x", s[i])
	}
	return b.String()
}

// NameEncoder sanitises database, table and column names: invalid UTF-8 is
// dropped along with control characters, which would collide with the
// dialect separators.
type NameEncoder struct{}

func (e *NameEncoder) Name() string { return "name" }

func (e *NameEncoder) Encode(s string) string {
	return NormalizeName(s)
}

// NormalizeName returns s as valid UTF-8 without control characters.
func NormalizeName(s string) string {
	s = strings.ToValidUTF8(s, "")
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// ChainEncoder applies multiple encoders in sequence.
type ChainEncoder struct {
	encoders []Encoder
}

// NewChainEncoder creates a ChainEncoder with the given encoders.
func NewChainEncoder(encoders ...Encoder) *ChainEncoder {
	return &ChainEncoder{encoders: encoders}
}

func (e *ChainEncoder) Name() string {
	names := make([]string, len(e.encoders))
	for i, enc := range e.encoders {
		names[i] = enc.Name()
	}
	return strings.Join(names, "+")
}

// Encode applies each encoder in order.
func (e *ChainEncoder) Encode(s string) string {
	result := s
	for _, enc := range e.encoders {
		result = enc.Encode(result)
	}
	return result
}
