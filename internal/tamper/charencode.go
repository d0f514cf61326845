package tamper

import (
	"fmt"
	"strings"
)

// charEncodeTamper percent-encodes every character but the safe ones, for
// applications that decode the parameter once more before querying.
//
// Safe characters (left unchanged): A-Z a-z 0-9 _ - . * ~
//
// Example:
//
//	"' OR 1=1" → "%27%20OR%201%3D1"
type charEncodeTamper struct{}

func (t *charEncodeTamper) Name() string { return "charencode" }

func (t *charEncodeTamper) Apply(s string) string {
	var b strings.Builder
	b.Grow(len(s) * 3)
	for i := 0; i < len(s); i++ {
		if isSafeChar(s[i]) {
			b.WriteByte(s[i])
		} else {
			fmt.Fprintf(&b, "%%%02X", s[i])
		}
	}
	return b.String()
}

// isSafeChar returns true for characters that do NOT need to be encoded.
func isSafeChar(c byte) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '_' || c == '-' || c == '.' || c == '*' || c == '~'
}
