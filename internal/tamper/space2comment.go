package tamper

import "strings"

// space2commentTamper replaces each space outside quotes with a SQL inline
// comment /**/.
//
// Example:
//
//	"union select 'a b'" → "union/**/select/**/'a b'"
type space2commentTamper struct{}

func (t *space2commentTamper) Name() string { return "space2comment" }

func (t *space2commentTamper) Apply(s string) string {
	return outsideQuotes(s, func(part string) string {
		return strings.ReplaceAll(part, " ", "/**/")
	})
}
