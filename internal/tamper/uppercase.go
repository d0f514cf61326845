package tamper

import (
	"math/rand/v2"
	"regexp"
	"strings"
	"sync"
)

// sqlKeywords is the set of SQL keywords that will be rewritten.
var sqlKeywords = []string{
	"INFORMATION_SCHEMA",
	"CURRENT_DATABASE",
	"CURRENT_USER",
	"GROUP_CONCAT",
	"STRING_AGG",
	"DISTINCT",
	"BETWEEN",
	"SUBSTRING",
	"CONCAT",
	"SELECT",
	"UNION",
	"WHERE",
	"ORDER",
	"GROUP",
	"LIMIT",
	"OFFSET",
	"SLEEP",
	"WAITFOR",
	"DELAY",
	"CASE",
	"WHEN",
	"THEN",
	"ELSE",
	"CAST",
	"FROM",
	"LIKE",
	"NULL",
	"END",
	"AND",
	"NOT",
	"OR",
	"BY",
	"AS",
	"IS",
	"IN",
}

// sqlKeywordPattern matches any SQL keyword (case-insensitive, word-bounded).
var sqlKeywordPattern = func() *regexp.Regexp {
	parts := make([]string, len(sqlKeywords))
	for i, kw := range sqlKeywords {
		parts[i] = regexp.QuoteMeta(kw)
	}
	return regexp.MustCompile(`(?i)\b(` + strings.Join(parts, "|") + `)\b`)
}()

// uppercaseTamper converts SQL keywords outside quotes to UPPER CASE.
//
// Example:
//
//	"union select null" → "UNION SELECT NULL"
type uppercaseTamper struct{}

func (t *uppercaseTamper) Name() string { return "uppercase" }

func (t *uppercaseTamper) Apply(s string) string {
	return outsideQuotes(s, func(part string) string {
		return sqlKeywordPattern.ReplaceAllStringFunc(part, strings.ToUpper)
	})
}

// randomCaseTamper flips the case of each letter of SQL keywords outside
// quotes at random.
//
// Example:
//
//	"union select" → "uNIoN SeLEcT"
type randomCaseTamper struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func newRandomCaseTamper() *randomCaseTamper {
	return &randomCaseTamper{rnd: rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))}
}

func (t *randomCaseTamper) Name() string { return "randomcase" }

func (t *randomCaseTamper) Apply(s string) string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return outsideQuotes(s, func(part string) string {
		return sqlKeywordPattern.ReplaceAllStringFunc(part, func(kw string) string {
			b := []byte(kw)
			for i, c := range b {
				if c == '_' {
					continue
				}
				if t.rnd.IntN(2) == 0 {
					b[i] = c &^ 0x20
				} else {
					b[i] = c | 0x20
				}
			}
			return string(b)
		})
	})
}
