package detector

import (
	"regexp"
	"strings"

	"github.com/agext/levenshtein"
)

// maxDistanceBytes bounds the text compared by Distance; edit distance is
// quadratic in the input length.
const maxDistanceBytes = 4096

// DiffEngine compares pages returned by the target.
type DiffEngine struct {
	DynamicPatterns []*regexp.Regexp
}

// NewDiffEngine creates a DiffEngine with default dynamic content patterns.
// These patterns strip session IDs, CSRF tokens, timestamps, and other
// values that change between requests without carrying an oracle answer.
func NewDiffEngine() *DiffEngine {
	return &DiffEngine{
		DynamicPatterns: []*regexp.Regexp{
			// CSRF tokens in hidden fields or meta tags
			regexp.MustCompile(`(?i)(csrf[_-]?token|_token|authenticity_token)([^"]*"[^"]*"|[^']*'[^']*'|=[^\s&]+)`),
			// Session identifiers (PHPSESSID, JSESSIONID, ...)
			regexp.MustCompile(`(?i)(sess(ion)?[_-]?(id)?|phpsessid|jsessionid|sid)\s*[:=]\s*[^\s<"'&]+`),
			regexp.MustCompile(`(?i)\bsess[_-][a-zA-Z0-9]+\b`),
			// ISO 8601 timestamps
			regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}[^\s<"']*`),
			// Unix timestamps
			regexp.MustCompile(`\b\d{10,13}\b`),
			// hashes, nonces
			regexp.MustCompile(`[0-9a-fA-F]{32,}`),
			regexp.MustCompile(`[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}`),
		},
	}
}

// stripDynamic removes dynamic content from a string using DynamicPatterns.
func (d *DiffEngine) stripDynamic(s string) string {
	for _, pat := range d.DynamicPatterns {
		s = pat.ReplaceAllString(s, "")
	}
	return s
}

// Ratio computes a line based similarity ratio between two bodies
// (0.0 to 1.0) after stripping dynamic content.
func (d *DiffEngine) Ratio(a, b []byte) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}

	sa := d.stripDynamic(string(a))
	sb := d.stripDynamic(string(b))
	if sa == sb {
		return 1.0
	}

	linesA := strings.Split(sa, "\n")
	linesB := strings.Split(sb, "\n")

	matches := 0
	total := len(linesA) + len(linesB)

	used := make([]bool, len(linesB))
	for _, la := range linesA {
		for j, lb := range linesB {
			if !used[j] && la == lb {
				matches += 2
				used[j] = true
				break
			}
		}
	}

	return float64(matches) / float64(total)
}

// IsDifferent returns true if the similarity ratio of two bodies is below the
// given threshold.
func (d *DiffEngine) IsDifferent(a, b []byte, threshold float64) bool {
	return d.Ratio(a, b) < threshold
}

// Distance returns the edit distance between the stripped bodies, each cut
// to maxDistanceBytes.
func (d *DiffEngine) Distance(a, b []byte) int {
	sa := d.stripDynamic(string(a))
	sb := d.stripDynamic(string(b))
	if len(sa) > maxDistanceBytes {
		sa = sa[:maxDistanceBytes]
	}
	if len(sb) > maxDistanceBytes {
		sb = sb[:maxDistanceBytes]
	}
	return levenshtein.Distance(sa, sb, nil)
}

// Closer reports which of two reference pages page resembles most: -1 for
// a, 1 for b and 0 when it cannot tell. The line ratio decides first, the
// edit distance breaks ties.
func (d *DiffEngine) Closer(page, a, b []byte) int {
	ra, rb := d.Ratio(page, a), d.Ratio(page, b)
	switch {
	case ra > rb:
		return -1
	case rb > ra:
		return 1
	}
	da, db := d.Distance(page, a), d.Distance(page, b)
	switch {
	case da < db:
		return -1
	case db < da:
		return 1
	default:
		return 0
	}
}
