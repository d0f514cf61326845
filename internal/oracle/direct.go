package oracle

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Reader reads reflected text for the Normal and Error strategies.
type Reader struct {
	prober Prober
	lead   string
}

// NewReader returns a Reader; lead is the dialect's LEAD atom.
func NewReader(p Prober, lead string) *Reader {
	return &Reader{prober: p, lead: lead}
}

// Read probes query and returns the page text.
func (r *Reader) Read(ctx context.Context, query string) (string, error) {
	resp, err := r.prober.Probe(ctx, query)
	if err != nil {
		return "", fmt.Errorf("direct probe: %w", err)
	}
	return VisibleText(resp.Body, r.lead), nil
}

// VisibleText returns the body as text. When the marker is not found
// verbatim the page is parsed as HTML so entity-escaped markers and values
// held in attributes are recovered.
func VisibleText(body []byte, marker string) string {
	if marker == "" || bytes.Contains(body, []byte(marker)) {
		return string(body)
	}
	if !bytes.ContainsAny(body, "<&") {
		return string(body)
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return string(body)
	}
	var b strings.Builder
	b.WriteString(doc.Text())
	doc.Find("*").Each(func(_ int, s *goquery.Selection) {
		for _, n := range s.Nodes {
			for _, a := range n.Attr {
				if strings.Contains(a.Val, marker) {
					b.WriteByte('\n')
					b.WriteString(a.Val)
				}
			}
		}
	})
	return b.String()
}
