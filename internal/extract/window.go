// Package extract turns oracle answers into values: pages of reflected
// text in direct mode, bits of a boolean oracle in search mode, both moved
// along one value by a sliding window.
package extract

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"unicode/utf8"
)

// Window is the sliding window cursor over one value. Start is 0-based;
// templates receive Start+1.
type Window struct {
	Start int
}

// Advance moves the window forward by n characters.
func (w *Window) Advance(n int) { w.Start += n }

// Reset moves the window back to the first character.
func (w *Window) Reset() { w.Start = 0 }

// PageFunc renders the window over a value at start and returns the text
// of the response.
type PageFunc func(ctx context.Context, start int) (string, error)

// Reader pages through a value window by window. Each page shows up to
// Capacity characters after Lead; Trail ends the value.
type Reader struct {
	Lead     string
	Trail    string
	Capacity int
	Retries  int
}

// Slice returns at most Capacity characters following Lead in text, and
// whether Lead was found.
func (r *Reader) Slice(text string) (string, bool) {
	i := strings.Index(text, r.Lead)
	if i < 0 {
		return "", false
	}
	after := text[i+len(r.Lead):]
	n := 0
	for j := range after {
		if n == r.Capacity {
			return after[:j], true
		}
		n++
	}
	return after, true
}

// Chunks streams the value read through page. The window advances by
// Capacity after each full page; a short or empty page or the Trail ends
// the value. Chunks never split the Trail.
func (r *Reader) Chunks(ctx context.Context, cur *Window, page PageFunc) iter.Seq2[string, error] {
	return r.chunks(ctx, cur, page, nil)
}

// chunks sets *terminated when the value ended on the Trail.
func (r *Reader) chunks(ctx context.Context, cur *Window, page PageFunc, terminated *bool) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if r.Capacity < 1 {
			yield("", fmt.Errorf("window capacity %d", r.Capacity))
			return
		}
		var pending string
		for {
			text, err := Retry(ctx, r.Retries, func() (string, error) {
				return r.fetch(ctx, cur.Start, page)
			})
			if err != nil {
				yield("", err)
				return
			}
			chunk, found := r.Slice(text)
			pending += chunk

			if r.Trail != "" {
				if i := strings.Index(pending, r.Trail); i >= 0 {
					if terminated != nil {
						*terminated = true
					}
					if i > 0 {
						yield(pending[:i], nil)
					}
					return
				}
			}
			if !found || utf8.RuneCountInString(chunk) < r.Capacity {
				if pending != "" {
					yield(pending, nil)
				}
				return
			}
			cur.Advance(r.Capacity)

			keep := partialSuffix(pending, r.Trail)
			if out := pending[:len(pending)-keep]; out != "" {
				if !yield(out, nil) {
					return
				}
			}
			pending = pending[len(pending)-keep:]
		}
	}
}

// Read returns the whole value and whether it ended on the Trail.
func (r *Reader) Read(ctx context.Context, cur *Window, page PageFunc) (string, bool, error) {
	var (
		b          strings.Builder
		terminated bool
	)
	for chunk, err := range r.chunks(ctx, cur, page, &terminated) {
		if err != nil {
			return b.String(), false, err
		}
		b.WriteString(chunk)
	}
	return b.String(), terminated, nil
}

func (r *Reader) fetch(ctx context.Context, start int, page PageFunc) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return page(ctx, start)
}

// partialSuffix returns the length of the longest proper prefix of trail
// that s ends with.
func partialSuffix(s, trail string) int {
	for k := min(len(trail)-1, len(s)); k > 0; k-- {
		if strings.HasSuffix(s, trail[:k]) {
			return k
		}
	}
	return 0
}
