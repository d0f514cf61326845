package extract

import (
	"strconv"
	"strings"

	"github.com/0x6d61/sqlsiphon/internal/dialect"
	"github.com/0x6d61/sqlsiphon/internal/payload"
)

// Entry is one decoded row of a listing: the value, its cells and how many
// times it occurs (table count, row count or duplicate count depending on
// the listing).
type Entry struct {
	Value string
	Cells []string
	Count int
}

// Decoder splits listing results on the dialect's separators.
type Decoder struct {
	Enclose string
	Qte     string
	Row     string
	Cell    string
}

// DecoderFor returns the decoder matching the atoms of b.
func DecoderFor(b *payload.Builder) Decoder {
	return Decoder{
		Enclose: b.Atom(dialect.EncloseValueSQL),
		Qte:     b.Atom(dialect.SeparatorQteSQL),
		Row:     b.Atom(dialect.SeparatorRowSQL),
		Cell:    b.Atom(dialect.SeparatorCellSQL),
	}
}

// Decode parses "ENCLOSE value QTE count ENCLOSE" rows joined by the row
// separator. closed is false when the last row was cut short, which means
// the listing must be resumed after the rows decoded so far.
func (d Decoder) Decode(value string) (entries []Entry, closed bool) {
	if value == "" {
		return nil, true
	}
	rows := strings.Split(value, d.Row)
	for i, row := range rows {
		inner, ok := strings.CutPrefix(row, d.Enclose)
		if ok {
			inner, ok = strings.CutSuffix(inner, d.Enclose)
		}
		if !ok {
			if i == len(rows)-1 {
				return entries, false
			}
			continue
		}
		e := Entry{Value: inner, Count: 1}
		if v, count, found := cutLast(inner, d.Qte); found {
			e.Value = v
			if n, err := strconv.Atoi(strings.TrimSpace(count)); err == nil {
				e.Count = n
			}
		}
		e.Cells = d.Cells(e.Value)
		entries = append(entries, e)
	}
	return entries, true
}

// Cells splits a row value on the cell separator.
func (d Decoder) Cells(v string) []string {
	if d.Cell == "" {
		return []string{v}
	}
	return strings.Split(v, d.Cell)
}

func cutLast(s, sep string) (before, after string, found bool) {
	if sep == "" {
		return s, "", false
	}
	if i := strings.LastIndex(s, sep); i >= 0 {
		return s[:i], s[i+len(sep):], true
	}
	return s, "", false
}
