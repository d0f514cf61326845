package testutil

import (
	"context"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/0x6d61/sqlsiphon/internal/dialect"
	"github.com/0x6d61/sqlsiphon/internal/oracle"
	"github.com/0x6d61/sqlsiphon/internal/payload"
)

// Pages served by FakeTarget.
const (
	PageTrue  = "<html>\n<h1>Products</h1>\n<p>Widget in stock</p>\n</html>"
	PageFalse = "<html>\n<h1>Products</h1>\n<p>No results found.</p>\n</html>"
)

var (
	fakeWindow   = regexp.MustCompile(`^\(select concat\(0x53714c69, mid\(\((.*)\), (\d+), (\d+)\)\)\)$`)
	fakeMarker   = regexp.MustCompile(`^1337(\d+)7331$`)
	fakeCapacity = regexp.MustCompile(`^\(select concat\(0x53714c69, (\d+), repeat\(0x23, 65536\)\)\)$`)
	fakeContent  = regexp.MustCompile(`^\(select 0x([0-9a-f]*)\)$`)
	fakeOutfile  = regexp.MustCompile(` into outfile '([^']*)'$`)
	fakeXPath    = regexp.MustCompile(`^and extractvalue\(rand\(\), concat\(0x3a, (.*)\)\)$`)
	fakeTime     = regexp.MustCompile(`^and if\((.*), sleep\((\d+)\), 1\)$`)
	fakeBit      = regexp.MustCompile(`^0 != \(ascii\(substring\(cast\(\((.*)\) as binary\), (\d+), 1\)\) & (\d+)\)$`)
	fakeLength   = regexp.MustCompile(`^length\(cast\(\((.*)\) as binary\)\) > (\d+)$`)
	fakeLoadFile = regexp.MustCompile(`load_file\(0x([0-9a-f]*)\)`)
)

// FakeTarget is an in-memory injection point speaking the built-in MySQL
// dialect. It evaluates the fragments the engine renders against a table
// of query results, so extraction can be tested without a database.
type FakeTarget struct {
	// Columns is the column count of the vulnerable query. 0 disables
	// union injection.
	Columns int
	// Visible lists the 1-based columns the page reflects.
	Visible []int
	// Reflect caps the characters each reflected column shows. 0 = no cap.
	Reflect int
	// Error enables extractvalue error reflection.
	Error bool
	// Blind enables the boolean page oracle.
	Blind bool
	// Time enables the sleep oracle. Delays are reported, not slept.
	Time bool
	// SyntaxErrors shows the MySQL syntax error page for fragments that
	// are not a query.
	SyntaxErrors bool

	mu      sync.Mutex
	values  map[string]string
	files   map[string]string
	queries []string
	hook    func(query string) error
}

// NewFakeTarget returns an empty target with every strategy disabled.
func NewFakeTarget() *FakeTarget {
	return &FakeTarget{values: make(map[string]string), files: make(map[string]string)}
}

// Set makes query evaluate to value.
func (f *FakeTarget) Set(query, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[query] = value
}

// OnProbe installs a hook called before every probe; a non-nil error is
// returned as a transport failure.
func (f *FakeTarget) OnProbe(hook func(query string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hook = hook
}

// Queries returns every fragment probed so far.
func (f *FakeTarget) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.queries...)
}

// Calls returns the number of probes.
func (f *FakeTarget) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

// File returns what a union file write stored at path.
func (f *FakeTarget) File(path string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.files[path]
	return c, ok
}

// Probe implements oracle.Prober.
func (f *FakeTarget) Probe(ctx context.Context, q string) (*oracle.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.queries = append(f.queries, q)
	hook := f.hook
	f.mu.Unlock()
	if hook != nil {
		if err := hook(q); err != nil {
			return nil, err
		}
	}

	switch {
	case strings.HasPrefix(q, "union select "):
		return f.union(strings.TrimPrefix(q, "union select ")), nil
	case f.Error && fakeXPath.MatchString(q):
		inner := fakeXPath.FindStringSubmatch(q)[1]
		msg := ":" + f.eval(inner)
		if utf8.RuneCountInString(msg) > 32 {
			msg = string([]rune(msg)[:32])
		}
		return page(500, "<p>XPATH syntax error: '"+msg+"'</p>"), nil
	case fakeTime.MatchString(q):
		m := fakeTime.FindStringSubmatch(q)
		resp := page(200, PageTrue)
		if f.Time && f.holds(m[1]) {
			secs, _ := strconv.Atoi(m[2])
			resp.Elapsed = time.Duration(secs) * time.Second
		}
		resp.Elapsed += 5 * time.Millisecond
		return resp, nil
	case strings.HasPrefix(q, "and "):
		if f.Blind && !f.holds(strings.TrimPrefix(q, "and ")) {
			return page(200, PageFalse), nil
		}
		return page(200, PageTrue), nil
	case f.SyntaxErrors:
		return page(500, "<p>You have an error in your SQL syntax; check the manual near '"+q+"'</p>"), nil
	}
	return page(200, PageTrue), nil
}

func page(status int, body string) *oracle.Response {
	return &oracle.Response{Status: status, Body: []byte(body)}
}

func (f *FakeTarget) union(rest string) *oracle.Response {
	if f.Columns == 0 {
		return page(500, "<p>You have an error in your SQL syntax</p>")
	}
	var outfile string
	if m := fakeOutfile.FindStringSubmatch(rest); m != nil {
		outfile = m[1]
		rest = rest[:len(rest)-len(m[0])]
	}
	items := splitTopLevel(rest)
	if len(items) != f.Columns {
		return page(500, "<p>The used SELECT statements have a different number of columns</p>")
	}

	if outfile != "" {
		for _, it := range items {
			if m := fakeContent.FindStringSubmatch(it); m != nil {
				b, _ := hex.DecodeString(m[1])
				f.mu.Lock()
				f.files[outfile] = string(b)
				f.mu.Unlock()
			}
		}
		return page(200, PageTrue)
	}

	var b strings.Builder
	b.WriteString("<html>\n<h1>Products</h1>\n<tr>")
	for _, col := range f.Visible {
		if col < 1 || col > len(items) {
			continue
		}
		out := f.item(items[col-1])
		if f.Reflect > 0 && utf8.RuneCountInString(out) > f.Reflect {
			out = string([]rune(out)[:f.Reflect])
		}
		b.WriteString("<td>" + out + "</td>")
	}
	b.WriteString("</tr>\n</html>")
	return page(200, b.String())
}

func (f *FakeTarget) item(it string) string {
	if m := fakeCapacity.FindStringSubmatch(it); m != nil {
		return "SqLi" + m[1] + strings.Repeat("#", 65536)
	}
	if m := fakeContent.FindStringSubmatch(it); m != nil {
		b, _ := hex.DecodeString(m[1])
		return string(b)
	}
	return f.eval(it)
}

// eval returns the value of a scalar expression; unknown queries read as
// NULL, shown as nothing.
func (f *FakeTarget) eval(expr string) string {
	v, _ := f.value(expr)
	return v
}

func (f *FakeTarget) value(expr string) (string, bool) {
	if m := fakeWindow.FindStringSubmatch(expr); m != nil {
		inner, ok := f.value(m[1])
		if !ok {
			return "", false
		}
		start, _ := strconv.Atoi(m[2])
		n, _ := strconv.Atoi(m[3])
		r := []rune(inner)
		lo := min(max(start-1, 0), len(r))
		hi := min(lo+n, len(r))
		return "SqLi" + string(r[lo:hi]), true
	}
	if fakeMarker.MatchString(expr) {
		return expr, true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if v, ok := f.values[expr]; ok {
		return v, true
	}
	// files written through the union strategy read back with load_file
	if m := fakeLoadFile.FindStringSubmatch(expr); m != nil {
		path, _ := hex.DecodeString(m[1])
		if c, ok := f.files[string(path)]; ok {
			return c + dialect.DefaultAtoms[dialect.TrailSQL], true
		}
	}
	return "", false
}

var fakeTruths = map[string]bool{"0 = 0": true, "'a' = 'a'": true, "1 between 0 and 2": true}

// holds evaluates a test. Bit and length checks read bytes, as the
// binary casts of the dialect do.
func (f *FakeTarget) holds(cond string) bool {
	if fakeTruths[cond] {
		return true
	}
	if m := fakeBit.FindStringSubmatch(cond); m != nil {
		v, ok := f.value(m[1])
		idx, _ := strconv.Atoi(m[2])
		mask, _ := strconv.Atoi(m[3])
		if !ok || idx < 1 || idx > len(v) {
			return false
		}
		return int(v[idx-1])&mask != 0
	}
	if m := fakeLength.FindStringSubmatch(cond); m != nil {
		v, ok := f.value(m[1])
		n, _ := strconv.Atoi(m[2])
		return ok && len(v) > n
	}
	return false
}

// splitTopLevel splits a select list on commas outside parentheses and
// quotes.
func splitTopLevel(s string) []string {
	var (
		out   []string
		depth int
		quote bool
		start int
	)
	for i := 0; i < len(s); i++ {
		switch c := s[i]; {
		case c == '\'':
			quote = !quote
		case quote:
		case c == '(':
			depth++
		case c == ')':
			depth--
		case c == ',' && depth == 0:
			out = append(out, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	return append(out, strings.TrimSpace(s[start:]))
}

// Table is a table of the fake schema.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]string
}

// Database is a database of the fake schema.
type Database struct {
	Name   string
	Tables []Table
}

// Seed renders the listing queries of b for schema and stores their
// results, encoded the way the dialect templates would produce them.
func (f *FakeTarget) Seed(b *payload.Builder, schema []Database) error {
	enc := func(pairs [][2]string) string {
		var rows []string
		for _, p := range pairs {
			rows = append(rows, b.Atom(dialect.EncloseValueSQL)+p[0]+b.Atom(dialect.SeparatorQteSQL)+p[1]+b.Atom(dialect.EncloseValueSQL))
		}
		return strings.Join(rows, b.Atom(dialect.SeparatorRowSQL)) + b.Atom(dialect.TrailSQL)
	}

	var dbs [][2]string
	for _, db := range schema {
		dbs = append(dbs, [2]string{db.Name, strconv.Itoa(len(db.Tables))})

		var tables [][2]string
		for _, t := range db.Tables {
			tables = append(tables, [2]string{t.Name, strconv.Itoa(len(t.Rows))})

			var cols [][2]string
			for _, c := range t.Columns {
				cols = append(cols, [2]string{c, "0"})
			}
			q, err := b.Columns(db.Name, t.Name, 0)
			if err != nil {
				return err
			}
			f.Set(q, enc(cols))

			counts := make(map[string]int)
			var order []string
			for _, r := range t.Rows {
				key := strings.Join(r, b.Atom(dialect.SeparatorCellSQL))
				if counts[key] == 0 {
					order = append(order, key)
				}
				counts[key]++
			}
			var rows [][2]string
			for _, k := range order {
				rows = append(rows, [2]string{k, strconv.Itoa(counts[k])})
			}
			q, err = b.Rows(db.Name, t.Name, t.Columns, 0)
			if err != nil {
				return err
			}
			f.Set(q, enc(rows))
		}
		sort.Slice(tables, func(i, j int) bool { return tables[i][0] < tables[j][0] })
		q, err := b.Tables(db.Name, 0)
		if err != nil {
			return err
		}
		f.Set(q, enc(tables))
	}
	sort.Slice(dbs, func(i, j int) bool { return dbs[i][0] < dbs[j][0] })
	q, err := b.Databases(0)
	if err != nil {
		return err
	}
	f.Set(q, enc(dbs))
	return nil
}

// SeedInfo stores the banner returned by the info query.
func (f *FakeTarget) SeedInfo(b *payload.Builder, version, database, user string) error {
	q, err := b.Info()
	if err != nil {
		return err
	}
	cell := b.Atom(dialect.SeparatorCellSQL)
	f.Set(q, version+cell+database+cell+user+b.Atom(dialect.TrailSQL))
	return nil
}

// SeedFile stores content for the file read query of path and grants or
// denies the file privilege.
func (f *FakeTarget) SeedFile(b *payload.Builder, path, content string, privileged bool) error {
	q, err := b.FileRead(path)
	if err != nil {
		return err
	}
	f.Set(q, content+b.Atom(dialect.TrailSQL))
	priv, err := b.Privilege()
	if err != nil {
		return err
	}
	f.Set(priv, fmt.Sprint(privileged)+b.Atom(dialect.TrailSQL))
	return nil
}
