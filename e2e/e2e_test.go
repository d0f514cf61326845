//go:build e2e

// Package e2e contains end-to-end tests that require the vulnerable test
// application of testenv/vulnapp running against real MySQL and
// PostgreSQL servers.
//
// Run with:
//
//	MYSQL_DSN=... POSTGRES_DSN=... go run ./testenv/vulnapp
//	go test -v -tags e2e -count=1 -timeout 300s ./e2e/...
package e2e_test

import (
	"context"
	"net/http"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/0x6d61/sqlsiphon/internal/engine"
	"github.com/0x6d61/sqlsiphon/internal/strategy"
	"github.com/0x6d61/sqlsiphon/internal/transport"
)

const defaultE2EURL = "http://localhost:18080"

// e2eBaseURL returns the base URL of the test environment.
// If the server is unreachable, the test is skipped automatically.
func e2eBaseURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("SQLSIPHON_E2E_URL")
	if url == "" {
		url = defaultE2EURL
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url+"/health", nil)
	if err != nil {
		t.Skipf("cannot build health-check request for %s: %v", url, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Skipf("E2E server not available at %s: %v", url, err)
	}
	resp.Body.Close()
	return url
}

// configure returns an injector configured against the first parameter
// of target.
func configure(t *testing.T, target transport.Target, vendor string, kinds ...strategy.Kind) *engine.Injector {
	t.Helper()
	client, err := transport.NewClient(transport.ClientOptions{
		Timeout:         30 * time.Second,
		FollowRedirects: true,
	})
	if err != nil {
		t.Fatalf("failed to create transport client: %v", err)
	}
	params := transport.ParseParameters(target.URL, target.Body, target.ContentType)
	param, ok := transport.Find(params, "")
	if !ok {
		t.Fatalf("no parameter in %s", target.URL)
	}

	cfg := engine.DefaultConfig()
	cfg.SleepTime = 1
	if len(kinds) > 0 {
		cfg.Strategies = kinds
	}
	in, err := engine.New(transport.NewProber(client, target, param, transport.DefaultBoundary(param.Type)), engine.WithConfig(cfg))
	if err != nil {
		t.Fatalf("engine.New failed: %v", err)
	}
	t.Cleanup(func() { in.Close() })

	if _, err := in.ConfigureTarget(context.Background(), target.Endpoint(param.Name), vendor); err != nil {
		t.Fatalf("ConfigureTarget failed: %v", err)
	}
	return in
}

func get(url string) transport.Target {
	return transport.Target{URL: url, Method: http.MethodGet}
}

// schema reads the banner and checks the current database is listed.
func schema(t *testing.T, in *engine.Injector) {
	t.Helper()
	ctx := context.Background()
	info, err := in.Info(ctx)
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if info.Version == "" || info.Database == "" {
		t.Fatalf("Info = %+v", info)
	}
	var names []string
	for db, err := range in.ListDatabases(ctx) {
		if err != nil {
			t.Fatalf("ListDatabases failed after %v: %v", names, err)
		}
		names = append(names, db.Name)
	}
	if !slices.Contains(names, info.Database) {
		t.Errorf("databases %v do not list current database %q", names, info.Database)
	}
}

func TestE2E_MySQL_Union(t *testing.T) {
	base := e2eBaseURL(t)
	in := configure(t, get(base+"/mysql/product?id=1"), "")

	if in.Session().Dialect.Name != "MySQL" {
		t.Errorf("vendor = %q, want MySQL", in.Session().Dialect.Name)
	}
	if k := in.Session().Strategy.Kind; k != strategy.Normal {
		t.Errorf("strategy = %s, want normal", k)
	}
	schema(t, in)
}

func TestE2E_MySQL_Error(t *testing.T) {
	base := e2eBaseURL(t)
	in := configure(t, get(base+"/mysql/user?id=1"), "mysql", strategy.Error)
	schema(t, in)
}

func TestE2E_MySQL_Dump(t *testing.T) {
	base := e2eBaseURL(t)
	in := configure(t, get(base+"/mysql/search?q=widget"), "mysql")
	ctx := context.Background()

	info, err := in.Info(ctx)
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	users := engine.Table{Database: info.Database, Name: "users"}
	n := 0
	for row, err := range in.Dump(ctx, []engine.Table{users}, "username") {
		if err != nil {
			t.Fatalf("Dump failed: %v", err)
		}
		if row.Values[0] == "" {
			t.Errorf("empty username in %+v", row)
		}
		n++
	}
	if n == 0 {
		t.Error("no users dumped")
	}
}

func TestE2E_MySQL_Blind(t *testing.T) {
	base := e2eBaseURL(t)
	in := configure(t, get(base+"/mysql/item?id=1"), "mysql", strategy.Blind)

	info, err := in.Info(context.Background())
	if err != nil {
		t.Fatalf("Info failed: %v", err)
	}
	if !strings.Contains(info.Version, ".") {
		t.Errorf("version = %q", info.Version)
	}
}

func TestE2E_MySQL_Time(t *testing.T) {
	base := e2eBaseURL(t)
	in := configure(t, get(base+"/mysql/sleep?id=1"), "mysql", strategy.Time)

	if k := in.Session().Strategy.Kind; k != strategy.Time {
		t.Errorf("strategy = %s, want time", k)
	}
}

func TestE2E_MySQL_Login(t *testing.T) {
	base := e2eBaseURL(t)
	target := transport.Target{
		URL:         base + "/mysql/login",
		Method:      http.MethodPost,
		Body:        "username=admin&password=x",
		ContentType: "application/x-www-form-urlencoded",
	}
	in := configure(t, target, "mysql", strategy.Blind)

	if _, err := in.Info(context.Background()); err != nil {
		t.Fatalf("Info failed: %v", err)
	}
}

func TestE2E_PostgreSQL_Union(t *testing.T) {
	base := e2eBaseURL(t)
	in := configure(t, get(base+"/pg/product?id=1"), "")

	if in.Session().Dialect.Name != "PostgreSQL" {
		t.Errorf("vendor = %q, want PostgreSQL", in.Session().Dialect.Name)
	}
	schema(t, in)
}

func TestE2E_PostgreSQL_Error(t *testing.T) {
	base := e2eBaseURL(t)
	in := configure(t, get(base+"/pg/user?id=1"), "postgresql", strategy.Error)
	schema(t, in)
}

func TestE2E_PostgreSQL_Time(t *testing.T) {
	base := e2eBaseURL(t)
	in := configure(t, get(base+"/pg/sleep?id=1"), "postgresql", strategy.Time)

	if k := in.Session().Strategy.Kind; k != strategy.Time {
		t.Errorf("strategy = %s, want time", k)
	}
}
