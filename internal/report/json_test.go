package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func generateJSON(t *testing.T, r *JSONReporter, result *Result) (jsonOutput, string) {
	t.Helper()
	var buf bytes.Buffer
	if err := r.Generate(context.Background(), result, &buf); err != nil {
		t.Fatalf("Generate() error: %v", err)
	}
	var output jsonOutput
	if err := json.Unmarshal(buf.Bytes(), &output); err != nil {
		t.Fatalf("output is not valid JSON: %v\noutput:\n%s", err, buf.String())
	}
	return output, buf.String()
}

func TestJSONReporter_Format(t *testing.T) {
	r := &JSONReporter{}
	if got := r.Format(); got != "json" {
		t.Errorf("Format() = %q, want %q", got, "json")
	}
}

func TestJSONReporter_Generate_SchemaVersion(t *testing.T) {
	output, _ := generateJSON(t, &JSONReporter{}, newTestResult())

	if output.SchemaVersion != "1.0" {
		t.Errorf("schema_version = %q, want %q", output.SchemaVersion, "1.0")
	}
	if output.Tool != "sqlsiphon" {
		t.Errorf("tool = %q, want %q", output.Tool, "sqlsiphon")
	}
	if output.DBMS != "MySQL" || output.Strategy != "normal" {
		t.Errorf("dbms = %q strategy = %q", output.DBMS, output.Strategy)
	}
}

func TestJSONReporter_Generate_Schema(t *testing.T) {
	output, _ := generateJSON(t, &JSONReporter{}, newTestResult())

	if len(output.Databases) != 2 {
		t.Fatalf("got %d databases, want 2", len(output.Databases))
	}
	shop := output.Databases[1]
	if shop.Name != "shop" || shop.TableCount != 2 {
		t.Errorf("databases[1] = %+v", shop)
	}
	if len(shop.Tables) != 2 {
		t.Fatalf("got %d tables, want 2", len(shop.Tables))
	}
	users := shop.Tables[1]
	if users.Name != "users" || users.RowCount != 3 {
		t.Errorf("tables[1] = %+v", users)
	}
	if strings.Join(users.Columns, ",") != "id,name,password" {
		t.Errorf("columns = %v", users.Columns)
	}
	if len(users.Rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(users.Rows))
	}
	if users.Rows[1].Values[2] != "hunter2" || users.Rows[1].Count != 2 {
		t.Errorf("rows[1] = %+v", users.Rows[1])
	}
	if len(shop.Tables[0].Rows) != 0 {
		t.Errorf("products rows = %v, want none", shop.Tables[0].Rows)
	}
}

func TestJSONReporter_Generate_Info(t *testing.T) {
	output, _ := generateJSON(t, &JSONReporter{}, newTestResult())

	if output.Info == nil {
		t.Fatal("info should not be nil")
	}
	if output.Info.Version != "8.0.32" || output.Info.User != "root@localhost" {
		t.Errorf("info = %+v", output.Info)
	}
}

func TestJSONReporter_Generate_Empty(t *testing.T) {
	r := &JSONReporter{}
	var buf bytes.Buffer
	if err := r.Generate(context.Background(), newEmptyResult(), &buf); err != nil {
		t.Fatalf("Generate() error: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(buf.Bytes(), &raw); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
	dbs, ok := raw["databases"].([]any)
	if !ok {
		t.Fatalf("databases should be an empty array, got %v", raw["databases"])
	}
	if len(dbs) != 0 {
		t.Errorf("got %d databases, want 0", len(dbs))
	}
	for _, key := range []string{"dbms", "info", "files", "errors"} {
		if _, ok := raw[key]; ok {
			t.Errorf("%s should be omitted", key)
		}
	}
}

func TestJSONReporter_Generate_Run(t *testing.T) {
	output, _ := generateJSON(t, &JSONReporter{}, newTestResult())

	if output.Run.TotalRequests != 147 {
		t.Errorf("run.total_requests = %d, want 147", output.Run.TotalRequests)
	}
	if output.Run.DurationSeconds < 12.0 || output.Run.DurationSeconds > 13.0 {
		t.Errorf("run.duration_seconds = %v, want ~12.3", output.Run.DurationSeconds)
	}
	if output.Summary.Rows != 3 || output.Summary.Tables != 2 {
		t.Errorf("summary = %+v", output.Summary)
	}
}

func TestJSONReporter_Generate_Files(t *testing.T) {
	output, _ := generateJSON(t, &JSONReporter{}, newTestResult())

	if len(output.Files) != 1 || output.Files[0].Content != "db01\n" {
		t.Errorf("files = %+v", output.Files)
	}
}

func TestJSONReporter_Generate_PrettyPrint(t *testing.T) {
	_, raw := generateJSON(t, &JSONReporter{Compact: false}, newTestResult())
	if !strings.Contains(raw, "\n  ") {
		t.Error("pretty-printed JSON should contain indentation")
	}
}

func TestJSONReporter_Generate_Compact(t *testing.T) {
	_, raw := generateJSON(t, &JSONReporter{Compact: true}, newTestResult())
	if strings.Count(strings.TrimSpace(raw), "\n") != 0 {
		t.Errorf("compact JSON should be a single line, got:\n%s", raw)
	}
}

func TestJSONReporter_Generate_Errors(t *testing.T) {
	result := newEmptyResult()
	result.Errors = []error{errors.New("timeout"), errors.New("connection refused")}

	output, _ := generateJSON(t, &JSONReporter{}, result)
	if len(output.Errors) != 2 {
		t.Fatalf("got %d errors, want 2", len(output.Errors))
	}
	if output.Errors[0] != "timeout" {
		t.Errorf("errors[0] = %q, want %q", output.Errors[0], "timeout")
	}
}

func TestJSONReporter_Generate_ContextCancelled(t *testing.T) {
	r := &JSONReporter{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	if err := r.Generate(ctx, newTestResult(), &buf); err == nil {
		t.Error("Generate() should return error when context is cancelled")
	}
}
