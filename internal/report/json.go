package report

import (
	"context"
	"encoding/json"
	"io"
	"time"
)

// JSONReporter outputs structured JSON.
type JSONReporter struct {
	// Compact outputs single-line JSON when true (no indentation).
	Compact bool
}

// Format returns "json".
func (r *JSONReporter) Format() string {
	return "json"
}

// jsonOutput is the top-level JSON structure.
type jsonOutput struct {
	SchemaVersion string         `json:"schema_version"`
	Tool          string         `json:"tool"`
	Target        string         `json:"target"`
	DBMS          string         `json:"dbms,omitempty"`
	Strategy      string         `json:"strategy,omitempty"`
	Session       string         `json:"session,omitempty"`
	Run           jsonRun        `json:"run"`
	Info          *jsonInfo      `json:"info,omitempty"`
	Databases     []jsonDatabase `json:"databases"`
	Files         []jsonFile     `json:"files,omitempty"`
	Summary       jsonSummary    `json:"summary"`
	Errors        []string       `json:"errors,omitempty"`
}

// jsonRun represents run metadata in JSON.
type jsonRun struct {
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationSeconds float64   `json:"duration_seconds"`
	TotalRequests   int64     `json:"total_requests"`
}

type jsonInfo struct {
	Version  string `json:"version"`
	Database string `json:"database"`
	User     string `json:"user"`
}

type jsonDatabase struct {
	Name       string      `json:"name"`
	TableCount int         `json:"table_count"`
	Tables     []jsonTable `json:"tables,omitempty"`
}

type jsonTable struct {
	Name     string    `json:"name"`
	RowCount int       `json:"row_count"`
	Columns  []string  `json:"columns,omitempty"`
	Rows     []jsonRow `json:"rows,omitempty"`
}

type jsonRow struct {
	Values []string `json:"values"`
	Count  int      `json:"count"`
}

type jsonFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// jsonSummary represents the summary in JSON.
type jsonSummary struct {
	Databases int `json:"databases"`
	Tables    int `json:"tables"`
	Rows      int `json:"rows"`
}

// Generate writes the result to w as JSON.
func (r *JSONReporter) Generate(ctx context.Context, result *Result, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	output := jsonOutput{
		SchemaVersion: "1.0",
		Tool:          "sqlsiphon",
		Target:        result.Target,
		DBMS:          result.Vendor,
		Strategy:      result.Strategy,
		Session:       result.Session,
		Run: jsonRun{
			StartTime:       result.StartTime,
			EndTime:         result.EndTime,
			DurationSeconds: result.EndTime.Sub(result.StartTime).Seconds(),
			TotalRequests:   result.RequestCount,
		},
		Databases: []jsonDatabase{},
		Summary: jsonSummary{
			Databases: len(result.databaseNames()),
			Tables:    countTables(result),
			Rows:      countRows(result),
		},
	}

	if info := result.Info; info != nil {
		output.Info = &jsonInfo{Version: info.Version, Database: info.Database, User: info.User}
	}

	counts := make(map[string]int)
	for _, db := range result.Databases {
		counts[db.Name] = db.TableCount
	}
	for _, name := range result.databaseNames() {
		db := jsonDatabase{Name: name, TableCount: counts[name]}
		rowCounts := make(map[string]int)
		for _, t := range result.TablesOf(name) {
			rowCounts[t.Name] = t.RowCount
		}
		for _, table := range result.tableNames(name) {
			t := jsonTable{
				Name:     table,
				RowCount: rowCounts[table],
				Columns:  result.ColumnsOf(name, table),
			}
			for _, row := range result.RowsOf(name, table) {
				t.Rows = append(t.Rows, jsonRow{Values: row.Values, Count: row.Count})
			}
			db.Tables = append(db.Tables, t)
		}
		output.Databases = append(output.Databases, db)
	}

	for _, f := range result.Files {
		output.Files = append(output.Files, jsonFile{Path: f.Path, Content: f.Content})
	}

	if len(result.Errors) > 0 {
		output.Errors = make([]string, len(result.Errors))
		for i, e := range result.Errors {
			output.Errors[i] = e.Error()
		}
	}

	enc := json.NewEncoder(w)
	if !r.Compact {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(output)
}
