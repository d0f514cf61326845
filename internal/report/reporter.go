// Package report renders what an extraction run recovered.
package report

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/0x6d61/sqlsiphon/internal/engine"
)

// Reporter generates output in a specific format.
type Reporter interface {
	// Format returns the format name (e.g., "text", "json").
	Format() string

	// Generate writes the formatted result to w.
	Generate(ctx context.Context, result *Result, w io.Writer) error
}

// File is a file read from the database host.
type File struct {
	Path    string
	Content string
}

// Result is what one run recovered from a target.
type Result struct {
	Target   string
	Vendor   string
	Strategy string
	Session  string

	Info      *engine.Info
	Databases []engine.Database
	Tables    []engine.Table
	Columns   []engine.Column
	Rows      []engine.Row
	Files     []File
	Errors    []error

	StartTime    time.Time
	EndTime      time.Time
	RequestCount int64
}

// TablesOf returns the tables of db in discovery order.
func (r *Result) TablesOf(db string) []engine.Table {
	var out []engine.Table
	for _, t := range r.Tables {
		if t.Database == db {
			out = append(out, t)
		}
	}
	return out
}

// ColumnsOf returns the column names of a table. Tables read without a
// column listing take the columns of their first row.
func (r *Result) ColumnsOf(db, table string) []string {
	var out []string
	for _, c := range r.Columns {
		if c.Database == db && c.Table == table {
			out = append(out, c.Name)
		}
	}
	if len(out) == 0 {
		for _, row := range r.Rows {
			if row.Database == db && row.Table == table {
				return row.Columns
			}
		}
	}
	return out
}

// RowsOf returns the rows of a table.
func (r *Result) RowsOf(db, table string) []engine.Row {
	var out []engine.Row
	for _, row := range r.Rows {
		if row.Database == db && row.Table == table {
			out = append(out, row)
		}
	}
	return out
}

// databaseNames lists the databases of the result, adding those only
// known through their tables or rows.
func (r *Result) databaseNames() []string {
	seen := make(map[string]bool)
	var names []string
	add := func(n string) {
		if n != "" && !seen[n] {
			seen[n] = true
			names = append(names, n)
		}
	}
	for _, db := range r.Databases {
		add(db.Name)
	}
	for _, t := range r.Tables {
		add(t.Database)
	}
	for _, row := range r.Rows {
		add(row.Database)
	}
	return names
}

// tableNames lists the tables of db found in the listing or the rows.
func (r *Result) tableNames(db string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, t := range r.TablesOf(db) {
		if !seen[t.Name] {
			seen[t.Name] = true
			names = append(names, t.Name)
		}
	}
	for _, row := range r.Rows {
		if row.Database == db && !seen[row.Table] {
			seen[row.Table] = true
			names = append(names, row.Table)
		}
	}
	return names
}

// New creates a reporter by format name ("text" or "json").
// The format name is case-insensitive.
func New(format string) (Reporter, error) {
	switch strings.ToLower(format) {
	case "text":
		return &TextReporter{}, nil
	case "json":
		return &JSONReporter{}, nil
	default:
		return nil, fmt.Errorf("unsupported report format: %q", format)
	}
}
