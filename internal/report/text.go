package report

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
)

const (
	doubleLine = "\u2550" // ═
	singleLine = "\u2500" // ─
	lineWidth  = 50
)

// TextReporter outputs plain terminal text.
type TextReporter struct {
	// Verbose controls detail level: 0=rows only, 1=+run info.
	Verbose int
}

// Format returns "text".
func (r *TextReporter) Format() string {
	return "text"
}

// Generate writes the recovered schema, rows and files to w.
func (r *TextReporter) Generate(ctx context.Context, result *Result, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b := &strings.Builder{}
	doubleBar := strings.Repeat(doubleLine, lineWidth)
	singleBar := strings.Repeat(singleLine, lineWidth)

	fmt.Fprintln(b, doubleBar)
	fmt.Fprintln(b, "sqlsiphon - Extraction Results")
	fmt.Fprintln(b, doubleBar)

	fmt.Fprintf(b, "Target:   %s\n", result.Target)
	if result.Vendor != "" {
		fmt.Fprintf(b, "DBMS:     %s\n", result.Vendor)
	}
	if result.Strategy != "" {
		fmt.Fprintf(b, "Strategy: %s\n", result.Strategy)
	}
	if r.Verbose > 0 {
		if result.Session != "" {
			fmt.Fprintf(b, "Session:  %s\n", result.Session)
		}
		duration := result.EndTime.Sub(result.StartTime)
		fmt.Fprintf(b, "Duration: %.1fs\n", duration.Seconds())
		fmt.Fprintf(b, "Requests: %d\n", result.RequestCount)
	}

	if info := result.Info; info != nil {
		fmt.Fprintln(b, singleBar)
		fmt.Fprintf(b, "Version:  %s\n", info.Version)
		fmt.Fprintf(b, "Database: %s\n", info.Database)
		fmt.Fprintf(b, "User:     %s\n", info.User)
	}

	for _, db := range result.databaseNames() {
		fmt.Fprintln(b, singleBar)
		fmt.Fprintf(b, "Database: %s\n", db)
		for _, table := range result.tableNames(db) {
			writeTable(b, result, db, table)
		}
	}

	for _, f := range result.Files {
		fmt.Fprintln(b, singleBar)
		fmt.Fprintf(b, "File: %s (%d bytes)\n", f.Path, len(f.Content))
		b.WriteString(f.Content)
		if !strings.HasSuffix(f.Content, "\n") {
			b.WriteByte('\n')
		}
	}

	if len(result.Errors) > 0 {
		fmt.Fprintln(b, singleBar)
		fmt.Fprintln(b, "Errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(b, "  - %s\n", e.Error())
		}
	}

	fmt.Fprintln(b, doubleBar)
	fmt.Fprintf(b, "Summary: %d database(s), %d table(s), %d row(s)\n",
		len(result.databaseNames()), countTables(result), countRows(result))
	fmt.Fprintln(b, doubleBar)

	_, err := io.WriteString(w, b.String())
	return err
}

// writeTable writes one table: its name, then its rows aligned under the
// column names when rows were read.
func writeTable(b *strings.Builder, result *Result, db, table string) {
	rows := result.RowsOf(db, table)
	columns := result.ColumnsOf(db, table)

	count := ""
	for _, t := range result.TablesOf(db) {
		if t.Name == table {
			count = fmt.Sprintf(" (%d rows)", t.RowCount)
		}
	}
	fmt.Fprintf(b, "  Table: %s%s\n", table, count)
	if len(rows) == 0 {
		if len(columns) > 0 {
			fmt.Fprintf(b, "    Columns: %s\n", strings.Join(columns, ", "))
		}
		return
	}

	tw := tabwriter.NewWriter(b, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "    %s\t\n", strings.Join(columns, "\t"))
	for _, row := range rows {
		line := strings.Join(printable(row.Values), "\t")
		if row.Count > 1 {
			line += "\t(x" + strconv.Itoa(row.Count) + ")"
		}
		fmt.Fprintf(tw, "    %s\t\n", line)
	}
	tw.Flush()
}

// printable quotes values holding control characters.
func printable(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		if strings.ContainsFunc(v, func(r rune) bool { return r < 0x20 || r == 0x7f }) {
			v = strconv.Quote(v)
		}
		out[i] = v
	}
	return out
}

func countTables(result *Result) int {
	n := 0
	for _, db := range result.databaseNames() {
		n += len(result.tableNames(db))
	}
	return n
}

func countRows(result *Result) int {
	n := 0
	for _, row := range result.Rows {
		n += max(row.Count, 1)
	}
	return n
}
