package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/0x6d61/sqlsiphon/internal/engine"
)

func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Read the version, current database and user of the target",
		Args:  cobra.NoArgs,
		RunE: runCommand(func(ctx context.Context, r *run) error {
			_, err := r.injector.Info(ctx)
			return err
		}),
	}
}

func newDatabasesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "databases",
		Short: "List the databases of the target",
		Args:  cobra.NoArgs,
		RunE: runCommand(func(ctx context.Context, r *run) error {
			for _, err := range r.injector.ListDatabases(ctx) {
				if err != nil {
					return err
				}
			}
			return nil
		}),
	}
}

func newTablesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables of a database",
		Args:  cobra.NoArgs,
	}
	db := cmd.Flags().StringP("db", "D", "", "Database to list (default: current database)")
	cmd.RunE = runCommand(func(ctx context.Context, r *run) error {
		name, err := currentDatabase(ctx, r, *db)
		if err != nil {
			return err
		}
		_, err = tables(ctx, r, name)
		return err
	})
	return cmd
}

func newColumnsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "columns",
		Short: "List the columns of a table",
		Args:  cobra.NoArgs,
	}
	db := cmd.Flags().StringP("db", "D", "", "Database of the table (default: current database)")
	table := cmd.Flags().StringP("table", "T", "", "Table to list")
	_ = cmd.MarkFlagRequired("table")
	cmd.RunE = runCommand(func(ctx context.Context, r *run) error {
		name, err := currentDatabase(ctx, r, *db)
		if err != nil {
			return err
		}
		t := engine.Table{Database: name, Name: *table}
		for _, err := range r.injector.ListColumns(ctx, t) {
			if err != nil {
				return err
			}
		}
		return nil
	})
	return cmd
}

func newDumpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Dump the rows of tables",
		Long: `Dump the rows of the given tables, or of every table of the database
when none are given. Tables are dumped in parallel (see --workers); a table
that fails is reported and the others go on.`,
		Args: cobra.NoArgs,
	}
	db := cmd.Flags().StringP("db", "D", "", "Database to dump (default: current database)")
	tableList := cmd.Flags().StringP("table", "T", "", "Tables to dump, comma-separated (default: all)")
	columnList := cmd.Flags().StringP("columns", "C", "", "Columns to read, comma-separated (default: all)")
	cmd.RunE = runCommand(func(ctx context.Context, r *run) error {
		name, err := currentDatabase(ctx, r, *db)
		if err != nil {
			return err
		}
		var targets []engine.Table
		if names := splitList(*tableList); len(names) > 0 {
			for _, n := range names {
				targets = append(targets, engine.Table{Database: name, Name: n})
			}
		} else if targets, err = tables(ctx, r, name); err != nil {
			return err
		}

		var failed []error
		for _, err := range r.injector.Dump(ctx, targets, splitList(*columnList)...) {
			var tableErr *engine.TableError
			switch {
			case errors.As(err, &tableErr):
				failed = append(failed, err)
			case err != nil:
				return err
			}
		}
		return errors.Join(failed...)
	})
	return cmd
}

func newReadFileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "read-file PATH",
		Short: "Read a file from the database host",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			return runCommand(func(ctx context.Context, r *run) error {
				var content strings.Builder
				var readErr error
				for chunk, err := range r.injector.ReadFile(ctx, path) {
					if err != nil {
						readErr = err
						break
					}
					content.WriteString(chunk)
				}
				if content.Len() > 0 || readErr == nil {
					r.collector.AddFile(path, content.String())
				}
				return readErr
			})(cmd, args)
		},
	}
}

func newWriteFileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "write-file LOCAL REMOTE",
		Short: "Write a local file to the database host through the union strategy",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("reading %s: %w", args[0], err)
			}
			remote := args[1]
			return runCommand(func(ctx context.Context, r *run) error {
				if err := r.injector.WriteFile(ctx, remote, string(content)); err != nil {
					return err
				}
				fmt.Fprintf(r.stderr, "[+] %d bytes written to %s\n", len(content), remote)
				return nil
			})(cmd, args)
		},
	}
}

// currentDatabase returns name, or the current database of the target
// when name is empty.
func currentDatabase(ctx context.Context, r *run, name string) (string, error) {
	if name != "" {
		return name, nil
	}
	info, err := r.injector.Info(ctx)
	if err != nil {
		return "", err
	}
	if info.Database == "" {
		return "", fmt.Errorf("current database is unknown, use --db")
	}
	return info.Database, nil
}

// tables lists the tables of db, with the table count read from the
// database listing so a cut listing is resumed.
func tables(ctx context.Context, r *run, db string) ([]engine.Table, error) {
	target := engine.Database{Name: db}
	for d, err := range r.injector.ListDatabases(ctx) {
		if err != nil {
			return nil, err
		}
		if d.Name == db {
			target = d
			break
		}
	}
	var out []engine.Table
	for t, err := range r.injector.ListTables(ctx, target) {
		if err != nil {
			return out, err
		}
		out = append(out, t)
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
