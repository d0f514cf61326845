package engine

import (
	"context"
	"iter"
	"slices"

	"github.com/0x6d61/sqlsiphon/internal/strategy"
)

// Dump streams the rows of every table, up to Config.Workers tables at a
// time. columns restricts the dump to the named columns; by default every
// column is read. A failing table yields a *TableError and the dump goes
// on with the others. Rows of different tables interleave. The time
// strategy dumps one table at a time.
func (in *Injector) Dump(ctx context.Context, tables []Table, columns ...string) iter.Seq2[Row, error] {
	return func(yield func(Row, error) bool) {
		base, err := in.current()
		if err != nil {
			yield(Row{}, err)
			return
		}
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		workers := in.cfg.Workers
		if base.Strategy.Kind == strategy.Time {
			// concurrent delays would read as true
			workers = 1
		}
		pool := newWorkerPool(workers, in.logger)
		pool.start(ctx, func(ctx context.Context, t Table, send func(dumpResult) bool) {
			in.dumpTable(ctx, in.fork(base), t, columns, send)
		})
		go func() {
			defer pool.close()
			for _, t := range tables {
				if !pool.submit(ctx, t) {
					return
				}
			}
		}()

		for res := range pool.results {
			if !yield(res.row, res.err) {
				cancel()
				for range pool.results {
				}
				return
			}
		}
	}
}

// dumpTable reads the columns of t when none are given, then its rows.
func (in *Injector) dumpTable(ctx context.Context, s *Session, t Table, columns []string, send func(dumpResult) bool) {
	fail := func(err error) {
		send(dumpResult{err: &TableError{Database: t.Database, Table: t.Name, Err: err}})
	}

	if len(columns) == 0 {
		for c, err := range in.listColumns(ctx, s, t) {
			if err != nil {
				fail(err)
				return
			}
			columns = append(columns, c.Name)
		}
		if len(columns) == 0 {
			in.logger.Info("table has no columns", "table", t.Database+"."+t.Name)
			return
		}
	} else {
		columns = slices.Clone(columns)
	}

	in.logger.Info("dumping table", "table", t.Database+"."+t.Name, "columns", len(columns))
	for r, err := range in.readRows(ctx, s, t, columns) {
		if err != nil {
			fail(err)
			return
		}
		if !send(dumpResult{row: r}) {
			return
		}
	}
}

func (in *Injector) fork(s *Session) *Session {
	in.mu.Lock()
	defer in.mu.Unlock()
	return s.Fork()
}
