package engine

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/0x6d61/sqlsiphon/internal/strategy"
)

// Info is the banner of the target database.
type Info struct {
	Version  string
	Database string
	User     string
}

// Database is a database of the target with its table count.
type Database struct {
	Name       string
	TableCount int
}

// Table is a table with its row count. Counts come from the catalog and
// may be estimates.
type Table struct {
	Database string
	Name     string
	RowCount int
}

// Column is a column of a table.
type Column struct {
	Database string
	Table    string
	Name     string
}

// Row is a distinct row of a table. Count is the number of identical rows;
// NULL cells read as empty strings.
type Row struct {
	Database string
	Table    string
	Columns  []string
	Values   []string
	Count    int
}

// Observer receives extraction events. Calls are made in order on one
// goroutine, never on the extraction path: a slow observer delays events,
// not extraction.
type Observer interface {
	OnInfo(Info)
	OnDatabaseFound(Database)
	OnTableFound(Table)
	OnColumnFound(Column)
	OnRowValue(Row)
	OnError(error)
	OnStrategySelected(strategy.Strategy)
}

// NopObserver ignores every event. Embed it to implement part of Observer.
type NopObserver struct{}

func (NopObserver) OnInfo(Info)                          {}
func (NopObserver) OnDatabaseFound(Database)             {}
func (NopObserver) OnTableFound(Table)                   {}
func (NopObserver) OnColumnFound(Column)                 {}
func (NopObserver) OnRowValue(Row)                       {}
func (NopObserver) OnError(error)                        {}
func (NopObserver) OnStrategySelected(strategy.Strategy) {}

// queue runs callbacks in order on its own goroutine. It is unbounded so
// push never blocks.
type queue struct {
	logger *slog.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	items  []func()
	closed bool
	done   chan struct{}
}

func newQueue(logger *slog.Logger) *queue {
	q := &queue{logger: logger, done: make(chan struct{})}
	q.cond = sync.NewCond(&q.mu)
	go q.run()
	return q
}

// push queues fn. Calls after close are dropped.
func (q *queue) push(fn func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.items = append(q.items, fn)
	q.cond.Signal()
}

func (q *queue) run() {
	defer close(q.done)
	for {
		q.mu.Lock()
		for len(q.items) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		fn := q.items[0]
		q.items[0] = nil
		q.items = q.items[1:]
		q.mu.Unlock()

		q.call(fn)
	}
}

// call runs fn, recovering panics so one bad observer does not stop the
// others.
func (q *queue) call(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("observer recovered from panic", "panic", fmt.Sprintf("%v", r))
		}
	}()
	fn()
}

// close runs the queued callbacks and stops the queue.
func (q *queue) close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	<-q.done
}
