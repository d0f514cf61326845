package report

import (
	"sync"

	"github.com/0x6d61/sqlsiphon/internal/engine"
	"github.com/0x6d61/sqlsiphon/internal/strategy"
)

// Collector is an engine.Observer that gathers the events of a run into
// a Result.
type Collector struct {
	mu     sync.Mutex
	result Result
}

var _ engine.Observer = (*Collector)(nil)

// NewCollector returns a collector for target.
func NewCollector(target string) *Collector {
	return &Collector{result: Result{Target: target}}
}

// Result returns a copy of what was collected so far.
func (c *Collector) Result() *Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.result
	return &r
}

// AddFile records a file read outside the observer events.
func (c *Collector) AddFile(path, content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.Files = append(c.result.Files, File{Path: path, Content: content})
}

func (c *Collector) OnInfo(info engine.Info) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.Info = &info
}

func (c *Collector) OnDatabaseFound(db engine.Database) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.Databases = append(c.result.Databases, db)
}

func (c *Collector) OnTableFound(t engine.Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.Tables = append(c.result.Tables, t)
}

func (c *Collector) OnColumnFound(col engine.Column) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.Columns = append(c.result.Columns, col)
}

func (c *Collector) OnRowValue(row engine.Row) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.Rows = append(c.result.Rows, row)
}

func (c *Collector) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.Errors = append(c.result.Errors, err)
}

func (c *Collector) OnStrategySelected(st strategy.Strategy) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.result.Strategy = st.String()
}
