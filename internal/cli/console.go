package cli

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/0x6d61/sqlsiphon/internal/engine"
	"github.com/0x6d61/sqlsiphon/internal/strategy"
)

// console prints extraction progress as it happens. Rows are printed only
// when verbose.
type console struct {
	mu      sync.Mutex
	w       io.Writer
	verbose int
}

func newConsole(w io.Writer, verbose int) *console {
	return &console{w: w, verbose: verbose}
}

func (c *console) printf(format string, args ...any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprintf(c.w, format, args...)
}

func (c *console) OnStrategySelected(st strategy.Strategy) {
	c.printf("[+] strategy: %s\n", st)
}

func (c *console) OnInfo(info engine.Info) {
	c.printf("[+] version: %s\n[+] database: %s\n[+] user: %s\n", info.Version, info.Database, info.User)
}

func (c *console) OnDatabaseFound(db engine.Database) {
	c.printf("[+] database: %s (%d tables)\n", db.Name, db.TableCount)
}

func (c *console) OnTableFound(t engine.Table) {
	c.printf("[+] table: %s.%s (%d rows)\n", t.Database, t.Name, t.RowCount)
}

func (c *console) OnColumnFound(col engine.Column) {
	c.printf("[+] column: %s.%s.%s\n", col.Database, col.Table, col.Name)
}

func (c *console) OnRowValue(row engine.Row) {
	if c.verbose == 0 {
		return
	}
	c.printf("[+] row %s.%s: %s\n", row.Database, row.Table, strings.Join(row.Values, " | "))
}

func (c *console) OnError(err error) {
	c.printf("[-] %v\n", err)
}
