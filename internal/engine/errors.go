package engine

import (
	"errors"
	"fmt"

	"github.com/0x6d61/sqlsiphon/internal/extract"
	"github.com/0x6d61/sqlsiphon/internal/strategy"
)

// ErrNotExploitable means no strategy works on the endpoint. It is
// terminal for the endpoint.
var ErrNotExploitable = strategy.ErrNotExploitable

// The errors below fail the same way on every attempt and are never
// retried.
var (
	// ErrNotConfigured is returned by operations called before
	// ConfigureTarget.
	ErrNotConfigured = extract.Permanent(errors.New("engine: no target configured"))
	// ErrTruncated means a value ended without its trail, or a listing
	// stopped making progress before its last row.
	ErrTruncated = extract.Permanent(errors.New("engine: result truncated"))
	// ErrNoPrivilege means the database user may not access files.
	ErrNoPrivilege = extract.Permanent(errors.New("engine: no file privilege"))
	// ErrWriteUnverified means a written file did not read back as written.
	ErrWriteUnverified = extract.Permanent(errors.New("engine: written file does not match"))
	// ErrNeedsNormal is returned by file writes under any other strategy.
	ErrNeedsNormal = extract.Permanent(errors.New("engine: operation needs the normal strategy"))
)

// PartialError ends a stream that stopped early. The Emitted values
// yielded before it are valid.
type PartialError struct {
	Op      string
	Emitted int
	Err     error
}

func (e *PartialError) Error() string {
	return fmt.Sprintf("%s: partial result after %d values: %v", e.Op, e.Emitted, e.Err)
}

func (e *PartialError) Unwrap() error { return e.Err }

// TableError reports the failure of one table of a dump. The other tables
// are unaffected.
type TableError struct {
	Database string
	Table    string
	Err      error
}

func (e *TableError) Error() string {
	return fmt.Sprintf("table %s.%s: %v", e.Database, e.Table, e.Err)
}

func (e *TableError) Unwrap() error { return e.Err }
