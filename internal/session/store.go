// Package session persists extraction sessions and the records they
// produced, so an interrupted extraction can resume without selecting and
// calibrating its strategy again.
package session

import (
	"context"
	"time"
)

// State is what is needed to resume extraction against one endpoint.
type State struct {
	ID       string `json:"id"`
	Endpoint string `json:"endpoint"`
	Vendor   string `json:"vendor"`
	Strategy string `json:"strategy"`
	// Method is the error method name, for the error strategy.
	Method   string `json:"method,omitempty"`
	Capacity int    `json:"capacity"`

	// Calibration of the union strategy.
	Fields  int    `json:"fields,omitempty"`
	Visible []int  `json:"visible,omitempty"`
	Best    int    `json:"best,omitempty"`
	Query   string `json:"query,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Kind of an extracted record.
type Kind string

const (
	KindInfo     Kind = "info"
	KindDatabase Kind = "database"
	KindTable    Kind = "table"
	KindColumn   Kind = "column"
	KindRow      Kind = "row"
)

// Record is one value extracted during a session.
type Record struct {
	Kind     Kind     `json:"kind"`
	Database string   `json:"database,omitempty"`
	Table    string   `json:"table,omitempty"`
	Value    string   `json:"value"`
	Cells    []string `json:"cells,omitempty"`
	Count    int      `json:"count,omitempty"`
}

// Summary is a lightweight session overview.
type Summary struct {
	ID        string    `json:"id"`
	Endpoint  string    `json:"endpoint"`
	Vendor    string    `json:"vendor"`
	Strategy  string    `json:"strategy"`
	Records   int       `json:"records"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Store persists and retrieves sessions.
type Store interface {
	Save(ctx context.Context, state *State) error
	// Load returns the latest session of endpoint for vendor, any vendor
	// when vendor is empty. It returns (nil, nil) when there is none.
	Load(ctx context.Context, endpoint, vendor string) (*State, error)
	LoadByID(ctx context.Context, id string) (*State, error)
	List(ctx context.Context) ([]*Summary, error)
	Delete(ctx context.Context, id string) error
	Append(ctx context.Context, id string, records ...Record) error
	Records(ctx context.Context, id string) ([]Record, error)
	Close() error
}
