// Package testutil provides test doubles: an in-process fake target for
// the engine and an HTTP server with SQL-injectable pages backed by a
// real SQLite database.
//
// SECURITY NOTE: This package is for testing only. The server splices
// request parameters into SQL on purpose. Pages are served as text/plain
// so reflected values are never rendered as HTML.
package testutil

import (
	"database/sql"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	_ "modernc.org/sqlite"
)

// Users are the rows of the users table of the vulnerable server.
var Users = [][]string{
	{"1", "admin", "s3cr3t"},
	{"2", "alice", "wonderland"},
	{"3", "bob", "hunter2"},
	{"4", "josé", "日本語𝄞"},
}

const seed = `
	CREATE TABLE products (id INTEGER PRIMARY KEY, name TEXT NOT NULL, price REAL);
	INSERT INTO products VALUES (1, 'Widget', 9.5), (2, 'Gadget', 25), (3, 'Gizmo', NULL);
	CREATE TABLE users (id INTEGER PRIMARY KEY, username TEXT, password TEXT);
	INSERT INTO users VALUES (1, 'admin', 's3cr3t'), (2, 'alice', 'wonderland'), (3, 'bob', 'hunter2'), (4, 'josé', '日本語𝄞');
`

// NewVulnServer starts a server over a fresh in-memory database with
// these pages:
//
//	/product?id=1     integer id, rows reflected, errors shown
//	/search?name=...  quoted name, rows reflected, errors shown
//	/item?id=1        integer id, only found (200) or not found (404)
//	/login            POST form, quoted user, rows reflected
//
// The server and the database are closed with the test.
func NewVulnServer(tb testing.TB) *httptest.Server {
	tb.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		tb.Fatalf("open database: %v", err)
	}
	// every connection to ":memory:" is a distinct database
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(seed); err != nil {
		db.Close()
		tb.Fatalf("seed database: %v", err)
	}

	v := &vulnApp{db: db}
	mux := http.NewServeMux()
	mux.HandleFunc("/product", func(w http.ResponseWriter, r *http.Request) {
		v.reflect(w, "SELECT name, price FROM products WHERE id = "+r.URL.Query().Get("id"))
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		v.reflect(w, "SELECT name, price FROM products WHERE name = '"+r.URL.Query().Get("name")+"'")
	})
	mux.HandleFunc("/item", func(w http.ResponseWriter, r *http.Request) {
		v.exists(w, "SELECT id FROM products WHERE id = "+r.URL.Query().Get("id"))
	})
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		v.reflect(w, "SELECT username FROM users WHERE username = '"+r.PostFormValue("user")+"' AND password = 'x'")
	})

	srv := httptest.NewServer(mux)
	tb.Cleanup(func() {
		srv.Close()
		db.Close()
	})
	return srv
}

type vulnApp struct {
	db *sql.DB
}

// reflect prints every cell of every row of query.
func (v *vulnApp) reflect(w http.ResponseWriter, query string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rows, err := v.db.Query(query)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "Database error: %v\n", err)
		return
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "Database error: %v\n", err)
		return
	}
	var out strings.Builder
	out.WriteString("Products\n")
	for rows.Next() {
		cells := make([]sql.NullString, len(cols))
		dest := make([]any, len(cols))
		for i := range cells {
			dest[i] = &cells[i]
		}
		if err := rows.Scan(dest...); err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintf(w, "Database error: %v\n", err)
			return
		}
		for i, c := range cells {
			if i > 0 {
				out.WriteByte('\t')
			}
			out.WriteString(c.String)
		}
		out.WriteByte('\n')
	}
	if err := rows.Err(); err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "Database error: %v\n", err)
		return
	}
	fmt.Fprint(w, out.String())
}

// exists answers whether query returns a row, and nothing else.
func (v *vulnApp) exists(w http.ResponseWriter, query string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	rows, err := v.db.Query(query)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintln(w, "Something went wrong.")
		return
	}
	defer rows.Close()
	if !rows.Next() {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprintln(w, "Item not found.")
		return
	}
	fmt.Fprintln(w, "Item is in stock.")
}
