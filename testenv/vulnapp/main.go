// Intentionally vulnerable web application for testing sqlsiphon against
// real MySQL and PostgreSQL servers.
// DO NOT deploy this in any production environment.
package main

import (
	"database/sql"
	"fmt"
	"html"
	"log"
	"net/http"
	"os"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
)

// page is one vulnerable page: query is completed with the raw value of
// param.
type page struct {
	path  string
	param string
	query string
	mode  mode
}

type mode int

const (
	reflectRows mode = iota // rows and database errors shown
	blindRows               // only found or not found
	quietRows               // same page whatever happens
)

var pages = []page{
	{"/user", "id", "SELECT id, username, email, role FROM users WHERE id = %s", reflectRows},
	{"/product", "id", "SELECT id, name, description, price, category FROM products WHERE id = %s", reflectRows},
	{"/search", "q", "SELECT id, name, price FROM products WHERE name LIKE '%%%s%%'", reflectRows},
	{"/item", "id", "SELECT id FROM products WHERE id = %s", blindRows},
	{"/sleep", "id", "SELECT id FROM products WHERE id = %s", quietRows},
}

func main() {
	mux := http.NewServeMux()
	var mounted []string

	for _, backend := range []struct{ prefix, driver, env string }{
		{"/mysql", "mysql", "MYSQL_DSN"},
		{"/pg", "postgres", "POSTGRES_DSN"},
	} {
		dsn := os.Getenv(backend.env)
		if dsn == "" {
			continue
		}
		db, err := sql.Open(backend.driver, dsn)
		if err != nil {
			log.Fatalf("%s connection failed: %v", backend.driver, err)
		}
		if err := db.Ping(); err != nil {
			log.Fatalf("%s ping failed: %v", backend.driver, err)
		}
		log.Printf("Connected to %s", backend.driver)

		for _, p := range pages {
			mux.HandleFunc(backend.prefix+p.path, handler(db, backend.driver, p))
			mounted = append(mounted, backend.prefix+p.path+"?"+p.param+"=1")
		}
		mux.HandleFunc(backend.prefix+"/login", loginHandler(db, backend.driver))
		mounted = append(mounted, backend.prefix+"/login (POST: username, password)")
	}

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, "OK")
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintln(w, "sqlsiphon test server")
		fmt.Fprintln(w, "WARNING: This is an intentionally vulnerable application for testing only.")
		for _, m := range mounted {
			fmt.Fprintln(w, m)
		}
	})

	log.Println("Vulnerable test server starting on :8080")
	log.Fatal(http.ListenAndServe(":8080", mux))
}

func handler(db *sql.DB, driver string, p page) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		value := r.URL.Query().Get(p.param)
		if value == "" {
			http.Error(w, "Missing "+p.param+" parameter", http.StatusBadRequest)
			return
		}
		// VULNERABLE: Direct string concatenation
		query := fmt.Sprintf(p.query, value)
		log.Printf("[%s] Query: %s", driver, query)

		rows, err := query2rows(db, query)
		w.Header().Set("Content-Type", "text/html")
		switch p.mode {
		case quietRows:
			fmt.Fprint(w, "<html><body><p>Request received.</p></body></html>")
		case blindRows:
			if err != nil || len(rows) == 0 {
				w.WriteHeader(http.StatusNotFound)
				fmt.Fprint(w, "<html><body><p>Item not found.</p></body></html>")
				return
			}
			fmt.Fprint(w, "<html><body><p>Item is in stock.</p></body></html>")
		default:
			if err != nil {
				w.WriteHeader(http.StatusInternalServerError)
				// VULNERABLE: Error message exposed
				fmt.Fprintf(w, "<html><body><h1>Database Error</h1><p>%s</p></body></html>", html.EscapeString(err.Error()))
				return
			}
			writeRows(w, rows)
		}
	}
}

func loginHandler(db *sql.DB, driver string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Content-Type", "text/html")
			fmt.Fprint(w, `<html><body><h1>Login</h1>
<form method="POST"><input name="username" placeholder="Username"><input name="password" type="password" placeholder="Password"><button>Login</button></form></body></html>`)
			return
		}
		// VULNERABLE: Direct string concatenation in WHERE
		query := fmt.Sprintf("SELECT username, role FROM users WHERE username = '%s' AND password = '%s'",
			r.FormValue("username"), r.FormValue("password"))
		log.Printf("[%s] Query: %s", driver, query)

		rows, err := query2rows(db, query)
		w.Header().Set("Content-Type", "text/html")
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			fmt.Fprintf(w, "<html><body><h1>Database Error</h1><p>%s</p></body></html>", html.EscapeString(err.Error()))
			return
		}
		if len(rows) == 0 {
			fmt.Fprint(w, "<html><body><h1>Login Failed</h1><p>Invalid username or password.</p></body></html>")
			return
		}
		fmt.Fprintf(w, "<html><body><h1>Welcome %s!</h1></body></html>", html.EscapeString(strings.Join(rows[0], " ")))
	}
}

// query2rows reads every row of query as strings, whatever the column
// types, so union rows of any shape are shown.
func query2rows(db *sql.DB, query string) ([][]string, error) {
	rows, err := db.Query(query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out [][]string
	for rows.Next() {
		cells := make([]sql.NullString, len(cols))
		dest := make([]any, len(cols))
		for i := range cells {
			dest[i] = &cells[i]
		}
		if err := rows.Scan(dest...); err != nil {
			return out, err
		}
		row := make([]string, len(cells))
		for i, c := range cells {
			row[i] = c.String
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func writeRows(w http.ResponseWriter, rows [][]string) {
	fmt.Fprint(w, "<html><body><h1>Results</h1>")
	for _, row := range rows {
		fmt.Fprint(w, "<div class='row'>")
		for _, cell := range row {
			fmt.Fprintf(w, "<p>%s</p>", html.EscapeString(cell))
		}
		fmt.Fprint(w, "</div>")
	}
	if len(rows) == 0 {
		fmt.Fprint(w, "<p>No results found.</p>")
	}
	fmt.Fprint(w, "</body></html>")
}
