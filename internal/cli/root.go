package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// Version information (set by build flags)
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = newRootCmd()

// Execute runs the command line.
func Execute() error {
	return rootCmd.Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "sqlsiphon",
		Short: "SQL injection data extraction tool",
		Long: `sqlsiphon - SQL injection data extraction tool

Rebuilds the schema, rows and files of a database behind an injectable
parameter, reading through whichever channel the target leaks: union
reflection, error messages, boolean page differences or response delays.

WARNING: Use this tool only against systems you have explicit permission to test.
Unauthorized access to computer systems is illegal.`,
		SilenceUsage: true,
	}

	flags := root.PersistentFlags()

	// Target flags
	flags.StringP("url", "u", "", "Target URL (e.g., http://target.com/page?id=1)")
	flags.String("method", "GET", "HTTP method (GET, POST, PUT, etc.)")
	flags.StringP("data", "d", "", "POST data (e.g., id=1&name=test)")
	flags.StringP("param", "p", "", "Parameter to inject (default: the first that looks injectable)")
	flags.String("cookie", "", "Cookie string (e.g., PHPSESSID=abc123)")
	flags.StringArrayP("header", "H", nil, "Extra header (repeatable, e.g., -H 'X-Custom: value')")
	flags.String("prefix", "", "Boundary prefix (default: quote for string parameters)")
	flags.String("suffix", "", "Boundary suffix (default: '-- -')")

	// Connection flags
	flags.String("proxy", "", "Proxy URL (http://host:port or socks5://host:port)")
	flags.Duration("timeout", 30*time.Second, "Request timeout")
	flags.Float64("rps", 0, "Maximum requests per second (0 = unlimited)")
	flags.Bool("random-agent", false, "Use random User-Agent")
	flags.Bool("insecure", false, "Skip TLS certificate verification")

	// Injection flags
	flags.String("dbms", "", "Force DBMS type (mysql, postgresql, mssql, oracle, sqlite)")
	flags.StringP("strategies", "s", "", "Strategies to try (N=Normal, E=Error, B=Blind, T=Time, comma-separated)")
	flags.Int("threads", 4, "Characters read in parallel by the blind strategy")
	flags.Int("workers", 2, "Tables dumped in parallel")
	flags.Int("sleep", 5, "Delay in seconds injected by the time strategy")
	flags.Int("max-fields", 20, "Largest union column count tried")
	flags.Int("retries", 3, "Attempts per request before a value is given up")
	flags.Float64("blind-threshold", 0, "Similarity a blind page needs to a reference (0 = default)")
	flags.Bool("url-safe", false, "Percent-encode database names in row queries")
	flags.Bool("no-cache", false, "Do not reuse answers to identical requests")
	flags.String("dialects", "", "Directory of extra dialect descriptors (YAML)")
	flags.String("tamper", "", "Tampers applied to every fragment, comma-separated (e.g. space2comment,randomcase)")

	// Output flags
	flags.IntP("verbose", "v", 0, "Verbosity level (0-3)")
	flags.StringP("output", "o", "", "Output file path")
	flags.StringP("format", "f", "text", "Output format (text, json)")
	flags.String("session", "", "Session file for saving and resuming (SQLite)")
	flags.StringP("config", "c", "", "Attack profile (YAML)")

	root.AddCommand(
		newInfoCmd(),
		newDatabasesCmd(),
		newTablesCmd(),
		newColumnsCmd(),
		newDumpCmd(),
		newReadFileCmd(),
		newWriteFileCmd(),
		newSessionsCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sqlsiphon %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}
