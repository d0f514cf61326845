package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/0x6d61/sqlsiphon/internal/config"
	"github.com/0x6d61/sqlsiphon/internal/engine"
	"github.com/0x6d61/sqlsiphon/internal/strategy"
	"github.com/0x6d61/sqlsiphon/internal/transport"
)

// options is the merged view of the attack profile and the flags. A flag
// set on the command line wins over the profile.
type options struct {
	target transport.Target
	param  string
	prefix *string
	suffix *string

	client transport.ClientOptions
	dbms   string
	engine *engine.Config

	dialects string
	tampers  []string
	format   string
	output   string
	session  string
	verbose  int
}

// loadOptions reads the profile named by --config, if any, under the flags
// of cmd.
func loadOptions(cmd *cobra.Command) (*options, error) {
	f := cmd.Flags()
	profile := config.Default()
	if path, _ := f.GetString("config"); path != "" {
		p, err := config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
		profile = p
	}

	o := &options{
		param:    str(f, "param", profile.Target.Param),
		dbms:     str(f, "dbms", profile.Injection.DBMS),
		dialects: str(f, "dialects", profile.Injection.Dialects),
		tampers:  splitList(str(f, "tamper", profile.Injection.Tamper)),
		format:   str(f, "format", profile.Output.Format),
		output:   str(f, "output", profile.Output.File),
		session:  str(f, "session", profile.Output.Session),
		verbose:  num(f, "verbose", profile.Output.Verbose),
	}

	o.target = transport.Target{
		URL:     str(f, "url", profile.Target.URL),
		Method:  str(f, "method", profile.Target.Method),
		Body:    str(f, "data", profile.Target.Data),
		Headers: make(map[string]string),
		Cookies: parseCookieString(str(f, "cookie", profile.Target.Cookie)),
	}
	if o.target.URL == "" {
		return nil, fmt.Errorf("target URL is required (use --url or -u)")
	}
	if o.target.Method == "" {
		o.target.Method = "GET"
	}
	if o.target.Body != "" && o.target.Method == "GET" {
		o.target.Method = "POST"
	}
	for k, v := range profile.Target.Headers {
		o.target.Headers[k] = v
	}
	rawHeaders, _ := f.GetStringArray("header")
	for k, v := range parseHeaders(rawHeaders) {
		o.target.Headers[k] = v
	}
	if o.target.Body != "" {
		if _, ok := o.target.Headers["Content-Type"]; !ok {
			o.target.ContentType = "application/x-www-form-urlencoded"
		}
	}
	o.prefix = optional(f, "prefix", profile.Target.Prefix)
	o.suffix = optional(f, "suffix", profile.Target.Suffix)

	o.client = transport.ClientOptions{
		Timeout:            duration(f, "timeout", profile.Connection.Timeout),
		ProxyURL:           str(f, "proxy", profile.Connection.Proxy),
		FollowRedirects:    true,
		InsecureSkipVerify: flag(f, "insecure", profile.Connection.Insecure),
		RandomUserAgent:    flag(f, "random-agent", profile.Connection.RandomAgent),
		MaxRPS:             float(f, "rps", profile.Connection.RPS),
	}

	cfg, err := profile.Engine()
	if err != nil {
		return nil, err
	}
	if f.Changed("strategies") {
		s, _ := f.GetString("strategies")
		kinds, err := strategy.ParseKinds(s)
		if err != nil {
			return nil, err
		}
		cfg.Strategies = kinds
	}
	cfg.Threads = num(f, "threads", cfg.Threads)
	cfg.Workers = num(f, "workers", cfg.Workers)
	cfg.SleepTime = num(f, "sleep", cfg.SleepTime)
	cfg.MaxFields = num(f, "max-fields", cfg.MaxFields)
	cfg.Retries = num(f, "retries", cfg.Retries)
	cfg.BlindThreshold = float(f, "blind-threshold", cfg.BlindThreshold)
	cfg.URLSafeNames = flag(f, "url-safe", cfg.URLSafeNames)
	if f.Changed("no-cache") {
		noCache, _ := f.GetBool("no-cache")
		cfg.CacheAnswers = !noCache
	}
	cfg.Verbose = o.verbose
	o.engine = cfg
	return o, nil
}

func str(f *pflag.FlagSet, name, fallback string) string {
	v, _ := f.GetString(name)
	if f.Changed(name) || fallback == "" {
		return v
	}
	return fallback
}

func num(f *pflag.FlagSet, name string, fallback int) int {
	v, _ := f.GetInt(name)
	if f.Changed(name) || fallback == 0 {
		return v
	}
	return fallback
}

func float(f *pflag.FlagSet, name string, fallback float64) float64 {
	v, _ := f.GetFloat64(name)
	if f.Changed(name) || fallback == 0 {
		return v
	}
	return fallback
}

func duration(f *pflag.FlagSet, name string, fallback time.Duration) time.Duration {
	v, _ := f.GetDuration(name)
	if f.Changed(name) || fallback == 0 {
		return v
	}
	return fallback
}

func flag(f *pflag.FlagSet, name string, fallback bool) bool {
	v, _ := f.GetBool(name)
	if f.Changed(name) {
		return v
	}
	return v || fallback
}

// optional returns nil when neither the flag nor the profile sets a value,
// so an explicitly empty prefix can be told from a missing one.
func optional(f *pflag.FlagSet, name, fallback string) *string {
	if f.Changed(name) {
		v, _ := f.GetString(name)
		return &v
	}
	if fallback != "" {
		return &fallback
	}
	return nil
}

// parseCookieString parses a cookie header string (e.g., "name1=val1; name2=val2")
// into a map of name->value pairs.
func parseCookieString(raw string) map[string]string {
	cookies := make(map[string]string)
	for _, pair := range strings.Split(raw, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if ok {
			cookies[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}
	return cookies
}

// parseHeaders parses header strings (e.g., "X-Custom: value") into a map.
func parseHeaders(rawHeaders []string) map[string]string {
	headers := make(map[string]string)
	for _, h := range rawHeaders {
		name, value, ok := strings.Cut(h, ":")
		if ok {
			headers[strings.TrimSpace(name)] = strings.TrimSpace(value)
		}
	}
	return headers
}
