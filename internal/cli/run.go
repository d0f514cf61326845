package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/0x6d61/sqlsiphon/internal/dialect"
	"github.com/0x6d61/sqlsiphon/internal/engine"
	"github.com/0x6d61/sqlsiphon/internal/report"
	"github.com/0x6d61/sqlsiphon/internal/session"
	"github.com/0x6d61/sqlsiphon/internal/tamper"
	"github.com/0x6d61/sqlsiphon/internal/transport"
)

const disclaimer = "[!] Legal disclaimer: use sqlsiphon only against targets you are authorized to test.\n"

// run is one configured extraction against the target of the flags.
type run struct {
	opts      *options
	client    *transport.DefaultClient
	injector  *engine.Injector
	collector *report.Collector
	store     *session.SQLiteStore
	sess      *engine.Session
	start     time.Time
	stdout    io.Writer
	stderr    io.Writer
}

// runCommand wraps an extraction body: it sets the run up, calls body and
// writes the report, even when body failed part way.
func runCommand(body func(ctx context.Context, r *run) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		fmt.Fprint(cmd.ErrOrStderr(), disclaimer)
		r, err := setup(ctx, cmd)
		if err != nil {
			return err
		}
		bodyErr := body(ctx, r)
		if err := r.finish(ctx); err != nil {
			return errors.Join(bodyErr, err)
		}
		return bodyErr
	}
}

// setup builds the client, the prober and the injector, and configures
// the target.
func setup(ctx context.Context, cmd *cobra.Command) (*run, error) {
	opts, err := loadOptions(cmd)
	if err != nil {
		return nil, err
	}
	if _, err := report.New(opts.format); err != nil {
		return nil, err
	}

	client, err := transport.NewClient(opts.client)
	if err != nil {
		return nil, fmt.Errorf("creating HTTP client: %w", err)
	}

	reg, err := dialect.Builtin()
	if err != nil {
		return nil, err
	}
	if opts.dialects != "" {
		extra, err := dialect.LoadDir(opts.dialects)
		if err != nil {
			return nil, fmt.Errorf("loading dialects: %w", err)
		}
		if err := reg.Merge(extra); err != nil {
			return nil, err
		}
	}

	params := transport.ParseParameters(opts.target.URL, opts.target.Body, opts.target.ContentType)
	if len(params) == 0 {
		return nil, fmt.Errorf("no injectable parameters in %s", opts.target.URL)
	}
	opts.target.Parameters = params
	param, ok := transport.Find(params, opts.param)
	if !ok {
		return nil, fmt.Errorf("parameter %q not found in request", opts.param)
	}
	if opts.param == "" && len(params) > 1 {
		param, err = pickParameter(ctx, client, opts.target, reg, cmd.ErrOrStderr())
		if err != nil {
			return nil, err
		}
	}

	boundary := transport.DefaultBoundary(param.Type)
	if opts.prefix != nil {
		boundary.Prefix = *opts.prefix
	}
	if opts.suffix != nil {
		boundary.Suffix = *opts.suffix
	}
	chain, err := tamper.BuildChain(opts.tampers...)
	if err != nil {
		return nil, err
	}
	prober := tamper.Wrap(transport.NewProber(client, opts.target, param, boundary), chain)

	r := &run{
		opts:      opts,
		client:    client,
		collector: report.NewCollector(opts.target.URL),
		start:     time.Now(),
		stdout:    cmd.OutOrStdout(),
		stderr:    cmd.ErrOrStderr(),
	}
	engineOpts := []engine.Option{
		engine.WithConfig(opts.engine),
		engine.WithDialects(reg),
		engine.WithLogger(engine.NewLogger(r.stderr, opts.verbose)),
		engine.WithObserver(r.collector, newConsole(r.stderr, opts.verbose)),
	}
	if opts.session != "" {
		store, err := session.NewSQLiteStore(opts.session)
		if err != nil {
			return nil, fmt.Errorf("opening session store: %w", err)
		}
		r.store = store
		engineOpts = append(engineOpts, engine.WithStore(store))
	}

	in, err := engine.New(prober, engineOpts...)
	if err != nil {
		r.closeStore()
		return nil, err
	}
	r.injector = in

	fmt.Fprintf(r.stderr, "[*] target: %s (parameter %s)\n", opts.target.URL, param.Name)
	sess, err := in.ConfigureTarget(ctx, opts.target.Endpoint(param.Name), opts.dbms)
	if err != nil {
		in.Close()
		r.closeStore()
		return nil, err
	}
	r.sess = sess
	return r, nil
}

// finish flushes the injector and writes the report.
func (r *run) finish(ctx context.Context) error {
	r.injector.Close()
	defer r.closeStore()

	result := r.collector.Result()
	result.Vendor = r.sess.Dialect.Name
	result.Session = r.sess.ID
	result.StartTime = r.start
	result.EndTime = time.Now()
	result.RequestCount = r.client.Stats().Requests

	reporter, err := report.New(r.opts.format)
	if err != nil {
		return err
	}
	if t, ok := reporter.(*report.TextReporter); ok {
		t.Verbose = r.opts.verbose
	}

	w := r.stdout
	if r.opts.output != "" {
		f, err := os.Create(r.opts.output)
		if err != nil {
			return fmt.Errorf("creating output file: %w", err)
		}
		defer f.Close()
		w = f
	}
	if err := reporter.Generate(ctx, result, w); err != nil {
		return fmt.Errorf("generating report: %w", err)
	}
	if r.opts.output != "" {
		fmt.Fprintf(r.stderr, "[*] report written to %s\n", r.opts.output)
	}
	return nil
}

func (r *run) closeStore() {
	if r.store != nil {
		r.store.Close()
	}
}
