// Package engine drives extraction against one injection point: vendor
// resolution, strategy selection, calibration and the streaming
// operations that rebuild the remote schema, rows and files.
package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"

	"github.com/0x6d61/sqlsiphon/internal/calibrate"
	"github.com/0x6d61/sqlsiphon/internal/dialect"
	"github.com/0x6d61/sqlsiphon/internal/extract"
	"github.com/0x6d61/sqlsiphon/internal/fingerprint"
	"github.com/0x6d61/sqlsiphon/internal/oracle"
	"github.com/0x6d61/sqlsiphon/internal/payload"
	"github.com/0x6d61/sqlsiphon/internal/session"
	"github.com/0x6d61/sqlsiphon/internal/strategy"
)

// Config holds the tuning of an Injector.
type Config struct {
	Threads    int             // characters read in parallel in search mode (default 4)
	Workers    int             // tables dumped in parallel (default 2)
	Strategies []strategy.Kind // candidates, tried in priority order. Empty = all.
	SleepTime  int             // time strategy delay in seconds
	MaxFields  int             // union column count searched up to
	Retries    int             // attempts per oracle call
	// BlindThreshold is the minimum similarity a page needs to one of the
	// blind reference pages. 0 keeps the oracle default.
	BlindThreshold float64
	CacheAnswers   bool
	MaxLength      int    // search mode length bound. 0 = window size.
	URLSafeNames   bool   // percent-encode names in row queries
	DefaultVendor  string // used when fingerprinting finds nothing
	Verbose        int    // verbosity level 0-3
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Threads:       4,
		Workers:       2,
		Strategies:    strategy.All(),
		SleepTime:     payload.DefaultSleepTime,
		MaxFields:     calibrate.DefaultMaxFields,
		Retries:       extract.DefaultRetries,
		CacheAnswers:  true,
		DefaultVendor: "mysql",
	}
}

// Injector runs extraction operations against one injection point. The
// target is set by ConfigureTarget; every operation then works on a fork
// of its Session.
type Injector struct {
	prober    oracle.Prober
	cfg       *Config
	dialects  *dialect.Registry
	logger    *slog.Logger
	store     session.Store
	observers []Observer
	events    *queue

	mu       sync.Mutex
	sess     *Session
	selector *strategy.Selector
}

// Option configures an Injector.
type Option func(*Injector)

// WithDialects sets the dialect registry. The built-in vendors are used
// otherwise.
func WithDialects(reg *dialect.Registry) Option {
	return func(in *Injector) {
		in.dialects = reg
	}
}

// WithObserver adds observers receiving extraction events.
func WithObserver(obs ...Observer) Option {
	return func(in *Injector) {
		in.observers = append(in.observers, obs...)
	}
}

// WithConfig sets the configuration.
func WithConfig(cfg *Config) Option {
	return func(in *Injector) {
		if cfg != nil {
			in.cfg = cfg
		}
	}
}

// WithLogger sets the logger. By default logs are discarded.
func WithLogger(l *slog.Logger) Option {
	return func(in *Injector) {
		in.logger = l
	}
}

// WithStore persists sessions and extracted records in store, and resumes
// sessions found there.
func WithStore(store session.Store) Option {
	return func(in *Injector) {
		in.store = store
	}
}

// New returns an Injector probing the target through p. Close must be
// called to flush pending observer events.
func New(p oracle.Prober, opts ...Option) (*Injector, error) {
	in := &Injector{prober: p, cfg: DefaultConfig()}
	for _, opt := range opts {
		opt(in)
	}
	if in.logger == nil {
		in.logger = NewLogger(discardWriter{}, in.cfg.Verbose)
	}
	if in.dialects == nil {
		reg, err := dialect.Builtin()
		if err != nil {
			return nil, fmt.Errorf("engine: load dialects: %w", err)
		}
		in.dialects = reg
	}
	in.events = newQueue(in.logger)
	return in, nil
}

// Close waits for pending observer events and store writes.
func (in *Injector) Close() error {
	in.events.close()
	return nil
}

// Config returns the configuration in use.
func (in *Injector) Config() *Config { return in.cfg }

// Session returns the configured session, nil before ConfigureTarget.
func (in *Injector) Session() *Session {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.sess
}

// Selector returns the strategy selector of the configured target.
func (in *Injector) Selector() *strategy.Selector {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.selector
}

// ConfigureTarget prepares a session for endpoint. vendorHint names the
// dialect; when empty the vendor is fingerprinted from error pages. A
// session stored for the same endpoint and vendor is resumed without
// selecting the strategy again.
func (in *Injector) ConfigureTarget(ctx context.Context, endpoint, vendorHint string) (*Session, error) {
	d, err := in.resolveVendor(ctx, vendorHint)
	if err != nil {
		in.emitError(err)
		return nil, err
	}
	s := newSession(endpoint, d, in.builderOptions()...)
	if in.cfg.CacheAnswers {
		s.cache = extract.NewCache()
	}
	sel := strategy.NewSelector(in.candidates(d), in.logger, func(state strategy.State, k strategy.Kind) {
		in.logger.Debug("strategy state", "vendor", d.Name, "state", state.String(), "strategy", k.String())
	})

	resumed, err := in.resume(ctx, s, sel)
	if err != nil {
		in.emitError(err)
		return nil, err
	}
	if !resumed {
		st, err := sel.Select(ctx, in.tester(s))
		if err != nil {
			in.emitError(err)
			return nil, err
		}
		s.Strategy = st
		in.save(ctx, s)
	}

	in.mu.Lock()
	in.sess, in.selector = s, sel
	in.mu.Unlock()

	st := s.Strategy
	in.logger.Info("target configured", "vendor", d.Name, "strategy", st.String(), "capacity", st.Capacity, "session", s.ID)
	in.emit(func(o Observer) { o.OnStrategySelected(st) })
	return s, nil
}

// Recalibrate measures the union strategy again for a field count, for
// targets whose column count changed. Results are memoized per count.
func (in *Injector) Recalibrate(ctx context.Context, fields int) error {
	s, err := in.current()
	if err != nil {
		return err
	}
	if s.Strategy.Kind != strategy.Normal {
		return fmt.Errorf("recalibrate %s strategy: %w", s.Strategy.Kind, payload.ErrUnsupported)
	}
	res, ok := s.memo.get(fields)
	if !ok {
		res, err = calibrate.Indices(ctx, in.prober, s.Builder, fields)
		if err != nil {
			return err
		}
		if err := calibrate.Capacity(ctx, in.prober, s.Builder, res); err != nil {
			return err
		}
		s.memo.put(res)
	}

	in.mu.Lock()
	s.Calibration = res
	s.Strategy.Capacity = res.Capacity
	in.mu.Unlock()
	in.save(ctx, s)
	return nil
}

// resolveVendor looks up vendorHint, or fingerprints the target.
func (in *Injector) resolveVendor(ctx context.Context, hint string) (*dialect.Descriptor, error) {
	if hint != "" {
		return in.dialects.Lookup(hint)
	}
	id, err := fingerprint.New(in.dialects.All())
	if err != nil {
		return nil, err
	}
	m, err := id.Identify(ctx, in.prober)
	if err != nil {
		return nil, err
	}
	if m != nil {
		in.logger.Info("vendor identified", "vendor", m.Dialect.Name, "hits", m.Hits)
		return m.Dialect, nil
	}
	in.logger.Warn("vendor not identified, using default", "vendor", in.cfg.DefaultVendor)
	return in.dialects.Lookup(in.cfg.DefaultVendor)
}

// candidates drops the strategies the dialect does not describe.
func (in *Injector) candidates(d *dialect.Descriptor) []strategy.Kind {
	kinds := in.cfg.Strategies
	if len(kinds) == 0 {
		kinds = strategy.All()
	}
	return slices.DeleteFunc(slices.Clone(kinds), func(k strategy.Kind) bool {
		switch k {
		case strategy.Normal:
			return !d.HasNormal()
		case strategy.Error:
			return len(d.Strategy.Error) == 0
		default:
			return !d.HasBoolean()
		}
	})
}

func (in *Injector) builderOptions() []payload.BuilderOption {
	opts := []payload.BuilderOption{payload.WithSleepTime(in.cfg.SleepTime)}
	if in.cfg.URLSafeNames {
		opts = append(opts, payload.WithURLSafeNames())
	}
	return opts
}

func (in *Injector) current() (*Session, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.sess == nil {
		return nil, ErrNotConfigured
	}
	return in.sess, nil
}

// session returns a fork of the configured session, with its own cursor.
func (in *Injector) session() (*Session, error) {
	in.mu.Lock()
	defer in.mu.Unlock()
	if in.sess == nil {
		return nil, ErrNotConfigured
	}
	return in.sess.Fork(), nil
}

func (in *Injector) emit(fn func(Observer)) {
	for _, o := range in.observers {
		in.events.push(func() { fn(o) })
	}
}

func (in *Injector) emitError(err error) {
	in.emit(func(o Observer) { o.OnError(err) })
}

// NewLogger returns a text logger writing to w at the level of verbose:
// 3 debug, 2 info, 1 warn, 0 error.
func NewLogger(w io.Writer, verbose int) *slog.Logger {
	level := slog.LevelError
	switch {
	case verbose >= 3:
		level = slog.LevelDebug
	case verbose >= 2:
		level = slog.LevelInfo
	case verbose >= 1:
		level = slog.LevelWarn
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// discardWriter is an io.Writer that discards all data (used for quiet logging).
type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
