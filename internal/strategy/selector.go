package strategy

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/0x6d61/sqlsiphon/internal/dialect"
)

// ErrNotExploitable means no strategy passed its tests on the target.
var ErrNotExploitable = errors.New("target not exploitable")

// State of a Selector.
type State int

const (
	Unselected State = iota
	Testing
	Selected
	Unusable
)

func (s State) String() string {
	switch s {
	case Unselected:
		return "unselected"
	case Testing:
		return "testing"
	case Selected:
		return "selected"
	case Unusable:
		return "unusable"
	default:
		return "unknown"
	}
}

// Tester probes the target for one strategy. It returns the configured
// strategy when the target accepts it, or an error rejecting the candidate.
// A *dialect.ConfigError or a context error aborts selection.
type Tester interface {
	Test(ctx context.Context, k Kind) (Strategy, error)
}

// TesterFunc adapts a function to Tester.
type TesterFunc func(ctx context.Context, k Kind) (Strategy, error)

func (f TesterFunc) Test(ctx context.Context, k Kind) (Strategy, error) { return f(ctx, k) }

// Transition is called on every state change.
type Transition func(state State, k Kind)

// Selector is the state machine choosing the session's strategy. Once
// Selected, the choice is kept until Reset.
type Selector struct {
	mu         sync.Mutex
	state      State
	current    Kind
	selected   Strategy
	candidates []Kind
	logger     *slog.Logger
	onChange   Transition
}

// NewSelector returns a selector over candidates, tried in priority order.
// nil candidates means every kind.
func NewSelector(candidates []Kind, logger *slog.Logger, onChange Transition) *Selector {
	if len(candidates) == 0 {
		candidates = All()
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Selector{candidates: candidates, logger: logger, onChange: onChange}
}

// State returns the current state and the kind tested or selected.
func (s *Selector) State() (State, Kind) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.current
}

// Selected returns the chosen strategy.
func (s *Selector) Selected() (Strategy, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selected, s.state == Selected
}

// Reset returns the selector to Unselected, for a new endpoint.
func (s *Selector) Reset() {
	s.mu.Lock()
	s.state, s.current, s.selected = Unselected, 0, Strategy{}
	s.mu.Unlock()
}

// Restore marks st as selected without testing, for resumed sessions.
func (s *Selector) Restore(st Strategy) {
	s.mu.Lock()
	s.selected = st
	s.mu.Unlock()
	s.set(Selected, st.Kind)
}

// Select runs the candidates through t until one is accepted. Calling it
// again once Selected returns the same strategy without probing.
func (s *Selector) Select(ctx context.Context, t Tester) (Strategy, error) {
	s.mu.Lock()
	if s.state == Selected {
		st := s.selected
		s.mu.Unlock()
		return st, nil
	}
	s.mu.Unlock()

	for _, k := range s.candidates {
		if err := ctx.Err(); err != nil {
			s.set(Unselected, k)
			return Strategy{}, err
		}
		s.set(Testing, k)
		st, err := t.Test(ctx, k)
		if err == nil {
			st.Kind = k
			s.mu.Lock()
			s.selected = st
			s.mu.Unlock()
			s.set(Selected, k)
			s.logger.Info("strategy selected", "strategy", st.String(), "capacity", st.Capacity)
			return st, nil
		}

		var cfgErr *dialect.ConfigError
		if errors.As(err, &cfgErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			s.set(Unselected, k)
			return Strategy{}, err
		}
		s.logger.Info("strategy rejected", "strategy", k.String(), "error", err)
	}

	s.set(Unusable, 0)
	return Strategy{}, ErrNotExploitable
}

func (s *Selector) set(state State, k Kind) {
	s.mu.Lock()
	s.state, s.current = state, k
	s.mu.Unlock()
	s.logger.Debug("selector transition", "state", state.String(), "strategy", k.String())
	if s.onChange != nil {
		s.onChange(state, k)
	}
}
