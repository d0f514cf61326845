package extract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"unicode/utf16"

	"golang.org/x/sync/errgroup"

	"github.com/0x6d61/sqlsiphon/internal/dialect"
	"github.com/0x6d61/sqlsiphon/internal/oracle"
	"github.com/0x6d61/sqlsiphon/internal/payload"
)

// ErrTooLong is returned when a value is longer than the search bound.
var ErrTooLong = errors.New("value longer than search bound")

// Predicate answers "length > n" for a value.
type Predicate func(ctx context.Context, n int) (bool, error)

// FindLength returns the length of a value whose bound is unknown: the
// candidate doubles until the predicate fails, then the last interval is
// bisected. limit caps the search.
func FindLength(ctx context.Context, greater Predicate, limit int) (int, error) {
	ok, err := greater(ctx, 0)
	if err != nil || !ok {
		return 0, err
	}
	lo, hi := 0, 1
	for {
		if hi >= limit {
			hi = limit
		}
		ok, err := greater(ctx, hi)
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		if hi == limit {
			return 0, fmt.Errorf("%w (%d)", ErrTooLong, limit)
		}
		lo, hi = hi, hi*2
	}
	return bisect(ctx, greater, lo, hi)
}

// BisectLength returns the length of a value known to be at most limit.
// It asks at most ceil(log2(limit+1)) questions.
func BisectLength(ctx context.Context, greater Predicate, limit int) (int, error) {
	return bisect(ctx, greater, -1, limit)
}

// bisect narrows (lo, hi] where length > lo holds and length > hi does
// not.
func bisect(ctx context.Context, greater Predicate, lo, hi int) (int, error) {
	for hi-lo > 1 {
		mid := lo + (hi-lo)/2
		ok, err := greater(ctx, mid)
		if err != nil {
			return 0, err
		}
		if ok {
			lo = mid
		} else {
			hi = mid
		}
	}
	return hi, nil
}

// BitTest answers "bit mask of the character is set".
type BitTest func(ctx context.Context, mask int) (bool, error)

// Masks returns the bit masks of a bits wide character in query order.
func Masks(bits int, order dialect.BitOrder) []int {
	masks := make([]int, bits)
	for i := range bits {
		if order == dialect.LSBFirst {
			masks[i] = 1 << i
		} else {
			masks[i] = 1 << (bits - 1 - i)
		}
	}
	return masks
}

// ReadChar assembles one character from bits answers.
func ReadChar(ctx context.Context, bits int, order dialect.BitOrder, set BitTest) (int, error) {
	v := 0
	for _, mask := range Masks(bits, order) {
		ok, err := set(ctx, mask)
		if err != nil {
			return 0, err
		}
		if ok {
			v |= mask
		}
	}
	return v, nil
}

// Searcher reads values one bit per request through a boolean oracle.
type Searcher struct {
	Oracle  oracle.Oracle
	Builder *payload.Builder
	// Threads bounds the characters read in parallel.
	Threads int
	Retries int
	// MaxLength bounds the length search.
	MaxLength int
	Cache     *Cache
	Logger    *slog.Logger
}

// ask asks one check with retries, cancellation and the cache.
func (s *Searcher) ask(ctx context.Context, check string) (bool, error) {
	if v, ok := s.Cache.bit(check); ok {
		return v, nil
	}
	v, err := Retry(ctx, s.Retries, func() (bool, error) {
		return s.Oracle.Ask(ctx, check)
	})
	if err != nil {
		return false, err
	}
	s.Cache.putBit(check, v)
	return v, nil
}

// Length returns the length of inj in search units.
func (s *Searcher) Length(ctx context.Context, inj string) (int, error) {
	limit := s.MaxLength
	if limit <= 0 {
		// a character is at most 4 UTF-8 bytes or 2 UTF-16 units
		perChar := 4
		if bits, _ := s.Builder.Dialect().Bits(); bits > 8 {
			perChar = 2
		}
		limit = perChar * (dialect.SearchCapacity + len(s.Builder.Atom(dialect.Lead)))
	}
	return FindLength(ctx, func(ctx context.Context, n int) (bool, error) {
		check, err := s.Builder.LengthCheck(inj, n)
		if err != nil {
			return false, err
		}
		return s.ask(ctx, check)
	}, limit)
}

// Char returns the search unit at the 0-based index of inj.
func (s *Searcher) Char(ctx context.Context, inj string, index int) (int, error) {
	bits, order := s.Builder.Dialect().Bits()
	return ReadChar(ctx, bits, order, func(ctx context.Context, mask int) (bool, error) {
		check, err := s.Builder.BitCheck(inj, index+1, mask)
		if err != nil {
			return false, err
		}
		return s.ask(ctx, check)
	})
}

// Read returns the value of inj. Units are independent once the length
// is known and are read by up to Threads workers.
func (s *Searcher) Read(ctx context.Context, inj string) (string, error) {
	n, err := s.Length(ctx, inj)
	if err != nil {
		return "", err
	}
	if s.Logger != nil {
		s.Logger.Debug("length found", "length", n)
	}
	bits, _ := s.Builder.Dialect().Bits()
	units := make([]uint16, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(s.Threads, 1))
	for i := range n {
		g.Go(func() error {
			c, err := s.Char(gctx, inj, i)
			if err != nil {
				return err
			}
			units[i] = uint16(c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return decodeUnits(units, bits), nil
}

// decodeUnits turns search units into text: UTF-8 bytes up to 8 bits,
// UTF-16 code units above.
func decodeUnits(units []uint16, bits int) string {
	if bits > 8 {
		return string(utf16.Decode(units))
	}
	b := make([]byte, len(units))
	for i, u := range units {
		b[i] = byte(u)
	}
	return string(b)
}

// Page returns a PageFunc reading the windows of query bit by bit. The
// text it returns is what a reflected page would show.
func (s *Searcher) Page(query string) PageFunc {
	return func(ctx context.Context, start int) (string, error) {
		inj, err := s.Builder.Window(query, start, dialect.SearchCapacity)
		if err != nil {
			return "", err
		}
		return s.Read(ctx, inj)
	}
}
