package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"climate-server/internal/modules/climate/types"
)

// ErrUnavailable is returned while the breaker is open: the store failed too
// many times in a row and reads are refused until the cool-down elapses.
var ErrUnavailable = errors.New("climate store unavailable")

type BreakerSettings struct {
	// ConsecutiveFailures trips the breaker.
	ConsecutiveFailures uint32
	// Timeout is how long the breaker stays open before a trial request.
	Timeout time.Duration
}

type guardedRepository struct {
	inner   ClimateRepository
	breaker *gobreaker.CircuitBreaker
}

// NewGuardedRepository wraps inner so that every store call runs through one
// circuit breaker. Cancelled or timed out requests do not count as failures.
func NewGuardedRepository(inner ClimateRepository, settings BreakerSettings, logger *slog.Logger) ClimateRepository {
	if logger == nil {
		logger = slog.Default()
	}
	failures := settings.ConsecutiveFailures
	if failures == 0 {
		failures = 5
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "climate-store",
		MaxRequests: 1,
		Timeout:     settings.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return &guardedRepository{inner: inner, breaker: cb}
}

func (g *guardedRepository) Acquire(ctx context.Context) (Session, error) {
	s, err := guard(g.breaker, func() (Session, error) { return g.inner.Acquire(ctx) })
	if err != nil {
		return nil, err
	}
	return &guardedSession{inner: s, breaker: g.breaker}, nil
}

type guardedSession struct {
	inner   Session
	breaker *gobreaker.CircuitBreaker
}

func (s *guardedSession) Release() error {
	return s.inner.Release()
}

func (s *guardedSession) LatestDate(ctx context.Context) (string, bool, error) {
	type result struct {
		date string
		ok   bool
	}
	r, err := guard(s.breaker, func() (result, error) {
		d, ok, err := s.inner.LatestDate(ctx)
		return result{d, ok}, err
	})
	return r.date, r.ok, err
}

func (s *guardedSession) Precipitation(ctx context.Context, from, to string) ([]types.PrecipitationRow, error) {
	return guard(s.breaker, func() ([]types.PrecipitationRow, error) { return s.inner.Precipitation(ctx, from, to) })
}

func (s *guardedSession) StationIDs(ctx context.Context) ([]string, error) {
	return guard(s.breaker, func() ([]string, error) { return s.inner.StationIDs(ctx) })
}

func (s *guardedSession) MostActiveStation(ctx context.Context) (string, bool, error) {
	type result struct {
		station string
		ok      bool
	}
	r, err := guard(s.breaker, func() (result, error) {
		st, ok, err := s.inner.MostActiveStation(ctx)
		return result{st, ok}, err
	})
	return r.station, r.ok, err
}

func (s *guardedSession) Observations(ctx context.Context, station, from, to string) ([]types.Observation, error) {
	return guard(s.breaker, func() ([]types.Observation, error) { return s.inner.Observations(ctx, station, from, to) })
}

func (s *guardedSession) TemperatureStats(ctx context.Context, from string, to *string) (types.TemperatureAggregate, error) {
	return guard(s.breaker, func() (types.TemperatureAggregate, error) { return s.inner.TemperatureStats(ctx, from, to) })
}

// guard runs fn through cb. Context errors are reported to the caller but
// recorded as successes so client disconnects cannot trip the breaker.
func guard[T any](cb *gobreaker.CircuitBreaker, fn func() (T, error)) (T, error) {
	var (
		out    T
		ctxErr error
	)
	_, err := cb.Execute(func() (interface{}, error) {
		v, err := fn()
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			ctxErr = err
			return nil, nil
		}
		out = v
		return nil, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return out, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return out, err
	}
	if ctxErr != nil {
		return out, ctxErr
	}
	return out, nil
}
