package service

import (
	"context"
	"fmt"
	"log/slog"

	"climate-server/internal/modules/climate/repository"
	"climate-server/internal/modules/climate/types"
)

type Service struct {
	repository repository.ClimateRepository
	logger     *slog.Logger
}

func NewService(repository repository.ClimateRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repository: repository, logger: logger}
}

// withSession acquires a read session, runs fn and releases the session on
// every path. A release failure is only reported when fn succeeded.
func (s *Service) withSession(ctx context.Context, fn func(repository.Session) error) (err error) {
	session, err := s.repository.Acquire(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if relErr := session.Release(); relErr != nil {
			s.logger.Error("release read session", "error", relErr)
			if err == nil {
				err = fmt.Errorf("release read session: %w", relErr)
			}
		}
	}()
	return fn(session)
}

// resolveWindow derives the trailing one-year window from the latest stored date.
func resolveWindow(ctx context.Context, session repository.Session) (types.Window, error) {
	latest, ok, err := session.LatestDate(ctx)
	if err != nil {
		return types.Window{}, err
	}
	if !ok {
		return types.Window{}, ErrNoData
	}
	end, err := types.ParseDate(latest)
	if err != nil {
		return types.Window{}, fmt.Errorf("stored latest date %q: %w", latest, err)
	}
	return types.WindowEndingAt(end), nil
}

// Precipitation returns date -> prcp for the window. Rows are read in date
// then station order and later rows overwrite earlier ones on the same date.
func (s *Service) Precipitation(ctx context.Context) (types.Precipitation, error) {
	out := types.Precipitation{}
	err := s.withSession(ctx, func(session repository.Session) error {
		w, err := resolveWindow(ctx, session)
		if err != nil {
			return err
		}
		rows, err := session.Precipitation(ctx, w.StartDate(), w.EndDate())
		if err != nil {
			return err
		}
		for _, r := range rows {
			out[r.Date] = r.Precipitation
		}
		s.logger.Debug("precipitation resolved",
			"window_start", w.StartDate(),
			"window_end", w.EndDate(),
			"rows", len(rows),
			"dates", len(out),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Service) Stations(ctx context.Context) ([]string, error) {
	var ids []string
	err := s.withSession(ctx, func(session repository.Session) error {
		var err error
		ids, err = session.StationIDs(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// MostActiveObservations returns the window's (date, tobs) pairs for the
// station with the most measurement rows.
func (s *Service) MostActiveObservations(ctx context.Context) ([]types.Observation, error) {
	var obs []types.Observation
	err := s.withSession(ctx, func(session repository.Session) error {
		station, ok, err := session.MostActiveStation(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNoData
		}
		w, err := resolveWindow(ctx, session)
		if err != nil {
			return err
		}
		obs, err = session.Observations(ctx, station, w.StartDate(), w.EndDate())
		if err != nil {
			return err
		}
		s.logger.Debug("observations resolved",
			"station", station,
			"window_start", w.StartDate(),
			"window_end", w.EndDate(),
			"rows", len(obs),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if obs == nil {
		obs = []types.Observation{}
	}
	return obs, nil
}

// TemperatureStats aggregates tobs from start (inclusive) to end (inclusive)
// or unbounded when end is nil. An empty or inverted range yields nulls.
func (s *Service) TemperatureStats(ctx context.Context, start string, end *string) (types.TemperatureStats, error) {
	startDate, err := types.ParseDate(start)
	if err != nil {
		return types.TemperatureStats{}, &InvalidDateError{Field: "start", Value: start, Err: err}
	}
	stats := types.TemperatureStats{StartDate: types.FormatDate(startDate)}

	var to *string
	if end != nil {
		endDate, err := types.ParseDate(*end)
		if err != nil {
			return types.TemperatureStats{}, &InvalidDateError{Field: "end", Value: *end, Err: err}
		}
		e := types.FormatDate(endDate)
		stats.EndDate = &e
		to = &e
	}

	err = s.withSession(ctx, func(session repository.Session) error {
		agg, err := session.TemperatureStats(ctx, stats.StartDate, to)
		if err != nil {
			return err
		}
		stats.TMin, stats.TMax, stats.TAvg = agg.Min, agg.Max, agg.Avg
		return nil
	})
	if err != nil {
		return types.TemperatureStats{}, err
	}
	return stats, nil
}
