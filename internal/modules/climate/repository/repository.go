package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"climate-server/internal/modules/climate/types"
)

//go:embed sql/get-latest-date.sql
var getLatestDateSQL string

//go:embed sql/get-precipitation.sql
var getPrecipitationSQL string

//go:embed sql/get-station-ids.sql
var getStationIDsSQL string

//go:embed sql/get-most-active-station.sql
var getMostActiveStationSQL string

//go:embed sql/get-station-observations.sql
var getStationObservationsSQL string

//go:embed sql/get-temperature-stats-from.sql
var getTemperatureStatsFromSQL string

//go:embed sql/get-temperature-stats-range.sql
var getTemperatureStatsRangeSQL string

// ClimateRepository hands out read sessions over the climate store.
type ClimateRepository interface {
	Acquire(ctx context.Context) (Session, error)
}

// Session is a read scope over one consistent snapshot of the store. Callers
// must call Release exactly once, on every path.
type Session interface {
	// LatestDate returns MAX(measurement.date); ok is false when the table is empty.
	LatestDate(ctx context.Context) (date string, ok bool, err error)
	Precipitation(ctx context.Context, from, to string) ([]types.PrecipitationRow, error)
	StationIDs(ctx context.Context) ([]string, error)
	// MostActiveStation returns the station with the most measurement rows,
	// ties broken by ascending identifier; ok is false when the table is empty.
	MostActiveStation(ctx context.Context) (station string, ok bool, err error)
	Observations(ctx context.Context, station, from, to string) ([]types.Observation, error)
	// TemperatureStats aggregates tobs over date >= from, and date <= *to when to is non-nil.
	TemperatureStats(ctx context.Context, from string, to *string) (types.TemperatureAggregate, error)
	Release() error
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) ClimateRepository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) Acquire(ctx context.Context) (Session, error) {
	tx, err := r.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin read session: %w", err)
	}
	return &sessionImpl{tx: tx}, nil
}

type sessionImpl struct {
	tx *sql.Tx
}

func (s *sessionImpl) Release() error {
	err := s.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

func (s *sessionImpl) LatestDate(ctx context.Context) (string, bool, error) {
	var latest sql.NullString
	if err := s.tx.QueryRowContext(ctx, getLatestDateSQL).Scan(&latest); err != nil {
		return "", false, fmt.Errorf("latest date: %w", err)
	}
	return latest.String, latest.Valid, nil
}

func (s *sessionImpl) Precipitation(ctx context.Context, from, to string) ([]types.PrecipitationRow, error) {
	rows, err := s.tx.QueryContext(ctx, getPrecipitationSQL, from, to)
	if err != nil {
		return nil, fmt.Errorf("precipitation: %w", err)
	}
	defer closeRows(rows, "precipitation")

	var out []types.PrecipitationRow
	for rows.Next() {
		var (
			rec  types.PrecipitationRow
			prcp sql.NullFloat64
		)
		if err := rows.Scan(&rec.Date, &prcp); err != nil {
			return nil, err
		}
		if prcp.Valid {
			v := prcp.Float64
			rec.Precipitation = &v
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sessionImpl) StationIDs(ctx context.Context) ([]string, error) {
	rows, err := s.tx.QueryContext(ctx, getStationIDsSQL)
	if err != nil {
		return nil, fmt.Errorf("station ids: %w", err)
	}
	defer closeRows(rows, "station ids")

	out := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *sessionImpl) MostActiveStation(ctx context.Context) (string, bool, error) {
	var (
		station string
		n       int
	)
	err := s.tx.QueryRowContext(ctx, getMostActiveStationSQL).Scan(&station, &n)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("most active station: %w", err)
	}
	return station, true, nil
}

func (s *sessionImpl) Observations(ctx context.Context, station, from, to string) ([]types.Observation, error) {
	rows, err := s.tx.QueryContext(ctx, getStationObservationsSQL, station, from, to)
	if err != nil {
		return nil, fmt.Errorf("observations: %w", err)
	}
	defer closeRows(rows, "observations")

	out := []types.Observation{}
	for rows.Next() {
		var o types.Observation
		if err := rows.Scan(&o.Date, &o.TemperatureObserved); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *sessionImpl) TemperatureStats(ctx context.Context, from string, to *string) (types.TemperatureAggregate, error) {
	var row *sql.Row
	if to == nil {
		row = s.tx.QueryRowContext(ctx, getTemperatureStatsFromSQL, from)
	} else {
		row = s.tx.QueryRowContext(ctx, getTemperatureStatsRangeSQL, from, *to)
	}

	var tmin, tmax, tavg sql.NullFloat64
	if err := row.Scan(&tmin, &tmax, &tavg); err != nil {
		return types.TemperatureAggregate{}, fmt.Errorf("temperature stats: %w", err)
	}
	return types.TemperatureAggregate{
		Min: floatPtr(tmin),
		Max: floatPtr(tmax),
		Avg: floatPtr(tavg),
	}, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Error("close rows", "query", what, "error", err)
	}
}
