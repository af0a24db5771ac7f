// Package dataset loads the station and measurement CSV files the climate
// dataset is distributed as into a migrated SQLite store.
package dataset

import (
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"climate-server/internal/modules/climate/types"
)

var validate = newValidator()

// newValidator reports fields by their json names, which match the CSV columns.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

const (
	insertStationSQL     = `INSERT INTO station (station, name, latitude, longitude, elevation) VALUES (?, ?, ?, ?, ?)`
	insertMeasurementSQL = `INSERT INTO measurement (station, date, prcp, tobs) VALUES (?, ?, ?, ?)`
)

type Options struct {
	// Replace deletes existing rows from both tables before loading.
	Replace bool
}

type Result struct {
	Stations     int
	Measurements int
}

// Import reads both CSV streams and inserts their rows in one transaction.
// Nothing is written if any row fails to parse or insert.
func Import(ctx context.Context, db *sql.DB, stations, measurements io.Reader, opts Options) (Result, error) {
	stationRows, err := ReadStations(stations)
	if err != nil {
		return Result{}, fmt.Errorf("stations: %w", err)
	}
	measurementRows, err := ReadMeasurements(measurements)
	if err != nil {
		return Result{}, fmt.Errorf("measurements: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if opts.Replace {
		if _, err := tx.ExecContext(ctx, `DELETE FROM measurement; DELETE FROM station;`); err != nil {
			return Result{}, fmt.Errorf("clear tables: %w", err)
		}
	}

	if err := insertStations(ctx, tx, stationRows); err != nil {
		return Result{}, err
	}
	if err := insertMeasurements(ctx, tx, measurementRows); err != nil {
		return Result{}, err
	}

	if err := tx.Commit(); err != nil {
		return Result{}, fmt.Errorf("commit: %w", err)
	}

	res := Result{Stations: len(stationRows), Measurements: len(measurementRows)}
	slog.Info("dataset imported", "stations", res.Stations, "measurements", res.Measurements, "replace", opts.Replace)
	return res, nil
}

func insertStations(ctx context.Context, tx *sql.Tx, rows []types.Station) error {
	stmt, err := tx.PrepareContext(ctx, insertStationSQL)
	if err != nil {
		return fmt.Errorf("prepare station insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, s := range rows {
		if _, err := stmt.ExecContext(ctx, s.Station, s.Name, nullable(s.Latitude), nullable(s.Longitude), nullable(s.Elevation)); err != nil {
			return fmt.Errorf("insert station %q: %w", s.Station, err)
		}
	}
	return nil
}

func insertMeasurements(ctx context.Context, tx *sql.Tx, rows []types.Measurement) error {
	stmt, err := tx.PrepareContext(ctx, insertMeasurementSQL)
	if err != nil {
		return fmt.Errorf("prepare measurement insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, m := range rows {
		if _, err := stmt.ExecContext(ctx, m.Station, m.Date, nullable(m.Precipitation), m.TemperatureObserved); err != nil {
			return fmt.Errorf("insert measurement %s/%s: %w", m.Station, m.Date, err)
		}
	}
	return nil
}

func nullable(f *float64) any {
	if f == nil {
		return nil
	}
	return *f
}

// ReadStations parses a station CSV with a header row. Only the station
// column is required; name, latitude, longitude and elevation are optional.
func ReadStations(r io.Reader) ([]types.Station, error) {
	var out []types.Station
	err := readCSV(r, []string{"station"}, func(rec record) error {
		s := types.Station{Station: rec.get("station"), Name: rec.get("name")}
		var err error
		if s.Latitude, err = rec.optionalFloat("latitude"); err != nil {
			return err
		}
		if s.Longitude, err = rec.optionalFloat("longitude"); err != nil {
			return err
		}
		if s.Elevation, err = rec.optionalFloat("elevation"); err != nil {
			return err
		}
		if err := validateRow(s); err != nil {
			return err
		}
		out = append(out, s)
		return nil
	})
	return out, err
}

// ReadMeasurements parses a measurement CSV with a header row. station, date
// and tobs are required; an empty prcp is stored as NULL.
func ReadMeasurements(r io.Reader) ([]types.Measurement, error) {
	var out []types.Measurement
	err := readCSV(r, []string{"station", "date", "tobs"}, func(rec record) error {
		m := types.Measurement{Station: rec.get("station"), Date: rec.get("date")}
		if m.Date != "" {
			if _, err := types.ParseDate(m.Date); err != nil {
				return fmt.Errorf("date %q: expected YYYY-MM-DD", m.Date)
			}
		}
		var err error
		if m.Precipitation, err = rec.optionalFloat("prcp"); err != nil {
			return err
		}
		tobs, err := rec.optionalFloat("tobs")
		if err != nil {
			return err
		}
		if tobs == nil {
			return errors.New("empty tobs")
		}
		m.TemperatureObserved = *tobs
		if err := validateRow(m); err != nil {
			return err
		}
		out = append(out, m)
		return nil
	})
	return out, err
}

// validateRow checks the validate tags on a parsed row and reports the first
// failing column by its CSV name.
func validateRow(row any) error {
	err := validate.Struct(row)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	if fe.Tag() == "required" {
		return fmt.Errorf("empty %s", fe.Field())
	}
	return fmt.Errorf("%s out of range: must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param())
}

type record struct {
	fields []string
	index  map[string]int
}

func (r record) get(col string) string {
	i, ok := r.index[col]
	if !ok || i >= len(r.fields) {
		return ""
	}
	return strings.TrimSpace(r.fields[i])
}

func (r record) optionalFloat(col string) (*float64, error) {
	s := r.get(col)
	if s == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%s %q: not a number", col, s)
	}
	return &f, nil
}

func readCSV(r io.Reader, required []string, fn func(record) error) error {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("missing header row")
		}
		return fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, col := range required {
		if _, ok := index[col]; !ok {
			return fmt.Errorf("missing required column %q", col)
		}
	}

	for {
		fields, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}
		line, _ := cr.FieldPos(0)
		if err := fn(record{fields: fields, index: index}); err != nil {
			return fmt.Errorf("line %d: %w", line, err)
		}
	}
}
