package repository

import (
	"context"
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"climate-server/internal/migrate"
)

func setupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	// One connection: every :memory: connection is a separate database.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() {
		if closeErr := db.Close(); closeErr != nil {
			t.Errorf("close db: %v", closeErr)
		}
	})
	if _, err := migrate.Run(context.Background(), db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func mustExec(t *testing.T, db *sql.DB, query string) {
	t.Helper()
	if _, err := db.Exec(query); err != nil {
		t.Fatalf("exec %q: %v", query, err)
	}
}

func acquire(t *testing.T, db *sql.DB) Session {
	t.Helper()
	s, err := NewRepository(db).Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	t.Cleanup(func() {
		if err := s.Release(); err != nil {
			t.Errorf("Release: %v", err)
		}
	})
	return s
}

func TestNewRepository(t *testing.T) {
	if NewRepository(setupTestDB(t)) == nil {
		t.Fatal("NewRepository returned nil")
	}
}

func TestSession_ReleaseTwice(t *testing.T) {
	db := setupTestDB(t)
	s, err := NewRepository(db).Acquire(context.Background())
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if err := s.Release(); err != nil {
		t.Fatalf("first Release: %v", err)
	}
	if err := s.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	// The single connection must be back in the pool.
	var one int
	if err := db.QueryRow(`SELECT 1`).Scan(&one); err != nil {
		t.Fatalf("query after release: %v", err)
	}
}

func TestLatestDate(t *testing.T) {
	t.Run("empty table", func(t *testing.T) {
		s := acquire(t, setupTestDB(t))
		date, ok, err := s.LatestDate(context.Background())
		if err != nil {
			t.Fatalf("LatestDate: %v", err)
		}
		if ok || date != "" {
			t.Fatalf("LatestDate = (%q, %v), want (\"\", false)", date, ok)
		}
	})

	t.Run("with data", func(t *testing.T) {
		db := setupTestDB(t)
		mustExec(t, db, `INSERT INTO measurement (station, date, prcp, tobs) VALUES
			('A', '2016-08-23', 0.1, 80), ('B', '2017-08-23', 0.0, 81), ('A', '2017-08-01', NULL, 79)`)
		s := acquire(t, db)
		date, ok, err := s.LatestDate(context.Background())
		if err != nil {
			t.Fatalf("LatestDate: %v", err)
		}
		if !ok || date != "2017-08-23" {
			t.Fatalf("LatestDate = (%q, %v), want (2017-08-23, true)", date, ok)
		}
	})
}

func TestPrecipitation(t *testing.T) {
	db := setupTestDB(t)
	mustExec(t, db, `INSERT INTO measurement (station, date, prcp, tobs) VALUES
		('B', '2017-01-02', 0.5, 70),
		('A', '2017-01-02', 0.2, 71),
		('A', '2017-01-01', NULL, 72),
		('A', '2016-12-31', 1.0, 73),
		('A', '2017-01-03', 0.3, 74)`)
	s := acquire(t, db)

	rows, err := s.Precipitation(context.Background(), "2017-01-01", "2017-01-02")
	if err != nil {
		t.Fatalf("Precipitation: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Precipitation: got %d rows, want 3", len(rows))
	}
	// Bounds inclusive, ordered by date then station.
	if rows[0].Date != "2017-01-01" || rows[0].Precipitation != nil {
		t.Errorf("rows[0] = %+v, want 2017-01-01 with NULL prcp", rows[0])
	}
	if rows[1].Date != "2017-01-02" || *rows[1].Precipitation != 0.2 {
		t.Errorf("rows[1] = %+v, want station A 0.2 first", rows[1])
	}
	if rows[2].Date != "2017-01-02" || *rows[2].Precipitation != 0.5 {
		t.Errorf("rows[2] = %+v, want station B 0.5 last", rows[2])
	}
}

func TestStationIDs(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		s := acquire(t, setupTestDB(t))
		ids, err := s.StationIDs(context.Background())
		if err != nil {
			t.Fatalf("StationIDs: %v", err)
		}
		if ids == nil || len(ids) != 0 {
			t.Fatalf("StationIDs = %#v, want empty non-nil slice", ids)
		}
	})

	t.Run("sorted", func(t *testing.T) {
		db := setupTestDB(t)
		mustExec(t, db, `INSERT INTO station (station, name) VALUES
			('USC00519397', 'WAIKIKI'), ('USC00513117', 'KANEOHE'), ('USC00519281', 'WAIHEE')`)
		s := acquire(t, db)
		ids, err := s.StationIDs(context.Background())
		if err != nil {
			t.Fatalf("StationIDs: %v", err)
		}
		want := []string{"USC00513117", "USC00519281", "USC00519397"}
		if len(ids) != len(want) {
			t.Fatalf("StationIDs = %v, want %v", ids, want)
		}
		for i := range want {
			if ids[i] != want[i] {
				t.Errorf("ids[%d] = %q, want %q", i, ids[i], want[i])
			}
		}
	})
}

func TestMostActiveStation(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		s := acquire(t, setupTestDB(t))
		_, ok, err := s.MostActiveStation(context.Background())
		if err != nil {
			t.Fatalf("MostActiveStation: %v", err)
		}
		if ok {
			t.Fatal("MostActiveStation ok = true on empty table")
		}
	})

	t.Run("highest count", func(t *testing.T) {
		db := setupTestDB(t)
		mustExec(t, db, `INSERT INTO measurement (station, date, tobs) VALUES
			('A', '2017-01-01', 70), ('B', '2017-01-01', 70), ('B', '2017-01-02', 70), ('C', '2017-01-01', 70)`)
		s := acquire(t, db)
		station, ok, err := s.MostActiveStation(context.Background())
		if err != nil || !ok {
			t.Fatalf("MostActiveStation = (%q, %v, %v)", station, ok, err)
		}
		if station != "B" {
			t.Errorf("station = %q, want B", station)
		}
	})

	t.Run("tie broken by identifier", func(t *testing.T) {
		db := setupTestDB(t)
		mustExec(t, db, `INSERT INTO measurement (station, date, tobs) VALUES
			('Z', '2017-01-01', 70), ('Z', '2017-01-02', 70), ('M', '2017-01-01', 70), ('M', '2017-01-02', 70)`)
		s := acquire(t, db)
		station, _, err := s.MostActiveStation(context.Background())
		if err != nil {
			t.Fatalf("MostActiveStation: %v", err)
		}
		if station != "M" {
			t.Errorf("station = %q, want M", station)
		}
	})
}

func TestObservations(t *testing.T) {
	db := setupTestDB(t)
	mustExec(t, db, `INSERT INTO measurement (station, date, tobs) VALUES
		('A', '2017-01-03', 73), ('A', '2017-01-01', 71), ('B', '2017-01-02', 99),
		('A', '2017-01-02', 72), ('A', '2017-01-02', 72.5), ('A', '2016-12-31', 60)`)
	s := acquire(t, db)

	obs, err := s.Observations(context.Background(), "A", "2017-01-01", "2017-01-03")
	if err != nil {
		t.Fatalf("Observations: %v", err)
	}
	wantDates := []string{"2017-01-01", "2017-01-02", "2017-01-02", "2017-01-03"}
	wantTobs := []float64{71, 72, 72.5, 73}
	if len(obs) != len(wantDates) {
		t.Fatalf("Observations: got %d, want %d (%+v)", len(obs), len(wantDates), obs)
	}
	for i := range obs {
		if obs[i].Date != wantDates[i] || obs[i].TemperatureObserved != wantTobs[i] {
			t.Errorf("obs[%d] = %+v, want (%s, %v)", i, obs[i], wantDates[i], wantTobs[i])
		}
	}
}

func TestTemperatureStats(t *testing.T) {
	db := setupTestDB(t)
	mustExec(t, db, `INSERT INTO measurement (station, date, tobs) VALUES
		('A', '2017-01-01', 60), ('B', '2017-01-02', 70), ('A', '2017-01-03', 80), ('A', '2017-02-01', 90)`)
	s := acquire(t, db)
	ctx := context.Background()

	t.Run("open ended", func(t *testing.T) {
		agg, err := s.TemperatureStats(ctx, "2017-01-02", nil)
		if err != nil {
			t.Fatalf("TemperatureStats: %v", err)
		}
		if *agg.Min != 70 || *agg.Max != 90 || *agg.Avg != 80 {
			t.Errorf("agg = %v/%v/%v, want 70/90/80", *agg.Min, *agg.Max, *agg.Avg)
		}
	})

	t.Run("closed range", func(t *testing.T) {
		end := "2017-01-03"
		agg, err := s.TemperatureStats(ctx, "2017-01-01", &end)
		if err != nil {
			t.Fatalf("TemperatureStats: %v", err)
		}
		if *agg.Min != 60 || *agg.Max != 80 || *agg.Avg != 70 {
			t.Errorf("agg = %v/%v/%v, want 60/80/70", *agg.Min, *agg.Max, *agg.Avg)
		}
	})

	t.Run("empty range yields nulls", func(t *testing.T) {
		end := "2016-01-01"
		agg, err := s.TemperatureStats(ctx, "2017-01-01", &end)
		if err != nil {
			t.Fatalf("TemperatureStats: %v", err)
		}
		if agg.Min != nil || agg.Max != nil || agg.Avg != nil {
			t.Errorf("agg = %+v, want all nil", agg)
		}
	})
}

// The store is populated externally and may carry only the named columns.
func TestSession_StoreWithoutSurrogateID(t *testing.T) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	mustExec(t, db, `CREATE TABLE measurement (station TEXT, date TEXT, prcp FLOAT, tobs FLOAT)`)
	mustExec(t, db, `CREATE TABLE station (station TEXT, name TEXT)`)
	mustExec(t, db, `INSERT INTO station (station, name) VALUES ('USC00519397', 'WAIKIKI')`)
	mustExec(t, db, `INSERT INTO measurement (station, date, prcp, tobs) VALUES
		('USC00519397', '2017-08-22', 0.10, 80),
		('USC00519397', '2017-08-22', 0.20, 81),
		('USC00519397', '2017-08-23', NULL, 82)`)

	s := acquire(t, db)
	ctx := context.Background()

	rows, err := s.Precipitation(ctx, "2017-08-22", "2017-08-23")
	if err != nil {
		t.Fatalf("Precipitation: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Precipitation rows = %d, want 3", len(rows))
	}
	// Insertion order breaks ties within a date and station.
	if rows[1].Precipitation == nil || *rows[1].Precipitation != 0.20 {
		t.Errorf("second row prcp = %v, want 0.20", rows[1].Precipitation)
	}

	obs, err := s.Observations(ctx, "USC00519397", "2017-08-22", "2017-08-23")
	if err != nil {
		t.Fatalf("Observations: %v", err)
	}
	if len(obs) != 3 || obs[0].TemperatureObserved != 80 || obs[1].TemperatureObserved != 81 || obs[2].Date != "2017-08-23" {
		t.Errorf("Observations = %+v, want 80, 81 on 2017-08-22 then 2017-08-23", obs)
	}

	station, ok, err := s.MostActiveStation(ctx)
	if err != nil || !ok || station != "USC00519397" {
		t.Errorf("MostActiveStation = %q, %v, %v; want USC00519397", station, ok, err)
	}
}
