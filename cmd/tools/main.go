package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	_ "github.com/mattn/go-sqlite3"

	"climate-server/internal/config"
	"climate-server/internal/dataset"
	"climate-server/internal/logging"
	"climate-server/internal/migrate"
)

const appName = "climate-tools"

var version = "dev"

const usage = `usage: %s <command> [flags]
  migrate                                   apply pending schema migrations
  import -stations <csv> -measurements <csv> [-replace]
                                            migrate, then load both CSV files in one transaction
`

func main() {
	if err := config.LoadEnvFile(); err != nil {
		fmt.Fprintf(os.Stderr, "env file error: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logging.New(cfg, version, appName))

	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, usage, os.Args[0])
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, os.Args[1], os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, command string, args []string) error {
	switch command {
	case "migrate":
		conn, err := Open(cfg.Path)
		if err != nil {
			return err
		}
		defer closeDB(conn)
		applied, err := migrate.Run(ctx, conn)
		if err != nil {
			return err
		}
		slog.Info("migrations applied", "count", len(applied), "versions", applied)
		return nil
	case "import":
		return runImport(ctx, cfg, args)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func runImport(ctx context.Context, cfg config.Config, args []string) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	stationsPath := fs.String("stations", "", "stations CSV (station,name,latitude,longitude,elevation)")
	measurementsPath := fs.String("measurements", "", "measurements CSV (station,date,prcp,tobs)")
	replace := fs.Bool("replace", false, "delete existing rows before loading")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *stationsPath == "" || *measurementsPath == "" {
		return errors.New("-stations and -measurements are required")
	}

	stations, err := os.Open(*stationsPath)
	if err != nil {
		return err
	}
	defer func() { _ = stations.Close() }()
	measurements, err := os.Open(*measurementsPath)
	if err != nil {
		return err
	}
	defer func() { _ = measurements.Close() }()

	conn, err := Open(cfg.Path)
	if err != nil {
		return err
	}
	defer closeDB(conn)

	if _, err := migrate.Run(ctx, conn); err != nil {
		return err
	}
	res, err := dataset.Import(ctx, conn, stations, measurements, dataset.Options{Replace: *replace})
	if err != nil {
		return err
	}
	slog.Info("dataset imported",
		"path", cfg.Path,
		"stations", res.Stations,
		"measurements", res.Measurements,
		"replace", *replace,
	)
	return nil
}

// Open opens dbPath for writing, creating the file if needed.
func Open(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", buildDSN(filepath.Clean(dbPath)))
	if err != nil {
		return nil, fmt.Errorf("db open: %w", err)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	return db, nil
}

func closeDB(db *sql.DB) {
	if err := db.Close(); err != nil {
		slog.Error("db close", "err", err)
	}
}

// buildDSN keeps the default rollback journal: the server opens the file with
// mode=ro, which cannot recover a WAL database.
func buildDSN(dbPath string) string {
	params := []string{
		"_foreign_keys=on",
		"_busy_timeout=5000",
	}

	if strings.HasPrefix(dbPath, "file:") {
		sep := "?"
		if strings.Contains(dbPath, "?") {
			sep = "&"
		}
		return dbPath + sep + strings.Join(params, "&")
	}

	return fmt.Sprintf("file:%s?%s", dbPath, strings.Join(params, "&"))
}
