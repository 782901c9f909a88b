// Command migrate applies the ledger schema to the Supabase Postgres
// database.
//
// Usage:
//
//	migrate [flags] <command> [arguments]
//
// The connection string comes from SUPABASE_DB_URL (or DATABASE_URL),
// read through the same .env / environment layering as the server.
package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/lib/pq"

	"github.com/sakif/bananagen/internal/config"
	"github.com/sakif/bananagen/internal/repository/postgrest"
)

func main() {
	var dbURL string
	flag.StringVar(&dbURL, "database", "", "Postgres connection string (default: SUPABASE_DB_URL)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	if dbURL == "" {
		var err error
		dbURL, err = config.LoadDBURL(".env")
		if err != nil {
			logger.Error("failed to load configuration", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}
	if dbURL == "" {
		logger.Error("no database: set SUPABASE_DB_URL or pass -database")
		os.Exit(1)
	}

	if err := run(logger, dbURL, args); err != nil {
		logger.Error("migration failed",
			slog.String("command", args[0]),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, dbURL string, args []string) error {
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("pinging database: %w", err)
	}

	src, err := iofs.New(postgrest.Migrations, "migrations")
	if err != nil {
		return fmt.Errorf("loading embedded migrations: %w", err)
	}
	driver, err := migratepostgres.WithInstance(db, &migratepostgres.Config{})
	if err != nil {
		return fmt.Errorf("creating migrate driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	switch cmd := args[0]; cmd {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "step":
		n, perr := intArg(args)
		if perr != nil {
			return perr
		}
		err = m.Steps(n)
	case "goto":
		n, perr := intArg(args)
		if perr != nil {
			return perr
		}
		if n < 0 {
			return fmt.Errorf("version must not be negative, got %d", n)
		}
		err = m.Migrate(uint(n))
	case "force":
		n, perr := intArg(args)
		if perr != nil {
			return perr
		}
		logger.Warn("forcing migration version", slog.Int("version", n))
		err = m.Force(n)
	case "version":
		v, dirty, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			logger.Info("no migrations applied")
			return nil
		}
		if verr != nil {
			return verr
		}
		logger.Info("current migration version", slog.Uint64("version", uint64(v)), slog.Bool("dirty", dirty))
		return nil
	default:
		printUsage()
		return fmt.Errorf("unknown command %q", cmd)
	}

	if errors.Is(err, migrate.ErrNoChange) {
		logger.Info("no change", slog.String("command", args[0]))
		return nil
	}
	if err != nil {
		return err
	}
	logger.Info("migration complete", slog.String("command", args[0]))
	return nil
}

func intArg(args []string) (int, error) {
	if len(args) < 2 {
		return 0, fmt.Errorf("usage: migrate %s <n>", args[0])
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", args[1])
	}
	return n, nil
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Ledger schema migration tool

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                Apply all pending migrations
  down              Roll back all migrations
  step <n>          Apply n migrations (positive=up, negative=down)
  goto <version>    Migrate to a specific version
  force <version>   Set the version without running migrations
  version           Show the current migration version

Flags:
  -database string  Postgres connection string (default: SUPABASE_DB_URL)
`)
}
