package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/joao-fontenele/primeuro-storefront/internal/config"
	"github.com/joao-fontenele/primeuro-storefront/internal/docstore"
	"github.com/joao-fontenele/primeuro-storefront/internal/domain"
	"github.com/joao-fontenele/primeuro-storefront/internal/orders"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	flag.Parse()
	args := flag.Args()

	if len(args) < 1 {
		logger.Error("usage: migrate <up|down|version|statuses <from> <to>>")
		os.Exit(1)
	}

	cfg, err := config.Load("")
	if err != nil {
		logger.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if args[0] == "statuses" {
		if err := migrateStatuses(cfg, args[1:], logger); err != nil {
			logger.Error("status migration failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		return
	}

	if cfg.PostgresURL == "" {
		logger.Error("POSTGRES_URL environment variable is required")
		os.Exit(1)
	}

	m, err := migrate.New(cfg.MigrationsPath, cfg.PostgresURL)
	if err != nil {
		logger.Error("failed to create migrate instance", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer func() { _, _ = m.Close() }()

	command := args[0]

	switch command {
	case "up":
		err = m.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no pending migrations")
			return
		}
		if err != nil {
			logger.Error("migration up failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("migrations applied successfully")

	case "down":
		err = m.Steps(-1)
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Info("no migrations to rollback")
			return
		}
		if err != nil {
			logger.Error("migration down failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("migration rolled back successfully")

	case "version":
		version, dirty, err := m.Version()
		if errors.Is(err, migrate.ErrNilVersion) {
			logger.Info("no migrations applied yet")
			return
		}
		if err != nil {
			logger.Error("failed to get version", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("current migration version", slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))

	default:
		logger.Error("unknown command", slog.String("command", command))
		os.Exit(1)
	}
}

// migrateStatuses rewrites stored order statuses between schema versions,
// e.g. `migrate statuses v1 v3`.
func migrateStatuses(cfg *config.Config, args []string, logger *slog.Logger) error {
	if len(args) != 2 {
		return errors.New("usage: migrate statuses <from> <to>")
	}
	from, err := domain.ParseSchemaVersion(args[0])
	if err != nil {
		return err
	}
	to, err := domain.ParseSchemaVersion(args[1])
	if err != nil {
		return err
	}

	store, err := docstore.Open(cfg.StoreBackend, cfg.PostgresURL, logger)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	if err := store.Ping(ctx); err != nil {
		return err
	}

	_, err = orders.MigrateStatuses(ctx, store, from, to, logger)
	return err
}
