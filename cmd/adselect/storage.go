package main

import (
	"fmt"
	"log/slog"

	corecfg "github.com/aevon-lab/adselect/internal/core/config"
	"github.com/aevon-lab/adselect/internal/core/storage"
	"github.com/aevon-lab/adselect/internal/core/storage/memory"
	"github.com/aevon-lab/adselect/internal/core/storage/postgres"
	"github.com/aevon-lab/adselect/internal/migrations"
)

// openRepository returns the configured repository and its close function.
// Postgres migrations run first when database.auto_migrate is set.
func openRepository(cfg corecfg.DatabaseConfig) (storage.Repository, func(), error) {
	switch cfg.Type {
	case "memory":
		slog.Warn("[Storage] Using in-memory repository; data is lost on restart")
		return memory.NewRepository(), func() {}, nil

	case "postgres":
		db, err := postgres.Open(cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns)
		if err != nil {
			return nil, nil, err
		}
		if _, err := migrations.RunMigrations(db, cfg.AutoMigrate); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("run migrations: %w", err)
		}
		adapter, err := postgres.NewAdapterWithDB(db)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		return adapter, func() {
			if err := adapter.Close(); err != nil {
				slog.Error("[Storage] Failed to close postgres adapter", "error", err)
			}
		}, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database.type %q", cfg.Type)
	}
}
