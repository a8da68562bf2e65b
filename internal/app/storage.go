package app

import (
	"context"
	"fmt"
	"log/slog"

	"custodywatch/internal/platform/badger"
	"custodywatch/internal/platform/config"
	"custodywatch/internal/platform/postgres"
	"custodywatch/pkg/platform/audit"
	badgerstore "custodywatch/pkg/platform/audit/store/badger"
	pgstore "custodywatch/pkg/platform/audit/store/postgres"
)

// OpenStore returns the ledger store for the configured driver and a func
// that releases it. The memory driver persists nothing.
func OpenStore(ctx context.Context, cfg config.Storage, log *slog.Logger) (audit.Store, func(), error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := postgres.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		store := pgstore.New(db)
		if err := store.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		log.InfoContext(ctx, "audit store ready", "driver", cfg.Driver)
		return store, func() { _ = db.Close() }, nil

	case config.DriverBadger:
		bcfg := badger.DefaultConfig(cfg.BadgerPath)
		bcfg.Logger = log
		db, err := badger.Open(bcfg)
		if err != nil {
			return nil, nil, err
		}
		log.InfoContext(ctx, "audit store ready", "driver", cfg.Driver, "path", cfg.BadgerPath)
		return badgerstore.New(db.DB), func() {
			if err := db.Close(); err != nil {
				log.Error("close badger", "error", err)
			}
		}, nil

	case config.DriverMemory:
		return nil, func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
}
