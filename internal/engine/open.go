package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/celerix-dev/celerix-leads/internal/config"
)

// Open builds the backend selected by cfg.Driver.
func Open(ctx context.Context, cfg config.Storage, log *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case config.DriverMemory, "":
		return NewMemStore(nil, nil), nil

	case config.DriverFile:
		var key []byte
		if cfg.EncryptionKey != "" {
			key = []byte(cfg.EncryptionKey)
		}
		p, err := NewPersistence(cfg.DataDir, key, log)
		if err != nil {
			return nil, err
		}
		initial, err := p.LoadAll()
		if err != nil {
			_ = p.Close()
			return nil, fmt.Errorf("load snapshot: %w", err)
		}
		log.Info("loaded lead snapshot", "data_dir", cfg.DataDir, "leads", len(initial))
		return NewMemStore(initial, p), nil

	case config.DriverSQLite:
		return OpenSQLite(ctx, cfg.DSN)

	case config.DriverPostgres:
		return OpenPostgres(ctx, cfg.DSN)

	case config.DriverRedis:
		return OpenRedis(ctx, cfg.RedisURL, cfg.RedisPrefix)

	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
