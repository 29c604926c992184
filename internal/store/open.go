package store

import (
	"context"
	"fmt"
)

// Backend names accepted by Open.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Config selects and configures a backend.
type Config struct {
	Backend     string
	Dir         string
	DatabaseURL string
	SQLitePath  string
	Pool        PoolConfig
}

// Open returns the Store for cfg.Backend.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case BackendFile, "":
		return NewFileStore(cfg.Dir)
	case BackendPostgres:
		return NewPostgres(ctx, cfg.DatabaseURL, cfg.Pool)
	case BackendSQLite:
		return NewSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
