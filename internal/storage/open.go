package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Bakaface/gpro-qualy-reminder-bot/pkg/logx"
)

// Store is the persistence API used by the engine and the app wiring.
// Fired records are the dedup ledger: key -> when the notification was
// dispatched.
type Store interface {
	AppendAudit(ctx context.Context, e AuditEntry) error
	PutFired(ctx context.Context, key string, at time.Time) error
	LoadFired(ctx context.Context) (map[string]time.Time, error)
	PruneFiredBefore(ctx context.Context, cutoff time.Time) error
	Close() error
}

// Open initializes the configured store.
// It returns (nil, nil) if storage is disabled.
func Open(cfg Config, log logx.Logger) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == "none" {
		return nil, nil
	}

	switch driver {
	case "file":
		return openFile(cfg, log)
	case "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
