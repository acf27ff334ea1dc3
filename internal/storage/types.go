package storage

import (
	"errors"
	"time"
)

var ErrDisabled = errors.New("storage disabled")

// Config configures storage.
//
// Driver values:
//   - "file": dependency-free file backend (jsonl + snapshot)
//   - "sqlite": SQLite database file
//
// If Driver is empty or "none", storage is disabled.
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// AuditEntry records one dispatched notification or admin action.
// Keep it compact and schema-stable.
type AuditEntry struct {
	At     time.Time
	UserID int64
	RaceID int
	Label  string
	Event  string // "dispatched", "failed", "command", ...
	Detail string
	Error  string
	TookMS int64
}
