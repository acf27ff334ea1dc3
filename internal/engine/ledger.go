package engine

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/storage"
	"github.com/Bakaface/gpro-qualy-reminder-bot/pkg/logx"
)

// RetentionDays is how long fired keys are kept before purge.
const RetentionDays = 30

// Key identifies one logical notification instance. Global sends
// (standard windows, race events) use UserID 0; custom per-user slots
// carry the user id.
type Key struct {
	UserID int64
	RaceID int
	Label  string
}

func (k Key) String() string {
	return strconv.FormatInt(k.UserID, 10) + ":" + strconv.Itoa(k.RaceID) + ":" + k.Label
}

func parseKey(s string) (Key, bool) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 {
		return Key{}, false
	}
	uid, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return Key{}, false
	}
	rid, err := strconv.Atoi(parts[1])
	if err != nil || parts[2] == "" {
		return Key{}, false
	}
	return Key{UserID: uid, RaceID: rid, Label: parts[2]}, true
}

// Ledger is the dedup store: key -> when the send attempt was accepted.
// It lives in process memory; a storage backend, when present, only
// snapshots it best-effort so a restart inside a still-open window does
// not re-notify.
type Ledger struct {
	mu    sync.Mutex
	fired map[Key]time.Time

	store storage.Store // optional
	log   logx.Logger
}

func NewLedger(store storage.Store, log logx.Logger) *Ledger {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Ledger{fired: make(map[Key]time.Time), store: store, log: log}
}

// Restore loads the persisted snapshot, if any. Unparseable keys are
// skipped.
func (l *Ledger) Restore(ctx context.Context) error {
	if l.store == nil {
		return nil
	}
	persisted, err := l.store.LoadFired(ctx)
	if err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	for raw, at := range persisted {
		k, ok := parseKey(raw)
		if !ok {
			l.log.Warn("skipping unparseable ledger key", logx.String("key", raw))
			continue
		}
		l.fired[k] = at
	}
	l.log.Info("ledger restored", logx.Int("entries", len(l.fired)))
	return nil
}

func (l *Ledger) HasFired(k Key) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.fired[k]
	return ok
}

// RecordFired marks the key as attempted. The persistent write is
// best-effort: a storage failure never blocks the pass.
func (l *Ledger) RecordFired(ctx context.Context, k Key, now time.Time) {
	l.mu.Lock()
	l.fired[k] = now
	l.mu.Unlock()

	if l.store != nil {
		wctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
		if err := l.store.PutFired(wctx, k.String(), now); err != nil {
			l.log.Debug("ledger persist failed", logx.String("key", k.String()), logx.Err(err))
		}
		cancel()
	}
}

// PurgeOlderThan drops entries recorded before cutoff.
func (l *Ledger) PurgeOlderThan(ctx context.Context, cutoff time.Time) {
	l.mu.Lock()
	for k, at := range l.fired {
		if at.Before(cutoff) {
			delete(l.fired, k)
		}
	}
	l.mu.Unlock()

	if l.store != nil {
		wctx, cancel := context.WithTimeout(ctx, time.Second)
		if err := l.store.PruneFiredBefore(wctx, cutoff); err != nil {
			l.log.Debug("ledger prune failed", logx.Err(err))
		}
		cancel()
	}
}

// Reset clears all in-memory dedup state. Debug/test hook.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.fired = make(map[Key]time.Time)
	l.mu.Unlock()
}

// Len reports the number of live entries.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.fired)
}
