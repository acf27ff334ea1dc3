package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Bakaface/gpro-qualy-reminder-bot/pkg/logx"
)

func TestOpenDisabled(t *testing.T) {
	for _, driver := range []string{"", "none"} {
		st, err := Open(Config{Driver: driver}, logx.Nop())
		if err != nil {
			t.Fatalf("Open(%q): %v", driver, err)
		}
		if st != nil {
			t.Fatalf("Open(%q): expected nil store", driver)
		}
	}
}

func TestOpenUnknownDriver(t *testing.T) {
	if _, err := Open(Config{Driver: "redis"}, logx.Nop()); err == nil {
		t.Fatal("expected error for unknown driver")
	}
}

func TestFileStoreFiredRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "bot.db")
	cfg := Config{Driver: "file", Path: path}

	st, err := Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	now := time.Now().Truncate(time.Millisecond)
	old := now.Add(-31 * 24 * time.Hour)
	if err := st.PutFired(ctx, "1:3:10min", now); err != nil {
		t.Fatal(err)
	}
	if err := st.PutFired(ctx, "1:2:48h", old); err != nil {
		t.Fatal(err)
	}
	if err := st.Close(); err != nil {
		t.Fatal(err)
	}

	// Reopen: journal replay restores both records.
	st, err = Open(cfg, logx.Nop())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer st.Close()
	fired, err := st.LoadFired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(fired) != 2 {
		t.Fatalf("LoadFired: got %d records, want 2", len(fired))
	}
	if got := fired["1:3:10min"]; !got.Equal(now) {
		t.Errorf("fired at = %v, want %v", got, now)
	}

	// Prune drops only the old record.
	if err := st.PruneFiredBefore(ctx, now.Add(-30*24*time.Hour)); err != nil {
		t.Fatal(err)
	}
	fired, err = st.LoadFired(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(fired) != 1 {
		t.Fatalf("after prune: got %d records, want 1", len(fired))
	}
	if _, ok := fired["1:2:48h"]; ok {
		t.Error("old record survived prune")
	}
}

func TestFileStoreAudit(t *testing.T) {
	ctx := context.Background()
	st, err := Open(Config{Driver: "file", Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	err = st.AppendAudit(ctx, AuditEntry{
		At: time.Now(), UserID: 42, RaceID: 3, Label: "10min", Event: "dispatched",
	})
	if err != nil {
		t.Fatalf("AppendAudit: %v", err)
	}
}
