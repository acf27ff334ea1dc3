package engine

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/storage"
	"github.com/Bakaface/gpro-qualy-reminder-bot/pkg/logx"
)

func TestLedgerOneShot(t *testing.T) {
	l := NewLedger(nil, logx.Nop())
	ctx := context.Background()
	k := Key{RaceID: 3, Label: "48h"}

	if l.HasFired(k) {
		t.Fatal("fresh ledger should not have fired")
	}
	l.RecordFired(ctx, k, time.Now())
	if !l.HasFired(k) {
		t.Fatal("HasFired false after record")
	}
	// Distinct user scope is a distinct key.
	if l.HasFired(Key{UserID: 42, RaceID: 3, Label: "48h"}) {
		t.Fatal("user-scoped key should be independent")
	}
}

func TestLedgerPurge(t *testing.T) {
	l := NewLedger(nil, logx.Nop())
	ctx := context.Background()
	now := time.Now()

	l.RecordFired(ctx, Key{RaceID: 1, Label: "48h"}, now.Add(-31*24*time.Hour))
	l.RecordFired(ctx, Key{RaceID: 2, Label: "48h"}, now.Add(-29*24*time.Hour))

	l.PurgeOlderThan(ctx, now.Add(-30*24*time.Hour))

	if l.HasFired(Key{RaceID: 1, Label: "48h"}) {
		t.Error("31-day-old entry should be purged")
	}
	if !l.HasFired(Key{RaceID: 2, Label: "48h"}) {
		t.Error("29-day-old entry should be retained")
	}
}

func TestLedgerReset(t *testing.T) {
	l := NewLedger(nil, logx.Nop())
	l.RecordFired(context.Background(), Key{RaceID: 1, Label: "2h"}, time.Now())
	l.Reset()
	if l.Len() != 0 {
		t.Fatalf("Len = %d after reset", l.Len())
	}
}

func TestLedgerRestore(t *testing.T) {
	ctx := context.Background()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(t.TempDir(), "bot.db")}, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()

	l := NewLedger(st, logx.Nop())
	l.RecordFired(ctx, Key{UserID: 7, RaceID: 3, Label: "custom_1"}, time.Now())
	l.RecordFired(ctx, Key{RaceID: 3, Label: "opens_soon"}, time.Now())

	// A fresh ledger over the same store sees both entries.
	l2 := NewLedger(st, logx.Nop())
	if err := l2.Restore(ctx); err != nil {
		t.Fatal(err)
	}
	if !l2.HasFired(Key{UserID: 7, RaceID: 3, Label: "custom_1"}) {
		t.Error("custom key lost across restore")
	}
	if !l2.HasFired(Key{RaceID: 3, Label: "opens_soon"}) {
		t.Error("global key lost across restore")
	}
}

func TestParseKey(t *testing.T) {
	tests := []struct {
		in   string
		want Key
		ok   bool
	}{
		{"0:3:48h", Key{RaceID: 3, Label: "48h"}, true},
		{"42:5:custom_2", Key{UserID: 42, RaceID: 5, Label: "custom_2"}, true},
		{"junk", Key{}, false},
		{"x:3:48h", Key{}, false},
		{"1:2:", Key{}, false},
	}
	for _, tt := range tests {
		got, ok := parseKey(tt.in)
		if ok != tt.ok || got != tt.want {
			t.Errorf("parseKey(%q) = %+v,%v want %+v,%v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}
