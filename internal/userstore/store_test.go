package userstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Bakaface/gpro-qualy-reminder-bot/pkg/logx"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "users.json")
	return NewStore(path, logx.Nop())
}

func TestParseGroup(t *testing.T) {
	tests := []struct {
		in      string
		want    Group
		wantErr bool
	}{
		{in: "E", want: Group{Kind: GroupElite}},
		{in: "e", want: Group{Kind: GroupElite}},
		{in: "M3", want: Group{Kind: GroupMaster, Number: 3}},
		{in: "p12", want: Group{Kind: GroupPro, Number: 12}},
		{in: "A999", want: Group{Kind: GroupAmateur, Number: 999}},
		{in: "R11", want: Group{Kind: GroupRookie, Number: 11}},
		{in: "", want: Group{}},
		{in: "E5", wantErr: true},
		{in: "M", wantErr: true},
		{in: "M0", wantErr: true},
		{in: "X3", wantErr: true},
		{in: "M1000", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseGroup(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseGroup(%q): expected error, got %+v", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseGroup(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseGroup(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func TestGroupCodeRoundTrip(t *testing.T) {
	for _, code := range []string{"E", "M3", "P12", "A999", "R1"} {
		g, err := ParseGroup(code)
		if err != nil {
			t.Fatalf("ParseGroup(%q): %v", code, err)
		}
		if got := g.Code(); got != code {
			t.Errorf("Code() = %q, want %q", got, code)
		}
	}
	if got := (Group{}).Code(); got != "" {
		t.Errorf("unset group Code() = %q, want empty", got)
	}
}

func TestParseTimeInput(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{in: "20m", want: 20},
		{in: "2h", want: 120},
		{in: "1h 30m", want: 90},
		{in: "1h30m", want: 90},
		{in: "45", want: 45},
		{in: " 2H ", want: 120},
		{in: "", wantErr: true},
		{in: "soon", wantErr: true},
		{in: "m", wantErr: true},
	}
	for _, tt := range tests {
		got, err := ParseTimeInput(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseTimeInput(%q): expected error, got %d", tt.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseTimeInput(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTimeInput(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestValidateCustomMinutes(t *testing.T) {
	tests := []struct {
		minutes int
		ok      bool
	}{
		{19, false},
		{20, true},
		{4200, true},
		{4201, false},
	}
	for _, tt := range tests {
		err := ValidateCustomMinutes(tt.minutes)
		if tt.ok && err != nil {
			t.Errorf("ValidateCustomMinutes(%d): %v", tt.minutes, err)
		}
		if !tt.ok && err == nil {
			t.Errorf("ValidateCustomMinutes(%d): expected error", tt.minutes)
		}
	}
}

func TestStoreLoadMissingFile(t *testing.T) {
	s := newTestStore(t)
	if err := s.Load(); err != nil {
		t.Fatalf("Load on missing file: %v", err)
	}
	if got := s.List(); len(got) != 0 {
		t.Fatalf("expected empty store, got %d users", len(got))
	}
}

func TestStoreUpdatePersists(t *testing.T) {
	s := newTestStore(t)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	err := s.Update(42, func(u *User) error {
		u.UILang = "ru"
		return nil
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}

	// Reload from disk through a fresh store.
	s2 := NewStore(s.path, logx.Nop())
	if err := s2.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	u := s2.Get(42)
	if u == nil {
		t.Fatal("user missing after reload")
	}
	if u.UILang != "ru" {
		t.Errorf("UILang = %q, want ru", u.UILang)
	}
	if u.LinkLang != DefaultLinkLang {
		t.Errorf("LinkLang = %q, want default %q", u.LinkLang, DefaultLinkLang)
	}
	if !u.NotificationEnabled(Label48h) {
		t.Error("default notification toggle should be on")
	}
}

func TestStoreRegisterPersistsFirstContact(t *testing.T) {
	s := newTestStore(t)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	u, created := s.Register(42)
	if !created {
		t.Fatal("first Register should report created")
	}
	if u.UILang != DefaultUILang || !u.NotificationEnabled(Label48h) {
		t.Errorf("fresh record missing defaults: %+v", u)
	}
	if got := len(s.List()); got != 1 {
		t.Fatalf("List() has %d users after Register, want 1", got)
	}

	if _, created := s.Register(42); created {
		t.Error("second Register should not report created")
	}

	// The default record must survive a restart even if the user never
	// touched a setting.
	s2 := NewStore(s.path, logx.Nop())
	if err := s2.Load(); err != nil {
		t.Fatalf("reload: %v", err)
	}
	if s2.Get(42) == nil {
		t.Fatal("registered user missing after reload")
	}
}

func TestStoreToggleNotification(t *testing.T) {
	s := newTestStore(t)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	state, err := s.ToggleNotification(7, Label10min)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if state {
		t.Error("first toggle should disable the default-on label")
	}
	state, err = s.ToggleNotification(7, Label10min)
	if err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if !state {
		t.Error("second toggle should re-enable")
	}
}

func TestStoreCustomSlots(t *testing.T) {
	s := newTestStore(t)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	if err := s.SetCustomSlot(1, 0, 19); err == nil {
		t.Error("expected error for 19 minutes")
	}
	if err := s.SetCustomSlot(1, 0, 90); err != nil {
		t.Fatalf("SetCustomSlot: %v", err)
	}
	if err := s.SetCustomSlot(1, 2, 90); err == nil {
		t.Error("expected error for out-of-range slot index")
	}
	u := s.Get(1)
	if u == nil || !u.CustomSlots[0].Enabled || u.CustomSlots[0].MinutesBefore != 90 {
		t.Fatalf("slot not stored: %+v", u)
	}
	if err := s.DisableCustomSlot(1, 0); err != nil {
		t.Fatalf("DisableCustomSlot: %v", err)
	}
	u = s.Get(1)
	if u.CustomSlots[0].Enabled {
		t.Error("slot should be disabled")
	}
	if u.CustomSlots[0].MinutesBefore != 90 {
		t.Error("disable should keep the configured offset")
	}
}

func TestStoreQualiDone(t *testing.T) {
	s := newTestStore(t)
	if err := s.Load(); err != nil {
		t.Fatal(err)
	}
	if err := s.MarkQualiDone(5, 3); err != nil {
		t.Fatal(err)
	}
	u := s.Get(5)
	if !u.QualiDone(3) {
		t.Error("QualiDone(3) = false after mark")
	}
	if u.QualiDone(4) {
		t.Error("QualiDone(4) should be false")
	}
	if err := s.ResetQuali(5); err != nil {
		t.Fatal(err)
	}
	if s.Get(5).QualiDone(3) {
		t.Error("QualiDone(3) should be false after reset")
	}
}

func TestStoreLoadBadID(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "users.json")
	content := `{"abc": {"ui_lang": "en"}, "9": {"ui_lang": "de"}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewStore(path, logx.Nop())
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got := len(s.List()); got != 1 {
		t.Fatalf("expected 1 valid user, got %d", got)
	}
	if s.Get(9) == nil {
		t.Error("valid record dropped")
	}
}
