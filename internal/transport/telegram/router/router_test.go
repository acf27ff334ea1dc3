package router

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/calendar"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/i18n"
	kit "github.com/Bakaface/gpro-qualy-reminder-bot/internal/transport"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/userstore"
	"github.com/Bakaface/gpro-qualy-reminder-bot/pkg/logx"
)

type recordedSend struct {
	ChatID int64
	Text   string
	Opt    *kit.SendOptions
}

type fakeAdapter struct {
	mu    sync.Mutex
	sends []recordedSend
	edits []recordedSend
}

func (f *fakeAdapter) Start(ctx context.Context, out chan<- kit.Update) error { return nil }
func (f *fakeAdapter) Stop(ctx context.Context) error                         { return nil }

func (f *fakeAdapter) SendText(ctx context.Context, to kit.ChatTarget, text string, opt *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, recordedSend{ChatID: to.ChatID, Text: text, Opt: opt})
	return kit.MessageRef{ChatID: to.ChatID, MessageID: len(f.sends)}, nil
}

func (f *fakeAdapter) EditText(ctx context.Context, ref kit.MessageRef, text string, opt *kit.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, recordedSend{ChatID: ref.ChatID, Text: text, Opt: opt})
	return nil
}

func (f *fakeAdapter) AnswerCallback(ctx context.Context, callbackID, text string) error { return nil }

func (f *fakeAdapter) lastSend(t *testing.T) recordedSend {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sends) == 0 {
		t.Fatal("no sends recorded")
	}
	return f.sends[len(f.sends)-1]
}

func (f *fakeAdapter) lastEdit(t *testing.T) recordedSend {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		t.Fatal("no edits recorded")
	}
	return f.edits[len(f.edits)-1]
}

func newTestRouter(t *testing.T) (*Router, *fakeAdapter, *userstore.Store) {
	t.Helper()
	dir := t.TempDir()

	users := userstore.NewStore(filepath.Join(dir, "users.json"), logx.Nop())
	if err := users.Load(); err != nil {
		t.Fatalf("users load: %v", err)
	}

	cal := calendar.NewStore(filepath.Join(dir, "season.json"), filepath.Join(dir, "next.json"), logx.Nop())
	close1 := time.Now().UTC().Add(72 * time.Hour).Truncate(time.Minute)
	if err := cal.ReplaceCurrent([]*calendar.Race{{
		ID:         1,
		Track:      "Interlagos (Brazil)",
		QualiClose: close1,
		Start:      close1.Add(calendar.RaceStartOffset),
	}}); err != nil {
		t.Fatalf("calendar seed: %v", err)
	}

	bundle, err := i18n.Load()
	if err != nil {
		t.Fatalf("i18n load: %v", err)
	}

	ad := &fakeAdapter{}
	r := New(Deps{
		Adapter:  ad,
		Users:    users,
		Calendar: cal,
		Bundle:   bundle,
		Admins:   []int64{900},
		Log:      logx.Nop(),
	})
	return r, ad, users
}

func msg(from int64, text string) *kit.Message {
	return &kit.Message{ID: 1, ChatID: from, FromID: from, Text: text}
}

func callback(from int64, data string) *kit.Callback {
	return &kit.Callback{ID: "cb1", ChatID: from, FromID: from, MessageID: 7, Data: data}
}

func TestStartNewUserShowsOnboarding(t *testing.T) {
	r, ad, users := newTestRouter(t)
	r.handleMessage(context.Background(), msg(1, "/start"))

	sent := ad.lastSend(t)
	if !strings.Contains(sent.Text, "Welcome to GPRO Bot") {
		t.Errorf("welcome text missing: %q", sent.Text)
	}
	if len(sent.Opt.Keyboard) != 2 {
		t.Fatalf("keyboard rows = %d, want 2", len(sent.Opt.Keyboard))
	}
	if sent.Opt.Keyboard[0][0].Data != "onboard_ui_lang_en" {
		t.Errorf("first button data = %q", sent.Opt.Keyboard[0][0].Data)
	}
	if users.Get(1) == nil {
		t.Error("user not registered")
	}
	// Registration must persist immediately: a user who never touches a
	// setting still has to appear in List for notification fan-out.
	if got := len(users.List()); got != 1 {
		t.Errorf("List() has %d users after /start, want 1", got)
	}
}

func TestStartExistingUserShowsCommandList(t *testing.T) {
	r, ad, _ := newTestRouter(t)
	ctx := context.Background()
	r.handleMessage(ctx, msg(1, "/start"))
	r.handleMessage(ctx, msg(1, "/start"))

	sent := ad.lastSend(t)
	if !strings.Contains(sent.Text, "/calendar") {
		t.Errorf("command list missing: %q", sent.Text)
	}
}

func TestGroupInputFlow(t *testing.T) {
	r, ad, users := newTestRouter(t)
	ctx := context.Background()

	r.handleCallback(ctx, callback(5, "group_menu"))
	if !strings.Contains(ad.lastEdit(t).Text, "Group") {
		t.Fatalf("group menu not shown: %q", ad.lastEdit(t).Text)
	}

	// Invalid code keeps the state alive.
	r.handleMessage(ctx, msg(5, "Z99"))
	if !strings.Contains(ad.lastSend(t).Text, "Invalid format") {
		t.Fatalf("invalid-format reply missing: %q", ad.lastSend(t).Text)
	}

	r.handleMessage(ctx, msg(5, "m3"))
	if !strings.Contains(ad.lastSend(t).Text, "Master - 3") {
		t.Fatalf("group confirmation missing: %q", ad.lastSend(t).Text)
	}
	if got := users.Get(5).Group.Code(); got != "M3" {
		t.Errorf("stored group = %q, want M3", got)
	}
}

func TestCommandCancelsPendingState(t *testing.T) {
	r, ad, users := newTestRouter(t)
	ctx := context.Background()

	r.handleCallback(ctx, callback(5, "group_menu"))
	r.handleMessage(ctx, msg(5, "/settings"))
	// Plain text after a command must not be treated as group input.
	r.handleMessage(ctx, msg(5, "M3"))

	if users.Get(5).Group.Code() != "" {
		t.Error("group input processed after state was cancelled")
	}
	if strings.Contains(ad.lastSend(t).Text, "Master") {
		t.Errorf("unexpected group confirmation: %q", ad.lastSend(t).Text)
	}
}

func TestToggleNotificationCallback(t *testing.T) {
	r, _, users := newTestRouter(t)
	ctx := context.Background()

	r.handleCallback(ctx, callback(5, "toggle_48h"))
	if users.Get(5).NotificationEnabled(userstore.Label48h) {
		t.Error("48h still enabled after toggle")
	}
	r.handleCallback(ctx, callback(5, "toggle_48h"))
	if !users.Get(5).NotificationEnabled(userstore.Label48h) {
		t.Error("48h not re-enabled after second toggle")
	}
}

func TestQualiDoneCallback(t *testing.T) {
	r, _, users := newTestRouter(t)
	ctx := context.Background()

	r.handleCallback(ctx, callback(5, "done_1"))
	if !users.Get(5).QualiDone(1) {
		t.Error("race 1 not marked done")
	}
	r.handleCallback(ctx, callback(5, "reset_1"))
	if users.Get(5).QualiDone(1) {
		t.Error("race 1 still marked done after reset")
	}
}

func TestCustomPresetCallback(t *testing.T) {
	r, _, users := newTestRouter(t)
	ctx := context.Background()

	r.handleCallback(ctx, callback(5, "custom_notif_set_0_360"))
	slot := users.Get(5).CustomSlots[0]
	if !slot.Enabled || slot.MinutesBefore != 360 {
		t.Errorf("slot = %+v, want enabled 360min", slot)
	}
}

func TestCustomTimeInputFlow(t *testing.T) {
	r, ad, users := newTestRouter(t)
	ctx := context.Background()

	r.handleCallback(ctx, callback(5, "custom_notif_input_1"))
	r.handleMessage(ctx, msg(5, "1h 30m"))

	slot := users.Get(5).CustomSlots[1]
	if !slot.Enabled || slot.MinutesBefore != 90 {
		t.Errorf("slot = %+v, want enabled 90min", slot)
	}
	if !strings.Contains(ad.lastSend(t).Text, "✅") {
		t.Errorf("confirmation missing: %q", ad.lastSend(t).Text)
	}
}

func TestCustomTimeInputRejectsOutOfRange(t *testing.T) {
	r, ad, users := newTestRouter(t)
	ctx := context.Background()

	r.handleCallback(ctx, callback(5, "custom_notif_input_0"))
	r.handleMessage(ctx, msg(5, "5m"))

	if users.Get(5).CustomSlots[0].Enabled {
		t.Error("out-of-range slot was saved")
	}
	if !strings.Contains(ad.lastSend(t).Text, "❌") {
		t.Errorf("error reply missing: %q", ad.lastSend(t).Text)
	}
}

func TestAdminOnlyCommands(t *testing.T) {
	r, ad, _ := newTestRouter(t)
	ctx := context.Background()

	r.handleMessage(ctx, msg(1, "/users"))
	if !strings.Contains(ad.lastSend(t).Text, "admins only") {
		t.Errorf("non-admin not rejected: %q", ad.lastSend(t).Text)
	}

	r.handleMessage(ctx, msg(900, "/users"))
	if strings.Contains(ad.lastSend(t).Text, "admins only") {
		t.Error("admin rejected")
	}
}

func TestCalendarCommand(t *testing.T) {
	r, ad, _ := newTestRouter(t)
	r.handleMessage(context.Background(), msg(1, "/calendar"))

	sent := ad.lastSend(t)
	if !strings.Contains(sent.Text, "#1") || !strings.Contains(sent.Text, "Interlagos") {
		t.Errorf("calendar body missing race: %q", sent.Text)
	}
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		in       string
		wantName string
		wantArgs int
	}{
		{"/start", "start", 0},
		{"/weather force", "weather", 1},
		{"/status@GproQualyBot", "status", 0},
		{"/Announce hello world", "announce", 2},
	}
	for _, tc := range tests {
		name, args := splitCommand(tc.in)
		if name != tc.wantName || len(args) != tc.wantArgs {
			t.Errorf("splitCommand(%q) = (%q, %d args), want (%q, %d)", tc.in, name, len(args), tc.wantName, tc.wantArgs)
		}
	}
}

func TestLanguagePagesCoverAllCodes(t *testing.T) {
	seen := map[string]bool{}
	for _, page := range linkLangPages {
		for _, code := range page {
			if seen[code] {
				t.Errorf("code %s appears twice", code)
			}
			seen[code] = true
			if _, ok := linkLangNames[code]; !ok {
				t.Errorf("code %s has no display name", code)
			}
		}
	}
	if len(seen) != len(linkLangNames) {
		t.Errorf("pages cover %d codes, names has %d", len(seen), len(linkLangNames))
	}
}
