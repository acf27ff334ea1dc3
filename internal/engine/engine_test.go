package engine

import (
	"context"
	"errors"
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

// --- fakes ---

type fakeCalendar struct {
	mu            sync.Mutex
	races         []*calendar.Race
	weatherWrites int
}

func (f *fakeCalendar) CurrentSeason() []*calendar.Race {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*calendar.Race(nil), f.races...)
}

func (f *fakeCalendar) RaceByID(id int) (*calendar.Race, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.races {
		if r.ID == id {
			return r, true
		}
	}
	return nil, false
}

func (f *fakeCalendar) PersistWeather(raceID int, fc *calendar.Forecast) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.weatherWrites++
	for _, r := range f.races {
		if r.ID == raceID {
			r.Weather = fc
			r.WeatherUnavailable = fc == nil
			return nil
		}
	}
	return errors.New("race not found")
}

type fakeStatus struct {
	mu    sync.Mutex
	open  map[int]bool
	calls int
}

func (f *fakeStatus) IsOpen(ctx context.Context, raceID int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.open[raceID], nil
}

type fakeWeather struct {
	mu       sync.Mutex
	failures int // fail this many calls before succeeding
	calls    int
}

func (f *fakeWeather) FetchWeather(ctx context.Context, raceID int) (*calendar.Forecast, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failures {
		return nil, errors.New("upstream unavailable")
	}
	return &calendar.Forecast{Q1: calendar.SessionForecast{Weather: "Sunny", Temp: 22, Humidity: 40}}, nil
}

type fakeUsers struct{ users []*userstore.User }

func (f *fakeUsers) List() []*userstore.User { return f.users }

type sentMsg struct {
	ChatID int64
	Text   string
	Key    string
}

type captureNotifier struct {
	mu   sync.Mutex
	sent []sentMsg
}

func (c *captureNotifier) Notify(ctx context.Context, n kit.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, sentMsg{ChatID: n.Target.ChatID, Text: n.Text, Key: n.Key})
	return nil
}

func (c *captureNotifier) byLabel(label string) []sentMsg {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []sentMsg
	for _, m := range c.sent {
		if strings.HasSuffix(m.Key, ":"+label) {
			out = append(out, m)
		}
	}
	return out
}

// panicNotifier panics on notifications whose dedup key contains
// match, passing everything else through to the capture.
type panicNotifier struct {
	captureNotifier
	match string
}

func (p *panicNotifier) Notify(ctx context.Context, n kit.Notification) error {
	if strings.Contains(n.Key, p.match) {
		panic("notifier exploded")
	}
	return p.captureNotifier.Notify(ctx, n)
}

// --- harness ---

var testBundle = func() *i18n.Bundle {
	b, err := i18n.Load()
	if err != nil {
		panic(err)
	}
	return b
}()

type harness struct {
	engine   *Engine
	cal      *fakeCalendar
	status   *fakeStatus
	weather  *fakeWeather
	notifier *captureNotifier
	users    *fakeUsers
}

func newHarness(t *testing.T, races []*calendar.Race, users []*userstore.User) *harness {
	t.Helper()
	cal := &fakeCalendar{races: races}
	st := &fakeStatus{open: map[int]bool{}}
	wf := &fakeWeather{}
	nt := &captureNotifier{}
	us := &fakeUsers{users: users}
	d := NewDispatcher(us, nt, testBundle, nil, nil, logx.Nop())
	e := New(Config{WeatherRetryDelay: time.Millisecond}, cal, st, wf, d, NewLedger(nil, logx.Nop()), nil, logx.Nop())
	return &harness{engine: e, cal: cal, status: st, weather: wf, notifier: nt, users: us}
}

func defaultUser(id int64) *userstore.User {
	u := userstore.NewUser(id)
	u.Group = userstore.Group{Kind: userstore.GroupRookie, Number: 11}
	return u
}

func testRace(id int, qualiClose time.Time) *calendar.Race {
	return &calendar.Race{
		ID:         id,
		Track:      "Silverstone GP (United Kingdom)",
		QualiClose: qualiClose,
		Start:      qualiClose.Add(calendar.RaceStartOffset),
	}
}

// --- tests ---

// Race #3, quali-close = 2024-05-10T17:30:00Z. At 48h-6min the 48h
// window is due and fires once; a repeat pass inside the tolerance
// does not re-fire.
func TestStandardWindowFiresOnce(t *testing.T) {
	close3 := time.Date(2024, 5, 10, 17, 30, 0, 0, time.UTC)
	h := newHarness(t, []*calendar.Race{testRace(3, close3)}, []*userstore.User{defaultUser(100)})
	ctx := context.Background()

	h.engine.RunPass(ctx, time.Date(2024, 5, 8, 17, 24, 0, 0, time.UTC))
	if got := len(h.notifier.byLabel("48h")); got != 1 {
		t.Fatalf("after first pass: %d sends, want 1", got)
	}

	h.engine.RunPass(ctx, time.Date(2024, 5, 8, 17, 29, 0, 0, time.UTC))
	if got := len(h.notifier.byLabel("48h")); got != 1 {
		t.Fatalf("after repeat pass: %d sends, want 1", got)
	}
}

// 24h window, tolerance ±6min: target+3min sends, target+4min does not
// re-send, target+10min never sends.
func TestWindowToleranceEdges(t *testing.T) {
	close1 := time.Date(2024, 5, 10, 17, 30, 0, 0, time.UTC)
	target := close1.Add(-24 * time.Hour)
	h := newHarness(t, []*calendar.Race{testRace(1, close1)}, []*userstore.User{defaultUser(100)})
	ctx := context.Background()

	h.engine.RunPass(ctx, target.Add(3*time.Minute))
	if got := len(h.notifier.byLabel("24h")); got != 1 {
		t.Fatalf("target+3min: %d sends, want 1", got)
	}
	h.engine.RunPass(ctx, target.Add(4*time.Minute))
	if got := len(h.notifier.byLabel("24h")); got != 1 {
		t.Fatalf("target+4min: %d sends, want 1", got)
	}

	// Fresh engine, first pass already past tolerance: no send at all.
	h2 := newHarness(t, []*calendar.Race{testRace(1, close1)}, []*userstore.User{defaultUser(100)})
	h2.engine.RunPass(ctx, target.Add(10*time.Minute))
	if got := len(h2.notifier.byLabel("24h")); got != 0 {
		t.Fatalf("target+10min: %d sends, want 0", got)
	}
}

func TestStandardWindowRespectsToggleAndDoneFlag(t *testing.T) {
	close1 := time.Date(2024, 5, 10, 17, 30, 0, 0, time.UTC)
	on := defaultUser(1)
	off := defaultUser(2)
	off.Notifications[userstore.Label48h] = false
	done := defaultUser(3)
	done.CompletedQuali = 1

	h := newHarness(t, []*calendar.Race{testRace(1, close1)}, []*userstore.User{on, off, done})
	h.engine.RunPass(context.Background(), close1.Add(-48*time.Hour))

	sends := h.notifier.byLabel("48h")
	if len(sends) != 1 {
		t.Fatalf("%d sends, want 1 (only the subscribed, not-done user)", len(sends))
	}
	if sends[0].ChatID != 1 {
		t.Errorf("sent to chat %d, want 1", sends[0].ChatID)
	}
}

func TestCustomWindowPerUser(t *testing.T) {
	close1 := time.Date(2024, 5, 10, 17, 30, 0, 0, time.UTC)
	u1 := defaultUser(1)
	u1.CustomSlots[0] = userstore.CustomSlot{Enabled: true, MinutesBefore: 90}
	u2 := defaultUser(2) // no slots

	h := newHarness(t, []*calendar.Race{testRace(1, close1)}, []*userstore.User{u1, u2})
	ctx := context.Background()

	h.engine.RunPass(ctx, close1.Add(-90*time.Minute))
	sends := h.notifier.byLabel("custom_1")
	if len(sends) != 1 {
		t.Fatalf("%d custom sends, want 1", len(sends))
	}
	if sends[0].ChatID != 1 {
		t.Errorf("custom send went to chat %d, want 1", sends[0].ChatID)
	}
	if !strings.HasPrefix(sends[0].Key, "1:1:") {
		t.Errorf("custom key %q not user-scoped", sends[0].Key)
	}

	// One-shot per user+race+slot.
	h.engine.RunPass(ctx, close1.Add(-88*time.Minute))
	if got := len(h.notifier.byLabel("custom_1")); got != 1 {
		t.Fatalf("after repeat pass: %d custom sends, want 1", got)
	}
}

func TestRaceLiveOneShot(t *testing.T) {
	close1 := time.Date(2024, 5, 10, 17, 30, 0, 0, time.UTC)
	r := testRace(1, close1)
	h := newHarness(t, []*calendar.Race{r}, []*userstore.User{defaultUser(1)})
	ctx := context.Background()

	h.engine.RunPass(ctx, r.Start.Add(-time.Minute))
	if got := len(h.notifier.byLabel(userstore.LabelRaceLive)); got != 1 {
		t.Fatalf("%d live sends, want 1", got)
	}
	h.engine.RunPass(ctx, r.Start.Add(2*time.Minute))
	if got := len(h.notifier.byLabel(userstore.LabelRaceLive)); got != 1 {
		t.Fatalf("after repeat: %d live sends, want 1", got)
	}
}

// Detector returns true at previous-race-start+2h10m: the machine runs
// not_yet_due -> polling -> detected -> settled with exactly one opens
// notification and one weather fetch, plus replay/results for race 1.
func TestPollerDetectsViaAPI(t *testing.T) {
	close1 := time.Date(2024, 5, 3, 17, 30, 0, 0, time.UTC)
	close2 := close1.Add(7 * 24 * time.Hour)
	r1, r2 := testRace(1, close1), testRace(2, close2)
	h := newHarness(t, []*calendar.Race{r1, r2}, []*userstore.User{defaultUser(1)})
	ctx := context.Background()

	// Before the window: nothing.
	h.engine.RunPass(ctx, r1.Start.Add(time.Hour))
	if got := h.engine.watches[2].state; got != StateNotYetDue {
		t.Fatalf("state = %s, want not_yet_due", got)
	}

	// Window open, API still says closed.
	h.engine.RunPass(ctx, r1.Start.Add(2*time.Hour))
	if got := h.engine.watches[2].state; got != StatePolling {
		t.Fatalf("state = %s, want polling", got)
	}

	// 2h10m: API flips to open.
	h.status.mu.Lock()
	h.status.open[2] = true
	h.status.mu.Unlock()
	h.engine.RunPass(ctx, r1.Start.Add(2*time.Hour+10*time.Minute))
	if got := h.engine.watches[2].state; got != StateSettled {
		t.Fatalf("state = %s, want settled", got)
	}

	if got := len(h.notifier.byLabel(userstore.LabelOpensSoon)); got != 1 {
		t.Errorf("%d opens sends, want 1", got)
	}
	if got := len(h.notifier.byLabel(userstore.LabelReplay)); got != 1 {
		t.Errorf("%d replay sends, want 1", got)
	}
	if got := len(h.notifier.byLabel(userstore.LabelResults)); got != 1 {
		t.Errorf("%d results sends, want 1", got)
	}
	if h.weather.calls != 1 {
		t.Errorf("weather fetched %d times, want 1", h.weather.calls)
	}

	// Subsequent passes are no-ops for this race.
	h.engine.RunPass(ctx, r1.Start.Add(2*time.Hour+20*time.Minute))
	if got := len(h.notifier.byLabel(userstore.LabelOpensSoon)); got != 1 {
		t.Errorf("after settle: %d opens sends, want 1", got)
	}
	if h.weather.calls != 1 {
		t.Errorf("after settle: weather fetched %d times, want 1", h.weather.calls)
	}
}

// Detector never returns true: the fallback clock declares the quali
// open at previous-race-start+3.5h with the same one-shot effects.
func TestPollerFallback(t *testing.T) {
	close1 := time.Date(2024, 5, 3, 17, 30, 0, 0, time.UTC)
	r1 := testRace(1, close1)
	r2 := testRace(2, close1.Add(7*24*time.Hour))
	h := newHarness(t, []*calendar.Race{r1, r2}, []*userstore.User{defaultUser(1)})
	ctx := context.Background()

	for _, offset := range []time.Duration{
		2 * time.Hour, 2*time.Hour + 30*time.Minute, 3 * time.Hour, 3*time.Hour + 20*time.Minute,
	} {
		h.engine.RunPass(ctx, r1.Start.Add(offset))
	}
	if got := h.engine.watches[2].state; got != StatePolling {
		t.Fatalf("state before fallback = %s, want polling", got)
	}

	h.engine.RunPass(ctx, r1.Start.Add(3*time.Hour+31*time.Minute))
	if got := h.engine.watches[2].state; got != StateSettled {
		t.Fatalf("state = %s, want settled", got)
	}
	if got := len(h.notifier.byLabel(userstore.LabelOpensSoon)); got != 1 {
		t.Errorf("%d opens sends, want 1", got)
	}
	if h.weather.calls != 1 {
		t.Errorf("weather fetched %d times, want 1", h.weather.calls)
	}
}

// A wake long after the fallback window (bot was down) settles silently
// instead of sending a stale "opens".
func TestPollerStaleFallbackSettlesSilently(t *testing.T) {
	close1 := time.Date(2024, 5, 3, 17, 30, 0, 0, time.UTC)
	r1 := testRace(1, close1)
	r2 := testRace(2, close1.Add(7*24*time.Hour))
	h := newHarness(t, []*calendar.Race{r1, r2}, []*userstore.User{defaultUser(1)})
	ctx := context.Background()

	h.engine.RunPass(ctx, r1.Start.Add(2*time.Hour))
	h.engine.RunPass(ctx, r1.Start.Add(6*time.Hour))

	if got := h.engine.watches[2].state; got != StateSettled {
		t.Fatalf("state = %s, want settled", got)
	}
	if got := len(h.notifier.byLabel(userstore.LabelOpensSoon)); got != 0 {
		t.Errorf("%d opens sends, want 0 (stale)", got)
	}
}

// First race of the season has no previous race: settled without any
// opens notification.
func TestPollerSkipsFirstRace(t *testing.T) {
	close1 := time.Date(2024, 5, 3, 17, 30, 0, 0, time.UTC)
	h := newHarness(t, []*calendar.Race{testRace(1, close1)}, []*userstore.User{defaultUser(1)})
	h.engine.RunPass(context.Background(), close1)

	if got := h.engine.watches[1].state; got != StateSettled {
		t.Fatalf("state = %s, want settled", got)
	}
	if got := len(h.notifier.byLabel(userstore.LabelOpensSoon)); got != 0 {
		t.Errorf("%d opens sends, want 0", got)
	}
}

// Poll throttle: passes 1 minute apart must not hit the API more than
// once per PollEvery.
func TestPollerThrottle(t *testing.T) {
	close1 := time.Date(2024, 5, 3, 17, 30, 0, 0, time.UTC)
	r1 := testRace(1, close1)
	r2 := testRace(2, close1.Add(7*24*time.Hour))
	h := newHarness(t, []*calendar.Race{r1, r2}, []*userstore.User{defaultUser(1)})
	ctx := context.Background()

	base := r1.Start.Add(2 * time.Hour)
	for i := 0; i < 10; i++ {
		h.engine.RunPass(ctx, base.Add(time.Duration(i)*time.Minute))
	}
	if h.status.calls != 1 {
		t.Fatalf("API called %d times over 9 minutes, want 1", h.status.calls)
	}
	h.engine.RunPass(ctx, base.Add(12*time.Minute))
	if h.status.calls != 2 {
		t.Fatalf("API called %d times after throttle expiry, want 2", h.status.calls)
	}
}

// Weather: first fetch fails, one retry succeeds; both failing marks
// the race unavailable with no further automatic attempts.
func TestWeatherRetry(t *testing.T) {
	close1 := time.Date(2024, 5, 3, 17, 30, 0, 0, time.UTC)
	r1 := testRace(1, close1)
	r2 := testRace(2, close1.Add(7*24*time.Hour))
	h := newHarness(t, []*calendar.Race{r1, r2}, []*userstore.User{defaultUser(1)})
	h.weather.failures = 1
	h.status.open[2] = true
	ctx := context.Background()

	h.engine.RunPass(ctx, r1.Start.Add(2*time.Hour))
	h.engine.RunPass(ctx, r1.Start.Add(2*time.Hour+time.Minute))
	if h.weather.calls != 2 {
		t.Fatalf("weather fetched %d times, want 2 (fail + retry)", h.weather.calls)
	}
	got, _ := h.cal.RaceByID(2)
	if got.Weather == nil {
		t.Fatal("weather not persisted after successful retry")
	}
}

func TestWeatherBothAttemptsFail(t *testing.T) {
	close1 := time.Date(2024, 5, 3, 17, 30, 0, 0, time.UTC)
	r1 := testRace(1, close1)
	r2 := testRace(2, close1.Add(7*24*time.Hour))
	h := newHarness(t, []*calendar.Race{r1, r2}, []*userstore.User{defaultUser(1)})
	h.weather.failures = 2
	h.status.open[2] = true
	ctx := context.Background()

	h.engine.RunPass(ctx, r1.Start.Add(2*time.Hour))
	h.engine.RunPass(ctx, r1.Start.Add(2*time.Hour+time.Minute))
	if h.weather.calls != 2 {
		t.Fatalf("weather fetched %d times, want exactly 2", h.weather.calls)
	}
	got, _ := h.cal.RaceByID(2)
	if !got.WeatherUnavailable {
		t.Error("race not marked weather-unavailable")
	}

	// No further automatic attempts on later passes.
	h.engine.RunPass(ctx, r1.Start.Add(2*time.Hour+11*time.Minute))
	if h.weather.calls != 2 {
		t.Fatalf("weather fetched %d times after settle, want 2", h.weather.calls)
	}

	// Manual refetch is independent of the automatic state.
	if err := h.engine.ForceRefetchWeather(ctx, 2); err != nil {
		t.Fatalf("ForceRefetchWeather: %v", err)
	}
	got, _ = h.cal.RaceByID(2)
	if got.Weather == nil || got.WeatherUnavailable {
		t.Error("manual refetch did not repair weather state")
	}
}

// A panic while evaluating one race must not abort the pass: the
// other race's due window still fires.
func TestPassSurvivesPanicInRaceEvaluation(t *testing.T) {
	close1 := time.Date(2024, 5, 10, 17, 30, 0, 0, time.UTC)
	close2 := close1.Add(time.Minute)
	races := []*calendar.Race{testRace(1, close1), testRace(2, close2)}
	nt := &panicNotifier{match: ":1:48h"}
	us := &fakeUsers{users: []*userstore.User{defaultUser(100)}}
	d := NewDispatcher(us, nt, testBundle, nil, nil, logx.Nop())
	e := New(Config{}, &fakeCalendar{races: races}, &fakeStatus{open: map[int]bool{}}, &fakeWeather{}, d, NewLedger(nil, logx.Nop()), nil, logx.Nop())

	// Both 48h targets are inside tolerance at this instant.
	e.RunPass(context.Background(), close1.Add(-48*time.Hour))

	sends := nt.byLabel("48h")
	if len(sends) != 1 {
		t.Fatalf("%d sends after panic in race 1, want 1 (race 2)", len(sends))
	}
	if !strings.Contains(sends[0].Key, ":2:") {
		t.Errorf("surviving send key = %q, want race 2", sends[0].Key)
	}
}

// Same for a panic in one user's custom-slot evaluation: other users
// still get theirs.
func TestPassSurvivesPanicInUserEvaluation(t *testing.T) {
	close1 := time.Date(2024, 5, 10, 17, 30, 0, 0, time.UTC)
	u1 := defaultUser(1)
	u1.CustomSlots[0] = userstore.CustomSlot{Enabled: true, MinutesBefore: 90}
	u2 := defaultUser(2)
	u2.CustomSlots[0] = userstore.CustomSlot{Enabled: true, MinutesBefore: 90}

	nt := &panicNotifier{match: "1:1:custom_1"}
	us := &fakeUsers{users: []*userstore.User{u1, u2}}
	d := NewDispatcher(us, nt, testBundle, nil, nil, logx.Nop())
	e := New(Config{}, &fakeCalendar{races: []*calendar.Race{testRace(1, close1)}}, &fakeStatus{open: map[int]bool{}}, &fakeWeather{}, d, NewLedger(nil, logx.Nop()), nil, logx.Nop())

	e.RunPass(context.Background(), close1.Add(-90*time.Minute))

	sends := nt.byLabel("custom_1")
	if len(sends) != 1 {
		t.Fatalf("%d custom sends after panic for user 1, want 1 (user 2)", len(sends))
	}
	if sends[0].ChatID != 2 {
		t.Errorf("surviving send went to chat %d, want 2", sends[0].ChatID)
	}
}

func TestForceRefetchUnknownRace(t *testing.T) {
	h := newHarness(t, nil, nil)
	if err := h.engine.ForceRefetchWeather(context.Background(), 9); err == nil {
		t.Fatal("expected error for unknown race")
	}
}
