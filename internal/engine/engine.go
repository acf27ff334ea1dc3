// Package engine is the scheduling core: an adaptive-cadence loop that
// matches notification windows, detects qualification opening by
// polling, triggers weather retrieval, and guarantees at most one send
// attempt per logical notification through the fired ledger.
package engine

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/calendar"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/eventbus"
	kit "github.com/Bakaface/gpro-qualy-reminder-bot/internal/transport"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/userstore"
	"github.com/Bakaface/gpro-qualy-reminder-bot/pkg/logx"
)

// Collaborator contracts. The engine owns scheduling decisions only;
// everything with a wire format lives behind one of these.
type (
	// CalendarStore provides the season and accepts weather writes.
	CalendarStore interface {
		CurrentSeason() []*calendar.Race
		RaceByID(id int) (*calendar.Race, bool)
		PersistWeather(raceID int, fc *calendar.Forecast) error
	}

	// QualiStatus answers whether a race's qualification is open.
	// Idempotent; the engine throttles calls to once per PollEvery.
	QualiStatus interface {
		IsOpen(ctx context.Context, raceID int) (bool, error)
	}

	// WeatherFetcher retrieves a race forecast.
	WeatherFetcher interface {
		FetchWeather(ctx context.Context, raceID int) (*calendar.Forecast, error)
	}

	// UserLister supplies the recipient set. Records are snapshots;
	// the engine never mutates them.
	UserLister interface {
		List() []*userstore.User
	}

	// Notifier accepts fully rendered messages. A nil error means
	// accepted for delivery, which is what the ledger records.
	Notifier interface {
		Notify(ctx context.Context, n kit.Notification) error
	}
)

// Config carries the engine's timing knobs. Zero values get defaults.
type Config struct {
	NormalInterval     time.Duration // inter-pass sleep, relaxed
	FastInterval       time.Duration // inter-pass sleep near a boundary
	ProximityThreshold time.Duration // boundary distance that switches to fast

	PollEvery         time.Duration // quali-status throttle per race
	FallbackTolerance time.Duration // max staleness for the fallback open

	WeatherRetryDelay time.Duration // delay before the single weather retry

	CallTimeout time.Duration // bound on any collaborator network call
}

func (c *Config) applyDefaults() {
	if c.NormalInterval <= 0 {
		c.NormalInterval = 5 * time.Minute
	}
	if c.FastInterval <= 0 {
		c.FastInterval = time.Minute
	}
	if c.ProximityThreshold <= 0 {
		c.ProximityThreshold = 30 * time.Minute
	}
	if c.PollEvery <= 0 {
		c.PollEvery = 10 * time.Minute
	}
	if c.FallbackTolerance <= 0 {
		c.FallbackTolerance = 15 * time.Minute
	}
	if c.WeatherRetryDelay <= 0 {
		c.WeatherRetryDelay = 5 * time.Second
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 15 * time.Second
	}
}

// Engine runs the evaluation passes. Single writer: all shared state
// (watches, ledger) is mutated only from RunPass, which Run serializes.
type Engine struct {
	cfg Config

	cal     CalendarStore
	status  QualiStatus
	weather WeatherFetcher

	dispatcher *Dispatcher
	ledger     *Ledger

	// watches holds per-race open-detection state, keyed by race id.
	// Lives here rather than on Race so calendar reloads cannot reset
	// a settled race.
	watches map[int]*watch

	bus eventbus.Bus
	log logx.Logger
}

func New(cfg Config, cal CalendarStore, status QualiStatus, weather WeatherFetcher, d *Dispatcher, ledger *Ledger, bus eventbus.Bus, log logx.Logger) *Engine {
	cfg.applyDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Engine{
		cfg:        cfg,
		cal:        cal,
		status:     status,
		weather:    weather,
		dispatcher: d,
		ledger:     ledger,
		watches:    make(map[int]*watch),
		bus:        bus,
		log:        log,
	}
}

// Ledger exposes the dedup ledger for debug commands.
func (e *Engine) Ledger() *Ledger { return e.ledger }

// Run drives passes until ctx is cancelled. Shutdown is cooperative:
// the in-flight pass always completes before Run returns.
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("engine started",
		logx.Duration("normal", e.cfg.NormalInterval),
		logx.Duration("fast", e.cfg.FastInterval))
	for {
		now := time.Now().UTC()
		e.RunPass(ctx, now)

		sleep := nextSleep(e.cal.CurrentSeason(), e.pollDueTimes(now), now,
			e.cfg.NormalInterval, e.cfg.FastInterval, e.cfg.ProximityThreshold)

		t := time.NewTimer(sleep)
		select {
		case <-ctx.Done():
			t.Stop()
			e.log.Info("engine stopped")
			return nil
		case <-t.C:
		}
	}
}

// RunPass performs one full evaluation cycle at the given instant.
// Failures in one race or user are isolated, panics included; the
// pass always finishes.
func (e *Engine) RunPass(ctx context.Context, now time.Time) {
	races := e.cal.CurrentSeason()
	users := e.dispatcher.users.List()

	e.advancePoller(ctx, now, races)
	e.checkStandardWindows(ctx, now, races, users)
	e.checkCustomWindows(ctx, now, races, users)
	e.checkRaceLive(ctx, now, races, users)

	e.ledger.PurgeOlderThan(ctx, now.Add(-RetentionDays*24*time.Hour))
}

// recovered runs one per-race or per-user evaluation step, converting
// a panic into a logged error so it cannot abort the pass or bubble up
// to the supervisor.
func (e *Engine) recovered(fn func(), fields ...logx.Field) {
	defer func() {
		if rec := recover(); rec != nil {
			fields = append(fields, logx.Any("panic", rec), logx.String("stack", string(debug.Stack())))
			e.log.Error("pass evaluation panicked", fields...)
		}
	}()
	fn()
}

func (e *Engine) checkStandardWindows(ctx context.Context, now time.Time, races []*calendar.Race, users []*userstore.User) {
	for _, r := range races {
		e.recovered(func() {
			for _, w := range dueStandardWindows(r.QualiClose, now) {
				key := Key{RaceID: r.ID, Label: w.Label}
				if e.ledger.HasFired(key) {
					continue
				}
				e.log.Info("standard window due",
					logx.Int("race", r.ID), logx.String("label", w.Label))
				e.dispatcher.DispatchDeadline(ctx, r, w.Label, users, now)
				e.ledger.RecordFired(ctx, key, now)
			}
		}, logx.String("step", "standard"), logx.Int("race", r.ID))
	}
}

func (e *Engine) checkCustomWindows(ctx context.Context, now time.Time, races []*calendar.Race, users []*userstore.User) {
	for _, u := range users {
		e.recovered(func() {
			e.customWindowsForUser(ctx, now, races, u)
		}, logx.String("step", "custom"), logx.Int64("user", u.ID))
	}
}

func (e *Engine) customWindowsForUser(ctx context.Context, now time.Time, races []*calendar.Race, u *userstore.User) {
	for idx, slot := range u.CustomSlots {
		if !slot.Enabled || slot.MinutesBefore <= 0 {
			continue
		}
		for _, r := range races {
			if !customSlotDue(r.QualiClose, slot.MinutesBefore, now) {
				continue
			}
			key := Key{UserID: u.ID, RaceID: r.ID, Label: userstore.CustomSlotLabel(idx)}
			if e.ledger.HasFired(key) {
				continue
			}
			e.dispatcher.DispatchCustom(ctx, r, key.Label, u, now)
			e.ledger.RecordFired(ctx, key, now)
		}
	}
}

func (e *Engine) checkRaceLive(ctx context.Context, now time.Time, races []*calendar.Race, users []*userstore.User) {
	for _, r := range races {
		e.recovered(func() {
			if !raceLiveDue(r.Start, now) {
				return
			}
			key := Key{RaceID: r.ID, Label: userstore.LabelRaceLive}
			if e.ledger.HasFired(key) {
				return
			}
			e.log.Info("race live", logx.Int("race", r.ID), logx.String("track", r.Track))
			e.dispatcher.DispatchRaceEvent(ctx, r, userstore.LabelRaceLive, users)
			e.ledger.RecordFired(ctx, key, now)
		}, logx.String("step", "race_live"), logx.Int("race", r.ID))
	}
}

func (e *Engine) publish(eventType string, data any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: eventType, Time: time.Now(), Data: data})
}
