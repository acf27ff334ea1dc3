package engine

import (
	"context"
	"time"

	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/calendar"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/userstore"
	"github.com/Bakaface/gpro-qualy-reminder-bot/pkg/logx"
)

// OpenState is the per-race qualification-open detection state.
type OpenState string

const (
	StateNotYetDue       OpenState = "not_yet_due"
	StatePolling         OpenState = "polling"
	StateDetected        OpenState = "detected"
	StateFallbackApplied OpenState = "fallback_applied"
	StateSettled         OpenState = "settled"
)

// The polling window opens 2h after the previous race starts; by 3.5h
// the qualification is assumed open regardless of what the API said.
const (
	pollWindowStart = 2 * time.Hour
	pollWindowEnd   = 3*time.Hour + 30*time.Minute
)

// watch tracks one race's progress through the open-detection machine.
type watch struct {
	state      OpenState
	lastPolled time.Time
}

// pollDueTimes returns the next poll instants for races currently
// polling, feeding the cadence decision.
func (e *Engine) pollDueTimes(now time.Time) []time.Time {
	var out []time.Time
	for _, w := range e.watches {
		if w.state == StatePolling {
			out = append(out, w.lastPolled.Add(e.cfg.PollEvery))
		}
	}
	return out
}

// advancePoller advances every race's detection state by one step.
// The season's first race has no previous race to anchor the polling
// window and is settled silently.
func (e *Engine) advancePoller(ctx context.Context, now time.Time, races []*calendar.Race) {
	for _, r := range races {
		w := e.watches[r.ID]
		if w == nil {
			w = &watch{state: StateNotYetDue}
			e.watches[r.ID] = w
		}
		if w.state == StateSettled {
			continue
		}
		e.recovered(func() {
			e.advanceWatch(ctx, now, r, w)
		}, logx.String("step", "poller"), logx.Int("race", r.ID))
	}
}

func (e *Engine) advanceWatch(ctx context.Context, now time.Time, r *calendar.Race, w *watch) {
	prev, ok := e.cal.RaceByID(r.ID - 1)
	if !ok {
		w.state = StateSettled
		return
	}
	sincePrev := now.Sub(prev.Start)

	switch w.state {
	case StateNotYetDue:
		if sincePrev >= pollWindowStart {
			w.state = StatePolling
			e.log.Debug("quali-open polling started", logx.Int("race", r.ID))
		}

	case StatePolling:
		if sincePrev > pollWindowEnd {
			// Past the polling window. Apply the fallback only while
			// fresh; a stale wake (long downtime) settles silently so
			// users don't get an "opens" hours late.
			if sincePrev-pollWindowEnd <= e.cfg.FallbackTolerance {
				w.state = StateFallbackApplied
				e.log.Info("quali open assumed by fallback clock", logx.Int("race", r.ID))
				e.settle(ctx, now, r, w, "fallback")
			} else {
				e.log.Warn("quali-open fallback window missed, settling silently",
					logx.Int("race", r.ID), logx.Duration("late", sincePrev-pollWindowEnd))
				w.state = StateSettled
			}
			return
		}
		if now.Sub(w.lastPolled) < e.cfg.PollEvery {
			return
		}
		w.lastPolled = now
		cctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		open, err := e.status.IsOpen(cctx, r.ID)
		cancel()
		if err != nil {
			// Transient: the next due poll re-attempts.
			e.log.Warn("quali status check failed", logx.Int("race", r.ID), logx.Err(err))
			return
		}
		if open {
			w.state = StateDetected
			e.log.Info("quali open detected via API", logx.Int("race", r.ID))
			e.settle(ctx, now, r, w, "api")
		}
	}
}

// settle fires the one-shot open side effects and terminates the
// machine: weather fetch first so the "opens" message can offer the
// weather button, then the opens notification, then replay/results for
// the previous race.
func (e *Engine) settle(ctx context.Context, now time.Time, r *calendar.Race, w *watch, source string) {
	defer func() { w.state = StateSettled }()

	e.fetchWeatherOnce(ctx, r)
	e.publish("engine.quali_opened", QualiOpenedEvent{RaceID: r.ID, Source: source, At: now})

	users := e.dispatcher.users.List()

	key := Key{RaceID: r.ID, Label: userstore.LabelOpensSoon}
	if !e.ledger.HasFired(key) {
		e.dispatcher.DispatchDeadline(ctx, e.freshRace(r), userstore.LabelOpensSoon, users, now)
		e.ledger.RecordFired(ctx, key, now)
	}

	prev, ok := e.cal.RaceByID(r.ID - 1)
	if !ok {
		return
	}
	for _, label := range []string{userstore.LabelReplay, userstore.LabelResults} {
		k := Key{RaceID: prev.ID, Label: label}
		if e.ledger.HasFired(k) {
			continue
		}
		e.dispatcher.DispatchRaceEvent(ctx, prev, label, users)
		e.ledger.RecordFired(ctx, k, now)
	}
}

// freshRace re-reads the race so the just-persisted weather is visible
// to the dispatcher.
func (e *Engine) freshRace(r *calendar.Race) *calendar.Race {
	if cur, ok := e.cal.RaceByID(r.ID); ok {
		return cur
	}
	return r
}

// QualiOpenedEvent is published on the event bus when a race's
// qualification is declared open.
type QualiOpenedEvent struct {
	RaceID int       `json:"race_id"`
	Source string    `json:"source"` // "api" or "fallback"
	At     time.Time `json:"at"`
}
