package engine

import (
	"context"
	"strconv"
	"time"

	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/calendar"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/gpro"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/i18n"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/storage"
	kit "github.com/Bakaface/gpro-qualy-reminder-bot/internal/transport"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/userstore"
	"github.com/Bakaface/gpro-qualy-reminder-bot/pkg/logx"
)

const timeLayout = "02.01 15:04 UTC"

// LinkBuilder resolves a personalized upstream URL.
type LinkBuilder func(group, lang string, kind gpro.LinkKind) string

// Dispatcher turns due (race, label) tuples into per-user rendered
// messages and hands them to the notifier. Failures are isolated per
// user; the caller records the ledger key regardless (at-most-once-
// attempt, not at-least-once-delivery).
type Dispatcher struct {
	users    UserLister
	notifier Notifier
	bundle   *i18n.Bundle
	link     LinkBuilder
	store    storage.Store // optional audit sink
	log      logx.Logger
}

func NewDispatcher(users UserLister, n Notifier, bundle *i18n.Bundle, link LinkBuilder, store storage.Store, log logx.Logger) *Dispatcher {
	if link == nil {
		link = gpro.BuildLink
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Dispatcher{users: users, notifier: n, bundle: bundle, link: link, store: store, log: log}
}

// DispatchDeadline fans a qualification reminder (standard window or
// "opens") out to every eligible user: toggle on, quali not marked
// done for this race.
func (d *Dispatcher) DispatchDeadline(ctx context.Context, r *calendar.Race, label string, users []*userstore.User, now time.Time) {
	sent := 0
	for _, u := range users {
		if !u.NotificationEnabled(label) || u.QualiDone(r.ID) {
			continue
		}
		if d.sendDeadline(ctx, r, label, u, now) {
			sent++
		}
	}
	d.audit(ctx, r.ID, label, 0, "queued "+strconv.Itoa(sent)+"/"+strconv.Itoa(len(users)))
	d.log.Info("reminder dispatched",
		logx.Int("race", r.ID), logx.String("label", label),
		logx.Int("queued", sent), logx.Int("users", len(users)))
}

// DispatchCustom delivers one user's custom slot reminder.
func (d *Dispatcher) DispatchCustom(ctx context.Context, r *calendar.Race, label string, u *userstore.User, now time.Time) {
	if u.QualiDone(r.ID) {
		return
	}
	if d.sendDeadline(ctx, r, label, u, now) {
		d.audit(ctx, r.ID, label, u.ID, "custom slot")
		d.log.Info("custom reminder dispatched",
			logx.Int("race", r.ID), logx.String("label", label), logx.Int64("user", u.ID))
	}
}

// SendManualStatus renders the same reminder card the scheduler sends,
// on demand for one user. Manual sends are never deduplicated.
func (d *Dispatcher) SendManualStatus(ctx context.Context, r *calendar.Race, u *userstore.User, now time.Time) bool {
	return d.sendDeadline(ctx, r, "manual", u, now)
}

// DispatchRaceEvent fans a race_live / race_replay / race_results
// notification out, filtered by toggle only (the done flag applies to
// qualification reminders, not race events).
func (d *Dispatcher) DispatchRaceEvent(ctx context.Context, r *calendar.Race, label string, users []*userstore.User) {
	sent := 0
	for _, u := range users {
		if !u.NotificationEnabled(label) {
			continue
		}
		text := d.renderRaceEvent(r, label, u)
		if d.deliver(ctx, u, r, label, text, nil) {
			sent++
		}
	}
	d.audit(ctx, r.ID, label, 0, "queued "+strconv.Itoa(sent)+"/"+strconv.Itoa(len(users)))
	d.log.Info("race event dispatched",
		logx.Int("race", r.ID), logx.String("label", label), logx.Int("queued", sent))
}

func (d *Dispatcher) sendDeadline(ctx context.Context, r *calendar.Race, label string, u *userstore.User, now time.Time) bool {
	emoji, title := d.deadlineTitle(u.UILang, r.QualiClose, now, label)
	text := d.bundle.T(u.UILang, "notif-quali-message", i18n.Params{
		"emoji":         emoji,
		"title":         title,
		"raceId":        strconv.Itoa(r.ID),
		"track":         i18n.DecorateTrack(r.Track),
		"qualiDeadline": r.QualiClose.Format(timeLayout),
		"raceTime":      r.Start.Format(timeLayout),
		"qualiLink":     d.link(u.Group.Code(), u.LinkLang, gpro.LinkQualify),
	})

	keyboard := [][]kit.Button{{
		{Text: d.bundle.T(u.UILang, "button-quali-done", nil), Data: "done_" + strconv.Itoa(r.ID)},
	}}
	if r.Weather != nil {
		keyboard = append(keyboard, []kit.Button{
			{Text: d.bundle.T(u.UILang, "button-weather", nil), Data: "weather_" + strconv.Itoa(r.ID)},
		})
	}
	return d.deliver(ctx, u, r, label, text, keyboard)
}

// deadlineTitle picks the urgency emoji and localized title from how
// much time actually remains, not from the label, so custom slots get
// the right tone too.
func (d *Dispatcher) deadlineTitle(locale string, qualiClose, now time.Time, label string) (string, string) {
	if label == userstore.LabelOpensSoon {
		return "🆕", d.bundle.T(locale, "notif-quali-opens", nil)
	}
	left := qualiClose.Sub(now)
	var emoji, timeText string
	switch {
	case left >= 24*time.Hour:
		emoji, timeText = "🔔", strconv.Itoa(int(left.Hours()))+"h"
	case left >= 2*time.Hour:
		emoji, timeText = "⏰", strconv.Itoa(int(left.Hours()))+"h"
	case left >= 20*time.Minute:
		emoji, timeText = "⚠️", strconv.Itoa(int(left.Minutes()))+"min"
	default:
		emoji, timeText = "🚨", strconv.Itoa(int(left.Minutes()))+"min"
	}
	return emoji, d.bundle.T(locale, "notif-quali-closes", i18n.Params{"time": timeText})
}

func (d *Dispatcher) renderRaceEvent(r *calendar.Race, label string, u *userstore.User) string {
	group := u.Group.Code()
	params := i18n.Params{
		"raceId":   strconv.Itoa(r.ID),
		"track":    i18n.DecorateTrack(r.Track),
		"raceTime": r.Start.Format(timeLayout),
	}
	key := ""
	switch label {
	case userstore.LabelRaceLive:
		key = "notif-race-live"
		params["raceLink"] = d.link(group, u.LinkLang, gpro.LinkLive)
	case userstore.LabelReplay:
		key = "notif-race-replay"
		params["replayLink"] = d.link(group, u.LinkLang, gpro.LinkReplay)
	case userstore.LabelResults:
		key = "notif-race-results"
		params["summaryLink"] = d.link(group, u.LinkLang, gpro.LinkSummary)
		params["analysisLink"] = d.link(group, u.LinkLang, gpro.LinkAnalysis)
	default:
		return ""
	}
	if group == "" {
		key += "-no-group"
	}
	return d.bundle.T(u.UILang, key, params)
}

func (d *Dispatcher) deliver(ctx context.Context, u *userstore.User, r *calendar.Race, label, text string, keyboard [][]kit.Button) bool {
	if text == "" {
		return false
	}
	n := kit.Notification{
		Target: kit.ChatTarget{ChatID: u.ID},
		Text:   text,
		Options: &kit.SendOptions{
			ParseMode:      "Markdown",
			DisablePreview: true,
			Keyboard:       keyboard,
		},
		Key: Key{UserID: u.ID, RaceID: r.ID, Label: label}.String(),
	}
	if err := d.notifier.Notify(ctx, n); err != nil {
		d.log.Warn("notification not accepted",
			logx.Int64("user", u.ID), logx.Int("race", r.ID), logx.String("label", label), logx.Err(err))
		return false
	}
	return true
}

func (d *Dispatcher) audit(ctx context.Context, raceID int, label string, userID int64, detail string) {
	if d.store == nil {
		return
	}
	actx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	defer cancel()
	err := d.store.AppendAudit(actx, storage.AuditEntry{
		At: time.Now(), UserID: userID, RaceID: raceID, Label: label,
		Event: "dispatched", Detail: detail,
	})
	if err != nil {
		d.log.Debug("audit append failed", logx.Err(err))
	}
}
