package router

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/calendar"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/i18n"
	kit "github.com/Bakaface/gpro-qualy-reminder-bot/internal/transport"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/userstore"
	"github.com/Bakaface/gpro-qualy-reminder-bot/pkg/logx"
)

func (r *Router) handleCommand(ctx context.Context, m *kit.Message, name string, args []string) {
	switch name {
	case "start":
		r.cmdStart(ctx, m)
	case "settings":
		r.cmdSettings(ctx, m)
	case "status":
		r.cmdStatus(ctx, m)
	case "calendar", "schedule":
		r.cmdCalendar(ctx, m)
	case "next":
		r.cmdNext(ctx, m)
	case "update":
		r.cmdUpdate(ctx, m)
	case "users":
		r.cmdUsers(ctx, m)
	case "weather":
		r.cmdWeather(ctx, m, args)
	case "announce":
		r.cmdAnnounce(ctx, m, args)
	case "announce_status":
		r.cmdAnnounceStatus(ctx, m, args)
	default:
		u := r.user(m.FromID)
		r.reply(ctx, m.ChatID, r.t(u, "start-welcome-existing", nil), nil)
	}
}

func (r *Router) cmdStart(ctx context.Context, m *kit.Message) {
	u, created := r.deps.Users.Register(m.FromID)
	if !created {
		r.reply(ctx, m.ChatID, r.t(u, "start-welcome-existing", nil), nil)
		return
	}
	r.log.Info("new user registered", logx.Int64("user", m.FromID))

	// UI language comes first; its prompt can't be localized yet.
	kb := [][]kit.Button{
		{{Text: "🇬🇧 English", Data: "onboard_ui_lang_en"}},
		{{Text: "🇷🇺 Русский", Data: "onboard_ui_lang_ru"}},
	}
	r.reply(ctx, m.ChatID,
		"👋 *Welcome to GPRO Bot!* / *Добро пожаловать в GPRO Bot!*\n\n"+
			"Choose your preferred bot language:\nВыберите язык бота:", kb)
}

func (r *Router) cmdSettings(ctx context.Context, m *kit.Message) {
	u := r.user(m.FromID)
	r.reply(ctx, m.ChatID, r.t(u, "settings-title", nil), r.settingsKeyboard(u))
}

// cmdStatus sends the full reminder card for the soonest race whose
// qualification has not closed yet.
func (r *Router) cmdStatus(ctx context.Context, m *kit.Message) {
	u := r.user(m.FromID)
	now := time.Now().UTC()
	next := nextOpenRace(r.deps.Calendar.CurrentSeason(), now)
	if next == nil {
		r.reply(ctx, m.ChatID, r.t(u, "no-upcoming-qualifications", nil), nil)
		return
	}
	if !r.deps.Dispatcher.SendManualStatus(ctx, next, u, now) {
		r.reply(ctx, m.ChatID, r.t(u, "invalid-input", nil), nil)
	}
}

func nextOpenRace(races []*calendar.Race, now time.Time) *calendar.Race {
	for _, race := range races {
		if race.QualiClose.After(now) {
			return race
		}
	}
	return nil
}

func (r *Router) cmdCalendar(ctx context.Context, m *kit.Message) {
	u := r.user(m.FromID)
	body := r.deps.Bundle.FormatCalendar(u.UILang, r.deps.Calendar.CurrentSeason(), true, time.Now().UTC())
	r.reply(ctx, m.ChatID, r.t(u, "calendar-title-full", nil)+"\n\n"+body, nil)
}

func (r *Router) cmdNext(ctx context.Context, m *kit.Message) {
	u := r.user(m.FromID)
	races := r.deps.Calendar.NextSeason()
	if len(races) == 0 {
		r.reply(ctx, m.ChatID, r.t(u, "next-season-not-published", nil), nil)
		return
	}
	title := r.t(u, "calendar-title-next", i18n.Params{"count": strconv.Itoa(len(races))})
	body := r.deps.Bundle.FormatCalendar(u.UILang, races, false, time.Now().UTC())
	r.reply(ctx, m.ChatID, title+"\n\n"+body, nil)
}

// cmdUpdate refetches the calendar from upstream and resets every
// user's quali-done flag for the new season. Admin only.
func (r *Router) cmdUpdate(ctx context.Context, m *kit.Message) {
	u := r.user(m.FromID)
	if !r.isAdmin(m.FromID) {
		r.reply(ctx, m.ChatID, r.t(u, "admin-only", nil), nil)
		return
	}
	if r.deps.RefreshCalendar == nil {
		return
	}
	current, next, err := r.deps.RefreshCalendar(ctx)
	if err != nil {
		r.log.Warn("calendar refresh failed", logx.Err(err))
		r.reply(ctx, m.ChatID, "❌ "+err.Error(), nil)
		return
	}

	resetCount := 0
	for _, usr := range r.deps.Users.List() {
		if err := r.deps.Users.ResetQuali(usr.ID); err == nil {
			resetCount++
		}
	}

	r.reply(ctx, m.ChatID, r.t(u, "admin-calendar-updated", i18n.Params{
		"count":     strconv.Itoa(current),
		"userCount": strconv.Itoa(resetCount),
	}), nil)
	if next > 0 {
		r.reply(ctx, m.ChatID, r.t(u, "admin-next-season-ready", i18n.Params{"count": strconv.Itoa(next)}), nil)
	} else {
		r.reply(ctx, m.ChatID, r.t(u, "admin-next-season-not-published", nil), nil)
	}
}

func (r *Router) cmdUsers(ctx context.Context, m *kit.Message) {
	u := r.user(m.FromID)
	if !r.isAdmin(m.FromID) {
		r.reply(ctx, m.ChatID, r.t(u, "admin-only", nil), nil)
		return
	}
	users := r.deps.Users.List()
	if len(users) == 0 {
		r.reply(ctx, m.ChatID, r.t(u, "admin-users-none", nil), nil)
		return
	}
	var sb strings.Builder
	sb.WriteString(r.t(u, "admin-users-count", i18n.Params{"count": strconv.Itoa(len(users))}))
	sb.WriteString("\n\n")
	for _, usr := range users {
		sb.WriteString("• `")
		sb.WriteString(strconv.FormatInt(usr.ID, 10))
		sb.WriteString("`: Race ")
		if usr.CompletedQuali > 0 {
			sb.WriteString(strconv.Itoa(usr.CompletedQuali))
		} else {
			sb.WriteString("None")
		}
		sb.WriteByte('\n')
	}
	r.reply(ctx, m.ChatID, sb.String(), nil)
}

// cmdWeather manually fetches weather for the next race. "force"
// refetches even when already cached. Admin only.
func (r *Router) cmdWeather(ctx context.Context, m *kit.Message, args []string) {
	u := r.user(m.FromID)
	if !r.isAdmin(m.FromID) {
		r.reply(ctx, m.ChatID, r.t(u, "admin-only", nil), nil)
		return
	}
	next := nextOpenRace(r.deps.Calendar.CurrentSeason(), time.Now().UTC())
	if next == nil {
		r.reply(ctx, m.ChatID, r.t(u, "admin-no-upcoming-races", nil), nil)
		return
	}

	force := false
	for _, a := range args {
		if strings.EqualFold(a, "force") {
			force = true
		}
	}

	params := i18n.Params{
		"raceId": strconv.Itoa(next.ID),
		"track":  i18n.DecorateTrack(next.Track),
	}
	if next.Weather != nil && !force {
		r.reply(ctx, m.ChatID, r.t(u, "admin-weather-cached", params), nil)
		return
	}

	r.reply(ctx, m.ChatID, r.t(u, "admin-weather-fetching", params), nil)
	if err := r.deps.Weather.ForceRefetchWeather(ctx, next.ID); err != nil {
		r.reply(ctx, m.ChatID, r.t(u, "admin-weather-failed", nil), nil)
		return
	}
	r.reply(ctx, m.ChatID, r.t(u, "admin-weather-success", params), nil)
}

func (r *Router) cmdAnnounce(ctx context.Context, m *kit.Message, args []string) {
	u := r.user(m.FromID)
	if !r.isAdmin(m.FromID) {
		r.reply(ctx, m.ChatID, r.t(u, "admin-only", nil), nil)
		return
	}
	text := strings.TrimSpace(strings.Join(args, " "))
	if text == "" {
		r.reply(ctx, m.ChatID, r.t(u, "announce-usage", nil), nil)
		return
	}
	users := r.deps.Users.List()
	targets := make([]kit.ChatTarget, 0, len(users))
	for _, usr := range users {
		targets = append(targets, kit.ChatTarget{ChatID: usr.ID})
	}
	id := r.deps.Broadcast.Announce(targets, text, &kit.SendOptions{ParseMode: "Markdown", DisablePreview: true})
	r.reply(ctx, m.ChatID, r.t(u, "announce-queued", i18n.Params{
		"id":    id,
		"count": strconv.Itoa(len(targets)),
	}), nil)
}

func (r *Router) cmdAnnounceStatus(ctx context.Context, m *kit.Message, args []string) {
	u := r.user(m.FromID)
	if !r.isAdmin(m.FromID) {
		r.reply(ctx, m.ChatID, r.t(u, "admin-only", nil), nil)
		return
	}
	if len(args) == 0 {
		r.reply(ctx, m.ChatID, r.t(u, "announce-usage", nil), nil)
		return
	}
	st, ok := r.deps.Broadcast.Status(args[0])
	if !ok {
		r.reply(ctx, m.ChatID, r.t(u, "invalid-input", nil), nil)
		return
	}
	r.reply(ctx, m.ChatID, r.t(u, "announce-status", i18n.Params{
		"id":     st.ID,
		"done":   strconv.Itoa(st.Done),
		"total":  strconv.Itoa(st.Total),
		"failed": strconv.Itoa(st.Failed),
	}), nil)
}

// processGroupInput handles the free-text group code a user sends
// after opening the group menu (or during onboarding).
func (r *Router) processGroupInput(ctx context.Context, m *kit.Message, text string, onboarding bool) {
	u := r.user(m.FromID)
	group, err := r.deps.Users.SetGroup(m.FromID, text)
	if err != nil {
		r.reply(ctx, m.ChatID, r.t(u, "group-invalid-format", nil), nil)
		// Keep waiting for a valid code.
		if onboarding {
			r.setState(m.ChatID, pending{kind: pendingOnboardGroup})
		} else {
			r.setState(m.ChatID, pending{kind: pendingGroup})
		}
		return
	}

	display := r.deps.Bundle.FormatGroupDisplay(u.UILang, group.Code())
	if onboarding {
		r.reply(ctx, m.ChatID, r.t(u, "group-set-success", i18n.Params{"group": display}), nil)
		r.reply(ctx, m.ChatID, r.t(u, "onboard-complete", nil), nil)
		return
	}
	kb := [][]kit.Button{{{Text: r.t(u, "button-back-to-settings", nil), Data: "settings_main"}}}
	r.reply(ctx, m.ChatID, r.t(u, "group-set-success", i18n.Params{"group": display}), kb)
}

// processCustomTimeInput handles the free-text duration for a custom
// reminder slot.
func (r *Router) processCustomTimeInput(ctx context.Context, m *kit.Message, text string, slot int) {
	u := r.user(m.FromID)

	minutes, err := userstore.ParseTimeInput(text)
	if err == nil {
		err = r.deps.Users.SetCustomSlot(m.FromID, slot, minutes)
	}
	if err != nil {
		kb := [][]kit.Button{
			{{Text: r.t(u, "button-try-again", nil), Data: "custom_notif_input_" + strconv.Itoa(slot)}},
			{{Text: r.t(u, "button-back", nil), Data: "custom_notif_menu"}},
		}
		r.reply(ctx, m.ChatID, r.t(u, "custom-invalid", i18n.Params{"error": err.Error()}), kb)
		return
	}

	timeStr := r.deps.Bundle.FormatTimeUntil(u.UILang, time.Duration(minutes)*time.Minute)
	kb := [][]kit.Button{{{Text: r.t(u, "button-back-to-notifications", nil), Data: "custom_notif_menu"}}}
	r.reply(ctx, m.ChatID, r.t(u, "custom-set-success", i18n.Params{"time": timeStr}), kb)
}
