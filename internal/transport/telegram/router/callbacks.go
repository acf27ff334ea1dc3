package router

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/i18n"
	kit "github.com/Bakaface/gpro-qualy-reminder-bot/internal/transport"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/userstore"
	"github.com/Bakaface/gpro-qualy-reminder-bot/pkg/logx"
)

// linkLangNames maps GPRO link-language codes to their display names.
var linkLangNames = map[string]string{
	"gb": "🇬🇧 English", "de": "🇩🇪 Deutsch", "es": "🇪🇸 Español",
	"ro": "🇷🇴 Română", "it": "🇮🇹 Italiano", "fr": "🇫🇷 Français",
	"pl": "🇵🇱 Polski", "bg": "🇧🇬 Български", "mk": "🇲🇰 Македонски",
	"nl": "🇳🇱 Nederlands", "fi": "🇫🇮 Suomi", "hu": "🇭🇺 Magyar",
	"tr": "🇹🇷 Türkçe", "gr": "🇬🇷 Ελληνικά", "dk": "🇩🇰 Dansk",
	"pt": "🇵🇹 Português", "ru": "🇷🇺 Русский", "rs": "🇷🇸 Српски",
	"se": "🇸🇪 Svenska", "lt": "🇱🇹 Lietuvių", "ee": "🇪🇪 Eesti",
	"al": "🇦🇱 Shqip", "hr": "🇭🇷 Hrvatski", "ch": "🇨🇳 中文",
	"my": "🇲🇾 Bahasa Melayu", "in": "🇮🇳 हिन्दी", "pi": "🏴‍☠️ Pirate",
	"be": "🇧🇪 Vlaams", "br": "🇧🇷 Português (BR)", "cz": "🇨🇿 Čeština",
	"sk": "🇸🇰 Slovenčina",
}

// linkLangPages distributes the 31 codes across four keyboard pages,
// with gb and ru up front.
var linkLangPages = [][]string{
	{"gb", "ru", "de", "es", "ro", "it", "fr", "pl"},
	{"bg", "mk", "nl", "fi", "hu", "tr", "gr", "dk"},
	{"pt", "rs", "se", "lt", "ee", "al", "hr", "ch"},
	{"my", "in", "pi", "be", "br", "cz", "sk"},
}

// toggleOrder fixes the display order of the notification toggles.
var toggleOrder = []string{
	userstore.Label48h, userstore.Label24h, userstore.Label2h, userstore.Label10min,
	userstore.LabelOpensSoon, userstore.LabelRaceLive, userstore.LabelReplay, userstore.LabelResults,
}

func notifLabelKey(label string) string {
	return "notif-label-" + strings.ReplaceAll(label, "_", "-")
}

// customPresets are the quick-pick offsets for a custom slot, in
// minutes before quali close.
var customPresets = []struct {
	Label   string
	Minutes int
}{
	{"20m", 20}, {"30m", 30}, {"1h", 60},
	{"3h", 180}, {"6h", 360}, {"12h", 720},
	{"24h", 1440}, {"48h", 2880}, {"70h", 4200},
}

func (r *Router) handleCallback(ctx context.Context, cb *kit.Callback) {
	data := cb.Data
	switch {
	case strings.HasPrefix(data, "onboard_"):
		r.handleOnboardCallback(ctx, cb, strings.TrimPrefix(data, "onboard_"))

	case strings.HasPrefix(data, "done_"):
		r.cbQualiDone(ctx, cb, strings.TrimPrefix(data, "done_"))
	case strings.HasPrefix(data, "reset_"):
		r.cbQualiReset(ctx, cb)
	case strings.HasPrefix(data, "weather_"):
		r.cbWeather(ctx, cb, strings.TrimPrefix(data, "weather_"))

	case data == "settings_main", data == "lang_back_main":
		r.cbSettingsMain(ctx, cb)
	case data == "ui_lang_menu":
		r.cbUILangMenu(ctx, cb)
	case strings.HasPrefix(data, "set_ui_lang_"):
		r.cbSetUILang(ctx, cb, strings.TrimPrefix(data, "set_ui_lang_"))
	case data == "lang_menu":
		r.cbLangMenu(ctx, cb, 1)
	case strings.HasPrefix(data, "lang_page_"):
		if page, err := strconv.Atoi(strings.TrimPrefix(data, "lang_page_")); err == nil {
			r.cbLangMenu(ctx, cb, page)
		}
	case data == "lang_reset_default":
		r.cbSetLang(ctx, cb, "gb", true)
	case strings.HasPrefix(data, "lang_"):
		r.cbSetLang(ctx, cb, strings.TrimPrefix(data, "lang_"), false)

	case data == "group_menu":
		r.cbGroupMenu(ctx, cb)
	case data == "group_reset":
		r.cbGroupReset(ctx, cb)

	case data == "notif_menu":
		r.cbNotifMenu(ctx, cb, "")
	case data == "toggle_all_on":
		r.cbToggleAll(ctx, cb, true)
	case data == "toggle_all_off":
		r.cbToggleAll(ctx, cb, false)
	case strings.HasPrefix(data, "toggle_"):
		r.cbToggle(ctx, cb, strings.TrimPrefix(data, "toggle_"))

	case data == "custom_notif_menu":
		r.cbCustomMenu(ctx, cb, "")
	case strings.HasPrefix(data, "custom_notif_edit_"):
		r.cbCustomEdit(ctx, cb, strings.TrimPrefix(data, "custom_notif_edit_"))
	case strings.HasPrefix(data, "custom_notif_set_"):
		r.cbCustomSet(ctx, cb, strings.TrimPrefix(data, "custom_notif_set_"))
	case strings.HasPrefix(data, "custom_notif_disable_"):
		r.cbCustomDisable(ctx, cb, strings.TrimPrefix(data, "custom_notif_disable_"))
	case strings.HasPrefix(data, "custom_notif_input_"):
		r.cbCustomInputPrompt(ctx, cb, strings.TrimPrefix(data, "custom_notif_input_"))

	default:
		r.answer(ctx, cb.ID, "")
	}
}

// --- reminder message buttons ---

func (r *Router) cbQualiDone(ctx context.Context, cb *kit.Callback, raw string) {
	u := r.user(cb.FromID)
	raceID, err := strconv.Atoi(raw)
	if err != nil {
		r.answer(ctx, cb.ID, r.t(u, "race-not-found", nil))
		return
	}
	if err := r.deps.Users.MarkQualiDone(cb.FromID, raceID); err != nil {
		r.answer(ctx, cb.ID, r.t(u, "invalid-input", nil))
		return
	}
	// Swap the Done button for a Re-enable one; original text is gone
	// after an edit, so re-render a short confirmation instead.
	kb := [][]kit.Button{{
		{Text: r.t(u, "button-reenable-race", i18n.Params{"raceId": raw}), Data: "reset_" + raw},
	}}
	r.edit(ctx, cb.ChatID, cb.MessageID,
		r.t(u, "quali-marked-done", nil)+r.t(u, "quali-marked-done-suffix", nil), kb)
	r.answer(ctx, cb.ID, r.t(u, "quali-marked-done", nil))
}

func (r *Router) cbQualiReset(ctx context.Context, cb *kit.Callback) {
	u := r.user(cb.FromID)
	if err := r.deps.Users.ResetQuali(cb.FromID); err != nil {
		r.answer(ctx, cb.ID, r.t(u, "invalid-input", nil))
		return
	}
	r.edit(ctx, cb.ChatID, cb.MessageID,
		r.t(u, "quali-reset", nil)+r.t(u, "quali-reset-suffix", nil), nil)
	r.answer(ctx, cb.ID, r.t(u, "quali-reset", nil))
}

func (r *Router) cbWeather(ctx context.Context, cb *kit.Callback, raw string) {
	u := r.user(cb.FromID)
	raceID, err := strconv.Atoi(raw)
	if err != nil {
		r.answer(ctx, cb.ID, r.t(u, "race-not-found", nil))
		return
	}
	race, ok := r.deps.Calendar.RaceByID(raceID)
	if !ok {
		r.answer(ctx, cb.ID, r.t(u, "race-not-found", nil))
		return
	}
	if race.Weather == nil {
		r.answer(ctx, cb.ID, r.t(u, "weather-not-ready", nil))
		return
	}
	header := r.t(u, "weather-header", i18n.Params{
		"raceId": raw,
		"track":  i18n.DecorateTrack(race.Track),
	})
	r.reply(ctx, cb.ChatID, header+"\n\n"+r.deps.Bundle.FormatWeather(u.UILang, race.Weather), nil)
	r.answer(ctx, cb.ID, r.t(u, "weather-sent", nil))
}

// --- settings menus ---

func (r *Router) settingsKeyboard(u *userstore.User) [][]kit.Button {
	uiLang := "🇬🇧 English"
	if u.UILang == "ru" {
		uiLang = "🇷🇺 Русский"
	}
	linkLang := linkLangNames[u.LinkLang]
	if linkLang == "" {
		linkLang = u.LinkLang
	}
	group := r.deps.Bundle.FormatGroupDisplay(u.UILang, u.Group.Code())
	return [][]kit.Button{
		{{Text: r.t(u, "button-ui-language", i18n.Params{"language": uiLang}), Data: "ui_lang_menu"}},
		{{Text: r.t(u, "button-gpro-language", i18n.Params{"language": linkLang}), Data: "lang_menu"}},
		{{Text: r.t(u, "button-group", i18n.Params{"group": group}), Data: "group_menu"}},
		{{Text: r.t(u, "button-notifications", nil), Data: "notif_menu"}},
	}
}

func (r *Router) cbSettingsMain(ctx context.Context, cb *kit.Callback) {
	u := r.user(cb.FromID)
	r.setState(cb.ChatID, pending{})
	r.edit(ctx, cb.ChatID, cb.MessageID, r.t(u, "settings-title", nil), r.settingsKeyboard(u))
	r.answer(ctx, cb.ID, "")
}

func (r *Router) cbUILangMenu(ctx context.Context, cb *kit.Callback) {
	u := r.user(cb.FromID)
	r.edit(ctx, cb.ChatID, cb.MessageID, r.t(u, "ui-lang-menu-title", nil), r.uiLangKeyboard(u))
	r.answer(ctx, cb.ID, "")
}

func (r *Router) uiLangKeyboard(u *userstore.User) [][]kit.Button {
	en, ru := "🇬🇧 English", "🇷🇺 Русский"
	if u.UILang == "ru" {
		ru = "✅ " + ru
	} else {
		en = "✅ " + en
	}
	return [][]kit.Button{
		{{Text: en, Data: "set_ui_lang_en"}},
		{{Text: ru, Data: "set_ui_lang_ru"}},
		{{Text: r.t(u, "button-back", nil), Data: "settings_main"}},
	}
}

func (r *Router) cbSetUILang(ctx context.Context, cb *kit.Callback, lang string) {
	u := r.user(cb.FromID)
	if !r.deps.Bundle.Supported(lang) {
		r.answer(ctx, cb.ID, r.t(u, "invalid-input", nil))
		return
	}
	err := r.deps.Users.Update(cb.FromID, func(usr *userstore.User) error {
		usr.UILang = lang
		return nil
	})
	if err != nil {
		r.answer(ctx, cb.ID, r.t(u, "invalid-input", nil))
		return
	}
	u = r.user(cb.FromID)
	display := "English"
	if lang == "ru" {
		display = "Русский"
	}
	r.answer(ctx, cb.ID, r.t(u, "ui-lang-set", i18n.Params{"language": display}))
	r.edit(ctx, cb.ChatID, cb.MessageID, r.t(u, "ui-lang-menu-title", nil), r.uiLangKeyboard(u))
}

func (r *Router) langKeyboard(u *userstore.User, page int) [][]kit.Button {
	if page < 1 || page > len(linkLangPages) {
		page = 1
	}
	var kb [][]kit.Button
	for _, code := range linkLangPages[page-1] {
		text := linkLangNames[code]
		if code == u.LinkLang {
			text = "✅ " + text
		}
		kb = append(kb, []kit.Button{{Text: text, Data: "lang_" + code}})
	}
	if page == len(linkLangPages) {
		kb = append(kb, []kit.Button{{Text: r.t(u, "button-reset-language", nil), Data: "lang_reset_default"}})
	}
	var footer []kit.Button
	if page > 1 {
		footer = append(footer, kit.Button{Text: r.t(u, "button-previous", nil), Data: "lang_page_" + strconv.Itoa(page-1)})
	}
	footer = append(footer, kit.Button{Text: r.t(u, "button-main-menu", nil), Data: "lang_back_main"})
	if page < len(linkLangPages) {
		footer = append(footer, kit.Button{Text: r.t(u, "button-next", nil), Data: "lang_page_" + strconv.Itoa(page+1)})
	}
	return append(kb, footer)
}

func (r *Router) cbLangMenu(ctx context.Context, cb *kit.Callback, page int) {
	u := r.user(cb.FromID)
	title := r.t(u, "lang-menu-title", i18n.Params{"currentLang": linkLangNames[u.LinkLang]})
	r.edit(ctx, cb.ChatID, cb.MessageID, title, r.langKeyboard(u, page))
	r.answer(ctx, cb.ID, "")
}

func (r *Router) cbSetLang(ctx context.Context, cb *kit.Callback, code string, reset bool) {
	u := r.user(cb.FromID)
	if _, ok := linkLangNames[code]; !ok {
		r.answer(ctx, cb.ID, r.t(u, "invalid-input", nil))
		return
	}
	err := r.deps.Users.Update(cb.FromID, func(usr *userstore.User) error {
		usr.LinkLang = code
		return nil
	})
	if err != nil {
		r.answer(ctx, cb.ID, r.t(u, "invalid-input", nil))
		return
	}
	u = r.user(cb.FromID)

	page := 1
	for i, codes := range linkLangPages {
		for _, c := range codes {
			if c == code {
				page = i + 1
			}
		}
	}
	title := r.t(u, "lang-menu-title", i18n.Params{"currentLang": linkLangNames[code]})
	r.edit(ctx, cb.ChatID, cb.MessageID, title, r.langKeyboard(u, page))
	if reset {
		r.answer(ctx, cb.ID, r.t(u, "lang-reset", nil))
	} else {
		r.answer(ctx, cb.ID, r.t(u, "lang-set", i18n.Params{"language": linkLangNames[code]}))
	}
}

func (r *Router) cbGroupMenu(ctx context.Context, cb *kit.Callback) {
	u := r.user(cb.FromID)
	var kb [][]kit.Button
	if u.Group.Code() != "" {
		kb = append(kb, []kit.Button{{Text: r.t(u, "button-reset-group", nil), Data: "group_reset"}})
	}
	kb = append(kb, []kit.Button{{Text: r.t(u, "button-back-to-settings", nil), Data: "settings_main"}})

	r.setState(cb.ChatID, pending{kind: pendingGroup})
	display := r.deps.Bundle.FormatGroupDisplay(u.UILang, u.Group.Code())
	r.edit(ctx, cb.ChatID, cb.MessageID,
		r.t(u, "group-menu-title", i18n.Params{"groupDisplay": display}), kb)
	r.answer(ctx, cb.ID, "")
}

func (r *Router) cbGroupReset(ctx context.Context, cb *kit.Callback) {
	u := r.user(cb.FromID)
	err := r.deps.Users.Update(cb.FromID, func(usr *userstore.User) error {
		usr.Group = userstore.Group{}
		return nil
	})
	if err != nil {
		r.answer(ctx, cb.ID, r.t(u, "invalid-input", nil))
		return
	}
	r.setState(cb.ChatID, pending{})
	r.answer(ctx, cb.ID, r.t(u, "group-reset-success", nil))
	r.cbSettingsMain(ctx, cb)
}

// --- notification toggles ---

func (r *Router) notifKeyboard(u *userstore.User) [][]kit.Button {
	var kb [][]kit.Button
	allOn := true
	for _, label := range toggleOrder {
		enabled := u.NotificationEnabled(label)
		if !enabled {
			allOn = false
		}
		icon := "✅"
		if !enabled {
			icon = "❌"
		}
		kb = append(kb, []kit.Button{{
			Text: icon + " " + r.t(u, notifLabelKey(label), nil),
			Data: "toggle_" + label,
		}})
	}
	kb = append(kb, []kit.Button{{Text: r.t(u, "button-custom-notifications", nil), Data: "custom_notif_menu"}})
	if allOn {
		kb = append(kb, []kit.Button{{Text: r.t(u, "button-disable-all", nil), Data: "toggle_all_off"}})
	} else {
		kb = append(kb, []kit.Button{{Text: r.t(u, "button-enable-all", nil), Data: "toggle_all_on"}})
	}
	return append(kb, []kit.Button{{Text: r.t(u, "button-back", nil), Data: "settings_main"}})
}

func (r *Router) cbNotifMenu(ctx context.Context, cb *kit.Callback, feedback string) {
	u := r.user(cb.FromID)
	r.edit(ctx, cb.ChatID, cb.MessageID, r.t(u, "notif-menu-title", nil), r.notifKeyboard(u))
	r.answer(ctx, cb.ID, feedback)
}

func (r *Router) cbToggle(ctx context.Context, cb *kit.Callback, label string) {
	u := r.user(cb.FromID)
	enabled, err := r.deps.Users.ToggleNotification(cb.FromID, label)
	if err != nil {
		r.answer(ctx, cb.ID, r.t(u, "invalid-input", nil))
		return
	}
	key := "toggle-disabled"
	if enabled {
		key = "toggle-enabled"
	}
	feedback := r.t(u, key, i18n.Params{"label": r.t(u, notifLabelKey(label), nil)})
	r.cbNotifMenu(ctx, cb, feedback)
}

func (r *Router) cbToggleAll(ctx context.Context, cb *kit.Callback, on bool) {
	u := r.user(cb.FromID)
	err := r.deps.Users.Update(cb.FromID, func(usr *userstore.User) error {
		for _, label := range toggleOrder {
			usr.Notifications[label] = on
		}
		return nil
	})
	if err != nil {
		r.answer(ctx, cb.ID, r.t(u, "invalid-input", nil))
		return
	}
	key := "toggle-all-off"
	if on {
		key = "toggle-all-on"
	}
	r.cbNotifMenu(ctx, cb, r.t(u, key, nil))
}

// --- custom reminder slots ---

func (r *Router) cbCustomMenu(ctx context.Context, cb *kit.Callback, feedback string) {
	u := r.user(cb.FromID)
	r.setState(cb.ChatID, pending{})

	var kb [][]kit.Button
	for i, slot := range u.CustomSlots {
		var text string
		if slot.Enabled {
			timeStr := r.deps.Bundle.FormatTimeUntil(u.UILang, time.Duration(slot.MinutesBefore)*time.Minute)
			text = r.t(u, "button-custom-slot-set", i18n.Params{
				"slot": strconv.Itoa(i + 1),
				"time": timeStr,
			})
		} else {
			text = r.t(u, "button-custom-slot-empty", i18n.Params{"slot": strconv.Itoa(i + 1)})
		}
		kb = append(kb, []kit.Button{{Text: text, Data: "custom_notif_edit_" + strconv.Itoa(i)}})
	}
	kb = append(kb, []kit.Button{{Text: r.t(u, "button-back-to-notifications", nil), Data: "notif_menu"}})

	title := r.t(u, "custom-menu-title", i18n.Params{
		"minTime": strconv.Itoa(userstore.MinCustomMinutes),
		"maxTime": strconv.Itoa(userstore.MaxCustomMinutes / 60),
	})
	r.edit(ctx, cb.ChatID, cb.MessageID, title, kb)
	r.answer(ctx, cb.ID, feedback)
}

func (r *Router) cbCustomEdit(ctx context.Context, cb *kit.Callback, raw string) {
	u := r.user(cb.FromID)
	slot, err := strconv.Atoi(raw)
	if err != nil || slot < 0 || slot >= len(u.CustomSlots) {
		r.answer(ctx, cb.ID, r.t(u, "invalid-input", nil))
		return
	}

	var kb [][]kit.Button
	for i := 0; i < len(customPresets); i += 3 {
		var row []kit.Button
		for _, p := range customPresets[i : i+3] {
			row = append(row, kit.Button{
				Text: p.Label,
				Data: "custom_notif_set_" + raw + "_" + strconv.Itoa(p.Minutes),
			})
		}
		kb = append(kb, row)
	}
	kb = append(kb, []kit.Button{{Text: r.t(u, "button-enter-custom-time", nil), Data: "custom_notif_input_" + raw}})
	if u.CustomSlots[slot].Enabled {
		kb = append(kb, []kit.Button{{Text: r.t(u, "button-disable-slot", nil), Data: "custom_notif_disable_" + raw}})
	}
	kb = append(kb, []kit.Button{{Text: r.t(u, "button-back", nil), Data: "custom_notif_menu"}})

	current := ""
	if u.CustomSlots[slot].Enabled {
		timeStr := r.deps.Bundle.FormatTimeUntil(u.UILang, time.Duration(u.CustomSlots[slot].MinutesBefore)*time.Minute)
		current = r.t(u, "custom-edit-current", i18n.Params{"time": timeStr})
	}
	title := r.t(u, "custom-edit-title", i18n.Params{
		"slot":    strconv.Itoa(slot + 1),
		"current": current,
	})
	r.edit(ctx, cb.ChatID, cb.MessageID, title, kb)
	r.answer(ctx, cb.ID, "")
}

func (r *Router) cbCustomSet(ctx context.Context, cb *kit.Callback, raw string) {
	u := r.user(cb.FromID)
	parts := strings.SplitN(raw, "_", 2)
	if len(parts) != 2 {
		r.answer(ctx, cb.ID, r.t(u, "invalid-input", nil))
		return
	}
	slot, err1 := strconv.Atoi(parts[0])
	minutes, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		r.answer(ctx, cb.ID, r.t(u, "invalid-input", nil))
		return
	}
	if err := r.deps.Users.SetCustomSlot(cb.FromID, slot, minutes); err != nil {
		r.answer(ctx, cb.ID, "❌ "+err.Error())
		return
	}
	timeStr := r.deps.Bundle.FormatTimeUntil(u.UILang, time.Duration(minutes)*time.Minute)
	r.cbCustomMenu(ctx, cb, r.t(u, "custom-set-success", i18n.Params{"time": timeStr}))
}

func (r *Router) cbCustomDisable(ctx context.Context, cb *kit.Callback, raw string) {
	u := r.user(cb.FromID)
	slot, err := strconv.Atoi(raw)
	if err != nil {
		r.answer(ctx, cb.ID, r.t(u, "invalid-input", nil))
		return
	}
	if err := r.deps.Users.DisableCustomSlot(cb.FromID, slot); err != nil {
		r.answer(ctx, cb.ID, r.t(u, "invalid-input", nil))
		return
	}
	r.cbCustomMenu(ctx, cb, r.t(u, "custom-disabled", i18n.Params{"slot": strconv.Itoa(slot + 1)}))
}

func (r *Router) cbCustomInputPrompt(ctx context.Context, cb *kit.Callback, raw string) {
	u := r.user(cb.FromID)
	slot, err := strconv.Atoi(raw)
	if err != nil || slot < 0 || slot >= len(u.CustomSlots) {
		r.answer(ctx, cb.ID, r.t(u, "invalid-input", nil))
		return
	}
	r.setState(cb.ChatID, pending{kind: pendingCustomTime, slot: slot})
	kb := [][]kit.Button{{{Text: r.t(u, "button-cancel", nil), Data: "custom_notif_menu"}}}
	r.edit(ctx, cb.ChatID, cb.MessageID,
		r.t(u, "custom-input-prompt", i18n.Params{"slot": strconv.Itoa(slot + 1)}), kb)
	r.answer(ctx, cb.ID, "")
}

// --- onboarding ---

func (r *Router) handleOnboardCallback(ctx context.Context, cb *kit.Callback, data string) {
	switch {
	case strings.HasPrefix(data, "ui_lang_"):
		r.cbOnboardUILang(ctx, cb, strings.TrimPrefix(data, "ui_lang_"))
	case strings.HasPrefix(data, "lang_page_"):
		if page, err := strconv.Atoi(strings.TrimPrefix(data, "lang_page_")); err == nil {
			u := r.user(cb.FromID)
			title := r.t(u, "onboard-gpro-lang", nil)
			r.edit(ctx, cb.ChatID, cb.MessageID, title, r.onboardLangKeyboard(u, page))
			r.answer(ctx, cb.ID, "")
		}
	case data == "skip_lang":
		r.answer(ctx, cb.ID, "")
		r.showOnboardGroupMenu(ctx, cb)
	case strings.HasPrefix(data, "lang_"):
		r.cbOnboardLang(ctx, cb, strings.TrimPrefix(data, "lang_"))
	case data == "group_custom":
		r.cbOnboardGroupCustom(ctx, cb)
	case data == "skip_group":
		r.setState(cb.ChatID, pending{})
		r.answer(ctx, cb.ID, "")
		r.showOnboardComplete(ctx, cb)
	case strings.HasPrefix(data, "group_"):
		r.cbOnboardGroup(ctx, cb, strings.TrimPrefix(data, "group_"))
	case data == "complete":
		r.answer(ctx, cb.ID, "")
	}
}

func (r *Router) onboardLangKeyboard(u *userstore.User, page int) [][]kit.Button {
	if page < 1 || page > len(linkLangPages) {
		page = 1
	}
	var kb [][]kit.Button
	for _, code := range linkLangPages[page-1] {
		text := linkLangNames[code]
		if code == u.LinkLang {
			text = "✅ " + text
		}
		kb = append(kb, []kit.Button{{Text: text, Data: "onboard_lang_" + code}})
	}
	var footer []kit.Button
	if page > 1 {
		footer = append(footer, kit.Button{Text: r.t(u, "button-previous", nil), Data: "onboard_lang_page_" + strconv.Itoa(page-1)})
	}
	footer = append(footer, kit.Button{Text: r.t(u, "button-skip", nil), Data: "onboard_skip_lang"})
	if page < len(linkLangPages) {
		footer = append(footer, kit.Button{Text: r.t(u, "button-next", nil), Data: "onboard_lang_page_" + strconv.Itoa(page+1)})
	}
	return append(kb, footer)
}

func (r *Router) cbOnboardUILang(ctx context.Context, cb *kit.Callback, lang string) {
	if r.deps.Bundle.Supported(lang) {
		err := r.deps.Users.Update(cb.FromID, func(usr *userstore.User) error {
			usr.UILang = lang
			return nil
		})
		if err != nil {
			r.log.Warn("onboarding ui lang not saved", logx.Int64("user", cb.FromID), logx.Err(err))
		}
	}
	u := r.user(cb.FromID)
	r.edit(ctx, cb.ChatID, cb.MessageID, r.t(u, "onboard-gpro-lang", nil), r.onboardLangKeyboard(u, 1))
	r.answer(ctx, cb.ID, "")
}

func (r *Router) cbOnboardLang(ctx context.Context, cb *kit.Callback, code string) {
	u := r.user(cb.FromID)
	if _, ok := linkLangNames[code]; !ok {
		r.answer(ctx, cb.ID, r.t(u, "invalid-input", nil))
		return
	}
	err := r.deps.Users.Update(cb.FromID, func(usr *userstore.User) error {
		usr.LinkLang = code
		return nil
	})
	if err != nil {
		r.answer(ctx, cb.ID, r.t(u, "invalid-input", nil))
		return
	}
	r.answer(ctx, cb.ID, r.t(u, "lang-set", i18n.Params{"language": linkLangNames[code]}))
	r.showOnboardGroupMenu(ctx, cb)
}

func (r *Router) showOnboardGroupMenu(ctx context.Context, cb *kit.Callback) {
	u := r.user(cb.FromID)
	kb := [][]kit.Button{
		{{Text: "Elite", Data: "onboard_group_E"}, {Text: "Master 3", Data: "onboard_group_M3"}},
		{{Text: "Pro 15", Data: "onboard_group_P15"}, {Text: "Amateur 42", Data: "onboard_group_A42"}},
		{{Text: "Rookie 11", Data: "onboard_group_R11"}},
		{{Text: r.t(u, "button-enter-custom-time", nil), Data: "onboard_group_custom"}},
		{{Text: r.t(u, "button-skip", nil), Data: "onboard_skip_group"}},
	}
	r.edit(ctx, cb.ChatID, cb.MessageID, r.t(u, "onboard-group-title", nil), kb)
}

func (r *Router) cbOnboardGroup(ctx context.Context, cb *kit.Callback, code string) {
	u := r.user(cb.FromID)
	group, err := r.deps.Users.SetGroup(cb.FromID, code)
	if err != nil {
		r.answer(ctx, cb.ID, r.t(u, "invalid-input", nil))
		return
	}
	display := r.deps.Bundle.FormatGroupDisplay(u.UILang, group.Code())
	r.answer(ctx, cb.ID, r.t(u, "group-set-success", i18n.Params{"group": display}))
	r.showOnboardComplete(ctx, cb)
}

func (r *Router) cbOnboardGroupCustom(ctx context.Context, cb *kit.Callback) {
	u := r.user(cb.FromID)
	r.setState(cb.ChatID, pending{kind: pendingOnboardGroup})
	kb := [][]kit.Button{{{Text: r.t(u, "button-skip", nil), Data: "onboard_skip_group"}}}
	r.edit(ctx, cb.ChatID, cb.MessageID, r.t(u, "onboard-group-custom", nil), kb)
	r.answer(ctx, cb.ID, "")
}

func (r *Router) showOnboardComplete(ctx context.Context, cb *kit.Callback) {
	u := r.user(cb.FromID)
	r.edit(ctx, cb.ChatID, cb.MessageID, r.t(u, "onboard-complete", nil), nil)
}
