package i18n

import (
	"strings"
	"testing"
	"time"

	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/calendar"
)

func mustLoad(t *testing.T) *Bundle {
	t.Helper()
	b, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return b
}

func TestLoadCatalogs(t *testing.T) {
	b := mustLoad(t)
	for _, locale := range []string{"en", "ru"} {
		if !b.Supported(locale) {
			t.Errorf("locale %q not loaded", locale)
		}
	}
}

func TestTranslateSubstitution(t *testing.T) {
	b := mustLoad(t)
	got := b.T("en", "notif-quali-closes", Params{"time": "10min"})
	if got != "Qualification closes in 10min" {
		t.Errorf("T = %q", got)
	}
}

func TestTranslateFallbacks(t *testing.T) {
	b := mustLoad(t)
	// Unknown locale falls back to English.
	en := b.T("en", "button-weather", nil)
	if got := b.T("de", "button-weather", nil); got != en {
		t.Errorf("unknown locale: got %q, want %q", got, en)
	}
	// Unknown key renders as itself.
	if got := b.T("en", "no-such-key", nil); got != "no-such-key" {
		t.Errorf("unknown key: got %q", got)
	}
}

func TestRussianCatalogCoversEnglish(t *testing.T) {
	b := mustLoad(t)
	en := b.catalogs["en"]
	ru := b.catalogs["ru"]
	for key := range en {
		if _, ok := ru[key]; !ok {
			t.Errorf("ru catalog missing key %q", key)
		}
	}
	for key := range ru {
		if _, ok := en[key]; !ok {
			t.Errorf("ru catalog has extra key %q", key)
		}
	}
}

func TestFormatWeather(t *testing.T) {
	b := mustLoad(t)
	fc := &calendar.Forecast{
		Q1: calendar.SessionForecast{Weather: "Sunny", Temp: 24, Humidity: 40},
		Q2: calendar.SessionForecast{Weather: "Cloudy", Temp: 21, Humidity: 55},
		Quarters: [4]calendar.QuarterForecast{
			{TempLow: 20, TempHigh: 22, HumLow: 50, HumHigh: 50, RainLow: 0, RainHigh: 10},
			{TempLow: 21, TempHigh: 21, HumLow: 48, HumHigh: 52, RainLow: 0, RainHigh: 0},
			{TempLow: 19, TempHigh: 20, HumLow: 55, HumHigh: 60, RainLow: 30, RainHigh: 45},
			{TempLow: 18, TempHigh: 18, HumLow: 60, HumHigh: 60, RainLow: 45, RainHigh: 45},
		},
	}
	msg := b.FormatWeather("en", fc)
	for _, want := range []string{
		"Sunny", "Cloudy",
		"20°-22°",  // range with differing bounds
		"21°",      // collapsed range
		"0%-10%", "45%",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("weather message missing %q:\n%s", want, msg)
		}
	}

	if got := b.FormatWeather("en", nil); got != "Weather data is not available yet." {
		t.Errorf("nil forecast: got %q", got)
	}
}

func TestFormatTimeUntil(t *testing.T) {
	b := mustLoad(t)
	tests := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Minute, "45m"},
		{90 * time.Minute, "1h 30m"},
		{5 * time.Hour, "5h"},
		{30 * time.Hour, "1d 6h"},
		{6 * 24 * time.Hour, "6d"},
		{65 * 24 * time.Hour, "2mo 5d"},
		{60 * 24 * time.Hour, "2mo"},
		{-time.Minute, ""},
	}
	for _, tt := range tests {
		if got := b.FormatTimeUntil("en", tt.d); got != tt.want {
			t.Errorf("FormatTimeUntil(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestDecorateTrack(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Yas Marina GP (United Arab Emirates)", "Yas Marina GP 🇦🇪"},
		{"Silverstone GP (United Kingdom)", "Silverstone GP 🇬🇧"},
		{"Sakhir GP (Bahrain)", "Sakhir GP 🇧🇭"},
		{"Mystery GP (Atlantis)", "Mystery GP (Atlantis)"},
		{"No Country GP", "No Country GP"},
	}
	for _, tt := range tests {
		if got := DecorateTrack(tt.in); got != tt.want {
			t.Errorf("DecorateTrack(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFormatGroupDisplay(t *testing.T) {
	b := mustLoad(t)
	tests := []struct {
		code string
		want string
	}{
		{"E", "Elite"},
		{"M3", "Master - 3"},
		{"R11", "Rookie - 11"},
		{"", "Not set"},
		{"X9", "X9"},
	}
	for _, tt := range tests {
		if got := b.FormatGroupDisplay("en", tt.code); got != tt.want {
			t.Errorf("FormatGroupDisplay(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
