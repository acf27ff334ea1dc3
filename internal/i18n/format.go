package i18n

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/calendar"
)

// FormatWeather renders a full forecast message: both sessions plus
// the four race quarters. Ranges collapse to a single value when low
// and high match.
func (b *Bundle) FormatWeather(locale string, fc *calendar.Forecast) string {
	if fc == nil {
		return b.T(locale, "weather-unavailable", nil)
	}

	var sb strings.Builder
	sb.WriteString(b.T(locale, "weather-title", nil))
	sb.WriteString("\n\n")
	sb.WriteString(b.T(locale, "weather-practice-q1", Params{"weather": fc.Q1.Weather}))
	sb.WriteByte('\n')
	sb.WriteString(b.T(locale, "weather-temp-hum", Params{
		"temp": strconv.Itoa(fc.Q1.Temp),
		"hum":  strconv.Itoa(fc.Q1.Humidity),
	}))
	sb.WriteString("\n\n")
	sb.WriteString(b.T(locale, "weather-q2-race-start", Params{"weather": fc.Q2.Weather}))
	sb.WriteByte('\n')
	sb.WriteString(b.T(locale, "weather-temp-hum", Params{
		"temp": strconv.Itoa(fc.Q2.Temp),
		"hum":  strconv.Itoa(fc.Q2.Humidity),
	}))
	sb.WriteString("\n\n")
	sb.WriteString(b.T(locale, "weather-race-conditions", nil))
	sb.WriteByte('\n')

	quarterKeys := [4]string{
		"weather-start-0h30m",
		"weather-0h30m-1h00m",
		"weather-1h00m-1h30m",
		"weather-1h30m-2h00m",
	}
	for i, q := range fc.Quarters {
		sb.WriteByte('\n')
		sb.WriteString(b.T(locale, quarterKeys[i], nil))
		sb.WriteByte('\n')
		sb.WriteString(b.T(locale, "weather-temp-hum-range", Params{
			"temp": formatRange(q.TempLow, q.TempHigh, "°"),
			"hum":  formatRange(q.HumLow, q.HumHigh, "%"),
		}))
		sb.WriteByte('\n')
		sb.WriteString(b.T(locale, "weather-rain-prob", Params{
			"rain": formatRange(q.RainLow, q.RainHigh, "%"),
		}))
		sb.WriteByte('\n')
	}
	return sb.String()
}

func formatRange(low, high int, unit string) string {
	if low == high {
		return strconv.Itoa(low) + unit
	}
	return strconv.Itoa(low) + unit + "-" + strconv.Itoa(high) + unit
}

// FormatTimeUntil renders a duration in the coarse human style used in
// calendar listings: minutes close in, then hours, days, and months.
// Non-positive durations render empty.
func (b *Bundle) FormatTimeUntil(locale string, d time.Duration) string {
	totalMinutes := int(d.Minutes())
	if totalMinutes <= 0 {
		return ""
	}
	totalHours := totalMinutes / 60
	totalDays := totalHours / 24

	switch {
	case totalMinutes < 100:
		h, m := totalMinutes/60, totalMinutes%60
		if h > 0 {
			return b.T(locale, "time-hours-minutes", Params{
				"hours": strconv.Itoa(h), "minutes": strconv.Itoa(m),
			})
		}
		return b.T(locale, "time-minutes", Params{"minutes": strconv.Itoa(m)})
	case totalDays >= 30:
		months, days := totalDays/30, totalDays%30
		if days > 0 {
			return b.T(locale, "time-months-days", Params{
				"months": strconv.Itoa(months), "days": strconv.Itoa(days),
			})
		}
		return b.T(locale, "time-months", Params{"months": strconv.Itoa(months)})
	case totalHours >= 120:
		return b.T(locale, "time-days", Params{"days": strconv.Itoa(totalDays)})
	case totalHours >= 24:
		days, hours := totalHours/24, totalHours%24
		if hours > 0 {
			return b.T(locale, "time-days-hours", Params{
				"days": strconv.Itoa(days), "hours": strconv.Itoa(hours),
			})
		}
		return b.T(locale, "time-days", Params{"days": strconv.Itoa(days)})
	default:
		return b.T(locale, "time-hours", Params{"hours": strconv.Itoa(totalHours)})
	}
}

// FormatCalendar renders a season list, one race per line. For the
// current season the soonest race with an open qualification carries a
// fire marker; past races show only the date.
func (b *Bundle) FormatCalendar(locale string, races []*calendar.Race, isCurrent bool, now time.Time) string {
	if len(races) == 0 {
		return b.T(locale, "no-races-scheduled", nil)
	}

	nextID := 0
	if isCurrent {
		for _, r := range races {
			if r.QualiClose.After(now) {
				nextID = r.ID
				break
			}
		}
	}

	var sb strings.Builder
	for _, r := range races {
		line := "*#" + strconv.Itoa(r.ID) + " " + DecorateTrack(r.Track) + "* - " + r.Start.Format("Mon 02.01")
		if r.QualiClose.After(now) {
			line += " • " + b.FormatTimeUntil(locale, r.QualiClose.Sub(now))
		}
		if r.ID == nextID {
			line = "🔥 " + line
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

var trackCountryRe = regexp.MustCompile(`^(.*?)\s*\(([^)]+)\)\s*$`)

// DecorateTrack replaces the trailing "(Country)" in a track name with
// the country's flag emoji. Unknown countries keep the original form.
func DecorateTrack(track string) string {
	m := trackCountryRe.FindStringSubmatch(track)
	if m == nil {
		return track
	}
	iso, ok := countryISO[strings.ToLower(strings.TrimSpace(m[2]))]
	if !ok {
		return track
	}
	return m[1] + " " + flagEmoji(iso)
}

// flagEmoji composes a flag from a two-letter ISO code via regional
// indicator symbols.
func flagEmoji(iso string) string {
	if len(iso) != 2 {
		return ""
	}
	const regionalIndicatorA = 0x1F1E6
	iso = strings.ToUpper(iso)
	return string(rune(regionalIndicatorA+int(iso[0])-'A')) +
		string(rune(regionalIndicatorA+int(iso[1])-'A'))
}

// countryISO maps the country names appearing in track titles to ISO
// 3166-1 alpha-2 codes.
var countryISO = map[string]string{
	"argentina":            "AR",
	"australia":            "AU",
	"austria":              "AT",
	"azerbaijan":           "AZ",
	"bahrain":              "BH",
	"belgium":              "BE",
	"brazil":               "BR",
	"canada":               "CA",
	"china":                "CN",
	"czech republic":       "CZ",
	"finland":              "FI",
	"france":               "FR",
	"germany":              "DE",
	"great britain":        "GB",
	"hungary":              "HU",
	"india":                "IN",
	"indonesia":            "ID",
	"ireland":              "IE",
	"italy":                "IT",
	"japan":                "JP",
	"malaysia":             "MY",
	"mexico":               "MX",
	"monaco":               "MC",
	"morocco":              "MA",
	"netherlands":          "NL",
	"poland":               "PL",
	"portugal":             "PT",
	"qatar":                "QA",
	"russia":               "RU",
	"san marino":           "SM",
	"saudi arabia":         "SA",
	"singapore":            "SG",
	"south africa":         "ZA",
	"south korea":          "KR",
	"spain":                "ES",
	"sweden":               "SE",
	"switzerland":          "CH",
	"turkey":               "TR",
	"ukraine":              "UA",
	"united arab emirates": "AE",
	"united kingdom":       "GB",
	"united states":        "US",
	"usa":                  "US",
	"vietnam":              "VN",
}

// FormatGroupDisplay expands a group code into its long form, e.g.
// "M3" -> "Master - 3". An empty code renders the localized "not set".
func (b *Bundle) FormatGroupDisplay(locale, code string) string {
	if code == "" {
		return b.T(locale, "group-not-set", nil)
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "E" {
		return "Elite"
	}
	names := map[byte]string{'M': "Master", 'P': "Pro", 'A': "Amateur", 'R': "Rookie"}
	name, ok := names[code[0]]
	if !ok || len(code) < 2 {
		return code
	}
	return name + " - " + code[1:]
}
