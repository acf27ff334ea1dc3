package calendar

import (
	"regexp"
	"sort"
	"strings"
	"time"
)

// RawEvent is one entry of the upstream calendar feed as the API
// returns it. Dates arrive as display strings, sometimes with HTML
// markup or ordinal suffixes, which parseEventDate untangles.
type RawEvent struct {
	EventType string `json:"eventType"`
	Idx       int    `json:"idx"`
	IdxReal   int    `json:"idxReal"`
	DateEvent string `json:"dateEvent"`
	TrackName string `json:"trackName"`
	Group     string `json:"group"`
}

// raceStartHourUTC is when every race starts; the feed only carries
// the day.
const raceStartHourUTC = 19

const maxTrackNameLen = 30

// BuildSeason converts raw feed events into a season: race events
// only, sorted by date, renumbered sequentially from 1. Events whose
// date cannot be parsed are skipped.
func BuildSeason(events []RawEvent, now time.Time) []*Race {
	var races []*Race
	for _, ev := range events {
		if ev.EventType != "R" {
			continue
		}
		day, ok := parseEventDate(ev.DateEvent, now)
		if !ok {
			continue
		}
		start := time.Date(day.Year(), day.Month(), day.Day(), raceStartHourUTC, 0, 0, 0, time.UTC)

		track := ev.TrackName
		if track == "" {
			track = "Unknown GP"
		}
		if len(track) > maxTrackNameLen {
			track = track[:maxTrackNameLen]
		}
		group := ev.Group
		if group == "" {
			group = "Pro"
		}

		races = append(races, &Race{
			Track:      track,
			QualiClose: start.Add(-RaceStartOffset),
			Start:      start,
			Group:      group,
		})
	}

	sort.Slice(races, func(i, j int) bool { return races[i].Start.Before(races[j].Start) })
	for i, r := range races {
		r.ID = i + 1
	}
	return races
}

var (
	htmlTagRe = regexp.MustCompile(`<[^>]*>`)
	ordinalRe = regexp.MustCompile(`(?i)(st|nd|rd|th)\b`)
	yearRe    = regexp.MustCompile(`\d{4}`)
)

var eventDateFormats = []string{
	"02.01 2006",
	"Jan 2, 2006",
	"Jan 2 2006",
	"2 Jan 2006",
	"2006-01-02",
	"02.01.2006",
}

// parseEventDate handles the feed's date display quirks: a "Today"
// marker (possibly wrapped in markup), HTML tags, ordinal suffixes,
// and a handful of concrete formats. Year-less dates roll over to the
// next year when the day has already passed.
func parseEventDate(raw string, now time.Time) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, false
	}

	if strings.Contains(raw, "Today") || strings.Contains(raw, "<font") || strings.Contains(raw, "<b>") {
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), true
	}

	s := htmlTagRe.ReplaceAllString(raw, "")
	s = ordinalRe.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	for _, layout := range eventDateFormats {
		if dt, err := time.Parse(layout, s); err == nil {
			return dt, true
		}
	}

	// Month/day only: assume this year, or next if already past.
	if !yearRe.MatchString(s) {
		if dt, err := time.Parse("Jan 2", s); err == nil {
			dt = time.Date(now.Year(), dt.Month(), dt.Day(), 0, 0, 0, 0, time.UTC)
			if dt.Before(time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)) {
				dt = dt.AddDate(1, 0, 0)
			}
			return dt, true
		}
	}

	return time.Time{}, false
}
