// Package calendar holds the season model: races, forecasts, and the
// file-backed store the rest of the bot reads them through.
package calendar

import "time"

// RaceStartOffset is the fixed gap between qualification close and
// race start: quali closes 1.5h before lights out.
const RaceStartOffset = 90 * time.Minute

// Race is one event of a season. The ID is a sequential number
// assigned by date order within the season, not the upstream identity.
// Races are immutable once loaded except Weather, which the engine
// fills in when the qualification opens.
type Race struct {
	ID         int       `json:"-"`
	Track      string    `json:"track"`
	QualiClose time.Time `json:"quali_close"`
	Start      time.Time `json:"date"`
	Group      string    `json:"group"`
	Weather    *Forecast `json:"weather,omitempty"`

	// WeatherUnavailable is set when the automatic fetch (and its one
	// retry) failed; only a manual refetch clears it.
	WeatherUnavailable bool `json:"weather_unavailable,omitempty"`
}

// SessionForecast covers one timed session (practice/Q1 or Q2/start).
type SessionForecast struct {
	Weather  string `json:"weather"`
	Temp     int    `json:"temp"`
	Humidity int    `json:"humidity"`
}

// QuarterForecast is the predicted range for one half-hour race quarter.
type QuarterForecast struct {
	TempLow  int `json:"temp_low"`
	TempHigh int `json:"temp_high"`
	HumLow   int `json:"hum_low"`
	HumHigh  int `json:"hum_high"`
	RainLow  int `json:"rain_low"`
	RainHigh int `json:"rain_high"`
}

// Forecast is the weather record attached to a race once its
// qualification opens: two session forecasts plus four race quarters.
type Forecast struct {
	Q1       SessionForecast    `json:"q1"`
	Q2       SessionForecast    `json:"q2"`
	Quarters [4]QuarterForecast `json:"quarters"`
}
