// Package gpro talks to the upstream racing-league API: calendar feed,
// qualification status polling, and weather retrieval. It also builds
// the personalized deep links notifications carry.
package gpro

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/calendar"
	"github.com/Bakaface/gpro-qualy-reminder-bot/pkg/logx"
)

// ErrUnavailable marks transient upstream failures (timeouts, 5xx).
// Callers retry per their own policy.
var ErrUnavailable = errors.New("gpro: upstream unavailable")

const userAgent = "GPRO-QualiBot/1.0"

type Config struct {
	BaseURL string // default "https://gpro.net"
	Lang    string // URL language segment, default "gb"
	Token   string
	Timeout time.Duration // per-call bound, default 15s
}

type Client struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func NewClient(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("gpro: api token is empty")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://gpro.net"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Lang == "" {
		cfg.Lang = "gb"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}, nil
}

// CalendarFeed is the raw calendar response: event list plus the flag
// telling us whether next season's schedule is published yet.
type CalendarFeed struct {
	Events              []calendar.RawEvent `json:"events"`
	NextSeasonPublished bool                `json:"nextSeasonPublished"`
	NextSeasonEvents    []calendar.RawEvent `json:"nextSeasonEvents"`
}

func (c *Client) FetchCalendar(ctx context.Context) (*CalendarFeed, error) {
	var feed CalendarFeed
	if err := c.getJSON(ctx, c.apiURL("Calendar"), &feed); err != nil {
		return nil, err
	}
	return &feed, nil
}

// IsOpen reports whether the given race's qualification is open.
// Idempotent; the engine throttles calls to once per 10 minutes per race.
func (c *Client) IsOpen(ctx context.Context, raceID int) (bool, error) {
	var resp struct {
		Open bool `json:"open"`
	}
	url := c.apiURL("Qualify/Status") + "?race=" + strconv.Itoa(raceID)
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return false, err
	}
	return resp.Open, nil
}

// FetchWeather retrieves the forecast for a race. Transient failures
// return ErrUnavailable; the weather controller retries once after 5s.
func (c *Client) FetchWeather(ctx context.Context, raceID int) (*calendar.Forecast, error) {
	url := c.apiURL("Practice") + "?race=" + strconv.Itoa(raceID)

	// The endpoint flattens quarters into prefixed keys (raceQ1TempLow,
	// raceQ2RainPHigh, ...), so decode into a generic map first.
	var raw map[string]json.RawMessage
	if err := c.getJSON(ctx, url, &raw); err != nil {
		return nil, err
	}

	fc := &calendar.Forecast{
		Q1: calendar.SessionForecast{
			Weather:  jsonString(raw, "q1Weather"),
			Temp:     jsonInt(raw, "q1Temp"),
			Humidity: jsonInt(raw, "q1Hum"),
		},
		Q2: calendar.SessionForecast{
			Weather:  jsonString(raw, "q2Weather"),
			Temp:     jsonInt(raw, "q2Temp"),
			Humidity: jsonInt(raw, "q2Hum"),
		},
	}
	for i := 0; i < 4; i++ {
		prefix := "raceQ" + strconv.Itoa(i+1)
		fc.Quarters[i] = calendar.QuarterForecast{
			TempLow:  jsonInt(raw, prefix+"TempLow"),
			TempHigh: jsonInt(raw, prefix+"TempHigh"),
			HumLow:   jsonInt(raw, prefix+"HumLow"),
			HumHigh:  jsonInt(raw, prefix+"HumHigh"),
			RainLow:  jsonInt(raw, prefix+"RainPLow"),
			RainHigh: jsonInt(raw, prefix+"RainPHigh"),
		}
	}
	return fc, nil
}

func (c *Client) apiURL(endpoint string) string {
	return c.cfg.BaseURL + "/" + c.cfg.Lang + "/backend/api/v2/" + endpoint
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		// Timeouts and connection errors are transient by definition.
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gpro: %s: status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("gpro: decode %s: %w", url, err)
	}
	return nil
}

func jsonString(m map[string]json.RawMessage, key string) string {
	var s string
	if raw, ok := m[key]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

func jsonInt(m map[string]json.RawMessage, key string) int {
	var n int
	if raw, ok := m[key]; ok {
		_ = json.Unmarshal(raw, &n)
	}
	return n
}
