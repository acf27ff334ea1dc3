package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/calendar"
	"github.com/Bakaface/gpro-qualy-reminder-bot/pkg/logx"
)

// fetchWeatherOnce is the automatic trigger, invoked exactly once per
// race when its poller settles. One failure earns one retry after a
// fixed delay; a second failure marks the race's weather unavailable
// and the automatic path never tries again.
func (e *Engine) fetchWeatherOnce(ctx context.Context, r *calendar.Race) {
	if r.Weather != nil {
		return
	}

	fc, err := e.fetchWithTimeout(ctx, r.ID)
	if err != nil {
		e.log.Warn("weather fetch failed, retrying",
			logx.Int("race", r.ID), logx.Duration("delay", e.cfg.WeatherRetryDelay), logx.Err(err))
		t := time.NewTimer(e.cfg.WeatherRetryDelay)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
		fc, err = e.fetchWithTimeout(ctx, r.ID)
	}
	if err != nil {
		e.log.Error("weather fetch failed after retry", logx.Int("race", r.ID), logx.Err(err))
		e.publish("engine.weather_unavailable", map[string]any{"race_id": r.ID})
		if perr := e.cal.PersistWeather(r.ID, nil); perr != nil {
			e.log.Warn("marking weather unavailable failed", logx.Int("race", r.ID), logx.Err(perr))
		}
		return
	}

	if perr := e.cal.PersistWeather(r.ID, fc); perr != nil {
		e.log.Warn("weather persist failed", logx.Int("race", r.ID), logx.Err(perr))
	}
	e.log.Info("weather stored", logx.Int("race", r.ID))
}

// ForceRefetchWeather bypasses the one-shot automatic trigger: a single
// attempt, independent of the race's detection state. Used by the
// admin refetch command.
func (e *Engine) ForceRefetchWeather(ctx context.Context, raceID int) error {
	if _, ok := e.cal.RaceByID(raceID); !ok {
		return fmt.Errorf("race %d not in current season", raceID)
	}
	fc, err := e.fetchWithTimeout(ctx, raceID)
	if err != nil {
		return fmt.Errorf("refetch weather for race %d: %w", raceID, err)
	}
	if err := e.cal.PersistWeather(raceID, fc); err != nil {
		return fmt.Errorf("persist weather for race %d: %w", raceID, err)
	}
	e.log.Info("weather refetched", logx.Int("race", raceID))
	return nil
}

func (e *Engine) fetchWithTimeout(ctx context.Context, raceID int) (*calendar.Forecast, error) {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	return e.weather.FetchWeather(cctx, raceID)
}
