package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/config"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/engine"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/gpro"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/notifier"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/notifier/broadcast"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/observability/pprof"
	"github.com/Bakaface/gpro-qualy-reminder-bot/internal/storage"
	"github.com/Bakaface/gpro-qualy-reminder-bot/pkg/logx"
)

// Mapping functions translate the string-typed file config into each
// component's typed config. They double as validation: every duration
// string is parsed here, so a bad hot-reload is rejected before commit.

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapGPROConfig(cfg *config.Config) (gpro.Config, error) {
	timeout, err := config.ParseDurationField("gpro.timeout", cfg.GPRO.Timeout)
	if err != nil {
		return gpro.Config{}, err
	}
	return gpro.Config{
		BaseURL: cfg.GPRO.BaseURL,
		Lang:    cfg.GPRO.Lang,
		Token:   cfg.GPRO.Token,
		Timeout: timeout,
	}, nil
}

func mapEngineConfig(cfg *config.Config) (engine.Config, error) {
	var (
		ec  engine.Config
		err error
	)
	if ec.NormalInterval, err = config.ParseDurationField("engine.normal_interval", cfg.Engine.NormalInterval); err != nil {
		return engine.Config{}, err
	}
	if ec.FastInterval, err = config.ParseDurationField("engine.fast_interval", cfg.Engine.FastInterval); err != nil {
		return engine.Config{}, err
	}
	if ec.ProximityThreshold, err = config.ParseDurationField("engine.proximity_threshold", cfg.Engine.ProximityThreshold); err != nil {
		return engine.Config{}, err
	}
	if ec.PollEvery, err = config.ParseDurationField("engine.poll_every", cfg.Engine.PollEvery); err != nil {
		return engine.Config{}, err
	}
	if ec.WeatherRetryDelay, err = config.ParseDurationField("engine.weather_retry_delay", cfg.Engine.WeatherRetryDelay); err != nil {
		return engine.Config{}, err
	}
	return ec, nil
}

// mapNotifierConfig defaults to an enabled pipeline when the section is
// omitted entirely; an explicit section controls everything.
func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	if cfg.Notifier == nil {
		return notifier.Config{Enabled: true}, nil
	}
	nc := cfg.Notifier
	if nc.Workers < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.workers must be >= 0")
	}
	if nc.QueueSize < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.queue_size must be >= 0")
	}
	if nc.RetryMax < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.retry_max must be >= 0")
	}
	retryBase, err := config.ParseDurationField("notifier.retry_base", nc.RetryBase)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:    nc.Enabled,
		Workers:    nc.Workers,
		QueueSize:  nc.QueueSize,
		RatePerSec: nc.RatePerSec,
		RetryMax:   nc.RetryMax,
		RetryBase:  retryBase,
	}, nil
}

func mapBroadcastConfig(cfg *config.Config) broadcast.Config {
	bc := broadcast.Config{Enabled: true}
	if cfg.Notifier != nil {
		bc.Enabled = cfg.Notifier.Enabled
		bc.Workers = cfg.Notifier.Workers
		bc.RatePerSec = cfg.Notifier.RatePerSec
		bc.RetryMax = cfg.Notifier.RetryMax
	}
	return bc
}

func mapPprofConfig(cfg *config.Config) pprof.Config {
	if cfg.Pprof == nil {
		return pprof.Config{}
	}
	return pprof.Config{
		Enabled: cfg.Pprof.Enabled,
		Addr:    cfg.Pprof.Addr,
		Token:   cfg.Pprof.Token,
	}
}

func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	path := strings.TrimSpace(cfg.Storage.Path)

	switch driver {
	case "file":
		return storage.Config{Driver: "file", Path: path}, true, nil
	case "sqlite", "sqlite3":
		if path == "" {
			return storage.Config{}, false, fmt.Errorf("storage.path is required when storage.driver=sqlite")
		}
		busy, err := config.ParseDurationOrDefault("storage.busy_timeout", cfg.Storage.BusyTimeout, time.Second)
		if err != nil {
			return storage.Config{}, false, err
		}
		return storage.Config{Driver: "sqlite", Path: path, BusyTimeout: busy}, true, nil
	default:
		return storage.Config{}, false, fmt.Errorf("unknown storage.driver: %s", cfg.Storage.Driver)
	}
}
