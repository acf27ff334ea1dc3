package config

// Config is the root configuration. Files may be JSON or YAML; YAML is
// coerced to JSON so both share one strict decoder.
//
// All durations are Go duration strings (e.g. "30s", "5m").
type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	GPRO     GPROConfig     `json:"gpro"`
	Calendar CalendarConfig `json:"calendar"`
	Users    UsersConfig    `json:"users"`
	Engine   EngineConfig   `json:"engine,omitempty"`
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	Storage  *StorageConfig  `json:"storage,omitempty"`
	Pprof    *PprofConfig    `json:"pprof,omitempty"`
}

type TelegramConfig struct {
	Token       string  `json:"token"`
	PollTimeout string  `json:"poll_timeout,omitempty"`
	AdminChatID int64   `json:"admin_chat_id,omitempty"` // target of the Telegram log sink
	AdminIDs    []int64 `json:"admin_ids,omitempty"`
}

type LoggingConfig struct {
	Level    string             `json:"level"`
	Console  bool               `json:"console"`
	File     LogFileConfig      `json:"file,omitempty"`
	Telegram LogTelegramConfig  `json:"telegram,omitempty"`
}

type LogFileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

type LogTelegramConfig struct {
	Enabled    bool   `json:"enabled"`
	MinLevel   string `json:"min_level,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
}

// GPROConfig covers the upstream racing-league API.
type GPROConfig struct {
	Token   string `json:"token"`
	Lang    string `json:"lang,omitempty"`     // language segment of API URLs, default "gb"
	BaseURL string `json:"base_url,omitempty"` // default "https://gpro.net"
	Timeout string `json:"timeout,omitempty"`  // per-call HTTP timeout, default "15s"
}

type CalendarConfig struct {
	Path           string `json:"path"`                      // current season cache file
	NextSeasonPath string `json:"next_season_path,omitempty"`
	RefreshCron    string `json:"refresh_cron,omitempty"` // cron spec for the daily refresh job
}

type UsersConfig struct {
	Path string `json:"path"` // user records file
}

// EngineConfig tunes the notification scheduling loop. Zero values
// fall back to the defaults in engine.Config.
type EngineConfig struct {
	NormalInterval     string `json:"normal_interval,omitempty"`     // default "5m"
	FastInterval       string `json:"fast_interval,omitempty"`       // default "1m"
	ProximityThreshold string `json:"proximity_threshold,omitempty"` // default "30m"
	PollEvery          string `json:"poll_every,omitempty"`          // quali-status throttle, default "10m"
	WeatherRetryDelay  string `json:"weather_retry_delay,omitempty"` // default "5s"
}

// NotifierConfig controls the async delivery pipeline. If the whole
// section is omitted the notifier defaults to enabled.
type NotifierConfig struct {
	Enabled    bool   `json:"enabled"`
	Workers    int    `json:"workers,omitempty"`
	QueueSize  int    `json:"queue_size,omitempty"`
	RatePerSec int    `json:"rate_per_sec,omitempty"`
	RetryMax   int    `json:"retry_max,omitempty"`
	RetryBase  string `json:"retry_base,omitempty"`
}

// StorageConfig controls the optional persistence layer used for the
// ledger snapshot and the send audit trail.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/bot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // sqlite only
}

// PprofConfig controls the optional profiling/liveness listener.
// A token is mandatory for non-loopback binds.
type PprofConfig struct {
	Enabled bool   `json:"enabled"`
	Addr    string `json:"addr,omitempty"`
	Token   string `json:"token,omitempty"`
}
