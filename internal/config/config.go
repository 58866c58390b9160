package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	appLog "racecal/internal/log"
)

// FeedConfig describes a single ICS schedule feed.
type FeedConfig struct {
	// URL is the ICS endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for caching and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
	// Series is the fallback series identifier applied to legacy
	// single-series entries that do not declare one in the SUMMARY.
	Series string `yaml:"series" json:"series"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// DatabaseConfig holds PostgreSQL connection settings for the dispatch
// and token stores. URL takes precedence over the individual fields.
type DatabaseConfig struct {
	URL     string `yaml:"url" json:"url"`
	User    string `yaml:"user" json:"user"`
	Pass    string `yaml:"pass" json:"-"`
	Host    string `yaml:"host" json:"host"`
	Port    string `yaml:"port" json:"port"`
	Name    string `yaml:"name" json:"name"`
	SSLMode string `yaml:"sslmode" json:"sslmode"`
}

// DSN returns the full PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Pass, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone used as the default viewer zone when
	// a request does not carry one (e.g. "Europe/Rome").
	Timezone string `yaml:"timezone" json:"timezone"`

	// Locale selects the phrase set used for relative-time labels.
	Locale string `yaml:"locale" json:"locale"`

	// Series is the closed set of recognized championship identifiers.
	Series []string `yaml:"series" json:"series"`

	// Feeds is the list of subscribed ICS schedule feeds.
	Feeds []FeedConfig `yaml:"feeds" json:"feeds"`

	// RefreshCron schedules the web cache refresh (e.g. "*/15 * * * *").
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// DispatchCron schedules the reminder dispatcher run.
	DispatchCron string `yaml:"dispatch" json:"dispatch"`

	// ReminderOffsetsMinutes are the lead times before an event's start
	// at which a reminder fires.
	ReminderOffsetsMinutes []int `yaml:"reminder_offsets_minutes" json:"reminder_offsets_minutes"`

	// DispatchWindowMinutes bounds how late a dispatcher cycle may run
	// and still fire a given reminder.
	DispatchWindowMinutes int `yaml:"dispatch_window_minutes" json:"dispatch_window_minutes"`

	// PushBatchSize bounds the recipient count per push send call.
	PushBatchSize int `yaml:"push_batch_size" json:"push_batch_size"`

	// HorizonHours is the default forward window for the schedule API.
	HorizonHours int `yaml:"horizon_hours" json:"horizon_hours"`

	// Database configures the dispatch-record and token stores.
	Database DatabaseConfig `yaml:"database" json:"database"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`

	// Debug lowers the log level and enables query logging.
	Debug bool `yaml:"debug" json:"debug"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:                 "127.0.0.1:8080",
		Timezone:               "UTC",
		Locale:                 "en",
		Series:                 []string{"F1", "F2", "F3", "MotoGP"},
		Feeds:                  []FeedConfig{},
		RefreshCron:            "*/15 * * * *",
		DispatchCron:           "*/5 * * * *",
		ReminderOffsetsMinutes: []int{120, 5},
		DispatchWindowMinutes:  5,
		PushBatchSize:          500,
		HorizonHours:           24 * 30,
		Database: DatabaseConfig{
			User:    "racecal",
			Host:    "localhost",
			Port:    "5432",
			Name:    "racecal",
			SSLMode: "disable",
		},
	}
}

// Normalize fills in missing/zero values with sensible defaults so that
// partially-filled configs still behave correctly.
func (c *Config) Normalize() {
	def := DefaultConfig()

	if c.Listen == "" {
		c.Listen = def.Listen
	}
	if c.Timezone == "" {
		c.Timezone = def.Timezone
	}
	if c.Locale == "" {
		c.Locale = def.Locale
	}
	if len(c.Series) == 0 {
		c.Series = def.Series
	}
	if c.Feeds == nil {
		c.Feeds = []FeedConfig{}
	}
	if c.RefreshCron == "" {
		c.RefreshCron = def.RefreshCron
	}
	if c.DispatchCron == "" {
		c.DispatchCron = def.DispatchCron
	}
	if len(c.ReminderOffsetsMinutes) == 0 {
		c.ReminderOffsetsMinutes = def.ReminderOffsetsMinutes
	}
	if c.DispatchWindowMinutes <= 0 {
		c.DispatchWindowMinutes = def.DispatchWindowMinutes
	}
	if c.PushBatchSize <= 0 {
		c.PushBatchSize = def.PushBatchSize
	}
	if c.HorizonHours <= 0 {
		c.HorizonHours = def.HorizonHours
	}
	if c.Database.User == "" {
		c.Database.User = def.Database.User
	}
	if c.Database.Host == "" {
		c.Database.Host = def.Database.Host
	}
	if c.Database.Port == "" {
		c.Database.Port = def.Database.Port
	}
	if c.Database.Name == "" {
		c.Database.Name = def.Database.Name
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = def.Database.SSLMode
	}
}

// FallbackSeries returns the configured fallback series for legacy feed
// entries: the feed's own series if set, else the first configured series.
func (c *Config) FallbackSeries(feed FeedConfig) string {
	if feed.Series != "" {
		return feed.Series
	}
	if len(c.Series) > 0 {
		return c.Series[0]
	}
	return ""
}

// Load loads configuration from the given YAML path and then applies
// environment overrides.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
//
// Environment variables (optionally from a .env file) always win over
// file values for the secrets they cover.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			cfg.applyEnv(newViper())
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.Normalize()
	cfg.applyEnv(newViper())

	return &cfg, nil
}

// applyEnv overlays environment variables onto the file-based config.
// Only deployment secrets and addresses are overridable this way; feed
// and series shape stays in the YAML file.
func (c *Config) applyEnv(v *viper.Viper) {
	if s := v.GetString("DATABASE_URL"); s != "" {
		c.Database.URL = s
	}
	if s := v.GetString("DB_PASS"); s != "" {
		c.Database.Pass = s
	}
	if s := v.GetString("SCHEDULE_URL"); s != "" {
		// A single env-provided feed replaces the configured list; this
		// mirrors how the dispatcher is deployed standalone.
		c.Feeds = []FeedConfig{{URL: s, ID: "env"}}
	}
	if s := v.GetString("LISTEN"); s != "" {
		c.Listen = s
	}
	if v.IsSet("DEBUG") {
		c.Debug = v.GetBool("DEBUG")
	}
}

func newViper() *viper.Viper {
	// Silently load .env; OK if the file doesn't exist (production uses
	// real env vars).
	if err := godotenv.Load(); err != nil {
		appLog.Debug("no .env file found, using environment variables only")
	}

	v := viper.New()
	v.AutomaticEnv()
	return v
}

// Save writes the given configuration to the specified path.
//
// Implementation details:
//   - Ensures parent directory exists (0700).
//   - Marshals cfg to YAML.
//   - Writes atomically via a temp file + rename.
//   - Ensures final file permissions are 0600.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}

	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".racecal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	// Ensure we clean up temp file on error.
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}

	if err := os.Rename(tmpName, path); err != nil {
		return err
	}

	return nil
}

// Save is a convenience method on Config that delegates to the
// package-level Save function.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
