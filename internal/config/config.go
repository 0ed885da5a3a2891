package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"recurcal/recur"
)

const (
	defaultListen             = "127.0.0.1:8080"
	defaultTimezone           = "UTC"
	defaultWeekStart          = "sunday"
	defaultRefreshCron        = "0 */6 * * *"
	defaultCount              = 10
	defaultMaxSearchDays      = 36600
	defaultHolidayHorizonDays = 730
	defaultCacheDir           = "./var/ics-cache"
)

// ScheduleConfig is a named recurrence with optional holiday feeds whose
// dates become exceptions.
type ScheduleConfig struct {
	// ID is a stable identifier; Normalize assigns a UUID when empty.
	ID   string `yaml:"id" json:"id"`
	Name string `yaml:"name" json:"name"`

	// Holidays lists ICS feed URLs. Every event date in them is excluded.
	Holidays []string `yaml:"holidays,omitempty" json:"holidays,omitempty"`

	Recurrence recur.Record `yaml:"recurrence" json:"recurrence"`
}

// BasicAuthConfig holds HTTP Basic Auth credentials for the API.
type BasicAuthConfig struct {
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
}

// Config is the top-level application configuration.
type Config struct {
	// Listen is the HTTP listen address for the API.
	Listen string `yaml:"listen" json:"listen"`

	// Timezone is the IANA timezone of generated instants (e.g. "Asia/Seoul").
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is the first day of the week for weeksOfMonth and weeksOfYear:
	//   - "sunday" (default)
	//   - "monday" (ISO weeks)
	WeekStart string `yaml:"week_start" json:"week_start"`

	// RefreshCron is the cron schedule on which holiday feeds are refetched
	// in serve mode.
	RefreshCron string `yaml:"refresh" json:"refresh"`

	// DefaultCount is the next/previous count used when a request gives none.
	DefaultCount int `yaml:"default_count" json:"default_count"`

	// MaxSearchDays caps how many days generation may step through. Zero or
	// an absent key uses the default; a negative value leaves generation
	// unbounded.
	MaxSearchDays int `yaml:"max_search_days" json:"max_search_days"`

	// HolidayHorizonDays bounds holiday expansion for open-ended schedules.
	HolidayHorizonDays int `yaml:"holiday_horizon_days" json:"holiday_horizon_days"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	// CacheDir holds fetched holiday feeds for offline fallback.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`

	Schedules []ScheduleConfig `yaml:"schedules" json:"schedules"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all endpoints
	// except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:             defaultListen,
		Timezone:           defaultTimezone,
		WeekStart:          defaultWeekStart,
		RefreshCron:        defaultRefreshCron,
		DefaultCount:       defaultCount,
		MaxSearchDays:      defaultMaxSearchDays,
		HolidayHorizonDays: defaultHolidayHorizonDays,
		LogLevel:           "info",
		CacheDir:           defaultCacheDir,
		Schedules:          []ScheduleConfig{},
		BasicAuth:          nil,
	}
}

// Normalize fills in missing/zero values with defaults so that partially
// filled configs still behave correctly, and gives every schedule an ID.
func (c *Config) Normalize() {
	if c.Listen == "" {
		c.Listen = defaultListen
	}
	if c.Timezone == "" {
		c.Timezone = defaultTimezone
	}
	c.WeekStart = strings.ToLower(strings.TrimSpace(c.WeekStart))
	switch c.WeekStart {
	case "monday", "sunday":
	default:
		c.WeekStart = defaultWeekStart
	}
	if c.RefreshCron == "" {
		c.RefreshCron = defaultRefreshCron
	}
	if c.DefaultCount <= 0 {
		c.DefaultCount = defaultCount
	}
	switch {
	case c.MaxSearchDays == 0:
		c.MaxSearchDays = defaultMaxSearchDays
	case c.MaxSearchDays < 0:
		c.MaxSearchDays = -1
	}
	if c.HolidayHorizonDays <= 0 {
		c.HolidayHorizonDays = defaultHolidayHorizonDays
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.CacheDir == "" {
		c.CacheDir = defaultCacheDir
	}
	if c.Schedules == nil {
		c.Schedules = []ScheduleConfig{}
	}
	for i := range c.Schedules {
		if strings.TrimSpace(c.Schedules[i].ID) == "" {
			c.Schedules[i].ID = uuid.NewString()
		}
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// SearchUnbounded reports whether generation runs without a day cap.
func (c *Config) SearchUnbounded() bool {
	return c.MaxSearchDays < 0
}

// WeekStartDay returns WeekStart as a time.Weekday.
func (c *Config) WeekStartDay() time.Weekday {
	if c.WeekStart == "monday" {
		return time.Monday
	}
	return time.Sunday
}

// FindSchedule looks a schedule up by ID, or by name when no ID matches.
func (c *Config) FindSchedule(key string) (ScheduleConfig, bool) {
	for _, s := range c.Schedules {
		if s.ID == key {
			return s, true
		}
	}
	for _, s := range c.Schedules {
		if strings.EqualFold(s.Name, key) {
			return s, true
		}
	}
	return ScheduleConfig{}, false
}

// AddSchedule validates s, assigns an ID when missing and appends it. It
// returns the schedule ID.
func (c *Config) AddSchedule(s ScheduleConfig) (string, error) {
	if _, err := recur.FromRecord(s.Recurrence); err != nil {
		return "", fmt.Errorf("schedule %q: %w", s.Name, err)
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	for _, existing := range c.Schedules {
		if existing.ID == s.ID {
			return "", fmt.Errorf("schedule id %q already exists", s.ID)
		}
	}
	c.Schedules = append(c.Schedules, s)
	return s.ID, nil
}

// Load loads configuration from the given YAML path.
//
// Behavior:
//   - If the file does not exist:
//   - create parent directory if needed
//   - write a default config with 0600 perms
//   - return the default config
//   - If the file exists:
//   - read YAML and unmarshal into Config
//   - normalize defaults
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.Normalize()

	return &cfg, nil
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

	tmp, err := os.CreateTemp(dir, ".recurcal-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
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
	return os.Rename(tmpName, path)
}

// Save delegates to the package-level Save.
func (c *Config) Save(path string) error {
	return Save(path, c)
}
