package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FeedConfig describes a single ICS subscription feed.
type FeedConfig struct {
	// URL is the ICS subscription endpoint.
	URL string `yaml:"url" json:"url"`
	// ID is an internal identifier used for caching and logging.
	ID string `yaml:"id" json:"id"`
	// Name is a human-friendly label.
	Name string `yaml:"name" json:"name"`
}

// SourceConfig selects and configures the event backend.
type SourceConfig struct {
	// Type is "google" or "ics".
	Type string `yaml:"type" json:"type"`

	// CalendarID is the Google calendar to read ("primary" if empty).
	CalendarID string `yaml:"calendar_id" json:"calendar_id"`
	// CredentialsFile is the OAuth client secret JSON from the Google
	// developer console.
	CredentialsFile string `yaml:"credentials_file" json:"credentials_file"`
	// TokenFile stores the OAuth token obtained via -authorize.
	TokenFile string `yaml:"token_file" json:"token_file"`

	// Feeds is the list of ICS subscriptions (type "ics").
	Feeds []FeedConfig `yaml:"feeds" json:"feeds"`
}

// DiscordConfig configures the webhook publisher.
type DiscordConfig struct {
	WebhookURL string `yaml:"webhook_url" json:"webhook_url"`
}

// ImageConfig controls the rendered raster.
type ImageConfig struct {
	Width  int `yaml:"width" json:"width"`
	Height int `yaml:"height" json:"height"`

	// Background and Text are hex colors like "#FDFEF0".
	Background string `yaml:"background" json:"background"`
	Text       string `yaml:"text" json:"text"`
	Header     string `yaml:"header" json:"header"`
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

	// Timezone is the IANA timezone events are displayed in (e.g. "Asia/Seoul").
	Timezone string `yaml:"timezone" json:"timezone"`

	// WeekStart is the weekday the grid's columns start on, lowercase
	// English ("sunday", "monday", ...).
	WeekStart string `yaml:"week_start" json:"week_start"`

	// Refresh is a cron-style schedule string (e.g. "*/15 * * * *")
	// for periodic change checks.
	Refresh string `yaml:"refresh" json:"refresh"`

	// TitleFormat selects the month heading style: "english" or "korean".
	TitleFormat string `yaml:"title_format" json:"title_format"`

	// Script names the writing system event titles are expected in,
	// used to pick a font that can actually draw them.
	Script string `yaml:"script" json:"script"`

	// Fonts is a list of TTF/OTF paths tried in order.
	Fonts []string `yaml:"fonts" json:"fonts"`

	Image ImageConfig `yaml:"image" json:"image"`

	// MaxRowsPerDay caps the event rows drawn in one day cell before
	// the remainder collapses into a "+N more" indicator.
	MaxRowsPerDay int `yaml:"max_rows_per_day" json:"max_rows_per_day"`

	Source  SourceConfig  `yaml:"source" json:"source"`
	Discord DiscordConfig `yaml:"discord" json:"discord"`

	// CacheDir holds the ICS conditional-GET cache.
	CacheDir string `yaml:"cache_dir" json:"cache_dir"`
	// StateFile persists the freshness token across restarts.
	StateFile string `yaml:"state_file" json:"state_file"`
	// PreviewPath is where the latest render is written for /preview.png.
	PreviewPath string `yaml:"preview_path" json:"preview_path"`

	// CycleTimeout bounds one fetch-render-publish cycle, as a Go
	// duration string (e.g. "2m").
	CycleTimeout string `yaml:"cycle_timeout" json:"cycle_timeout"`

	// BasicAuth, if non-nil, enables HTTP Basic Authentication on all
	// endpoints except /health.
	BasicAuth *BasicAuthConfig `yaml:"basic_auth,omitempty" json:"basic_auth,omitempty"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8080",
		Timezone:    "Asia/Seoul",
		WeekStart:   "sunday",
		Refresh:     "*/15 * * * *",
		TitleFormat: "english",
		Script:      "latin",
		Fonts:       []string{},
		Image: ImageConfig{
			Width:      1200,
			Height:     1400,
			Background: "#FDFEF0",
			Text:       "#4A4A4A",
			Header:     "#4A4A4A",
		},
		MaxRowsPerDay: 4,
		Source: SourceConfig{
			Type:  "ics",
			Feeds: []FeedConfig{},
		},
		CacheDir:     "/var/lib/calpost/cache",
		StateFile:    "/var/lib/calpost/state.yaml",
		PreviewPath:  "/var/lib/calpost/preview.png",
		CycleTimeout: "2m",
	}
}

var weekdays = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// StartOfWeek returns the configured first column of the grid.
func (c *Config) StartOfWeek() time.Weekday {
	return weekdays[strings.ToLower(c.WeekStart)]
}

// CycleTimeoutDuration parses CycleTimeout, zero if unparseable.
func (c *Config) CycleTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.CycleTimeout)
	if err != nil || d < 0 {
		return 0
	}
	return d
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
	if _, ok := weekdays[strings.ToLower(c.WeekStart)]; !ok {
		c.WeekStart = def.WeekStart
	}
	if c.Refresh == "" {
		c.Refresh = def.Refresh
	}
	switch c.TitleFormat {
	case "english", "korean":
	default:
		c.TitleFormat = def.TitleFormat
	}
	if c.Script == "" {
		c.Script = def.Script
	}
	if c.Fonts == nil {
		c.Fonts = []string{}
	}
	if c.Image.Width <= 0 {
		c.Image.Width = def.Image.Width
	}
	if c.Image.Height <= 0 {
		c.Image.Height = def.Image.Height
	}
	if c.Image.Background == "" {
		c.Image.Background = def.Image.Background
	}
	if c.Image.Text == "" {
		c.Image.Text = def.Image.Text
	}
	if c.Image.Header == "" {
		c.Image.Header = def.Image.Header
	}
	if c.MaxRowsPerDay <= 0 {
		c.MaxRowsPerDay = def.MaxRowsPerDay
	}
	if c.Source.Type == "" {
		c.Source.Type = def.Source.Type
	}
	if c.Source.CalendarID == "" {
		c.Source.CalendarID = "primary"
	}
	if c.Source.Feeds == nil {
		c.Source.Feeds = []FeedConfig{}
	}
	if c.CacheDir == "" {
		c.CacheDir = def.CacheDir
	}
	if c.StateFile == "" {
		c.StateFile = def.StateFile
	}
	if c.PreviewPath == "" {
		c.PreviewPath = def.PreviewPath
	}
	if c.CycleTimeout == "" {
		c.CycleTimeout = def.CycleTimeout
	}
}

// Validate reports configuration mistakes Normalize cannot paper over.
func (c *Config) Validate() error {
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("unknown timezone %q: %w", c.Timezone, err)
	}
	switch c.Source.Type {
	case "ics":
		if len(c.Source.Feeds) == 0 {
			return errors.New("source type is ics but no feeds are configured")
		}
		for i, f := range c.Source.Feeds {
			if f.URL == "" {
				return fmt.Errorf("feed %d has no url", i)
			}
		}
	case "google":
		if c.Source.CredentialsFile == "" {
			return errors.New("source type is google but credentials_file is empty")
		}
		if c.Source.TokenFile == "" {
			return errors.New("source type is google but token_file is empty")
		}
	default:
		return fmt.Errorf("unknown source type %q", c.Source.Type)
	}
	if c.CycleTimeout != "" {
		if _, err := time.ParseDuration(c.CycleTimeout); err != nil {
			return fmt.Errorf("bad cycle_timeout %q: %w", c.CycleTimeout, err)
		}
	}
	return nil
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
			// First run: create default config file.
			cfg := DefaultConfig()
			if err := Save(path, cfg); err != nil {
				// Even if save fails, return cfg with error so caller can decide.
				return cfg, err
			}
			return cfg, nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
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

	// Atomic write: write to temp file in same directory then rename.
	tmp, err := os.CreateTemp(dir, ".calpost-config-*.tmp")
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
