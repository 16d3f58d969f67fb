package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_CreatesDefaultOnFirstRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "conf", "config.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)

	want := DefaultConfig()
	want.Normalize()
	assert.Equal(t, want, cfg)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	// A second load reads the file it just wrote.
	again, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, again)
}

func TestLoad_PartialConfigGetsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
timezone: Europe/Berlin
week_start: monday
source:
  type: ics
  feeds:
    - url: https://example.com/a.ics
      id: a
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "Europe/Berlin", cfg.Timezone)
	assert.Equal(t, time.Monday, cfg.StartOfWeek())
	assert.Equal(t, "127.0.0.1:8080", cfg.Listen)
	assert.Equal(t, "*/15 * * * *", cfg.Refresh)
	assert.Equal(t, 4, cfg.MaxRowsPerDay)
	assert.Equal(t, 1200, cfg.Image.Width)
	assert.Equal(t, "primary", cfg.Source.CalendarID)
	require.Len(t, cfg.Source.Feeds, 1)
}

func TestLoad_BadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("listen: [unclosed"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
}

func TestNormalize_UnknownValuesFallBack(t *testing.T) {
	cfg := &Config{
		WeekStart:   "someday",
		TitleFormat: "roman",
	}
	cfg.Normalize()
	assert.Equal(t, "sunday", cfg.WeekStart)
	assert.Equal(t, "english", cfg.TitleFormat)
}

func TestCycleTimeoutDuration(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 2*time.Minute, cfg.CycleTimeoutDuration())

	cfg.CycleTimeout = "nonsense"
	assert.Equal(t, time.Duration(0), cfg.CycleTimeoutDuration())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "default with a feed is valid",
			mutate: func(c *Config) { c.Source.Feeds = []FeedConfig{{URL: "https://x/cal.ics", ID: "x"}} },
		},
		{
			name:    "ics without feeds",
			mutate:  func(c *Config) {},
			wantErr: "no feeds",
		},
		{
			name: "feed without url",
			mutate: func(c *Config) {
				c.Source.Feeds = []FeedConfig{{ID: "x"}}
			},
			wantErr: "no url",
		},
		{
			name: "google without credentials",
			mutate: func(c *Config) {
				c.Source.Type = "google"
			},
			wantErr: "credentials_file",
		},
		{
			name: "google with files is valid",
			mutate: func(c *Config) {
				c.Source.Type = "google"
				c.Source.CredentialsFile = "/etc/calpost/credentials.json"
				c.Source.TokenFile = "/etc/calpost/token.json"
			},
		},
		{
			name:    "unknown source type",
			mutate:  func(c *Config) { c.Source.Type = "caldav" },
			wantErr: "unknown source type",
		},
		{
			name:    "bad timezone",
			mutate:  func(c *Config) { c.Timezone = "Mars/Olympus" },
			wantErr: "unknown timezone",
		},
		{
			name: "bad cycle timeout",
			mutate: func(c *Config) {
				c.Source.Feeds = []FeedConfig{{URL: "https://x/cal.ics"}}
				c.CycleTimeout = "soonish"
			},
			wantErr: "cycle_timeout",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestState_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.yaml")

	st, err := LoadState(path)
	require.NoError(t, err)
	assert.Empty(t, st.Token)

	when := time.Date(2024, time.June, 15, 10, 0, 0, 0, time.UTC)
	require.NoError(t, SaveState(path, &State{Token: "abc", UpdatedAt: when}))

	st, err = LoadState(path)
	require.NoError(t, err)
	assert.Equal(t, "abc", st.Token)
	assert.True(t, st.UpdatedAt.Equal(when))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
