package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 1, cfg.Version)
	assert.True(t, cfg.Capture.Headless)
	assert.Equal(t, 6, cfg.Capture.Concurrency)
	assert.Equal(t, time.Minute, cfg.Capture.ThreadTimeout())
	assert.Equal(t, time.Hour, cfg.Watch.MinInterval())
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	body := `
version = 1

[database]
path = "/var/lib/printwatch/printwatch.db"

[capture]
concurrency = 2
thread_timeout_secs = 30
headless = false

[watch]
cron = "30 */4 * * *"
timezone = "Europe/Berlin"
min_interval_hours = 2
users = ["https://factorioprints.com/user/abc"]
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/printwatch/printwatch.db", cfg.Database.Path)
	assert.Equal(t, 2, cfg.Capture.Concurrency)
	assert.Equal(t, 30*time.Second, cfg.Capture.ThreadTimeout())
	assert.False(t, cfg.Capture.Headless)
	assert.Equal(t, "30 */4 * * *", cfg.Watch.Cron)
	assert.Equal(t, []string{"https://factorioprints.com/user/abc"}, cfg.Watch.Users)

	// Fields absent from the file keep their defaults.
	assert.Equal(t, 60, cfg.Capture.PageTimeoutSecs)
}

func TestLoad_MissingExplicitPath(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}
