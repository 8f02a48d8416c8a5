package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/vidgrab/internal/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadConfig_FromFile(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
download:
  output_dir: /tmp/vidgrab-out
  quality: 720p:mp4
  max_workers: 8
  chunk_size: 65536
queue:
  database_path: /tmp/vidgrab.db
extractor:
  api_key: secret
rate_limit:
  initial_delay: 2s
  max_retries: 3
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, config.Server.Port)
	assert.Equal(t, "/tmp/vidgrab-out", config.Download.OutputDir)
	assert.Equal(t, "720p:mp4", config.Download.Quality)
	assert.Equal(t, 8, config.Download.MaxWorkers)
	assert.Equal(t, 65536, config.Download.ChunkSize)
	assert.Equal(t, "secret", config.Extractor.APIKey)
	assert.Equal(t, 2*time.Second, config.RateLimit.InitialDelay)
	assert.Equal(t, 3, config.RateLimit.MaxRetries)

	// untouched sections keep their defaults
	assert.Equal(t, "https://www.googleapis.com/youtube/v3", config.Extractor.APIBaseURL)
	assert.Equal(t, 1, config.Download.ConcurrentLimit)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeConfig(t, "download:\n  output_dir: /tmp/out\n")
	t.Setenv("VIDGRAB_DOWNLOAD_MAX_WORKERS", "2")
	t.Setenv("VIDGRAB_EXTRACTOR_API_KEY", "from-env")

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 2, config.Download.MaxWorkers)
	assert.Equal(t, "from-env", config.Extractor.APIKey)
}

func TestLoadConfig_ExpandsHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := writeConfig(t, "download:\n  output_dir: ~/media\n  logs_dir: $HOME/logs\n")

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "media"), config.Download.OutputDir)
	assert.Equal(t, filepath.Join(home, "logs"), config.Download.LogsDir)
	assert.Equal(t, filepath.Join(home, ".vidgrab", "queue.db"), config.Queue.DatabasePath)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"port", "server:\n  port: 70000\n"},
		{"workers too many", "download:\n  max_workers: 17\n"},
		{"workers zero", "download:\n  max_workers: 0\n"},
		{"quality", "download:\n  quality: ultra\n"},
		{"concurrency", "download:\n  concurrent_limit: 0\n"},
		{"chunk size", "download:\n  chunk_size: 0\n"},
		{"retries", "download:\n  max_retries: -1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}

func TestLoadConfig_MissingExplicitFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestSaveConfig_RoundTrip(t *testing.T) {
	config := domain.DefaultConfig()
	config.Download.OutputDir = "/srv/media"
	config.Download.MaxWorkers = 6
	config.Extractor.APIKey = "key"
	config.Queue.DatabasePath = "/srv/queue.db"

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, SaveConfig(config, path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/srv/media", loaded.Download.OutputDir)
	assert.Equal(t, 6, loaded.Download.MaxWorkers)
	assert.Equal(t, "key", loaded.Extractor.APIKey)
	assert.Equal(t, config.Download.RetryDelay, loaded.Download.RetryDelay)
}
