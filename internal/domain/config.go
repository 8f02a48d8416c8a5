package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Download     DownloadConfig     `mapstructure:"download"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Extractor    ExtractorConfig    `mapstructure:"extractor"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DownloadConfig contains download-related configuration
type DownloadConfig struct {
	OutputDir        string        `mapstructure:"output_dir"`
	LogsDir          string        `mapstructure:"logs_dir"`
	Quality          string        `mapstructure:"quality"`
	MaxWorkers       int           `mapstructure:"max_workers"` // collection workers, 1..16
	ChunkSize        int           `mapstructure:"chunk_size"`  // bytes per read
	MaxRetries       int           `mapstructure:"max_retries"`
	RetryDelay       time.Duration `mapstructure:"retry_delay"`
	ConcurrentLimit  int           `mapstructure:"concurrent_limit"` // jobs processed at once by the server
	AutoStartWorkers bool          `mapstructure:"auto_start_workers"`
}

// QueueConfig contains queue-related configuration
type QueueConfig struct {
	DatabasePath    string        `mapstructure:"database_path"`
	CheckInterval   time.Duration `mapstructure:"check_interval"`
	AutoExitOnEmpty bool          `mapstructure:"auto_exit_on_empty"`
	EmptyWaitTime   time.Duration `mapstructure:"empty_wait_time"`
}

// ExtractorConfig contains settings for the metadata extractor
type ExtractorConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	APIBaseURL        string        `mapstructure:"api_base_url"`
	WatchURL          string        `mapstructure:"watch_url"`
	UserAgent         string        `mapstructure:"user_agent"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// RateLimitConfig controls backoff when the provider rate limits us
type RateLimitConfig struct {
	InitialDelay time.Duration `mapstructure:"initial_delay"`
	MaxRetries   int           `mapstructure:"max_retries"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Sound   bool   `mapstructure:"sound"`
	Method  string `mapstructure:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
}

const (
	// DefaultChunkSize is the read size used when streaming media
	DefaultChunkSize = 1 << 20

	// MaxCollectionWorkers bounds the worker pool of a collection download
	MaxCollectionWorkers = 16
)

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Download: DownloadConfig{
			OutputDir:        "$HOME/Downloads/vidgrab",
			LogsDir:          "$HOME/.vidgrab/logs",
			Quality:          "best",
			MaxWorkers:       4,
			ChunkSize:        DefaultChunkSize,
			MaxRetries:       3,
			RetryDelay:       30 * time.Second,
			ConcurrentLimit:  1,
			AutoStartWorkers: true,
		},
		Queue: QueueConfig{
			DatabasePath:    "$HOME/.vidgrab/queue.db",
			CheckInterval:   10 * time.Second,
			AutoExitOnEmpty: false,
			EmptyWaitTime:   5 * time.Minute,
		},
		Extractor: ExtractorConfig{
			APIBaseURL:        "https://www.googleapis.com/youtube/v3",
			WatchURL:          "https://www.youtube.com/watch",
			UserAgent:         "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36",
			Timeout:           30 * time.Second,
			RequestsPerSecond: 5,
		},
		RateLimit: RateLimitConfig{
			InitialDelay: 5 * time.Second,
			MaxRetries:   5,
		},
		Notification: NotificationConfig{
			Enabled: false,
			Sound:   true,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stdout",
		},
	}
}
