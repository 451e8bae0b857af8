package config

import (
	"fmt"
	"time"

	"github.com/veranemoloko/audio-downloader/internal/cookies"
)

// Config holds all application configuration settings.
type Config struct {
	Environment string `envconfig:"APP_ENV" default:"development"`

	HTTPPort        int           `envconfig:"PORT" default:"3000"`
	HTTPTimeout     time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`

	DownloadDir string `envconfig:"DOWNLOAD_DIR" default:"./downloads"`
	ToolBinary  string `envconfig:"YTDLP_BINARY" default:"yt-dlp"`
	AudioFormat string `envconfig:"AUDIO_FORMAT" default:"mp3"`

	RetentionMaxAge time.Duration `envconfig:"RETENTION_MAX_AGE" default:"24h"`
	SweepInterval   time.Duration `envconfig:"SWEEP_INTERVAL" default:"1h"`

	MaxConcurrentJobs  int     `envconfig:"MAX_CONCURRENT_JOBS" default:"0"`
	DownloadRateLimit  float64 `envconfig:"DOWNLOAD_RATE_LIMIT" default:"0"`
	DownloadRateBurst  int     `envconfig:"DOWNLOAD_RATE_BURST" default:"5"`
	CancelOnDisconnect bool    `envconfig:"CANCEL_ON_DISCONNECT" default:"false"`

	SSEHeartbeat   time.Duration `envconfig:"SSE_HEARTBEAT" default:"15s"`
	ObserverBuffer int           `envconfig:"OBSERVER_BUFFER" default:"64"`

	CookiePolicy  string        `envconfig:"COOKIE_POLICY" default:"never"`
	CookieHosts   []string      `envconfig:"COOKIE_HOSTS"`
	CookieFile    string        `envconfig:"COOKIE_FILE"`
	CookieCommand string        `envconfig:"COOKIE_COMMAND"`
	CookieTimeout time.Duration `envconfig:"COOKIE_TIMEOUT" default:"2m"`

	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
}

// Validate checks the configuration for invalid or missing values.
// Returns an error describing the first invalid setting found.
func (c *Config) Validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	if c.DownloadDir == "" {
		return fmt.Errorf("download directory cannot be empty")
	}
	if c.ToolBinary == "" {
		return fmt.Errorf("extraction tool binary cannot be empty")
	}
	if c.AudioFormat == "" {
		return fmt.Errorf("audio format cannot be empty")
	}

	if c.RetentionMaxAge <= 0 {
		return fmt.Errorf("retention max age must be positive: %s", c.RetentionMaxAge)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive: %s", c.SweepInterval)
	}

	if c.MaxConcurrentJobs < 0 {
		return fmt.Errorf("max concurrent jobs cannot be negative: %d", c.MaxConcurrentJobs)
	}
	if c.DownloadRateLimit < 0 {
		return fmt.Errorf("download rate limit cannot be negative: %v", c.DownloadRateLimit)
	}
	if c.DownloadRateLimit > 0 && c.DownloadRateBurst <= 0 {
		return fmt.Errorf("download rate burst must be positive: %d", c.DownloadRateBurst)
	}

	if c.SSEHeartbeat < 0 {
		return fmt.Errorf("SSE heartbeat cannot be negative: %s", c.SSEHeartbeat)
	}
	if c.ObserverBuffer <= 0 {
		return fmt.Errorf("observer buffer must be positive: %d", c.ObserverBuffer)
	}

	policy := cookies.Policy(c.CookiePolicy)
	if !policy.Valid() {
		return fmt.Errorf("invalid cookie policy: %q", c.CookiePolicy)
	}
	if policy != cookies.PolicyNever && c.CookieFile == "" {
		return fmt.Errorf("cookie file must be set when cookie policy is %q", c.CookiePolicy)
	}
	if policy == cookies.PolicyHosts && len(c.CookieHosts) == 0 {
		return fmt.Errorf("cookie hosts must be set when cookie policy is %q", c.CookiePolicy)
	}

	return nil
}
