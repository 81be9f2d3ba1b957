package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// ClientConfig holds settings for realtime subscribers.
type ClientConfig struct {
	URL         string
	Token       string //nolint:gosec // G117: bearer token config
	Heartbeat   time.Duration
	BackoffBase time.Duration
	BackoffMax  time.Duration
	MaxAttempts int
	JoinTimeout time.Duration
	BatchSize   int
	BatchQuiet  time.Duration
	StateKey    string
	Redis       RedisConfig
	Log         LogConfig
}

// LoadClient reads subscriber configuration from environment variables.
func LoadClient() (*ClientConfig, error) {
	heartbeat, err := getEnvDuration("FANOUT_CLIENT_HEARTBEAT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.LoadClient: %w", err)
	}

	backoffBase, err := getEnvDuration("FANOUT_CLIENT_BACKOFF_BASE", time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.LoadClient: %w", err)
	}

	backoffMax, err := getEnvDuration("FANOUT_CLIENT_BACKOFF_MAX", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.LoadClient: %w", err)
	}

	maxAttempts, err := getEnvInt("FANOUT_CLIENT_MAX_ATTEMPTS", 10)
	if err != nil {
		return nil, fmt.Errorf("config.LoadClient: %w", err)
	}

	joinTimeout, err := getEnvDuration("FANOUT_CLIENT_JOIN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.LoadClient: %w", err)
	}

	batchSize, err := getEnvInt("FANOUT_CLIENT_BATCH_SIZE", 100)
	if err != nil {
		return nil, fmt.Errorf("config.LoadClient: %w", err)
	}

	batchQuiet, err := getEnvDuration("FANOUT_CLIENT_BATCH_QUIET", 50*time.Millisecond)
	if err != nil {
		return nil, fmt.Errorf("config.LoadClient: %w", err)
	}

	redisDB, err := getEnvInt("FANOUT_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.LoadClient: %w", err)
	}

	cfg := &ClientConfig{
		URL:         getEnv("FANOUT_CLIENT_URL", "ws://localhost:8080/realtime"),
		Token:       getEnv("FANOUT_CLIENT_TOKEN", ""),
		Heartbeat:   heartbeat,
		BackoffBase: backoffBase,
		BackoffMax:  backoffMax,
		MaxAttempts: maxAttempts,
		JoinTimeout: joinTimeout,
		BatchSize:   batchSize,
		BatchQuiet:  batchQuiet,
		StateKey:    getEnv("FANOUT_CLIENT_STATE_KEY", ""),
		Redis: RedisConfig{
			Addr:     getEnv("FANOUT_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("FANOUT_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Log: LogConfig{
			Level:  getEnv("FANOUT_LOG_LEVEL", "info"),
			Format: getEnv("FANOUT_LOG_FORMAT", "text"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config.LoadClient: %w", err)
	}

	return cfg, nil
}

func (c *ClientConfig) validate() error {
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("FANOUT_CLIENT_URL: %w", err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return fmt.Errorf("FANOUT_CLIENT_URL must use ws, wss, http or https, got %q", u.Scheme)
	}

	if c.Heartbeat <= 0 {
		return fmt.Errorf("FANOUT_CLIENT_HEARTBEAT must be positive, got %s", c.Heartbeat)
	}
	if c.BackoffBase <= 0 {
		return fmt.Errorf("FANOUT_CLIENT_BACKOFF_BASE must be positive, got %s", c.BackoffBase)
	}
	if c.BackoffMax < c.BackoffBase {
		return errors.New("FANOUT_CLIENT_BACKOFF_MAX must be >= FANOUT_CLIENT_BACKOFF_BASE")
	}
	if c.MaxAttempts < 0 {
		return fmt.Errorf("FANOUT_CLIENT_MAX_ATTEMPTS must be >= 0, got %d", c.MaxAttempts)
	}
	if c.JoinTimeout <= 0 {
		return fmt.Errorf("FANOUT_CLIENT_JOIN_TIMEOUT must be positive, got %s", c.JoinTimeout)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("FANOUT_CLIENT_BATCH_SIZE must be >= 1, got %d", c.BatchSize)
	}
	if c.BatchQuiet <= 0 {
		return fmt.Errorf("FANOUT_CLIENT_BATCH_QUIET must be positive, got %s", c.BatchQuiet)
	}

	return nil
}
