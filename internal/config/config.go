package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Broker kinds.
const (
	BrokerRedis  = "redis"
	BrokerMemory = "memory"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Server     ServerConfig
	Realtime   RealtimeConfig
	Log        LogConfig
	Broker     string
	SelfHosted bool
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// JWTConfig holds JWT authentication settings.
type JWTConfig struct {
	Secret string //nolint:gosec // G117: JWT signing secret config
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// RealtimeConfig holds broadcast and connection settings.
type RealtimeConfig struct {
	EmitTimeout       time.Duration
	ChannelPrefix     string
	WSWriteTimeout    time.Duration
	WSRatePerSec      float64
	WSBurst           int
	IngressRatePerSec float64
	IngressBurst      int
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production,
// sensitive values (JWT secret, DB password) must be set explicitly.
func Load() (*Config, error) {
	dbEnabled, err := getEnvBool("FANOUT_DB_ENABLED", true)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbPort, err := getEnvInt("FANOUT_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("FANOUT_DB_MAX_CONNS", 10)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("FANOUT_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("FANOUT_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	// WebSocket connections are long lived; 0 disables the server write deadline.
	writeTimeout, err := getEnvDuration("FANOUT_SERVER_WRITE_TIMEOUT", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	emitTimeout, err := getEnvDuration("FANOUT_EMIT_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	wsWriteTimeout, err := getEnvDuration("FANOUT_WS_WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	wsRate, err := getEnvFloat("FANOUT_WS_RATE_PER_SEC", 5)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	wsBurst, err := getEnvInt("FANOUT_WS_BURST", 20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	ingressRate, err := getEnvFloat("FANOUT_INGRESS_RATE_PER_SEC", 200)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	ingressBurst, err := getEnvInt("FANOUT_INGRESS_BURST", 400)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	selfHosted, err := getEnvBool("FANOUT_SELF_HOSTED", false)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	corsOrigins := getEnvList("FANOUT_CORS_ORIGINS", []string{"http://localhost:5173"})

	cfg := &Config{
		Database: DatabaseConfig{
			Enabled:  dbEnabled,
			Host:     getEnv("FANOUT_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("FANOUT_DB_USER", "fanout"),
			Password: getEnv("FANOUT_DB_PASSWORD", ""),
			DBName:   getEnv("FANOUT_DB_NAME", "fanout_dev"),
			SSLMode:  getEnv("FANOUT_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:     getEnv("FANOUT_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("FANOUT_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		JWT: JWTConfig{
			Secret: getEnv("FANOUT_JWT_SECRET", ""),
		},
		Server: ServerConfig{
			Addr:         getEnv("FANOUT_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  corsOrigins,
		},
		Realtime: RealtimeConfig{
			EmitTimeout:       emitTimeout,
			ChannelPrefix:     getEnv("FANOUT_CHANNEL_PREFIX", "fanout:"),
			WSWriteTimeout:    wsWriteTimeout,
			WSRatePerSec:      wsRate,
			WSBurst:           wsBurst,
			IngressRatePerSec: ingressRate,
			IngressBurst:      ingressBurst,
		},
		Log: LogConfig{
			Level:  getEnv("FANOUT_LOG_LEVEL", "info"),
			Format: getEnv("FANOUT_LOG_FORMAT", "json"),
		},
		Broker:     strings.ToLower(getEnv("FANOUT_BROKER", BrokerRedis)),
		SelfHosted: selfHosted,
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	// JWT secret is required (no insecure default).
	if c.JWT.Secret == "" {
		return errors.New("FANOUT_JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("FANOUT_JWT_SECRET must be at least 32 characters")
	}

	switch c.Broker {
	case BrokerRedis, BrokerMemory:
	default:
		return fmt.Errorf("FANOUT_BROKER must be %q or %q, got %q", BrokerRedis, BrokerMemory, c.Broker)
	}

	// DB SSL mode warning for non-self-hosted deployments.
	if c.Database.Enabled && c.Database.SSLMode == "disable" && !c.SelfHosted {
		log.Warn().Msg("FANOUT_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
	}

	// Bounds checks.
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("FANOUT_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("FANOUT_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("FANOUT_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("FANOUT_SERVER_WRITE_TIMEOUT must not be negative, got %s", c.Server.WriteTimeout)
	}
	if c.Realtime.EmitTimeout <= 0 {
		return fmt.Errorf("FANOUT_EMIT_TIMEOUT must be positive, got %s", c.Realtime.EmitTimeout)
	}
	if c.Realtime.WSWriteTimeout <= 0 {
		return fmt.Errorf("FANOUT_WS_WRITE_TIMEOUT must be positive, got %s", c.Realtime.WSWriteTimeout)
	}
	if c.Realtime.WSRatePerSec <= 0 || c.Realtime.WSBurst < 1 {
		return errors.New("FANOUT_WS_RATE_PER_SEC must be positive and FANOUT_WS_BURST >= 1")
	}
	if c.Realtime.IngressRatePerSec <= 0 || c.Realtime.IngressBurst < 1 {
		return errors.New("FANOUT_INGRESS_RATE_PER_SEC must be positive and FANOUT_INGRESS_BURST >= 1")
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
