package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ---------------------------------------------------------------------------
// Helper function tests
// ---------------------------------------------------------------------------

func TestGetEnv(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string // nil = don't set; pointer to distinguish "" from unset
		fallback string
		want     string
	}{
		{name: "returns fallback when unset", key: "FANOUT_TEST_GETENV_UNSET", setVal: nil, fallback: "default", want: "default"},
		{name: "returns env value when set", key: "FANOUT_TEST_GETENV_SET", setVal: strPtr("custom"), fallback: "default", want: "custom"},
		{name: "returns fallback when empty string", key: "FANOUT_TEST_GETENV_EMPTY", setVal: strPtr(""), fallback: "default", want: "default"},
		{name: "preserves whitespace", key: "FANOUT_TEST_GETENV_WS", setVal: strPtr("  spaced  "), fallback: "x", want: "  spaced  "},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got := getEnv(tc.key, tc.fallback)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvInt(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string
		fallback int
		want     int
		wantErr  bool
	}{
		{name: "returns fallback when unset", key: "FANOUT_TEST_INT_UNSET", setVal: nil, fallback: 42, want: 42},
		{name: "parses valid int", key: "FANOUT_TEST_INT_VALID", setVal: strPtr("8080"), fallback: 0, want: 8080},
		{name: "parses negative int", key: "FANOUT_TEST_INT_NEG", setVal: strPtr("-1"), fallback: 0, want: -1},
		{name: "parses zero", key: "FANOUT_TEST_INT_ZERO", setVal: strPtr("0"), fallback: 99, want: 0},
		{name: "returns fallback for empty string", key: "FANOUT_TEST_INT_EMPTY", setVal: strPtr(""), fallback: 25, want: 25},
		{name: "errors on non-numeric", key: "FANOUT_TEST_INT_NAN", setVal: strPtr("abc"), fallback: 0, wantErr: true},
		{name: "errors on float", key: "FANOUT_TEST_INT_FLOAT", setVal: strPtr("3.14"), fallback: 0, wantErr: true},
		{name: "errors on hex", key: "FANOUT_TEST_INT_HEX", setVal: strPtr("0xFF"), fallback: 0, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got, err := getEnvInt(tc.key, tc.fallback)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvBool(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string
		fallback bool
		want     bool
		wantErr  bool
	}{
		{name: "returns fallback when unset", key: "FANOUT_TEST_BOOL_UNSET", setVal: nil, fallback: false, want: false},
		{name: "fallback true when unset", key: "FANOUT_TEST_BOOL_UNSETTRUE", setVal: nil, fallback: true, want: true},
		{name: "parses true", key: "FANOUT_TEST_BOOL_TRUE", setVal: strPtr("true"), fallback: false, want: true},
		{name: "parses false", key: "FANOUT_TEST_BOOL_FALSE", setVal: strPtr("false"), fallback: true, want: false},
		{name: "parses 1", key: "FANOUT_TEST_BOOL_ONE", setVal: strPtr("1"), fallback: false, want: true},
		{name: "parses 0", key: "FANOUT_TEST_BOOL_ZERO", setVal: strPtr("0"), fallback: true, want: false},
		{name: "parses TRUE uppercase", key: "FANOUT_TEST_BOOL_UPPER", setVal: strPtr("TRUE"), fallback: false, want: true},
		{name: "parses t", key: "FANOUT_TEST_BOOL_T", setVal: strPtr("t"), fallback: false, want: true},
		{name: "errors on invalid", key: "FANOUT_TEST_BOOL_INV", setVal: strPtr("yes"), fallback: false, wantErr: true},
		{name: "errors on numeric non-bool", key: "FANOUT_TEST_BOOL_NUM", setVal: strPtr("2"), fallback: false, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got, err := getEnvBool(tc.key, tc.fallback)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string
		fallback time.Duration
		want     time.Duration
		wantErr  bool
	}{
		{name: "returns fallback when unset", key: "FANOUT_TEST_DUR_UNSET", setVal: nil, fallback: 5 * time.Second, want: 5 * time.Second},
		{name: "parses seconds", key: "FANOUT_TEST_DUR_SEC", setVal: strPtr("30s"), fallback: 0, want: 30 * time.Second},
		{name: "parses minutes", key: "FANOUT_TEST_DUR_MIN", setVal: strPtr("15m"), fallback: 0, want: 15 * time.Minute},
		{name: "parses hours", key: "FANOUT_TEST_DUR_HR", setVal: strPtr("2h"), fallback: 0, want: 2 * time.Hour},
		{name: "parses composite", key: "FANOUT_TEST_DUR_COMP", setVal: strPtr("1h30m"), fallback: 0, want: 90 * time.Minute},
		{name: "parses nanosecond", key: "FANOUT_TEST_DUR_NS", setVal: strPtr("1ns"), fallback: 0, want: time.Nanosecond},
		{name: "parses zero", key: "FANOUT_TEST_DUR_ZERO", setVal: strPtr("0s"), fallback: 5 * time.Second, want: 0},
		{name: "errors on invalid", key: "FANOUT_TEST_DUR_INV", setVal: strPtr("notaduration"), fallback: 0, wantErr: true},
		{name: "errors on bare number", key: "FANOUT_TEST_DUR_BARE", setVal: strPtr("30"), fallback: 0, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got, err := getEnvDuration(tc.key, tc.fallback)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.key)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestGetEnvFloat(t *testing.T) {
	tests := []struct {
		name     string
		key      string
		setVal   *string
		fallback float64
		want     float64
		wantErr  bool
	}{
		{name: "returns fallback when unset", key: "FANOUT_TEST_FLOAT_UNSET", setVal: nil, fallback: 1.5, want: 1.5},
		{name: "parses int form", key: "FANOUT_TEST_FLOAT_INT", setVal: strPtr("20"), fallback: 0, want: 20},
		{name: "parses fraction", key: "FANOUT_TEST_FLOAT_FRAC", setVal: strPtr("0.25"), fallback: 0, want: 0.25},
		{name: "errors on invalid", key: "FANOUT_TEST_FLOAT_INV", setVal: strPtr("fast"), fallback: 0, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if tc.setVal != nil {
				t.Setenv(tc.key, *tc.setVal)
			}

			got, err := getEnvFloat(tc.key, tc.fallback)
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.key)
				return
			}
			require.NoError(t, err)
			assert.InDelta(t, tc.want, got, 1e-9)
		})
	}
}

func TestGetEnvList(t *testing.T) {
	t.Setenv("FANOUT_TEST_LIST", " a, ,b ,c")
	assert.Equal(t, []string{"a", "b", "c"}, getEnvList("FANOUT_TEST_LIST", nil))
	assert.Equal(t, []string{"x"}, getEnvList("FANOUT_TEST_LIST_UNSET", []string{"x"}))
}

// ---------------------------------------------------------------------------
// Load() error cases
// ---------------------------------------------------------------------------

const testSecret = "test-secret-that-is-at-least-32ch"

func TestLoad_MissingJWTSecret(t *testing.T) {
	// All defaults apply; JWT secret is empty => must fail.
	cfg, err := Load()
	require.Error(t, err)
	assert.Nil(t, cfg)
	assert.Contains(t, err.Error(), "FANOUT_JWT_SECRET")
}

func TestLoad_InvalidEnvVars(t *testing.T) {
	tests := []struct {
		name   string
		envKey string
		envVal string
		errMsg string
	}{
		// DB_PORT parse errors
		{name: "DB_PORT not a number", envKey: "FANOUT_DB_PORT", envVal: "abc", errMsg: "FANOUT_DB_PORT"},
		{name: "DB_PORT zero", envKey: "FANOUT_DB_PORT", envVal: "0", errMsg: "FANOUT_DB_PORT"},
		{name: "DB_PORT too high", envKey: "FANOUT_DB_PORT", envVal: "65536", errMsg: "FANOUT_DB_PORT"},
		{name: "DB_ENABLED not a bool", envKey: "FANOUT_DB_ENABLED", envVal: "maybe", errMsg: "FANOUT_DB_ENABLED"},

		// DB_MAX_CONNS
		{name: "DB_MAX_CONNS zero", envKey: "FANOUT_DB_MAX_CONNS", envVal: "0", errMsg: "FANOUT_DB_MAX_CONNS"},
		{name: "DB_MAX_CONNS not a number", envKey: "FANOUT_DB_MAX_CONNS", envVal: "many", errMsg: "FANOUT_DB_MAX_CONNS"},

		// Server timeouts
		{name: "SERVER_READ_TIMEOUT invalid", envKey: "FANOUT_SERVER_READ_TIMEOUT", envVal: "notduration", errMsg: "FANOUT_SERVER_READ_TIMEOUT"},
		{name: "SERVER_READ_TIMEOUT zero", envKey: "FANOUT_SERVER_READ_TIMEOUT", envVal: "0s", errMsg: "FANOUT_SERVER_READ_TIMEOUT"},
		{name: "SERVER_WRITE_TIMEOUT negative", envKey: "FANOUT_SERVER_WRITE_TIMEOUT", envVal: "-1s", errMsg: "FANOUT_SERVER_WRITE_TIMEOUT"},

		// Realtime
		{name: "EMIT_TIMEOUT zero", envKey: "FANOUT_EMIT_TIMEOUT", envVal: "0s", errMsg: "FANOUT_EMIT_TIMEOUT"},
		{name: "WS_WRITE_TIMEOUT invalid", envKey: "FANOUT_WS_WRITE_TIMEOUT", envVal: "soon", errMsg: "FANOUT_WS_WRITE_TIMEOUT"},
		{name: "WS_RATE not a number", envKey: "FANOUT_WS_RATE_PER_SEC", envVal: "fast", errMsg: "FANOUT_WS_RATE_PER_SEC"},
		{name: "WS_BURST zero", envKey: "FANOUT_WS_BURST", envVal: "0", errMsg: "FANOUT_WS_BURST"},
		{name: "INGRESS_RATE zero", envKey: "FANOUT_INGRESS_RATE_PER_SEC", envVal: "0", errMsg: "FANOUT_INGRESS_RATE_PER_SEC"},

		// Broker
		{name: "BROKER unknown", envKey: "FANOUT_BROKER", envVal: "kafka", errMsg: "FANOUT_BROKER"},

		// Redis DB
		{name: "REDIS_DB not a number", envKey: "FANOUT_REDIS_DB", envVal: "abc", errMsg: "FANOUT_REDIS_DB"},

		// Self-hosted
		{name: "SELF_HOSTED not a bool", envKey: "FANOUT_SELF_HOSTED", envVal: "yes", errMsg: "FANOUT_SELF_HOSTED"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// Always set JWT secret so failures are from the var under test.
			t.Setenv("FANOUT_JWT_SECRET", testSecret)
			t.Setenv(tc.envKey, tc.envVal)

			cfg, err := Load()
			require.Error(t, err, "expected error for %s=%q", tc.envKey, tc.envVal)
			assert.Nil(t, cfg)
			assert.Contains(t, err.Error(), tc.errMsg)
		})
	}
}

// ---------------------------------------------------------------------------
// Load() happy paths
// ---------------------------------------------------------------------------

func TestLoad_Defaults(t *testing.T) {
	// Only the required JWT secret is set; everything else uses defaults.
	t.Setenv("FANOUT_JWT_SECRET", testSecret)

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Database defaults.
	assert.True(t, cfg.Database.Enabled)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "fanout", cfg.Database.User)
	assert.Empty(t, cfg.Database.Password)
	assert.Equal(t, "fanout_dev", cfg.Database.DBName)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
	assert.Equal(t, 10, cfg.Database.MaxConns)

	// Redis defaults.
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Empty(t, cfg.Redis.Password)
	assert.Equal(t, 0, cfg.Redis.DB)

	// Server defaults.
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 10*time.Second, cfg.Server.ReadTimeout)
	assert.Zero(t, cfg.Server.WriteTimeout)
	assert.Equal(t, []string{"http://localhost:5173"}, cfg.Server.CORSOrigins)

	// Realtime defaults.
	assert.Equal(t, 5*time.Second, cfg.Realtime.EmitTimeout)
	assert.Equal(t, "fanout:", cfg.Realtime.ChannelPrefix)
	assert.Equal(t, 10*time.Second, cfg.Realtime.WSWriteTimeout)
	assert.InDelta(t, 5.0, cfg.Realtime.WSRatePerSec, 1e-9)
	assert.Equal(t, 20, cfg.Realtime.WSBurst)
	assert.InDelta(t, 200.0, cfg.Realtime.IngressRatePerSec, 1e-9)
	assert.Equal(t, 400, cfg.Realtime.IngressBurst)

	assert.Equal(t, BrokerRedis, cfg.Broker)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.False(t, cfg.SelfHosted)
}

func TestLoad_AllCustomValues(t *testing.T) {
	envs := map[string]string{
		// Database
		"FANOUT_DB_ENABLED":   "false",
		"FANOUT_DB_HOST":      "db.prod.internal",
		"FANOUT_DB_PORT":      "5433",
		"FANOUT_DB_USER":      "prod_user",
		"FANOUT_DB_PASSWORD":  "s3cret!",
		"FANOUT_DB_NAME":      "fanout_prod",
		"FANOUT_DB_SSLMODE":   "require",
		"FANOUT_DB_MAX_CONNS": "50",
		// Redis
		"FANOUT_REDIS_ADDR":     "redis.prod:6380",
		"FANOUT_REDIS_PASSWORD": "redis-pass",
		"FANOUT_REDIS_DB":       "3",
		// JWT
		"FANOUT_JWT_SECRET": "prod-jwt-secret-256-bits-long!!!",
		// Server
		"FANOUT_SERVER_ADDR":          ":9090",
		"FANOUT_SERVER_READ_TIMEOUT":  "5s",
		"FANOUT_SERVER_WRITE_TIMEOUT": "15s",
		"FANOUT_CORS_ORIGINS":         "https://a.example, https://b.example",
		// Realtime
		"FANOUT_EMIT_TIMEOUT":         "2s",
		"FANOUT_CHANNEL_PREFIX":       "prod:",
		"FANOUT_WS_WRITE_TIMEOUT":     "3s",
		"FANOUT_WS_RATE_PER_SEC":      "1.5",
		"FANOUT_WS_BURST":             "4",
		"FANOUT_INGRESS_RATE_PER_SEC": "50",
		"FANOUT_INGRESS_BURST":        "60",
		// Misc
		"FANOUT_BROKER":      "Memory",
		"FANOUT_LOG_LEVEL":   "debug",
		"FANOUT_LOG_FORMAT":  "text",
		"FANOUT_SELF_HOSTED": "true",
	}

	for k, v := range envs {
		t.Setenv(k, v)
	}

	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	// Database
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, "db.prod.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, "prod_user", cfg.Database.User)
	assert.Equal(t, "s3cret!", cfg.Database.Password)
	assert.Equal(t, "fanout_prod", cfg.Database.DBName)
	assert.Equal(t, "require", cfg.Database.SSLMode)
	assert.Equal(t, 50, cfg.Database.MaxConns)

	// Redis
	assert.Equal(t, "redis.prod:6380", cfg.Redis.Addr)
	assert.Equal(t, "redis-pass", cfg.Redis.Password)
	assert.Equal(t, 3, cfg.Redis.DB)

	// Server
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 15*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)

	// Realtime
	assert.Equal(t, 2*time.Second, cfg.Realtime.EmitTimeout)
	assert.Equal(t, "prod:", cfg.Realtime.ChannelPrefix)
	assert.Equal(t, 3*time.Second, cfg.Realtime.WSWriteTimeout)
	assert.InDelta(t, 1.5, cfg.Realtime.WSRatePerSec, 1e-9)
	assert.Equal(t, 4, cfg.Realtime.WSBurst)
	assert.InDelta(t, 50.0, cfg.Realtime.IngressRatePerSec, 1e-9)
	assert.Equal(t, 60, cfg.Realtime.IngressBurst)

	assert.Equal(t, BrokerMemory, cfg.Broker)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.True(t, cfg.SelfHosted)
}

// ---------------------------------------------------------------------------
// DSN() output format
// ---------------------------------------------------------------------------

func TestDatabaseConfig_DSN(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  DatabaseConfig
		want string
	}{
		{
			name: "default dev values",
			cfg: DatabaseConfig{
				Host: "localhost", Port: 5432, User: "fanout",
				Password: "", DBName: "fanout_dev", SSLMode: "disable",
			},
			want: "host=localhost port=5432 user=fanout password= dbname=fanout_dev sslmode=disable",
		},
		{
			name: "special characters in password",
			cfg: DatabaseConfig{
				Host: "h", Port: 1, User: "u",
				Password: "p=a&b c", DBName: "d", SSLMode: "s",
			},
			want: "host=h port=1 user=u password=p=a&b c dbname=d sslmode=s",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, tc.cfg.DSN())
		})
	}
}

// ---------------------------------------------------------------------------
// validate() direct tests
// ---------------------------------------------------------------------------

func TestValidate(t *testing.T) {
	t.Parallel()

	// validBase returns a Config that passes validation.
	validBase := func() *Config {
		return &Config{
			Database: DatabaseConfig{Port: 5432, MaxConns: 25},
			JWT:      JWTConfig{Secret: testSecret},
			Server:   ServerConfig{ReadTimeout: 10 * time.Second},
			Realtime: RealtimeConfig{
				EmitTimeout:       time.Second,
				WSWriteTimeout:    time.Second,
				WSRatePerSec:      1,
				WSBurst:           1,
				IngressRatePerSec: 1,
				IngressBurst:      1,
			},
			Broker: BrokerMemory,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "valid config passes", mutate: func(*Config) {}},
		{name: "empty JWT secret fails", mutate: func(c *Config) { c.JWT.Secret = "" }, wantErr: "FANOUT_JWT_SECRET"},
		{name: "JWT secret too short fails", mutate: func(c *Config) { c.JWT.Secret = "only-31-characters-long-secret!" }, wantErr: "FANOUT_JWT_SECRET"},
		{name: "JWT secret exactly 32 chars passes", mutate: func(c *Config) { c.JWT.Secret = "exactly-32-characters-long-sec!!" }},
		{name: "port 0 fails", mutate: func(c *Config) { c.Database.Port = 0 }, wantErr: "FANOUT_DB_PORT"},
		{name: "port 65535 passes", mutate: func(c *Config) { c.Database.Port = 65535 }},
		{name: "MaxConns 0 fails", mutate: func(c *Config) { c.Database.MaxConns = 0 }, wantErr: "FANOUT_DB_MAX_CONNS"},
		{name: "ReadTimeout 0 fails", mutate: func(c *Config) { c.Server.ReadTimeout = 0 }, wantErr: "FANOUT_SERVER_READ_TIMEOUT"},
		{name: "WriteTimeout 0 passes", mutate: func(c *Config) { c.Server.WriteTimeout = 0 }},
		{name: "WriteTimeout negative fails", mutate: func(c *Config) { c.Server.WriteTimeout = -time.Second }, wantErr: "FANOUT_SERVER_WRITE_TIMEOUT"},
		{name: "EmitTimeout 0 fails", mutate: func(c *Config) { c.Realtime.EmitTimeout = 0 }, wantErr: "FANOUT_EMIT_TIMEOUT"},
		{name: "WS burst 0 fails", mutate: func(c *Config) { c.Realtime.WSBurst = 0 }, wantErr: "FANOUT_WS_BURST"},
		{name: "ingress rate 0 fails", mutate: func(c *Config) { c.Realtime.IngressRatePerSec = 0 }, wantErr: "FANOUT_INGRESS_RATE_PER_SEC"},
		{name: "unknown broker fails", mutate: func(c *Config) { c.Broker = "nats" }, wantErr: "FANOUT_BROKER"},
		{name: "redis broker passes", mutate: func(c *Config) { c.Broker = BrokerRedis }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			c := validBase()
			tc.mutate(c)
			err := c.validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tc.wantErr)
		})
	}
}

// ---------------------------------------------------------------------------
// Test helper
// ---------------------------------------------------------------------------

func strPtr(s string) *string {
	return &s
}
