package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies STOCKS_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load. A missing file is not an
// error: defaults plus environment overrides apply.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known STOCKS_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This lets
// operators inject the provider API key and broker addresses at deploy time
// without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	// --- Upstream ---
	setStr(&cfg.Upstream.WsURL, "STOCKS_UPSTREAM_WS_URL")
	setStr(&cfg.Upstream.APIKey, "STOCKS_UPSTREAM_API_KEY")
	setBool(&cfg.Upstream.Mock, "STOCKS_UPSTREAM_MOCK")
	setDuration(&cfg.Upstream.MockPeriod, "STOCKS_UPSTREAM_MOCK_PERIOD")
	setDuration(&cfg.Upstream.BackoffBase, "STOCKS_UPSTREAM_BACKOFF_BASE")
	setDuration(&cfg.Upstream.BackoffMax, "STOCKS_UPSTREAM_BACKOFF_MAX")

	// --- Alerts ---
	setFloat64(&cfg.Alerts.MoveThreshold, "STOCKS_ALERTS_MOVE_THRESHOLD")

	// --- History / hub ---
	setInt(&cfg.History.Capacity, "STOCKS_HISTORY_CAPACITY")
	setInt(&cfg.Hub.SubscriberBuffer, "STOCKS_HUB_SUBSCRIBER_BUFFER")

	// --- Server ---
	setInt(&cfg.Server.Port, "STOCKS_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "STOCKS_SERVER_CORS_ORIGINS")

	// --- Kafka ---
	setStringSlice(&cfg.Kafka.Brokers, "STOCKS_KAFKA_BROKERS")
	setStr(&cfg.Kafka.RealtimeTopic, "STOCKS_KAFKA_REALTIME_TOPIC")
	setStr(&cfg.Kafka.NotificationsTopic, "STOCKS_KAFKA_NOTIFICATIONS_TOPIC")

	// --- Redis ---
	setStr(&cfg.Redis.Addr, "STOCKS_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "STOCKS_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "STOCKS_REDIS_DB")
	setInt(&cfg.Redis.CacheTTLMinutes, "STOCKS_REDIS_CACHE_TTL_MINUTES")

	// --- Postgres ---
	setStr(&cfg.Postgres.DSN, "STOCKS_POSTGRES_DSN")
	setInt(&cfg.Postgres.MaxConns, "STOCKS_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.MinConns, "STOCKS_POSTGRES_POOL_MIN_CONNS")

	// --- Top-level ---
	setStr(&cfg.LogLevel, "STOCKS_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
