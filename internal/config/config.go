// Package config defines the top-level configuration for the stocks service
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by STOCKS_* environment variables.
type Config struct {
	Upstream UpstreamConfig `toml:"upstream"`
	Alerts   AlertsConfig   `toml:"alerts"`
	History  HistoryConfig  `toml:"history"`
	Hub      HubConfig      `toml:"hub"`
	Server   ServerConfig   `toml:"server"`
	Kafka    KafkaConfig    `toml:"kafka"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	LogLevel string         `toml:"log_level"`
}

// UpstreamConfig holds the streaming provider endpoint and reconnect policy.
type UpstreamConfig struct {
	WsURL      string   `toml:"ws_url"`
	APIKey     string   `toml:"api_key"`
	Mock       bool     `toml:"mock"`
	MockPeriod duration `toml:"mock_period"`

	BackoffBase duration `toml:"backoff_base"`
	BackoffMax  duration `toml:"backoff_max"`
}

// AlertsConfig holds movement-alert parameters.
type AlertsConfig struct {
	// MoveThreshold is the fractional price move that fires an alert (0.10 = 10%).
	MoveThreshold float64 `toml:"move_threshold"`
}

// HistoryConfig holds the in-memory price history parameters.
type HistoryConfig struct {
	// Capacity is the per-ticker ring buffer size.
	Capacity int `toml:"capacity"`
}

// HubConfig holds live fan-out parameters.
type HubConfig struct {
	// SubscriberBuffer is the per-viewer channel depth; overflow drops the
	// oldest buffered tick.
	SubscriberBuffer int `toml:"subscriber_buffer"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// KafkaConfig holds the downstream topics the service publishes to. Empty
// brokers disable Kafka entirely (ticks and notifications are then logged
// only).
type KafkaConfig struct {
	Brokers            []string `toml:"brokers"`
	RealtimeTopic      string   `toml:"realtime_topic"`
	NotificationsTopic string   `toml:"notifications_topic"`
}

// RedisConfig holds the latest-price cache connection. Empty addr disables it.
type RedisConfig struct {
	Addr            string `toml:"addr"`
	Password        string `toml:"password"`
	DB              int    `toml:"db"`
	CacheTTLMinutes int    `toml:"cache_ttl_minutes"`
}

// PostgresConfig holds the alert audit store connection. Empty DSN disables it.
type PostgresConfig struct {
	DSN      string `toml:"dsn"`
	MaxConns int    `toml:"pool_max_conns"`
	MinConns int    `toml:"pool_min_conns"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Upstream: UpstreamConfig{
			WsURL:       "wss://socket.polygon.io/stocks",
			Mock:        false,
			MockPeriod:  duration{time.Second},
			BackoffBase: duration{500 * time.Millisecond},
			BackoffMax:  duration{30 * time.Second},
		},
		Alerts: AlertsConfig{
			MoveThreshold: 0.10,
		},
		History: HistoryConfig{
			Capacity: 100,
		},
		Hub: HubConfig{
			SubscriberBuffer: 16,
		},
		Server: ServerConfig{
			Port:        8084,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		},
		Kafka: KafkaConfig{
			RealtimeTopic:      "stocks.realtime",
			NotificationsTopic: "notifications.commands",
		},
		Redis: RedisConfig{
			CacheTTLMinutes: 10,
		},
		Postgres: PostgresConfig{
			MaxConns: 4,
			MinConns: 0,
		},
		LogLevel: "info",
	}
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// A real upstream connection needs both an endpoint and a credential.
	if !c.Upstream.Mock {
		if c.Upstream.WsURL == "" {
			errs = append(errs, "upstream: ws_url must not be empty unless mock mode is enabled")
		}
		if c.Upstream.APIKey == "" {
			errs = append(errs, "upstream: api_key is required unless mock mode is enabled")
		}
	}
	if c.Upstream.Mock && c.Upstream.MockPeriod.Duration <= 0 {
		errs = append(errs, "upstream: mock_period must be positive")
	}
	if c.Upstream.BackoffBase.Duration <= 0 {
		errs = append(errs, "upstream: backoff_base must be positive")
	}
	if c.Upstream.BackoffMax.Duration < c.Upstream.BackoffBase.Duration {
		errs = append(errs, "upstream: backoff_max must be >= backoff_base")
	}

	if c.Alerts.MoveThreshold <= 0 || c.Alerts.MoveThreshold >= 1 {
		errs = append(errs, fmt.Sprintf("alerts: move_threshold must be in (0, 1), got %v", c.Alerts.MoveThreshold))
	}

	if c.History.Capacity < 1 {
		errs = append(errs, "history: capacity must be >= 1")
	}

	if c.Hub.SubscriberBuffer < 1 {
		errs = append(errs, "hub: subscriber_buffer must be >= 1")
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
	}

	if len(c.Kafka.Brokers) > 0 {
		if c.Kafka.RealtimeTopic == "" {
			errs = append(errs, "kafka: realtime_topic must not be empty when brokers are set")
		}
		if c.Kafka.NotificationsTopic == "" {
			errs = append(errs, "kafka: notifications_topic must not be empty when brokers are set")
		}
	}

	if c.Postgres.DSN != "" && c.Postgres.MaxConns < 1 {
		errs = append(errs, "postgres: pool_max_conns must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
