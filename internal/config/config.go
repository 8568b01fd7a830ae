// Package config assembles the frozen configuration record used by every
// binary in this module. It follows the teacher's precedence chain:
// defaults, then an optional JSON file, then environment overrides, then
// any command-specific flags the caller applies afterward.
package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

// BusConfig holds Redis connection settings for the message bus.
type BusConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// StoreConfig holds MongoDB connection settings for the persistent store.
type StoreConfig struct {
	URI      string `json:"uri"`
	Database string `json:"database"`
}

// TimeoutConfig holds the per-operation timeouts required by §5 of the spec:
// every blocking bus/store/cache/socket operation carries one.
type TimeoutConfig struct {
	BusRead       time.Duration `json:"bus_read"`        // 5s
	StoreOp       time.Duration `json:"store_op"`        // 5s
	CacheOp       time.Duration `json:"cache_op"`        // 1s
	ClientSend    time.Duration `json:"client_send"`     // 5s
	EnqueueBudget time.Duration `json:"enqueue_budget"`  // S's bounded enqueue timeout
}

// ReconnectConfig holds the exponential-backoff reconnect schedule shared by
// S and G when the bus connection drops.
type ReconnectConfig struct {
	InitialDelay time.Duration `json:"initial_delay"` // 1s
	MaxDelay     time.Duration `json:"max_delay"`      // 30s
}

// RetryConfig holds the enrichment task retry budget (§4.2.1).
type RetryConfig struct {
	MaxAttempts int             `json:"max_attempts"` // 3 retries after the first attempt
	Delays      []time.Duration `json:"delays"`        // 5s, 10s, 20s
}

// CacheTTLConfig holds the TTLs for every cache key family in §6.
type CacheTTLConfig struct {
	LatestUnderlying time.Duration `json:"latest_underlying"` // 300s
	LatestChain      time.Duration `json:"latest_chain"`      // 300s
	LatestPCR        time.Duration `json:"latest_pcr"`        // 300s
	IVSurface        time.Duration `json:"iv_surface"`        // 300s
	Idempotency      time.Duration `json:"idempotency"`       // 3600s
}

// WorkerConfig holds the enrichment worker pool's sizing knobs.
type WorkerConfig struct {
	Workers      int           `json:"workers"`
	Pollers      int           `json:"pollers"`
	PollInterval time.Duration `json:"poll_interval"`
	OHLCWindows  []int         `json:"ohlc_windows"`      // minutes, default {1, 5, 15}
	IVLookback   time.Duration `json:"iv_lookback"`       // 5 minutes
}

// GatewayConfig holds the broadcast gateway's connection knobs.
type GatewayConfig struct {
	Addr            string `json:"addr"`
	SendBufferSize  int    `json:"send_buffer_size"`
}

// DaemonConfig holds process-wide logging/runtime settings.
type DaemonConfig struct {
	LogLevel  string `json:"log_level"`
	LogFormat string `json:"log_format"` // text, json
}

// MetricsConfig holds Prometheus settings.
type MetricsConfig struct {
	Enabled   bool   `json:"enabled"`
	Namespace string `json:"namespace"`
}

// TracingConfig holds OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `json:"enabled"`
	Exporter    string  `json:"exporter"`
	Endpoint    string  `json:"endpoint"`
	ServiceName string  `json:"service_name"`
	SampleRate  float64 `json:"sample_rate"`
}

// DLQConfig names the dead-letter list key.
type DLQConfig struct {
	Key string `json:"key"` // dlq:enrichment
}

// Config is the central, frozen configuration record assembled at startup.
type Config struct {
	Bus       BusConfig       `json:"bus"`
	Store     StoreConfig     `json:"store"`
	Timeouts  TimeoutConfig   `json:"timeouts"`
	Reconnect ReconnectConfig `json:"reconnect"`
	Retry     RetryConfig     `json:"retry"`
	CacheTTL  CacheTTLConfig  `json:"cache_ttl"`
	Worker    WorkerConfig    `json:"worker"`
	Gateway   GatewayConfig   `json:"gateway"`
	Daemon    DaemonConfig    `json:"daemon"`
	Metrics   MetricsConfig   `json:"metrics"`
	Tracing   TracingConfig   `json:"tracing"`
	DLQ       DLQConfig       `json:"dlq"`
}

// DefaultConfig returns a Config with the values spec.md fixes as defaults.
func DefaultConfig() *Config {
	return &Config{
		Bus: BusConfig{
			Addr: "localhost:6379",
			DB:   0,
		},
		Store: StoreConfig{
			URI:      "mongodb://localhost:27017",
			Database: "optionspulse",
		},
		Timeouts: TimeoutConfig{
			BusRead:       5 * time.Second,
			StoreOp:       5 * time.Second,
			CacheOp:       1 * time.Second,
			ClientSend:    5 * time.Second,
			EnqueueBudget: 2 * time.Second,
		},
		Reconnect: ReconnectConfig{
			InitialDelay: 1 * time.Second,
			MaxDelay:     30 * time.Second,
		},
		Retry: RetryConfig{
			MaxAttempts: 3,
			Delays:      []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second},
		},
		CacheTTL: CacheTTLConfig{
			LatestUnderlying: 300 * time.Second,
			LatestChain:      300 * time.Second,
			LatestPCR:        300 * time.Second,
			IVSurface:        300 * time.Second,
			Idempotency:      3600 * time.Second,
		},
		Worker: WorkerConfig{
			Workers:      16,
			Pollers:      4,
			PollInterval: 200 * time.Millisecond,
			OHLCWindows:  []int{1, 5, 15},
			IVLookback:   5 * time.Minute,
		},
		Gateway: GatewayConfig{
			Addr:           ":8090",
			SendBufferSize: 256,
		},
		Daemon: DaemonConfig{
			LogLevel:  "info",
			LogFormat: "text",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "optionspulse",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    "otlp-http",
			Endpoint:    "localhost:4318",
			ServiceName: "optionspulse",
			SampleRate:  1.0,
		},
		DLQ: DLQConfig{
			Key: "dlq:enrichment",
		},
	}
}

// LoadFromFile loads configuration from a JSON file, layered on defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to the config.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("OPTIONSPULSE_BUS_ADDR"); v != "" {
		cfg.Bus.Addr = v
	}
	if v := os.Getenv("OPTIONSPULSE_BUS_PASSWORD"); v != "" {
		cfg.Bus.Password = v
	}
	if v := os.Getenv("OPTIONSPULSE_BUS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Bus.DB = n
		}
	}
	if v := os.Getenv("OPTIONSPULSE_STORE_URI"); v != "" {
		cfg.Store.URI = v
	}
	if v := os.Getenv("OPTIONSPULSE_STORE_DATABASE"); v != "" {
		cfg.Store.Database = v
	}
	if v := os.Getenv("OPTIONSPULSE_LOG_LEVEL"); v != "" {
		cfg.Daemon.LogLevel = v
	}
	if v := os.Getenv("OPTIONSPULSE_LOG_FORMAT"); v != "" {
		cfg.Daemon.LogFormat = v
	}
	if v := os.Getenv("OPTIONSPULSE_GATEWAY_ADDR"); v != "" {
		cfg.Gateway.Addr = v
	}
	if v := os.Getenv("OPTIONSPULSE_GATEWAY_SEND_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Gateway.SendBufferSize = n
		}
	}
	if v := os.Getenv("OPTIONSPULSE_WORKER_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Worker.Workers = n
		}
	}
	if v := os.Getenv("OPTIONSPULSE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("OPTIONSPULSE_METRICS_NAMESPACE"); v != "" {
		cfg.Metrics.Namespace = v
	}
	if v := os.Getenv("OPTIONSPULSE_TRACING_ENABLED"); v != "" {
		cfg.Tracing.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("OPTIONSPULSE_TRACING_ENDPOINT"); v != "" {
		cfg.Tracing.Endpoint = v
	}
	if v := os.Getenv("OPTIONSPULSE_DLQ_KEY"); v != "" {
		cfg.DLQ.Key = v
	}
}
