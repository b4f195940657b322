package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server     ServerConfig
	Gateway    GatewayConfig
	Dispatcher DispatcherConfig
	RateLimit  RateLimitConfig
	Bulk       BulkConfig
	Stats      StatsConfig
	Breaker    BreakerConfig
	Inbound    InboundConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Log        LogConfig
}

type ServerConfig struct {
	Address         string
	ShutdownTimeout time.Duration
}

type GatewayConfig struct {
	URL             string
	Token           string
	WebhookEndpoint string
	Timeout         time.Duration
}

type DispatcherConfig struct {
	QueueMaxDepth int
	MaxAttempts   int
	BackoffBase   time.Duration
	BackoffMax    time.Duration
	ContentMax    int
	AutoStart     bool
}

type RateLimitConfig struct {
	Limit  int
	Window time.Duration
}

type BulkConfig struct {
	Wait          time.Duration
	MaxRecipients int
	MaxBatches    int
	BatchTTL      time.Duration
}

type StatsConfig struct {
	RecentSize int
}

type BreakerConfig struct {
	FailureThreshold int
	OpenTimeout      time.Duration
}

type InboundConfig struct {
	RatePerSecond int
	Burst         int
}

type DatabaseConfig struct {
	Enabled     bool
	PostgresURL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
	TTL      time.Duration
}

type LogConfig struct {
	Level  slog.Level
	Format string
}

// LoadAll reads the whole configuration from the environment and reports
// every problem at once.
func LoadAll() (*Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	intVar := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		collect(err)
		return v
	}
	secondsVar := func(key string, def int) time.Duration {
		return time.Duration(intVar(key, def)) * time.Second
	}
	millisVar := func(key string, def int) time.Duration {
		return time.Duration(intVar(key, def)) * time.Millisecond
	}

	gatewayURL, err := requireEnv("GATEWAY_URL")
	collect(err)

	autoStart, err := getEnvBool("DISPATCHER_AUTOSTART", true)
	collect(err)

	level, err := parseLevel(getEnv("LOG_LEVEL", "info"))
	collect(err)

	cfg := &Config{
		Server: ServerConfig{
			Address:         getEnv("SERVER_ADDRESS", ":8080"),
			ShutdownTimeout: secondsVar("SHUTDOWN_TIMEOUT_SECONDS", 10),
		},
		Gateway: GatewayConfig{
			URL:             strings.TrimRight(gatewayURL, "/"),
			Token:           os.Getenv("GATEWAY_TOKEN"),
			WebhookEndpoint: os.Getenv("GATEWAY_WEBHOOK_ENDPOINT"),
			Timeout:         secondsVar("GATEWAY_TIMEOUT_SECONDS", 10),
		},
		Dispatcher: DispatcherConfig{
			QueueMaxDepth: intVar("QUEUE_MAX_DEPTH", 10000),
			MaxAttempts:   intVar("MAX_ATTEMPTS", 3),
			BackoffBase:   millisVar("RETRY_BACKOFF_BASE_MS", 1000),
			BackoffMax:    millisVar("RETRY_BACKOFF_MAX_MS", 30000),
			ContentMax:    intVar("CONTENT_MAX", 1000),
			AutoStart:     autoStart,
		},
		RateLimit: RateLimitConfig{
			Limit:  intVar("RATE_LIMIT", 60),
			Window: secondsVar("RATE_WINDOW_SECONDS", 60),
		},
		Bulk: BulkConfig{
			Wait:          secondsVar("BULK_WAIT_SECONDS", 30),
			MaxRecipients: intVar("BULK_MAX_RECIPIENTS", 1000),
			MaxBatches:    intVar("BULK_MAX_BATCHES", 200),
			BatchTTL:      secondsVar("BULK_BATCH_TTL_SECONDS", 86400),
		},
		Stats: StatsConfig{
			RecentSize: intVar("RECENT_LOG_SIZE", 100),
		},
		Breaker: BreakerConfig{
			FailureThreshold: intVar("BREAKER_FAILURE_THRESHOLD", 5),
			OpenTimeout:      secondsVar("BREAKER_OPEN_SECONDS", 30),
		},
		Inbound: InboundConfig{
			RatePerSecond: intVar("INBOUND_RATE_PER_SECOND", 20),
			Burst:         intVar("INBOUND_BURST", 40),
		},
		Database: loadDatabaseConfig(),
		Log: LogConfig{
			Level:  level,
			Format: strings.ToLower(getEnv("LOG_FORMAT", "text")),
		},
	}

	redisCfg, redisErrs := loadRedisConfig()
	cfg.Redis = redisCfg
	errs = append(errs, redisErrs...)

	errs = append(errs, validate(cfg)...)
	if err := joinErrors(errs); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadDatabaseConfig() DatabaseConfig {
	url := os.Getenv("POSTGRES_URL")
	return DatabaseConfig{Enabled: url != "", PostgresURL: url}
}

func loadRedisConfig() (RedisConfig, []error) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		return RedisConfig{Enabled: false}, nil
	}

	var errs []error
	db, err := getEnvInt("REDIS_DB", 0)
	if err != nil {
		errs = append(errs, err)
	}
	ttl, err := getEnvInt("REDIS_TTL_SECONDS", 86400)
	if err != nil {
		errs = append(errs, err)
	}

	return RedisConfig{
		Enabled:  true,
		Address:  addr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
		TTL:      time.Duration(ttl) * time.Second,
	}, errs
}

func validate(cfg *Config) []error {
	var errs []error
	positive := func(key string, v int64) {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0", key))
		}
	}

	positive("RATE_LIMIT", int64(cfg.RateLimit.Limit))
	positive("RATE_WINDOW_SECONDS", int64(cfg.RateLimit.Window))
	positive("MAX_ATTEMPTS", int64(cfg.Dispatcher.MaxAttempts))
	positive("RETRY_BACKOFF_BASE_MS", int64(cfg.Dispatcher.BackoffBase))
	positive("CONTENT_MAX", int64(cfg.Dispatcher.ContentMax))
	positive("RECENT_LOG_SIZE", int64(cfg.Stats.RecentSize))
	positive("BREAKER_FAILURE_THRESHOLD", int64(cfg.Breaker.FailureThreshold))
	positive("INBOUND_RATE_PER_SECOND", int64(cfg.Inbound.RatePerSecond))
	positive("INBOUND_BURST", int64(cfg.Inbound.Burst))

	if cfg.Dispatcher.QueueMaxDepth < 0 {
		errs = append(errs, errors.New("QUEUE_MAX_DEPTH must be >= 0"))
	}
	if cfg.Dispatcher.BackoffMax < cfg.Dispatcher.BackoffBase {
		errs = append(errs, errors.New("RETRY_BACKOFF_MAX_MS must be >= RETRY_BACKOFF_BASE_MS"))
	}
	if cfg.Bulk.Wait < 0 {
		errs = append(errs, errors.New("BULK_WAIT_SECONDS must be >= 0"))
	}
	if cfg.Bulk.MaxRecipients < 0 {
		errs = append(errs, errors.New("BULK_MAX_RECIPIENTS must be >= 0"))
	}
	if cfg.Server.ShutdownTimeout <= 0 {
		errs = append(errs, errors.New("SHUTDOWN_TIMEOUT_SECONDS must be > 0"))
	}
	if cfg.Gateway.URL != "" && !strings.HasPrefix(cfg.Gateway.URL, "http://") && !strings.HasPrefix(cfg.Gateway.URL, "https://") {
		errs = append(errs, fmt.Errorf("GATEWAY_URL must be an http(s) URL: %q", cfg.Gateway.URL))
	}
	if cfg.Log.Format != "text" && cfg.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json: %q", cfg.Log.Format))
	}
	return errs
}

func requireEnv(key string) (string, error) {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return "", fmt.Errorf("missing required env var: %s", key)
	}
	return val, nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("invalid int for env %s: %q", key, v)
	}
	return i, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return def, fmt.Errorf("invalid bool for env %s: %q", key, v)
	}
	return b, nil
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL: %q", s)
	}
	return level, nil
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
