package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MSYNC_DATABASE_PASSWORD
const EnvPrefix = "MSYNC"

// Config holds all application configuration
type Config struct {
	App         AppConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Log         LogConfig
	HTTP        HTTPConfig
	Vendor      VendorConfig
	Carrier     CarrierConfig
	Feed        FeedConfig
	Storage     StorageConfig
	Scheduler   SchedulerConfig
	Idempotency IdempotencyConfig
	Telemetry   TelemetryConfig
	Profiler    ProfilerConfig
	Swagger     SwaggerConfig
}

// AppConfig holds application-specific settings
type AppConfig struct {
	Name string
	Env  string
	Port string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime int // in minutes
	ConnMaxIdleTime int // in minutes
}

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration
	MaxHeaderBytes int
	MaxBodySize    int64
	// WebhookToken, when set, must be sent as X-Webhook-Token on carrier webhooks
	WebhookToken   string
	TrustedProxies []string
	// RequestTimeout bounds handler contexts; 0 disables it
	RequestTimeout time.Duration
	// RateLimit is the per-client request rate per second; 0 disables limiting
	RateLimit      float64
	RateLimitBurst int
}

// VendorConfig holds the marketplace API settings
type VendorConfig struct {
	BaseURL                string
	TokenURL               string
	ClientID               string
	ClientSecret           string
	Username               string
	Password               string
	Scope                  string
	TimeoutSeconds         int
	MaxUnauthorizedRetries int
	CallDelay              time.Duration
	// TokenLease is how long an issued token is trusted locally
	TokenLease time.Duration
}

// CarrierConfig holds the carrier tracking API settings
type CarrierConfig struct {
	BaseURL        string
	APIKey         string
	APIKeyHeader   string
	TimeoutSeconds int
	PollDelay      time.Duration
}

// FeedConfig holds the carrier batch feed settings
type FeedConfig struct {
	// Source is "local" or "s3"
	Source         string
	Dir            string
	Pattern        string
	Delimiter      string
	DefaultCarrier string
	// CustomerNumber filters feed rows to this shop's account
	CustomerNumber string
}

// StorageConfig holds the S3 settings for the "s3" feed source
type StorageConfig struct {
	Bucket          string
	Region          string
	Prefix          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	UsePathStyle    bool
}

// SchedulerConfig holds the periodic job settings
type SchedulerConfig struct {
	Enabled              bool
	FetchOrdersInterval  time.Duration
	PollTrackingInterval time.Duration
	ImportFeedInterval   time.Duration
	JobTimeout           time.Duration
}

// IdempotencyConfig holds duplicate-event suppression settings
type IdempotencyConfig struct {
	Enabled bool
	// Backend is "redis" or "memory"
	Backend string
	TTL     time.Duration
}

// TelemetryConfig holds OpenTelemetry configuration
type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string  // OTEL Collector gRPC endpoint, e.g. "localhost:4317"
	SamplingRatio     float64 // 0.0-1.0
	ServiceName       string
	Insecure          bool // development only
	MetricsInterval   time.Duration
	LogsEnabled       bool
	DBTraceEnabled    bool
	DBLogFullSQL      bool // dev only
}

// ProfilerConfig holds Pyroscope continuous profiling settings
type ProfilerConfig struct {
	Enabled           bool
	ServerAddress     string // e.g. "http://pyroscope:4040"
	ApplicationName   string
	BasicAuthUser     string
	BasicAuthPassword string
	// ProfileTypes lists profile names such as cpu, alloc_space, goroutines
	ProfileTypes         []string
	MutexProfileFraction int
	BlockProfileRate     int
	DisableGCRuns        bool
	// SpanProfiles links CPU profiles to trace spans; needs telemetry.enabled
	SpanProfiles bool
}

// SwaggerConfig controls the /swagger API docs route
type SwaggerConfig struct {
	Enabled bool
	// AllowedIPs restricts access to these IPs or CIDRs; empty allows everyone
	AllowedIPs []string
}

// Load loads configuration from config.toml and MSYNC_ environment variables.
// Priority (highest to lowest): environment, config.toml, built-in defaults.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/marketsync")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}
	return load(v)
}

func load(v *viper.Viper) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		App: AppConfig{
			Name: v.GetString("app.name"),
			Env:  v.GetString("app.env"),
			Port: v.GetString("app.port"),
		},
		Database: DatabaseConfig{
			Host:            v.GetString("database.host"),
			Port:            v.GetInt("database.port"),
			User:            v.GetString("database.user"),
			Password:        v.GetString("database.password"),
			DBName:          v.GetString("database.dbname"),
			SSLMode:         v.GetString("database.sslmode"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetInt("database.conn_max_lifetime"),
			ConnMaxIdleTime: v.GetInt("database.conn_max_idle_time"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("redis.host"),
			Port:     v.GetInt("redis.port"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		HTTP: HTTPConfig{
			ReadTimeout:    v.GetDuration("http.read_timeout"),
			WriteTimeout:   v.GetDuration("http.write_timeout"),
			IdleTimeout:    v.GetDuration("http.idle_timeout"),
			MaxHeaderBytes: v.GetInt("http.max_header_bytes"),
			MaxBodySize:    v.GetInt64("http.max_body_size"),
			WebhookToken:   v.GetString("http.webhook_token"),
			TrustedProxies: v.GetStringSlice("http.trusted_proxies"),
			RequestTimeout: v.GetDuration("http.request_timeout"),
			RateLimit:      v.GetFloat64("http.rate_limit"),
			RateLimitBurst: v.GetInt("http.rate_limit_burst"),
		},
		Vendor: VendorConfig{
			BaseURL:                v.GetString("vendor.base_url"),
			TokenURL:               v.GetString("vendor.token_url"),
			ClientID:               v.GetString("vendor.client_id"),
			ClientSecret:           v.GetString("vendor.client_secret"),
			Username:               v.GetString("vendor.username"),
			Password:               v.GetString("vendor.password"),
			Scope:                  v.GetString("vendor.scope"),
			TimeoutSeconds:         v.GetInt("vendor.timeout_seconds"),
			MaxUnauthorizedRetries: v.GetInt("vendor.max_unauthorized_retries"),
			CallDelay:              v.GetDuration("vendor.call_delay"),
			TokenLease:             v.GetDuration("vendor.token_lease"),
		},
		Carrier: CarrierConfig{
			BaseURL:        v.GetString("carrier.base_url"),
			APIKey:         v.GetString("carrier.api_key"),
			APIKeyHeader:   v.GetString("carrier.api_key_header"),
			TimeoutSeconds: v.GetInt("carrier.timeout_seconds"),
			PollDelay:      v.GetDuration("carrier.poll_delay"),
		},
		Feed: FeedConfig{
			Source:         v.GetString("feed.source"),
			Dir:            v.GetString("feed.dir"),
			Pattern:        v.GetString("feed.pattern"),
			Delimiter:      v.GetString("feed.delimiter"),
			DefaultCarrier: v.GetString("feed.default_carrier"),
			CustomerNumber: v.GetString("feed.customer_number"),
		},
		Storage: StorageConfig{
			Bucket:          v.GetString("storage.bucket"),
			Region:          v.GetString("storage.region"),
			Prefix:          v.GetString("storage.prefix"),
			Endpoint:        v.GetString("storage.endpoint"),
			AccessKeyID:     v.GetString("storage.access_key_id"),
			SecretAccessKey: v.GetString("storage.secret_access_key"),
			UsePathStyle:    v.GetBool("storage.use_path_style"),
		},
		Scheduler: SchedulerConfig{
			Enabled:              v.GetBool("scheduler.enabled"),
			FetchOrdersInterval:  v.GetDuration("scheduler.fetch_orders_interval"),
			PollTrackingInterval: v.GetDuration("scheduler.poll_tracking_interval"),
			ImportFeedInterval:   v.GetDuration("scheduler.import_feed_interval"),
			JobTimeout:           v.GetDuration("scheduler.job_timeout"),
		},
		Idempotency: IdempotencyConfig{
			Enabled: v.GetBool("idempotency.enabled"),
			Backend: v.GetString("idempotency.backend"),
			TTL:     v.GetDuration("idempotency.ttl"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricsInterval:   v.GetDuration("telemetry.metrics_interval"),
			LogsEnabled:       v.GetBool("telemetry.logs_enabled"),
			DBTraceEnabled:    v.GetBool("telemetry.db_trace_enabled"),
			DBLogFullSQL:      v.GetBool("telemetry.db_log_full_sql"),
		},
		Profiler: ProfilerConfig{
			Enabled:              v.GetBool("profiler.enabled"),
			ServerAddress:        v.GetString("profiler.server_address"),
			ApplicationName:      v.GetString("profiler.application_name"),
			BasicAuthUser:        v.GetString("profiler.basic_auth_user"),
			BasicAuthPassword:    v.GetString("profiler.basic_auth_password"),
			ProfileTypes:         v.GetStringSlice("profiler.profile_types"),
			MutexProfileFraction: v.GetInt("profiler.mutex_profile_fraction"),
			BlockProfileRate:     v.GetInt("profiler.block_profile_rate"),
			DisableGCRuns:        v.GetBool("profiler.disable_gc_runs"),
			SpanProfiles:         v.GetBool("profiler.span_profiles"),
		},
		Swagger: SwaggerConfig{
			Enabled:    v.GetBool("swagger.enabled"),
			AllowedIPs: v.GetStringSlice("swagger.allowed_ips"),
		},
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults replaces zero values that would otherwise disable a component
func (c *Config) applyDefaults() {
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Scheduler.JobTimeout <= 0 {
		c.Scheduler.JobTimeout = 20 * time.Minute
	}
	if c.Idempotency.TTL <= 0 {
		c.Idempotency.TTL = 24 * time.Hour
	}
	if c.Telemetry.MetricsInterval <= 0 {
		c.Telemetry.MetricsInterval = 60 * time.Second
	}
}

// setDefaults registers built-in defaults. Registering every key also lets
// AutomaticEnv resolve keys that appear in no config file.
func setDefaults(v *viper.Viper) {
	defaults := map[string]any{
		"app.name": "marketsync",
		"app.env":  "development",
		"app.port": "8080",

		"database.host":               "localhost",
		"database.port":               5432,
		"database.user":               "postgres",
		"database.password":           "",
		"database.dbname":             "marketsync",
		"database.sslmode":            "disable",
		"database.max_open_conns":     25,
		"database.max_idle_conns":     5,
		"database.conn_max_lifetime":  60,
		"database.conn_max_idle_time": 30,

		"redis.host":     "localhost",
		"redis.port":     6379,
		"redis.password": "",
		"redis.db":       0,

		"log.level":  "info",
		"log.format": "console",
		"log.output": "stdout",

		"http.read_timeout":     15 * time.Second,
		"http.write_timeout":    15 * time.Second,
		"http.idle_timeout":     60 * time.Second,
		"http.max_header_bytes": 1 << 20,
		"http.max_body_size":    int64(10 << 20),
		"http.webhook_token":    "",
		"http.trusted_proxies":  []string{},
		"http.request_timeout":  60 * time.Second,
		"http.rate_limit":       20.0,
		"http.rate_limit_burst": 40,

		"vendor.base_url":                 "",
		"vendor.token_url":                "",
		"vendor.client_id":                "",
		"vendor.client_secret":            "",
		"vendor.username":                 "",
		"vendor.password":                 "",
		"vendor.scope":                    "",
		"vendor.timeout_seconds":          30,
		"vendor.max_unauthorized_retries": 1,
		"vendor.call_delay":               3 * time.Second,
		"vendor.token_lease":              3000 * time.Second,

		"carrier.base_url":        "",
		"carrier.api_key":         "",
		"carrier.api_key_header":  "DHL-API-Key",
		"carrier.timeout_seconds": 30,
		"carrier.poll_delay":      time.Second,

		"feed.source":          "local",
		"feed.dir":             "./feeds",
		"feed.pattern":         "*.csv",
		"feed.delimiter":       ";",
		"feed.default_carrier": "DHL",
		"feed.customer_number": "",

		"storage.bucket":            "",
		"storage.region":            "eu-central-1",
		"storage.prefix":            "carrier-feed/",
		"storage.endpoint":          "",
		"storage.access_key_id":     "",
		"storage.secret_access_key": "",
		"storage.use_path_style":    false,

		"scheduler.enabled":                true,
		"scheduler.fetch_orders_interval":  15 * time.Minute,
		"scheduler.poll_tracking_interval": time.Hour,
		"scheduler.import_feed_interval":   30 * time.Minute,
		"scheduler.job_timeout":            20 * time.Minute,

		"idempotency.enabled": true,
		"idempotency.backend": "memory",
		"idempotency.ttl":     24 * time.Hour,

		"telemetry.enabled":            false,
		"telemetry.collector_endpoint": "localhost:4317",
		"telemetry.sampling_ratio":     1.0,
		"telemetry.service_name":       "marketsync",
		"telemetry.insecure":           false,
		"telemetry.metrics_interval":   60 * time.Second,
		"telemetry.logs_enabled":       false,
		"telemetry.db_trace_enabled":   false,
		"telemetry.db_log_full_sql":    false,

		"profiler.enabled":                false,
		"profiler.server_address":         "http://localhost:4040",
		"profiler.application_name":       "marketsync",
		"profiler.basic_auth_user":        "",
		"profiler.basic_auth_password":    "",
		"profiler.profile_types":          []string{"cpu", "alloc_space", "inuse_space", "goroutines"},
		"profiler.mutex_profile_fraction": 5,
		"profiler.block_profile_rate":     5,
		"profiler.disable_gc_runs":        false,
		"profiler.span_profiles":          false,

		"swagger.enabled":     false,
		"swagger.allowed_ips": []string{},
	}
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c.Database.MaxOpenConns <= 0 {
		return fmt.Errorf("database.max_open_conns must be positive")
	}
	if c.Database.MaxIdleConns < 0 {
		return fmt.Errorf("database.max_idle_conns cannot be negative")
	}
	if c.Database.MaxIdleConns > c.Database.MaxOpenConns {
		return fmt.Errorf("database.max_idle_conns (%d) cannot exceed database.max_open_conns (%d)",
			c.Database.MaxIdleConns, c.Database.MaxOpenConns)
	}

	switch c.Feed.Source {
	case "local":
	case "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket is required when feed.source is s3")
		}
	default:
		return fmt.Errorf("feed.source must be local or s3, got %q", c.Feed.Source)
	}
	if len([]rune(c.Feed.Delimiter)) != 1 {
		return fmt.Errorf("feed.delimiter must be a single character, got %q", c.Feed.Delimiter)
	}

	switch c.Idempotency.Backend {
	case "memory", "redis":
	default:
		return fmt.Errorf("idempotency.backend must be memory or redis, got %q", c.Idempotency.Backend)
	}

	if c.HTTP.RateLimit < 0 || c.HTTP.RateLimitBurst < 0 {
		return fmt.Errorf("http.rate_limit and http.rate_limit_burst cannot be negative")
	}

	if c.Vendor.MaxUnauthorizedRetries < 0 {
		return fmt.Errorf("vendor.max_unauthorized_retries cannot be negative")
	}

	if c.App.Env == "production" {
		if c.Database.Password == "" {
			return fmt.Errorf("database.password is required in production")
		}
		if c.Database.SSLMode == "disable" {
			return fmt.Errorf("database.sslmode cannot be 'disable' in production")
		}
		if c.HTTP.WebhookToken == "" {
			return fmt.Errorf("http.webhook_token is required in production")
		}
		if c.Telemetry.DBLogFullSQL {
			return fmt.Errorf("telemetry.db_log_full_sql must be false in production to prevent sensitive data exposure in traces")
		}
		if c.Swagger.Enabled && len(c.Swagger.AllowedIPs) == 0 {
			return fmt.Errorf("swagger.allowed_ips is required when swagger is enabled in production")
		}
	}

	if c.Profiler.Enabled && (strings.TrimSpace(c.Profiler.ServerAddress) == "" || strings.TrimSpace(c.Profiler.ApplicationName) == "") {
		return fmt.Errorf("profiler.server_address and profiler.application_name are required when profiling is enabled")
	}
	if c.Profiler.SpanProfiles && !(c.Profiler.Enabled && c.Telemetry.Enabled) {
		return fmt.Errorf("profiler.span_profiles needs both profiler.enabled and telemetry.enabled")
	}

	if c.Telemetry.SamplingRatio < 0.0 || c.Telemetry.SamplingRatio > 1.0 {
		return fmt.Errorf("telemetry.sampling_ratio must be between 0.0 and 1.0, got %f", c.Telemetry.SamplingRatio)
	}
	return nil
}

// FeedDelimiter returns the feed column separator
func (f FeedConfig) FeedDelimiter() rune {
	return []rune(f.Delimiter)[0]
}

// DSN returns the database connection string with properly escaped values
func (d *DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:   d.DBName,
	}
	q := u.Query()
	q.Set("sslmode", d.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}
