// Package config loads and validates bridge configuration from YAML files
// with environment-variable overrides. Each bridge binary reads the same
// document shape and only consults the sections it needs.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Pubtrans  PubtransConfig  `yaml:"pubtrans"`
	Cache     CacheConfig     `yaml:"cache"`
	OMM       OMMConfig       `yaml:"omm"`
	Alerts    AlertsConfig    `yaml:"alerts"`
	Metro     MetroConfig     `yaml:"metro"`
	Poller    PollerConfig    `yaml:"poller"`
	Rail      RailConfig      `yaml:"rail"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Bootstrap BootstrapConfig `yaml:"bootstrap"`
	Health    HealthConfig    `yaml:"health"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string      `yaml:"brokers"`
	ConsumerGroup string        `yaml:"consumerGroup"`
	DialTimeout   time.Duration `yaml:"dialTimeout"`
	Topics        KafkaTopics   `yaml:"topics"`
}

// KafkaTopics maps logical streams to their Kafka topic strings.
type KafkaTopics struct {
	Arrival      string `yaml:"arrival"`
	Departure    string `yaml:"departure"`
	Cancellation string `yaml:"cancellation"`
	TripUpdate   string `yaml:"tripUpdate"`
	ServiceAlert string `yaml:"serviceAlert"`
	MetroIn      string `yaml:"metroIn"`
	MetroOut     string `yaml:"metroOut"`
	DedupIn      string `yaml:"dedupIn"`
	DedupOut     string `yaml:"dedupOut"`
}

// RedisConfig holds enrichment cache connection parameters.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"poolSize"`
}

// PubtransConfig controls the arrival/departure extraction bridges.
type PubtransConfig struct {
	Table          string        `yaml:"table"`
	Timezone       string        `yaml:"timezone"`
	Interval       time.Duration `yaml:"interval"`
	WatermarkGrace time.Duration `yaml:"watermarkGrace"`
}

// CacheConfig controls the enrichment cache freshness gate.
type CacheConfig struct {
	EnableTimestampCheck bool `yaml:"enableTimestampCheck"`
	MaxAgeMinutes        int  `yaml:"maxAgeMinutes"`
}

// OMMConfig controls the cancellation bridge reading the operations
// message management store.
type OMMConfig struct {
	Timezone          string        `yaml:"timezone"`
	Interval          time.Duration `yaml:"interval"`
	CancellationsFrom string        `yaml:"cancellationsFrom"`
}

// AlertsConfig controls the service-alert bridge reading bulletins from the
// operations message management store.
type AlertsConfig struct {
	Timezone         string        `yaml:"timezone"`
	Interval         time.Duration `yaml:"interval"`
	QueryAllModified bool          `yaml:"queryAllModified"`
}

// MetroConfig controls the metro estimate bridge. Stops lists the metro
// stations in line order; each carries its stop number per direction.
type MetroConfig struct {
	ATSTimezone string      `yaml:"atsTimezone"`
	Stops       []MetroStop `yaml:"stops"`
}

// MetroStop is one metro station of the static stop table.
type MetroStop struct {
	ShortName   string   `yaml:"shortName"`
	StopNumbers []string `yaml:"stopNumbers"`
}

// PollerConfig controls the GTFS-RT trip-update cancellation poller.
type PollerConfig struct {
	URL                 string        `yaml:"url"`
	Interval            time.Duration `yaml:"interval"`
	Timeout             time.Duration `yaml:"timeout"`
	ServiceDayStartTime string        `yaml:"serviceDayStartTime"`
}

// RailConfig controls the rail trip-update bridge.
type RailConfig struct {
	URL            string        `yaml:"url"`
	Interval       time.Duration `yaml:"interval"`
	Timeout        time.Duration `yaml:"timeout"`
	UnhealthyAfter time.Duration `yaml:"unhealthyAfter"`
}

// DedupConfig controls the deduplicator's bounded cache and analytics.
type DedupConfig struct {
	CacheTTL      time.Duration   `yaml:"cacheTTL"`
	CacheCapacity int             `yaml:"cacheCapacity"`
	Analytics     AnalyticsConfig `yaml:"analytics"`
}

// AnalyticsConfig controls the duplicate-ratio reporting window and alerts.
type AnalyticsConfig struct {
	PollInterval            time.Duration `yaml:"pollInterval"`
	DuplicateRatioThreshold float64       `yaml:"duplicateRatioThreshold"`
	AlertOnThreshold        bool          `yaml:"alertOnThreshold"`
	AlertOnDuplicate        bool          `yaml:"alertOnDuplicate"`
}

// BootstrapConfig controls the enrichment cache bootstrap job.
type BootstrapConfig struct {
	TTLDays     int           `yaml:"ttlDays"`
	HistoryDays int           `yaml:"historyDays"`
	FutureDays  int           `yaml:"futureDays"`
	Interval    time.Duration `yaml:"interval"`
	Timezone    string        `yaml:"timezone"`
}

// HealthConfig controls the health server and the liveness threshold
// registered by each bridge.
type HealthConfig struct {
	Enabled        bool          `yaml:"enabled"`
	Port           int           `yaml:"port"`
	Endpoint       string        `yaml:"endpoint"`
	UnhealthyAfter time.Duration `yaml:"unhealthyAfter"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects values that would make a bridge misbehave silently.
func (c *Config) Validate() error {
	switch c.Pubtrans.Table {
	case "ptroi_arrival", "ptroi_departure":
	default:
		return fmt.Errorf("pubtrans.table must be ptroi_arrival or ptroi_departure, got %q", c.Pubtrans.Table)
	}
	switch strings.ToUpper(c.OMM.CancellationsFrom) {
	case "NOW", "PAST":
	default:
		return fmt.Errorf("omm.cancellationsFrom must be NOW or PAST, got %q", c.OMM.CancellationsFrom)
	}
	for name, loc := range map[string]string{
		"pubtrans.timezone":  c.Pubtrans.Timezone,
		"omm.timezone":       c.OMM.Timezone,
		"alerts.timezone":    c.Alerts.Timezone,
		"metro.atsTimezone":  c.Metro.ATSTimezone,
		"bootstrap.timezone": c.Bootstrap.Timezone,
	} {
		if _, err := time.LoadLocation(loc); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if !validClock(c.Poller.ServiceDayStartTime) {
		return fmt.Errorf("poller.serviceDayStartTime must be HH:mm:ss, got %q", c.Poller.ServiceDayStartTime)
	}
	if c.Dedup.CacheCapacity <= 0 {
		return fmt.Errorf("dedup.cacheCapacity must be positive, got %d", c.Dedup.CacheCapacity)
	}
	if c.Cache.MaxAgeMinutes < 0 {
		return fmt.Errorf("cache.maxAgeMinutes must not be negative, got %d", c.Cache.MaxAgeMinutes)
	}
	if !strings.HasPrefix(c.Health.Endpoint, "/") {
		return fmt.Errorf("health.endpoint must start with /, got %q", c.Health.Endpoint)
	}
	for name, d := range map[string]time.Duration{
		"pubtrans.interval":            c.Pubtrans.Interval,
		"omm.interval":                 c.OMM.Interval,
		"alerts.interval":              c.Alerts.Interval,
		"poller.interval":              c.Poller.Interval,
		"rail.interval":                c.Rail.Interval,
		"dedup.analytics.pollInterval": c.Dedup.Analytics.PollInterval,
		"bootstrap.interval":           c.Bootstrap.Interval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	return nil
}

// validClock reports whether s is HH:mm:ss with hours below 48.
func validClock(s string) bool {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return false
	}
	for i, limit := range []int{47, 59, 59} {
		if len(parts[i]) != 2 {
			return false
		}
		v, err := strconv.Atoi(parts[i])
		if err != nil || v < 0 || v > limit {
			return false
		}
	}
	return true
}

// defaultConfig returns a Config with defaults suitable for local
// development.
func defaultConfig() *Config {
	return &Config{
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "transitdata",
			User:            "transitdata",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "transitdata-bridge",
			DialTimeout:   5 * time.Second,
			Topics: KafkaTopics{
				Arrival:      "transitdata.pubtrans.arrival",
				Departure:    "transitdata.pubtrans.departure",
				Cancellation: "transitdata.cancellation",
				TripUpdate:   "transitdata.trip-update",
				ServiceAlert: "transitdata.service-alert",
				MetroIn:      "transitdata.metro-ats.raw",
				MetroOut:     "transitdata.metro-estimate",
				DedupIn:      "transitdata.vehicle-position.raw",
				DedupOut:     "transitdata.vehicle-position.dedup",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
		},
		Pubtrans: PubtransConfig{
			Table:          "ptroi_arrival",
			Timezone:       "Europe/Helsinki",
			Interval:       time.Second,
			WatermarkGrace: 5 * time.Second,
		},
		Cache: CacheConfig{
			EnableTimestampCheck: true,
			MaxAgeMinutes:        120,
		},
		OMM: OMMConfig{
			Timezone:          "Europe/Helsinki",
			Interval:          30 * time.Second,
			CancellationsFrom: "NOW",
		},
		Alerts: AlertsConfig{
			Timezone: "Europe/Helsinki",
			Interval: 30 * time.Second,
		},
		Metro: MetroConfig{
			ATSTimezone: "UTC",
		},
		Poller: PollerConfig{
			Interval:            30 * time.Second,
			Timeout:             10 * time.Second,
			ServiceDayStartTime: "04:30:00",
		},
		Rail: RailConfig{
			Interval:       10 * time.Second,
			Timeout:        10 * time.Second,
			UnhealthyAfter: 5 * time.Minute,
		},
		Dedup: DedupConfig{
			CacheTTL:      6 * time.Hour,
			CacheCapacity: 30000,
			Analytics: AnalyticsConfig{
				PollInterval:            time.Minute,
				DuplicateRatioThreshold: 0.9,
				AlertOnThreshold:        true,
			},
		},
		Bootstrap: BootstrapConfig{
			TTLDays:     7,
			HistoryDays: 1,
			FutureDays:  2,
			Interval:    time.Hour,
			Timezone:    "Europe/Helsinki",
		},
		Health: HealthConfig{
			Enabled:        true,
			Port:           8080,
			Endpoint:       "/health",
			UnhealthyAfter: 2 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads TB_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TB_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("TB_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("TB_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("TB_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("TB_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("TB_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("TB_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("TB_KAFKA_CONSUMER_GROUP"); v != "" {
		cfg.Kafka.ConsumerGroup = v
	}
	if v := os.Getenv("TB_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("TB_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TB_PUBTRANS_TABLE"); v != "" {
		cfg.Pubtrans.Table = v
	}
	if v := os.Getenv("TB_PUBTRANS_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Pubtrans.Interval = d
		}
	}
	if v := os.Getenv("TB_CACHE_ENABLE_TIMESTAMP_CHECK"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Cache.EnableTimestampCheck = b
		}
	}
	if v := os.Getenv("TB_CACHE_MAX_AGE_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxAgeMinutes = n
		}
	}
	if v := os.Getenv("TB_OMM_CANCELLATIONS_FROM"); v != "" {
		cfg.OMM.CancellationsFrom = v
	}
	if v := os.Getenv("TB_ALERTS_QUERY_ALL_MODIFIED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Alerts.QueryAllModified = b
		}
	}
	if v := os.Getenv("TB_POLLER_URL"); v != "" {
		cfg.Poller.URL = v
	}
	if v := os.Getenv("TB_RAIL_URL"); v != "" {
		cfg.Rail.URL = v
	}
	if v := os.Getenv("TB_DEDUP_CACHE_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Dedup.CacheCapacity = n
		}
	}
	if v := os.Getenv("TB_DEDUP_RATIO_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Dedup.Analytics.DuplicateRatioThreshold = f
		}
	}
	if v := os.Getenv("TB_HEALTH_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Health.Port = port
		}
	}
	if v := os.Getenv("TB_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TB_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
