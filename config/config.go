package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"oddsflow/models"
)

type Config struct {
	Oddsflow  OddsflowConfig  `yaml:"oddsflow"`
	Stream    StreamConfig    `yaml:"stream"`
	Rest      RestConfig      `yaml:"rest"`
	Backoff   BackoffConfig   `yaml:"backoff"`
	Consumer  ConsumerConfig  `yaml:"consumer"`
	Backfill  BackfillConfig  `yaml:"backfill"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Storage   StorageConfig   `yaml:"storage"`
	Export    ExportConfig    `yaml:"export"`
	Dashboard DashboardConfig `yaml:"dashboard"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type OddsflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

const (
	AuthModeQuery  = "query"
	AuthModeHeader = "header"
)

// StreamConfig describes one odds stream subscription.
type StreamConfig struct {
	URL                   string        `yaml:"url"`
	Sport                 string        `yaml:"sport"`
	APIKey                string        `yaml:"api_key"`
	AuthMode              string        `yaml:"auth_mode"`
	Sportsbooks           []string      `yaml:"sportsbooks"`
	Leagues               []string      `yaml:"leagues"`
	Markets               []string      `yaml:"markets"`
	FixtureIDs            []string      `yaml:"fixture_ids"`
	IncludeFixtureUpdates bool          `yaml:"include_fixture_updates"`
	LastEntryID           string        `yaml:"last_entry_id"`
	ConnectTimeout        time.Duration `yaml:"connect_timeout"`
	ReadBufferBytes       int           `yaml:"read_buffer_bytes"`
}

type RestConfig struct {
	URL               string        `yaml:"url"`
	APIKey            string        `yaml:"api_key"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`
	Burst             int           `yaml:"burst"`
}

type BackoffConfig struct {
	Min    time.Duration `yaml:"min"`
	Max    time.Duration `yaml:"max"`
	Factor float64       `yaml:"factor"`
	Jitter bool          `yaml:"jitter"`
}

type ConsumerConfig struct {
	Interval    time.Duration `yaml:"interval"`
	Filter      string        `yaml:"filter"`
	SinkTimeout time.Duration `yaml:"sink_timeout"`
}

type BackfillConfig struct {
	Workers      int      `yaml:"workers"`
	Quota        int      `yaml:"quota"`
	Sportsbooks  []string `yaml:"sportsbooks"`
	FixturesFile string   `yaml:"fixtures_file"`
	Output       string   `yaml:"output"`
}

type ChannelsConfig struct {
	StatusBuffer int `yaml:"status_buffer"`
}

type StorageConfig struct {
	S3    S3Config    `yaml:"s3"`
	Kafka KafkaConfig `yaml:"kafka"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	Format          string `yaml:"format"`
	Compression     string `yaml:"compression"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type KafkaConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Brokers      []string      `yaml:"brokers"`
	Topic        string        `yaml:"topic"`
	BatchSize    int           `yaml:"batch_size"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type ExportConfig struct {
	Table TableExportConfig `yaml:"table"`
	CSV   CSVExportConfig   `yaml:"csv"`
}

type TableExportConfig struct {
	Enabled bool `yaml:"enabled"`
	Limit   int  `yaml:"limit"`
}

type CSVExportConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type DashboardConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	LogLimit int    `yaml:"log_limit"`
}

type MetricsConfig struct {
	Prometheus bool             `yaml:"prometheus"`
	CloudWatch CloudWatchConfig `yaml:"cloudwatch"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
	Region    string `yaml:"region"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	MaxAge int    `yaml:"max_age"`
}

// Default returns a configuration with every tunable set. LoadConfig
// unmarshals the file on top of it.
func Default() Config {
	return Config{
		Stream: StreamConfig{
			URL:                   "https://api.opticodds.com/api/v3/stream/odds",
			AuthMode:              AuthModeQuery,
			IncludeFixtureUpdates: true,
			ConnectTimeout:        10 * time.Second,
			ReadBufferBytes:       64 * 1024,
		},
		Rest: RestConfig{
			URL:               "https://api.opticodds.com/api/v3",
			Timeout:           15 * time.Second,
			RequestsPerSecond: 10,
			Burst:             5,
		},
		Backoff: BackoffConfig{
			Min:    time.Second,
			Max:    30 * time.Second,
			Factor: 2,
		},
		Consumer: ConsumerConfig{
			Interval:    10 * time.Second,
			Filter:      string(models.FilterActive),
			SinkTimeout: 5 * time.Second,
		},
		Backfill: BackfillConfig{
			Workers: 15,
			Quota:   100,
			Output:  "odds_backfill.csv",
		},
		Channels: ChannelsConfig{StatusBuffer: 256},
		Storage: StorageConfig{
			S3:    S3Config{Format: "parquet", Compression: "snappy", Prefix: "odds"},
			Kafka: KafkaConfig{BatchSize: 500, WriteTimeout: 10 * time.Second},
		},
		Export: ExportConfig{
			Table: TableExportConfig{Enabled: true, Limit: 50},
		},
		Dashboard: DashboardConfig{Addr: ":8080", LogLimit: 200},
		Metrics: MetricsConfig{
			Prometheus: true,
			CloudWatch: CloudWatchConfig{Namespace: "Oddsflow"},
		},
		Logging: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnv(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

func applyEnv(config *Config) {
	if v := strings.TrimSpace(os.Getenv("ODDS_API_KEY")); v != "" {
		config.Stream.APIKey = v
		config.Rest.APIKey = v
	}
	if config.Rest.APIKey == "" {
		config.Rest.APIKey = config.Stream.APIKey
	}

	// Override S3 settings from environment variables if available
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if config.Metrics.CloudWatch.Enabled && config.Metrics.CloudWatch.Region == "" {
		config.Metrics.CloudWatch.Region = strings.TrimSpace(os.Getenv("AWS_REGION"))
	}

	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		var brokers []string
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				brokers = append(brokers, b)
			}
		}
		config.Storage.Kafka.Brokers = brokers
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Oddsflow.Name == "" {
		return fmt.Errorf("oddsflow.name is required")
	}

	if cfg.Oddsflow.Version == "" {
		return fmt.Errorf("oddsflow.version is required")
	}

	if err := cfg.Stream.Validate(); err != nil {
		return err
	}

	if _, err := url.ParseRequestURI(cfg.Rest.URL); err != nil {
		return &ConfigurationError{Field: "rest.url", Reason: err.Error()}
	}
	if cfg.Rest.RequestsPerSecond <= 0 {
		return fmt.Errorf("rest.requests_per_second must be greater than 0")
	}

	if cfg.Backoff.Min <= 0 {
		return fmt.Errorf("backoff.min must be greater than 0")
	}
	if cfg.Backoff.Max < cfg.Backoff.Min {
		return fmt.Errorf("backoff.max must not be lower than backoff.min")
	}
	if cfg.Backoff.Factor < 1 {
		return fmt.Errorf("backoff.factor must be at least 1")
	}

	if cfg.Consumer.Interval <= 0 {
		return fmt.Errorf("consumer.interval must be greater than 0")
	}
	if _, err := models.ParseStatusFilter(cfg.Consumer.Filter); err != nil {
		return fmt.Errorf("consumer.filter: %w", err)
	}

	if cfg.Channels.StatusBuffer <= 0 {
		return fmt.Errorf("channels.status_buffer must be greater than 0")
	}

	if cfg.Backfill.Workers <= 0 {
		return fmt.Errorf("backfill.workers must be greater than 0")
	}
	if cfg.Backfill.Quota <= 0 {
		return fmt.Errorf("backfill.quota must be greater than 0")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
		switch cfg.Storage.S3.Format {
		case "parquet", "csv":
		default:
			return fmt.Errorf("storage.s3.format must be parquet or csv")
		}
	}

	if cfg.Storage.Kafka.Enabled {
		if len(cfg.Storage.Kafka.Brokers) == 0 {
			return fmt.Errorf("storage.kafka.brokers is required when Kafka is enabled")
		}
		if cfg.Storage.Kafka.Topic == "" {
			return fmt.Errorf("storage.kafka.topic is required when Kafka is enabled")
		}
	}

	if cfg.Export.CSV.Enabled && cfg.Export.CSV.Path == "" {
		return fmt.Errorf("export.csv.path is required when CSV export is enabled")
	}

	if cfg.Dashboard.Enabled && cfg.Dashboard.Addr == "" {
		return fmt.Errorf("dashboard.addr is required when the dashboard is enabled")
	}

	if cfg.Metrics.CloudWatch.Enabled && cfg.Metrics.CloudWatch.Namespace == "" {
		return fmt.Errorf("metrics.cloudwatch.namespace is required when CloudWatch is enabled")
	}

	return nil
}

// ConfigurationError reports a setting that makes a connection attempt
// pointless. It is never retried.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsConfigurationError reports whether err wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var cfgErr *ConfigurationError
	return errors.As(err, &cfgErr)
}

// Validate checks the subscription before any byte is sent.
func (s StreamConfig) Validate() error {
	u, err := url.ParseRequestURI(s.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &ConfigurationError{Field: "stream.url", Reason: fmt.Sprintf("%q is not an http(s) URL", s.URL)}
	}
	if strings.TrimSpace(s.Sport) == "" {
		return &ConfigurationError{Field: "stream.sport", Reason: "is required"}
	}
	if strings.TrimSpace(s.APIKey) == "" {
		return &ConfigurationError{Field: "stream.api_key", Reason: "is required (set ODDS_API_KEY)"}
	}
	switch s.AuthMode {
	case AuthModeQuery, AuthModeHeader, "":
	default:
		return &ConfigurationError{Field: "stream.auth_mode", Reason: fmt.Sprintf("%q must be query or header", s.AuthMode)}
	}
	if len(s.Sportsbooks) == 0 {
		return &ConfigurationError{Field: "stream.sportsbooks", Reason: "at least one sportsbook is required"}
	}

	filters := map[string][]string{
		"stream.sportsbooks": s.Sportsbooks,
		"stream.leagues":     s.Leagues,
		"stream.markets":     s.Markets,
		"stream.fixture_ids": s.FixtureIDs,
	}
	for field, values := range filters {
		for _, v := range values {
			if strings.TrimSpace(v) == "" {
				return &ConfigurationError{Field: field, Reason: "contains an empty value"}
			}
		}
	}
	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
