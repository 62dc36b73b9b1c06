// Package config holds the service-level ambient configuration (YAML +
// env, koanf-driven) and the per-run CLI surface (kong-driven).
package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
)

type Config struct {
	Service   ServiceConfig   `koanf:"service"`
	Feed      FeedConfig      `koanf:"feed"`
	Postgres  PostgresConfig  `koanf:"postgres"`
	Persist   PersistConfig   `koanf:"persist"`
	Retention RetentionConfig `koanf:"retention"`
}

type ServiceConfig struct {
	InstanceID             string `koanf:"instance_id"`
	HTTPListen             string `koanf:"http_listen"`
	LogLevel               string `koanf:"log_level"`
	ShutdownTimeoutSeconds int    `koanf:"shutdown_timeout_seconds"`
}

// FeedConfig selects and configures the ingress FeedSource: either a
// literal line-oriented TCP listener or a Kafka consumer group over the
// same pipe-delimited lines.
type FeedConfig struct {
	Mode          string     `koanf:"mode"`
	TCPAddr       string     `koanf:"tcp_addr"`
	Brokers       []string   `koanf:"brokers"`
	ClientID      string     `koanf:"client_id"`
	GroupID       string     `koanf:"group_id"`
	Topics        []string   `koanf:"topics"`
	FetchMaxBytes int32      `koanf:"fetch_max_bytes"`
	TLS           TLSConfig  `koanf:"tls"`
	SASL          SASLConfig `koanf:"sasl"`
}

type TLSConfig struct {
	Enabled  bool   `koanf:"enabled"`
	CAFile   string `koanf:"ca_file"`
	CertFile string `koanf:"cert_file"`
	KeyFile  string `koanf:"key_file"`
}

type SASLConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Mechanism string `koanf:"mechanism"`
	Username  string `koanf:"username"`
	Password  string `koanf:"password"`
}

type PostgresConfig struct {
	DSN      string `koanf:"dsn"`
	MaxConns int32  `koanf:"max_conns"`
	MinConns int32  `koanf:"min_conns"`
}

type PersistConfig struct {
	BatchSize             int  `koanf:"batch_size"`
	FlushIntervalMs       int  `koanf:"flush_interval_ms"`
	ChannelBufferSize     int  `koanf:"channel_buffer_size"`
	StoreRawBytes         bool `koanf:"store_raw_bytes"`
	StoreRawBytesCompress bool `koanf:"store_raw_bytes_compress"`
}

type RetentionConfig struct {
	Days     int    `koanf:"days"`
	Timezone string `koanf:"timezone"`
}

func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	// Overlay environment variables: SWIFT_POSTGRES__DSN → postgres.dsn
	if err := k.Load(env.Provider("SWIFT_", ".", func(s string) string {
		s = strings.TrimPrefix(s, "SWIFT_")
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", ".")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("loading env config: %w", err)
	}

	cfg := &Config{
		Service: ServiceConfig{
			InstanceID:             "swift-predict-1",
			HTTPListen:             ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		Feed: FeedConfig{
			Mode:          "tcp",
			TCPAddr:       ":7000",
			ClientID:      "swift-predict",
			FetchMaxBytes: 52428800,
			GroupID:       "swift-predict",
		},
		Postgres: PostgresConfig{
			MaxConns: 20,
			MinConns: 2,
		},
		Persist: PersistConfig{
			BatchSize:             500,
			FlushIntervalMs:       200,
			ChannelBufferSize:     16,
			StoreRawBytesCompress: true,
		},
		Retention: RetentionConfig{
			Days:     30,
			Timezone: "UTC",
		},
	}

	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if len(cfg.Feed.Brokers) == 1 && strings.Contains(cfg.Feed.Brokers[0], ",") {
		cfg.Feed.Brokers = strings.Split(cfg.Feed.Brokers[0], ",")
	}
	if len(cfg.Feed.Topics) == 1 && strings.Contains(cfg.Feed.Topics[0], ",") {
		cfg.Feed.Topics = strings.Split(cfg.Feed.Topics[0], ",")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Postgres.DSN == "" {
		return fmt.Errorf("config: postgres.dsn is required")
	}
	switch c.Feed.Mode {
	case "tcp":
		if c.Feed.TCPAddr == "" {
			return fmt.Errorf("config: feed.tcp_addr is required when feed.mode is tcp")
		}
	case "kafka":
		if len(c.Feed.Brokers) == 0 {
			return fmt.Errorf("config: feed.brokers is required when feed.mode is kafka")
		}
		if c.Feed.GroupID == "" {
			return fmt.Errorf("config: feed.group_id is required when feed.mode is kafka")
		}
		if len(c.Feed.Topics) == 0 {
			return fmt.Errorf("config: feed.topics is required when feed.mode is kafka")
		}
		if c.Feed.FetchMaxBytes <= 0 {
			return fmt.Errorf("config: feed.fetch_max_bytes must be > 0 (got %d)", c.Feed.FetchMaxBytes)
		}
	default:
		return fmt.Errorf("config: feed.mode must be tcp or kafka (got %q)", c.Feed.Mode)
	}
	if c.Persist.FlushIntervalMs <= 0 {
		return fmt.Errorf("config: persist.flush_interval_ms must be > 0 (got %d)", c.Persist.FlushIntervalMs)
	}
	if c.Persist.BatchSize <= 0 {
		return fmt.Errorf("config: persist.batch_size must be > 0 (got %d)", c.Persist.BatchSize)
	}
	if c.Persist.ChannelBufferSize <= 0 {
		return fmt.Errorf("config: persist.channel_buffer_size must be > 0 (got %d)", c.Persist.ChannelBufferSize)
	}
	if c.Retention.Days <= 0 {
		return fmt.Errorf("config: retention.days must be > 0 (got %d)", c.Retention.Days)
	}
	if c.Postgres.MaxConns <= 0 {
		return fmt.Errorf("config: postgres.max_conns must be > 0 (got %d)", c.Postgres.MaxConns)
	}
	if c.Postgres.MinConns < 0 {
		return fmt.Errorf("config: postgres.min_conns must be >= 0 (got %d)", c.Postgres.MinConns)
	}
	if c.Service.ShutdownTimeoutSeconds <= 0 {
		return fmt.Errorf("config: service.shutdown_timeout_seconds must be > 0 (got %d)", c.Service.ShutdownTimeoutSeconds)
	}
	if _, err := time.LoadLocation(c.Retention.Timezone); err != nil {
		return fmt.Errorf("config: retention.timezone is invalid: %w", err)
	}
	return nil
}

// BuildTLSConfig creates a *tls.Config from the feed's TLS settings. Returns nil if TLS is disabled.
func (f *FeedConfig) BuildTLSConfig() (*tls.Config, error) {
	if !f.TLS.Enabled {
		return nil, nil
	}
	tlsCfg := &tls.Config{}
	if f.TLS.CAFile != "" {
		caPEM, err := os.ReadFile(f.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("reading CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsCfg.RootCAs = pool
	}
	if f.TLS.CertFile != "" && f.TLS.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(f.TLS.CertFile, f.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}
	return tlsCfg, nil
}

// BuildSASLMechanism creates a SASL mechanism from the feed's SASL settings. Returns nil if SASL is disabled.
func (f *FeedConfig) BuildSASLMechanism() sasl.Mechanism {
	if !f.SASL.Enabled {
		return nil
	}
	switch strings.ToUpper(f.SASL.Mechanism) {
	case "PLAIN":
		return plain.Auth{User: f.SASL.Username, Pass: f.SASL.Password}.AsMechanism()
	default:
		return nil
	}
}
