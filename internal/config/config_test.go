package config

import (
	"os"
	"path/filepath"
	"testing"
)

func validConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			InstanceID:             "test",
			HTTPListen:             ":8080",
			LogLevel:               "info",
			ShutdownTimeoutSeconds: 30,
		},
		Feed: FeedConfig{
			Mode:    "tcp",
			TCPAddr: ":7000",
		},
		Postgres: PostgresConfig{
			DSN:      "postgres://localhost/test",
			MaxConns: 10,
			MinConns: 2,
		},
		Persist: PersistConfig{
			BatchSize:         500,
			FlushIntervalMs:   200,
			ChannelBufferSize: 16,
		},
		Retention: RetentionConfig{
			Days:     30,
			Timezone: "UTC",
		},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func TestValidate_NoDSN(t *testing.T) {
	cfg := validConfig()
	cfg.Postgres.DSN = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}

func TestValidate_TCPFeedRequiresAddr(t *testing.T) {
	cfg := validConfig()
	cfg.Feed.TCPAddr = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty feed.tcp_addr with feed.mode=tcp")
	}
}

func TestValidate_KafkaFeedRequiresBrokers(t *testing.T) {
	cfg := validConfig()
	cfg.Feed.Mode = "kafka"
	cfg.Feed.GroupID = "g1"
	cfg.Feed.Topics = []string{"t1"}
	cfg.Feed.FetchMaxBytes = 1024
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty feed.brokers with feed.mode=kafka")
	}
}

func TestValidate_KafkaFeedRequiresGroupID(t *testing.T) {
	cfg := validConfig()
	cfg.Feed.Mode = "kafka"
	cfg.Feed.Brokers = []string{"localhost:9092"}
	cfg.Feed.Topics = []string{"t1"}
	cfg.Feed.FetchMaxBytes = 1024
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty feed.group_id with feed.mode=kafka")
	}
}

func TestValidate_KafkaFeedRequiresTopics(t *testing.T) {
	cfg := validConfig()
	cfg.Feed.Mode = "kafka"
	cfg.Feed.Brokers = []string{"localhost:9092"}
	cfg.Feed.GroupID = "g1"
	cfg.Feed.FetchMaxBytes = 1024
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for empty feed.topics with feed.mode=kafka")
	}
}

func TestValidate_KafkaFeedValid(t *testing.T) {
	cfg := validConfig()
	cfg.Feed.Mode = "kafka"
	cfg.Feed.Brokers = []string{"localhost:9092"}
	cfg.Feed.GroupID = "g1"
	cfg.Feed.Topics = []string{"t1"}
	cfg.Feed.FetchMaxBytes = 52428800
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func TestValidate_UnknownFeedMode(t *testing.T) {
	cfg := validConfig()
	cfg.Feed.Mode = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown feed.mode")
	}
}

func TestValidate_FlushIntervalZero(t *testing.T) {
	cfg := validConfig()
	cfg.Persist.FlushIntervalMs = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for flush_interval_ms = 0")
	}
}

func TestValidate_FlushIntervalNegative(t *testing.T) {
	cfg := validConfig()
	cfg.Persist.FlushIntervalMs = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative flush_interval_ms")
	}
}

func TestValidate_BatchSizeZero(t *testing.T) {
	cfg := validConfig()
	cfg.Persist.BatchSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for batch_size = 0")
	}
}

func TestValidate_ChannelBufferSizeZero(t *testing.T) {
	cfg := validConfig()
	cfg.Persist.ChannelBufferSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for channel_buffer_size = 0")
	}
}

func TestValidate_RetentionDaysZero(t *testing.T) {
	cfg := validConfig()
	cfg.Retention.Days = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for retention.days = 0")
	}
}

func TestValidate_ShutdownTimeoutZero(t *testing.T) {
	cfg := validConfig()
	cfg.Service.ShutdownTimeoutSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for shutdown_timeout_seconds = 0")
	}
}

func TestValidate_InvalidTimezone(t *testing.T) {
	cfg := validConfig()
	cfg.Retention.Timezone = "Not/A/Real/Zone"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for invalid timezone")
	}
}

func TestValidate_ValidTimezone(t *testing.T) {
	cfg := validConfig()
	cfg.Retention.Timezone = "America/New_York"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func writeMinimalYAML(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	p := filepath.Join(dir, "config.yaml")
	data := `
feed:
  mode: tcp
  tcp_addr: ":7000"
postgres:
  dsn: "postgres://localhost/test"
`
	if err := os.WriteFile(p, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoad_EnvOverrideDSN(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("SWIFT_POSTGRES__DSN", "postgres://envhost/envdb")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Postgres.DSN != "postgres://envhost/envdb" {
		t.Errorf("expected DSN from env, got %q", cfg.Postgres.DSN)
	}
}

func TestLoad_EnvOverrideLogLevel(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("SWIFT_SERVICE__LOG_LEVEL", "debug")

	cfg, err := Load(p)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Service.LogLevel != "debug" {
		t.Errorf("expected log_level 'debug' from env, got %q", cfg.Service.LogLevel)
	}
}

func TestLoad_EnvInvalidFeedModeFailsValidation(t *testing.T) {
	p := writeMinimalYAML(t)
	t.Setenv("SWIFT_FEED__MODE", "carrier-pigeon")

	_, err := Load(p)
	if err == nil {
		t.Fatal("expected validation error for unknown feed.mode via env")
	}
}

func TestParseStartStop(t *testing.T) {
	c := &CLIFlags{StartStop: "50,35"}
	start, end, err := c.ParseStartStop()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if start != 50 || end != 35 {
		t.Errorf("ParseStartStop() = (%d, %d), want (50, 35)", start, end)
	}
}

func TestParseStartStop_Malformed(t *testing.T) {
	c := &CLIFlags{StartStop: "not-a-pair"}
	if _, _, err := c.ParseStartStop(); err == nil {
		t.Fatal("expected error for malformed --start_stop")
	}
}
