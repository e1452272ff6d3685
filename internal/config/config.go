package config

import (
	"time"

	"github.com/KlinikCare/attendance-service/internal/client"
)

// Config is the application configuration loaded from YAML at boot. The
// detection configuration itself lives in the database (singleton row) and
// is reached through the ConfigStore, not this file.
type Config struct {
	Env         string       `yaml:"env"`
	Port        int          `yaml:"port"`
	DatabaseURL string       `yaml:"database_url"`
	RedisURL    string       `yaml:"redis_url"`
	Logger      LoggerConfig `yaml:"logger"`

	Redis client.RedisConfig `yaml:"redis"`

	Admin     AdminConfig     `yaml:"admin"`
	Detection DetectionBoot   `yaml:"detection"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Notify    NotifyConfig    `yaml:"notify"`
}

type LoggerConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

// AdminConfig guards the administrative endpoints (config reload, device
// force-single, unblock, purge).
type AdminConfig struct {
	JWTSigningKey string        `yaml:"jwt_signing_key"`
	TokenIssuer   string        `yaml:"token_issuer"`
	TokenMaxAge   time.Duration `yaml:"token_max_age"`
}

// DetectionBoot controls how the detection config snapshot is cached.
type DetectionBoot struct {
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	TravelSampleTTL time.Duration `yaml:"travel_sample_ttl"`
	SeedDefault     bool          `yaml:"seed_default"`
}

type TelemetryConfig struct {
	Kafka KafkaAuditConfig `yaml:"kafka"`
}

type KafkaAuditConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Brokers       []string      `yaml:"brokers"`
	TopicAudit    string        `yaml:"topic_audit"`
	TopicAlerts   string        `yaml:"topic_alerts"`
	BatchSize     int           `yaml:"batch_size"`
	FlushEvery    time.Duration `yaml:"flush_every"`
	QueueCapacity int           `yaml:"queue_capacity"`
	DialTimeout   time.Duration `yaml:"dial_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	TLS           bool          `yaml:"tls"`
}

type NotifyConfig struct {
	Enabled bool `yaml:"enabled"`
}
