package config

import (
	"time"

	"github.com/upfleet/watchtower/internal/infra/mqtt"
	redisclient "github.com/upfleet/watchtower/internal/infra/redis"
	"github.com/upfleet/watchtower/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	MQTT      mqtt.Config        `yaml:"mqtt"`
	Redis     redisclient.Config `yaml:"redis"`
	Database  postgres.Config    `yaml:"database"`
	Heartbeat HeartbeatConfig    `yaml:"heartbeat"`
	Logging   LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP and gRPC server settings.
type ServerConfig struct {
	Port     int `yaml:"port"`
	GRPCPort int `yaml:"grpc_port"` // 0 disables the gRPC health service
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// HeartbeatConfig holds the liveness tuning knobs.
type HeartbeatConfig struct {
	// Interval is the expected beacon emit interval.
	Interval time.Duration `yaml:"interval"`

	// StalenessMultiplier scales Interval into the down threshold.
	StalenessMultiplier int `yaml:"staleness_multiplier"`

	// SweepInterval is the down-detector tick. Should be equal to or
	// finer than Interval.
	SweepInterval time.Duration `yaml:"sweep_interval"`
}
