package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Heartbeat.Interval == 0 {
		cfg.Heartbeat.Interval = time.Second
	}
	if cfg.Heartbeat.StalenessMultiplier == 0 {
		cfg.Heartbeat.StalenessMultiplier = 3
	}
	if cfg.Heartbeat.SweepInterval == 0 {
		cfg.Heartbeat.SweepInterval = cfg.Heartbeat.Interval
	}
	if cfg.MQTT.QOS == 0 {
		cfg.MQTT.QOS = 1
	}
	if cfg.MQTT.TopicPrefix == "" {
		cfg.MQTT.TopicPrefix = "heartbeat"
	}

	return &cfg, nil
}
