package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Observer ObserverConfig `yaml:"observer"`
}

type ServerConfig struct {
	Port           int           `yaml:"port"`
	Host           string        `yaml:"host"`
	AuthToken      string        `yaml:"auth_token"`
	AllowedOrigins []string      `yaml:"allowed_origins"`
	MaxConnections int           `yaml:"max_connections"`
	DatabasePath   string        `yaml:"database_path"`
	DemoInterval   time.Duration `yaml:"demo_interval"`
}

type ObserverConfig struct {
	PollInterval      time.Duration `yaml:"poll_interval"`
	ReconnectBase     time.Duration `yaml:"reconnect_base"`
	ReconnectMax      time.Duration `yaml:"reconnect_max"`
	ReconnectAttempts int           `yaml:"reconnect_attempts"`
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Default returns the configuration used when no file overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			Host:         "0.0.0.0",
			DatabasePath: "jobstream.db",
			DemoInterval: 30 * time.Second,
		},
		Observer: ObserverConfig{
			PollInterval:      2 * time.Second,
			ReconnectBase:     time.Second,
			ReconnectMax:      30 * time.Second,
			ReconnectAttempts: 5,
		},
	}
}
