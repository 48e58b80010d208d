package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Collector CollectorConfig `yaml:"collector"`
	Transport TransportConfig `yaml:"transport"`
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type CollectorConfig struct {
	Source   string        `yaml:"source"` // "speedtest" or "ping"
	Command  []string      `yaml:"command"`
	PingHost string        `yaml:"ping_host"`
	Timeout  time.Duration `yaml:"timeout"`
}

type TransportConfig struct {
	Endpoint string        `yaml:"endpoint"`
	Timeout  time.Duration `yaml:"timeout"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type StoreConfig struct {
	Backend    string `yaml:"backend"` // "csv" or "postgres"
	CSVPath    string `yaml:"csv_path"`
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Collector.Source == "" {
		c.Collector.Source = "speedtest"
	}
	if len(c.Collector.Command) == 0 {
		c.Collector.Command = []string{"speedtest", "--format=json"}
	}
	if c.Collector.Timeout == 0 {
		c.Collector.Timeout = 2 * time.Minute
	}
	if c.Transport.Timeout == 0 {
		c.Transport.Timeout = 15 * time.Second
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = "csv"
	}
	if c.Store.CSVPath == "" {
		c.Store.CSVPath = "./data/speedtest-log.csv"
	}
	if c.Store.Table == "" {
		c.Store.Table = "speedtest_log"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

func (c *Config) validate() error {
	switch c.Collector.Source {
	case "speedtest":
		if len(c.Collector.Command) == 0 {
			return fmt.Errorf("collector.command is required for the speedtest source")
		}
	case "ping":
		if c.Collector.PingHost == "" {
			return fmt.Errorf("collector.ping_host is required for the ping source")
		}
	default:
		return fmt.Errorf("collector.source must be \"speedtest\" or \"ping\", got %q", c.Collector.Source)
	}

	if c.Transport.Endpoint == "" {
		return fmt.Errorf("transport.endpoint is required")
	}

	switch c.Store.Backend {
	case "csv":
		if c.Store.CSVPath == "" {
			return fmt.Errorf("store.csv_path is required for the csv backend")
		}
	case "postgres":
		if c.Store.ConnString == "" {
			return fmt.Errorf("store.conn_string is required for the postgres backend")
		}
	default:
		return fmt.Errorf("store.backend must be \"csv\" or \"postgres\", got %q", c.Store.Backend)
	}

	return nil
}
