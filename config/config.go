package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type API struct {
	BaseURL string `yaml:"baseUrl"`
}

type Realtime struct {
	ReconnectAttempts int    `yaml:"reconnectAttempts"` // default 5
	ReconnectDelay    string `yaml:"reconnectDelay"`    // default 3s
	Heartbeat         string `yaml:"heartbeat"`         // default 30s
}

type Call struct {
	RingTimeout string `yaml:"ringTimeout"` // default 45s
}

type Store struct {
	Path string `yaml:"path"`
}

type Logging struct {
	Env       string `yaml:"env"`       // dev|prod
	Service   string `yaml:"service"`   // realtime-client
	Version   string `yaml:"version"`   // v0.1.0
	Backend   string `yaml:"backend"`   // std|zap
	AddSource bool   `yaml:"addSource"` // false|true
	Debug     bool   `yaml:"debug"`     // false|true
}

type Config struct {
	API      API      `yaml:"api"`
	Realtime Realtime `yaml:"realtime"`
	Call     Call     `yaml:"call"`
	Store    Store    `yaml:"store"`
	Logging  Logging  `yaml:"logging"`
}

func LoadConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "./config/config.yaml"
	}
	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
	case os.IsNotExist(err) && os.Getenv("CONFIG_PATH") == "":
		// client runs fine on defaults; only an explicit path must exist
	default:
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.API.BaseURL == "" {
		c.API.BaseURL = os.Getenv("API_BASE_URL")
	}
	if c.API.BaseURL == "" {
		return errors.New("api.baseUrl is required")
	}
	if c.Realtime.ReconnectAttempts <= 0 {
		c.Realtime.ReconnectAttempts = 5
	}
	if c.Store.Path == "" {
		c.Store.Path = "./data"
	}
	if c.Logging.Service == "" {
		c.Logging.Service = "realtime-client"
	}
	if c.Logging.Env == "" {
		c.Logging.Env = "dev"
	}
	if c.Logging.Version == "" {
		c.Logging.Version = "v0.1.0"
	}
	if c.Logging.Backend == "" {
		c.Logging.Backend = "std"
	}
	return nil
}

func (c *Config) ReconnectDelay() time.Duration {
	return parseDurationOr(3*time.Second, c.Realtime.ReconnectDelay)
}

func (c *Config) Heartbeat() time.Duration {
	return parseDurationOr(30*time.Second, c.Realtime.Heartbeat)
}

func (c *Config) RingTimeout() time.Duration {
	return parseDurationOr(45*time.Second, c.Call.RingTimeout)
}

// helper для парсинга timeout-ов
func parseDurationOr(def time.Duration, s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}
