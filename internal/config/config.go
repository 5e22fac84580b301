// Package config loads runtime settings for the relay and the tether CLI
// from the environment, an optional .env file and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Relay holds the relay server settings.
type Relay struct {
	Host              string        `yaml:"host" env:"RELAY_HOST" env-default:"0.0.0.0"`
	Port              int           `yaml:"port" env:"RELAY_PORT" env-default:"8080"`
	SessionTTL        time.Duration `yaml:"session_ttl" env:"SESSION_TTL" env-default:"24h"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" env:"HEARTBEAT_INTERVAL" env-default:"30s"`
	CleanupInterval   time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL" env-default:"60s"`
	MaxPayloadBytes   int           `yaml:"max_payload_bytes" env:"MAX_PAYLOAD_BYTES" env-default:"1048576"`
	SendBuffer        int           `yaml:"send_buffer" env:"SEND_BUFFER" env-default:"64"`
	RateLimitRPS      float64       `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS" env-default:"5"`
	RateLimitBurst    int           `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST" env-default:"10"`
}

// Addr is the listen address.
func (r Relay) Addr() string { return net.JoinHostPort(r.Host, strconv.Itoa(r.Port)) }

// NATS configures lifecycle event publishing. An empty URL disables it.
type NATS struct {
	URL           string `yaml:"url" env:"NATS_URL"`
	SubjectPrefix string `yaml:"subject_prefix" env:"NATS_SUBJECT_PREFIX" env-default:"tether.relay"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"console"`
}

// Server is the relay binary configuration.
type Server struct {
	Relay Relay `yaml:"relay"`
	NATS  NATS  `yaml:"nats"`
	Log   Log   `yaml:"log"`
}

// Validate rejects settings the relay cannot run with.
func (c *Server) Validate() error {
	r := c.Relay
	switch {
	case r.Port <= 0 || r.Port > 65535:
		return fmt.Errorf("config: RELAY_PORT %d out of range", r.Port)
	case r.SessionTTL <= 0:
		return errors.New("config: SESSION_TTL must be positive")
	case r.HeartbeatInterval <= 0:
		return errors.New("config: HEARTBEAT_INTERVAL must be positive")
	case r.CleanupInterval <= 0:
		return errors.New("config: CLEANUP_INTERVAL must be positive")
	case r.MaxPayloadBytes <= 0:
		return errors.New("config: MAX_PAYLOAD_BYTES must be positive")
	case r.SendBuffer <= 0:
		return errors.New("config: SEND_BUFFER must be positive")
	case r.RateLimitRPS <= 0 || r.RateLimitBurst <= 0:
		return errors.New("config: RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	return validateLog(c.Log)
}

// Client is the tether CLI configuration.
type Client struct {
	Home     string `yaml:"home" env:"TETHER_HOME"`
	RelayURL string `yaml:"relay_url" env:"TETHER_RELAY" env-default:"ws://127.0.0.1:8080"`
	Log      Log    `yaml:"log"`
}

// Validate fills the home directory default and checks the log settings.
func (c *Client) Validate() error {
	if c.Home == "" {
		dir, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("config: resolve home: %w", err)
		}
		c.Home = filepath.Join(dir, ".tether")
	}
	return validateLog(c.Log)
}

func validateLog(l Log) error {
	if l.Format != "console" && l.Format != "json" {
		return fmt.Errorf("config: LOG_FORMAT must be console or json, got %q", l.Format)
	}
	return nil
}

// Sources names where settings come from. Empty fields are skipped; a
// missing default .env file is not an error.
type Sources struct {
	File    string
	EnvFile string
}

// LoadServer reads the relay configuration.
func LoadServer(src Sources) (*Server, error) {
	var cfg Server
	if err := load(src, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadClient reads the CLI configuration.
func LoadClient(src Sources) (*Client, error) {
	var cfg Client
	if err := load(src, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func load(src Sources, cfg any) error {
	if err := loadDotEnv(src.EnvFile); err != nil {
		return err
	}
	if src.File != "" {
		// ReadConfig applies the file, then the environment on top.
		if err := cleanenv.ReadConfig(src.File, cfg); err != nil {
			return fmt.Errorf("config: read %s: %w", src.File, err)
		}
		return nil
	}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return fmt.Errorf("config: read env: %w", err)
	}
	return nil
}

func loadDotEnv(path string) error {
	if path == "" {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("config: load .env: %w", err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("config: load %s: %w", path, err)
	}
	return nil
}
