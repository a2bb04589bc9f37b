// Package config provides YAML-based configuration loading for Switchboard.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where commands look for the config file when no --config
// flag is given. A missing file at the default path is not an error; the
// built-in defaults apply.
const DefaultPath = "switchboard.yaml"

// Config is the top-level Switchboard configuration, loaded from
// switchboard.yaml with SB_-prefixed environment overrides applied on top.
type Config struct {
	Operator  OperatorConfig  `yaml:"operator"`
	Station   StationConfig   `yaml:"station"`
	Database  DatabaseConfig  `yaml:"database"`
	Notify    NotifyConfig    `yaml:"notify"`
	Digest    DigestConfig    `yaml:"digest"`
	Retention RetentionConfig `yaml:"retention"`
	GitHub    GitHubConfig    `yaml:"github"`
}

// OperatorConfig holds the coordinator's listen address and timing knobs.
// Timeouts are plain seconds; callers convert at the use site.
type OperatorConfig struct {
	Host                string `yaml:"host" env:"SB_OPERATOR_HOST"`
	Port                int    `yaml:"port" env:"SB_OPERATOR_PORT"`
	HeartbeatTimeoutSec int    `yaml:"heartbeat_timeout_sec" env:"SB_OPERATOR_HEARTBEAT_TIMEOUT_SEC"`
	SweepIntervalSec    int    `yaml:"sweep_interval_sec" env:"SB_OPERATOR_SWEEP_INTERVAL_SEC"`
	ProbeTimeoutSec     int    `yaml:"probe_timeout_sec" env:"SB_OPERATOR_PROBE_TIMEOUT_SEC"`
	QueryTimeoutSec     int    `yaml:"query_timeout_sec" env:"SB_OPERATOR_QUERY_TIMEOUT_SEC"`
}

// StationConfig holds the worker agent's identity and registration settings.
type StationConfig struct {
	Port                 int      `yaml:"port" env:"SB_STATION_PORT"`
	OperatorURL          string   `yaml:"operator_url" env:"SB_STATION_OPERATOR_URL"`
	AdvertiseURL         string   `yaml:"advertise_url" env:"SB_STATION_ADVERTISE_URL"`
	WorkerID             string   `yaml:"worker_id" env:"SB_STATION_WORKER_ID"`
	Tools                []string `yaml:"tools" env:"SB_STATION_TOOLS"`
	HeartbeatIntervalSec int      `yaml:"heartbeat_interval_sec" env:"SB_STATION_HEARTBEAT_INTERVAL_SEC"`
}

// DatabaseConfig selects the call-record store. Driver "none" disables
// persistence entirely; sqlite needs only Path; mysql needs the connection
// fields.
type DatabaseConfig struct {
	Driver   string `yaml:"driver" env:"SB_DATABASE_DRIVER"`
	Path     string `yaml:"path" env:"SB_DATABASE_PATH"`
	Host     string `yaml:"host" env:"SB_DATABASE_HOST"`
	Port     int    `yaml:"port" env:"SB_DATABASE_PORT"`
	Database string `yaml:"database" env:"SB_DATABASE_NAME"`
	User     string `yaml:"user" env:"SB_DATABASE_USER"`
	Password string `yaml:"password" env:"SB_DATABASE_PASSWORD"`
}

// NotifyConfig configures outbound event notifications. A sender with an
// empty token is simply not wired.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// SlackConfig holds the bot token and target channel.
type SlackConfig struct {
	Token   string `yaml:"token" env:"SB_SLACK_TOKEN"`
	Channel string `yaml:"channel" env:"SB_SLACK_CHANNEL"`
}

// DiscordConfig holds the bot token and target channel id.
type DiscordConfig struct {
	Token     string `yaml:"token" env:"SB_DISCORD_TOKEN"`
	ChannelID string `yaml:"channel_id" env:"SB_DISCORD_CHANNEL_ID"`
}

// DigestConfig schedules the periodic fleet summary. Empty disables it.
type DigestConfig struct {
	Schedule string `yaml:"schedule" env:"SB_DIGEST_SCHEDULE"`
}

// RetentionConfig schedules call-record cleanup.
type RetentionConfig struct {
	Schedule   string `yaml:"schedule" env:"SB_RETENTION_SCHEDULE"`
	MaxAgeDays int    `yaml:"max_age_days" env:"SB_RETENTION_MAX_AGE_DAYS"`
}

// GitHubConfig holds the token for the github tool.
type GitHubConfig struct {
	Token string `yaml:"token" env:"GITHUB_TOKEN"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// LoadOrDefault loads path if it exists; a missing file yields the built-in
// defaults (plus environment overrides), so commands run without a config
// file.
func LoadOrDefault(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Parse(nil)
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes, applies environment overrides, fills
// defaults, and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("config: environment overrides: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Operator.Host == "" {
		c.Operator.Host = "0.0.0.0"
	}
	if c.Operator.Port == 0 {
		c.Operator.Port = 8000
	}
	if c.Operator.HeartbeatTimeoutSec == 0 {
		c.Operator.HeartbeatTimeoutSec = 60
	}
	if c.Operator.SweepIntervalSec == 0 {
		c.Operator.SweepIntervalSec = 5
	}
	if c.Operator.ProbeTimeoutSec == 0 {
		c.Operator.ProbeTimeoutSec = 10
	}
	if c.Operator.QueryTimeoutSec == 0 {
		c.Operator.QueryTimeoutSec = 600
	}

	if c.Station.Port == 0 {
		c.Station.Port = 8001
	}
	if c.Station.OperatorURL == "" {
		c.Station.OperatorURL = fmt.Sprintf("http://localhost:%d", c.Operator.Port)
	}
	c.Station.OperatorURL = strings.TrimRight(c.Station.OperatorURL, "/")
	if c.Station.AdvertiseURL == "" {
		host, err := os.Hostname()
		if err != nil || host == "" {
			host = "localhost"
		}
		c.Station.AdvertiseURL = fmt.Sprintf("http://%s:%d", host, c.Station.Port)
	}
	c.Station.AdvertiseURL = strings.TrimRight(c.Station.AdvertiseURL, "/")
	if len(c.Station.Tools) == 0 {
		c.Station.Tools = []string{"arithmetic"}
	}
	if c.Station.HeartbeatIntervalSec == 0 {
		c.Station.HeartbeatIntervalSec = 30
	}

	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "switchboard.db"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
	}

	if c.Retention.Schedule == "" {
		c.Retention.Schedule = "0 3 * * *"
	}
	if c.Retention.MaxAgeDays == 0 {
		c.Retention.MaxAgeDays = 7
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.Operator.Port <= 0 || c.Operator.Port > 65535 {
		errs = append(errs, "operator.port must be in 1..65535")
	}
	if c.Operator.HeartbeatTimeoutSec <= 0 {
		errs = append(errs, "operator.heartbeat_timeout_sec must be positive")
	}
	if c.Operator.SweepIntervalSec <= 0 {
		errs = append(errs, "operator.sweep_interval_sec must be positive")
	}
	if c.Operator.QueryTimeoutSec <= 0 {
		errs = append(errs, "operator.query_timeout_sec must be positive")
	}
	if c.Station.Port <= 0 || c.Station.Port > 65535 {
		errs = append(errs, "station.port must be in 1..65535")
	}
	if c.Station.HeartbeatIntervalSec <= 0 {
		errs = append(errs, "station.heartbeat_interval_sec must be positive")
	}
	switch c.Database.Driver {
	case "none", "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q is not one of none, sqlite, mysql", c.Database.Driver))
	}
	if c.Database.Driver == "mysql" && c.Database.Database == "" {
		errs = append(errs, "database.database is required for mysql")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// PersistenceEnabled reports whether call records should be written at all.
func (c *Config) PersistenceEnabled() bool {
	return c.Database.Driver != "none"
}
