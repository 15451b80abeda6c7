package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"badgedesk/api"
	"badgedesk/cmdpipe"
	"badgedesk/directory"
	"badgedesk/health"
	"badgedesk/indicator"
	"badgedesk/journal"
	"badgedesk/mqtt"
	"badgedesk/reader"
)

// Environment overrides, applied after the config file.
const (
	EnvReaderPort   = "BADGEDESK_READER_PORT"
	EnvReaderBaud   = "BADGEDESK_READER_BAUD"
	EnvReaderDriver = "BADGEDESK_READER_DRIVER"
	EnvDatabase     = "BADGEDESK_DB"
	EnvLogLevel     = "BADGEDESK_LOG_LEVEL"
	EnvHTTPListen   = "BADGEDESK_HTTP_LISTEN"
	EnvRosterPass   = "BADGEDESK_ROSTER_PASSWORD"
)

// Config is the main configuration structure for badgedesk.
type Config struct {
	// Reader configuration
	Reader reader.Config `yaml:"reader"`

	// Student directory database
	Directory directory.Config `yaml:"directory"`

	// Recent scan history
	Journal journal.Config `yaml:"journal"`

	// MQTT connection settings
	MQTT mqtt.Config `yaml:"mqtt"`

	// Indicator configuration
	Indicator indicator.Config `yaml:"indicator"`

	// Host health reporting
	Health health.Config `yaml:"health"`

	// HTTP API
	HTTP api.Config `yaml:"http"`

	// Local command pipe
	Pipe cmdpipe.Config `yaml:"pipe"`

	// General settings
	ClientID         string `yaml:"client_id"`
	LogLevel         string `yaml:"log_level"`
	RecordAttendance bool   `yaml:"record_attendance"`
	ControlSecret    string `yaml:"control_secret"` // base64; empty disables MQTT commands
}

// LoadConfig reads path and applies environment overrides. A missing file
// is only an error when required is set.
func LoadConfig(path string, required bool) (*Config, error) {
	var cfg Config

	f, err := os.Open(path)
	switch {
	case err == nil:
		defer f.Close()
		if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !required:
		log.WithField("path", path).Debug("No config file, using defaults")
	default:
		return nil, fmt.Errorf("open config: %w", err)
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvReaderPort); ok {
		c.Reader.Port = v
	}
	if v, ok := lookup(EnvReaderBaud); ok {
		baud, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: invalid baud rate %q", EnvReaderBaud, v)
		}
		c.Reader.Baud = baud
	}
	if v, ok := lookup(EnvReaderDriver); ok {
		c.Reader.Driver = v
	}
	if v, ok := lookup(EnvDatabase); ok {
		c.Directory.Path = v
	}
	if v, ok := lookup(EnvLogLevel); ok {
		c.LogLevel = v
	}
	if v, ok := lookup(EnvHTTPListen); ok {
		c.HTTP.Listen = v
	}
	if v, ok := lookup(EnvRosterPass); ok {
		c.Directory.Roster.Password = v
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Reader.Baud == 0 {
		c.Reader.Baud = reader.DefaultBaud
	}
	if c.Directory.Path == "" {
		c.Directory.Path = directory.DefaultPath
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the settings every command needs. serve additionally
// requires a client id.
func (c *Config) Validate(serve bool) error {
	if serve && c.ClientID == "" {
		return errors.New("client_id missing in config file")
	}
	if c.Reader.Baud <= 0 {
		return fmt.Errorf("reader baud must be positive, got %d", c.Reader.Baud)
	}
	if c.Reader.AutoConnect && c.Reader.Port == "" {
		return errors.New("reader auto_connect needs reader port")
	}
	if _, err := reader.NewDriver(c.Reader.Driver); err != nil {
		return err
	}
	if _, err := c.Reader.Protocol.Protocol(); err != nil {
		return fmt.Errorf("reader protocol: %w", err)
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	return nil
}

// setupLogging applies the configured level.
func setupLogging(level string) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}
