// Package config loads phone book server configuration from a YAML file
// and environment variables
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/kjk/phonebook/backup"
)

// environment variables that override values from the config file
const (
	EnvDataFile     = "PHONEBOOK_DATA_FILE"
	EnvHTTPAddr     = "PHONEBOOK_HTTP_ADDR"
	EnvVerbose      = "PHONEBOOK_VERBOSE"
	EnvSpacesKey    = "SPACES_KEY"
	EnvSpacesSecret = "SPACES_SECRET"
)

const (
	DefaultDataFile = "/tmp/phone-book.csv"
	DefaultHTTPAddr = "localhost:8080"
)

type RateLimit struct {
	// mutating requests per second per client, 0 disables the limit
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type Config struct {
	DataFile string `yaml:"data_file"`
	HTTPAddr string `yaml:"http_addr"`
	// if empty, we only log to console
	LogDir    string        `yaml:"log_dir"`
	Verbose   bool          `yaml:"verbose"`
	RateLimit RateLimit     `yaml:"rate_limit"`
	Backup    backup.Config `yaml:"backup"`
}

// Default returns configuration used when there's no config file
func Default() *Config {
	return &Config{
		DataFile: DefaultDataFile,
		HTTPAddr: DefaultHTTPAddr,
		RateLimit: RateLimit{
			RequestsPerSecond: 50,
			Burst:             100,
		},
		Backup: backup.Config{
			Compression: backup.ExtZstd,
			Keep:        30,
		},
	}
}

// Parse parses YAML config. Values not present in data keep their defaults.
func Parse(data []byte) (*Config, error) {
	c := Default()
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return c, nil
}

// Load reads config from path, applies environment overrides and validates it.
// If path is empty, uses defaults.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if c, err = Parse(data); err != nil {
			return nil, err
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvDataFile); v != "" {
		c.DataFile = v
	}
	if v := os.Getenv(EnvHTTPAddr); v != "" {
		c.HTTPAddr = v
	}
	if v := os.Getenv(EnvVerbose); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %s value '%s'", EnvVerbose, v)
		}
		c.Verbose = b
	}
	// credentials shouldn't be stored in config files
	if m := c.Backup.Minio; m != nil {
		if v := os.Getenv(EnvSpacesKey); v != "" {
			m.Access = v
		}
		if v := os.Getenv(EnvSpacesSecret); v != "" {
			m.Secret = v
		}
	}
	return nil
}

// Validate checks that config values make sense
func (c *Config) Validate() error {
	if c.DataFile == "" {
		return errors.New("data_file is not set")
	}
	if c.HTTPAddr == "" {
		return errors.New("http_addr is not set")
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return errors.New("rate_limit values can't be negative")
	}
	if c.RateLimit.RequestsPerSecond > 0 && c.RateLimit.Burst == 0 {
		return errors.New("rate_limit.burst must be set if requests_per_second is set")
	}
	if !backup.ValidExt(c.Backup.Compression) {
		return fmt.Errorf("unsupported backup.compression '%s'", c.Backup.Compression)
	}
	if c.Backup.Keep < 0 {
		return errors.New("backup.keep can't be negative")
	}
	if c.Backup.Interval < 0 {
		return errors.New("backup.interval can't be negative")
	}
	return nil
}
