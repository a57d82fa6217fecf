package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the YAML configuration file. Command-line flags override it.
type Config struct {
	Backend string       `yaml:"backend"` // file, sqlite, bolt, mem, dynamo, s3
	Path    string       `yaml:"path"`    // Database file for file, sqlite and bolt
	App     string       `yaml:"app"`     // Default application name
	Verbose bool         `yaml:"verbose"`
	Dynamo  DynamoConfig `yaml:"dynamo"`
	S3      S3Config     `yaml:"s3"`
}

// DynamoConfig selects the table; credentials come from the AWS environment.
type DynamoConfig struct {
	Table   string        `yaml:"table"`
	Timeout time.Duration `yaml:"timeout"`
}

type S3Config struct {
	Endpoint  string        `yaml:"endpoint"`
	AccessKey string        `yaml:"access_key"`
	SecretKey string        `yaml:"secret_key"`
	Bucket    string        `yaml:"bucket"`
	Region    string        `yaml:"region"`
	Prefix    string        `yaml:"prefix"`
	Insecure  bool          `yaml:"insecure"`
	Timeout   time.Duration `yaml:"timeout"`
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{Backend: "file"}
}

// LoadConfig reads path over the defaults. Unknown fields are rejected so
// a typo does not silently fall back to a default.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Backend {
	case "file", "sqlite", "bolt", "mem", "dynamo", "s3":
		return nil
	case "":
		c.Backend = "file"
		return nil
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}
}
