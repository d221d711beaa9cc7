// Package config handles loading and parsing application configuration.
// It supports three sources (in priority order):
//  1. An environment variable:  CONFIG_PATH=/path/to/config.yaml
//  2. A command-line flag:      --config=/path/to/config.yaml
//  3. No file at all: every key falls back to its env var or env-default.
//
// A .env file in the working directory, if present, is loaded into the
// process environment first so its values behave like real env vars.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Config is the root configuration structure.
// Every field maps to a key in the YAML file AND can be overridden
// by the corresponding environment variable (env:"...").
type Config struct {
	// Env controls log format and verbosity.
	// Valid values: "dev", "staging", "prod"
	Env string `yaml:"env" env:"ENV" env-default:"dev"`

	// StoragePath is the filesystem path to the SQLite .db file.
	StoragePath string `yaml:"storage_path" env:"STORAGE_PATH" env-default:"cards.db"`

	HTTPServer `yaml:"http_server"`

	Reader `yaml:"reader"`
}

// HTTPServer holds settings for the `serve` front-end.
type HTTPServer struct {
	// Addr is the TCP address the server listens on, e.g. "localhost:8082".
	Addr string `yaml:"address" env:"HTTP_SERVER_ADDR" env-default:"localhost:8082"`

	// AllowedOrigins lists browser origins allowed to call the API.
	AllowedOrigins []string `yaml:"allowed_origins" env:"HTTP_ALLOWED_ORIGINS" env-separator:"," env-default:"http://localhost:5173"`
}

// Reader holds the PC/SC reader settings.
type Reader struct {
	// Index selects the reader from the PC/SC reader list.
	Index int `yaml:"index" env:"READER_INDEX" env-default:"0"`

	// ScanTimeout bounds how long a scan or write waits for a card.
	ScanTimeout time.Duration `yaml:"scan_timeout" env:"READER_SCAN_TIMEOUT" env-default:"8s"`

	// PollInterval is the pause between connection attempts while waiting.
	PollInterval time.Duration `yaml:"poll_interval" env:"READER_POLL_INTERVAL" env-default:"200ms"`

	// WaitForReader keeps waiting past ScanTimeout while no reader is
	// attached at all. Off by default: a missing reader times out like a
	// missing card.
	WaitForReader bool `yaml:"wait_for_reader" env:"READER_WAIT_FOR_READER" env-default:"false"`
}

// Load reads the config file at path (if non-empty), then the environment.
func Load(path string) (*Config, error) {
	var cfg Config

	if path == "" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("cannot read config from env: %w", err)
		}
		return &cfg, cfg.validate()
	}

	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}

	// cleanenv.ReadConfig reads the YAML file and populates the struct.
	// It also reads any env:"..." tagged fields from the environment.
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("cannot read config: %w", err)
	}

	return &cfg, cfg.validate()
}

func (c *Config) validate() error {
	if c.StoragePath == "" {
		return errors.New("storage_path must not be empty")
	}
	if c.Reader.Index < 0 {
		return fmt.Errorf("reader.index must be >= 0, got %d", c.Reader.Index)
	}
	if c.Reader.PollInterval <= 0 {
		return fmt.Errorf("reader.poll_interval must be positive, got %s", c.Reader.PollInterval)
	}
	return nil
}

// MustLoad reads, validates, and returns the application config.
//
// Functions prefixed with "Must" are allowed to fatal on failure. If this
// function returns, the config is valid. It parses the command line, so
// callers read positional arguments with flag.Args() afterwards.
func MustLoad() *Config {
	// A missing .env is normal; anything else (bad syntax) is not.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("cannot load .env: %s", err.Error())
	}

	flagPath := flag.String("config", "", "Path to the configuration YAML file")
	flag.Parse()

	// ── Source 1: environment variable ───────────────────────────────
	configPath := os.Getenv("CONFIG_PATH")

	// ── Source 2: command-line flag ───────────────────────────────────
	if configPath == "" {
		configPath = *flagPath
	}

	cfg, err := Load(configPath)
	if err != nil {
		log.Fatal(err.Error())
	}

	return cfg
}
