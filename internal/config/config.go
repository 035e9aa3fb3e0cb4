// Package config loads runtime settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Store backends
const (
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Config holds the client settings
type Config struct {
	APIURL    string `env:"MODULS_API_URL,default=http://localhost:9000"`
	Domain    string `env:"MODULS_DOMAIN,default=localhost"`
	URI       string `env:"MODULS_URI,default=http://localhost"`
	ChainID   int64  `env:"MODULS_CHAIN_ID,default=31337"`
	Statement string `env:"MODULS_STATEMENT,default=Sign in to Moduls"`

	PrivateKey       string `env:"MODULS_PRIVATE_KEY"`
	Keystore         string `env:"MODULS_KEYSTORE"`
	KeystorePassword string `env:"MODULS_KEYSTORE_PASSWORD"`

	Store     string `env:"MODULS_STORE,default=file"`
	StorePath string `env:"MODULS_STORE_PATH"`
	RedisURL  string `env:"REDIS_URL"`

	HTTPRetryMax      int           `env:"MODULS_HTTP_RETRY_MAX,default=3"`
	HTTPRate          float64       `env:"MODULS_HTTP_RPS,default=10"`
	QueryTTL          time.Duration `env:"MODULS_QUERY_TTL,default=30s"`
	QueryCacheSize    int           `env:"MODULS_QUERY_CACHE_SIZE,default=256"`
	PollInterval      time.Duration `env:"MODULS_POLL_INTERVAL,default=10s"`
	FreshnessInterval time.Duration `env:"MODULS_FRESHNESS_INTERVAL,default=1m"`

	ContractsFile string `env:"MODULS_CONTRACTS_FILE"`
	LogLevel      string `env:"MODULS_LOG_LEVEL,default=info"`
}

// DevAPI holds the development API server settings
type DevAPI struct {
	Addr          string        `env:"DEVAPI_ADDR,default=:9000"`
	SigningKey    string        `env:"DEVAPI_SIGNING_KEY"`
	Domain        string        `env:"MODULS_DOMAIN,default=localhost"`
	RedisURL      string        `env:"REDIS_URL"`
	NonceTTL      time.Duration `env:"DEVAPI_NONCE_TTL,default=5m"`
	AccessTTL     time.Duration `env:"DEVAPI_ACCESS_TTL,default=1h"`
	ContractsFile string        `env:"MODULS_CONTRACTS_FILE"`
	LogLevel      string        `env:"MODULS_LOG_LEVEL,default=info"`
}

// LoadEnv reads .env files into the process environment. Missing files are skipped.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(file); err != nil {
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

// Load decodes the client settings from the environment
func Load() (*Config, error) {
	var cfg Config
	if err := decode(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.StorePath == "" {
		cfg.StorePath = defaultStorePath()
	}
	return &cfg, nil
}

// LoadDevAPI decodes the development API settings from the environment
func LoadDevAPI() (*DevAPI, error) {
	var cfg DevAPI
	if err := decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// envdecode reports an unset environment as an error; defaults still apply
func decode(target any) error {
	err := envdecode.Decode(target)
	if err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return fmt.Errorf("failed to decode environment: %w", err)
	}
	return nil
}

// Validate checks values that have no sensible fallback
func (c *Config) Validate() error {
	switch c.Store {
	case StoreFile, StoreRedis, StoreMemory:
	default:
		return fmt.Errorf("unknown store %q, want file, redis or memory", c.Store)
	}
	if c.Store == StoreRedis && c.RedisURL == "" {
		return errors.New("REDIS_URL is required for the redis store")
	}
	if c.ChainID <= 0 {
		return errors.New("MODULS_CHAIN_ID must be positive")
	}
	if c.HTTPRetryMax < 0 {
		return errors.New("MODULS_HTTP_RETRY_MAX must not be negative")
	}
	if c.PollInterval <= 0 || c.FreshnessInterval <= 0 {
		return errors.New("poll intervals must be positive")
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	return nil
}

// Level parses the configured log level, falling back to info
func (c *Config) Level() logrus.Level {
	return parseLevel(c.LogLevel)
}

func (c *DevAPI) Level() logrus.Level {
	return parseLevel(c.LogLevel)
}

func parseLevel(s string) logrus.Level {
	level, err := logrus.ParseLevel(s)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

func defaultStorePath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, "moduls", "credentials.json")
}
