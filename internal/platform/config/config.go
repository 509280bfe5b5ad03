package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. BALLOTBOX_HTTP_PORT.
const EnvPrefix = "BALLOTBOX"

// ConfigFileEnv names the optional YAML file loaded before env overrides.
const ConfigFileEnv = "BALLOTBOX_CONFIG"

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string `yaml:"serviceName"  envconfig:"SERVICE_NAME"`
	HTTPPort    string `yaml:"httpPort"     envconfig:"HTTP_PORT"`
	DatabaseDSN string `yaml:"databaseDsn"  envconfig:"DATABASE_DSN"`
	MetricsPort string `yaml:"metricsPort"  envconfig:"METRICS_PORT"`
	Debug       bool   `yaml:"debug"        envconfig:"DEBUG"`

	SweepInterval         time.Duration `yaml:"sweepInterval"         envconfig:"SWEEP_INTERVAL"`
	RandomnessTimeout     time.Duration `yaml:"randomnessTimeout"     envconfig:"RANDOMNESS_TIMEOUT"`
	MaxRandomnessAttempts int           `yaml:"maxRandomnessAttempts" envconfig:"MAX_RANDOMNESS_ATTEMPTS"`
	OracleDelay           time.Duration `yaml:"oracleDelay"           envconfig:"ORACLE_DELAY"`
	OutboxBatchSize       int           `yaml:"outboxBatchSize"       envconfig:"OUTBOX_BATCH_SIZE"`
	EventDedupTTL         time.Duration `yaml:"eventDedupTtl"         envconfig:"EVENT_DEDUP_TTL"`

	EnableLocalOracle         bool `yaml:"enableLocalOracle"         envconfig:"ENABLE_LOCAL_ORACLE"`
	EnableFulfillmentConsumer bool `yaml:"enableFulfillmentConsumer" envconfig:"ENABLE_FULFILLMENT_CONSUMER"`
	EnableRandomnessWatchdog  bool `yaml:"enableRandomnessWatchdog"  envconfig:"ENABLE_RANDOMNESS_WATCHDOG"`
}

func Default() Config {
	return Config{
		ServiceName:               "ballotbox",
		HTTPPort:                  "8080",
		DatabaseDSN:               "sqlite:file::memory:?cache=shared",
		MetricsPort:               "9090",
		SweepInterval:             5 * time.Second,
		RandomnessTimeout:         10 * time.Minute,
		MaxRandomnessAttempts:     3,
		OracleDelay:               2 * time.Second,
		OutboxBatchSize:           100,
		EventDedupTTL:             7 * 24 * time.Hour,
		EnableLocalOracle:         true,
		EnableFulfillmentConsumer: true,
		EnableRandomnessWatchdog:  true,
	}
}

// Load layers defaults, the YAML file named by BALLOTBOX_CONFIG and then
// BALLOTBOX_* environment variables.
func Load() (Config, error) {
	return LoadFile(strings.TrimSpace(os.Getenv(ConfigFileEnv)))
}

func LoadFile(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file: %w", err)
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("process environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if strings.TrimSpace(c.HTTPPort) == "" {
		return errors.New("http port is required")
	}
	if c.SweepInterval <= 0 {
		return errors.New("sweep interval must be positive")
	}
	if c.RandomnessTimeout <= 0 {
		return errors.New("randomness timeout must be positive")
	}
	if c.MaxRandomnessAttempts <= 0 {
		return errors.New("max randomness attempts must be positive")
	}
	return nil
}
