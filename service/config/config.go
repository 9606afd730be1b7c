package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment
// variables. All required fields are validated at startup to ensure
// fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Ledger configuration
	Validators      []string
	QuorumTimeout   time.Duration
	MempoolCapacity int
	CommitRetries   int

	// Services registry: JSON mapping service identity to
	// {address, port, secret_key}. Either the inline document or a file
	// path must be provided.
	ServicesRegistryJSON string
	ServicesRegistryFile string
}

// Load reads configuration from environment variables and validates all
// required fields. Returns an error if any required configuration is
// missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":9293")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// NATS configuration (optional; empty disables commit fan-out)
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Validator set
	validators := os.Getenv("LEDGER_VALIDATORS")
	if validators == "" {
		errs = append(errs, fmt.Errorf("LEDGER_VALIDATORS is required"))
	} else {
		cfg.Validators = splitAndTrim(validators)
		if len(cfg.Validators) == 0 {
			errs = append(errs, fmt.Errorf("LEDGER_VALIDATORS must name at least one validator"))
		}
	}

	// Quorum and pool tuning
	quorumTimeout, err := parseDuration("QUORUM_TIMEOUT", "30s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.QuorumTimeout = quorumTimeout
	}

	capacity, err := parseInt("MEMPOOL_CAPACITY", 10000)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.MempoolCapacity = capacity
	}

	retries, err := parseInt("COMMIT_RETRIES", 3)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.CommitRetries = retries
	}

	// Services registry
	cfg.ServicesRegistryJSON = os.Getenv("SERVICES_REGISTRY")
	cfg.ServicesRegistryFile = os.Getenv("SERVICES_REGISTRY_FILE")
	if cfg.ServicesRegistryJSON == "" && cfg.ServicesRegistryFile == "" {
		errs = append(errs, fmt.Errorf("one of SERVICES_REGISTRY or SERVICES_REGISTRY_FILE is required"))
	}
	if cfg.ServicesRegistryJSON != "" && cfg.ServicesRegistryFile != "" {
		errs = append(errs, fmt.Errorf("SERVICES_REGISTRY and SERVICES_REGISTRY_FILE are mutually exclusive"))
	}

	cfg.validateValues(&errs)
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid. Useful for
// server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid. This is useful for testing
// configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}
	if len(c.Validators) == 0 {
		errs = append(errs, fmt.Errorf("Validators must name at least one validator"))
	}
	if c.ServicesRegistryJSON == "" && c.ServicesRegistryFile == "" {
		errs = append(errs, fmt.Errorf("a services registry is required"))
	}
	c.validateValues(&errs)

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}
	return nil
}

// validateValues checks the tunables shared by Load and Validate.
func (c *Config) validateValues(errs *[]error) {
	if c.QuorumTimeout < time.Second {
		*errs = append(*errs, fmt.Errorf("QUORUM_TIMEOUT must be at least 1 second, got %v", c.QuorumTimeout))
	}
	if c.MempoolCapacity < 1 {
		*errs = append(*errs, fmt.Errorf("MEMPOOL_CAPACITY must be positive, got %d", c.MempoolCapacity))
	}
	if c.CommitRetries < 0 {
		*errs = append(*errs, fmt.Errorf("COMMIT_RETRIES cannot be negative, got %d", c.CommitRetries))
	}
	seen := make(map[string]struct{}, len(c.Validators))
	for _, v := range c.Validators {
		if _, dup := seen[v]; dup {
			*errs = append(*errs, fmt.Errorf("LEDGER_VALIDATORS contains duplicate identity %q", v))
		}
		seen[v] = struct{}{}
	}
}

// getEnvOrDefault returns the environment variable value or a default if
// not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a
// default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a
// default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// splitAndTrim splits a comma-separated list, dropping empty elements.
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
