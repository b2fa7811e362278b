package config

import (
	"os"
	"strconv"
	"strings"
)

// Environment variable names.
const (
	EnvHome              = "VEIL_HOME"
	EnvChainID           = "VEIL_CHAIN_ID"
	EnvVerifyingContract = "VEIL_VERIFYING_CONTRACT"
	EnvStorageBackend    = "VEIL_STORAGE_BACKEND"
	EnvRedisAddr         = "VEIL_REDIS_ADDR"
	EnvRedisPassword     = "VEIL_REDIS_PASSWORD" // #nosec G101 -- variable name, not a credential
	EnvSignatureDays     = "VEIL_SIGNATURE_DAYS"
	EnvMaxRetries        = "VEIL_MAX_RETRIES"
	EnvOutputFormat      = "VEIL_OUTPUT_FORMAT"
	EnvVerbose           = "VEIL_VERBOSE"
	EnvLogLevel          = "VEIL_LOG_LEVEL"
	EnvNoColor           = "NO_COLOR"
)

// ApplyEnvironment applies environment variable overrides to the configuration.
// Numeric variables that do not parse are ignored.
//
//nolint:gocognit,gocyclo // Environment variable overrides require sequential checks
func ApplyEnvironment(cfg *Config) {
	if v := os.Getenv(EnvHome); v != "" {
		cfg.Home = v
	}

	if v := os.Getenv(EnvChainID); v != "" {
		if id, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.Chain.ChainID = id
		}
	}

	if v := os.Getenv(EnvVerifyingContract); v != "" {
		cfg.Chain.VerifyingContract = strings.TrimSpace(v)
	}

	if v := os.Getenv(EnvStorageBackend); v != "" {
		cfg.Storage.Backend = strings.ToLower(strings.TrimSpace(v))
	}

	if v := os.Getenv(EnvRedisAddr); v != "" {
		cfg.Storage.RedisAddr = strings.TrimSpace(v)
	}

	if v := os.Getenv(EnvRedisPassword); v != "" {
		cfg.Storage.RedisPassword = v
	}

	if v := os.Getenv(EnvSignatureDays); v != "" {
		if days, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && days > 0 {
			cfg.Signature.DurationDays = days
		}
	}

	if v := os.Getenv(EnvMaxRetries); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			cfg.Retry.MaxRetries = n
		}
	}

	if v := os.Getenv(EnvOutputFormat); v != "" {
		cfg.Output.DefaultFormat = strings.ToLower(v)
	}

	if v := os.Getenv(EnvVerbose); v != "" {
		cfg.Output.Verbose = parseBool(v)
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}

	// NO_COLOR disables colored output
	if _, ok := os.LookupEnv(EnvNoColor); ok {
		cfg.Output.Color = "never"
	}
}

func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "1" || s == "true" || s == "yes" || s == "on" {
		return true
	}
	b, _ := strconv.ParseBool(s)
	return b
}
