package config

import (
	"slices"
	"strconv"
	"strings"
	"time"

	veilerr "github.com/mrz1836/veil/pkg/errors"
	"github.com/mrz1836/veil/pkg/fhe"
	"github.com/mrz1836/veil/pkg/storage"
	"github.com/mrz1836/veil/pkg/validate"
)

//nolint:gochecknoglobals // Lookup tables
var (
	outputFormats = []string{"auto", "text", "json"}
	colorModes    = []string{"auto", "always", "never"}
	logLevels     = []string{"off", "error", "info", "debug"}
)

// Validate reports the first invalid setting as CONFIG_INVALID, with a "did
// you mean" suggestion for misspelled names.
//
//nolint:gocognit,gocyclo // One check per setting
func Validate(c *Config) error {
	if c.Chain.ChainID <= 0 {
		return invalidValue("chain.chain_id", strconv.FormatInt(c.Chain.ChainID, 10), "a positive chain id")
	}
	if c.Chain.ContractsChainID < 0 {
		return invalidValue("chain.contracts_chain_id", strconv.FormatInt(c.Chain.ContractsChainID, 10), "a positive chain id or 0")
	}
	if err := validate.Address(c.Chain.VerifyingContract); err != nil {
		return invalidValue("chain.verifying_contract", c.Chain.VerifyingContract, "a contract address")
	}

	if err := oneOf("storage.backend", c.Storage.Backend, storage.Backends()); err != nil {
		return err
	}
	if c.Storage.TTL != "" {
		if d, err := time.ParseDuration(c.Storage.TTL); err != nil || d < 0 {
			return invalidValue("storage.ttl", c.Storage.TTL, "a duration such as 24h")
		}
	}
	if strings.EqualFold(c.Storage.Backend, string(storage.BackendFile)) {
		if c.Storage.Path == "" {
			return invalidValue("storage.path", "", "a directory")
		}
		if c.Storage.Encrypt && c.Storage.IdentityFile == "" {
			return invalidValue("storage.identity_file", "", "a file path when storage.encrypt is set")
		}
	}
	if c.Storage.RedisDB < 0 {
		return invalidValue("storage.redis_db", strconv.Itoa(c.Storage.RedisDB), "0 or more")
	}

	if c.Signature.DurationDays < 1 || c.Signature.DurationDays > fhe.MaxDurationDays {
		return invalidValue("signature.duration_days", strconv.Itoa(c.Signature.DurationDays), "between 1 and "+strconv.Itoa(fhe.MaxDurationDays))
	}

	switch {
	case c.Retry.MaxRetries < 0:
		return invalidValue("retry.max_retries", strconv.Itoa(c.Retry.MaxRetries), "0 or more")
	case c.Retry.InitialDelayMs < 0:
		return invalidValue("retry.initial_delay_ms", strconv.Itoa(c.Retry.InitialDelayMs), "0 or more")
	case c.Retry.MaxDelayMs < c.Retry.InitialDelayMs:
		return invalidValue("retry.max_delay_ms", strconv.Itoa(c.Retry.MaxDelayMs), "at least retry.initial_delay_ms")
	case c.Retry.BackoffMultiplier < 1:
		return invalidValue("retry.backoff_multiplier", strconv.FormatFloat(c.Retry.BackoffMultiplier, 'f', -1, 64), "1 or more")
	case c.Retry.TimeoutSeconds < 0:
		return invalidValue("retry.timeout_seconds", strconv.Itoa(c.Retry.TimeoutSeconds), "0 or more")
	}

	if err := oneOf("output.default_format", c.Output.DefaultFormat, outputFormats); err != nil {
		return err
	}
	if err := oneOf("output.color", c.Output.Color, colorModes); err != nil {
		return err
	}
	return oneOf("logging.level", c.Logging.Level, logLevels)
}

func oneOf(key, value string, allowed []string) error {
	if slices.Contains(allowed, strings.ToLower(value)) {
		return nil
	}

	err := invalidValue(key, value, strings.Join(allowed, ", "))
	if s := Suggest(value, allowed); s != "" {
		return veilerr.WithSuggestion(err, "did you mean '"+s+"'?")
	}
	return veilerr.WithSuggestion(err, "valid values: "+strings.Join(allowed, ", "))
}
