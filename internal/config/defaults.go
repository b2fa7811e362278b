package config

import (
	"github.com/mrz1836/veil/pkg/signature"
	"github.com/mrz1836/veil/pkg/storage"
)

// Default chain settings.
const (
	DefaultChainID           = 11155111
	DefaultVerifyingContract = "0x5ffdaab0373e62e2ea2944776209aef29e631a64"
)

// Defaults returns the default configuration.
func Defaults() *Config {
	return &Config{
		Version: 1,
		Home:    "~/.veil",
		Chain: ChainConfig{
			ChainID:           DefaultChainID,
			VerifyingContract: DefaultVerifyingContract,
		},
		Storage: StorageConfig{
			Backend:      string(storage.BackendFile),
			Path:         "signatures",
			Encrypt:      true,
			IdentityFile: "identity.age",
			TTL:          "", // signatures carry their own validity window
			RedisAddr:    "localhost:6379",
			RedisPrefix:  storage.DefaultRedisPrefix,
		},
		Signature: SignatureConfig{
			DurationDays: signature.DefaultDurationDays,
		},
		Retry: RetryConfig{
			MaxRetries:        3,
			InitialDelayMs:    500,
			MaxDelayMs:        10_000,
			BackoffMultiplier: 2,
			Jitter:            true,
		},
		Output: OutputConfig{
			DefaultFormat: "auto",
			Color:         "auto",
		},
		Logging: LoggingConfig{
			Level: "error",
			File:  "veil.log",
		},
	}
}
