// Package config provides configuration management for veil.
package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mrz1836/veil/internal/fileutil"
	"github.com/mrz1836/veil/pkg/fhe"
	"github.com/mrz1836/veil/pkg/retry"
	"github.com/mrz1836/veil/pkg/storage"
)

// Config represents the application configuration.
type Config struct {
	Version   int             `yaml:"version"`
	Home      string          `yaml:"home"`
	Chain     ChainConfig     `yaml:"chain"`
	Storage   StorageConfig   `yaml:"storage"`
	Signature SignatureConfig `yaml:"signature"`
	Retry     RetryConfig     `yaml:"retry"`
	Output    OutputConfig    `yaml:"output"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ChainConfig identifies the EIP-712 domain decryption requests are signed in.
type ChainConfig struct {
	ChainID           int64  `yaml:"chain_id"`
	ContractsChainID  int64  `yaml:"contracts_chain_id,omitempty"`
	VerifyingContract string `yaml:"verifying_contract"`
}

// StorageConfig selects the signature cache backend.
type StorageConfig struct {
	Backend       string `yaml:"backend"`
	Path          string `yaml:"path"`
	Encrypt       bool   `yaml:"encrypt"`
	IdentityFile  string `yaml:"identity_file"`
	TTL           string `yaml:"ttl"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password,omitempty"`
	RedisDB       int    `yaml:"redis_db"`
	RedisPrefix   string `yaml:"redis_prefix"`
}

// SignatureConfig defines decryption signature settings.
type SignatureConfig struct {
	DurationDays   int  `yaml:"duration_days"`
	KeyByPublicKey bool `yaml:"key_by_public_key"`
}

// RetryConfig defines the backoff policy for wallet signing.
type RetryConfig struct {
	MaxRetries        int     `yaml:"max_retries"`
	InitialDelayMs    int     `yaml:"initial_delay_ms"`
	MaxDelayMs        int     `yaml:"max_delay_ms"`
	BackoffMultiplier float64 `yaml:"backoff_multiplier"`
	Jitter            bool    `yaml:"jitter"`
	TimeoutSeconds    int     `yaml:"timeout_seconds"`
}

// OutputConfig defines output formatting settings.
type OutputConfig struct {
	DefaultFormat string `yaml:"default_format"`
	Color         string `yaml:"color"`
	Verbose       bool   `yaml:"verbose"`
}

// LoggingConfig defines logging settings.
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// Load reads configuration from the specified file, on top of Defaults.
func Load(path string) (*Config, error) {
	// #nosec G304 -- config file path is from validated user input
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to the specified file.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return fileutil.WriteAtomic(path, data, 0o600)
}

// Path returns the config file path under home.
func Path(home string) string {
	return filepath.Join(ExpandPath(home), "config.yaml")
}

// DefaultHome returns the default veil home directory.
func DefaultHome() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".veil"
	}
	return filepath.Join(home, ".veil")
}

// ExpandPath replaces a leading "~/" with the user's home directory.
func ExpandPath(p string) string {
	if !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, p[2:])
}

// ResolvePath expands p and anchors a relative path in the home directory.
func (c *Config) ResolvePath(p string) string {
	if p == "" {
		return ""
	}
	p = ExpandPath(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(ExpandPath(c.Home), p)
}

// LogFile returns the resolved log file path, or "" when logging to a file is
// not configured.
func (c *Config) LogFile() string {
	return c.ResolvePath(c.Logging.File)
}

// FHEConfig returns the local instance configuration.
func (c *Config) FHEConfig() fhe.Config {
	return fhe.Config{
		ChainID:           c.Chain.ChainID,
		ContractsChainID:  c.Chain.ContractsChainID,
		VerifyingContract: c.Chain.VerifyingContract,
	}
}

// StorageOptions returns the storage backend configuration. An unparsable TTL
// is treated as no expiry; Validate reports it.
func (c *Config) StorageOptions() storage.Config {
	ttl, _ := time.ParseDuration(c.Storage.TTL)

	sc := storage.Config{
		Backend:       storage.Backend(strings.ToLower(c.Storage.Backend)),
		TTL:           ttl,
		Dir:           c.ResolvePath(c.Storage.Path),
		RedisAddr:     c.Storage.RedisAddr,
		RedisPassword: c.Storage.RedisPassword,
		RedisDB:       c.Storage.RedisDB,
		RedisPrefix:   c.Storage.RedisPrefix,
	}
	if c.Storage.Encrypt {
		sc.IdentityFile = c.ResolvePath(c.Storage.IdentityFile)
	}
	return sc
}

// RetryPolicy returns the configured backoff policy.
func (c *Config) RetryPolicy() retry.Policy {
	return retry.NewPolicy(
		retry.WithMaxRetries(c.Retry.MaxRetries),
		retry.WithInitialDelay(time.Duration(c.Retry.InitialDelayMs)*time.Millisecond),
		retry.WithMaxDelay(time.Duration(c.Retry.MaxDelayMs)*time.Millisecond),
		retry.WithBackoffMultiplier(c.Retry.BackoffMultiplier),
		retry.WithJitter(c.Retry.Jitter),
	)
}

// RetryTimeout returns the overall retry timeout, or 0 for none.
func (c *Config) RetryTimeout() time.Duration {
	return time.Duration(c.Retry.TimeoutSeconds) * time.Second
}

// GetOutputFormat returns the default output format.
func (c *Config) GetOutputFormat() string {
	return c.Output.DefaultFormat
}

// IsVerbose returns true if verbose output is enabled.
func (c *Config) IsVerbose() bool {
	return c.Output.Verbose
}
