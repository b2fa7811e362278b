// Package cli implements the veil command-line interface.
//
// This package uses global variables to manage CLI state, which is the standard
// pattern for Cobra-based CLI applications. The globals are initialized in
// PersistentPreRunE and released in PersistentPostRun.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level state
package cli

import (
	"errors"
	"io/fs"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mrz1836/veil/internal/config"
	"github.com/mrz1836/veil/internal/output"
	veilerr "github.com/mrz1836/veil/pkg/errors"
)

// defaultEnvFile is loaded from the working directory when present.
const defaultEnvFile = ".env"

var (
	// Global flags
	homeDir      string
	outputFormat string
	verbose      bool
	envFile      string

	// Global state initialized in PersistentPreRunE
	cfg       *config.Config
	logger    *zap.Logger
	closeLog  func() error
	formatter *output.Formatter

	enrichOnce sync.Once
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "veil",
	Short: "FHE relayer client toolkit",
	Long: `Veil manages the decryption signatures an FHE relayer requires before it
returns plaintexts to a user.

A decryption signature is an EIP-712 authorization binding an ephemeral
keypair to a set of contracts for a number of days. Veil signs them with a
local key, caches them in memory, on disk (optionally age-encrypted) or in
Redis, and reuses them until they expire.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return initGlobals(cmd)
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		cleanup()
	},
}

// Execute runs the root command.
func Execute() error {
	enrichOnce.Do(func() { walkCommands(rootCmd, enrichParentLong) })

	err := rootCmd.Execute()
	if err != nil {
		cleanup()
		if formatter != nil {
			_ = output.FormatError(os.Stderr, err, formatter.Format())
		} else {
			_ = output.FormatError(os.Stderr, err, output.FormatText)
		}
		return err
	}
	return nil
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	return veilerr.ExitCode(err)
}

// initGlobals initializes global configuration, logger, and formatter.
func initGlobals(cmd *cobra.Command) error {
	if err := loadEnvFile(envFile); err != nil {
		return err
	}

	// Determine home directory
	home := homeDir
	if home == "" {
		home = os.Getenv(config.EnvHome)
	}
	if home == "" {
		home = config.DefaultHome()
	}

	var err error
	cfg, err = config.Load(config.Path(home))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) && !tolerantCommand(cmd) {
			return veilerr.WithCause(veilerr.ErrConfigInvalid, err)
		}
		cfg = config.Defaults()
	}
	cfg.Home = home

	config.ApplyEnvironment(cfg)

	// Command-line flags win over file and environment
	if homeDir != "" {
		cfg.Home = homeDir
	}
	if verbose {
		cfg.Output.Verbose = true
		cfg.Logging.Level = "debug"
	}
	if outputFormat != "" && outputFormat != "auto" {
		cfg.Output.DefaultFormat = outputFormat
	}

	explicit := output.ParseFormat(cfg.Output.DefaultFormat)
	formatter = output.NewFormatter(output.DetectFormat(cmd.OutOrStdout(), explicit), cmd.OutOrStdout())

	// The config commands must work on a broken file so it can be repaired.
	if !tolerantCommand(cmd) {
		if err := config.Validate(cfg); err != nil {
			return err
		}
	}

	logger, closeLog, err = config.NewLogger(config.ParseLogLevel(cfg.Logging.Level), cfg.LogFile())
	if err != nil {
		// Logging must never block the command
		logger, closeLog = config.NullLogger(), nil
	}
	logger.Debug("veil starting", zap.String("command", cmd.CommandPath()), zap.String("home", cfg.Home))

	return nil
}

// loadEnvFile loads path into the process environment without overriding
// variables that are already set. A missing default file is not an error.
func loadEnvFile(path string) error {
	if path == "" {
		if err := godotenv.Load(defaultEnvFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return veilerr.WithCause(veilerr.ErrConfigInvalid, err)
		}
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return veilerr.WithDetails(veilerr.WithCause(veilerr.ErrConfigInvalid, err), map[string]string{"env_file": path})
	}
	return nil
}

// tolerantCommand reports whether cmd runs without a valid configuration.
func tolerantCommand(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c == configCmd || c == versionCmd {
			return true
		}
	}
	return false
}

// cleanup releases resources.
func cleanup() {
	if logger != nil {
		_ = logger.Sync()
	}
	if closeLog != nil {
		_ = closeLog()
		closeLog = nil
	}
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for flag registration
func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "signatures", Title: "Decryption Signatures:"},
		&cobra.Group{ID: "config", Title: "Configuration:"},
	)

	rootCmd.PersistentFlags().StringVar(&homeDir, "home", "", "veil data directory (default: ~/.veil)")
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "auto", "output format: text, json, auto")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment variables from this file (default: ./.env when present)")
}
