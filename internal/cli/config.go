package cli

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrz1836/veil/internal/config"
	veilerr "github.com/mrz1836/veil/pkg/errors"
)

// configCmd is the parent command for configuration operations.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View and modify veil configuration settings. Values resolve in order:
command-line flags, VEIL_* environment variables, the configuration file,
built-in defaults.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Long: `Create a default configuration file at <home>/config.yaml.

An existing file is left alone unless --force is given.`,
	Example: `  veil config init
  veil config init --force
  veil --home /tmp/veil config init`,
	RunE: runConfigInit,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display every setting in effect after environment and flag overrides.`,
	Example: `  veil config show
  veil config show -o json`,
	RunE: runConfigShow,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configGetCmd = &cobra.Command{
	Use:   "get <path>",
	Short: "Get a configuration value",
	Long:  `Print one setting by its dotted path. 'veil config show' lists every path.`,
	Example: `  veil config get storage.backend
  veil config get retry.max_retries`,
	Args: cobra.ExactArgs(1),
	RunE: runConfigGet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var configSetCmd = &cobra.Command{
	Use:   "set <path> <value>",
	Short: "Set a configuration value",
	Long: `Set one setting by its dotted path and save the configuration file.

The resulting configuration is validated first; an invalid value leaves the
file untouched.`,
	Example: `  veil config set storage.backend redis
  veil config set storage.redis_addr redis.internal:6379
  veil config set retry.max_retries 5
  veil config set logging.level debug`,
	Args: cobra.ExactArgs(2),
	RunE: runConfigSet,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var configForce bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.GroupID = "config"
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configGetCmd)
	configCmd.AddCommand(configSetCmd)

	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite existing configuration")
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	configPath := config.Path(cfg.Home)

	if _, err := os.Stat(configPath); err == nil && !configForce {
		return veilerr.WithSuggestion(
			veilerr.WithDetails(veilerr.ErrGeneral, map[string]string{"path": configPath}),
			"configuration already exists; use --force to overwrite",
		)
	}

	defaults := config.Defaults()
	defaults.Home = cfg.Home
	if err := config.Save(defaults, configPath); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if formatter.IsJSON() {
		return formatter.Success("configuration initialized at " + configPath)
	}

	w := formatter.Writer()
	out(w, "Configuration initialized at %s\n", configPath)
	outln(w)
	outln(w, "Edit this file to configure:")
	outln(w, "  - chain.chain_id, chain.verifying_contract: the EIP-712 domain")
	outln(w, "  - storage.backend: memory, file or redis")
	outln(w, "  - signature.duration_days: validity of new signatures")
	outln(w, "  - retry.*: backoff for wallet signing")
	return nil
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	keys := config.Keys()
	values := make(map[string]string, len(keys))
	rows := make([][]string, 0, len(keys))
	for _, k := range keys {
		v, err := config.Get(cfg, k)
		if err != nil {
			return err
		}
		values[k] = v
		rows = append(rows, []string{k, v})
	}

	return formatter.Emit(values, func(w io.Writer) error {
		out(w, "# %s\n", config.Path(cfg.Home))
		return formatter.Table([]string{"Key", "Value"}, rows)
	})
}

func runConfigGet(_ *cobra.Command, args []string) error {
	value, err := config.Get(cfg, args[0])
	if err != nil {
		return err
	}

	return formatter.Emit(map[string]string{args[0]: value}, func(w io.Writer) error {
		outln(w, value)
		return nil
	})
}

func runConfigSet(_ *cobra.Command, args []string) error {
	path, value := args[0], args[1]

	// Edit the file contents, not the environment-merged view.
	configPath := config.Path(cfg.Home)
	current, err := config.Load(configPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return veilerr.WithCause(veilerr.ErrConfigInvalid, err)
		}
		current = config.Defaults()
		current.Home = cfg.Home
	}

	if err := config.Set(current, path, value); err != nil {
		return err
	}
	if err := config.Save(current, configPath); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	return formatter.Success(fmt.Sprintf("Set %s = %s", path, value))
}
