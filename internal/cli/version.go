package cli

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/mrz1836/veil/internal/version"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Print the veil version, commit and build date, with the Go toolchain and platform.`,
	Example: `  veil version
  veil version -o json`,
	RunE: runVersion,
}

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.GroupID = "config"
}

func runVersion(_ *cobra.Command, _ []string) error {
	info := version.Get()
	return formatter.Emit(info, func(w io.Writer) error {
		out(w, "veil %s\n", info.String())
		out(w, "go: %s %s\n", info.GoVersion, info.Platform)
		return nil
	})
}
