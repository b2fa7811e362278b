package cli

import (
	"strconv"
	"time"

	"github.com/spf13/cobra"

	veilerr "github.com/mrz1836/veil/pkg/errors"
	"github.com/mrz1836/veil/pkg/retry"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var backoffCmd = &cobra.Command{
	Use:   "backoff",
	Short: "Show the retry schedule",
	Long: `Print the delay before each retry under the configured retry policy
(retry.* in the configuration file). With jitter enabled each delay falls
anywhere between the Min and Max columns.`,
	Example: `  veil backoff
  veil backoff --retries 6 --initial 250ms --multiplier 3
  VEIL_MAX_RETRIES=5 veil backoff -o json`,
	RunE: runBackoff,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	backoffRetries    int
	backoffInitial    time.Duration
	backoffMax        time.Duration
	backoffMultiplier float64
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(backoffCmd)
	backoffCmd.GroupID = "config"

	backoffCmd.Flags().IntVar(&backoffRetries, "retries", -1, "number of retries (default: retry.max_retries)")
	backoffCmd.Flags().DurationVar(&backoffInitial, "initial", 0, "delay before the first retry (default: retry.initial_delay_ms)")
	backoffCmd.Flags().DurationVar(&backoffMax, "max", 0, "delay cap (default: retry.max_delay_ms)")
	backoffCmd.Flags().Float64Var(&backoffMultiplier, "multiplier", 0, "growth per retry (default: retry.backoff_multiplier)")
}

// backoffPolicy applies the command flags on top of the configured policy.
func backoffPolicy() (retry.Policy, error) {
	p := cfg.RetryPolicy()
	if backoffRetries >= 0 {
		p.MaxRetries = backoffRetries
	}
	if backoffInitial > 0 {
		p.InitialDelay = backoffInitial
	}
	if backoffMax > 0 {
		p.MaxDelay = backoffMax
	}
	if backoffMultiplier != 0 {
		if backoffMultiplier < 1 {
			return p, veilerr.WithDetails(veilerr.ErrInvalidInput, map[string]string{
				"multiplier": strconv.FormatFloat(backoffMultiplier, 'f', -1, 64),
			})
		}
		p.BackoffMultiplier = backoffMultiplier
	}
	if p.MaxDelay < p.InitialDelay {
		p.MaxDelay = p.InitialDelay
	}
	return p, nil
}

func runBackoff(_ *cobra.Command, _ []string) error {
	p, err := backoffPolicy()
	if err != nil {
		return err
	}

	rows := make([][]string, 0, p.MaxRetries)
	var elapsed time.Duration
	for attempt := 0; attempt < p.MaxRetries; attempt++ {
		nominal := retry.CalculateBackoffDelay(attempt, p.InitialDelay, p.MaxDelay, p.BackoffMultiplier, false)
		low, high := p.DelayBounds(attempt)
		elapsed += nominal
		rows = append(rows, []string{
			strconv.Itoa(attempt + 1),
			nominal.String(),
			low.String(),
			high.String(),
			elapsed.String(),
		})
	}

	return formatter.Table([]string{"Retry", "Delay", "Min", "Max", "Elapsed"}, rows)
}
