package cli

import (
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	veilerr "github.com/mrz1836/veil/pkg/errors"
	"github.com/mrz1836/veil/pkg/signature"
	"github.com/mrz1836/veil/pkg/storage"
	"github.com/mrz1836/veil/pkg/validate"
)

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clear cached decryption signatures",
	Long:  `Inspect and clear the decryption signatures held by the configured storage backend.`,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the cached signature for a user and contracts",
	Long: `Show the cached decryption signature for a user and set of contracts.

Contract order and address casing do not matter. Expired or unreadable
entries are reported as not found. The user defaults to the signing key's
address when --user is omitted.`,
	Example: `  veil cache show --contract 0xA... --user 0xf39F...
  veil cache show --contract 0xA... --contract 0xB... -o json`,
	RunE: runCacheShow,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cache keys",
	Long:  `List the storage keys of every cached entry. The memory backend is empty at the start of each process.`,
	Example: `  veil cache list
  veil cache list -o json`,
	RunE: runCacheList,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached signature",
	Long: `Remove every entry from the configured signature cache. The next request for
each user and contract set will ask the wallet to sign again.`,
	Example: `  veil cache clear
  veil cache clear --yes`,
	RunE: runCacheClear,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	cacheContracts []string
	cacheUser      string
	cachePublicKey string
	cacheYes       bool
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.GroupID = "signatures"
	cacheCmd.AddCommand(cacheShowCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)

	cacheShowCmd.Flags().StringSliceVar(&cacheContracts, "contract", nil, "contract address (repeatable)")
	cacheShowCmd.Flags().StringVar(&cacheUser, "user", "", "user address (default: the signing key's address)")
	cacheShowCmd.Flags().StringVar(&cachePublicKey, "public-key", "", "look up the entry pinned to this public key")
	_ = cacheShowCmd.MarkFlagRequired("contract")

	cacheClearCmd.Flags().BoolVarP(&cacheYes, "yes", "y", false, "do not ask for confirmation")
}

func runCacheShow(cmd *cobra.Command, _ []string) error {
	ctx, cancel := contextWithTimeout(cmd, cfg.RetryTimeout())
	defer cancel()

	user := cacheUser
	if user == "" {
		signer, err := resolveSigner(0)
		if err != nil {
			return err
		}
		user = signer.Address()
	}
	if err := validate.Address(user); err != nil {
		return err
	}
	if err := validate.Addresses(cacheContracts); err != nil {
		return err
	}

	s, err := openSDK(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	sig := signature.Load(ctx, s.store, s.instance, cacheContracts, user, cachePublicKey, s.options()...)
	if sig == nil {
		return veilerr.WithSuggestion(
			veilerr.WithDetails(veilerr.ErrNotFound, map[string]string{
				"user":      user,
				"contracts": strings.Join(cacheContracts, ","),
				"backend":   string(s.backend),
			}),
			"run 'veil sign' for these contracts to create one",
		)
	}

	view := newSignatureView(sig, true, string(s.backend))
	return formatter.Emit(view, view.writeText)
}

func runCacheList(cmd *cobra.Command, _ []string) error {
	ctx, cancel := contextWithTimeout(cmd, cfg.RetryTimeout())
	defer cancel()

	s, err := openSDK(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	keys, err := storage.Keys(ctx, s.store)
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(keys))
	for i, k := range keys {
		rows = append(rows, []string{strconv.Itoa(i + 1), k})
	}
	return formatter.Table([]string{"#", "Key"}, rows)
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	if !cacheYes && !promptConfirmFn("Remove every cached decryption signature?") {
		return veilerr.ErrOperationAborted
	}

	ctx, cancel := contextWithTimeout(cmd, cfg.RetryTimeout())
	defer cancel()

	s, err := openSDK(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	n, err := storage.Clear(ctx, s.store)
	if err != nil {
		return err
	}
	logger.Info("signature cache cleared", zap.Int("removed", n), zap.String("backend", string(s.backend)))

	return formatter.Success("Removed " + strconv.Itoa(n) + " cached entries from the " + string(s.backend) + " backend")
}
