package cli

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	veilerr "github.com/mrz1836/veil/pkg/errors"
	"github.com/mrz1836/veil/pkg/fhe"
	"github.com/mrz1836/veil/pkg/metrics"
	"github.com/mrz1836/veil/pkg/signature"
	"github.com/mrz1836/veil/pkg/validate"
)

// metricsNamespace prefixes exported metric names.
const metricsNamespace = "veil"

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var signCmd = &cobra.Command{
	Use:   "sign",
	Short: "Load or create a decryption signature",
	Long: `Return the cached decryption signature for the signing key and contracts,
signing a new one when none is cached or the cached one has expired.

The signing key comes from VEIL_PRIVATE_KEY, or VEIL_MNEMONIC (with the
optional VEIL_MNEMONIC_PASSPHRASE), or is read from the terminal. The
ephemeral private key is stored in the cache but never printed.`,
	Example: `  veil sign --contract 0x5FbDB2315678afecb367f032d93F642f64180aa3
  veil sign --contract 0xA... --contract 0xB... --days 30
  veil sign --contract 0xA... --force -o json
  veil sign --contract 0xA... --metrics-out /var/lib/node_exporter/veil.prom`,
	RunE: runSign,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var (
	signContracts  []string
	signDays       int
	signForce      bool
	signIndex      uint32
	signMetricsOut string
)

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(signCmd)
	signCmd.GroupID = "signatures"

	signCmd.Flags().StringSliceVar(&signContracts, "contract", nil, "contract address the signature authorizes (repeatable)")
	signCmd.Flags().IntVar(&signDays, "days", 0, "validity of a new signature in days (default: signature.duration_days)")
	signCmd.Flags().BoolVar(&signForce, "force", false, "discard the cached signature and sign a new one")
	signCmd.Flags().Uint32Var(&signIndex, "index", 0, "BIP-44 account index when signing with a mnemonic")
	signCmd.Flags().StringVar(&signMetricsOut, "metrics-out", "", "write Prometheus metrics to this textfile")
	_ = signCmd.MarkFlagRequired("contract")
}

// signatureView is the printable part of a decryption signature.
type signatureView struct {
	UserAddress       string    `json:"userAddress"`
	ContractAddresses []string  `json:"contractAddresses"`
	PublicKey         string    `json:"publicKey"`
	Signature         string    `json:"signature"`
	StartTimestamp    int64     `json:"startTimestamp"`
	DurationDays      int       `json:"durationDays"`
	ExpiresAt         time.Time `json:"expiresAt"`
	Cached            bool      `json:"cached"`
	Backend           string    `json:"backend"`
}

func newSignatureView(sig *signature.DecryptionSignature, cached bool, backend string) signatureView {
	return signatureView{
		UserAddress:       sig.UserAddress(),
		ContractAddresses: sig.ContractAddresses(),
		PublicKey:         sig.PublicKey(),
		Signature:         sig.Signature(),
		StartTimestamp:    sig.StartTimestamp(),
		DurationDays:      sig.DurationDays(),
		ExpiresAt:         sig.ExpiresAt(),
		Cached:            cached,
		Backend:           backend,
	}
}

func (v signatureView) writeText(w io.Writer) error {
	source := "signed"
	if v.Cached {
		source = "cached"
	}
	out(w, "User:       %s\n", v.UserAddress)
	out(w, "Contracts:  %s\n", strings.Join(v.ContractAddresses, ", "))
	out(w, "Public key: %s\n", v.PublicKey)
	out(w, "Signature:  %s\n", v.Signature)
	out(w, "Valid from: %s\n", time.Unix(v.StartTimestamp, 0).UTC().Format(time.RFC3339))
	out(w, "Expires:    %s (%d days)\n", v.ExpiresAt.Format(time.RFC3339), v.DurationDays)
	out(w, "Source:     %s (%s)\n", source, v.Backend)
	return nil
}

func runSign(cmd *cobra.Command, _ []string) error {
	ctx, cancel := contextWithTimeout(cmd, cfg.RetryTimeout())
	defer cancel()

	if err := validate.Addresses(signContracts); err != nil {
		return err
	}
	if signDays < 0 || signDays > fhe.MaxDurationDays {
		err := veilerr.WithDetails(veilerr.ErrInvalidInput, map[string]string{"days": strconv.Itoa(signDays)})
		return veilerr.WithSuggestion(err, "--days must be between 1 and "+strconv.Itoa(fhe.MaxDurationDays))
	}

	signer, err := resolveSigner(signIndex)
	if err != nil {
		return err
	}

	s, err := openSDK(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	var extra []signature.Option
	if signDays > 0 {
		extra = append(extra, signature.WithDurationDays(signDays))
	}
	mgr, err := s.manager(signer, extra...)
	if err != nil {
		return err
	}

	if signForce {
		if err := mgr.Forget(ctx, signContracts, signer.Address(), ""); err != nil {
			return err
		}
	}

	sig, err := mgr.LoadOrSign(ctx, signContracts, nil)
	if err != nil {
		return err
	}
	cached := s.metrics.Snapshot().CacheHits > 0

	if cfg.Signature.KeyByPublicKey && !cached {
		mgr.Save(ctx, sig, true)
	}

	logger.Info("decryption signature ready",
		zap.String("user", sig.UserAddress()),
		zap.Strings("contracts", sig.ContractAddresses()),
		zap.Bool("cached", cached),
	)

	if signMetricsOut != "" {
		if err := writeMetricsFile(signMetricsOut, s.metrics); err != nil {
			return err
		}
	}

	view := newSignatureView(sig, cached, string(s.backend))
	return formatter.Emit(view, view.writeText)
}

// writeMetricsFile exports m in the Prometheus text format for the node
// exporter textfile collector.
func writeMetricsFile(path string, m *metrics.Metrics) error {
	reg := prometheus.NewRegistry()
	if err := reg.Register(metrics.NewCollector(m, metricsNamespace)); err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return veilerr.WithDetails(veilerr.WithCause(veilerr.ErrGeneral, err), map[string]string{"metrics_out": path})
	}
	return nil
}
