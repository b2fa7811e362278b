package cli

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mrz1836/veil/internal/config"
	"github.com/mrz1836/veil/internal/output"
)

const (
	// Hardhat account #0.
	testPrivateKey = "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress    = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"
	testMnemonic   = "test test test test test test test test test test test junk"

	testContractA = "0x5FbDB2315678afecb367f032d93F642f64180aa3"
	testContractB = "0xe7f1725E7734CE288F8367e1Bb143E90bb3F0512"
)

// setupCLI installs a configuration rooted in a temp dir, a no-op logger and
// a formatter writing to the returned buffer. Globals are restored on cleanup.
func setupCLI(t *testing.T, format output.Format) *bytes.Buffer {
	t.Helper()

	saved := saveState()
	t.Cleanup(saved.restore)

	home := t.TempDir()
	cfg = config.Defaults()
	cfg.Home = home
	cfg.Storage.Path = filepath.Join(home, "signatures")
	cfg.Storage.IdentityFile = filepath.Join(home, "identity.age")
	cfg.Logging.Level = "off"
	cfg.Retry.InitialDelayMs = 1
	cfg.Retry.MaxDelayMs = 5
	cfg.Retry.TimeoutSeconds = 30

	logger = zap.NewNop()

	signContracts, signDays, signForce, signIndex, signMetricsOut = nil, 0, false, 0, ""
	cacheContracts, cacheUser, cachePublicKey, cacheYes = nil, "", "", false
	backoffRetries, backoffInitial, backoffMax, backoffMultiplier = -1, 0, 0, 0
	configForce = false

	promptSecretFn = func(string) (string, error) {
		t.Fatal("unexpected prompt")
		return "", nil
	}
	promptConfirmFn = func(string) bool { return false }

	buf := &bytes.Buffer{}
	formatter = output.NewFormatter(format, buf)
	return buf
}

// cliState is every package global a command reads.
type cliState struct {
	cfg       *config.Config
	logger    *zap.Logger
	formatter *output.Formatter

	homeDir, outputFormat, envFile string
	verbose                        bool

	promptSecret  func(string) (string, error)
	promptConfirm func(string) bool

	signContracts  []string
	signDays       int
	signForce      bool
	signIndex      uint32
	signMetricsOut string

	cacheContracts []string
	cacheUser      string
	cachePublicKey string
	cacheYes       bool

	backoffRetries    int
	backoffInitial    time.Duration
	backoffMax        time.Duration
	backoffMultiplier float64

	configForce bool
}

func saveState() cliState {
	return cliState{
		cfg: cfg, logger: logger, formatter: formatter,
		homeDir: homeDir, outputFormat: outputFormat, envFile: envFile, verbose: verbose,
		promptSecret: promptSecretFn, promptConfirm: promptConfirmFn,
		signContracts: signContracts, signDays: signDays, signForce: signForce,
		signIndex: signIndex, signMetricsOut: signMetricsOut,
		cacheContracts: cacheContracts, cacheUser: cacheUser,
		cachePublicKey: cachePublicKey, cacheYes: cacheYes,
		backoffRetries: backoffRetries, backoffInitial: backoffInitial,
		backoffMax: backoffMax, backoffMultiplier: backoffMultiplier,
		configForce: configForce,
	}
}

func (s cliState) restore() {
	cleanup()
	cfg, logger, formatter = s.cfg, s.logger, s.formatter
	homeDir, outputFormat, envFile, verbose = s.homeDir, s.outputFormat, s.envFile, s.verbose
	promptSecretFn, promptConfirmFn = s.promptSecret, s.promptConfirm
	signContracts, signDays, signForce = s.signContracts, s.signDays, s.signForce
	signIndex, signMetricsOut = s.signIndex, s.signMetricsOut
	cacheContracts, cacheUser, cachePublicKey, cacheYes = s.cacheContracts, s.cacheUser, s.cachePublicKey, s.cacheYes
	backoffRetries, backoffInitial = s.backoffRetries, s.backoffInitial
	backoffMax, backoffMultiplier = s.backoffMax, s.backoffMultiplier
	configForce = s.configForce
}

// decodeJSON decodes buf into v and resets buf for the next command.
func decodeJSON(t *testing.T, buf *bytes.Buffer, v any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(buf.Bytes(), v), buf.String())
	buf.Reset()
}
