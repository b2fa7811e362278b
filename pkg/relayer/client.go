package relayer

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	veilerr "github.com/mrz1836/veil/pkg/errors"
	"github.com/mrz1836/veil/pkg/fhe"
	"github.com/mrz1836/veil/pkg/metrics"
	"github.com/mrz1836/veil/pkg/retry"
	"github.com/mrz1836/veil/pkg/signature"
	"github.com/mrz1836/veil/pkg/validate"
)

// SignatureSource supplies decryption authorizations. *signature.Manager
// implements it.
type SignatureSource interface {
	LoadOrSign(ctx context.Context, contractAddresses []string, keyPair *fhe.Keypair) (*signature.DecryptionSignature, error)
}

// Client orchestrates relayer calls.
type Client struct {
	relayer    Relayer
	signatures SignatureSource
	limiter    *RateLimiter
	policy     retry.Policy
	logger     *zap.Logger
	metrics    *metrics.Metrics
	newID      func() string
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics records relayer calls and retries into m.
func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(c *Client) { c.metrics = m }
}

// WithRetryPolicy replaces retry.DefaultPolicy.
func WithRetryPolicy(p retry.Policy) ClientOption {
	return func(c *Client) { c.policy = p }
}

// WithRateLimiter replaces DefaultRateLimiter. Nil disables pacing.
func WithRateLimiter(l *RateLimiter) ClientOption {
	return func(c *Client) { c.limiter = l }
}

// WithRequestIDs replaces the uuid request id generator.
func WithRequestIDs(next func() string) ClientOption {
	return func(c *Client) {
		if next != nil {
			c.newID = next
		}
	}
}

// NewClient returns a client for relayer. signatures may be nil for a client
// that only encrypts.
func NewClient(relayer Relayer, signatures SignatureSource, opts ...ClientOption) (*Client, error) {
	if relayer == nil {
		return nil, veilerr.WithDetails(veilerr.ErrMissingParameter, map[string]string{"parameter": "relayer"})
	}

	c := &Client{
		relayer:    relayer,
		signatures: signatures,
		limiter:    DefaultRateLimiter(),
		policy:     retry.DefaultPolicy(),
		logger:     zap.NewNop(),
		newID:      uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// UserDecrypt decrypts handles for the current user. It obtains a decryption
// signature covering every distinct contract in pairs (cached or freshly
// signed) and sends one relayer request, retried under the client's policy.
// The result maps each requested handle, lowercased, to its cleartext.
func (c *Client) UserDecrypt(ctx context.Context, pairs []HandleContractPair) (map[string]string, error) {
	if c.signatures == nil {
		return nil, veilerr.WithDetails(veilerr.ErrMissingParameter, map[string]string{"parameter": "signatures"})
	}
	normalized, contracts, err := normalizePairs(pairs)
	if err != nil {
		return nil, err
	}

	sig, err := c.signatures.LoadOrSign(ctx, contracts, nil)
	if err != nil {
		return nil, err
	}

	req := UserDecryptRequest{
		RequestID:         c.newID(),
		Handles:           normalized,
		PublicKey:         sig.PublicKey(),
		PrivateKey:        sig.PrivateKey(),
		Signature:         sig.Signature(),
		ContractAddresses: sig.ContractAddresses(),
		UserAddress:       sig.UserAddress(),
		StartTimestamp:    sig.StartTimestamp(),
		DurationDays:      sig.DurationDays(),
	}
	log := c.logger.With(zap.String("request_id", req.RequestID), zap.String("op", OpUserDecrypt))

	res := retry.Do(ctx, c.retryPolicy(log), func(ctx context.Context) (map[string]string, error) {
		out, err := call(ctx, c, OpUserDecrypt, func(ctx context.Context) (map[string]string, error) {
			return c.relayer.UserDecrypt(ctx, req)
		})
		if err != nil {
			return nil, classifyRelayerError(err, veilerr.ErrDecryptionFailed)
		}
		return collectCleartexts(out, normalized)
	})
	if !res.Success {
		c.finishFailed(log, retry.Exhausted(c.policy, res), res.Attempts, res.Err)
		return nil, res.Err
	}

	log.Info("user decrypt completed",
		zap.Int("handles", len(normalized)),
		zap.Int("attempts", res.Attempts),
		zap.Duration("elapsed", res.TotalTime),
	)
	return res.Value, nil
}

// Encrypt encrypts values for contractAddress on behalf of userAddress.
func (c *Client) Encrypt(ctx context.Context, contractAddress, userAddress string, values []TypedValue) (EncryptedInput, error) {
	if err := validate.Address(contractAddress); err != nil {
		return EncryptedInput{}, err
	}
	if err := validate.Address(userAddress); err != nil {
		return EncryptedInput{}, err
	}
	if len(values) == 0 {
		return EncryptedInput{}, veilerr.WithDetails(veilerr.ErrMissingParameter, map[string]string{"parameter": "values"})
	}

	canonical := make([]EncryptedValue, len(values))
	for i, v := range values {
		ev, err := canonicalValue(v)
		if err != nil {
			return EncryptedInput{}, err
		}
		canonical[i] = ev
	}

	req := EncryptRequest{
		RequestID:       c.newID(),
		ContractAddress: strings.ToLower(contractAddress),
		UserAddress:     strings.ToLower(userAddress),
		Values:          canonical,
	}
	log := c.logger.With(zap.String("request_id", req.RequestID), zap.String("op", OpEncrypt))

	res := retry.Do(ctx, c.retryPolicy(log), func(ctx context.Context) (EncryptedInput, error) {
		out, err := call(ctx, c, OpEncrypt, func(ctx context.Context) (EncryptedInput, error) {
			return c.relayer.Encrypt(ctx, req)
		})
		if err != nil {
			return EncryptedInput{}, classifyRelayerError(err, veilerr.ErrEncryptionFailed)
		}
		if len(out.Handles) != len(canonical) {
			return EncryptedInput{}, veilerr.WithDetails(veilerr.ErrEncryptionFailed, map[string]string{
				"handles": strconv.Itoa(len(out.Handles)) + " returned for " + strconv.Itoa(len(canonical)) + " values",
			})
		}
		return out, nil
	})
	if !res.Success {
		c.finishFailed(log, retry.Exhausted(c.policy, res), res.Attempts, res.Err)
		return EncryptedInput{}, res.Err
	}

	log.Info("encrypt completed", zap.Int("values", len(canonical)), zap.Int("attempts", res.Attempts))
	return res.Value, nil
}

// call paces and times one relayer round trip.
func call[T any](ctx context.Context, c *Client, op string, fn func(context.Context) (T, error)) (T, error) {
	if err := c.limiter.Wait(ctx, op); err != nil {
		var zero T
		return zero, err
	}
	start := time.Now()
	out, err := fn(ctx)
	c.metrics.RecordRelayerCall(time.Since(start), err)
	return out, err
}

func (c *Client) retryPolicy(log *zap.Logger) retry.Policy {
	p := c.policy
	onRetry := p.OnRetry
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.metrics.RecordRetry()
		log.Warn("retrying relayer call",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.String("code", veilerr.Code(err)),
			zap.Error(err),
		)
		if onRetry != nil {
			onRetry(attempt, err, delay)
		}
	}
	return p
}

func (c *Client) finishFailed(log *zap.Logger, exhausted bool, attempts int, err error) {
	if exhausted {
		c.metrics.RecordRetryExhausted()
	}
	log.Error("relayer call failed",
		zap.Int("attempts", attempts),
		zap.String("code", veilerr.Code(err)),
		zap.Error(err),
	)
}

// normalizePairs validates pairs and returns lowercased copies plus the
// distinct contracts in first-seen order.
func normalizePairs(pairs []HandleContractPair) ([]HandleContractPair, []string, error) {
	if len(pairs) == 0 {
		return nil, nil, veilerr.WithDetails(veilerr.ErrMissingParameter, map[string]string{"parameter": "handles"})
	}

	out := make([]HandleContractPair, len(pairs))
	seen := make(map[string]struct{}, len(pairs))
	var contracts []string
	for i, p := range pairs {
		if err := validate.Handle(p.Handle); err != nil {
			return nil, nil, err
		}
		if err := validate.Address(p.ContractAddress); err != nil {
			return nil, nil, err
		}
		contract := strings.ToLower(p.ContractAddress)
		out[i] = HandleContractPair{Handle: strings.ToLower(p.Handle), ContractAddress: contract}
		if _, ok := seen[contract]; !ok {
			seen[contract] = struct{}{}
			contracts = append(contracts, contract)
		}
	}
	return out, contracts, nil
}

// collectCleartexts keys the relayer answer by lowercase handle and checks
// every requested handle is present.
func collectCleartexts(out map[string]string, requested []HandleContractPair) (map[string]string, error) {
	byHandle := make(map[string]string, len(out))
	for h, v := range out {
		byHandle[strings.ToLower(h)] = v
	}

	result := make(map[string]string, len(requested))
	for _, p := range requested {
		v, ok := byHandle[p.Handle]
		if !ok {
			return nil, veilerr.WithDetails(veilerr.ErrDecryptionFailed, map[string]string{"missing_handle": p.Handle})
		}
		result[p.Handle] = v
	}
	return result, nil
}

func canonicalValue(v TypedValue) (EncryptedValue, error) {
	t, err := validate.ParseEncryptedType(string(v.Type))
	if err != nil {
		return EncryptedValue{}, err
	}
	if err := validate.EncryptionValue(t, v.Value); err != nil {
		return EncryptedValue{}, err
	}

	switch t {
	case validate.TypeBool:
		return EncryptedValue{Type: t, Value: strconv.FormatBool(v.Value.(bool))}, nil
	case validate.TypeAddress:
		return EncryptedValue{Type: t, Value: strings.ToLower(v.Value.(string))}, nil
	default:
		n, _ := validate.ToBigInt(v.Value)
		return EncryptedValue{Type: t, Value: n.String()}, nil
	}
}

// classifyRelayerError keeps coded and context errors, maps network failures
// to NETWORK_ERROR, and everything else to fallback.
func classifyRelayerError(err error, fallback *veilerr.VeilError) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var ve *veilerr.VeilError
	if errors.As(err, &ve) && ve.Kind != veilerr.KindGeneral {
		return err
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return veilerr.WithCause(veilerr.ErrNetworkError, err)
	}
	return veilerr.WithCause(fallback, err)
}
