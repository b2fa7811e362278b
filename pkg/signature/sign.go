package signature

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"

	veilerr "github.com/mrz1836/veil/pkg/errors"
	"github.com/mrz1836/veil/pkg/fhe"
	"github.com/mrz1836/veil/pkg/retry"
	"github.com/mrz1836/veil/pkg/validate"
)

// TypedDataSigner signs EIP-712 typed data on behalf of the user. Returning an
// error is a normal outcome: the user may decline. Wallets should return
// errors.ErrSignatureRejected (from pkg/errors) for a declined request.
type TypedDataSigner interface {
	SignTypedData(ctx context.Context, domain apitypes.TypedDataDomain, types apitypes.Types, message apitypes.TypedDataMessage) (string, error)
}

// AddressResolver returns the current user's account address.
type AddressResolver interface {
	GetAddress(ctx context.Context) (string, error)
}

// SignTypedDataFunc adapts a function to TypedDataSigner.
type SignTypedDataFunc func(ctx context.Context, domain apitypes.TypedDataDomain, types apitypes.Types, message apitypes.TypedDataMessage) (string, error)

// SignTypedData implements TypedDataSigner.
func (f SignTypedDataFunc) SignTypedData(ctx context.Context, domain apitypes.TypedDataDomain, types apitypes.Types, message apitypes.TypedDataMessage) (string, error) {
	return f(ctx, domain, types, message)
}

// AddressFunc adapts a function to AddressResolver.
type AddressFunc func(ctx context.Context) (string, error)

// GetAddress implements AddressResolver.
func (f AddressFunc) GetAddress(ctx context.Context) (string, error) {
	return f(ctx)
}

// New asks the wallet to sign a fresh decryption authorization for contracts
// and the given keypair, valid for durationDays (DefaultDurationDays when 0)
// from now.
//
// Failing to obtain a signature is an expected outcome, returned as a nil
// signature and a classified error: SIGNATURE_REJECTED when the user declined,
// OPERATION_ABORTED on cancellation, input errors for malformed arguments, and
// SIGNATURE_CREATION_FAILED for anything else.
func New(
	ctx context.Context,
	instance fhe.Instance,
	contractAddresses []string,
	publicKey, privateKey string,
	signer TypedDataSigner,
	resolver AddressResolver,
	durationDays int,
	opts ...Option,
) (*DecryptionSignature, error) {
	o := newOptions(opts)

	sig, err := sign(ctx, instance, contractAddresses, publicKey, privateKey, signer, resolver, durationDays, o)
	o.metrics.RecordSigning(err)
	if err != nil {
		o.logger.Debug("decryption signature not created",
			zap.String("code", veilerr.Code(err)),
			zap.Error(err),
		)
		return nil, err
	}

	o.logger.Info("decryption signature created",
		zap.String("user", sig.userAddress),
		zap.Int("contracts", len(sig.contractAddresses)),
		zap.Time("expires_at", sig.ExpiresAt()),
	)
	return sig, nil
}

func sign(
	ctx context.Context,
	instance fhe.Instance,
	contractAddresses []string,
	publicKey, privateKey string,
	signer TypedDataSigner,
	resolver AddressResolver,
	durationDays int,
	o options,
) (*DecryptionSignature, error) {
	if instance == nil || signer == nil || resolver == nil {
		return nil, veilerr.WithDetails(veilerr.ErrMissingParameter, map[string]string{"parameter": "instance, signer and resolver"})
	}
	if publicKey == "" || privateKey == "" {
		return nil, veilerr.WithDetails(veilerr.ErrMissingParameter, map[string]string{"parameter": "keypair"})
	}
	if durationDays == 0 {
		durationDays = DefaultDurationDays
	}
	if durationDays < 0 {
		return nil, veilerr.WithDetails(veilerr.ErrInvalidInput, map[string]string{"durationDays": "must be positive"})
	}

	userAddress, err := resolver.GetAddress(ctx)
	if err != nil {
		return nil, classifySigningError(ctx, err)
	}
	if err := validate.Address(userAddress); err != nil {
		return nil, err
	}

	start := o.now().Unix()
	td, err := instance.CreateEIP712(publicKey, contractAddresses, start, durationDays)
	if err != nil {
		return nil, classifySigningError(ctx, err)
	}

	sigHex, err := signer.SignTypedData(ctx, td.Domain, typesWithoutDomain(td.Types), td.Message)
	if err != nil {
		return nil, classifySigningError(ctx, err)
	}
	if sigHex == "" {
		return nil, veilerr.WithDetails(veilerr.ErrSignatureCreation, map[string]string{"signature": "wallet returned an empty signature"})
	}

	return &DecryptionSignature{
		publicKey:         publicKey,
		privateKey:        privateKey,
		signature:         sigHex,
		startTimestamp:    start,
		durationDays:      durationDays,
		userAddress:       userAddress,
		contractAddresses: append([]string(nil), contractAddresses...),
		eip712:            td,
	}, nil
}

// signWithRetry runs New under the configured retry policy, if any.
func signWithRetry(
	ctx context.Context,
	instance fhe.Instance,
	contractAddresses []string,
	kp fhe.Keypair,
	signer TypedDataSigner,
	resolver AddressResolver,
	o options,
	opts []Option,
) (*DecryptionSignature, error) {
	attempt := func(ctx context.Context) (*DecryptionSignature, error) {
		return New(ctx, instance, contractAddresses, kp.PublicKey, kp.PrivateKey, signer, resolver, o.durationDays, opts...)
	}
	if o.retry == nil {
		return attempt(ctx)
	}

	p := *o.retry
	onRetry := p.OnRetry
	p.OnRetry = func(n int, err error, delay time.Duration) {
		o.metrics.RecordRetry()
		o.logger.Warn("retrying decryption signature",
			zap.Int("attempt", n),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if onRetry != nil {
			onRetry(n, err, delay)
		}
	}

	res := retry.Do(ctx, p, attempt)
	if retry.Exhausted(p, res) {
		o.metrics.RecordRetryExhausted()
	}
	return res.Value, res.Err
}

// typesWithoutDomain drops EIP712Domain, which wallets derive from the domain
// themselves and reject when supplied.
func typesWithoutDomain(types apitypes.Types) apitypes.Types {
	out := make(apitypes.Types, len(types))
	for k, v := range types {
		if k == fhe.DomainTypeName {
			continue
		}
		out[k] = v
	}
	return out
}

// userRejectionMarkers are message fragments wallets use for a declined request
// (EIP-1193 code 4001 and common provider wording).
//
//nolint:gochecknoglobals // Lookup table
var userRejectionMarkers = []string{"user rejected", "user denied", "rejected by user", "4001"}

func classifySigningError(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return veilerr.WithCause(veilerr.ErrTimeout, err)
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		return veilerr.WithCause(veilerr.ErrOperationAborted, err)
	}

	var ve *veilerr.VeilError
	if errors.As(err, &ve) && ve.Kind != veilerr.KindGeneral {
		return err
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range userRejectionMarkers {
		if strings.Contains(msg, marker) {
			return veilerr.WithCause(veilerr.ErrSignatureRejected, err)
		}
	}
	return veilerr.WithCause(veilerr.ErrSignatureCreation, err)
}
