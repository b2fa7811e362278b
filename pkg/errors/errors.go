// Package errors provides structured error handling for veil.
// It defines sentinel errors grouped by kind, exit codes, retryability
// classification, and the mapping from error codes to recovery guidance.
//
//nolint:revive // Package name intentionally shadows stdlib for domain-specific error handling
package errors

import (
	"errors"
	"fmt"
	"sort"
)

// Exit codes used by the CLI.
const (
	ExitSuccess    = 0 // Successful execution
	ExitGeneral    = 1 // General/unknown error
	ExitInput      = 2 // Invalid input
	ExitAuth       = 3 // Signature rejected or expired
	ExitNotFound   = 4 // Resource not found
	ExitPermission = 5 // Chain or permission problem
)

// Kind groups error codes by how callers should react to them.
type Kind int

// Error kinds.
const (
	// KindGeneral is anything not covered by the other kinds.
	KindGeneral Kind = iota
	// KindUserAction errors follow a user decision (declined signature, abort).
	KindUserAction
	// KindTransient errors come from infrastructure and may succeed on retry.
	KindTransient
	// KindInput errors come from malformed input; retrying cannot fix them.
	KindInput
	// KindStructural errors mean persisted or transmitted data is malformed.
	KindStructural
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindUserAction:
		return "user_action"
	case KindTransient:
		return "transient"
	case KindInput:
		return "input"
	case KindStructural:
		return "structural"
	default:
		return "general"
	}
}

// VeilError is the structured error type for veil.
type VeilError struct {
	Code       string            // Machine-readable error code
	Message    string            // Human-readable message
	Kind       Kind              // Taxonomy bucket
	Details    map[string]string // Additional context
	Suggestion string            // Actionable suggestion for user
	Cause      error             // Underlying error
	ExitCode   int               // Exit code for CLI
}

func (e *VeilError) Error() string {
	msg := e.Message

	// Include details in error message (sorted for deterministic output)
	if len(e.Details) > 0 {
		keys := make([]string, 0, len(e.Details))
		for k := range e.Details {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			msg = fmt.Sprintf("%s (%s: %s)", msg, k, e.Details[k])
		}
	}

	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *VeilError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is for VeilError.
func (e *VeilError) Is(target error) bool {
	var t *VeilError
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// Retryable reports whether the error belongs to the transient kind.
func (e *VeilError) Retryable() bool {
	return e.Kind == KindTransient
}

// User-action errors.
var (
	ErrSignatureRejected = &VeilError{
		Code:       "SIGNATURE_REJECTED",
		Message:    "signature request was rejected",
		Kind:       KindUserAction,
		Suggestion: "approve the signature request in your wallet to authorize decryption",
		ExitCode:   ExitAuth,
	}

	ErrOperationAborted = &VeilError{
		Code:       "OPERATION_ABORTED",
		Message:    "operation was aborted",
		Kind:       KindUserAction,
		Suggestion: "the operation was cancelled before it completed; start it again when ready",
		ExitCode:   ExitGeneral,
	}

	ErrUnsupportedChain = &VeilError{
		Code:       "UNSUPPORTED_CHAIN",
		Message:    "chain is not supported",
		Kind:       KindUserAction,
		Suggestion: "switch your wallet to a network supported by the relayer",
		ExitCode:   ExitPermission,
	}

	ErrChainMismatch = &VeilError{
		Code:       "CHAIN_MISMATCH",
		Message:    "wallet chain does not match the configured chain",
		Kind:       KindUserAction,
		Suggestion: "switch your wallet to the configured network and try again",
		ExitCode:   ExitPermission,
	}
)

// Transient errors.
var (
	ErrNetworkError = &VeilError{
		Code:       "NETWORK_ERROR",
		Message:    "network communication failed",
		Kind:       KindTransient,
		Suggestion: "check your connection; the request will be retried automatically",
		ExitCode:   ExitGeneral,
	}

	ErrStorage = &VeilError{
		Code:       "STORAGE_ERROR",
		Message:    "storage operation failed",
		Kind:       KindTransient,
		Suggestion: "check that the storage backend is reachable and has free space",
		ExitCode:   ExitGeneral,
	}

	ErrTimeout = &VeilError{
		Code:       "TIMEOUT",
		Message:    "operation timed out",
		Kind:       KindTransient,
		Suggestion: "the relayer took too long to respond; try again in a moment",
		ExitCode:   ExitGeneral,
	}

	ErrRateLimited = &VeilError{
		Code:       "RATE_LIMITED",
		Message:    "rate limited",
		Kind:       KindTransient,
		Suggestion: "too many requests were sent; wait a moment before retrying",
		ExitCode:   ExitGeneral,
	}

	ErrEncryptionFailed = &VeilError{
		Code:       "ENCRYPTION_FAILED",
		Message:    "encryption failed",
		Kind:       KindTransient,
		Suggestion: "encryption could not be completed; try again",
		ExitCode:   ExitGeneral,
	}

	ErrDecryptionFailed = &VeilError{
		Code:       "DECRYPTION_FAILED",
		Message:    "decryption failed",
		Kind:       KindTransient,
		Suggestion: "decryption could not be completed; make sure the contract granted you access and try again",
		ExitCode:   ExitGeneral,
	}

	ErrSignatureCreation = &VeilError{
		Code:       "SIGNATURE_CREATION_FAILED",
		Message:    "failed to create decryption signature",
		Kind:       KindTransient,
		Suggestion: "make sure your wallet is connected and unlocked, then try again",
		ExitCode:   ExitAuth,
	}

	ErrInstanceCreation = &VeilError{
		Code:       "INSTANCE_CREATION_FAILED",
		Message:    "failed to create encryption instance",
		Kind:       KindTransient,
		Suggestion: "check the chain configuration and relayer availability",
		ExitCode:   ExitGeneral,
	}
)

// Input errors.
var (
	ErrInvalidInput = &VeilError{
		Code:     "INVALID_INPUT",
		Message:  "invalid input",
		Kind:     KindInput,
		ExitCode: ExitInput,
	}

	ErrInvalidAddress = &VeilError{
		Code:       "INVALID_ADDRESS",
		Message:    "invalid address format",
		Kind:       KindInput,
		Suggestion: "addresses must be 0x followed by 40 hexadecimal characters",
		ExitCode:   ExitInput,
	}

	ErrInvalidChecksum = &VeilError{
		Code:       "INVALID_CHECKSUM",
		Message:    "invalid address checksum",
		Kind:       KindInput,
		Suggestion: "use the all-lowercase form or the correct EIP-55 checksum form",
		ExitCode:   ExitInput,
	}

	ErrInvalidType = &VeilError{
		Code:       "INVALID_TYPE",
		Message:    "invalid type",
		Kind:       KindInput,
		Suggestion: "the value does not have the expected shape",
		ExitCode:   ExitInput,
	}

	ErrInvalidEncryptionValue = &VeilError{
		Code:       "INVALID_ENCRYPTION_VALUE",
		Message:    "invalid value for encryption",
		Kind:       KindInput,
		Suggestion: "the value is out of range for the selected encrypted type",
		ExitCode:   ExitInput,
	}

	ErrMissingParameter = &VeilError{
		Code:       "MISSING_PARAMETER",
		Message:    "required parameter is missing",
		Kind:       KindInput,
		ExitCode:   ExitInput,
		Suggestion: "provide every required argument",
	}

	ErrInvalidHandle = &VeilError{
		Code:       "INVALID_HANDLE",
		Message:    "invalid ciphertext handle",
		Kind:       KindInput,
		Suggestion: "handles must be 0x followed by 64 hexadecimal characters",
		ExitCode:   ExitInput,
	}

	ErrSignatureExpired = &VeilError{
		Code:       "SIGNATURE_EXPIRED",
		Message:    "decryption signature has expired",
		Kind:       KindInput,
		Suggestion: "sign a new decryption authorization",
		ExitCode:   ExitAuth,
	}
)

// Structural errors.
var (
	ErrInvalidSignatureFormat = &VeilError{
		Code:     "INVALID_SIGNATURE_FORMAT",
		Message:  "malformed decryption signature",
		Kind:     KindStructural,
		ExitCode: ExitInput,
	}

	ErrCacheCorrupted = &VeilError{
		Code:     "CACHE_CORRUPTED",
		Message:  "cached entry is corrupted",
		Kind:     KindStructural,
		ExitCode: ExitGeneral,
	}
)

// General errors.
var (
	ErrGeneral = &VeilError{
		Code:     "GENERAL_ERROR",
		Message:  "an error occurred",
		ExitCode: ExitGeneral,
	}

	ErrNotFound = &VeilError{
		Code:     "NOT_FOUND",
		Message:  "resource not found",
		ExitCode: ExitNotFound,
	}

	ErrConfigInvalid = &VeilError{
		Code:     "CONFIG_INVALID",
		Message:  "configuration file is invalid",
		ExitCode: ExitInput,
	}

	ErrUnknownConfigKey = &VeilError{
		Code:     "UNKNOWN_CONFIG_KEY",
		Message:  "unknown config key",
		ExitCode: ExitInput,
	}
)

// New creates a new VeilError with the given code and message.
func New(code, message string) *VeilError {
	return &VeilError{
		Code:     code,
		Message:  message,
		ExitCode: ExitGeneral,
	}
}

// Wrap wraps an error with additional context.
func Wrap(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}

	msg := fmt.Sprintf(format, args...)

	var ve *VeilError
	if errors.As(err, &ve) {
		return &VeilError{
			Code:       ve.Code,
			Message:    fmt.Sprintf("%s: %s", msg, ve.Message),
			Kind:       ve.Kind,
			Details:    ve.Details,
			Suggestion: ve.Suggestion,
			Cause:      err,
			ExitCode:   ve.ExitCode,
		}
	}

	return &VeilError{
		Code:     "GENERAL_ERROR",
		Message:  msg,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithCause returns a copy of the sentinel carrying cause as its underlying error.
// The result still matches the sentinel with errors.Is.
func WithCause(sentinel *VeilError, cause error) error {
	cp := *sentinel
	cp.Cause = cause
	return &cp
}

// WithDetails adds details to an error.
func WithDetails(err error, details map[string]string) error {
	if err == nil {
		return nil
	}

	var ve *VeilError
	if errors.As(err, &ve) {
		return &VeilError{
			Code:       ve.Code,
			Message:    ve.Message,
			Kind:       ve.Kind,
			Details:    details,
			Suggestion: ve.Suggestion,
			Cause:      ve.Cause,
			ExitCode:   ve.ExitCode,
		}
	}

	return &VeilError{
		Code:     "GENERAL_ERROR",
		Message:  err.Error(),
		Details:  details,
		Cause:    err,
		ExitCode: ExitGeneral,
	}
}

// WithSuggestion adds a suggestion to an error.
func WithSuggestion(err error, suggestion string) error {
	if err == nil {
		return nil
	}

	var ve *VeilError
	if errors.As(err, &ve) {
		return &VeilError{
			Code:       ve.Code,
			Message:    ve.Message,
			Kind:       ve.Kind,
			Details:    ve.Details,
			Suggestion: suggestion,
			Cause:      ve.Cause,
			ExitCode:   ve.ExitCode,
		}
	}

	return &VeilError{
		Code:       "GENERAL_ERROR",
		Message:    err.Error(),
		Suggestion: suggestion,
		Cause:      err,
		ExitCode:   ExitGeneral,
	}
}

// ExitCode returns the appropriate exit code for an error.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var ve *VeilError
	if errors.As(err, &ve) {
		return ve.ExitCode
	}

	return ExitGeneral
}

// Code returns the error code for an error.
func Code(err error) string {
	var ve *VeilError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return "GENERAL_ERROR"
}

// KindOf returns the kind of the outermost VeilError in the chain.
func KindOf(err error) Kind {
	var ve *VeilError
	if errors.As(err, &ve) {
		return ve.Kind
	}
	return KindGeneral
}

// IsRetryable reports whether err is classified as transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) == KindTransient
}

// Is wraps errors.Is for convenience.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As wraps errors.As for convenience.
func As(err error, target any) bool {
	return errors.As(err, target)
}
