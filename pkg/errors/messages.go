package errors

import (
	"context"
	"errors"
)

// userMessages maps error codes to short, non-technical descriptions for end users.
//
//nolint:gochecknoglobals // Read-only lookup table
var userMessages = map[string]string{
	"SIGNATURE_REJECTED":        "You declined the signature request.",
	"OPERATION_ABORTED":         "The operation was cancelled.",
	"UNSUPPORTED_CHAIN":         "This network is not supported.",
	"CHAIN_MISMATCH":            "Your wallet is connected to a different network.",
	"NETWORK_ERROR":             "Could not reach the relayer.",
	"STORAGE_ERROR":             "Could not access local storage.",
	"TIMEOUT":                   "The request took too long.",
	"RATE_LIMITED":              "Too many requests. Please slow down.",
	"ENCRYPTION_FAILED":         "Your value could not be encrypted.",
	"DECRYPTION_FAILED":         "The value could not be decrypted.",
	"SIGNATURE_CREATION_FAILED": "Could not create the decryption authorization.",
	"INSTANCE_CREATION_FAILED":  "Could not initialize encryption.",
	"INVALID_ADDRESS":           "The address is not valid.",
	"INVALID_CHECKSUM":          "The address checksum is not valid.",
	"INVALID_TYPE":              "The value has the wrong type.",
	"INVALID_ENCRYPTION_VALUE":  "The value cannot be encrypted with the selected type.",
	"MISSING_PARAMETER":         "A required value is missing.",
	"INVALID_HANDLE":            "The encrypted value reference is not valid.",
	"SIGNATURE_EXPIRED":         "Your decryption authorization has expired.",
	"INVALID_SIGNATURE_FORMAT":  "The stored authorization is damaged.",
	"CACHE_CORRUPTED":           "The stored data is damaged.",
}

// Recovery pairs a user facing message with guidance on what to do next.
type Recovery struct {
	Code       string
	Message    string
	Suggestion string
	Retryable  bool
}

// UserMessage returns a short human readable description of err.
func UserMessage(err error) string {
	return RecoveryFor(err).Message
}

// RecoveryFor maps err to a user facing message and suggestion.
func RecoveryFor(err error) Recovery {
	if err == nil {
		return Recovery{}
	}

	if errors.Is(err, context.Canceled) {
		return RecoveryFor(ErrOperationAborted)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return RecoveryFor(ErrTimeout)
	}

	var ve *VeilError
	if !errors.As(err, &ve) {
		return Recovery{
			Code:    "GENERAL_ERROR",
			Message: err.Error(),
		}
	}

	msg, ok := userMessages[ve.Code]
	if !ok {
		msg = ve.Message
	}

	return Recovery{
		Code:       ve.Code,
		Message:    msg,
		Suggestion: ve.Suggestion,
		Retryable:  ve.Retryable(),
	}
}
