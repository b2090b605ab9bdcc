// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package pre

import (
	"errors"
	"fmt"
)

// Common errors.
var (
	// ErrInvalidParameters is returned by an engine that cannot realize a
	// parameter record.
	ErrInvalidParameters = errors.New("invalid scheme parameters")
	// ErrResourceExhausted is returned by an engine that cannot admit a call
	// right now. It is the only engine error that is retried.
	ErrResourceExhausted = errors.New("engine resources exhausted")

	ErrCapabilityDisabled = errors.New("capability not enabled")
	ErrMalformedKey       = errors.New("malformed key material")
	ErrHopBudgetExceeded  = errors.New("hop budget exceeded")
	ErrEvalKeyMismatch    = errors.New("re-encryption key does not match ciphertext target")
	ErrDecryptionMismatch = errors.New("secret key is not the ciphertext target")
	ErrPayloadTooLarge    = errors.New("plaintext exceeds ring dimension")
	ErrResidueOutOfRange  = errors.New("residue out of range after normalization")
	ErrInvalidEncoding    = errors.New("invalid encoding")
	// ErrEnvelopeTampered means an envelope's tag does not match its
	// contents under the Context's envelope key.
	ErrEnvelopeTampered = errors.New("envelope authentication failed")
)

// ConfigurationError aborts a workflow before any key material exists.
type ConfigurationError struct {
	Params SchemeParameters
	Err    error
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configure context (n=%d, p=%d, hops=%d): %v",
		e.Params.RingDim, e.Params.PlaintextModulus, e.Params.HopBudget, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// KeyGenerationError means no usable key pair was produced.
type KeyGenerationError struct {
	Err error
}

func (e *KeyGenerationError) Error() string {
	return fmt.Sprintf("key generation failed: %v", e.Err)
}

func (e *KeyGenerationError) Unwrap() error { return e.Err }

// HopBudgetError rejects a re-encryption that would exceed the budget.
// The ciphertext it names is unchanged.
type HopBudgetError struct {
	Hops   int
	Budget int
}

func (e *HopBudgetError) Error() string {
	return fmt.Sprintf("re-encrypt: ciphertext at %d of %d hops", e.Hops, e.Budget)
}

func (e *HopBudgetError) Unwrap() error { return ErrHopBudgetExceeded }

// IsFatal reports whether err must terminate a workflow.
func IsFatal(err error) bool {
	var cfgErr *ConfigurationError
	var kgErr *KeyGenerationError
	return errors.As(err, &cfgErr) || errors.As(err, &kgErr)
}
