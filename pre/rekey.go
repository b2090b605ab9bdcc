// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package pre

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// EvalKey is a directional re-encryption key from Source to Target.
type EvalKey struct {
	c      *Context
	source KeyID
	target KeyID
	handle Handle
}

// Source is the key pair whose ciphertexts the key accepts.
func (evk *EvalKey) Source() KeyID { return evk.source }

// Target is the key pair re-encrypted ciphertexts decrypt under.
func (evk *EvalKey) Target() KeyID { return evk.target }

// Handle returns the engine object.
func (evk *EvalKey) Handle() Handle { return evk.handle }

// GenReKey derives a re-encryption key from the source secret key and the
// target public key. Engine errors are returned unmodified.
func GenReKey(ctx context.Context, c *Context, source *SecretKey, target *PublicKey) (*EvalKey, error) {
	if err := c.require(CapPRE|CapKeySwitch, "GenReKey"); err != nil {
		return nil, err
	}
	if source == nil || target == nil {
		return nil, fmt.Errorf("GenReKey: %w: nil key", ErrMalformedKey)
	}

	h, err := c.backend.ReKeyGen(ctx, source.handle, target.handle)
	if err != nil {
		return nil, err
	}

	c.log.Debug("re-encryption key derived",
		zap.String("source", source.id.Short()),
		zap.String("target", target.id.Short()),
	)
	return &EvalKey{c: c, source: source.id, target: target.id, handle: h}, nil
}
