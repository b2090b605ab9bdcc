// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package pre

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Report is the result of one end-to-end workflow run.
type Report struct {
	Info     Info
	Hops     int
	Original []int64
	// Direct is the origin principal's decryption of the fresh ciphertext.
	Direct []int64
	// Delegated is the last principal's decryption after every hop.
	Delegated []int64
	Verdict   Verdict
	// Recovered is Delegated packed back into bytes, when it decodes.
	Recovered []byte
	Elapsed   time.Duration
}

// Run encrypts payload under a fresh origin key, re-encrypts it across
// hops delegatees, decrypts at both ends and verifies the result. The
// baseline workflow uses one hop.
//
// Configuration and key generation failures are returned as errors.
// Decryption mismatches are reported through the Verdict.
func Run(ctx context.Context, c *Context, payload []byte, hops int) (*Report, error) {
	if hops < 0 {
		return nil, fmt.Errorf("run: negative hop count %d", hops)
	}
	start := time.Now()
	log := c.log
	t := c.params.PlaintextModulus

	pairs, err := GenKeyPairs(ctx, c, hops+1)
	if err != nil {
		return nil, err
	}
	log.Info("key pairs generated", zap.Int("principals", len(pairs)))

	pt := NewPlaintext(payload, t)
	x := NewExecutor(c)

	ct, err := x.Encrypt(ctx, pairs[0].Public, pt)
	if err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}

	rep := &Report{Info: c.info, Hops: hops, Original: pt.Slots()}

	direct, err := x.Decrypt(ctx, pairs[0].Secret, ct, ct.Len())
	switch {
	case errors.Is(err, ErrDecryptionMismatch):
		log.Warn("direct decryption mismatch", zap.Error(err))
	case err != nil:
		return nil, fmt.Errorf("direct decrypt: %w", err)
	default:
		rep.Direct = direct.Slots()
	}

	evks := make([]*EvalKey, hops)
	for i := range evks {
		evks[i], err = GenReKey(ctx, c, pairs[i].Secret, pairs[i+1].Public)
		if err != nil {
			return nil, fmt.Errorf("re-encryption key %d: %w", i+1, err)
		}
	}

	delegatedCt, err := x.ReEncryptChain(ctx, ct, evks...)
	if err != nil {
		return nil, fmt.Errorf("re-encrypt: %w", err)
	}

	delegated, err := x.Decrypt(ctx, pairs[hops].Secret, delegatedCt, ct.Len())
	switch {
	case errors.Is(err, ErrDecryptionMismatch):
		log.Warn("delegated decryption mismatch", zap.Error(err))
	case err != nil:
		return nil, fmt.Errorf("delegated decrypt: %w", err)
	default:
		rep.Delegated = delegated.Slots()
	}

	rep.Verdict = Verify(rep.Original, rep.Direct, rep.Delegated, t)
	if rep.Verdict.Pass {
		if b, err := DecodeBytes(rep.Delegated); err == nil {
			rep.Recovered = b
		}
	}
	rep.Elapsed = time.Since(start)

	log.Info("workflow finished",
		zap.Bool("pass", rep.Verdict.Pass),
		zap.Int("slots", len(rep.Original)),
		zap.Int("hops", hops),
		zap.Duration("elapsed", rep.Elapsed),
	)
	return rep, nil
}
