// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package lattice

import (
	"context"
	"fmt"

	"github.com/luxfi/lattice/v7/core/rlwe"

	"github.com/mahanfr/GnosisDB/pre"
)

// Encrypt implements pre.Backend.
func (b *Backend) Encrypt(ctx context.Context, pk pre.Handle, pt *pre.Plaintext) (pre.Handle, error) {
	p, err := asPublicKey(pk)
	if err != nil {
		return nil, err
	}
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	defer b.release()

	encoded, err := b.encode(pt.Residues)
	if err != nil {
		return nil, err
	}

	ct := rlwe.NewCiphertext(b.params, 1, b.params.MaxLevel())
	if err := rlwe.NewEncryptor(b.params, p.pk).Encrypt(encoded, ct); err != nil {
		return nil, fmt.Errorf("encrypt: %w", err)
	}
	return &Ciphertext{ct}, nil
}

// Decrypt implements pre.Backend.
func (b *Backend) Decrypt(ctx context.Context, sk, ct pre.Handle) ([]int64, error) {
	s, err := asSecretKey(sk)
	if err != nil {
		return nil, err
	}
	c, err := asCiphertext(ct)
	if err != nil {
		return nil, err
	}
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	defer b.release()

	pt := rlwe.NewPlaintext(b.params, c.ct.Level())
	rlwe.NewDecryptor(b.params, s.sk).Decrypt(c.ct, pt)
	return b.decode(pt), nil
}

// ReEncrypt implements pre.Backend. The ciphertext is key switched with
// the re-encryption key; in the HRA modes the result is then
// re-randomized with an encryption of zero under the target key.
func (b *Backend) ReEncrypt(ctx context.Context, ct, evk pre.Handle) (pre.Handle, error) {
	c, err := asCiphertext(ct)
	if err != nil {
		return nil, err
	}
	k, err := asEvalKey(evk)
	if err != nil {
		return nil, err
	}
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	defer b.release()

	eval := b.evalPool.Get().(*rlwe.Evaluator)
	defer b.evalPool.Put(eval)

	out := rlwe.NewCiphertext(b.params, 1, c.ct.Level())
	if err := eval.ApplyEvaluationKey(c.ct, k.evk, out); err != nil {
		return nil, fmt.Errorf("key switch: %w", err)
	}

	if err := b.rerandomize(out, k.target); err != nil {
		return nil, err
	}
	return &Ciphertext{out}, nil
}

// rerandomize adds a fresh encryption of zero under target to ct. The
// error distribution is the default one in fixed-noise mode and the
// flooding one in noise-flooding mode; INDCPA mode leaves ct unchanged.
func (b *Backend) rerandomize(ct *rlwe.Ciphertext, target *rlwe.PublicKey) error {
	var params rlwe.Parameters
	switch b.mode {
	case pre.ModeINDCPA:
		return nil
	case pre.ModeFixedNoiseHRA:
		params = b.params
	case pre.ModeNoiseFloodingHRA:
		params = *b.flood
	default:
		return fmt.Errorf("rerandomize: unknown mode %s", b.mode)
	}

	zero := rlwe.NewCiphertext(params, 1, ct.Level())
	if err := rlwe.NewEncryptor(params, target).EncryptZero(zero); err != nil {
		return fmt.Errorf("rerandomize: %w", err)
	}

	ringQ := b.params.RingQ().AtLevel(ct.Level())
	ringQ.Add(ct.Value[0], zero.Value[0], ct.Value[0])
	ringQ.Add(ct.Value[1], zero.Value[1], ct.Value[1])
	return nil
}
