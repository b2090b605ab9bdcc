// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package pre

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Ciphertext is an immutable encrypted payload together with its lineage:
// the number of re-encryptions applied and the key pair it currently
// decrypts under.
type Ciphertext struct {
	c      *Context
	handle Handle
	hops   int
	target KeyID
	length int
}

// Hops returns the number of re-encryptions applied so far.
func (ct *Ciphertext) Hops() int { return ct.hops }

// Target returns the key pair the ciphertext decrypts under.
func (ct *Ciphertext) Target() KeyID { return ct.target }

// Len returns the logical plaintext length in slots.
func (ct *Ciphertext) Len() int { return ct.length }

// Handle returns the engine object.
func (ct *Ciphertext) Handle() Handle { return ct.handle }

// Executor drives ciphertexts through encrypt, re-encrypt and decrypt.
type Executor struct {
	c *Context
}

// NewExecutor returns an Executor bound to c.
func NewExecutor(c *Context) *Executor {
	return &Executor{c: c}
}

// Encrypt encrypts pt under pk. The result has zero hops.
func (x *Executor) Encrypt(ctx context.Context, pk *PublicKey, pt *Plaintext) (*Ciphertext, error) {
	if err := x.c.require(CapPKE, "Encrypt"); err != nil {
		return nil, err
	}
	if pk == nil {
		return nil, fmt.Errorf("Encrypt: %w: nil public key", ErrMalformedKey)
	}
	if pt == nil {
		return nil, fmt.Errorf("Encrypt: %w: nil plaintext", ErrInvalidEncoding)
	}
	if pt.Length > x.c.params.RingDim || len(pt.Residues) > x.c.params.RingDim {
		return nil, fmt.Errorf("Encrypt: %w: %d slots, ring dimension %d", ErrPayloadTooLarge, pt.Length, x.c.params.RingDim)
	}
	if pt.Modulus != 0 && pt.Modulus != x.c.params.PlaintextModulus {
		return nil, fmt.Errorf("Encrypt: %w: plaintext modulus %d, context modulus %d", ErrInvalidEncoding, pt.Modulus, x.c.params.PlaintextModulus)
	}

	h, err := x.c.backend.Encrypt(ctx, pk.handle, pt)
	if err != nil {
		return nil, err
	}
	return &Ciphertext{c: x.c, handle: h, target: pk.id, length: pt.Length}, nil
}

// ReEncrypt applies evk to ct and returns a new ciphertext one hop further
// along. ct is never modified. A ciphertext already at the hop budget is
// rejected with a *HopBudgetError.
func (x *Executor) ReEncrypt(ctx context.Context, ct *Ciphertext, evk *EvalKey) (*Ciphertext, error) {
	if err := x.c.require(CapPRE|CapKeySwitch, "ReEncrypt"); err != nil {
		return nil, err
	}
	if evk == nil {
		return nil, fmt.Errorf("ReEncrypt: %w: nil re-encryption key", ErrMalformedKey)
	}
	if ct == nil {
		return nil, fmt.Errorf("ReEncrypt: %w: nil ciphertext", ErrInvalidEncoding)
	}
	if budget := x.c.params.HopBudget; ct.hops+1 > budget {
		return nil, &HopBudgetError{Hops: ct.hops, Budget: budget}
	}
	if evk.source != ct.target {
		return nil, fmt.Errorf("ReEncrypt: %w: key from %s, ciphertext under %s",
			ErrEvalKeyMismatch, evk.source.Short(), ct.target.Short())
	}

	h, err := x.c.backend.ReEncrypt(ctx, ct.handle, evk.handle)
	if err != nil {
		return nil, err
	}

	out := &Ciphertext{c: x.c, handle: h, hops: ct.hops + 1, target: evk.target, length: ct.length}
	x.c.log.Debug("ciphertext re-encrypted",
		zap.String("from", ct.target.Short()),
		zap.String("to", out.target.Short()),
		zap.Int("hops", out.hops),
	)
	return out, nil
}

// ReEncryptChain applies evks in order. On failure it returns the last
// ciphertext that was produced along with the error.
func (x *Executor) ReEncryptChain(ctx context.Context, ct *Ciphertext, evks ...*EvalKey) (*Ciphertext, error) {
	cur := ct
	for i, evk := range evks {
		next, err := x.ReEncrypt(ctx, cur, evk)
		if err != nil {
			return cur, fmt.Errorf("hop %d: %w", i+1, err)
		}
		cur = next
	}
	return cur, nil
}

// Decrypt decrypts ct with sk, normalizes the residues and truncates them
// to length, which must lie in [0, RingDim]. sk must belong to the
// ciphertext's current target, otherwise ErrDecryptionMismatch is returned.
func (x *Executor) Decrypt(ctx context.Context, sk *SecretKey, ct *Ciphertext, length int) (*Plaintext, error) {
	if err := x.c.require(CapPKE, "Decrypt"); err != nil {
		return nil, err
	}
	if sk == nil {
		return nil, fmt.Errorf("Decrypt: %w: nil secret key", ErrMalformedKey)
	}
	if ct == nil {
		return nil, fmt.Errorf("Decrypt: %w: nil ciphertext", ErrInvalidEncoding)
	}
	if length < 0 || length > x.c.params.RingDim {
		return nil, fmt.Errorf("Decrypt: %w: length %d outside [0, %d]", ErrInvalidEncoding, length, x.c.params.RingDim)
	}
	if sk.id != ct.target {
		return nil, fmt.Errorf("Decrypt: %w: key %s, ciphertext under %s",
			ErrDecryptionMismatch, sk.id.Short(), ct.target.Short())
	}

	raw, err := x.c.backend.Decrypt(ctx, sk.handle, ct.handle)
	if err != nil {
		return nil, err
	}

	t := x.c.params.PlaintextModulus
	return &Plaintext{
		Residues: Normalize(Truncate(raw, length), t),
		Length:   length,
		Modulus:  t,
	}, nil
}
