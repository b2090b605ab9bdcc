// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package lattice

import (
	"context"
	"fmt"

	"github.com/luxfi/lattice/v7/core/rlwe"
	"github.com/luxfi/lattice/v7/ring/ringqp"
	"go.uber.org/zap"

	"github.com/mahanfr/GnosisDB/pre"
)

// KeyGen implements pre.Backend. It does not wait for a free slot: when
// the engine is saturated it fails with pre.ErrResourceExhausted.
func (b *Backend) KeyGen(ctx context.Context) (pre.Handle, pre.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if !b.sem.TryAcquire(1) {
		return nil, nil, pre.ErrResourceExhausted
	}
	defer b.release()

	kgen := rlwe.NewKeyGenerator(b.params)
	sk, pk := kgen.GenKeyPairNew()
	return &PublicKey{pk}, &SecretKey{sk}, nil
}

// ValidateKeyPair implements pre.KeyValidator. It encrypts zero under pk
// and requires sk to decrypt it to zero in every slot.
func (b *Backend) ValidateKeyPair(ctx context.Context, pk, sk pre.Handle) error {
	p, err := asPublicKey(pk)
	if err != nil {
		return err
	}
	s, err := asSecretKey(sk)
	if err != nil {
		return err
	}
	if p.pk.Value[0].Q.N() != b.params.N() || s.sk.Value.Q.N() != b.params.N() {
		return fmt.Errorf("key ring degree does not match parameters")
	}

	if err := b.acquire(ctx); err != nil {
		return err
	}
	defer b.release()

	pt, err := b.encode(nil)
	if err != nil {
		return err
	}
	ct, err := rlwe.NewEncryptor(b.params, p.pk).EncryptNew(pt)
	if err != nil {
		return fmt.Errorf("key check encrypt: %w", err)
	}
	out := rlwe.NewPlaintext(b.params, ct.Level())
	rlwe.NewDecryptor(b.params, s.sk).Decrypt(ct, out)

	for i, v := range b.decode(out) {
		if v != 0 {
			return fmt.Errorf("key check slot %d decrypted to %d", i, v)
		}
	}
	return nil
}

// ReKeyGen implements pre.Backend. Every row of the gadget ciphertext is
// a public-key encryption of zero under the target, to which the source
// secret times the gadget vector is added. Applying the key to a
// ciphertext under the source yields one under the target.
func (b *Backend) ReKeyGen(ctx context.Context, sk, pk pre.Handle) (pre.Handle, error) {
	s, err := asSecretKey(sk)
	if err != nil {
		return nil, err
	}
	p, err := asPublicKey(pk)
	if err != nil {
		return nil, err
	}

	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	defer b.release()

	evk := rlwe.NewEvaluationKey(b.params)
	enc := rlwe.NewEncryptor(b.params, p.pk)

	for i := range evk.Value {
		for j := range evk.Value[i] {
			row := rlwe.Element[ringqp.Poly]{
				MetaData: &rlwe.MetaData{
					CiphertextMetaData: rlwe.CiphertextMetaData{IsNTT: true, IsMontgomery: true},
				},
				Value: []ringqp.Poly(evk.Value[i][j]),
			}
			if err := enc.EncryptZero(row); err != nil {
				return nil, fmt.Errorf("encrypt gadget row (%d, %d): %w", i, j, err)
			}
		}
	}

	if err := rlwe.AddPolyTimesGadgetVectorToGadgetCiphertext(
		s.sk.Value.Q,
		[]rlwe.GadgetCiphertext{evk.GadgetCiphertext},
		*b.params.RingQP(),
		b.params.RingQ().NewPoly(),
	); err != nil {
		return nil, fmt.Errorf("add gadget vector: %w", err)
	}

	b.log.Debug("re-encryption key generated",
		zap.Int("rnsDigits", len(evk.Value)),
		zap.Int("levelQ", evk.LevelQ()),
		zap.Int("levelP", evk.LevelP()),
	)
	return &EvalKey{evk: evk, target: p.pk}, nil
}
