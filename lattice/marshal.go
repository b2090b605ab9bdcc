// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package lattice

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/luxfi/lattice/v7/core/rlwe"

	"github.com/mahanfr/GnosisDB/pre"
)

// PublicKey wraps an RLWE public key.
type PublicKey struct{ pk *rlwe.PublicKey }

func (*PublicKey) Kind() pre.HandleKind { return pre.KindPublicKey }

func (k *PublicKey) MarshalBinary() ([]byte, error) { return k.pk.MarshalBinary() }

// SecretKey wraps an RLWE secret key.
type SecretKey struct{ sk *rlwe.SecretKey }

func (*SecretKey) Kind() pre.HandleKind { return pre.KindSecretKey }

func (k *SecretKey) MarshalBinary() ([]byte, error) { return k.sk.MarshalBinary() }

// Ciphertext wraps an RLWE ciphertext.
type Ciphertext struct{ ct *rlwe.Ciphertext }

func (*Ciphertext) Kind() pre.HandleKind { return pre.KindCiphertext }

func (c *Ciphertext) MarshalBinary() ([]byte, error) { return c.ct.MarshalBinary() }

// EvalKey is a re-encryption key. It carries the target public key,
// which HRA modes need to re-randomize.
type EvalKey struct {
	evk    *rlwe.EvaluationKey
	target *rlwe.PublicKey
}

func (*EvalKey) Kind() pre.HandleKind { return pre.KindEvalKey }

// MarshalBinary writes the evaluation key and the target public key, each
// prefixed with its length.
func (k *EvalKey) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeChunk(&buf, k.evk.MarshalBinary); err != nil {
		return nil, fmt.Errorf("serialize evaluation key: %w", err)
	}
	if err := writeChunk(&buf, k.target.MarshalBinary); err != nil {
		return nil, fmt.Errorf("serialize target key: %w", err)
	}
	return buf.Bytes(), nil
}

func writeChunk(w io.Writer, marshal func() ([]byte, error)) error {
	data, err := marshal()
	if err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(data))); err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func readChunk(r io.Reader) ([]byte, error) {
	var n uint32
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, err
	}
	data := make([]byte, n)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, err
	}
	return data, nil
}

// Unmarshal implements pre.Backend.
func (b *Backend) Unmarshal(kind pre.HandleKind, data []byte) (pre.Handle, error) {
	switch kind {
	case pre.KindPublicKey:
		pk := rlwe.NewPublicKey(b.params)
		if err := pk.UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("deserialize public key: %w", err)
		}
		return &PublicKey{pk}, nil

	case pre.KindSecretKey:
		sk := rlwe.NewSecretKey(b.params)
		if err := sk.UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("deserialize secret key: %w", err)
		}
		return &SecretKey{sk}, nil

	case pre.KindCiphertext:
		ct := rlwe.NewCiphertext(b.params, 1, b.params.MaxLevel())
		if err := ct.UnmarshalBinary(data); err != nil {
			return nil, fmt.Errorf("deserialize ciphertext: %w", err)
		}
		return &Ciphertext{ct}, nil

	case pre.KindEvalKey:
		r := bytes.NewReader(data)
		evkData, err := readChunk(r)
		if err != nil {
			return nil, fmt.Errorf("deserialize evaluation key: %w", err)
		}
		pkData, err := readChunk(r)
		if err != nil {
			return nil, fmt.Errorf("deserialize target key: %w", err)
		}

		evk := rlwe.NewEvaluationKey(b.params)
		if err := evk.UnmarshalBinary(evkData); err != nil {
			return nil, fmt.Errorf("deserialize evaluation key: %w", err)
		}
		pk := rlwe.NewPublicKey(b.params)
		if err := pk.UnmarshalBinary(pkData); err != nil {
			return nil, fmt.Errorf("deserialize target key: %w", err)
		}
		return &EvalKey{evk: evk, target: pk}, nil
	}
	return nil, fmt.Errorf("unknown handle kind %d", kind)
}

func asPublicKey(h pre.Handle) (*PublicKey, error) {
	k, ok := h.(*PublicKey)
	if !ok || k == nil || k.pk == nil {
		return nil, fmt.Errorf("%w: want lattice public key, got %T", pre.ErrMalformedKey, h)
	}
	return k, nil
}

func asSecretKey(h pre.Handle) (*SecretKey, error) {
	k, ok := h.(*SecretKey)
	if !ok || k == nil || k.sk == nil {
		return nil, fmt.Errorf("%w: want lattice secret key, got %T", pre.ErrMalformedKey, h)
	}
	return k, nil
}

func asCiphertext(h pre.Handle) (*Ciphertext, error) {
	c, ok := h.(*Ciphertext)
	if !ok || c == nil || c.ct == nil {
		return nil, fmt.Errorf("want lattice ciphertext, got %T", h)
	}
	return c, nil
}

func asEvalKey(h pre.Handle) (*EvalKey, error) {
	k, ok := h.(*EvalKey)
	if !ok || k == nil || k.evk == nil || k.target == nil {
		return nil, fmt.Errorf("%w: want lattice re-encryption key, got %T", pre.ErrMalformedKey, h)
	}
	return k, nil
}
