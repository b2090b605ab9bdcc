// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package pretest provides a deterministic in-memory pre.Engine for tests.
//
// Ciphertexts are plaintext residues masked with a SHA-256 keystream derived
// from the recipient's public key, so decrypting with the wrong secret key
// yields unrelated residues. There is no security of any kind.
package pretest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/mahanfr/GnosisDB/pre"
)

// ErrEngine is the error injected by Engine failure knobs.
var ErrEngine = errors.New("pretest: injected engine failure")

// Engine is a fake pre.Engine. The zero value is ready to use. Failure
// knobs must be set before Configure.
type Engine struct {
	// RejectConfigure makes Configure fail with pre.ErrInvalidParameters.
	RejectConfigure bool
	// ExhaustedKeyGens is how many KeyGen calls fail with
	// pre.ErrResourceExhausted before one succeeds.
	ExhaustedKeyGens int32
	// FailKeyGen makes every KeyGen call fail with ErrEngine.
	FailKeyGen bool
	// MalformedKeys makes KeyGen return a nil secret key.
	MalformedKeys bool
	// InvalidKeys makes ValidateKeyPair reject every pair.
	InvalidKeys bool
	// FailReEncrypt makes ReEncrypt fail with ErrEngine.
	FailReEncrypt bool

	mu      sync.Mutex
	backend *Backend
}

// Backend returns the most recently configured backend.
func (e *Engine) Backend() *Backend {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.backend
}

// Configure implements pre.Engine.
func (e *Engine) Configure(params pre.SchemeParameters, caps pre.Capability) (pre.Backend, error) {
	if e.RejectConfigure {
		return nil, fmt.Errorf("%w: rejected by pretest engine", pre.ErrInvalidParameters)
	}
	if !caps.Has(pre.RequiredCapabilities) {
		return nil, fmt.Errorf("%w: capabilities %s", pre.ErrInvalidParameters, caps)
	}
	b := &Backend{engine: e, params: params}
	e.mu.Lock()
	e.backend = b
	e.mu.Unlock()
	return b, nil
}

// Backend is the configured fake engine.
type Backend struct {
	engine *Engine
	params pre.SchemeParameters

	mu      sync.Mutex
	counter uint64

	KeyGenCalls    atomic.Int32
	EncryptCalls   atomic.Int32
	DecryptCalls   atomic.Int32
	ReKeyGenCalls  atomic.Int32
	ReEncryptCalls atomic.Int32
}

var _ pre.KeyValidator = (*Backend)(nil)

type publicKey struct{ id [32]byte }

func (publicKey) Kind() pre.HandleKind { return pre.KindPublicKey }

func (k publicKey) MarshalBinary() ([]byte, error) { return append([]byte(nil), k.id[:]...), nil }

type secretKey struct{ seed [32]byte }

func (secretKey) Kind() pre.HandleKind { return pre.KindSecretKey }

func (k secretKey) MarshalBinary() ([]byte, error) { return append([]byte(nil), k.seed[:]...), nil }

func (k secretKey) public() publicKey {
	return publicKey{id: sha256.Sum256(append([]byte("pk"), k.seed[:]...))}
}

type ciphertext struct {
	under  [32]byte
	masked []int64
}

func (ciphertext) Kind() pre.HandleKind { return pre.KindCiphertext }

func (ct ciphertext) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(ct.under[:])
	if err := binary.Write(&buf, binary.LittleEndian, ct.masked); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type evalKey struct {
	from, to [32]byte
}

func (evalKey) Kind() pre.HandleKind { return pre.KindEvalKey }

func (k evalKey) MarshalBinary() ([]byte, error) {
	return append(append([]byte(nil), k.from[:]...), k.to[:]...), nil
}

// Info implements pre.Backend.
func (b *Backend) Info() pre.Info {
	return pre.Info{LogQ: 120, LogP: 122, QCount: 2, PCount: 2}
}

// KeyGen implements pre.Backend.
func (b *Backend) KeyGen(ctx context.Context) (pre.Handle, pre.Handle, error) {
	n := b.KeyGenCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if n <= b.engine.ExhaustedKeyGens {
		return nil, nil, pre.ErrResourceExhausted
	}
	if b.engine.FailKeyGen {
		return nil, nil, ErrEngine
	}

	b.mu.Lock()
	b.counter++
	var ctr [8]byte
	binary.LittleEndian.PutUint64(ctr[:], b.counter)
	b.mu.Unlock()

	sk := secretKey{seed: sha256.Sum256(append([]byte("sk"), ctr[:]...))}
	if b.engine.MalformedKeys {
		return sk.public(), nil, nil
	}
	return sk.public(), sk, nil
}

// ValidateKeyPair implements pre.KeyValidator.
func (b *Backend) ValidateKeyPair(_ context.Context, pk, sk pre.Handle) error {
	if b.engine.InvalidKeys {
		return ErrEngine
	}
	p, ok1 := pk.(publicKey)
	s, ok2 := sk.(secretKey)
	if !ok1 || !ok2 || s.public() != p {
		return errors.New("pretest: public key does not match secret key")
	}
	return nil
}

// Encrypt implements pre.Backend.
func (b *Backend) Encrypt(ctx context.Context, pk pre.Handle, pt *pre.Plaintext) (pre.Handle, error) {
	b.EncryptCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, ok := pk.(publicKey)
	if !ok {
		return nil, fmt.Errorf("pretest: encrypt: %T is not a public key", pk)
	}
	if len(pt.Residues) > b.params.RingDim {
		return nil, fmt.Errorf("pretest: encrypt: %d residues exceed ring dimension", len(pt.Residues))
	}

	slots := make([]int64, b.params.RingDim)
	copy(slots, pt.Residues)
	return ciphertext{under: p.id, masked: b.mask(slots, p.id, 1)}, nil
}

// Decrypt implements pre.Backend. Residues come back centered in
// [-t/2, t/2), so a set bit decrypts to -1 when t is 2.
func (b *Backend) Decrypt(ctx context.Context, sk, ct pre.Handle) ([]int64, error) {
	b.DecryptCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, ok := sk.(secretKey)
	if !ok {
		return nil, fmt.Errorf("pretest: decrypt: %T is not a secret key", sk)
	}
	c, ok := ct.(ciphertext)
	if !ok {
		return nil, fmt.Errorf("pretest: decrypt: %T is not a ciphertext", ct)
	}

	out := b.mask(c.masked, s.public().id, -1)
	t := int64(b.params.PlaintextModulus)
	for i, v := range out {
		if 2*v >= t {
			out[i] = v - t
		}
	}
	return out, nil
}

// ReKeyGen implements pre.Backend.
func (b *Backend) ReKeyGen(ctx context.Context, sk, pk pre.Handle) (pre.Handle, error) {
	b.ReKeyGenCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s, ok1 := sk.(secretKey)
	p, ok2 := pk.(publicKey)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("pretest: rekey: want (secret, public), got (%T, %T)", sk, pk)
	}
	return evalKey{from: s.public().id, to: p.id}, nil
}

// ReEncrypt implements pre.Backend.
func (b *Backend) ReEncrypt(ctx context.Context, ct, evk pre.Handle) (pre.Handle, error) {
	b.ReEncryptCalls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.engine.FailReEncrypt {
		return nil, ErrEngine
	}
	c, ok1 := ct.(ciphertext)
	k, ok2 := evk.(evalKey)
	if !ok1 || !ok2 {
		return nil, fmt.Errorf("pretest: re-encrypt: want (ciphertext, eval key), got (%T, %T)", ct, evk)
	}

	// A key for a different source still produces a ciphertext; it just
	// no longer decrypts to the original message.
	plain := b.mask(c.masked, k.from, -1)
	return ciphertext{under: k.to, masked: b.mask(plain, k.to, 1)}, nil
}

// Unmarshal implements pre.Backend.
func (b *Backend) Unmarshal(kind pre.HandleKind, data []byte) (pre.Handle, error) {
	switch kind {
	case pre.KindPublicKey:
		var k publicKey
		if len(data) != len(k.id) {
			return nil, fmt.Errorf("pretest: public key: %d bytes", len(data))
		}
		copy(k.id[:], data)
		return k, nil
	case pre.KindSecretKey:
		var k secretKey
		if len(data) != len(k.seed) {
			return nil, fmt.Errorf("pretest: secret key: %d bytes", len(data))
		}
		copy(k.seed[:], data)
		return k, nil
	case pre.KindCiphertext:
		if len(data) < 32 || (len(data)-32)%8 != 0 {
			return nil, fmt.Errorf("pretest: ciphertext: %d bytes", len(data))
		}
		var c ciphertext
		copy(c.under[:], data)
		c.masked = make([]int64, (len(data)-32)/8)
		if err := binary.Read(bytes.NewReader(data[32:]), binary.LittleEndian, c.masked); err != nil {
			return nil, err
		}
		return c, nil
	case pre.KindEvalKey:
		var k evalKey
		if len(data) != 64 {
			return nil, fmt.Errorf("pretest: eval key: %d bytes", len(data))
		}
		copy(k.from[:], data[:32])
		copy(k.to[:], data[32:])
		return k, nil
	}
	return nil, fmt.Errorf("pretest: unknown handle kind %d", kind)
}

// mask adds (sign=1) or removes (sign=-1) the keystream of id, mod t.
func (b *Backend) mask(in []int64, id [32]byte, sign int64) []int64 {
	t := int64(b.params.PlaintextModulus)
	out := make([]int64, len(in))
	var block [32]byte
	for i, v := range in {
		if i%4 == 0 {
			var ctr [8]byte
			binary.LittleEndian.PutUint64(ctr[:], uint64(i/4))
			block = sha256.Sum256(append(id[:], ctr[:]...))
		}
		ks := int64(binary.LittleEndian.Uint64(block[(i%4)*8:]) % uint64(t))
		out[i] = (((v+sign*ks)%t)+t)%t
	}
	return out
}
