// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package pre

import "context"

// HandleKind tags the engine object behind a Handle.
type HandleKind uint8

const (
	KindPublicKey HandleKind = iota + 1
	KindSecretKey
	KindCiphertext
	KindEvalKey
)

func (k HandleKind) String() string {
	switch k {
	case KindPublicKey:
		return "public-key"
	case KindSecretKey:
		return "secret-key"
	case KindCiphertext:
		return "ciphertext"
	case KindEvalKey:
		return "eval-key"
	default:
		return "unknown"
	}
}

// Handle is an opaque engine object.
type Handle interface {
	Kind() HandleKind
	MarshalBinary() ([]byte, error)
}

// Engine builds backends bound to one parameter record.
type Engine interface {
	// Configure returns ErrInvalidParameters (possibly wrapped) when the
	// record cannot be realized with the requested capabilities.
	Configure(params SchemeParameters, caps Capability) (Backend, error)
}

// Backend is a configured engine. Calls block until the engine finishes
// and must be safe for concurrent use.
type Backend interface {
	Info() Info
	KeyGen(ctx context.Context) (pk, sk Handle, err error)
	Encrypt(ctx context.Context, pk Handle, pt *Plaintext) (Handle, error)
	// Decrypt returns the raw residues of every slot. Residues may be
	// negative; callers normalize and truncate.
	Decrypt(ctx context.Context, sk, ct Handle) ([]int64, error)
	ReKeyGen(ctx context.Context, sk, pk Handle) (Handle, error)
	ReEncrypt(ctx context.Context, ct, evk Handle) (Handle, error)
	Unmarshal(kind HandleKind, data []byte) (Handle, error)
}

// KeyValidator is implemented by backends that can check a freshly
// generated key pair for consistency.
type KeyValidator interface {
	ValidateKeyPair(ctx context.Context, pk, sk Handle) error
}

// Info describes the parameters a backend derived.
type Info struct {
	PlaintextModulus uint64
	RingDim          int
	LogQ             float64
	LogP             float64
	QCount           int
	PCount           int
	// Capacity is the payload size in bytes that fits one plaintext.
	Capacity int
}
