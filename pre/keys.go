// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package pre

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// KeyID fingerprints a key pair by the SHA-256 of its public key.
type KeyID [sha256.Size]byte

func (id KeyID) String() string {
	return hex.EncodeToString(id[:])
}

// Short returns the first 8 hex characters, for logs.
func (id KeyID) Short() string {
	return hex.EncodeToString(id[:4])
}

// IsZero reports whether id is unset.
func (id KeyID) IsZero() bool {
	return id == KeyID{}
}

// ParseKeyID parses the hex form returned by KeyID.String.
func ParseKeyID(s string) (KeyID, error) {
	var id KeyID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, fmt.Errorf("parse key id: %w", err)
	}
	if len(b) != len(id) {
		return id, fmt.Errorf("parse key id: want %d bytes, got %d", len(id), len(b))
	}
	copy(id[:], b)
	return id, nil
}

// PublicKey encrypts toward one principal.
type PublicKey struct {
	id     KeyID
	handle Handle
}

// ID returns the key pair fingerprint.
func (pk *PublicKey) ID() KeyID { return pk.id }

// Handle returns the engine object.
func (pk *PublicKey) Handle() Handle { return pk.handle }

// MarshalBinary returns the engine encoding of the key.
func (pk *PublicKey) MarshalBinary() ([]byte, error) {
	return pk.handle.MarshalBinary()
}

// SecretKey decrypts for one principal. It has no exported encoding.
type SecretKey struct {
	id     KeyID
	handle Handle
}

// ID returns the key pair fingerprint.
func (sk *SecretKey) ID() KeyID { return sk.id }

// Handle returns the engine object.
func (sk *SecretKey) Handle() Handle { return sk.handle }

// KeyPair holds both halves of a principal's key.
type KeyPair struct {
	Public *PublicKey
	Secret *SecretKey
}

// ID returns the key pair fingerprint.
func (kp *KeyPair) ID() KeyID { return kp.Public.id }

// GenKeyPair generates a key pair and checks it is well formed. Engine
// calls failing with ErrResourceExhausted are retried; any other failure
// returns a *KeyGenerationError and no key material.
func GenKeyPair(ctx context.Context, c *Context) (*KeyPair, error) {
	if err := c.require(CapPKE, "GenKeyPair"); err != nil {
		return nil, err
	}

	start := time.Now()
	var pkH, skH Handle
	op := func() error {
		pk, sk, err := c.backend.KeyGen(ctx)
		if err != nil {
			if errors.Is(err, ErrResourceExhausted) {
				return err
			}
			return backoff.Permanent(err)
		}
		pkH, skH = pk, sk
		return nil
	}
	notify := func(err error, next time.Duration) {
		c.log.Warn("key generation deferred, retrying", zap.Error(err), zap.Duration("next", next))
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(c.backOff(), ctx), notify); err != nil {
		return nil, &KeyGenerationError{Err: err}
	}

	if pkH == nil || skH == nil || pkH.Kind() != KindPublicKey || skH.Kind() != KindSecretKey {
		return nil, &KeyGenerationError{Err: ErrMalformedKey}
	}
	if v, ok := c.backend.(KeyValidator); ok {
		if err := v.ValidateKeyPair(ctx, pkH, skH); err != nil {
			return nil, &KeyGenerationError{Err: fmt.Errorf("%w: %v", ErrMalformedKey, err)}
		}
	}

	data, err := pkH.MarshalBinary()
	if err != nil {
		return nil, &KeyGenerationError{Err: fmt.Errorf("marshal public key: %w", err)}
	}
	id := KeyID(sha256.Sum256(data))

	c.log.Debug("key pair generated", zap.String("key", id.Short()), zap.Duration("took", time.Since(start)))
	return &KeyPair{
		Public: &PublicKey{id: id, handle: pkH},
		Secret: &SecretKey{id: id, handle: skH},
	}, nil
}

// GenKeyPairs generates n independent key pairs concurrently. If any one
// fails, no pairs are returned.
func GenKeyPairs(ctx context.Context, c *Context, n int) ([]*KeyPair, error) {
	if n < 0 {
		return nil, fmt.Errorf("GenKeyPairs: negative count %d", n)
	}
	pairs := make([]*KeyPair, n)
	g, gctx := errgroup.WithContext(ctx)
	for i := range pairs {
		g.Go(func() error {
			kp, err := GenKeyPair(gctx, c)
			if err != nil {
				return err
			}
			pairs[i] = kp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return pairs, nil
}

// UnmarshalPublicKey decodes a public key produced by MarshalBinary.
func UnmarshalPublicKey(c *Context, data []byte) (*PublicKey, error) {
	h, err := c.backend.Unmarshal(KindPublicKey, data)
	if err != nil {
		return nil, fmt.Errorf("unmarshal public key: %w", err)
	}
	return &PublicKey{id: KeyID(sha256.Sum256(data)), handle: h}, nil
}
