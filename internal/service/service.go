// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package service exposes the PRE operations over opaque storage handles.
//
// Principals are named owners of key pairs. Their secret keys live only in
// the service's registry; public keys, ciphertexts and re-encryption keys
// are serialized into storage and referred to by handle. A public key's
// handle is also its key ID.
package service

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mahanfr/GnosisDB/internal/metrics"
	"github.com/mahanfr/GnosisDB/internal/storage"
	"github.com/mahanfr/GnosisDB/internal/worker"
	"github.com/mahanfr/GnosisDB/pre"
)

// Common errors.
var (
	ErrUnknownPrincipal = errors.New("unknown principal")
	ErrPrincipalExists  = errors.New("principal already has a key pair")
	ErrInvalidRequest   = errors.New("invalid request")
)

// Service runs PRE operations for a set of principals.
type Service struct {
	pre     *pre.Context
	exec    *pre.Executor
	store   storage.Storage
	pool    *worker.Pool
	ownPool bool
	metrics *metrics.Metrics
	log     *zap.Logger

	mu         sync.RWMutex
	principals map[string]*pre.KeyPair
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithMetrics records operations on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithPool runs engine calls on p instead of a pool owned by the service.
func WithPool(p *worker.Pool) Option {
	return func(s *Service) { s.pool = p }
}

// New creates a service over a configured scheme context.
func New(c *pre.Context, store storage.Storage, opts ...Option) *Service {
	s := &Service{
		pre:        c,
		exec:       pre.NewExecutor(c),
		store:      store,
		log:        zap.NewNop(),
		principals: make(map[string]*pre.KeyPair),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pool == nil {
		s.pool = worker.NewPool(runtime.NumCPU())
		s.ownPool = true
	}
	return s
}

// Close stops the worker pool if the service created it.
func (s *Service) Close() {
	if s.ownPool {
		s.pool.Close()
	}
}

// run executes fn on the worker pool and records it.
func (s *Service) run(ctx context.Context, op string, fn func(context.Context) error) error {
	start := time.Now()
	err := s.pool.Do(ctx, func(ctx context.Context) error {
		defer s.metrics.Track()()
		return fn(ctx)
	})
	s.metrics.ObserveOperation(op, start, err)
	if err != nil {
		s.log.Debug("operation failed", zap.String("op", op), zap.Error(err))
	}
	return err
}

// ParamsInfo describes the configured scheme.
type ParamsInfo struct {
	PlaintextModulus uint64  `json:"plaintextModulus"`
	RingDim          int     `json:"ringDim"`
	LogQ             float64 `json:"logQ"`
	LogP             float64 `json:"logP"`
	HopBudget        int     `json:"hopBudget"`
	Mode             string  `json:"mode"`
	Capabilities     string  `json:"capabilities"`
	CapacityBytes    int     `json:"capacityBytes"`
}

func (s *Service) Params() ParamsInfo {
	p, info := s.pre.Params(), s.pre.Info()
	return ParamsInfo{
		PlaintextModulus: info.PlaintextModulus,
		RingDim:          info.RingDim,
		LogQ:             info.LogQ,
		LogP:             info.LogP,
		HopBudget:        p.HopBudget,
		Mode:             p.Mode.String(),
		Capabilities:     s.pre.Capabilities().String(),
		CapacityBytes:    info.Capacity,
	}
}

// Encode packs data into plaintext residues.
func (s *Service) Encode(data []byte) ([]int64, error) {
	if n := len(data) * 8; n > s.pre.Params().RingDim {
		return nil, fmt.Errorf("%w: %d bits, ring dimension %d", pre.ErrPayloadTooLarge, n, s.pre.Params().RingDim)
	}
	return pre.Encode(data, s.pre.Params().PlaintextModulus), nil
}

// KeyInfo identifies a principal's public key.
type KeyInfo struct {
	Principal string         `json:"principal"`
	KeyID     string         `json:"keyId"`
	Handle    storage.Handle `json:"handle"`
}

// GenKeyPair creates a key pair for a new principal and stores the public
// key. The secret key stays in the registry.
func (s *Service) GenKeyPair(ctx context.Context, principal string) (*KeyInfo, error) {
	if principal == "" {
		return nil, fmt.Errorf("%w: empty principal", ErrInvalidRequest)
	}
	s.mu.RLock()
	_, exists := s.principals[principal]
	s.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("%w: %s", ErrPrincipalExists, principal)
	}

	var kp *pre.KeyPair
	err := s.run(ctx, "genKeyPair", func(ctx context.Context) error {
		var err error
		kp, err = pre.GenKeyPair(ctx, s.pre)
		return err
	})
	if err != nil {
		return nil, err
	}

	data, err := kp.Public.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	h, err := s.store.Store(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("store public key: %w", err)
	}

	s.mu.Lock()
	if _, exists := s.principals[principal]; exists {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrPrincipalExists, principal)
	}
	s.principals[principal] = kp
	s.mu.Unlock()

	s.log.Info("principal registered", zap.String("principal", principal), zap.String("key", kp.ID().Short()))
	return &KeyInfo{Principal: principal, KeyID: kp.ID().String(), Handle: h}, nil
}

// PublicKey returns the stored public key of principal.
func (s *Service) PublicKey(principal string) (*KeyInfo, error) {
	kp, err := s.keyPair(principal)
	if err != nil {
		return nil, err
	}
	id := kp.ID().String()
	return &KeyInfo{Principal: principal, KeyID: id, Handle: storage.Handle(id)}, nil
}

// Principals returns the number of registered principals.
func (s *Service) Principals() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.principals)
}

func (s *Service) keyPair(principal string) (*pre.KeyPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kp, ok := s.principals[principal]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPrincipal, principal)
	}
	return kp, nil
}

// CiphertextInfo describes a stored ciphertext.
type CiphertextInfo struct {
	Handle storage.Handle `json:"handle"`
	Hops   int            `json:"hops"`
	Target string         `json:"target"`
	Length int            `json:"length"`
}

func (s *Service) storeCiphertext(ctx context.Context, ct *pre.Ciphertext) (*CiphertextInfo, error) {
	data, err := ct.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal ciphertext: %w", err)
	}
	h, err := s.store.Store(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("store ciphertext: %w", err)
	}
	return &CiphertextInfo{Handle: h, Hops: ct.Hops(), Target: ct.Target().String(), Length: ct.Len()}, nil
}

func (s *Service) loadPublicKey(ctx context.Context, h storage.Handle) (*pre.PublicKey, error) {
	data, err := s.store.Load(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("load public key: %w", err)
	}
	return pre.UnmarshalPublicKey(s.pre, data)
}

func (s *Service) loadCiphertext(ctx context.Context, h storage.Handle) (*pre.Ciphertext, error) {
	data, err := s.store.Load(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("load ciphertext: %w", err)
	}
	return pre.UnmarshalCiphertext(s.pre, data)
}

func (s *Service) loadEvalKey(ctx context.Context, h storage.Handle) (*pre.EvalKey, error) {
	data, err := s.store.Load(ctx, h)
	if err != nil {
		return nil, fmt.Errorf("load re-encryption key: %w", err)
	}
	return pre.UnmarshalEvalKey(s.pre, data)
}

// Encrypt encrypts data under the public key stored at pkHandle.
func (s *Service) Encrypt(ctx context.Context, pkHandle storage.Handle, data []byte) (*CiphertextInfo, error) {
	pk, err := s.loadPublicKey(ctx, pkHandle)
	if err != nil {
		return nil, err
	}
	pt := pre.NewPlaintext(data, s.pre.Params().PlaintextModulus)

	var ct *pre.Ciphertext
	err = s.run(ctx, "encrypt", func(ctx context.Context) error {
		var err error
		ct, err = s.exec.Encrypt(ctx, pk, pt)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.storeCiphertext(ctx, ct)
}

// ReKeyInfo describes a stored re-encryption key.
type ReKeyInfo struct {
	Handle storage.Handle `json:"handle"`
	Source string         `json:"source"`
	Target string         `json:"target"`
}

// GenReKey derives a re-encryption key from principal's secret key to the
// public key stored at targetHandle.
func (s *Service) GenReKey(ctx context.Context, principal string, targetHandle storage.Handle) (*ReKeyInfo, error) {
	kp, err := s.keyPair(principal)
	if err != nil {
		return nil, err
	}
	target, err := s.loadPublicKey(ctx, targetHandle)
	if err != nil {
		return nil, err
	}

	var evk *pre.EvalKey
	err = s.run(ctx, "genReKey", func(ctx context.Context) error {
		var err error
		evk, err = pre.GenReKey(ctx, s.pre, kp.Secret, target)
		return err
	})
	if err != nil {
		return nil, err
	}

	data, err := evk.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal re-encryption key: %w", err)
	}
	h, err := s.store.Store(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("store re-encryption key: %w", err)
	}
	return &ReKeyInfo{Handle: h, Source: evk.Source().String(), Target: evk.Target().String()}, nil
}

// ReEncrypt re-encrypts the stored ciphertext with the stored
// re-encryption key. The input ciphertext is left in place.
func (s *Service) ReEncrypt(ctx context.Context, ctHandle, evkHandle storage.Handle) (*CiphertextInfo, error) {
	ct, err := s.loadCiphertext(ctx, ctHandle)
	if err != nil {
		return nil, err
	}
	evk, err := s.loadEvalKey(ctx, evkHandle)
	if err != nil {
		return nil, err
	}

	var out *pre.Ciphertext
	err = s.run(ctx, "reEncrypt", func(ctx context.Context) error {
		var err error
		out, err = s.exec.ReEncrypt(ctx, ct, evk)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.metrics.ObserveHops(out.Hops())
	return s.storeCiphertext(ctx, out)
}

// Decryption is a decrypted ciphertext.
type Decryption struct {
	Residues []int64 `json:"residues"`
	// Data is set when the residues pack back into bytes.
	Data []byte `json:"data,omitempty"`
	Hops int    `json:"hops"`
}

// Decrypt decrypts the stored ciphertext with principal's secret key. It
// fails with pre.ErrDecryptionMismatch if principal is not the target.
func (s *Service) Decrypt(ctx context.Context, principal string, ctHandle storage.Handle) (*Decryption, error) {
	kp, err := s.keyPair(principal)
	if err != nil {
		return nil, err
	}
	ct, err := s.loadCiphertext(ctx, ctHandle)
	if err != nil {
		return nil, err
	}

	var pt *pre.Plaintext
	err = s.run(ctx, "decrypt", func(ctx context.Context) error {
		var err error
		pt, err = s.exec.Decrypt(ctx, kp.Secret, ct, ct.Len())
		return err
	})
	if err != nil {
		return nil, err
	}

	d := &Decryption{Residues: pt.Slots(), Hops: ct.Hops()}
	if b, err := pre.DecodeBytes(d.Residues); err == nil {
		d.Data = b
	}
	return d, nil
}

// Verify compares both decryption paths with the encoding of original.
func (s *Service) Verify(original []byte, direct, delegated []int64) pre.Verdict {
	t := s.pre.Params().PlaintextModulus
	return pre.Verify(pre.Encode(original, t), direct, delegated, t)
}
