// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package pre

import (
	"crypto/rand"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// Context is the immutable scheme handle every operation takes. It is
// built once by Configure and is safe for concurrent use.
type Context struct {
	params  SchemeParameters
	caps    Capability
	backend Backend
	info    Info
	log     *zap.Logger
	backOff func() backoff.BackOff
	// sealKey authenticates serialized ciphertexts and eval keys.
	sealKey []byte
}

// Option configures a Context.
type Option func(*Context)

// WithLogger sets the logger used by operations on the Context.
func WithLogger(log *zap.Logger) Option {
	return func(c *Context) {
		if log != nil {
			c.log = log
		}
	}
}

// WithBackOff sets the retry policy for calls that fail with
// ErrResourceExhausted.
func WithBackOff(newBackOff func() backoff.BackOff) Option {
	return func(c *Context) {
		if newBackOff != nil {
			c.backOff = newBackOff
		}
	}
}

// EnvelopeKeySize is the length of the key set by WithEnvelopeKey.
const EnvelopeKeySize = 32

// WithEnvelopeKey sets the key that authenticates serialized ciphertexts
// and eval keys. Processes that exchange envelopes must share it. Without
// it, Configure draws a random key and envelopes only open in the Context
// that sealed them.
func WithEnvelopeKey(key []byte) Option {
	return func(c *Context) {
		if key != nil {
			c.sealKey = append([]byte(nil), key...)
		}
	}
}

func defaultBackOff() backoff.BackOff {
	return backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(50*time.Millisecond),
		backoff.WithMaxElapsedTime(10*time.Second),
	)
}

// Configure validates params, asks the engine to realize them and returns
// a Context with exactly RequiredCapabilities enabled. On failure the
// Context is nil and the error is a *ConfigurationError.
func Configure(engine Engine, params SchemeParameters, opts ...Option) (*Context, error) {
	if engine == nil {
		return nil, &ConfigurationError{Params: params, Err: fmt.Errorf("nil engine")}
	}
	if err := params.Validate(); err != nil {
		return nil, &ConfigurationError{Params: params, Err: fmt.Errorf("%w: %v", ErrInvalidParameters, err)}
	}

	backend, err := engine.Configure(params, RequiredCapabilities)
	if err != nil {
		return nil, &ConfigurationError{Params: params, Err: err}
	}

	c := &Context{
		params:  params,
		caps:    RequiredCapabilities,
		backend: backend,
		log:     zap.NewNop(),
		backOff: defaultBackOff,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.sealKey == nil {
		c.sealKey = make([]byte, EnvelopeKeySize)
		if _, err := rand.Read(c.sealKey); err != nil {
			return nil, &ConfigurationError{Params: params, Err: fmt.Errorf("envelope key: %w", err)}
		}
	}
	if len(c.sealKey) != EnvelopeKeySize {
		return nil, &ConfigurationError{Params: params, Err: fmt.Errorf("envelope key: want %d bytes, got %d", EnvelopeKeySize, len(c.sealKey))}
	}

	c.info = backend.Info()
	c.info.PlaintextModulus = params.PlaintextModulus
	c.info.RingDim = params.RingDim
	c.info.Capacity = params.Capacity()

	c.log.Info("context configured",
		zap.Uint64("plaintextModulus", c.info.PlaintextModulus),
		zap.Int("ringDim", c.info.RingDim),
		zap.Float64("logQ", c.info.LogQ),
		zap.Int("hopBudget", params.HopBudget),
		zap.Stringer("mode", params.Mode),
		zap.Stringer("capabilities", c.caps),
	)
	return c, nil
}

// Params returns the parameter record the Context was built from.
func (c *Context) Params() SchemeParameters { return c.params }

// Info returns the derived parameters.
func (c *Context) Info() Info { return c.info }

// Capabilities returns the enabled feature set.
func (c *Context) Capabilities() Capability { return c.caps }

// Logger returns the Context's logger.
func (c *Context) Logger() *zap.Logger { return c.log }

func (c *Context) require(caps Capability, op string) error {
	if !c.caps.Has(caps) {
		return fmt.Errorf("%s: %w: %s", op, ErrCapabilityDisabled, caps&^c.caps)
	}
	return nil
}
