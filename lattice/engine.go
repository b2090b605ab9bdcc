// Package lattice implements pre.Engine on the RLWE primitives of
// luxfi/lattice.
//
// Plaintext slots are polynomial coefficients scaled by floor(Q/t).
// Re-encryption keys are gadget ciphertexts built from the source secret
// key and public-key encryptions of zero under the target key, so the
// delegatee never reveals its secret. Key switching uses the auxiliary
// modulus P (hybrid key switching).
//
// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause
package lattice

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"math/bits"
	"runtime"
	"sync"

	"github.com/luxfi/lattice/v7/core/rlwe"
	"github.com/luxfi/lattice/v7/ring"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/mahanfr/GnosisDB/pre"
)

const (
	logQi = 60
	logPi = 61

	minLogN = 10
	maxLogN = 17

	// maxPlaintextModulus keeps residues and their products in int64.
	maxPlaintextModulus = 1 << 31

	// floodBoundFactor is the tail cut of the flooding distribution, in
	// standard deviations.
	floodBoundFactor = 6
)

// Engine builds lattice backends.
type Engine struct {
	log           *zap.Logger
	maxConcurrent int64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(log *zap.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithMaxConcurrent bounds the number of engine calls in flight. Key
// generation beyond the bound fails with pre.ErrResourceExhausted; other
// calls wait.
func WithMaxConcurrent(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxConcurrent = int64(n)
		}
	}
}

// NewEngine returns a lattice engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		log:           zap.NewNop(),
		maxConcurrent: int64(runtime.NumCPU()),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Configure implements pre.Engine.
func (e *Engine) Configure(params pre.SchemeParameters, caps pre.Capability) (pre.Backend, error) {
	b, err := e.configure(params, caps)
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (e *Engine) configure(params pre.SchemeParameters, caps pre.Capability) (*Backend, error) {
	if !caps.Has(pre.RequiredCapabilities) {
		return nil, fmt.Errorf("%w: capabilities %s", pre.ErrInvalidParameters, caps)
	}
	if params.KeySwitch != pre.KeySwitchHybrid {
		return nil, fmt.Errorf("%w: %s key switching cannot derive keys from a public key", pre.ErrInvalidParameters, params.KeySwitch)
	}
	if params.PlaintextModulus < 2 || params.PlaintextModulus > maxPlaintextModulus {
		return nil, fmt.Errorf("%w: plaintext modulus %d out of range", pre.ErrInvalidParameters, params.PlaintextModulus)
	}
	logN := bits.Len(uint(params.RingDim)) - 1
	if 1<<logN != params.RingDim || logN < minLogN || logN > maxLogN {
		return nil, fmt.Errorf("%w: ring dimension %d must be a power of two in [2^%d, 2^%d]",
			pre.ErrInvalidParameters, params.RingDim, minLogN, maxLogN)
	}

	logQ := make([]int, 2+params.MultiplicativeDepth)
	for i := range logQ {
		logQ[i] = logQi
	}

	rp, err := rlwe.NewParametersFromLiteral(rlwe.ParametersLiteral{
		LogN:    logN,
		LogQ:    logQ,
		LogP:    []int{logPi, logPi},
		Xe:      rlwe.DefaultXe,
		Xs:      rlwe.DefaultXs,
		NTTFlag: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pre.ErrInvalidParameters, err)
	}

	b := &Backend{
		params: rp,
		mode:   params.Mode,
		t:      params.PlaintextModulus,
		delta:  new(big.Int).Quo(rp.QBigInt(), new(big.Int).SetUint64(params.PlaintextModulus)),
		sem:    semaphore.NewWeighted(e.maxConcurrent),
		log:    e.log,
	}
	b.evalPool = sync.Pool{
		New: func() interface{} {
			return rlwe.NewEvaluator(b.params, nil)
		},
	}

	if params.Mode == pre.ModeNoiseFloodingHRA {
		sigma := floodingSigma(params.StatisticalSecurity, params.AdversarialQueries)

		// Flooding noise accumulates once per hop and must stay below
		// delta/2 for decryption to round correctly.
		headroom := rp.LogQ() - math.Log2(float64(params.PlaintextModulus)) - 2
		need := math.Log2(sigma*floodBoundFactor) + math.Log2(float64(params.RingDim)) + math.Log2(float64(params.HopBudget+1))
		if need >= headroom {
			return nil, fmt.Errorf("%w: flooding noise 2^%.1f leaves no room in a %.1f-bit modulus",
				pre.ErrInvalidParameters, need, rp.LogQ())
		}

		fp, err := rlwe.NewParametersFromLiteral(rlwe.ParametersLiteral{
			LogN:    logN,
			Q:       rp.Q(),
			Xe:      ring.DiscreteGaussian{Sigma: sigma, Bound: sigma * floodBoundFactor},
			Xs:      rp.Xs(),
			NTTFlag: true,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: flooding parameters: %v", pre.ErrInvalidParameters, err)
		}
		b.flood = &fp
	}

	e.log.Info("lattice backend configured",
		zap.Int("logN", logN),
		zap.Float64("logQ", rp.LogQ()),
		zap.Float64("logP", rp.LogP()),
		zap.Stringer("mode", params.Mode),
		zap.Int64("maxConcurrent", e.maxConcurrent),
	)
	return b, nil
}

// floodingSigma sizes the flooding distribution so that the statistical
// distance over queries re-encryptions stays below 2^-statSec.
func floodingSigma(statSec int, queries uint64) float64 {
	return math.Exp2((float64(statSec) + math.Log2(float64(queries))) / 2)
}

// Backend is a configured lattice engine.
type Backend struct {
	params rlwe.Parameters
	// flood is set in noise-flooding mode. It shares Q with params and
	// samples errors from the flooding distribution.
	flood *rlwe.Parameters
	mode  pre.Mode
	t     uint64
	delta *big.Int

	sem      *semaphore.Weighted
	evalPool sync.Pool
	log      *zap.Logger
}

var (
	_ pre.Backend      = (*Backend)(nil)
	_ pre.KeyValidator = (*Backend)(nil)
)

// Info implements pre.Backend.
func (b *Backend) Info() pre.Info {
	return pre.Info{
		PlaintextModulus: b.t,
		RingDim:          b.params.N(),
		LogQ:             b.params.LogQ(),
		LogP:             b.params.LogP(),
		QCount:           b.params.QCount(),
		PCount:           b.params.PCount(),
	}
}

// Parameters returns the RLWE parameters.
func (b *Backend) Parameters() rlwe.Parameters {
	return b.params
}

func (b *Backend) acquire(ctx context.Context) error {
	return b.sem.Acquire(ctx, 1)
}

func (b *Backend) release() {
	b.sem.Release(1)
}
