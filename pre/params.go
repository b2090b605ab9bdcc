// Package pre orchestrates multi-hop proxy re-encryption (PRE) over a
// lattice-based leveled homomorphic encryption engine.
//
// A byte payload is packed into one plaintext slot per bit, encrypted under
// one principal's public key, re-encrypted toward another principal with a
// re-encryption key, and decrypted by the delegatee. The package owns:
//   - scheme parameters and the immutable Context
//   - the bit-packing codec
//   - key lifecycle and re-encryption key derivation
//   - the hop-bounded ciphertext state machine
//   - correctness verification
//
// Ring arithmetic, key switching and noise sampling live behind the Engine
// interface; see package lattice for the production engine.
//
// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause
package pre

import (
	"fmt"
	"math/bits"
	"strings"
)

// ScalingTechnique selects how the engine manages ciphertext scale.
type ScalingTechnique uint8

const (
	FixedManual ScalingTechnique = iota
	FixedAuto
	FlexibleAuto
)

func (s ScalingTechnique) String() string {
	switch s {
	case FixedManual:
		return "FIXEDMANUAL"
	case FixedAuto:
		return "FIXEDAUTO"
	case FlexibleAuto:
		return "FLEXIBLEAUTO"
	default:
		return fmt.Sprintf("ScalingTechnique(%d)", uint8(s))
	}
}

// KeySwitchTechnique selects the key switching method.
type KeySwitchTechnique uint8

const (
	KeySwitchBV KeySwitchTechnique = iota
	KeySwitchHybrid
)

func (k KeySwitchTechnique) String() string {
	switch k {
	case KeySwitchBV:
		return "BV"
	case KeySwitchHybrid:
		return "HYBRID"
	default:
		return fmt.Sprintf("KeySwitchTechnique(%d)", uint8(k))
	}
}

// Mode is the security model re-encryption is hardened for.
type Mode uint8

const (
	// ModeINDCPA performs plain key switching.
	ModeINDCPA Mode = iota
	// ModeFixedNoiseHRA re-randomizes each re-encrypted ciphertext with a
	// fresh encryption of zero under the target key.
	ModeFixedNoiseHRA
	// ModeNoiseFloodingHRA re-randomizes with flooding noise sized from the
	// statistical security level and the adversarial query bound.
	ModeNoiseFloodingHRA
)

func (m Mode) String() string {
	switch m {
	case ModeINDCPA:
		return "INDCPA"
	case ModeFixedNoiseHRA:
		return "FIXED_NOISE_HRA"
	case ModeNoiseFloodingHRA:
		return "NOISE_FLOODING_HRA"
	default:
		return fmt.Sprintf("Mode(%d)", uint8(m))
	}
}

// ParseMode parses the textual form returned by Mode.String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToUpper(strings.ReplaceAll(s, "-", "_")) {
	case "INDCPA":
		return ModeINDCPA, nil
	case "FIXED_NOISE_HRA":
		return ModeFixedNoiseHRA, nil
	case "NOISE_FLOODING_HRA":
		return ModeNoiseFloodingHRA, nil
	}
	return 0, fmt.Errorf("unknown PRE mode %q", s)
}

// Capability is a bit set of scheme features enabled on a Context.
type Capability uint8

const (
	CapPKE Capability = 1 << iota
	CapKeySwitch
	CapLeveledSHE
	CapPRE
)

// RequiredCapabilities is the exact feature set a PRE Context enables.
const RequiredCapabilities = CapPKE | CapKeySwitch | CapLeveledSHE | CapPRE

// Has reports whether every bit of c is set.
func (c Capability) Has(other Capability) bool {
	return c&other == other
}

func (c Capability) String() string {
	var names []string
	for _, f := range []struct {
		c    Capability
		name string
	}{
		{CapPKE, "PKE"},
		{CapKeySwitch, "KEYSWITCH"},
		{CapLeveledSHE, "LEVELEDSHE"},
		{CapPRE, "PRE"},
	} {
		if c.Has(f.c) {
			names = append(names, f.name)
		}
	}
	return strings.Join(names, "|")
}

// SchemeParameters is the full parameter record a Context is built from.
type SchemeParameters struct {
	// PlaintextModulus is the residue modulus of each plaintext slot.
	PlaintextModulus uint64
	// RingDim is the ring dimension; it bounds the number of slots.
	RingDim int
	MultiplicativeDepth int
	// HopBudget is the maximum number of re-encryptions on one lineage.
	HopBudget           int
	StatisticalSecurity int
	AdversarialQueries  uint64
	Scaling             ScalingTechnique
	KeySwitch           KeySwitchTechnique
	Mode                Mode
}

// DefaultParameters returns the baseline parameter record: one bit per
// slot, 32768 slots, depth 0, 13 hops, 40 bits of statistical security
// against 2^20 queries, and noise-flooding HRA re-encryption.
func DefaultParameters() SchemeParameters {
	return SchemeParameters{
		PlaintextModulus:    2,
		RingDim:             32768,
		MultiplicativeDepth: 0,
		HopBudget:           13,
		StatisticalSecurity: 40,
		AdversarialQueries:  1 << 20,
		Scaling:             FixedManual,
		KeySwitch:           KeySwitchHybrid,
		Mode:                ModeNoiseFloodingHRA,
	}
}

// Validate checks the engine-independent constraints.
func (p SchemeParameters) Validate() error {
	if p.PlaintextModulus < 2 {
		return fmt.Errorf("plaintext modulus %d: must be at least 2", p.PlaintextModulus)
	}
	if p.RingDim < 8 || bits.OnesCount(uint(p.RingDim)) != 1 {
		return fmt.Errorf("ring dimension %d: must be a power of two >= 8", p.RingDim)
	}
	if p.MultiplicativeDepth < 0 {
		return fmt.Errorf("multiplicative depth %d: must be non-negative", p.MultiplicativeDepth)
	}
	if p.HopBudget <= 0 {
		return fmt.Errorf("hop budget %d: must be positive", p.HopBudget)
	}
	if p.StatisticalSecurity <= 0 {
		return fmt.Errorf("statistical security %d: must be positive", p.StatisticalSecurity)
	}
	if p.AdversarialQueries == 0 {
		return fmt.Errorf("adversarial queries: must be positive")
	}
	if p.Scaling > FlexibleAuto {
		return fmt.Errorf("unknown scaling technique %s", p.Scaling)
	}
	if p.KeySwitch > KeySwitchHybrid {
		return fmt.Errorf("unknown key switching technique %s", p.KeySwitch)
	}
	if p.Mode > ModeNoiseFloodingHRA {
		return fmt.Errorf("unknown PRE mode %s", p.Mode)
	}
	return nil
}

// Capacity returns how many whole bytes fit in one plaintext.
func (p SchemeParameters) Capacity() int {
	return p.RingDim / 8
}
