// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package pre

import "fmt"

// Plaintext is a packed residue sequence. Length is the logical length;
// Residues may carry padding beyond it.
type Plaintext struct {
	Residues []int64
	Length   int
	Modulus  uint64
}

// NewPlaintext encodes data into a Plaintext.
func NewPlaintext(data []byte, modulus uint64) *Plaintext {
	residues := Encode(data, modulus)
	return &Plaintext{
		Residues: residues,
		Length:   len(residues),
		Modulus:  modulus,
	}
}

// Slots returns the residues up to the logical length.
func (pt *Plaintext) Slots() []int64 {
	return Truncate(pt.Residues, pt.Length)
}

// Encode emits 8 residues per byte, most significant bit first.
func Encode(data []byte, modulus uint64) []int64 {
	out := make([]int64, 0, 8*len(data))
	for _, b := range data {
		for i := 7; i >= 0; i-- {
			out = append(out, int64(uint64((b>>i)&1)%modulus))
		}
	}
	return out
}

// Normalize maps negative residues into [0, modulus) by adding the modulus
// once. The input is not modified.
func Normalize(residues []int64, modulus uint64) []int64 {
	out := make([]int64, len(residues))
	m := int64(modulus)
	for i, r := range residues {
		if r < 0 {
			r += m
		}
		out[i] = r
	}
	return out
}

// NormalizeStrict is Normalize that reports residues a single addition
// does not bring into range.
func NormalizeStrict(residues []int64, modulus uint64) ([]int64, error) {
	out := Normalize(residues, modulus)
	m := int64(modulus)
	for i, r := range out {
		if r < 0 || r >= m {
			return nil, fmt.Errorf("%w: slot %d holds %d, modulus %d", ErrResidueOutOfRange, i, residues[i], modulus)
		}
	}
	return out, nil
}

// Truncate returns exactly length residues, trimming or zero padding.
func Truncate(residues []int64, length int) []int64 {
	if length < 0 {
		length = 0
	}
	out := make([]int64, length)
	copy(out, residues)
	return out
}

// DecodeBytes packs bit residues back into bytes, most significant bit
// first. The residues must be normalized.
func DecodeBytes(residues []int64) ([]byte, error) {
	if len(residues)%8 != 0 {
		return nil, fmt.Errorf("%w: %d residues is not a whole number of bytes", ErrInvalidEncoding, len(residues))
	}
	out := make([]byte, len(residues)/8)
	for i, r := range residues {
		if r != 0 && r != 1 {
			return nil, fmt.Errorf("%w: slot %d holds %d", ErrInvalidEncoding, i, r)
		}
		out[i/8] |= byte(r) << (7 - i%8)
	}
	return out, nil
}
