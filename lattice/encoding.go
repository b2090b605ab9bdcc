// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package lattice

import (
	"fmt"
	"math/big"

	"github.com/luxfi/lattice/v7/core/rlwe"
)

// encode places residue j, reduced mod t, in coefficient j and scales by
// delta = floor(Q/t). The result is in the NTT domain.
func (b *Backend) encode(residues []int64) (*rlwe.Plaintext, error) {
	if len(residues) > b.params.N() {
		return nil, fmt.Errorf("encode: %d residues exceed ring dimension %d", len(residues), b.params.N())
	}

	pt := rlwe.NewPlaintext(b.params, b.params.MaxLevel())
	ringQ := b.params.RingQ().AtLevel(pt.Level())

	t := int64(b.t)
	for j, r := range residues {
		m := uint64(((r % t) + t) % t)
		for i := range pt.Value.Coeffs {
			pt.Value.Coeffs[i][j] = m
		}
	}

	ringQ.MulScalarBigint(pt.Value, b.delta, pt.Value)
	ringQ.NTT(pt.Value, pt.Value)
	pt.IsNTT = true

	return pt, nil
}

// decode rounds t*c/Q for every coefficient c and returns the residues
// centered in [-t/2, t/2).
func (b *Backend) decode(pt *rlwe.Plaintext) []int64 {
	ringQ := b.params.RingQ().AtLevel(pt.Level())
	if pt.IsNTT {
		ringQ.INTT(pt.Value, pt.Value)
	}

	coeffs := make([]*big.Int, b.params.N())
	for i := range coeffs {
		coeffs[i] = new(big.Int)
	}
	ringQ.PolyToBigintCentered(pt.Value, 1, coeffs)

	q := ringQ.Modulus()
	twoQ := new(big.Int).Lsh(q, 1)
	t := new(big.Int).SetUint64(b.t)
	tmp := new(big.Int)

	out := make([]int64, len(coeffs))
	for i, c := range coeffs {
		// floor((2tc + Q) / 2Q) == round(tc / Q)
		tmp.Mul(c, t)
		tmp.Lsh(tmp, 1)
		tmp.Add(tmp, q)
		tmp.Div(tmp, twoQ)
		tmp.Mod(tmp, t)

		v := int64(tmp.Uint64())
		if 2*v >= int64(b.t) {
			v -= int64(b.t)
		}
		out[i] = v
	}
	return out
}
