// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package pre

// Verdict is the outcome of comparing decrypted residues with the
// original encoding.
type Verdict struct {
	Pass bool
	// DirectMismatch and DelegatedMismatch hold the first differing slot
	// of each path, or -1 if the path matched.
	DirectMismatch    int
	DelegatedMismatch int
}

// Verify reports whether both decryption paths reproduce original
// exactly, slot for slot, over the original's length.
func Verify(original, direct, delegated []int64, modulus uint64) Verdict {
	v := Verdict{
		DirectMismatch:    firstMismatch(original, direct, modulus),
		DelegatedMismatch: firstMismatch(original, delegated, modulus),
	}
	v.Pass = v.DirectMismatch < 0 && v.DelegatedMismatch < 0
	return v
}

func firstMismatch(want, got []int64, modulus uint64) int {
	w := Normalize(want, modulus)
	g := Normalize(got, modulus)
	for i := range w {
		if i >= len(g) || w[i] != g[i] {
			return i
		}
	}
	return -1
}
