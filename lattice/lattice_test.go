// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package lattice

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/mahanfr/GnosisDB/pre"
)

const testPayload = "Secret Hello World\n"

// testParams uses a 1024-slot ring. It is far too small to be secure and
// only keeps the tests fast.
func testParams(mode pre.Mode) pre.SchemeParameters {
	p := pre.DefaultParameters()
	p.RingDim = 1024
	p.HopBudget = 3
	p.Mode = mode
	return p
}

func newTestContext(t *testing.T, params pre.SchemeParameters, opts ...Option) *pre.Context {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping lattice engine test in short mode")
	}
	log := zaptest.NewLogger(t)
	eng := NewEngine(append([]Option{WithLogger(log)}, opts...)...)
	c, err := pre.Configure(eng, params, pre.WithLogger(log))
	require.NoError(t, err)
	return c
}

func TestConfigure(t *testing.T) {
	eng := NewEngine()

	b, err := eng.configure(testParams(pre.ModeNoiseFloodingHRA), pre.RequiredCapabilities)
	require.NoError(t, err)
	require.NotNil(t, b.flood)
	require.Equal(t, b.params.Q(), b.flood.Q())
	require.Zero(t, b.flood.PCount())

	info := b.Info()
	require.Equal(t, 1024, info.RingDim)
	require.Equal(t, 2, info.QCount)
	require.Equal(t, 2, info.PCount)
	require.InDelta(t, 120, info.LogQ, 1)
	require.InDelta(t, 122, info.LogP, 1)

	b, err = eng.configure(testParams(pre.ModeINDCPA), pre.RequiredCapabilities)
	require.NoError(t, err)
	require.Nil(t, b.flood)

	p := testParams(pre.ModeINDCPA)
	p.MultiplicativeDepth = 2
	b, err = eng.configure(p, pre.RequiredCapabilities)
	require.NoError(t, err)
	require.Equal(t, 4, b.Info().QCount)
}

func TestConfigureRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*pre.SchemeParameters)
	}{
		{"BV", func(p *pre.SchemeParameters) { p.KeySwitch = pre.KeySwitchBV }},
		{"RingTooSmall", func(p *pre.SchemeParameters) { p.RingDim = 512 }},
		{"RingTooLarge", func(p *pre.SchemeParameters) { p.RingDim = 1 << 18 }},
		{"ModulusTooLarge", func(p *pre.SchemeParameters) { p.PlaintextModulus = 1 << 40 }},
		{"FloodingTooWide", func(p *pre.SchemeParameters) { p.StatisticalSecurity = 240 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testParams(pre.ModeNoiseFloodingHRA)
			tt.mutate(&p)
			_, err := NewEngine().Configure(p, pre.RequiredCapabilities)
			require.ErrorIs(t, err, pre.ErrInvalidParameters)
		})
	}

	t.Run("MissingCapability", func(t *testing.T) {
		_, err := NewEngine().Configure(testParams(pre.ModeINDCPA), pre.CapPKE)
		require.ErrorIs(t, err, pre.ErrInvalidParameters)
	})
}

func TestFloodingSigma(t *testing.T) {
	require.InDelta(t, float64(1<<30), floodingSigma(40, 1<<20), 1)
	require.InDelta(t, float64(1<<20), floodingSigma(40, 1), 1)
}

func TestDirectCorrectness(t *testing.T) {
	c := newTestContext(t, testParams(pre.ModeNoiseFloodingHRA))
	ctx := context.Background()

	kp, err := pre.GenKeyPair(ctx, c)
	require.NoError(t, err)

	x := pre.NewExecutor(c)
	pt := pre.NewPlaintext([]byte(testPayload), 2)
	ct, err := x.Encrypt(ctx, kp.Public, pt)
	require.NoError(t, err)

	got, err := x.Decrypt(ctx, kp.Secret, ct, ct.Len())
	require.NoError(t, err)
	require.Equal(t, pt.Slots(), got.Slots())
}

func TestReEncrypt(t *testing.T) {
	for _, mode := range []pre.Mode{pre.ModeINDCPA, pre.ModeFixedNoiseHRA, pre.ModeNoiseFloodingHRA} {
		t.Run(mode.String(), func(t *testing.T) {
			params := testParams(mode)
			c := newTestContext(t, params)

			rep, err := pre.Run(context.Background(), c, []byte(testPayload), 1)
			require.NoError(t, err)
			require.True(t, rep.Verdict.Pass)
			require.Len(t, rep.Delegated, 8*len(testPayload))
			require.Equal(t, []byte(testPayload), rep.Recovered)

			rep, err = pre.Run(context.Background(), c, []byte(testPayload), params.HopBudget)
			require.NoError(t, err)
			require.True(t, rep.Verdict.Pass)
		})
	}
}

func TestZeroHopAndEmpty(t *testing.T) {
	c := newTestContext(t, testParams(pre.ModeNoiseFloodingHRA))

	rep, err := pre.Run(context.Background(), c, []byte(testPayload), 0)
	require.NoError(t, err)
	require.True(t, rep.Verdict.Pass)
	require.Equal(t, pre.Encode([]byte(testPayload), 2), rep.Direct)

	rep, err = pre.Run(context.Background(), c, nil, 1)
	require.NoError(t, err)
	require.True(t, rep.Verdict.Pass)
	require.Empty(t, rep.Delegated)
}

func TestWrongKey(t *testing.T) {
	c := newTestContext(t, testParams(pre.ModeFixedNoiseHRA))
	ctx := context.Background()

	pairs, err := pre.GenKeyPairs(ctx, c, 2)
	require.NoError(t, err)

	x := pre.NewExecutor(c)
	pt := pre.NewPlaintext([]byte(testPayload), 2)
	ct, err := x.Encrypt(ctx, pairs[0].Public, pt)
	require.NoError(t, err)

	// Decrypt below the executor, which would refuse the wrong key.
	backend, err := NewEngine().configure(testParams(pre.ModeFixedNoiseHRA), pre.RequiredCapabilities)
	require.NoError(t, err)

	raw, err := backend.Decrypt(ctx, pairs[1].Secret.Handle(), ct.Handle())
	require.NoError(t, err)
	got := pre.Normalize(pre.Truncate(raw, pt.Length), 2)
	require.NotEqual(t, pt.Slots(), got)

	require.Error(t, backend.ValidateKeyPair(ctx, pairs[0].Public.Handle(), pairs[1].Secret.Handle()))
	require.NoError(t, backend.ValidateKeyPair(ctx, pairs[0].Public.Handle(), pairs[0].Secret.Handle()))
}

func TestLargerPlaintextModulus(t *testing.T) {
	params := testParams(pre.ModeNoiseFloodingHRA)
	params.PlaintextModulus = 17
	c := newTestContext(t, params)
	ctx := context.Background()

	pairs, err := pre.GenKeyPairs(ctx, c, 2)
	require.NoError(t, err)

	residues := make([]int64, 64)
	for i := range residues {
		residues[i] = int64(i % 17)
	}
	pt := &pre.Plaintext{Residues: residues, Length: len(residues), Modulus: 17}

	x := pre.NewExecutor(c)
	ct, err := x.Encrypt(ctx, pairs[0].Public, pt)
	require.NoError(t, err)
	evk, err := pre.GenReKey(ctx, c, pairs[0].Secret, pairs[1].Public)
	require.NoError(t, err)
	ct, err = x.ReEncrypt(ctx, ct, evk)
	require.NoError(t, err)

	got, err := x.Decrypt(ctx, pairs[1].Secret, ct, ct.Len())
	require.NoError(t, err)
	require.Equal(t, residues, got.Slots())

	_, err = pre.NormalizeStrict(got.Slots(), 17)
	require.NoError(t, err)
}

func TestSerialization(t *testing.T) {
	c := newTestContext(t, testParams(pre.ModeNoiseFloodingHRA))
	ctx := context.Background()

	pairs, err := pre.GenKeyPairs(ctx, c, 2)
	require.NoError(t, err)

	pkData, err := pairs[1].Public.MarshalBinary()
	require.NoError(t, err)
	pk, err := pre.UnmarshalPublicKey(c, pkData)
	require.NoError(t, err)
	require.Equal(t, pairs[1].ID(), pk.ID())

	x := pre.NewExecutor(c)
	pt := pre.NewPlaintext([]byte(testPayload), 2)
	ct, err := x.Encrypt(ctx, pairs[0].Public, pt)
	require.NoError(t, err)

	evk, err := pre.GenReKey(ctx, c, pairs[0].Secret, pk)
	require.NoError(t, err)
	evkData, err := evk.MarshalBinary()
	require.NoError(t, err)
	evk, err = pre.UnmarshalEvalKey(c, evkData)
	require.NoError(t, err)

	ctData, err := ct.MarshalBinary()
	require.NoError(t, err)
	ct, err = pre.UnmarshalCiphertext(c, ctData)
	require.NoError(t, err)

	ct, err = x.ReEncrypt(ctx, ct, evk)
	require.NoError(t, err)
	got, err := x.Decrypt(ctx, pairs[1].Secret, ct, ct.Len())
	require.NoError(t, err)
	require.Equal(t, pt.Slots(), got.Slots())
}

func TestKeyGenExhausted(t *testing.T) {
	b, err := NewEngine(WithMaxConcurrent(1)).configure(testParams(pre.ModeINDCPA), pre.RequiredCapabilities)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.sem.Acquire(ctx, 1))
	_, _, err = b.KeyGen(ctx)
	require.ErrorIs(t, err, pre.ErrResourceExhausted)

	b.sem.Release(1)
	pk, sk, err := b.KeyGen(ctx)
	require.NoError(t, err)
	require.Equal(t, pre.KindPublicKey, pk.Kind())
	require.Equal(t, pre.KindSecretKey, sk.Kind())
}
