// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package pre_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mahanfr/GnosisDB/pre"
	"github.com/mahanfr/GnosisDB/pre/pretest"
)

func TestCiphertextEnvelope(t *testing.T) {
	f := newExecutorFixture(t, 2)
	pt := pre.NewPlaintext([]byte(testPayload), 2)
	ct, err := f.x.Encrypt(f.ctx, f.pairs[0].Public, pt)
	require.NoError(t, err)
	ct, err = f.x.ReEncrypt(f.ctx, ct, f.rekey(t, 0, 1))
	require.NoError(t, err)

	data, err := ct.MarshalBinary()
	require.NoError(t, err)

	got, err := pre.UnmarshalCiphertext(f.c, data)
	require.NoError(t, err)
	require.Equal(t, ct.Hops(), got.Hops())
	require.Equal(t, ct.Target(), got.Target())
	require.Equal(t, ct.Len(), got.Len())

	dec, err := f.x.Decrypt(f.ctx, f.pairs[1].Secret, got, got.Len())
	require.NoError(t, err)
	require.Equal(t, pt.Slots(), dec.Slots())
}

func TestEvalKeyEnvelope(t *testing.T) {
	f := newExecutorFixture(t, 2)
	evk := f.rekey(t, 0, 1)

	data, err := evk.MarshalBinary()
	require.NoError(t, err)

	got, err := pre.UnmarshalEvalKey(f.c, data)
	require.NoError(t, err)
	require.Equal(t, evk.Source(), got.Source())
	require.Equal(t, evk.Target(), got.Target())

	_, err = pre.UnmarshalCiphertext(f.c, data)
	require.ErrorIs(t, err, pre.ErrInvalidEncoding)
}

func TestPublicKeyRoundTrip(t *testing.T) {
	f := newExecutorFixture(t, 1)
	data, err := f.pairs[0].Public.MarshalBinary()
	require.NoError(t, err)

	pk, err := pre.UnmarshalPublicKey(f.c, data)
	require.NoError(t, err)
	require.Equal(t, f.pairs[0].ID(), pk.ID())

	ct, err := f.x.Encrypt(f.ctx, pk, pre.NewPlaintext([]byte{7}, 2))
	require.NoError(t, err)
	got, err := f.x.Decrypt(f.ctx, f.pairs[0].Secret, ct, ct.Len())
	require.NoError(t, err)
	require.Equal(t, pre.Encode([]byte{7}, 2), got.Slots())
}

func TestUnmarshalTruncated(t *testing.T) {
	f := newExecutorFixture(t, 1)
	_, err := pre.UnmarshalCiphertext(f.c, []byte{1, 3})
	require.Error(t, err)
	_, err = pre.UnmarshalEvalKey(f.c, nil)
	require.Error(t, err)
}

func TestCiphertextEnvelopeTampered(t *testing.T) {
	f := newExecutorFixture(t, 2)
	ct, err := f.x.Encrypt(f.ctx, f.pairs[0].Public, pre.NewPlaintext([]byte(testPayload), 2))
	require.NoError(t, err)
	evk := f.rekey(t, 0, 1)
	for range f.c.Params().HopBudget {
		ct, err = f.x.ReEncrypt(f.ctx, ct, evk)
		require.NoError(t, err)
		evk = f.rekey(t, 1, 1)
	}
	require.Equal(t, f.c.Params().HopBudget, ct.Hops())

	data, err := ct.MarshalBinary()
	require.NoError(t, err)

	// Rewind the hop counter.
	forged := append([]byte(nil), data...)
	binary.LittleEndian.PutUint16(forged[2:4], 0)
	_, err = pre.UnmarshalCiphertext(f.c, forged)
	require.ErrorIs(t, err, pre.ErrEnvelopeTampered)
	require.ErrorIs(t, err, pre.ErrInvalidEncoding)

	// Flip one body byte.
	forged = append([]byte(nil), data...)
	forged[len(forged)/2] ^= 1
	_, err = pre.UnmarshalCiphertext(f.c, forged)
	require.ErrorIs(t, err, pre.ErrEnvelopeTampered)

	// A Context with a different envelope key cannot open it.
	other := newContext(t, &pretest.Engine{}, testParams())
	_, err = pre.UnmarshalCiphertext(other, data)
	require.ErrorIs(t, err, pre.ErrEnvelopeTampered)

	got, err := pre.UnmarshalCiphertext(f.c, data)
	require.NoError(t, err)
	_, err = f.x.ReEncrypt(f.ctx, got, evk)
	require.ErrorIs(t, err, pre.ErrHopBudgetExceeded)
}

func TestEvalKeyEnvelopeTampered(t *testing.T) {
	f := newExecutorFixture(t, 3)
	data, err := f.rekey(t, 0, 1).MarshalBinary()
	require.NoError(t, err)

	// Redirect the key to another target.
	forged := append([]byte(nil), data...)
	target := f.pairs[2].ID()
	copy(forged[2+len(target):], target[:])
	_, err = pre.UnmarshalEvalKey(f.c, forged)
	require.ErrorIs(t, err, pre.ErrEnvelopeTampered)
}

func TestSharedEnvelopeKey(t *testing.T) {
	key := bytes.Repeat([]byte{7}, pre.EnvelopeKeySize)
	eng := &pretest.Engine{}
	a, err := pre.Configure(eng, testParams(), pre.WithEnvelopeKey(key))
	require.NoError(t, err)
	b, err := pre.Configure(eng, testParams(), pre.WithEnvelopeKey(key))
	require.NoError(t, err)

	kp, err := pre.GenKeyPair(context.Background(), a)
	require.NoError(t, err)
	ct, err := pre.NewExecutor(a).Encrypt(context.Background(), kp.Public, pre.NewPlaintext([]byte{1}, 2))
	require.NoError(t, err)
	data, err := ct.MarshalBinary()
	require.NoError(t, err)

	got, err := pre.UnmarshalCiphertext(b, data)
	require.NoError(t, err)
	require.Equal(t, ct.Target(), got.Target())

	_, err = pre.Configure(eng, testParams(), pre.WithEnvelopeKey([]byte("short")))
	var cfgErr *pre.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
}

func TestUnmarshalLengthBound(t *testing.T) {
	key := bytes.Repeat([]byte{9}, pre.EnvelopeKeySize)
	small := testParams()
	large := testParams()
	large.RingDim = 1 << 12

	// Seal an honest ciphertext on a larger ring and open it on a smaller
	// one: the tag verifies but the length cannot fit.
	eng := &pretest.Engine{}
	big, err := pre.Configure(eng, large, pre.WithEnvelopeKey(key))
	require.NoError(t, err)
	kp, err := pre.GenKeyPair(context.Background(), big)
	require.NoError(t, err)
	ct, err := pre.NewExecutor(big).Encrypt(context.Background(), kp.Public, pre.NewPlaintext(make([]byte, 64), 2))
	require.NoError(t, err)
	require.Greater(t, ct.Len(), small.RingDim)
	data, err := ct.MarshalBinary()
	require.NoError(t, err)

	c, err := pre.Configure(&pretest.Engine{}, small, pre.WithEnvelopeKey(key))
	require.NoError(t, err)
	_, err = pre.UnmarshalCiphertext(c, data)
	require.ErrorIs(t, err, pre.ErrInvalidEncoding)
	require.NotErrorIs(t, err, pre.ErrEnvelopeTampered)
}
