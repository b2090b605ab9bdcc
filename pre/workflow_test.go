// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package pre_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mahanfr/GnosisDB/pre"
	"github.com/mahanfr/GnosisDB/pre/pretest"
)

func TestRunBaseline(t *testing.T) {
	c := newContext(t, &pretest.Engine{}, testParams())

	rep, err := pre.Run(context.Background(), c, []byte(testPayload), 1)
	require.NoError(t, err)
	require.True(t, rep.Verdict.Pass)
	require.Equal(t, -1, rep.Verdict.DirectMismatch)
	require.Equal(t, -1, rep.Verdict.DelegatedMismatch)
	require.Len(t, rep.Original, 8*len(testPayload))
	require.Equal(t, pre.Encode([]byte(testPayload), 2), rep.Delegated)
	require.Equal(t, rep.Original, rep.Direct)
	require.Equal(t, []byte(testPayload), rep.Recovered)
}

func TestRunTwentyBytes(t *testing.T) {
	c := newContext(t, &pretest.Engine{}, testParams())

	payload := []byte("Secret Hello World!\n")
	rep, err := pre.Run(context.Background(), c, payload, 1)
	require.NoError(t, err)
	require.True(t, rep.Verdict.Pass)
	require.Len(t, rep.Original, 160)
	require.Equal(t, payload, rep.Recovered)
}

func TestRunZeroHops(t *testing.T) {
	c := newContext(t, &pretest.Engine{}, testParams())

	rep, err := pre.Run(context.Background(), c, []byte(testPayload), 0)
	require.NoError(t, err)
	require.True(t, rep.Verdict.Pass)
	require.Equal(t, pre.Encode([]byte(testPayload), 2), rep.Direct)
	require.Equal(t, rep.Direct, rep.Delegated)
}

func TestRunFullBudget(t *testing.T) {
	params := testParams()
	c := newContext(t, &pretest.Engine{}, params)

	rep, err := pre.Run(context.Background(), c, []byte(testPayload), params.HopBudget)
	require.NoError(t, err)
	require.True(t, rep.Verdict.Pass)

	_, err = pre.Run(context.Background(), c, []byte(testPayload), params.HopBudget+1)
	require.ErrorIs(t, err, pre.ErrHopBudgetExceeded)
}

func TestRunEmptyPayload(t *testing.T) {
	c := newContext(t, &pretest.Engine{}, testParams())

	rep, err := pre.Run(context.Background(), c, nil, 1)
	require.NoError(t, err)
	require.True(t, rep.Verdict.Pass)
	require.Empty(t, rep.Original)
	require.Empty(t, rep.Delegated)
}

func TestRunKeyGenerationFailure(t *testing.T) {
	c := newContext(t, &pretest.Engine{FailKeyGen: true}, testParams())

	rep, err := pre.Run(context.Background(), c, []byte(testPayload), 1)
	require.Nil(t, rep)
	require.True(t, pre.IsFatal(err))
}

func TestVerify(t *testing.T) {
	orig := pre.Encode([]byte{0xa5}, 2)

	v := pre.Verify(orig, orig, []int64{-1, 0, -1, 0, 0, -1, 0, -1}, 2)
	require.True(t, v.Pass)

	bad := append([]int64(nil), orig...)
	bad[3] = 1
	v = pre.Verify(orig, orig, bad, 2)
	require.False(t, v.Pass)
	require.Equal(t, -1, v.DirectMismatch)
	require.Equal(t, 3, v.DelegatedMismatch)

	v = pre.Verify(orig, orig[:5], orig, 2)
	require.False(t, v.Pass)
	require.Equal(t, 5, v.DirectMismatch)

	v = pre.Verify(orig, nil, nil, 2)
	require.False(t, v.Pass)
	require.Equal(t, 0, v.DirectMismatch)

	require.True(t, pre.Verify(nil, nil, nil, 2).Pass)
}
