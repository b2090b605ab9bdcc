// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping lattice workflow in short mode")
	}
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetArgs(append([]string{"--ring-dim", "1024", "--hop-budget", "2", "--log-level", "warn"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestDemoPasses(t *testing.T) {
	out, err := execute(t, "--hops", "2", "--runs", "2")
	require.NoError(t, err)
	require.Contains(t, out, "p = 2\n")
	require.Contains(t, out, "n = 1024\n")
	require.Contains(t, out, "You can encrypt 128 bytes of data\n")
	require.Contains(t, out, `Recovered: "Secret Hello World\n"`)
	require.Contains(t, out, "runs = 2")
	require.Contains(t, out, "PRE passes\n")
}

func TestDemoExitCodes(t *testing.T) {
	_, err := execute(t, "--hops", "3")
	var ee *exitError
	require.ErrorAs(t, err, &ee)
	require.Equal(t, exitFail, ee.code)

	_, err = execute(t, "--pre-mode", "none")
	require.ErrorAs(t, err, &ee)
	require.Equal(t, exitFatal, ee.code)
}
