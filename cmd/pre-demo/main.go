// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Command pre-demo runs the proxy re-encryption workflow end to end on the
// lattice engine: encrypt under one principal, re-encrypt across a chain of
// delegatees, decrypt at both ends and verify.
//
// Exit status is 0 when the verification passes, 1 when it fails and 2 when
// the scheme cannot be configured or keys cannot be generated.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mahanfr/GnosisDB/config"
	"github.com/mahanfr/GnosisDB/lattice"
	"github.com/mahanfr/GnosisDB/pre"
)

var version = "dev"

const (
	exitFail  = 1
	exitFatal = 2
)

// exitError carries the process exit status out of cobra.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

func (e *exitError) Unwrap() error { return e.err }

const (
	hopsKey    = "hops"
	messageKey = "message"
	runsKey    = "runs"
)

func main() {
	cmd := newRootCmd(os.Stdout)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(exitFatal)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "pre-demo",
		Short:         "Run the multi-hop proxy re-encryption workflow",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cmd, out)
		},
	}

	fs := cmd.Flags()
	config.AddFlags(fs)
	fs.Int(hopsKey, 1, "Number of re-encryption hops")
	fs.String(messageKey, "Secret Hello World\n", "Message to encrypt")
	fs.Int(runsKey, 1, "Number of workflow runs; more than one prints latency statistics")
	return cmd
}

func run(ctx context.Context, cmd *cobra.Command, out io.Writer) error {
	v, err := config.BuildViper(cmd.Flags())
	if err != nil {
		return &exitError{exitFatal, err}
	}
	cfg, err := config.NewConfig(v)
	if err != nil {
		return &exitError{exitFatal, err}
	}
	hops, message, runs := v.GetInt(hopsKey), v.GetString(messageKey), v.GetInt(runsKey)
	if runs < 1 {
		return &exitError{exitFatal, fmt.Errorf("runs must be positive, got %d", runs)}
	}

	log, err := cfg.NewLogger()
	if err != nil {
		return &exitError{exitFatal, err}
	}
	defer func() { _ = log.Sync() }()

	params, err := cfg.SchemeParameters()
	if err != nil {
		return &exitError{exitFatal, err}
	}
	eng := lattice.NewEngine(lattice.WithLogger(log), lattice.WithMaxConcurrent(cfg.Workers))
	opts, err := cfg.ContextOptions(log)
	if err != nil {
		return &exitError{exitFatal, err}
	}
	c, err := pre.Configure(eng, params, opts...)
	if err != nil {
		return &exitError{exitFatal, err}
	}

	info := c.Info()
	fmt.Fprintf(out, "p = %d\n", info.PlaintextModulus)
	fmt.Fprintf(out, "n = %d\n", info.RingDim)
	fmt.Fprintf(out, "log2 q = %.2f\n", info.LogQ)
	fmt.Fprintf(out, "mode = %s, hops = %d of %d\n", params.Mode, hops, params.HopBudget)
	fmt.Fprintf(out, "You can encrypt %d bytes of data\n", info.Capacity)

	var (
		elapsed []float64
		pass    = true
	)
	for i := 0; i < runs; i++ {
		rep, err := pre.Run(ctx, c, []byte(message), hops)
		if err != nil {
			if pre.IsFatal(err) {
				return &exitError{exitFatal, err}
			}
			return &exitError{exitFail, err}
		}
		elapsed = append(elapsed, float64(rep.Elapsed)/float64(time.Millisecond))

		if !rep.Verdict.Pass {
			pass = false
			log.Warn("verification failed",
				zap.Int("run", i),
				zap.Int("directMismatch", rep.Verdict.DirectMismatch),
				zap.Int("delegatedMismatch", rep.Verdict.DelegatedMismatch),
			)
			continue
		}
		if i == 0 && rep.Recovered != nil {
			fmt.Fprintf(out, "Recovered: %q\n", rep.Recovered)
		}
	}

	if runs > 1 {
		printStats(out, elapsed)
	}
	if !pass {
		fmt.Fprintln(out, "PRE fails")
		return &exitError{exitFail, errors.New("decrypted residues do not match the original")}
	}
	fmt.Fprintln(out, "PRE passes")
	return nil
}

func printStats(out io.Writer, ms stats.Float64Data) {
	mean, _ := ms.Mean()
	median, _ := ms.Median()
	p95, _ := ms.Percentile(95)
	sd, _ := ms.StandardDeviation()
	fmt.Fprintf(out, "runs = %d, mean = %.1fms, median = %.1fms, p95 = %.1fms, stddev = %.1fms\n",
		ms.Len(), mean, median, p95, sd)
}
