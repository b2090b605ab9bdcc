// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Command pre-worker consumes queued PRE jobs.
//
// Encrypt and reEncrypt jobs only touch shared storage and can run on any
// worker. genKeyPair, genReKey and decrypt jobs need a principal's secret
// key, which lives in the process that generated it.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mahanfr/GnosisDB/config"
	"github.com/mahanfr/GnosisDB/internal/metrics"
	"github.com/mahanfr/GnosisDB/internal/service"
	"github.com/mahanfr/GnosisDB/internal/worker"
	"github.com/mahanfr/GnosisDB/lattice"
	"github.com/mahanfr/GnosisDB/pre"
)

var version = "dev"

func main() {
	cmd := &cobra.Command{
		Use:           "pre-worker",
		Short:         "Consume queued proxy re-encryption jobs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := config.BuildViper(cmd.Flags())
			if err != nil {
				return err
			}
			cfg, err := config.NewConfig(v)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	config.AddFlags(cmd.Flags())

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	log, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("PRE worker starting",
		zap.Int("workers", cfg.Workers),
		zap.String("queue", cfg.Queue),
		zap.String("redis", cfg.RedisAddr),
		zap.String("storage", cfg.Storage),
		zap.String("metrics", cfg.MetricsAddr),
	)
	if cfg.Queue == config.QueueMemory {
		log.Warn("memory queue is private to this process; use --queue redis to share jobs")
	}
	if cfg.EnvelopeKey == "" {
		log.Warn("no envelope key set; ciphertexts and re-encryption keys stored by other processes will be rejected")
	}

	// Queue.
	q, err := cfg.OpenQueue()
	if err != nil {
		return fmt.Errorf("create queue: %w", err)
	}
	defer q.Close()

	// Storage.
	store, err := cfg.OpenStorage()
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	defer store.Close()

	params, err := cfg.SchemeParameters()
	if err != nil {
		return err
	}
	eng := lattice.NewEngine(lattice.WithLogger(log), lattice.WithMaxConcurrent(cfg.Workers))
	opts, err := cfg.ContextOptions(log)
	if err != nil {
		return err
	}
	c, err := pre.Configure(eng, params, opts...)
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	pool := worker.NewPool(cfg.Workers)
	defer pool.Close()
	svc := service.New(c, store,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithPool(pool),
	)

	consumer := worker.NewConsumer(cfg.Workers, q, svc, m, log)
	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("start workers: %w", err)
	}

	// Metrics server.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info("metrics server starting", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutdown signal received")

	// Graceful shutdown.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		log.Warn("metrics server shutdown error", zap.Error(err))
	}
	if err := consumer.Stop(); err != nil {
		log.Warn("worker pool shutdown error", zap.Error(err))
	}

	log.Info("shutdown complete",
		zap.Int64("succeeded", consumer.Succeeded()),
		zap.Int64("failed", consumer.Failed()),
	)
	return nil
}
