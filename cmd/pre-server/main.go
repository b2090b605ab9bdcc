// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Command pre-server serves the proxy re-encryption API.
//
// It owns the principal registry, so the secret keys of every principal it
// registers stay in this process. Queued jobs are consumed in process.
//
//	pre-server --http-addr :8448 --storage file --storage-path ./data
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
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mahanfr/GnosisDB/config"
	"github.com/mahanfr/GnosisDB/internal/metrics"
	"github.com/mahanfr/GnosisDB/internal/service"
	"github.com/mahanfr/GnosisDB/internal/worker"
	"github.com/mahanfr/GnosisDB/lattice"
	"github.com/mahanfr/GnosisDB/pre"
	"github.com/mahanfr/GnosisDB/server"
)

var version = "dev"

func main() {
	cmd := &cobra.Command{
		Use:           "pre-server",
		Short:         "Serve the proxy re-encryption API",
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
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	log, err := cfg.NewLogger()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Info("PRE server starting",
		zap.String("version", version),
		zap.String("addr", cfg.HTTPAddr),
		zap.String("storage", cfg.Storage),
		zap.String("queue", cfg.Queue),
		zap.Int("workers", cfg.Workers),
	)

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

	store, err := cfg.OpenStorage()
	if err != nil {
		return fmt.Errorf("create storage: %w", err)
	}
	defer store.Close()

	q, err := cfg.OpenQueue()
	if err != nil {
		return fmt.Errorf("create queue: %w", err)
	}
	defer q.Close()

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

	srv := server.New(svc, store,
		server.WithQueue(q),
		server.WithGatherer(reg),
		server.WithLogger(log),
	)
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      5 * time.Minute,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), 30*time.Second)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		if stopErr := consumer.Stop(); stopErr != nil {
			log.Warn("worker shutdown", zap.Error(stopErr))
		}
		return err
	})

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}
