// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package metrics defines the Prometheus collectors of the PRE service.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "gnosis_pre"

// Status label values.
const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

type Metrics struct {
	operations *prometheus.CounterVec
	latency    *prometheus.HistogramVec
	hops       prometheus.Histogram
	jobs       *prometheus.CounterVec
	inFlight   prometheus.Gauge
}

func New(registerer prometheus.Registerer) *Metrics {
	m := Metrics{
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Number of PRE operations by outcome",
			},
			[]string{"operation", "status"},
		),
		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Latency of PRE operations",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 16),
			},
			[]string{"operation"},
		),
		hops: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ciphertext_hops",
				Help:      "Hop count of re-encrypted ciphertexts",
				Buckets:   prometheus.LinearBuckets(1, 1, 16),
			},
		),
		jobs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "jobs_total",
				Help:      "Number of queued jobs processed by outcome",
			},
			[]string{"operation", "status"},
		),
		inFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "engine_calls_in_flight",
				Help:      "Engine calls currently running on the worker pool",
			},
		),
	}

	registerer.MustRegister(m.operations)
	registerer.MustRegister(m.latency)
	registerer.MustRegister(m.hops)
	registerer.MustRegister(m.jobs)
	registerer.MustRegister(m.inFlight)

	return &m
}

func status(err error) string {
	if err != nil {
		return StatusFailure
	}
	return StatusSuccess
}

// ObserveOperation counts op by outcome and records its latency since start.
func (m *Metrics) ObserveOperation(op string, start time.Time, err error) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(op, status(err)).Inc()
	m.latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveHops(hops int) {
	if m == nil {
		return
	}
	m.hops.Observe(float64(hops))
}

func (m *Metrics) ObserveJob(op string, err error) {
	if m == nil {
		return
	}
	m.jobs.WithLabelValues(op, status(err)).Inc()
}

// Track marks an engine call as started and returns the function ending it.
func (m *Metrics) Track() func() {
	if m == nil {
		return func() {}
	}
	m.inFlight.Inc()
	return m.inFlight.Dec
}
