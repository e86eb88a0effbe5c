// Copyright (C) 2025 DTCE AI (engineering@dtce.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the router service.
//
// # Description
//
// Metrics cover the routing pipeline end to end: gate outcomes,
// classification by category, escalation by reason, backend failures,
// routing latency, and merged candidate counts.
//
// # Integration
//
// Metrics are exposed via the /metrics endpoint. Use with Prometheus +
// Grafana for dashboards and alerting.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace for all metrics
const metricsNamespace = "docrouter"

// Subsystem for routing metrics
const routingSubsystem = "routing"

// RoutingMetrics holds all Prometheus metrics for routing operations.
//
// Initialize once at startup via NewRoutingMetrics(). A nil *RoutingMetrics
// is valid and records nothing, so tests can run the engine unmetered.
type RoutingMetrics struct {
	// RequestsTotal counts routed queries by outcome.
	// Labels: outcome (conversational, routed, invalid)
	RequestsTotal *prometheus.CounterVec

	// ClassificationsTotal counts classifications by category.
	// Labels: category (POLICY, PROCEDURE, ..., GENERAL)
	ClassificationsTotal *prometheus.CounterVec

	// EscalationsTotal counts quality-gate escalations by condition.
	// Labels: condition (no_results, too_few, low_relevance, keyword)
	EscalationsTotal *prometheus.CounterVec

	// BackendFailuresTotal counts recovered backend failures.
	// Labels: backend (primary, secondary)
	BackendFailuresTotal *prometheus.CounterVec

	// RouteDurationSeconds measures end-to-end routing latency.
	RouteDurationSeconds prometheus.Histogram

	// CandidateCount measures merged candidate counts per routed query.
	CandidateCount prometheus.Histogram
}

// NewRoutingMetrics creates and registers all routing metrics with the
// default registry.
func NewRoutingMetrics() *RoutingMetrics {
	return newRoutingMetrics(prometheus.DefaultRegisterer)
}

// NewRoutingMetricsWithRegistry creates routing metrics on a private
// registry, for tests that must not pollute the default one.
func NewRoutingMetricsWithRegistry(reg prometheus.Registerer) *RoutingMetrics {
	return newRoutingMetrics(reg)
}

func newRoutingMetrics(reg prometheus.Registerer) *RoutingMetrics {
	factory := promauto.With(reg)
	return &RoutingMetrics{
		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: routingSubsystem,
				Name:      "requests_total",
				Help:      "Total routed queries by outcome",
			},
			[]string{"outcome"},
		),
		ClassificationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: routingSubsystem,
				Name:      "classifications_total",
				Help:      "Total classifications by category",
			},
			[]string{"category"},
		),
		EscalationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: routingSubsystem,
				Name:      "escalations_total",
				Help:      "Total quality-gate escalations by condition",
			},
			[]string{"condition"},
		),
		BackendFailuresTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: routingSubsystem,
				Name:      "backend_failures_total",
				Help:      "Total recovered backend failures",
			},
			[]string{"backend"},
		),
		RouteDurationSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: routingSubsystem,
				Name:      "route_duration_seconds",
				Help:      "End-to-end routing latency",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 15, 30},
			},
		),
		CandidateCount: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: routingSubsystem,
				Name:      "candidate_count",
				Help:      "Merged candidate count per routed query",
				Buckets:   []float64{0, 1, 2, 3, 5, 10, 20, 50},
			},
		),
	}
}

// RecordRequest increments the request counter for an outcome.
func (m *RoutingMetrics) RecordRequest(outcome string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(outcome).Inc()
}

// RecordClassification increments the classification counter for a category.
func (m *RoutingMetrics) RecordClassification(category string) {
	if m == nil {
		return
	}
	m.ClassificationsTotal.WithLabelValues(category).Inc()
}

// RecordEscalation increments the escalation counter for a condition.
func (m *RoutingMetrics) RecordEscalation(condition string) {
	if m == nil {
		return
	}
	m.EscalationsTotal.WithLabelValues(condition).Inc()
}

// RecordBackendFailure increments the backend failure counter.
func (m *RoutingMetrics) RecordBackendFailure(backend string) {
	if m == nil {
		return
	}
	m.BackendFailuresTotal.WithLabelValues(backend).Inc()
}

// RecordRoute observes the routing latency and candidate count.
func (m *RoutingMetrics) RecordRoute(seconds float64, candidates int) {
	if m == nil {
		return
	}
	m.RouteDurationSeconds.Observe(seconds)
	m.CandidateCount.Observe(float64(candidates))
}
