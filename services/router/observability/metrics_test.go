// Copyright (C) 2025 DTCE AI (engineering@dtce.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutingMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRoutingMetricsWithRegistry(reg)

	m.RecordRequest("routed")
	m.RecordRequest("routed")
	m.RecordRequest("conversational")
	m.RecordClassification("POLICY")
	m.RecordEscalation("no_results")
	m.RecordBackendFailure("primary")
	m.RecordRoute(0.25, 7)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("routed")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.RequestsTotal.WithLabelValues("conversational")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ClassificationsTotal.WithLabelValues("POLICY")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.EscalationsTotal.WithLabelValues("no_results")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BackendFailuresTotal.WithLabelValues("primary")))

	count, err := testutil.GatherAndCount(reg,
		"docrouter_routing_route_duration_seconds",
		"docrouter_routing_candidate_count",
	)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestRoutingMetrics_NilIsSafe(t *testing.T) {
	var m *RoutingMetrics
	assert.NotPanics(t, func() {
		m.RecordRequest("routed")
		m.RecordClassification("POLICY")
		m.RecordEscalation("keyword")
		m.RecordBackendFailure("secondary")
		m.RecordRoute(0.1, 1)
	})
}
