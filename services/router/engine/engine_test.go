// Copyright (C) 2025 DTCE AI (engineering@dtce.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtce-ai/docrouter/services/router/config"
	"github.com/dtce-ai/docrouter/services/router/datatypes"
	"github.com/dtce-ai/docrouter/services/router/intent"
	"github.com/dtce-ai/docrouter/services/router/searchfilter"
)

// mockBackend is a hand-written SearchBackend for engine tests.
type mockBackend struct {
	name      string
	results   []datatypes.Candidate
	err       error
	calls     int
	gotQuery  string
	gotFilter *searchfilter.Filter
	gotLimit  int
}

func (m *mockBackend) Name() string { return m.name }

func (m *mockBackend) Search(_ context.Context, query string, filter *searchfilter.Filter, limit int) ([]datatypes.Candidate, error) {
	m.calls++
	m.gotQuery = query
	m.gotFilter = filter
	m.gotLimit = limit
	return m.results, m.err
}

func testConfig() *config.RouterConfig {
	return &config.RouterConfig{
		SearchLimit:    10,
		BackendTimeout: 5 * time.Second,
		Weights: config.Weights{
			Keyword:    config.DefaultKeywordWeight,
			Pattern:    config.DefaultPatternWeight,
			Normalizer: config.DefaultScoreNormalizer,
		},
		Quality: config.QualityConfig{
			MinResultCount:     config.DefaultMinResultCount,
			MinScoreThreshold:  config.DefaultMinScoreThreshold,
			MinHighRelevance:   config.DefaultMinHighRelevance,
			EscalationKeywords: config.DefaultEscalationKeywords(),
		},
	}
}

func testEngine(t *testing.T, primary, secondary SearchBackend) *Engine {
	t.Helper()
	table, err := config.LoadCategoryTable("")
	require.NoError(t, err)
	classifier, err := intent.NewClassifier(table, testConfig().Weights)
	require.NoError(t, err)
	return NewEngine(
		intent.NewGate(table.Gate),
		classifier,
		nil,
		primary,
		secondary,
		testConfig(),
		nil,
		slog.Default(),
	)
}

func primaryCandidates(scores ...float64) []datatypes.Candidate {
	out := make([]datatypes.Candidate, len(scores))
	for i, s := range scores {
		out[i] = datatypes.Candidate{
			ID:     string(rune('a' + i)),
			Title:  "doc",
			Score:  s,
			Source: datatypes.SourcePrimary,
		}
	}
	return out
}

func TestRoute_InvalidUTF8(t *testing.T) {
	e := testEngine(t, &mockBackend{name: "primary"}, &mockBackend{name: "secondary"})
	_, err := e.Route(context.Background(), &datatypes.RouteRequest{Query: "policy \xff\xfe"})
	require.ErrorIs(t, err, ErrInvalidQuery)
}

func TestRoute_ConversationalShortCircuit(t *testing.T) {
	primary := &mockBackend{name: "primary"}
	secondary := &mockBackend{name: "secondary"}
	e := testEngine(t, primary, secondary)

	res, err := e.Route(context.Background(), &datatypes.RouteRequest{Query: "hi"})
	require.NoError(t, err)
	assert.True(t, res.Conversational)
	assert.Empty(t, res.Candidates)
	assert.Empty(t, res.Category)
	assert.Zero(t, primary.calls)
	assert.Zero(t, secondary.calls)
	require.Len(t, res.Trail, 1)
	assert.Equal(t, "gate", res.Trail[0].Stage)
}

func TestRoute_SufficientPrimarySkipsSecondary(t *testing.T) {
	primary := &mockBackend{name: "primary", results: primaryCandidates(2.0, 1.5, 0.5)}
	secondary := &mockBackend{name: "secondary"}
	e := testEngine(t, primary, secondary)

	res, err := e.Route(context.Background(), &datatypes.RouteRequest{Query: "what is the sick leave policy"})
	require.NoError(t, err)
	assert.False(t, res.Conversational)
	assert.Equal(t, "POLICY", res.Category)
	assert.False(t, res.Escalated)
	assert.Equal(t, "primary results sufficient", res.EscalationReason)
	assert.Len(t, res.Candidates, 3)
	assert.Equal(t, 3, res.PrimaryCount)
	assert.Zero(t, res.SecondaryCount)
	assert.Equal(t, 1, primary.calls)
	assert.Zero(t, secondary.calls)

	// The classified scope reached the backend as a compiled filter.
	require.NotNil(t, primary.gotFilter)
	assert.Equal(t, 10, primary.gotLimit)
	assert.Equal(t, "what is the sick leave policy", primary.gotQuery)
}

func TestRoute_GeneralQuerySearchesUnrestricted(t *testing.T) {
	primary := &mockBackend{name: "primary", results: primaryCandidates(2.0, 1.5, 0.5)}
	e := testEngine(t, primary, &mockBackend{name: "secondary"})

	res, err := e.Route(context.Background(), &datatypes.RouteRequest{Query: "tell me about the office"})
	require.NoError(t, err)
	assert.Equal(t, config.CategoryGeneral, res.Category)
	assert.Nil(t, res.Scope)
	assert.Nil(t, primary.gotFilter)
}

func TestRoute_EscalationMergesWithPrimaryPrecedence(t *testing.T) {
	primary := &mockBackend{name: "primary", results: []datatypes.Candidate{
		{ID: "dup", Title: "indexed copy", Score: 2.0, Source: datatypes.SourcePrimary},
	}}
	secondary := &mockBackend{name: "secondary", results: []datatypes.Candidate{
		{ID: "dup", Title: "live copy", Score: 9.9, Source: datatypes.SourceSecondary},
		{ID: "fresh", Title: "live only", Score: 1.0, Source: datatypes.SourceSecondary},
	}}
	e := testEngine(t, primary, secondary)

	// One primary result is below the minimum count, so the gate escalates.
	res, err := e.Route(context.Background(), &datatypes.RouteRequest{Query: "what is the sick leave policy"})
	require.NoError(t, err)
	assert.True(t, res.Escalated)
	assert.Equal(t, "only 1 results (need 3)", res.EscalationReason)
	assert.Equal(t, 1, secondary.calls)

	require.Len(t, res.Candidates, 2)
	assert.Equal(t, "dup", res.Candidates[0].ID)
	assert.Equal(t, "indexed copy", res.Candidates[0].Title)
	assert.Equal(t, datatypes.SourcePrimary, res.Candidates[0].Source)
	assert.Equal(t, "fresh", res.Candidates[1].ID)
	assert.Equal(t, 1, res.PrimaryCount)
	assert.Equal(t, 1, res.SecondaryCount)
}

func TestRoute_EscalationDropsFilterForSecondary(t *testing.T) {
	primary := &mockBackend{name: "primary"}
	secondary := &mockBackend{name: "secondary", results: []datatypes.Candidate{
		{ID: "live-1", Title: "live", Score: 1.0, Source: datatypes.SourceSecondary},
	}}
	e := testEngine(t, primary, secondary)

	// Zero primary results under the POLICY folder restriction. The live
	// source must be queried unrestricted, not under the same filter that
	// just came back empty.
	res, err := e.Route(context.Background(), &datatypes.RouteRequest{Query: "what is the sick leave policy"})
	require.NoError(t, err)
	assert.True(t, res.Escalated)
	require.NotNil(t, primary.gotFilter)
	assert.Equal(t, 1, secondary.calls)
	assert.Nil(t, secondary.gotFilter)
	assert.Equal(t, "what is the sick leave policy", secondary.gotQuery)
}

func TestRoute_EscalationKeywordForcesSecondary(t *testing.T) {
	primary := &mockBackend{name: "primary", results: primaryCandidates(2.0, 1.5, 1.2)}
	secondary := &mockBackend{name: "secondary"}
	e := testEngine(t, primary, secondary)

	res, err := e.Route(context.Background(), &datatypes.RouteRequest{Query: "what is the latest wind load standard"})
	require.NoError(t, err)
	assert.True(t, res.Escalated)
	assert.Contains(t, res.EscalationReason, "latest")
	assert.Equal(t, 1, secondary.calls)
}

func TestRoute_PrimaryFailureRecoveredBySecondary(t *testing.T) {
	primary := &mockBackend{name: "primary", err: errors.New("connection refused")}
	secondary := &mockBackend{name: "secondary", results: []datatypes.Candidate{
		{ID: "live-1", Title: "live", Score: 1.0, Source: datatypes.SourceSecondary},
	}}
	e := testEngine(t, primary, secondary)

	res, err := e.Route(context.Background(), &datatypes.RouteRequest{Query: "what is the sick leave policy"})
	require.NoError(t, err)
	assert.True(t, res.Escalated)
	assert.Equal(t, "no results from primary source", res.EscalationReason)
	assert.Len(t, res.Candidates, 1)
	assert.Equal(t, "live-1", res.Candidates[0].ID)
	assert.Empty(t, res.Message)
}

func TestRoute_BothSourcesFailed(t *testing.T) {
	primary := &mockBackend{name: "primary", err: errors.New("connection refused")}
	secondary := &mockBackend{name: "secondary", err: errors.New("gateway timeout")}
	e := testEngine(t, primary, secondary)

	res, err := e.Route(context.Background(), &datatypes.RouteRequest{Query: "what is the sick leave policy"})
	require.NoError(t, err)
	assert.Empty(t, res.Candidates)
	assert.Equal(t, "no results, both sources unavailable", res.Message)
}

func TestRoute_DeadlineElapsedSkipsSecondary(t *testing.T) {
	primary := &mockBackend{name: "primary", results: primaryCandidates(2.0, 1.5, 1.2)}
	secondary := &mockBackend{name: "secondary"}
	e := testEngine(t, primary, secondary)

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	// The keyword forces escalation, but the deadline is already gone.
	res, err := e.Route(ctx, &datatypes.RouteRequest{Query: "what is the latest wind load standard"})
	require.NoError(t, err)
	assert.True(t, res.Escalated)
	assert.True(t, res.Truncated)
	assert.Zero(t, secondary.calls)
	assert.Len(t, res.Candidates, 3)
}

func TestRoute_NoSecondaryConfigured(t *testing.T) {
	primary := &mockBackend{name: "primary"}
	e := testEngine(t, primary, nil)

	res, err := e.Route(context.Background(), &datatypes.RouteRequest{Query: "what is the sick leave policy"})
	require.NoError(t, err)
	assert.True(t, res.Escalated)
	assert.Empty(t, res.Candidates)

	found := false
	for _, entry := range res.Trail {
		if entry.Stage == "secondary" {
			assert.Contains(t, entry.Detail, "not configured")
			found = true
		}
	}
	assert.True(t, found)
}

func TestRoute_TrailCoversEveryStage(t *testing.T) {
	primary := &mockBackend{name: "primary", results: primaryCandidates(2.0, 1.5, 0.5)}
	e := testEngine(t, primary, &mockBackend{name: "secondary"})

	res, err := e.Route(context.Background(), &datatypes.RouteRequest{Query: "what is the sick leave policy"})
	require.NoError(t, err)

	stages := make([]string, len(res.Trail))
	for i, entry := range res.Trail {
		stages[i] = entry.Stage
	}
	assert.Equal(t, []string{"gate", "classify", "filter", "primary", "quality", "merge"}, stages)
}

func TestMerge(t *testing.T) {
	primary := []datatypes.Candidate{{ID: "a"}, {ID: "b"}}
	secondary := []datatypes.Candidate{{ID: "b", Title: "loser"}, {ID: "c"}, {ID: "c", Title: "self-dup"}}

	merged := merge(primary, secondary)
	require.Len(t, merged, 3)
	assert.Equal(t, "a", merged[0].ID)
	assert.Equal(t, "b", merged[1].ID)
	assert.Empty(t, merged[1].Title)
	assert.Equal(t, "c", merged[2].ID)
	assert.Empty(t, merged[2].Title)
}

func TestMerge_Empty(t *testing.T) {
	assert.Empty(t, merge(nil, nil))
	assert.Len(t, merge(nil, []datatypes.Candidate{{ID: "x"}}), 1)
	assert.Len(t, merge([]datatypes.Candidate{{ID: "x"}}, nil), 1)
}
