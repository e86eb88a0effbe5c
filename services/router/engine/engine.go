// Copyright (C) 2025 DTCE AI (engineering@dtce.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine implements the routing orchestrator.
//
// The engine runs the full pipeline for one query: utterance gate, intent
// classification, filter compilation, primary search, quality gate,
// optional secondary search, and the merge. Backend failures are recovered
// locally: the engine degrades to whatever results it has and records what
// happened in the decision trail, so the only error a caller ever sees is
// an invalid query.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dtce-ai/docrouter/services/router/config"
	"github.com/dtce-ai/docrouter/services/router/datatypes"
	"github.com/dtce-ai/docrouter/services/router/intent"
	"github.com/dtce-ai/docrouter/services/router/observability"
	"github.com/dtce-ai/docrouter/services/router/quality"
	"github.com/dtce-ai/docrouter/services/router/searchfilter"
)

// engineTracer is the OpenTelemetry tracer for Engine operations.
var engineTracer = otel.Tracer("docrouter.engine")

// ErrInvalidQuery is returned when the query is not valid UTF-8. It is the
// only error Route returns; everything downstream degrades instead.
var ErrInvalidQuery = errors.New("query is not valid UTF-8")

// =============================================================================
// Interfaces
// =============================================================================

// SearchBackend is the contract for a retrieval backend.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type SearchBackend interface {
	// Name identifies the backend in trails and metrics
	// (datatypes.SourcePrimary or datatypes.SourceSecondary).
	Name() string

	// Search retrieves up to limit candidates for the query, restricted by
	// the filter. A nil filter means unrestricted retrieval. Implementations
	// must honor context cancellation.
	Search(ctx context.Context, query string, filter *searchfilter.Filter, limit int) ([]datatypes.Candidate, error)
}

// =============================================================================
// Engine
// =============================================================================

// Engine orchestrates routing. It is stateless across requests; all
// per-request state lives in the RouteResult under construction.
//
// Usage:
//
//	eng := NewEngine(gate, classifier, assist, primary, secondary, cfg, metrics, logger)
//	result, err := eng.Route(ctx, &req)
type Engine struct {
	gate       *intent.Gate
	classifier *intent.Classifier
	assist     *intent.Assist
	primary    SearchBackend
	secondary  SearchBackend
	cfg        *config.RouterConfig
	metrics    *observability.RoutingMetrics
	logger     *slog.Logger
}

// NewEngine creates an Engine with the provided dependencies.
//
// Parameters:
//   - gate: The utterance gate. Must not be nil.
//   - classifier: The intent classifier. Must not be nil.
//   - assist: Optional LLM-assisted fallback. May be nil.
//   - primary: The indexed retrieval backend. Must not be nil.
//   - secondary: The live retrieval backend. May be nil; escalations then
//     degrade to primary results with a trail note.
//   - cfg: Runtime configuration. Must not be nil.
//   - metrics: Routing metrics. May be nil; nothing is recorded.
//   - logger: Structured logger. Must not be nil.
func NewEngine(
	gate *intent.Gate,
	classifier *intent.Classifier,
	assist *intent.Assist,
	primary SearchBackend,
	secondary SearchBackend,
	cfg *config.RouterConfig,
	metrics *observability.RoutingMetrics,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		gate:       gate,
		classifier: classifier,
		assist:     assist,
		primary:    primary,
		secondary:  secondary,
		cfg:        cfg,
		metrics:    metrics,
		logger:     logger,
	}
}

// Route runs the full routing pipeline for one query.
//
// # Description
//
// Gate, classify, compile, search, judge, maybe escalate, merge. Every
// stage appends to the decision trail. Backend failures never fail the
// route: a failed backend contributes an empty candidate list and a trail
// entry, and only when both sources failed does the result carry the
// "both sources unavailable" message. When the context deadline has
// already elapsed before the secondary call, the engine returns the
// primary results marked truncated instead of starting a doomed call.
//
// # Inputs
//
//   - ctx: Context for cancellation, deadline, and tracing.
//   - req: The validated route request.
//
// # Outputs
//
//   - *datatypes.RouteResult: Always non-nil on nil error.
//   - error: ErrInvalidQuery for non-UTF-8 input; nothing else.
func (e *Engine) Route(ctx context.Context, req *datatypes.RouteRequest) (*datatypes.RouteResult, error) {
	ctx, span := engineTracer.Start(ctx, "Engine.Route")
	defer span.End()
	start := time.Now()

	if !utf8.ValidString(req.Query) {
		e.metrics.RecordRequest("invalid")
		span.RecordError(ErrInvalidQuery)
		span.SetStatus(codes.Error, "invalid query encoding")
		return nil, ErrInvalidQuery
	}

	result := &datatypes.RouteResult{
		RequestID:  req.RequestID,
		Query:      req.Query,
		Candidates: []datatypes.Candidate{},
	}
	span.SetAttributes(attribute.String("request_id", req.RequestID))

	// Stage 1: utterance gate.
	substantive, gateReason := e.gate.IsSubstantive(req.Query)
	result.AddTrail("gate", gateReason)
	if !substantive {
		result.Conversational = true
		e.metrics.RecordRequest("conversational")
		span.SetAttributes(attribute.Bool("conversational", true))
		return result, nil
	}

	// Stage 2: classification, with the optional assist when the
	// deterministic pass found no signal.
	cls := e.classifier.Classify(ctx, req.Query)
	if cls.IsGeneral() {
		if assisted, ok := e.assist.Classify(ctx, req.Query); ok {
			cls = assisted
		}
	}
	result.Category = cls.Category
	result.Confidence = cls.Confidence
	result.ClassifyReason = cls.Reason
	result.Scope = cls.Scope
	result.AddTrail("classify", fmt.Sprintf("%s (confidence %.2f): %s", cls.Category, cls.Confidence, cls.Reason))
	e.metrics.RecordClassification(cls.Category)
	span.SetAttributes(
		attribute.String("category", cls.Category),
		attribute.Float64("confidence", cls.Confidence),
	)

	// Stage 3: filter compilation.
	filter := searchfilter.Compile(cls)
	result.AddTrail("filter", filter.String())

	// Stage 4: primary search.
	var primaryResults []datatypes.Candidate
	primaryFailed := false
	if e.primary == nil {
		result.AddTrail("primary", "indexed search not configured")
		primaryFailed = true
	} else {
		primaryResults, primaryFailed = e.search(ctx, e.primary, req.Query, filter, result)
	}

	// Stage 5: quality gate.
	escalate, qualityReason := quality.ShouldEscalate(primaryResults, req.Query, e.cfg.Quality)
	result.Escalated = escalate
	result.EscalationReason = qualityReason
	result.AddTrail("quality", qualityReason)
	if escalate {
		e.metrics.RecordEscalation(escalationCondition(qualityReason))
	}
	span.SetAttributes(attribute.Bool("escalated", escalate))

	// Stage 6: secondary search, when warranted and still worth starting.
	var secondaryResults []datatypes.Candidate
	secondaryFailed := false
	if escalate {
		switch {
		case deadlineElapsed(ctx):
			result.Truncated = true
			result.AddTrail("secondary", "deadline elapsed, live search skipped")
		case e.secondary == nil:
			result.AddTrail("secondary", "live search not configured")
		default:
			// Escalation widens the search. The folder restriction that
			// produced the insufficient primary batch is dropped so the
			// live source sees the whole corpus.
			secondaryResults, secondaryFailed = e.search(ctx, e.secondary, req.Query, nil, result)
		}
	}

	// Stage 7: merge with primary precedence.
	result.Candidates = merge(primaryResults, secondaryResults)
	result.PrimaryCount = len(primaryResults)
	result.SecondaryCount = len(result.Candidates) - len(primaryResults)
	result.AddTrail("merge", fmt.Sprintf("%d candidates (%d primary, %d secondary after dedupe)",
		len(result.Candidates), result.PrimaryCount, result.SecondaryCount))

	if primaryFailed && secondaryFailed {
		result.Message = "no results, both sources unavailable"
	}

	e.metrics.RecordRequest("routed")
	e.metrics.RecordRoute(time.Since(start).Seconds(), len(result.Candidates))
	span.SetAttributes(attribute.Int("candidates", len(result.Candidates)))
	return result, nil
}

// search runs one backend call, recovering failure into an empty list plus
// a trail entry. The per-call timeout bounds a slow backend without
// consuming the whole request deadline.
func (e *Engine) search(
	ctx context.Context,
	backend SearchBackend,
	query string,
	filter *searchfilter.Filter,
	result *datatypes.RouteResult,
) ([]datatypes.Candidate, bool) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.BackendTimeout)
	defer cancel()

	candidates, err := backend.Search(callCtx, query, filter, e.cfg.SearchLimit)
	if err != nil {
		e.logger.Warn("backend search failed",
			"backend", backend.Name(),
			"error", err,
		)
		e.metrics.RecordBackendFailure(backend.Name())
		result.AddTrail(backend.Name(), fmt.Sprintf("search failed, continuing without %s results: %v", backend.Name(), err))
		return nil, true
	}

	result.AddTrail(backend.Name(), fmt.Sprintf("%d results", len(candidates)))
	return candidates, false
}

// merge concatenates primary and secondary candidates, dropping secondary
// entries whose ID a primary candidate already claimed. Order within each
// source is preserved; primary always precedes secondary.
func merge(primary, secondary []datatypes.Candidate) []datatypes.Candidate {
	merged := make([]datatypes.Candidate, 0, len(primary)+len(secondary))
	seen := make(map[string]bool, len(primary))

	for _, c := range primary {
		merged = append(merged, c)
		seen[c.ID] = true
	}
	for _, c := range secondary {
		if seen[c.ID] {
			continue
		}
		merged = append(merged, c)
		seen[c.ID] = true
	}
	return merged
}

// deadlineElapsed reports whether the context deadline has already passed.
func deadlineElapsed(ctx context.Context) bool {
	if ctx.Err() != nil {
		return true
	}
	if deadline, ok := ctx.Deadline(); ok {
		return !time.Now().Before(deadline)
	}
	return false
}

// escalationCondition maps a quality-gate reason to a metric label.
func escalationCondition(reason string) string {
	switch {
	case strings.Contains(reason, "no results"):
		return "no_results"
	case strings.Contains(reason, "high-relevance"):
		return "low_relevance"
	case strings.Contains(reason, "need"):
		return "too_few"
	case strings.Contains(reason, "keyword"):
		return "keyword"
	default:
		return "other"
	}
}
