// Copyright (C) 2025 DTCE AI (engineering@dtce.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package backends

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dtce-ai/docrouter/services/router/datatypes"
	"github.com/dtce-ai/docrouter/services/router/engine"
	"github.com/dtce-ai/docrouter/services/router/searchfilter"
)

// liveSearchTracer is the OpenTelemetry tracer for LiveSearchBackend operations.
var liveSearchTracer = otel.Tracer("docrouter.backends.livesearch")

// Compile-time interface implementation check.
var _ engine.SearchBackend = (*LiveSearchBackend)(nil)

// Retry configuration constants.
const (
	// maxSearchRetries is the maximum number of retry attempts for live
	// search calls. Retries use exponential backoff.
	maxSearchRetries = 3

	// initialRetryDelay is the delay before the first retry attempt.
	// Subsequent retries double this delay (1s, 2s, 4s).
	initialRetryDelay = 1 * time.Second
)

// liveSearchRequest is the JSON body of the live search endpoint.
type liveSearchRequest struct {
	Query   string   `json:"query"`
	Folders []string `json:"folders,omitempty"`
	Limit   int      `json:"limit"`
}

// liveSearchResponse is the JSON response of the live search endpoint.
type liveSearchResponse struct {
	Results []struct {
		ID      string  `json:"id"`
		Title   string  `json:"title"`
		Path    string  `json:"path"`
		Snippet string  `json:"snippet"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// LiveSearchBackend is the secondary retrieval backend: the SuiteFiles
// live search service, consulted when the indexed results are not good
// enough or the query asks for fresh content.
//
// Thread Safety: Safe for concurrent use.
type LiveSearchBackend struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewLiveSearchBackend creates a LiveSearchBackend.
//
// Parameters:
//   - baseURL: Base URL of the live search service, e.g.
//     "http://dtce-live-search:8080". Must not be empty.
//   - httpClient: HTTP client to use. Nil falls back to a client with no
//     timeout of its own; callers bound calls via context.
//   - logger: Structured logger. Must not be nil.
func NewLiveSearchBackend(baseURL string, httpClient *http.Client, logger *slog.Logger) *LiveSearchBackend {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &LiveSearchBackend{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}
}

// Name identifies the backend in trails and metrics.
func (b *LiveSearchBackend) Name() string {
	return datatypes.SourceSecondary
}

// Search queries the live search service with retries.
//
// # Description
//
// POSTs the query and the filter's folder scopes to /v1/search. Transient
// failures (network errors, 502/503/504) are retried up to 3 times with
// 1s, 2s, 4s backoff; other HTTP errors fail immediately. Context
// cancellation aborts the retry loop between attempts.
//
// # Outputs
//
//   - []datatypes.Candidate: Normalized hits tagged SourceSecondary.
//   - error: *BackendError after exhausted retries or a non-retryable
//     status; context errors pass through unwrapped.
func (b *LiveSearchBackend) Search(
	ctx context.Context,
	query string,
	filter *searchfilter.Filter,
	limit int,
) ([]datatypes.Candidate, error) {
	ctx, span := liveSearchTracer.Start(ctx, "LiveSearchBackend.Search")
	defer span.End()
	span.SetAttributes(
		attribute.Int("livesearch.limit", limit),
		attribute.String("livesearch.filter", filter.String()),
	)

	var lastErr error
	retryDelay := initialRetryDelay

	for attempt := 0; attempt <= maxSearchRetries; attempt++ {
		if attempt > 0 {
			span.AddEvent("retry_attempt", trace.WithAttributes(
				attribute.Int("attempt", attempt),
				attribute.String("delay", retryDelay.String()),
			))
			b.logger.Info("retrying live search",
				"attempt", attempt,
				"delay", retryDelay,
				"lastError", lastErr,
			)

			select {
			case <-ctx.Done():
				span.RecordError(ctx.Err())
				span.SetStatus(codes.Error, "context canceled during retry")
				return nil, ctx.Err()
			case <-time.After(retryDelay):
			}
			retryDelay *= 2
		}

		candidates, err := b.callSearchEndpoint(ctx, query, filter, limit)
		if err == nil {
			span.SetAttributes(
				attribute.Int("livesearch.hits", len(candidates)),
				attribute.Int("livesearch.attempts", attempt+1),
			)
			return candidates, nil
		}

		lastErr = err
		if !isRetryableError(err) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "non-retryable error")
			return nil, err
		}
	}

	span.RecordError(lastErr)
	span.SetStatus(codes.Error, "all retries exhausted")
	return nil, &BackendError{
		Backend:   "livesearch",
		Message:   fmt.Sprintf("search failed after %d attempts: %v", maxSearchRetries+1, lastErr),
		Retryable: false,
	}
}

// callSearchEndpoint makes a single HTTP request to the live search service.
func (b *LiveSearchBackend) callSearchEndpoint(
	ctx context.Context,
	query string,
	filter *searchfilter.Filter,
	limit int,
) ([]datatypes.Candidate, error) {
	ctx, span := liveSearchTracer.Start(ctx, "LiveSearchBackend.callSearchEndpoint")
	defer span.End()

	payload := liveSearchRequest{Query: query, Limit: limit}
	if filter != nil {
		for _, c := range filter.Clauses {
			payload.Folders = append(payload.Folders, c.Value)
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal live search request: %w", err)
	}

	url := b.baseURL + "/v1/search"
	span.SetAttributes(attribute.String("livesearch.url", url))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := b.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &BackendError{Backend: "livesearch", Message: err.Error(), Retryable: true}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &BackendError{
			Backend:    "livesearch",
			StatusCode: resp.StatusCode,
			Message:    strings.TrimSpace(string(respBody)),
			Retryable:  isRetryableStatusCode(resp.StatusCode),
		}
	}

	var parsed liveSearchResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, &BackendError{
			Backend:   "livesearch",
			Message:   fmt.Sprintf("invalid response body: %v", err),
			Retryable: false,
		}
	}

	candidates := make([]datatypes.Candidate, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		candidates = append(candidates, datatypes.Candidate{
			ID:      r.ID,
			Title:   r.Title,
			Path:    r.Path,
			Snippet: r.Snippet,
			Score:   r.Score,
			Source:  datatypes.SourceSecondary,
		})
	}
	return candidates, nil
}

// isRetryableError reports whether an error should trigger a retry.
// Context errors never retry; BackendErrors follow their Retryable flag.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if err == context.Canceled || err == context.DeadlineExceeded {
		return false
	}
	if be, ok := err.(*BackendError); ok {
		return be.Retryable
	}
	return false
}
