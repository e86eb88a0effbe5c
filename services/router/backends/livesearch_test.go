// Copyright (C) 2025 DTCE AI (engineering@dtce.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package backends

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtce-ai/docrouter/services/router/datatypes"
	"github.com/dtce-ai/docrouter/services/router/intent"
	"github.com/dtce-ai/docrouter/services/router/searchfilter"
)

func TestLiveSearch_Success(t *testing.T) {
	var gotBody liveSearchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/search", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"results": [
			{"id": "sf-1", "title": "Leave Policy", "path": "Policies/HR", "snippet": "...", "score": 0.9},
			{"id": "sf-2", "title": "Wellness Policy", "path": "Policies/HR", "score": 0.7}
		]}`))
	}))
	defer server.Close()

	backend := NewLiveSearchBackend(server.URL, server.Client(), slog.Default())
	filter := searchfilter.Compile(intent.Classification{
		Category: "POLICY",
		Scope:    []string{"Policies", "H&S"},
	})

	candidates, err := backend.Search(context.Background(), "leave policy", filter, 5)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	assert.Equal(t, "sf-1", candidates[0].ID)
	assert.Equal(t, datatypes.SourceSecondary, candidates[0].Source)
	assert.Equal(t, 0.9, candidates[0].Score)

	// The filter's folder scopes travel in the request body.
	assert.Equal(t, "leave policy", gotBody.Query)
	assert.Equal(t, []string{"Policies", "H&S"}, gotBody.Folders)
	assert.Equal(t, 5, gotBody.Limit)
}

func TestLiveSearch_NilFilterSendsNoFolders(t *testing.T) {
	var gotBody liveSearchRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"results": []}`))
	}))
	defer server.Close()

	backend := NewLiveSearchBackend(server.URL, server.Client(), slog.Default())
	candidates, err := backend.Search(context.Background(), "anything", nil, 10)
	require.NoError(t, err)
	assert.Empty(t, candidates)
	assert.Nil(t, gotBody.Folders)
}

func TestLiveSearch_NonRetryableStatusFailsImmediately(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer server.Close()

	backend := NewLiveSearchBackend(server.URL, server.Client(), slog.Default())
	_, err := backend.Search(context.Background(), "q", nil, 10)
	require.Error(t, err)
	assert.Equal(t, 1, calls)

	be, ok := err.(*BackendError)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, be.StatusCode)
	assert.False(t, be.Retryable)
}

func TestLiveSearch_RetriesTransientFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("retry backoff sleeps for a second")
	}

	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"results": [{"id": "sf-1", "title": "doc", "score": 1.0}]}`))
	}))
	defer server.Close()

	backend := NewLiveSearchBackend(server.URL, server.Client(), slog.Default())
	candidates, err := backend.Search(context.Background(), "q", nil, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, candidates, 1)
}

func TestLiveSearch_ContextCanceled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"results": []}`))
	}))
	defer server.Close()

	backend := NewLiveSearchBackend(server.URL, server.Client(), slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := backend.Search(ctx, "q", nil, 10)
	require.ErrorIs(t, err, context.Canceled)
}

func TestLiveSearch_MalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	backend := NewLiveSearchBackend(server.URL, server.Client(), slog.Default())
	_, err := backend.Search(context.Background(), "q", nil, 10)
	require.Error(t, err)

	be, ok := err.(*BackendError)
	require.True(t, ok)
	assert.False(t, be.Retryable)
}

func TestIsRetryableStatusCode(t *testing.T) {
	assert.True(t, isRetryableStatusCode(http.StatusBadGateway))
	assert.True(t, isRetryableStatusCode(http.StatusServiceUnavailable))
	assert.True(t, isRetryableStatusCode(http.StatusGatewayTimeout))
	assert.False(t, isRetryableStatusCode(http.StatusBadRequest))
	assert.False(t, isRetryableStatusCode(http.StatusNotFound))
	assert.False(t, isRetryableStatusCode(http.StatusInternalServerError))
}
