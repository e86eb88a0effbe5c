// Copyright (C) 2025 DTCE AI (engineering@dtce.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package backends implements the retrieval backends the router searches:
// the Weaviate indexed store (primary) and the SuiteFiles live search
// (secondary). Both normalize their results into datatypes.Candidate and
// report failures as *BackendError so the engine can recover uniformly.
package backends

import (
	"fmt"
	"net/http"
)

// BackendError wraps a retrieval backend failure.
//
// The engine never propagates these to callers; it records them in the
// decision trail and continues with empty results. Retryable controls
// whether the backend's own retry loop tries again first.
type BackendError struct {
	// Backend names the failing backend ("weaviate", "livesearch").
	Backend string

	// StatusCode is the HTTP status, or 0 for transport-level failures.
	StatusCode int

	// Message describes the failure.
	Message string

	// Retryable indicates the failure is transient.
	Retryable bool
}

// Error implements the error interface for BackendError.
func (e *BackendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s backend error (status %d): %s", e.Backend, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s backend error: %s", e.Backend, e.Message)
}

// IsBackendError checks if an error is a *BackendError.
func IsBackendError(err error) bool {
	_, ok := err.(*BackendError)
	return ok
}

// isRetryableStatusCode reports whether an HTTP status indicates a
// transient condition worth retrying.
func isRetryableStatusCode(statusCode int) bool {
	switch statusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}
