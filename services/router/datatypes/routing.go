// Copyright (C) 2025 DTCE AI (engineering@dtce.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the router service.
//
// This file contains the routing request/response types and the Candidate
// type shared by the retrieval backends, the quality gate, and the engine.
package datatypes

import (
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxQueryBytes is the maximum size of a routed query. Checked in bytes,
	// not runes, to bound memory regardless of encoding.
	MaxQueryBytes = 8 * 1024 // 8KB

	// SourcePrimary marks candidates retrieved from the indexed store.
	SourcePrimary = "primary"

	// SourceSecondary marks candidates retrieved from the live search.
	SourceSecondary = "secondary"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// routeValidate is the validator instance for routing datatypes.
// Initialized in init() with custom validators.
var routeValidate *validator.Validate

func init() {
	routeValidate = validator.New()
	_ = routeValidate.RegisterValidation("maxbytes", validateMaxQueryBytes)
}

// validateMaxQueryBytes checks that a string field does not exceed
// MaxQueryBytes. Byte length, not rune count.
func validateMaxQueryBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxQueryBytes
}

// =============================================================================
// Request Types
// =============================================================================

// RouteRequest is the body of POST /v1/route.
//
// # Fields
//
//   - Query: Required. The raw user query to gate, classify, and route.
//     Limited to 8KB. An empty string fails validation; whitespace-only
//     queries pass validation and are rejected by the utterance gate instead.
//   - RequestID: Optional. UUID v4 correlating the request across logs and
//     traces. Generated by EnsureDefaults when absent.
type RouteRequest struct {
	Query     string `json:"query" validate:"required,maxbytes"`
	RequestID string `json:"request_id,omitempty" validate:"omitempty,uuid4"`
}

// Validate validates the request using the shared validator instance.
func (r *RouteRequest) Validate() error {
	return routeValidate.Struct(r)
}

// EnsureDefaults populates a RequestID when the caller did not send one.
func (r *RouteRequest) EnsureDefaults() {
	if r.RequestID == "" {
		r.RequestID = uuid.New().String()
	}
}

// =============================================================================
// Candidate
// =============================================================================

// Candidate is one retrieved document, normalized across backends.
//
// Score scales are backend-specific and are only compared against the
// quality-gate threshold, never across sources.
type Candidate struct {
	// ID uniquely identifies the document. Merging dedupes on this field.
	ID string `json:"id"`

	// Title is the display title of the document.
	Title string `json:"title"`

	// Path is the folder path of the document in the corpus.
	Path string `json:"path,omitempty"`

	// Snippet is a short extract for display.
	Snippet string `json:"snippet,omitempty"`

	// Score is the backend relevance score.
	Score float64 `json:"score"`

	// Source is SourcePrimary or SourceSecondary.
	Source string `json:"source"`
}

// =============================================================================
// Response Types
// =============================================================================

// TrailEntry is one step of the routing decision trail.
type TrailEntry struct {
	// Stage names the pipeline stage, e.g. "gate", "classify", "primary",
	// "quality", "secondary", "merge".
	Stage string `json:"stage"`

	// Detail describes what the stage decided and why.
	Detail string `json:"detail"`
}

// RouteResult is the full outcome of routing one query.
//
// The decision trail records every stage in order so callers can explain
// the routing without re-deriving it.
type RouteResult struct {
	RequestID string `json:"request_id"`
	Query     string `json:"query"`

	// Conversational is true when the utterance gate rejected the query as
	// non-substantive. No classification or retrieval happened.
	Conversational bool `json:"conversational"`

	// Category is the winning intent category, or GENERAL.
	Category string `json:"category,omitempty"`

	// Confidence is the normalized classification confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// ClassifyReason explains the classification, e.g. the matched signals
	// or "no signal" for the GENERAL fallback.
	ClassifyReason string `json:"classify_reason,omitempty"`

	// Scope lists the folder scopes retrieval was restricted to. Nil when
	// no filter applied (GENERAL).
	Scope []string `json:"scope,omitempty"`

	// Escalated is true when the quality gate routed to the live search.
	Escalated bool `json:"escalated"`

	// EscalationReason is the quality gate's reason, or the proceed note.
	EscalationReason string `json:"escalation_reason,omitempty"`

	// Truncated is true when the context deadline elapsed before the
	// secondary search could run.
	Truncated bool `json:"truncated,omitempty"`

	// Message carries a caller-facing note for degraded outcomes, e.g.
	// when both retrieval sources were unavailable.
	Message string `json:"message,omitempty"`

	PrimaryCount   int `json:"primary_count"`
	SecondaryCount int `json:"secondary_count"`

	// Candidates is the merged, deduplicated result list. Primary
	// candidates precede secondary ones and win duplicate IDs.
	Candidates []Candidate `json:"candidates"`

	Trail []TrailEntry `json:"trail"`
}

// AddTrail appends a decision trail entry.
func (r *RouteResult) AddTrail(stage, detail string) {
	r.Trail = append(r.Trail, TrailEntry{Stage: stage, Detail: detail})
}
