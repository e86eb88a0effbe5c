// Copyright (C) 2025 DTCE AI (engineering@dtce.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package quality implements the retrieval quality gate.
//
// After the primary (indexed) search returns, the gate decides whether the
// results are good enough to answer from, or whether the router should
// escalate to the live search. The check is an ordered short-circuit chain;
// the first failing condition names the escalation reason.
package quality

import (
	"fmt"
	"strings"

	"github.com/dtce-ai/docrouter/services/router/config"
	"github.com/dtce-ai/docrouter/services/router/datatypes"
)

// ShouldEscalate decides whether primary results warrant live-search fallback.
//
// # Description
//
// Evaluates, in order, stopping at the first failure:
//
//  1. No results at all.
//  2. Fewer results than the minimum count.
//  3. Fewer high-relevance results (score at or above the threshold) than
//     the minimum.
//  4. The query contains a freshness or live-source keyword; a stale index
//     cannot answer "latest" regardless of how well it scored.
//  5. Otherwise the primary results are sufficient.
//
// The decision is pure: same inputs, same outcome. Scores are compared only
// against the configured threshold, never across candidates.
//
// # Inputs
//
//   - candidates: Primary search results. May be empty or nil.
//   - query: The raw user query, for the keyword check.
//   - cfg: Thresholds and escalation keywords.
//
// # Outputs
//
//   - bool: true to escalate to the secondary source.
//   - string: the reason, suitable for the decision trail.
func ShouldEscalate(candidates []datatypes.Candidate, query string, cfg config.QualityConfig) (bool, string) {
	if len(candidates) == 0 {
		return true, "no results from primary source"
	}

	if len(candidates) < cfg.MinResultCount {
		return true, fmt.Sprintf("only %d results (need %d)", len(candidates), cfg.MinResultCount)
	}

	high := 0
	for _, c := range candidates {
		if c.Score >= cfg.MinScoreThreshold {
			high++
		}
	}
	if high < cfg.MinHighRelevance {
		return true, fmt.Sprintf("only %d high-relevance results (score >= %g, need %d)",
			high, cfg.MinScoreThreshold, cfg.MinHighRelevance)
	}

	lowered := strings.ToLower(query)
	for _, kw := range cfg.EscalationKeywords {
		if strings.Contains(lowered, kw) {
			return true, fmt.Sprintf("query contains escalation keyword %q", kw)
		}
	}

	return false, "primary results sufficient"
}
