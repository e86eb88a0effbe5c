// Copyright (C) 2025 DTCE AI (engineering@dtce.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package intent classifies user queries before retrieval.
//
// The package implements three stages of the routing pipeline: the utterance
// gate (is this worth retrieving for at all), the keyword/pattern intent
// classifier, and an optional LLM-assisted fallback for queries the
// deterministic classifier cannot place.
package intent

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/dtce-ai/docrouter/services/router/config"
)

// Gate decides whether an utterance is substantive enough to retrieve for.
//
// Greetings, acknowledgements, and fragments should get a conversational
// reply, not a document search. The gate is a fixed priority chain over
// cheap lexical signals; it never calls out and never errors.
//
// Thread Safety: Safe for concurrent use (all state is read-only after
// construction).
type Gate struct {
	minLength     int
	minTokens     int
	questionWords map[string]bool
	domainTerms   map[string]bool
}

// NewGate builds a Gate from the configured vocabulary.
func NewGate(cfg config.GateConfig) *Gate {
	g := &Gate{
		minLength:     cfg.MinLength,
		minTokens:     cfg.MinTokens,
		questionWords: make(map[string]bool, len(cfg.QuestionWords)),
		domainTerms:   make(map[string]bool, len(cfg.DomainTerms)),
	}
	for _, w := range cfg.QuestionWords {
		g.questionWords[strings.ToLower(w)] = true
	}
	for _, w := range cfg.DomainTerms {
		g.domainTerms[strings.ToLower(w)] = true
	}
	return g
}

// IsSubstantive reports whether the query should proceed to retrieval.
//
// # Description
//
// Evaluates a short-circuit priority chain:
//
//  1. Trimmed length below the minimum: not substantive.
//  2. Any interrogative or action word ("what", "find", ...): substantive.
//  3. A question mark anywhere: substantive.
//  4. Any domain vocabulary term ("seismic", "nzs", ...): substantive.
//  5. At least the minimum token count: substantive.
//  6. Otherwise: not substantive.
//
// # Inputs
//
//   - query: The raw user utterance. May be empty.
//
// # Outputs
//
//   - bool: true when the query should be routed to retrieval.
//   - string: the signal that decided, for the routing trail.
func (g *Gate) IsSubstantive(query string) (bool, string) {
	trimmed := strings.TrimSpace(query)
	if len(trimmed) < g.minLength {
		return false, fmt.Sprintf("too short (%d chars, need %d)", len(trimmed), g.minLength)
	}

	tokens := tokenize(trimmed)
	for _, tok := range tokens {
		if g.questionWords[tok] {
			return true, fmt.Sprintf("question word %q", tok)
		}
	}

	if strings.Contains(trimmed, "?") {
		return true, "question mark"
	}

	for _, tok := range tokens {
		if g.domainTerms[tok] {
			return true, fmt.Sprintf("domain term %q", tok)
		}
	}

	if len(tokens) >= g.minTokens {
		return true, fmt.Sprintf("%d tokens", len(tokens))
	}

	return false, "no substantive signal"
}

// tokenize lowercases and splits on anything that is not a letter, digit,
// or ampersand. The ampersand survives so "h&s" stays one token.
func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '&'
	})
}
