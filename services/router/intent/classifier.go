// Copyright (C) 2025 DTCE AI (engineering@dtce.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package intent

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dtce-ai/docrouter/services/router/config"
)

// =============================================================================
// OTel Tracer
// =============================================================================

var classifierTracer = otel.Tracer("docrouter.intent.classifier")

// =============================================================================
// Classification Types
// =============================================================================

// Classification is the outcome of classifying one query.
type Classification struct {
	// Category is the winning category name, or config.CategoryGeneral.
	Category string

	// Confidence is the normalized score in [0,1]. Zero for GENERAL.
	Confidence float64

	// Scope is the winning category's folder scope. Nil for GENERAL.
	Scope []string

	// Reason explains the outcome, e.g. the matched signals or "no signal".
	Reason string

	// RawScore is the unnormalized weighted score of the winner.
	RawScore float64

	// KeywordHits and PatternHits list the signals that fired for the
	// winning category.
	KeywordHits []string
	PatternHits []string
}

// IsGeneral reports whether this is the unfiltered fallback classification.
func (c Classification) IsGeneral() bool {
	return c.Category == config.CategoryGeneral
}

// compiledCategory is a category with its patterns pre-compiled.
type compiledCategory struct {
	name     string
	keywords []string
	patterns []*regexp.Regexp
	raw      []string
	scope    []string
}

// Classifier scores queries against the category table.
//
// Keywords are matched as substrings of the lowercased, typo-corrected
// query; patterns run case-insensitively against the untouched query so
// identifier regexes never see normalization artifacts. Ties go to the
// first-declared category; an all-zero score falls back to GENERAL.
//
// Thread Safety: Safe for concurrent use (all state is read-only after
// construction).
type Classifier struct {
	categories []compiledCategory
	weights    config.Weights
	typoFixes  map[string]string
}

// NewClassifier compiles the category table into a Classifier.
//
// The table is assumed validated by config.LoadCategoryTable; a pattern
// that fails to compile here is a programming error and is returned as
// a ConfigurationError anyway rather than panicking.
func NewClassifier(table *config.CategoryTable, weights config.Weights) (*Classifier, error) {
	c := &Classifier{
		categories: make([]compiledCategory, 0, len(table.Categories)),
		weights:    weights,
		typoFixes:  table.Normalizer.TypoFixes,
	}
	for _, cat := range table.Categories {
		cc := compiledCategory{
			name:     cat.Name,
			keywords: cat.Keywords,
			raw:      cat.Patterns,
			scope:    cat.Scope,
		}
		for _, p := range cat.Patterns {
			re, err := regexp.Compile("(?i)" + p)
			if err != nil {
				return nil, &config.ConfigurationError{
					Section: "categories",
					Detail:  fmt.Sprintf("category %q pattern %q: %v", cat.Name, p, err),
				}
			}
			cc.patterns = append(cc.patterns, re)
		}
		c.categories = append(c.categories, cc)
	}
	return c, nil
}

// Normalize applies the configured typo corrections to a lowercased copy
// of the query. Exposed for the offline CLI.
func (c *Classifier) Normalize(query string) string {
	lowered := strings.ToLower(query)
	for typo, fix := range c.typoFixes {
		lowered = strings.ReplaceAll(lowered, typo, fix)
	}
	return lowered
}

// Classify scores the query against every category and returns the winner.
//
// # Description
//
// Each category scores KeywordWeight per keyword phrase found in the
// normalized query plus PatternWeight per regex match against the original
// query. The strict maximum wins; equal scores keep the earlier-declared
// category. When every category scores zero the result is GENERAL with
// zero confidence, nil scope, and reason "no signal". Confidence is
// min(raw/Normalizer, 1.0).
//
// Classification is pure and deterministic: the same query and table
// always produce the same result.
//
// # Inputs
//
//   - ctx: Context for tracing. Classification itself never blocks.
//   - query: The raw user query.
//
// # Outputs
//
//   - Classification: The winning category with confidence and scope.
func (c *Classifier) Classify(ctx context.Context, query string) Classification {
	_, span := classifierTracer.Start(ctx, "classifier.classify")
	defer span.End()

	normalized := c.Normalize(query)

	best := Classification{
		Category: config.CategoryGeneral,
		Reason:   "no signal",
	}

	for _, cat := range c.categories {
		var kwHits, patHits []string
		for _, kw := range cat.keywords {
			if strings.Contains(normalized, kw) {
				kwHits = append(kwHits, kw)
			}
		}
		for i, re := range cat.patterns {
			if re.MatchString(query) {
				patHits = append(patHits, cat.raw[i])
			}
		}

		score := float64(len(kwHits))*c.weights.Keyword + float64(len(patHits))*c.weights.Pattern
		if score <= 0 || score <= best.RawScore {
			continue
		}

		best = Classification{
			Category:    cat.name,
			Scope:       cat.scope,
			RawScore:    score,
			KeywordHits: kwHits,
			PatternHits: patHits,
			Reason: fmt.Sprintf("%d keyword hit(s), %d pattern hit(s)",
				len(kwHits), len(patHits)),
		}
	}

	if best.RawScore > 0 {
		best.Confidence = best.RawScore / c.weights.Normalizer
		if best.Confidence > 1.0 {
			best.Confidence = 1.0
		}
	}

	span.SetAttributes(
		attribute.String("intent.category", best.Category),
		attribute.Float64("intent.confidence", best.Confidence),
		attribute.Float64("intent.raw_score", best.RawScore),
	)
	return best
}

// Categories returns the declared category names in declaration order.
func (c *Classifier) Categories() []string {
	names := make([]string, len(c.categories))
	for i, cat := range c.categories {
		names[i] = cat.name
	}
	return names
}

// scopeFor returns the folder scope of a declared category, or nil.
func (c *Classifier) scopeFor(name string) []string {
	for _, cat := range c.categories {
		if cat.name == name {
			return cat.scope
		}
	}
	return nil
}
