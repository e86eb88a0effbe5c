// Copyright (C) 2025 DTCE AI (engineering@dtce.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config provides configuration loading for the router service.
//
// The package owns two things: the declarative intent category table
// (embedded YAML, overridable by file) and the scalar runtime settings
// read from the environment (ports, backend URLs, scoring weights,
// quality-gate thresholds). Both are loaded once at process start;
// everything handed out is read-only afterwards.
//
// A malformed category table is a ConfigurationError and fatal at start.
// Nothing in this package can fail at request time.
//
// Thread Safety:
//
//	All exported functions and returned values are safe for concurrent use.
package config

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// CategoryGeneral is the implicit fallback category. It owns no keywords,
	// no patterns, and no scope, and must not appear in the category table.
	CategoryGeneral = "GENERAL"

	// MaxYAMLFileSize is the maximum allowed category table file size (1MB).
	MaxYAMLFileSize = 1024 * 1024

	// MaxKeywordsPerCategory caps the keyword list of a single category.
	MaxKeywordsPerCategory = 100

	// MaxCategories caps the number of declared categories.
	MaxCategories = 32
)

// Default scoring weights. A regex hit on a well-formed identifier is a much
// stronger signal than an incidental keyword overlap, hence the asymmetry.
const (
	DefaultKeywordWeight   = 2.0
	DefaultPatternWeight   = 5.0
	DefaultScoreNormalizer = 10.0
)

// Default quality-gate thresholds. These track the relevance score scale of
// the primary backend and should be recalibrated if the backend changes.
const (
	DefaultMinResultCount    = 3
	DefaultMinScoreThreshold = 1.0
	DefaultMinHighRelevance  = 2
)

//go:embed categories.yaml
var embeddedCategoryTable []byte

// =============================================================================
// Configuration Errors
// =============================================================================

// ConfigurationError reports a malformed category table or invalid runtime
// setting. It is returned only during load, never at request time.
type ConfigurationError struct {
	// Section names the part of the configuration that is invalid,
	// e.g. "categories[2]" or "quality.min_result_count".
	Section string

	// Detail is a human-readable description of the problem.
	Detail string
}

// Error implements the error interface for ConfigurationError.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error in %s: %s", e.Section, e.Detail)
}

// IsConfigurationError checks if an error is a *ConfigurationError.
func IsConfigurationError(err error) bool {
	_, ok := err.(*ConfigurationError)
	return ok
}

// =============================================================================
// Category Table
// =============================================================================

// CategoryConfig declares one intent category: the keyword phrases that
// signal it, optional regex patterns for structured identifiers, and the
// document folder scopes a match restricts retrieval to.
type CategoryConfig struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Patterns []string `yaml:"patterns,omitempty"`
	Scope    []string `yaml:"scope"`
}

// GateConfig holds the utterance gate vocabulary and thresholds.
type GateConfig struct {
	MinLength     int      `yaml:"min_length"`
	MinTokens     int      `yaml:"min_tokens"`
	QuestionWords []string `yaml:"question_words"`
	DomainTerms   []string `yaml:"domain_terms"`
}

// NormalizerConfig holds query normalization rules applied before keyword
// matching. Regex patterns always run against the untouched query.
type NormalizerConfig struct {
	TypoFixes map[string]string `yaml:"typo_fixes"`
}

// CategoryTable is the parsed and validated category configuration.
//
// Declaration order of Categories is load-bearing: score ties are broken by
// the first-declared category, so the table is a slice, never a map.
type CategoryTable struct {
	Categories []CategoryConfig `yaml:"categories"`
	Gate       GateConfig       `yaml:"gate"`
	Normalizer NormalizerConfig `yaml:"normalizer"`
}

// LoadCategoryTable loads and validates the category table.
//
// # Description
//
// Loads the embedded default table when path is empty, otherwise reads the
// YAML file at path (size-capped at MaxYAMLFileSize). Keywords are folded to
// lowercase at load so matching never has to re-fold them; patterns are
// compile-checked here so the classifier can compile them without error
// handling at request time.
//
// # Inputs
//
//   - path: Optional file path overriding the embedded table. May be "".
//
// # Outputs
//
//   - *CategoryTable: The validated table.
//   - error: *ConfigurationError on any structural problem.
func LoadCategoryTable(path string) (*CategoryTable, error) {
	data := embeddedCategoryTable
	if path != "" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, &ConfigurationError{Section: "categories", Detail: fmt.Sprintf("cannot stat %s: %v", path, err)}
		}
		if info.Size() > MaxYAMLFileSize {
			return nil, &ConfigurationError{Section: "categories", Detail: fmt.Sprintf("%s exceeds %d bytes", path, MaxYAMLFileSize)}
		}
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, &ConfigurationError{Section: "categories", Detail: fmt.Sprintf("cannot read %s: %v", path, err)}
		}
	}

	var table CategoryTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, &ConfigurationError{Section: "categories", Detail: fmt.Sprintf("invalid YAML: %v", err)}
	}

	if err := table.validate(); err != nil {
		return nil, err
	}

	table.applyDefaults()
	return &table, nil
}

// validate checks the structural invariants of the table.
func (t *CategoryTable) validate() error {
	if len(t.Categories) == 0 {
		return &ConfigurationError{Section: "categories", Detail: "no categories declared"}
	}
	if len(t.Categories) > MaxCategories {
		return &ConfigurationError{Section: "categories", Detail: fmt.Sprintf("%d categories exceeds limit of %d", len(t.Categories), MaxCategories)}
	}

	seen := make(map[string]bool, len(t.Categories))
	for i, cat := range t.Categories {
		section := fmt.Sprintf("categories[%d]", i)

		name := strings.TrimSpace(cat.Name)
		if name == "" {
			return &ConfigurationError{Section: section, Detail: "category name is empty"}
		}
		if strings.EqualFold(name, CategoryGeneral) {
			return &ConfigurationError{Section: section, Detail: "GENERAL is implicit and must not be declared"}
		}
		if seen[name] {
			return &ConfigurationError{Section: section, Detail: fmt.Sprintf("duplicate category %q", name)}
		}
		seen[name] = true

		if len(cat.Keywords) == 0 {
			return &ConfigurationError{Section: section, Detail: fmt.Sprintf("category %q has no keywords", name)}
		}
		if len(cat.Keywords) > MaxKeywordsPerCategory {
			return &ConfigurationError{Section: section, Detail: fmt.Sprintf("category %q has %d keywords, limit is %d", name, len(cat.Keywords), MaxKeywordsPerCategory)}
		}
		for _, kw := range cat.Keywords {
			if strings.TrimSpace(kw) == "" {
				return &ConfigurationError{Section: section, Detail: fmt.Sprintf("category %q has an empty keyword", name)}
			}
		}

		for _, p := range cat.Patterns {
			if _, err := regexp.Compile("(?i)" + p); err != nil {
				return &ConfigurationError{Section: section, Detail: fmt.Sprintf("invalid pattern %q: %v", p, err)}
			}
		}

		if len(cat.Scope) == 0 {
			return &ConfigurationError{Section: section, Detail: fmt.Sprintf("category %q has no scope", name)}
		}
		for _, s := range cat.Scope {
			if strings.TrimSpace(s) == "" {
				return &ConfigurationError{Section: section, Detail: fmt.Sprintf("category %q has an empty scope token", name)}
			}
		}
	}

	return nil
}

// applyDefaults folds keywords to lowercase and fills gate thresholds.
func (t *CategoryTable) applyDefaults() {
	for i := range t.Categories {
		t.Categories[i].Name = strings.TrimSpace(t.Categories[i].Name)
		for j, kw := range t.Categories[i].Keywords {
			t.Categories[i].Keywords[j] = strings.ToLower(strings.TrimSpace(kw))
		}
	}
	if t.Gate.MinLength <= 0 {
		t.Gate.MinLength = 8
	}
	if t.Gate.MinTokens <= 0 {
		t.Gate.MinTokens = 3
	}
}

// Category returns the declared category with the given name, or nil.
func (t *CategoryTable) Category(name string) *CategoryConfig {
	for i := range t.Categories {
		if t.Categories[i].Name == name {
			return &t.Categories[i]
		}
	}
	return nil
}

// Names returns the declared category names in declaration order.
func (t *CategoryTable) Names() []string {
	names := make([]string, len(t.Categories))
	for i, c := range t.Categories {
		names[i] = c.Name
	}
	return names
}

// =============================================================================
// Runtime Configuration
// =============================================================================

// Weights holds the classifier scoring policy. These are policy constants,
// not derived values; they are threaded through configuration so they can be
// recalibrated without a rebuild.
type Weights struct {
	// Keyword is the score contributed by each keyword phrase hit.
	Keyword float64

	// Pattern is the score contributed by each regex pattern hit.
	Pattern float64

	// Normalizer divides the raw score to produce a confidence in [0,1].
	Normalizer float64
}

// QualityConfig holds the retrieval quality gate thresholds.
type QualityConfig struct {
	// MinResultCount is the minimum candidate count below which the gate
	// escalates.
	MinResultCount int

	// MinScoreThreshold is the relevance score at or above which a candidate
	// counts as high-relevance. The scale is backend-specific.
	MinScoreThreshold float64

	// MinHighRelevance is the minimum number of high-relevance candidates
	// required to proceed.
	MinHighRelevance int

	// EscalationKeywords force escalation when present in the query,
	// regardless of result sufficiency. A stale index cannot answer
	// "what is the latest...".
	EscalationKeywords []string
}

// AssistConfig configures the optional LLM-assisted intent fallback.
type AssistConfig struct {
	// Enabled turns the assist on. Derived from the API key being present.
	Enabled bool

	// APIKey is the OpenAI-compatible API key.
	APIKey string

	// BaseURL overrides the API endpoint, e.g. for an Azure deployment.
	BaseURL string

	// Model is the chat model used for classification.
	Model string

	// Confidence is assigned to assist-derived classifications.
	Confidence float64
}

// RouterConfig is the full runtime configuration of the router service.
type RouterConfig struct {
	// Port is the HTTP listen port.
	Port string

	// WeaviateURL is the primary (indexed) retrieval backend URL.
	WeaviateURL string

	// WeaviateClass is the Weaviate class holding indexed documents.
	WeaviateClass string

	// LiveSearchURL is the secondary (live) retrieval backend base URL.
	LiveSearchURL string

	// SearchLimit is the per-backend candidate limit.
	SearchLimit int

	// BackendTimeout bounds each backend call.
	BackendTimeout time.Duration

	// CategoryTablePath optionally overrides the embedded category table.
	CategoryTablePath string

	Weights Weights
	Quality QualityConfig
	Assist  AssistConfig
}

// DefaultEscalationKeywords returns the freshness/live-source indicators
// that force escalation to the live backend.
func DefaultEscalationKeywords() []string {
	return []string{
		"latest", "recent", "current", "new", "updated",
		"suitefiles", "sharepoint", "live", "online",
	}
}

// FromEnv builds a RouterConfig from the environment with defaults.
//
// Unset variables fall back to defaults; unparsable numeric values are
// logged and replaced by the default rather than failing startup.
func FromEnv() *RouterConfig {
	cfg := &RouterConfig{
		Port:              getEnv("ROUTER_PORT", "12310"),
		WeaviateURL:       os.Getenv("WEAVIATE_SERVICE_URL"),
		WeaviateClass:     getEnv("WEAVIATE_DOCUMENT_CLASS", "Document"),
		LiveSearchURL:     os.Getenv("LIVE_SEARCH_URL"),
		SearchLimit:       getEnvInt("ROUTER_SEARCH_LIMIT", 10),
		BackendTimeout:    getEnvDuration("ROUTER_BACKEND_TIMEOUT", 15*time.Second),
		CategoryTablePath: os.Getenv("ROUTER_CATEGORY_TABLE"),
		Weights: Weights{
			Keyword:    getEnvFloat("ROUTER_KEYWORD_WEIGHT", DefaultKeywordWeight),
			Pattern:    getEnvFloat("ROUTER_PATTERN_WEIGHT", DefaultPatternWeight),
			Normalizer: getEnvFloat("ROUTER_SCORE_NORMALIZER", DefaultScoreNormalizer),
		},
		Quality: QualityConfig{
			MinResultCount:     getEnvInt("ROUTER_MIN_RESULT_COUNT", DefaultMinResultCount),
			MinScoreThreshold:  getEnvFloat("ROUTER_MIN_SCORE_THRESHOLD", DefaultMinScoreThreshold),
			MinHighRelevance:   getEnvInt("ROUTER_MIN_HIGH_RELEVANCE", DefaultMinHighRelevance),
			EscalationKeywords: DefaultEscalationKeywords(),
		},
		Assist: AssistConfig{
			APIKey:     os.Getenv("OPENAI_API_KEY"),
			BaseURL:    os.Getenv("OPENAI_BASE_URL"),
			Model:      getEnv("ROUTER_ASSIST_MODEL", "gpt-4o-mini"),
			Confidence: getEnvFloat("ROUTER_ASSIST_CONFIDENCE", 0.6),
		},
	}
	cfg.Assist.Enabled = cfg.Assist.APIKey != ""
	return cfg
}

// Validate checks the runtime settings for values that would make routing
// behave nonsensically.
func (c *RouterConfig) Validate() error {
	if c.Weights.Keyword <= 0 || c.Weights.Pattern <= 0 {
		return &ConfigurationError{Section: "weights", Detail: "keyword and pattern weights must be positive"}
	}
	if c.Weights.Normalizer <= 0 {
		return &ConfigurationError{Section: "weights.normalizer", Detail: "score normalizer must be positive"}
	}
	if c.SearchLimit <= 0 {
		return &ConfigurationError{Section: "search_limit", Detail: "search limit must be positive"}
	}
	if c.Quality.MinResultCount < 0 || c.Quality.MinHighRelevance < 0 {
		return &ConfigurationError{Section: "quality", Detail: "thresholds must be non-negative"}
	}
	if c.BackendTimeout <= 0 {
		return &ConfigurationError{Section: "backend_timeout", Detail: "backend timeout must be positive"}
	}
	return nil
}

// =============================================================================
// Env Helpers
// =============================================================================

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("invalid float in environment, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}
