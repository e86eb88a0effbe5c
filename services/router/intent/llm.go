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
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/dtce-ai/docrouter/services/router/config"
)

var assistTracer = otel.Tracer("docrouter.intent.assist")

// chatCompleter is the slice of the OpenAI client the assist needs.
// Narrowed to an interface so tests can substitute a canned client.
type chatCompleter interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Assist asks an LLM to place a query the deterministic classifier could
// not. It is strictly best-effort: any error, timeout, or answer outside
// the declared category set degrades to "no opinion" and the caller keeps
// the GENERAL fallback. Routing correctness never depends on it.
type Assist struct {
	client     chatCompleter
	classifier *Classifier
	model      string
	confidence float64
	logger     *slog.Logger
}

// NewAssist builds an Assist from configuration. Returns nil when the
// assist is disabled; callers treat a nil *Assist as "no opinion".
func NewAssist(cfg config.AssistConfig, classifier *Classifier, logger *slog.Logger) *Assist {
	if !cfg.Enabled {
		return nil
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	return &Assist{
		client:     openai.NewClientWithConfig(clientCfg),
		classifier: classifier,
		model:      cfg.Model,
		confidence: cfg.Confidence,
		logger:     logger,
	}
}

// Classify asks the model to pick exactly one declared category.
//
// # Outputs
//
//   - Classification: An assist-derived classification. Only meaningful
//     when ok is true.
//   - bool: false when the assist is nil, errored, or answered outside
//     the declared category set.
func (a *Assist) Classify(ctx context.Context, query string) (Classification, bool) {
	if a == nil {
		return Classification{}, false
	}

	ctx, span := assistTracer.Start(ctx, "assist.classify")
	defer span.End()

	names := a.classifier.Categories()
	system := fmt.Sprintf(
		"You classify document search queries for a structural engineering consultancy. "+
			"Answer with exactly one word from this list: %s. "+
			"If none fits, answer GENERAL.",
		strings.Join(names, ", "))

	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Temperature: 0.1,
		MaxTokens:   8,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: query},
		},
	})
	if err != nil {
		a.logger.Warn("assist classification failed", "error", err)
		span.RecordError(err)
		return Classification{}, false
	}
	if len(resp.Choices) == 0 {
		return Classification{}, false
	}

	answer := strings.ToUpper(strings.TrimSpace(resp.Choices[0].Message.Content))
	answer = strings.Trim(answer, ".\"'")
	span.SetAttributes(attribute.String("assist.answer", answer))

	if answer == "" || answer == config.CategoryGeneral {
		return Classification{}, false
	}
	scope := a.classifier.scopeFor(answer)
	if scope == nil {
		a.logger.Warn("assist returned unknown category", "answer", answer)
		return Classification{}, false
	}

	return Classification{
		Category:   answer,
		Confidence: a.confidence,
		Scope:      scope,
		Reason:     "assist classification",
	}, true
}
