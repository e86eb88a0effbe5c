// Copyright (C) 2025 DTCE AI (engineering@dtce.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package intent

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtce-ai/docrouter/services/router/config"
)

// mockCompleter returns a canned answer or error.
type mockCompleter struct {
	answer string
	err    error
	gotReq openai.ChatCompletionRequest
}

func (m *mockCompleter) CreateChatCompletion(_ context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	m.gotReq = req
	if m.err != nil {
		return openai.ChatCompletionResponse{}, m.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: m.answer}},
		},
	}, nil
}

func testAssist(t *testing.T, mock *mockCompleter) *Assist {
	t.Helper()
	return &Assist{
		client:     mock,
		classifier: testClassifier(t),
		model:      "test-model",
		confidence: 0.6,
		logger:     slog.Default(),
	}
}

func TestAssist_Classify_KnownCategory(t *testing.T) {
	mock := &mockCompleter{answer: "policy"}
	a := testAssist(t, mock)

	got, ok := a.Classify(context.Background(), "can staff work from home")
	require.True(t, ok)
	assert.Equal(t, "POLICY", got.Category)
	assert.Equal(t, 0.6, got.Confidence)
	assert.NotEmpty(t, got.Scope)

	// Single-word answer is requested at near-zero temperature.
	assert.Equal(t, float32(0.1), mock.gotReq.Temperature)
	require.Len(t, mock.gotReq.Messages, 2)
	assert.Contains(t, mock.gotReq.Messages[0].Content, "POLICY")
	assert.Equal(t, "can staff work from home", mock.gotReq.Messages[1].Content)
}

func TestAssist_Classify_TrimsPunctuation(t *testing.T) {
	a := testAssist(t, &mockCompleter{answer: ` "Standard." `})
	got, ok := a.Classify(context.Background(), "which edition applies")
	require.True(t, ok)
	assert.Equal(t, "STANDARD", got.Category)
}

func TestAssist_Classify_GeneralAnswerIsNoOpinion(t *testing.T) {
	a := testAssist(t, &mockCompleter{answer: "GENERAL"})
	_, ok := a.Classify(context.Background(), "hmm")
	assert.False(t, ok)
}

func TestAssist_Classify_UnknownCategoryIsNoOpinion(t *testing.T) {
	a := testAssist(t, &mockCompleter{answer: "RECIPES"})
	_, ok := a.Classify(context.Background(), "hmm")
	assert.False(t, ok)
}

func TestAssist_Classify_ErrorIsNoOpinion(t *testing.T) {
	a := testAssist(t, &mockCompleter{err: errors.New("rate limited")})
	_, ok := a.Classify(context.Background(), "hmm")
	assert.False(t, ok)
}

func TestAssist_NilReceiverIsNoOpinion(t *testing.T) {
	var a *Assist
	_, ok := a.Classify(context.Background(), "hmm")
	assert.False(t, ok)
}

func TestNewAssist_DisabledReturnsNil(t *testing.T) {
	a := NewAssist(config.AssistConfig{Enabled: false}, testClassifier(t), slog.Default())
	assert.Nil(t, a)
}
