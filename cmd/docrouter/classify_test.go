// Copyright (C) 2025 DTCE AI (engineering@dtce.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtce-ai/docrouter/services/router/config"
)

func TestClassifyOffline_Substantive(t *testing.T) {
	cls, err := classifyOffline("what is the sick leave policy", "")
	require.NoError(t, err)
	require.True(t, cls.Substantive)
	assert.Equal(t, "POLICY", cls.Result.Category)
	require.NotNil(t, cls.Filter)
	assert.NotEmpty(t, cls.Filter.Clauses)
}

func TestClassifyOffline_Conversational(t *testing.T) {
	cls, err := classifyOffline("hi", "")
	require.NoError(t, err)
	assert.False(t, cls.Substantive)
	assert.Nil(t, cls.Filter)
}

func TestClassifyOffline_GeneralHasNoFilter(t *testing.T) {
	cls, err := classifyOffline("tell me something interesting", "")
	require.NoError(t, err)
	require.True(t, cls.Substantive)
	assert.Equal(t, config.CategoryGeneral, cls.Result.Category)
	assert.Nil(t, cls.Filter)
}

func TestClassifyOffline_BadTablePath(t *testing.T) {
	_, err := classifyOffline("anything at all", "/nonexistent/table.yaml")
	require.Error(t, err)
	assert.True(t, config.IsConfigurationError(err))
}
