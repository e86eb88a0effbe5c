// Copyright (C) 2025 DTCE AI (engineering@dtce.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dtce-ai/docrouter/services/router/config"
	"github.com/dtce-ai/docrouter/services/router/intent"
	"github.com/dtce-ai/docrouter/services/router/searchfilter"
)

var classifyCmd = &cobra.Command{
	Use:   "classify [question]",
	Short: "Classifies a question locally, without a running router",
	Long: `Runs the utterance gate, the intent classifier, and the filter compiler
against the category table and prints what retrieval would be asked to do.
No backend is contacted.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runClassifyCommand,
}

// classification is the offline pipeline outcome for one query.
type classification struct {
	Substantive bool
	GateReason  string
	Result      intent.Classification
	Filter      *searchfilter.Filter
}

// classifyOffline runs gate, classifier, and compiler against the table at
// tablePath (empty means the embedded table).
func classifyOffline(query, tablePath string) (*classification, error) {
	table, err := config.LoadCategoryTable(tablePath)
	if err != nil {
		return nil, err
	}

	classifier, err := intent.NewClassifier(table, config.Weights{
		Keyword:    config.DefaultKeywordWeight,
		Pattern:    config.DefaultPatternWeight,
		Normalizer: config.DefaultScoreNormalizer,
	})
	if err != nil {
		return nil, err
	}

	out := &classification{}
	out.Substantive, out.GateReason = intent.NewGate(table.Gate).IsSubstantive(query)
	if !out.Substantive {
		return out, nil
	}

	out.Result = classifier.Classify(context.Background(), query)
	out.Filter = searchfilter.Compile(out.Result)
	return out, nil
}

func runClassifyCommand(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")

	cls, err := classifyOffline(query, tablePath)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if !cls.Substantive {
		fmt.Fprintf(out, "Not substantive (%s); would be answered conversationally.\n", cls.GateReason)
		return nil
	}

	fmt.Fprintf(out, "Gate:       substantive (%s)\n", cls.GateReason)
	fmt.Fprintf(out, "Category:   %s (confidence %.2f)\n", cls.Result.Category, cls.Result.Confidence)
	fmt.Fprintf(out, "Reason:     %s\n", cls.Result.Reason)
	if len(cls.Result.KeywordHits) > 0 {
		fmt.Fprintf(out, "Keywords:   %s\n", strings.Join(cls.Result.KeywordHits, ", "))
	}
	if len(cls.Result.PatternHits) > 0 {
		fmt.Fprintf(out, "Patterns:   %s\n", strings.Join(cls.Result.PatternHits, ", "))
	}
	fmt.Fprintf(out, "Filter:     %s\n", cls.Filter.String())
	return nil
}
