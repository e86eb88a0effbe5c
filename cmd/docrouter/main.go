// Copyright (C) 2025 DTCE AI (engineering@dtce.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// docrouter is the CLI for the DTCE document routing service.
//
// It can ask a running router to route a question (ask) or run the gate,
// classifier, and filter compiler locally against the embedded category
// table without any backend (classify).
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/dtce-ai/docrouter/pkg/logging"
)

var (
	rootCmd = &cobra.Command{
		Use:   "docrouter",
		Short: "A CLI for the DTCE document routing service",
		Long: `docrouter routes engineering questions to the right document sources:
the indexed store for settled material, the SuiteFiles live search when the
index is stale or thin.`,
	}

	routerURL string
	tablePath string

	logger = logging.Default()
)

func init() {
	askCmd.Flags().StringVar(&routerURL, "router-url", "http://localhost:12310",
		"Base URL of a running router service")
	classifyCmd.Flags().StringVar(&tablePath, "table", "",
		"Path to a category table YAML overriding the embedded one")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(classifyCmd)
}

func main() {
	defer logger.Close()
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
