// Copyright (C) 2025 DTCE AI (engineering@dtce.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/dtce-ai/docrouter/services/router/datatypes"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Routes a question through a running router service",
	Long: `Sends the question to the router's /v1/route endpoint and prints the
routing decision: the classified category, whether live search was consulted,
and the candidate documents in ranked order.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAskCommand,
}

func runAskCommand(cmd *cobra.Command, args []string) error {
	question := strings.Join(args, " ")

	payload, err := json.Marshal(datatypes.RouteRequest{Query: question})
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	client := &http.Client{Timeout: 60 * time.Second}
	url := strings.TrimSuffix(routerURL, "/") + "/v1/route"
	logger.Debug("posting route request", "url", url)

	resp, err := client.Post(url, "application/json", bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("could not reach router at %s: %w", routerURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("router returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var result datatypes.RouteResult
	if err := json.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("failed to decode route result: %w", err)
	}

	printRouteResult(cmd, &result)
	return nil
}

func printRouteResult(cmd *cobra.Command, result *datatypes.RouteResult) {
	out := cmd.OutOrStdout()

	if result.Conversational {
		fmt.Fprintln(out, "Conversational message, nothing to retrieve.")
		return
	}

	fmt.Fprintf(out, "Category:   %s (confidence %.2f)\n", result.Category, result.Confidence)
	if len(result.Scope) > 0 {
		fmt.Fprintf(out, "Scope:      %s\n", strings.Join(result.Scope, ", "))
	}
	if result.Escalated {
		fmt.Fprintf(out, "Escalated:  yes (%s)\n", result.EscalationReason)
	} else {
		fmt.Fprintln(out, "Escalated:  no")
	}
	if result.Truncated {
		fmt.Fprintln(out, "Note:       live search skipped, deadline elapsed")
	}
	if result.Message != "" {
		fmt.Fprintf(out, "Note:       %s\n", result.Message)
	}

	fmt.Fprintf(out, "\n%d candidate(s):\n", len(result.Candidates))
	for i, c := range result.Candidates {
		fmt.Fprintf(out, "  %2d. [%s] %s (score %.2f)\n", i+1, c.Source, c.Title, c.Score)
		if c.Path != "" {
			fmt.Fprintf(out, "      %s\n", c.Path)
		}
	}

	fmt.Fprintln(out, "\nDecision trail:")
	for _, entry := range result.Trail {
		fmt.Fprintf(out, "  %-10s %s\n", entry.Stage+":", entry.Detail)
	}
}
