// Copyright (C) 2025 DTCE AI (engineering@dtce.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package searchfilter compiles classified intents into a backend-agnostic
// retrieval filter.
//
// The filter is a small AST: a disjunction of folder clauses, each either a
// prefix match or a wildcard pattern. Rendering the AST into a concrete
// backend syntax (Weaviate where-filters, query parameters) is the backend's
// job; nothing in this package knows how any backend spells a filter.
package searchfilter

import (
	"fmt"
	"strings"

	"github.com/dtce-ai/docrouter/services/router/intent"
)

// Op is the matching operator of a single clause.
type Op string

const (
	// OpPrefix matches documents whose folder path starts with the value.
	OpPrefix Op = "prefix"

	// OpPattern matches documents whose folder path matches the wildcard
	// value, where '*' spans a single path segment or more.
	OpPattern Op = "pattern"
)

// Clause restricts retrieval to one folder subtree or wildcard shape.
type Clause struct {
	// Field is the document attribute the clause applies to. Always
	// "folder" today; kept explicit so backends never hard-code it.
	Field string `json:"field"`

	Op    Op     `json:"op"`
	Value string `json:"value"`
}

// Filter is a disjunction of clauses: a document satisfies the filter when
// any clause matches. There is no conjunction; scopes are alternatives.
type Filter struct {
	Clauses []Clause `json:"clauses"`
}

// Compile builds the retrieval filter for a classification.
//
// # Description
//
// GENERAL classifications, and any classification without scope, compile to
// nil: retrieval is unrestricted. Every scope token becomes one clause, in
// scope order; tokens containing '*' become pattern clauses, plain tokens
// become prefix clauses. Compilation is pure and cannot fail: scope tokens
// were validated at configuration load.
//
// # Inputs
//
//   - cls: The classification to compile. A zero value compiles to nil.
//
// # Outputs
//
//   - *Filter: The filter AST, or nil for unrestricted retrieval.
func Compile(cls intent.Classification) *Filter {
	if cls.IsGeneral() || len(cls.Scope) == 0 {
		return nil
	}

	f := &Filter{Clauses: make([]Clause, 0, len(cls.Scope))}
	for _, token := range cls.Scope {
		op := OpPrefix
		if strings.Contains(token, "*") {
			op = OpPattern
		}
		f.Clauses = append(f.Clauses, Clause{Field: "folder", Op: op, Value: token})
	}
	return f
}

// String renders the filter for logs and decision trails.
func (f *Filter) String() string {
	if f == nil || len(f.Clauses) == 0 {
		return "unrestricted"
	}
	parts := make([]string, len(f.Clauses))
	for i, c := range f.Clauses {
		parts[i] = fmt.Sprintf("%s %s %q", c.Field, c.Op, c.Value)
	}
	return strings.Join(parts, " OR ")
}
