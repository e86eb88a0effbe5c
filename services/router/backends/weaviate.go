// Copyright (C) 2025 DTCE AI (engineering@dtce.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package backends

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dtce-ai/docrouter/services/router/datatypes"
	"github.com/dtce-ai/docrouter/services/router/engine"
	"github.com/dtce-ai/docrouter/services/router/searchfilter"
)

// weaviateTracer is the OpenTelemetry tracer for WeaviateBackend operations.
var weaviateTracer = otel.Tracer("docrouter.backends.weaviate")

// Compile-time interface implementation check.
var _ engine.SearchBackend = (*WeaviateBackend)(nil)

// documentHit mirrors one retrieved object of the document class.
type documentHit struct {
	Title      string `json:"title"`
	Folder     string `json:"folder"`
	Snippet    string `json:"snippet"`
	Additional struct {
		ID    string `json:"id"`
		Score string `json:"score"`
	} `json:"_additional"`
}

// WeaviateBackend is the primary retrieval backend: a hybrid (BM25 +
// vector) search over the indexed document corpus, scoped by the compiled
// folder filter.
//
// Thread Safety: Safe for concurrent use; the underlying client is.
type WeaviateBackend struct {
	client *weaviate.Client
	class  string
	logger *slog.Logger
}

// NewWeaviateBackend creates a WeaviateBackend over the given class.
//
// Parameters:
//   - client: Initialized Weaviate client. Must not be nil.
//   - class: The document class name, e.g. "Document".
//   - logger: Structured logger. Must not be nil.
func NewWeaviateBackend(client *weaviate.Client, class string, logger *slog.Logger) *WeaviateBackend {
	return &WeaviateBackend{client: client, class: class, logger: logger}
}

// Name identifies the backend in trails and metrics.
func (b *WeaviateBackend) Name() string {
	return datatypes.SourcePrimary
}

// Search runs a hybrid query against the document class.
//
// # Description
//
// Builds a GraphQL Get with a hybrid argument for the query text, renders
// the filter AST into a where-filter (prefix clauses become Like with a
// trailing wildcard, pattern clauses pass their wildcards through, multiple
// clauses join under Or), and normalizes the hits into Candidates tagged
// SourcePrimary. A nil filter searches the whole corpus.
//
// # Outputs
//
//   - []datatypes.Candidate: Normalized hits, in backend rank order.
//   - error: *BackendError on query or parse failure.
func (b *WeaviateBackend) Search(
	ctx context.Context,
	query string,
	filter *searchfilter.Filter,
	limit int,
) ([]datatypes.Candidate, error) {
	ctx, span := weaviateTracer.Start(ctx, "WeaviateBackend.Search")
	defer span.End()
	span.SetAttributes(
		attribute.String("weaviate.class", b.class),
		attribute.Int("weaviate.limit", limit),
		attribute.String("weaviate.filter", filter.String()),
	)

	fields := []graphql.Field{
		{Name: "title"},
		{Name: "folder"},
		{Name: "snippet"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "id"},
			{Name: "score"},
		}},
	}

	hybrid := b.client.GraphQL().HybridArgumentBuilder().WithQuery(query)

	builder := b.client.GraphQL().Get().
		WithClassName(b.class).
		WithFields(fields...).
		WithHybrid(hybrid).
		WithLimit(limit)
	if where := renderWhere(filter); where != nil {
		builder = builder.WithWhere(where)
	}

	result, err := builder.Do(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "weaviate query failed")
		return nil, &BackendError{Backend: "weaviate", Message: err.Error(), Retryable: true}
	}
	if len(result.Errors) > 0 {
		msg := result.Errors[0].Message
		err := &BackendError{Backend: "weaviate", Message: msg, Retryable: false}
		span.RecordError(err)
		span.SetStatus(codes.Error, "weaviate graphql error")
		return nil, err
	}

	hits, err := parseClassObjects[documentHit](result, b.class)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "weaviate response parse failed")
		return nil, &BackendError{Backend: "weaviate", Message: err.Error(), Retryable: false}
	}

	candidates := make([]datatypes.Candidate, 0, len(hits))
	for _, h := range hits {
		score, perr := strconv.ParseFloat(h.Additional.Score, 64)
		if perr != nil {
			// Hybrid scores arrive as strings; a missing score ranks last
			// rather than failing the whole search.
			score = 0
		}
		candidates = append(candidates, datatypes.Candidate{
			ID:      h.Additional.ID,
			Title:   h.Title,
			Path:    h.Folder,
			Snippet: h.Snippet,
			Score:   score,
			Source:  datatypes.SourcePrimary,
		})
	}

	span.SetAttributes(attribute.Int("weaviate.hits", len(candidates)))
	return candidates, nil
}

// renderWhere renders the filter AST into a Weaviate where-filter.
//
// Prefix clauses become Like with a trailing '*'; pattern clauses already
// carry their wildcards. A single clause is used directly, multiple
// clauses join under Or. Nil in, nil out.
func renderWhere(f *searchfilter.Filter) *filters.WhereBuilder {
	if f == nil || len(f.Clauses) == 0 {
		return nil
	}

	operands := make([]*filters.WhereBuilder, 0, len(f.Clauses))
	for _, c := range f.Clauses {
		value := c.Value
		if c.Op == searchfilter.OpPrefix {
			value += "*"
		}
		operands = append(operands, filters.Where().
			WithPath([]string{c.Field}).
			WithOperator(filters.Like).
			WithValueText(value))
	}

	if len(operands) == 1 {
		return operands[0]
	}
	return filters.Where().
		WithOperator(filters.Or).
		WithOperands(operands)
}

// parseClassObjects parses the objects of one class out of a GraphQL Get
// response. The class name is dynamic configuration, so the response cannot
// be unmarshalled into a struct with a fixed field name.
func parseClassObjects[T any](resp *models.GraphQLResponse, class string) ([]T, error) {
	if resp == nil {
		return nil, fmt.Errorf("nil GraphQL response")
	}
	get, ok := resp.Data["Get"]
	if !ok {
		return nil, fmt.Errorf("response has no Get data")
	}

	raw, err := json.Marshal(get)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Get data: %w", err)
	}

	var byClass map[string][]T
	if err := json.Unmarshal(raw, &byClass); err != nil {
		return nil, fmt.Errorf("failed to unmarshal class objects: %w", err)
	}
	return byClass[class], nil
}
