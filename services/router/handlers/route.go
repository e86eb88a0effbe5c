// Copyright (C) 2025 DTCE AI (engineering@dtce.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers provides HTTP handlers for the router service.
//
// Handlers stay thin: bind, validate, call the engine, serialize. All
// routing decisions live in the engine.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/dtce-ai/docrouter/services/router/datatypes"
	"github.com/dtce-ai/docrouter/services/router/engine"
)

var routeTracer = otel.Tracer("docrouter.handlers")

// HandleRoute returns the handler for POST /v1/route.
//
// # Description
//
// Binds and validates a RouteRequest, fills in a request ID when absent,
// and runs the routing engine. The engine's RouteResult is returned
// verbatim so chat transports can act on the decision trail.
//
// # Responses
//
//   - 200: RouteResult JSON.
//   - 400: Malformed body, failed validation, or non-UTF-8 query.
//   - 500: Unexpected engine failure.
func HandleRoute(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, span := routeTracer.Start(c.Request.Context(), "HandleRoute")
		defer span.End()

		var request datatypes.RouteRequest
		if err := c.BindJSON(&request); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			slog.Error("failed to bind route request JSON", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}

		if err := request.Validate(); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "validation failed")
			slog.Warn("route request failed validation", "error", err)
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		request.EnsureDefaults()
		span.SetAttributes(attribute.String("request_id", request.RequestID))

		slog.Info("received route request",
			"request_id", request.RequestID,
			"query_length", len(request.Query),
		)

		result, err := eng.Route(ctx, &request)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			if errors.Is(err, engine.ErrInvalidQuery) {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			slog.Error("routing failed", "request_id", request.RequestID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "routing failed"})
			return
		}

		span.SetAttributes(
			attribute.String("category", result.Category),
			attribute.Bool("escalated", result.Escalated),
			attribute.Int("candidates", len(result.Candidates)),
		)
		c.JSON(http.StatusOK, result)
	}
}

// HealthCheck reports service liveness for GET /health.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
