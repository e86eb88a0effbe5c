// Copyright (C) 2025 DTCE AI (engineering@dtce.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"log"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"google.golang.org/grpc/credentials/insecure"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"

	"github.com/dtce-ai/docrouter/services/router/backends"
	"github.com/dtce-ai/docrouter/services/router/config"
	"github.com/dtce-ai/docrouter/services/router/engine"
	"github.com/dtce-ai/docrouter/services/router/intent"
	"github.com/dtce-ai/docrouter/services/router/observability"
	"github.com/dtce-ai/docrouter/services/router/routes"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "dtce-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("docrouter-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// newWeaviateClient parses the configured URL and builds the client. A
// missing or malformed URL is not fatal: the router runs without the
// indexed backend and every query escalates to live search.
func newWeaviateClient(rawURL string) *weaviate.Client {
	rawURL = strings.Trim(rawURL, "\"' ")
	if rawURL == "" || !strings.Contains(rawURL, "http") {
		slog.Info("WEAVIATE_SERVICE_URL not set or empty. Running without the indexed backend.")
		return nil
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil || parsedURL.Scheme == "" || parsedURL.Host == "" {
		slog.Warn("WEAVIATE_SERVICE_URL is invalid. Running without the indexed backend.",
			"url", rawURL, "error", err)
		return nil
	}

	client, err := weaviate.NewClient(weaviate.Config{
		Host:   parsedURL.Host,
		Scheme: parsedURL.Scheme,
	})
	if err != nil {
		slog.Error("failed to create Weaviate client", "error", err)
		return nil
	}
	return client
}

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg := config.FromEnv()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("FATAL: invalid router configuration: %v", err)
	}

	table, err := config.LoadCategoryTable(cfg.CategoryTablePath)
	if err != nil {
		log.Fatalf("FATAL: could not load category table: %v", err)
	}
	slog.Info("loaded category table", "categories", table.Names())

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	classifier, err := intent.NewClassifier(table, cfg.Weights)
	if err != nil {
		log.Fatalf("FATAL: could not build classifier: %v", err)
	}
	gate := intent.NewGate(table.Gate)

	assist := intent.NewAssist(cfg.Assist, classifier, logger)
	if assist != nil {
		slog.Info("LLM-assisted classification enabled", "model", cfg.Assist.Model)
	}

	var primary engine.SearchBackend
	if client := newWeaviateClient(cfg.WeaviateURL); client != nil {
		primary = backends.NewWeaviateBackend(client, cfg.WeaviateClass, logger)
		slog.Info("indexed backend configured", "class", cfg.WeaviateClass)
	}

	var secondary engine.SearchBackend
	if cfg.LiveSearchURL != "" {
		secondary = backends.NewLiveSearchBackend(cfg.LiveSearchURL, nil, logger)
		slog.Info("live search backend configured", "url", cfg.LiveSearchURL)
	} else {
		slog.Warn("LIVE_SEARCH_URL not set, escalations will degrade to indexed results")
	}

	metrics := observability.NewRoutingMetrics()
	eng := engine.NewEngine(gate, classifier, assist, primary, secondary, cfg, metrics, logger)

	router := gin.Default()
	router.Use(otelgin.Middleware("docrouter-service"))

	routes.SetupRoutes(router, eng)

	log.Println("Starting the router server on port ", cfg.Port)
	if err := router.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
