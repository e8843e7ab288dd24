// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package gatekeeper provides the grounding gatekeeper service: a
// closed-corpus question answering API that refuses rather than
// improvises.
//
// The package wires the evidence store, retrieval backends, contract
// engine, citation validator, and generation backend into one HTTP
// service. All answer semantics live in the subpackages; this file is
// only assembly and lifecycle.
//
// # Usage
//
//	cfg := gatekeeper.Config{Port: 12230, DBPath: "./data/evidence.db"}
//	svc, err := gatekeeper.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	log.Fatal(svc.Run())
package gatekeeper

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianGround/services/gatekeeper/contract"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/generation"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/middleware"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/retrieval"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/routes"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/runtime"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/store"
	"github.com/AleutianAI/AleutianGround/services/gatekeeper/verify"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Service defines the contract for the gatekeeper service.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. Run() blocks and
// should only be called once per instance.
type Service interface {
	// Run starts the HTTP server and blocks until shutdown or error.
	Run() error

	// Router returns the underlying Gin engine for integration testing.
	Router() *gin.Engine
}

// =============================================================================
// Configuration
// =============================================================================

// Config holds gatekeeper configuration options. All fields have
// defaults applied by New().
type Config struct {
	// Port is the HTTP server port. Default: 12230
	Port int

	// DBPath is the SQLite evidence database path.
	// Default: "./data/evidence.db"
	DBPath string

	// OTelEndpoint is the OpenTelemetry collector endpoint.
	// Default: "aleutian-otel-collector:4317"
	OTelEndpoint string

	// GinMode sets the Gin framework mode.
	// Valid values: "debug", "release", "test"
	// Default: uses GIN_MODE env var or "debug"
	GinMode string

	// GenerationBackend specifies the generation provider.
	// Valid values: "openai", "static"
	// Default: "openai"
	GenerationBackend string

	// TopK is the merged retrieval depth. Default: 10
	TopK int

	// DisableRepair turns off the single contract repair attempt.
	// Repair is on by default.
	DisableRepair bool

	// MinSentences is the pruner's abstention floor. Default: pruner
	// default (2).
	MinSentences int

	// GenerationRPS rate-limits calls to the generation backend.
	// Default: 2
	GenerationRPS float64

	// CacheTTL bounds the chunk cache entry lifetime. Default: 5m
	CacheTTL time.Duration
}

// applyConfigDefaults fills in missing configuration values.
func applyConfigDefaults(cfg Config) Config {
	if cfg.Port == 0 {
		cfg.Port = 12230
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./data/evidence.db"
	}
	if cfg.OTelEndpoint == "" {
		cfg.OTelEndpoint = "aleutian-otel-collector:4317"
	}
	if cfg.GenerationBackend == "" {
		cfg.GenerationBackend = "openai"
	}
	if cfg.TopK == 0 {
		cfg.TopK = 10
	}
	if cfg.GenerationRPS == 0 {
		cfg.GenerationRPS = 2
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return cfg
}

// =============================================================================
// Implementation
// =============================================================================

// service implements Service for production use.
//
// # Thread Safety
//
// Thread-safe after construction. All fields are read-only after New()
// returns.
type service struct {
	config        Config
	router        *gin.Engine
	sqlStore      *store.SQLStore
	evidenceStore store.EvidenceStore
	pipeline      *runtime.Pipeline
	validator     *verify.Validator
	tracerCleanup func(context.Context)
}

// =============================================================================
// Constructor
// =============================================================================

// New creates a new gatekeeper Service with the given configuration.
//
// # Description
//
// New initializes all components in dependency order:
//  1. Applies default configuration for missing values
//  2. Initializes OpenTelemetry tracing
//  3. Opens the evidence store and wraps it with the chunk cache
//  4. Builds the in-process BM25 index from the full corpus
//  5. Builds the entity resolver, contract engine, and validator
//  6. Creates the generation backend client
//  7. Assembles the ask pipeline and HTTP routes
//
// # Inputs
//
//   - cfg: Service configuration. Zero values use defaults.
//
// # Outputs
//
//   - Service: Ready-to-run gatekeeper service
//   - error: Non-nil if initialization fails
//
// # Assumptions
//
//   - The evidence database has been populated by ingestion tooling
//   - OPENAI_API_KEY (or the secret file) is available for generation
func New(cfg Config) (Service, error) {
	s := &service{
		config: applyConfigDefaults(cfg),
	}

	cleanup, err := s.initTracer()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracer: %w", err)
	}
	s.tracerCleanup = cleanup

	if err := s.initPipeline(); err != nil {
		s.cleanup()
		return nil, err
	}

	s.initRouter()
	return s, nil
}

// =============================================================================
// Service Interface Methods
// =============================================================================

// Run starts the HTTP server and blocks until shutdown or error.
// Cleanup is automatic on return.
func (s *service) Run() error {
	defer s.cleanup()

	addr := fmt.Sprintf(":%d", s.config.Port)
	slog.Info("Starting gatekeeper server", "port", s.config.Port)

	return s.router.Run(addr)
}

// Router returns the underlying Gin engine for testing.
func (s *service) Router() *gin.Engine {
	return s.router
}

// =============================================================================
// Private Initialization Methods
// =============================================================================

// initTracer initializes OpenTelemetry distributed tracing.
//
// # Description
//
// Sets up the OTLP trace exporter to send spans to the configured
// collector over insecure gRPC (appropriate for internal networks).
//
// # Outputs
//
//   - func(context.Context): Cleanup function to call on shutdown
//   - error: Non-nil if tracer setup fails
func (s *service) initTracer() (func(context.Context), error) {
	ctx := context.Background()

	conn, err := grpc.NewClient(s.config.OTelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}

	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("gatekeeper-service")))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))

	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	cleanup := func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}

	return cleanup, nil
}

// initPipeline opens the store and assembles the ask pipeline.
//
// # Description
//
// The BM25 index is built once from the full corpus at startup; the
// corpus is pre-ingested and read-only at runtime, so there is no
// incremental indexing path.
func (s *service) initPipeline() error {
	ctx := context.Background()

	sqlStore, err := store.NewSQLStore(s.config.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open evidence store: %w", err)
	}
	s.sqlStore = sqlStore
	s.evidenceStore = store.NewCachedStore(sqlStore, s.config.CacheTTL)

	chunks, err := s.evidenceStore.AllChunks(ctx)
	if err != nil {
		return fmt.Errorf("failed to load corpus for indexing: %w", err)
	}
	index := retrieval.NewBM25Index(chunks)
	slog.Info("Built BM25 index", "chunks", index.Len())

	resolver, err := retrieval.NewResolver(ctx, s.evidenceStore)
	if err != nil {
		return fmt.Errorf("failed to build entity resolver: %w", err)
	}

	merger := retrieval.NewMerger(
		retrieval.NewStructuredBackend(s.evidenceStore),
		retrieval.NewBM25Backend(index),
		retrieval.NewGraphBackend(s.evidenceStore),
	)

	engine, err := contract.NewEngine()
	if err != nil {
		return fmt.Errorf("failed to build contract engine: %w", err)
	}

	generator, err := s.initGenerator()
	if err != nil {
		return fmt.Errorf("failed to initialize generation backend: %w", err)
	}

	s.validator = verify.NewValidator(s.evidenceStore)
	s.pipeline = runtime.NewPipeline(
		s.evidenceStore,
		sqlStore,
		resolver,
		merger,
		engine,
		s.validator,
		generator,
		runtime.Config{
			TopK:          s.config.TopK,
			RepairEnabled: !s.config.DisableRepair,
			MinSentences:  s.config.MinSentences,
		},
	)
	return nil
}

// initGenerator creates the generation backend for the configured
// provider. The static backend quotes evidence deterministically and
// needs no credentials, which keeps offline runs and smoke tests off
// the network.
func (s *service) initGenerator() (generation.Generator, error) {
	switch s.config.GenerationBackend {
	case "static":
		slog.Info("Using static quoting generation backend")
		return generation.NewStaticGenerator(), nil
	case "openai":
		slog.Info("Using OpenAI generation backend")
		return generation.NewOpenAIGenerator(s.config.GenerationRPS)
	default:
		slog.Warn("Unknown generation backend, defaulting to openai", "backend", s.config.GenerationBackend)
		return generation.NewOpenAIGenerator(s.config.GenerationRPS)
	}
}

// initRouter sets up the Gin HTTP router with all routes.
func (s *service) initRouter() {
	if s.config.GinMode != "" {
		gin.SetMode(s.config.GinMode)
	}
	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("gatekeeper-service"))
	s.router.Use(middleware.RequestID())

	routes.SetupRoutes(s.router, s.pipeline, s.evidenceStore, s.validator)
}

// cleanup releases all resources held by the service.
func (s *service) cleanup() {
	if s.tracerCleanup != nil {
		s.tracerCleanup(context.Background())
	}
}

// =============================================================================
// Compile-time Interface Compliance
// =============================================================================

var _ Service = (*service)(nil)
