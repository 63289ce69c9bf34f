package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yungbote/learnergraph-backend/internal/app"
	"github.com/yungbote/learnergraph-backend/internal/checkpoint"
	"github.com/yungbote/learnergraph-backend/internal/domain"
	"github.com/yungbote/learnergraph-backend/internal/graphload"
	"github.com/yungbote/learnergraph-backend/internal/observability"
	"github.com/yungbote/learnergraph-backend/internal/platform/logger"
	"github.com/yungbote/learnergraph-backend/internal/platform/neo4jdb"
	"github.com/yungbote/learnergraph-backend/internal/runlock"
	"github.com/yungbote/learnergraph-backend/internal/source"
	"github.com/yungbote/learnergraph-backend/internal/transform"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, log); err != nil {
		log.Error("loader failed", "error", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, log *logger.Logger) error {
	// Config
	cfg, err := app.Load(log)
	if err != nil {
		return err
	}

	// Tracing
	shutdownOTel := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: "learnergraph-loader",
		Environment: cfg.Environment,
		Version:     cfg.Version,
	})
	if shutdownOTel != nil {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownOTel(sctx); err != nil {
				log.Warn("otel shutdown failed", "error", err)
			}
		}()
	}

	// Run lock
	lock, err := runlock.NewFromEnv(log)
	if err != nil {
		return err
	}
	if lock != nil {
		if err := lock.Acquire(ctx); err != nil {
			if errors.Is(err, runlock.ErrHeld) {
				return fmt.Errorf("another loader is already running: %w", err)
			}
			return err
		}
		defer lock.Release(context.Background())
	}

	// Neo4j
	graph, err := neo4jdb.NewFromEnv(log)
	if err != nil {
		return err
	}
	defer func() {
		if err := graph.Close(context.Background()); err != nil {
			log.Warn("neo4j close failed", "error", err)
		}
	}()
	graphload.EnsureSchema(ctx, graph, log)

	// Source
	var src source.RowSource
	switch cfg.SourceKind {
	case app.SourcePostgres:
		src, err = source.NewPostgresSourceFromEnv(ctx, log)
	default:
		src, err = source.NewCSVSource(cfg.CSVPath, log)
	}
	if err != nil {
		return err
	}

	// Pipeline
	tf := transform.NewTransformer(log, cfg.LearningConfig(), cfg.ProfessionalConfig())
	writer := graphload.NewWriter(graph, log, cfg.BatchSize, cfg.RetryPolicy())

	var metrics *domain.LoadMetrics
	switch cfg.Mode {
	case app.ModeSimple:
		store, err := checkpoint.OpenFromEnv(cfg.SourceName, log)
		if err != nil {
			return err
		}
		loader := graphload.NewSimpleLoader(src, tf, writer, store, log, cfg.SimpleConfig())
		m, err := loader.Run(ctx)
		if err != nil {
			return err
		}
		metrics = m
	default:
		loader := graphload.NewTwoPhaseLoader(src, tf, writer, log, cfg.TwoPhaseConfig())
		m, err := loader.Run(ctx)
		if err != nil {
			return err
		}
		metrics = m
	}

	report(log, metrics)
	return nil
}

func report(log *logger.Logger, m *domain.LoadMetrics) {
	log.Info("load summary",
		"rows_processed", m.RowsProcessed,
		"valid_records", m.ValidRecords,
		"invalid_records", m.InvalidRecords,
		"reference_conflicts", m.ReferenceConflicts,
		"error_rate", fmt.Sprintf("%.4f", m.ErrorRate()),
		"duration", m.Duration.String())
	for label, n := range m.NodesCreated {
		log.Info("nodes written", "label", label, "count", n)
	}
	for relType, n := range m.RelationshipsCreated {
		log.Info("relationships written", "type", relType, "count", n)
	}
}
