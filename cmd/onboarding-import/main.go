package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/natserract/onboarding/pkg/config"
	"github.com/natserract/onboarding/pkg/entityfile"
	"github.com/natserract/onboarding/pkg/journal/postgres"
	"github.com/natserract/onboarding/pkg/onboarding"
	"go.uber.org/zap"
)

const usage = "usage: onboarding-import <data-source> <file.json|file.xlsx> [correlation-id]"

// importMetrics summarizes a run.
type importMetrics struct {
	BatchesSucceeded  int
	BatchesFailed     int
	EntitiesSubmitted int
	EntitiesRejected  int
}

func main() {
	if len(os.Args) < 3 || len(os.Args) > 4 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}
	dataSource, path := os.Args[1], os.Args[2]

	var correlationID *uuid.UUID
	if len(os.Args) == 4 {
		id, err := uuid.Parse(os.Args[3])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid correlation id %q: %v\n", os.Args[3], err)
			os.Exit(2)
		}
		correlationID = &id
	}

	// Initialize logger
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load config", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	entities, err := entityfile.Load(path)
	if err != nil {
		logger.Error("Failed to load entities", zap.String("path", path), zap.Error(err))
		fmt.Fprintf(os.Stderr, "Failed to load entities: %v\n", err)
		os.Exit(1)
	}
	batches, err := entityfile.Batches(dataSource, entities, cfg.BatchSize)
	if err != nil {
		logger.Error("Rejected entity file", zap.String("path", path), zap.Error(err))
		fmt.Fprintf(os.Stderr, "Rejected entity file: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d entities from %s in %d batches\n", len(entities), path, len(batches))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Journal is optional: continue without it if the database is unreachable
	var journal *postgres.Journal
	db, err := postgres.New(ctx, postgres.NewConfig(), logger)
	if err != nil {
		logger.Warn("Failed to connect to database, continuing without import journal", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Warning: import journal disabled: %v\n", err)
	} else {
		defer db.Close()
		journal = postgres.NewJournal(db, logger)
		if err := journal.EnsureSchema(ctx); err != nil {
			logger.Warn("Failed to prepare import journal, continuing without it", zap.Error(err))
			journal = nil
		}
	}

	client := onboarding.NewClientWithLogger(cfg, logger)
	defer client.Close()

	var opts []onboarding.ImportOption
	if correlationID != nil {
		opts = append(opts, onboarding.WithCorrelationID(*correlationID))
	}

	outcomes, importErr := client.ImportBatches(ctx, dataSource, batches, opts...)
	failures := onboarding.BatchErrors(importErr)

	var metrics importMetrics
	for i, batch := range batches {
		outcome, batchErr := outcomes[i], failures[i]
		switch {
		case batchErr != nil:
			fmt.Printf("  batch %d (%d entities): error: %v\n", i, len(batch), batchErr)
		case outcome == nil:
			// cancelled before the batch was started
			batchErr = ctx.Err()
			fmt.Printf("  batch %d (%d entities): not submitted\n", i, len(batch))
		default:
			batchID := ""
			if outcome.Result != nil {
				batchID = outcome.Result.BatchID
			}
			fmt.Printf("  batch %d (%d entities): %d %s %s\n", i, len(batch), outcome.StatusCode, outcome.Message, batchID)
		}

		if outcome != nil && outcome.Succeeded() {
			metrics.BatchesSucceeded++
			metrics.EntitiesSubmitted += len(batch)
		} else {
			metrics.BatchesFailed++
			metrics.EntitiesRejected += len(batch)
		}

		if journal != nil {
			entry := postgres.NewEntry(dataSource, correlationID, len(batch), outcome, batchErr)
			if err := journal.Record(ctx, entry); err != nil {
				logger.Warn("Failed to journal batch", zap.Int("batch", i), zap.Error(err))
			}
		}
	}

	logger.Info("Import finished",
		zap.String("data_source", dataSource),
		zap.Int("batches_succeeded", metrics.BatchesSucceeded),
		zap.Int("batches_failed", metrics.BatchesFailed),
		zap.Int("entities_submitted", metrics.EntitiesSubmitted),
		zap.Int("entities_rejected", metrics.EntitiesRejected))

	fmt.Printf("Import Metrics:\n")
	fmt.Printf("  Batches: %d succeeded, %d failed\n", metrics.BatchesSucceeded, metrics.BatchesFailed)
	fmt.Printf("  Entities: %d submitted, %d rejected\n", metrics.EntitiesSubmitted, metrics.EntitiesRejected)

	if metrics.BatchesFailed > 0 {
		os.Exit(1)
	}
}
