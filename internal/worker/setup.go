// Package worker provides initialization and setup utilities for Temporal workers.
// This package contains initialization logic that should be executed during
// worker startup, keeping the coordinator package focused on pure business logic.
package worker

import (
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medbench/engine/internal/collate"
	"github.com/medbench/engine/internal/coordinator"
	"github.com/medbench/engine/internal/lock"
	"github.com/medbench/engine/internal/runner"
	"github.com/medbench/engine/internal/scoring"
	"github.com/medbench/engine/internal/store"
	"github.com/medbench/engine/internal/trialgen"
)

// InitializeStore creates the entity store backing the coordinator.
// Returns an in-memory store for development/testing.
// Production deployments should provide persistent storage behind the same
// store interfaces.
func InitializeStore() *store.Memory {
	return store.NewMemory()
}

// InitializeGuard creates the per-experiment processing guard. With a Redis
// address the guard is a distributed lease so multiple worker instances never
// process the same experiment concurrently; without one it falls back to a
// process-local guard suitable for single-instance deployments.
func InitializeGuard(redisAddr string) lock.Guard {
	if redisAddr == "" {
		return lock.NewLocalGuard()
	}
	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	return lock.NewRedisGuard(client, lock.DefaultLeaseTTL)
}

// InitializeCoordinator wires the full processing stack over the given store
// and guard: runner registry, trial generator, collator, scoring engine, and
// the coordinator that drives them.
func InitializeCoordinator(mem *store.Memory, guard lock.Guard, logger *slog.Logger) *coordinator.Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	registry := runner.NewRegistry()

	generator := trialgen.New(trialgen.Config{
		Trials:      mem.Trials(),
		DataObjects: mem.DataObjects(),
		DataSets:    mem.DataSets(),
		Models:      mem.Models(),
		Registry:    registry,
		Now:         time.Now,
		Logger:      logger,
	})

	scores := scoring.New(scoring.Config{
		Experiments: mem.Experiments(),
		Scenarios:   mem.TestScenarios(),
		Tasks:       mem.ClinicalTasks(),
		Trials:      mem.Trials(),
		Models:      mem.Models(),
		Users:       mem.Users(),
		Logger:      logger,
	})

	return coordinator.New(coordinator.Config{
		Experiments: mem.Experiments(),
		Scenarios:   mem.TestScenarios(),
		Tasks:       mem.ClinicalTasks(),
		Trials:      mem.Trials(),
		DataObjects: mem.DataObjects(),
		DataSets:    mem.DataSets(),
		Models:      mem.Models(),
		Users:       mem.Users(),
		Blobs:       mem.Blobs(),
		Generator:   generator,
		Collator:    collate.New(logger),
		Registry:    registry,
		Scores:      scores,
		Guard:       guard,
		Logger:      logger,
	})
}
