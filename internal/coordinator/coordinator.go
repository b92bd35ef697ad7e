// Package coordinator drives the experiment lifecycle: expanding an
// experiment into its trial set, answering pending trials with model
// reviewers, collating completed trials into per-model results, and exporting
// metric-calculation documents. Per-experiment runs are serialized through a
// processing guard so overlapping triggers cannot duplicate trials.
package coordinator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/medbench/engine/internal/collate"
	"github.com/medbench/engine/internal/lock"
	"github.com/medbench/engine/internal/runner"
	"github.com/medbench/engine/internal/store"
	"github.com/medbench/engine/internal/trialgen"

	"github.com/medbench/engine/internal/domain"
)

// ErrUnparsableResponse indicates a reviewer model's reply did not match the
// experiment type's response grammar.
var ErrUnparsableResponse = errors.New("response does not match the expected format")

// ResultsCalculator recomputes one model's incremental results from an
// experiment's completed trials. Satisfied by scoring.Engine.
type ResultsCalculator interface {
	CalculateModelResults(ctx context.Context, modelID, experimentID string) error
}

// Config wires a Coordinator's collaborators. Guard, Logger, and Now are
// optional; everything else is required by the operation that uses it.
type Config struct {
	Experiments store.ExperimentStore
	Scenarios   store.TestScenarioStore
	Tasks       store.ClinicalTaskStore
	Trials      store.TrialStore
	DataObjects store.DataObjectStore
	DataSets    store.DataSetStore
	Models      store.ModelStore
	Users       store.UserStore
	Blobs       store.BlobStore

	Generator *trialgen.Generator
	Collator  *collate.Collator
	Registry  *runner.Registry
	Scores    ResultsCalculator
	Counter   trialgen.TokenCounter

	Guard  lock.Guard
	Logger *slog.Logger
	Now    func() time.Time
}

// Coordinator owns the experiment processing operations.
type Coordinator struct {
	experiments store.ExperimentStore
	scenarios   store.TestScenarioStore
	tasks       store.ClinicalTaskStore
	trials      store.TrialStore
	dataObjects store.DataObjectStore
	dataSets    store.DataSetStore
	models      store.ModelStore
	users       store.UserStore
	blobs       store.BlobStore

	generator *trialgen.Generator
	collator  *collate.Collator
	registry  *runner.Registry
	scores    ResultsCalculator
	counter   trialgen.TokenCounter

	guard  lock.Guard
	logger *slog.Logger
	now    func() time.Time
}

// New builds a Coordinator from cfg, applying defaults for optional fields.
func New(cfg Config) *Coordinator {
	c := &Coordinator{
		experiments: cfg.Experiments,
		scenarios:   cfg.Scenarios,
		tasks:       cfg.Tasks,
		trials:      cfg.Trials,
		dataObjects: cfg.DataObjects,
		dataSets:    cfg.DataSets,
		models:      cfg.Models,
		users:       cfg.Users,
		blobs:       cfg.Blobs,
		generator:   cfg.Generator,
		collator:    cfg.Collator,
		registry:    cfg.Registry,
		scores:      cfg.Scores,
		counter:     cfg.Counter,
		guard:       cfg.Guard,
		logger:      cfg.Logger,
		now:         cfg.Now,
	}
	if c.guard == nil {
		c.guard = lock.NewLocalGuard()
	}
	if c.counter == nil {
		c.counter = trialgen.ApproxCounter{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// ProcessExperiment expands the experiment into its full trial set. Prior
// trials are deleted first, so re-processing is the recovery path for both
// Error states and stale trial sets. A concurrent call for the same
// experiment is a logged no-op. The guard is always released; a crashed
// holder's lease expires on its own when the Redis guard is in use.
func (c *Coordinator) ProcessExperiment(ctx context.Context, experimentID string) error {
	acquired, err := c.guard.TryAcquire(ctx, experimentID)
	if err != nil {
		return fmt.Errorf("acquiring processing guard for experiment %s: %w", experimentID, err)
	}
	if !acquired {
		c.logger.Info("experiment is already being processed, skipping",
			"experiment_id", experimentID)
		return nil
	}
	defer func() {
		if err := c.guard.Release(ctx, experimentID); err != nil {
			c.logger.Error("failed to release processing guard",
				"experiment_id", experimentID, "error", err)
		}
	}()

	exp, err := c.experiments.Get(ctx, experimentID)
	if err != nil {
		return err
	}
	if err := c.setStatus(ctx, exp, domain.StatusProcessing); err != nil {
		return err
	}

	scenario, err := c.scenarios.Get(ctx, exp.TestScenarioID)
	if err != nil {
		return c.failProcessing(ctx, exp, 0, err)
	}
	task, err := c.tasks.Get(ctx, scenario.ClinicalTaskID)
	if err != nil {
		return c.failProcessing(ctx, exp, 0, err)
	}

	if err := c.trials.DeleteByExperimentID(ctx, experimentID); err != nil {
		return c.failProcessing(ctx, exp, 0, err)
	}

	total, err := c.generator.Generate(ctx, exp, scenario, task)
	if err != nil {
		return c.failProcessing(ctx, exp, total, err)
	}

	pending, err := c.trials.CountPendingForExperiment(ctx, experimentID)
	if err != nil {
		return c.failProcessing(ctx, exp, total, err)
	}

	exp.TotalTrials = total
	exp.PendingTrials = pending
	if err := c.setStatus(ctx, exp, domain.StatusProcessed); err != nil {
		return err
	}
	c.logger.Info("experiment processed",
		"experiment_id", experimentID,
		"total_trials", total,
		"pending_trials", pending)
	return nil
}

// CollateExperimentResults folds the experiment's completed trials into
// per-model accumulators and writes each model's whole-experiment results
// snapshot. The experiment moves Finalizing -> Final, or to Error with the
// failure re-surfaced to the caller.
func (c *Coordinator) CollateExperimentResults(ctx context.Context, experimentID string) error {
	exp, err := c.experiments.Get(ctx, experimentID)
	if err != nil {
		return err
	}
	if err := c.setStatus(ctx, exp, domain.StatusFinalizing); err != nil {
		return err
	}

	trials, err := c.trials.GetByExperimentID(ctx, experimentID)
	if err != nil {
		return c.failCollation(ctx, exp, err)
	}

	results := c.collator.Collate(trials)
	for modelID, acc := range results {
		model, err := c.models.Get(ctx, modelID)
		if err != nil {
			return c.failCollation(ctx, exp, err)
		}
		snapshot := acc.Snapshot()
		snapshot.UpdatedAt = c.now()
		model.ExperimentResults = &snapshot
		model.UpdatedAt = c.now()
		if err := c.models.Update(ctx, model); err != nil {
			return c.failCollation(ctx, exp, err)
		}
	}

	if err := c.setStatus(ctx, exp, domain.StatusFinal); err != nil {
		return err
	}
	c.logger.Info("experiment results collated",
		"experiment_id", experimentID,
		"models_processed", len(results))
	return nil
}

// setStatus transitions and persists the experiment's lifecycle state.
func (c *Coordinator) setStatus(ctx context.Context, exp *domain.Experiment, next domain.ProcessingStatus) error {
	if err := exp.SetStatus(next, c.now()); err != nil {
		return err
	}
	return c.experiments.Update(ctx, exp)
}

// failProcessing records a failed processing run: Error status, pending count
// zeroed (the partial trial set is not reviewable), and total set to the
// trials created before the failure so operators see how far the run got.
// Prior trials were already deleted, so the old total is meaningless here.
// The original cause wins over status-write failures.
func (c *Coordinator) failProcessing(ctx context.Context, exp *domain.Experiment, total int, cause error) error {
	c.logger.Error("experiment processing failed",
		"experiment_id", exp.ID, "error", cause)
	exp.TotalTrials = total
	exp.PendingTrials = 0
	if err := c.setStatus(ctx, exp, domain.StatusError); err != nil {
		c.logger.Error("failed to record error status",
			"experiment_id", exp.ID, "error", err)
	}
	return cause
}

func (c *Coordinator) failCollation(ctx context.Context, exp *domain.Experiment, cause error) error {
	c.logger.Error("experiment collation failed",
		"experiment_id", exp.ID, "error", cause)
	if err := c.setStatus(ctx, exp, domain.StatusError); err != nil {
		c.logger.Error("failed to record error status",
			"experiment_id", exp.ID, "error", err)
	}
	return cause
}
