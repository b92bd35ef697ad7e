package worker

import (
	sdkworker "go.temporal.io/sdk/worker"

	"github.com/medbench/engine/internal/coordinator"
	"github.com/medbench/engine/internal/workflow"
	"github.com/medbench/engine/pkg/activity"
	"github.com/medbench/engine/pkg/events"
)

// RegisterAll registers all workflows and activities with the Temporal worker.
// This function must be called during worker initialization before starting
// the worker. The registration is not thread-safe and should only be called
// once during application startup.
func RegisterAll(w sdkworker.Worker, coord *coordinator.Coordinator) {
	eventSink := events.NewNoOpEventSink()

	base := activity.NewBaseActivities(eventSink)

	acts := coordinator.NewActivities(base, coord)

	// Register workflow.
	w.RegisterWorkflow(workflow.ExperimentWorkflow)

	// Register activities. The workflow schedules these by method name.
	w.RegisterActivity(acts.ProcessExperiment)
	w.RegisterActivity(acts.ProcessModelReviewers)
	w.RegisterActivity(acts.CollateExperimentResults)
	w.RegisterActivity(acts.GenerateClinicalTaskOutputs)
}
