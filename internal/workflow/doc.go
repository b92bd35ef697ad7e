// Package workflow implements the Temporal workflow definitions for the
// experiment engine.
//
// ExperimentWorkflow drives one experiment through its lifecycle by invoking
// the coordinator activities in order: trial generation, the optional model
// reviewer drain, and results collation. The workflow owns the retry policy
// and timeouts; the activities own the business logic and decide which
// failures are worth retrying.
//
// Workflow code here must stay deterministic. Anything touching storage,
// clocks, randomness, or model providers lives in the coordinator activities.
package workflow
