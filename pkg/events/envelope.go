// Package events provides the generic envelope and sink used to publish
// domain events from activities. Processing milestones (trials generated,
// results collated, outputs exported) are emitted for projections and audit
// without coupling the engine to any particular transport.
package events

import (
	"context"
	"encoding/json"
	"time"
)

// Envelope wraps a domain event with the metadata consumers need for
// routing, deduplication, and workflow correlation. The payload schema is
// owned by the emitting package and versioned through the Version field.
type Envelope struct {
	// ID uniquely identifies this event instance.
	ID string `json:"id"`

	// Type routes the event, e.g. "experiment.processed" or
	// "experiment.results_collated".
	Type string `json:"type"`

	// Source names the component that emitted the event, e.g.
	// "experiment-activity".
	Source string `json:"source"`

	// Version tracks the payload schema, starting at "1.0.0".
	Version string `json:"version"`

	// Timestamp records wall-clock emission time.
	Timestamp time.Time `json:"timestamp"`

	// IdempotencyKey deduplicates re-emissions caused by activity retries.
	// Derived deterministically from the workflow run and event content.
	IdempotencyKey string `json:"idempotency_key"`

	// WorkflowID and RunID correlate the event with the Temporal execution
	// that produced it.
	WorkflowID string `json:"workflow_id"`
	RunID      string `json:"run_id"`

	// Payload is the event body, schema keyed by Type and Version.
	Payload json.RawMessage `json:"payload"`
}

// EventSink receives emitted envelopes. Implementations must tolerate
// duplicates (retries re-emit with the same idempotency key) and should
// return quickly; events matter for observability, never for correctness.
type EventSink interface {
	Append(ctx context.Context, envelope Envelope) error
}

// NoOpEventSink discards every event. Used in tests and deployments that do
// not consume the event stream.
type NoOpEventSink struct{}

// Append implements EventSink by doing nothing.
func (NoOpEventSink) Append(context.Context, Envelope) error { return nil }

// NewNoOpEventSink returns a sink that discards all events.
func NewNoOpEventSink() EventSink { return NoOpEventSink{} }
