package domain

import "errors"

// Sentinel errors shared across the engine. Callers match with errors.Is.
var (
	// ErrUnknownExperimentType indicates an experiment type outside the
	// known set.
	ErrUnknownExperimentType = errors.New("unknown experiment type")

	// ErrOutputCardinality indicates a trial carrying the wrong number of
	// model outputs for its experiment type.
	ErrOutputCardinality = errors.New("model output cardinality violation")

	// ErrNotFound indicates a referenced entity does not exist in a store.
	ErrNotFound = errors.New("entity not found")

	// ErrNoQualifyingPairings indicates an Arena experiment whose task has
	// fewer than two non-ground-truth pairings.
	ErrNoQualifyingPairings = errors.New("fewer than two qualifying pairings")
)
