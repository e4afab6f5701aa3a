package pipeline

import "errors"

var (
	// ErrConfigRequired is returned when a source config is not provided.
	ErrConfigRequired = errors.New("source config required")

	// ErrUnknownStage indicates an unrecognized stage name in configuration.
	ErrUnknownStage = errors.New("unknown pipeline stage")

	// ErrUnknownRuleType indicates an unrecognized validation rule type.
	ErrUnknownRuleType = errors.New("unknown validation rule type")

	// ErrUnknownTransformType indicates an unrecognized transformation type.
	ErrUnknownTransformType = errors.New("unknown transformation type")

	// ErrUnknownEnrichmentSource indicates an unrecognized enrichment source.
	ErrUnknownEnrichmentSource = errors.New("unknown enrichment source type")

	// ErrInvalidMaxAttempts indicates a non-positive retry attempt ceiling.
	ErrInvalidMaxAttempts = errors.New("max attempts must be positive")

	// ErrNonRecoverable marks errors that must not be retried, such as
	// type mismatches and null-value failures.
	ErrNonRecoverable = errors.New("non-recoverable error")
)
