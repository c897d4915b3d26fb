package main

import "fmt"

// ProviderKind classifies a failed provider call for the retry policy.
type ProviderKind string

const (
	ProviderTransient   ProviderKind = "transient"
	ProviderRateLimited ProviderKind = "rate_limited"
	ProviderFatal       ProviderKind = "fatal"
)

// ProviderError wraps a failed generative call with its retry class.
type ProviderError struct {
	Kind ProviderKind
	Err  error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider call failed (%s): %v", e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ParseError reports unparsable model output. Raw keeps the full response so
// the job can preserve it to a diagnostic artifact before failing.
type ParseError struct {
	Op  string
	Raw string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s: %v", e.Op, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// StoreError is a genuine document-store failure (connectivity, auth,
// corrupt blob). An absent container or blob is NOT a StoreError; it is a
// valid empty state reported via a found=false return.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("document store: %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// DeliveryError reports a failed notification or attachment delivery.
// Deliveries are advisory: jobs log these and keep going.
type DeliveryError struct {
	Channel string
	Err     error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s delivery failed: %v", e.Channel, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// ConfigurationError means a required secret is missing or a persisted value
// is out of its legal range. Nothing is attempted after one is raised.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Reason
}

// Stage names the step of a job's state machine. Terminal failures always
// carry the stage they failed at.
type Stage string

const (
	StageLoadingHistory   Stage = "loading_history"
	StageLoadingSelection Stage = "loading_selection"
	StageValidating       Stage = "validating"
	StageGenerating       Stage = "generating"
	StageParsing          Stage = "parsing"
	StagePersisting       Stage = "persisting"
	StageAppendingHistory Stage = "appending_history"
	StageNotifying        Stage = "notifying"
	StageDelivering       Stage = "delivering"
)

// StageError is the terminal failure of a job, naming the stage it died at.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("failed at stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }
