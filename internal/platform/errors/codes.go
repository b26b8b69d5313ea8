// Package errors provides the structured error taxonomy shared by paysaga services.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// CodeValidationFailed marks a command that violates an aggregate invariant.
	// It is surfaced to the submitter and never retried automatically.
	CodeValidationFailed Code = "VALIDATION_FAILED"
	// CodeConcurrencyConflict marks a stale expected version. Callers reload and retry.
	CodeConcurrencyConflict Code = "CONCURRENCY_CONFLICT"
	// CodeSagaTimeout marks a saga whose deadline elapsed before the expected event.
	CodeSagaTimeout Code = "SAGA_TIMEOUT"
	// CodeSystemError marks an unexpected fault in a collaborator (outcome provider,
	// serialization, storage).
	CodeSystemError Code = "SYSTEM_ERROR"
	// CodeNotFound marks a missing aggregate, saga instance, or read model row.
	CodeNotFound Code = "NOT_FOUND"
)

// Retryable reports whether the failure class may succeed on a fresh attempt.
func (c Code) Retryable() bool {
	return c == CodeConcurrencyConflict
}

// GRPCCode maps domain codes to gRPC status codes for transport adapters.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeValidationFailed:
		return codes.InvalidArgument
	case CodeConcurrencyConflict:
		return codes.Aborted
	case CodeSagaTimeout:
		return codes.DeadlineExceeded
	case CodeNotFound:
		return codes.NotFound
	default:
		return codes.Internal
	}
}
