package engine

import (
	"errors"

	apperrors "github.com/louisbranch/paysaga/internal/platform/errors"
)

var (
	// ErrCommandRegistryRequired indicates a missing command registry.
	ErrCommandRegistryRequired = errors.New("command registry is required")
	// ErrAggregateRegistryRequired indicates a missing aggregate registry.
	ErrAggregateRegistryRequired = errors.New("aggregate registry is required")
	// ErrEventStoreRequired indicates a missing event store.
	ErrEventStoreRequired = errors.New("event store is required")
	// ErrAggregateTypeUnknown indicates a command routed to an unregistered aggregate.
	ErrAggregateTypeUnknown = errors.New("aggregate type is not registered")
	// ErrRejected marks a command declined by validation or by its decider.
	ErrRejected = errors.New("command rejected")
)

func validationError(message string, cause error) error {
	return apperrors.Wrap(apperrors.CodeValidationFailed, message, cause)
}

func systemError(message string, cause error) error {
	return apperrors.Wrap(apperrors.CodeSystemError, message, cause)
}
