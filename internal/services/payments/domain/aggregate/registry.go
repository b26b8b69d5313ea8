package aggregate

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/command"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
)

// ErrStateTypeMismatch indicates a fold or decide received foreign state.
var ErrStateTypeMismatch = errors.New("aggregate state type mismatch")

// FoldFunc derives the next state from one event. It must be pure.
type FoldFunc func(state any, evt event.Event) (any, error)

// DecideFunc turns a command into a decision against current state.
type DecideFunc func(state any, cmd command.Command, now func() time.Time) command.Decision

// Definition describes one aggregate type.
type Definition struct {
	Type     string
	NewState func() any
	Fold     FoldFunc
	Decide   DecideFunc
}

// Registry stores aggregate definitions keyed by type.
type Registry struct {
	definitions map[string]Definition
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{definitions: make(map[string]Definition)}
}

// Register adds an aggregate definition.
func (r *Registry) Register(def Definition) error {
	if r == nil {
		return errors.New("registry is required")
	}
	def.Type = strings.TrimSpace(def.Type)
	if def.Type == "" {
		return errors.New("aggregate type is required")
	}
	if def.NewState == nil || def.Fold == nil || def.Decide == nil {
		return fmt.Errorf("aggregate %s requires state factory, fold, and decide", def.Type)
	}
	if r.definitions == nil {
		r.definitions = make(map[string]Definition)
	}
	if _, exists := r.definitions[def.Type]; exists {
		return fmt.Errorf("aggregate type already registered: %s", def.Type)
	}
	r.definitions[def.Type] = def
	return nil
}

// Get returns the definition for an aggregate type.
func (r *Registry) Get(aggregateType string) (Definition, bool) {
	if r == nil {
		return Definition{}, false
	}
	def, ok := r.definitions[aggregateType]
	return def, ok
}

// Types returns registered aggregate types in lexical order.
func (r *Registry) Types() []string {
	if r == nil {
		return nil
	}
	types := make([]string, 0, len(r.definitions))
	for t := range r.definitions {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// AssertState narrows state to T, accepting T or *T and treating nil as zero.
func AssertState[T any](state any) (T, error) {
	var zero T
	switch typed := state.(type) {
	case nil:
		return zero, nil
	case T:
		return typed, nil
	case *T:
		if typed == nil {
			return zero, nil
		}
		return *typed, nil
	default:
		return zero, fmt.Errorf("%w: got %T, want %T", ErrStateTypeMismatch, state, zero)
	}
}

// Typed builds a Definition from state-typed fold and decide functions.
// A state of the wrong type folds to an error and decides to a rejection.
func Typed[S any](aggregateType string, fold func(S, event.Event) (S, error), decide func(S, command.Command, func() time.Time) command.Decision) Definition {
	return Definition{
		Type:     aggregateType,
		NewState: func() any {
			var zero S
			return zero
		},
		Fold: func(state any, evt event.Event) (any, error) {
			current, err := AssertState[S](state)
			if err != nil {
				return nil, err
			}
			return fold(current, evt)
		},
		Decide: func(state any, cmd command.Command, now func() time.Time) command.Decision {
			current, err := AssertState[S](state)
			if err != nil {
				return command.Reject(command.Rejection{Code: command.RejectionCodeStateInvalid, Message: err.Error()})
			}
			return decide(current, cmd, now)
		},
	}
}

// DecodePayload is a payload validator that only requires JSON to decode into T.
func DecodePayload[T any](raw json.RawMessage) error {
	var payload T
	return json.Unmarshal(raw, &payload)
}
