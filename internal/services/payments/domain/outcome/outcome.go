// Package outcome stands in for the external processor and settlement rail.
//
// Processing and settlement deciders ask a Provider whether a money movement
// succeeded. Tests inject a Scripted provider; simulation runs use Random.
package outcome

import (
	"fmt"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/money"
)

// Stage names the step being evaluated.
type Stage string

const (
	StageProcessing Stage = "processing"
	StageSettlement Stage = "settlement"
)

// Context describes the movement being evaluated.
type Context struct {
	Stage           Stage
	AggregateID     string
	AuthorizationID string
	MerchantID      string
	Currency        string
}

// Result is the provider verdict.
type Result struct {
	Approved    bool
	ReferenceID string
	Reason      string
}

// Provider evaluates a money movement. An error means the provider itself
// failed; callers record it as a failed outcome.
type Provider interface {
	Evaluate(amount money.Amount, c Context) (Result, error)
}

// Approving approves everything with a deterministic reference.
type Approving struct{}

// Evaluate approves.
func (Approving) Evaluate(_ money.Amount, c Context) (Result, error) {
	return Result{Approved: true, ReferenceID: reference(c)}, nil
}

func reference(c Context) string {
	return fmt.Sprintf("%s-%s", c.Stage, c.AggregateID)
}
