package outcome

import (
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/louisbranch/paysaga/internal/random"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/money"
)

// DefaultDeclineReasons are drawn from when a Random provider declines.
var DefaultDeclineReasons = []string{
	"Insufficient funds",
	"Card expired",
	"Issuer unavailable",
	"Suspected fraud",
}

// Random approves with a fixed probability from a seeded source.
type Random struct {
	mu           sync.Mutex
	rng          *rand.Rand
	seed         uint64
	approvalRate float64
	reasons      []string
}

// NewRandom builds a Random provider. A zero seed draws a fresh one; Seed
// reports the value used so a run can be replayed.
func NewRandom(seed uint64, approvalRate float64) (*Random, error) {
	if approvalRate < 0 || approvalRate > 1 {
		return nil, fmt.Errorf("approval rate must be within [0,1], got %v", approvalRate)
	}
	rng, used, err := random.NewSource(seed)
	if err != nil {
		return nil, err
	}
	return &Random{
		rng:          rng,
		seed:         used,
		approvalRate: approvalRate,
		reasons:      DefaultDeclineReasons,
	}, nil
}

// Seed returns the seed in use.
func (r *Random) Seed() uint64 {
	return r.seed
}

// Evaluate draws an outcome.
func (r *Random) Evaluate(_ money.Amount, c Context) (Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rng.Float64() < r.approvalRate {
		return Result{Approved: true, ReferenceID: fmt.Sprintf("%s-%016x", c.Stage, r.rng.Uint64())}, nil
	}
	return Result{Reason: r.reasons[r.rng.IntN(len(r.reasons))]}, nil
}
