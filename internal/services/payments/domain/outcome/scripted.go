package outcome

import (
	"sync"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/money"
)

// Step is one scripted provider answer.
type Step struct {
	Result Result
	Err    error
}

// Approve returns an approving step.
func Approve(referenceID string) Step {
	return Step{Result: Result{Approved: true, ReferenceID: referenceID}}
}

// Decline returns a declining step.
func Decline(reason string) Step {
	return Step{Result: Result{Reason: reason}}
}

// Fail returns a step where the provider itself errors.
func Fail(err error) Step {
	return Step{Err: err}
}

// Call records one evaluation.
type Call struct {
	Amount  money.Amount
	Context Context
}

// Scripted answers from queued steps. Steps queued for an authorization id win
// over steps queued for the whole stage; with nothing queued it approves.
type Scripted struct {
	mu      sync.Mutex
	byKey   map[string][]Step
	byStage map[Stage][]Step
	calls   []Call
}

// NewScripted returns an empty script.
func NewScripted() *Scripted {
	return &Scripted{
		byKey:   make(map[string][]Step),
		byStage: make(map[Stage][]Step),
	}
}

// For queues steps for one authorization at stage.
func (s *Scripted) For(stage Stage, authorizationID string, steps ...Step) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := scriptKey(stage, authorizationID)
	s.byKey[key] = append(s.byKey[key], steps...)
	return s
}

// Always queues steps for any authorization at stage.
func (s *Scripted) Always(stage Stage, steps ...Step) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byStage[stage] = append(s.byStage[stage], steps...)
	return s
}

// Evaluate pops the next matching step.
func (s *Scripted) Evaluate(amount money.Amount, c Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, Call{Amount: amount, Context: c})

	key := scriptKey(c.Stage, c.AuthorizationID)
	if step, ok := pop(s.byKey, key); ok {
		return withReference(step, c)
	}
	if step, ok := pop(s.byStage, c.Stage); ok {
		return withReference(step, c)
	}
	return Result{Approved: true, ReferenceID: reference(c)}, nil
}

// Calls returns a copy of recorded evaluations.
func (s *Scripted) Calls() []Call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Call(nil), s.calls...)
}

func pop[K comparable](queues map[K][]Step, key K) (Step, bool) {
	queue := queues[key]
	if len(queue) == 0 {
		return Step{}, false
	}
	queues[key] = queue[1:]
	return queue[0], true
}

func withReference(step Step, c Context) (Result, error) {
	if step.Err != nil {
		return Result{}, step.Err
	}
	result := step.Result
	if result.Approved && result.ReferenceID == "" {
		result.ReferenceID = reference(c)
	}
	return result, nil
}

func scriptKey(stage Stage, authorizationID string) string {
	return string(stage) + "|" + authorizationID
}
