package outcome

import (
	"errors"
	"testing"
)

func TestScripted_KeyedStepsWinOverStage(t *testing.T) {
	s := NewScripted().
		Always(StageProcessing, Decline("stage-wide")).
		For(StageProcessing, "auth-1", Decline("Insufficient funds"))

	got, err := s.Evaluate(10000, Context{Stage: StageProcessing, AggregateID: "proc-1", AuthorizationID: "auth-1"})
	if err != nil || got.Approved || got.Reason != "Insufficient funds" {
		t.Fatalf("first = %+v, %v", got, err)
	}
	got, err = s.Evaluate(10000, Context{Stage: StageProcessing, AggregateID: "proc-1", AuthorizationID: "auth-1"})
	if err != nil || got.Reason != "stage-wide" {
		t.Fatalf("second = %+v, %v", got, err)
	}
	got, err = s.Evaluate(10000, Context{Stage: StageProcessing, AggregateID: "proc-1", AuthorizationID: "auth-1"})
	if err != nil || !got.Approved || got.ReferenceID != "processing-proc-1" {
		t.Fatalf("third = %+v, %v", got, err)
	}
	if len(s.Calls()) != 3 {
		t.Fatalf("calls = %d", len(s.Calls()))
	}
}

func TestScripted_Fail(t *testing.T) {
	boom := errors.New("gateway down")
	s := NewScripted().Always(StageSettlement, Fail(boom))
	if _, err := s.Evaluate(1, Context{Stage: StageSettlement}); !errors.Is(err, boom) {
		t.Fatalf("expected provider error, got %v", err)
	}
}

func TestScripted_ApproveFillsReference(t *testing.T) {
	s := NewScripted().Always(StageSettlement, Approve(""))
	got, _ := s.Evaluate(1, Context{Stage: StageSettlement, AggregateID: "set-1"})
	if got.ReferenceID != "settlement-set-1" {
		t.Fatalf("reference = %q", got.ReferenceID)
	}
}

func TestRandom_IsReproducibleFromSeed(t *testing.T) {
	a, err := NewRandom(42, 0.5)
	if err != nil {
		t.Fatalf("new random: %v", err)
	}
	b, _ := NewRandom(42, 0.5)
	for i := 0; i < 50; i++ {
		ra, _ := a.Evaluate(100, Context{Stage: StageProcessing})
		rb, _ := b.Evaluate(100, Context{Stage: StageProcessing})
		if ra != rb {
			t.Fatalf("draw %d diverged: %+v vs %+v", i, ra, rb)
		}
	}
	if a.Seed() != 42 {
		t.Fatalf("seed = %d", a.Seed())
	}
}

func TestRandom_Extremes(t *testing.T) {
	always, _ := NewRandom(7, 1)
	never, _ := NewRandom(7, 0)
	for i := 0; i < 20; i++ {
		if r, _ := always.Evaluate(1, Context{}); !r.Approved {
			t.Fatal("rate 1 must approve")
		}
		if r, _ := never.Evaluate(1, Context{}); r.Approved || r.Reason == "" {
			t.Fatalf("rate 0 must decline with a reason, got %+v", r)
		}
	}
	if _, err := NewRandom(1, 1.5); err == nil {
		t.Fatal("expected rate validation error")
	}
}

func TestApproving(t *testing.T) {
	got, err := Approving{}.Evaluate(1, Context{Stage: StageProcessing, AggregateID: "p"})
	if err != nil || !got.Approved || got.ReferenceID != "processing-p" {
		t.Fatalf("got %+v, %v", got, err)
	}
}
