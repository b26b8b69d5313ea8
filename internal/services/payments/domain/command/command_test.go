package command

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
)

func TestRegistryValidateForDecision_Normalizes(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(Definition{Type: "authorization.void", AggregateType: "authorization"}); err != nil {
		t.Fatalf("register: %v", err)
	}

	cmd, def, err := registry.ValidateForDecision(Command{
		AggregateID:   " auth-1 ",
		Type:          " authorization.void ",
		CorrelationID: " auth-1 ",
	})
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if cmd.AggregateID != "auth-1" || cmd.CorrelationID != "auth-1" {
		t.Fatalf("expected trimmed ids, got %+v", cmd)
	}
	if string(cmd.PayloadJSON) != "{}" {
		t.Fatalf("payload = %s, want {}", cmd.PayloadJSON)
	}
	if def.AggregateType != "authorization" {
		t.Fatalf("definition aggregate = %s", def.AggregateType)
	}
}

func TestRegistryValidateForDecision_Errors(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(Definition{
		Type:          "processing.process",
		AggregateType: "processing",
		ValidatePayload: func(raw json.RawMessage) error {
			var v map[string]any
			return json.Unmarshal(raw, &v)
		},
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	tests := []struct {
		name string
		cmd  Command
		want error
	}{
		{"missing aggregate", Command{Type: "processing.process"}, ErrAggregateIDRequired},
		{"missing type", Command{AggregateID: "p-1"}, ErrTypeRequired},
		{"unknown type", Command{AggregateID: "p-1", Type: "processing.refund"}, ErrTypeUnknown},
		{"bad json", Command{AggregateID: "p-1", Type: "processing.process", PayloadJSON: []byte("{")}, ErrPayloadInvalid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := registry.ValidateForDecision(tc.cmd)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestRegistryRegister_RequiresAggregateType(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(Definition{Type: "x.y"}); err == nil {
		t.Fatal("expected aggregate type error")
	}
}

func TestDecisionValidate(t *testing.T) {
	if err := (Decision{}).Validate(); err == nil {
		t.Fatal("expected error for empty decision")
	}
	if err := Accept(event.Event{AggregateID: "a"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := Reject(Rejection{Code: "NOPE"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	mixed := Decision{Events: []event.Event{{}}, Rejections: []Rejection{{Code: "NOPE"}}}
	if err := mixed.Validate(); err == nil {
		t.Fatal("expected error for mixed decision")
	}
}

func TestDecisionReason(t *testing.T) {
	d := Reject(Rejection{Code: "A", Message: "first"}, Rejection{Code: "B", Message: "second"})
	if !d.Rejected() {
		t.Fatal("expected rejected decision")
	}
	if d.Reason() != "A: first; B: second" {
		t.Fatalf("reason = %q", d.Reason())
	}
}

func TestSharedRejectionCodes_FollowConvention(t *testing.T) {
	for _, code := range []string{RejectionCodePayloadDecodeFailed, RejectionCodeCommandTypeUnsupported} {
		for _, c := range code {
			if c >= 'a' && c <= 'z' {
				t.Fatalf("%q contains lowercase characters", code)
			}
		}
	}
}

func TestNewEvent_CopiesCommandEnvelope(t *testing.T) {
	cmd := Command{
		ID:            "cmd-1",
		AggregateID:   "auth-1",
		CorrelationID: "auth-1",
		CausationID:   "evt-0",
	}
	now := time.Date(2026, 2, 20, 12, 0, 0, 0, time.UTC)

	evt := NewEvent(cmd, event.Type("payment.authorized"), "authorization", []byte(`{"amount":1}`), now)

	if evt.AggregateID != "auth-1" {
		t.Errorf("AggregateID = %q, want auth-1", evt.AggregateID)
	}
	if evt.AggregateType != "authorization" {
		t.Errorf("AggregateType = %q, want authorization", evt.AggregateType)
	}
	if evt.CorrelationID != "auth-1" {
		t.Errorf("CorrelationID = %q, want auth-1", evt.CorrelationID)
	}
	if evt.CausationID != "cmd-1" {
		t.Errorf("CausationID = %q, want cmd-1", evt.CausationID)
	}
	if !evt.Timestamp.Equal(now) {
		t.Errorf("Timestamp = %v, want %v", evt.Timestamp, now)
	}
}
