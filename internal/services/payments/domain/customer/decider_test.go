package customer

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/louisbranch/paysaga/internal/services/payments/domain/command"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/event"
)

var fixedNow = func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }

func registerCmd(t *testing.T, id string, payload RegisterPayload) command.Command {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return command.Command{ID: "cmd-1", AggregateID: id, Type: CommandTypeRegister, PayloadJSON: raw}
}

func addCardCmd(t *testing.T, id, card string) command.Command {
	t.Helper()
	raw, err := json.Marshal(AddPaymentMethodPayload{CardNumber: card, Brand: " VISA "})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return command.Command{ID: "cmd-2", AggregateID: id, Type: CommandTypeAddPaymentMethod, PayloadJSON: raw}
}

func TestDecideRegister_EmitsNormalizedEvent(t *testing.T) {
	decision := Decider{}.Decide(State{}, registerCmd(t, "cust-1", RegisterPayload{Name: " Ada ", Email: "Ada@Example.com"}), fixedNow)
	if decision.Rejected() {
		t.Fatalf("unexpected rejection: %s", decision.Reason())
	}
	if len(decision.Events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(decision.Events))
	}
	evt := decision.Events[0]
	if evt.Type != EventTypeRegistered || evt.AggregateType != AggregateType || evt.CausationID != "cmd-1" {
		t.Fatalf("event envelope = %+v", evt)
	}
	var payload RegisteredPayload
	if err := json.Unmarshal(evt.PayloadJSON, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Name != "Ada" || payload.Email != "ada@example.com" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestDecideRegister_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		state   State
		payload RegisterPayload
		code    string
	}{
		{name: "already registered", state: State{Registered: true}, payload: RegisterPayload{Name: "Ada", Email: "ada@example.com"}, code: RejectionCodeAlreadyExists},
		{name: "missing name", payload: RegisterPayload{Email: "ada@example.com"}, code: rejectionCodeNameRequired},
		{name: "invalid email", payload: RegisterPayload{Name: "Ada", Email: "not-an-email"}, code: rejectionCodeEmailInvalid},
		{name: "email without domain dot", payload: RegisterPayload{Name: "Ada", Email: "ada@localhost"}, code: rejectionCodeEmailInvalid},
		{name: "display name form", payload: RegisterPayload{Name: "Ada", Email: "Ada <ada@example.com>"}, code: rejectionCodeEmailInvalid},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision := Decider{}.Decide(tc.state, registerCmd(t, "cust-1", tc.payload), fixedNow)
			if !decision.Rejected() {
				t.Fatal("expected rejection")
			}
			if decision.Rejections[0].Code != tc.code {
				t.Fatalf("code = %s, want %s", decision.Rejections[0].Code, tc.code)
			}
		})
	}
}

func TestDecideAddPaymentMethod(t *testing.T) {
	state := State{Registered: true, Name: "Ada", Email: "ada@example.com"}
	decision := Decider{}.Decide(state, addCardCmd(t, "cust-1", "4242 4242 4242 4242"), fixedNow)
	if decision.Rejected() {
		t.Fatalf("unexpected rejection: %s", decision.Reason())
	}
	var payload PaymentMethodAddedPayload
	if err := json.Unmarshal(decision.Events[0].PayloadJSON, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Last4 != "4242" || payload.Brand != "visa" || payload.Fingerprint != Fingerprint("4242424242424242") {
		t.Fatalf("payload = %+v", payload)
	}

	next, err := Fold(state, decision.Events[0])
	if err != nil {
		t.Fatalf("fold: %v", err)
	}
	again := Decider{}.Decide(next, addCardCmd(t, "cust-1", "4242-4242-4242-4242"), fixedNow)
	if !again.Rejected() || again.Rejections[0].Code != rejectionCodeCardDuplicate {
		t.Fatalf("expected duplicate rejection, got %+v", again)
	}
}

func TestDecideAddPaymentMethod_Rejections(t *testing.T) {
	if d := (Decider{}).Decide(State{}, addCardCmd(t, "cust-1", "4242424242424242"), fixedNow); !d.Rejected() || d.Rejections[0].Code != rejectionCodeNotFound {
		t.Fatalf("expected not found, got %+v", d)
	}
	registered := State{Registered: true}
	for _, card := range []string{"", "1234", "4242x42424242424", "12345678901234567890"} {
		d := Decider{}.Decide(registered, addCardCmd(t, "cust-1", card), fixedNow)
		if !d.Rejected() || d.Rejections[0].Code != rejectionCodeCardInvalid {
			t.Fatalf("card %q: expected invalid, got %+v", card, d)
		}
	}
}

func TestDecide_UnsupportedCommand(t *testing.T) {
	d := Decider{}.Decide(State{}, command.Command{AggregateID: "cust-1", Type: "customer.delete"}, fixedNow)
	if !d.Rejected() || d.Rejections[0].Code != command.RejectionCodeCommandTypeUnsupported {
		t.Fatalf("decision = %+v", d)
	}
}

func TestFold_ReplayIsDeterministic(t *testing.T) {
	registered, _ := json.Marshal(RegisteredPayload{Name: "Ada", Email: "ada@example.com"})
	card, _ := json.Marshal(PaymentMethodAddedPayload{Fingerprint: "fp", Brand: "visa", Last4: "4242"})
	events := []event.Event{
		{AggregateID: "cust-1", Seq: 1, Type: EventTypeRegistered, PayloadJSON: registered},
		{AggregateID: "cust-1", Seq: 2, Type: EventTypePaymentMethodAdded, PayloadJSON: card},
	}
	replay := func() State {
		var state State
		for _, evt := range events {
			var err error
			state, err = Fold(state, evt)
			if err != nil {
				t.Fatalf("fold: %v", err)
			}
		}
		return state
	}
	first, second := replay(), replay()
	if first.Email != second.Email || len(first.PaymentMethods) != 1 || len(second.PaymentMethods) != 1 {
		t.Fatalf("replays diverged: %+v vs %+v", first, second)
	}
	if first.PaymentMethods[0] != second.PaymentMethods[0] {
		t.Fatalf("payment methods diverged")
	}
}

func TestFold_RejectsCorruptPayload(t *testing.T) {
	_, err := Fold(State{}, event.Event{Type: EventTypeRegistered, PayloadJSON: []byte("{")})
	if err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRegistries(t *testing.T) {
	commands := command.NewRegistry()
	if err := RegisterCommands(commands); err != nil {
		t.Fatalf("register commands: %v", err)
	}
	events := event.NewRegistry()
	if err := RegisterEvents(events); err != nil {
		t.Fatalf("register events: %v", err)
	}
	if def, ok := commands.Definition(CommandTypeRegister); !ok || def.AggregateType != AggregateType {
		t.Fatalf("definition = %+v", def)
	}
	if _, ok := events.Definition(EventTypePaymentMethodAdded); !ok {
		t.Fatal("expected event definition")
	}
	if Definition(Decider{}).Type != AggregateType {
		t.Fatal("unexpected aggregate type")
	}
}
