package payments

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/louisbranch/paysaga/internal/services/payments/app"
	"github.com/louisbranch/paysaga/internal/services/payments/domain/money"
	"github.com/louisbranch/paysaga/internal/services/payments/saga"
)

const (
	simulationMerchants = 3
	simulationMaxAmount = 250_000
	simulationSettle    = 30 * time.Second
)

// Simulation describes a batch of synthetic payments.
type Simulation struct {
	Payments int
	// Amounts draws payment amounts; it is not safe for concurrent use.
	Amounts *rand.Rand
}

type simulated struct {
	authorizationID string
	amount          money.Amount
}

// Simulate submits sim.Payments payments through svc, waits for their sagas to
// finish and writes one line per payment followed by a per-state summary. svc
// must be running.
func Simulate(ctx context.Context, svc *app.Service, sim Simulation, out io.Writer) error {
	if sim.Payments <= 0 {
		return errors.New("simulation needs at least one payment")
	}
	if sim.Amounts == nil {
		return errors.New("simulation amount source is required")
	}
	customerID, result, err := svc.RegisterCustomer(ctx, "Simulated Customer", "simulated@paysaga.test")
	if err != nil {
		return err
	}
	if !result.Accepted {
		return fmt.Errorf("register simulated customer: %s", result.RejectedReason)
	}
	if result, err = svc.AddPaymentMethod(ctx, customerID, "4242424242424242", "visa"); err != nil {
		return err
	} else if !result.Accepted {
		return fmt.Errorf("add simulated payment method: %s", result.RejectedReason)
	}

	payments := make([]simulated, 0, sim.Payments)
	for i := range sim.Payments {
		amount := money.Amount(1 + sim.Amounts.Int64N(simulationMaxAmount))
		authorizationID, result, err := svc.Authorize(ctx, app.AuthorizeRequest{
			CustomerID: customerID,
			MerchantID: fmt.Sprintf("merchant-%d", i%simulationMerchants+1),
			Amount:     amount,
			Currency:   "USD",
		})
		if err != nil {
			return err
		}
		if !result.Accepted {
			return fmt.Errorf("authorize simulated payment %d: %s", i, result.RejectedReason)
		}
		payments = append(payments, simulated{authorizationID: authorizationID, amount: amount})
	}

	waitCtx, cancel := context.WithTimeout(ctx, simulationSettle)
	defer cancel()
	if err := svc.WaitIdle(waitCtx); err != nil {
		return err
	}
	return report(ctx, svc, payments, out)
}

func report(ctx context.Context, svc *app.Service, payments []simulated, out io.Writer) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "AUTHORIZATION\tMERCHANT\tAMOUNT\tSAGA\tFAILURE\tFEE\tNET")
	counts := make(map[saga.State]int)
	for _, p := range payments {
		inst, err := svc.GetSaga(ctx, p.authorizationID)
		if err != nil {
			return err
		}
		view, err := svc.GetPayment(ctx, p.authorizationID)
		if err != nil {
			return err
		}
		counts[inst.State]++
		failure := "-"
		if inst.FailureKind != "" {
			failure = fmt.Sprintf("%s: %s", inst.FailureKind, inst.FailureReason)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.authorizationID, view.MerchantID, p.amount, inst.State, failure,
			money.Amount(view.Fee), money.Amount(view.Net))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	states := make([]string, 0, len(counts))
	for state := range counts {
		states = append(states, string(state))
	}
	sort.Strings(states)
	fmt.Fprintf(out, "\nsimulated %d payments\n", len(payments))
	for _, state := range states {
		fmt.Fprintf(out, "  %-12s %d\n", state, counts[saga.State(state)])
	}
	return nil
}
