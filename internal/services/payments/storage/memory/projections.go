package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/louisbranch/paysaga/internal/services/payments/storage"
)

func (s *Store) resetViews() {
	s.payments = make(map[string]storage.PaymentView)
	s.customers = make(map[string]storage.CustomerView)
	s.settlements = make(map[string]storage.SettlementView)
	s.checkpoints = make(map[string]uint64)
}

// GetPayment returns the payment row for authorizationID.
func (s *Store) GetPayment(ctx context.Context, authorizationID string) (storage.PaymentView, error) {
	if err := ctx.Err(); err != nil {
		return storage.PaymentView{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	view, ok := s.payments[authorizationID]
	if !ok {
		return storage.PaymentView{}, storage.ErrNotFound
	}
	return view, nil
}

// PutPayment upserts a payment row.
func (s *Store) PutPayment(ctx context.Context, view storage.PaymentView) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payments[view.AuthorizationID] = view
	return nil
}

// GetCustomer returns the customer row for customerID.
func (s *Store) GetCustomer(ctx context.Context, customerID string) (storage.CustomerView, error) {
	if err := ctx.Err(); err != nil {
		return storage.CustomerView{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	view, ok := s.customers[customerID]
	if !ok {
		return storage.CustomerView{}, storage.ErrNotFound
	}
	return cloneCustomer(view), nil
}

// GetCustomerByEmail scans for the customer holding email.
func (s *Store) GetCustomerByEmail(ctx context.Context, email string) (storage.CustomerView, error) {
	if err := ctx.Err(); err != nil {
		return storage.CustomerView{}, err
	}
	email = strings.ToLower(strings.TrimSpace(email))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, view := range s.customers {
		if strings.ToLower(view.Email) == email {
			return cloneCustomer(view), nil
		}
	}
	return storage.CustomerView{}, storage.ErrNotFound
}

// PutCustomer upserts a customer row.
func (s *Store) PutCustomer(ctx context.Context, view storage.CustomerView) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.customers[view.CustomerID] = cloneCustomer(view)
	return nil
}

// GetSettlement returns the settlement row for settlementID.
func (s *Store) GetSettlement(ctx context.Context, settlementID string) (storage.SettlementView, error) {
	if err := ctx.Err(); err != nil {
		return storage.SettlementView{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	view, ok := s.settlements[settlementID]
	if !ok {
		return storage.SettlementView{}, storage.ErrNotFound
	}
	return view, nil
}

// PutSettlement upserts a settlement row.
func (s *Store) PutSettlement(ctx context.Context, view storage.SettlementView) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settlements[view.SettlementID] = view
	return nil
}

// ListSettlementsByMerchant returns a merchant's settlements by id.
func (s *Store) ListSettlementsByMerchant(ctx context.Context, merchantID string) ([]storage.SettlementView, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	var out []storage.SettlementView
	for _, view := range s.settlements {
		if view.MerchantID == merchantID {
			out = append(out, view)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].SettlementID < out[j].SettlementID })
	return out, nil
}

// ResetProjections drops every read model row and checkpoint.
func (s *Store) ResetProjections(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetViews()
	return nil
}

// GetCheckpoint returns the stored position for name, ErrNotFound when unset.
func (s *Store) GetCheckpoint(ctx context.Context, name string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	position, ok := s.checkpoints[name]
	if !ok {
		return 0, storage.ErrNotFound
	}
	return position, nil
}

// SaveCheckpoint records position for name.
func (s *Store) SaveCheckpoint(ctx context.Context, name string, position uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[name] = position
	return nil
}

func cloneCustomer(view storage.CustomerView) storage.CustomerView {
	view.PaymentMethods = append([]storage.PaymentMethodView(nil), view.PaymentMethods...)
	return view
}
