package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/paysaga/internal/services/payments/storage"
)

const paymentColumns = `authorization_id, customer_id, merchant_id, amount, currency,
	authorization_status, decline_reason, void_reason,
	processing_id, processing_status, processing_reference, processing_reason,
	settlement_id, settlement_status, fee, net, settlement_reason,
	authorization_seq, processing_seq, settlement_seq, updated_at`

// GetPayment returns the payment row for authorizationID.
func (s *Store) GetPayment(ctx context.Context, authorizationID string) (storage.PaymentView, error) {
	if err := s.ready(ctx); err != nil {
		return storage.PaymentView{}, err
	}
	var (
		v         storage.PaymentView
		authSeq   int64
		procSeq   int64
		setSeq    int64
		updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payment_views WHERE authorization_id = ?`,
		authorizationID,
	).Scan(
		&v.AuthorizationID, &v.CustomerID, &v.MerchantID, &v.Amount, &v.Currency,
		&v.AuthorizationStatus, &v.DeclineReason, &v.VoidReason,
		&v.ProcessingID, &v.ProcessingStatus, &v.ProcessingReference, &v.ProcessingReason,
		&v.SettlementID, &v.SettlementStatus, &v.Fee, &v.Net, &v.SettlementReason,
		&authSeq, &procSeq, &setSeq, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.PaymentView{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.PaymentView{}, fmt.Errorf("get payment: %w", err)
	}
	v.AuthorizationSeq = uint64(authSeq)
	v.ProcessingSeq = uint64(procSeq)
	v.SettlementSeq = uint64(setSeq)
	v.UpdatedAt = fromMillis(updatedAt)
	return v, nil
}

// PutPayment upserts a payment row.
func (s *Store) PutPayment(ctx context.Context, v storage.PaymentView) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO payment_views (`+paymentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(authorization_id) DO UPDATE SET
			customer_id = excluded.customer_id,
			merchant_id = excluded.merchant_id,
			amount = excluded.amount,
			currency = excluded.currency,
			authorization_status = excluded.authorization_status,
			decline_reason = excluded.decline_reason,
			void_reason = excluded.void_reason,
			processing_id = excluded.processing_id,
			processing_status = excluded.processing_status,
			processing_reference = excluded.processing_reference,
			processing_reason = excluded.processing_reason,
			settlement_id = excluded.settlement_id,
			settlement_status = excluded.settlement_status,
			fee = excluded.fee,
			net = excluded.net,
			settlement_reason = excluded.settlement_reason,
			authorization_seq = excluded.authorization_seq,
			processing_seq = excluded.processing_seq,
			settlement_seq = excluded.settlement_seq,
			updated_at = excluded.updated_at`,
		v.AuthorizationID, v.CustomerID, v.MerchantID, v.Amount, v.Currency,
		v.AuthorizationStatus, v.DeclineReason, v.VoidReason,
		v.ProcessingID, v.ProcessingStatus, v.ProcessingReference, v.ProcessingReason,
		v.SettlementID, v.SettlementStatus, v.Fee, v.Net, v.SettlementReason,
		int64(v.AuthorizationSeq), int64(v.ProcessingSeq), int64(v.SettlementSeq), toMillis(v.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put payment: %w", err)
	}
	return nil
}

// GetCustomer returns the customer row for customerID.
func (s *Store) GetCustomer(ctx context.Context, customerID string) (storage.CustomerView, error) {
	if err := s.ready(ctx); err != nil {
		return storage.CustomerView{}, err
	}
	return s.queryCustomer(ctx, `WHERE customer_id = ?`, customerID)
}

// GetCustomerByEmail returns the customer holding email.
func (s *Store) GetCustomerByEmail(ctx context.Context, email string) (storage.CustomerView, error) {
	if err := s.ready(ctx); err != nil {
		return storage.CustomerView{}, err
	}
	return s.queryCustomer(ctx, `WHERE email = ? ORDER BY customer_id LIMIT 1`, strings.ToLower(strings.TrimSpace(email)))
}

func (s *Store) queryCustomer(ctx context.Context, where string, arg any) (storage.CustomerView, error) {
	var (
		v            storage.CustomerView
		methods      string
		registeredAt int64
		seq          int64
		updatedAt    int64
	)
	err := s.sqlDB.QueryRowContext(ctx,
		`SELECT customer_id, name, email, payment_methods_json, registered_at, seq, updated_at
		 FROM customer_views `+where,
		arg,
	).Scan(&v.CustomerID, &v.Name, &v.Email, &methods, &registeredAt, &seq, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.CustomerView{}, storage.ErrNotFound
	}
	if err != nil {
		return storage.CustomerView{}, fmt.Errorf("get customer: %w", err)
	}
	if err := json.Unmarshal([]byte(methods), &v.PaymentMethods); err != nil {
		return storage.CustomerView{}, fmt.Errorf("decode payment methods: %w", err)
	}
	if registeredAt != 0 {
		v.RegisteredAt = fromMillis(registeredAt)
	}
	v.Seq = uint64(seq)
	v.UpdatedAt = fromMillis(updatedAt)
	return v, nil
}

// PutCustomer upserts a customer row. Emails are stored lower-cased.
func (s *Store) PutCustomer(ctx context.Context, v storage.CustomerView) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	methods := v.PaymentMethods
	if methods == nil {
		methods = []storage.PaymentMethodView{}
	}
	raw, err := json.Marshal(methods)
	if err != nil {
		return fmt.Errorf("encode payment methods: %w", err)
	}
	var registeredAt int64
	if !v.RegisteredAt.IsZero() {
		registeredAt = toMillis(v.RegisteredAt)
	}
	_, err = s.sqlDB.ExecContext(ctx,
		`INSERT INTO customer_views (customer_id, name, email, payment_methods_json, registered_at, seq, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(customer_id) DO UPDATE SET
			name = excluded.name,
			email = excluded.email,
			payment_methods_json = excluded.payment_methods_json,
			registered_at = excluded.registered_at,
			seq = excluded.seq,
			updated_at = excluded.updated_at`,
		v.CustomerID, v.Name, strings.ToLower(strings.TrimSpace(v.Email)), string(raw), registeredAt, int64(v.Seq), toMillis(v.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put customer: %w", err)
	}
	return nil
}

const settlementColumns = `settlement_id, authorization_id, merchant_id, amount, fee, net, currency, status, reference, reason, seq, updated_at`

// GetSettlement returns the settlement row for settlementID.
func (s *Store) GetSettlement(ctx context.Context, settlementID string) (storage.SettlementView, error) {
	if err := s.ready(ctx); err != nil {
		return storage.SettlementView{}, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+settlementColumns+` FROM settlement_views WHERE settlement_id = ?`,
		settlementID,
	)
	if err != nil {
		return storage.SettlementView{}, fmt.Errorf("get settlement: %w", err)
	}
	views, err := scanSettlements(rows)
	if err != nil {
		return storage.SettlementView{}, err
	}
	if len(views) == 0 {
		return storage.SettlementView{}, storage.ErrNotFound
	}
	return views[0], nil
}

// PutSettlement upserts a settlement row.
func (s *Store) PutSettlement(ctx context.Context, v storage.SettlementView) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO settlement_views (`+settlementColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(settlement_id) DO UPDATE SET
			authorization_id = excluded.authorization_id,
			merchant_id = excluded.merchant_id,
			amount = excluded.amount,
			fee = excluded.fee,
			net = excluded.net,
			currency = excluded.currency,
			status = excluded.status,
			reference = excluded.reference,
			reason = excluded.reason,
			seq = excluded.seq,
			updated_at = excluded.updated_at`,
		v.SettlementID, v.AuthorizationID, v.MerchantID, v.Amount, v.Fee, v.Net, v.Currency,
		v.Status, v.Reference, v.Reason, int64(v.Seq), toMillis(v.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("put settlement: %w", err)
	}
	return nil
}

// ListSettlementsByMerchant returns a merchant's settlements by id.
func (s *Store) ListSettlementsByMerchant(ctx context.Context, merchantID string) ([]storage.SettlementView, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+settlementColumns+` FROM settlement_views WHERE merchant_id = ? ORDER BY settlement_id`,
		merchantID,
	)
	if err != nil {
		return nil, fmt.Errorf("list settlements: %w", err)
	}
	return scanSettlements(rows)
}

func scanSettlements(rows *sql.Rows) ([]storage.SettlementView, error) {
	defer rows.Close()
	var out []storage.SettlementView
	for rows.Next() {
		var (
			v         storage.SettlementView
			seq       int64
			updatedAt int64
		)
		if err := rows.Scan(&v.SettlementID, &v.AuthorizationID, &v.MerchantID, &v.Amount, &v.Fee, &v.Net,
			&v.Currency, &v.Status, &v.Reference, &v.Reason, &seq, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan settlement: %w", err)
		}
		v.Seq = uint64(seq)
		v.UpdatedAt = fromMillis(updatedAt)
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate settlements: %w", err)
	}
	return out, nil
}

// ResetProjections deletes every read model row and checkpoint.
func (s *Store) ResetProjections(ctx context.Context) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset tx: %w", err)
	}
	defer tx.Rollback()
	for _, table := range []string{"payment_views", "customer_views", "settlement_views", "projection_checkpoints"} {
		if _, err := tx.ExecContext(ctx, `DELETE FROM `+table); err != nil {
			return fmt.Errorf("reset %s: %w", table, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}

// GetCheckpoint returns the stored position for name.
func (s *Store) GetCheckpoint(ctx context.Context, name string) (uint64, error) {
	if err := s.ready(ctx); err != nil {
		return 0, err
	}
	var position int64
	err := s.sqlDB.QueryRowContext(ctx, `SELECT position FROM projection_checkpoints WHERE name = ?`, name).Scan(&position)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, storage.ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("get checkpoint: %w", err)
	}
	return uint64(position), nil
}

// SaveCheckpoint records position for name.
func (s *Store) SaveCheckpoint(ctx context.Context, name string, position uint64) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO projection_checkpoints (name, position, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET position = excluded.position, updated_at = excluded.updated_at`,
		name, int64(position), toMillis(s.now()),
	)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	return nil
}
