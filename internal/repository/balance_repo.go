package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zandy2test/gumroad-sub033/internal/domain"
)

type BalanceRepo struct {
	db *sql.DB
}

func NewBalanceRepo(db *sql.DB) *BalanceRepo {
	return &BalanceRepo{db: db}
}

func (r *BalanceRepo) Insert(b *domain.Balance) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.State == "" {
		b.State = domain.BalanceUnpaid
	}
	_, err := r.db.Exec(
		`INSERT INTO balances (id, payee_id, amount_cents, currency, earnings_date, state, payment_id)
		 VALUES (?,?,?,?,?,?,?)`,
		b.ID, b.PayeeID, b.AmountCents, b.Currency,
		b.EarningsDate.Format(time.RFC3339), string(b.State), nullableString(b.PaymentID),
	)
	if err != nil {
		return fmt.Errorf("insert balance: %w", err)
	}
	return nil
}

func (r *BalanceRepo) BulkInsert(balances []domain.Balance) (int, error) {
	inserted := 0
	sqlTx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer sqlTx.Rollback()

	stmt, err := sqlTx.Prepare(
		`INSERT OR IGNORE INTO balances (id, payee_id, amount_cents, currency, earnings_date, state, payment_id)
		 VALUES (?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i := range balances {
		b := &balances[i]
		if b.ID == "" {
			b.ID = uuid.New().String()
		}
		if b.State == "" {
			b.State = domain.BalanceUnpaid
		}
		res, err := stmt.Exec(
			b.ID, b.PayeeID, b.AmountCents, b.Currency,
			b.EarningsDate.Format(time.RFC3339), string(b.State), nullableString(b.PaymentID),
		)
		if err != nil {
			return inserted, fmt.Errorf("insert row %d: %w", i, err)
		}
		ra, _ := res.RowsAffected()
		inserted += int(ra)
	}

	if err := sqlTx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// ListUnpaidUpTo returns a payee's unpaid balances earned on or before the
// cutoff date, oldest first.
func (r *BalanceRepo) ListUnpaidUpTo(payeeID string, cutoff time.Time) ([]domain.Balance, error) {
	rows, err := r.db.Query(
		`SELECT id, payee_id, amount_cents, currency, earnings_date, state, payment_id
		 FROM balances
		 WHERE payee_id = ? AND state = 'unpaid' AND payment_id IS NULL AND earnings_date <= ?
		 ORDER BY earnings_date, id`,
		payeeID, cutoff.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("query unpaid balances: %w", err)
	}
	defer rows.Close()
	return collectBalances(rows)
}

// ListByPayment returns all balances linked to the given payment.
func (r *BalanceRepo) ListByPayment(paymentID string) ([]domain.Balance, error) {
	rows, err := r.db.Query(
		`SELECT id, payee_id, amount_cents, currency, earnings_date, state, payment_id
		 FROM balances WHERE payment_id = ? ORDER BY earnings_date, id`,
		paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query balances by payment: %w", err)
	}
	defer rows.Close()
	return collectBalances(rows)
}

func (r *BalanceRepo) GetByID(id string) (*domain.Balance, error) {
	row := r.db.QueryRow(
		`SELECT id, payee_id, amount_cents, currency, earnings_date, state, payment_id
		 FROM balances WHERE id = ?`, id,
	)
	var b domain.Balance
	if err := scanBalanceRow(row.Scan, &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *BalanceRepo) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM balances").Scan(&count)
	return count, err
}

// BalanceStats holds aggregate balance figures for the dashboard.
type BalanceStats struct {
	Total          int   `json:"total"`
	Unpaid         int   `json:"unpaid"`
	Processing     int   `json:"processing"`
	Paid           int   `json:"paid"`
	UnpaidCents    int64 `json:"unpaid_cents"`
	ProcessingCents int64 `json:"processing_cents"`
	PaidCents      int64 `json:"paid_cents"`
}

func (r *BalanceRepo) GetStats() (*BalanceStats, error) {
	s := &BalanceStats{}
	err := r.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN state='unpaid' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state='processing' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state='paid' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state='unpaid' THEN amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state='processing' THEN amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state='paid' THEN amount_cents ELSE 0 END), 0)
		FROM balances
	`).Scan(&s.Total, &s.Unpaid, &s.Processing, &s.Paid,
		&s.UnpaidCents, &s.ProcessingCents, &s.PaidCents)
	return s, err
}

// LinkViolation flags a balance whose state disagrees with its payment
// link. The cascade keeps both sides consistent inside one transaction, so
// any violation means manual interference or a bug.
type LinkViolation struct {
	BalanceID    string `json:"balance_id"`
	PaymentID    string `json:"payment_id,omitempty"`
	BalanceState string `json:"balance_state"`
	PaymentState string `json:"payment_state,omitempty"`
}

func (r *BalanceRepo) ListLinkViolations() ([]LinkViolation, error) {
	rows, err := r.db.Query(`
		SELECT b.id, COALESCE(b.payment_id, ''), b.state, COALESCE(p.state, '')
		FROM balances b
		LEFT JOIN payments p ON p.id = b.payment_id
		WHERE (b.payment_id IS NULL AND b.state != 'unpaid')
		   OR (b.payment_id IS NOT NULL AND b.state = 'unpaid')
		   OR (b.state = 'paid' AND p.state != 'completed')
		   OR (p.state = 'completed' AND b.state != 'paid')`)
	if err != nil {
		return nil, fmt.Errorf("query link violations: %w", err)
	}
	defer rows.Close()

	var violations []LinkViolation
	for rows.Next() {
		var v LinkViolation
		if err := rows.Scan(&v.BalanceID, &v.PaymentID, &v.BalanceState, &v.PaymentState); err != nil {
			return nil, fmt.Errorf("scan link violation: %w", err)
		}
		violations = append(violations, v)
	}
	return violations, rows.Err()
}

// --- helpers ---

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func scanBalanceRow(scan func(...any) error, b *domain.Balance) error {
	var state, earnedAt string
	var paymentID sql.NullString
	if err := scan(&b.ID, &b.PayeeID, &b.AmountCents, &b.Currency, &earnedAt, &state, &paymentID); err != nil {
		return err
	}
	b.State = domain.BalanceState(state)
	earned, err := time.Parse(time.RFC3339, earnedAt)
	if err != nil {
		return fmt.Errorf("parse earnings_date: %w", err)
	}
	b.EarningsDate = earned
	if paymentID.Valid {
		b.PaymentID = paymentID.String
	}
	return nil
}

func collectBalances(rows *sql.Rows) ([]domain.Balance, error) {
	var balances []domain.Balance
	for rows.Next() {
		var b domain.Balance
		if err := scanBalanceRow(rows.Scan, &b); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}
