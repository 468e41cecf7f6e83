package repository

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/zandy2test/gumroad-sub033/internal/domain"
)

type PaymentRepo struct {
	db *sql.DB
}

func NewPaymentRepo(db *sql.DB) *PaymentRepo {
	return &PaymentRepo{db: db}
}

// CreateWithClaim inserts a payment and claims its balances in one
// transaction. Every balance must still be unpaid and unclaimed; if any has
// been grabbed by a concurrent run the whole claim rolls back, so a balance
// can never be linked to two in-flight payments.
func (r *PaymentRepo) CreateWithClaim(p *domain.Payment, balanceIDs []string) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.State == "" {
		p.State = domain.PaymentCreated
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO payments
		(id, payee_id, gross_cents, amount_cents, platform_fee_cents, processor_fee_cents,
		 currency, state, payout_address, processor_txn_id, split_mode, failure_reason,
		 created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.PayeeID, p.GrossCents, p.AmountCents, p.PlatformFeeCents, p.ProcessorFeeCents,
		p.Currency, string(p.State), p.PayoutAddress, nullableString(p.ProcessorTxnID),
		boolToInt(p.SplitMode), string(p.FailureReason),
		p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}

	for _, balanceID := range balanceIDs {
		res, err := tx.Exec(
			`UPDATE balances SET state = 'processing', payment_id = ?
			 WHERE id = ? AND state = 'unpaid' AND payment_id IS NULL`,
			p.ID, balanceID,
		)
		if err != nil {
			return fmt.Errorf("claim balance %s: %w", balanceID, err)
		}
		if n, _ := res.RowsAffected(); n != 1 {
			return fmt.Errorf("claim balance %s: already claimed", balanceID)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func (r *PaymentRepo) GetByID(id string) (*domain.Payment, error) {
	row := r.db.QueryRow(selectPayment+" WHERE id = ?", id)
	p, err := scanPayment(row.Scan)
	if err != nil {
		return nil, err
	}
	if p.SplitMode {
		p.SplitTransfers, err = r.listSplitTransfers(r.db, p.ID)
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

// GetActiveByPayee returns the payee's unresolved payment, or nil. Created,
// processing and unclaimed all count as in flight.
func (r *PaymentRepo) GetActiveByPayee(payeeID string) (*domain.Payment, error) {
	row := r.db.QueryRow(
		selectPayment+` WHERE payee_id = ? AND state IN ('created','processing','unclaimed')
		 ORDER BY created_at DESC LIMIT 1`,
		payeeID,
	)
	p, err := scanPayment(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// LastCompletedAt returns when the payee's most recent payment completed,
// or nil if none has.
func (r *PaymentRepo) LastCompletedAt(payeeID string) (*time.Time, error) {
	var raw sql.NullString
	err := r.db.QueryRow(
		"SELECT MAX(updated_at) FROM payments WHERE payee_id = ? AND state = 'completed'",
		payeeID,
	).Scan(&raw)
	if err != nil {
		return nil, err
	}
	if !raw.Valid {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw.String)
	if err != nil {
		return nil, fmt.Errorf("parse completed_at: %w", err)
	}
	return &t, nil
}

type PaymentFilter struct {
	PayeeID string
	State   string
	Page    int
	Limit   int
}

func (r *PaymentRepo) List(f PaymentFilter) ([]domain.Payment, int, error) {
	var clauses []string
	var args []any
	if f.PayeeID != "" {
		clauses = append(clauses, "payee_id = ?")
		args = append(args, f.PayeeID)
	}
	if f.State != "" {
		clauses = append(clauses, "state = ?")
		args = append(args, f.State)
	}
	where := ""
	if len(clauses) > 0 {
		where = " WHERE " + strings.Join(clauses, " AND ")
	}

	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM payments"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count: %w", err)
	}

	if f.Limit <= 0 {
		f.Limit = 50
	}
	if f.Page <= 0 {
		f.Page = 1
	}
	args = append(args, f.Limit, (f.Page-1)*f.Limit)

	rows, err := r.db.Query(selectPayment+where+" ORDER BY created_at DESC LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, 0, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows.Scan)
		if err != nil {
			return nil, 0, fmt.Errorf("scan: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, total, rows.Err()
}

// MarkProcessing records a successful bulk submission: created -> processing
// plus the processor correlation id.
func (r *PaymentRepo) MarkProcessing(id, processorTxnID string) error {
	_, err := r.db.Exec(
		`UPDATE payments SET state = 'processing', processor_txn_id = ?, updated_at = ?
		 WHERE id = ? AND state = 'created'`,
		nullableString(processorTxnID), time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return nil
}

// RevertRejected handles an outright processor rejection: the payment goes
// to failed and its balances return to the payable pool, so nothing from
// the attempt keeps blocking the payee.
func (r *PaymentRepo) RevertRejected(id string, reason domain.ReasonCode) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`UPDATE payments SET state = 'failed', failure_reason = ?, updated_at = ?
		 WHERE id = ? AND state IN ('created','processing')`,
		string(reason), time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("revert payment: %w", err)
	}

	_, err = tx.Exec(
		`UPDATE balances SET state = 'unpaid', payment_id = NULL
		 WHERE payment_id = ? AND state = 'processing'`,
		id,
	)
	if err != nil {
		return fmt.Errorf("release balances: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// TransitionAndCascade applies one guarded state transition and its balance
// cascade atomically. The update only fires while the payment is in one of
// the from states, which makes duplicate and out-of-order confirmation
// events safe: a terminal state never regresses, and reapplying an already
// applied event changes nothing. Returns whether the transition fired.
func (r *PaymentRepo) TransitionAndCascade(
	id string,
	from []domain.PaymentState,
	to domain.PaymentState,
	processorTxnID string,
	processorFeeCents int64,
	reason domain.ReasonCode,
) (bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`UPDATE payments SET
			state = ?,
			processor_txn_id = COALESCE(NULLIF(?, ''), processor_txn_id),
			processor_fee_cents = CASE WHEN ? != 0 THEN ? ELSE processor_fee_cents END,
			failure_reason = CASE WHEN ? != '' THEN ? ELSE failure_reason END,
			updated_at = ?
		 WHERE id = ? AND state IN (`+statePlaceholders(len(from))+`)`,
		append([]any{
			string(to),
			processorTxnID,
			processorFeeCents, processorFeeCents,
			string(reason), string(reason),
			time.Now().UTC().Format(time.RFC3339),
			id,
		}, stateArgs(from)...)...,
	)
	if err != nil {
		return false, fmt.Errorf("transition payment: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return false, tx.Commit()
	}

	if err := cascadeBalances(tx, id, to); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit: %w", err)
	}
	return true, nil
}

// InitSplit flips the payment into split mode, sets it processing and
// records one sub-transfer row per ordinal.
func (r *PaymentRepo) InitSplit(id string, transfers []domain.SplitTransfer) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`UPDATE payments SET split_mode = 1, state = 'processing', updated_at = ?
		 WHERE id = ? AND state IN ('created','processing')`,
		time.Now().UTC().Format(time.RFC3339), id,
	)
	if err != nil {
		return fmt.Errorf("set split mode: %w", err)
	}

	for _, st := range transfers {
		_, err := tx.Exec(
			`INSERT INTO split_transfers
			(payment_id, ordinal, amount_cents, state, processor_txn_id, processor_fee_cents, last_error)
			VALUES (?,?,?,?,?,?,?)`,
			id, st.Ordinal, st.AmountCents, string(st.State),
			nullableString(st.ProcessorTxnID), st.ProcessorFeeCents, st.LastError,
		)
		if err != nil {
			return fmt.Errorf("insert split transfer %d: %w", st.Ordinal, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// SetSplitTxnID records the processor correlation id for one sub-transfer
// after its individual submission succeeded.
func (r *PaymentRepo) SetSplitTxnID(paymentID string, ordinal int, txnID string) error {
	_, err := r.db.Exec(
		"UPDATE split_transfers SET processor_txn_id = ? WHERE payment_id = ? AND ordinal = ?",
		nullableString(txnID), paymentID, ordinal,
	)
	if err != nil {
		return fmt.Errorf("set split txn id: %w", err)
	}
	return nil
}

// SetSplitError records a submission error on one sub-transfer without
// touching its siblings.
func (r *PaymentRepo) SetSplitError(paymentID string, ordinal int, msg string) error {
	_, err := r.db.Exec(
		"UPDATE split_transfers SET last_error = ? WHERE payment_id = ? AND ordinal = ?",
		msg, paymentID, ordinal,
	)
	if err != nil {
		return fmt.Errorf("set split error: %w", err)
	}
	return nil
}

// TransitionSplitTransfer applies one guarded transition to a sub-transfer.
// Same monotonicity rules as the payment-level transition.
func (r *PaymentRepo) TransitionSplitTransfer(
	paymentID string,
	ordinal int,
	from []domain.PaymentState,
	to domain.PaymentState,
	processorTxnID string,
	processorFeeCents int64,
	lastError string,
) (bool, error) {
	res, err := r.db.Exec(
		`UPDATE split_transfers SET
			state = ?,
			processor_txn_id = COALESCE(NULLIF(?, ''), processor_txn_id),
			processor_fee_cents = CASE WHEN ? != 0 THEN ? ELSE processor_fee_cents END,
			last_error = CASE WHEN ? != '' THEN ? ELSE last_error END
		 WHERE payment_id = ? AND ordinal = ? AND state IN (`+statePlaceholders(len(from))+`)`,
		append([]any{
			string(to),
			processorTxnID,
			processorFeeCents, processorFeeCents,
			lastError, lastError,
			paymentID, ordinal,
		}, stateArgs(from)...)...,
	)
	if err != nil {
		return false, fmt.Errorf("transition split transfer: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// FinalizeSplit reduces the sub-transfer states onto the parent. If every
// sub-transfer reached the same terminal state the parent takes it, the
// processor fees are summed onto the parent, and the balance cascade runs.
// Mixed or unresolved sub-transfers leave the parent processing. Returns
// the parent state after the call and whether it changed.
func (r *PaymentRepo) FinalizeSplit(paymentID string) (domain.PaymentState, bool, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return "", false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var current string
	if err := tx.QueryRow("SELECT state FROM payments WHERE id = ?", paymentID).Scan(&current); err != nil {
		return "", false, fmt.Errorf("load payment: %w", err)
	}
	state := domain.PaymentState(current)
	if state.Terminal() {
		return state, false, tx.Commit()
	}

	transfers, err := r.listSplitTransfers(tx, paymentID)
	if err != nil {
		return "", false, err
	}

	reduced := domain.ReduceSplitStates(transfers)
	if !reduced.Terminal() {
		return state, false, tx.Commit()
	}

	var totalFee int64
	for _, st := range transfers {
		totalFee += st.ProcessorFeeCents
	}

	reason := domain.ReasonNone
	if reduced != domain.PaymentCompleted {
		reason = splitFailureReason(transfers)
	}

	_, err = tx.Exec(
		"UPDATE payments SET state = ?, processor_fee_cents = ?, failure_reason = ?, updated_at = ? WHERE id = ?",
		string(reduced), totalFee, string(reason), time.Now().UTC().Format(time.RFC3339), paymentID,
	)
	if err != nil {
		return "", false, fmt.Errorf("finalize parent: %w", err)
	}

	if err := cascadeBalances(tx, paymentID, reduced); err != nil {
		return "", false, err
	}

	if err := tx.Commit(); err != nil {
		return "", false, fmt.Errorf("commit: %w", err)
	}
	return reduced, true, nil
}

// splitFailureReason picks the classified reason off the terminal
// sub-transfers. Chunk errors are stored as reason labels, so the first
// non-empty one carries the shared outcome.
func splitFailureReason(transfers []domain.SplitTransfer) domain.ReasonCode {
	for _, st := range transfers {
		if st.LastError != "" {
			return domain.ReasonFromLabel(st.LastError)
		}
	}
	return domain.ReasonNone
}

// PendingProbe identifies a transfer stuck in processing that the
// reconciliation poller should look up against the processor.
type PendingProbe struct {
	PaymentID      string
	Ordinal        int // 0 for non-split payments
	ProcessorTxnID string
	AmountCents    int64
	PayoutAddress  string
	Currency       string
}

// ListPendingProbes returns transfers that have been processing since
// before the cutoff. Submissions with unknown outcomes stay processing
// until this path resolves them.
func (r *PaymentRepo) ListPendingProbes(olderThan time.Time) ([]PendingProbe, error) {
	cutoff := olderThan.UTC().Format(time.RFC3339)

	rows, err := r.db.Query(
		`SELECT id, COALESCE(processor_txn_id, ''), amount_cents, payout_address, currency
		 FROM payments
		 WHERE state = 'processing' AND split_mode = 0 AND updated_at < ?`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending payments: %w", err)
	}
	defer rows.Close()

	var probes []PendingProbe
	for rows.Next() {
		var p PendingProbe
		if err := rows.Scan(&p.PaymentID, &p.ProcessorTxnID, &p.AmountCents, &p.PayoutAddress, &p.Currency); err != nil {
			return nil, fmt.Errorf("scan pending payment: %w", err)
		}
		probes = append(probes, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	splitRows, err := r.db.Query(
		`SELECT st.payment_id, st.ordinal, COALESCE(st.processor_txn_id, ''), st.amount_cents,
		        p.payout_address, p.currency
		 FROM split_transfers st
		 JOIN payments p ON p.id = st.payment_id
		 WHERE st.state = 'processing' AND p.state = 'processing' AND p.updated_at < ?`,
		cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("query pending split transfers: %w", err)
	}
	defer splitRows.Close()

	for splitRows.Next() {
		var p PendingProbe
		if err := splitRows.Scan(&p.PaymentID, &p.Ordinal, &p.ProcessorTxnID, &p.AmountCents, &p.PayoutAddress, &p.Currency); err != nil {
			return nil, fmt.Errorf("scan pending split transfer: %w", err)
		}
		probes = append(probes, p)
	}
	return probes, splitRows.Err()
}

// SplitSumMismatch flags a split payment whose sub-transfer amounts do not
// add up to the payment amount.
type SplitSumMismatch struct {
	PaymentID     string `json:"payment_id"`
	AmountCents   int64  `json:"amount_cents"`
	SplitSumCents int64  `json:"split_sum_cents"`
}

// ListSplitSumMismatches returns split payments violating amount
// conservation across their sub-transfers.
func (r *PaymentRepo) ListSplitSumMismatches() ([]SplitSumMismatch, error) {
	rows, err := r.db.Query(`
		SELECT p.id, p.amount_cents, COALESCE(SUM(st.amount_cents), 0)
		FROM payments p
		LEFT JOIN split_transfers st ON st.payment_id = p.id
		WHERE p.split_mode = 1
		GROUP BY p.id, p.amount_cents
		HAVING COALESCE(SUM(st.amount_cents), 0) != p.amount_cents`)
	if err != nil {
		return nil, fmt.Errorf("query split sums: %w", err)
	}
	defer rows.Close()

	var mismatches []SplitSumMismatch
	for rows.Next() {
		var m SplitSumMismatch
		if err := rows.Scan(&m.PaymentID, &m.AmountCents, &m.SplitSumCents); err != nil {
			return nil, fmt.Errorf("scan split sum: %w", err)
		}
		mismatches = append(mismatches, m)
	}
	return mismatches, rows.Err()
}

// ListStuckProcessing returns payments that have sat in processing since
// before the cutoff, oldest first.
func (r *PaymentRepo) ListStuckProcessing(olderThan time.Time) ([]domain.Payment, error) {
	rows, err := r.db.Query(
		selectPayment+` WHERE state = 'processing' AND updated_at < ? ORDER BY updated_at`,
		olderThan.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("query stuck payments: %w", err)
	}
	defer rows.Close()

	var payments []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan stuck payment: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

// PaymentStats holds aggregate payment figures for the dashboard.
type PaymentStats struct {
	Total            int   `json:"total"`
	Processing       int   `json:"processing"`
	Completed        int   `json:"completed"`
	Failed           int   `json:"failed"`
	Unclaimed        int   `json:"unclaimed"`
	CompletedCents   int64 `json:"completed_cents"`
	InFlightCents    int64 `json:"in_flight_cents"`
	PlatformFeeCents int64 `json:"platform_fee_cents"`
}

func (r *PaymentRepo) GetStats() (*PaymentStats, error) {
	s := &PaymentStats{}
	err := r.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN state='processing' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state='completed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state IN ('failed','reversed','returned') THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state='unclaimed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state='completed' THEN amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state IN ('created','processing','unclaimed') THEN amount_cents ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN state='completed' THEN platform_fee_cents ELSE 0 END), 0)
		FROM payments
	`).Scan(&s.Total, &s.Processing, &s.Completed, &s.Failed, &s.Unclaimed,
		&s.CompletedCents, &s.InFlightCents, &s.PlatformFeeCents)
	return s, err
}

// --- helpers ---

const selectPayment = `SELECT id, payee_id, gross_cents, amount_cents, platform_fee_cents,
	processor_fee_cents, currency, state, payout_address, processor_txn_id, split_mode,
	failure_reason, created_at, updated_at FROM payments`

type querier interface {
	Query(query string, args ...any) (*sql.Rows, error)
}

func (r *PaymentRepo) listSplitTransfers(q querier, paymentID string) ([]domain.SplitTransfer, error) {
	rows, err := q.Query(
		`SELECT payment_id, ordinal, amount_cents, state, processor_txn_id, processor_fee_cents, last_error
		 FROM split_transfers WHERE payment_id = ? ORDER BY ordinal`,
		paymentID,
	)
	if err != nil {
		return nil, fmt.Errorf("query split transfers: %w", err)
	}
	defer rows.Close()

	var transfers []domain.SplitTransfer
	for rows.Next() {
		var st domain.SplitTransfer
		var state string
		var txnID sql.NullString
		if err := rows.Scan(&st.PaymentID, &st.Ordinal, &st.AmountCents, &state, &txnID, &st.ProcessorFeeCents, &st.LastError); err != nil {
			return nil, fmt.Errorf("scan split transfer: %w", err)
		}
		st.State = domain.PaymentState(state)
		if txnID.Valid {
			st.ProcessorTxnID = txnID.String
		}
		transfers = append(transfers, st)
	}
	return transfers, rows.Err()
}

func cascadeBalances(tx *sql.Tx, paymentID string, to domain.PaymentState) error {
	switch to {
	case domain.PaymentCompleted:
		if _, err := tx.Exec(
			"UPDATE balances SET state = 'paid' WHERE payment_id = ? AND state = 'processing'",
			paymentID,
		); err != nil {
			return fmt.Errorf("cascade balances paid: %w", err)
		}
	case domain.PaymentFailed, domain.PaymentReversed, domain.PaymentReturned:
		if _, err := tx.Exec(
			"UPDATE balances SET state = 'unpaid', payment_id = NULL WHERE payment_id = ? AND state = 'processing'",
			paymentID,
		); err != nil {
			return fmt.Errorf("cascade balances unpaid: %w", err)
		}
	}
	// Unclaimed and processing leave balances where they are: the money is
	// in limbo, not yet returned to the payable pool.
	return nil
}

func statePlaceholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stateArgs(states []domain.PaymentState) []any {
	args := make([]any, len(states))
	for i, s := range states {
		args[i] = string(s)
	}
	return args
}

func scanPayment(scan func(...any) error) (*domain.Payment, error) {
	var p domain.Payment
	var state, reason, createdAt, updatedAt string
	var txnID sql.NullString
	var splitMode int

	err := scan(
		&p.ID, &p.PayeeID, &p.GrossCents, &p.AmountCents, &p.PlatformFeeCents,
		&p.ProcessorFeeCents, &p.Currency, &state, &p.PayoutAddress, &txnID, &splitMode,
		&reason, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.State = domain.PaymentState(state)
	p.FailureReason = domain.ReasonCode(reason)
	p.SplitMode = splitMode != 0
	if txnID.Valid {
		p.ProcessorTxnID = txnID.String
	}
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if p.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &p, nil
}
