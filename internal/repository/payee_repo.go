package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/zandy2test/gumroad-sub033/internal/domain"
)

type PayeeRepo struct {
	db *sql.DB
}

func NewPayeeRepo(db *sql.DB) *PayeeRepo {
	return &PayeeRepo{db: db}
}

func (r *PayeeRepo) Insert(p *domain.Payee) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.Exec(
		`INSERT INTO payees
		(id, name, payout_address, currency, split_preferred, split_threshold_cents, created_at)
		VALUES (?,?,?,?,?,?,?)`,
		p.ID, p.Name, p.PayoutAddress, p.Currency,
		boolToInt(p.SplitPreferred), p.SplitThresholdCents, p.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert payee: %w", err)
	}
	return nil
}

func (r *PayeeRepo) GetByID(id string) (*domain.Payee, error) {
	row := r.db.QueryRow(
		`SELECT id, name, payout_address, currency, split_preferred, split_threshold_cents, created_at
		 FROM payees WHERE id = ?`, id,
	)
	return scanPayee(row)
}

// ListIDs returns every payee id, ordered for deterministic batching.
func (r *PayeeRepo) ListIDs() ([]string, error) {
	rows, err := r.db.Query("SELECT id FROM payees ORDER BY created_at, id")
	if err != nil {
		return nil, fmt.Errorf("query payee ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan payee id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *PayeeRepo) Count() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM payees").Scan(&count)
	return count, err
}

// AddNote appends a payee-visible audit entry.
func (r *PayeeRepo) AddNote(payeeID, note string) error {
	_, err := r.db.Exec(
		"INSERT INTO payee_notes (id, payee_id, note, created_at) VALUES (?,?,?,?)",
		uuid.New().String(), payeeID, note, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert payee note: %w", err)
	}
	return nil
}

func (r *PayeeRepo) ListNotes(payeeID string) ([]domain.PayeeNote, error) {
	rows, err := r.db.Query(
		"SELECT id, payee_id, note, created_at FROM payee_notes WHERE payee_id = ? ORDER BY created_at DESC",
		payeeID,
	)
	if err != nil {
		return nil, fmt.Errorf("query payee notes: %w", err)
	}
	defer rows.Close()

	var notes []domain.PayeeNote
	for rows.Next() {
		var n domain.PayeeNote
		var createdAt string
		if err := rows.Scan(&n.ID, &n.PayeeID, &n.Note, &createdAt); err != nil {
			return nil, fmt.Errorf("scan payee note: %w", err)
		}
		if n.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parse note created_at: %w", err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// --- helpers ---

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func scanPayee(row *sql.Row) (*domain.Payee, error) {
	var p domain.Payee
	var split int
	var createdAt string
	err := row.Scan(&p.ID, &p.Name, &p.PayoutAddress, &p.Currency, &split, &p.SplitThresholdCents, &createdAt)
	if err != nil {
		return nil, err
	}
	p.SplitPreferred = split != 0
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &p, nil
}
