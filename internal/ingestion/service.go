// Package ingestion imports earnings reports into the balance ledger.
package ingestion

import (
	"fmt"
	"log/slog"

	"github.com/zandy2test/gumroad-sub033/internal/currency"
	"github.com/zandy2test/gumroad-sub033/internal/repository"
)

// IngestResult is returned from a successful ingestion.
type IngestResult struct {
	ReportID          string `json:"report_id"`
	RecordsIngested   int    `json:"records_ingested"`
	DuplicatesSkipped int    `json:"duplicates_skipped"`
	EntriesRejected   int    `json:"entries_rejected"`
}

// Service handles ingestion of earnings reports from the commerce platform.
type Service struct {
	payeeRepo   *repository.PayeeRepo
	balanceRepo *repository.BalanceRepo
}

// NewService creates a new ingestion service.
func NewService(payeeRepo *repository.PayeeRepo, balanceRepo *repository.BalanceRepo) *Service {
	return &Service{payeeRepo: payeeRepo, balanceRepo: balanceRepo}
}

// IngestReport parses an earnings report and stores its balances. Entries
// referencing unknown payees or unsupported currencies are rejected
// individually; ingesting the same report twice inserts nothing the second
// time because balance ids are derived from the report.
func (s *Service) IngestReport(data []byte) (*IngestResult, error) {
	balances, reportID, err := ParseEarningsJSON(data)
	if err != nil {
		return nil, fmt.Errorf("parse report: %w", err)
	}

	accepted := balances[:0]
	rejected := 0
	for _, b := range balances {
		if !currency.Supported(b.Currency) {
			slog.Warn("rejecting earnings entry, unsupported currency",
				"report_id", reportID, "balance_id", b.ID, "currency", b.Currency)
			rejected++
			continue
		}
		if _, err := s.payeeRepo.GetByID(b.PayeeID); err != nil {
			slog.Warn("rejecting earnings entry, unknown payee",
				"report_id", reportID, "balance_id", b.ID, "payee_id", b.PayeeID)
			rejected++
			continue
		}
		accepted = append(accepted, b)
	}

	inserted, err := s.balanceRepo.BulkInsert(accepted)
	if err != nil {
		return nil, fmt.Errorf("insert balances: %w", err)
	}

	slog.Info("earnings report ingested",
		"report_id", reportID,
		"entries", len(balances),
		"inserted", inserted,
		"duplicates", len(accepted)-inserted,
		"rejected", rejected,
	)

	return &IngestResult{
		ReportID:          reportID,
		RecordsIngested:   inserted,
		DuplicatesSkipped: len(accepted) - inserted,
		EntriesRejected:   rejected,
	}, nil
}
