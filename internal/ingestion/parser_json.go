package ingestion

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zandy2test/gumroad-sub033/internal/currency"
	"github.com/zandy2test/gumroad-sub033/internal/domain"
)

// earningsFile is the top-level JSON structure of an earnings report.
type earningsFile struct {
	ReportID   string          `json:"report_id"`
	ReportDate string          `json:"report_date"`
	Entries    []earningsEntry `json:"entries"`
}

type earningsEntry struct {
	Ref          string `json:"ref"`
	PayeeID      string `json:"payee_id"`
	Amount       string `json:"amount"`
	Currency     string `json:"currency"`
	EarningsDate string `json:"earnings_date"`
}

// ParseEarningsJSON parses an earnings report into balances. Balance ids
// are derived from the report id and entry ref, so re-ingesting the same
// report produces the same ids and deduplicates at insert time. Amounts
// may be negative: clawbacks arrive as negative entries.
func ParseEarningsJSON(data []byte) ([]domain.Balance, string, error) {
	var file earningsFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, "", fmt.Errorf("unmarshal: %w", err)
	}
	if file.ReportID == "" {
		return nil, "", fmt.Errorf("report_id is required")
	}

	var balances []domain.Balance
	for i, entry := range file.Entries {
		if entry.PayeeID == "" {
			return nil, "", fmt.Errorf("entry %d: payee_id is required", i)
		}

		earnedAt, err := time.Parse("2006-01-02", entry.EarningsDate)
		if err != nil {
			earnedAt, err = time.Parse(time.RFC3339, entry.EarningsDate)
			if err != nil {
				return nil, "", fmt.Errorf("entry %d date: %w", i, err)
			}
		}

		amountCents, err := currency.ParseCents(entry.Amount)
		if err != nil {
			return nil, "", fmt.Errorf("entry %d amount: %w", i, err)
		}

		ref := entry.Ref
		if ref == "" {
			ref = fmt.Sprintf("entry-%d", i)
		}

		balances = append(balances, domain.Balance{
			ID:           balanceID(file.ReportID, ref),
			PayeeID:      entry.PayeeID,
			AmountCents:  amountCents,
			Currency:     entry.Currency,
			EarningsDate: earnedAt,
			State:        domain.BalanceUnpaid,
		})
	}

	return balances, file.ReportID, nil
}

// balanceID derives a stable id from the report and entry refs.
func balanceID(reportID, ref string) string {
	sum := sha256.Sum256([]byte(reportID + "|" + ref))
	return fmt.Sprintf("bal-%x", sum[:12])
}
