// Package reconciliation audits the payout ledger for invariant
// violations: payments stuck in processing, split payments whose
// sub-transfers do not conserve the amount, and balances whose state
// disagrees with their payment link.
package reconciliation

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/zandy2test/gumroad-sub033/internal/repository"
)

// Severity ranks how urgently a finding needs an operator.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Finding is one detected inconsistency.
type Finding struct {
	Type        string   `json:"type"`
	Severity    Severity `json:"severity"`
	PaymentID   string   `json:"payment_id,omitempty"`
	BalanceID   string   `json:"balance_id,omitempty"`
	Description string   `json:"description"`
}

const (
	findingStuckProcessing  = "STUCK_PROCESSING"
	findingSplitSumMismatch = "SPLIT_SUM_MISMATCH"
	findingLinkViolation    = "BALANCE_LINK_VIOLATION"
)

// AuditResult summarises one audit run.
type AuditResult struct {
	RanAt              time.Time `json:"ran_at"`
	StuckProcessing    int       `json:"stuck_processing"`
	SplitSumMismatches int       `json:"split_sum_mismatches"`
	LinkViolations     int       `json:"link_violations"`
	Findings           []Finding `json:"findings"`
}

// Service scans the ledger read-only; it never mutates state. Repair is an
// operator decision, not an automated one.
type Service struct {
	payments    *repository.PaymentRepo
	balances    *repository.BalanceRepo
	stuckWindow time.Duration
}

// NewService creates an audit service. stuckWindow is how long a payment
// may sit in processing before it is flagged.
func NewService(payments *repository.PaymentRepo, balances *repository.BalanceRepo, stuckWindow time.Duration) *Service {
	return &Service{payments: payments, balances: balances, stuckWindow: stuckWindow}
}

// RunAudit runs every detection step and returns the combined findings.
func (s *Service) RunAudit() (*AuditResult, error) {
	result := &AuditResult{RanAt: time.Now().UTC()}

	stuck, err := s.detectStuckProcessing()
	if err != nil {
		return nil, fmt.Errorf("detect stuck processing: %w", err)
	}
	result.StuckProcessing = len(stuck)
	result.Findings = append(result.Findings, stuck...)

	mismatches, err := s.detectSplitSumMismatches()
	if err != nil {
		return nil, fmt.Errorf("detect split mismatches: %w", err)
	}
	result.SplitSumMismatches = len(mismatches)
	result.Findings = append(result.Findings, mismatches...)

	violations, err := s.detectLinkViolations()
	if err != nil {
		return nil, fmt.Errorf("detect link violations: %w", err)
	}
	result.LinkViolations = len(violations)
	result.Findings = append(result.Findings, violations...)

	slog.Info("ledger audit finished",
		"stuck_processing", result.StuckProcessing,
		"split_sum_mismatches", result.SplitSumMismatches,
		"link_violations", result.LinkViolations,
	)
	return result, nil
}

// detectStuckProcessing flags payments in processing longer than the stuck
// window. The pending poller should have resolved these; still being here
// means the processor has no answer either.
func (s *Service) detectStuckProcessing() ([]Finding, error) {
	payments, err := s.payments.ListStuckProcessing(time.Now().Add(-s.stuckWindow))
	if err != nil {
		return nil, err
	}

	var findings []Finding
	for _, p := range payments {
		findings = append(findings, Finding{
			Type:      findingStuckProcessing,
			Severity:  severityByAmount(p.AmountCents),
			PaymentID: p.ID,
			Description: fmt.Sprintf(
				"payment %s (%d cents) has been processing since %s",
				p.ID, p.AmountCents, p.UpdatedAt.Format(time.RFC3339),
			),
		})
	}
	return findings, nil
}

// detectSplitSumMismatches flags split payments whose sub-transfer amounts
// do not add up to the payment amount. Splitting conserves the amount
// exactly, so any difference is corruption.
func (s *Service) detectSplitSumMismatches() ([]Finding, error) {
	mismatches, err := s.payments.ListSplitSumMismatches()
	if err != nil {
		return nil, err
	}

	var findings []Finding
	for _, m := range mismatches {
		findings = append(findings, Finding{
			Type:      findingSplitSumMismatch,
			Severity:  SeverityHigh,
			PaymentID: m.PaymentID,
			Description: fmt.Sprintf(
				"split payment %s carries %d cents but its sub-transfers sum to %d",
				m.PaymentID, m.AmountCents, m.SplitSumCents,
			),
		})
	}
	return findings, nil
}

func (s *Service) detectLinkViolations() ([]Finding, error) {
	violations, err := s.balances.ListLinkViolations()
	if err != nil {
		return nil, err
	}

	var findings []Finding
	for _, v := range violations {
		desc := fmt.Sprintf("balance %s is %s", v.BalanceID, v.BalanceState)
		if v.PaymentID == "" {
			desc += " with no payment link"
		} else {
			desc += fmt.Sprintf(" but payment %s is %s", v.PaymentID, v.PaymentState)
		}
		findings = append(findings, Finding{
			Type:        findingLinkViolation,
			Severity:    SeverityMedium,
			PaymentID:   v.PaymentID,
			BalanceID:   v.BalanceID,
			Description: desc,
		})
	}
	return findings, nil
}

func severityByAmount(amountCents int64) Severity {
	switch {
	case amountCents > 50_000:
		return SeverityHigh
	case amountCents > 10_000:
		return SeverityMedium
	default:
		return SeverityLow
	}
}
