// Package payouts aggregates a payee's unpaid balances into payments.
package payouts

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zandy2test/gumroad-sub033/internal/currency"
	"github.com/zandy2test/gumroad-sub033/internal/domain"
	"github.com/zandy2test/gumroad-sub033/internal/eligibility"
	"github.com/zandy2test/gumroad-sub033/internal/repository"
)

// Service is the payment aggregator: it selects eligible balances as of a
// cutoff date, folds them into one payment per payee and claims them
// atomically.
type Service struct {
	payees         *repository.PayeeRepo
	balances       *repository.BalanceRepo
	payments       *repository.PaymentRepo
	evaluator      *eligibility.Evaluator
	feeBasisPoints int64
}

func NewService(
	payees *repository.PayeeRepo,
	balances *repository.BalanceRepo,
	payments *repository.PaymentRepo,
	evaluator *eligibility.Evaluator,
	feeBasisPoints int64,
) *Service {
	return &Service{
		payees:         payees,
		balances:       balances,
		payments:       payments,
		evaluator:      evaluator,
		feeBasisPoints: feeBasisPoints,
	}
}

// PreparePayment aggregates the payee's unpaid balances earned on or before
// the cutoff into one payment in created state, claiming every balance in
// the same transaction. Validation failures create no state at all.
func (s *Service) PreparePayment(payeeID string, cutoff time.Time) (*domain.Payment, error) {
	payee, err := s.payees.GetByID(payeeID)
	if err != nil {
		return nil, fmt.Errorf("load payee: %w", err)
	}

	balances, err := s.balances.ListUnpaidUpTo(payeeID, cutoff)
	if err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}
	if len(balances) == 0 {
		return nil, domain.ErrNoEligibleBalances
	}

	code := balances[0].Currency
	if !currency.Supported(code) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedCurrency, code)
	}

	var gross, fee int64
	balanceIDs := make([]string, len(balances))
	for i, b := range balances {
		if b.Currency != code {
			return nil, fmt.Errorf("%w: %s vs %s", domain.ErrCurrencyMismatch, code, b.Currency)
		}
		gross += b.AmountCents
		fee += FeeCents(b.AmountCents, s.feeBasisPoints)
		balanceIDs[i] = b.ID
	}

	// Clawbacks can drag the payable total to zero or below; nothing to pay.
	if gross-fee <= 0 {
		return nil, domain.ErrNoEligibleBalances
	}

	payment := &domain.Payment{
		PayeeID:          payee.ID,
		GrossCents:       gross,
		AmountCents:      gross - fee,
		PlatformFeeCents: fee,
		Currency:         code,
		State:            domain.PaymentCreated,
		PayoutAddress:    payee.PayoutAddress,
	}

	if err := s.payments.CreateWithClaim(payment, balanceIDs); err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	slog.Info("payment created",
		"payment_id", payment.ID,
		"payee_id", payee.ID,
		"gross_cents", gross,
		"amount_cents", payment.AmountCents,
		"platform_fee_cents", fee,
		"balances", len(balances),
	)
	return payment, nil
}

// CreatePaymentsUpToDate aggregates balances for every given payee. Payees
// that are not payable, or have nothing to pay, are skipped with a log
// entry; one payee's failure never aborts the run.
func (s *Service) CreatePaymentsUpToDate(cutoff time.Time, payeeIDs []string) ([]domain.Payment, error) {
	var payments []domain.Payment
	for _, payeeID := range payeeIDs {
		payee, err := s.payees.GetByID(payeeID)
		if err != nil {
			slog.Warn("skipping unknown payee", "payee_id", payeeID, "error", err)
			continue
		}

		payable, reason, err := s.evaluator.IsPayable(payee, cutoff, eligibility.Options{RecordNote: true})
		if err != nil {
			slog.Warn("payability check failed", "payee_id", payeeID, "error", err)
			continue
		}
		if !payable {
			slog.Debug("payee not payable", "payee_id", payeeID, "reason", string(reason))
			continue
		}

		payment, err := s.PreparePayment(payeeID, cutoff)
		if err != nil {
			if errors.Is(err, domain.ErrNoEligibleBalances) {
				continue
			}
			slog.Warn("failed to prepare payment", "payee_id", payeeID, "error", err)
			continue
		}
		payments = append(payments, *payment)
	}
	return payments, nil
}
