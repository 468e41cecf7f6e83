// Package eligibility gates which payees may receive a payout.
package eligibility

import (
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/zandy2test/gumroad-sub033/internal/domain"
	"github.com/zandy2test/gumroad-sub033/internal/repository"
)

// Reason explains why a payee is not payable.
type Reason string

const (
	ReasonPayable            Reason = ""
	ReasonNoDestination      Reason = "no_payout_destination"
	ReasonInvalidDestination Reason = "invalid_payout_destination"
	ReasonPaymentInFlight    Reason = "payment_in_flight"
	ReasonCooldown           Reason = "payout_cooldown"
)

// destinationPattern is the transport's accepted character set for payout
// addresses. Anything outside it fails closed.
var destinationPattern = regexp.MustCompile(`^[A-Za-z0-9@._+-]+$`)

// Evaluator decides whether a payee is currently payable.
type Evaluator struct {
	payees   *repository.PayeeRepo
	payments *repository.PaymentRepo
	cooldown time.Duration
}

func NewEvaluator(payees *repository.PayeeRepo, payments *repository.PaymentRepo, cooldown time.Duration) *Evaluator {
	return &Evaluator{payees: payees, payments: payments, cooldown: cooldown}
}

// Options controls side effects of an eligibility check. Note recording is
// opt-in so bulk scans do not spam the payee audit log.
type Options struct {
	RecordNote bool
}

// IsPayable reports whether the payee can receive a payout as of the given
// date. It fails closed: missing or malformed destinations, an unresolved
// in-flight payment, or a recent completed payout all block.
func (e *Evaluator) IsPayable(payee *domain.Payee, asOf time.Time, opts Options) (bool, Reason, error) {
	reason, detail, err := e.evaluate(payee, asOf)
	if err != nil {
		return false, "", err
	}
	if reason == ReasonPayable {
		return true, ReasonPayable, nil
	}

	if opts.RecordNote {
		note := skipNote(payee, asOf, reason, detail)
		if err := e.payees.AddNote(payee.ID, note); err != nil {
			slog.Warn("failed to record payability note", "payee_id", payee.ID, "error", err)
		}
	}
	return false, reason, nil
}

func (e *Evaluator) evaluate(payee *domain.Payee, asOf time.Time) (Reason, string, error) {
	if payee.PayoutAddress == "" {
		return ReasonNoDestination, "", nil
	}
	if !destinationPattern.MatchString(payee.PayoutAddress) {
		return ReasonInvalidDestination, "", nil
	}

	active, err := e.payments.GetActiveByPayee(payee.ID)
	if err != nil {
		return "", "", fmt.Errorf("check in-flight payment: %w", err)
	}
	if active != nil {
		detail := fmt.Sprintf("payment %s", active.ID)
		if active.ProcessorTxnID != "" {
			detail += fmt.Sprintf(" (processor txn %s)", active.ProcessorTxnID)
		}
		return ReasonPaymentInFlight, detail, nil
	}

	last, err := e.payments.LastCompletedAt(payee.ID)
	if err != nil {
		return "", "", fmt.Errorf("check last payout: %w", err)
	}
	if last != nil && asOf.Sub(*last) < e.cooldown {
		return ReasonCooldown, last.Format("2006-01-02"), nil
	}

	return ReasonPayable, "", nil
}

// skipNote renders the human-readable audit string. The structured Reason
// is primary; this string is derived from it.
func skipNote(payee *domain.Payee, asOf time.Time, reason Reason, detail string) string {
	date := asOf.Format("2006-01-02")
	switch reason {
	case ReasonNoDestination:
		return fmt.Sprintf("Payout on %s skipped: no payout destination configured.", date)
	case ReasonInvalidDestination:
		return fmt.Sprintf("Payout on %s skipped: payout destination %q contains unsupported characters.", date, payee.PayoutAddress)
	case ReasonPaymentInFlight:
		return fmt.Sprintf("Payout on %s skipped: %s is still in flight.", date, detail)
	case ReasonCooldown:
		return fmt.Sprintf("Payout on %s skipped: last payout completed on %s, within the minimum wait.", date, detail)
	}
	return fmt.Sprintf("Payout on %s skipped.", date)
}
