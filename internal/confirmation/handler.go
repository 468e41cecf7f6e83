package confirmation

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/zandy2test/gumroad-sub033/internal/domain"
	"github.com/zandy2test/gumroad-sub033/internal/metrics"
	"github.com/zandy2test/gumroad-sub033/internal/repository"
)

// Handler applies confirmation events to payment and balance state. All
// transitions are guarded in the repository, so duplicate events reapply as
// no-ops, out-of-order events never regress a terminal state, and fees are
// never double-counted.
type Handler struct {
	payments *repository.PaymentRepo
}

func NewHandler(payments *repository.PaymentRepo) *Handler {
	return &Handler{payments: payments}
}

// HandleBatch applies each event in order, dropping bad ones with a log
// entry. Events from the processor are never fatal.
func (h *Handler) HandleBatch(events []domain.ConfirmationEvent) {
	for _, ev := range events {
		if err := h.HandleEvent(ev); err != nil {
			slog.Warn("dropping confirmation event",
				"unique_id", ev.UniqueID,
				"status", string(ev.Status),
				"error", err,
			)
			metrics.EventsDropped.Inc()
		}
	}
}

// HandleEvent routes one event to the payment or sub-transfer it targets
// and applies the state transition. Events referencing unknown transfers
// return domain.ErrUnknownTransfer; processor callbacks may reference stale
// or test data, so callers log and drop.
func (h *Handler) HandleEvent(ev domain.ConfirmationEvent) error {
	target, ok := ev.Status.PaymentState()
	if !ok {
		return fmt.Errorf("unrecognised status %q", string(ev.Status))
	}

	// Plain payment id first; fall back to the composite split form.
	p, err := h.payments.GetByID(ev.UniqueID)
	if err == nil {
		if p.SplitMode {
			return fmt.Errorf("%w: %s targets a split payment without an ordinal", domain.ErrUnknownTransfer, ev.UniqueID)
		}
		return h.applyToPayment(p, ev, target)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("load payment: %w", err)
	}

	paymentID, ordinal, ok := splitUniqueID(ev.UniqueID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownTransfer, ev.UniqueID)
	}
	p, err = h.payments.GetByID(paymentID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", domain.ErrUnknownTransfer, ev.UniqueID)
	}
	if err != nil {
		return fmt.Errorf("load payment: %w", err)
	}
	if !p.SplitMode || ordinal > len(p.SplitTransfers) {
		return fmt.Errorf("%w: %s has no sub-transfer %d", domain.ErrUnknownTransfer, paymentID, ordinal)
	}
	return h.applyToSplitTransfer(p, ordinal, ev, target)
}

func (h *Handler) applyToPayment(p *domain.Payment, ev domain.ConfirmationEvent, target domain.PaymentState) error {
	from := allowedFrom(target)

	var reason domain.ReasonCode
	if target == domain.PaymentFailed {
		reason = failureReason(ev)
	}

	applied, err := h.payments.TransitionAndCascade(p.ID, from, target, ev.TransferTxnID, ev.ProcessorFeeCents, reason)
	if err != nil {
		return fmt.Errorf("apply transition: %w", err)
	}

	metrics.ConfirmationEvents.WithLabelValues(string(ev.Status)).Inc()
	if applied {
		slog.Info("payment transitioned",
			"payment_id", p.ID,
			"status", string(ev.Status),
			"state", string(target),
		)
	} else {
		slog.Debug("confirmation event was a no-op", "payment_id", p.ID, "status", string(ev.Status))
	}
	return nil
}

func (h *Handler) applyToSplitTransfer(p *domain.Payment, ordinal int, ev domain.ConfirmationEvent, target domain.PaymentState) error {
	from := allowedFrom(target)

	var lastError string
	if target == domain.PaymentFailed {
		lastError = string(failureReason(ev))
	}

	applied, err := h.payments.TransitionSplitTransfer(p.ID, ordinal, from, target, ev.TransferTxnID, ev.ProcessorFeeCents, lastError)
	if err != nil {
		return fmt.Errorf("apply split transition: %w", err)
	}

	metrics.ConfirmationEvents.WithLabelValues(string(ev.Status)).Inc()
	if !applied {
		slog.Debug("split confirmation event was a no-op",
			"payment_id", p.ID,
			"ordinal", ordinal,
			"status", string(ev.Status),
		)
		return nil
	}

	slog.Info("split transfer transitioned",
		"payment_id", p.ID,
		"ordinal", ordinal,
		"state", string(target),
	)

	// Fold terminal sub-transfer outcomes back onto the parent.
	if target.Terminal() {
		state, changed, err := h.payments.FinalizeSplit(p.ID)
		if err != nil {
			return fmt.Errorf("finalize split: %w", err)
		}
		if changed {
			slog.Info("split payment resolved", "payment_id", p.ID, "state", string(state))
		}
	}
	return nil
}

// allowedFrom returns the states an event targeting the given state may
// fire from. Terminal states are never a source: once reached, nothing
// moves a transfer off them. Unclaimed may only progress to completed or
// returned.
func allowedFrom(target domain.PaymentState) []domain.PaymentState {
	switch target {
	case domain.PaymentCompleted, domain.PaymentReturned:
		return []domain.PaymentState{domain.PaymentCreated, domain.PaymentProcessing, domain.PaymentUnclaimed}
	case domain.PaymentFailed, domain.PaymentReversed, domain.PaymentUnclaimed:
		return []domain.PaymentState{domain.PaymentCreated, domain.PaymentProcessing}
	case domain.PaymentProcessing:
		// A late Pending only moves a payment that has not progressed yet.
		return []domain.PaymentState{domain.PaymentCreated}
	}
	return nil
}

func failureReason(ev domain.ConfirmationEvent) domain.ReasonCode {
	if ev.ReasonCode != domain.ReasonNone {
		return ev.ReasonCode
	}
	return domain.ReasonUnclassified
}

// splitUniqueID parses the composite "{payment_id}-{ordinal}" form. The
// ordinal is a small decimal suffix after the final hyphen.
func splitUniqueID(uniqueID string) (paymentID string, ordinal int, ok bool) {
	idx := strings.LastIndex(uniqueID, "-")
	if idx <= 0 || idx == len(uniqueID)-1 {
		return "", 0, false
	}
	suffix := uniqueID[idx+1:]
	if len(suffix) > 4 {
		return "", 0, false
	}
	n, err := strconv.Atoi(suffix)
	if err != nil || n < 1 {
		return "", 0, false
	}
	return uniqueID[:idx], n, true
}
