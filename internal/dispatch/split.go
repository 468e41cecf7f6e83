package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/zandy2test/gumroad-sub033/internal/domain"
	"github.com/zandy2test/gumroad-sub033/internal/metrics"
	"github.com/zandy2test/gumroad-sub033/internal/processor"
)

// SplitAmounts divides an amount into the fewest transfers not exceeding
// the per-transfer ceiling: full-ceiling chunks first, the remainder last.
func SplitAmounts(totalCents, ceilingCents int64) []int64 {
	var chunks []int64
	remaining := totalCents
	for remaining > ceilingCents {
		chunks = append(chunks, ceilingCents)
		remaining -= ceilingCents
	}
	if remaining > 0 {
		chunks = append(chunks, remaining)
	}
	return chunks
}

// performSplitPayment divides an oversized payment into sub-transfers and
// submits each independently. Sub-transfer ordinals start at 1 and form the
// composite correlation id "{payment_id}-{ordinal}" so confirmation events
// route back to the right chunk. One chunk's submission error is recorded
// on that chunk; the rest are still attempted.
func (d *Dispatcher) performSplitPayment(ctx context.Context, p *domain.Payment, ceilingCents int64) error {
	chunks := SplitAmounts(p.AmountCents, ceilingCents)

	transfers := make([]domain.SplitTransfer, len(chunks))
	for i, amount := range chunks {
		transfers[i] = domain.SplitTransfer{
			PaymentID:   p.ID,
			Ordinal:     i + 1,
			AmountCents: amount,
			State:       domain.PaymentProcessing,
		}
	}
	if err := d.payments.InitSplit(p.ID, transfers); err != nil {
		return fmt.Errorf("init split: %w", err)
	}

	slog.Info("split payment initialised",
		"payment_id", p.ID,
		"amount_cents", p.AmountCents,
		"transfers", len(chunks),
	)

	for i, amount := range chunks {
		ordinal := i + 1
		item := processor.PayoutItem{
			Destination: p.PayoutAddress,
			AmountCents: amount,
			Currency:    p.Currency,
			UniqueID:    fmt.Sprintf("%s-%d", p.ID, ordinal),
		}

		ack, err := d.client.SendTransfer(ctx, item)
		if err != nil {
			slog.Warn("split transfer submission failed",
				"payment_id", p.ID,
				"ordinal", ordinal,
				"error", err,
			)
			if dbErr := d.payments.SetSplitError(p.ID, ordinal, err.Error()); dbErr != nil {
				slog.Error("failed to record split transfer error", "payment_id", p.ID, "ordinal", ordinal, "error", dbErr)
			}
			continue
		}

		if err := d.payments.SetSplitTxnID(p.ID, ordinal, ack.TxnID); err != nil {
			slog.Error("failed to record split txn id", "payment_id", p.ID, "ordinal", ordinal, "error", err)
		}
		metrics.SplitTransfersCreated.Inc()
	}

	return nil
}
