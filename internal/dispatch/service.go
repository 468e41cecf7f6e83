// Package dispatch partitions payout work into rate-limited batches and
// submits payments to the external processor, splitting oversized ones.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/zandy2test/gumroad-sub033/internal/domain"
	"github.com/zandy2test/gumroad-sub033/internal/eligibility"
	"github.com/zandy2test/gumroad-sub033/internal/metrics"
	"github.com/zandy2test/gumroad-sub033/internal/payouts"
	"github.com/zandy2test/gumroad-sub033/internal/processor"
	"github.com/zandy2test/gumroad-sub033/internal/repository"
)

// ProcessorClient is the slice of the processor API the dispatcher needs.
type ProcessorClient interface {
	MassPay(ctx context.Context, items []processor.PayoutItem) (*processor.MassPayAck, error)
	SendTransfer(ctx context.Context, item processor.PayoutItem) (*processor.TransferAck, error)
}

// Dispatcher submits created payments to the processor in batches.
type Dispatcher struct {
	aggregator *payouts.Service
	evaluator  *eligibility.Evaluator
	payees     *repository.PayeeRepo
	payments   *repository.PaymentRepo
	client     ProcessorClient

	batchSize              int
	batchStagger           time.Duration
	maxSingleTransferCents int64
}

func NewDispatcher(
	aggregator *payouts.Service,
	evaluator *eligibility.Evaluator,
	payees *repository.PayeeRepo,
	payments *repository.PaymentRepo,
	client ProcessorClient,
	batchSize int,
	batchStagger time.Duration,
	maxSingleTransferCents int64,
) *Dispatcher {
	return &Dispatcher{
		aggregator:             aggregator,
		evaluator:              evaluator,
		payees:                 payees,
		payments:               payments,
		client:                 client,
		batchSize:              batchSize,
		batchStagger:           batchStagger,
		maxSingleTransferCents: maxSingleTransferCents,
	}
}

// EnqueuePayments partitions the payee ids into fixed-size batches and
// schedules one dispatch unit per batch, staggered by one stagger interval
// per batch index so the processor's rate limiter is not burst. Scheduling
// is fire-and-forget; each unit aggregates and submits its slice
// independently.
func (d *Dispatcher) EnqueuePayments(payeeIDs []string, cutoff time.Time) int {
	batches := 0
	for start := 0; start < len(payeeIDs); start += d.batchSize {
		end := start + d.batchSize
		if end > len(payeeIDs) {
			end = len(payeeIDs)
		}
		batch := payeeIDs[start:end]
		delay := time.Duration(batches) * d.batchStagger

		time.AfterFunc(delay, func() {
			d.runBatch(batch, cutoff)
		})
		batches++
	}

	slog.Info("payout batches scheduled",
		"payees", len(payeeIDs),
		"batches", batches,
		"batch_size", d.batchSize,
		"stagger", d.batchStagger.String(),
	)
	return batches
}

func (d *Dispatcher) runBatch(payeeIDs []string, cutoff time.Time) {
	payments, err := d.aggregator.CreatePaymentsUpToDate(cutoff, payeeIDs)
	if err != nil {
		slog.Error("batch aggregation failed", "error", err)
		return
	}
	if len(payments) == 0 {
		return
	}
	d.ProcessPayments(context.Background(), payments)
}

// ProcessPayments partitions payments into split and non-split sets and
// submits them. Non-split payments go out together in one bulk mass-pay
// call; each split payment goes through the split coordinator on its own.
// One payment's failure never aborts the rest of the batch.
func (d *Dispatcher) ProcessPayments(ctx context.Context, payments []domain.Payment) {
	var bulk, split []domain.Payment
	for _, p := range payments {
		needsSplit, err := d.needsSplit(&p)
		if err != nil {
			slog.Warn("skipping payment, split check failed", "payment_id", p.ID, "error", err)
			metrics.DispatchFailures.Inc()
			continue
		}
		if needsSplit {
			split = append(split, p)
		} else {
			bulk = append(bulk, p)
		}
	}

	if len(bulk) > 0 {
		d.submitBulk(ctx, bulk)
	}

	for i := range split {
		p := &split[i]
		if err := d.performSplitPayment(ctx, p, d.maxSingleTransferCents); err != nil {
			slog.Warn("split payment submission failed", "payment_id", p.ID, "error", err)
			metrics.DispatchFailures.Inc()
			continue
		}
		metrics.PaymentsDispatched.Inc()
	}
}

// needsSplit decides whether a payment goes through the split coordinator:
// when its amount exceeds the global single-transfer ceiling, or when the
// payee prefers splitting and the amount exceeds their own threshold
// (clamped to the global ceiling). The threshold only triggers the split;
// chunks are always sized by the global ceiling.
func (d *Dispatcher) needsSplit(p *domain.Payment) (bool, error) {
	if p.AmountCents > d.maxSingleTransferCents {
		return true, nil
	}

	payee, err := d.payees.GetByID(p.PayeeID)
	if err != nil {
		return false, fmt.Errorf("load payee: %w", err)
	}
	if !payee.SplitPreferred {
		return false, nil
	}

	threshold := payee.SplitThresholdCents
	if threshold <= 0 || threshold > d.maxSingleTransferCents {
		threshold = d.maxSingleTransferCents
	}
	return p.AmountCents > threshold, nil
}

// submitBulk sends one mass-pay call for all non-split payments. On an
// outright rejection every payment reverts and its balances return to the
// payable pool; on a transport error the outcome is unknown, so everything
// stays processing for the reconciliation poller to resolve.
func (d *Dispatcher) submitBulk(ctx context.Context, payments []domain.Payment) {
	items := make([]processor.PayoutItem, len(payments))
	for i, p := range payments {
		items[i] = processor.PayoutItem{
			Destination: p.PayoutAddress,
			AmountCents: p.AmountCents,
			Currency:    p.Currency,
			UniqueID:    p.ID,
		}
	}

	ack, err := d.client.MassPay(ctx, items)
	if err != nil {
		var rejection *processor.RejectionError
		if errors.As(err, &rejection) {
			slog.Warn("bulk submission rejected",
				"payments", len(payments),
				"code", rejection.Code,
				"message", rejection.Message,
			)
			reason := domain.ClassifyReason(rejection.Code)
			for _, p := range payments {
				if err := d.payments.RevertRejected(p.ID, reason); err != nil {
					slog.Error("failed to revert rejected payment", "payment_id", p.ID, "error", err)
				}
			}
			metrics.DispatchFailures.Inc()
			return
		}

		// Unknown outcome: the call may have gone through. Leave the
		// payments processing and let the poller settle them.
		slog.Error("bulk submission outcome unknown", "payments", len(payments), "error", err)
		for _, p := range payments {
			if err := d.payments.MarkProcessing(p.ID, ""); err != nil {
				slog.Error("failed to mark payment processing", "payment_id", p.ID, "error", err)
			}
		}
		metrics.DispatchFailures.Inc()
		return
	}

	for _, p := range payments {
		if err := d.payments.MarkProcessing(p.ID, ack.CorrelationID); err != nil {
			slog.Error("failed to mark payment processing", "payment_id", p.ID, "error", err)
			continue
		}
		metrics.PaymentsDispatched.Inc()
	}
	slog.Info("bulk submission accepted", "payments", len(payments), "correlation_id", ack.CorrelationID)
}

// PayOne force-creates and dispatches a payout for a single payee outside
// the scheduled cadence, through the same aggregation and submission path.
func (d *Dispatcher) PayOne(ctx context.Context, payeeID string, cutoff time.Time) (*domain.Payment, error) {
	payee, err := d.payees.GetByID(payeeID)
	if err != nil {
		return nil, fmt.Errorf("load payee: %w", err)
	}

	payable, reason, err := d.evaluator.IsPayable(payee, cutoff, eligibility.Options{RecordNote: true})
	if err != nil {
		return nil, fmt.Errorf("payability check: %w", err)
	}
	if !payable {
		return nil, fmt.Errorf("payee %s is not payable: %s", payeeID, reason)
	}

	payment, err := d.aggregator.PreparePayment(payeeID, cutoff)
	if err != nil {
		return nil, err
	}

	d.ProcessPayments(ctx, []domain.Payment{*payment})
	return d.payments.GetByID(payment.ID)
}
