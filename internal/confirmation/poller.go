package confirmation

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zandy2test/gumroad-sub033/internal/domain"
	"github.com/zandy2test/gumroad-sub033/internal/metrics"
	"github.com/zandy2test/gumroad-sub033/internal/processor"
	"github.com/zandy2test/gumroad-sub033/internal/repository"
)

// TransactionSearcher is the slice of the processor API the poller needs.
type TransactionSearcher interface {
	SearchTransaction(ctx context.Context, q processor.SearchQuery) (*processor.TransactionInfo, error)
}

// Poller resolves transfers stuck in processing: submissions whose outcome
// was unknown (transport timeout) and Pending confirmations that never got
// a follow-up. It asks the processor's transaction-search endpoint and
// feeds any answer through the normal confirmation handler.
type Poller struct {
	payments *repository.PaymentRepo
	handler  *Handler
	search   TransactionSearcher
	interval time.Duration
	workers  int
}

func NewPoller(
	payments *repository.PaymentRepo,
	handler *Handler,
	search TransactionSearcher,
	interval time.Duration,
	workers int,
) *Poller {
	if workers < 1 {
		workers = 1
	}
	return &Poller{
		payments: payments,
		handler:  handler,
		search:   search,
		interval: interval,
		workers:  workers,
	}
}

// Run polls until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := p.PollOnce(ctx); err != nil {
				slog.Error("pending poll failed", "error", err)
			} else if n > 0 {
				slog.Info("pending poll finished", "probes", n)
			}
		}
	}
}

// PollOnce looks up every transfer that has been processing for longer
// than one poll interval. Lookups run concurrently but bounded; a single
// lookup failure is logged and skipped, never fatal.
func (p *Poller) PollOnce(ctx context.Context) (int, error) {
	probes, err := p.payments.ListPendingProbes(time.Now().Add(-p.interval))
	if err != nil {
		return 0, fmt.Errorf("list pending probes: %w", err)
	}
	if len(probes) == 0 {
		return 0, nil
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workers)
	for _, probe := range probes {
		probe := probe
		g.Go(func() error {
			p.resolve(ctx, probe)
			return nil
		})
	}
	_ = g.Wait()
	return len(probes), nil
}

func (p *Poller) resolve(ctx context.Context, probe repository.PendingProbe) {
	metrics.PendingProbes.Inc()

	q := processor.SearchQuery{TxnID: probe.ProcessorTxnID}
	if q.TxnID == "" {
		// Submission never got a correlation id; search by shape instead.
		q = processor.SearchQuery{
			AmountCents: probe.AmountCents,
			Destination: probe.PayoutAddress,
			From:        time.Now().Add(-30 * 24 * time.Hour),
			To:          time.Now(),
		}
	}

	info, err := p.search.SearchTransaction(ctx, q)
	if err != nil {
		slog.Warn("pending probe lookup failed",
			"payment_id", probe.PaymentID,
			"ordinal", probe.Ordinal,
			"error", err,
		)
		return
	}
	if info == nil {
		return
	}

	uniqueID := probe.PaymentID
	if probe.Ordinal > 0 {
		uniqueID = fmt.Sprintf("%s-%d", probe.PaymentID, probe.Ordinal)
	}

	ev := domain.ConfirmationEvent{
		ReceiverAddress:   info.ReceiverAddress,
		TransferTxnID:     info.TxnID,
		Status:            domain.DeliveryStatus(info.Status),
		UniqueID:          uniqueID,
		ProcessorFeeCents: info.FeeCents,
		ReasonCode:        domain.ClassifyReason(info.ReasonCode),
	}

	if err := p.handler.HandleEvent(ev); err != nil {
		slog.Warn("pending probe event dropped",
			"payment_id", probe.PaymentID,
			"ordinal", probe.Ordinal,
			"error", err,
		)
	}
}
