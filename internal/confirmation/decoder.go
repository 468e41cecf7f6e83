// Package confirmation consumes asynchronous delivery notifications from
// the payout processor and applies them to payments and balances.
package confirmation

import (
	"fmt"
	"log/slog"
	"net/url"

	"github.com/zandy2test/gumroad-sub033/internal/currency"
	"github.com/zandy2test/gumroad-sub033/internal/domain"
)

// DecodeBatch parses a flat key-value notification into typed events. The
// processor numbers each entry with a _N suffix starting at 1:
//
//	receiver_address_1, transfer_txn_id_1, status_1, unique_id_1,
//	processor_fee_1, reason_code_1, receiver_address_2, ...
//
// Malformed entries are dropped with a log entry rather than failing the
// batch; the event source is an uncontrolled external system. Returns the
// decoded events and how many entries were dropped.
func DecodeBatch(values url.Values) ([]domain.ConfirmationEvent, int) {
	var events []domain.ConfirmationEvent
	dropped := 0

	for i := 1; ; i++ {
		uniqueID := values.Get(fmt.Sprintf("unique_id_%d", i))
		if uniqueID == "" {
			break
		}

		ev, err := decodeEntry(values, i, uniqueID)
		if err != nil {
			slog.Warn("dropping malformed confirmation entry", "index", i, "unique_id", uniqueID, "error", err)
			dropped++
			continue
		}
		events = append(events, *ev)
	}

	return events, dropped
}

func decodeEntry(values url.Values, i int, uniqueID string) (*domain.ConfirmationEvent, error) {
	status := domain.DeliveryStatus(values.Get(fmt.Sprintf("status_%d", i)))
	if _, ok := status.PaymentState(); !ok {
		return nil, fmt.Errorf("unrecognised status %q", string(status))
	}

	feeCents, err := currency.ParseCents(values.Get(fmt.Sprintf("processor_fee_%d", i)))
	if err != nil {
		return nil, fmt.Errorf("parse fee: %w", err)
	}

	ev := &domain.ConfirmationEvent{
		ReceiverAddress:   values.Get(fmt.Sprintf("receiver_address_%d", i)),
		TransferTxnID:     values.Get(fmt.Sprintf("transfer_txn_id_%d", i)),
		Status:            status,
		UniqueID:          uniqueID,
		ProcessorFeeCents: feeCents,
	}

	// reason_code is only present for Failed entries
	if raw := values.Get(fmt.Sprintf("reason_code_%d", i)); raw != "" {
		ev.ReasonCode = domain.ClassifyReason(raw)
	}

	return ev, nil
}
