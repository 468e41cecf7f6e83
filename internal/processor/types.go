// Package processor talks to the external mass-payout processor. The
// transport is an opaque REST API: bulk mass pay, single transfers for
// split payments, and a transaction search used for reconciliation.
package processor

import (
	"fmt"
	"time"
)

// PayoutItem is one recipient entry in an outbound submission. UniqueID is
// the correlation id echoed back in confirmation events: a payment id, or
// "{payment_id}-{ordinal}" for split sub-transfers.
type PayoutItem struct {
	Destination string
	AmountCents int64
	Currency    string
	UniqueID    string
}

// MassPayAck is the processor's acknowledgment of an accepted bulk call.
type MassPayAck struct {
	CorrelationID string `json:"correlation_id"`
}

// TransferAck acknowledges one accepted single transfer.
type TransferAck struct {
	TxnID string `json:"txn_id"`
}

// RejectionError is an explicit, permanent processor rejection of a
// submission, as opposed to a transport failure with unknown outcome.
type RejectionError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("processor rejected submission: %s (%s)", e.Message, e.Code)
}

// SearchQuery identifies at most one transaction, either by its known txn
// id or by the (amount, destination, window) triple.
type SearchQuery struct {
	TxnID       string
	AmountCents int64
	Destination string
	From        time.Time
	To          time.Time
}

// TransactionInfo is the processor's view of one transfer, as returned by
// the search endpoint, with wire amounts already converted to minor units.
type TransactionInfo struct {
	TxnID           string
	Status          string
	FeeCents        int64
	ReasonCode      string
	ReceiverAddress string
	AmountCents     int64
}
