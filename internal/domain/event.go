package domain

// DeliveryStatus is the per-recipient outcome reported by the payout
// processor in an asynchronous confirmation event.
type DeliveryStatus string

const (
	StatusCompleted DeliveryStatus = "Completed"
	StatusFailed    DeliveryStatus = "Failed"
	StatusUnclaimed DeliveryStatus = "Unclaimed"
	StatusPending   DeliveryStatus = "Pending"
	StatusReversed  DeliveryStatus = "Reversed"
	StatusReturned  DeliveryStatus = "Returned"
)

// PaymentState maps a delivery status to the target payment state. The
// second return is false for statuses this system does not recognise.
func (s DeliveryStatus) PaymentState() (PaymentState, bool) {
	switch s {
	case StatusCompleted:
		return PaymentCompleted, true
	case StatusFailed:
		return PaymentFailed, true
	case StatusUnclaimed:
		return PaymentUnclaimed, true
	case StatusPending:
		return PaymentProcessing, true
	case StatusReversed:
		return PaymentReversed, true
	case StatusReturned:
		return PaymentReturned, true
	}
	return "", false
}

// ConfirmationEvent is one decoded entry from an inbound processor
// notification batch. UniqueID carries either a payment id or the composite
// "{payment_id}-{ordinal}" for split transfers.
type ConfirmationEvent struct {
	ReceiverAddress   string         `json:"receiver_address"`
	TransferTxnID     string         `json:"transfer_txn_id"`
	Status            DeliveryStatus `json:"status"`
	UniqueID          string         `json:"unique_id"`
	ProcessorFeeCents int64          `json:"processor_fee_cents"`
	ReasonCode        ReasonCode     `json:"reason_code,omitempty"`
}
