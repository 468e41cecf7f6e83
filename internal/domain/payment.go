package domain

import "time"

type PaymentState string

const (
	PaymentCreated    PaymentState = "created"
	PaymentProcessing PaymentState = "processing"
	PaymentCompleted  PaymentState = "completed"
	PaymentFailed     PaymentState = "failed"
	PaymentReversed   PaymentState = "reversed"
	PaymentReturned   PaymentState = "returned"
	PaymentUnclaimed  PaymentState = "unclaimed"
)

// Terminal reports whether no further transition is expected from the state.
// Unclaimed is not terminal: the processor may still report Completed or
// Returned for an unclaimed transfer.
func (s PaymentState) Terminal() bool {
	switch s {
	case PaymentCompleted, PaymentFailed, PaymentReversed, PaymentReturned:
		return true
	}
	return false
}

// Payment is one logical payout instruction to one payee for one run.
// AmountCents = GrossCents - PlatformFeeCents; the gross equals the sum of
// the linked balances.
type Payment struct {
	ID                string          `json:"id"`
	PayeeID           string          `json:"payee_id"`
	GrossCents        int64           `json:"gross_cents"`
	AmountCents       int64           `json:"amount_cents"`
	PlatformFeeCents  int64           `json:"platform_fee_cents"`
	ProcessorFeeCents int64           `json:"processor_fee_cents"`
	Currency          string          `json:"currency"`
	State             PaymentState    `json:"state"`
	PayoutAddress     string          `json:"payout_address"`
	ProcessorTxnID    string          `json:"processor_txn_id,omitempty"`
	SplitMode         bool            `json:"was_created_in_split_mode"`
	SplitTransfers    []SplitTransfer `json:"split_payments_info,omitempty"`
	FailureReason     ReasonCode      `json:"failure_reason,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// SplitTransfer is one sub-unit of a payment that exceeded the
// single-transfer ceiling, tracked and reconciled independently.
// Ordinals start at 1 and form the composite id "{payment_id}-{ordinal}".
type SplitTransfer struct {
	PaymentID         string       `json:"payment_id"`
	Ordinal           int          `json:"ordinal"`
	AmountCents       int64        `json:"amount_cents"`
	State             PaymentState `json:"state"`
	ProcessorTxnID    string       `json:"processor_txn_id,omitempty"`
	ProcessorFeeCents int64        `json:"processor_fee_cents"`
	LastError         string       `json:"last_error,omitempty"`
}

// ReduceSplitStates folds sub-transfer states into the parent payment state.
// The parent is completed only when every sub-transfer completed, takes a
// failure-class terminal state only when all sub-transfers share it, and
// stays processing for any mixed or unresolved combination.
func ReduceSplitStates(transfers []SplitTransfer) PaymentState {
	if len(transfers) == 0 {
		return PaymentProcessing
	}
	first := transfers[0].State
	for _, st := range transfers {
		if !st.State.Terminal() {
			return PaymentProcessing
		}
		if st.State != first {
			return PaymentProcessing
		}
	}
	return first
}
