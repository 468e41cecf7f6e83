package domain

import "time"

type BalanceState string

const (
	BalanceUnpaid     BalanceState = "unpaid"
	BalanceProcessing BalanceState = "processing"
	BalancePaid       BalanceState = "paid"
)

// Balance is one unit of payable money earned by a payee on a given date.
// Amounts are signed minor currency units; negative balances represent
// refund/chargeback clawbacks that reduce the payable total.
type Balance struct {
	ID           string       `json:"id"`
	PayeeID      string       `json:"payee_id"`
	AmountCents  int64        `json:"amount_cents"`
	Currency     string       `json:"currency"`
	EarningsDate time.Time    `json:"earnings_date"`
	State        BalanceState `json:"state"`
	PaymentID    string       `json:"payment_id,omitempty"`
}
