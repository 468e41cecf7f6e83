package domain

import "time"

// Payee is a seller with an accumulated balance and a configured payout
// destination. SplitThresholdCents only applies when SplitPreferred is set;
// it is clamped to the global single-transfer ceiling at dispatch time.
type Payee struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	PayoutAddress       string    `json:"payout_address"`
	Currency            string    `json:"currency"`
	SplitPreferred      bool      `json:"split_preferred"`
	SplitThresholdCents int64     `json:"split_threshold_cents,omitempty"`
	CreatedAt           time.Time `json:"created_at"`
}

// PayeeNote is a payee-visible audit entry explaining a payout decision.
type PayeeNote struct {
	ID        string    `json:"id"`
	PayeeID   string    `json:"payee_id"`
	Note      string    `json:"note"`
	CreatedAt time.Time `json:"created_at"`
}
