package domain

import "errors"

var (
	// ErrCurrencyMismatch is returned when balances selected for one payment
	// do not share a single currency.
	ErrCurrencyMismatch = errors.New("balances span multiple currencies")

	// ErrNoEligibleBalances is returned when a payment is requested for a
	// payee with nothing payable as of the cutoff date.
	ErrNoEligibleBalances = errors.New("no eligible balances")

	// ErrUnsupportedCurrency is returned when balances are denominated in a
	// currency the payout processor cannot deliver.
	ErrUnsupportedCurrency = errors.New("unsupported payout currency")

	// ErrUnknownTransfer is returned when a confirmation event references a
	// payment or sub-transfer this system has no record of.
	ErrUnknownTransfer = errors.New("unknown transfer identifier")

	// ErrAmbiguousMatch is returned when a transaction search yields more
	// than one candidate. Ambiguity is never silently resolved.
	ErrAmbiguousMatch = errors.New("ambiguous transaction match")
)
