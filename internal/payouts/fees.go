package payouts

// FeeCents returns the platform fee for one balance amount, in minor units.
// The fraction of a cent is dropped, so the payee's per-balance net rounds
// up to the next minor unit. Negative amounts (clawbacks) yield negative
// fees, keeping the formula symmetric.
func FeeCents(amountCents, feeBasisPoints int64) int64 {
	return amountCents * feeBasisPoints / 10000
}

// SumFees returns the total platform fee across balance amounts. The fee is
// computed per balance, not on the gross sum, so a payment's fee equals the
// sum of the fees its balances would each carry.
func SumFees(amounts []int64, feeBasisPoints int64) int64 {
	var total int64
	for _, a := range amounts {
		total += FeeCents(a, feeBasisPoints)
	}
	return total
}
