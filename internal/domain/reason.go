package domain

// ReasonCode classifies why a transfer failed, as reported by the processor.
// The set is closed; anything the processor invents later lands on
// ReasonUnclassified rather than free-text matching.
type ReasonCode string

const (
	ReasonNone                ReasonCode = ""
	ReasonInvalidAccount      ReasonCode = "invalid_account"
	ReasonAccountLimitReached ReasonCode = "account_limit_reached"
	ReasonRegulatoryBlock     ReasonCode = "regulatory_block"
	ReasonInsufficientFunds   ReasonCode = "insufficient_funds"
	ReasonCurrencyUnsupported ReasonCode = "currency_unsupported"
	ReasonUnclassified        ReasonCode = "unclassified"
)

// processor numeric reason codes, per the mass-pay notification docs
var reasonByCode = map[string]ReasonCode{
	"1001": ReasonInvalidAccount,
	"1002": ReasonAccountLimitReached,
	"1003": ReasonRegulatoryBlock,
	"1004": ReasonInsufficientFunds,
	"1005": ReasonCurrencyUnsupported,
}

// ClassifyReason maps a raw processor reason code to the closed enumeration.
func ClassifyReason(raw string) ReasonCode {
	if raw == "" {
		return ReasonNone
	}
	if rc, ok := reasonByCode[raw]; ok {
		return rc
	}
	return ReasonUnclassified
}

// ReasonFromLabel maps a stored reason label back onto the closed
// enumeration. Labels outside the set land on ReasonUnclassified.
func ReasonFromLabel(label string) ReasonCode {
	switch rc := ReasonCode(label); rc {
	case ReasonInvalidAccount, ReasonAccountLimitReached, ReasonRegulatoryBlock,
		ReasonInsufficientFunds, ReasonCurrencyUnsupported, ReasonUnclassified:
		return rc
	}
	return ReasonUnclassified
}
