package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/zandy2test/gumroad-sub033/internal/currency"
	"github.com/zandy2test/gumroad-sub033/internal/domain"
)

// Client is the REST client for the payout processor.
type Client struct {
	http *resty.Client
}

// NewClient builds a processor client for the given API endpoint.
func NewClient(baseURL, apiKey string) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("Content-Type", "application/json")
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &Client{http: c}
}

// payoutEntry is the wire form of one recipient. The processor takes
// amounts as decimal strings, not minor units.
type payoutEntry struct {
	Destination string `json:"destination"`
	Amount      string `json:"amount"`
	Currency    string `json:"currency"`
	UniqueID    string `json:"unique_id"`
}

func toEntry(item PayoutItem) payoutEntry {
	return payoutEntry{
		Destination: item.Destination,
		Amount:      currency.FormatCents(item.AmountCents),
		Currency:    item.Currency,
		UniqueID:    item.UniqueID,
	}
}

type massPayRequest struct {
	Items []payoutEntry `json:"items"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// MassPay submits a bulk payout. A 4xx response is an outright rejection of
// the whole call and comes back as *RejectionError; transport errors come
// back as-is and mean the outcome is unknown.
func (c *Client) MassPay(ctx context.Context, items []PayoutItem) (*MassPayAck, error) {
	entries := make([]payoutEntry, len(items))
	for i, item := range items {
		entries[i] = toEntry(item)
	}

	var ack MassPayAck
	var apiErr apiError

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(massPayRequest{Items: entries}).
		SetResult(&ack).
		SetError(&apiErr).
		Post("/v1/masspay")
	if err != nil {
		return nil, fmt.Errorf("masspay call: %w", err)
	}
	if resp.IsError() {
		return nil, &RejectionError{Code: apiErr.Code, Message: apiErr.Message}
	}
	return &ack, nil
}

// SendTransfer submits one independent transfer (a split sub-transfer).
func (c *Client) SendTransfer(ctx context.Context, item PayoutItem) (*TransferAck, error) {
	var ack TransferAck
	var apiErr apiError

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(toEntry(item)).
		SetResult(&ack).
		SetError(&apiErr).
		Post("/v1/transfers")
	if err != nil {
		return nil, fmt.Errorf("transfer call: %w", err)
	}
	if resp.IsError() {
		return nil, &RejectionError{Code: apiErr.Code, Message: apiErr.Message}
	}
	return &ack, nil
}

// txnRecord is the wire form of one transaction in a search response.
type txnRecord struct {
	TxnID           string `json:"txn_id"`
	Status          string `json:"status"`
	Fee             string `json:"fee"`
	ReasonCode      string `json:"reason_code,omitempty"`
	ReceiverAddress string `json:"receiver_address"`
	Amount          string `json:"amount"`
}

type searchResponse struct {
	Matches []txnRecord `json:"matches"`
}

// SearchTransaction finds at most one transaction for the query. More than
// one candidate is an error: ambiguity is never silently resolved. No match
// returns (nil, nil).
func (c *Client) SearchTransaction(ctx context.Context, q SearchQuery) (*TransactionInfo, error) {
	req := c.http.R().SetContext(ctx)
	if q.TxnID != "" {
		req.SetQueryParam("txn_id", q.TxnID)
	} else {
		req.SetQueryParam("amount", currency.FormatCents(q.AmountCents))
		req.SetQueryParam("destination", q.Destination)
		req.SetQueryParam("from", q.From.UTC().Format(time.RFC3339))
		req.SetQueryParam("to", q.To.UTC().Format(time.RFC3339))
	}

	var out searchResponse
	resp, err := req.SetResult(&out).Get("/v1/transactions/search")
	if err != nil {
		return nil, fmt.Errorf("search call: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("search failed: %s", resp.Status())
	}

	switch len(out.Matches) {
	case 0:
		return nil, nil
	case 1:
		return fromRecord(out.Matches[0])
	default:
		return nil, fmt.Errorf("%w: %d candidates for %q", domain.ErrAmbiguousMatch, len(out.Matches), q.TxnID)
	}
}

func fromRecord(rec txnRecord) (*TransactionInfo, error) {
	feeCents, err := currency.ParseCents(rec.Fee)
	if err != nil {
		return nil, fmt.Errorf("search result fee: %w", err)
	}
	amountCents, err := currency.ParseCents(rec.Amount)
	if err != nil {
		return nil, fmt.Errorf("search result amount: %w", err)
	}
	return &TransactionInfo{
		TxnID:           rec.TxnID,
		Status:          rec.Status,
		FeeCents:        feeCents,
		ReasonCode:      rec.ReasonCode,
		ReceiverAddress: rec.ReceiverAddress,
		AmountCents:     amountCents,
	}, nil
}
