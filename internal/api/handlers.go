package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zandy2test/gumroad-sub033/internal/confirmation"
	"github.com/zandy2test/gumroad-sub033/internal/dispatch"
	"github.com/zandy2test/gumroad-sub033/internal/eligibility"
	"github.com/zandy2test/gumroad-sub033/internal/ingestion"
	"github.com/zandy2test/gumroad-sub033/internal/reconciliation"
	"github.com/zandy2test/gumroad-sub033/internal/repository"
)

// Handlers groups all HTTP handler methods and their dependencies.
type Handlers struct {
	payeeRepo    *repository.PayeeRepo
	balanceRepo  *repository.BalanceRepo
	paymentRepo  *repository.PaymentRepo
	dispatcher   *dispatch.Dispatcher
	evaluator    *eligibility.Evaluator
	confirmer    *confirmation.Handler
	ingestionSvc *ingestion.Service
	auditSvc     *reconciliation.Service
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func parseTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		t, err = time.Parse("2006-01-02", s)
		if err != nil {
			return nil
		}
	}
	return &t
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 1 {
		return def
	}
	return v
}

// --- EnqueuePayouts ---

type enqueueRequest struct {
	CutoffDate string   `json:"cutoff_date,omitempty"`
	PayeeIDs   []string `json:"payee_ids,omitempty"`
}

// EnqueuePayouts kicks off a payout run: payees are partitioned into
// staggered batches, each of which aggregates and submits its own slice.
// An empty payee_ids list means every known payee.
func (h *Handlers) EnqueuePayouts(w http.ResponseWriter, r *http.Request) {
	var req enqueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err.Error() != "EOF" {
		writeError(w, http.StatusBadRequest, "invalid body: "+err.Error())
		return
	}

	cutoff := time.Now().UTC()
	if t := parseTime(req.CutoffDate); t != nil {
		cutoff = *t
	}

	payeeIDs := req.PayeeIDs
	if len(payeeIDs) == 0 {
		var err error
		payeeIDs, err = h.payeeRepo.ListIDs()
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	batches := h.dispatcher.EnqueuePayments(payeeIDs, cutoff)

	writeJSON(w, http.StatusAccepted, map[string]any{
		"payees":      len(payeeIDs),
		"batches":     batches,
		"cutoff_date": cutoff.Format(time.RFC3339),
	})
}

// --- ForcePayout ---

// ForcePayout creates and dispatches one payee's payout immediately,
// outside the scheduled cadence.
func (h *Handlers) ForcePayout(w http.ResponseWriter, r *http.Request) {
	payeeID := chi.URLParam(r, "id")
	if payeeID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	payment, err := h.dispatcher.PayOne(r.Context(), payeeID, time.Now().UTC())
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, payment)
}

// --- ProcessorWebhook ---

// ProcessorWebhook ingests a delivery-notification batch from the payout
// processor. The sender retries non-200 responses indefinitely, so the
// endpoint always acknowledges; malformed entries are dropped with logs.
func (h *Handlers) ProcessorWebhook(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		slog.Warn("unparseable notification payload", "error", err)
		writeJSON(w, http.StatusOK, map[string]int{"decoded": 0, "dropped": 0})
		return
	}

	events, dropped := confirmation.DecodeBatch(r.PostForm)
	h.confirmer.HandleBatch(events)

	writeJSON(w, http.StatusOK, map[string]int{
		"decoded": len(events),
		"dropped": dropped,
	})
}

// --- ListPayments ---

func (h *Handlers) ListPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.PaymentFilter{
		PayeeID: q.Get("payee_id"),
		State:   q.Get("state"),
		Page:    parseIntDefault(q.Get("page"), 1),
		Limit:   parseIntDefault(q.Get("limit"), 50),
	}

	payments, total, err := h.paymentRepo.List(filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"payments": payments,
		"total":    total,
		"page":     filter.Page,
		"limit":    filter.Limit,
	})
}

// --- GetPayment ---

func (h *Handlers) GetPayment(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	payment, err := h.paymentRepo.GetByID(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "payment not found")
		return
	}

	balances, err := h.balanceRepo.ListByPayment(id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"payment":  payment,
		"balances": balances,
	})
}

// --- GetPayability ---

// GetPayability is a read-only probe; unlike a payout run it records no
// audit notes on the payee.
func (h *Handlers) GetPayability(w http.ResponseWriter, r *http.Request) {
	payeeID := chi.URLParam(r, "id")

	payee, err := h.payeeRepo.GetByID(payeeID)
	if err != nil {
		writeError(w, http.StatusNotFound, "payee not found")
		return
	}

	payable, reason, err := h.evaluator.IsPayable(payee, time.Now().UTC(), eligibility.Options{})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"payee_id": payeeID,
		"payable":  payable,
		"reason":   string(reason),
	})
}

// --- ListPayeeNotes ---

func (h *Handlers) ListPayeeNotes(w http.ResponseWriter, r *http.Request) {
	payeeID := chi.URLParam(r, "id")

	if _, err := h.payeeRepo.GetByID(payeeID); err != nil {
		writeError(w, http.StatusNotFound, "payee not found")
		return
	}

	notes, err := h.payeeRepo.ListNotes(payeeID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"payee_id": payeeID,
		"notes":    notes,
	})
}

// --- ImportBalances ---

// ImportBalances ingests an earnings report into the balance ledger.
func (h *Handlers) ImportBalances(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read body: "+err.Error())
		return
	}

	result, err := h.ingestionSvc.IngestReport(data)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// --- RunAudit ---

func (h *Handlers) RunAudit(w http.ResponseWriter, r *http.Request) {
	result, err := h.auditSvc.RunAudit()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// --- GetDashboard ---

func (h *Handlers) GetDashboard(w http.ResponseWriter, r *http.Request) {
	paymentStats, err := h.paymentRepo.GetStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	balanceStats, err := h.balanceRepo.GetStats()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	payeeCount, err := h.payeeRepo.Count()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"payees":   map[string]any{"total": payeeCount},
		"payments": paymentStats,
		"balances": balanceStats,
	})
}
