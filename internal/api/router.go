package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/zandy2test/gumroad-sub033/internal/confirmation"
	"github.com/zandy2test/gumroad-sub033/internal/dispatch"
	"github.com/zandy2test/gumroad-sub033/internal/eligibility"
	"github.com/zandy2test/gumroad-sub033/internal/ingestion"
	"github.com/zandy2test/gumroad-sub033/internal/reconciliation"
	"github.com/zandy2test/gumroad-sub033/internal/repository"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(
	payeeRepo *repository.PayeeRepo,
	balanceRepo *repository.BalanceRepo,
	paymentRepo *repository.PaymentRepo,
	dispatcher *dispatch.Dispatcher,
	evaluator *eligibility.Evaluator,
	confirmer *confirmation.Handler,
	ingestionSvc *ingestion.Service,
	auditSvc *reconciliation.Service,
) http.Handler {
	h := &Handlers{
		payeeRepo:    payeeRepo,
		balanceRepo:  balanceRepo,
		paymentRepo:  paymentRepo,
		dispatcher:   dispatcher,
		evaluator:    evaluator,
		confirmer:    confirmer,
		ingestionSvc: ingestionSvc,
		auditSvc:     auditSvc,
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))

		// Ledger ingestion.
		r.Post("/balances/import", h.ImportBalances)

		// Payout runs.
		r.Post("/payouts/enqueue", h.EnqueuePayouts)

		// Processor callbacks.
		r.Post("/webhooks/processor", h.ProcessorWebhook)

		// Payments.
		r.Get("/payments", h.ListPayments)
		r.Get("/payments/{id}", h.GetPayment)

		// Payees.
		r.Get("/payees/{id}/payability", h.GetPayability)
		r.Get("/payees/{id}/notes", h.ListPayeeNotes)
		r.Post("/payees/{id}/payouts", h.ForcePayout)

		// Operations.
		r.Get("/audit", h.RunAudit)
		r.Get("/dashboard", h.GetDashboard)
	})

	return r
}
