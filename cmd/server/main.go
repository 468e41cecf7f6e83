package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/zandy2test/gumroad-sub033/internal/api"
	"github.com/zandy2test/gumroad-sub033/internal/config"
	"github.com/zandy2test/gumroad-sub033/internal/confirmation"
	"github.com/zandy2test/gumroad-sub033/internal/dispatch"
	"github.com/zandy2test/gumroad-sub033/internal/domain"
	"github.com/zandy2test/gumroad-sub033/internal/eligibility"
	"github.com/zandy2test/gumroad-sub033/internal/ingestion"
	"github.com/zandy2test/gumroad-sub033/internal/payouts"
	"github.com/zandy2test/gumroad-sub033/internal/processor"
	"github.com/zandy2test/gumroad-sub033/internal/reconciliation"
	"github.com/zandy2test/gumroad-sub033/internal/repository"
	"github.com/zandy2test/gumroad-sub033/pkg/logging"
)

func main() {
	logging.Setup()
	cfg := config.Load()

	slog.Info("initializing database", "path", cfg.DBPath)
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		slog.Error("failed to init db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Repositories.
	payeeRepo := repository.NewPayeeRepo(db)
	balanceRepo := repository.NewBalanceRepo(db)
	paymentRepo := repository.NewPaymentRepo(db)

	// Services.
	evaluator := eligibility.NewEvaluator(payeeRepo, paymentRepo, cfg.PayoutCooldown)
	aggregator := payouts.NewService(payeeRepo, balanceRepo, paymentRepo, evaluator, cfg.FeeBasisPoints)
	client := processor.NewClient(cfg.ProcessorBaseURL, cfg.ProcessorAPIKey)
	dispatcher := dispatch.NewDispatcher(
		aggregator, evaluator, payeeRepo, paymentRepo, client,
		cfg.BatchSize, cfg.BatchStagger, cfg.MaxSingleTransferCents,
	)
	confirmer := confirmation.NewHandler(paymentRepo)
	ingestionSvc := ingestion.NewService(payeeRepo, balanceRepo)
	auditSvc := reconciliation.NewService(paymentRepo, balanceRepo, 2*cfg.PendingPollInterval)

	// Seed payees and balances if the DB is empty.
	count, err := payeeRepo.Count()
	if err != nil {
		slog.Error("failed to count payees", "error", err)
		os.Exit(1)
	}
	if count == 0 {
		slog.Info("database is empty, seeding from testdata")
		if err := seed(payeeRepo, ingestionSvc); err != nil {
			slog.Warn("failed to seed testdata", "error", err)
		}
	} else {
		slog.Info("database already seeded", "payees", count)
	}

	// The pending poller resolves transfers whose outcome was lost.
	poller := confirmation.NewPoller(paymentRepo, confirmer, client, cfg.PendingPollInterval, cfg.PendingPollWorkers)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go poller.Run(ctx)

	router := api.NewRouter(payeeRepo, balanceRepo, paymentRepo, dispatcher, evaluator, confirmer, ingestionSvc, auditSvc)

	slog.Info("seller payout engine listening",
		"addr", "http://localhost:"+cfg.Port,
		"api_base", "/api/v1",
	)

	if err := http.ListenAndServe(":"+cfg.Port, router); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

// seed loads payees.json and then runs the bundled earnings report through
// the normal ingestion path.
func seed(payeeRepo *repository.PayeeRepo, ingestionSvc *ingestion.Service) error {
	payeeData, err := readTestdata("payees.json")
	if err != nil {
		return err
	}

	var payees []domain.Payee
	if err := json.Unmarshal(payeeData, &payees); err != nil {
		return fmt.Errorf("unmarshal payees: %w", err)
	}
	for i := range payees {
		if err := payeeRepo.Insert(&payees[i]); err != nil {
			return fmt.Errorf("insert payee %s: %w", payees[i].ID, err)
		}
	}
	slog.Info("seeded payees", "count", len(payees))

	reportData, err := readTestdata("earnings_report.json")
	if err != nil {
		return err
	}

	result, err := ingestionSvc.IngestReport(reportData)
	if err != nil {
		return fmt.Errorf("seed balances: %w", err)
	}
	slog.Info("seeded balances", "report_id", result.ReportID, "count", result.RecordsIngested)
	return nil
}

func readTestdata(name string) ([]byte, error) {
	candidates := []string{
		filepath.Join("testdata", name),
	}
	if exe, err := os.Executable(); err == nil {
		dir := filepath.Dir(exe)
		candidates = append(candidates,
			filepath.Join(dir, "testdata", name),
			filepath.Join(dir, "..", "..", "testdata", name),
		)
	}

	var lastErr error
	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("could not find %s in any candidate path: %w", name, lastErr)
}
