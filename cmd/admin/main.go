// Command admin is the operator CLI for the payout engine: force a payout
// for one payee, run a ledger audit, or print aggregate stats. It talks to
// the same database as the server.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/zandy2test/gumroad-sub033/internal/config"
	"github.com/zandy2test/gumroad-sub033/internal/dispatch"
	"github.com/zandy2test/gumroad-sub033/internal/eligibility"
	"github.com/zandy2test/gumroad-sub033/internal/payouts"
	"github.com/zandy2test/gumroad-sub033/internal/processor"
	"github.com/zandy2test/gumroad-sub033/internal/reconciliation"
	"github.com/zandy2test/gumroad-sub033/internal/repository"
	"github.com/zandy2test/gumroad-sub033/pkg/logging"
)

func main() {
	logging.Setup()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cfg := config.Load()
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		fatal("init db: %v", err)
	}
	defer db.Close()

	payeeRepo := repository.NewPayeeRepo(db)
	balanceRepo := repository.NewBalanceRepo(db)
	paymentRepo := repository.NewPaymentRepo(db)

	switch os.Args[1] {
	case "payout":
		runPayout(cfg, payeeRepo, balanceRepo, paymentRepo, os.Args[2:])
	case "audit":
		runAudit(cfg, paymentRepo, balanceRepo)
	case "stats":
		runStats(payeeRepo, balanceRepo, paymentRepo)
	default:
		usage()
		os.Exit(2)
	}
}

func runPayout(
	cfg config.Config,
	payeeRepo *repository.PayeeRepo,
	balanceRepo *repository.BalanceRepo,
	paymentRepo *repository.PaymentRepo,
	args []string,
) {
	fs := flag.NewFlagSet("payout", flag.ExitOnError)
	payeeID := fs.String("payee", "", "payee id to pay out")
	cutoffStr := fs.String("cutoff", "", "include balances earned on or before this date (YYYY-MM-DD, default today)")
	fs.Parse(args)

	if *payeeID == "" {
		fatal("payout: -payee is required")
	}

	cutoff := time.Now().UTC()
	if *cutoffStr != "" {
		t, err := time.Parse("2006-01-02", *cutoffStr)
		if err != nil {
			fatal("payout: invalid -cutoff: %v", err)
		}
		// Include the whole cutoff day.
		cutoff = t.Add(24*time.Hour - time.Second)
	}

	evaluator := eligibility.NewEvaluator(payeeRepo, paymentRepo, cfg.PayoutCooldown)
	aggregator := payouts.NewService(payeeRepo, balanceRepo, paymentRepo, evaluator, cfg.FeeBasisPoints)
	client := processor.NewClient(cfg.ProcessorBaseURL, cfg.ProcessorAPIKey)
	dispatcher := dispatch.NewDispatcher(
		aggregator, evaluator, payeeRepo, paymentRepo, client,
		cfg.BatchSize, cfg.BatchStagger, cfg.MaxSingleTransferCents,
	)

	payment, err := dispatcher.PayOne(context.Background(), *payeeID, cutoff)
	if err != nil {
		fatal("payout: %v", err)
	}
	printJSON(payment)
}

func runAudit(cfg config.Config, paymentRepo *repository.PaymentRepo, balanceRepo *repository.BalanceRepo) {
	svc := reconciliation.NewService(paymentRepo, balanceRepo, 2*cfg.PendingPollInterval)
	result, err := svc.RunAudit()
	if err != nil {
		fatal("audit: %v", err)
	}
	printJSON(result)
	if len(result.Findings) > 0 {
		os.Exit(1)
	}
}

func runStats(payeeRepo *repository.PayeeRepo, balanceRepo *repository.BalanceRepo, paymentRepo *repository.PaymentRepo) {
	payees, err := payeeRepo.Count()
	if err != nil {
		fatal("stats: %v", err)
	}
	balanceStats, err := balanceRepo.GetStats()
	if err != nil {
		fatal("stats: %v", err)
	}
	paymentStats, err := paymentRepo.GetStats()
	if err != nil {
		fatal("stats: %v", err)
	}
	printJSON(map[string]any{
		"payees":   payees,
		"balances": balanceStats,
		"payments": paymentStats,
	})
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: admin <command> [flags]

commands:
  payout -payee <id> [-cutoff YYYY-MM-DD]   force a payout for one payee
  audit                                     scan the ledger for inconsistencies
  stats                                     print aggregate figures`)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
