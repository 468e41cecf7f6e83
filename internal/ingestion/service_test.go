package ingestion

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/zandy2test/gumroad-sub033/internal/domain"
	"github.com/zandy2test/gumroad-sub033/internal/repository"
)

func newTestService(t *testing.T) (*Service, *repository.PayeeRepo, *repository.BalanceRepo) {
	t.Helper()
	db, err := repository.InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	payees := repository.NewPayeeRepo(db)
	balances := repository.NewBalanceRepo(db)
	return NewService(payees, balances), payees, balances
}

func insertPayee(t *testing.T, payees *repository.PayeeRepo, id string) {
	t.Helper()
	p := &domain.Payee{ID: id, Name: "Payee " + id, PayoutAddress: id + "@example.com", Currency: "USD"}
	if err := payees.Insert(p); err != nil {
		t.Fatalf("insert payee: %v", err)
	}
}

const sampleReport = `{
	"report_id": "RPT-1",
	"report_date": "2026-08-01",
	"entries": [
		{"ref": "E-1", "payee_id": "p1", "amount": "12.50", "currency": "USD", "earnings_date": "2026-07-15"},
		{"ref": "E-2", "payee_id": "p1", "amount": "-3.25", "currency": "USD", "earnings_date": "2026-07-20"},
		{"ref": "E-3", "payee_id": "p2", "amount": "99.00", "currency": "USD", "earnings_date": "2026-07-21"}
	]
}`

func TestIngestReport(t *testing.T) {
	t.Run("imports entries as unpaid balances", func(t *testing.T) {
		svc, payees, balances := newTestService(t)
		insertPayee(t, payees, "p1")
		insertPayee(t, payees, "p2")

		result, err := svc.IngestReport([]byte(sampleReport))
		if err != nil {
			t.Fatalf("IngestReport failed: %v", err)
		}
		if result.RecordsIngested != 3 || result.DuplicatesSkipped != 0 || result.EntriesRejected != 0 {
			t.Errorf("result = %+v, want 3 ingested", result)
		}

		unpaid, err := balances.ListUnpaidUpTo("p1", time.Now())
		if err != nil {
			t.Fatalf("ListUnpaidUpTo: %v", err)
		}
		if len(unpaid) != 2 {
			t.Fatalf("p1 has %d balances, want 2", len(unpaid))
		}
		var sum int64
		for _, b := range unpaid {
			sum += b.AmountCents
		}
		if sum != 925 {
			t.Errorf("p1 net cents = %d, want 925", sum)
		}
	})

	t.Run("re-ingesting the same report inserts nothing", func(t *testing.T) {
		svc, payees, _ := newTestService(t)
		insertPayee(t, payees, "p1")
		insertPayee(t, payees, "p2")

		if _, err := svc.IngestReport([]byte(sampleReport)); err != nil {
			t.Fatalf("first ingest failed: %v", err)
		}
		result, err := svc.IngestReport([]byte(sampleReport))
		if err != nil {
			t.Fatalf("second ingest failed: %v", err)
		}
		if result.RecordsIngested != 0 || result.DuplicatesSkipped != 3 {
			t.Errorf("result = %+v, want all duplicates", result)
		}
	})

	t.Run("rejects unknown payees individually", func(t *testing.T) {
		svc, payees, _ := newTestService(t)
		insertPayee(t, payees, "p1")
		// p2 does not exist.

		result, err := svc.IngestReport([]byte(sampleReport))
		if err != nil {
			t.Fatalf("IngestReport failed: %v", err)
		}
		if result.RecordsIngested != 2 || result.EntriesRejected != 1 {
			t.Errorf("result = %+v, want 2 ingested and 1 rejected", result)
		}
	})

	t.Run("rejects unsupported currencies individually", func(t *testing.T) {
		svc, payees, _ := newTestService(t)
		insertPayee(t, payees, "p1")

		report := `{
			"report_id": "RPT-2",
			"entries": [
				{"ref": "E-1", "payee_id": "p1", "amount": "100.00", "currency": "JPY", "earnings_date": "2026-07-15"},
				{"ref": "E-2", "payee_id": "p1", "amount": "50.00", "currency": "USD", "earnings_date": "2026-07-15"}
			]
		}`
		result, err := svc.IngestReport([]byte(report))
		if err != nil {
			t.Fatalf("IngestReport failed: %v", err)
		}
		if result.RecordsIngested != 1 || result.EntriesRejected != 1 {
			t.Errorf("result = %+v, want 1 ingested and 1 rejected", result)
		}
	})

	t.Run("rejects a report without an id", func(t *testing.T) {
		svc, _, _ := newTestService(t)

		if _, err := svc.IngestReport([]byte(`{"entries": []}`)); err == nil {
			t.Fatal("expected error for missing report_id")
		}
	})
}

func TestParseEarningsJSON(t *testing.T) {
	t.Run("derives stable balance ids", func(t *testing.T) {
		first, _, err := ParseEarningsJSON([]byte(sampleReport))
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		second, _, err := ParseEarningsJSON([]byte(sampleReport))
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		for i := range first {
			if first[i].ID != second[i].ID {
				t.Errorf("entry %d id differs across parses: %q vs %q", i, first[i].ID, second[i].ID)
			}
		}
		if first[0].ID == first[1].ID {
			t.Error("distinct entries share an id")
		}
	})

	t.Run("accepts RFC3339 earnings dates", func(t *testing.T) {
		report := `{
			"report_id": "RPT-3",
			"entries": [
				{"ref": "E-1", "payee_id": "p1", "amount": "1.00", "currency": "USD", "earnings_date": "2026-07-15T10:30:00Z"}
			]
		}`
		balances, _, err := ParseEarningsJSON([]byte(report))
		if err != nil {
			t.Fatalf("parse failed: %v", err)
		}
		if got := balances[0].EarningsDate.Format("2006-01-02"); got != "2026-07-15" {
			t.Errorf("earnings date = %s, want 2026-07-15", got)
		}
	})

	t.Run("rejects malformed amounts", func(t *testing.T) {
		report := `{
			"report_id": "RPT-4",
			"entries": [
				{"ref": "E-1", "payee_id": "p1", "amount": "1,000.00", "currency": "USD", "earnings_date": "2026-07-15"}
			]
		}`
		if _, _, err := ParseEarningsJSON([]byte(report)); err == nil {
			t.Fatal("expected error for malformed amount")
		}
	})

	t.Run("rejects entries without a payee", func(t *testing.T) {
		report := `{
			"report_id": "RPT-5",
			"entries": [
				{"ref": "E-1", "amount": "1.00", "currency": "USD", "earnings_date": "2026-07-15"}
			]
		}`
		if _, _, err := ParseEarningsJSON([]byte(report)); err == nil {
			t.Fatal("expected error for missing payee_id")
		}
	})
}
