// Command generate regenerates the seed fixtures: a payee roster and one
// earnings report covering a two-week window. Output is deterministic for
// a fixed seed so fixtures only change when this program does.
package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zandy2test/gumroad-sub033/internal/currency"
	"github.com/zandy2test/gumroad-sub033/internal/domain"
)

func main() {
	rng := rand.New(rand.NewSource(42))
	baseDir := findTestdataDir()

	// Earnings window: 2026-08-01 to 2026-08-14.
	startDate := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	dayRange := 14

	currencies := []string{"USD", "USD", "USD", "CAD", "GBP", "EUR", "AUD"}
	names := []string{
		"Maya Okafor", "Ren Tanaka", "Sofia Lindqvist", "Dmitri Volkov",
		"Claire Beaumont", "Arjun Mehta", "Lucia Moreno", "Tom Whitfield",
		"Ines Costa", "Noah Kimathi", "Greta Voss", "Sam Delaney",
	}

	var payees []domain.Payee
	for i, name := range names {
		p := domain.Payee{
			ID:       fmt.Sprintf("payee-%03d", i+1),
			Name:     name,
			Currency: currencies[rng.Intn(len(currencies))],
		}

		addr := strings.ToLower(strings.ReplaceAll(name, " ", ".")) + "@example.com"
		roll := rng.Float64()
		switch {
		case roll < 0.08:
			// No destination configured; eligibility skips these.
			addr = ""
		case roll < 0.16:
			// Malformed destination with a space in it.
			addr = strings.ToLower(name) + "@example.com"
		}
		p.PayoutAddress = addr

		// A quarter of payees prefer splitting large payouts.
		if rng.Float64() < 0.25 {
			p.SplitPreferred = true
			p.SplitThresholdCents = int64(rng.Intn(40)+10) * 100_000
		}
		payees = append(payees, p)
	}

	writeJSONFile(filepath.Join(baseDir, "payees.json"), payees)
	fmt.Printf("Generated %d payees -> payees.json\n", len(payees))

	type entry struct {
		Ref          string `json:"ref"`
		PayeeID      string `json:"payee_id"`
		Amount       string `json:"amount"`
		Currency     string `json:"currency"`
		EarningsDate string `json:"earnings_date"`
	}
	type report struct {
		ReportID   string  `json:"report_id"`
		ReportDate string  `json:"report_date"`
		Entries    []entry `json:"entries"`
	}

	var entries []entry
	seq := 0
	for _, p := range payees {
		// 1 to 5 earnings entries per payee.
		n := rng.Intn(5) + 1
		for j := 0; j < n; j++ {
			seq++
			day := rng.Intn(dayRange)
			cents := int64(rng.Intn(2_000_000) + 100)

			// Occasional clawback.
			if rng.Float64() < 0.06 {
				cents = -cents / 2
			}

			entries = append(entries, entry{
				Ref:          fmt.Sprintf("E-%04d", seq),
				PayeeID:      p.ID,
				Amount:       currency.FormatCents(cents),
				Currency:     p.Currency,
				EarningsDate: startDate.AddDate(0, 0, day).Format("2006-01-02"),
			})
		}
	}

	// One entry for a payee the roster does not know; ingestion rejects it.
	seq++
	entries = append(entries, entry{
		Ref:          fmt.Sprintf("E-%04d", seq),
		PayeeID:      "payee-099",
		Amount:       "99.00",
		Currency:     "USD",
		EarningsDate: startDate.AddDate(0, 0, dayRange-1).Format("2006-01-02"),
	})

	out := report{
		ReportID:   "RPT-2026-08-15",
		ReportDate: "2026-08-15",
		Entries:    entries,
	}
	writeJSONFile(filepath.Join(baseDir, "earnings_report.json"), out)
	fmt.Printf("Generated %d earnings entries -> earnings_report.json\n", len(entries))
}

func writeJSONFile(path string, v any) {
	f, err := os.Create(path)
	if err != nil {
		panic(err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		panic(err)
	}
}

func findTestdataDir() string {
	candidates := []string{
		"testdata",
		"./testdata",
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return "testdata"
}
