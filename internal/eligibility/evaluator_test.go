package eligibility

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/zandy2test/gumroad-sub033/internal/domain"
	"github.com/zandy2test/gumroad-sub033/internal/repository"
)

func newTestEvaluator(t *testing.T) (*Evaluator, *repository.PayeeRepo, *repository.PaymentRepo) {
	t.Helper()
	db, err := repository.InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	payees := repository.NewPayeeRepo(db)
	payments := repository.NewPaymentRepo(db)
	return NewEvaluator(payees, payments, 7*24*time.Hour), payees, payments
}

func addPayee(t *testing.T, payees *repository.PayeeRepo, address string) *domain.Payee {
	t.Helper()
	p := &domain.Payee{Name: "Test", PayoutAddress: address, Currency: "USD"}
	if err := payees.Insert(p); err != nil {
		t.Fatalf("insert payee: %v", err)
	}
	return p
}

func addPayment(t *testing.T, payments *repository.PaymentRepo, payeeID string, state domain.PaymentState) *domain.Payment {
	t.Helper()
	p := &domain.Payment{
		PayeeID:       payeeID,
		GrossCents:    1000,
		AmountCents:   951,
		Currency:      "USD",
		State:         state,
		PayoutAddress: "x@example.com",
	}
	if err := payments.CreateWithClaim(p, nil); err != nil {
		t.Fatalf("create payment: %v", err)
	}
	return p
}

func TestIsPayableDestination(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		address string
		want    bool
		reason  Reason
	}{
		{"valid email-like address", "seller@example.com", true, ReasonPayable},
		{"plus and dots allowed", "a.b+c@example.co.uk", true, ReasonPayable},
		{"empty address", "", false, ReasonNoDestination},
		{"space rejected", "a b@example.com", false, ReasonInvalidDestination},
		{"angle brackets rejected", "<script>@example.com", false, ReasonInvalidDestination},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, payees, _ := newTestEvaluator(t)
			payee := addPayee(t, payees, tt.address)

			payable, reason, err := e.IsPayable(payee, now, Options{})
			if err != nil {
				t.Fatalf("IsPayable failed: %v", err)
			}
			if payable != tt.want || reason != tt.reason {
				t.Errorf("IsPayable = (%v, %q), want (%v, %q)", payable, reason, tt.want, tt.reason)
			}
		})
	}
}

func TestIsPayableInFlight(t *testing.T) {
	now := time.Now()

	t.Run("processing payment blocks", func(t *testing.T) {
		e, payees, payments := newTestEvaluator(t)
		payee := addPayee(t, payees, "seller@example.com")
		addPayment(t, payments, payee.ID, domain.PaymentProcessing)

		payable, reason, err := e.IsPayable(payee, now, Options{})
		if err != nil {
			t.Fatalf("IsPayable failed: %v", err)
		}
		if payable || reason != ReasonPaymentInFlight {
			t.Errorf("IsPayable = (%v, %q), want blocked by in-flight payment", payable, reason)
		}
	})

	t.Run("unclaimed payment blocks", func(t *testing.T) {
		e, payees, payments := newTestEvaluator(t)
		payee := addPayee(t, payees, "seller@example.com")
		addPayment(t, payments, payee.ID, domain.PaymentUnclaimed)

		payable, _, err := e.IsPayable(payee, now, Options{})
		if err != nil {
			t.Fatalf("IsPayable failed: %v", err)
		}
		if payable {
			t.Error("unclaimed payment should block")
		}
	})

	t.Run("failed payment does not block", func(t *testing.T) {
		e, payees, payments := newTestEvaluator(t)
		payee := addPayee(t, payees, "seller@example.com")
		addPayment(t, payments, payee.ID, domain.PaymentFailed)

		payable, _, err := e.IsPayable(payee, now, Options{})
		if err != nil {
			t.Fatalf("IsPayable failed: %v", err)
		}
		if !payable {
			t.Error("terminal payment should not block")
		}
	})
}

func TestIsPayableCooldown(t *testing.T) {
	e, payees, payments := newTestEvaluator(t)
	payee := addPayee(t, payees, "seller@example.com")
	p := addPayment(t, payments, payee.ID, domain.PaymentProcessing)

	// Complete the payment now; updated_at becomes the completion time.
	if _, err := payments.TransitionAndCascade(
		p.ID, []domain.PaymentState{domain.PaymentProcessing}, domain.PaymentCompleted, "txn-1", 0, "",
	); err != nil {
		t.Fatalf("complete payment: %v", err)
	}

	payable, reason, err := e.IsPayable(payee, time.Now(), Options{})
	if err != nil {
		t.Fatalf("IsPayable failed: %v", err)
	}
	if payable || reason != ReasonCooldown {
		t.Errorf("IsPayable = (%v, %q), want cooldown block", payable, reason)
	}

	// Well past the cooldown the payee is payable again.
	payable, _, err = e.IsPayable(payee, time.Now().Add(8*24*time.Hour), Options{})
	if err != nil {
		t.Fatalf("IsPayable failed: %v", err)
	}
	if !payable {
		t.Error("payee should be payable after the cooldown")
	}
}

func TestIsPayableNoteRecording(t *testing.T) {
	e, payees, _ := newTestEvaluator(t)
	payee := addPayee(t, payees, "")

	// Probe without note recording.
	if _, _, err := e.IsPayable(payee, time.Now(), Options{}); err != nil {
		t.Fatalf("IsPayable failed: %v", err)
	}
	notes, err := payees.ListNotes(payee.ID)
	if err != nil {
		t.Fatalf("ListNotes failed: %v", err)
	}
	if len(notes) != 0 {
		t.Fatalf("probe recorded %d notes, want 0", len(notes))
	}

	// A payout run records the skip.
	if _, _, err := e.IsPayable(payee, time.Now(), Options{RecordNote: true}); err != nil {
		t.Fatalf("IsPayable failed: %v", err)
	}
	notes, err = payees.ListNotes(payee.ID)
	if err != nil {
		t.Fatalf("ListNotes failed: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("run recorded %d notes, want 1", len(notes))
	}
}
