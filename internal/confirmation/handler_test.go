package confirmation

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/zandy2test/gumroad-sub033/internal/domain"
	"github.com/zandy2test/gumroad-sub033/internal/repository"
)

type handlerFixture struct {
	handler  *Handler
	payees   *repository.PayeeRepo
	balances *repository.BalanceRepo
	payments *repository.PaymentRepo
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	db, err := repository.InitDB(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("init db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	payments := repository.NewPaymentRepo(db)
	return &handlerFixture{
		handler:  NewHandler(payments),
		payees:   repository.NewPayeeRepo(db),
		balances: repository.NewBalanceRepo(db),
		payments: payments,
	}
}

// seedProcessingPayment creates one payment with one claimed balance,
// already submitted to the processor.
func (fx *handlerFixture) seedProcessingPayment(t *testing.T) (*domain.Payment, *domain.Balance) {
	t.Helper()
	payee := &domain.Payee{Name: "Seller", PayoutAddress: "seller@example.com", Currency: "USD"}
	if err := fx.payees.Insert(payee); err != nil {
		t.Fatalf("insert payee: %v", err)
	}
	b := &domain.Balance{
		PayeeID:      payee.ID,
		AmountCents:  1000,
		Currency:     "USD",
		EarningsDate: time.Now().AddDate(0, 0, -5),
	}
	if err := fx.balances.Insert(b); err != nil {
		t.Fatalf("insert balance: %v", err)
	}
	p := &domain.Payment{
		PayeeID:       payee.ID,
		GrossCents:    1000,
		AmountCents:   951,
		Currency:      "USD",
		PayoutAddress: payee.PayoutAddress,
	}
	if err := fx.payments.CreateWithClaim(p, []string{b.ID}); err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if err := fx.payments.MarkProcessing(p.ID, "corr-1"); err != nil {
		t.Fatalf("mark processing: %v", err)
	}
	return p, b
}

func (fx *handlerFixture) seedSplitPayment(t *testing.T, chunks ...int64) (*domain.Payment, *domain.Balance) {
	t.Helper()
	p, b := fx.seedProcessingPayment(t)
	transfers := make([]domain.SplitTransfer, len(chunks))
	for i, amount := range chunks {
		transfers[i] = domain.SplitTransfer{
			PaymentID:   p.ID,
			Ordinal:     i + 1,
			AmountCents: amount,
			State:       domain.PaymentProcessing,
		}
	}
	if err := fx.payments.InitSplit(p.ID, transfers); err != nil {
		t.Fatalf("init split: %v", err)
	}
	return p, b
}

func event(uniqueID string, status domain.DeliveryStatus) domain.ConfirmationEvent {
	return domain.ConfirmationEvent{
		UniqueID:      uniqueID,
		Status:        status,
		TransferTxnID: "txn-ev",
	}
}

func TestHandleEventPayment(t *testing.T) {
	t.Run("completed settles payment and balances", func(t *testing.T) {
		fx := newHandlerFixture(t)
		p, b := fx.seedProcessingPayment(t)

		ev := event(p.ID, domain.StatusCompleted)
		ev.ProcessorFeeCents = 95
		if err := fx.handler.HandleEvent(ev); err != nil {
			t.Fatalf("HandleEvent failed: %v", err)
		}

		got, _ := fx.payments.GetByID(p.ID)
		if got.State != domain.PaymentCompleted || got.ProcessorFeeCents != 95 {
			t.Errorf("payment = (%q, %d), want (completed, 95)", got.State, got.ProcessorFeeCents)
		}
		bal, _ := fx.balances.GetByID(b.ID)
		if bal.State != domain.BalancePaid {
			t.Errorf("balance state = %q, want paid", bal.State)
		}
	})

	t.Run("pending after completed is a no-op", func(t *testing.T) {
		fx := newHandlerFixture(t)
		p, _ := fx.seedProcessingPayment(t)

		if err := fx.handler.HandleEvent(event(p.ID, domain.StatusCompleted)); err != nil {
			t.Fatalf("HandleEvent failed: %v", err)
		}
		if err := fx.handler.HandleEvent(event(p.ID, domain.StatusPending)); err != nil {
			t.Fatalf("HandleEvent failed: %v", err)
		}

		got, _ := fx.payments.GetByID(p.ID)
		if got.State != domain.PaymentCompleted {
			t.Errorf("state = %q after late pending, want completed", got.State)
		}
	})

	t.Run("duplicate completed reapplies as no-op", func(t *testing.T) {
		fx := newHandlerFixture(t)
		p, _ := fx.seedProcessingPayment(t)

		ev := event(p.ID, domain.StatusCompleted)
		ev.ProcessorFeeCents = 95
		for i := 0; i < 3; i++ {
			if err := fx.handler.HandleEvent(ev); err != nil {
				t.Fatalf("HandleEvent failed: %v", err)
			}
		}

		got, _ := fx.payments.GetByID(p.ID)
		if got.ProcessorFeeCents != 95 {
			t.Errorf("fee = %d after duplicates, want 95", got.ProcessorFeeCents)
		}
	})

	t.Run("unclaimed may still complete", func(t *testing.T) {
		fx := newHandlerFixture(t)
		p, b := fx.seedProcessingPayment(t)

		if err := fx.handler.HandleEvent(event(p.ID, domain.StatusUnclaimed)); err != nil {
			t.Fatalf("HandleEvent failed: %v", err)
		}
		got, _ := fx.payments.GetByID(p.ID)
		if got.State != domain.PaymentUnclaimed {
			t.Fatalf("state = %q, want unclaimed", got.State)
		}
		// Balances stay claimed while the transfer is in limbo.
		bal, _ := fx.balances.GetByID(b.ID)
		if bal.State != domain.BalanceProcessing {
			t.Errorf("balance state = %q, want processing", bal.State)
		}

		if err := fx.handler.HandleEvent(event(p.ID, domain.StatusCompleted)); err != nil {
			t.Fatalf("HandleEvent failed: %v", err)
		}
		got, _ = fx.payments.GetByID(p.ID)
		if got.State != domain.PaymentCompleted {
			t.Errorf("state = %q, want completed", got.State)
		}
	})

	t.Run("unclaimed may be returned but not failed", func(t *testing.T) {
		fx := newHandlerFixture(t)
		p, b := fx.seedProcessingPayment(t)

		if err := fx.handler.HandleEvent(event(p.ID, domain.StatusUnclaimed)); err != nil {
			t.Fatalf("HandleEvent failed: %v", err)
		}

		// Failed does not fire from unclaimed.
		if err := fx.handler.HandleEvent(event(p.ID, domain.StatusFailed)); err != nil {
			t.Fatalf("HandleEvent failed: %v", err)
		}
		got, _ := fx.payments.GetByID(p.ID)
		if got.State != domain.PaymentUnclaimed {
			t.Fatalf("state = %q after failed event, want unclaimed", got.State)
		}

		// Returned does, and releases the balances.
		if err := fx.handler.HandleEvent(event(p.ID, domain.StatusReturned)); err != nil {
			t.Fatalf("HandleEvent failed: %v", err)
		}
		got, _ = fx.payments.GetByID(p.ID)
		if got.State != domain.PaymentReturned {
			t.Errorf("state = %q, want returned", got.State)
		}
		bal, _ := fx.balances.GetByID(b.ID)
		if bal.State != domain.BalanceUnpaid || bal.PaymentID != "" {
			t.Errorf("balance = (%q, %q), want released", bal.State, bal.PaymentID)
		}
	})

	t.Run("failure reason falls back to unclassified", func(t *testing.T) {
		fx := newHandlerFixture(t)
		p, _ := fx.seedProcessingPayment(t)

		ev := event(p.ID, domain.StatusFailed)
		if err := fx.handler.HandleEvent(ev); err != nil {
			t.Fatalf("HandleEvent failed: %v", err)
		}

		got, _ := fx.payments.GetByID(p.ID)
		if got.FailureReason != domain.ReasonUnclassified {
			t.Errorf("failure reason = %q, want unclassified", got.FailureReason)
		}
	})

	t.Run("unknown unique id is reported", func(t *testing.T) {
		fx := newHandlerFixture(t)

		err := fx.handler.HandleEvent(event("no-such-payment", domain.StatusCompleted))
		if !errors.Is(err, domain.ErrUnknownTransfer) {
			t.Fatalf("err = %v, want ErrUnknownTransfer", err)
		}
	})

	t.Run("unrecognised status is rejected", func(t *testing.T) {
		fx := newHandlerFixture(t)
		p, _ := fx.seedProcessingPayment(t)

		if err := fx.handler.HandleEvent(event(p.ID, "Exploded")); err == nil {
			t.Fatal("expected error for unknown status")
		}
	})
}

func TestHandleEventSplit(t *testing.T) {
	t.Run("routes composite ids to the right chunk", func(t *testing.T) {
		fx := newHandlerFixture(t)
		p, b := fx.seedSplitPayment(t, 500, 451)

		ev1 := event(p.ID+"-1", domain.StatusCompleted)
		ev1.ProcessorFeeCents = 10
		if err := fx.handler.HandleEvent(ev1); err != nil {
			t.Fatalf("HandleEvent failed: %v", err)
		}

		// One chunk done: parent still processing.
		got, _ := fx.payments.GetByID(p.ID)
		if got.State != domain.PaymentProcessing {
			t.Fatalf("parent state = %q after one chunk, want processing", got.State)
		}

		ev2 := event(p.ID+"-2", domain.StatusCompleted)
		ev2.ProcessorFeeCents = 15
		if err := fx.handler.HandleEvent(ev2); err != nil {
			t.Fatalf("HandleEvent failed: %v", err)
		}

		got, _ = fx.payments.GetByID(p.ID)
		if got.State != domain.PaymentCompleted {
			t.Errorf("parent state = %q, want completed", got.State)
		}
		if got.ProcessorFeeCents != 25 {
			t.Errorf("parent fee = %d, want 25", got.ProcessorFeeCents)
		}
		bal, _ := fx.balances.GetByID(b.ID)
		if bal.State != domain.BalancePaid {
			t.Errorf("balance state = %q, want paid", bal.State)
		}
	})

	t.Run("chunk order does not matter", func(t *testing.T) {
		fx := newHandlerFixture(t)
		p, _ := fx.seedSplitPayment(t, 500, 451)

		if err := fx.handler.HandleEvent(event(p.ID+"-2", domain.StatusCompleted)); err != nil {
			t.Fatalf("HandleEvent failed: %v", err)
		}
		if err := fx.handler.HandleEvent(event(p.ID+"-1", domain.StatusCompleted)); err != nil {
			t.Fatalf("HandleEvent failed: %v", err)
		}

		got, _ := fx.payments.GetByID(p.ID)
		if got.State != domain.PaymentCompleted {
			t.Errorf("parent state = %q, want completed", got.State)
		}
	})

	t.Run("mixed outcomes leave the parent processing", func(t *testing.T) {
		fx := newHandlerFixture(t)
		p, _ := fx.seedSplitPayment(t, 500, 451)

		if err := fx.handler.HandleEvent(event(p.ID+"-1", domain.StatusCompleted)); err != nil {
			t.Fatalf("HandleEvent failed: %v", err)
		}
		if err := fx.handler.HandleEvent(event(p.ID+"-2", domain.StatusFailed)); err != nil {
			t.Fatalf("HandleEvent failed: %v", err)
		}

		got, _ := fx.payments.GetByID(p.ID)
		if got.State != domain.PaymentProcessing {
			t.Errorf("parent state = %q, want processing for operator review", got.State)
		}
	})

	t.Run("event without ordinal cannot target a split payment", func(t *testing.T) {
		fx := newHandlerFixture(t)
		p, _ := fx.seedSplitPayment(t, 500, 451)

		err := fx.handler.HandleEvent(event(p.ID, domain.StatusCompleted))
		if !errors.Is(err, domain.ErrUnknownTransfer) {
			t.Fatalf("err = %v, want ErrUnknownTransfer", err)
		}
	})

	t.Run("out-of-range ordinal is rejected", func(t *testing.T) {
		fx := newHandlerFixture(t)
		p, _ := fx.seedSplitPayment(t, 500, 451)

		err := fx.handler.HandleEvent(event(p.ID+"-7", domain.StatusCompleted))
		if !errors.Is(err, domain.ErrUnknownTransfer) {
			t.Fatalf("err = %v, want ErrUnknownTransfer", err)
		}
	})
}

func TestSplitUniqueID(t *testing.T) {
	tests := []struct {
		in        string
		paymentID string
		ordinal   int
		ok        bool
	}{
		{"abc-1", "abc", 1, true},
		{"a-b-c-12", "a-b-c", 12, true},
		{"abc-0", "", 0, false},
		{"abc-", "", 0, false},
		{"-1", "", 0, false},
		{"abc", "", 0, false},
		{"abc-99999", "", 0, false},
		{"550e8400-e29b-41d4-a716-446655440000-3", "550e8400-e29b-41d4-a716-446655440000", 3, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			paymentID, ordinal, ok := splitUniqueID(tt.in)
			if paymentID != tt.paymentID || ordinal != tt.ordinal || ok != tt.ok {
				t.Errorf("splitUniqueID(%q) = (%q, %d, %v), want (%q, %d, %v)",
					tt.in, paymentID, ordinal, ok, tt.paymentID, tt.ordinal, tt.ok)
			}
		})
	}
}
