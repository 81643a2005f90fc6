package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"billgen/backend/internal/domain"
	"billgen/backend/internal/store"
)

func newIntegrationStore(t *testing.T) *Store {
	t.Helper()

	databaseURL := os.Getenv("BILLGEN_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set BILLGEN_TEST_DATABASE_URL to run postgres integration tests")
	}

	s, err := New(context.Background(), databaseURL)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})
	return s
}

func TestInvoiceSequenceLifecycle(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	// A date far in the future keeps the row clear of production data.
	stamp := time.Now().UnixNano()
	day := time.Date(2090, 1, 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, int(stamp%3650)).
		Format(domain.DateLayout)

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM invoice_sequence WHERE date = $1::date`, day)
	})

	if _, err := s.GetInvoiceSequence(ctx, day); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for fresh date, got %v", err)
	}
	if _, err := s.IncrementInvoiceSequence(ctx, day); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected increment on missing row to return ErrNotFound, got %v", err)
	}

	if err := s.CreateInvoiceSequence(ctx, day); err != nil {
		t.Fatalf("create sequence: %v", err)
	}
	if err := s.CreateInvoiceSequence(ctx, day); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict on duplicate create, got %v", err)
	}

	seq, err := s.IncrementInvoiceSequence(ctx, day)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if seq != 2 {
		t.Fatalf("expected sequence 2 after create+increment, got %d", seq)
	}

	last, err := s.GetInvoiceSequence(ctx, day)
	if err != nil {
		t.Fatalf("get sequence: %v", err)
	}
	if last != 2 {
		t.Fatalf("expected stored sequence 2, got %d", last)
	}
}

func TestCreateBillRoundTrip(t *testing.T) {
	s := newIntegrationStore(t)
	ctx := context.Background()

	stamp := time.Now().UnixNano()
	invoiceNo := fmt.Sprintf("INV-IT-%d", stamp)
	now := time.Now().UTC()

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM bill_items WHERE invoice_no = $1`, invoiceNo)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM bills WHERE invoice_no = $1`, invoiceNo)
	})

	// Free-form line names avoid touching catalog stock.
	bill := domain.Bill{
		InvoiceNo:    invoiceNo,
		Date:         now.Format(domain.DateLayout),
		CustomerName: "Integration Customer",
		Items: []domain.LineItem{
			{ProductName: fmt.Sprintf("Custom Cake %d", stamp), Quantity: 1, UnitPrice: 450},
			{ProductName: fmt.Sprintf("Candles %d", stamp), Quantity: 2, UnitPrice: 20},
		},
		Discount:      40,
		TaxRate:       18,
		Subtotal:      490,
		TaxableAmount: 450,
		TaxAmount:     81,
		Total:         531,
		PaymentMethod: domain.PaymentCash,
		CashReceived:  600,
		ChangeDue:     69,
		CreatedBy:     "EMP001",
		CreatedAt:     now,
	}

	created, err := s.CreateBill(ctx, bill)
	if err != nil {
		t.Fatalf("create bill: %v", err)
	}
	if created.InvoiceNo != invoiceNo {
		t.Fatalf("unexpected invoice number %s", created.InvoiceNo)
	}

	fetched, err := s.GetBillByNumber(ctx, invoiceNo)
	if err != nil {
		t.Fatalf("get bill: %v", err)
	}
	if len(fetched.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(fetched.Items))
	}
	if fetched.Total != 531 {
		t.Fatalf("expected total 531, got %v", fetched.Total)
	}
	if fetched.Items[0].ProductName != bill.Items[0].ProductName {
		t.Fatalf("item order not preserved: got %q first", fetched.Items[0].ProductName)
	}

	if _, err := s.GetBillByNumber(ctx, invoiceNo+"-missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown invoice, got %v", err)
	}
}
