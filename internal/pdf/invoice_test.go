package pdf

import (
	"bytes"
	"testing"
	"time"

	"billgen/backend/internal/domain"
)

func TestRenderProducesPDFDocument(t *testing.T) {
	renderer := NewInvoiceRenderer(CompanyInfo{
		Name:      "Jay Laxmi Food Processing",
		Address:   "Plot 14, MIDC, Nashik",
		Phone:     "02532-555111",
		GSTIN:     "27ABCDE1234F1Z5",
		StateName: "Maharashtra",
		StateCode: "27",
	})

	payload, err := renderer.Render(domain.Bill{
		InvoiceNo:    "INV-20260824-0001",
		Date:         "2026-08-24",
		CustomerName: "Sunita Traders",
		Items: []domain.LineItem{
			{ProductName: "Khari Biscuit 200g", HSNCode: "1905", Quantity: 2, UnitPrice: 50},
			{ProductName: "Premium Rusk 300g", HSNCode: "1905", Quantity: 1, UnitPrice: 40},
		},
		Discount:      10,
		TaxRate:       18,
		Subtotal:      140,
		TaxableAmount: 130,
		TaxAmount:     23.4,
		Total:         153.4,
		PaymentMethod: domain.PaymentCash,
		CashReceived:  200,
		ChangeDue:     46.6,
		CreatedAt:     time.Date(2026, 8, 24, 11, 30, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if !bytes.HasPrefix(payload, []byte("%PDF")) {
		t.Fatalf("output does not start with a PDF header")
	}
	if len(payload) < 1000 {
		t.Fatalf("suspiciously small PDF (%d bytes)", len(payload))
	}
}

func TestRenderNonCashShowsPaymentReference(t *testing.T) {
	renderer := NewInvoiceRenderer(CompanyInfo{Name: "Test Bakery"})

	payload, err := renderer.Render(domain.Bill{
		InvoiceNo: "INV-20260824-0002",
		Date:      "2026-08-24",
		Items: []domain.LineItem{
			{ProductName: "Cream Roll", Quantity: 1, UnitPrice: 25},
		},
		TaxRate:          18,
		Subtotal:         25,
		TaxableAmount:    25,
		TaxAmount:        4.5,
		Total:            29.5,
		PaymentMethod:    domain.PaymentUPI,
		PaymentReference: "UPI-REF-777",
	})
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	if len(payload) == 0 {
		t.Fatalf("expected non-empty PDF output")
	}
}
