package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadAppliesInvoiceDefaults(t *testing.T) {
	t.Setenv("INVOICE_PREFIX", "")
	t.Setenv("INVOICE_NUMBER_FORMAT", "")
	t.Setenv("DEFAULT_TAX_RATE", "")

	cfg := Load()
	if cfg.InvoicePrefix != "INV" {
		t.Fatalf("expected default invoice prefix INV, got %q", cfg.InvoicePrefix)
	}
	if cfg.InvoiceNumberFormat != "{prefix}-{date}-{sequence}" {
		t.Fatalf("unexpected default number format %q", cfg.InvoiceNumberFormat)
	}
	if cfg.DefaultTaxRate != 18 {
		t.Fatalf("expected default tax rate 18, got %v", cfg.DefaultTaxRate)
	}
}

func TestLoadRejectsOutOfRangeTaxRate(t *testing.T) {
	t.Setenv("DEFAULT_TAX_RATE", "250")

	cfg := Load()
	if cfg.DefaultTaxRate != 18 {
		t.Fatalf("expected out-of-range tax rate to fall back to 18, got %v", cfg.DefaultTaxRate)
	}
}
