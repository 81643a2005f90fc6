package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"billgen/backend/internal/billing"
	"billgen/backend/internal/cache"
	"billgen/backend/internal/domain"
	"billgen/backend/internal/store"
	"billgen/backend/internal/store/memory"
)

func newTestService() *Service {
	repo := memory.NewSeeded()
	sequencer := billing.NewSequencer(repo, "INV", "")
	return New(repo, sequencer, cache.NoopProductCache{}, 18)
}

func adminContext() context.Context {
	return WithActor(context.Background(), domain.Actor{
		EmployeeID: "EMP001",
		Role:       domain.RoleAdmin,
	})
}

func cashierContext(employeeID string) context.Context {
	return WithActor(context.Background(), domain.Actor{
		EmployeeID: employeeID,
		Role:       domain.RoleEmployee,
	})
}

func TestCreateBillComputesTotalsAndSequence(t *testing.T) {
	svc := newTestService()
	ctx := cashierContext("EMP002")

	resp, err := svc.CreateBill(ctx, domain.BillCreateRequest{
		CustomerName: "Asha",
		Items: []domain.LineItem{
			{ProductName: "Khari Biscuit 200g", Quantity: 2, UnitPrice: 50},
		},
		Discount:      domain.Discount{Kind: domain.DiscountPercent, Value: 10},
		PaymentMethod: "cash",
		CashReceived:  150,
	})
	if err != nil {
		t.Fatalf("create bill failed: %v", err)
	}

	if resp.Bill.Subtotal != 100 {
		t.Fatalf("expected subtotal 100, got %v", resp.Bill.Subtotal)
	}
	if resp.Bill.Discount != 10 {
		t.Fatalf("expected discount 10, got %v", resp.Bill.Discount)
	}
	if resp.Bill.TaxableAmount != 90 {
		t.Fatalf("expected taxable 90, got %v", resp.Bill.TaxableAmount)
	}
	if resp.Bill.TaxAmount != 16.2 {
		t.Fatalf("expected tax 16.2, got %v", resp.Bill.TaxAmount)
	}
	if resp.Bill.Total != 106.2 {
		t.Fatalf("expected total 106.2, got %v", resp.Bill.Total)
	}
	if resp.Bill.ChangeDue != 43.8 {
		t.Fatalf("expected change 43.8, got %v", resp.Bill.ChangeDue)
	}
	if resp.Bill.CreatedBy != "EMP002" {
		t.Fatalf("expected bill stamped with cashier id, got %q", resp.Bill.CreatedBy)
	}
	if got := resp.TaxSplit.CGST + resp.TaxSplit.SGST; got != resp.Bill.TaxAmount {
		t.Fatalf("CGST+SGST = %v, want exactly %v", got, resp.Bill.TaxAmount)
	}

	second, err := svc.CreateBill(ctx, domain.BillCreateRequest{
		Items: []domain.LineItem{
			{ProductName: "Cream Roll", Quantity: 1, UnitPrice: 25},
		},
		PaymentMethod: "cash",
		CashReceived:  50,
	})
	if err != nil {
		t.Fatalf("second bill failed: %v", err)
	}
	if second.Bill.InvoiceNo == resp.Bill.InvoiceNo {
		t.Fatalf("expected distinct invoice numbers, both were %s", resp.Bill.InvoiceNo)
	}
}

func TestCreateBillRejectsInsufficientCash(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateBill(context.Background(), domain.BillCreateRequest{
		Items: []domain.LineItem{
			{ProductName: "Nankhatai 250g", Quantity: 1, UnitPrice: 80},
		},
		PaymentMethod: "cash",
		CashReceived:  50,
	})
	if !errors.Is(err, store.ErrInvalidBill) {
		t.Fatalf("expected ErrInvalidBill for short cash, got %v", err)
	}
}

func TestCreateBillNonCashRequiresReference(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateBill(context.Background(), domain.BillCreateRequest{
		Items: []domain.LineItem{
			{ProductName: "Cream Roll", Quantity: 1, UnitPrice: 25},
		},
		PaymentMethod: "upi",
	})
	if !errors.Is(err, store.ErrInvalidBill) {
		t.Fatalf("expected ErrInvalidBill for UPI without reference, got %v", err)
	}

	resp, err := svc.CreateBill(context.Background(), domain.BillCreateRequest{
		Items: []domain.LineItem{
			{ProductName: "Cream Roll", Quantity: 1, UnitPrice: 25},
		},
		PaymentMethod:    "upi",
		PaymentReference: "UPI-REF-001",
	})
	if err != nil {
		t.Fatalf("UPI bill with reference failed: %v", err)
	}
	if resp.Bill.ChangeDue != 0 {
		t.Fatalf("expected no change for non-cash payment, got %v", resp.Bill.ChangeDue)
	}
}

func TestCreateBillTaxRateOverride(t *testing.T) {
	svc := newTestService()

	zero := 0.0
	resp, err := svc.CreateBill(context.Background(), domain.BillCreateRequest{
		Items: []domain.LineItem{
			{ProductName: "Milk Toast 250g", Quantity: 2, UnitPrice: 30},
		},
		TaxRate:       &zero,
		PaymentMethod: "cash",
		CashReceived:  60,
	})
	if err != nil {
		t.Fatalf("create bill failed: %v", err)
	}
	if resp.Bill.TaxAmount != 0 {
		t.Fatalf("expected zero tax with override, got %v", resp.Bill.TaxAmount)
	}
	if resp.Bill.Total != 60 {
		t.Fatalf("expected total 60, got %v", resp.Bill.Total)
	}

	tooHigh := 150.0
	_, err = svc.CreateBill(context.Background(), domain.BillCreateRequest{
		Items: []domain.LineItem{
			{ProductName: "Milk Toast 250g", Quantity: 1, UnitPrice: 30},
		},
		TaxRate:       &tooHigh,
		PaymentMethod: "cash",
		CashReceived:  100,
	})
	if !errors.Is(err, store.ErrInvalidBill) {
		t.Fatalf("expected ErrInvalidBill for out-of-range override, got %v", err)
	}
}

func TestCreateBillMergesDuplicateScanLines(t *testing.T) {
	svc := newTestService()

	resp, err := svc.CreateBill(context.Background(), domain.BillCreateRequest{
		Items: []domain.LineItem{
			{ProductName: "Cream Roll", Quantity: 1, UnitPrice: 25},
			{ProductName: "Cream Roll", Quantity: 1, UnitPrice: 25},
			{ProductName: "  ", Quantity: 3, UnitPrice: 10},
		},
		PaymentMethod: "cash",
		CashReceived:  100,
	})
	if err != nil {
		t.Fatalf("create bill failed: %v", err)
	}
	if len(resp.Bill.Items) != 1 {
		t.Fatalf("expected duplicate lines merged into 1, got %d", len(resp.Bill.Items))
	}
	if resp.Bill.Items[0].Quantity != 2 {
		t.Fatalf("expected merged quantity 2, got %d", resp.Bill.Items[0].Quantity)
	}
}

func TestCreateBillDecrementsCatalogStock(t *testing.T) {
	svc := newTestService()

	before, err := svc.LookupBarcode(context.Background(), "8901001000011")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}

	_, err = svc.CreateBill(context.Background(), domain.BillCreateRequest{
		Items: []domain.LineItem{
			{ProductName: before.Name, Quantity: 3, UnitPrice: before.UnitPrice},
		},
		PaymentMethod: "cash",
		CashReceived:  500,
	})
	if err != nil {
		t.Fatalf("create bill failed: %v", err)
	}

	after, err := svc.LookupBarcode(context.Background(), "8901001000011")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if after.Stock != before.Stock-3 {
		t.Fatalf("expected stock %d after sale, got %d", before.Stock-3, after.Stock)
	}
}

// brokenSequenceRepo fails every invoice-sequence operation while leaving the
// rest of the repository intact.
type brokenSequenceRepo struct {
	store.Repository
}

func (brokenSequenceRepo) GetInvoiceSequence(_ context.Context, _ string) (int, error) {
	return 0, errors.New("sequence table unreachable")
}

func (brokenSequenceRepo) CreateInvoiceSequence(_ context.Context, _ string) error {
	return errors.New("sequence table unreachable")
}

func (brokenSequenceRepo) IncrementInvoiceSequence(_ context.Context, _ string) (int, error) {
	return 0, errors.New("sequence table unreachable")
}

func TestCreateBillFailsClosedWhenSequenceStoreDown(t *testing.T) {
	repo := brokenSequenceRepo{Repository: memory.NewSeeded()}
	sequencer := billing.NewSequencer(repo, "INV", "")
	svc := New(repo, sequencer, cache.NoopProductCache{}, 18)

	_, err := svc.CreateBill(context.Background(), domain.BillCreateRequest{
		Items: []domain.LineItem{
			{ProductName: "Cream Roll", Quantity: 1, UnitPrice: 25},
		},
		PaymentMethod: "cash",
		CashReceived:  50,
	})
	if !errors.Is(err, billing.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", err)
	}

	// No bill may exist for a number that was never issued.
	list, err := svc.SearchBills(context.Background(), domain.BillSearchRequest{})
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(list.Bills) != 0 {
		t.Fatalf("expected no bills persisted, got %d", len(list.Bills))
	}
}

func TestCreateProductRequiresAdmin(t *testing.T) {
	svc := newTestService()

	_, err := svc.CreateProduct(cashierContext("EMP002"), domain.ProductCreateRequest{
		Barcode:   "8901001000099",
		Name:      "Coconut Cookie 150g",
		UnitPrice: 55,
	})
	if err == nil {
		t.Fatalf("expected non-admin create product to fail")
	}

	product, err := svc.CreateProduct(adminContext(), domain.ProductCreateRequest{
		Barcode:      "8901001000099",
		Name:         "Coconut Cookie 150g",
		Category:     "bakery",
		HSNCode:      "1905",
		UnitPrice:    55,
		InitialStock: 30,
	})
	if err != nil {
		t.Fatalf("admin create product failed: %v", err)
	}
	if product.ID == "" {
		t.Fatalf("expected product id to be assigned")
	}
}

func TestAdjustStockCannotGoNegative(t *testing.T) {
	svc := newTestService()
	ctx := adminContext()

	product, err := svc.LookupBarcode(ctx, "8901001000035")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}

	_, err = svc.AdjustStock(ctx, product.ID, -(product.Stock + 1))
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	adjusted, err := svc.AdjustStock(ctx, product.ID, 10)
	if err != nil {
		t.Fatalf("adjust stock failed: %v", err)
	}
	if adjusted.Stock != product.Stock+10 {
		t.Fatalf("expected stock %d, got %d", product.Stock+10, adjusted.Stock)
	}
}

// countingCache records cache traffic so tests can observe the lookup path.
type countingCache struct {
	entries map[string]*domain.Product
	gets    int
	sets    int
	hits    int
}

func newCountingCache() *countingCache {
	return &countingCache{entries: make(map[string]*domain.Product)}
}

func (c *countingCache) Get(_ context.Context, barcode string) (*domain.Product, bool, error) {
	c.gets++
	if product, ok := c.entries[barcode]; ok {
		c.hits++
		return product, true, nil
	}
	return nil, false, nil
}

func (c *countingCache) Set(_ context.Context, barcode string, product *domain.Product, _ time.Duration) error {
	c.sets++
	c.entries[barcode] = product
	return nil
}

func (c *countingCache) Invalidate(_ context.Context, barcode string) error {
	delete(c.entries, barcode)
	return nil
}

func TestLookupBarcodePopulatesCache(t *testing.T) {
	repo := memory.NewSeeded()
	sequencer := billing.NewSequencer(repo, "INV", "")
	cached := newCountingCache()
	svc := New(repo, sequencer, cached, 18)

	first, err := svc.LookupBarcode(context.Background(), "8901001000042")
	if err != nil {
		t.Fatalf("first lookup failed: %v", err)
	}
	if cached.sets != 1 {
		t.Fatalf("expected cache set after store hit, got %d", cached.sets)
	}

	second, err := svc.LookupBarcode(context.Background(), "8901001000042")
	if err != nil {
		t.Fatalf("second lookup failed: %v", err)
	}
	if cached.hits != 1 {
		t.Fatalf("expected second lookup served from cache, hits=%d", cached.hits)
	}
	if first.Name != second.Name {
		t.Fatalf("cache returned a different product: %q vs %q", first.Name, second.Name)
	}
}

func TestUpdateProductInvalidatesCache(t *testing.T) {
	repo := memory.NewSeeded()
	sequencer := billing.NewSequencer(repo, "INV", "")
	cached := newCountingCache()
	svc := New(repo, sequencer, cached, 18)
	ctx := adminContext()

	product, err := svc.LookupBarcode(ctx, "8901001000028")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if _, ok := cached.entries[product.Barcode]; !ok {
		t.Fatalf("expected product cached after lookup")
	}

	newPrice := 35.0
	if _, err := svc.UpdateProduct(ctx, product.ID, domain.ProductUpdateRequest{UnitPrice: &newPrice}); err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if _, ok := cached.entries[product.Barcode]; ok {
		t.Fatalf("expected cache entry invalidated after update")
	}
}

func TestPendingBillVisibilityByRole(t *testing.T) {
	svc := newTestService()

	_, err := svc.HoldBill(cashierContext("EMP002"), domain.PendingBillRequest{
		Items: []domain.LineItem{
			{ProductName: "Butter Chakli 200g", Quantity: 1, UnitPrice: 65},
		},
	})
	if err != nil {
		t.Fatalf("hold failed: %v", err)
	}

	other, err := svc.ListPendingBills(cashierContext("EMP003"))
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(other.PendingBills) != 0 {
		t.Fatalf("expected other cashier to see no held carts, got %d", len(other.PendingBills))
	}

	all, err := svc.ListPendingBills(adminContext())
	if err != nil {
		t.Fatalf("admin list failed: %v", err)
	}
	if len(all.PendingBills) != 1 {
		t.Fatalf("expected admin to see 1 held cart, got %d", len(all.PendingBills))
	}
}

func TestHoldBillRequiresActor(t *testing.T) {
	svc := newTestService()

	_, err := svc.HoldBill(context.Background(), domain.PendingBillRequest{
		Items: []domain.LineItem{
			{ProductName: "Cream Roll", Quantity: 1, UnitPrice: 25},
		},
	})
	if err == nil {
		t.Fatalf("expected hold without actor to fail")
	}
}

func TestPurgeStalePendingBills(t *testing.T) {
	svc := newTestService()
	base := time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return base }

	_, err := svc.HoldBill(cashierContext("EMP002"), domain.PendingBillRequest{
		Items: []domain.LineItem{
			{ProductName: "Premium Rusk 300g", Quantity: 1, UnitPrice: 40},
		},
	})
	if err != nil {
		t.Fatalf("hold failed: %v", err)
	}

	// Two days later the held cart is stale.
	svc.now = func() time.Time { return base.Add(48 * time.Hour) }
	purged, err := svc.PurgeStalePendingBills(adminContext(), 24*time.Hour)
	if err != nil {
		t.Fatalf("purge failed: %v", err)
	}
	if purged != 1 {
		t.Fatalf("expected 1 purged cart, got %d", purged)
	}
}

func TestDailySummaryIncludesInvoicesIssued(t *testing.T) {
	svc := newTestService()
	ctx := cashierContext("EMP002")

	for i := 0; i < 2; i++ {
		_, err := svc.CreateBill(ctx, domain.BillCreateRequest{
			Items: []domain.LineItem{
				{ProductName: "Khari Biscuit 200g", Quantity: 1, UnitPrice: 50},
			},
			PaymentMethod: "cash",
			CashReceived:  100,
		})
		if err != nil {
			t.Fatalf("bill %d failed: %v", i+1, err)
		}
	}

	summary, err := svc.DailySummary(adminContext(), "")
	if err != nil {
		t.Fatalf("daily summary failed: %v", err)
	}
	if summary.BillCount != 2 {
		t.Fatalf("expected 2 bills, got %d", summary.BillCount)
	}
	if summary.InvoicesIssued != 2 {
		t.Fatalf("expected 2 invoices issued, got %d", summary.InvoicesIssued)
	}
	if summary.GrossSales != 100 {
		t.Fatalf("expected gross sales 100, got %v", summary.GrossSales)
	}
}

func TestSetActiveTaxSettingRequiresAdmin(t *testing.T) {
	svc := newTestService()

	if _, err := svc.SetActiveTaxSetting(cashierContext("EMP002"), "GST_5"); err == nil {
		t.Fatalf("expected non-admin activation to fail")
	}

	settings, err := svc.SetActiveTaxSetting(adminContext(), "gst_5")
	if err != nil {
		t.Fatalf("activation failed: %v", err)
	}

	var activeRate float64 = -1
	for _, setting := range settings {
		if setting.Active {
			activeRate = setting.Rate
		}
	}
	if activeRate != 5 {
		t.Fatalf("expected GST_5 active, active rate was %v", activeRate)
	}

	resp, err := svc.CreateBill(context.Background(), domain.BillCreateRequest{
		Items: []domain.LineItem{
			{ProductName: "Milk Toast 250g", Quantity: 1, UnitPrice: 30},
		},
		PaymentMethod: "cash",
		CashReceived:  50,
	})
	if err != nil {
		t.Fatalf("create bill failed: %v", err)
	}
	if resp.Bill.TaxRate != 5 {
		t.Fatalf("expected bill to use active rate 5, got %v", resp.Bill.TaxRate)
	}
}
