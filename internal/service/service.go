package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"billgen/backend/internal/billing"
	"billgen/backend/internal/cache"
	"billgen/backend/internal/domain"
	"billgen/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

const productCacheTTL = 10 * time.Minute

type Service struct {
	repo           store.Repository
	sequencer      *billing.Sequencer
	products       cache.ProductCache
	defaultTaxRate float64
	now            func() time.Time
}

func New(repo store.Repository, sequencer *billing.Sequencer, products cache.ProductCache, defaultTaxRate float64) *Service {
	if products == nil {
		products = cache.NoopProductCache{}
	}
	if defaultTaxRate < 0 {
		defaultTaxRate = 0
	}

	return &Service{
		repo:           repo,
		sequencer:      sequencer,
		products:       products,
		defaultTaxRate: defaultTaxRate,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// CreateBill runs the full checkout: resolve the tax rate and discount,
// compute totals at full precision, allocate the next invoice number for
// today, then persist the rounded bill. The invoice number is only consumed
// after the cart validates, so rejected input never burns a sequence slot.
func (s *Service) CreateBill(ctx context.Context, req domain.BillCreateRequest) (domain.BillCreateResponse, error) {
	req.PaymentMethod = strings.ToUpper(strings.TrimSpace(req.PaymentMethod))
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentCash
	}
	if !isSupportedPaymentMethod(req.PaymentMethod) {
		return domain.BillCreateResponse{}, store.ErrInvalidBill
	}
	if req.PaymentMethod != domain.PaymentCash && strings.TrimSpace(req.PaymentReference) == "" {
		return domain.BillCreateResponse{}, store.ErrInvalidBill
	}

	items := normalizeItems(req.Items)
	if len(items) == 0 {
		return domain.BillCreateResponse{}, store.ErrInvalidBill
	}

	taxRate, err := s.resolveTaxRate(ctx, req.TaxRate)
	if err != nil {
		return domain.BillCreateResponse{}, err
	}

	subtotal := 0.0
	for _, item := range items {
		subtotal += item.LineTotal()
	}
	discount, err := billing.ResolveDiscount(req.Discount, subtotal)
	if err != nil {
		return domain.BillCreateResponse{}, fmt.Errorf("%w: %v", store.ErrInvalidBill, err)
	}

	totals, err := billing.Compute(items, discount, taxRate)
	if err != nil {
		return domain.BillCreateResponse{}, fmt.Errorf("%w: %v", store.ErrInvalidBill, err)
	}
	rounded := totals.Rounded()

	if req.PaymentMethod == domain.PaymentCash && req.CashReceived < rounded.Total {
		return domain.BillCreateResponse{}, store.ErrInvalidBill
	}

	now := s.now()
	invoiceNo, err := s.sequencer.NextInvoiceNumber(ctx, now)
	if err != nil {
		return domain.BillCreateResponse{}, err
	}

	changeDue := 0.0
	if req.PaymentMethod == domain.PaymentCash {
		changeDue = domain.Round2(req.CashReceived - rounded.Total)
	}

	actor, _ := ActorFromContext(ctx)

	bill := domain.Bill{
		InvoiceNo:        invoiceNo,
		Date:             now.Format(domain.DateLayout),
		CustomerName:     strings.TrimSpace(req.CustomerName),
		CustomerPhone:    strings.TrimSpace(req.CustomerPhone),
		Items:            items,
		Discount:         domain.Round2(discount),
		TaxRate:          taxRate,
		Subtotal:         rounded.Subtotal,
		TaxableAmount:    rounded.Taxable,
		TaxAmount:        rounded.Tax,
		Total:            rounded.Total,
		PaymentMethod:    req.PaymentMethod,
		PaymentReference: strings.TrimSpace(req.PaymentReference),
		CashReceived:     req.CashReceived,
		ChangeDue:        changeDue,
		CreatedBy:        actor.EmployeeID,
		CreatedAt:        now,
	}

	created, err := s.repo.CreateBill(ctx, bill)
	if err != nil {
		return domain.BillCreateResponse{}, err
	}

	log.Printf("[service] bill created invoice=%s total=%.2f payment=%s items=%d", created.InvoiceNo, created.Total, created.PaymentMethod, len(created.Items))

	return domain.BillCreateResponse{
		Bill:     *created,
		TaxSplit: billing.SplitTax(rounded.Tax, false),
	}, nil
}

func (s *Service) GetBill(ctx context.Context, invoiceNo string) (domain.Bill, error) {
	invoiceNo = strings.TrimSpace(invoiceNo)
	if invoiceNo == "" {
		return domain.Bill{}, store.ErrInvalidBill
	}

	bill, err := s.repo.GetBillByNumber(ctx, invoiceNo)
	if err != nil {
		return domain.Bill{}, err
	}
	return *bill, nil
}

func (s *Service) SearchBills(ctx context.Context, req domain.BillSearchRequest) (domain.BillListResponse, error) {
	if req.StartDate != "" {
		if _, err := time.Parse(domain.DateLayout, req.StartDate); err != nil {
			return domain.BillListResponse{}, store.ErrInvalidBill
		}
	}
	if req.EndDate != "" {
		if _, err := time.Parse(domain.DateLayout, req.EndDate); err != nil {
			return domain.BillListResponse{}, store.ErrInvalidBill
		}
	}

	bills, err := s.repo.SearchBills(ctx, req.Term, req.StartDate, req.EndDate, req.Limit)
	if err != nil {
		return domain.BillListResponse{}, err
	}
	return domain.BillListResponse{Bills: bills}, nil
}

func (s *Service) resolveTaxRate(ctx context.Context, override *float64) (float64, error) {
	if override != nil {
		if *override < 0 || *override > 100 {
			return 0, store.ErrInvalidBill
		}
		return *override, nil
	}

	rate, err := s.repo.GetActiveTaxRate(ctx)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return s.defaultTaxRate, nil
		}
		return 0, err
	}
	return rate, nil
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, req domain.ProductCreateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	req.Barcode = strings.TrimSpace(req.Barcode)
	req.Name = strings.TrimSpace(req.Name)
	req.Category = strings.TrimSpace(req.Category)
	if req.Barcode == "" || req.Name == "" || req.UnitPrice < 0 || req.InitialStock < 0 {
		return domain.Product{}, store.ErrInvalidBill
	}

	product := domain.Product{
		Barcode:   req.Barcode,
		Name:      req.Name,
		BrandID:   strings.TrimSpace(req.BrandID),
		TypeID:    strings.TrimSpace(req.TypeID),
		Category:  req.Category,
		HSNCode:   strings.TrimSpace(req.HSNCode),
		UnitPrice: req.UnitPrice,
		Stock:     req.InitialStock,
		Active:    true,
	}

	created, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.Product{}, err
	}

	log.Printf("[service] product created barcode=%s name=%s price=%.2f", created.Barcode, created.Name, created.UnitPrice)
	return *created, nil
}

func (s *Service) UpdateProduct(ctx context.Context, productID string, req domain.ProductUpdateRequest) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}

	productID = strings.TrimSpace(productID)
	if productID == "" {
		return domain.Product{}, store.ErrInvalidBill
	}

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	var existing *domain.Product
	for i := range products {
		if products[i].ID == productID {
			existing = &products[i]
			break
		}
	}
	if existing == nil {
		return domain.Product{}, store.ErrNotFound
	}

	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.Product{}, store.ErrInvalidBill
		}
		updated.Name = name
	}
	if req.BrandID != nil {
		updated.BrandID = strings.TrimSpace(*req.BrandID)
	}
	if req.TypeID != nil {
		updated.TypeID = strings.TrimSpace(*req.TypeID)
	}
	if req.Category != nil {
		updated.Category = strings.TrimSpace(*req.Category)
	}
	if req.HSNCode != nil {
		updated.HSNCode = strings.TrimSpace(*req.HSNCode)
	}
	if req.UnitPrice != nil {
		if *req.UnitPrice < 0 {
			return domain.Product{}, store.ErrInvalidBill
		}
		updated.UnitPrice = *req.UnitPrice
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}

	saved, err := s.repo.UpdateProduct(ctx, updated)
	if err != nil {
		return domain.Product{}, err
	}

	if err := s.products.Invalidate(ctx, saved.Barcode); err != nil {
		log.Printf("[service] WARN: failed to invalidate product cache barcode=%s: %v", saved.Barcode, err)
	}

	return *saved, nil
}

func (s *Service) AdjustStock(ctx context.Context, productID string, delta int) (domain.Product, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if strings.TrimSpace(productID) == "" || delta == 0 {
		return domain.Product{}, store.ErrInvalidBill
	}

	adjusted, err := s.repo.AdjustStock(ctx, productID, delta)
	if err != nil {
		return domain.Product{}, err
	}
	return *adjusted, nil
}

// LookupBarcode serves the scan path at the register. Cache first; the
// store is the source of truth on a miss, and a cache failure degrades to
// a direct lookup instead of blocking the sale.
func (s *Service) LookupBarcode(ctx context.Context, barcode string) (domain.Product, error) {
	barcode = strings.TrimSpace(barcode)
	if barcode == "" {
		return domain.Product{}, store.ErrInvalidBill
	}

	cached, found, err := s.products.Get(ctx, barcode)
	if err != nil {
		log.Printf("[service] WARN: product cache get failed barcode=%s: %v", barcode, err)
	}
	if found && cached != nil {
		return *cached, nil
	}

	product, err := s.repo.GetProductByBarcode(ctx, barcode)
	if err != nil {
		return domain.Product{}, err
	}

	if err := s.products.Set(ctx, barcode, product, productCacheTTL); err != nil {
		log.Printf("[service] WARN: product cache set failed barcode=%s: %v", barcode, err)
	}
	return *product, nil
}

func (s *Service) SearchProducts(ctx context.Context, term string, limit int) ([]domain.Product, error) {
	return s.repo.SearchProducts(ctx, term, limit)
}

func (s *Service) ListLowStockProducts(ctx context.Context, threshold int) ([]domain.Product, error) {
	return s.repo.ListLowStockProducts(ctx, threshold)
}

func (s *Service) CreateBrand(ctx context.Context, req domain.BrandCreateRequest) (domain.Brand, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.Brand{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.Brand{}, store.ErrInvalidBill
	}

	created, err := s.repo.CreateBrand(ctx, domain.Brand{Name: name})
	if err != nil {
		return domain.Brand{}, err
	}
	return *created, nil
}

func (s *Service) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	return s.repo.ListBrands(ctx)
}

func (s *Service) DeleteBrand(ctx context.Context, brandID string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(brandID) == "" {
		return store.ErrInvalidBill
	}
	return s.repo.DeleteBrand(ctx, brandID)
}

func (s *Service) CreateProductType(ctx context.Context, req domain.ProductTypeCreateRequest) (domain.ProductType, error) {
	if err := requireAdmin(ctx); err != nil {
		return domain.ProductType{}, err
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return domain.ProductType{}, store.ErrInvalidBill
	}

	created, err := s.repo.CreateProductType(ctx, domain.ProductType{
		Name:       name,
		CodePrefix: strings.ToUpper(strings.TrimSpace(req.CodePrefix)),
	})
	if err != nil {
		return domain.ProductType{}, err
	}
	return *created, nil
}

func (s *Service) ListProductTypes(ctx context.Context) ([]domain.ProductType, error) {
	return s.repo.ListProductTypes(ctx)
}

func (s *Service) DeleteProductType(ctx context.Context, typeID string) error {
	if err := requireAdmin(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(typeID) == "" {
		return store.ErrInvalidBill
	}
	return s.repo.DeleteProductType(ctx, typeID)
}

func (s *Service) ListTaxSettings(ctx context.Context) ([]domain.TaxSetting, error) {
	return s.repo.ListTaxSettings(ctx)
}

func (s *Service) SetActiveTaxSetting(ctx context.Context, name string) ([]domain.TaxSetting, error) {
	if err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return nil, store.ErrInvalidBill
	}

	if err := s.repo.SetActiveTaxSetting(ctx, name); err != nil {
		return nil, err
	}
	log.Printf("[service] active tax setting changed to %s", name)
	return s.repo.ListTaxSettings(ctx)
}

func (s *Service) HoldBill(ctx context.Context, req domain.PendingBillRequest) (domain.PendingBill, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return domain.PendingBill{}, fmt.Errorf("authentication required")
	}

	items := normalizeItems(req.Items)
	if len(items) == 0 {
		return domain.PendingBill{}, store.ErrInvalidBill
	}
	if req.Discount.Kind == "" {
		req.Discount.Kind = domain.DiscountAmount
	}

	saved, err := s.repo.SavePendingBill(ctx, domain.PendingBill{
		EmployeeID:    actor.EmployeeID,
		CustomerName:  strings.TrimSpace(req.CustomerName),
		CustomerPhone: strings.TrimSpace(req.CustomerPhone),
		Items:         items,
		Discount:      req.Discount,
		HeldAt:        s.now(),
	})
	if err != nil {
		return domain.PendingBill{}, err
	}
	return *saved, nil
}

func (s *Service) ListPendingBills(ctx context.Context) (domain.PendingBillListResponse, error) {
	actor, _ := ActorFromContext(ctx)

	// Admins see every held cart; cashiers only their own.
	employeeID := actor.EmployeeID
	if actor.Role == domain.RoleAdmin {
		employeeID = ""
	}

	pendings, err := s.repo.ListPendingBills(ctx, employeeID)
	if err != nil {
		return domain.PendingBillListResponse{}, err
	}
	return domain.PendingBillListResponse{PendingBills: pendings}, nil
}

// RecallPendingBill removes the held cart and hands it back to the caller.
// Finalizing it goes through CreateBill like any other sale.
func (s *Service) RecallPendingBill(ctx context.Context, pendingID string) (domain.PendingBill, error) {
	pendingID = strings.TrimSpace(pendingID)
	if pendingID == "" {
		return domain.PendingBill{}, store.ErrInvalidBill
	}

	pending, err := s.repo.GetPendingBill(ctx, pendingID)
	if err != nil {
		return domain.PendingBill{}, err
	}
	if err := s.repo.DeletePendingBill(ctx, pendingID); err != nil {
		return domain.PendingBill{}, err
	}
	return *pending, nil
}

func (s *Service) DiscardPendingBill(ctx context.Context, pendingID string) error {
	pendingID = strings.TrimSpace(pendingID)
	if pendingID == "" {
		return store.ErrInvalidBill
	}
	return s.repo.DeletePendingBill(ctx, pendingID)
}

// PurgeStalePendingBills drops held carts older than the cutoff. Run from
// the daily close so abandoned carts do not pile up.
func (s *Service) PurgeStalePendingBills(ctx context.Context, olderThan time.Duration) (int, error) {
	if err := requireAdmin(ctx); err != nil {
		return 0, err
	}
	if olderThan <= 0 {
		olderThan = 24 * time.Hour
	}

	purged, err := s.repo.PurgePendingBillsBefore(ctx, s.now().Add(-olderThan))
	if err != nil {
		return 0, err
	}
	if purged > 0 {
		log.Printf("[service] purged %d stale pending bills", purged)
	}
	return purged, nil
}

func (s *Service) DailySummary(ctx context.Context, date string) (domain.DailySummary, error) {
	date = strings.TrimSpace(date)
	if date == "" {
		date = s.now().Format(domain.DateLayout)
	} else if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return domain.DailySummary{}, store.ErrInvalidBill
	}

	summary, err := s.repo.GetDailySummary(ctx, date)
	if err != nil {
		return domain.DailySummary{}, err
	}

	// The sequence counter can run ahead of the stored bill count when a
	// bill failed to persist after its number was allocated. Reporting
	// both makes those gaps visible in the day's numbers.
	issued, err := s.repo.GetInvoiceSequence(ctx, date)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return domain.DailySummary{}, err
	}
	summary.InvoicesIssued = issued
	return summary, nil
}

func (s *Service) BestSellers(ctx context.Context, startDate string, endDate string, limit int) (domain.BestSellerResponse, error) {
	startDate = strings.TrimSpace(startDate)
	endDate = strings.TrimSpace(endDate)
	if startDate == "" && endDate == "" {
		end := s.now()
		start := end.Add(-30 * 24 * time.Hour)
		startDate = start.Format(domain.DateLayout)
		endDate = end.Format(domain.DateLayout)
	}

	sellers, err := s.repo.GetBestSellers(ctx, startDate, endDate, limit)
	if err != nil {
		return domain.BestSellerResponse{}, err
	}
	return domain.BestSellerResponse{
		StartDate:   startDate,
		EndDate:     endDate,
		BestSellers: sellers,
	}, nil
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return fmt.Errorf("admin role required")
	}
	return nil
}

func isSupportedPaymentMethod(method string) bool {
	switch method {
	case domain.PaymentCash, domain.PaymentUPI, domain.PaymentCard:
		return true
	}
	return false
}

// normalizeItems trims names, drops empty lines, and merges duplicate
// product lines so a twice-scanned item becomes one line with qty 2.
func normalizeItems(items []domain.LineItem) []domain.LineItem {
	merged := make([]domain.LineItem, 0, len(items))
	index := make(map[string]int, len(items))

	for _, item := range items {
		item.ProductName = strings.TrimSpace(item.ProductName)
		if item.ProductName == "" || item.Quantity < 1 || item.UnitPrice < 0 {
			continue
		}
		if at, exists := index[item.ProductName]; exists && merged[at].UnitPrice == item.UnitPrice {
			merged[at].Quantity += item.Quantity
			continue
		}
		index[item.ProductName] = len(merged)
		merged = append(merged, item)
	}
	return merged
}
