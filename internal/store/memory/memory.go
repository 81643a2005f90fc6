package memory

import (
	"context"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/bcrypt"

	"billgen/backend/internal/domain"
	"billgen/backend/internal/store"
	"billgen/backend/internal/xid"
)

type Store struct {
	mu             sync.RWMutex
	sequences      map[string]int
	billsByNo      map[string]domain.Bill
	products       map[string]domain.Product
	productsByCode map[string]string
	brandsByID     map[string]domain.Brand
	typesByID      map[string]domain.ProductType
	taxSettings    []domain.TaxSetting
	pendingByID    map[string]domain.PendingBill
	employeesByID  map[string]domain.EmployeeAccount
}

// seedEmployees builds the initial accounts for dev/demo mode. Credentials
// come from SEED_ADMIN_PASSWORD and SEED_EMPLOYEE_PASSWORD; hardcoded dev
// defaults are used with a warning when unset. Production deployments use
// PostgreSQL (DATABASE_URL) and never touch these.
func seedEmployees() map[string]domain.EmployeeAccount {
	adminPwd := envOr("SEED_ADMIN_PASSWORD", "admin123")
	employeePwd := envOr("SEED_EMPLOYEE_PASSWORD", "emp123")
	if os.Getenv("SEED_ADMIN_PASSWORD") == "" || os.Getenv("SEED_EMPLOYEE_PASSWORD") == "" {
		log.Println("[memory-store] WARNING: using default dev credentials. Set SEED_ADMIN_PASSWORD and SEED_EMPLOYEE_PASSWORD to override.")
	}

	now := time.Now().UTC()
	accounts := map[string]domain.EmployeeAccount{}
	for _, e := range []struct {
		id       string
		name     string
		password string
		role     string
	}{
		{"EMP001", "Administrator", adminPwd, domain.RoleAdmin},
		{"EMP002", "Counter Staff", employeePwd, domain.RoleEmployee},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(e.password), bcrypt.DefaultCost)
		if err != nil {
			log.Fatalf("[memory-store] failed to hash seed password for %s: %v", e.id, err)
		}
		accounts[e.id] = domain.EmployeeAccount{
			EmployeeID: e.id,
			Name:       e.name,
			Password:   string(hash),
			Role:       e.role,
			Active:     true,
			CreatedAt:  now,
		}
	}
	return accounts
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func NewSeeded() *Store {
	now := time.Now().UTC()

	brands := []domain.Brand{
		{ID: "brand-jaylaxmi", Name: "Jay Laxmi", CreatedAt: now},
		{ID: "brand-house", Name: "House Label", CreatedAt: now},
	}
	types := []domain.ProductType{
		{ID: "ptype-bakery", Name: "Bakery", CodePrefix: "BKR", CreatedAt: now},
		{ID: "ptype-snack", Name: "Snacks", CodePrefix: "SNK", CreatedAt: now},
	}
	products := []domain.Product{
		{ID: "prod-khari", Barcode: "8901001000011", Name: "Khari Biscuit 200g", BrandID: "brand-jaylaxmi", TypeID: "ptype-bakery", Category: "bakery", HSNCode: "1905", UnitPrice: 50, Stock: 120, Active: true},
		{ID: "prod-toast", Barcode: "8901001000028", Name: "Milk Toast 250g", BrandID: "brand-jaylaxmi", TypeID: "ptype-bakery", Category: "bakery", HSNCode: "1905", UnitPrice: 30, Stock: 90, Active: true},
		{ID: "prod-creamroll", Barcode: "8901001000035", Name: "Cream Roll", BrandID: "brand-jaylaxmi", TypeID: "ptype-bakery", Category: "bakery", HSNCode: "1905", UnitPrice: 25, Stock: 60, Active: true},
		{ID: "prod-rusk", Barcode: "8901001000042", Name: "Premium Rusk 300g", BrandID: "brand-jaylaxmi", TypeID: "ptype-bakery", Category: "bakery", HSNCode: "1905", UnitPrice: 40, Stock: 150, Active: true},
		{ID: "prod-bread", Barcode: "8901001000059", Name: "Sandwich Bread 400g", BrandID: "brand-house", TypeID: "ptype-bakery", Category: "bakery", HSNCode: "1905", UnitPrice: 45, Stock: 40, Active: true},
		{ID: "prod-nankhatai", Barcode: "8901001000066", Name: "Nankhatai 250g", BrandID: "brand-jaylaxmi", TypeID: "ptype-snack", Category: "snacks", HSNCode: "1905", UnitPrice: 80, Stock: 70, Active: true},
		{ID: "prod-chakli", Barcode: "8901001000073", Name: "Butter Chakli 200g", BrandID: "brand-house", TypeID: "ptype-snack", Category: "snacks", HSNCode: "1905", UnitPrice: 65, Stock: 55, Active: true},
	}

	productMap := make(map[string]domain.Product, len(products))
	byCode := make(map[string]string, len(products))
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		productMap[p.ID] = p
		byCode[p.Barcode] = p.ID
	}

	brandMap := make(map[string]domain.Brand, len(brands))
	for _, b := range brands {
		brandMap[b.ID] = b
	}
	typeMap := make(map[string]domain.ProductType, len(types))
	for _, pt := range types {
		typeMap[pt.ID] = pt
	}

	return &Store{
		sequences:      make(map[string]int),
		billsByNo:      make(map[string]domain.Bill),
		products:       productMap,
		productsByCode: byCode,
		brandsByID:     brandMap,
		typesByID:      typeMap,
		taxSettings: []domain.TaxSetting{
			{Name: "GST_18", Rate: 18.0, Active: true},
			{Name: "GST_12", Rate: 12.0},
			{Name: "GST_5", Rate: 5.0},
			{Name: "NO_TAX", Rate: 0.0},
		},
		pendingByID:   make(map[string]domain.PendingBill),
		employeesByID: seedEmployees(),
	}
}

// New returns an empty store with only the default tax slabs, for tests that
// want full control over catalog state.
func New() *Store {
	s := NewSeeded()
	s.products = make(map[string]domain.Product)
	s.productsByCode = make(map[string]string)
	return s
}

func (s *Store) GetInvoiceSequence(_ context.Context, date string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seq, ok := s.sequences[date]
	if !ok {
		return 0, store.ErrNotFound
	}
	return seq, nil
}

func (s *Store) CreateInvoiceSequence(_ context.Context, date string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sequences[date]; ok {
		return store.ErrConflict
	}
	s.sequences[date] = 1
	return nil
}

func (s *Store) IncrementInvoiceSequence(_ context.Context, date string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq, ok := s.sequences[date]
	if !ok {
		return 0, store.ErrNotFound
	}
	seq++
	s.sequences[date] = seq
	return seq, nil
}

func (s *Store) CreateBill(_ context.Context, bill domain.Bill) (*domain.Bill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if bill.InvoiceNo == "" || len(bill.Items) == 0 {
		return nil, store.ErrInvalidBill
	}
	if _, exists := s.billsByNo[bill.InvoiceNo]; exists {
		return nil, store.ErrConflict
	}
	if bill.CreatedAt.IsZero() {
		bill.CreatedAt = time.Now().UTC()
	}

	// Decrement stock for catalog products in the same critical section as
	// the bill insert, mirroring the single DB transaction in postgres.
	// Free-form line items (no matching product) pass through untouched.
	type decrement struct {
		id  string
		qty int
	}
	decrements := make([]decrement, 0, len(bill.Items))
	for _, item := range bill.Items {
		if item.Quantity < 1 {
			return nil, store.ErrInvalidBill
		}
		for id, p := range s.products {
			if p.Name == item.ProductName {
				if p.Stock < item.Quantity {
					return nil, store.ErrInsufficientStock
				}
				decrements = append(decrements, decrement{id: id, qty: item.Quantity})
				break
			}
		}
	}
	for _, d := range decrements {
		p := s.products[d.id]
		p.Stock -= d.qty
		p.UpdatedAt = time.Now().UTC()
		s.products[d.id] = p
	}

	bill.Items = slices.Clone(bill.Items)
	s.billsByNo[bill.InvoiceNo] = bill
	created := bill
	return &created, nil
}

func (s *Store) GetBillByNumber(_ context.Context, invoiceNo string) (*domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bill, ok := s.billsByNo[invoiceNo]
	if !ok {
		return nil, store.ErrNotFound
	}
	bill.Items = slices.Clone(bill.Items)
	return &bill, nil
}

func (s *Store) SearchBills(_ context.Context, term string, startDate string, endDate string, limit int) ([]domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 100
	}
	term = strings.ToLower(strings.TrimSpace(term))

	bills := make([]domain.Bill, 0, 32)
	for _, bill := range s.billsByNo {
		if term != "" &&
			!strings.Contains(strings.ToLower(bill.InvoiceNo), term) &&
			!strings.Contains(strings.ToLower(bill.CustomerName), term) {
			continue
		}
		if startDate != "" && bill.Date < startDate {
			continue
		}
		if endDate != "" && bill.Date > endDate {
			continue
		}
		bill.Items = slices.Clone(bill.Items)
		bills = append(bills, bill)
	}

	slices.SortFunc(bills, func(a, b domain.Bill) int {
		if a.Date != b.Date {
			return strings.Compare(b.Date, a.Date)
		}
		return strings.Compare(b.InvoiceNo, a.InvoiceNo)
	})
	if len(bills) > limit {
		bills = bills[:limit]
	}
	return bills, nil
}

func (s *Store) ListBillsByDate(_ context.Context, date string) ([]domain.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bills := make([]domain.Bill, 0, 16)
	for _, bill := range s.billsByNo {
		if bill.Date != date {
			continue
		}
		bill.Items = slices.Clone(bill.Items)
		bills = append(bills, bill)
	}
	slices.SortFunc(bills, func(a, b domain.Bill) int {
		return strings.Compare(a.InvoiceNo, b.InvoiceNo)
	})
	return bills, nil
}

func (s *Store) GetDailySummary(_ context.Context, date string) (domain.DailySummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summary := domain.DailySummary{Date: date}
	for _, bill := range s.billsByNo {
		if bill.Date != date {
			continue
		}
		summary.BillCount++
		summary.GrossSales += bill.Subtotal
		summary.TotalDiscount += bill.Discount
		summary.TotalTax += bill.TaxAmount
		summary.NetSales += bill.Total
	}
	summary.GrossSales = domain.Round2(summary.GrossSales)
	summary.TotalDiscount = domain.Round2(summary.TotalDiscount)
	summary.TotalTax = domain.Round2(summary.TotalTax)
	summary.NetSales = domain.Round2(summary.NetSales)
	return summary, nil
}

func (s *Store) GetBestSellers(_ context.Context, startDate string, endDate string, limit int) ([]domain.BestSeller, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 5
	}

	type tally struct {
		qty     int64
		revenue float64
	}
	tallies := make(map[string]*tally)
	for _, bill := range s.billsByNo {
		if startDate != "" && bill.Date < startDate {
			continue
		}
		if endDate != "" && bill.Date > endDate {
			continue
		}
		for _, item := range bill.Items {
			entry, ok := tallies[item.ProductName]
			if !ok {
				entry = &tally{}
				tallies[item.ProductName] = entry
			}
			entry.qty += int64(item.Quantity)
			entry.revenue += item.LineTotal()
		}
	}

	sellers := make([]domain.BestSeller, 0, len(tallies))
	for name, entry := range tallies {
		sellers = append(sellers, domain.BestSeller{
			ProductName: name,
			QtySold:     entry.qty,
			Revenue:     domain.Round2(entry.revenue),
		})
	}
	slices.SortFunc(sellers, func(a, b domain.BestSeller) int {
		if a.QtySold != b.QtySold {
			if a.QtySold > b.QtySold {
				return -1
			}
			return 1
		}
		return strings.Compare(a.ProductName, b.ProductName)
	})
	if len(sellers) > limit {
		sellers = sellers[:limit]
	}
	return sellers, nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Category != b.Category {
			return strings.Compare(a.Category, b.Category)
		}
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if product.Barcode == "" || product.Name == "" || product.UnitPrice < 0 {
		return nil, store.ErrInvalidBill
	}
	if _, exists := s.productsByCode[product.Barcode]; exists {
		return nil, store.ErrConflict
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	now := time.Now().UTC()
	product.Active = true
	product.CreatedAt = now
	product.UpdatedAt = now

	s.products[product.ID] = product
	s.productsByCode[product.Barcode] = product.ID
	created := product
	return &created, nil
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.productsByCode[barcode]
	if !ok {
		return nil, store.ErrNotFound
	}
	product := s.products[id]
	return &product, nil
}

func (s *Store) SearchProducts(_ context.Context, term string, limit int) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 50
	}
	term = strings.ToLower(strings.TrimSpace(term))

	products := make([]domain.Product, 0, 16)
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		if term != "" &&
			!strings.Contains(strings.ToLower(p.Name), term) &&
			!strings.Contains(p.Barcode, term) {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	if len(products) > limit {
		products = products[:limit]
	}
	return products, nil
}

func (s *Store) UpdateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.products[product.ID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if product.Name == "" || product.UnitPrice < 0 {
		return nil, store.ErrInvalidBill
	}

	product.Barcode = existing.Barcode
	product.Stock = existing.Stock
	product.CreatedAt = existing.CreatedAt
	product.UpdatedAt = time.Now().UTC()
	s.products[product.ID] = product
	updated := product
	return &updated, nil
}

func (s *Store) AdjustStock(_ context.Context, productID string, delta int) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.products[productID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if product.Stock+delta < 0 {
		return nil, store.ErrInsufficientStock
	}
	product.Stock += delta
	product.UpdatedAt = time.Now().UTC()
	s.products[productID] = product
	adjusted := product
	return &adjusted, nil
}

func (s *Store) ListLowStockProducts(_ context.Context, threshold int) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if threshold < 1 {
		threshold = 10
	}
	products := make([]domain.Product, 0, 8)
	for _, p := range s.products {
		if !p.Active || p.Stock > threshold {
			continue
		}
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int {
		if a.Stock != b.Stock {
			return a.Stock - b.Stock
		}
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) CreateBrand(_ context.Context, brand domain.Brand) (*domain.Brand, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if brand.Name == "" {
		return nil, store.ErrInvalidBill
	}
	for _, existing := range s.brandsByID {
		if strings.EqualFold(existing.Name, brand.Name) {
			return nil, store.ErrConflict
		}
	}
	if brand.ID == "" {
		brand.ID = xid.New("brand")
	}
	if brand.CreatedAt.IsZero() {
		brand.CreatedAt = time.Now().UTC()
	}
	s.brandsByID[brand.ID] = brand
	created := brand
	return &created, nil
}

func (s *Store) ListBrands(_ context.Context) ([]domain.Brand, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	brands := make([]domain.Brand, 0, len(s.brandsByID))
	for _, b := range s.brandsByID {
		brands = append(brands, b)
	}
	slices.SortFunc(brands, func(a, b domain.Brand) int {
		return strings.Compare(a.Name, b.Name)
	})
	return brands, nil
}

func (s *Store) DeleteBrand(_ context.Context, brandID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.brandsByID[brandID]; !ok {
		return store.ErrNotFound
	}
	for _, p := range s.products {
		if p.BrandID == brandID && p.Active {
			return store.ErrConflict
		}
	}
	delete(s.brandsByID, brandID)
	return nil
}

func (s *Store) CreateProductType(_ context.Context, pt domain.ProductType) (*domain.ProductType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pt.Name == "" {
		return nil, store.ErrInvalidBill
	}
	for _, existing := range s.typesByID {
		if strings.EqualFold(existing.Name, pt.Name) {
			return nil, store.ErrConflict
		}
	}
	if pt.ID == "" {
		pt.ID = xid.New("ptype")
	}
	if pt.CreatedAt.IsZero() {
		pt.CreatedAt = time.Now().UTC()
	}
	s.typesByID[pt.ID] = pt
	created := pt
	return &created, nil
}

func (s *Store) ListProductTypes(_ context.Context) ([]domain.ProductType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	types := make([]domain.ProductType, 0, len(s.typesByID))
	for _, pt := range s.typesByID {
		types = append(types, pt)
	}
	slices.SortFunc(types, func(a, b domain.ProductType) int {
		return strings.Compare(a.Name, b.Name)
	})
	return types, nil
}

func (s *Store) DeleteProductType(_ context.Context, typeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.typesByID[typeID]; !ok {
		return store.ErrNotFound
	}
	for _, p := range s.products {
		if p.TypeID == typeID && p.Active {
			return store.ErrConflict
		}
	}
	delete(s.typesByID, typeID)
	return nil
}

func (s *Store) ListTaxSettings(_ context.Context) ([]domain.TaxSetting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.taxSettings), nil
}

func (s *Store) GetActiveTaxRate(_ context.Context) (float64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, setting := range s.taxSettings {
		if setting.Active {
			return setting.Rate, nil
		}
	}
	return 0, store.ErrNotFound
}

func (s *Store) SetActiveTaxSetting(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	found := false
	for i := range s.taxSettings {
		if s.taxSettings[i].Name == name {
			found = true
			break
		}
	}
	if !found {
		return store.ErrNotFound
	}
	for i := range s.taxSettings {
		s.taxSettings[i].Active = s.taxSettings[i].Name == name
	}
	return nil
}

func (s *Store) SavePendingBill(_ context.Context, pending domain.PendingBill) (*domain.PendingBill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pending.EmployeeID == "" || len(pending.Items) == 0 {
		return nil, store.ErrInvalidBill
	}
	if pending.ID == "" {
		pending.ID = xid.New("pending")
	}
	if pending.HeldAt.IsZero() {
		pending.HeldAt = time.Now().UTC()
	}
	pending.Items = slices.Clone(pending.Items)
	s.pendingByID[pending.ID] = pending
	saved := pending
	return &saved, nil
}

func (s *Store) ListPendingBills(_ context.Context, employeeID string) ([]domain.PendingBill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pendings := make([]domain.PendingBill, 0, 8)
	for _, pending := range s.pendingByID {
		if employeeID != "" && pending.EmployeeID != employeeID {
			continue
		}
		pending.Items = slices.Clone(pending.Items)
		pendings = append(pendings, pending)
	}
	slices.SortFunc(pendings, func(a, b domain.PendingBill) int {
		return a.HeldAt.Compare(b.HeldAt)
	})
	return pendings, nil
}

func (s *Store) GetPendingBill(_ context.Context, pendingID string) (*domain.PendingBill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pending, ok := s.pendingByID[pendingID]
	if !ok {
		return nil, store.ErrNotFound
	}
	pending.Items = slices.Clone(pending.Items)
	return &pending, nil
}

func (s *Store) DeletePendingBill(_ context.Context, pendingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pendingByID[pendingID]; !ok {
		return store.ErrNotFound
	}
	delete(s.pendingByID, pendingID)
	return nil
}

func (s *Store) PurgePendingBillsBefore(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for id, pending := range s.pendingByID {
		if pending.HeldAt.Before(cutoff) {
			delete(s.pendingByID, id)
			purged++
		}
	}
	return purged, nil
}

func (s *Store) CreateEmployee(_ context.Context, account domain.EmployeeAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if account.EmployeeID == "" || account.Password == "" {
		return store.ErrInvalidBill
	}
	if _, exists := s.employeesByID[account.EmployeeID]; exists {
		return store.ErrConflict
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}
	account.Active = true
	s.employeesByID[account.EmployeeID] = account
	return nil
}

func (s *Store) ListEmployees(_ context.Context) ([]domain.EmployeeAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accounts := make([]domain.EmployeeAccount, 0, len(s.employeesByID))
	for _, account := range s.employeesByID {
		accounts = append(accounts, account)
	}
	slices.SortFunc(accounts, func(a, b domain.EmployeeAccount) int {
		return strings.Compare(a.EmployeeID, b.EmployeeID)
	})
	return accounts, nil
}

func (s *Store) UpdateEmployeePassword(_ context.Context, employeeID string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	account, ok := s.employeesByID[employeeID]
	if !ok {
		return store.ErrNotFound
	}
	if password == "" {
		return store.ErrInvalidBill
	}
	account.Password = password
	s.employeesByID[employeeID] = account
	return nil
}
