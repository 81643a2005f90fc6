package store

import (
	"context"
	"errors"
	"time"

	"billgen/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("already exists")
	ErrInvalidBill       = errors.New("invalid bill")
	ErrInsufficientStock = errors.New("insufficient stock")
)

// SequenceStore is the persistence contract for the per-date invoice
// counter. The rows behind it are owned exclusively by the invoice
// sequencer; nothing else reads or writes them.
//
// IncrementInvoiceSequence must be atomic with respect to concurrent
// callers on the same date: two callers must never observe and increment
// from the same starting value. CreateInvoiceSequence must fail with
// ErrConflict when a row for the date already exists, so a creation race
// has exactly one winner.
type SequenceStore interface {
	GetInvoiceSequence(ctx context.Context, date string) (int, error)
	CreateInvoiceSequence(ctx context.Context, date string) error
	IncrementInvoiceSequence(ctx context.Context, date string) (int, error)
}

type Repository interface {
	SequenceStore

	CreateBill(ctx context.Context, bill domain.Bill) (*domain.Bill, error)
	GetBillByNumber(ctx context.Context, invoiceNo string) (*domain.Bill, error)
	SearchBills(ctx context.Context, term string, startDate string, endDate string, limit int) ([]domain.Bill, error)
	ListBillsByDate(ctx context.Context, date string) ([]domain.Bill, error)
	GetDailySummary(ctx context.Context, date string) (domain.DailySummary, error)
	GetBestSellers(ctx context.Context, startDate string, endDate string, limit int) ([]domain.BestSeller, error)

	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	SearchProducts(ctx context.Context, term string, limit int) ([]domain.Product, error)
	UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	AdjustStock(ctx context.Context, productID string, delta int) (*domain.Product, error)
	ListLowStockProducts(ctx context.Context, threshold int) ([]domain.Product, error)

	CreateBrand(ctx context.Context, brand domain.Brand) (*domain.Brand, error)
	ListBrands(ctx context.Context) ([]domain.Brand, error)
	DeleteBrand(ctx context.Context, brandID string) error

	CreateProductType(ctx context.Context, pt domain.ProductType) (*domain.ProductType, error)
	ListProductTypes(ctx context.Context) ([]domain.ProductType, error)
	DeleteProductType(ctx context.Context, typeID string) error

	ListTaxSettings(ctx context.Context) ([]domain.TaxSetting, error)
	GetActiveTaxRate(ctx context.Context) (float64, error)
	SetActiveTaxSetting(ctx context.Context, name string) error

	SavePendingBill(ctx context.Context, pending domain.PendingBill) (*domain.PendingBill, error)
	ListPendingBills(ctx context.Context, employeeID string) ([]domain.PendingBill, error)
	GetPendingBill(ctx context.Context, pendingID string) (*domain.PendingBill, error)
	DeletePendingBill(ctx context.Context, pendingID string) error
	PurgePendingBillsBefore(ctx context.Context, cutoff time.Time) (int, error)

	CreateEmployee(ctx context.Context, account domain.EmployeeAccount) error
	ListEmployees(ctx context.Context) ([]domain.EmployeeAccount, error)
	UpdateEmployeePassword(ctx context.Context, employeeID string, password string) error
}
