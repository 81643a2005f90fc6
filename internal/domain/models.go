package domain

import (
	"math"
	"time"
)

// LineItem is one product line on a bill. Immutable once attached to a bill;
// the quantity and unit price are frozen at sale time even if the catalog
// price changes later.
type LineItem struct {
	ProductName string  `json:"product_name"`
	HSNCode     string  `json:"hsn_code,omitempty"`
	Quantity    int     `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
}

func (li LineItem) LineTotal() float64 {
	return float64(li.Quantity) * li.UnitPrice
}

// Discount is a tagged amount-or-percent choice. Callers resolve it to an
// absolute amount before totals are computed so the calculator never has to
// guess which one was meant.
type Discount struct {
	Kind  string  `json:"kind"`
	Value float64 `json:"value"`
}

const (
	DiscountAmount  = "amount"
	DiscountPercent = "percent"
)

// Totals holds the monetary breakdown of a bill. Values are full precision;
// Rounded produces the 2-decimal form used for display and persistence.
type Totals struct {
	Subtotal float64 `json:"subtotal"`
	Taxable  float64 `json:"taxable"`
	Tax      float64 `json:"tax"`
	Total    float64 `json:"total"`
}

func (t Totals) Rounded() Totals {
	return Totals{
		Subtotal: Round2(t.Subtotal),
		Taxable:  Round2(t.Taxable),
		Tax:      Round2(t.Tax),
		Total:    Round2(t.Total),
	}
}

// Round2 rounds to 2 decimal places. Used only at display and persistence
// boundaries, never between computation steps.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// TaxSplit is the GST presentation split of a bill's tax amount.
// Intra-state sales split the rate evenly into CGST+SGST; inter-state sales
// attribute the whole amount to IGST. The split always sums to the tax.
type TaxSplit struct {
	CGST float64 `json:"cgst"`
	SGST float64 `json:"sgst"`
	IGST float64 `json:"igst"`
}

type Bill struct {
	InvoiceNo        string     `json:"invoice_no"`
	Date             string     `json:"date"`
	CustomerName     string     `json:"customer_name"`
	CustomerPhone    string     `json:"customer_phone,omitempty"`
	Items            []LineItem `json:"items"`
	Discount         float64    `json:"discount"`
	TaxRate          float64    `json:"tax_rate"`
	Subtotal         float64    `json:"subtotal"`
	TaxableAmount    float64    `json:"taxable_amount"`
	TaxAmount        float64    `json:"tax_amount"`
	Total            float64    `json:"total"`
	PaymentMethod    string     `json:"payment_method"`
	PaymentReference string     `json:"payment_reference,omitempty"`
	CashReceived     float64    `json:"cash_received"`
	ChangeDue        float64    `json:"change_due"`
	CreatedBy        string     `json:"created_by,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

type BillCreateRequest struct {
	CustomerName     string     `json:"customer_name"`
	CustomerPhone    string     `json:"customer_phone,omitempty"`
	Items            []LineItem `json:"items"`
	Discount         Discount   `json:"discount"`
	TaxRate          *float64   `json:"tax_rate,omitempty"`
	PaymentMethod    string     `json:"payment_method"`
	PaymentReference string     `json:"payment_reference,omitempty"`
	CashReceived     float64    `json:"cash_received"`
}

type BillCreateResponse struct {
	Bill     Bill     `json:"bill"`
	TaxSplit TaxSplit `json:"tax_split"`
}

type BillSearchRequest struct {
	Term      string `json:"term,omitempty"`
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
	Limit     int    `json:"limit,omitempty"`
}

type BillListResponse struct {
	Bills []Bill `json:"bills"`
}

// InvoiceSequenceRecord mirrors one row of the per-date invoice counter.
// Rows are created on the first invoice of a date, incremented afterwards,
// and never deleted or retroactively changed.
type InvoiceSequenceRecord struct {
	Date         string `json:"date"`
	LastSequence int    `json:"last_sequence"`
}

type Product struct {
	ID        string    `json:"id"`
	Barcode   string    `json:"barcode"`
	Name      string    `json:"name"`
	BrandID   string    `json:"brand_id,omitempty"`
	TypeID    string    `json:"type_id,omitempty"`
	Category  string    `json:"category"`
	HSNCode   string    `json:"hsn_code"`
	UnitPrice float64   `json:"unit_price"`
	Stock     int       `json:"stock"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	Barcode      string  `json:"barcode"`
	Name         string  `json:"name"`
	BrandID      string  `json:"brand_id,omitempty"`
	TypeID       string  `json:"type_id,omitempty"`
	Category     string  `json:"category"`
	HSNCode      string  `json:"hsn_code,omitempty"`
	UnitPrice    float64 `json:"unit_price"`
	InitialStock int     `json:"initial_stock"`
}

type ProductUpdateRequest struct {
	Name      *string  `json:"name,omitempty"`
	BrandID   *string  `json:"brand_id,omitempty"`
	TypeID    *string  `json:"type_id,omitempty"`
	Category  *string  `json:"category,omitempty"`
	HSNCode   *string  `json:"hsn_code,omitempty"`
	UnitPrice *float64 `json:"unit_price,omitempty"`
	Active    *bool    `json:"active,omitempty"`
}

type StockUpdateRequest struct {
	Delta int `json:"delta"`
}

type ProductListResponse struct {
	Products []Product `json:"products"`
}

type Brand struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

type BrandCreateRequest struct {
	Name string `json:"name"`
}

type ProductType struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	CodePrefix string    `json:"code_prefix"`
	CreatedAt  time.Time `json:"created_at"`
}

type ProductTypeCreateRequest struct {
	Name       string `json:"name"`
	CodePrefix string `json:"code_prefix"`
}

// TaxSetting is a named GST slab. Exactly one setting is active at a time
// and supplies the default tax rate for new bills.
type TaxSetting struct {
	Name   string  `json:"name"`
	Rate   float64 `json:"rate"`
	Active bool    `json:"active"`
}

// PendingBill is a cart held mid-sale so the cashier can serve another
// customer and recall it later.
type PendingBill struct {
	ID            string     `json:"id"`
	EmployeeID    string     `json:"employee_id"`
	CustomerName  string     `json:"customer_name"`
	CustomerPhone string     `json:"customer_phone,omitempty"`
	Items         []LineItem `json:"items"`
	Discount      Discount   `json:"discount"`
	HeldAt        time.Time  `json:"held_at"`
}

type PendingBillRequest struct {
	CustomerName  string     `json:"customer_name"`
	CustomerPhone string     `json:"customer_phone,omitempty"`
	Items         []LineItem `json:"items"`
	Discount      Discount   `json:"discount"`
}

type PendingBillListResponse struct {
	PendingBills []PendingBill `json:"pending_bills"`
}

type DailySummary struct {
	Date           string  `json:"date"`
	BillCount      int64   `json:"bill_count"`
	InvoicesIssued int     `json:"invoices_issued"`
	GrossSales     float64 `json:"gross_sales"`
	TotalDiscount  float64 `json:"total_discount"`
	TotalTax       float64 `json:"total_tax"`
	NetSales       float64 `json:"net_sales"`
}

type BestSeller struct {
	ProductName string  `json:"product_name"`
	QtySold     int64   `json:"qty_sold"`
	Revenue     float64 `json:"revenue"`
}

type BestSellerResponse struct {
	StartDate   string       `json:"start_date"`
	EndDate     string       `json:"end_date"`
	BestSellers []BestSeller `json:"best_sellers"`
}

type LoginRequest struct {
	EmployeeID string `json:"employee_id"`
	Password   string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	EmployeeID string
	Role       string
}

type EmployeeCreateRequest struct {
	EmployeeID string `json:"employee_id"`
	Name       string `json:"name"`
	Password   string `json:"password"`
	Role       string `json:"role"`
}

type Employee struct {
	EmployeeID string    `json:"employee_id"`
	Name       string    `json:"name"`
	Role       string    `json:"role"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"created_at"`
}

// EmployeeAccount is the internal persistence model for auth credentials.
type EmployeeAccount struct {
	EmployeeID string
	Name       string
	Password   string
	Role       string
	Active     bool
	CreatedAt  time.Time
}

const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
)

const (
	PaymentCash = "CASH"
	PaymentUPI  = "UPI"
	PaymentCard = "CARD"
)

// DateLayout is the canonical calendar-date form used for bill dates and
// invoice sequence keys.
const DateLayout = "2006-01-02"
