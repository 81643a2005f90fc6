package postgres

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"billgen/backend/internal/domain"
	"billgen/backend/internal/store"
	"billgen/backend/internal/xid"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// sequenceTimeout bounds every invoice-sequence call so a stalled database
// surfaces as an error instead of hanging the billing flow.
const sequenceTimeout = 5 * time.Second

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// migrate applies the embedded schema migrations in order. Goose records the
// applied versions, so running it on every startup is a no-op once current.
func migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, "migrations")
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetInvoiceSequence(ctx context.Context, date string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, sequenceTimeout)
	defer cancel()

	var seq int
	err := s.db.QueryRowContext(ctx, `
		SELECT last_sequence FROM invoice_sequence WHERE date = $1::date
	`, date).Scan(&seq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	return seq, nil
}

func (s *Store) CreateInvoiceSequence(ctx context.Context, date string) error {
	ctx, cancel := context.WithTimeout(ctx, sequenceTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO invoice_sequence (date, last_sequence) VALUES ($1::date, 1)
	`, date)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) IncrementInvoiceSequence(ctx context.Context, date string) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, sequenceTimeout)
	defer cancel()

	// Single UPDATE ... RETURNING: concurrent callers serialize on the row
	// lock for this date and can never observe the same starting value.
	var seq int
	err := s.db.QueryRowContext(ctx, `
		UPDATE invoice_sequence
		SET last_sequence = last_sequence + 1, updated_at = now()
		WHERE date = $1::date
		RETURNING last_sequence
	`, date).Scan(&seq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	return seq, nil
}

func (s *Store) CreateBill(ctx context.Context, bill domain.Bill) (*domain.Bill, error) {
	if bill.InvoiceNo == "" || len(bill.Items) == 0 {
		return nil, store.ErrInvalidBill
	}
	if bill.CreatedAt.IsZero() {
		bill.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO bills (
			invoice_no, date, customer_name, customer_phone, discount, tax_rate,
			subtotal, taxable_amount, tax_amount, total,
			payment_method, payment_reference, cash_received, change_due,
			created_by, created_at
		)
		VALUES ($1,$2::date,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	`, bill.InvoiceNo, bill.Date, bill.CustomerName, bill.CustomerPhone, bill.Discount, bill.TaxRate,
		bill.Subtotal, bill.TaxableAmount, bill.TaxAmount, bill.Total,
		bill.PaymentMethod, nullIfEmpty(bill.PaymentReference), bill.CashReceived, bill.ChangeDue,
		bill.CreatedBy, bill.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	for i, item := range bill.Items {
		if item.Quantity < 1 {
			return nil, store.ErrInvalidBill
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO bill_items (invoice_no, position, product_name, hsn_code, quantity, unit_price)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, bill.InvoiceNo, i, item.ProductName, item.HSNCode, item.Quantity, item.UnitPrice)
		if err != nil {
			return nil, err
		}

		// Decrement stock for catalog products sold by name. Free-form
		// lines with no catalog match pass through untouched.
		var productID string
		var stock int
		err = tx.QueryRowContext(ctx, `
			SELECT id, stock FROM products
			WHERE name = $1 AND active = true
			FOR UPDATE
		`, item.ProductName).Scan(&productID, &stock)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if stock < item.Quantity {
			return nil, store.ErrInsufficientStock
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE products SET stock = stock - $1, updated_at = now() WHERE id = $2
		`, item.Quantity, productID)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	created := bill
	return &created, nil
}

const billColumns = `invoice_no, date::text, customer_name, customer_phone, discount, tax_rate,
	subtotal, taxable_amount, tax_amount, total,
	payment_method, COALESCE(payment_reference, ''), cash_received, change_due, created_by, created_at`

func (s *Store) GetBillByNumber(ctx context.Context, invoiceNo string) (*domain.Bill, error) {
	var bill domain.Bill
	err := s.db.QueryRowContext(ctx, `
		SELECT `+billColumns+`
		FROM bills
		WHERE invoice_no = $1
	`, invoiceNo).Scan(&bill.InvoiceNo, &bill.Date, &bill.CustomerName, &bill.CustomerPhone, &bill.Discount, &bill.TaxRate,
		&bill.Subtotal, &bill.TaxableAmount, &bill.TaxAmount, &bill.Total,
		&bill.PaymentMethod, &bill.PaymentReference, &bill.CashReceived, &bill.ChangeDue, &bill.CreatedBy, &bill.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	bill.CreatedAt = bill.CreatedAt.UTC()

	items, err := s.loadBillItems(ctx, []string{invoiceNo})
	if err != nil {
		return nil, err
	}
	bill.Items = items[invoiceNo]
	return &bill, nil
}

func (s *Store) SearchBills(ctx context.Context, term string, startDate string, endDate string, limit int) ([]domain.Bill, error) {
	if limit < 1 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+billColumns+`
		FROM bills
		WHERE ($1 = '' OR invoice_no ILIKE '%' || $1 || '%' OR customer_name ILIKE '%' || $1 || '%')
			AND ($2 = '' OR date >= $2::date)
			AND ($3 = '' OR date <= $3::date)
		ORDER BY date DESC, invoice_no DESC
		LIMIT $4
	`, strings.TrimSpace(term), startDate, endDate, limit)
	if err != nil {
		return nil, err
	}
	return s.collectBills(ctx, rows)
}

func (s *Store) ListBillsByDate(ctx context.Context, date string) ([]domain.Bill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+billColumns+`
		FROM bills
		WHERE date = $1::date
		ORDER BY invoice_no
	`, date)
	if err != nil {
		return nil, err
	}
	return s.collectBills(ctx, rows)
}

func (s *Store) GetDailySummary(ctx context.Context, date string) (domain.DailySummary, error) {
	summary := domain.DailySummary{Date: date}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(subtotal), 0),
			COALESCE(SUM(discount), 0),
			COALESCE(SUM(tax_amount), 0),
			COALESCE(SUM(total), 0)
		FROM bills
		WHERE date = $1::date
	`, date).Scan(&summary.BillCount, &summary.GrossSales, &summary.TotalDiscount, &summary.TotalTax, &summary.NetSales)
	if err != nil {
		return domain.DailySummary{}, err
	}
	summary.GrossSales = domain.Round2(summary.GrossSales)
	summary.TotalDiscount = domain.Round2(summary.TotalDiscount)
	summary.TotalTax = domain.Round2(summary.TotalTax)
	summary.NetSales = domain.Round2(summary.NetSales)
	return summary, nil
}

func (s *Store) GetBestSellers(ctx context.Context, startDate string, endDate string, limit int) ([]domain.BestSeller, error) {
	if limit < 1 {
		limit = 5
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT bi.product_name,
			SUM(bi.quantity),
			SUM(bi.quantity * bi.unit_price)
		FROM bill_items bi
		JOIN bills b ON b.invoice_no = bi.invoice_no
		WHERE ($1 = '' OR b.date >= $1::date)
			AND ($2 = '' OR b.date <= $2::date)
		GROUP BY bi.product_name
		ORDER BY SUM(bi.quantity) DESC, bi.product_name
		LIMIT $3
	`, startDate, endDate, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sellers := make([]domain.BestSeller, 0, limit)
	for rows.Next() {
		var seller domain.BestSeller
		if err := rows.Scan(&seller.ProductName, &seller.QtySold, &seller.Revenue); err != nil {
			return nil, err
		}
		seller.Revenue = domain.Round2(seller.Revenue)
		sellers = append(sellers, seller)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return sellers, nil
}

const productColumns = `id, barcode, name, COALESCE(brand_id, ''), COALESCE(type_id, ''), category, hsn_code, unit_price, stock, active, created_at, updated_at`

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true
		ORDER BY category, name
	`)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.Barcode == "" || product.Name == "" || product.UnitPrice < 0 {
		return nil, store.ErrInvalidBill
	}
	if product.ID == "" {
		product.ID = xid.New("prod")
	}
	product.Active = true
	now := time.Now().UTC()
	product.CreatedAt = now
	product.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, barcode, name, brand_id, type_id, category, hsn_code, unit_price, stock, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
	`, product.ID, product.Barcode, product.Name, nullIfEmpty(product.BrandID), nullIfEmpty(product.TypeID),
		product.Category, product.HSNCode, product.UnitPrice, product.Stock, product.Active, product.CreatedAt, product.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE barcode = $1
	`, barcode).Scan(&p.ID, &p.Barcode, &p.Name, &p.BrandID, &p.TypeID, &p.Category, &p.HSNCode,
		&p.UnitPrice, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) SearchProducts(ctx context.Context, term string, limit int) ([]domain.Product, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true
			AND ($1 = '' OR name ILIKE '%' || $1 || '%' OR barcode LIKE '%' || $1 || '%')
		ORDER BY name
		LIMIT $2
	`, strings.TrimSpace(term), limit)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

func (s *Store) UpdateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if product.ID == "" || product.Name == "" || product.UnitPrice < 0 {
		return nil, store.ErrInvalidBill
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE products
		SET name = $2, brand_id = $3, type_id = $4, category = $5, hsn_code = $6,
			unit_price = $7, active = $8, updated_at = now()
		WHERE id = $1
	`, product.ID, product.Name, nullIfEmpty(product.BrandID), nullIfEmpty(product.TypeID),
		product.Category, product.HSNCode, product.UnitPrice, product.Active)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, store.ErrNotFound
	}

	return s.getProductByID(ctx, product.ID)
}

func (s *Store) AdjustStock(ctx context.Context, productID string, delta int) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		UPDATE products
		SET stock = stock + $2, updated_at = now()
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING `+productColumns+`
	`, productID, delta).Scan(&p.ID, &p.Barcode, &p.Name, &p.BrandID, &p.TypeID, &p.Category, &p.HSNCode,
		&p.UnitPrice, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Either the product is missing or the delta would go negative.
			if _, lookupErr := s.getProductByID(ctx, productID); lookupErr != nil {
				return nil, store.ErrNotFound
			}
			return nil, store.ErrInsufficientStock
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) getProductByID(ctx context.Context, productID string) (*domain.Product, error) {
	var p domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE id = $1
	`, productID).Scan(&p.ID, &p.Barcode, &p.Name, &p.BrandID, &p.TypeID, &p.Category, &p.HSNCode,
		&p.UnitPrice, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

func (s *Store) ListLowStockProducts(ctx context.Context, threshold int) ([]domain.Product, error) {
	if threshold < 1 {
		threshold = 10
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT `+productColumns+`
		FROM products
		WHERE active = true AND stock <= $1
		ORDER BY stock, name
	`, threshold)
	if err != nil {
		return nil, err
	}
	return collectProducts(rows)
}

func (s *Store) CreateBrand(ctx context.Context, brand domain.Brand) (*domain.Brand, error) {
	if brand.Name == "" {
		return nil, store.ErrInvalidBill
	}
	if brand.ID == "" {
		brand.ID = xid.New("brand")
	}
	if brand.CreatedAt.IsZero() {
		brand.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO brands (id, name, created_at) VALUES ($1,$2,$3)
	`, brand.ID, brand.Name, brand.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := brand
	return &created, nil
}

func (s *Store) ListBrands(ctx context.Context) ([]domain.Brand, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM brands ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	brands := make([]domain.Brand, 0, 16)
	for rows.Next() {
		var b domain.Brand
		if err := rows.Scan(&b.ID, &b.Name, &b.CreatedAt); err != nil {
			return nil, err
		}
		b.CreatedAt = b.CreatedAt.UTC()
		brands = append(brands, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return brands, nil
}

func (s *Store) DeleteBrand(ctx context.Context, brandID string) error {
	var inUse bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM products WHERE brand_id = $1 AND active = true)
	`, brandID).Scan(&inUse)
	if err != nil {
		return err
	}
	if inUse {
		return store.ErrConflict
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM brands WHERE id = $1`, brandID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateProductType(ctx context.Context, pt domain.ProductType) (*domain.ProductType, error) {
	if pt.Name == "" {
		return nil, store.ErrInvalidBill
	}
	if pt.ID == "" {
		pt.ID = xid.New("ptype")
	}
	if pt.CreatedAt.IsZero() {
		pt.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_types (id, name, code_prefix, created_at) VALUES ($1,$2,$3,$4)
	`, pt.ID, pt.Name, pt.CodePrefix, pt.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrConflict
		}
		return nil, err
	}
	created := pt
	return &created, nil
}

func (s *Store) ListProductTypes(ctx context.Context) ([]domain.ProductType, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, code_prefix, created_at FROM product_types ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	types := make([]domain.ProductType, 0, 8)
	for rows.Next() {
		var pt domain.ProductType
		if err := rows.Scan(&pt.ID, &pt.Name, &pt.CodePrefix, &pt.CreatedAt); err != nil {
			return nil, err
		}
		pt.CreatedAt = pt.CreatedAt.UTC()
		types = append(types, pt)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return types, nil
}

func (s *Store) DeleteProductType(ctx context.Context, typeID string) error {
	var inUse bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM products WHERE type_id = $1 AND active = true)
	`, typeID).Scan(&inUse)
	if err != nil {
		return err
	}
	if inUse {
		return store.ErrConflict
	}

	res, err := s.db.ExecContext(ctx, `DELETE FROM product_types WHERE id = $1`, typeID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListTaxSettings(ctx context.Context) ([]domain.TaxSetting, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, rate, active FROM tax_settings ORDER BY rate DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	settings := make([]domain.TaxSetting, 0, 4)
	for rows.Next() {
		var setting domain.TaxSetting
		if err := rows.Scan(&setting.Name, &setting.Rate, &setting.Active); err != nil {
			return nil, err
		}
		settings = append(settings, setting)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return settings, nil
}

func (s *Store) GetActiveTaxRate(ctx context.Context) (float64, error) {
	var rate float64
	err := s.db.QueryRowContext(ctx, `SELECT rate FROM tax_settings WHERE active = true LIMIT 1`).Scan(&rate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, store.ErrNotFound
		}
		return 0, err
	}
	return rate, nil
}

func (s *Store) SetActiveTaxSetting(ctx context.Context, name string) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM tax_settings WHERE name = $1)`, name).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return store.ErrNotFound
	}

	if _, err := tx.ExecContext(ctx, `UPDATE tax_settings SET active = (name = $1)`, name); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *Store) SavePendingBill(ctx context.Context, pending domain.PendingBill) (*domain.PendingBill, error) {
	if pending.EmployeeID == "" || len(pending.Items) == 0 {
		return nil, store.ErrInvalidBill
	}
	if pending.ID == "" {
		pending.ID = xid.New("pending")
	}
	if pending.HeldAt.IsZero() {
		pending.HeldAt = time.Now().UTC()
	}

	payload, err := json.Marshal(pending.Items)
	if err != nil {
		return nil, err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO pending_bills (id, employee_id, customer_name, customer_phone, items, discount_kind, discount_value, held_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, pending.ID, pending.EmployeeID, pending.CustomerName, pending.CustomerPhone, payload,
		pending.Discount.Kind, pending.Discount.Value, pending.HeldAt)
	if err != nil {
		return nil, err
	}
	saved := pending
	return &saved, nil
}

func (s *Store) ListPendingBills(ctx context.Context, employeeID string) ([]domain.PendingBill, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, employee_id, customer_name, customer_phone, items, discount_kind, discount_value, held_at
		FROM pending_bills
		WHERE ($1 = '' OR employee_id = $1)
		ORDER BY held_at
	`, employeeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	pendings := make([]domain.PendingBill, 0, 8)
	for rows.Next() {
		pending, err := scanPendingBill(rows)
		if err != nil {
			return nil, err
		}
		pendings = append(pendings, pending)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return pendings, nil
}

func (s *Store) GetPendingBill(ctx context.Context, pendingID string) (*domain.PendingBill, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, employee_id, customer_name, customer_phone, items, discount_kind, discount_value, held_at
		FROM pending_bills
		WHERE id = $1
	`, pendingID)

	pending, err := scanPendingBill(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &pending, nil
}

func (s *Store) DeletePendingBill(ctx context.Context, pendingID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_bills WHERE id = $1`, pendingID)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) PurgePendingBillsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_bills WHERE held_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(affected), nil
}

func (s *Store) CreateEmployee(ctx context.Context, account domain.EmployeeAccount) error {
	if account.EmployeeID == "" || account.Password == "" {
		return store.ErrInvalidBill
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (employee_id, name, password, role, active, created_at)
		VALUES ($1,$2,$3,$4,true,$5)
	`, account.EmployeeID, account.Name, account.Password, account.Role, account.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) ListEmployees(ctx context.Context) ([]domain.EmployeeAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT employee_id, name, password, role, active, created_at
		FROM employees
		ORDER BY employee_id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]domain.EmployeeAccount, 0, 8)
	for rows.Next() {
		var account domain.EmployeeAccount
		if err := rows.Scan(&account.EmployeeID, &account.Name, &account.Password, &account.Role, &account.Active, &account.CreatedAt); err != nil {
			return nil, err
		}
		account.CreatedAt = account.CreatedAt.UTC()
		accounts = append(accounts, account)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *Store) UpdateEmployeePassword(ctx context.Context, employeeID string, password string) error {
	if password == "" {
		return store.ErrInvalidBill
	}
	res, err := s.db.ExecContext(ctx, `UPDATE employees SET password = $2 WHERE employee_id = $1`, employeeID, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) collectBills(ctx context.Context, rows *sql.Rows) ([]domain.Bill, error) {
	defer rows.Close()

	bills := make([]domain.Bill, 0, 32)
	for rows.Next() {
		var bill domain.Bill
		if err := rows.Scan(&bill.InvoiceNo, &bill.Date, &bill.CustomerName, &bill.CustomerPhone, &bill.Discount, &bill.TaxRate,
			&bill.Subtotal, &bill.TaxableAmount, &bill.TaxAmount, &bill.Total,
			&bill.PaymentMethod, &bill.PaymentReference, &bill.CashReceived, &bill.ChangeDue, &bill.CreatedBy, &bill.CreatedAt); err != nil {
			return nil, err
		}
		bill.CreatedAt = bill.CreatedAt.UTC()
		bills = append(bills, bill)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(bills) == 0 {
		return bills, nil
	}

	invoiceNos := make([]string, 0, len(bills))
	for _, bill := range bills {
		invoiceNos = append(invoiceNos, bill.InvoiceNo)
	}
	itemsByInvoice, err := s.loadBillItems(ctx, invoiceNos)
	if err != nil {
		return nil, err
	}
	for i := range bills {
		bills[i].Items = itemsByInvoice[bills[i].InvoiceNo]
	}
	return bills, nil
}

func (s *Store) loadBillItems(ctx context.Context, invoiceNos []string) (map[string][]domain.LineItem, error) {
	result := make(map[string][]domain.LineItem, len(invoiceNos))
	if len(invoiceNos) == 0 {
		return result, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT invoice_no, product_name, hsn_code, quantity, unit_price
		FROM bill_items
		WHERE invoice_no = ANY($1)
		ORDER BY invoice_no, position
	`, invoiceNos)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var invoiceNo string
		var item domain.LineItem
		if err := rows.Scan(&invoiceNo, &item.ProductName, &item.HSNCode, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, err
		}
		result[invoiceNo] = append(result[invoiceNo], item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type pendingScanner interface {
	Scan(dest ...any) error
}

func scanPendingBill(row pendingScanner) (domain.PendingBill, error) {
	var pending domain.PendingBill
	var payload []byte
	if err := row.Scan(&pending.ID, &pending.EmployeeID, &pending.CustomerName, &pending.CustomerPhone,
		&payload, &pending.Discount.Kind, &pending.Discount.Value, &pending.HeldAt); err != nil {
		return domain.PendingBill{}, err
	}
	if err := json.Unmarshal(payload, &pending.Items); err != nil {
		return domain.PendingBill{}, err
	}
	pending.HeldAt = pending.HeldAt.UTC()
	return pending, nil
}

func collectProducts(rows *sql.Rows) ([]domain.Product, error) {
	defer rows.Close()

	products := make([]domain.Product, 0, 64)
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.Barcode, &p.Name, &p.BrandID, &p.TypeID, &p.Category, &p.HSNCode,
			&p.UnitPrice, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		p.CreatedAt = p.CreatedAt.UTC()
		p.UpdatedAt = p.UpdatedAt.UTC()
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return products, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}
