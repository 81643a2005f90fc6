package pdf

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"

	"billgen/backend/internal/billing"
	"billgen/backend/internal/domain"
)

// CompanyInfo is the seller block printed on every invoice.
type CompanyInfo struct {
	Name      string
	Address   string
	Phone     string
	GSTIN     string
	StateName string
	StateCode string
}

// InvoiceRenderer produces the printable A4 GST invoice for a bill.
type InvoiceRenderer struct {
	company CompanyInfo
}

func NewInvoiceRenderer(company CompanyInfo) *InvoiceRenderer {
	return &InvoiceRenderer{company: company}
}

func (r *InvoiceRenderer) Render(bill domain.Bill) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 8, r.company.Name, "", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 9)
	if r.company.Address != "" {
		pdf.CellFormat(0, 5, r.company.Address, "", 1, "C", false, 0, "")
	}
	if r.company.Phone != "" {
		pdf.CellFormat(0, 5, "Phone: "+r.company.Phone, "", 1, "C", false, 0, "")
	}
	if r.company.GSTIN != "" {
		pdf.CellFormat(0, 5, "GSTIN: "+r.company.GSTIN, "", 1, "C", false, 0, "")
	}
	if r.company.StateName != "" {
		pdf.CellFormat(0, 5, fmt.Sprintf("State: %s, Code: %s", r.company.StateName, r.company.StateCode), "", 1, "C", false, 0, "")
	}

	pdf.Ln(2)
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 7, "TAX INVOICE", "T", 1, "C", false, 0, "")

	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(95, 6, "Invoice No: "+bill.InvoiceNo, "", 0, "L", false, 0, "")
	pdf.CellFormat(95, 6, "Date: "+bill.Date, "", 1, "R", false, 0, "")
	customer := bill.CustomerName
	if customer == "" {
		customer = "Walk-in Customer"
	}
	pdf.CellFormat(95, 6, "Customer: "+customer, "", 0, "L", false, 0, "")
	if bill.CustomerPhone != "" {
		pdf.CellFormat(95, 6, "Phone: "+bill.CustomerPhone, "", 1, "R", false, 0, "")
	} else {
		pdf.Ln(6)
	}
	pdf.Ln(2)

	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	pdf.CellFormat(10, 7, "#", "1", 0, "C", true, 0, "")
	pdf.CellFormat(75, 7, "Item", "1", 0, "L", true, 0, "")
	pdf.CellFormat(25, 7, "HSN", "1", 0, "C", true, 0, "")
	pdf.CellFormat(15, 7, "Qty", "1", 0, "C", true, 0, "")
	pdf.CellFormat(30, 7, "Rate", "1", 0, "R", true, 0, "")
	pdf.CellFormat(35, 7, "Amount", "1", 1, "R", true, 0, "")

	pdf.SetFont("Arial", "", 9)
	for i, item := range bill.Items {
		pdf.CellFormat(10, 6, fmt.Sprintf("%d", i+1), "1", 0, "C", false, 0, "")
		pdf.CellFormat(75, 6, item.ProductName, "1", 0, "L", false, 0, "")
		pdf.CellFormat(25, 6, item.HSNCode, "1", 0, "C", false, 0, "")
		pdf.CellFormat(15, 6, fmt.Sprintf("%d", item.Quantity), "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, money(item.UnitPrice), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, money(item.LineTotal()), "1", 1, "R", false, 0, "")
	}
	pdf.Ln(2)

	split := billing.SplitTax(bill.TaxAmount, false)
	halfRate := bill.TaxRate / 2

	totalsRow(pdf, "Subtotal", bill.Subtotal, false)
	if bill.Discount > 0 {
		totalsRow(pdf, "Discount", -bill.Discount, false)
		totalsRow(pdf, "Taxable Amount", bill.TaxableAmount, false)
	}
	totalsRow(pdf, fmt.Sprintf("CGST @ %.1f%%", halfRate), split.CGST, false)
	totalsRow(pdf, fmt.Sprintf("SGST @ %.1f%%", halfRate), split.SGST, false)
	totalsRow(pdf, "Grand Total", bill.Total, true)

	if bill.PaymentMethod == domain.PaymentCash {
		totalsRow(pdf, "Cash Received", bill.CashReceived, false)
		totalsRow(pdf, "Change", bill.ChangeDue, false)
	} else {
		pdf.SetFont("Arial", "", 9)
		pdf.CellFormat(155, 6, "Paid via "+bill.PaymentMethod, "", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, bill.PaymentReference, "", 1, "R", false, 0, "")
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "I", 9)
	pdf.CellFormat(0, 6, "Thank you for your business!", "", 1, "C", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render invoice %s: %w", bill.InvoiceNo, err)
	}
	return buf.Bytes(), nil
}

func totalsRow(pdf *gofpdf.Fpdf, label string, amount float64, bold bool) {
	if bold {
		pdf.SetFont("Arial", "B", 10)
	} else {
		pdf.SetFont("Arial", "", 9)
	}
	pdf.CellFormat(155, 6, label, "", 0, "R", false, 0, "")
	pdf.CellFormat(35, 6, money(amount), "", 1, "R", false, 0, "")
}

func money(v float64) string {
	return fmt.Sprintf("Rs %.2f", v)
}
