package export

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/Koushith/Web3-Invoice-sub000/internal/invoices"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

// Renderer turns an invoice projection into a PDF document.
type Renderer interface {
	Render(ctx context.Context, doc invoices.PublicInvoice) ([]byte, error)
}

// PDFRenderer lays the invoice out locally with gofpdf.
type PDFRenderer struct {
	now func() time.Time
}

// NewPDFRenderer constructs a PDFRenderer.
func NewPDFRenderer() *PDFRenderer {
	return &PDFRenderer{now: func() time.Time { return time.Now().UTC() }}
}

const (
	pageWidth   = 210.0
	marginX     = 15.0
	contentW    = pageWidth - 2*marginX
	rowH        = 7.0
	descColumnW = 95.0
	qtyColumnW  = 20.0
	unitColumnW = 32.5
	amtColumnW  = 32.5
)

// Render implements Renderer.
func (p *PDFRenderer) Render(ctx context.Context, doc invoices.PublicInvoice) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCreationDate(p.now())
	pdf.SetTitle("Invoice "+doc.InvoiceNumber, true)
	pdf.SetMargins(marginX, 20, marginX)
	pdf.SetAutoPageBreak(true, 20)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 20)
	pdf.CellFormat(contentW/2, 10, tr(doc.OrganizationName), "", 0, "L", false, 0, "")
	pdf.CellFormat(contentW/2, 10, tr("INVOICE"), "", 1, "R", false, 0, "")

	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(contentW/2, 6, tr("Bill to: "+doc.CustomerName), "", 0, "L", false, 0, "")
	pdf.CellFormat(contentW/2, 6, tr("No. "+doc.InvoiceNumber), "", 1, "R", false, 0, "")
	pdf.CellFormat(contentW/2, 6, "", "", 0, "L", false, 0, "")
	pdf.CellFormat(contentW/2, 6, "Issued "+doc.IssueDate.Format("Jan 2, 2006"), "", 1, "R", false, 0, "")
	if doc.DueDate != nil {
		pdf.CellFormat(contentW, 6, "Due "+doc.DueDate.Format("Jan 2, 2006"), "", 1, "R", false, 0, "")
	}
	pdf.CellFormat(contentW, 6, "Status: "+strings.ToUpper(string(doc.Status)), "", 1, "R", false, 0, "")
	pdf.Ln(6)

	pdf.SetFont("Arial", "B", 10)
	pdf.SetFillColor(235, 235, 235)
	pdf.CellFormat(descColumnW, rowH, "Description", "B", 0, "L", true, 0, "")
	pdf.CellFormat(qtyColumnW, rowH, "Qty", "B", 0, "R", true, 0, "")
	pdf.CellFormat(unitColumnW, rowH, "Unit price", "B", 0, "R", true, 0, "")
	pdf.CellFormat(amtColumnW, rowH, "Amount", "B", 1, "R", true, 0, "")

	pdf.SetFont("Arial", "", 10)
	for _, item := range doc.LineItems {
		pdf.CellFormat(descColumnW, rowH, tr(item.Description), "", 0, "L", false, 0, "")
		pdf.CellFormat(qtyColumnW, rowH, item.Quantity.String(), "", 0, "R", false, 0, "")
		pdf.CellFormat(unitColumnW, rowH, tr(shared.FormatMoney(doc.Currency, item.UnitPrice)), "", 0, "R", false, 0, "")
		pdf.CellFormat(amtColumnW, rowH, tr(shared.FormatMoney(doc.Currency, item.Amount)), "", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	totals := []struct {
		label string
		value string
	}{
		{"Subtotal", shared.FormatMoney(doc.Currency, doc.Subtotal)},
		{fmt.Sprintf("Tax (%s%%)", doc.TaxRate.String()), shared.FormatMoney(doc.Currency, doc.TaxAmount)},
		{"Total", shared.FormatMoney(doc.Currency, doc.Total)},
		{"Paid", shared.FormatMoney(doc.Currency, doc.AmountPaid)},
		{"Amount due", shared.FormatMoney(doc.Currency, doc.AmountDue)},
	}
	labelW := contentW - amtColumnW - unitColumnW
	for i, row := range totals {
		style := ""
		if i == len(totals)-1 {
			style = "B"
		}
		pdf.SetFont("Arial", style, 10)
		pdf.CellFormat(labelW, rowH, "", "", 0, "L", false, 0, "")
		pdf.CellFormat(unitColumnW, rowH, row.label, "", 0, "R", false, 0, "")
		pdf.CellFormat(amtColumnW, rowH, tr(row.value), "", 1, "R", false, 0, "")
	}

	if doc.Notes != "" || doc.Terms != "" {
		pdf.Ln(8)
		pdf.SetFont("Arial", "", 9)
		if doc.Notes != "" {
			pdf.MultiCell(contentW, 5, tr(doc.Notes), "", "L", false)
		}
		if doc.Terms != "" {
			pdf.Ln(2)
			pdf.MultiCell(contentW, 5, tr("Terms: "+doc.Terms), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render invoice pdf: %w", err)
	}
	return buf.Bytes(), nil
}
