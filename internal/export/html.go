package export

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Koushith/Web3-Invoice-sub000/internal/invoices"
	"github.com/Koushith/Web3-Invoice-sub000/internal/shared"
)

// HTMLConverter converts an HTML document to PDF. report.Client satisfies it.
type HTMLConverter interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// HTMLRenderer renders the invoice as HTML and hands it to a converter.
type HTMLRenderer struct {
	converter HTMLConverter
	tmpl      *template.Template
}

// NewHTMLRenderer constructs an HTMLRenderer backed by converter.
func NewHTMLRenderer(converter HTMLConverter) *HTMLRenderer {
	return &HTMLRenderer{converter: converter, tmpl: invoiceTemplate}
}

// Render implements Renderer.
func (h *HTMLRenderer) Render(ctx context.Context, doc invoices.PublicInvoice) ([]byte, error) {
	html, err := h.HTML(doc)
	if err != nil {
		return nil, err
	}
	return h.converter.RenderHTML(ctx, html)
}

// HTML renders the document markup without converting it.
func (h *HTMLRenderer) HTML(doc invoices.PublicInvoice) (string, error) {
	var buf bytes.Buffer
	if err := h.tmpl.Execute(&buf, doc); err != nil {
		return "", fmt.Errorf("render invoice html: %w", err)
	}
	return buf.String(), nil
}

var invoiceTemplate = template.Must(template.New("invoice").Funcs(template.FuncMap{
	"money": func(code string, d decimal.Decimal) string { return shared.FormatMoney(code, d) },
	"upper": func(s invoices.Status) string { return strings.ToUpper(string(s)) },
}).Parse(`<!doctype html>
<html><head><meta charset="utf-8"><title>Invoice {{.InvoiceNumber}}</title>
<style>
body{font-family:Helvetica,Arial,sans-serif;font-size:12px;margin:40px;color:#222}
table{width:100%;border-collapse:collapse;margin-top:24px}
th{background:#eee;text-align:left;padding:6px}
td{padding:6px;border-bottom:1px solid #eee}
.r{text-align:right}
.totals td{border:none}
</style></head>
<body>
<h1>{{.OrganizationName}}</h1>
<p>Invoice <strong>{{.InvoiceNumber}}</strong> &middot; {{upper .Status}}</p>
<p>Bill to: {{.CustomerName}}<br>Issued {{.IssueDate.Format "Jan 2, 2006"}}{{if .DueDate}}<br>Due {{.DueDate.Format "Jan 2, 2006"}}{{end}}</p>
<table>
<tr><th>Description</th><th class="r">Qty</th><th class="r">Unit price</th><th class="r">Amount</th></tr>
{{range .LineItems}}<tr><td>{{.Description}}</td><td class="r">{{.Quantity}}</td><td class="r">{{money $.Currency .UnitPrice}}</td><td class="r">{{money $.Currency .Amount}}</td></tr>
{{end}}</table>
<table class="totals">
<tr><td class="r">Subtotal</td><td class="r">{{money .Currency .Subtotal}}</td></tr>
<tr><td class="r">Tax ({{.TaxRate}}%)</td><td class="r">{{money .Currency .TaxAmount}}</td></tr>
<tr><td class="r">Total</td><td class="r">{{money .Currency .Total}}</td></tr>
<tr><td class="r">Paid</td><td class="r">{{money .Currency .AmountPaid}}</td></tr>
<tr><td class="r"><strong>Amount due</strong></td><td class="r"><strong>{{money .Currency .AmountDue}}</strong></td></tr>
</table>
{{if .Notes}}<p>{{.Notes}}</p>{{end}}
{{if .Terms}}<p>Terms: {{.Terms}}</p>{{end}}
</body></html>
`))
