package render

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	invdomain "github.com/bursarhq/bursar/internal/invoice/domain"
)

const feeInvoiceTemplate = `<!doctype html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>Fee Invoice {{formatNumber .Invoice.Number}}</title>
  <style>
    body { margin: 0; padding: 40px; font-family: -apple-system, "Segoe UI", Roboto, Helvetica, Arial, sans-serif; color: #1a1f36; background: #f7f9fc; }
    .card { background: #fff; max-width: 760px; margin: 0 auto; padding: 48px; border-radius: 4px; box-shadow: 0 2px 5px rgba(0,0,0,0.04); }
    .header { display: flex; justify-content: space-between; margin-bottom: 32px; }
    .header h1 { margin: 0; font-size: 22px; }
    .school { text-align: right; font-weight: 600; color: #8792a2; }
    .label { font-size: 11px; text-transform: uppercase; color: #8792a2; font-weight: 600; letter-spacing: 0.3px; margin-bottom: 4px; }
    .value { font-size: 14px; line-height: 1.5; }
    .meta { display: flex; justify-content: space-between; margin-bottom: 32px; }
    table { width: 100%; border-collapse: collapse; margin-bottom: 24px; }
    th { text-align: left; text-transform: uppercase; font-size: 11px; color: #8792a2; border-bottom: 1px solid #e3e8ee; padding: 8px 0; }
    td { padding: 12px 0; border-bottom: 1px solid #e3e8ee; font-size: 14px; vertical-align: top; }
    .right { text-align: right; }
    .totals { display: flex; flex-direction: column; align-items: flex-end; }
    .row { display: flex; justify-content: space-between; width: 280px; padding: 5px 0; font-size: 14px; }
    .row span:first-child { color: #697386; }
    .final { border-top: 1px solid #e3e8ee; margin-top: 8px; padding-top: 8px; font-weight: 700; font-size: 16px; }
    .status { display: inline-block; padding: 2px 10px; border-radius: 10px; font-size: 12px; font-weight: 600; background: #e3e8ee; }
  </style>
</head>
<body>
  <div class="card">
    <div class="header">
      <div>
        <h1>Fee Invoice</h1>
        <div class="label" style="margin-top: 12px;">Invoice number</div>
        <div class="value">{{formatNumber .Invoice.Number}}</div>
        <div class="value"><span class="status">{{.Invoice.Status}}</span></div>
      </div>
      <div class="school">{{.SchoolName}}</div>
    </div>

    <div class="meta">
      <div>
        <div class="label">Student</div>
        <div class="value"><strong>{{.StudentName}}</strong><br>{{.ClassLevel}} &middot; {{.Invoice.AcademicYear}}</div>
      </div>
      <div>
        <div class="label">Date issued</div>
        <div class="value">{{formatDate .Invoice.IssueDate}}</div>
        <div class="label" style="margin-top: 12px;">Date due</div>
        <div class="value">{{formatDate .Invoice.DueDate}}</div>
      </div>
    </div>

    <table>
      <thead>
        <tr>
          <th style="width: 45%;">Description</th>
          <th>Category</th>
          <th class="right">Qty</th>
          <th class="right">Amount</th>
        </tr>
      </thead>
      <tbody>
        {{range .Invoice.LineItems}}
        <tr>
          <td>{{.Description}}</td>
          <td>{{.Category}}</td>
          <td class="right">{{.Quantity}}</td>
          <td class="right">{{formatMoney .Amount}}</td>
        </tr>
        {{end}}
      </tbody>
    </table>

    <div class="totals">
      <div class="row"><span>Subtotal</span><span>{{formatMoney .Invoice.Subtotal}}</span></div>
      {{if not .Invoice.TotalDiscount.IsZero}}
      <div class="row"><span>Discount</span><span>&minus;{{formatMoney .Invoice.TotalDiscount}}</span></div>
      {{end}}
      {{if not .Invoice.TotalTax.IsZero}}
      <div class="row"><span>Tax</span><span>{{formatMoney .Invoice.TotalTax}}</span></div>
      {{end}}
      {{if not .Invoice.LateFee.IsZero}}
      <div class="row"><span>Late fee</span><span>{{formatMoney .Invoice.LateFee}}</span></div>
      {{end}}
      <div class="row final"><span>Total</span><span>{{formatMoney .Invoice.TotalAmount}}</span></div>
      <div class="row"><span>Paid</span><span>{{formatMoney .Invoice.PaidAmount}}</span></div>
      <div class="row"><span>Balance due</span><span>{{formatMoney .Invoice.BalanceDue}}</span></div>
    </div>
  </div>
</body>
</html>
`

type RenderInput struct {
	SchoolName  string
	StudentName string
	ClassLevel  string
	Invoice     *invdomain.Invoice
}

type Renderer interface {
	RenderHTML(input RenderInput) (string, error)
}

type HTMLRenderer struct {
	tpl *template.Template
}

func NewRenderer() Renderer {
	funcs := template.FuncMap{
		"formatMoney":  formatMoney,
		"formatDate":   formatDate,
		"formatNumber": formatNumber,
	}
	return &HTMLRenderer{
		tpl: template.Must(template.New("fee_invoice").Funcs(funcs).Parse(feeInvoiceTemplate)),
	}
}

func (r *HTMLRenderer) RenderHTML(input RenderInput) (string, error) {
	if input.Invoice == nil {
		return "", fmt.Errorf("render: invoice is required")
	}
	if strings.TrimSpace(input.SchoolName) == "" {
		input.SchoolName = "Fee Invoice"
	}
	if strings.TrimSpace(input.StudentName) == "" {
		input.StudentName = input.Invoice.StudentID.String()
	}

	var buf bytes.Buffer
	if err := r.tpl.Execute(&buf, input); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func formatMoney(amount decimal.Decimal) string {
	return amount.StringFixed(2)
}

func formatDate(value *time.Time) string {
	if value == nil || value.IsZero() {
		return "-"
	}
	return value.UTC().Format("2006-01-02")
}

func formatNumber(number *string) string {
	if number == nil || strings.TrimSpace(*number) == "" {
		return "DRAFT"
	}
	return *number
}
