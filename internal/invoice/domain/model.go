package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	feedomain "github.com/bursarhq/bursar/internal/feecatalog/domain"
	"github.com/bursarhq/bursar/pkg/money"
)

type Status string

const (
	StatusDraft         Status = "DRAFT"
	StatusIssued        Status = "ISSUED"
	StatusPartiallyPaid Status = "PARTIALLY_PAID"
	StatusPaid          Status = "PAID"
	StatusOverdue       Status = "OVERDUE"
	StatusCancelled     Status = "CANCELLED"
	StatusRefunded      Status = "REFUNDED"
)

// transitions is the allowed status graph. Terminal states have no
// outgoing edges.
var transitions = map[Status][]Status{
	StatusDraft:         {StatusIssued, StatusCancelled},
	StatusIssued:        {StatusPartiallyPaid, StatusPaid, StatusOverdue, StatusCancelled},
	StatusPartiallyPaid: {StatusPaid, StatusOverdue, StatusRefunded},
	StatusOverdue:       {StatusPartiallyPaid, StatusPaid, StatusCancelled, StatusRefunded},
	StatusPaid:          {StatusRefunded},
	StatusCancelled:     {},
	StatusRefunded:      {},
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Payable reports whether the invoice can still accept payments.
func (s Status) Payable() bool {
	switch s {
	case StatusIssued, StatusPartiallyPaid, StatusOverdue:
		return true
	}
	return false
}

// Invoice is the billing aggregate root. All monetary columns are
// derived from line items, applied discounts and the late fee by
// RecomputeTotals; they are never edited directly. The version column
// serializes concurrent settlement updates.
type Invoice struct {
	ID           snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID     snowflake.ID `json:"tenant_id" gorm:"column:tenant_id;index:idx_invoice_tenant"`
	StudentID    snowflake.ID `json:"student_id" gorm:"column:student_id;index"`
	Number       *string      `json:"number,omitempty" gorm:"column:number;uniqueIndex"`
	AcademicYear string       `json:"academic_year" gorm:"column:academic_year"`
	Status       Status       `json:"status" gorm:"column:status;index:idx_invoice_tenant"`

	IssueDate *time.Time `json:"issue_date,omitempty" gorm:"column:issue_date"`
	DueDate   *time.Time `json:"due_date,omitempty" gorm:"column:due_date"`

	Subtotal      decimal.Decimal `json:"subtotal" gorm:"column:subtotal;type:numeric(14,2)"`
	TotalDiscount decimal.Decimal `json:"total_discount" gorm:"column:total_discount;type:numeric(14,2)"`
	TotalTax      decimal.Decimal `json:"total_tax" gorm:"column:total_tax;type:numeric(14,2)"`
	LateFee       decimal.Decimal `json:"late_fee" gorm:"column:late_fee;type:numeric(14,2)"`
	TotalAmount   decimal.Decimal `json:"total_amount" gorm:"column:total_amount;type:numeric(14,2)"`
	PaidAmount    decimal.Decimal `json:"paid_amount" gorm:"column:paid_amount;type:numeric(14,2)"`
	BalanceDue    decimal.Decimal `json:"balance_due" gorm:"column:balance_due;type:numeric(14,2)"`

	Notes   string `json:"notes,omitempty" gorm:"column:notes"`
	Version int64  `json:"version" gorm:"column:version"`

	LineItems []LineItem        `json:"line_items" gorm:"foreignKey:InvoiceID"`
	Discounts []AppliedDiscount `json:"discounts" gorm:"foreignKey:InvoiceID"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Invoice) TableName() string {
	return "invoices"
}

// LineItem is one charge on an invoice. Amounts are snapshots taken when
// the item was added; later fee structure edits do not flow back.
type LineItem struct {
	ID             snowflake.ID       `json:"id" gorm:"primaryKey"`
	InvoiceID      snowflake.ID       `json:"invoice_id" gorm:"column:invoice_id;index"`
	FeeStructureID *snowflake.ID      `json:"fee_structure_id,omitempty" gorm:"column:fee_structure_id"`
	Description    string             `json:"description" gorm:"column:description"`
	Category       feedomain.Category `json:"category" gorm:"column:category"`
	Quantity       int                `json:"quantity" gorm:"column:quantity"`
	UnitAmount     decimal.Decimal    `json:"unit_amount" gorm:"column:unit_amount;type:numeric(14,2)"`
	TaxAmount      decimal.Decimal    `json:"tax_amount" gorm:"column:tax_amount;type:numeric(14,2)"`
	Amount         decimal.Decimal    `json:"amount" gorm:"column:amount;type:numeric(14,2)"`
	CreatedAt      time.Time          `json:"created_at"`
}

func (LineItem) TableName() string {
	return "invoice_line_items"
}

// AppliedDiscount records one discount redemption against an invoice,
// with the computed amount frozen at application time.
type AppliedDiscount struct {
	ID         snowflake.ID    `json:"id" gorm:"primaryKey"`
	InvoiceID  snowflake.ID    `json:"invoice_id" gorm:"column:invoice_id;index"`
	DiscountID snowflake.ID    `json:"discount_id" gorm:"column:discount_id"`
	Code       string          `json:"code" gorm:"column:code"`
	Amount     decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric(14,2)"`
	CreatedAt  time.Time       `json:"created_at"`
}

func (AppliedDiscount) TableName() string {
	return "applied_discounts"
}

// RecomputeTotals rebuilds every derived amount from the invoice's line
// items, applied discounts and late fee. It is idempotent: running it
// twice over unchanged inputs yields identical totals.
func RecomputeTotals(inv *Invoice) {
	subtotal := decimal.Zero
	totalTax := decimal.Zero
	for _, item := range inv.LineItems {
		subtotal = subtotal.Add(item.Amount)
		totalTax = totalTax.Add(item.TaxAmount)
	}

	totalDiscount := decimal.Zero
	for _, applied := range inv.Discounts {
		totalDiscount = totalDiscount.Add(applied.Amount)
	}
	totalDiscount = money.Min(totalDiscount, subtotal)

	inv.Subtotal = money.Round(subtotal)
	inv.TotalTax = money.Round(totalTax)
	inv.TotalDiscount = money.Round(totalDiscount)
	inv.LateFee = money.Round(inv.LateFee)
	inv.TotalAmount = inv.Subtotal.Sub(inv.TotalDiscount).Add(inv.TotalTax).Add(inv.LateFee)
	inv.BalanceDue = inv.TotalAmount.Sub(inv.PaidAmount)
}

// SettlementStatus derives the status implied by the paid amount.
func SettlementStatus(inv *Invoice) Status {
	switch {
	case inv.PaidAmount.GreaterThanOrEqual(inv.TotalAmount) && inv.TotalAmount.IsPositive():
		return StatusPaid
	case inv.PaidAmount.IsPositive():
		return StatusPartiallyPaid
	default:
		return inv.Status
	}
}
