package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusRequested Status = "REQUESTED"
	StatusApproved  Status = "APPROVED"
	StatusProcessed Status = "PROCESSED"
	StatusCompleted Status = "COMPLETED"
	StatusRejected  Status = "REJECTED"
)

var transitions = map[Status][]Status{
	StatusRequested: {StatusApproved, StatusRejected},
	StatusApproved:  {StatusProcessed, StatusRejected},
	StatusProcessed: {StatusCompleted},
	StatusCompleted: {},
	StatusRejected:  {},
}

func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Refund walks a request through approval, processing and completion.
// Money only moves at completion; a rejected refund never touches the
// payment or the invoice.
type Refund struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID  snowflake.ID `json:"tenant_id" gorm:"column:tenant_id;index"`
	PaymentID snowflake.ID `json:"payment_id" gorm:"column:payment_id;index"`
	InvoiceID snowflake.ID `json:"invoice_id" gorm:"column:invoice_id;index"`
	Number    string       `json:"number" gorm:"column:number;uniqueIndex"`
	Status    Status       `json:"status" gorm:"column:status"`

	Amount decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric(14,2)"`
	Reason string          `json:"reason" gorm:"column:reason"`

	RequestedBy     string     `json:"requested_by,omitempty" gorm:"column:requested_by"`
	ApprovedBy      string     `json:"approved_by,omitempty" gorm:"column:approved_by"`
	ApprovedAt      *time.Time `json:"approved_at,omitempty" gorm:"column:approved_at"`
	ProcessedBy     string     `json:"processed_by,omitempty" gorm:"column:processed_by"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty" gorm:"column:processed_at"`
	RejectionReason string     `json:"rejection_reason,omitempty" gorm:"column:rejection_reason"`

	// Payout destination for non-cash refunds.
	BankAccount string `json:"bank_account,omitempty" gorm:"column:bank_account"`
	BankName    string `json:"bank_name,omitempty" gorm:"column:bank_name"`
	IfscCode    string `json:"ifsc_code,omitempty" gorm:"column:ifsc_code"`

	CompletedAt *time.Time `json:"completed_at,omitempty" gorm:"column:completed_at"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (Refund) TableName() string {
	return "refunds"
}

type RequestRefundRequest struct {
	TenantID    snowflake.ID    `json:"-"`
	TenantCode  string          `json:"-"`
	PaymentID   snowflake.ID    `json:"payment_id"`
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
	RequestedBy string          `json:"requested_by,omitempty"`
	BankAccount string          `json:"bank_account,omitempty"`
	BankName    string          `json:"bank_name,omitempty"`
	IfscCode    string          `json:"ifsc_code,omitempty"`
}

type Service interface {
	Request(ctx context.Context, req RequestRefundRequest) (*Refund, error)
	Approve(ctx context.Context, tenantID, refundID snowflake.ID, approvedBy string) (*Refund, error)
	Reject(ctx context.Context, tenantID, refundID snowflake.ID, reason string) (*Refund, error)
	Process(ctx context.Context, tenantID, refundID snowflake.ID, processedBy string) (*Refund, error)
	Complete(ctx context.Context, tenantID, refundID snowflake.ID) (*Refund, error)
	Get(ctx context.Context, tenantID, refundID snowflake.ID) (*Refund, error)
	ListByPayment(ctx context.Context, tenantID, paymentID snowflake.ID) ([]Refund, error)
}
