package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type Method string

const (
	MethodCash         Method = "CASH"
	MethodCheque       Method = "CHEQUE"
	MethodBankTransfer Method = "BANK_TRANSFER"
	MethodOnline       Method = "ONLINE"
	MethodDemandDraft  Method = "DD"
	MethodCard         Method = "CARD"
	MethodUPI          Method = "UPI"
	MethodOther        Method = "OTHER"
)

func (m Method) Valid() bool {
	switch m {
	case MethodCash, MethodCheque, MethodBankTransfer, MethodOnline,
		MethodDemandDraft, MethodCard, MethodUPI, MethodOther:
		return true
	}
	return false
}

// Instant reports whether the method settles at the counter. Cheques,
// demand drafts and online gateway payments start PENDING and wait for
// verification.
func (m Method) Instant() bool {
	switch m {
	case MethodCash, MethodBankTransfer, MethodCard, MethodUPI:
		return true
	}
	return false
}

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
	StatusRefunded  Status = "REFUNDED"
)

// Payment is one ledger entry against an invoice. Amount never changes
// after creation; RefundedAmount grows monotonically under the version
// guard until it reaches Amount.
type Payment struct {
	ID        snowflake.ID `json:"id" gorm:"primaryKey"`
	TenantID  snowflake.ID `json:"tenant_id" gorm:"column:tenant_id;index"`
	InvoiceID snowflake.ID `json:"invoice_id" gorm:"column:invoice_id;index"`
	Number    string       `json:"number" gorm:"column:number;uniqueIndex"`
	Method    Method       `json:"method" gorm:"column:method"`
	Status    Status       `json:"status" gorm:"column:status"`

	Amount         decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric(14,2)"`
	RefundedAmount decimal.Decimal `json:"refunded_amount" gorm:"column:refunded_amount;type:numeric(14,2)"`

	Reference       string            `json:"reference,omitempty" gorm:"column:reference"`
	PaidBy          string            `json:"paid_by,omitempty" gorm:"column:paid_by"`
	ReceivedBy      string            `json:"received_by,omitempty" gorm:"column:received_by"`
	BankName        string            `json:"bank_name,omitempty" gorm:"column:bank_name"`
	ChequeNumber    string            `json:"cheque_number,omitempty" gorm:"column:cheque_number"`
	GatewayResponse datatypes.JSONMap `json:"gateway_response,omitempty" gorm:"column:gateway_response"`

	VerifiedBy string     `json:"verified_by,omitempty" gorm:"column:verified_by"`
	VerifiedAt *time.Time `json:"verified_at,omitempty" gorm:"column:verified_at"`

	FailureReason string     `json:"failure_reason,omitempty" gorm:"column:failure_reason"`
	PaidAt        *time.Time `json:"paid_at,omitempty" gorm:"column:paid_at"`
	Notes         string     `json:"notes,omitempty" gorm:"column:notes"`

	Version   int64     `json:"version" gorm:"column:version"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Payment) TableName() string {
	return "payments"
}

// Refundable reports whether refunds may be raised against this payment.
// A payment flips to REFUNDED once the refunded amount reaches the paid
// amount, at which point the cap is exhausted anyway.
func (p Payment) Refundable() bool {
	return p.Status == StatusCompleted
}
