package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ApplyPaymentRequest struct {
	TenantID   snowflake.ID    `json:"-"`
	TenantCode string          `json:"-"`
	InvoiceID  snowflake.ID    `json:"invoice_id"`
	Method     Method          `json:"method"`
	Amount     decimal.Decimal `json:"amount"`
	Reference  string          `json:"reference,omitempty"`

	PaidBy          string         `json:"paid_by,omitempty"`
	ReceivedBy      string         `json:"received_by,omitempty"`
	BankName        string         `json:"bank_name,omitempty"`
	ChequeNumber    string         `json:"cheque_number,omitempty"`
	GatewayResponse map[string]any `json:"gateway_response,omitempty"`

	Notes string `json:"notes,omitempty"`
}

type Service interface {
	// Apply records a payment against a payable invoice. Instant
	// methods settle immediately; pending ones only move the invoice
	// balance once verified.
	Apply(ctx context.Context, req ApplyPaymentRequest) (*Payment, error)

	// Verify completes a pending payment and credits the invoice
	// exactly once, recording who verified it; verifying an already
	// completed payment is a no-op.
	Verify(ctx context.Context, tenantID, paymentID snowflake.ID, verifiedBy string) (*Payment, error)

	// MarkFailed voids a pending payment without touching the invoice.
	MarkFailed(ctx context.Context, tenantID, paymentID snowflake.ID, reason string) (*Payment, error)

	Get(ctx context.Context, tenantID, paymentID snowflake.ID) (*Payment, error)
	ListByInvoice(ctx context.Context, tenantID, invoiceID snowflake.ID) ([]Payment, error)

	// RecordRefund moves refunded amounts under the payment version
	// guard inside the caller's transaction. It is used by the refund
	// workflow, not exposed over HTTP.
	RecordRefund(ctx context.Context, tx *gorm.DB, p *Payment, amount decimal.Decimal) error
}
