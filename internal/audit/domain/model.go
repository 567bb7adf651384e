package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

// Billing actions recorded in the audit trail.
const (
	ActionInvoiceIssued    = "INVOICE_ISSUED"
	ActionInvoiceCancelled = "INVOICE_CANCELLED"
	ActionLateFeeAccrued   = "LATE_FEE_ACCRUED"
	ActionDiscountApplied  = "DISCOUNT_APPLIED"
	ActionPaymentApplied   = "PAYMENT_APPLIED"
	ActionPaymentVerified  = "PAYMENT_VERIFIED"
	ActionPaymentFailed    = "PAYMENT_FAILED"
	ActionRefundRequested  = "REFUND_REQUESTED"
	ActionRefundApproved   = "REFUND_APPROVED"
	ActionRefundRejected   = "REFUND_REJECTED"
	ActionRefundProcessed  = "REFUND_PROCESSED"
	ActionRefundCompleted  = "REFUND_COMPLETED"
)

type AuditLog struct {
	ID         snowflake.ID      `json:"id" gorm:"primaryKey"`
	TenantID   *snowflake.ID     `json:"tenant_id,omitempty" gorm:"column:tenant_id"`
	ActorType  string            `json:"actor_type"`
	ActorID    *string           `json:"actor_id,omitempty"`
	Action     string            `json:"action"`
	TargetType string            `json:"target_type"`
	TargetID   *string           `json:"target_id,omitempty"`
	Metadata   datatypes.JSONMap `json:"metadata" gorm:"type:jsonb"`
	CreatedAt  time.Time         `json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}

type AuditCursor struct {
	ID        snowflake.ID
	CreatedAt time.Time
}

type ListFilter struct {
	TenantID   snowflake.ID
	Action     string
	TargetType string
	TargetID   string
	ActorType  string
	StartAt    *time.Time
	EndAt      *time.Time
	Cursor     *AuditCursor
	Limit      int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, entry *AuditLog) error
	List(ctx context.Context, db *gorm.DB, filter ListFilter) ([]*AuditLog, error)
}
