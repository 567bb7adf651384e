package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Document kinds with independent counter streams.
const (
	KindInvoice = "invoice"
	KindPayment = "payment"
	KindRefund  = "refund"
)

// DocumentCounter holds the last issued number for one
// (tenant, kind, year) stream.
type DocumentCounter struct {
	TenantID  snowflake.ID `gorm:"column:tenant_id;primaryKey"`
	Kind      string       `gorm:"column:kind;primaryKey"`
	Year      int          `gorm:"column:year;primaryKey"`
	Value     int64        `gorm:"column:value"`
	UpdatedAt time.Time    `gorm:"column:updated_at"`
}

func (DocumentCounter) TableName() string {
	return "document_counters"
}

// Service issues gap-free document numbers. Next must be called inside
// the transaction that persists the document so an aborted transaction
// rolls the counter back with it.
type Service interface {
	Next(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, tenantCode, kind string, year int) (string, error)
}
