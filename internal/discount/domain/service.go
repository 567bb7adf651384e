package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type CreateDiscountRequest struct {
	TenantID           snowflake.ID     `json:"-"`
	Code               string           `json:"code"`
	Name               string           `json:"name"`
	Type               DiscountType     `json:"type"`
	Value              decimal.Decimal  `json:"value"`
	MaxCap             *decimal.Decimal `json:"max_cap,omitempty"`
	Categories         []string         `json:"categories,omitempty"`
	ClassLevels        []string         `json:"class_levels,omitempty"`
	MinMeritPercent    *decimal.Decimal `json:"min_merit_percent,omitempty"`
	ValidFrom          *time.Time       `json:"valid_from,omitempty"`
	ValidUntil         *time.Time       `json:"valid_until,omitempty"`
	UsageLimit         *int64           `json:"usage_limit,omitempty"`
	MaxUsagePerStudent *int64           `json:"max_usage_per_student,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateDiscountRequest) (*Discount, error)
	Get(ctx context.Context, tenantID, id snowflake.ID) (*Discount, error)
	GetByCode(ctx context.Context, tenantID snowflake.ID, code string) (*Discount, error)
	List(ctx context.Context, tenantID snowflake.ID) ([]Discount, error)
	Deactivate(ctx context.Context, tenantID, id snowflake.ID) error

	// Consume burns one usage of the discount inside the caller's
	// transaction. It fails with a conflict when another redemption
	// moved the version first, and with a state error once the usage
	// limit is exhausted.
	Consume(ctx context.Context, tx *gorm.DB, d *Discount) error
}
