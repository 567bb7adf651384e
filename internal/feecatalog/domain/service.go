package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type CreateFeeStructureRequest struct {
	TenantID        snowflake.ID    `json:"-"`
	AcademicYear    string          `json:"academic_year"`
	ClassLevel      string          `json:"class_level"`
	Category        Category        `json:"category"`
	Frequency       Frequency       `json:"frequency"`
	Amount          decimal.Decimal `json:"amount"`
	DueDay          int             `json:"due_day"`
	LateFeeAmount   decimal.Decimal `json:"late_fee_amount"`
	GraceDays       *int            `json:"grace_days,omitempty"`
	DiscountAllowed bool            `json:"discount_allowed"`
}

type UpdateFeeStructureRequest struct {
	Amount          *decimal.Decimal `json:"amount,omitempty"`
	DueDay          *int             `json:"due_day,omitempty"`
	LateFeeAmount   *decimal.Decimal `json:"late_fee_amount,omitempty"`
	GraceDays       *int             `json:"grace_days,omitempty"`
	DiscountAllowed *bool            `json:"discount_allowed,omitempty"`
	Active          *bool            `json:"active,omitempty"`
}

type ResolveApplicableRequest struct {
	TenantID     snowflake.ID
	AcademicYear string
	ClassLevel   string
}

type Service interface {
	Create(ctx context.Context, req CreateFeeStructureRequest) (*FeeStructure, error)
	Get(ctx context.Context, tenantID, id snowflake.ID) (*FeeStructure, error)
	Update(ctx context.Context, tenantID, id snowflake.ID, req UpdateFeeStructureRequest) (*FeeStructure, error)
	Delete(ctx context.Context, tenantID, id snowflake.ID) error
	ResolveApplicable(ctx context.Context, req ResolveApplicableRequest) ([]FeeStructure, error)
}
