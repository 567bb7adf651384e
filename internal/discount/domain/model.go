package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	feedomain "github.com/bursarhq/bursar/internal/feecatalog/domain"
	"github.com/bursarhq/bursar/pkg/errs"
	"github.com/bursarhq/bursar/pkg/money"
)

type DiscountType string

const (
	TypePercentage DiscountType = "PERCENTAGE"
	TypeFixed      DiscountType = "FIXED"
)

func (t DiscountType) Valid() bool {
	return t == TypePercentage || t == TypeFixed
}

// Discount is a tenant-scoped reduction rule redeemed against invoices.
// Categories narrows the rule to matching line items and ClassLevels to
// matching payers; empty sets match everything. MinMeritPercent gates
// merit scholarships on the payer's score. The version column guards
// the usage counter against concurrent redemptions.
type Discount struct {
	ID                 snowflake.ID                `json:"id" gorm:"primaryKey"`
	TenantID           snowflake.ID                `json:"tenant_id" gorm:"column:tenant_id;uniqueIndex:idx_discount_code"`
	Code               string                      `json:"code" gorm:"column:code;uniqueIndex:idx_discount_code"`
	Name               string                      `json:"name" gorm:"column:name"`
	Type               DiscountType                `json:"type" gorm:"column:type"`
	Value              decimal.Decimal             `json:"value" gorm:"column:value;type:numeric(14,2)"`
	MaxCap             *decimal.Decimal            `json:"max_cap,omitempty" gorm:"column:max_cap;type:numeric(14,2)"`
	Categories         datatypes.JSONSlice[string] `json:"categories" gorm:"column:categories"`
	ClassLevels        datatypes.JSONSlice[string] `json:"class_levels" gorm:"column:class_levels"`
	MinMeritPercent    *decimal.Decimal            `json:"min_merit_percent,omitempty" gorm:"column:min_merit_percent;type:numeric(5,2)"`
	ValidFrom          *time.Time                  `json:"valid_from,omitempty" gorm:"column:valid_from"`
	ValidUntil         *time.Time                  `json:"valid_until,omitempty" gorm:"column:valid_until"`
	UsageLimit         *int64                      `json:"usage_limit,omitempty" gorm:"column:usage_limit"`
	MaxUsagePerStudent *int64                      `json:"max_usage_per_student,omitempty" gorm:"column:max_usage_per_student"`
	UsageCount         int64                       `json:"usage_count" gorm:"column:usage_count"`
	Active             bool                        `json:"active" gorm:"column:active"`
	Version            int64                       `json:"version" gorm:"column:version"`
	CreatedAt          time.Time                   `json:"created_at"`
	UpdatedAt          time.Time                   `json:"updated_at"`
}

func (Discount) TableName() string {
	return "discounts"
}

// AppliesTo reports whether a line item category is eligible under this
// discount. An empty category set matches everything.
func (d Discount) AppliesTo(category feedomain.Category) bool {
	if len(d.Categories) == 0 {
		return true
	}
	for _, c := range d.Categories {
		if feedomain.Category(c) == category {
			return true
		}
	}
	return false
}

// AppliesToClass reports whether the payer's class level is eligible.
// An empty class set matches everything.
func (d Discount) AppliesToClass(classLevel string) bool {
	if len(d.ClassLevels) == 0 {
		return true
	}
	for _, c := range d.ClassLevels {
		if strings.EqualFold(c, classLevel) {
			return true
		}
	}
	return false
}

// Payer carries the attributes eligibility is judged on. MeritPercent
// is nil when the caller has no score for the student.
type Payer struct {
	ClassLevel   string
	MeritPercent *decimal.Decimal
}

// Evaluate computes the reduction this discount yields for the payer on
// the eligible base amount at the given instant. The result never
// exceeds the base and never goes negative.
func Evaluate(d Discount, payer Payer, base decimal.Decimal, at time.Time) (decimal.Decimal, error) {
	if !d.Active {
		return decimal.Zero, errs.State("discount.inactive", "discount is not active")
	}
	if d.ValidFrom != nil && at.Before(*d.ValidFrom) {
		return decimal.Zero, errs.State("discount.not_started", "discount validity window has not started")
	}
	if d.ValidUntil != nil && at.After(*d.ValidUntil) {
		return decimal.Zero, errs.State("discount.expired", "discount validity window has ended")
	}
	if !d.AppliesToClass(payer.ClassLevel) {
		return decimal.Zero, errs.State("discount.class_not_eligible", "payer's class is not covered by this discount")
	}
	if d.MinMeritPercent != nil {
		if payer.MeritPercent == nil || payer.MeritPercent.LessThan(*d.MinMeritPercent) {
			return decimal.Zero, errs.State("discount.merit_not_met", "payer's merit score is below the required minimum")
		}
	}
	if money.IsNegative(base) {
		return decimal.Zero, errs.Validation("discount.base", "eligible base cannot be negative")
	}

	var amount decimal.Decimal
	switch d.Type {
	case TypePercentage:
		amount = money.Percent(base, d.Value)
		if d.MaxCap != nil {
			amount = money.Min(amount, money.Round(*d.MaxCap))
		}
	case TypeFixed:
		amount = money.Round(d.Value)
	default:
		return decimal.Zero, errs.Validation("discount.type", "unknown discount type")
	}

	return money.Clamp(amount, decimal.Zero, base), nil
}
