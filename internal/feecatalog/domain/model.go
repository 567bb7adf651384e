package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Category string

const (
	CategoryTuition       Category = "TUITION"
	CategoryAdmission     Category = "ADMISSION"
	CategoryExamination   Category = "EXAMINATION"
	CategoryLibrary       Category = "LIBRARY"
	CategoryLaboratory    Category = "LABORATORY"
	CategorySports        Category = "SPORTS"
	CategoryTransport     Category = "TRANSPORT"
	CategoryHostel        Category = "HOSTEL"
	CategoryMiscellaneous Category = "MISCELLANEOUS"
	CategoryOther         Category = "OTHER"
)

func (c Category) Valid() bool {
	switch c {
	case CategoryTuition, CategoryAdmission, CategoryExamination,
		CategoryLibrary, CategoryLaboratory, CategorySports,
		CategoryTransport, CategoryHostel, CategoryMiscellaneous, CategoryOther:
		return true
	}
	return false
}

type Frequency string

const (
	FrequencyOneTime    Frequency = "ONE_TIME"
	FrequencyMonthly    Frequency = "MONTHLY"
	FrequencyQuarterly  Frequency = "QUARTERLY"
	FrequencyHalfYearly Frequency = "HALF_YEARLY"
	FrequencyYearly     Frequency = "YEARLY"
	FrequencyPerTerm    Frequency = "PER_TERM"
)

func (f Frequency) Valid() bool {
	return f.OccurrencesPerYear() > 0
}

// OccurrencesPerYear returns how many times the fee falls due within one
// academic year. Terms follow the common three-term calendar.
func (f Frequency) OccurrencesPerYear() int {
	switch f {
	case FrequencyOneTime, FrequencyYearly:
		return 1
	case FrequencyMonthly:
		return 12
	case FrequencyQuarterly:
		return 4
	case FrequencyHalfYearly:
		return 2
	case FrequencyPerTerm:
		return 3
	}
	return 0
}

// FeeStructure is a reusable charge template scoped to one tenant,
// academic year and class level. Invoices snapshot its amount at issue
// time, so later edits never rewrite issued documents.
type FeeStructure struct {
	ID              snowflake.ID    `json:"id" gorm:"primaryKey"`
	TenantID        snowflake.ID    `json:"tenant_id" gorm:"column:tenant_id;uniqueIndex:idx_fee_structure_scope"`
	AcademicYear    string          `json:"academic_year" gorm:"column:academic_year;uniqueIndex:idx_fee_structure_scope"`
	ClassLevel      string          `json:"class_level" gorm:"column:class_level;uniqueIndex:idx_fee_structure_scope"`
	Category        Category        `json:"category" gorm:"column:category;uniqueIndex:idx_fee_structure_scope"`
	Frequency       Frequency       `json:"frequency" gorm:"column:frequency;uniqueIndex:idx_fee_structure_scope"`
	Amount          decimal.Decimal `json:"amount" gorm:"column:amount;type:numeric(14,2)"`
	DueDay          int             `json:"due_day" gorm:"column:due_day"`
	LateFeeAmount   decimal.Decimal `json:"late_fee_amount" gorm:"column:late_fee_amount;type:numeric(14,2)"`
	GraceDays       *int            `json:"grace_days,omitempty" gorm:"column:grace_days"`
	DiscountAllowed bool            `json:"discount_allowed" gorm:"column:discount_allowed"`
	Active          bool            `json:"active" gorm:"column:active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

func (FeeStructure) TableName() string {
	return "fee_structures"
}

// YearlyTotal annualizes a set of fee structures: each amount times its
// occurrences per year, summed.
func YearlyTotal(structures []FeeStructure) decimal.Decimal {
	total := decimal.Zero
	for _, fs := range structures {
		occurrences := decimal.NewFromInt(int64(fs.Frequency.OccurrencesPerYear()))
		total = total.Add(fs.Amount.Mul(occurrences))
	}
	return total
}
