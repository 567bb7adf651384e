package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	feedomain "github.com/bursarhq/bursar/internal/feecatalog/domain"
	"github.com/bursarhq/bursar/pkg/errs"
)

func dec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func TestEvaluatePercentageWithCap(t *testing.T) {
	cap := dec("150")
	d := Discount{Active: true, Type: TypePercentage, Value: dec("20"), MaxCap: &cap}

	amount, err := Evaluate(d, Payer{}, dec("1000"), time.Now())
	require.NoError(t, err)
	assert.True(t, amount.Equal(dec("150")), "got %s", amount)

	// Below the cap the raw percentage wins.
	amount, err = Evaluate(d, Payer{}, dec("500"), time.Now())
	require.NoError(t, err)
	assert.True(t, amount.Equal(dec("100")), "got %s", amount)
}

func TestEvaluatePercentageUncapped(t *testing.T) {
	d := Discount{Active: true, Type: TypePercentage, Value: dec("20")}

	amount, err := Evaluate(d, Payer{}, dec("1000"), time.Now())
	require.NoError(t, err)
	assert.True(t, amount.Equal(dec("200")), "got %s", amount)
}

func TestEvaluateFixedClampsToBase(t *testing.T) {
	d := Discount{Active: true, Type: TypeFixed, Value: dec("300")}

	amount, err := Evaluate(d, Payer{}, dec("250"), time.Now())
	require.NoError(t, err)
	assert.True(t, amount.Equal(dec("250")), "got %s", amount)
}

func TestEvaluateRounding(t *testing.T) {
	d := Discount{Active: true, Type: TypePercentage, Value: dec("7.5")}

	amount, err := Evaluate(d, Payer{}, dec("333.33"), time.Now())
	require.NoError(t, err)
	assert.True(t, amount.Equal(dec("25.00")), "got %s", amount)
}

func TestEvaluateValidityWindow(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	from := now.Add(24 * time.Hour)
	until := now.Add(-24 * time.Hour)

	_, err := Evaluate(Discount{Active: true, Type: TypeFixed, Value: dec("10"), ValidFrom: &from}, Payer{}, dec("100"), now)
	assert.True(t, errs.IsKind(err, errs.KindState))
	assert.Equal(t, "discount.not_started", errs.ConstraintOf(err))

	_, err = Evaluate(Discount{Active: true, Type: TypeFixed, Value: dec("10"), ValidUntil: &until}, Payer{}, dec("100"), now)
	assert.True(t, errs.IsKind(err, errs.KindState))
	assert.Equal(t, "discount.expired", errs.ConstraintOf(err))

	_, err = Evaluate(Discount{Active: false, Type: TypeFixed, Value: dec("10")}, Payer{}, dec("100"), now)
	assert.True(t, errs.IsKind(err, errs.KindState))
	assert.Equal(t, "discount.inactive", errs.ConstraintOf(err))
}

func TestEvaluateClassEligibility(t *testing.T) {
	d := Discount{Active: true, Type: TypeFixed, Value: dec("10"), ClassLevels: []string{"grade-11", "grade-12"}}

	_, err := Evaluate(d, Payer{ClassLevel: "grade-5"}, dec("100"), time.Now())
	assert.True(t, errs.IsKind(err, errs.KindState))
	assert.Equal(t, "discount.class_not_eligible", errs.ConstraintOf(err))

	amount, err := Evaluate(d, Payer{ClassLevel: "grade-12"}, dec("100"), time.Now())
	require.NoError(t, err)
	assert.True(t, amount.Equal(dec("10")), "got %s", amount)
}

func TestEvaluateMeritThreshold(t *testing.T) {
	min := dec("85")
	d := Discount{Active: true, Type: TypePercentage, Value: dec("25"), MinMeritPercent: &min}

	// No score supplied.
	_, err := Evaluate(d, Payer{}, dec("1000"), time.Now())
	assert.True(t, errs.IsKind(err, errs.KindState))
	assert.Equal(t, "discount.merit_not_met", errs.ConstraintOf(err))

	low := dec("70")
	_, err = Evaluate(d, Payer{MeritPercent: &low}, dec("1000"), time.Now())
	assert.Equal(t, "discount.merit_not_met", errs.ConstraintOf(err))

	high := dec("92")
	amount, err := Evaluate(d, Payer{MeritPercent: &high}, dec("1000"), time.Now())
	require.NoError(t, err)
	assert.True(t, amount.Equal(dec("250")), "got %s", amount)
}

func TestAppliesTo(t *testing.T) {
	all := Discount{}
	assert.True(t, all.AppliesTo(feedomain.CategoryTuition))

	scoped := Discount{Categories: []string{"TUITION", "TRANSPORT"}}
	assert.True(t, scoped.AppliesTo(feedomain.CategoryTuition))
	assert.False(t, scoped.AppliesTo(feedomain.CategorySports))
}

func TestAppliesToClass(t *testing.T) {
	all := Discount{}
	assert.True(t, all.AppliesToClass("grade-3"))

	scoped := Discount{ClassLevels: []string{"grade-1", "grade-2"}}
	assert.True(t, scoped.AppliesToClass("grade-2"))
	assert.False(t, scoped.AppliesToClass("grade-9"))
	assert.False(t, scoped.AppliesToClass(""))
}
