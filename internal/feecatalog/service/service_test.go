package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	feedomain "github.com/bursarhq/bursar/internal/feecatalog/domain"
	"github.com/bursarhq/bursar/pkg/errs"
)

func setup(t *testing.T) (feedomain.Service, *gorm.DB) {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&feedomain.FeeStructure{}))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	svc := NewService(Params{DB: gdb, Log: zap.NewNop(), GenID: node})
	return svc, gdb
}

func createRequest(tenantID snowflake.ID) feedomain.CreateFeeStructureRequest {
	return feedomain.CreateFeeStructureRequest{
		TenantID:        tenantID,
		AcademicYear:    "2026-2027",
		ClassLevel:      "grade-5",
		Category:        feedomain.CategoryTuition,
		Frequency:       feedomain.FrequencyMonthly,
		Amount:          decimal.NewFromInt(1000),
		DueDay:          10,
		LateFeeAmount:   decimal.NewFromInt(50),
		DiscountAllowed: true,
	}
}

func TestCreateFeeStructure(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	fs, err := svc.Create(ctx, createRequest(1001))
	require.NoError(t, err)
	assert.True(t, fs.Active)
	assert.True(t, fs.Amount.Equal(decimal.NewFromInt(1000)))

	_, err = svc.Create(ctx, createRequest(1001))
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindConflict))
	assert.Equal(t, "fee_structure.duplicate", errs.ConstraintOf(err))

	// A different frequency within the same scope is a distinct template.
	other := createRequest(1001)
	other.Frequency = feedomain.FrequencyYearly
	_, err = svc.Create(ctx, other)
	require.NoError(t, err)
}

func TestCreateFeeStructureValidation(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	cases := []struct {
		name       string
		mutate     func(*feedomain.CreateFeeStructureRequest)
		constraint string
	}{
		{"bad year format", func(r *feedomain.CreateFeeStructureRequest) { r.AcademicYear = "2026" }, "fee_structure.academic_year"},
		{"non consecutive years", func(r *feedomain.CreateFeeStructureRequest) { r.AcademicYear = "2026-2030" }, "fee_structure.academic_year"},
		{"zero amount", func(r *feedomain.CreateFeeStructureRequest) { r.Amount = decimal.Zero }, "fee_structure.amount"},
		{"negative late fee", func(r *feedomain.CreateFeeStructureRequest) { r.LateFeeAmount = decimal.NewFromInt(-1) }, "fee_structure.late_fee_amount"},
		{"due day too high", func(r *feedomain.CreateFeeStructureRequest) { r.DueDay = 32 }, "fee_structure.due_day"},
		{"unknown category", func(r *feedomain.CreateFeeStructureRequest) { r.Category = "PARKING" }, "fee_structure.category"},
		{"unknown frequency", func(r *feedomain.CreateFeeStructureRequest) { r.Frequency = "WEEKLY" }, "fee_structure.frequency"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := createRequest(1001)
			tc.mutate(&req)
			_, err := svc.Create(ctx, req)
			require.Error(t, err)
			assert.True(t, errs.IsKind(err, errs.KindValidation))
			assert.Equal(t, tc.constraint, errs.ConstraintOf(err))
		})
	}
}

func TestResolveApplicable(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	tuition, err := svc.Create(ctx, createRequest(1001))
	require.NoError(t, err)

	sports := createRequest(1001)
	sports.Category = feedomain.CategorySports
	sports.Frequency = feedomain.FrequencyYearly
	sports.Amount = decimal.NewFromInt(300)
	_, err = svc.Create(ctx, sports)
	require.NoError(t, err)

	otherClass := createRequest(1001)
	otherClass.ClassLevel = "grade-6"
	_, err = svc.Create(ctx, otherClass)
	require.NoError(t, err)

	inactive := false
	_, err = svc.Update(ctx, 1001, tuition.ID, feedomain.UpdateFeeStructureRequest{Active: &inactive})
	require.NoError(t, err)

	structures, err := svc.ResolveApplicable(ctx, feedomain.ResolveApplicableRequest{
		TenantID:     1001,
		AcademicYear: "2026-2027",
		ClassLevel:   "grade-5",
	})
	require.NoError(t, err)
	require.Len(t, structures, 1)
	assert.Equal(t, feedomain.CategorySports, structures[0].Category)
}

func TestDeleteFeeStructureInUse(t *testing.T) {
	svc, gdb := setup(t)
	ctx := context.Background()

	fs, err := svc.Create(ctx, createRequest(1001))
	require.NoError(t, err)

	require.NoError(t, gdb.Exec(
		"CREATE TABLE invoice_line_items (id INTEGER PRIMARY KEY, fee_structure_id INTEGER)",
	).Error)
	require.NoError(t, gdb.Exec(
		"INSERT INTO invoice_line_items (id, fee_structure_id) VALUES (1, ?)", fs.ID,
	).Error)

	err = svc.Delete(ctx, 1001, fs.ID)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindState))
	assert.Equal(t, "fee_structure.in_use", errs.ConstraintOf(err))

	require.NoError(t, gdb.Exec("DELETE FROM invoice_line_items").Error)
	require.NoError(t, svc.Delete(ctx, 1001, fs.ID))

	_, err = svc.Get(ctx, 1001, fs.ID)
	assert.True(t, errs.IsKind(err, errs.KindNotFound))
}

func TestGetScopedToTenant(t *testing.T) {
	svc, _ := setup(t)
	ctx := context.Background()

	fs, err := svc.Create(ctx, createRequest(1001))
	require.NoError(t, err)

	_, err = svc.Get(ctx, 2002, fs.ID)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindNotFound))
}

func TestYearlyTotal(t *testing.T) {
	structures := []feedomain.FeeStructure{
		{Amount: decimal.NewFromInt(1000), Frequency: feedomain.FrequencyMonthly},
		{Amount: decimal.NewFromInt(300), Frequency: feedomain.FrequencyYearly},
		{Amount: decimal.NewFromInt(200), Frequency: feedomain.FrequencyPerTerm},
	}

	total := feedomain.YearlyTotal(structures)
	assert.True(t, total.Equal(decimal.NewFromInt(12900)), "got %s", total)
}
