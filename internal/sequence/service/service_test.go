package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bursarhq/bursar/internal/config"
	seqdomain "github.com/bursarhq/bursar/internal/sequence/domain"
	"github.com/bursarhq/bursar/pkg/errs"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(&seqdomain.DocumentCounter{}))
	return gdb
}

func newService(t *testing.T) *Service {
	t.Helper()

	svc := NewService(Params{
		Log:     zap.NewNop(),
		Billing: config.NewStaticBillingConfigHolder(config.DefaultBillingConfig()),
	})
	return svc.(*Service)
}

func TestNextFormatsDocumentNumber(t *testing.T) {
	gdb := newTestDB(t)
	svc := newService(t)
	tenantID := snowflake.ID(1001)

	tx := gdb.Begin()
	number, err := svc.Next(context.Background(), tx, tenantID, "Green Valley", seqdomain.KindInvoice, 2026)
	require.NoError(t, err)
	require.NoError(t, tx.Commit().Error)

	require.Equal(t, "INV-2026-GREEN-VALLEY-00001", number)
}

func TestNextIncrementsPerStream(t *testing.T) {
	gdb := newTestDB(t)
	svc := newService(t)
	ctx := context.Background()
	tenantID := snowflake.ID(1001)

	for i := 1; i <= 3; i++ {
		tx := gdb.Begin()
		number, err := svc.Next(ctx, tx, tenantID, "gv", seqdomain.KindInvoice, 2026)
		require.NoError(t, err)
		require.NoError(t, tx.Commit().Error)
		require.Equal(t, fmt.Sprintf("INV-2026-GV-%05d", i), number)
	}

	// Other kinds and years run independent counters.
	tx := gdb.Begin()
	number, err := svc.Next(ctx, tx, tenantID, "gv", seqdomain.KindPayment, 2026)
	require.NoError(t, err)
	require.NoError(t, tx.Commit().Error)
	require.Equal(t, "PAY-2026-GV-00001", number)

	tx = gdb.Begin()
	number, err = svc.Next(ctx, tx, tenantID, "gv", seqdomain.KindInvoice, 2027)
	require.NoError(t, err)
	require.NoError(t, tx.Commit().Error)
	require.Equal(t, "INV-2027-GV-00001", number)
}

func TestNextRollbackLeavesNoGap(t *testing.T) {
	gdb := newTestDB(t)
	svc := newService(t)
	ctx := context.Background()
	tenantID := snowflake.ID(1001)

	tx := gdb.Begin()
	_, err := svc.Next(ctx, tx, tenantID, "gv", seqdomain.KindRefund, 2026)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback().Error)

	tx = gdb.Begin()
	number, err := svc.Next(ctx, tx, tenantID, "gv", seqdomain.KindRefund, 2026)
	require.NoError(t, err)
	require.NoError(t, tx.Commit().Error)
	require.Equal(t, "REF-2026-GV-00001", number)
}

func TestNextValidation(t *testing.T) {
	gdb := newTestDB(t)
	svc := newService(t)
	ctx := context.Background()

	tx := gdb.Begin()
	defer tx.Rollback()

	_, err := svc.Next(ctx, tx, 0, "gv", seqdomain.KindInvoice, 2026)
	require.True(t, errs.IsKind(err, errs.KindValidation))

	_, err = svc.Next(ctx, tx, 1001, "gv", "statement", 2026)
	require.True(t, errs.IsKind(err, errs.KindValidation))

	_, err = svc.Next(ctx, nil, 1001, "gv", seqdomain.KindInvoice, 2026)
	require.True(t, errs.IsKind(err, errs.KindValidation))
}

func TestNextFallsBackToTenantIDSegment(t *testing.T) {
	gdb := newTestDB(t)
	svc := newService(t)
	tenantID := snowflake.ID(77)

	tx := gdb.Begin()
	number, err := svc.Next(context.Background(), tx, tenantID, "", seqdomain.KindInvoice, 2026)
	require.NoError(t, err)
	require.NoError(t, tx.Commit().Error)
	require.Equal(t, "INV-2026-77-00001", number)
}
