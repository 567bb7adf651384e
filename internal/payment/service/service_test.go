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

	auditdomain "github.com/bursarhq/bursar/internal/audit/domain"
	"github.com/bursarhq/bursar/internal/clock"
	"github.com/bursarhq/bursar/internal/config"
	discdomain "github.com/bursarhq/bursar/internal/discount/domain"
	feedomain "github.com/bursarhq/bursar/internal/feecatalog/domain"
	feeservice "github.com/bursarhq/bursar/internal/feecatalog/service"
	invdomain "github.com/bursarhq/bursar/internal/invoice/domain"
	invservice "github.com/bursarhq/bursar/internal/invoice/service"
	paydomain "github.com/bursarhq/bursar/internal/payment/domain"
	seqdomain "github.com/bursarhq/bursar/internal/sequence/domain"
	seqservice "github.com/bursarhq/bursar/internal/sequence/service"
	"github.com/bursarhq/bursar/pkg/errs"
)

const testTenant = snowflake.ID(1001)

type noopAuditService struct{}

func (noopAuditService) AuditLog(context.Context, *snowflake.ID, string, *string, string, string, *string, map[string]any) error {
	return nil
}

func (noopAuditService) List(context.Context, auditdomain.ListAuditLogRequest) (auditdomain.ListAuditLogResponse, error) {
	return auditdomain.ListAuditLogResponse{}, nil
}

type harness struct {
	db       *gorm.DB
	clock    *clock.FakeClock
	payments paydomain.Service
	invoices invdomain.Service
	fees     feedomain.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dsn := fmt.Sprintf("file:memdb_%d?mode=memory&cache=shared", time.Now().UnixNano())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(
		&feedomain.FeeStructure{},
		&discdomain.Discount{},
		&invdomain.Invoice{},
		&invdomain.LineItem{},
		&invdomain.AppliedDiscount{},
		&paydomain.Payment{},
		&seqdomain.DocumentCounter{},
	))

	node, err := snowflake.NewNode(4)
	require.NoError(t, err)

	log := zap.NewNop()
	billing := config.NewStaticBillingConfigHolder(config.DefaultBillingConfig())
	fc := clock.NewFakeClock(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC))

	fees := feeservice.NewService(feeservice.Params{DB: gdb, Log: log, GenID: node})
	sequences := seqservice.NewService(seqservice.Params{Log: log, Billing: billing})

	invoices := invservice.NewService(invservice.Params{
		DB:       gdb,
		Log:      log,
		GenID:    node,
		Billing:  billing,
		Clock:    fc,
		Sequence: sequences,
		Fees:     fees,
		Audit:    noopAuditService{},
	})

	payments := NewService(Params{
		DB:       gdb,
		Log:      log,
		GenID:    node,
		Billing:  billing,
		Clock:    fc,
		Sequence: sequences,
		Audit:    noopAuditService{},
	})

	return &harness{db: gdb, clock: fc, payments: payments, invoices: invoices, fees: fees}
}

// issuedInvoice returns an issued invoice with a total of 1000.
func (h *harness) issuedInvoice(t *testing.T) *invdomain.Invoice {
	t.Helper()
	ctx := context.Background()

	fs, err := h.fees.Create(ctx, feedomain.CreateFeeStructureRequest{
		TenantID:      testTenant,
		AcademicYear:  "2025-2026",
		ClassLevel:    "grade-5",
		Category:      feedomain.CategoryTuition,
		Frequency:     feedomain.FrequencyYearly,
		Amount:        decimal.NewFromInt(1000),
		DueDay:        10,
		LateFeeAmount: decimal.NewFromInt(50),
	})
	require.NoError(t, err)

	inv, err := h.invoices.CreateDraft(ctx, invdomain.CreateDraftRequest{
		TenantID:        testTenant,
		StudentID:       snowflake.ID(5001),
		AcademicYear:    "2025-2026",
		FeeStructureIDs: []snowflake.ID{fs.ID},
	})
	require.NoError(t, err)

	issued, err := h.invoices.Issue(ctx, testTenant, inv.ID, "greenfield")
	require.NoError(t, err)
	return issued
}

func (h *harness) reloadInvoice(t *testing.T, id snowflake.ID) *invdomain.Invoice {
	t.Helper()
	inv, err := h.invoices.Get(context.Background(), testTenant, id)
	require.NoError(t, err)
	return inv
}

func TestApplyCashPaymentSettlesImmediately(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.issuedInvoice(t)

	p, err := h.payments.Apply(ctx, paydomain.ApplyPaymentRequest{
		TenantID:   testTenant,
		TenantCode: "greenfield",
		InvoiceID:  inv.ID,
		Method:     paydomain.MethodCash,
		Amount:     decimal.NewFromInt(600),
	})
	require.NoError(t, err)
	assert.Equal(t, paydomain.StatusCompleted, p.Status)
	assert.Equal(t, "PAY-2026-GREENFIELD-00001", p.Number)
	require.NotNil(t, p.PaidAt)

	reloaded := h.reloadInvoice(t, inv.ID)
	assert.Equal(t, invdomain.StatusPartiallyPaid, reloaded.Status)
	assert.True(t, reloaded.PaidAmount.Equal(decimal.NewFromInt(600)))
	assert.True(t, reloaded.BalanceDue.Equal(decimal.NewFromInt(400)))

	// Second payment settles the invoice in full.
	_, err = h.payments.Apply(ctx, paydomain.ApplyPaymentRequest{
		TenantID:   testTenant,
		TenantCode: "greenfield",
		InvoiceID:  inv.ID,
		Method:     paydomain.MethodCash,
		Amount:     decimal.NewFromInt(400),
	})
	require.NoError(t, err)

	reloaded = h.reloadInvoice(t, inv.ID)
	assert.Equal(t, invdomain.StatusPaid, reloaded.Status)
	assert.True(t, reloaded.BalanceDue.IsZero())

	// A fully paid invoice accepts nothing more.
	_, err = h.payments.Apply(ctx, paydomain.ApplyPaymentRequest{
		TenantID:   testTenant,
		TenantCode: "greenfield",
		InvoiceID:  inv.ID,
		Method:     paydomain.MethodCash,
		Amount:     decimal.NewFromInt(1),
	})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindInvariant))
	assert.Equal(t, "payment.exceeds_balance", errs.ConstraintOf(err))
}

func TestApplyRejectsOverpayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.issuedInvoice(t)

	_, err := h.payments.Apply(ctx, paydomain.ApplyPaymentRequest{
		TenantID:   testTenant,
		TenantCode: "greenfield",
		InvoiceID:  inv.ID,
		Method:     paydomain.MethodCash,
		Amount:     decimal.NewFromInt(1001),
	})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindInvariant))
	assert.Equal(t, "payment.exceeds_balance", errs.ConstraintOf(err))
}

func TestApplyChequeStaysPendingUntilVerified(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.issuedInvoice(t)

	p, err := h.payments.Apply(ctx, paydomain.ApplyPaymentRequest{
		TenantID:     testTenant,
		TenantCode:   "greenfield",
		InvoiceID:    inv.ID,
		Method:       paydomain.MethodCheque,
		Amount:       decimal.NewFromInt(1000),
		Reference:    "CHQ-009911",
		PaidBy:       "Asha Rao",
		ReceivedBy:   "front.office",
		BankName:     "State Bank",
		ChequeNumber: "009911",
	})
	require.NoError(t, err)
	assert.Equal(t, paydomain.StatusPending, p.Status)
	assert.Nil(t, p.PaidAt)
	assert.Equal(t, "Asha Rao", p.PaidBy)
	assert.Equal(t, "front.office", p.ReceivedBy)
	assert.Equal(t, "State Bank", p.BankName)
	assert.Equal(t, "009911", p.ChequeNumber)
	assert.Empty(t, p.VerifiedBy)

	// A pending payment does not move the balance.
	reloaded := h.reloadInvoice(t, inv.ID)
	assert.Equal(t, invdomain.StatusIssued, reloaded.Status)
	assert.True(t, reloaded.PaidAmount.IsZero())

	verified, err := h.payments.Verify(ctx, testTenant, p.ID, "bursar.clerk")
	require.NoError(t, err)
	assert.Equal(t, paydomain.StatusCompleted, verified.Status)
	assert.Equal(t, "bursar.clerk", verified.VerifiedBy)
	require.NotNil(t, verified.VerifiedAt)

	reloaded = h.reloadInvoice(t, inv.ID)
	assert.Equal(t, invdomain.StatusPaid, reloaded.Status)
	assert.True(t, reloaded.BalanceDue.IsZero())

	// Verification is idempotent: paid amount is credited exactly once.
	again, err := h.payments.Verify(ctx, testTenant, p.ID, "second.clerk")
	require.NoError(t, err)
	assert.Equal(t, paydomain.StatusCompleted, again.Status)

	reloaded = h.reloadInvoice(t, inv.ID)
	assert.True(t, reloaded.PaidAmount.Equal(decimal.NewFromInt(1000)))
}

func TestMarkFailed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.issuedInvoice(t)

	p, err := h.payments.Apply(ctx, paydomain.ApplyPaymentRequest{
		TenantID:   testTenant,
		TenantCode: "greenfield",
		InvoiceID:  inv.ID,
		Method:     paydomain.MethodCheque,
		Amount:     decimal.NewFromInt(500),
	})
	require.NoError(t, err)

	failed, err := h.payments.MarkFailed(ctx, testTenant, p.ID, "cheque bounced")
	require.NoError(t, err)
	assert.Equal(t, paydomain.StatusFailed, failed.Status)
	assert.Equal(t, "cheque bounced", failed.FailureReason)

	reloaded := h.reloadInvoice(t, inv.ID)
	assert.True(t, reloaded.PaidAmount.IsZero())

	_, err = h.payments.Verify(ctx, testTenant, p.ID, "bursar.clerk")
	require.Error(t, err)
	assert.Equal(t, "payment.not_pending", errs.ConstraintOf(err))
}

func TestApplyToDraftInvoiceFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	draft, err := h.invoices.CreateDraft(ctx, invdomain.CreateDraftRequest{
		TenantID:     testTenant,
		StudentID:    snowflake.ID(5001),
		AcademicYear: "2025-2026",
	})
	require.NoError(t, err)

	_, err = h.payments.Apply(ctx, paydomain.ApplyPaymentRequest{
		TenantID:   testTenant,
		TenantCode: "greenfield",
		InvoiceID:  draft.ID,
		Method:     paydomain.MethodCash,
		Amount:     decimal.NewFromInt(100),
	})
	require.Error(t, err)
	assert.Equal(t, "invoice.not_payable", errs.ConstraintOf(err))
}

func TestConcurrentSettlementLosesCleanly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.issuedInvoice(t)

	// Two counter clerks read the same invoice; both try to settle the
	// remaining balance. The retry loop replays the second payment
	// against the fresh balance, where it fails the cap check instead
	// of double-charging.
	_, err := h.payments.Apply(ctx, paydomain.ApplyPaymentRequest{
		TenantID:   testTenant,
		TenantCode: "greenfield",
		InvoiceID:  inv.ID,
		Method:     paydomain.MethodCash,
		Amount:     decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	_, err = h.payments.Apply(ctx, paydomain.ApplyPaymentRequest{
		TenantID:   testTenant,
		TenantCode: "greenfield",
		InvoiceID:  inv.ID,
		Method:     paydomain.MethodCash,
		Amount:     decimal.NewFromInt(1000),
	})
	require.Error(t, err)

	reloaded := h.reloadInvoice(t, inv.ID)
	assert.True(t, reloaded.PaidAmount.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, invdomain.StatusPaid, reloaded.Status)
}

func TestStaleInvoiceWriteConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.issuedInvoice(t)
	svc := h.payments.(*Service)

	stale, err := svc.loadInvoice(ctx, h.db, testTenant, inv.ID)
	require.NoError(t, err)

	// A concurrent writer lands between the read and the credit.
	require.NoError(t, h.db.Model(&invdomain.Invoice{}).
		Where("id = ?", inv.ID).
		Update("version", gorm.Expr("version + 1")).Error)

	err = h.db.Transaction(func(tx *gorm.DB) error {
		return svc.creditInvoice(ctx, tx, stale, decimal.NewFromInt(100))
	})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindConflict))
	assert.Equal(t, "invoice.version", errs.ConstraintOf(err))

	// The losing write left no trace, and a fresh attempt that re-reads
	// the invoice settles normally.
	reloaded := h.reloadInvoice(t, inv.ID)
	assert.True(t, reloaded.PaidAmount.IsZero())

	_, err = h.payments.Apply(ctx, paydomain.ApplyPaymentRequest{
		TenantID:   testTenant,
		TenantCode: "greenfield",
		InvoiceID:  inv.ID,
		Method:     paydomain.MethodCash,
		Amount:     decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	reloaded = h.reloadInvoice(t, inv.ID)
	assert.True(t, reloaded.PaidAmount.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, invdomain.StatusPaid, reloaded.Status)
}

func TestStaleRefundWriteConflicts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.issuedInvoice(t)
	svc := h.payments.(*Service)

	p, err := h.payments.Apply(ctx, paydomain.ApplyPaymentRequest{
		TenantID:   testTenant,
		TenantCode: "greenfield",
		InvoiceID:  inv.ID,
		Method:     paydomain.MethodCash,
		Amount:     decimal.NewFromInt(1000),
	})
	require.NoError(t, err)

	stale := *p
	require.NoError(t, h.db.Model(&paydomain.Payment{}).
		Where("id = ?", p.ID).
		Update("version", gorm.Expr("version + 1")).Error)

	err = h.db.Transaction(func(tx *gorm.DB) error {
		return svc.RecordRefund(ctx, tx, &stale, decimal.NewFromInt(400))
	})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindConflict))
	assert.Equal(t, "payment.version", errs.ConstraintOf(err))

	fresh, err := h.payments.Get(ctx, testTenant, p.ID)
	require.NoError(t, err)
	assert.True(t, fresh.RefundedAmount.IsZero())
	assert.Equal(t, paydomain.StatusCompleted, fresh.Status)
}

func TestListByInvoice(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv := h.issuedInvoice(t)

	for _, amount := range []int64{300, 200} {
		_, err := h.payments.Apply(ctx, paydomain.ApplyPaymentRequest{
			TenantID:   testTenant,
			TenantCode: "greenfield",
			InvoiceID:  inv.ID,
			Method:     paydomain.MethodCash,
			Amount:     decimal.NewFromInt(amount),
		})
		require.NoError(t, err)
	}

	payments, err := h.payments.ListByInvoice(ctx, testTenant, inv.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.True(t, payments[0].Amount.Equal(decimal.NewFromInt(300)))
	assert.True(t, payments[1].Amount.Equal(decimal.NewFromInt(200)))
}
