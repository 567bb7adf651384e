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
	payservice "github.com/bursarhq/bursar/internal/payment/service"
	refdomain "github.com/bursarhq/bursar/internal/refund/domain"
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
	refunds  refdomain.Service
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
		&refdomain.Refund{},
		&seqdomain.DocumentCounter{},
	))

	node, err := snowflake.NewNode(5)
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

	payments := payservice.NewService(payservice.Params{
		DB:       gdb,
		Log:      log,
		GenID:    node,
		Billing:  billing,
		Clock:    fc,
		Sequence: sequences,
		Audit:    noopAuditService{},
	})

	refunds := NewService(Params{
		DB:       gdb,
		Log:      log,
		GenID:    node,
		Billing:  billing,
		Clock:    fc,
		Sequence: sequences,
		Payments: payments,
		Audit:    noopAuditService{},
	})

	return &harness{db: gdb, refunds: refunds, payments: payments, invoices: invoices, fees: fees}
}

// paidInvoice issues an invoice of 500 and settles it with one cash payment.
func (h *harness) paidInvoice(t *testing.T) (*invdomain.Invoice, *paydomain.Payment) {
	t.Helper()
	ctx := context.Background()

	fs, err := h.fees.Create(ctx, feedomain.CreateFeeStructureRequest{
		TenantID:     testTenant,
		AcademicYear: "2025-2026",
		ClassLevel:   "grade-5",
		Category:     feedomain.CategoryTuition,
		Frequency:    feedomain.FrequencyYearly,
		Amount:       decimal.NewFromInt(500),
		DueDay:       10,
	})
	require.NoError(t, err)

	inv, err := h.invoices.CreateDraft(ctx, invdomain.CreateDraftRequest{
		TenantID:        testTenant,
		StudentID:       snowflake.ID(5001),
		AcademicYear:    "2025-2026",
		FeeStructureIDs: []snowflake.ID{fs.ID},
	})
	require.NoError(t, err)

	inv, err = h.invoices.Issue(ctx, testTenant, inv.ID, "greenfield")
	require.NoError(t, err)

	p, err := h.payments.Apply(ctx, paydomain.ApplyPaymentRequest{
		TenantID:   testTenant,
		TenantCode: "greenfield",
		InvoiceID:  inv.ID,
		Method:     paydomain.MethodCash,
		Amount:     decimal.NewFromInt(500),
	})
	require.NoError(t, err)
	return inv, p
}

func TestRequestRejectsExcessAmount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, p := h.paidInvoice(t)

	_, err := h.refunds.Request(ctx, refdomain.RequestRefundRequest{
		TenantID:   testTenant,
		TenantCode: "greenfield",
		PaymentID:  p.ID,
		Amount:     decimal.NewFromInt(600),
		Reason:     "withdrawal",
	})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindInvariant))
	assert.Equal(t, "refund.exceeds_payment", errs.ConstraintOf(err))
}

func TestRequestWritesPaymentVersion(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, p := h.paidInvoice(t)
	require.Equal(t, int64(1), p.Version)

	// Each reservation bumps the payment row under its version guard,
	// so concurrent requests against the same payment cannot both read
	// a stale reservation sum and commit.
	_, err := h.refunds.Request(ctx, refdomain.RequestRefundRequest{
		TenantID:   testTenant,
		TenantCode: "greenfield",
		PaymentID:  p.ID,
		Amount:     decimal.NewFromInt(200),
		Reason:     "overcharge",
	})
	require.NoError(t, err)

	reloaded, err := h.payments.Get(ctx, testTenant, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), reloaded.Version)

	_, err = h.refunds.Request(ctx, refdomain.RequestRefundRequest{
		TenantID:   testTenant,
		TenantCode: "greenfield",
		PaymentID:  p.ID,
		Amount:     decimal.NewFromInt(300),
		Reason:     "withdrawal",
	})
	require.NoError(t, err)

	reloaded, err = h.payments.Get(ctx, testTenant, p.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), reloaded.Version)

	// The payment is now fully reserved.
	_, err = h.refunds.Request(ctx, refdomain.RequestRefundRequest{
		TenantID:   testTenant,
		TenantCode: "greenfield",
		PaymentID:  p.ID,
		Amount:     decimal.NewFromInt(1),
		Reason:     "withdrawal",
	})
	require.Error(t, err)
	assert.Equal(t, "refund.exceeds_payment", errs.ConstraintOf(err))
}

func TestFullRefundLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv, p := h.paidInvoice(t)

	r, err := h.refunds.Request(ctx, refdomain.RequestRefundRequest{
		TenantID:    testTenant,
		TenantCode:  "greenfield",
		PaymentID:   p.ID,
		Amount:      decimal.NewFromInt(500),
		Reason:      "student withdrew mid-term",
		RequestedBy: "registrar",
		BankAccount: "1100456789",
		BankName:    "State Bank",
		IfscCode:    "SBIN0004321",
	})
	require.NoError(t, err)
	assert.Equal(t, refdomain.StatusRequested, r.Status)
	assert.Equal(t, "REF-2026-GREENFIELD-00001", r.Number)
	assert.Equal(t, "1100456789", r.BankAccount)
	assert.Equal(t, "SBIN0004321", r.IfscCode)

	r, err = h.refunds.Approve(ctx, testTenant, r.ID, "principal")
	require.NoError(t, err)
	assert.Equal(t, refdomain.StatusApproved, r.Status)
	assert.Equal(t, "principal", r.ApprovedBy)
	require.NotNil(t, r.ApprovedAt)

	r, err = h.refunds.Process(ctx, testTenant, r.ID, "accounts.office")
	require.NoError(t, err)
	assert.Equal(t, refdomain.StatusProcessed, r.Status)
	assert.Equal(t, "accounts.office", r.ProcessedBy)
	require.NotNil(t, r.ProcessedAt)

	r, err = h.refunds.Complete(ctx, testTenant, r.ID)
	require.NoError(t, err)
	assert.Equal(t, refdomain.StatusCompleted, r.Status)
	require.NotNil(t, r.CompletedAt)

	payment, err := h.payments.Get(ctx, testTenant, p.ID)
	require.NoError(t, err)
	assert.Equal(t, paydomain.StatusRefunded, payment.Status)
	assert.True(t, payment.RefundedAmount.Equal(decimal.NewFromInt(500)))

	reloaded, err := h.invoices.Get(ctx, testTenant, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invdomain.StatusRefunded, reloaded.Status)
}

func TestPartialRefundKeepsPaymentCompleted(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv, p := h.paidInvoice(t)

	r, err := h.refunds.Request(ctx, refdomain.RequestRefundRequest{
		TenantID:   testTenant,
		TenantCode: "greenfield",
		PaymentID:  p.ID,
		Amount:     decimal.NewFromInt(200),
		Reason:     "overcharge",
	})
	require.NoError(t, err)

	_, err = h.refunds.Approve(ctx, testTenant, r.ID, "principal")
	require.NoError(t, err)
	_, err = h.refunds.Process(ctx, testTenant, r.ID, "accounts.office")
	require.NoError(t, err)
	_, err = h.refunds.Complete(ctx, testTenant, r.ID)
	require.NoError(t, err)

	payment, err := h.payments.Get(ctx, testTenant, p.ID)
	require.NoError(t, err)
	assert.Equal(t, paydomain.StatusCompleted, payment.Status)
	assert.True(t, payment.RefundedAmount.Equal(decimal.NewFromInt(200)))

	reloaded, err := h.invoices.Get(ctx, testTenant, inv.ID)
	require.NoError(t, err)
	assert.Equal(t, invdomain.StatusPaid, reloaded.Status)

	// The remaining refundable slice is 300.
	_, err = h.refunds.Request(ctx, refdomain.RequestRefundRequest{
		TenantID:   testTenant,
		TenantCode: "greenfield",
		PaymentID:  p.ID,
		Amount:     decimal.NewFromInt(301),
		Reason:     "too much",
	})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindInvariant))
}

func TestRejectFreesReservedAmount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, p := h.paidInvoice(t)

	r, err := h.refunds.Request(ctx, refdomain.RequestRefundRequest{
		TenantID:   testTenant,
		TenantCode: "greenfield",
		PaymentID:  p.ID,
		Amount:     decimal.NewFromInt(500),
		Reason:     "withdrawal",
	})
	require.NoError(t, err)

	// While the first request is open the cap is fully reserved.
	_, err = h.refunds.Request(ctx, refdomain.RequestRefundRequest{
		TenantID:   testTenant,
		TenantCode: "greenfield",
		PaymentID:  p.ID,
		Amount:     decimal.NewFromInt(100),
		Reason:     "partial",
	})
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindInvariant))

	_, err = h.refunds.Reject(ctx, testTenant, r.ID, "duplicate request")
	require.NoError(t, err)

	_, err = h.refunds.Request(ctx, refdomain.RequestRefundRequest{
		TenantID:   testTenant,
		TenantCode: "greenfield",
		PaymentID:  p.ID,
		Amount:     decimal.NewFromInt(100),
		Reason:     "partial",
	})
	require.NoError(t, err)
}

func TestCompleteRequiresProcessed(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, p := h.paidInvoice(t)

	r, err := h.refunds.Request(ctx, refdomain.RequestRefundRequest{
		TenantID:   testTenant,
		TenantCode: "greenfield",
		PaymentID:  p.ID,
		Amount:     decimal.NewFromInt(500),
		Reason:     "withdrawal",
	})
	require.NoError(t, err)

	_, err = h.refunds.Complete(ctx, testTenant, r.ID)
	require.Error(t, err)
	assert.True(t, errs.IsKind(err, errs.KindState))

	// Terminal states reject further moves.
	_, err = h.refunds.Reject(ctx, testTenant, r.ID, "late")
	require.NoError(t, err)
	_, err = h.refunds.Approve(ctx, testTenant, r.ID, "principal")
	require.Error(t, err)
	assert.Equal(t, "refund.invalid_transition", errs.ConstraintOf(err))
}

func TestRefundPendingPaymentFails(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	inv, _ := h.paidInvoice(t)
	_ = inv

	fs, err := h.fees.Create(ctx, feedomain.CreateFeeStructureRequest{
		TenantID:     testTenant,
		AcademicYear: "2025-2026",
		ClassLevel:   "grade-6",
		Category:     feedomain.CategoryTuition,
		Frequency:    feedomain.FrequencyYearly,
		Amount:       decimal.NewFromInt(400),
		DueDay:       10,
	})
	require.NoError(t, err)

	draft, err := h.invoices.CreateDraft(ctx, invdomain.CreateDraftRequest{
		TenantID:        testTenant,
		StudentID:       snowflake.ID(5002),
		AcademicYear:    "2025-2026",
		FeeStructureIDs: []snowflake.ID{fs.ID},
	})
	require.NoError(t, err)
	issued, err := h.invoices.Issue(ctx, testTenant, draft.ID, "greenfield")
	require.NoError(t, err)

	pending, err := h.payments.Apply(ctx, paydomain.ApplyPaymentRequest{
		TenantID:   testTenant,
		TenantCode: "greenfield",
		InvoiceID:  issued.ID,
		Method:     paydomain.MethodCheque,
		Amount:     decimal.NewFromInt(400),
	})
	require.NoError(t, err)

	_, err = h.refunds.Request(ctx, refdomain.RequestRefundRequest{
		TenantID:   testTenant,
		TenantCode: "greenfield",
		PaymentID:  pending.ID,
		Amount:     decimal.NewFromInt(100),
		Reason:     "not cleared",
	})
	require.Error(t, err)
	assert.Equal(t, "payment.not_refundable", errs.ConstraintOf(err))
}
