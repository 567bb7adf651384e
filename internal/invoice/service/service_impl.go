package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	auditdomain "github.com/bursarhq/bursar/internal/audit/domain"
	"github.com/bursarhq/bursar/internal/clock"
	"github.com/bursarhq/bursar/internal/config"
	discdomain "github.com/bursarhq/bursar/internal/discount/domain"
	feedomain "github.com/bursarhq/bursar/internal/feecatalog/domain"
	invdomain "github.com/bursarhq/bursar/internal/invoice/domain"
	"github.com/bursarhq/bursar/internal/observability"
	seqdomain "github.com/bursarhq/bursar/internal/sequence/domain"
	"github.com/bursarhq/bursar/pkg/db/pagination"
	"github.com/bursarhq/bursar/pkg/errs"
	"github.com/bursarhq/bursar/pkg/money"
)

type Params struct {
	fx.In

	DB        *gorm.DB
	Log       *zap.Logger
	GenID     *snowflake.Node
	Billing   *config.BillingConfigHolder
	Clock     clock.Clock
	Sequence  seqdomain.Service
	Fees      feedomain.Service
	Discounts discdomain.Service
	Audit     auditdomain.Service
	Metrics   *observability.Metrics
}

type Service struct {
	db        *gorm.DB
	log       *zap.Logger
	genID     *snowflake.Node
	billing   *config.BillingConfigHolder
	clock     clock.Clock
	sequence  seqdomain.Service
	fees      feedomain.Service
	discounts discdomain.Service
	audit     auditdomain.Service
	metrics   *observability.Metrics
}

func NewService(p Params) invdomain.Service {
	return &Service{
		db:        p.DB,
		log:       p.Log.Named("invoice.service"),
		genID:     p.GenID,
		billing:   p.Billing,
		clock:     p.Clock,
		sequence:  p.Sequence,
		fees:      p.Fees,
		discounts: p.Discounts,
		audit:     p.Audit,
		metrics:   p.Metrics,
	}
}

func (s *Service) CreateDraft(ctx context.Context, req invdomain.CreateDraftRequest) (*invdomain.Invoice, error) {
	if req.TenantID == 0 {
		return nil, errs.Validation("invoice.tenant", "tenant is required")
	}
	if req.StudentID == 0 {
		return nil, errs.Validation("invoice.student", "student is required")
	}
	if strings.TrimSpace(req.AcademicYear) == "" {
		return nil, errs.Validation("invoice.academic_year", "academic year is required")
	}

	now := s.clock.Now()
	inv := invdomain.Invoice{
		ID:           s.genID.Generate(),
		TenantID:     req.TenantID,
		StudentID:    req.StudentID,
		AcademicYear: strings.TrimSpace(req.AcademicYear),
		Status:       invdomain.StatusDraft,
		Notes:        strings.TrimSpace(req.Notes),
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	for _, fsID := range req.FeeStructureIDs {
		fs, err := s.fees.Get(ctx, req.TenantID, fsID)
		if err != nil {
			return nil, err
		}
		item, err := s.itemFromStructure(&inv, fs)
		if err != nil {
			return nil, err
		}
		inv.LineItems = append(inv.LineItems, *item)
	}
	invdomain.RecomputeTotals(&inv)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return tx.Create(&inv).Error
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("invoice draft created",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("student_id", inv.StudentID.String()),
		zap.Int("line_items", len(inv.LineItems)),
	)
	return &inv, nil
}

func (s *Service) AddLineItem(ctx context.Context, tenantID, invoiceID snowflake.ID, req invdomain.AddLineItemRequest) (*invdomain.Invoice, error) {
	return s.retry(ctx, func() (*invdomain.Invoice, error) {
		inv, err := s.Get(ctx, tenantID, invoiceID)
		if err != nil {
			return nil, err
		}
		if inv.Status != invdomain.StatusDraft {
			return nil, errs.State("invoice.not_draft", "line items can only change on draft invoices")
		}

		var item *invdomain.LineItem
		if req.FeeStructureID != 0 {
			fs, err := s.fees.Get(ctx, tenantID, req.FeeStructureID)
			if err != nil {
				return nil, err
			}
			item, err = s.itemFromStructure(inv, fs)
			if err != nil {
				return nil, err
			}
		} else {
			item, err = s.adHocItem(inv, req)
			if err != nil {
				return nil, err
			}
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Create(item).Error; err != nil {
				return err
			}
			inv.LineItems = append(inv.LineItems, *item)
			invdomain.RecomputeTotals(inv)
			return s.saveTotals(ctx, tx, inv)
		})
		if err != nil {
			return nil, err
		}
		return inv, nil
	})
}

func (s *Service) RemoveLineItem(ctx context.Context, tenantID, invoiceID, itemID snowflake.ID) (*invdomain.Invoice, error) {
	return s.retry(ctx, func() (*invdomain.Invoice, error) {
		inv, err := s.Get(ctx, tenantID, invoiceID)
		if err != nil {
			return nil, err
		}
		if inv.Status != invdomain.StatusDraft {
			return nil, errs.State("invoice.not_draft", "line items can only change on draft invoices")
		}

		idx := -1
		for i, item := range inv.LineItems {
			if item.ID == itemID {
				idx = i
				break
			}
		}
		if idx == -1 {
			return nil, errs.NotFound("invoice.line_item_not_found", "line item not found")
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Where("id = ? AND invoice_id = ?", itemID, inv.ID).
				Delete(&invdomain.LineItem{}).Error; err != nil {
				return err
			}
			inv.LineItems = append(inv.LineItems[:idx], inv.LineItems[idx+1:]...)
			invdomain.RecomputeTotals(inv)
			return s.saveTotals(ctx, tx, inv)
		})
		if err != nil {
			return nil, err
		}
		return inv, nil
	})
}

func (s *Service) ApplyDiscount(ctx context.Context, tenantID, invoiceID snowflake.ID, req invdomain.ApplyDiscountRequest) (*invdomain.Invoice, error) {
	return s.retry(ctx, func() (*invdomain.Invoice, error) {
		inv, err := s.Get(ctx, tenantID, invoiceID)
		if err != nil {
			return nil, err
		}
		if inv.Status != invdomain.StatusDraft && inv.Status != invdomain.StatusIssued {
			return nil, errs.State("invoice.not_discountable", "discounts apply to draft or issued invoices only")
		}

		d, err := s.discounts.GetByCode(ctx, tenantID, req.Code)
		if err != nil {
			return nil, err
		}
		for _, applied := range inv.Discounts {
			if applied.DiscountID == d.ID {
				return nil, errs.State("invoice.discount_already_applied", "discount is already applied to this invoice")
			}
		}

		if d.MaxUsagePerStudent != nil {
			used, err := s.studentUsage(ctx, tenantID, inv.StudentID, d.ID)
			if err != nil {
				return nil, err
			}
			if used >= *d.MaxUsagePerStudent {
				return nil, errs.Invariant("discount.student_usage_exhausted", "student has already redeemed this discount the maximum number of times")
			}
		}

		base := s.eligibleBase(ctx, tenantID, inv, d)
		if !base.IsPositive() {
			return nil, errs.State("invoice.discount_not_applicable", "no line items are eligible for this discount")
		}

		payer := discdomain.Payer{
			ClassLevel:   s.invoiceClassLevel(ctx, tenantID, inv),
			MeritPercent: req.MeritPercent,
		}
		amount, err := discdomain.Evaluate(*d, payer, base, s.clock.Now())
		if err != nil {
			return nil, err
		}

		applied := invdomain.AppliedDiscount{
			ID:         s.genID.Generate(),
			InvoiceID:  inv.ID,
			DiscountID: d.ID,
			Code:       d.Code,
			Amount:     amount,
			CreatedAt:  s.clock.Now(),
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := s.discounts.Consume(ctx, tx, d); err != nil {
				return err
			}
			if err := tx.Create(&applied).Error; err != nil {
				return err
			}
			inv.Discounts = append(inv.Discounts, applied)
			invdomain.RecomputeTotals(inv)
			if inv.TotalAmount.LessThan(inv.PaidAmount) {
				return errs.Invariant("invoice.total_below_paid", "discount would push the total below the amount already paid")
			}
			return s.saveTotals(ctx, tx, inv)
		})
		if err != nil {
			return nil, err
		}

		actorID := derefOr(req.AppliedBy, "billing")
		targetID := inv.ID.String()
		_ = s.audit.AuditLog(ctx, &tenantID, string(auditdomain.ActorTypeSystem), &actorID,
			auditdomain.ActionDiscountApplied, "invoice", &targetID, map[string]any{
				"discount_code": d.Code,
				"amount":        applied.Amount.String(),
			})

		return inv, nil
	})
}

func (s *Service) Issue(ctx context.Context, tenantID, invoiceID snowflake.ID, tenantCode string) (*invdomain.Invoice, error) {
	inv, err := s.retry(ctx, func() (*invdomain.Invoice, error) {
		inv, err := s.Get(ctx, tenantID, invoiceID)
		if err != nil {
			return nil, err
		}
		if inv.Status != invdomain.StatusDraft {
			return nil, errs.State("invoice.not_draft", "only draft invoices can be issued")
		}
		if len(inv.LineItems) == 0 {
			return nil, errs.State("invoice.no_line_items", "an invoice needs at least one line item before issue")
		}

		now := s.clock.Now()
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			number, err := s.sequence.Next(ctx, tx, tenantID, tenantCode, seqdomain.KindInvoice, now.Year())
			if err != nil {
				return err
			}
			inv.Number = &number
			inv.IssueDate = &now
			dueDate := s.deriveDueDate(ctx, tenantID, inv, now)
			inv.DueDate = &dueDate
			inv.Status = invdomain.StatusIssued
			invdomain.RecomputeTotals(inv)
			return s.saveTotals(ctx, tx, inv)
		})
		if err != nil {
			return nil, err
		}
		return inv, nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.InvoiceIssued(ctx)
	targetID := inv.ID.String()
	_ = s.audit.AuditLog(ctx, &tenantID, string(auditdomain.ActorTypeSystem), nil,
		auditdomain.ActionInvoiceIssued, "invoice", &targetID, map[string]any{
			"number":       derefString(inv.Number),
			"total_amount": inv.TotalAmount.String(),
		})

	s.log.Info("invoice issued",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("number", derefString(inv.Number)),
		zap.String("total_amount", inv.TotalAmount.String()),
	)
	return inv, nil
}

func (s *Service) AccrueLateFee(ctx context.Context, tenantID, invoiceID snowflake.ID) (*invdomain.Invoice, error) {
	return s.retry(ctx, func() (*invdomain.Invoice, error) {
		inv, err := s.Get(ctx, tenantID, invoiceID)
		if err != nil {
			return nil, err
		}
		switch inv.Status {
		case invdomain.StatusIssued, invdomain.StatusPartiallyPaid, invdomain.StatusOverdue:
		default:
			return nil, errs.State("invoice.not_accruable", "late fees accrue on issued, partially paid or overdue invoices")
		}
		if inv.DueDate == nil {
			return nil, errs.State("invoice.no_due_date", "invoice has no due date")
		}
		// Accrual happened already; repeat calls are no-ops.
		if !inv.LateFee.IsZero() {
			return inv, nil
		}

		now := s.clock.Now()
		fee := s.lateFeeDue(ctx, tenantID, inv, now)
		if !fee.IsPositive() {
			return inv, nil
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			inv.LateFee = fee
			inv.Status = invdomain.StatusOverdue
			invdomain.RecomputeTotals(inv)
			return s.saveTotals(ctx, tx, inv)
		})
		if err != nil {
			return nil, err
		}

		targetID := inv.ID.String()
		_ = s.audit.AuditLog(ctx, &tenantID, string(auditdomain.ActorTypeSystem), nil,
			auditdomain.ActionLateFeeAccrued, "invoice", &targetID, map[string]any{
				"late_fee":     fee.String(),
				"total_amount": inv.TotalAmount.String(),
			})
		return inv, nil
	})
}

func (s *Service) Cancel(ctx context.Context, tenantID, invoiceID snowflake.ID) (*invdomain.Invoice, error) {
	return s.retry(ctx, func() (*invdomain.Invoice, error) {
		inv, err := s.Get(ctx, tenantID, invoiceID)
		if err != nil {
			return nil, err
		}
		if !invdomain.CanTransition(inv.Status, invdomain.StatusCancelled) {
			return nil, errs.State("invoice.not_cancellable", fmt.Sprintf("cannot cancel a %s invoice", inv.Status))
		}
		if inv.PaidAmount.IsPositive() {
			return nil, errs.State("invoice.has_payments", "invoices with recorded payments cannot be cancelled")
		}

		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			inv.Status = invdomain.StatusCancelled
			return s.saveTotals(ctx, tx, inv)
		})
		if err != nil {
			return nil, err
		}

		targetID := inv.ID.String()
		_ = s.audit.AuditLog(ctx, &tenantID, string(auditdomain.ActorTypeSystem), nil,
			auditdomain.ActionInvoiceCancelled, "invoice", &targetID, nil)
		return inv, nil
	})
}

func (s *Service) Get(ctx context.Context, tenantID, invoiceID snowflake.ID) (*invdomain.Invoice, error) {
	var inv invdomain.Invoice
	err := s.db.WithContext(ctx).
		Preload("LineItems").
		Preload("Discounts").
		Where("tenant_id = ? AND id = ?", tenantID, invoiceID).
		First(&inv).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("invoice.not_found", "invoice not found")
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (s *Service) List(ctx context.Context, req invdomain.ListInvoicesRequest) (invdomain.ListInvoicesResponse, error) {
	if req.TenantID == 0 {
		return invdomain.ListInvoicesResponse{}, errs.Validation("invoice.tenant", "tenant is required")
	}

	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = 50
	}
	if pageSize > 250 {
		pageSize = 250
	}

	stmt := s.db.WithContext(ctx).Model(&invdomain.Invoice{}).
		Where("tenant_id = ?", req.TenantID)
	if req.StudentID != 0 {
		stmt = stmt.Where("student_id = ?", req.StudentID)
	}
	if req.Status != "" {
		stmt = stmt.Where("status = ?", req.Status)
	}
	if strings.TrimSpace(req.PageToken) != "" {
		decoded, err := pagination.DecodeCursor(req.PageToken)
		if err != nil {
			return invdomain.ListInvoicesResponse{}, errs.Validation("invoice.page_token", "invalid page token")
		}
		createdAt, err := time.Parse(time.RFC3339, decoded.CreatedAt)
		if err != nil {
			return invdomain.ListInvoicesResponse{}, errs.Validation("invoice.page_token", "invalid page token")
		}
		id, err := snowflake.ParseString(decoded.ID)
		if err != nil {
			return invdomain.ListInvoicesResponse{}, errs.Validation("invoice.page_token", "invalid page token")
		}
		stmt = stmt.Where("(created_at < ?) OR (created_at = ? AND id < ?)", createdAt, createdAt, id)
	}

	var invoices []invdomain.Invoice
	err := stmt.Order("created_at desc, id desc").Limit(pageSize + 1).Find(&invoices).Error
	if err != nil {
		return invdomain.ListInvoicesResponse{}, err
	}

	pageInfo := pagination.BuildCursorPageInfo(invoices, pageSize, func(inv invdomain.Invoice) string {
		token, err := pagination.EncodeCursor(pagination.Cursor{
			ID:        inv.ID.String(),
			CreatedAt: inv.CreatedAt.Format(time.RFC3339),
		})
		if err != nil {
			return ""
		}
		return token
	})
	if pageInfo.HasMore && len(invoices) > pageSize {
		invoices = invoices[:pageSize]
	}

	return invdomain.ListInvoicesResponse{PageInfo: *pageInfo, Invoices: invoices}, nil
}

// retry re-runs fn until it stops losing version races, bounded by the
// configured attempt budget.
func (s *Service) retry(ctx context.Context, fn func() (*invdomain.Invoice, error)) (*invdomain.Invoice, error) {
	attempts := s.billing.Get().RetryAttempts
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		inv, err := fn()
		if err == nil {
			return inv, nil
		}
		if !errs.IsKind(err, errs.KindConflict) {
			return nil, err
		}
		lastErr = err
		s.metrics.ConflictRetried(ctx)
		s.log.Debug("retrying after version conflict", zap.Int("attempt", attempt+1))
	}
	return nil, lastErr
}

// saveTotals persists all derived columns guarded by the version check.
func (s *Service) saveTotals(ctx context.Context, tx *gorm.DB, inv *invdomain.Invoice) error {
	res := tx.WithContext(ctx).Model(&invdomain.Invoice{}).
		Where("id = ? AND version = ?", inv.ID, inv.Version).
		Updates(map[string]any{
			"number":         inv.Number,
			"status":         inv.Status,
			"issue_date":     inv.IssueDate,
			"due_date":       inv.DueDate,
			"subtotal":       inv.Subtotal,
			"total_discount": inv.TotalDiscount,
			"total_tax":      inv.TotalTax,
			"late_fee":       inv.LateFee,
			"total_amount":   inv.TotalAmount,
			"paid_amount":    inv.PaidAmount,
			"balance_due":    inv.BalanceDue,
			"version":        gorm.Expr("version + 1"),
			"updated_at":     s.clock.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.Conflict("invoice.version", "invoice was modified concurrently")
	}
	inv.Version++
	return nil
}

func (s *Service) itemFromStructure(inv *invdomain.Invoice, fs *feedomain.FeeStructure) (*invdomain.LineItem, error) {
	if !fs.Active {
		return nil, errs.State("fee_structure.inactive", "fee structure is inactive")
	}
	if fs.AcademicYear != inv.AcademicYear {
		return nil, errs.Validation("invoice.academic_year", "fee structure belongs to a different academic year")
	}

	amount := money.Round(fs.Amount)
	tax := decimal.Zero
	if rate := s.billing.Get().TaxRate(); rate.IsPositive() {
		tax = money.Percent(amount, rate)
	}

	fsID := fs.ID
	return &invdomain.LineItem{
		ID:             s.genID.Generate(),
		InvoiceID:      inv.ID,
		FeeStructureID: &fsID,
		Description:    fmt.Sprintf("%s (%s)", fs.Category, fs.Frequency),
		Category:       fs.Category,
		Quantity:       1,
		UnitAmount:     amount,
		TaxAmount:      tax,
		Amount:         amount,
		CreatedAt:      s.clock.Now(),
	}, nil
}

func (s *Service) adHocItem(inv *invdomain.Invoice, req invdomain.AddLineItemRequest) (*invdomain.LineItem, error) {
	if strings.TrimSpace(req.Description) == "" {
		return nil, errs.Validation("invoice.line_item.description", "description is required")
	}
	if !req.Category.Valid() {
		return nil, errs.Validation("invoice.line_item.category", "unknown fee category")
	}
	if req.Quantity < 1 {
		return nil, errs.Validation("invoice.line_item.quantity", "quantity must be at least 1")
	}
	if !req.UnitAmount.IsPositive() {
		return nil, errs.Validation("invoice.line_item.unit_amount", "unit amount must be positive")
	}
	if money.IsNegative(req.TaxAmount) {
		return nil, errs.Validation("invoice.line_item.tax_amount", "tax amount cannot be negative")
	}

	unit := money.Round(req.UnitAmount)
	return &invdomain.LineItem{
		ID:          s.genID.Generate(),
		InvoiceID:   inv.ID,
		Description: strings.TrimSpace(req.Description),
		Category:    req.Category,
		Quantity:    req.Quantity,
		UnitAmount:  unit,
		TaxAmount:   money.Round(req.TaxAmount),
		Amount:      money.Round(unit.Mul(decimal.NewFromInt(int64(req.Quantity)))),
		CreatedAt:   s.clock.Now(),
	}, nil
}

// eligibleBase sums line item amounts the discount may reduce. Items
// backed by a fee structure that disallows discounts are skipped.
func (s *Service) eligibleBase(ctx context.Context, tenantID snowflake.ID, inv *invdomain.Invoice, d *discdomain.Discount) decimal.Decimal {
	base := decimal.Zero
	for _, item := range inv.LineItems {
		if !d.AppliesTo(item.Category) {
			continue
		}
		if item.FeeStructureID != nil {
			fs, err := s.fees.Get(ctx, tenantID, *item.FeeStructureID)
			if err == nil && !fs.DiscountAllowed {
				continue
			}
		}
		base = base.Add(item.Amount)
	}
	return base
}

// invoiceClassLevel reads the payer's class off the first catalog-backed
// line item. Invoices with only ad-hoc items have no class, which an
// empty string and the discount's empty-set rule handle together.
func (s *Service) invoiceClassLevel(ctx context.Context, tenantID snowflake.ID, inv *invdomain.Invoice) string {
	for _, item := range inv.LineItems {
		if item.FeeStructureID == nil {
			continue
		}
		fs, err := s.fees.Get(ctx, tenantID, *item.FeeStructureID)
		if err != nil {
			continue
		}
		return fs.ClassLevel
	}
	return ""
}

// studentUsage counts accepted redemptions of a discount across all of
// the student's invoices.
func (s *Service) studentUsage(ctx context.Context, tenantID, studentID, discountID snowflake.ID) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&invdomain.AppliedDiscount{}).
		Joins("JOIN invoices ON invoices.id = applied_discounts.invoice_id").
		Where("applied_discounts.discount_id = ?", discountID).
		Where("invoices.tenant_id = ? AND invoices.student_id = ?", tenantID, studentID).
		Where("invoices.status <> ?", invdomain.StatusCancelled).
		Count(&count).Error
	return count, err
}

func derefOr(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

// deriveDueDate picks the earliest catalog due day among the invoice's
// line items and projects it onto the first occurrence on or after the
// issue date. Invoices without catalog-backed items get thirty days.
func (s *Service) deriveDueDate(ctx context.Context, tenantID snowflake.ID, inv *invdomain.Invoice, issuedAt time.Time) time.Time {
	dueDay := 0
	for _, item := range inv.LineItems {
		if item.FeeStructureID == nil {
			continue
		}
		fs, err := s.fees.Get(ctx, tenantID, *item.FeeStructureID)
		if err != nil {
			continue
		}
		if dueDay == 0 || fs.DueDay < dueDay {
			dueDay = fs.DueDay
		}
	}
	if dueDay == 0 {
		return issuedAt.AddDate(0, 0, 30)
	}

	due := time.Date(issuedAt.Year(), issuedAt.Month(), 1, 0, 0, 0, 0, time.UTC).
		AddDate(0, 0, dueDay-1)
	if due.Before(issuedAt.Truncate(24 * time.Hour)) {
		due = due.AddDate(0, 1, 0)
	}
	return due
}

// lateFeeDue sums the flat late fee of every overdue catalog-backed line
// item whose grace period has elapsed.
func (s *Service) lateFeeDue(ctx context.Context, tenantID snowflake.ID, inv *invdomain.Invoice, now time.Time) decimal.Decimal {
	defaultGrace := s.billing.Get().LateFee.GraceDays

	fee := decimal.Zero
	seen := map[snowflake.ID]bool{}
	for _, item := range inv.LineItems {
		if item.FeeStructureID == nil || seen[*item.FeeStructureID] {
			continue
		}
		seen[*item.FeeStructureID] = true

		fs, err := s.fees.Get(ctx, tenantID, *item.FeeStructureID)
		if err != nil || !fs.LateFeeAmount.IsPositive() {
			continue
		}

		grace := defaultGrace
		if fs.GraceDays != nil {
			grace = *fs.GraceDays
		}
		if now.After(inv.DueDate.AddDate(0, 0, grace)) {
			fee = fee.Add(fs.LateFeeAmount)
		}
	}
	return money.Round(fee)
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
