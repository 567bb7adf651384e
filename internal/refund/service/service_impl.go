package service

import (
	"context"
	"errors"
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
	invdomain "github.com/bursarhq/bursar/internal/invoice/domain"
	"github.com/bursarhq/bursar/internal/observability"
	paydomain "github.com/bursarhq/bursar/internal/payment/domain"
	refdomain "github.com/bursarhq/bursar/internal/refund/domain"
	seqdomain "github.com/bursarhq/bursar/internal/sequence/domain"
	"github.com/bursarhq/bursar/pkg/errs"
	"github.com/bursarhq/bursar/pkg/money"
)

type Params struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	GenID    *snowflake.Node
	Billing  *config.BillingConfigHolder
	Clock    clock.Clock
	Sequence seqdomain.Service
	Payments paydomain.Service
	Audit    auditdomain.Service
	Metrics  *observability.Metrics
}

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	genID    *snowflake.Node
	billing  *config.BillingConfigHolder
	clock    clock.Clock
	sequence seqdomain.Service
	payments paydomain.Service
	audit    auditdomain.Service
	metrics  *observability.Metrics
}

func NewService(p Params) refdomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("refund.service"),
		genID:    p.GenID,
		billing:  p.Billing,
		clock:    p.Clock,
		sequence: p.Sequence,
		payments: p.Payments,
		audit:    p.Audit,
		metrics:  p.Metrics,
	}
}

func (s *Service) Request(ctx context.Context, req refdomain.RequestRefundRequest) (*refdomain.Refund, error) {
	if req.TenantID == 0 {
		return nil, errs.Validation("refund.tenant", "tenant is required")
	}
	if req.PaymentID == 0 {
		return nil, errs.Validation("refund.payment", "payment is required")
	}
	if !req.Amount.IsPositive() {
		return nil, errs.Validation("refund.amount", "refund amount must be positive")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, errs.Validation("refund.reason", "a refund needs a reason")
	}
	amount := money.Round(req.Amount)

	var refund *refdomain.Refund
	err := s.retry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			payment, err := s.payments.Get(ctx, req.TenantID, req.PaymentID)
			if err != nil {
				return err
			}
			if !payment.Refundable() {
				return errs.State("payment.not_refundable", "only completed payments can be refunded")
			}

			// Bump the payment version before reading the reservation
			// sum so concurrent requests against the same payment
			// serialize instead of both passing the cap check.
			res := tx.Model(&paydomain.Payment{}).
				Where("id = ? AND version = ?", payment.ID, payment.Version).
				Update("version", gorm.Expr("version + 1"))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errs.Conflict("payment.version", "payment was modified concurrently")
			}

			// Open and completed refunds together must stay inside the
			// payment amount; rejected ones free their slice again.
			var reserved decimal.Decimal
			err = tx.Model(&refdomain.Refund{}).
				Select("COALESCE(SUM(amount), 0)").
				Where("payment_id = ? AND status <> ?", payment.ID, refdomain.StatusRejected).
				Scan(&reserved).Error
			if err != nil {
				return err
			}
			if reserved.Add(amount).GreaterThan(payment.Amount) {
				return errs.Invariant("refund.exceeds_payment", "refunds cannot exceed the payment amount")
			}

			now := s.clock.Now()
			number, err := s.sequence.Next(ctx, tx, req.TenantID, req.TenantCode, seqdomain.KindRefund, now.Year())
			if err != nil {
				return err
			}

			r := refdomain.Refund{
				ID:          s.genID.Generate(),
				TenantID:    req.TenantID,
				PaymentID:   payment.ID,
				InvoiceID:   payment.InvoiceID,
				Number:      number,
				Status:      refdomain.StatusRequested,
				Amount:      amount,
				Reason:      strings.TrimSpace(req.Reason),
				RequestedBy: strings.TrimSpace(req.RequestedBy),
				BankAccount: strings.TrimSpace(req.BankAccount),
				BankName:    strings.TrimSpace(req.BankName),
				IfscCode:    strings.TrimSpace(req.IfscCode),
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tx.Create(&r).Error; err != nil {
				return err
			}
			refund = &r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	targetID := refund.ID.String()
	_ = s.audit.AuditLog(ctx, &req.TenantID, string(auditdomain.ActorTypeSystem), nil,
		auditdomain.ActionRefundRequested, "refund", &targetID, map[string]any{
			"payment_id": refund.PaymentID.String(),
			"number":     refund.Number,
			"amount":     refund.Amount.String(),
		})

	s.log.Info("refund requested",
		zap.String("refund_id", refund.ID.String()),
		zap.String("payment_id", refund.PaymentID.String()),
		zap.String("amount", refund.Amount.String()),
	)
	return refund, nil
}

func (s *Service) Approve(ctx context.Context, tenantID, refundID snowflake.ID, approvedBy string) (*refdomain.Refund, error) {
	r, err := s.transition(ctx, tenantID, refundID, refdomain.StatusApproved, map[string]any{
		"approved_by": strings.TrimSpace(approvedBy),
		"approved_at": s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	targetID := r.ID.String()
	_ = s.audit.AuditLog(ctx, &tenantID, string(auditdomain.ActorTypeUser), &r.ApprovedBy,
		auditdomain.ActionRefundApproved, "refund", &targetID, nil)
	return r, nil
}

func (s *Service) Reject(ctx context.Context, tenantID, refundID snowflake.ID, reason string) (*refdomain.Refund, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, errs.Validation("refund.rejection_reason", "a rejection needs a reason")
	}

	r, err := s.transition(ctx, tenantID, refundID, refdomain.StatusRejected, map[string]any{
		"rejection_reason": strings.TrimSpace(reason),
	})
	if err != nil {
		return nil, err
	}

	targetID := r.ID.String()
	_ = s.audit.AuditLog(ctx, &tenantID, string(auditdomain.ActorTypeSystem), nil,
		auditdomain.ActionRefundRejected, "refund", &targetID, map[string]any{
			"reason": r.RejectionReason,
		})
	return r, nil
}

func (s *Service) Process(ctx context.Context, tenantID, refundID snowflake.ID, processedBy string) (*refdomain.Refund, error) {
	r, err := s.transition(ctx, tenantID, refundID, refdomain.StatusProcessed, map[string]any{
		"processed_by": strings.TrimSpace(processedBy),
		"processed_at": s.clock.Now(),
	})
	if err != nil {
		return nil, err
	}

	targetID := r.ID.String()
	_ = s.audit.AuditLog(ctx, &tenantID, string(auditdomain.ActorTypeUser), &r.ProcessedBy,
		auditdomain.ActionRefundProcessed, "refund", &targetID, nil)
	return r, nil
}

func (s *Service) Complete(ctx context.Context, tenantID, refundID snowflake.ID) (*refdomain.Refund, error) {
	var refund *refdomain.Refund

	err := s.retry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			r, err := s.load(ctx, tx, tenantID, refundID)
			if err != nil {
				return err
			}
			if !refdomain.CanTransition(r.Status, refdomain.StatusCompleted) {
				return errs.State("refund.invalid_transition", "refund cannot be completed from its current status")
			}

			payment, err := s.payments.Get(ctx, tenantID, r.PaymentID)
			if err != nil {
				return err
			}
			if err := s.payments.RecordRefund(ctx, tx, payment, r.Amount); err != nil {
				return err
			}

			now := s.clock.Now()
			res := tx.Model(&refdomain.Refund{}).
				Where("id = ? AND status = ?", r.ID, refdomain.StatusProcessed).
				Updates(map[string]any{
					"status":       refdomain.StatusCompleted,
					"completed_at": now,
					"updated_at":   now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errs.Conflict("refund.status", "refund was modified concurrently")
			}
			r.Status = refdomain.StatusCompleted
			r.CompletedAt = &now

			if err := s.settleInvoice(ctx, tx, tenantID, r.InvoiceID); err != nil {
				return err
			}

			refund = r
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RefundCompleted(ctx)
	targetID := refund.ID.String()
	_ = s.audit.AuditLog(ctx, &tenantID, string(auditdomain.ActorTypeSystem), nil,
		auditdomain.ActionRefundCompleted, "refund", &targetID, map[string]any{
			"payment_id": refund.PaymentID.String(),
			"invoice_id": refund.InvoiceID.String(),
			"amount":     refund.Amount.String(),
		})

	s.log.Info("refund completed",
		zap.String("refund_id", refund.ID.String()),
		zap.String("amount", refund.Amount.String()),
	)
	return refund, nil
}

func (s *Service) Get(ctx context.Context, tenantID, refundID snowflake.ID) (*refdomain.Refund, error) {
	return s.load(ctx, s.db, tenantID, refundID)
}

func (s *Service) ListByPayment(ctx context.Context, tenantID, paymentID snowflake.ID) ([]refdomain.Refund, error) {
	var refunds []refdomain.Refund
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND payment_id = ?", tenantID, paymentID).
		Order("created_at asc, id asc").
		Find(&refunds).Error
	if err != nil {
		return nil, err
	}
	return refunds, nil
}

// settleInvoice flips the invoice to REFUNDED once the completed refunds
// cover its full amount.
func (s *Service) settleInvoice(ctx context.Context, tx *gorm.DB, tenantID, invoiceID snowflake.ID) error {
	var inv invdomain.Invoice
	err := tx.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, invoiceID).
		First(&inv).Error
	if err != nil {
		return err
	}

	var refunded decimal.Decimal
	err = tx.Model(&refdomain.Refund{}).
		Select("COALESCE(SUM(amount), 0)").
		Where("invoice_id = ? AND status = ?", inv.ID, refdomain.StatusCompleted).
		Scan(&refunded).Error
	if err != nil {
		return err
	}

	if !refunded.Equal(inv.TotalAmount) {
		return nil
	}
	if !invdomain.CanTransition(inv.Status, invdomain.StatusRefunded) {
		return nil
	}

	res := tx.Model(&invdomain.Invoice{}).
		Where("id = ? AND version = ?", inv.ID, inv.Version).
		Updates(map[string]any{
			"status":     invdomain.StatusRefunded,
			"version":    gorm.Expr("version + 1"),
			"updated_at": s.clock.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.Conflict("invoice.version", "invoice was modified concurrently")
	}
	return nil
}

// transition performs a guarded single-step status move.
func (s *Service) transition(ctx context.Context, tenantID, refundID snowflake.ID, to refdomain.Status, extra map[string]any) (*refdomain.Refund, error) {
	var refund *refdomain.Refund
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := s.load(ctx, tx, tenantID, refundID)
		if err != nil {
			return err
		}
		if !refdomain.CanTransition(r.Status, to) {
			return errs.State("refund.invalid_transition",
				"refund cannot move from "+string(r.Status)+" to "+string(to))
		}

		updates := map[string]any{
			"status":     to,
			"updated_at": s.clock.Now(),
		}
		for k, v := range extra {
			updates[k] = v
		}

		res := tx.Model(&refdomain.Refund{}).
			Where("id = ? AND status = ?", r.ID, r.Status).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errs.Conflict("refund.status", "refund was modified concurrently")
		}

		r.Status = to
		if v, ok := extra["approved_by"].(string); ok {
			r.ApprovedBy = v
		}
		if v, ok := extra["approved_at"].(time.Time); ok {
			r.ApprovedAt = &v
		}
		if v, ok := extra["processed_by"].(string); ok {
			r.ProcessedBy = v
		}
		if v, ok := extra["processed_at"].(time.Time); ok {
			r.ProcessedAt = &v
		}
		if v, ok := extra["rejection_reason"].(string); ok {
			r.RejectionReason = v
		}
		refund = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return refund, nil
}

func (s *Service) load(ctx context.Context, db *gorm.DB, tenantID, refundID snowflake.ID) (*refdomain.Refund, error) {
	var r refdomain.Refund
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, refundID).
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("refund.not_found", "refund not found")
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Service) retry(ctx context.Context, fn func() error) error {
	attempts := s.billing.Get().RetryAttempts
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !errs.IsKind(err, errs.KindConflict) {
			return err
		}
		lastErr = err
		s.metrics.ConflictRetried(ctx)
		s.log.Debug("retrying after version conflict", zap.Int("attempt", attempt+1))
	}
	return lastErr
}
