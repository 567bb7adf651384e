package service

import (
	"context"
	"errors"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	auditdomain "github.com/bursarhq/bursar/internal/audit/domain"
	"github.com/bursarhq/bursar/internal/clock"
	"github.com/bursarhq/bursar/internal/config"
	invdomain "github.com/bursarhq/bursar/internal/invoice/domain"
	"github.com/bursarhq/bursar/internal/observability"
	paydomain "github.com/bursarhq/bursar/internal/payment/domain"
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
	audit    auditdomain.Service
	metrics  *observability.Metrics
}

func NewService(p Params) paydomain.Service {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("payment.service"),
		genID:    p.GenID,
		billing:  p.Billing,
		clock:    p.Clock,
		sequence: p.Sequence,
		audit:    p.Audit,
		metrics:  p.Metrics,
	}
}

func (s *Service) Apply(ctx context.Context, req paydomain.ApplyPaymentRequest) (*paydomain.Payment, error) {
	if req.TenantID == 0 {
		return nil, errs.Validation("payment.tenant", "tenant is required")
	}
	if req.InvoiceID == 0 {
		return nil, errs.Validation("payment.invoice", "invoice is required")
	}
	if !req.Method.Valid() {
		return nil, errs.Validation("payment.method", "unknown payment method")
	}
	if !req.Amount.IsPositive() {
		return nil, errs.Validation("payment.amount", "amount must be positive")
	}
	amount := money.Round(req.Amount)

	var payment *paydomain.Payment
	err := s.retry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			inv, err := s.loadInvoice(ctx, tx, req.TenantID, req.InvoiceID)
			if err != nil {
				return err
			}
			// A paid invoice falls through to the balance check so an
			// extra payment surfaces as an overpayment, not a status error.
			if !inv.Status.Payable() && inv.Status != invdomain.StatusPaid {
				return errs.State("invoice.not_payable", "invoice does not accept payments in its current status")
			}
			if amount.GreaterThan(inv.BalanceDue) {
				return errs.Invariant("payment.exceeds_balance", "payment exceeds the outstanding balance")
			}

			now := s.clock.Now()
			number, err := s.sequence.Next(ctx, tx, req.TenantID, req.TenantCode, seqdomain.KindPayment, now.Year())
			if err != nil {
				return err
			}

			p := paydomain.Payment{
				ID:             s.genID.Generate(),
				TenantID:       req.TenantID,
				InvoiceID:      inv.ID,
				Number:         number,
				Method:         req.Method,
				Status:         paydomain.StatusPending,
				Amount:         amount,
				RefundedAmount: money.Zero(),
				Reference:      strings.TrimSpace(req.Reference),
				PaidBy:         strings.TrimSpace(req.PaidBy),
				ReceivedBy:     strings.TrimSpace(req.ReceivedBy),
				BankName:       strings.TrimSpace(req.BankName),
				ChequeNumber:   strings.TrimSpace(req.ChequeNumber),
				Notes:          strings.TrimSpace(req.Notes),
				Version:        1,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if len(req.GatewayResponse) > 0 {
				p.GatewayResponse = datatypes.JSONMap(req.GatewayResponse)
			}
			if req.Method.Instant() {
				p.Status = paydomain.StatusCompleted
				p.PaidAt = &now
			}

			if err := tx.Create(&p).Error; err != nil {
				return err
			}
			if p.Status == paydomain.StatusCompleted {
				if err := s.creditInvoice(ctx, tx, inv, amount); err != nil {
					return err
				}
			}
			payment = &p
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.PaymentApplied(ctx, string(payment.Method))
	targetID := payment.ID.String()
	_ = s.audit.AuditLog(ctx, &req.TenantID, string(auditdomain.ActorTypeSystem), nil,
		auditdomain.ActionPaymentApplied, "payment", &targetID, map[string]any{
			"invoice_id": payment.InvoiceID.String(),
			"number":     payment.Number,
			"method":     string(payment.Method),
			"amount":     payment.Amount.String(),
			"status":     string(payment.Status),
		})

	s.log.Info("payment applied",
		zap.String("payment_id", payment.ID.String()),
		zap.String("invoice_id", payment.InvoiceID.String()),
		zap.String("method", string(payment.Method)),
		zap.String("amount", payment.Amount.String()),
		zap.String("status", string(payment.Status)),
	)
	return payment, nil
}

func (s *Service) Verify(ctx context.Context, tenantID, paymentID snowflake.ID, verifiedBy string) (*paydomain.Payment, error) {
	verifier := strings.TrimSpace(verifiedBy)
	if verifier == "" {
		return nil, errs.Validation("payment.verified_by", "a verifier is required")
	}

	var payment *paydomain.Payment
	var verified bool

	err := s.retry(ctx, func() error {
		verified = false
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			p, err := s.load(ctx, tx, tenantID, paymentID)
			if err != nil {
				return err
			}
			// Verification is idempotent: a completed payment stays as is.
			if p.Status == paydomain.StatusCompleted {
				payment = p
				return nil
			}
			if p.Status != paydomain.StatusPending {
				return errs.State("payment.not_pending", "only pending payments can be verified")
			}

			now := s.clock.Now()
			res := tx.Model(&paydomain.Payment{}).
				Where("id = ? AND status = ? AND version = ?", p.ID, paydomain.StatusPending, p.Version).
				Updates(map[string]any{
					"status":      paydomain.StatusCompleted,
					"paid_at":     now,
					"verified_by": verifier,
					"verified_at": now,
					"version":     gorm.Expr("version + 1"),
					"updated_at":  now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errs.Conflict("payment.version", "payment was modified concurrently")
			}
			p.Status = paydomain.StatusCompleted
			p.PaidAt = &now
			p.VerifiedBy = verifier
			p.VerifiedAt = &now
			p.Version++

			inv, err := s.loadInvoice(ctx, tx, tenantID, p.InvoiceID)
			if err != nil {
				return err
			}
			if err := s.creditInvoice(ctx, tx, inv, p.Amount); err != nil {
				return err
			}

			payment = p
			verified = true
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if verified {
		s.metrics.PaymentVerified(ctx)
		targetID := payment.ID.String()
		_ = s.audit.AuditLog(ctx, &tenantID, string(auditdomain.ActorTypeUser), &verifier,
			auditdomain.ActionPaymentVerified, "payment", &targetID, map[string]any{
				"invoice_id": payment.InvoiceID.String(),
				"amount":     payment.Amount.String(),
			})
	}
	return payment, nil
}

func (s *Service) MarkFailed(ctx context.Context, tenantID, paymentID snowflake.ID, reason string) (*paydomain.Payment, error) {
	var payment *paydomain.Payment
	err := s.retry(ctx, func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			p, err := s.load(ctx, tx, tenantID, paymentID)
			if err != nil {
				return err
			}
			if p.Status != paydomain.StatusPending {
				return errs.State("payment.not_pending", "only pending payments can be marked failed")
			}

			now := s.clock.Now()
			res := tx.Model(&paydomain.Payment{}).
				Where("id = ? AND status = ? AND version = ?", p.ID, paydomain.StatusPending, p.Version).
				Updates(map[string]any{
					"status":         paydomain.StatusFailed,
					"failure_reason": strings.TrimSpace(reason),
					"version":        gorm.Expr("version + 1"),
					"updated_at":     now,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return errs.Conflict("payment.version", "payment was modified concurrently")
			}
			p.Status = paydomain.StatusFailed
			p.FailureReason = strings.TrimSpace(reason)
			p.Version++
			payment = p
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	targetID := payment.ID.String()
	_ = s.audit.AuditLog(ctx, &tenantID, string(auditdomain.ActorTypeSystem), nil,
		auditdomain.ActionPaymentFailed, "payment", &targetID, map[string]any{
			"reason": payment.FailureReason,
		})
	return payment, nil
}

func (s *Service) Get(ctx context.Context, tenantID, paymentID snowflake.ID) (*paydomain.Payment, error) {
	return s.load(ctx, s.db, tenantID, paymentID)
}

func (s *Service) ListByInvoice(ctx context.Context, tenantID, invoiceID snowflake.ID) ([]paydomain.Payment, error) {
	var payments []paydomain.Payment
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND invoice_id = ?", tenantID, invoiceID).
		Order("created_at asc, id asc").
		Find(&payments).Error
	if err != nil {
		return nil, err
	}
	return payments, nil
}

func (s *Service) RecordRefund(ctx context.Context, tx *gorm.DB, p *paydomain.Payment, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return errs.Validation("refund.amount", "refund amount must be positive")
	}
	if !p.Refundable() {
		return errs.State("payment.not_refundable", "only completed payments can be refunded")
	}

	refunded := p.RefundedAmount.Add(money.Round(amount))
	if refunded.GreaterThan(p.Amount) {
		return errs.Invariant("refund.exceeds_payment", "refunds cannot exceed the payment amount")
	}

	status := p.Status
	if refunded.Equal(p.Amount) {
		status = paydomain.StatusRefunded
	}

	res := tx.WithContext(ctx).Model(&paydomain.Payment{}).
		Where("id = ? AND version = ?", p.ID, p.Version).
		Updates(map[string]any{
			"refunded_amount": refunded,
			"status":          status,
			"version":         gorm.Expr("version + 1"),
			"updated_at":      s.clock.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.Conflict("payment.version", "payment was modified concurrently")
	}

	p.RefundedAmount = refunded
	p.Status = status
	p.Version++
	return nil
}

// creditInvoice moves the invoice's paid amount forward under its
// version guard and derives the settlement status.
func (s *Service) creditInvoice(ctx context.Context, tx *gorm.DB, inv *invdomain.Invoice, amount decimal.Decimal) error {
	if !inv.Status.Payable() && inv.Status != invdomain.StatusPaid {
		return errs.State("invoice.not_payable", "invoice does not accept payments in its current status")
	}

	paid := inv.PaidAmount.Add(amount)
	if paid.GreaterThan(inv.TotalAmount) {
		return errs.Invariant("payment.exceeds_balance", "payment exceeds the outstanding balance")
	}

	inv.PaidAmount = paid
	inv.BalanceDue = inv.TotalAmount.Sub(paid)
	status := invdomain.SettlementStatus(inv)

	res := tx.WithContext(ctx).Model(&invdomain.Invoice{}).
		Where("id = ? AND version = ?", inv.ID, inv.Version).
		Updates(map[string]any{
			"paid_amount": inv.PaidAmount,
			"balance_due": inv.BalanceDue,
			"status":      status,
			"version":     gorm.Expr("version + 1"),
			"updated_at":  s.clock.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.Conflict("invoice.version", "invoice was modified concurrently")
	}

	inv.Status = status
	inv.Version++
	return nil
}

func (s *Service) load(ctx context.Context, db *gorm.DB, tenantID, paymentID snowflake.ID) (*paydomain.Payment, error) {
	var p paydomain.Payment
	err := db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, paymentID).
		First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("payment.not_found", "payment not found")
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Service) loadInvoice(ctx context.Context, tx *gorm.DB, tenantID, invoiceID snowflake.ID) (*invdomain.Invoice, error) {
	var inv invdomain.Invoice
	err := tx.WithContext(ctx).
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
