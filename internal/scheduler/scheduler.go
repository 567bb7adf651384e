// Package scheduler runs the periodic billing sweeps. The only job
// today walks issued invoices past their due date and accrues the
// configured late fee, which also marks them overdue.
package scheduler

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bursarhq/bursar/internal/clock"
	invdomain "github.com/bursarhq/bursar/internal/invoice/domain"
	"github.com/bursarhq/bursar/pkg/errs"
)

type Config struct {
	RunInterval time.Duration
	BatchSize   int
}

func DefaultConfig() Config {
	return Config{
		RunInterval: time.Hour,
		BatchSize:   100,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	if c.RunInterval <= 0 {
		c.RunInterval = defaults.RunInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = defaults.BatchSize
	}
	return c
}

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	Clock      clock.Clock
	InvoiceSvc invdomain.Service
	Config     Config `optional:"true"`
}

type Scheduler struct {
	db         *gorm.DB
	log        *zap.Logger
	cfg        Config
	clock      clock.Clock
	invoiceSvc invdomain.Service
}

func New(p Params) *Scheduler {
	return &Scheduler{
		db:         p.DB,
		log:        p.Log.Named("scheduler"),
		cfg:        p.Config.withDefaults(),
		clock:      p.Clock,
		invoiceSvc: p.InvoiceSvc,
	}
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("scheduler run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunOnce sweeps one batch of past-due invoices. Accrual is idempotent
// per invoice, so re-visiting an already swept invoice is harmless.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	now := s.clock.Now()

	type candidate struct {
		ID       snowflake.ID
		TenantID snowflake.ID
	}
	var candidates []candidate
	err := s.db.WithContext(ctx).
		Model(&invdomain.Invoice{}).
		Select("id", "tenant_id").
		Where("status IN ?", []invdomain.Status{invdomain.StatusIssued, invdomain.StatusPartiallyPaid}).
		Where("due_date IS NOT NULL AND due_date < ?", now).
		Order("due_date ASC").
		Limit(s.cfg.BatchSize).
		Find(&candidates).Error
	if err != nil {
		return err
	}

	for _, c := range candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, err := s.invoiceSvc.AccrueLateFee(ctx, c.TenantID, c.ID)
		if err != nil {
			// The invoice may have been paid or cancelled between the
			// query and the accrual. Not a reason to stop the sweep.
			if errs.IsKind(err, errs.KindState) || errs.IsKind(err, errs.KindConflict) {
				continue
			}
			s.log.Warn("late fee accrual failed",
				zap.String("invoice_id", c.ID.String()),
				zap.Error(err),
			)
		}
	}

	return nil
}
