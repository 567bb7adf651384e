package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/gosimple/slug"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bursarhq/bursar/internal/config"
	seqdomain "github.com/bursarhq/bursar/internal/sequence/domain"
	"github.com/bursarhq/bursar/pkg/db"
	"github.com/bursarhq/bursar/pkg/errs"
)

type Params struct {
	fx.In

	Log     *zap.Logger
	Billing *config.BillingConfigHolder
}

type Service struct {
	log     *zap.Logger
	billing *config.BillingConfigHolder
}

func NewService(p Params) seqdomain.Service {
	return &Service{
		log:     p.Log.Named("sequence.service"),
		billing: p.Billing,
	}
}

func (s *Service) Next(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, tenantCode, kind string, year int) (string, error) {
	if tx == nil {
		return "", errs.Validation("sequence.tx", "sequence numbers must be issued inside a transaction")
	}
	if tenantID == 0 {
		return "", errs.Validation("sequence.tenant", "tenant is required")
	}
	kind = strings.TrimSpace(strings.ToLower(kind))
	switch kind {
	case seqdomain.KindInvoice, seqdomain.KindPayment, seqdomain.KindRefund:
	default:
		return "", errs.Validation("sequence.kind", fmt.Sprintf("unknown document kind %q", kind))
	}
	if year < 2000 || year > 9999 {
		return "", errs.Validation("sequence.year", "year out of range")
	}

	rule := s.billing.Get().NumberRule(kind)

	value, err := s.increment(ctx, tx, tenantID, kind, year, rule.Start)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s-%d-%s-%05d", rule.Prefix, year, tenantSegment(tenantCode, tenantID), value), nil
}

// increment bumps the counter row, inserting it at the rule's start value
// on first use. The insert race loses to a concurrent first use and falls
// back to the update path.
func (s *Service) increment(ctx context.Context, tx *gorm.DB, tenantID snowflake.ID, kind string, year int, start int64) (int64, error) {
	now := time.Now().UTC()

	res := tx.WithContext(ctx).Model(&seqdomain.DocumentCounter{}).
		Where("tenant_id = ? AND kind = ? AND year = ?", tenantID, kind, year).
		Updates(map[string]any{
			"value":      gorm.Expr("value + 1"),
			"updated_at": now,
		})
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		counter := seqdomain.DocumentCounter{
			TenantID:  tenantID,
			Kind:      kind,
			Year:      year,
			Value:     start,
			UpdatedAt: now,
		}
		err := tx.WithContext(ctx).Create(&counter).Error
		if err == nil {
			return start, nil
		}
		if !db.IsDuplicateKeyErr(err) {
			return 0, err
		}
		res = tx.WithContext(ctx).Model(&seqdomain.DocumentCounter{}).
			Where("tenant_id = ? AND kind = ? AND year = ?", tenantID, kind, year).
			Updates(map[string]any{
				"value":      gorm.Expr("value + 1"),
				"updated_at": now,
			})
		if res.Error != nil {
			return 0, res.Error
		}
	}

	var value int64
	err := tx.WithContext(ctx).Model(&seqdomain.DocumentCounter{}).
		Select("value").
		Where("tenant_id = ? AND kind = ? AND year = ?", tenantID, kind, year).
		Scan(&value).Error
	if err != nil {
		return 0, err
	}
	return value, nil
}

func tenantSegment(code string, id snowflake.ID) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return id.String()
	}
	return strings.ToUpper(slug.Make(code))
}
