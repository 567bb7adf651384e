package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	discdomain "github.com/bursarhq/bursar/internal/discount/domain"
	feedomain "github.com/bursarhq/bursar/internal/feecatalog/domain"
	"github.com/bursarhq/bursar/pkg/db"
	"github.com/bursarhq/bursar/pkg/errs"
	"github.com/bursarhq/bursar/pkg/money"
)

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

func NewService(p Params) discdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("discount.service"),
		genID: p.GenID,
	}
}

func (s *Service) Create(ctx context.Context, req discdomain.CreateDiscountRequest) (*discdomain.Discount, error) {
	if req.TenantID == 0 {
		return nil, errs.Validation("discount.tenant", "tenant is required")
	}
	code := strings.ToUpper(strings.TrimSpace(req.Code))
	if code == "" {
		return nil, errs.Validation("discount.code", "code is required")
	}
	if !req.Type.Valid() {
		return nil, errs.Validation("discount.type", "type must be PERCENTAGE or FIXED")
	}
	if !req.Value.IsPositive() {
		return nil, errs.Validation("discount.value", "value must be positive")
	}
	if req.Type == discdomain.TypePercentage && req.Value.GreaterThan(money.FromInt(100)) {
		return nil, errs.Validation("discount.value", "percentage cannot exceed 100")
	}
	if req.MaxCap != nil {
		if req.Type != discdomain.TypePercentage {
			return nil, errs.Validation("discount.max_cap", "max cap only applies to percentage discounts")
		}
		if !req.MaxCap.IsPositive() {
			return nil, errs.Validation("discount.max_cap", "max cap must be positive")
		}
	}
	if req.ValidFrom != nil && req.ValidUntil != nil && req.ValidUntil.Before(*req.ValidFrom) {
		return nil, errs.Validation("discount.validity", "valid_until precedes valid_from")
	}
	if req.UsageLimit != nil && *req.UsageLimit < 1 {
		return nil, errs.Validation("discount.usage_limit", "usage limit must be at least 1")
	}
	if req.MaxUsagePerStudent != nil && *req.MaxUsagePerStudent < 1 {
		return nil, errs.Validation("discount.max_usage_per_student", "per-student usage limit must be at least 1")
	}
	if req.MinMeritPercent != nil &&
		(req.MinMeritPercent.IsNegative() || req.MinMeritPercent.GreaterThan(money.FromInt(100))) {
		return nil, errs.Validation("discount.min_merit_percent", "merit threshold must be between 0 and 100")
	}

	categories := make([]string, 0, len(req.Categories))
	seen := map[string]bool{}
	for _, raw := range req.Categories {
		category := feedomain.Category(strings.ToUpper(strings.TrimSpace(raw)))
		if !category.Valid() {
			return nil, errs.Validation("discount.categories", "unknown fee category "+raw)
		}
		if seen[string(category)] {
			continue
		}
		seen[string(category)] = true
		categories = append(categories, string(category))
	}

	classLevels := make([]string, 0, len(req.ClassLevels))
	seenClass := map[string]bool{}
	for _, raw := range req.ClassLevels {
		level := strings.ToLower(strings.TrimSpace(raw))
		if level == "" || seenClass[level] {
			continue
		}
		seenClass[level] = true
		classLevels = append(classLevels, level)
	}

	now := time.Now().UTC()
	d := discdomain.Discount{
		ID:                 s.genID.Generate(),
		TenantID:           req.TenantID,
		Code:               code,
		Name:               strings.TrimSpace(req.Name),
		Type:               req.Type,
		Value:              money.Round(req.Value),
		MaxCap:             req.MaxCap,
		Categories:         datatypes.JSONSlice[string](categories),
		ClassLevels:        datatypes.JSONSlice[string](classLevels),
		MinMeritPercent:    req.MinMeritPercent,
		ValidFrom:          req.ValidFrom,
		ValidUntil:         req.ValidUntil,
		UsageLimit:         req.UsageLimit,
		MaxUsagePerStudent: req.MaxUsagePerStudent,
		Active:             true,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if err := s.db.WithContext(ctx).Create(&d).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, errs.Conflict("discount.duplicate_code", "discount code already exists")
		}
		return nil, err
	}

	s.log.Info("discount created",
		zap.String("discount_id", d.ID.String()),
		zap.String("code", d.Code),
		zap.String("type", string(d.Type)),
	)
	return &d, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id snowflake.ID) (*discdomain.Discount, error) {
	var d discdomain.Discount
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("discount.not_found", "discount not found")
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Service) GetByCode(ctx context.Context, tenantID snowflake.ID, code string) (*discdomain.Discount, error) {
	var d discdomain.Discount
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND code = ?", tenantID, strings.ToUpper(strings.TrimSpace(code))).
		First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("discount.not_found", "discount not found")
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Service) List(ctx context.Context, tenantID snowflake.ID) ([]discdomain.Discount, error) {
	var discounts []discdomain.Discount
	err := s.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("code asc").
		Find(&discounts).Error
	if err != nil {
		return nil, err
	}
	return discounts, nil
}

func (s *Service) Deactivate(ctx context.Context, tenantID, id snowflake.ID) error {
	res := s.db.WithContext(ctx).Model(&discdomain.Discount{}).
		Where("tenant_id = ? AND id = ? AND active = ?", tenantID, id, true).
		Updates(map[string]any{
			"active":     false,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := s.db.WithContext(ctx).Model(&discdomain.Discount{}).
			Where("tenant_id = ? AND id = ?", tenantID, id).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return errs.NotFound("discount.not_found", "discount not found")
		}
	}
	return nil
}

func (s *Service) Consume(ctx context.Context, tx *gorm.DB, d *discdomain.Discount) error {
	if d.UsageLimit != nil && d.UsageCount >= *d.UsageLimit {
		return errs.Invariant("discount.usage_exhausted", "discount usage limit reached")
	}

	res := tx.WithContext(ctx).Model(&discdomain.Discount{}).
		Where("id = ? AND version = ?", d.ID, d.Version).
		Updates(map[string]any{
			"usage_count": gorm.Expr("usage_count + 1"),
			"version":     gorm.Expr("version + 1"),
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errs.Conflict("discount.version", "discount was modified concurrently")
	}

	d.UsageCount++
	d.Version++
	return nil
}
