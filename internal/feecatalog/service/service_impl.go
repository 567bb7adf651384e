package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	feedomain "github.com/bursarhq/bursar/internal/feecatalog/domain"
	"github.com/bursarhq/bursar/pkg/db"
	"github.com/bursarhq/bursar/pkg/errs"
	"github.com/bursarhq/bursar/pkg/money"
)

var academicYearPattern = regexp.MustCompile(`^(\d{4})-(\d{4})$`)

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

func NewService(p Params) feedomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("feecatalog.service"),
		genID: p.GenID,
	}
}

func (s *Service) Create(ctx context.Context, req feedomain.CreateFeeStructureRequest) (*feedomain.FeeStructure, error) {
	if req.TenantID == 0 {
		return nil, errs.Validation("fee_structure.tenant", "tenant is required")
	}
	if err := validateAcademicYear(req.AcademicYear); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.ClassLevel) == "" {
		return nil, errs.Validation("fee_structure.class_level", "class level is required")
	}
	if !req.Category.Valid() {
		return nil, errs.Validation("fee_structure.category", fmt.Sprintf("unknown category %q", req.Category))
	}
	if !req.Frequency.Valid() {
		return nil, errs.Validation("fee_structure.frequency", fmt.Sprintf("unknown frequency %q", req.Frequency))
	}
	if !req.Amount.IsPositive() {
		return nil, errs.Validation("fee_structure.amount", "amount must be positive")
	}
	if req.DueDay < 1 || req.DueDay > 31 {
		return nil, errs.Validation("fee_structure.due_day", "due day must be within 1..31")
	}
	if money.IsNegative(req.LateFeeAmount) {
		return nil, errs.Validation("fee_structure.late_fee_amount", "late fee amount cannot be negative")
	}
	if req.GraceDays != nil && *req.GraceDays < 0 {
		return nil, errs.Validation("fee_structure.grace_days", "grace days cannot be negative")
	}

	now := time.Now().UTC()
	fs := feedomain.FeeStructure{
		ID:              s.genID.Generate(),
		TenantID:        req.TenantID,
		AcademicYear:    strings.TrimSpace(req.AcademicYear),
		ClassLevel:      strings.TrimSpace(req.ClassLevel),
		Category:        req.Category,
		Frequency:       req.Frequency,
		Amount:          money.Round(req.Amount),
		DueDay:          req.DueDay,
		LateFeeAmount:   money.Round(req.LateFeeAmount),
		GraceDays:       req.GraceDays,
		DiscountAllowed: req.DiscountAllowed,
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	if err := s.db.WithContext(ctx).Create(&fs).Error; err != nil {
		if db.IsDuplicateKeyErr(err) {
			return nil, errs.Conflict("fee_structure.duplicate", "fee structure already exists for this year, class, category and frequency")
		}
		return nil, err
	}

	s.log.Info("fee structure created",
		zap.String("fee_structure_id", fs.ID.String()),
		zap.String("academic_year", fs.AcademicYear),
		zap.String("category", string(fs.Category)),
	)
	return &fs, nil
}

func (s *Service) Get(ctx context.Context, tenantID, id snowflake.ID) (*feedomain.FeeStructure, error) {
	var fs feedomain.FeeStructure
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		First(&fs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("fee_structure.not_found", "fee structure not found")
	}
	if err != nil {
		return nil, err
	}
	return &fs, nil
}

func (s *Service) Update(ctx context.Context, tenantID, id snowflake.ID, req feedomain.UpdateFeeStructureRequest) (*feedomain.FeeStructure, error) {
	fs, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if req.Amount != nil {
		if !req.Amount.IsPositive() {
			return nil, errs.Validation("fee_structure.amount", "amount must be positive")
		}
		fs.Amount = money.Round(*req.Amount)
	}
	if req.DueDay != nil {
		if *req.DueDay < 1 || *req.DueDay > 31 {
			return nil, errs.Validation("fee_structure.due_day", "due day must be within 1..31")
		}
		fs.DueDay = *req.DueDay
	}
	if req.LateFeeAmount != nil {
		if money.IsNegative(*req.LateFeeAmount) {
			return nil, errs.Validation("fee_structure.late_fee_amount", "late fee amount cannot be negative")
		}
		fs.LateFeeAmount = money.Round(*req.LateFeeAmount)
	}
	if req.GraceDays != nil {
		if *req.GraceDays < 0 {
			return nil, errs.Validation("fee_structure.grace_days", "grace days cannot be negative")
		}
		fs.GraceDays = req.GraceDays
	}
	if req.DiscountAllowed != nil {
		fs.DiscountAllowed = *req.DiscountAllowed
	}
	if req.Active != nil {
		fs.Active = *req.Active
	}
	fs.UpdatedAt = time.Now().UTC()

	if err := s.db.WithContext(ctx).Save(fs).Error; err != nil {
		return nil, err
	}
	return fs, nil
}

func (s *Service) Delete(ctx context.Context, tenantID, id snowflake.ID) error {
	fs, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	var inUse int64
	err = s.db.WithContext(ctx).
		Table("invoice_line_items").
		Where("fee_structure_id = ?", fs.ID).
		Count(&inUse).Error
	if err != nil {
		return err
	}
	if inUse > 0 {
		return errs.State("fee_structure.in_use", "fee structure is referenced by invoice line items")
	}

	return s.db.WithContext(ctx).
		Where("tenant_id = ? AND id = ?", tenantID, id).
		Delete(&feedomain.FeeStructure{}).Error
}

func (s *Service) ResolveApplicable(ctx context.Context, req feedomain.ResolveApplicableRequest) ([]feedomain.FeeStructure, error) {
	if req.TenantID == 0 {
		return nil, errs.Validation("fee_structure.tenant", "tenant is required")
	}
	if err := validateAcademicYear(req.AcademicYear); err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.ClassLevel) == "" {
		return nil, errs.Validation("fee_structure.class_level", "class level is required")
	}

	var structures []feedomain.FeeStructure
	err := s.db.WithContext(ctx).
		Where("tenant_id = ? AND academic_year = ? AND class_level = ? AND active = ?",
			req.TenantID, strings.TrimSpace(req.AcademicYear), strings.TrimSpace(req.ClassLevel), true).
		Order("category asc, frequency asc").
		Find(&structures).Error
	if err != nil {
		return nil, err
	}
	return structures, nil
}

func validateAcademicYear(raw string) error {
	matches := academicYearPattern.FindStringSubmatch(strings.TrimSpace(raw))
	if matches == nil {
		return errs.Validation("fee_structure.academic_year", "academic year must look like 2026-2027")
	}
	first, _ := strconv.Atoi(matches[1])
	second, _ := strconv.Atoi(matches[2])
	if second != first+1 {
		return errs.Validation("fee_structure.academic_year", "academic year must span consecutive years")
	}
	return nil
}
