package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"

	feedomain "github.com/bursarhq/bursar/internal/feecatalog/domain"
	"github.com/bursarhq/bursar/pkg/db/pagination"
)

type CreateDraftRequest struct {
	TenantID     snowflake.ID `json:"-"`
	StudentID    snowflake.ID `json:"student_id"`
	AcademicYear string       `json:"academic_year"`
	Notes        string       `json:"notes,omitempty"`

	// FeeStructureIDs seeds the draft with one line item per referenced
	// template. Ad-hoc items can be added afterwards.
	FeeStructureIDs []snowflake.ID `json:"fee_structure_ids,omitempty"`
}

type AddLineItemRequest struct {
	// FeeStructureID snapshots description, category and amount from
	// the catalog. When zero, the ad-hoc fields below are required.
	FeeStructureID snowflake.ID       `json:"fee_structure_id,omitempty"`
	Description    string             `json:"description,omitempty"`
	Category       feedomain.Category `json:"category,omitempty"`
	Quantity       int                `json:"quantity,omitempty"`
	UnitAmount     decimal.Decimal    `json:"unit_amount,omitempty"`
	TaxAmount      decimal.Decimal    `json:"tax_amount,omitempty"`
}

type ApplyDiscountRequest struct {
	Code      string `json:"code"`
	AppliedBy string `json:"applied_by,omitempty"`

	// MeritPercent is the payer's score, supplied by the caller when
	// redeeming merit scholarships.
	MeritPercent *decimal.Decimal `json:"merit_percent,omitempty"`
}

type ListInvoicesRequest struct {
	pagination.Pagination
	TenantID  snowflake.ID
	StudentID snowflake.ID
	Status    Status
}

type ListInvoicesResponse struct {
	pagination.PageInfo
	Invoices []Invoice `json:"invoices"`
}

type Service interface {
	CreateDraft(ctx context.Context, req CreateDraftRequest) (*Invoice, error)
	AddLineItem(ctx context.Context, tenantID, invoiceID snowflake.ID, req AddLineItemRequest) (*Invoice, error)
	RemoveLineItem(ctx context.Context, tenantID, invoiceID, itemID snowflake.ID) (*Invoice, error)
	ApplyDiscount(ctx context.Context, tenantID, invoiceID snowflake.ID, req ApplyDiscountRequest) (*Invoice, error)
	Issue(ctx context.Context, tenantID, invoiceID snowflake.ID, tenantCode string) (*Invoice, error)
	AccrueLateFee(ctx context.Context, tenantID, invoiceID snowflake.ID) (*Invoice, error)
	Cancel(ctx context.Context, tenantID, invoiceID snowflake.ID) (*Invoice, error)
	Get(ctx context.Context, tenantID, invoiceID snowflake.ID) (*Invoice, error)
	List(ctx context.Context, req ListInvoicesRequest) (ListInvoicesResponse, error)
}
