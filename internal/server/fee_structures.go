package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	feedomain "github.com/bursarhq/bursar/internal/feecatalog/domain"
	"github.com/bursarhq/bursar/pkg/errs"
)

func (s *Server) CreateFeeStructure(c *gin.Context) {
	var req feedomain.CreateFeeStructureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errs.Validation("request.body", "invalid request body"))
		return
	}
	req.TenantID = tenantID(c)

	fs, err := s.feeSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": fs})
}

func (s *Server) GetFeeStructure(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	fs, err := s.feeSvc.Get(c.Request.Context(), tenantID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": fs})
}

func (s *Server) UpdateFeeStructure(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req feedomain.UpdateFeeStructureRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errs.Validation("request.body", "invalid request body"))
		return
	}

	fs, err := s.feeSvc.Update(c.Request.Context(), tenantID(c), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": fs})
}

func (s *Server) DeleteFeeStructure(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.feeSvc.Delete(c.Request.Context(), tenantID(c), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ListFeeStructures(c *gin.Context) {
	req := feedomain.ResolveApplicableRequest{
		TenantID:     tenantID(c),
		AcademicYear: strings.TrimSpace(c.Query("academic_year")),
		ClassLevel:   strings.TrimSpace(c.Query("class_level")),
	}

	items, err := s.feeSvc.ResolveApplicable(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":         items,
		"yearly_total": feedomain.YearlyTotal(items),
	})
}
