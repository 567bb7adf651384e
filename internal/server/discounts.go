package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	discdomain "github.com/bursarhq/bursar/internal/discount/domain"
	"github.com/bursarhq/bursar/pkg/errs"
)

func (s *Server) CreateDiscount(c *gin.Context) {
	var req discdomain.CreateDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errs.Validation("request.body", "invalid request body"))
		return
	}
	req.TenantID = tenantID(c)

	d, err := s.discountSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": d})
}

func (s *Server) GetDiscount(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	d, err := s.discountSvc.Get(c.Request.Context(), tenantID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": d})
}

func (s *Server) ListDiscounts(c *gin.Context) {
	if code := strings.TrimSpace(c.Query("code")); code != "" {
		d, err := s.discountSvc.GetByCode(c.Request.Context(), tenantID(c), code)
		if err != nil {
			AbortWithError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": []discdomain.Discount{*d}})
		return
	}

	items, err := s.discountSvc.List(c.Request.Context(), tenantID(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}

func (s *Server) DeactivateDiscount(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	if err := s.discountSvc.Deactivate(c.Request.Context(), tenantID(c), id); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
