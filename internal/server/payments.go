package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	paydomain "github.com/bursarhq/bursar/internal/payment/domain"
	"github.com/bursarhq/bursar/pkg/errs"
)

func (s *Server) ApplyPayment(c *gin.Context) {
	var req paydomain.ApplyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errs.Validation("request.body", "invalid request body"))
		return
	}
	req.TenantID = tenantID(c)
	req.TenantCode = tenantCode(c)

	p, err := s.paymentSvc.Apply(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": p})
}

func (s *Server) GetPayment(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	p, err := s.paymentSvc.Get(c.Request.Context(), tenantID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": p})
}

func (s *Server) VerifyPayment(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req struct {
		VerifiedBy string `json:"verified_by"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errs.Validation("request.body", "invalid request body"))
		return
	}

	p, err := s.paymentSvc.Verify(c.Request.Context(), tenantID(c), id, req.VerifiedBy)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": p})
}

func (s *Server) FailPayment(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req struct {
		Reason string `json:"reason"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errs.Validation("request.body", "invalid request body"))
		return
	}

	p, err := s.paymentSvc.MarkFailed(c.Request.Context(), tenantID(c), id, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": p})
}

func (s *Server) ListPaymentRefunds(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.refundSvc.ListByPayment(c.Request.Context(), tenantID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}
