package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	refdomain "github.com/bursarhq/bursar/internal/refund/domain"
	"github.com/bursarhq/bursar/pkg/errs"
)

func (s *Server) RequestRefund(c *gin.Context) {
	var req refdomain.RequestRefundRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errs.Validation("request.body", "invalid request body"))
		return
	}
	req.TenantID = tenantID(c)
	req.TenantCode = tenantCode(c)

	r, err := s.refundSvc.Request(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": r})
}

func (s *Server) GetRefund(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	r, err := s.refundSvc.Get(c.Request.Context(), tenantID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": r})
}

func (s *Server) ApproveRefund(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req struct {
		ApprovedBy string `json:"approved_by"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errs.Validation("request.body", "invalid request body"))
		return
	}

	r, err := s.refundSvc.Approve(c.Request.Context(), tenantID(c), id, req.ApprovedBy)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": r})
}

func (s *Server) RejectRefund(c *gin.Context) {
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

	r, err := s.refundSvc.Reject(c.Request.Context(), tenantID(c), id, req.Reason)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": r})
}

func (s *Server) ProcessRefund(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req struct {
		ProcessedBy string `json:"processed_by"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errs.Validation("request.body", "invalid request body"))
		return
	}

	r, err := s.refundSvc.Process(c.Request.Context(), tenantID(c), id, req.ProcessedBy)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": r})
}

func (s *Server) CompleteRefund(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	r, err := s.refundSvc.Complete(c.Request.Context(), tenantID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": r})
}
