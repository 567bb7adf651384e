package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	invdomain "github.com/bursarhq/bursar/internal/invoice/domain"
	"github.com/bursarhq/bursar/internal/invoice/render"
	"github.com/bursarhq/bursar/pkg/errs"
)

func (s *Server) CreateDraftInvoice(c *gin.Context) {
	var req invdomain.CreateDraftRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errs.Validation("request.body", "invalid request body"))
		return
	}
	req.TenantID = tenantID(c)

	inv, err := s.invoiceSvc.CreateDraft(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": inv})
}

func (s *Server) GetInvoice(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	inv, err := s.invoiceSvc.Get(c.Request.Context(), tenantID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) ListInvoices(c *gin.Context) {
	var req invdomain.ListInvoicesRequest
	if err := c.ShouldBindQuery(&req.Pagination); err != nil {
		AbortWithError(c, errs.Validation("request.pagination", "invalid pagination"))
		return
	}
	req.TenantID = tenantID(c)

	studentID, err := queryID(c, "student_id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	req.StudentID = studentID
	req.Status = invdomain.Status(strings.ToUpper(strings.TrimSpace(c.Query("status"))))

	resp, err := s.invoiceSvc.List(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":      resp.Invoices,
		"page_info": resp.PageInfo,
	})
}

func (s *Server) RenderInvoice(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	inv, err := s.invoiceSvc.Get(c.Request.Context(), tenantID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	html, err := s.renderer.RenderHTML(render.RenderInput{
		SchoolName:  strings.TrimSpace(c.Query("school_name")),
		StudentName: strings.TrimSpace(c.Query("student_name")),
		ClassLevel:  strings.TrimSpace(c.Query("class_level")),
		Invoice:     inv,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(html))
}

func (s *Server) AddLineItem(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req invdomain.AddLineItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errs.Validation("request.body", "invalid request body"))
		return
	}

	inv, err := s.invoiceSvc.AddLineItem(c.Request.Context(), tenantID(c), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) RemoveLineItem(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	itemID, err := pathID(c, "itemId")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	inv, err := s.invoiceSvc.RemoveLineItem(c.Request.Context(), tenantID(c), id, itemID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) ApplyDiscount(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	var req invdomain.ApplyDiscountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, errs.Validation("request.body", "invalid request body"))
		return
	}

	inv, err := s.invoiceSvc.ApplyDiscount(c.Request.Context(), tenantID(c), id, req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) IssueInvoice(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	inv, err := s.invoiceSvc.Issue(c.Request.Context(), tenantID(c), id, tenantCode(c))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) AccrueLateFee(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	inv, err := s.invoiceSvc.AccrueLateFee(c.Request.Context(), tenantID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) CancelInvoice(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	inv, err := s.invoiceSvc.Cancel(c.Request.Context(), tenantID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": inv})
}

func (s *Server) ListInvoicePayments(c *gin.Context) {
	id, err := pathID(c, "id")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	items, err := s.paymentSvc.ListByInvoice(c.Request.Context(), tenantID(c), id)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": items})
}
