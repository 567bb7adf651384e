package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	auditdomain "github.com/bursarhq/bursar/internal/audit/domain"
	"github.com/bursarhq/bursar/internal/config"
	discdomain "github.com/bursarhq/bursar/internal/discount/domain"
	feedomain "github.com/bursarhq/bursar/internal/feecatalog/domain"
	invdomain "github.com/bursarhq/bursar/internal/invoice/domain"
	"github.com/bursarhq/bursar/internal/invoice/render"
	"github.com/bursarhq/bursar/internal/observability"
	paydomain "github.com/bursarhq/bursar/internal/payment/domain"
	refdomain "github.com/bursarhq/bursar/internal/refund/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config, log *zap.Logger) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.GinMiddleware(log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Info("http server listening", zap.String("addr", srv.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine      *gin.Engine
	cfg         config.Config
	feeSvc      feedomain.Service
	discountSvc discdomain.Service
	invoiceSvc  invdomain.Service
	renderer    render.Renderer
	paymentSvc  paydomain.Service
	refundSvc   refdomain.Service
	auditSvc    auditdomain.Service
}

type ServerParams struct {
	fx.In

	Gin         *gin.Engine
	Cfg         config.Config
	FeeSvc      feedomain.Service
	DiscountSvc discdomain.Service
	InvoiceSvc  invdomain.Service
	Renderer    render.Renderer
	PaymentSvc  paydomain.Service
	RefundSvc   refdomain.Service
	AuditSvc    auditdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:      p.Gin,
		cfg:         p.Cfg,
		feeSvc:      p.FeeSvc,
		discountSvc: p.DiscountSvc,
		invoiceSvc:  p.InvoiceSvc,
		renderer:    p.Renderer,
		paymentSvc:  p.PaymentSvc,
		refundSvc:   p.RefundSvc,
		auditSvc:    p.AuditSvc,
	}

	svc.registerRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerRoutes() {
	v1 := s.engine.Group("/v1")
	v1.Use(ErrorHandlingMiddleware())
	v1.Use(s.TenantRequired())

	// -------- Fee Catalog --------
	v1.GET("/fee-structures", s.ListFeeStructures)
	v1.POST("/fee-structures", s.CreateFeeStructure)
	v1.GET("/fee-structures/:id", s.GetFeeStructure)
	v1.PATCH("/fee-structures/:id", s.UpdateFeeStructure)
	v1.DELETE("/fee-structures/:id", s.DeleteFeeStructure)

	// -------- Discounts --------
	v1.GET("/discounts", s.ListDiscounts)
	v1.POST("/discounts", s.CreateDiscount)
	v1.GET("/discounts/:id", s.GetDiscount)
	v1.POST("/discounts/:id/deactivate", s.DeactivateDiscount)

	// -------- Invoices --------
	v1.GET("/invoices", s.ListInvoices)
	v1.POST("/invoices", s.CreateDraftInvoice)
	v1.GET("/invoices/:id", s.GetInvoice)
	v1.GET("/invoices/:id/render", s.RenderInvoice)
	v1.POST("/invoices/:id/items", s.AddLineItem)
	v1.DELETE("/invoices/:id/items/:itemId", s.RemoveLineItem)
	v1.POST("/invoices/:id/discounts", s.ApplyDiscount)
	v1.POST("/invoices/:id/issue", s.IssueInvoice)
	v1.POST("/invoices/:id/accrue-late-fee", s.AccrueLateFee)
	v1.POST("/invoices/:id/cancel", s.CancelInvoice)
	v1.GET("/invoices/:id/payments", s.ListInvoicePayments)

	// -------- Payments --------
	v1.POST("/payments", s.ApplyPayment)
	v1.GET("/payments/:id", s.GetPayment)
	v1.POST("/payments/:id/verify", s.VerifyPayment)
	v1.POST("/payments/:id/fail", s.FailPayment)
	v1.GET("/payments/:id/refunds", s.ListPaymentRefunds)

	// -------- Refunds --------
	v1.POST("/refunds", s.RequestRefund)
	v1.GET("/refunds/:id", s.GetRefund)
	v1.POST("/refunds/:id/approve", s.ApproveRefund)
	v1.POST("/refunds/:id/reject", s.RejectRefund)
	v1.POST("/refunds/:id/process", s.ProcessRefund)
	v1.POST("/refunds/:id/complete", s.CompleteRefund)

	// -------- Audit Logs --------
	v1.GET("/audit-logs", s.ListAuditLogs)
}
