package server

import (
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	"github.com/bursarhq/bursar/pkg/errs"
	"github.com/bursarhq/bursar/pkg/tenantctx"
)

const (
	headerTenantID   = "X-Tenant-Id"
	headerTenantCode = "X-Tenant-Code"

	ctxTenantID   = "tenant_id"
	ctxTenantCode = "tenant_code"
)

// TenantRequired resolves the tenant scope from headers. Every billing
// route is tenant scoped; requests without a tenant are rejected before
// any handler runs.
func (s *Server) TenantRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(headerTenantID))
		if raw == "" {
			AbortWithError(c, errs.Validation("tenant.missing", "tenant header is required"))
			return
		}

		tenantID, err := snowflake.ParseString(raw)
		if err != nil || tenantID == 0 {
			AbortWithError(c, errs.Validation("tenant.invalid", "tenant header is not a valid id"))
			return
		}

		code := strings.TrimSpace(c.GetHeader(headerTenantCode))

		ctx := tenantctx.WithTenantID(c.Request.Context(), tenantID)
		if code != "" {
			ctx = tenantctx.WithTenantCode(ctx, code)
		}
		c.Request = c.Request.WithContext(ctx)

		c.Set(ctxTenantID, tenantID)
		c.Set(ctxTenantCode, code)

		c.Next()
	}
}

func tenantID(c *gin.Context) snowflake.ID {
	if v, ok := c.Get(ctxTenantID); ok {
		if id, ok := v.(snowflake.ID); ok {
			return id
		}
	}
	return 0
}

func tenantCode(c *gin.Context) string {
	if v, ok := c.Get(ctxTenantCode); ok {
		if code, ok := v.(string); ok {
			return code
		}
	}
	return ""
}
