// Package tenantctx carries the active tenant scope through request contexts.
// Every core operation requires a tenant; handlers resolve it once in
// middleware and services read it from the context.
package tenantctx

import (
	"context"
	"strings"

	"github.com/bwmarrin/snowflake"
)

type tenantIDKey struct{}
type tenantCodeKey struct{}

// WithTenantID stores the tenant ID in the context.
func WithTenantID(ctx context.Context, tenantID snowflake.ID) context.Context {
	return context.WithValue(ctx, tenantIDKey{}, tenantID)
}

// WithTenantCode stores the human-readable tenant code (used in document numbers).
func WithTenantCode(ctx context.Context, code string) context.Context {
	return context.WithValue(ctx, tenantCodeKey{}, strings.TrimSpace(code))
}

// TenantID returns the tenant ID from context, if set.
func TenantID(ctx context.Context) (snowflake.ID, bool) {
	if ctx == nil {
		return 0, false
	}
	switch typed := ctx.Value(tenantIDKey{}).(type) {
	case snowflake.ID:
		return typed, typed != 0
	case int64:
		return snowflake.ID(typed), typed != 0
	case string:
		parsed, err := snowflake.ParseString(strings.TrimSpace(typed))
		if err == nil {
			return parsed, true
		}
	}
	return 0, false
}

// TenantCode returns the tenant code from context, if set.
func TenantCode(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	code, ok := ctx.Value(tenantCodeKey{}).(string)
	return code, ok && code != ""
}
