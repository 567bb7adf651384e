package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/bursarhq/bursar/pkg/errs"
)

type errorPayload struct {
	Type       string `json:"type"`
	Constraint string `json:"constraint,omitempty"`
	Message    string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return http.StatusNotFound, errorPayload{
			Type:    errs.KindNotFound.String(),
			Message: "not found",
		}
	}

	kind := errs.KindOf(err)
	payload := errorPayload{
		Type:       kind.String(),
		Constraint: errs.ConstraintOf(err),
		Message:    err.Error(),
	}

	switch kind {
	case errs.KindValidation:
		return http.StatusBadRequest, payload
	case errs.KindNotFound:
		return http.StatusNotFound, payload
	case errs.KindState, errs.KindConflict:
		return http.StatusConflict, payload
	case errs.KindInvariant:
		return http.StatusUnprocessableEntity, payload
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
