package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/apperrors"
)

var errMissingUser = errors.New("missing authenticated user")

// respondError writes err as {"error": {"kind": ..., "message": ...}}.
func respondError(c *gin.Context, err error) {
	kind := apperrors.KindOf(err)
	if kind == apperrors.KindInternal {
		_ = c.Error(err)
	}
	c.JSON(apperrors.HTTPStatus(kind), gin.H{"error": gin.H{
		"kind":    kind,
		"message": apperrors.PublicMessage(err),
	}})
}

func badRequest(c *gin.Context, format string, args ...any) {
	respondError(c, apperrors.Validation(format, args...))
}

func int64Param(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid %s", name)
		return 0, false
	}
	return id, true
}

// page reads limit and offset query parameters. Zero means "use the default".
func page(c *gin.Context) (int, int, bool) {
	limit, offset := 0, 0
	var err error
	if v := c.Query("limit"); v != "" {
		if limit, err = strconv.Atoi(v); err != nil || limit < 0 {
			badRequest(c, "invalid limit")
			return 0, 0, false
		}
	}
	if v := c.Query("offset"); v != "" {
		if offset, err = strconv.Atoi(v); err != nil || offset < 0 {
			badRequest(c, "invalid offset")
			return 0, 0, false
		}
	}
	return limit, offset, true
}

// actor returns the authenticated user id set by the auth middleware.
func actor(c *gin.Context) (int64, bool) {
	if id := userIDFromContext(c); id != nil {
		return *id, true
	}
	_ = c.Error(errMissingUser)
	c.JSON(http.StatusUnauthorized, gin.H{"error": gin.H{"kind": "unauthenticated", "message": "missing authorization"}})
	return 0, false
}
