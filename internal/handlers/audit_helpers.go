package handlers

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/middleware"
)

func requestIDFromContext(c *gin.Context) string {
	if val, ok := c.Get(middleware.RequestIDKey); ok {
		if id, ok := val.(string); ok && id != "" {
			return id
		}
	}

	requestID := c.GetHeader(middleware.RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set(middleware.RequestIDKey, requestID)
	return requestID
}

func userIDFromContext(c *gin.Context) *int64 {
	val, ok := c.Get(middleware.UserIDKey)
	if !ok {
		return nil
	}
	switch userID := val.(type) {
	case int:
		if userID != 0 {
			value := int64(userID)
			return &value
		}
	case int64:
		if userID != 0 {
			value := userID
			return &value
		}
	}
	return nil
}

func userIDString(c *gin.Context) *string {
	id := userIDFromContext(c)
	if id == nil {
		return nil
	}
	s := strconv.FormatInt(*id, 10)
	return &s
}
