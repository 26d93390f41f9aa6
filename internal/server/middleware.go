package server

import (
	"errors"
	"net/http"

	"github.com/campusduka/storefront/internal/auth"
	"github.com/campusduka/storefront/internal/cart"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		respondError(c, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	userID, err := h.users.ResolveCanonicalUserID(c.Request.Context(), claims)
	if err != nil {
		h.logger.Warn("user identity resolution failed", zap.Error(err))
		respondError(c, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return
	}

	c.Set(userIDContextKey, userID)
	c.Set(claimsContextKey, claims)
	c.Next()
}

func (h *httpHandler) requireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		value, ok := c.Get(claimsContextKey)
		claims, isClaims := value.(auth.SessionClaims)
		if !ok || !isClaims || !claims.HasRole(role) {
			h.logger.Warn("role check failed",
				zap.String("user_id", c.GetString(userIDContextKey)),
				zap.String("role", role))
			respondError(c, http.StatusForbidden, "forbidden", "Forbidden")
			return
		}
		c.Next()
	}
}

func (h *httpHandler) currentUser(c *gin.Context) (cart.UserID, bool) {
	userID, err := cart.NewUserID(c.GetString(userIDContextKey))
	if err != nil {
		respondError(c, http.StatusUnauthorized, "unauthorized", "Authentication required")
		return "", false
	}
	return userID, true
}
