package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// GetContacts lists every user other than the caller.
func (h *Handler) GetContacts(c *gin.Context) {
	userID := c.Query("userId")
	if h.opts.Issuer != nil {
		authenticated, err := h.authenticate(c.Request)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token or expired"})
			return
		}
		if userID == "" {
			userID = authenticated
		}
		if userID != authenticated {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
			return
		}
	}
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}

	contacts, err := h.Directory.ListContacts(c.Request.Context(), userID)
	if err != nil {
		h.logger.Error("list contacts", zap.String("user_id", userID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get contacts"})
		return
	}
	c.JSON(http.StatusOK, contacts)
}
