package rest

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/toshiotawa/jazzify-lab-sub004/guild"
)

// writeGuildError translates guild service errors into HTTP responses.
func writeGuildError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, guild.ErrAuthRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
	case errors.Is(err, guild.ErrForbidden),
		errors.Is(err, guild.ErrIneligiblePlan):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, guild.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, guild.ErrAlreadyMember),
		errors.Is(err, guild.ErrCapacityExceeded),
		errors.Is(err, guild.ErrInvalidState),
		errors.Is(err, guild.ErrDuplicateName),
		errors.Is(err, guild.ErrDisbanded):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, guild.ErrInvalidName),
		errors.Is(err, guild.ErrInvalidAmount):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

// isUniqueViolation detects duplicate-key errors from common database drivers.
func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") ||
		strings.Contains(msg, "duplicate") ||
		strings.Contains(msg, "already exists")
}
