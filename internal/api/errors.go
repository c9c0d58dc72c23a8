package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"storefront/internal/models"
)

// respondError maps service errors onto status codes. Internal failures
// answer with message and never expose err.
func (h *Handler) respondError(c *gin.Context, err error, message string) {
	if details, ok := models.ValidationDetails(err); ok {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   validationSummary(err),
			"details": details,
		})
		return
	}

	switch {
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	case errors.Is(err, models.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
	case errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "A request with this Idempotency-Key is still being processed"})
	default:
		_ = c.Error(err)
		h.logger.Error(message, zap.Error(err), zap.String("path", c.FullPath()))
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}

// validationSummary is the single message of a one-field violation, or a
// generic heading when several fields failed.
func validationSummary(err error) string {
	var one *models.ValidationError
	if errors.As(err, &one) {
		return one.Message
	}
	var many models.ValidationErrors
	if errors.As(err, &many) && len(many) == 1 {
		return many[0].Message
	}
	return "Invalid data"
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "Invalid request body",
		"details": err.Error(),
	})
}
