package httpx

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "github.com/campuslink/portal/internal/common/errors"
	"github.com/campuslink/portal/internal/common/logging"
)

// Error writes the canonical {"error": ...} body for any service error.
// Unexpected errors are logged with the request logger and masked.
func Error(c *gin.Context, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		logging.FromContext(c.Request.Context()).Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}

	c.JSON(status, gin.H{"error": apperrors.Message(err)})
}

// List is the standard paged envelope.
func List(c *gin.Context, status int, items interface{}, total, page, pageSize int) {
	c.JSON(status, gin.H{
		"items":     items,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}
