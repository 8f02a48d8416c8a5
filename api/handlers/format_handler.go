package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/vidgrab/internal/app"
	"github.com/yourusername/vidgrab/internal/domain"
)

// FormatHandler reports the formats available for an item
type FormatHandler struct {
	downloadMgr *app.DownloadManager
	logger      *zap.Logger
}

// NewFormatHandler creates a new format handler
func NewFormatHandler(downloadMgr *app.DownloadManager, logger *zap.Logger) *FormatHandler {
	return &FormatHandler{
		downloadMgr: downloadMgr,
		logger:      logger,
	}
}

// ListFormats handles GET /api/v1/formats?url=&quality=
func (h *FormatHandler) ListFormats(c *gin.Context) {
	locator := c.Query("url")
	if locator == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'url' is required"})
		return
	}

	policy := domain.BestQuality()
	if q := c.Query("quality"); q != "" {
		parsed, err := domain.ParseQuality(q)
		if err != nil {
			respondError(c, fmt.Errorf("%w: %v", app.ErrInvalidRequest, err))
			return
		}
		policy = parsed
	}

	report, err := h.downloadMgr.InspectFormats(c.Request.Context(), locator, policy)
	if err != nil {
		h.logger.Warn("Failed to inspect formats", zap.String("url", locator), zap.Error(err))
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}
