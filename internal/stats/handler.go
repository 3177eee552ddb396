package stats

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/campuslink/portal/internal/common/httpx"
)

type Handler struct {
	repo *Repository
}

func NewHandler(repo *Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/stats", h.Overview)
}

func (h *Handler) Overview(c *gin.Context) {
	callerID, err := httpx.CallerID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	overview, err := h.repo.Overview(c.Request.Context(), callerID)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, overview)
}
