package storage

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "github.com/campuslink/portal/internal/common/errors"
	"github.com/campuslink/portal/internal/common/httpx"
)

type Handler struct {
	storage *Storage
}

func NewHandler(storage *Storage) *Handler {
	return &Handler{storage: storage}
}

func (h *Handler) Register(r gin.IRouter) {
	r.POST("/upload", h.Upload)
}

// Upload accepts one multipart file and answers with the attachment
// descriptor the client embeds in a later sendMessage call.
func (h *Handler) Upload(c *gin.Context) {
	if _, err := httpx.Caller(c); err != nil {
		httpx.Error(c, err)
		return
	}

	header, err := c.FormFile("file")
	if err != nil {
		httpx.Error(c, apperrors.BadRequest("file is required"))
		return
	}

	f, err := header.Open()
	if err != nil {
		httpx.Error(c, apperrors.BadRequest("cannot read uploaded file"))
		return
	}
	defer f.Close()

	att, err := h.storage.Save(c.Request.Context(), header.Filename, header.Size, f)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, att)
}
