package messages

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/campuslink/portal/internal/common/errors"
	"github.com/campuslink/portal/internal/common/httpx"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r gin.IRouter) {
	r.GET("/search", h.Search)
	r.PUT("/messages/:id", h.Edit)
	r.DELETE("/messages/:id", h.Delete)
	r.POST("/messages/:id/read", h.MarkRead)
	r.POST("/messages/:id/delivered", h.MarkDelivered)
	r.POST("/messages/:id/reactions", h.React)
}

type editRequest struct {
	Content string `json:"content" binding:"required"`
}

func (h *Handler) Edit(c *gin.Context) {
	callerID, err := httpx.CallerID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	id, err := httpx.Int64Param(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req editRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Error(c, apperrors.BadRequest("invalid request body"))
		return
	}

	msg, err := h.service.Edit(c.Request.Context(), id, callerID, req.Content)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, msg)
}

func (h *Handler) Delete(c *gin.Context) {
	callerID, err := httpx.CallerID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	id, err := httpx.Int64Param(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	if err := h.service.Delete(c.Request.Context(), id, callerID); err != nil {
		httpx.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) MarkRead(c *gin.Context) {
	h.mark(c, ReceiptRead)
}

func (h *Handler) MarkDelivered(c *gin.Context) {
	h.mark(c, ReceiptDelivered)
}

func (h *Handler) mark(c *gin.Context, kind string) {
	callerID, err := httpx.CallerID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	id, err := httpx.Int64Param(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	if kind == ReceiptRead {
		err = h.service.MarkRead(c.Request.Context(), id, callerID)
	} else {
		err = h.service.MarkDelivered(c.Request.Context(), id, callerID)
	}
	if err != nil {
		httpx.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type reactionRequest struct {
	Emoji string `json:"emoji" binding:"required"`
}

func (h *Handler) React(c *gin.Context) {
	callerID, err := httpx.CallerID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	id, err := httpx.Int64Param(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req reactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Error(c, apperrors.BadRequest("invalid request body"))
		return
	}

	msg, err := h.service.React(c.Request.Context(), id, callerID, req.Emoji)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, msg)
}

func (h *Handler) Search(c *gin.Context) {
	callerID, err := httpx.CallerID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	q := SearchQuery{Query: c.Query("q")}

	if raw := c.Query("conversation_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Error(c, apperrors.BadRequest("invalid conversation_id"))
			return
		}
		q.ConversationID = &id
	}
	if raw := c.Query("sender_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.Error(c, apperrors.BadRequest("invalid sender_id"))
			return
		}
		q.SenderID = &id
	}
	if raw := c.Query("content_type"); raw != "" {
		ct := ContentType(raw)
		if !validContentTypes[ct] {
			httpx.Error(c, apperrors.BadRequest("invalid content_type"))
			return
		}
		q.ContentType = &ct
	}
	if raw := c.Query("from"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Error(c, apperrors.BadRequest("invalid from timestamp"))
			return
		}
		q.From = &t
	}
	if raw := c.Query("to"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			httpx.Error(c, apperrors.BadRequest("invalid to timestamp"))
			return
		}
		q.To = &t
	}
	if raw := c.Query("has_attachments"); raw != "" {
		has, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Error(c, apperrors.BadRequest("invalid has_attachments"))
			return
		}
		q.HasAttachments = &has
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil {
			httpx.Error(c, apperrors.BadRequest("invalid limit"))
			return
		}
		q.Limit = limit
	}

	results, err := h.service.Search(c.Request.Context(), callerID, q)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	if results == nil {
		results = []*Message{}
	}

	c.JSON(http.StatusOK, gin.H{"items": results, "count": len(results)})
}
