package chatrooms

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

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
	r.POST("/chatrooms", h.Create)
	r.GET("/chatrooms", h.List)
	r.GET("/chatrooms/:id", h.Get)
	r.POST("/chatrooms/:id/join", h.Join)
	r.POST("/chatrooms/:id/leave", h.Leave)
	r.POST("/chatrooms/:id/pins", h.Pin)
	r.DELETE("/chatrooms/:id/pins/:messageId", h.Unpin)
	r.PUT("/chatrooms/:id/slow-mode", h.SetSlowMode)
}

type createRoomRequest struct {
	Name            string   `json:"name" binding:"required"`
	Type            string   `json:"type"`
	Category        string   `json:"category"`
	MaxParticipants *int     `json:"max_participants"`
	Rules           []string `json:"rules"`
	Settings        Settings `json:"settings"`
}

func (h *Handler) Create(c *gin.Context) {
	callerID, err := httpx.CallerID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req createRoomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Error(c, apperrors.BadRequest("invalid request body"))
		return
	}

	room, err := h.service.CreateRoom(c.Request.Context(), callerID, CreateRoomInput{
		Name:            req.Name,
		Type:            Type(req.Type),
		Category:        req.Category,
		MaxParticipants: req.MaxParticipants,
		Rules:           req.Rules,
		Settings:        req.Settings,
	})
	if err != nil {
		httpx.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, room)
}

func (h *Handler) Get(c *gin.Context) {
	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	room, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, room)
}

func (h *Handler) List(c *gin.Context) {
	var filter ListFilter
	if raw := c.Query("type"); raw != "" {
		t := Type(raw)
		filter.Type = &t
	}
	filter.Category = c.Query("category")

	page := httpx.PageQuery(c)
	rooms, total, err := h.service.List(c.Request.Context(), filter, page)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	if rooms == nil {
		rooms = []*Room{}
	}

	httpx.List(c, http.StatusOK, rooms, total, page.Page, page.PageSize)
}

func (h *Handler) Join(c *gin.Context) {
	callerID, err := httpx.CallerID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	if err := h.service.Join(c.Request.Context(), id, callerID); err != nil {
		httpx.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) Leave(c *gin.Context) {
	callerID, err := httpx.CallerID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	if err := h.service.Leave(c.Request.Context(), id, callerID); err != nil {
		httpx.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type pinRequest struct {
	MessageID string `json:"message_id" binding:"required"`
}

func (h *Handler) Pin(c *gin.Context) {
	callerID, err := httpx.CallerID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req pinRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Error(c, apperrors.BadRequest("invalid request body"))
		return
	}

	messageID, err := strconv.ParseInt(req.MessageID, 10, 64)
	if err != nil {
		httpx.Error(c, apperrors.BadRequest("invalid message_id"))
		return
	}

	if err := h.service.Pin(c.Request.Context(), id, callerID, messageID); err != nil {
		httpx.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) Unpin(c *gin.Context) {
	callerID, err := httpx.CallerID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	messageID, err := httpx.Int64Param(c, "messageId")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	if err := h.service.Unpin(c.Request.Context(), id, callerID, messageID); err != nil {
		httpx.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type slowModeRequest struct {
	Seconds *int `json:"seconds" binding:"required"`
}

func (h *Handler) SetSlowMode(c *gin.Context) {
	callerID, err := httpx.CallerID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req slowModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Error(c, apperrors.BadRequest("invalid request body"))
		return
	}

	if err := h.service.SetSlowMode(c.Request.Context(), id, callerID, *req.Seconds); err != nil {
		httpx.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
