package conversations

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/campuslink/portal/internal/common/errors"
	"github.com/campuslink/portal/internal/common/httpx"
	"github.com/campuslink/portal/internal/messages"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Register(r gin.IRouter) {
	r.POST("/conversations", h.Create)
	r.GET("/conversations", h.List)
	r.GET("/conversations/:id", h.Get)
	r.POST("/conversations/:id/participants", h.AddParticipant)
	r.DELETE("/conversations/:id/participants/:userId", h.RemoveParticipant)
	r.POST("/conversations/:id/read", h.MarkRead)
	r.PUT("/conversations/:id/archive", h.SetArchived)

	r.POST("/messages", h.Send)
	r.GET("/messages/:id", h.History)
}

type createConversationRequest struct {
	Type           string    `json:"type"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	ParticipantIDs []string  `json:"participant_ids" binding:"required"`
	AdminIDs       []string  `json:"admin_ids"`
	ModeratorIDs   []string  `json:"moderator_ids"`
	Settings       *Settings `json:"settings"`
}

func parseUUIDs(raw []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (h *Handler) Create(c *gin.Context) {
	caller, err := httpx.Caller(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req createConversationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Error(c, apperrors.BadRequest("invalid request body"))
		return
	}

	ids, err := parseUUIDs(req.ParticipantIDs)
	if err != nil {
		httpx.Error(c, apperrors.BadRequest("invalid participant id"))
		return
	}
	adminIDs, err := parseUUIDs(req.AdminIDs)
	if err != nil {
		httpx.Error(c, apperrors.BadRequest("invalid admin id"))
		return
	}
	moderatorIDs, err := parseUUIDs(req.ModeratorIDs)
	if err != nil {
		httpx.Error(c, apperrors.BadRequest("invalid moderator id"))
		return
	}

	conv, err := h.service.CreateConversation(c.Request.Context(), caller, CreateConversationInput{
		Type:           Type(req.Type),
		Title:          req.Title,
		Description:    req.Description,
		ParticipantIDs: ids,
		AdminIDs:       adminIDs,
		ModeratorIDs:   moderatorIDs,
		Settings:       req.Settings,
	})
	if err != nil {
		httpx.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, conv)
}

func (h *Handler) Get(c *gin.Context) {
	caller, err := httpx.Caller(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	id, err := httpx.UUIDParam(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	conv, err := h.service.Get(c.Request.Context(), id, caller)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	c.JSON(http.StatusOK, conv)
}

func (h *Handler) List(c *gin.Context) {
	caller, err := httpx.Caller(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var filter ListFilter
	if raw := c.Query("type"); raw != "" {
		t := Type(raw)
		if !validTypes[t] {
			httpx.Error(c, apperrors.BadRequest("invalid type"))
			return
		}
		filter.Type = &t
	}

	active, err := httpx.BoolQuery(c, "active")
	if err != nil {
		httpx.Error(c, err)
		return
	}
	filter.Active = active

	archived, err := httpx.BoolQuery(c, "archived")
	if err != nil {
		httpx.Error(c, err)
		return
	}
	filter.Archived = archived

	if raw := c.Query("has_unread"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.Error(c, apperrors.BadRequest("invalid has_unread"))
			return
		}
		filter.HasUnread = v
	}

	page := httpx.PageQuery(c)
	convs, total, err := h.service.List(c.Request.Context(), caller, filter, page)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	if convs == nil {
		convs = []*Conversation{}
	}

	httpx.List(c, http.StatusOK, convs, total, page.Page, page.PageSize)
}

type sendMessageRequest struct {
	ConversationID string                `json:"conversation_id" binding:"required"`
	Content        string                `json:"content"`
	ContentType    string                `json:"content_type"`
	Attachments    []messages.Attachment `json:"attachments"`
	ReplyToID      *string               `json:"reply_to_id"`
	Priority       string                `json:"priority"`
}

func (h *Handler) Send(c *gin.Context) {
	caller, err := httpx.Caller(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req sendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Error(c, apperrors.BadRequest("invalid request body"))
		return
	}

	conversationID, err := uuid.Parse(req.ConversationID)
	if err != nil {
		httpx.Error(c, apperrors.BadRequest("invalid conversation_id"))
		return
	}

	var replyTo *int64
	if req.ReplyToID != nil {
		id, err := strconv.ParseInt(*req.ReplyToID, 10, 64)
		if err != nil {
			httpx.Error(c, apperrors.BadRequest("invalid reply_to_id"))
			return
		}
		replyTo = &id
	}

	msg, err := h.service.SendMessage(c.Request.Context(), caller, SendInput{
		ConversationID: conversationID,
		Content:        req.Content,
		ContentType:    messages.ContentType(req.ContentType),
		Attachments:    req.Attachments,
		ReplyToID:      replyTo,
		Priority:       messages.Priority(req.Priority),
	})
	if err != nil {
		httpx.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

// History serves GET /messages/:id where id is the conversation. Reading a
// page also stamps delivery receipts and clears the caller's unread counter.
func (h *Handler) History(c *gin.Context) {
	caller, err := httpx.Caller(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	conversationID, err := httpx.UUIDParam(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	page := httpx.PageQuery(c)
	msgs, total, err := h.service.History(c.Request.Context(), conversationID, caller, page)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	if msgs == nil {
		msgs = []*messages.Message{}
	}

	httpx.List(c, http.StatusOK, msgs, total, page.Page, page.PageSize)
}

type addParticipantRequest struct {
	UserID string `json:"user_id" binding:"required"`
	Role   string `json:"role"`
}

func (h *Handler) AddParticipant(c *gin.Context) {
	caller, err := httpx.Caller(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	conversationID, err := httpx.UUIDParam(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req addParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Error(c, apperrors.BadRequest("invalid request body"))
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		httpx.Error(c, apperrors.BadRequest("invalid user_id"))
		return
	}

	if err := h.service.AddParticipant(c.Request.Context(), conversationID, caller, userID, Role(req.Role)); err != nil {
		httpx.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) RemoveParticipant(c *gin.Context) {
	caller, err := httpx.Caller(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	conversationID, err := httpx.UUIDParam(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	userID, err := httpx.UUIDParam(c, "userId")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	if err := h.service.RemoveParticipant(c.Request.Context(), conversationID, caller, userID); err != nil {
		httpx.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) MarkRead(c *gin.Context) {
	caller, err := httpx.Caller(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	conversationID, err := httpx.UUIDParam(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	if err := h.service.MarkRead(c.Request.Context(), conversationID, caller); err != nil {
		httpx.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type archiveRequest struct {
	Archived *bool `json:"archived" binding:"required"`
}

func (h *Handler) SetArchived(c *gin.Context) {
	caller, err := httpx.Caller(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	conversationID, err := httpx.UUIDParam(c, "id")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req archiveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Error(c, apperrors.BadRequest("invalid request body"))
		return
	}

	if err := h.service.SetArchived(c.Request.Context(), conversationID, caller, *req.Archived); err != nil {
		httpx.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
