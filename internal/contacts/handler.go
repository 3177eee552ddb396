package contacts

import (
	"net/http"

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
	r.POST("/contacts", h.Add)
	r.GET("/contacts", h.List)
	r.PUT("/contacts/:contactId/status", h.UpdateStatus)
	r.PUT("/contacts/:contactId/favorite", h.SetFavorite)
	r.POST("/contacts/:contactId/block", h.Block)
	r.POST("/contacts/:contactId/unblock", h.Unblock)
}

type addContactRequest struct {
	ContactID string   `json:"contact_id" binding:"required"`
	Notes     string   `json:"notes"`
	Tags      []string `json:"tags"`
	Groups    []string `json:"groups"`
}

func (h *Handler) Add(c *gin.Context) {
	ownerID, err := httpx.CallerID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req addContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Error(c, apperrors.BadRequest("invalid request body"))
		return
	}

	contactID, err := uuid.Parse(req.ContactID)
	if err != nil {
		httpx.Error(c, apperrors.BadRequest("invalid contact_id"))
		return
	}

	contact, err := h.service.AddContact(c.Request.Context(), ownerID, AddContactInput{
		ContactID: contactID,
		Notes:     req.Notes,
		Tags:      req.Tags,
		Groups:    req.Groups,
	})
	if err != nil {
		httpx.Error(c, err)
		return
	}

	c.JSON(http.StatusCreated, contact)
}

func (h *Handler) List(c *gin.Context) {
	ownerID, err := httpx.CallerID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var filter ListFilter

	if filter.IsFavorite, err = httpx.BoolQuery(c, "is_favorite"); err != nil {
		httpx.Error(c, err)
		return
	}
	if filter.IsBlocked, err = httpx.BoolQuery(c, "is_blocked"); err != nil {
		httpx.Error(c, err)
		return
	}
	filter.Tags = c.QueryArray("tag")

	page := httpx.PageQuery(c)
	list, total, err := h.service.List(c.Request.Context(), ownerID, filter, page)
	if err != nil {
		httpx.Error(c, err)
		return
	}
	if list == nil {
		list = []*Contact{}
	}

	httpx.List(c, http.StatusOK, list, total, page.Page, page.PageSize)
}

type statusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	ownerID, err := httpx.CallerID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	contactID, err := httpx.UUIDParam(c, "contactId")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req statusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Error(c, apperrors.BadRequest("invalid request body"))
		return
	}

	if err := h.service.UpdateStatus(c.Request.Context(), ownerID, contactID, Status(req.Status)); err != nil {
		httpx.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type favoriteRequest struct {
	Favorite *bool `json:"favorite" binding:"required"`
}

func (h *Handler) SetFavorite(c *gin.Context) {
	ownerID, err := httpx.CallerID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	contactID, err := httpx.UUIDParam(c, "contactId")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req favoriteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpx.Error(c, apperrors.BadRequest("invalid request body"))
		return
	}

	if err := h.service.SetFavorite(c.Request.Context(), ownerID, contactID, *req.Favorite); err != nil {
		httpx.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

type blockRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) Block(c *gin.Context) {
	ownerID, err := httpx.CallerID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	contactID, err := httpx.UUIDParam(c, "contactId")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	var req blockRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpx.Error(c, apperrors.BadRequest("invalid request body"))
			return
		}
	}

	if err := h.service.Block(c.Request.Context(), ownerID, contactID, req.Reason); err != nil {
		httpx.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) Unblock(c *gin.Context) {
	ownerID, err := httpx.CallerID(c)
	if err != nil {
		httpx.Error(c, err)
		return
	}

	contactID, err := httpx.UUIDParam(c, "contactId")
	if err != nil {
		httpx.Error(c, err)
		return
	}

	if err := h.service.Unblock(c.Request.Context(), ownerID, contactID); err != nil {
		httpx.Error(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
