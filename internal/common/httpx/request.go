package httpx

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/campuslink/portal/internal/common/errors"
	"github.com/campuslink/portal/internal/common/pagination"
	"github.com/campuslink/portal/internal/principal"
)

// Caller returns the authenticated principal. The auth middleware guarantees
// it on protected routes; a miss means a wiring bug, answered with 401.
func Caller(c *gin.Context) (principal.Principal, error) {
	p, ok := principal.FromContext(c.Request.Context())
	if !ok {
		return principal.Principal{}, apperrors.Unauthorized("authentication required")
	}
	return p, nil
}

func CallerID(c *gin.Context) (uuid.UUID, error) {
	p, err := Caller(c)
	if err != nil {
		return uuid.Nil, err
	}

	id, err := uuid.Parse(p.ID)
	if err != nil {
		return uuid.Nil, apperrors.Unauthorized("invalid principal id")
	}
	return id, nil
}

func UUIDParam(c *gin.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperrors.BadRequest("invalid " + name)
	}
	return id, nil
}

// Int64Param parses snowflake message ids from the path.
func Int64Param(c *gin.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil {
		return 0, apperrors.BadRequest("invalid " + name)
	}
	return id, nil
}

func PageQuery(c *gin.Context) pagination.Page {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	return pagination.Parse(page, size)
}

// BoolQuery returns nil when the parameter is absent, so filters can
// distinguish "false" from "don't care".
func BoolQuery(c *gin.Context, name string) (*bool, error) {
	raw, ok := c.GetQuery(name)
	if !ok {
		return nil, nil
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, apperrors.BadRequest("invalid " + name)
	}
	return &v, nil
}
