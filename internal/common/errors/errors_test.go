package errors

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, http.StatusOK},
		{"not found", NotFound("missing"), http.StatusNotFound},
		{"unauthorized", Unauthorized("who"), http.StatusUnauthorized},
		{"forbidden", Forbidden("no"), http.StatusForbidden},
		{"bad request", BadRequest("nope"), http.StatusBadRequest},
		{"conflict", Conflict("already"), http.StatusConflict},
		{"internal", Internal("boom", errors.New("db down")), http.StatusInternalServerError},
		{"plain error", errors.New("anything"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}

func TestMessageMasksUnclassifiedErrors(t *testing.T) {
	assert.Equal(t, "missing", Message(NotFound("missing")))
	assert.Equal(t, "internal error", Message(errors.New("pq: connection refused")))
}

func TestWrappedClassification(t *testing.T) {
	err := NotFound("conversation not found")
	assert.True(t, IsNotFound(err))
	assert.False(t, IsConflict(err))

	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, IsConflict(Conflict("dup")))
}
