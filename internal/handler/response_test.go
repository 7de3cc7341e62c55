package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/devspace/internal/apperror"
	"github.com/sakif/devspace/internal/service"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		want       ErrorResponse
	}{
		{
			name:       "validation",
			err:        apperror.ValidationFailed("title", "title is required"),
			wantStatus: http.StatusBadRequest,
			want:       ErrorResponse{Error: "validation_error", Message: "title is required", Field: "title"},
		},
		{
			name:       "expired token",
			err:        &apperror.AppError{Err: apperror.ErrUnauthorized, Message: "token expired", Code: apperror.CodeTokenExpired},
			wantStatus: http.StatusUnauthorized,
			want:       ErrorResponse{Error: "unauthorized", Message: "token expired", Code: "TOKEN_EXPIRED"},
		},
		{
			name:       "forbidden",
			err:        apperror.Forbidden("you cannot edit this snippet"),
			wantStatus: http.StatusForbidden,
			want:       ErrorResponse{Error: "forbidden", Message: "you cannot edit this snippet"},
		},
		{
			name:       "not found",
			err:        apperror.NotFound("snippet", "abc"),
			wantStatus: http.StatusNotFound,
			want:       ErrorResponse{Error: "not_found", Message: "snippet not found with id abc"},
		},
		{
			name:       "conflict",
			err:        apperror.AlreadyExists("already a collaborator"),
			wantStatus: http.StatusConflict,
			want:       ErrorResponse{Error: "conflict", Message: "already a collaborator"},
		},
		{
			name:       "raw errors are hidden",
			err:        errors.New("sql: database is locked"),
			wantStatus: http.StatusInternalServerError,
			want:       ErrorResponse{Error: "internal_error", Message: "An internal error occurred"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeError(rr, httptest.NewRequest(http.MethodGet, "/", nil), tt.err)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))
			var got ErrorResponse
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecode(t *testing.T) {
	decodeString := func(body string, dst any) error {
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		return decode(httptest.NewRecorder(), r, dst)
	}

	t.Run("valid", func(t *testing.T) {
		var req addCollaboratorRequest
		require.NoError(t, decodeString(`{"username":"bob","role":"editor"}`, &req))
		assert.Equal(t, "bob", req.Username)
	})

	tests := []struct {
		name      string
		body      string
		wantField string
		wantMsg   string
	}{
		{"empty body", ``, "body", "request body is required"},
		{"bad json", `{"username":`, "body", "invalid JSON body"},
		{"missing required", `{}`, "username", "username is required"},
		{"bad enum", `{"username":"bob","role":"owner"}`, "role", "role must be one of viewer, editor, admin"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var req addCollaboratorRequest
			err := decodeString(tt.body, &req)

			var appErr *apperror.AppError
			require.ErrorAs(t, err, &appErr)
			assert.ErrorIs(t, err, apperror.ErrValidation)
			assert.Equal(t, tt.wantField, appErr.Field)
			assert.Equal(t, tt.wantMsg, appErr.Message)
		})
	}

	t.Run("max length uses json name", func(t *testing.T) {
		var req createSnippetRequest
		err := decodeString(`{"title":"t","language":"go","filePath":"`+strings.Repeat("a", 501)+`"}`, &req)
		var appErr *apperror.AppError
		require.ErrorAs(t, err, &appErr)
		assert.Equal(t, "filePath", appErr.Field)
		assert.Equal(t, "filePath must be at most 500 characters", appErr.Message)
	})
}

func TestPageRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/?page=3&limit=50", nil)
	assert.Equal(t, service.PageRequest{Page: 3, Limit: 50}, pageRequest(r))

	r = httptest.NewRequest(http.MethodGet, "/?page=abc", nil)
	assert.Equal(t, service.PageRequest{}, pageRequest(r))
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"https://app.example"})

	req := httptest.NewRequest(http.MethodGet, "/ws/notifications", nil)
	assert.True(t, check(req), "non-browser clients send no Origin")

	req.Header.Set("Origin", "https://app.example")
	assert.True(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.False(t, check(req))

	req.Header.Set("Origin", "https://evil.example")
	assert.True(t, originChecker([]string{"*"})(req))
}
