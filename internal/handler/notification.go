package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/devspace/internal/model"
	"github.com/sakif/devspace/internal/service"
)

type NotificationHandler struct {
	notifications *service.NotificationService
	logger        *slog.Logger
}

func NewNotificationHandler(notifications *service.NotificationService, logger *slog.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

type markAllResponse struct {
	Message string `json:"message"`
	Updated int64  `json:"updated"`
}

// HandleList: GET /api/notifications?unread=true
func (h *NotificationHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	unreadOnly := r.URL.Query().Get("unread") == "true"
	list, err := h.notifications.List(r.Context(), actor(r), unreadOnly, pageRequest(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if list.Notifications == nil {
		list.Notifications = []model.Notification{}
	}
	writeJSON(w, http.StatusOK, list)
}

// HandleMarkRead: PUT /api/notifications/{id}/read
func (h *NotificationHandler) HandleMarkRead(w http.ResponseWriter, r *http.Request) {
	if err := h.notifications.MarkRead(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "notification marked as read"})
}

// HandleMarkAllRead: PUT /api/notifications/read-all
func (h *NotificationHandler) HandleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	n, err := h.notifications.MarkAllRead(r.Context(), actor(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, markAllResponse{Message: "notifications marked as read", Updated: n})
}
