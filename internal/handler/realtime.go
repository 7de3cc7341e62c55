package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/sakif/devspace/internal/apperror"
	"github.com/sakif/devspace/internal/realtime"
	"github.com/sakif/devspace/internal/service"
)

// RealtimeHandler upgrades /ws/* requests and relays Redis channels to the
// socket. Authentication happens in middleware; browsers pass the token as
// ?token= because they cannot set headers on a WebSocket handshake.
type RealtimeHandler struct {
	snippets  *service.SnippetService
	publisher *realtime.Publisher
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

// NewRealtimeHandler accepts handshakes from allowedOrigins; "*" allows any.
func NewRealtimeHandler(snippets *service.SnippetService, publisher *realtime.Publisher, allowedOrigins []string, logger *slog.Logger) *RealtimeHandler {
	return &RealtimeHandler{
		snippets:  snippets,
		publisher: publisher,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: logger,
	}
}

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

// inboundEvent is what clients send on the snippet socket.
type inboundEvent struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// subscribe opens the Redis subscription before the upgrade so failures can
// still be reported as plain HTTP errors.
func (h *RealtimeHandler) subscribe(w http.ResponseWriter, r *http.Request, channel string) (*realtime.Subscription, bool) {
	sub, err := h.publisher.Subscribe(r.Context(), channel)
	if errors.Is(err, realtime.ErrDisabled) {
		writeError(w, r, apperror.Unavailable("real-time updates are not enabled on this server"))
		return nil, false
	}
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return sub, true
}

// HandleSnippetSocket: GET /ws/code/{id}
//
// Needs Read on the snippet. Readers may send "cursor" and "presence"
// events; "content" events are only relayed for actors who may contribute.
func (h *RealtimeHandler) HandleSnippetSocket(w http.ResponseWriter, r *http.Request) {
	userID := actor(r)
	snippet, canContribute, err := h.snippets.Authorize(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	channel := realtime.SnippetChannel(snippet.ID)
	sub, ok := h.subscribe(w, r, channel)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		sub.Close()
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	h.logger.Info("snippet socket opened", slog.String("snippet", snippet.ID), slog.String("user", userID))
	realtime.Relay(r.Context(), conn, sub, "snippet", func(ctx context.Context, msg []byte) {
		var ev inboundEvent
		if err := json.Unmarshal(msg, &ev); err != nil {
			return
		}
		switch ev.Type {
		case "cursor", "presence":
		case "content":
			if !canContribute {
				return
			}
		default:
			return
		}
		if err := h.publisher.Publish(ctx, channel, ev.Type, snippet.ID, userID, ev.Payload); err != nil {
			h.logger.Warn("failed to relay event", slog.String("snippet", snippet.ID), slog.String("error", err.Error()))
		}
	}, h.logger)
	h.logger.Info("snippet socket closed", slog.String("snippet", snippet.ID), slog.String("user", userID))
}

// HandleNotificationSocket: GET /ws/notifications
// Server-to-client only; inbound frames are ignored.
func (h *RealtimeHandler) HandleNotificationSocket(w http.ResponseWriter, r *http.Request) {
	userID := actor(r)
	sub, ok := h.subscribe(w, r, realtime.UserChannel(userID))
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		h.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	realtime.Relay(r.Context(), conn, sub, "notifications", func(context.Context, []byte) {}, h.logger)
}
