package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/devspace/internal/model"
	"github.com/sakif/devspace/internal/repository"
)

// EventPublisher is the slice of realtime.Publisher the services use.
type EventPublisher interface {
	Publish(ctx context.Context, channel, eventType, resourceID, userID string, payload any) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, string, string, string, any) error { return nil }

type NotificationService struct {
	repo      repository.NotificationRepository
	users     repository.UserRepository
	publisher EventPublisher
	logger    *slog.Logger
}

// NewNotificationService accepts a nil publisher.
func NewNotificationService(
	repo repository.NotificationRepository,
	users repository.UserRepository,
	publisher EventPublisher,
	logger *slog.Logger,
) *NotificationService {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &NotificationService{repo: repo, users: users, publisher: publisher, logger: logger}
}

// Notify stores a notification for recipient and pushes it to the user's
// real-time channel. It never notifies an actor about their own action.
// Failures are logged, not returned: a lost notification must not fail the
// star, fork or join that caused it.
func (s *NotificationService) Notify(ctx context.Context, recipientID, actorID string, typ model.NotificationType, resourceID, format string, args ...any) {
	if recipientID == "" || recipientID == actorID {
		return
	}

	actorName := "someone"
	if u, err := s.users.GetUserByID(ctx, actorID); err == nil {
		actorName = u.Username
	}

	n := &model.Notification{
		UserID:     recipientID,
		ActorID:    actorID,
		Type:       typ,
		Message:    actorName + " " + fmt.Sprintf(format, args...),
		ResourceID: resourceID,
	}
	if err := s.repo.Create(ctx, n); err != nil {
		s.logger.Error("failed to store notification",
			slog.String("recipient", recipientID),
			slog.String("type", string(typ)),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := s.publisher.Publish(ctx, userChannel(recipientID), "notification", resourceID, actorID, n); err != nil {
		s.logger.Warn("failed to publish notification",
			slog.String("recipient", recipientID),
			slog.String("error", err.Error()),
		)
	}
}

// userChannel matches realtime.UserChannel without importing it.
func userChannel(userID string) string { return "notifications:user:" + userID }

func snippetChannel(snippetID string) string { return "snippet:" + snippetID }

type NotificationList struct {
	Notifications []model.Notification `json:"notifications"`
	UnreadCount   int                  `json:"unreadCount"`
}

func (s *NotificationService) List(ctx context.Context, userID string, unreadOnly bool, page PageRequest) (*NotificationList, error) {
	page = page.normalize()

	items, err := s.repo.ListForUser(ctx, userID, unreadOnly, page.options())
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	unread, err := s.repo.CountUnread(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("counting unread notifications: %w", err)
	}
	return &NotificationList{
		Notifications: items,
		UnreadCount:   unread,
	}, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id string) error {
	return s.repo.MarkRead(ctx, id, userID)
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("marking notifications read: %w", err)
	}
	return n, nil
}
