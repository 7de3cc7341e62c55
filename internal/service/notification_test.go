package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/devspace/internal/apperror"
	"github.com/sakif/devspace/internal/model"
)

func TestNotifySkipsSelf(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")

	env.notifications.Notify(ctx, alice.ID, alice.ID, model.NotificationStar, "x", "starred %q", "x")
	env.notifications.Notify(ctx, "", alice.ID, model.NotificationStar, "x", "starred %q", "x")

	list, err := env.notifications.List(ctx, alice.ID, false, PageRequest{})
	require.NoError(t, err)
	assert.Empty(t, list.Notifications)
	assert.Empty(t, env.publisher.onChannel("notifications:user:"+alice.ID))
}

func TestNotificationLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.register(t, "alice")
	bob := env.register(t, "bob")

	env.notifications.Notify(ctx, alice.ID, bob.ID, model.NotificationStar, "s1", "starred your snippet %q", "one")
	env.notifications.Notify(ctx, alice.ID, bob.ID, model.NotificationFork, "s2", "forked your snippet %q", "two")

	events := env.publisher.onChannel("notifications:user:" + alice.ID)
	require.Len(t, events, 2)
	assert.Equal(t, "notification", events[0].EventType)
	assert.Equal(t, bob.ID, events[0].Actor)

	list, err := env.notifications.List(ctx, alice.ID, false, PageRequest{})
	require.NoError(t, err)
	require.Len(t, list.Notifications, 2)
	assert.Equal(t, 2, list.UnreadCount)
	assert.Equal(t, `bob forked your snippet "two"`, list.Notifications[0].Message)

	// Bob cannot mark Alice's notifications.
	err = env.notifications.MarkRead(ctx, bob.ID, list.Notifications[0].ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)

	require.NoError(t, env.notifications.MarkRead(ctx, alice.ID, list.Notifications[0].ID))
	unread, err := env.notifications.List(ctx, alice.ID, true, PageRequest{})
	require.NoError(t, err)
	require.Len(t, unread.Notifications, 1)
	assert.Equal(t, 1, unread.UnreadCount)

	n, err := env.notifications.MarkAllRead(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	unread, err = env.notifications.List(ctx, alice.ID, true, PageRequest{})
	require.NoError(t, err)
	assert.Empty(t, unread.Notifications)
	assert.Zero(t, unread.UnreadCount)
}
