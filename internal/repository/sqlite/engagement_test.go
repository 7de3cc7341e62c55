package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/devspace/internal/apperror"
	"github.com/sakif/devspace/internal/model"
	"github.com/sakif/devspace/internal/repository"
)

func TestToggleSnippetStar(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	snippet := createTestSnippet(t, db, createTestProject(t, db, alice, "A", true), "s", true)

	res, err := db.Stars().ToggleSnippetStar(ctx, bob.ID, snippet.ID)
	require.NoError(t, err)
	assert.Equal(t, &model.StarResult{IsStarred: true, StarCount: 1}, res)

	res, err = db.Stars().ToggleSnippetStar(ctx, alice.ID, snippet.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.StarCount)

	res, err = db.Stars().ToggleSnippetStar(ctx, bob.ID, snippet.ID)
	require.NoError(t, err)
	assert.Equal(t, &model.StarResult{IsStarred: false, StarCount: 1}, res)
}

// An even number of concurrent toggles by one user must leave no star.
func TestToggleStarConcurrent(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	project := createTestProject(t, db, alice, "A", true)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := db.Stars().ToggleProjectStar(ctx, alice.ID, project.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	got, err := db.Projects().GetByID(ctx, project.ID, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.StarCount)
	assert.False(t, got.IsStarred)
}

func TestProjectCollaborators(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	project := createTestProject(t, db, alice, "A", true)
	c := db.Collaborators()

	role, err := c.ProjectRole(ctx, project.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, model.Role(""), role)

	require.NoError(t, c.AddProjectCollaborator(ctx,
		&model.ProjectCollaborator{ProjectID: project.ID, UserID: bob.ID, Role: model.RoleViewer}))

	err = c.AddProjectCollaborator(ctx,
		&model.ProjectCollaborator{ProjectID: project.ID, UserID: bob.ID, Role: model.RoleEditor})
	assert.True(t, errors.Is(err, apperror.ErrConflict), "got %v", err)

	require.NoError(t, c.UpdateProjectCollaboratorRole(ctx, project.ID, bob.ID, model.RoleAdmin))
	role, err = c.ProjectRole(ctx, project.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RoleAdmin, role)

	list, err := c.ListProjectCollaborators(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "bob", list[0].User.Username)

	require.NoError(t, c.RemoveProjectCollaborator(ctx, project.ID, bob.ID))
	err = c.RemoveProjectCollaborator(ctx, project.ID, bob.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound))
}

func TestSnippetCollaborators(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	snippet := createTestSnippet(t, db, createTestProject(t, db, alice, "A", true), "s", true)
	c := db.Collaborators()

	ok, err := c.IsSnippetCollaborator(ctx, snippet.ID, bob.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.AddSnippetCollaborator(ctx,
		&model.SnippetCollaborator{SnippetID: snippet.ID, UserID: bob.ID, Role: model.RoleEditor}))
	err = c.AddSnippetCollaborator(ctx,
		&model.SnippetCollaborator{SnippetID: snippet.ID, UserID: bob.ID, Role: model.RoleEditor})
	assert.True(t, errors.Is(err, apperror.ErrConflict))

	ok, err = c.IsSnippetCollaborator(ctx, snippet.ID, bob.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	list, err := c.ListSnippetCollaborators(ctx, snippet.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, bob.ID, list[0].User.ID)
}

func TestNotifications(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	alice := createTestUser(t, db, "alice")
	bob := createTestUser(t, db, "bob")
	n := db.Notifications()

	for _, typ := range []model.NotificationType{model.NotificationStar, model.NotificationFork} {
		require.NoError(t, n.Create(ctx, &model.Notification{
			UserID: alice.ID, ActorID: bob.ID, Type: typ, Message: "bob did a thing",
		}))
	}

	count, err := n.CountUnread(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	list, err := n.ListForUser(ctx, alice.ID, false, repository.ListOptions{Limit: 10})
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, model.NotificationFork, list[0].Type, "newest first")

	require.NoError(t, n.MarkRead(ctx, list[0].ID, alice.ID))
	err = n.MarkRead(ctx, list[1].ID, bob.ID)
	assert.True(t, errors.Is(err, apperror.ErrNotFound), "cannot mark someone else's notification")

	unread, err := n.ListForUser(ctx, alice.ID, true, repository.ListOptions{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, unread, 1)

	changed, err := n.MarkAllRead(ctx, alice.ID)
	require.NoError(t, err)
	assert.EqualValues(t, 1, changed)

	count, err = n.CountUnread(ctx, alice.ID)
	require.NoError(t, err)
	assert.Zero(t, count)
}
