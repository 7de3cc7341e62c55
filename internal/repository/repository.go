// Package repository declares the storage interfaces the service layer
// depends on. The only implementation lives in repository/sqlite; services
// never import it directly.
package repository

import (
	"context"

	"github.com/sakif/devspace/internal/model"
)

type ListOptions struct {
	Limit  int
	Offset int
}

// SnippetScope selects which listing a SnippetFilter describes.
type SnippetScope string

const (
	ScopePublic        SnippetScope = "public"
	ScopeCollaborative SnippetScope = "collaborative"
	ScopeOwned         SnippetScope = "owned"
	ScopeStarred       SnippetScope = "starred"
	ScopeForked        SnippetScope = "forked"
	ScopeProject       SnippetScope = "project"
)

// SnippetFilter drives every snippet listing. ViewerID is the caller ("" for
// anonymous); it decides IsStarred, the owned/starred/forked scopes and which
// private snippets of a project are visible.
type SnippetFilter struct {
	Scope     SnippetScope
	ViewerID  string
	ProjectID string // ScopeProject only
	Language  string // exact match, optional
	Search    string // case-insensitive substring of title or content, optional
	ListOptions
}

type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetByUsername(ctx context.Context, username string) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetByGitHubID(ctx context.Context, githubID int64) (*model.User, error)
	Update(ctx context.Context, user *model.User) error
	UpdatePassword(ctx context.Context, id, hash string) error
}

type ProjectRepository interface {
	Create(ctx context.Context, project *model.Project) error
	// CreateWithSnippets creates project and the snippets inside it
	// atomically; each snippet's ProjectID is set to the new project.
	CreateWithSnippets(ctx context.Context, project *model.Project, snippets []*model.Snippet) error
	GetByID(ctx context.Context, id, viewerID string) (*model.Project, error)
	Update(ctx context.Context, project *model.Project) error
	Delete(ctx context.Context, id string) error
	// ListForUser returns projects the user owns or collaborates on.
	ListForUser(ctx context.Context, userID string, opts ListOptions) ([]model.Project, int, error)
	// EnsureSystemProject returns the owner's project of the given kind,
	// creating it on first use. Safe under concurrent calls.
	EnsureSystemProject(ctx context.Context, ownerID string, kind model.ProjectKind, title string) (*model.Project, error)
	SetTags(ctx context.Context, projectID string, tags []string) error
}

type SnippetRepository interface {
	Create(ctx context.Context, snippet *model.Snippet) error
	GetByID(ctx context.Context, id, viewerID string) (*model.Snippet, error)
	List(ctx context.Context, filter SnippetFilter) ([]model.Snippet, int, error)
	Update(ctx context.Context, snippet *model.Snippet) error
	Delete(ctx context.Context, id string) error
	// SetTags replaces the snippet's whole tag set.
	SetTags(ctx context.Context, snippetID string, tags []string) error
}

type CollaboratorRepository interface {
	// AddProjectCollaborator fails with apperror.ErrConflict when the user is
	// already a collaborator of the project.
	AddProjectCollaborator(ctx context.Context, c *model.ProjectCollaborator) error
	// ProjectRole returns "" when the user is not a collaborator.
	ProjectRole(ctx context.Context, projectID, userID string) (model.Role, error)
	ListProjectCollaborators(ctx context.Context, projectID string) ([]model.ProjectCollaborator, error)
	UpdateProjectCollaboratorRole(ctx context.Context, projectID, userID string, role model.Role) error
	RemoveProjectCollaborator(ctx context.Context, projectID, userID string) error

	AddSnippetCollaborator(ctx context.Context, c *model.SnippetCollaborator) error
	IsSnippetCollaborator(ctx context.Context, snippetID, userID string) (bool, error)
	ListSnippetCollaborators(ctx context.Context, snippetID string) ([]model.SnippetCollaborator, error)
}

type StarRepository interface {
	ToggleSnippetStar(ctx context.Context, userID, snippetID string) (*model.StarResult, error)
	ToggleProjectStar(ctx context.Context, userID, projectID string) (*model.StarResult, error)
}

type NotificationRepository interface {
	Create(ctx context.Context, n *model.Notification) error
	ListForUser(ctx context.Context, userID string, unreadOnly bool, opts ListOptions) ([]model.Notification, error)
	CountUnread(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
}
