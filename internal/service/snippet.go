package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/devspace/internal/access"
	"github.com/sakif/devspace/internal/apperror"
	"github.com/sakif/devspace/internal/executor"
	"github.com/sakif/devspace/internal/model"
	"github.com/sakif/devspace/internal/repository"
)

const MaxLanguageLength = 50

type SnippetService struct {
	resolver
	snippets  repository.SnippetRepository
	projects  repository.ProjectRepository
	users     repository.UserRepository
	stars     repository.StarRepository
	projectSv *ProjectService
	notifier  *NotificationService
	publisher EventPublisher
	executor  executor.Executor
	logger    *slog.Logger
}

// NewSnippetService wires the snippet workflows. exec and publisher may be
// nil: running code then reports Unavailable and live events are dropped.
func NewSnippetService(
	snippets repository.SnippetRepository,
	projects repository.ProjectRepository,
	users repository.UserRepository,
	collaborators repository.CollaboratorRepository,
	stars repository.StarRepository,
	projectSv *ProjectService,
	notifier *NotificationService,
	publisher EventPublisher,
	exec executor.Executor,
	logger *slog.Logger,
) *SnippetService {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &SnippetService{
		resolver:  resolver{collaborators: collaborators},
		snippets:  snippets,
		projects:  projects,
		users:     users,
		stars:     stars,
		projectSv: projectSv,
		notifier:  notifier,
		publisher: publisher,
		executor:  exec,
		logger:    logger,
	}
}

type CreateSnippetInput struct {
	ProjectID          string // empty: the actor's default project
	Title              string
	Content            string
	Language           string
	FilePath           string
	IsPublic           bool
	AllowCollaboration bool
	Tags               []string
}

// UpdateSnippetInput leaves nil fields unchanged. Tags, when non-nil,
// replaces the whole set.
type UpdateSnippetInput struct {
	Title              *string
	Content            *string
	Language           *string
	FilePath           *string
	IsPublic           *bool
	AllowCollaboration *bool
	Tags               []string
}

// ListQuery holds the optional listing filters.
type ListQuery struct {
	Language string
	Search   string
	PageRequest
}

// SnippetCollaborators is the combined view of both grant kinds.
type SnippetCollaborators struct {
	ProjectCollaborators []model.ProjectCollaborator `json:"projectCollaborators"`
	SnippetCollaborators []model.SnippetCollaborator `json:"snippetCollaborators"`
}

func validateContent(content string) error {
	if len(content) > MaxContentLength {
		return apperror.ValidationFailed("content",
			fmt.Sprintf("content must be %d characters or less", MaxContentLength))
	}
	return nil
}

func validateLanguage(lang string) error {
	if lang == "" {
		return apperror.ValidationFailed("language", "language is required")
	}
	if len(lang) > MaxLanguageLength {
		return apperror.ValidationFailed("language",
			fmt.Sprintf("language must be %d characters or less", MaxLanguageLength))
	}
	return nil
}

func validateFilePath(p string) error {
	if len(p) > MaxFilePathLength {
		return apperror.ValidationFailed("filePath",
			fmt.Sprintf("filePath must be %d characters or less", MaxFilePathLength))
	}
	return nil
}

func (s *SnippetService) Create(ctx context.Context, actorID string, in CreateSnippetInput) (*model.Snippet, error) {
	title := strings.TrimSpace(in.Title)
	language := strings.ToLower(strings.TrimSpace(in.Language))
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	if err := validateLanguage(language); err != nil {
		return nil, err
	}
	if err := validateContent(in.Content); err != nil {
		return nil, err
	}
	if err := validateFilePath(in.FilePath); err != nil {
		return nil, err
	}
	tags := NormalizeTags(in.Tags)
	if err := validateTags(tags); err != nil {
		return nil, err
	}

	projectID, err := s.targetProject(ctx, actorID, in.ProjectID)
	if err != nil {
		return nil, err
	}

	snippet := &model.Snippet{
		ProjectID:          projectID,
		Title:              title,
		Content:            in.Content,
		Language:           language,
		FilePath:           in.FilePath,
		IsPublic:           in.IsPublic,
		AllowCollaboration: in.AllowCollaboration,
		Tags:               tags,
	}
	if err := s.snippets.Create(ctx, snippet); err != nil {
		s.logger.Error("failed to create snippet", slog.String("project", projectID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("creating snippet: %w", err)
	}

	s.logger.Info("snippet created",
		slog.String("id", snippet.ID),
		slog.String("project", projectID),
		slog.String("language", language),
	)
	return s.snippets.GetByID(ctx, snippet.ID, actorID)
}

// targetProject resolves where a new snippet goes: the requested project
// (the actor must be able to edit it) or the actor's default project.
func (s *SnippetService) targetProject(ctx context.Context, actorID, projectID string) (string, error) {
	if projectID == "" {
		p, err := s.projects.EnsureSystemProject(ctx, actorID, model.ProjectKindDefault, model.DefaultProjectTitle)
		if err != nil {
			return "", fmt.Errorf("ensuring default project: %w", err)
		}
		return p.ID, nil
	}

	p, err := s.projects.GetByID(ctx, projectID, actorID)
	if err != nil {
		return "", err
	}
	res, err := s.projectResource(ctx, actorID, p)
	if err != nil {
		return "", fmt.Errorf("resolving project access: %w", err)
	}
	if err := access.Check(actorID, res, access.Edit); err != nil {
		return "", err
	}
	return p.ID, nil
}

// load fetches a snippet (NotFound first) and then checks c.
func (s *SnippetService) load(ctx context.Context, actorID, id string, c access.Capability) (*model.Snippet, access.Resource, error) {
	snippet, err := s.snippets.GetByID(ctx, id, actorID)
	if err != nil {
		return nil, access.Resource{}, err
	}
	res, err := s.snippetResource(ctx, actorID, snippet)
	if err != nil {
		return nil, access.Resource{}, fmt.Errorf("resolving snippet access: %w", err)
	}
	if err := access.Check(actorID, res, c); err != nil {
		return nil, access.Resource{}, err
	}
	return snippet, res, nil
}

func (s *SnippetService) Get(ctx context.Context, actorID, id string) (*model.Snippet, error) {
	snippet, _, err := s.load(ctx, actorID, id, access.Read)
	return snippet, err
}

// Authorize is used by the live-editing socket: it requires Read and
// reports whether the actor may also push content.
func (s *SnippetService) Authorize(ctx context.Context, actorID, id string) (*model.Snippet, bool, error) {
	snippet, res, err := s.load(ctx, actorID, id, access.Read)
	if err != nil {
		return nil, false, err
	}
	return snippet, access.Allowed(actorID, res, access.Contribute), nil
}

// Update applies in. Owners and project editors may change anything;
// snippet-level collaborators may change the code fields but not visibility
// or collaboration settings.
func (s *SnippetService) Update(ctx context.Context, actorID, id string, in UpdateSnippetInput) (*model.Snippet, error) {
	snippet, res, err := s.load(ctx, actorID, id, access.Contribute)
	if err != nil {
		return nil, err
	}
	if (in.IsPublic != nil || in.AllowCollaboration != nil) && !access.Allowed(actorID, res, access.Edit) {
		return nil, apperror.Forbidden("only the owner or a project editor can change visibility or collaboration settings")
	}

	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if err := validateTitle(title); err != nil {
			return nil, err
		}
		snippet.Title = title
	}
	if in.Content != nil {
		if err := validateContent(*in.Content); err != nil {
			return nil, err
		}
		snippet.Content = *in.Content
	}
	if in.Language != nil {
		lang := strings.ToLower(strings.TrimSpace(*in.Language))
		if err := validateLanguage(lang); err != nil {
			return nil, err
		}
		snippet.Language = lang
	}
	if in.FilePath != nil {
		if err := validateFilePath(*in.FilePath); err != nil {
			return nil, err
		}
		snippet.FilePath = *in.FilePath
	}
	if in.IsPublic != nil {
		snippet.IsPublic = *in.IsPublic
	}
	if in.AllowCollaboration != nil {
		snippet.AllowCollaboration = *in.AllowCollaboration
	}
	var tags []string
	if in.Tags != nil {
		tags = NormalizeTags(in.Tags)
		if err := validateTags(tags); err != nil {
			return nil, err
		}
	}

	if err := s.snippets.Update(ctx, snippet); err != nil {
		return nil, fmt.Errorf("updating snippet: %w", err)
	}
	if in.Tags != nil {
		if err := s.snippets.SetTags(ctx, snippet.ID, tags); err != nil {
			return nil, fmt.Errorf("updating snippet tags: %w", err)
		}
	}

	updated, err := s.snippets.GetByID(ctx, snippet.ID, actorID)
	if err != nil {
		return nil, err
	}

	if err := s.publisher.Publish(ctx, snippetChannel(updated.ID), "content", updated.ID, actorID, map[string]any{
		"title":     updated.Title,
		"content":   updated.Content,
		"language":  updated.Language,
		"updatedAt": updated.UpdatedAt,
	}); err != nil {
		s.logger.Warn("failed to publish snippet update", slog.String("id", updated.ID), slog.String("error", err.Error()))
	}
	s.notifier.Notify(ctx, updated.OwnerID, actorID, model.NotificationEdit, updated.ID,
		"edited your snippet %q", updated.Title)

	return updated, nil
}

func (s *SnippetService) Delete(ctx context.Context, actorID, id string) error {
	if _, _, err := s.load(ctx, actorID, id, access.Delete); err != nil {
		return err
	}
	if err := s.snippets.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting snippet: %w", err)
	}
	s.logger.Info("snippet deleted", slog.String("id", id), slog.String("by", actorID))
	return nil
}

// List serves every snippet listing. owned, starred and forked need an
// actor; project needs Read on the project and only yields snippets the
// actor can read.
func (s *SnippetService) List(ctx context.Context, actorID string, scope repository.SnippetScope, projectID string, q ListQuery) ([]model.Snippet, Pagination, error) {
	switch scope {
	case repository.ScopePublic, repository.ScopeCollaborative:
	case repository.ScopeOwned, repository.ScopeStarred, repository.ScopeForked:
		if actorID == "" {
			return nil, Pagination{}, apperror.Unauthorized("authentication required", "")
		}
	case repository.ScopeProject:
		p, err := s.projects.GetByID(ctx, projectID, actorID)
		if err != nil {
			return nil, Pagination{}, err
		}
		res, err := s.projectResource(ctx, actorID, p)
		if err != nil {
			return nil, Pagination{}, fmt.Errorf("resolving project access: %w", err)
		}
		if err := access.Check(actorID, res, access.Read); err != nil {
			return nil, Pagination{}, err
		}
	default:
		return nil, Pagination{}, apperror.ValidationFailed("scope", fmt.Sprintf("unknown listing %q", scope))
	}

	page := q.PageRequest.normalize()
	items, total, err := s.snippets.List(ctx, repository.SnippetFilter{
		Scope:       scope,
		ViewerID:    actorID,
		ProjectID:   projectID,
		Language:    strings.ToLower(strings.TrimSpace(q.Language)),
		Search:      strings.TrimSpace(q.Search),
		ListOptions: page.options(),
	})
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("listing %s snippets: %w", scope, err)
	}
	return items, page.pagination(total), nil
}

func (s *SnippetService) ToggleStar(ctx context.Context, actorID, id string) (*model.StarResult, error) {
	snippet, _, err := s.load(ctx, actorID, id, access.Read)
	if err != nil {
		return nil, err
	}
	res, err := s.stars.ToggleSnippetStar(ctx, actorID, id)
	if err != nil {
		return nil, fmt.Errorf("toggling snippet star: %w", err)
	}
	if res.IsStarred {
		s.notifier.Notify(ctx, snippet.OwnerID, actorID, model.NotificationStar, snippet.ID,
			"starred your snippet %q", snippet.Title)
	}
	return res, nil
}

// Fork copies a readable snippet into the actor's "Forked Snippets" project.
// The copy is private and closed to collaboration; the source is untouched.
func (s *SnippetService) Fork(ctx context.Context, actorID, id string) (*model.Snippet, error) {
	src, _, err := s.load(ctx, actorID, id, access.Read)
	if err != nil {
		return nil, err
	}

	forks, err := s.projects.EnsureSystemProject(ctx, actorID, model.ProjectKindForks, model.ForksProjectTitle)
	if err != nil {
		return nil, fmt.Errorf("ensuring forks project: %w", err)
	}

	fork := copySnippet(src, forks.ID)
	if err := s.snippets.Create(ctx, fork); err != nil {
		return nil, fmt.Errorf("creating fork: %w", err)
	}

	s.logger.Info("snippet forked", slog.String("source", src.ID), slog.String("fork", fork.ID), slog.String("by", actorID))
	s.notifier.Notify(ctx, src.OwnerID, actorID, model.NotificationFork, fork.ID,
		"forked your snippet %q", src.Title)

	return s.snippets.GetByID(ctx, fork.ID, actorID)
}

func (s *SnippetService) Collaborators(ctx context.Context, actorID, id string) (*SnippetCollaborators, error) {
	snippet, _, err := s.load(ctx, actorID, id, access.Read)
	if err != nil {
		return nil, err
	}
	pc, err := s.collaborators.ListProjectCollaborators(ctx, snippet.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("listing project collaborators: %w", err)
	}
	sc, err := s.collaborators.ListSnippetCollaborators(ctx, snippet.ID)
	if err != nil {
		return nil, fmt.Errorf("listing snippet collaborators: %w", err)
	}
	return &SnippetCollaborators{ProjectCollaborators: pc, SnippetCollaborators: sc}, nil
}

// AddCollaborator is the snippet-page entry point. Naming oneself is a
// self-service join; naming anyone else is an owner-add on the snippet's
// project.
func (s *SnippetService) AddCollaborator(ctx context.Context, actorID, id, username, role string) (*model.ProjectCollaborator, error) {
	snippet, err := s.snippets.GetByID(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	actor, err := s.users.GetUserByID(ctx, actorID)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(strings.TrimSpace(username), actor.Username) {
		return s.JoinProject(ctx, actorID, id, username)
	}
	return s.projectSv.AddCollaborator(ctx, actorID, snippet.ProjectID, username, role)
}

// JoinProject lets actors add themselves as editor of the project behind a
// public, collaboration-enabled snippet. username must be the actor's own.
func (s *SnippetService) JoinProject(ctx context.Context, actorID, id, username string) (*model.ProjectCollaborator, error) {
	snippet, err := s.snippets.GetByID(ctx, id, actorID)
	if err != nil {
		return nil, err
	}

	target, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if target.ID != actorID {
		return nil, apperror.Forbidden("you can only add yourself as a collaborator")
	}

	res, err := s.snippetResource(ctx, actorID, snippet)
	if err != nil {
		return nil, fmt.Errorf("resolving snippet access: %w", err)
	}
	if err := access.Check(actorID, res, access.SelfJoin); err != nil {
		return nil, err
	}

	c := &model.ProjectCollaborator{ProjectID: snippet.ProjectID, UserID: actorID, Role: model.RoleEditor}
	if err := s.collaborators.AddProjectCollaborator(ctx, c); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("joining project: %w", err)
	}
	c.User = model.UserSummary{ID: target.ID, Username: target.Username, AvatarURL: target.AvatarURL}

	s.logger.Info("user joined project", slog.String("project", snippet.ProjectID), slog.String("user", actorID))
	s.notifier.Notify(ctx, snippet.OwnerID, actorID, model.NotificationCollaborationInvite, snippet.ID,
		"joined your project as a collaborator via %q", snippet.Title)
	return c, nil
}

// RemoveCollaborator removes a project collaborator from the snippet's
// project.
func (s *SnippetService) RemoveCollaborator(ctx context.Context, actorID, id, userID string) error {
	snippet, err := s.snippets.GetByID(ctx, id, actorID)
	if err != nil {
		return err
	}
	if userID == "" {
		return apperror.ValidationFailed("userId", "userId is required")
	}
	return s.projectSv.RemoveCollaborator(ctx, actorID, snippet.ProjectID, userID)
}

// RequestCollaboration grants the actor editor rights on this snippet only.
// Requests are approved automatically when the snippet allows collaboration.
func (s *SnippetService) RequestCollaboration(ctx context.Context, actorID, id string) (*model.SnippetCollaborator, error) {
	snippet, err := s.snippets.GetByID(ctx, id, actorID)
	if err != nil {
		return nil, err
	}
	res, err := s.snippetResource(ctx, actorID, snippet)
	if err != nil {
		return nil, fmt.Errorf("resolving snippet access: %w", err)
	}
	if err := access.Check(actorID, res, access.RequestCollaboration); err != nil {
		return nil, err
	}

	c := &model.SnippetCollaborator{SnippetID: snippet.ID, UserID: actorID, Role: model.RoleEditor}
	if err := s.collaborators.AddSnippetCollaborator(ctx, c); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("granting snippet collaboration: %w", err)
	}

	s.logger.Info("snippet collaboration granted", slog.String("snippet", snippet.ID), slog.String("user", actorID))
	s.notifier.Notify(ctx, snippet.OwnerID, actorID, model.NotificationCollaborationInvite, snippet.ID,
		"is now collaborating on your snippet %q", snippet.Title)
	return c, nil
}

// Run executes the snippet's content in the sandbox.
func (s *SnippetService) Run(ctx context.Context, actorID, id string) (*executor.ExecutionResult, error) {
	snippet, _, err := s.load(ctx, actorID, id, access.Read)
	if err != nil {
		return nil, err
	}
	if s.executor == nil {
		return nil, apperror.Unavailable("code execution is not enabled on this server")
	}
	if !s.executor.Supports(snippet.Language) {
		return nil, apperror.ValidationFailed("language",
			fmt.Sprintf("running %s code is not supported", snippet.Language))
	}

	result, err := s.executor.Execute(ctx, executor.ExecutionRequest{
		Language: snippet.Language,
		Code:     snippet.Content,
	})
	if errors.Is(err, executor.ErrUnsupportedLanguage) {
		return nil, apperror.ValidationFailed("language", err.Error())
	}
	if err != nil {
		s.logger.Error("failed to execute snippet", slog.String("id", snippet.ID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("executing snippet: %w", err)
	}

	s.logger.Info("snippet executed",
		slog.String("id", snippet.ID),
		slog.String("language", snippet.Language),
		slog.Int("exitCode", result.ExitCode),
		slog.Duration("duration", result.Duration),
	)
	return result, nil
}
