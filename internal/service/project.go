package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/sakif/devspace/internal/access"
	"github.com/sakif/devspace/internal/apperror"
	"github.com/sakif/devspace/internal/model"
	"github.com/sakif/devspace/internal/repository"
)

type ProjectService struct {
	resolver
	projects repository.ProjectRepository
	snippets repository.SnippetRepository
	users    repository.UserRepository
	stars    repository.StarRepository
	notifier *NotificationService
	logger   *slog.Logger
}

func NewProjectService(
	projects repository.ProjectRepository,
	snippets repository.SnippetRepository,
	users repository.UserRepository,
	collaborators repository.CollaboratorRepository,
	stars repository.StarRepository,
	notifier *NotificationService,
	logger *slog.Logger,
) *ProjectService {
	return &ProjectService{
		resolver: resolver{collaborators: collaborators},
		projects: projects,
		snippets: snippets,
		users:    users,
		stars:    stars,
		notifier: notifier,
		logger:   logger,
	}
}

type CreateProjectInput struct {
	Title           string
	Description     string
	IsPublic        bool
	IsCollaborative bool
	Tags            []string
}

// UpdateProjectInput leaves nil fields unchanged. Tags, when non-nil,
// replaces the whole set.
type UpdateProjectInput struct {
	Title           *string
	Description     *string
	IsPublic        *bool
	IsCollaborative *bool
	Tags            []string
}

func validateDescription(d string) error {
	if len(d) > MaxDescriptionLength {
		return apperror.ValidationFailed("description",
			fmt.Sprintf("description must be %d characters or less", MaxDescriptionLength))
	}
	return nil
}

func (s *ProjectService) Create(ctx context.Context, actorID string, in CreateProjectInput) (*model.Project, error) {
	title := strings.TrimSpace(in.Title)
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	if err := validateDescription(in.Description); err != nil {
		return nil, err
	}
	tags := NormalizeTags(in.Tags)
	if err := validateTags(tags); err != nil {
		return nil, err
	}

	p := &model.Project{
		OwnerID:         actorID,
		Title:           title,
		Description:     in.Description,
		IsPublic:        in.IsPublic,
		IsCollaborative: in.IsCollaborative,
		Kind:            model.ProjectKindStandard,
		Tags:            tags,
	}
	if err := s.projects.Create(ctx, p); err != nil {
		s.logger.Error("failed to create project", slog.String("owner", actorID), slog.String("error", err.Error()))
		return nil, fmt.Errorf("creating project: %w", err)
	}

	s.logger.Info("project created", slog.String("id", p.ID), slog.String("owner", actorID))
	return p, nil
}

// load fetches a project and checks capability c for actorID.
func (s *ProjectService) load(ctx context.Context, actorID, id string, c access.Capability) (*model.Project, access.Resource, error) {
	p, err := s.projects.GetByID(ctx, id, actorID)
	if err != nil {
		return nil, access.Resource{}, err
	}
	res, err := s.projectResource(ctx, actorID, p)
	if err != nil {
		return nil, access.Resource{}, fmt.Errorf("resolving project access: %w", err)
	}
	if err := access.Check(actorID, res, c); err != nil {
		return nil, access.Resource{}, err
	}
	return p, res, nil
}

func (s *ProjectService) Get(ctx context.Context, actorID, id string) (*model.Project, error) {
	p, _, err := s.load(ctx, actorID, id, access.Read)
	return p, err
}

func (s *ProjectService) Update(ctx context.Context, actorID, id string, in UpdateProjectInput) (*model.Project, error) {
	p, _, err := s.load(ctx, actorID, id, access.Edit)
	if err != nil {
		return nil, err
	}

	var tags []string
	if in.Tags != nil {
		tags = NormalizeTags(in.Tags)
		if err := validateTags(tags); err != nil {
			return nil, err
		}
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if err := validateTitle(title); err != nil {
			return nil, err
		}
		p.Title = title
	}
	if in.Description != nil {
		if err := validateDescription(*in.Description); err != nil {
			return nil, err
		}
		p.Description = *in.Description
	}
	if in.IsPublic != nil {
		p.IsPublic = *in.IsPublic
	}
	if in.IsCollaborative != nil {
		p.IsCollaborative = *in.IsCollaborative
	}

	if err := s.projects.Update(ctx, p); err != nil {
		return nil, fmt.Errorf("updating project: %w", err)
	}
	if in.Tags != nil {
		if err := s.projects.SetTags(ctx, p.ID, tags); err != nil {
			return nil, fmt.Errorf("updating project tags: %w", err)
		}
	}

	return s.projects.GetByID(ctx, p.ID, actorID)
}

// Delete removes the project and, through cascading keys, its snippets,
// collaborators and stars.
func (s *ProjectService) Delete(ctx context.Context, actorID, id string) error {
	if _, _, err := s.load(ctx, actorID, id, access.Delete); err != nil {
		return err
	}
	if err := s.projects.Delete(ctx, id); err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	s.logger.Info("project deleted", slog.String("id", id), slog.String("by", actorID))
	return nil
}

// List returns the projects the actor owns or collaborates on.
func (s *ProjectService) List(ctx context.Context, actorID string, page PageRequest) ([]model.Project, Pagination, error) {
	page = page.normalize()
	items, total, err := s.projects.ListForUser(ctx, actorID, page.options())
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("listing projects: %w", err)
	}
	return items, page.pagination(total), nil
}

func (s *ProjectService) ToggleStar(ctx context.Context, actorID, id string) (*model.StarResult, error) {
	p, _, err := s.load(ctx, actorID, id, access.Read)
	if err != nil {
		return nil, err
	}
	res, err := s.stars.ToggleProjectStar(ctx, actorID, id)
	if err != nil {
		return nil, fmt.Errorf("toggling project star: %w", err)
	}
	if res.IsStarred {
		s.notifier.Notify(ctx, p.OwnerID, actorID, model.NotificationStar, p.ID,
			"starred your project %q", p.Title)
	}
	return res, nil
}

// Fork copies the project and every snippet of it the actor can read into a
// new private project owned by the actor.
func (s *ProjectService) Fork(ctx context.Context, actorID, id string) (*model.Project, error) {
	src, _, err := s.load(ctx, actorID, id, access.Read)
	if err != nil {
		return nil, err
	}

	fork := &model.Project{
		OwnerID:             actorID,
		Title:               forkTitle(src.Title),
		Description:         src.Description,
		Kind:                model.ProjectKindStandard,
		ForkedFromProjectID: &src.ID,
		Tags:                src.Tags,
	}

	snippets, _, err := s.snippets.List(ctx, repository.SnippetFilter{
		Scope:     repository.ScopeProject,
		ViewerID:  actorID,
		ProjectID: src.ID,
	})
	if err != nil {
		return nil, fmt.Errorf("listing snippets to fork: %w", err)
	}
	copies := make([]*model.Snippet, len(snippets))
	for i := range snippets {
		copies[i] = copySnippet(&snippets[i], "") // project id set on insert
		copies[i].Title = snippets[i].Title
	}
	if err := s.projects.CreateWithSnippets(ctx, fork, copies); err != nil {
		return nil, fmt.Errorf("creating project fork: %w", err)
	}

	s.logger.Info("project forked",
		slog.String("source", src.ID),
		slog.String("fork", fork.ID),
		slog.Int("snippets", len(snippets)),
	)
	s.notifier.Notify(ctx, src.OwnerID, actorID, model.NotificationFork, fork.ID,
		"forked your project %q", src.Title)

	return s.projects.GetByID(ctx, fork.ID, actorID)
}

func (s *ProjectService) Collaborators(ctx context.Context, actorID, id string) ([]model.ProjectCollaborator, error) {
	if _, _, err := s.load(ctx, actorID, id, access.Read); err != nil {
		return nil, err
	}
	return s.collaborators.ListProjectCollaborators(ctx, id)
}

// AddCollaborator adds username to the project. role defaults to viewer.
func (s *ProjectService) AddCollaborator(ctx context.Context, actorID, projectID, username, role string) (*model.ProjectCollaborator, error) {
	r, err := model.ParseRole(role, model.RoleViewer)
	if err != nil {
		return nil, apperror.ValidationFailed("role", "role must be one of viewer, editor, admin")
	}
	p, _, err := s.load(ctx, actorID, projectID, access.ManageCollaborators)
	if err != nil {
		return nil, err
	}

	target, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if target.ID == p.OwnerID {
		return nil, apperror.AlreadyExists("the owner is already a member of this project")
	}

	c := &model.ProjectCollaborator{ProjectID: p.ID, UserID: target.ID, Role: r}
	if err := s.collaborators.AddProjectCollaborator(ctx, c); err != nil {
		if errors.Is(err, apperror.ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("adding collaborator: %w", err)
	}
	c.User = model.UserSummary{ID: target.ID, Username: target.Username, AvatarURL: target.AvatarURL}

	s.logger.Info("collaborator added",
		slog.String("project", p.ID),
		slog.String("user", target.ID),
		slog.String("role", string(r)),
	)
	s.notifier.Notify(ctx, target.ID, actorID, model.NotificationCollaborationInvite, p.ID,
		"added you to project %q as %s", p.Title, r)
	return c, nil
}

func (s *ProjectService) UpdateCollaboratorRole(ctx context.Context, actorID, projectID, userID, role string) error {
	r, err := model.ParseRole(role, "")
	if err != nil || r == "" {
		return apperror.ValidationFailed("role", "role must be one of viewer, editor, admin")
	}
	if _, _, err := s.load(ctx, actorID, projectID, access.ManageCollaborators); err != nil {
		return err
	}
	return s.collaborators.UpdateProjectCollaboratorRole(ctx, projectID, userID, r)
}

// RemoveCollaborator needs ManageCollaborators unless actors remove
// themselves. Self-removal only needs the project to exist.
func (s *ProjectService) RemoveCollaborator(ctx context.Context, actorID, projectID, userID string) error {
	capability := access.ManageCollaborators
	if actorID == userID {
		capability = access.Read
	}
	if _, _, err := s.load(ctx, actorID, projectID, capability); err != nil {
		return err
	}
	if err := s.collaborators.RemoveProjectCollaborator(ctx, projectID, userID); err != nil {
		return err
	}
	s.logger.Info("collaborator removed", slog.String("project", projectID), slog.String("user", userID))
	return nil
}

const forkSuffix = " (Fork)"

// forkTitle appends the fork suffix, shortening title on a rune boundary so
// the result stays within MaxTitleLength and always keeps the suffix.
func forkTitle(title string) string {
	if limit := MaxTitleLength - len(forkSuffix); len(title) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(title[cut]) {
			cut--
		}
		title = title[:cut]
	}
	return title + forkSuffix
}

// copySnippet returns a private, non-collaborative copy of src placed in
// projectID with lineage pointing back at src.
func copySnippet(src *model.Snippet, projectID string) *model.Snippet {
	srcID, srcProject := src.ID, src.ProjectID
	return &model.Snippet{
		ProjectID:           projectID,
		Title:               forkTitle(src.Title),
		Content:             src.Content,
		Language:            src.Language,
		FilePath:            src.FilePath,
		ForkedFromSnippetID: &srcID,
		ForkedFromProjectID: &srcProject,
		Tags:                append([]string(nil), src.Tags...),
	}
}
