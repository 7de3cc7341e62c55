// Package service holds the business workflows. Services load resources,
// ask the access package for a decision and then call the repositories.
// They never see HTTP; errors are *apperror.AppError values or wrapped
// repository errors.
package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/sakif/devspace/internal/access"
	"github.com/sakif/devspace/internal/apperror"
	"github.com/sakif/devspace/internal/model"
	"github.com/sakif/devspace/internal/repository"
)

const (
	MaxTitleLength       = 200
	MaxDescriptionLength = 2000
	MaxContentLength     = 100000 // ~100KB of code
	MaxFilePathLength    = 500
	MaxTags              = 20
	MaxTagLength         = 50

	DefaultPage      = 1
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// PageRequest is the page/limit pair every listing accepts.
type PageRequest struct {
	Page  int
	Limit int
}

// Pagination is echoed back with every listing.
type Pagination struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
}

// normalize applies the defaults (page 1, limit 20) and caps limit at 100.
func (p PageRequest) normalize() PageRequest {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = DefaultListLimit
	}
	if p.Limit > MaxListLimit {
		p.Limit = MaxListLimit
	}
	return p
}

func (p PageRequest) options() repository.ListOptions {
	return repository.ListOptions{Limit: p.Limit, Offset: (p.Page - 1) * p.Limit}
}

func (p PageRequest) pagination(total int) Pagination {
	return Pagination{Page: p.Page, Limit: p.Limit, Total: total}
}

// NormalizeTags lower-cases and trims each name, drops empties and
// duplicates, and keeps first-seen order.
func NormalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

func validateTags(tags []string) error {
	if len(tags) > MaxTags {
		return apperror.ValidationFailed("tags", fmt.Sprintf("at most %d tags are allowed", MaxTags))
	}
	for _, t := range tags {
		if len(t) > MaxTagLength {
			return apperror.ValidationFailed("tags",
				fmt.Sprintf("tag %q must be %d characters or less", t, MaxTagLength))
		}
	}
	return nil
}

func validateTitle(title string) error {
	if title == "" {
		return apperror.ValidationFailed("title", "title is required")
	}
	if len(title) > MaxTitleLength {
		return apperror.ValidationFailed("title",
			fmt.Sprintf("title must be %d characters or less", MaxTitleLength))
	}
	return nil
}

// resolver builds access.Resource values for an actor. Both the snippet and
// project services embed it.
type resolver struct {
	collaborators repository.CollaboratorRepository
}

func (r resolver) projectResource(ctx context.Context, actorID string, p *model.Project) (access.Resource, error) {
	role, err := r.collaborators.ProjectRole(ctx, p.ID, actorID)
	if err != nil {
		return access.Resource{}, err
	}
	return access.Resource{
		Kind:               "project",
		OwnerID:            p.OwnerID,
		IsPublic:           p.IsPublic,
		AllowCollaboration: p.IsCollaborative,
		ProjectRole:        role,
	}, nil
}

func (r resolver) snippetResource(ctx context.Context, actorID string, s *model.Snippet) (access.Resource, error) {
	role, err := r.collaborators.ProjectRole(ctx, s.ProjectID, actorID)
	if err != nil {
		return access.Resource{}, err
	}
	granted, err := r.collaborators.IsSnippetCollaborator(ctx, s.ID, actorID)
	if err != nil {
		return access.Resource{}, err
	}
	return access.Resource{
		Kind:                "snippet",
		OwnerID:             s.OwnerID,
		IsPublic:            s.IsPublic,
		AllowCollaboration:  s.AllowCollaboration,
		ProjectRole:         role,
		SnippetCollaborator: granted,
	}, nil
}
