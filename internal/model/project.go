package model

import "time"

// ProjectKind distinguishes ordinary projects from the two containers the
// app creates on a user's behalf.
type ProjectKind string

const (
	ProjectKindStandard ProjectKind = "standard"
	// ProjectKindDefault holds snippets created without an explicit project.
	ProjectKindDefault ProjectKind = "default"
	// ProjectKindForks holds the user's forked snippets.
	ProjectKindForks ProjectKind = "forks"
)

// Titles used for the auto-created containers.
const (
	DefaultProjectTitle = "My Snippets"
	ForksProjectTitle   = "Forked Snippets"
)

// Project is a container of snippets owned by exactly one user.
type Project struct {
	ID                  string      `json:"id"`
	OwnerID             string      `json:"ownerId"`
	Title               string      `json:"title"`
	Description         string      `json:"description"`
	IsPublic            bool        `json:"isPublic"`
	IsCollaborative     bool        `json:"isCollaborative"`
	Kind                ProjectKind `json:"kind"`
	ForkedFromProjectID *string     `json:"forkedFromProject,omitempty"`
	Tags                []string    `json:"tags"`
	CreatedAt           time.Time   `json:"createdAt"`
	UpdatedAt           time.Time   `json:"updatedAt"`

	// Computed at read time, never stored.
	StarCount    int  `json:"starCount"`
	SnippetCount int  `json:"snippetCount"`
	IsStarred    bool `json:"isStarred"`
}
