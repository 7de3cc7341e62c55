package model

import "time"

// Snippet is a single unit of code belonging to exactly one project.
//
// ForkedFromSnippetID / ForkedFromProjectID record fork lineage. A fork always
// gets a fresh ID and points at a snippet that already existed, so lineage
// forms a DAG and can never loop back onto itself.
type Snippet struct {
	ID                  string    `json:"id"`
	ProjectID           string    `json:"projectId"`
	Title               string    `json:"title"`
	Content             string    `json:"content"`
	Language            string    `json:"language"`
	FilePath            string    `json:"filePath"`
	IsPublic            bool      `json:"isPublic"`
	AllowCollaboration  bool      `json:"allowCollaboration"`
	ForkedFromSnippetID *string   `json:"forkedFromSnippet,omitempty"`
	ForkedFromProjectID *string   `json:"forkedFromProject,omitempty"`
	Tags                []string  `json:"tags"`
	CreatedAt           time.Time `json:"createdAt"`
	UpdatedAt           time.Time `json:"updatedAt"`

	// Joined from the parent project.
	OwnerID string `json:"ownerId"`

	// Computed at read time, never stored.
	StarCount int  `json:"starCount"`
	ForkCount int  `json:"forkCount"`
	IsStarred bool `json:"isStarred"`
}
