package model

import (
	"fmt"
	"time"
)

// Role is a project collaborator's role. It is a closed set: use ParseRole
// to turn untrusted input into a Role.
type Role string

const (
	RoleViewer Role = "viewer"
	RoleEditor Role = "editor"
	RoleAdmin  Role = "admin"
)

// rank orders roles so capability checks can compare with >=.
func (r Role) rank() int {
	switch r {
	case RoleViewer:
		return 1
	case RoleEditor:
		return 2
	case RoleAdmin:
		return 3
	default:
		return 0
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool { return r.rank() > 0 }

// AtLeast reports whether r grants everything min grants.
// Unknown roles never satisfy anything.
func (r Role) AtLeast(min Role) bool {
	return r.Valid() && r.rank() >= min.rank()
}

// ParseRole validates a role string. An empty string yields fallback.
func ParseRole(s string, fallback Role) (Role, error) {
	if s == "" {
		return fallback, nil
	}
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("unknown role %q", s)
	}
	return r, nil
}

// ProjectCollaborator grants a user a role on every snippet of a project.
// (ProjectID, UserID) is unique.
type ProjectCollaborator struct {
	ProjectID string      `json:"projectId"`
	UserID    string      `json:"userId"`
	Role      Role        `json:"role"`
	User      UserSummary `json:"user"`
	CreatedAt time.Time   `json:"createdAt"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// SnippetCollaborator is the narrower grant: it applies to one snippet only.
// (SnippetID, UserID) is unique.
type SnippetCollaborator struct {
	SnippetID string      `json:"codeSnippetId"`
	UserID    string      `json:"userId"`
	Role      Role        `json:"role"`
	User      UserSummary `json:"user"`
	CreatedAt time.Time   `json:"createdAt"`
}
