// Package access decides whether an actor may perform an action on a project
// or snippet.
//
// The evaluator is pure: callers load the resource and the actor's
// memberships first (so a missing resource is reported as NotFound before any
// permission question is asked), describe them as a Resource, and call Check.
// Nothing here touches the database.
//
// Two grant paths exist and are modelled as different capabilities:
//
//   - project collaborators carry a Role (viewer < editor < admin) that applies
//     to every snippet in the project; Edit and Delete come only from here.
//   - snippet collaborators hold a grant on one snippet. It yields Read and
//     Contribute (change the code of that snippet) but never Edit, Delete or
//     ManageCollaborators.
package access

import (
	"github.com/sakif/devspace/internal/apperror"
	"github.com/sakif/devspace/internal/model"
)

// Capability is an action requested on a resource.
type Capability int

const (
	Read Capability = iota + 1
	Edit
	Delete
	ManageCollaborators
	Contribute
	SelfJoin
	RequestCollaboration
)

func (c Capability) String() string {
	switch c {
	case Read:
		return "read"
	case Edit:
		return "edit"
	case Delete:
		return "delete"
	case ManageCollaborators:
		return "manage-collaborators"
	case Contribute:
		return "contribute"
	case SelfJoin:
		return "self-join"
	case RequestCollaboration:
		return "request-collaboration"
	default:
		return "unknown"
	}
}

// Resource describes a project or snippet as seen by one actor.
//
// For a project, AllowCollaboration and SnippetCollaborator are ignored.
// OwnerID is always the owner of the project (for snippets: the parent project).
type Resource struct {
	Kind                string // "project" or "snippet", used in messages
	OwnerID             string
	IsPublic            bool
	AllowCollaboration  bool
	ProjectRole         model.Role // actor's role in the owning project, "" when none
	SnippetCollaborator bool       // actor holds a snippet-level grant
}

// Allowed is Check reduced to a boolean, for view enrichment.
func Allowed(actorID string, res Resource, c Capability) bool {
	return Check(actorID, res, c) == nil
}

// Check returns nil when actorID (empty for anonymous) holds capability c on
// res, or an *apperror.AppError explaining the refusal:
//
//   - ErrUnauthorized when the actor is anonymous and the action needs identity
//   - ErrForbidden when the actor is known but lacks the rights
//   - ErrConflict for join/request attempts by someone who already has access
func Check(actorID string, res Resource, c Capability) error {
	kind := res.Kind
	if kind == "" {
		kind = "resource"
	}

	if actorID == "" {
		if c == Read && res.IsPublic {
			return nil
		}
		return apperror.Unauthorized("authentication required", "")
	}

	isOwner := actorID == res.OwnerID

	switch c {
	case Read:
		if res.IsPublic || isOwner || res.ProjectRole.Valid() || res.SnippetCollaborator {
			return nil
		}
		return apperror.Forbidden("you do not have access to this " + kind)

	case Edit, Delete:
		if isOwner || res.ProjectRole.AtLeast(model.RoleEditor) {
			return nil
		}
		return apperror.Forbidden("you do not have permission to " + c.String() + " this " + kind)

	case Contribute:
		if isOwner || res.ProjectRole.AtLeast(model.RoleEditor) || res.SnippetCollaborator {
			return nil
		}
		return apperror.Forbidden("you do not have permission to edit this " + kind)

	case ManageCollaborators:
		if isOwner || res.ProjectRole.AtLeast(model.RoleAdmin) {
			return nil
		}
		return apperror.Forbidden("only the owner or an admin can manage collaborators")

	case SelfJoin:
		if isOwner {
			return apperror.AlreadyExists("you already own this project")
		}
		if !res.IsPublic || !res.AllowCollaboration {
			return apperror.Forbidden("collaboration is not enabled for this " + kind)
		}
		if res.ProjectRole.Valid() {
			return apperror.AlreadyExists("you are already a collaborator on this project")
		}
		return nil

	case RequestCollaboration:
		if isOwner {
			return apperror.AlreadyExists("you already own this project")
		}
		if !res.AllowCollaboration {
			return apperror.Forbidden("collaboration is not enabled for this " + kind)
		}
		if res.SnippetCollaborator {
			return apperror.AlreadyExists("you are already a collaborator on this " + kind)
		}
		return nil
	}

	return apperror.Forbidden("unknown capability")
}
