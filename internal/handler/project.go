package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/devspace/internal/model"
	"github.com/sakif/devspace/internal/service"
)

// ProjectHandler serves /api/projects.
type ProjectHandler struct {
	projects *service.ProjectService
	logger   *slog.Logger
}

func NewProjectHandler(projects *service.ProjectService, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{projects: projects, logger: logger}
}

type createProjectRequest struct {
	Title           string   `json:"title"       validate:"required,max=200"`
	Description     string   `json:"description" validate:"max=2000"`
	IsPublic        bool     `json:"isPublic"`
	IsCollaborative bool     `json:"isCollaborative"`
	Tags            []string `json:"tags"        validate:"max=20"`
}

type updateProjectRequest struct {
	Title           *string  `json:"title"       validate:"omitempty,max=200"`
	Description     *string  `json:"description" validate:"omitempty,max=2000"`
	IsPublic        *bool    `json:"isPublic"`
	IsCollaborative *bool    `json:"isCollaborative"`
	Tags            []string `json:"tags"        validate:"max=20"`
}

type roleRequest struct {
	Role string `json:"role" validate:"required,oneof=viewer editor admin"`
}

type projectResponse struct {
	Message string         `json:"message"`
	Project *model.Project `json:"project"`
}

type projectListResponse struct {
	Projects   []model.Project    `json:"projects"`
	Pagination service.Pagination `json:"pagination"`
}

type projectCollaboratorsResponse struct {
	Collaborators []model.ProjectCollaborator `json:"collaborators"`
}

// HandleCreate: POST /api/projects
func (h *ProjectHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.projects.Create(r.Context(), actor(r), service.CreateProjectInput{
		Title:           req.Title,
		Description:     req.Description,
		IsPublic:        req.IsPublic,
		IsCollaborative: req.IsCollaborative,
		Tags:            req.Tags,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, projectResponse{Message: "project created", Project: p})
}

// HandleList: GET /api/projects (owned and collaborating)
func (h *ProjectHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	items, page, err := h.projects.List(r.Context(), actor(r), pageRequest(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.Project{}
	}
	writeJSON(w, http.StatusOK, projectListResponse{Projects: items, Pagination: page})
}

// HandleGet: GET /api/projects/{id}
func (h *ProjectHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.projects.Get(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// HandleUpdate: PUT /api/projects/{id}
func (h *ProjectHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateProjectRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.projects.Update(r.Context(), actor(r), chi.URLParam(r, "id"), service.UpdateProjectInput{
		Title:           req.Title,
		Description:     req.Description,
		IsPublic:        req.IsPublic,
		IsCollaborative: req.IsCollaborative,
		Tags:            req.Tags,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projectResponse{Message: "project updated", Project: p})
}

// HandleDelete: DELETE /api/projects/{id}
func (h *ProjectHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.projects.Delete(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "project deleted"})
}

// HandleStar: POST /api/projects/{id}/star
func (h *ProjectHandler) HandleStar(w http.ResponseWriter, r *http.Request) {
	res, err := h.projects.ToggleStar(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	msg := "project unstarred"
	if res.IsStarred {
		msg = "project starred"
	}
	writeJSON(w, http.StatusOK, starResponse{Message: msg, IsStarred: res.IsStarred, StarCount: res.StarCount})
}

// HandleFork: POST /api/projects/{id}/fork
func (h *ProjectHandler) HandleFork(w http.ResponseWriter, r *http.Request) {
	p, err := h.projects.Fork(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, projectResponse{Message: "project forked", Project: p})
}

// HandleCollaborators: GET /api/projects/{id}/collaborators
func (h *ProjectHandler) HandleCollaborators(w http.ResponseWriter, r *http.Request) {
	items, err := h.projects.Collaborators(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.ProjectCollaborator{}
	}
	writeJSON(w, http.StatusOK, projectCollaboratorsResponse{Collaborators: items})
}

// HandleAddCollaborator: POST /api/projects/{id}/collaborators {username, role?}
func (h *ProjectHandler) HandleAddCollaborator(w http.ResponseWriter, r *http.Request) {
	var req addCollaboratorRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	c, err := h.projects.AddCollaborator(r.Context(), actor(r), chi.URLParam(r, "id"), req.Username, req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, collaboratorResponse{Message: "collaborator added", Collaborator: c})
}

// HandleUpdateCollaborator: PUT /api/projects/{id}/collaborators/{userId} {role}
func (h *ProjectHandler) HandleUpdateCollaborator(w http.ResponseWriter, r *http.Request) {
	var req roleRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	err := h.projects.UpdateCollaboratorRole(r.Context(), actor(r),
		chi.URLParam(r, "id"), chi.URLParam(r, "userId"), req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "collaborator role updated"})
}

// HandleRemoveCollaborator: DELETE /api/projects/{id}/collaborators/{userId}
func (h *ProjectHandler) HandleRemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	err := h.projects.RemoveCollaborator(r.Context(), actor(r), chi.URLParam(r, "id"), chi.URLParam(r, "userId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "collaborator removed"})
}
