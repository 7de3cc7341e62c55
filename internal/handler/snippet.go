package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/devspace/internal/auth"
	"github.com/sakif/devspace/internal/model"
	"github.com/sakif/devspace/internal/repository"
	"github.com/sakif/devspace/internal/service"
)

// SnippetHandler serves /api/code.
type SnippetHandler struct {
	snippets *service.SnippetService
	logger   *slog.Logger
}

func NewSnippetHandler(snippets *service.SnippetService, logger *slog.Logger) *SnippetHandler {
	return &SnippetHandler{snippets: snippets, logger: logger}
}

type createSnippetRequest struct {
	ProjectID          string   `json:"projectId"`
	Title              string   `json:"title"    validate:"required,max=200"`
	Content            string   `json:"content"  validate:"max=100000"`
	Language           string   `json:"language" validate:"required,max=50"`
	FilePath           string   `json:"filePath" validate:"max=500"`
	IsPublic           bool     `json:"isPublic"`
	AllowCollaboration bool     `json:"allowCollaboration"`
	Tags               []string `json:"tags"     validate:"max=20"`
}

// updateSnippetRequest uses pointers so absent fields stay unchanged.
type updateSnippetRequest struct {
	Title              *string  `json:"title"    validate:"omitempty,max=200"`
	Content            *string  `json:"content"  validate:"omitempty,max=100000"`
	Language           *string  `json:"language" validate:"omitempty,max=50"`
	FilePath           *string  `json:"filePath" validate:"omitempty,max=500"`
	IsPublic           *bool    `json:"isPublic"`
	AllowCollaboration *bool    `json:"allowCollaboration"`
	Tags               []string `json:"tags"     validate:"max=20"`
}

type addCollaboratorRequest struct {
	Username string `json:"username" validate:"required"`
	Role     string `json:"role"     validate:"omitempty,oneof=viewer editor admin"`
}

type removeCollaboratorRequest struct {
	UserID string `json:"userId" validate:"required"`
}

type snippetResponse struct {
	Message     string         `json:"message"`
	CodeSnippet *model.Snippet `json:"codeSnippet"`
}

type forkResponse struct {
	Message string         `json:"message"`
	Snippet *model.Snippet `json:"snippet"`
}

type starResponse struct {
	Message   string `json:"message"`
	IsStarred bool   `json:"isStarred"`
	StarCount int    `json:"starCount"`
}

type snippetListResponse struct {
	CodeSnippets []model.Snippet    `json:"codeSnippets"`
	Pagination   service.Pagination `json:"pagination"`
}

type collaboratorResponse struct {
	Message      string `json:"message"`
	Collaborator any    `json:"collaborator"`
}

func actor(r *http.Request) string {
	id, _ := auth.UserIDFromContext(r.Context())
	return id
}

// HandleCreate: POST /api/code
func (h *SnippetHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createSnippetRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	snippet, err := h.snippets.Create(r.Context(), actor(r), service.CreateSnippetInput{
		ProjectID:          req.ProjectID,
		Title:              req.Title,
		Content:            req.Content,
		Language:           req.Language,
		FilePath:           req.FilePath,
		IsPublic:           req.IsPublic,
		AllowCollaboration: req.AllowCollaboration,
		Tags:               req.Tags,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, snippetResponse{Message: "code snippet created", CodeSnippet: snippet})
}

// HandleList serves the fixed listings (public, collaborative, owned,
// starred, forked). Query: language, search, page, limit.
func (h *SnippetHandler) HandleList(scope repository.SnippetScope) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.list(w, r, scope, "")
	}
}

// HandleListProject: GET /api/code/project/{projectId}
func (h *SnippetHandler) HandleListProject(w http.ResponseWriter, r *http.Request) {
	h.list(w, r, repository.ScopeProject, chi.URLParam(r, "projectId"))
}

func (h *SnippetHandler) list(w http.ResponseWriter, r *http.Request, scope repository.SnippetScope, projectID string) {
	q := r.URL.Query()
	items, page, err := h.snippets.List(r.Context(), actor(r), scope, projectID, service.ListQuery{
		Language:    q.Get("language"),
		Search:      q.Get("search"),
		PageRequest: pageRequest(r),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if items == nil {
		items = []model.Snippet{}
	}
	writeJSON(w, http.StatusOK, snippetListResponse{CodeSnippets: items, Pagination: page})
}

// HandleGet: GET /api/code/{id}
func (h *SnippetHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	snippet, err := h.snippets.Get(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snippet)
}

// HandleUpdate: PUT /api/code/{id}
func (h *SnippetHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateSnippetRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	snippet, err := h.snippets.Update(r.Context(), actor(r), chi.URLParam(r, "id"), service.UpdateSnippetInput{
		Title:              req.Title,
		Content:            req.Content,
		Language:           req.Language,
		FilePath:           req.FilePath,
		IsPublic:           req.IsPublic,
		AllowCollaboration: req.AllowCollaboration,
		Tags:               req.Tags,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snippetResponse{Message: "code snippet updated", CodeSnippet: snippet})
}

// HandleDelete: DELETE /api/code/{id}
func (h *SnippetHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.snippets.Delete(r.Context(), actor(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "code snippet deleted"})
}

// HandleStar: POST /api/code/{id}/star
func (h *SnippetHandler) HandleStar(w http.ResponseWriter, r *http.Request) {
	res, err := h.snippets.ToggleStar(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	msg := "code snippet unstarred"
	if res.IsStarred {
		msg = "code snippet starred"
	}
	writeJSON(w, http.StatusOK, starResponse{Message: msg, IsStarred: res.IsStarred, StarCount: res.StarCount})
}

// HandleFork: POST /api/code/{id}/fork
func (h *SnippetHandler) HandleFork(w http.ResponseWriter, r *http.Request) {
	fork, err := h.snippets.Fork(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, forkResponse{Message: "code snippet forked", Snippet: fork})
}

// HandleCollaborators: GET /api/code/{id}/collaborators
func (h *SnippetHandler) HandleCollaborators(w http.ResponseWriter, r *http.Request) {
	res, err := h.snippets.Collaborators(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.ProjectCollaborators == nil {
		res.ProjectCollaborators = []model.ProjectCollaborator{}
	}
	if res.SnippetCollaborators == nil {
		res.SnippetCollaborators = []model.SnippetCollaborator{}
	}
	writeJSON(w, http.StatusOK, res)
}

// HandleAddCollaborator: POST /api/code/{id}/collaborators {username, role?}.
// Naming yourself joins the project; naming someone else is an owner-add.
func (h *SnippetHandler) HandleAddCollaborator(w http.ResponseWriter, r *http.Request) {
	var req addCollaboratorRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	c, err := h.snippets.AddCollaborator(r.Context(), actor(r), chi.URLParam(r, "id"), req.Username, req.Role)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, collaboratorResponse{Message: "collaborator added", Collaborator: c})
}

// HandleRemoveCollaborator: DELETE /api/code/{id}/collaborators {userId}
func (h *SnippetHandler) HandleRemoveCollaborator(w http.ResponseWriter, r *http.Request) {
	var req removeCollaboratorRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.snippets.RemoveCollaborator(r.Context(), actor(r), chi.URLParam(r, "id"), req.UserID); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: "collaborator removed"})
}

// HandleRequestCollaboration: POST /api/code/{id}/collaborators/request
func (h *SnippetHandler) HandleRequestCollaboration(w http.ResponseWriter, r *http.Request) {
	c, err := h.snippets.RequestCollaboration(r.Context(), actor(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, collaboratorResponse{Message: "collaboration granted", Collaborator: c})
}
