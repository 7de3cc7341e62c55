package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// HandleRun executes the stored snippet in the sandbox.
//
// HTTP: POST /api/code/{id}/run
//
// The request body is ignored; the saved content is what runs.
func (h *SnippetHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := h.snippets.Run(r.Context(), actor(r), id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	h.logger.Debug("snippet run finished", slog.String("id", id), slog.Int("exitCode", result.ExitCode))
	writeJSON(w, http.StatusOK, result)
}
