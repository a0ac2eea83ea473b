package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
	"github.com/JonMunkholm/catalogimport/internal/core"
)

// handleListSchemas describes every importable entity type.
func (s *Server) handleListSchemas(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"schemas": core.Schemas()})
}

// handleDownloadTemplate returns an empty CSV with the entity's columns.
func (s *Server) handleDownloadTemplate(w http.ResponseWriter, r *http.Request) {
	t := catalog.EntityType(chi.URLParam(r, "entityType"))
	data, err := core.Template(t)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeCSV(w, core.TemplateFileName(t), data)
}

// handleHealth reports liveness and import slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"limiter": s.service.LimiterStatus(),
	})
}
