package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/catalogimport/internal/catalog"
	"github.com/JonMunkholm/catalogimport/internal/core"
)

// multipartOverhead covers form fields and part headers around the file.
const multipartOverhead = 1 << 20

// handleParse accepts a multipart upload (fields scope, entity_type, file)
// and returns the new session.
func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	maxSize := s.opts.MaxUploadBytes
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)
	if err := r.ParseMultipartForm(maxSize); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			s.respondError(w, r, fmt.Errorf("read upload: %w", core.ErrFileTooLarge))
			return
		}
		s.respondError(w, r, fmt.Errorf("%w: %v", errNoFile, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, errNoFile)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxSize+1))
	if err != nil {
		s.respondError(w, r, fmt.Errorf("read upload: %w", err))
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	sess, err := s.service.Parse(ctx, actor, core.ParseRequest{
		Scope:      strings.TrimSpace(r.FormValue("scope")),
		EntityType: catalog.EntityType(strings.TrimSpace(r.FormValue("entity_type"))),
		FileName:   header.Filename,
		Data:       data,
	})
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, sess)
}

// handleListImports lists sessions. Query parameters: scope, entity_type,
// owner, status (comma-separated), limit.
func (s *Server) handleListImports(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	f, err := parseFilter(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	sessions, err := s.service.List(r.Context(), actor, f)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []*core.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func parseFilter(r *http.Request) (core.SessionFilter, error) {
	q := r.URL.Query()
	f := core.SessionFilter{
		Scope:      q.Get("scope"),
		Owner:      q.Get("owner"),
		EntityType: catalog.EntityType(q.Get("entity_type")),
	}
	if v := q.Get("status"); v != "" {
		for _, st := range strings.Split(v, ",") {
			switch status := core.Status(strings.TrimSpace(st)); status {
			case core.StatusDraft, core.StatusValidated, core.StatusConfirmed, core.StatusDiscarded, core.StatusFailed:
				f.Statuses = append(f.Statuses, status)
			default:
				return f, fmt.Errorf("%w: unknown status %q", errInvalidFilter, st)
			}
		}
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return f, fmt.Errorf("%w: limit %q", errInvalidFilter, v)
		}
		f.Limit = n
	}
	return f, nil
}

func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	sess, err := s.service.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleEditDraft applies a JSON DraftPatch.
func (s *Server) handleEditDraft(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	var patch core.DraftPatch
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&patch); err != nil {
		s.respondError(w, r, fmt.Errorf("%w: %v", errInvalidBody, err))
		return
	}

	ctx := WithRequestMetadata(r.Context(), r)
	sess, err := s.service.EditDraft(ctx, actor, chi.URLParam(r, "id"), patch)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	ctx := WithRequestMetadata(r.Context(), r)
	if err := s.service.Discard(ctx, actor, chi.URLParam(r, "id")); err != nil {
		s.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	ctx := WithRequestMetadata(r.Context(), r)
	sess, err := s.service.Validate(ctx, actor, chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleCommit commits a validated session. A commit that fails inside the
// catalog still answers 200: the failure is on the returned session as a
// COMMIT_FAILED entry and the session stays validated for retry.
func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	ctx := WithRequestMetadata(r.Context(), r)
	sess, err := s.service.Commit(ctx, actor, chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleExportReport downloads the issue report as CSV.
func (s *Server) handleExportReport(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	id := chi.URLParam(r, "id")
	sess, err := s.service.Get(r.Context(), actor, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	report, err := s.service.ExportReport(r.Context(), actor, id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeCSV(w, core.ReportFileName(sess), report)
}

// handleSourceURL returns a presigned link to the archived upload.
func (s *Server) handleSourceURL(w http.ResponseWriter, r *http.Request) {
	actor, err := actorFrom(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	expiry := s.opts.SourceLinkExpiry
	url, err := s.service.SourceURL(r.Context(), actor, chi.URLParam(r, "id"), expiry)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"url":        url,
		"expires_at": time.Now().Add(expiry).UTC(),
	})
}

func writeCSV(w http.ResponseWriter, filename string, data []byte) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
