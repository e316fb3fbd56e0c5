package web

import (
	"context"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"

	"github.com/fabworks/fabtrack/internal/core"
	"github.com/go-chi/chi/v5"
)

// actorHeader carries the authenticated actor identity. Authentication
// happens upstream; the value is passed through verbatim.
const actorHeader = "X-Actor-ID"

// actorID extracts the actor identity from the request, or "" when the
// header is absent.
func actorID(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(actorHeader))
}

// handleGetMaterial returns a material by its internal id.
func (s *Server) handleGetMaterial(w http.ResponseWriter, r *http.Request) {
	materialID := chi.URLParam(r, "materialID")
	if materialID == "" {
		s.respondBadRequest(w, r, "missing material id")
		return
	}

	material, err := s.service.GetMaterial(r.Context(), materialID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, material)
}

// handleGetHistory returns a material's audit trail, oldest first.
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	materialID := chi.URLParam(r, "materialID")
	if materialID == "" {
		s.respondBadRequest(w, r, "missing material id")
		return
	}

	entries, err := s.service.History(r.Context(), materialID)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, entries)
}

// statusUpdateRequest is the body of a status change call.
type statusUpdateRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes,omitempty"`
}

// handleUpdateStatus moves a material to a new lifecycle status.
func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	materialID := chi.URLParam(r, "materialID")
	if materialID == "" {
		s.respondBadRequest(w, r, "missing material id")
		return
	}

	actor := actorID(r)
	if actor == "" {
		s.respondBadRequest(w, r, "missing "+actorHeader+" header")
		return
	}

	var req statusUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondBadRequest(w, r, "invalid JSON body")
		return
	}

	status, ok := core.ParseStatus(req.Status)
	if !ok {
		s.respondBadRequest(w, r, "unknown status: "+req.Status)
		return
	}

	material, err := s.service.UpdateStatus(r.Context(), materialID, status, actor, req.Notes)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, material)
}

// handleImport runs a bulk import for a job. The file arrives either as
// the raw request body or as a multipart form's "file" part.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "jobID")
	if jobID == "" {
		s.respondBadRequest(w, r, "missing job id")
		return
	}

	actor := actorID(r)
	if actor == "" {
		s.respondBadRequest(w, r, "missing "+actorHeader+" header")
		return
	}

	maxSize := s.cfg.Import.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize)

	data, err := s.readImportFile(r, maxSize)
	if err != nil {
		s.respondBadRequest(w, r, err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Import.Timeout)
	defer cancel()

	result, err := s.service.RunImport(ctx, jobID, data, actor)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// readImportFile extracts the file bytes from the request.
func (s *Server) readImportFile(r *http.Request, maxSize int64) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))

	if strings.HasPrefix(mediaType, "multipart/") {
		if err := r.ParseMultipartForm(maxSize); err != nil {
			return nil, errFileTooLargeOrInvalid
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			return nil, errNoFileProvided
		}
		defer file.Close()
		return io.ReadAll(file)
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errFileTooLargeOrInvalid
	}
	return data, nil
}

var (
	errFileTooLargeOrInvalid = requestError("file too large or invalid form")
	errNoFileProvided        = requestError("no file provided")
)

type requestError string

func (e requestError) Error() string { return string(e) }
