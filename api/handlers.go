/*
handlers.go - HTTP API handlers for the authorization report service

PURPOSE:
  Exposes report runs via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to service.Runner and the run store.

ENDPOINTS:
  Runs:
    POST   /api/runs/upload                Run over an uploaded zip (multipart field "file")
    POST   /api/runs/folder                Run over two server-side folders
    GET    /api/runs                       Run history (?status=, ?limit=)
    GET    /api/runs/{id}                  One run with warnings and sheet sizes

  Reports:
    GET    /api/runs/{id}/report           Workbook download
    GET    /api/runs/{id}/preview/{sheet}  First rows of a sheet (?limit=)

  Health:
    GET    /api/health

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Build a source.Source and call the runner
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Malformed request, corrupt zip or missing folder
  - 404: Run or sheet not found
  - 413: Upload too large
  - 422: Required extract missing or undecodable (the run is still recorded)
  - 500: Internal errors

SECURITY NOTE:
  No authentication. Folder runs are confined to folders.root.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/warp/authz-report/config"
	"github.com/warp/authz-report/export"
	"github.com/warp/authz-report/recon"
	"github.com/warp/authz-report/service"
	"github.com/warp/authz-report/source"
	"github.com/warp/authz-report/source/archive"
	"github.com/warp/authz-report/source/folder"
	"go.uber.org/zap"
)

// multipartMemory is the part of an upload kept in memory before spilling to disk.
const multipartMemory = 32 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Runner *service.Runner
	Store  recon.RunStore
	Config *config.Config
	Logger *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(runner *service.Runner, store recon.RunStore, cfg *config.Config, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Runner: runner, Store: store, Config: cfg, Logger: logger}
}

// =============================================================================
// RUN ENDPOINTS
// =============================================================================

// UploadRun runs the pipeline over an uploaded zip archive.
// POST /api/runs/upload
func (h *Handler) UploadRun(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.Config.MaxUploadBytes())
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Upload too large", err)
			return
		}
		writeError(w, http.StatusBadRequest, "Invalid multipart form", err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "Missing form field \"file\"", err)
		return
	}
	defer file.Close()

	if !strings.EqualFold(filepath.Ext(header.Filename), ".zip") {
		writeError(w, http.StatusBadRequest, "Upload must be a .zip archive", nil)
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read upload", err)
		return
	}

	src := archive.New(header.Filename, data, h.Config.Sources)
	h.execute(w, r, service.KindArchive, src)
}

// FolderRun runs the pipeline over two folders below the configured root.
// POST /api/runs/folder
func (h *Handler) FolderRun(w http.ResponseWriter, r *http.Request) {
	root := h.Config.Folders.Root
	if root == "" {
		writeError(w, http.StatusBadRequest, "Folder runs are disabled (folders.root is not set)", nil)
		return
	}

	var req FolderRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.FixedTermDir == "" {
		req.FixedTermDir = h.Config.Folders.FixedTermDir
	}
	if req.CommonDir == "" {
		req.CommonDir = h.Config.Folders.CommonDir
	}
	if req.FixedTermDir == "" || req.CommonDir == "" {
		writeError(w, http.StatusBadRequest, "fixed_term_dir and common_dir are required", nil)
		return
	}

	fixedTermDir, err := resolveUnder(root, req.FixedTermDir)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid fixed_term_dir", err)
		return
	}
	commonDir, err := resolveUnder(root, req.CommonDir)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid common_dir", err)
		return
	}

	src := folder.New(fixedTermDir, commonDir, h.Config.Sources)
	h.execute(w, r, service.KindFolder, src)
}

func (h *Handler) execute(w http.ResponseWriter, r *http.Request, kind string, src source.Source) {
	run, err := h.Runner.Execute(r.Context(), kind, src)
	if err != nil {
		status, message := http.StatusInternalServerError, "Report run failed"
		switch {
		case recon.IsInputError(err):
			status, message = http.StatusUnprocessableEntity, "Input extracts rejected"
		case errors.Is(err, source.ErrUnreadable):
			status, message = http.StatusBadRequest, "Source could not be opened"
		}
		resp := ErrorResponse{Error: message, Details: err.Error()}
		if run != nil {
			resp.RunID = run.ID
		}
		writeJSON(w, status, resp)
		return
	}
	writeJSON(w, http.StatusCreated, toRunDTO(*run))
}

// ListRuns returns the run history, newest first.
// GET /api/runs
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	status := recon.RunStatus(r.URL.Query().Get("status"))
	switch status {
	case "", recon.RunRunning, recon.RunCompleted, recon.RunFailed:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown status %q", status), nil)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	runs, err := h.Store.ListRuns(r.Context(), status, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]RunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toRunDTO(run)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetRun returns one run.
// GET /api/runs/{id}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRunDTO(*run))
}

// =============================================================================
// REPORT ENDPOINTS
// =============================================================================

// DownloadReport streams the workbook of a completed run.
// GET /api/runs/{id}/report
func (h *Handler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	artifact, err := h.Store.GetArtifact(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.storeError(w, err)
		return
	}

	w.Header().Set("Content-Type", export.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", artifact.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(artifact.Data)))
	w.WriteHeader(http.StatusOK)
	w.Write(artifact.Data)
}

// PreviewSheet returns the first rows of one sheet of a run's workbook.
// GET /api/runs/{id}/preview/{sheet}
func (h *Handler) PreviewSheet(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "id")
	sheet, err := url.PathUnescape(chi.URLParam(r, "sheet"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid sheet name", err)
		return
	}
	limit, err := queryInt(r, "limit", h.Config.Server.PreviewRows)
	if err != nil || limit <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	artifact, err := h.Store.GetArtifact(r.Context(), runID)
	if err != nil {
		h.storeError(w, err)
		return
	}
	p, err := export.ReadSheet(artifact.Data, sheet, limit)
	if errors.Is(err, export.ErrSheetNotFound) {
		writeError(w, http.StatusNotFound, "Sheet not found", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read report", err)
		return
	}

	rows := p.Rows
	if rows == nil {
		rows = [][]string{}
	}
	writeJSON(w, http.StatusOK, PreviewDTO{
		RunID:     runID,
		Sheet:     p.Sheet,
		Columns:   nonNil(p.Columns),
		Rows:      rows,
		TotalRows: p.TotalRows,
	})
}

// Health reports liveness.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, recon.ErrRunNotFound):
		writeError(w, http.StatusNotFound, "Run not found", err)
	case errors.Is(err, recon.ErrArtifactNotFound):
		writeError(w, http.StatusNotFound, "Report not found", err)
	default:
		h.Logger.Error("store error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "Failed to load run", err)
	}
}

// resolveUnder joins rel onto root and rejects anything that escapes root.
func resolveUnder(root, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", fmt.Errorf("%q must be relative to the folder root", rel)
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	joined := filepath.Join(absRoot, rel)
	back, err := filepath.Rel(absRoot, joined)
	if err != nil || back == ".." || strings.HasPrefix(back, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%q is outside the folder root", rel)
	}
	return joined, nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func pathEscape(s string) string {
	return url.PathEscape(s)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
