package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/jamesainslie/fopt/pkg/fopt/catalog"
	"github.com/jamesainslie/fopt/pkg/fopt/manifest"
	"github.com/jamesainslie/fopt/pkg/fopt/types"
)

// ScanRequest is the body of POST /api/scans. MinSize, when set, is parsed
// with types.ParseSize and overrides ThresholdBytes.
type ScanRequest struct {
	ThresholdBytes int64    `json:"threshold_bytes"`
	MinSize        string   `json:"min_size,omitempty"`
	Folders        []string `json:"folders,omitempty"`
	Types          []string `json:"types,omitempty"`
}

// ScanResponse is returned when a scan starts.
type ScanResponse struct {
	JobID string `json:"job_id"`
}

// CompactRequest is the body of POST /api/compact.
type CompactRequest struct {
	Path string `json:"path"`
}

// OpenRequest is the body of POST /api/catalog/{name}/open.
type OpenRequest struct {
	OriginalName string `json:"original_name,omitempty"`
}

// FoldersResponse lists scannable folders.
type FoldersResponse struct {
	Folders []string `json:"folders"`
}

// CatalogResponse lists the catalog keyed by archive name.
type CatalogResponse struct {
	Archives map[string]catalog.Record `json:"archives"`
}

// RemovedResponse reports what a cleanup removed.
type RemovedResponse struct {
	Removed []string `json:"removed,omitempty"`
	Count   int      `json:"count"`
}

// HistoryResponse lists operation history entries.
type HistoryResponse struct {
	Entries []manifest.Entry `json:"entries"`
}

// writeJSON serialises v as JSON with status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger().Error("writeJSON encode", "error", err)
	}
}

// writeError writes the error envelope for err.
func writeError(w http.ResponseWriter, err error, result any) {
	status, code := StatusFor(err)
	writeErrorCode(w, status, code, err.Error(), result)
}

func writeErrorCode(w http.ResponseWriter, status int, code, message string, result any) {
	writeJSON(w, status, ErrorBody{
		Error:  APIError{Code: code, Message: message},
		Result: result,
	})
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decoding request: %w", err)
	}
	return nil
}

type handlers struct {
	svc      *Service
	shutdown func()
}

func (h *handlers) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status())
}

func (h *handlers) folders(w http.ResponseWriter, _ *http.Request) {
	list := h.svc.ListScannableFolders()
	if list == nil {
		list = []string{}
	}
	writeJSON(w, http.StatusOK, FoldersResponse{Folders: list})
}

func (h *handlers) startScan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, err.Error(), nil)
		return
	}
	threshold := req.ThresholdBytes
	if req.MinSize != "" {
		n, err := types.ParseSize(req.MinSize)
		if err != nil {
			writeError(w, err, nil)
			return
		}
		threshold = n
	}

	id, err := h.svc.StartScanTypes(r.Context(), threshold, req.Folders, req.Types)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusAccepted, ScanResponse{JobID: id})
}

func (h *handlers) getScan(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Job(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	if snap.Files == nil {
		snap.Files = []types.FileEntry{}
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *handlers) cancelScan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.svc.CancelScan(id); err != nil {
		writeError(w, err, nil)
		return
	}
	snap, err := h.svc.Job(id)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, snap.JobInfo)
}

// events streams every published event as Server-Sent Events until the
// client goes away.
func (h *handlers) events(w http.ResponseWriter, r *http.Request) {
	rc := http.NewResponseController(w)

	ready := func() {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		_ = rc.Flush()
	}

	err := h.svc.Stream(r.Context(), ready, func(ev types.Event) error {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
			return err
		}
		return rc.Flush()
	})
	if err != nil {
		logger().Debug("event stream ended", "error", err)
	}
}

func (h *handlers) compact(w http.ResponseWriter, r *http.Request) {
	var req CompactRequest
	if err := decodeBody(r, &req); err != nil || req.Path == "" {
		writeErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, "path is required", nil)
		return
	}

	res, err := h.svc.Compact(r.Context(), req.Path)
	if err != nil {
		status, code := StatusFor(err)
		if code == CodeInternal {
			status, code = http.StatusUnprocessableEntity, CodeCompactionFailed
		}
		writeErrorCode(w, status, code, err.Error(), res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *handlers) catalog(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, CatalogResponse{Archives: h.svc.ListCatalog()})
}

func (h *handlers) pruneCatalog(w http.ResponseWriter, _ *http.Request) {
	removed, err := h.svc.PruneCatalog()
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, RemovedResponse{Removed: removed, Count: len(removed)})
}

func (h *handlers) openArchive(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if err := decodeBody(r, &req); err != nil {
		writeErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, err.Error(), nil)
		return
	}
	res, err := h.svc.OpenArchive(r.Context(), chi.URLParam(r, "name"), req.OriginalName)
	h.extractionResult(w, res, err)
}

func (h *handlers) restoreArchive(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.RestoreArchive(r.Context(), chi.URLParam(r, "name"))
	h.extractionResult(w, res, err)
}

func (h *handlers) extractionResult(w http.ResponseWriter, res types.OpenResult, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, res)
		return
	}
	status, code := StatusFor(err)
	if code == CodeInternal {
		status, code = http.StatusUnprocessableEntity, CodeOpenFailed
	}
	writeErrorCode(w, status, code, err.Error(), res)
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeErrorCode(w, http.StatusBadRequest, CodeInvalidRequest, "invalid limit", nil)
			return
		}
		limit = n
	}
	entries, err := h.svc.History(limit)
	if err != nil {
		writeError(w, err, nil)
		return
	}
	if entries == nil {
		entries = []manifest.Entry{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Entries: entries})
}

func (h *handlers) historyEntry(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.HistoryEntry(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *handlers) cleanHistory(w http.ResponseWriter, _ *http.Request) {
	n, err := h.svc.CleanHistory()
	if err != nil {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, RemovedResponse{Count: n})
}

func (h *handlers) cleanScratch(w http.ResponseWriter, _ *http.Request) {
	n, err := h.svc.CleanupScratch()
	if err != nil && n == 0 {
		writeError(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, RemovedResponse{Count: n})
}

func (h *handlers) shutdownDaemon(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusAccepted, map[string]bool{"success": true})
	if h.shutdown != nil {
		go h.shutdown()
	}
}

var errNotFound = errors.New("route not found")

func notFound(w http.ResponseWriter, r *http.Request) {
	writeErrorCode(w, http.StatusNotFound, CodeNotFound, fmt.Sprintf("%s: %s %s", errNotFound, r.Method, r.URL.Path), nil)
}
