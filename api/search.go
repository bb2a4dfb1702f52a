package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/intelsk/reid/config"
	"github.com/intelsk/reid/models"
	"github.com/intelsk/reid/services"
)

type SearchHandler struct {
	cfg     *config.AppConfig
	session *services.Session
}

func NewSearchHandler(cfg *config.AppConfig, session *services.Session) *SearchHandler {
	return &SearchHandler{
		cfg:     cfg,
		session: session,
	}
}

// Search runs a search over the selected local video and target ids and
// returns the updated results of the selected videos.
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req models.SearchByLocalIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := h.session.Searcher.Search(r.Context(), req.VideoIDs, req.TargetIDs); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, h.session.Searcher.Results(req.VideoIDs...))
}

// Results lists indexed results, optionally restricted with ?video=<local id>
// (repeatable).
func (h *SearchHandler) Results(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Searcher.Results(r.URL.Query()["video"]...))
}

// Lookup refreshes one (video, target) pair from the backend cache.
func (h *SearchHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	videoID := chi.URLParam(r, "video_id")
	targetID := chi.URLParam(r, "target_id")

	if err := h.session.Searcher.Lookup(r.Context(), videoID, targetID); err != nil {
		writeError(w, err)
		return
	}

	all := h.session.Searcher.Results(videoID)
	out := models.ResultsResponse{Results: []models.PairResult{}}
	for _, pr := range all.Results {
		if pr.TargetLocalID == targetID {
			out.Results = append(out.Results, pr)
		}
	}
	out.Total = len(out.Results)
	writeJSON(w, http.StatusOK, out)
}

type exportRequest struct {
	Name string `json:"name"`
}

// Export writes the session to a SQLite report. The body is optional; an
// optional file name places the report next to the configured one, which is
// used when no name is given.
func (h *SearchHandler) Export(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
	}
	path, err := reportPath(h.cfg.Report.DBPath, req.Name)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	summary, err := h.session.ExportReport(r.Context(), path)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// reportPath resolves a caller supplied report name inside the directory of
// the configured report. Only plain file names are accepted.
func reportPath(configured, name string) (string, error) {
	if name == "" {
		return configured, nil
	}
	if name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("report name %q must be a plain file name", name)
	}
	return filepath.Join(filepath.Dir(configured), name), nil
}

// Frame redirects to the frame image on the media root.
func (h *SearchHandler) Frame(w http.ResponseWriter, r *http.Request) {
	framePath := chi.URLParam(r, "*")
	if framePath == "" {
		http.Error(w, "frame path required", http.StatusBadRequest)
		return
	}
	http.Redirect(w, r, h.session.Backend.MediaURL(framePath), http.StatusFound)
}
