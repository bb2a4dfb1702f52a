package api

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/intelsk/reid/models"
	"github.com/intelsk/reid/services"
)

type TargetsHandler struct {
	targets *services.TargetStore
	videos  *services.VideoStore
	cropper *services.Cropper
}

func NewTargetsHandler(session *services.Session) *TargetsHandler {
	return &TargetsHandler{
		targets: session.Targets,
		videos:  session.Videos,
		cropper: session.Cropper,
	}
}

func (h *TargetsHandler) view(t models.Target) models.TargetView {
	view := models.TargetView{Target: t, Kind: t.Kind()}
	if reg, ok := h.targets.Registration(t.LocalID); ok {
		view.Registration = &reg
	}
	return view
}

func (h *TargetsHandler) List(w http.ResponseWriter, r *http.Request) {
	all := h.targets.All()
	views := make([]models.TargetView, len(all))
	for i, t := range all {
		views[i] = h.view(t)
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *TargetsHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, ok := h.targets.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, services.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h.view(t))
}

func (h *TargetsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var draft models.TargetDraft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	t, _, err := h.targets.RegisterTarget(r.Context(), draft)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.view(t))
}

// UploadImage registers the multipart "image" file as an image target named
// by the "name" form field.
func (h *TargetsHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no image file provided"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "reading image: " + err.Error()})
		return
	}

	t, _, err := h.cropper.RegisterImage(r.Context(), header.Filename, data, r.FormValue("name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.view(t))
}

func (h *TargetsHandler) Crop(w http.ResponseWriter, r *http.Request) {
	var req models.CropRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	video, ok := h.videos.Get(req.VideoID)
	if !ok {
		writeError(w, services.ErrNotFound)
		return
	}

	t, _, err := h.cropper.CropDetection(r.Context(), video, req.FrameIdx, req.Detection, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.view(t))
}

// Update renames a target and/or edits its description.
func (h *TargetsHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req models.UpdateTargetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if _, ok := h.targets.Get(id); !ok {
		writeError(w, services.ErrNotFound)
		return
	}

	if req.Name != nil {
		if err := h.targets.RenameTarget(id, *req.Name); err != nil {
			writeError(w, err)
			return
		}
	}
	if req.Description != nil {
		if err := h.targets.UpdateDescription(id, *req.Description); err != nil {
			writeError(w, err)
			return
		}
	}

	t, ok := h.targets.Get(id)
	if !ok {
		writeError(w, services.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h.view(t))
}

func (h *TargetsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.targets.DeleteTarget(chi.URLParam(r, "id")) {
		writeError(w, services.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
