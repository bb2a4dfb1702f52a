package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/intelsk/reid/models"
	"github.com/intelsk/reid/services"
)

type VideoHandler struct {
	videos *services.VideoStore
}

func NewVideoHandler(session *services.Session) *VideoHandler {
	return &VideoHandler{videos: session.Videos}
}

func (h *VideoHandler) view(v models.Video) models.VideoView {
	view := models.VideoView{Video: v, Searchable: v.Searchable()}
	if reg, ok := h.videos.Registration(v.LocalID); ok {
		view.Registration = &reg
	}
	return view
}

func (h *VideoHandler) List(w http.ResponseWriter, r *http.Request) {
	all := h.videos.All()
	views := make([]models.VideoView, len(all))
	for i, v := range all {
		views[i] = h.view(v)
	}
	writeJSON(w, http.StatusOK, views)
}

func (h *VideoHandler) Get(w http.ResponseWriter, r *http.Request) {
	v, ok := h.videos.Get(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, services.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, h.view(v))
}

// Upload registers the multipart "video" file. The response is sent as soon
// as the provisional entry exists; processing continues in the background.
func (h *VideoHandler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("video")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no video file provided"})
		return
	}
	defer file.Close()
	if header.Filename == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "no selected file"})
		return
	}

	video, _, err := h.videos.RegisterVideo(r.Context(), services.Upload{
		Filename: header.Filename,
		Body:     file,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.view(video))
}

func (h *VideoHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if !h.videos.Delete(chi.URLParam(r, "id")) {
		writeError(w, services.ErrNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
