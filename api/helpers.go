package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/intelsk/reid/services"
)

// maxUploadBytes bounds multipart uploads of videos and target images.
const maxUploadBytes = 512 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError maps service errors to status codes. Reference and selection
// problems are user errors; backend failures are reported as bad gateway.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var backendErr *services.BackendError
	switch {
	case errors.Is(err, services.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, services.ErrEmptySelection),
		errors.Is(err, services.ErrInvalidTarget):
		status = http.StatusBadRequest
	case errors.Is(err, services.ErrVideoNotProcessed),
		errors.Is(err, services.ErrTargetNotRegistered):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, services.ErrDuplicateCrop),
		errors.Is(err, services.ErrDuplicateID):
		status = http.StatusConflict
	case errors.As(err, &backendErr):
		status = http.StatusBadGateway
	}

	body := map[string]any{"error": err.Error()}
	var refErr *services.ReferenceError
	if errors.As(err, &refErr) {
		body["ids"] = refErr.IDs
	}
	writeJSON(w, status, body)
}

func HealthCheck(w http.ResponseWriter, r *http.Request, backend services.Backend) {
	backendStatus := "ok"
	if err := backend.HealthCheck(r.Context()); err != nil {
		backendStatus = "unavailable"
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"backend": backendStatus,
	})
}
