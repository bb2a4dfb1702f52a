package api

import (
	"encoding/json"
	"net/http"

	"github.com/intelsk/reid/services"
)

type settingsResponse struct {
	Settings map[string]any `json:"settings"`
	Defaults map[string]any `json:"defaults"`
}

type settingsUpdateRequest struct {
	Settings map[string]any `json:"settings"`
}

type SettingsHandler struct {
	settings *services.SettingsService
}

func NewSettingsHandler(settings *services.SettingsService) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, settingsResponse{
		Settings: h.settings.All(),
		Defaults: h.settings.Defaults(),
	})
}

// Update applies all settings or none of them.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req settingsUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := h.settings.SetAll(req.Settings); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":    err.Error(),
			"settings": h.settings.All(),
			"defaults": h.settings.Defaults(),
		})
		return
	}

	writeJSON(w, http.StatusOK, settingsResponse{
		Settings: h.settings.All(),
		Defaults: h.settings.Defaults(),
	})
}
