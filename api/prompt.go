package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/intelsk/reid/models"
	"github.com/intelsk/reid/prompt"
	"github.com/intelsk/reid/services"
)

type PromptHandler struct {
	targets *services.TargetStore
}

func NewPromptHandler(session *services.Session) *PromptHandler {
	return &PromptHandler{targets: session.Targets}
}

func (h *PromptHandler) Options(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"defaults": prompt.NewSelection(),
		"options":  prompt.Catalog(),
	})
}

// decodeSelection reads a selection over the builder defaults, so omitted
// groups stay included.
func decodeSelection(r *http.Request) (prompt.Selection, error) {
	sel := prompt.NewSelection()
	if err := json.NewDecoder(r.Body).Decode(&sel); err != nil {
		return sel, err
	}
	return sel, sel.Validate()
}

func (h *PromptHandler) Synthesize(w http.ResponseWriter, r *http.Request) {
	sel, err := decodeSelection(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"prompt": prompt.Synthesize(sel)})
}

type promptTargetRequest struct {
	Name      string           `json:"name"`
	Selection prompt.Selection `json:"selection"`
	// Prompt replaces the synthesized text when the user edited it.
	Prompt string `json:"prompt"`
}

// CreateTarget saves a synthesized (or edited) prompt as a text target.
func (h *PromptHandler) CreateTarget(w http.ResponseWriter, r *http.Request) {
	req := promptTargetRequest{Selection: prompt.NewSelection()}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	text := strings.TrimSpace(req.Prompt)
	if text == "" {
		if err := req.Selection.Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		text = prompt.Synthesize(req.Selection)
	}

	t, _, err := h.targets.RegisterTarget(r.Context(), models.TargetDraft{
		Name:        req.Name,
		Description: text,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, models.TargetView{Target: t, Kind: t.Kind()})
}
