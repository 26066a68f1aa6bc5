package settings

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/travel-assistant/backend/internal/middleware"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/settings"
	"github.com/zhouzirui/travel-assistant/backend/pkg/utils"
)

// Handler exposes the per-browser settings. API keys never leave the server unmasked.
type Handler struct {
	settings *settings.Service
}

func New(svc *settings.Service) *Handler {
	return &Handler{settings: svc}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/settings", h.handleGet)
	r.Put("/settings", h.handlePut)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.settings.Resolve(r.Context(), middleware.ClientID(r.Context()))
	if err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to load settings")
		return
	}
	utils.RespondJSON(w, http.StatusOK, cfg.Redacted())
}

func (h *Handler) handlePut(w http.ResponseWriter, r *http.Request) {
	clientID := middleware.ClientID(r.Context())

	var payload settings.AppConfig
	if err := utils.DecodeJSON(w, r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}

	// the form echoes the masked key when the user did not change it; only the client's own key
	// for the same endpoint is restored, server defaults never leave the server
	if masked, err := h.isMaskedEcho(r, clientID, payload); err != nil {
		utils.RespondError(w, http.StatusInternalServerError, "failed to load settings")
		return
	} else if masked {
		stored, ok, err := h.settings.Stored(r.Context(), clientID)
		if err != nil {
			utils.RespondError(w, http.StatusInternalServerError, "failed to load settings")
			return
		}
		if !ok || stored.APIKey == "" || stored.Redacted().APIKey != payload.APIKey ||
			strings.TrimSpace(payload.APIURL) != stored.APIURL {
			utils.RespondError(w, http.StatusBadRequest, "API_KEY must be entered again")
			return
		}
		payload.APIKey = stored.APIKey
	}

	saved, err := h.settings.Save(r.Context(), clientID, payload)
	switch {
	case errors.Is(err, settings.ErrInvalidConfig):
		utils.RespondError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		utils.RespondError(w, http.StatusInternalServerError, "failed to save settings")
		return
	}
	utils.RespondJSON(w, http.StatusOK, saved.Redacted())
}

// isMaskedEcho reports whether payload carries the redacted key GET /settings handed out.
func (h *Handler) isMaskedEcho(r *http.Request, clientID string, payload settings.AppConfig) (bool, error) {
	if payload.APIKey == "" {
		return false, nil
	}
	current, err := h.settings.Resolve(r.Context(), clientID)
	if err != nil {
		return false, err
	}
	return current.APIKey != "" && payload.APIKey == current.Redacted().APIKey, nil
}
