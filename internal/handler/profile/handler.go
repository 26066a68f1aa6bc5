package profile

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/travel-assistant/backend/internal/model/profile"
	"github.com/zhouzirui/travel-assistant/backend/pkg/utils"
)

// Handler 智能体档案的HTTP处理器
type Handler struct {
	profiles profile.Store
}

// New 创建profile处理器
func New(profiles profile.Store) *Handler {
	return &Handler{profiles: profiles}
}

// RegisterRoutes 注册profile相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/profiles", h.handleListProfiles)
	r.Get("/profiles/{profileID}", h.handleGetProfile)
}

func (h *Handler) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.profiles.List())
}

func (h *Handler) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := h.profiles.FindByID(chi.URLParam(r, "profileID"))
	if !ok {
		utils.RespondError(w, http.StatusNotFound, "profile not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, p)
}
