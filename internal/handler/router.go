package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/zhouzirui/travel-assistant/backend/internal/handler/chat"
	"github.com/zhouzirui/travel-assistant/backend/internal/handler/profile"
	"github.com/zhouzirui/travel-assistant/backend/internal/handler/settings"
	"github.com/zhouzirui/travel-assistant/backend/internal/handler/stream"
	middlewarePkg "github.com/zhouzirui/travel-assistant/backend/internal/middleware"
	profileModel "github.com/zhouzirui/travel-assistant/backend/internal/model/profile"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/assistant"
	chatService "github.com/zhouzirui/travel-assistant/backend/internal/service/chat"
	"github.com/zhouzirui/travel-assistant/backend/internal/service/events"
	settingsService "github.com/zhouzirui/travel-assistant/backend/internal/service/settings"
	"github.com/zhouzirui/travel-assistant/backend/pkg/utils"
)

// Services bundles what the HTTP layer talks to.
type Services struct {
	Profiles  profileModel.Store
	Settings  *settingsService.Service
	Chat      *chatService.Service
	Assistant *assistant.Service
	Hub       *events.Hub
}

// NewRouter wires HTTP routes to core services.
func NewRouter(logger zerolog.Logger, allowedOrigins []string, svc Services) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.CORS(allowedOrigins))
	r.Use(middlewarePkg.ClientIdentity)
	r.Use(middlewarePkg.Logger(logger))
	r.Use(middlewarePkg.Metrics)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		utils.RespondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(api chi.Router) {
		profile.New(svc.Profiles).RegisterRoutes(api)
		settings.New(svc.Settings).RegisterRoutes(api)
		chat.New(svc.Assistant, svc.Chat).RegisterRoutes(api)
		stream.New(svc.Assistant, svc.Chat, svc.Hub, logger.With().Str("component", "relay").Logger()).RegisterRoutes(api)
	})

	return r
}
