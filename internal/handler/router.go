package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/zhouzirui/sympcheck/backend/internal/config"
	"github.com/zhouzirui/sympcheck/backend/internal/handler/diagnosis"
	middlewarePkg "github.com/zhouzirui/sympcheck/backend/internal/middleware"
	diagnosisService "github.com/zhouzirui/sympcheck/backend/internal/service/diagnosis"
	"github.com/zhouzirui/sympcheck/backend/pkg/utils"
)

// NewRouter wires HTTP routes to core services.
func NewRouter(cfg config.ServerConfig, controller *diagnosisService.Controller, aiEnabled bool, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewarePkg.RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middlewarePkg.CORS(cfg.AllowedOrigins))

	diagnosisHandler := diagnosis.New(controller, logger)
	limits := controller.Limits()

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			utils.RespondJSON(w, http.StatusOK, map[string]any{
				"status":           "ok",
				"inference":        aiEnabled,
				"initialQuestions": limits.InitialQuestions,
				"maxFollowUps":     limits.MaxTotal,
				"time":             time.Now().UTC().Format(time.RFC3339),
			})
		})

		api.Group(func(limited chi.Router) {
			limited.Use(middlewarePkg.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
			diagnosisHandler.RegisterRoutes(limited)
		})
	})

	return r
}
