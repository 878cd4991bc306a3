package licenseservice

import (
	"log/slog"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/luthierpro/license-service/internal/config"
	"github.com/luthierpro/license-service/internal/http/handlers/admin"
	"github.com/luthierpro/license-service/internal/http/handlers/checklicense"
	"github.com/luthierpro/license-service/internal/http/handlers/health"
	"github.com/luthierpro/license-service/internal/http/handlers/purchasewebhook"
	"github.com/luthierpro/license-service/internal/http/handlers/redeem"
	"github.com/luthierpro/license-service/internal/http/handlers/trialcreate"
	"github.com/luthierpro/license-service/internal/http/handlers/validate"
	"github.com/luthierpro/license-service/internal/http/middlewarectx"
	licenseservice "github.com/luthierpro/license-service/internal/services/license"
	lifecycleservice "github.com/luthierpro/license-service/internal/services/lifecycle"
	trialservice "github.com/luthierpro/license-service/internal/services/trial"
	"github.com/luthierpro/license-service/internal/storage"
)

// RegisterRoutes регистрирует все маршруты приложения. Вебхук провайдера
// нарочно вне ConfigGuard: его аутентификация идёт по hottok, и провайдер
// не должен получать 503 из-за незаполненного админского ключа.
func RegisterRoutes(r chi.Router, logger *slog.Logger, cfg *config.Config, store storage.Store, licenseSvc *licenseservice.Service, lifecycleSvc *lifecycleservice.Service, trialSvc *trialservice.Service) {
	// Глобальные middleware
	r.Use(
		middleware.RequestID,
		middleware.Logger,
		middleware.Recoverer,
		middleware.URLFormat,
	)

	missing := cfg.Missing()

	r.Route("/api/v1", func(r chi.Router) {
		// Открытые конечные точки
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.ConfigGuard(missing, logger))
			r.Use(middlewarectx.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst, logger))
			r.Post("/validate", validate.New(logger, licenseSvc))
			r.Post("/check-license", checklicense.New(logger, licenseSvc))
			r.Post("/redeem", redeem.New(logger, licenseSvc))
			r.Post("/trial-create", trialcreate.New(logger, trialSvc))
		})

		// Группа с проверкой административного ключа
		r.Group(func(r chi.Router) {
			r.Use(middlewarectx.ConfigGuard(missing, logger))
			r.Use(middlewarectx.AdminAuth(cfg.Secrets.AdminKey, logger))
			r.Get("/admin/licenses", admin.NewList(logger, store))
			r.Post("/admin/licenses", admin.NewCreate(logger, store))
			r.Patch("/admin/licenses/{id}", admin.NewUpdate(logger, store))
			r.Delete("/admin/licenses/{id}", admin.NewRemove(logger, store))
		})

		// Webhook endpoint (аутентификация по hottok)
		webhook := purchasewebhook.New(cfg.Secrets.ProviderHottok, lifecycleSvc, logger)
		r.Handle("/webhook/purchase", webhook)
	})

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/health", health.New("license-service"))
}
