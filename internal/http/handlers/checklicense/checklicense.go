package checklicense

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/luthierpro/license-service/internal/http/response"
	"github.com/luthierpro/license-service/internal/lib/sl"
	licensesvc "github.com/luthierpro/license-service/internal/services/license"
	"github.com/luthierpro/license-service/internal/storage"
)

// Service определяет интерфейс read-only проверки лицензии.
type Service interface {
	Check(ctx context.Context, key string) (*licensesvc.CheckResult, error)
}

// Request тело запроса проверки.
type Request struct {
	LicenseKey string `json:"license_key" validate:"required"`
}

// Result тело ответа проверки. В отличие от /validate счётчики
// использования не меняются; отказ политики возвращается с кодом 200
// и ok=false (контракт клиента из оригинального API).
type Result struct {
	OK           bool   `json:"ok"`
	Msg          string `json:"msg,omitempty"`
	PlanType     string `json:"plan_type,omitempty"`
	ExpiresAt    string `json:"expires_at,omitempty"`
	GraceDays    int    `json:"grace_days,omitempty"`
	Flagged      bool   `json:"flagged"`
	OfflineToken string `json:"offline_token,omitempty"`
}

// New возвращает обработчик POST /check-license.
func New(log *slog.Logger, service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.checklicense.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("failed to decode request body", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, Result{OK: false, Msg: "license_key required"})
			return
		}
		if err := validator.New().Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)
			log.Error("invalid request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationError(validateErr))
			return
		}

		result, err := service.Check(r.Context(), req.LicenseKey)
		if err != nil {
			if errors.Is(err, storage.ErrLicenseNotFound) {
				log.Info("license not found")
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, Result{OK: false, Msg: "license_not_found"})
				return
			}
			log.Error("check failed", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, Result{OK: false, Msg: "server_error"})
			return
		}

		resp := Result{
			OK:           result.OK,
			PlanType:     result.PlanType,
			ExpiresAt:    formatDate(result.ExpiresAt),
			GraceDays:    result.GraceDays,
			Flagged:      result.Flagged,
			OfflineToken: result.OfflineToken,
		}
		if !result.OK {
			resp.Msg = string(result.Status)
			resp.GraceDays = 0
		}

		log.Info("check completed",
			slog.String("status", string(result.Status)),
			slog.String("plan_type", result.PlanType))
		render.JSON(w, r, resp)
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
