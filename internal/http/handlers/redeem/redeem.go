package redeem

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

// Service определяет интерфейс выдачи кода по почте.
type Service interface {
	Redeem(ctx context.Context, email string) (*licensesvc.RedeemResult, error)
}

// Request тело запроса выдачи кода.
type Request struct {
	Email string `json:"email" validate:"required,email"`
}

// Result тело ответа выдачи кода.
type Result struct {
	OK        bool   `json:"ok"`
	Msg       string `json:"msg,omitempty"`
	Email     string `json:"email,omitempty"`
	Code      string `json:"code,omitempty"`
	PlanType  string `json:"plan_type,omitempty"`
	ExpiresAt string `json:"expires_at,omitempty"`
}

// New возвращает обработчик POST /redeem: самый свежий незаблокированный
// код владельца.
func New(log *slog.Logger, service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.redeem.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("failed to decode request body", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, Result{OK: false, Msg: "email required"})
			return
		}
		if err := validator.New().Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)
			log.Error("invalid request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationError(validateErr))
			return
		}

		result, err := service.Redeem(r.Context(), req.Email)
		if err != nil {
			if errors.Is(err, storage.ErrLicenseNotFound) {
				log.Info("no redeemable license for email")
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, Result{OK: false, Msg: "not_found"})
				return
			}
			log.Error("redeem failed", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, Result{OK: false, Msg: "server_error"})
			return
		}

		log.Info("redeem completed", slog.String("plan_type", result.PlanType))
		render.JSON(w, r, Result{
			OK:        true,
			Email:     result.Email,
			Code:      result.Code,
			PlanType:  result.PlanType,
			ExpiresAt: formatDate(result.ExpiresAt),
		})
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
