package trialcreate

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/luthierpro/license-service/internal/http/response"
	"github.com/luthierpro/license-service/internal/lib/sl"
)

// Service определяет интерфейс идемпотентной выдачи trial-лицензии.
type Service interface {
	GetOrCreate(ctx context.Context, email string) (code string, created bool, err error)
}

// Request тело запроса выдачи trial.
type Request struct {
	Email string `json:"email" validate:"required,email"`
}

// Result тело ответа выдачи trial.
type Result struct {
	OK   bool   `json:"ok"`
	Code string `json:"code,omitempty"`
	Msg  string `json:"msg,omitempty"`
}

// New возвращает обработчик POST /trial: get-or-create пробного кода
// по почте. Повторный вызов возвращает существующий код с msg=already.
func New(log *slog.Logger, service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.trialcreate.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("failed to decode request body", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, Result{OK: false, Msg: "email_required"})
			return
		}
		if err := validator.New().Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)
			log.Error("invalid request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationError(validateErr))
			return
		}

		code, created, err := service.GetOrCreate(r.Context(), req.Email)
		if err != nil {
			log.Error("trial issuance failed", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, Result{OK: false, Msg: "server_error"})
			return
		}

		resp := Result{OK: true, Code: code}
		if !created {
			resp.Msg = "already"
		}
		log.Info("trial issuance completed", slog.Bool("created", created))
		render.JSON(w, r, resp)
	}
}
