package validate

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/luthierpro/license-service/internal/http/response"
	"github.com/luthierpro/license-service/internal/lib/sl"
	licensesvc "github.com/luthierpro/license-service/internal/services/license"
	"github.com/luthierpro/license-service/internal/storage"
)

// Service определяет интерфейс сервиса валидации лицензий.
type Service interface {
	Validate(ctx context.Context, code, ip, ua string) (*licensesvc.ValidationResult, error)
}

// Request тело запроса валидации.
type Request struct {
	Code string `json:"code" validate:"required"`
}

// Result тело ответа валидации.
type Result struct {
	OK          bool   `json:"ok"`
	Msg         string `json:"msg"`
	Plan        string `json:"plan,omitempty"`
	Expires     string `json:"expires,omitempty"`
	IP          string `json:"ip,omitempty"`
	DistinctIPs int    `json:"distinct_ips,omitempty"`
	Flagged     bool   `json:"flagged"`
}

// New возвращает обработчик POST /validate: проверяет код и учитывает
// использование. Неизвестный код — 404, отказ политики — 403.
func New(log *slog.Logger, service Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.validate.New"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req Request
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("failed to decode request body", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, Result{OK: false, Msg: "Código obrigatório."})
			return
		}
		if err := validator.New().Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)
			log.Error("invalid request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationError(validateErr))
			return
		}

		result, err := service.Validate(r.Context(), req.Code, ClientIP(r), r.UserAgent())
		if err != nil {
			if errors.Is(err, storage.ErrLicenseNotFound) {
				log.Info("unknown license code")
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, Result{OK: false, Msg: "Código inválido."})
				return
			}
			log.Error("validation failed", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, Result{OK: false, Msg: "Erro no servidor."})
			return
		}

		if result.Status.Denied() {
			log.Info("validation denied", slog.String("status", string(result.Status)))
			render.Status(r, http.StatusForbidden)
			render.JSON(w, r, Result{
				OK:      false,
				Msg:     result.Message,
				Plan:    result.PlanType,
				Expires: formatDate(result.ExpiresAt),
				Flagged: result.Flagged,
			})
			return
		}

		log.Info("validation ok",
			slog.String("plan", result.PlanType),
			slog.Int("distinct_ips", result.DistinctIPs))
		render.JSON(w, r, Result{
			OK:          true,
			Msg:         result.Message,
			Plan:        result.PlanType,
			Expires:     formatDate(result.ExpiresAt),
			IP:          result.IP,
			DistinctIPs: result.DistinctIPs,
			Flagged:     result.Flagged,
		})
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}

// ClientIP возвращает IP клиента: первый адрес из X-Forwarded-For,
// иначе адрес соединения.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx >= 0 {
			fwd = fwd[:idx]
		}
		return strings.TrimSpace(fwd)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
