package middlewarectx

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/render"

	"github.com/luthierpro/license-service/internal/http/response"
)

// ConfigGuard возвращает middleware, отвечающее явной ошибкой, пока в
// конфигурации отсутствуют обязательные значения. Сервис с неполной
// конфигурацией не должен тихо работать в сломанном состоянии.
func ConfigGuard(missing []string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if len(missing) == 0 {
			return next
		}
		msg := "configuration incomplete: " + strings.Join(missing, ", ")
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Error("request rejected, configuration incomplete",
				slog.String("path", r.URL.Path))
			render.Status(r, http.StatusServiceUnavailable)
			render.JSON(w, r, response.Error(msg))
		})
	}
}
