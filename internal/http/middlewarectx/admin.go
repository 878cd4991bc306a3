// Package middlewarectx содержит HTTP middleware сервиса лицензий:
// аутентификацию админского контура, ограничение частоты запросов и
// заслон при неполной конфигурации.
package middlewarectx

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"github.com/luthierpro/license-service/internal/http/response"
	"github.com/luthierpro/license-service/internal/lib/secret"
)

// AdminAuth возвращает middleware, проверяющее админский ключ в заголовке
// X-Admin-Key или параметре key. Сравнение выполняется за постоянное
// время; ответ при отказе не раскрывает существование ресурса.
func AdminAuth(adminKey string, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get("X-Admin-Key")
			if presented == "" {
				presented = r.URL.Query().Get("key")
			}

			if !secret.Verify(adminKey, presented) {
				log.Error("admin key rejected", slog.String("path", r.URL.Path))
				render.Status(r, http.StatusForbidden)
				render.JSON(w, r, response.Error("access denied"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
