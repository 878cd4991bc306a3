// Package health отдаёт статус сервиса для проверок живости.
package health

import (
	"net/http"

	"github.com/go-chi/render"
)

// Response тело ответа проверки живости.
type Response struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// New возвращает обработчик GET /health.
func New(service string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, Response{Status: "up", Service: service})
	}
}
