// Package purchasewebhook принимает события провайдера покупок и передаёт
// их машине жизненного цикла лицензий.
package purchasewebhook

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"

	"github.com/luthierpro/license-service/internal/lib/secret"
	"github.com/luthierpro/license-service/internal/lib/sl"
	"github.com/luthierpro/license-service/internal/services/lifecycle"
)

// Service определяет интерфейс обработки событий покупок.
type Service interface {
	Process(ctx context.Context, ev *lifecycle.Event) (*lifecycle.Result, error)
}

// Payload сырое тело вебхука провайдера. Поддерживаются два формата:
// вложенный (event + data) и старый плоский. Идентификатор продукта
// приходит то целым, то дробным числом, поэтому разбирается через
// json.Number.
type Payload struct {
	Event  string `json:"event"`
	Hottok string `json:"hottok"`
	Data   struct {
		Purchase struct {
			Status      string `json:"status"`
			Transaction string `json:"transaction"`
		} `json:"purchase"`
		Buyer struct {
			Email string `json:"email"`
			Name  string `json:"name"`
		} `json:"buyer"`
		Product struct {
			ID json.Number `json:"id"`
		} `json:"product"`
		Subscription struct {
			Status string `json:"status"`
		} `json:"subscription"`
	} `json:"data"`

	// Плоский формат.
	Status      string      `json:"status"`
	Email       string      `json:"email"`
	Name        string      `json:"name"`
	FirstName   string      `json:"first_name"`
	Prod        json.Number `json:"prod"`
	Transaction string      `json:"transaction"`
}

// ToEvent нормализует тело к событию жизненного цикла. Вложенные поля
// имеют приоритет, плоские служат запасным вариантом.
func (p *Payload) ToEvent() *lifecycle.Event {
	ev := &lifecycle.Event{
		Name:               strings.ToUpper(p.Event),
		PurchaseStatus:     strings.ToUpper(firstOf(p.Data.Purchase.Status, p.Status)),
		SubscriptionStatus: strings.ToUpper(p.Data.Subscription.Status),
		Email:              firstOf(p.Data.Buyer.Email, p.Email),
		BuyerName:          firstOf(p.Data.Buyer.Name, p.Name, p.FirstName),
		OrderID:            firstOf(p.Data.Purchase.Transaction, p.Transaction),
	}
	if id, err := p.Data.Product.ID.Int64(); err == nil {
		ev.ProductID = int(id)
	} else if id, err := p.Prod.Int64(); err == nil {
		ev.ProductID = int(id)
	}
	return ev
}

func firstOf(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// Handler обрабатывает входящие вебхуки покупок.
type Handler struct {
	hottok  string
	service Service
	log     *slog.Logger
}

// New создает новый экземпляр Handler.
func New(hottok string, service Service, log *slog.Logger) *Handler {
	return &Handler{
		hottok:  hottok,
		service: service,
		log:     log,
	}
}

// ServeHTTP принимает событие провайдера. Провайдер повторяет доставку
// при любом не-2xx ответе, поэтому после успешной аутентификации ответ
// всегда 200, включая ошибки обработки.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	const op = "handlers.purchasewebhook.ServeHTTP"

	log := h.log.With(
		slog.String("op", op),
		slog.String("request_id", middleware.GetReqID(r.Context())),
	)

	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		render.JSON(w, r, map[string]string{"status": "up"})
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		log.Error("failed to read webhook body", sl.Err(err))
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": "bad request"})
		return
	}

	var payload Payload
	if err := json.Unmarshal(body, &payload); err != nil {
		log.Warn("failed to decode webhook body", sl.Err(err))
	}

	presented := r.Header.Get("X-Provider-Hottok")
	if presented == "" {
		presented = payload.Hottok
	}
	if !secret.Verify(h.hottok, presented) {
		log.Warn("webhook authentication failed")
		render.Status(r, http.StatusUnauthorized)
		render.JSON(w, r, map[string]string{"error": "unauthorized"})
		return
	}

	ev := payload.ToEvent()
	result, err := h.service.Process(r.Context(), ev)
	if err != nil {
		// ack with error: повтор доставки не исправит внутренний сбой.
		log.Error("failed to process purchase event", sl.Err(err),
			slog.String("event", ev.Name), slog.String("order_id", ev.OrderID))
		render.JSON(w, r, map[string]string{"ok": "true", "action": "error"})
		return
	}

	log.Info("purchase event processed",
		slog.String("event", ev.Name),
		slog.String("action", result.Action),
		slog.String("order_id", ev.OrderID))
	render.JSON(w, r, map[string]string{"ok": "true", "action": result.Action})
}
