// Package admin реализует административный CRUD по записям лицензий.
// Все обработчики защищены middleware проверки административного ключа.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator"

	"github.com/luthierpro/license-service/internal/http/response"
	"github.com/luthierpro/license-service/internal/lib/licensecode"
	"github.com/luthierpro/license-service/internal/lib/sl"
	"github.com/luthierpro/license-service/internal/models"
	"github.com/luthierpro/license-service/internal/storage"
)

// LicenseStore определяет методы хранилища, нужные административному CRUD.
type LicenseStore interface {
	List(ctx context.Context) ([]*models.License, error)
	FindByID(ctx context.Context, id string) (*models.License, error)
	Create(ctx context.Context, lic *models.License) (*models.License, error)
	Update(ctx context.Context, lic *models.License) error
	Delete(ctx context.Context, id string) error
}

// LicenseView представление записи лицензии в административных ответах.
type LicenseView struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Email       string `json:"email"`
	Name        string `json:"name,omitempty"`
	PlanType    string `json:"plan_type"`
	Status      string `json:"status"`
	Blocked     bool   `json:"blocked"`
	ExpiresAt   string `json:"expires_at,omitempty"`
	UseCount    int    `json:"use_count"`
	DistinctIPs int    `json:"distinct_ips"`
	Flagged     bool   `json:"flagged"`
	OrderID     string `json:"order_id,omitempty"`
	LastIP      string `json:"last_ip,omitempty"`
	LastUsed    string `json:"last_used,omitempty"`
	Notes       string `json:"notes,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func toView(lic *models.License) LicenseView {
	v := LicenseView{
		ID:          lic.ID,
		Code:        lic.Code,
		Email:       lic.Email,
		Name:        lic.Name,
		PlanType:    lic.PlanType,
		Status:      lic.Status,
		Blocked:     lic.Blocked,
		UseCount:    lic.UseCount,
		DistinctIPs: lic.DistinctIPCount(),
		Flagged:     lic.Flagged,
		OrderID:     lic.OrderID,
		LastIP:      lic.LastIP,
		Notes:       lic.Notes,
		CreatedAt:   lic.CreatedAt.Format(time.RFC3339),
	}
	if lic.ExpiresAt != nil {
		v.ExpiresAt = lic.ExpiresAt.Format("2006-01-02")
	}
	if lic.LastUsed != nil {
		v.LastUsed = lic.LastUsed.Format(time.RFC3339)
	}
	return v
}

// NewList возвращает обработчик GET /admin/licenses.
func NewList(log *slog.Logger, store LicenseStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.admin.NewList"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		recs, err := store.List(r.Context())
		if err != nil {
			log.Error("failed to list licenses", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to list licenses"))
			return
		}

		views := make([]LicenseView, 0, len(recs))
		for _, rec := range recs {
			views = append(views, toView(rec))
		}
		log.Info("licenses listed", slog.Int("count", len(views)))
		render.JSON(w, r, views)
	}
}

// CreateRequest тело запроса создания записи.
type CreateRequest struct {
	Code      string `json:"code"`
	Email     string `json:"email" validate:"required,email"`
	Name      string `json:"name"`
	PlanType  string `json:"plan_type" validate:"required,oneof=mensal vitalicio trial7"`
	Status    string `json:"status" validate:"omitempty,oneof=ativo inativo"`
	ExpiresAt string `json:"expires_at" validate:"omitempty,datetime=2006-01-02"`
	Notes     string `json:"notes"`
	Blocked   bool   `json:"blocked"`
}

// NewCreate возвращает обработчик POST /admin/licenses. Пустой code
// заменяется сгенерированным.
func NewCreate(log *slog.Logger, store LicenseStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.admin.NewCreate"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		var req CreateRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("failed to decode request body", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("failed to decode request"))
			return
		}
		if err := validator.New().Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)
			log.Error("invalid request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationError(validateErr))
			return
		}

		lic := &models.License{
			Code:     licensecode.Normalize(req.Code),
			Email:    models.NormalizeEmail(req.Email),
			Name:     req.Name,
			PlanType: req.PlanType,
			Status:   req.Status,
			Blocked:  req.Blocked,
			Notes:    req.Notes,
		}
		if lic.Code == "" {
			lic.Code = licensecode.New()
		}
		if lic.Status == "" {
			lic.Status = models.StatusAtivo
		}
		if req.ExpiresAt != "" {
			expires, err := time.ParseInLocation("2006-01-02", req.ExpiresAt, time.UTC)
			if err != nil {
				log.Error("invalid expires_at", sl.Err(err))
				render.Status(r, http.StatusBadRequest)
				render.JSON(w, r, response.Error("invalid expires_at"))
				return
			}
			lic.ExpiresAt = &expires
		}

		created, err := store.Create(r.Context(), lic)
		if err != nil {
			log.Error("failed to create license", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to create license"))
			return
		}

		log.Info("license created",
			slog.String("id", created.ID),
			slog.String("code", created.Code))
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, toView(created))
	}
}

// UpdateRequest тело запроса частичного обновления: применяются только
// присутствующие поля.
type UpdateRequest struct {
	Email     *string `json:"email" validate:"omitempty,email"`
	Name      *string `json:"name"`
	PlanType  *string `json:"plan_type" validate:"omitempty,oneof=mensal vitalicio trial7"`
	Status    *string `json:"status" validate:"omitempty,oneof=ativo inativo"`
	ExpiresAt *string `json:"expires_at" validate:"omitempty,datetime=2006-01-02"`
	Notes     *string `json:"notes"`
	Blocked   *bool   `json:"blocked"`
	Flagged   *bool   `json:"flagged"`
}

// NewUpdate возвращает обработчик PATCH /admin/licenses/{id}. Пустая строка
// в expires_at очищает дату истечения.
func NewUpdate(log *slog.Logger, store LicenseStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.admin.NewUpdate"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id := chi.URLParam(r, "id")
		if id == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("id is required"))
			return
		}

		var req UpdateRequest
		if err := render.DecodeJSON(r.Body, &req); err != nil {
			log.Error("failed to decode request body", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("failed to decode request"))
			return
		}
		if err := validator.New().Struct(req); err != nil {
			validateErr := err.(validator.ValidationErrors)
			log.Error("invalid request", sl.Err(err))
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.ValidationError(validateErr))
			return
		}

		lic, err := store.FindByID(r.Context(), id)
		if err != nil {
			if errors.Is(err, storage.ErrLicenseNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.Error("license not found"))
				return
			}
			log.Error("failed to find license", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to update license"))
			return
		}

		if req.Email != nil {
			lic.Email = models.NormalizeEmail(*req.Email)
		}
		if req.Name != nil {
			lic.Name = *req.Name
		}
		if req.PlanType != nil {
			lic.PlanType = *req.PlanType
		}
		if req.Status != nil {
			lic.Status = *req.Status
		}
		if req.Notes != nil {
			lic.Notes = *req.Notes
		}
		if req.Blocked != nil {
			lic.Blocked = *req.Blocked
		}
		if req.Flagged != nil {
			lic.Flagged = *req.Flagged
		}
		if req.ExpiresAt != nil {
			if *req.ExpiresAt == "" {
				lic.ExpiresAt = nil
			} else {
				expires, err := time.ParseInLocation("2006-01-02", *req.ExpiresAt, time.UTC)
				if err != nil {
					log.Error("invalid expires_at", sl.Err(err))
					render.Status(r, http.StatusBadRequest)
					render.JSON(w, r, response.Error("invalid expires_at"))
					return
				}
				lic.ExpiresAt = &expires
			}
		}

		if err := store.Update(r.Context(), lic); err != nil {
			if errors.Is(err, storage.ErrLicenseNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.Error("license not found"))
				return
			}
			log.Error("failed to update license", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to update license"))
			return
		}

		log.Info("license updated", slog.String("id", lic.ID))
		render.JSON(w, r, toView(lic))
	}
}

// NewRemove возвращает обработчик DELETE /admin/licenses/{id}.
func NewRemove(log *slog.Logger, store LicenseStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		const op = "handlers.admin.NewRemove"

		log := log.With(
			slog.String("op", op),
			slog.String("request_id", middleware.GetReqID(r.Context())),
		)

		id := chi.URLParam(r, "id")
		if id == "" {
			render.Status(r, http.StatusBadRequest)
			render.JSON(w, r, response.Error("id is required"))
			return
		}

		if err := store.Delete(r.Context(), id); err != nil {
			if errors.Is(err, storage.ErrLicenseNotFound) {
				render.Status(r, http.StatusNotFound)
				render.JSON(w, r, response.Error("license not found"))
				return
			}
			log.Error("failed to delete license", sl.Err(err))
			render.Status(r, http.StatusInternalServerError)
			render.JSON(w, r, response.Error("failed to delete license"))
			return
		}

		log.Info("license deleted", slog.String("id", id))
		render.JSON(w, r, response.OK())
	}
}
