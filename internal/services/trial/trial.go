// Package trial реализует идемпотентную выдачу пробных лицензий:
// get-or-create по почте владельца.
package trial

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/luthierpro/license-service/internal/lib/licensecode"
	"github.com/luthierpro/license-service/internal/metrics"
	"github.com/luthierpro/license-service/internal/models"
	"github.com/luthierpro/license-service/internal/storage"
)

// MaxDevices значение, записываемое в зарезервированное поле привязки
// устройств. Логика привязки этим сервисом не реализуется.
const MaxDevices = 2

// LicenseRepository определяет методы хранилища, нужные выдаче trial.
type LicenseRepository interface {
	FindTrial(ctx context.Context, email string) (*models.License, error)
	Create(ctx context.Context, lic *models.License) (*models.License, error)
}

// Service реализует get-or-create пробной лицензии.
type Service struct {
	repo LicenseRepository
	log  *slog.Logger
}

// New создает новый экземпляр Service.
func New(repo LicenseRepository, log *slog.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// GetOrCreate возвращает код существующей незаблокированной trial7-лицензии
// владельца или создаёт новую. Дата истечения у новой записи не
// проставляется: она устанавливается при первой реальной проверке
// (двухфазная активация). Возвращает created=false, если код существовал.
func (s *Service) GetOrCreate(ctx context.Context, email string) (code string, created bool, err error) {
	const op = "trial.GetOrCreate"

	email = models.NormalizeEmail(email)

	existing, err := s.repo.FindTrial(ctx, email)
	if err == nil {
		metrics.TrialsIssued.WithLabelValues("reused").Inc()
		return existing.Code, false, nil
	}
	if !errors.Is(err, storage.ErrLicenseNotFound) {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}

	lic := &models.License{
		Code:       licensecode.NewTrial(),
		Email:      email,
		PlanType:   models.PlanTrial7,
		Status:     models.StatusAtivo,
		Blocked:    false,
		MaxDevices: MaxDevices,
	}
	saved, err := s.repo.Create(ctx, lic)
	if err != nil {
		return "", false, fmt.Errorf("%s: %w", op, err)
	}

	metrics.TrialsIssued.WithLabelValues("created").Inc()
	s.log.Info("trial license issued", slog.String("email", email))
	return saved.Code, true, nil
}
