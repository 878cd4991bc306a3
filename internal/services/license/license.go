// Package license реализует бизнес-логику валидации лицензий:
// поиск записи, политику истечения и учёт использования.
package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/luthierpro/license-service/internal/lib/licensecode"
	"github.com/luthierpro/license-service/internal/lib/offlinetoken"
	"github.com/luthierpro/license-service/internal/lib/sl"
	"github.com/luthierpro/license-service/internal/metrics"
	"github.com/luthierpro/license-service/internal/models"
	"github.com/luthierpro/license-service/internal/storage"
)

// FlagThreshold количество различных IP, начиная с которого лицензия
// помечается флагом подозрения на шаринг. Флаг липкий: обратно не снимается.
const FlagThreshold = 3

// GraceDays льготный период в днях, сообщаемый клиенту в /check-license.
const GraceDays = 5

// TrialDays срок действия пробной лицензии, проставляется при первой проверке.
const TrialDays = 7

// LicenseRepository определяет методы хранилища, нужные валидации.
type LicenseRepository interface {
	FindByCode(ctx context.Context, code string) (*models.License, error)
	FindByKey(ctx context.Context, key string) (*models.License, error)
	FindByEmail(ctx context.Context, email string) ([]*models.License, error)
	Update(ctx context.Context, lic *models.License) error
}

// Cache описывает методы для кэширования результатов поиска.
type Cache interface {
	Get(key string, result any) (bool, error)
	Set(key string, value any, expiration time.Duration) error
	Invalidate(key string) error
}

// Service реализует операции валидации, проверки и выдачи кода по почте.
type Service struct {
	repo   LicenseRepository
	cache  Cache // nil — кэш отключён
	tokens offlinetoken.Maker
	log    *slog.Logger
}

// New создает новый экземпляр Service. cache может быть nil.
func New(repo LicenseRepository, cache Cache, tokens offlinetoken.Maker, log *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		cache:  cache,
		tokens: tokens,
		log:    log,
	}
}

// ValidationResult результат валидации кода.
type ValidationResult struct {
	Status      Status
	Message     string
	PlanType    string
	ExpiresAt   *time.Time
	IP          string
	DistinctIPs int
	Flagged     bool
}

const cacheTTL = time.Minute

func cacheKey(code string) string {
	return fmt.Sprintf("license:%s", code)
}

// Validate проверяет код лицензии и, при успехе, учитывает использование:
// IP добавляется в историю, различные IP пересчитываются, при достижении
// порога ставится липкий флаг, use_count растёт ровно на единицу,
// last_ip/last_used/last_ua перезаписываются. Все поля сохраняются одним
// вызовом Update; его отказ логируется и не влияет на результат валидации
// (учёт использования — best-effort, не критичная бухгалтерия).
func (s *Service) Validate(ctx context.Context, code, ip, ua string) (*ValidationResult, error) {
	const op = "license.Validate"

	lic, err := s.repo.FindByCode(ctx, licensecode.Normalize(code))
	if err != nil {
		if errors.Is(err, storage.ErrLicenseNotFound) {
			metrics.Validations.WithLabelValues("not_found").Inc()
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()
	status := Evaluate(lic, now)
	metrics.Validations.WithLabelValues(string(status)).Inc()
	if status.Denied() {
		return &ValidationResult{
			Status:    status,
			Message:   deniedMessage(status),
			PlanType:  lic.PlanType,
			ExpiresAt: lic.ExpiresAt,
			Flagged:   lic.Flagged,
		}, nil
	}

	lic.AddIP(ip)
	if lic.DistinctIPCount() >= FlagThreshold {
		lic.Flagged = true
	}
	lic.UseCount++
	lic.LastIP = ip
	lic.LastUsed = &now
	lic.LastUA = ua

	if err := s.repo.Update(ctx, lic); err != nil {
		s.log.Error("usage tracking update failed", slog.String("code", lic.Code), sl.Err(err))
	} else if s.cache != nil {
		if err := s.cache.Invalidate(cacheKey(lic.Code)); err != nil {
			s.log.Warn("failed to invalidate cache", slog.String("code", lic.Code), sl.Err(err))
		}
	}

	return &ValidationResult{
		Status:      StatusActive,
		Message:     activeMessage(lic),
		PlanType:    lic.PlanType,
		ExpiresAt:   lic.ExpiresAt,
		IP:          ip,
		DistinctIPs: lic.DistinctIPCount(),
		Flagged:     lic.Flagged,
	}, nil
}

func activeMessage(lic *models.License) string {
	if lic.PlanType == models.PlanVitalicio {
		return "Acesso vitalício confirmado."
	}
	if lic.ExpiresAt != nil {
		return fmt.Sprintf("Acesso válido até %s.", lic.ExpiresAt.Format("02/01/2006"))
	}
	return "Acesso confirmado."
}

func deniedMessage(status Status) string {
	switch status {
	case StatusExpired:
		return "Assinatura expirada."
	case StatusInactive:
		return "Assinatura inativa."
	case StatusBlocked:
		return "Licença bloqueada."
	case StatusNoExpiration:
		return "Licença não ativada."
	default:
		return "Acesso negado."
	}
}

// CheckResult результат read-only проверки лицензии.
type CheckResult struct {
	OK           bool
	Status       Status
	PlanType     string
	ExpiresAt    *time.Time
	GraceDays    int
	Flagged      bool
	OfflineToken string
}

// Check выполняет read-only проверку ключа: счётчики использования не
// меняются. Поиск идёт по code, затем по устаревшему license_key.
// Исключение из read-only — двухфазная активация trial7: при первой
// проверке проставляется expires_at = сегодня + 7 дней; отказ этой записи
// логируется, проверка продолжается с непроставленной датой.
func (s *Service) Check(ctx context.Context, key string) (*CheckResult, error) {
	const op = "license.Check"

	key = licensecode.Normalize(key)

	lic, err := s.lookup(ctx, key)
	if err != nil {
		if errors.Is(err, storage.ErrLicenseNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	now := time.Now().UTC()

	if lic.PlanType == models.PlanTrial7 && lic.ExpiresAt == nil && !lic.Blocked {
		expires := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, TrialDays)
		lic.ExpiresAt = &expires
		if err := s.repo.Update(ctx, lic); err != nil {
			s.log.Error("trial activation update failed", slog.String("code", lic.Code), sl.Err(err))
			lic.ExpiresAt = nil
		} else {
			if s.cache != nil {
				if err := s.cache.Invalidate(cacheKey(lic.Code)); err != nil {
					s.log.Warn("failed to invalidate cache", slog.String("code", lic.Code), sl.Err(err))
				}
			}
			s.log.Info("trial activated", slog.String("code", lic.Code),
				slog.String("expires_at", expires.Format("2006-01-02")))
		}
	}

	status := Evaluate(lic, now)
	result := &CheckResult{
		OK:        status == StatusActive,
		Status:    status,
		PlanType:  lic.PlanType,
		ExpiresAt: lic.ExpiresAt,
		GraceDays: GraceDays,
		Flagged:   lic.Flagged,
	}

	if result.OK && s.tokens != nil {
		validUntil := now.AddDate(0, 0, GraceDays)
		if lic.PlanType != models.PlanVitalicio && lic.ExpiresAt != nil {
			validUntil = EndOfDay(*lic.ExpiresAt).AddDate(0, 0, GraceDays)
		}
		token, err := s.tokens.Generate(lic.Code, lic.PlanType, lic.Flagged, validUntil)
		if err != nil {
			s.log.Error("failed to issue offline token", slog.String("code", lic.Code), sl.Err(err))
		} else {
			result.OfflineToken = token
		}
	}
	return result, nil
}

// lookup ищет лицензию по code с коротким кэшем, затем по license_key.
func (s *Service) lookup(ctx context.Context, key string) (*models.License, error) {
	if s.cache != nil {
		var cached models.License
		found, err := s.cache.Get(cacheKey(key), &cached)
		if err != nil {
			s.log.Warn("cache lookup failed", sl.Err(err))
		} else if found {
			return &cached, nil
		}
	}

	lic, err := s.repo.FindByCode(ctx, key)
	if errors.Is(err, storage.ErrLicenseNotFound) {
		lic, err = s.repo.FindByKey(ctx, key)
	}
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		// Ключ кэша всегда канонический code, иначе запись, найденную по
		// устаревшему license_key, не получится инвалидировать после мутации.
		if err := s.cache.Set(cacheKey(lic.Code), lic, cacheTTL); err != nil {
			s.log.Warn("failed to cache license", sl.Err(err))
		}
	}
	return lic, nil
}

// RedeemResult результат выдачи кода по почте.
type RedeemResult struct {
	Email     string
	Code      string
	PlanType  string
	ExpiresAt *time.Time
}

// Redeem возвращает самый свежий незаблокированный код владельца:
// сортировка по expires_at по убыванию, затем по времени создания записи.
func (s *Service) Redeem(ctx context.Context, email string) (*RedeemResult, error) {
	const op = "license.Redeem"

	email = models.NormalizeEmail(email)
	recs, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	candidates := make([]*models.License, 0, len(recs))
	for _, rec := range recs {
		if rec.Blocked || rec.Code == "" {
			continue
		}
		candidates = append(candidates, rec)
	}
	if len(candidates) == 0 {
		return nil, storage.ErrLicenseNotFound
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		ei, ej := expiresUnix(candidates[i]), expiresUnix(candidates[j])
		if ei != ej {
			return ei > ej
		}
		return candidates[i].CreatedAt.After(candidates[j].CreatedAt)
	})

	best := candidates[0]
	return &RedeemResult{
		Email:     email,
		Code:      best.Code,
		PlanType:  best.PlanType,
		ExpiresAt: best.ExpiresAt,
	}, nil
}

func expiresUnix(lic *models.License) int64 {
	if lic.ExpiresAt == nil {
		return 0
	}
	return lic.ExpiresAt.Unix()
}
