// Package lifecycle реализует машину состояний жизненного цикла лицензии
// по событиям провайдера покупок: создание, продление и деактивация записей.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/luthierpro/license-service/internal/lib/licensecode"
	"github.com/luthierpro/license-service/internal/lib/sl"
	"github.com/luthierpro/license-service/internal/metrics"
	"github.com/luthierpro/license-service/internal/models"
)

// PlanPeriodDays срок, на который покупка продлевает mensal-лицензию.
const PlanPeriodDays = 30

// Действия, которыми завершается обработка события.
const (
	ActionCreated     = "created"
	ActionExtended    = "extended"
	ActionDeactivated = "deactivated"
	ActionDuplicate   = "duplicate"
	ActionIgnored     = "ignored"
)

// productPlans сопоставляет идентификатор продукта провайдера типу плана.
var productPlans = map[int]string{
	6436614: models.PlanMensal,
	6449475: models.PlanVitalicio,
}

// LicenseRepository определяет методы хранилища, нужные жизненному циклу.
type LicenseRepository interface {
	FindByEmail(ctx context.Context, email string) ([]*models.License, error)
	Create(ctx context.Context, lic *models.License) (*models.License, error)
	Update(ctx context.Context, lic *models.License) error
}

// EventPublisher публикует события жизненного цикла для пайплайна уведомлений.
type EventPublisher interface {
	Publish(routingKey string, payload any) error
}

// Service обрабатывает события провайдера покупок.
type Service struct {
	repo   LicenseRepository
	events EventPublisher // nil — публикация отключена
	log    *slog.Logger
}

// New создает новый экземпляр Service. events может быть nil.
func New(repo LicenseRepository, events EventPublisher, log *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		events: events,
		log:    log,
	}
}

// Event нормализованное событие провайдера покупок.
type Event struct {
	Name               string // PURCHASE_APPROVED, PURCHASE_CANCELLED и пр., верхний регистр
	PurchaseStatus     string // APPROVED, CANCELLED, REFUNDED и пр., верхний регистр
	SubscriptionStatus string // ACTIVE/INACTIVE, верхний регистр
	Email              string
	BuyerName          string
	OrderID            string
	ProductID          int
}

// Result итог обработки события.
type Result struct {
	Action    string
	Email     string
	Code      string
	PlanType  string
	ExpiresAt *time.Time
}

// Approved сообщает, означает ли событие успешную покупку или активную подписку.
func (e *Event) Approved() bool {
	return e.Name == "PURCHASE_APPROVED" || e.PurchaseStatus == "APPROVED" ||
		e.PurchaseStatus == "ACTIVE" || e.SubscriptionStatus == "ACTIVE"
}

// Negative сообщает, означает ли событие отмену, возврат или просрочку.
func (e *Event) Negative() bool {
	switch e.Name {
	case "PURCHASE_CANCELLED", "PURCHASE_REFUNDED", "PURCHASE_CHARGEBACK":
		return true
	}
	switch e.PurchaseStatus {
	case "CANCELLED", "CHARGEBACK", "REFUNDED", "EXPIRED", "OVERDUE", "INACTIVE":
		return true
	}
	return false
}

// PlanType определяет тип плана по продукту события. Неизвестный продукт
// с активной подпиской трактуется как mensal, иначе как разовая покупка
// вечного доступа.
func (e *Event) PlanType() string {
	if plan, ok := productPlans[e.ProductID]; ok {
		return plan
	}
	if e.SubscriptionStatus == "ACTIVE" {
		return models.PlanMensal
	}
	return models.PlanVitalicio
}

// Process применяет событие к записям лицензий. События обрабатываются
// по почте покупателя; отсутствие почты и незнакомые события завершаются
// действием ignored без мутаций.
func (s *Service) Process(ctx context.Context, ev *Event) (*Result, error) {
	const op = "lifecycle.Process"

	result, err := s.process(ctx, ev)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	metrics.WebhookEvents.WithLabelValues(result.Action).Inc()
	s.publish(result)
	return result, nil
}

func (s *Service) process(ctx context.Context, ev *Event) (*Result, error) {
	if ev.Email == "" {
		return &Result{Action: ActionIgnored}, nil
	}

	email := models.NormalizeEmail(ev.Email)

	if !ev.Approved() && !ev.Negative() {
		return &Result{Action: ActionIgnored, Email: email}, nil
	}

	recs, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	var existing *models.License
	if len(recs) > 0 {
		// Первая запись в порядке выдачи хранилища: тот же tie-break,
		// что и при поиске по коду.
		existing = recs[0]
	}

	now := time.Now().UTC()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	switch {
	case ev.Approved() && existing == nil:
		return s.create(ctx, ev, email, today)
	case ev.Approved():
		return s.extend(ctx, ev, existing, today)
	case existing != nil:
		return s.deactivate(ctx, existing)
	default:
		return &Result{Action: ActionIgnored, Email: email}, nil
	}
}

func (s *Service) create(ctx context.Context, ev *Event, email string, today time.Time) (*Result, error) {
	plan := ev.PlanType()
	lic := &models.License{
		Code:     licensecode.New(),
		Email:    email,
		Name:     ev.BuyerName,
		PlanType: plan,
		Status:   models.StatusAtivo,
		OrderID:  ev.OrderID,
	}
	if plan == models.PlanMensal {
		expires := today.AddDate(0, 0, PlanPeriodDays)
		lic.ExpiresAt = &expires
	}

	created, err := s.repo.Create(ctx, lic)
	if err != nil {
		return nil, err
	}
	s.log.Info("license created",
		slog.String("email", email),
		slog.String("plan_type", plan),
		slog.String("order_id", ev.OrderID))

	return &Result{
		Action:    ActionCreated,
		Email:     email,
		Code:      created.Code,
		PlanType:  created.PlanType,
		ExpiresAt: created.ExpiresAt,
	}, nil
}

// extend продлевает существующую запись. Продление отсчитывается от
// большего из текущей даты истечения и сегодняшнего дня, чтобы ранний
// платёж не сжигал оплаченный остаток. Повторное событие той же
// транзакции распознаётся по order_id и не продлевает ничего.
func (s *Service) extend(ctx context.Context, ev *Event, lic *models.License, today time.Time) (*Result, error) {
	if ev.OrderID != "" && lic.OrderID == ev.OrderID {
		s.log.Info("duplicate purchase event skipped",
			slog.String("email", lic.Email), slog.String("order_id", ev.OrderID))
		return &Result{
			Action:    ActionDuplicate,
			Email:     lic.Email,
			Code:      lic.Code,
			PlanType:  lic.PlanType,
			ExpiresAt: lic.ExpiresAt,
		}, nil
	}

	plan := ev.PlanType()
	if lic.Code == "" {
		lic.Code = licensecode.New()
	}
	if ev.BuyerName != "" {
		lic.Name = ev.BuyerName
	}
	lic.PlanType = plan
	lic.Status = models.StatusAtivo
	lic.OrderID = ev.OrderID

	if plan == models.PlanMensal {
		base := today
		if lic.ExpiresAt != nil && lic.ExpiresAt.After(today) {
			base = *lic.ExpiresAt
		}
		expires := base.AddDate(0, 0, PlanPeriodDays)
		lic.ExpiresAt = &expires
	} else {
		lic.ExpiresAt = nil
	}

	if err := s.repo.Update(ctx, lic); err != nil {
		return nil, err
	}
	s.log.Info("license extended",
		slog.String("email", lic.Email),
		slog.String("plan_type", plan),
		slog.String("order_id", ev.OrderID))

	return &Result{
		Action:    ActionExtended,
		Email:     lic.Email,
		Code:      lic.Code,
		PlanType:  lic.PlanType,
		ExpiresAt: lic.ExpiresAt,
	}, nil
}

// deactivate переводит запись в статус inativo, дата истечения не трогается.
func (s *Service) deactivate(ctx context.Context, lic *models.License) (*Result, error) {
	lic.Status = models.StatusInativo

	if err := s.repo.Update(ctx, lic); err != nil {
		return nil, err
	}
	s.log.Info("license deactivated", slog.String("email", lic.Email))

	return &Result{
		Action:    ActionDeactivated,
		Email:     lic.Email,
		Code:      lic.Code,
		PlanType:  lic.PlanType,
		ExpiresAt: lic.ExpiresAt,
	}, nil
}

func (s *Service) publish(result *Result) {
	if s.events == nil || result.Action == ActionIgnored || result.Action == ActionDuplicate {
		return
	}
	if err := s.events.Publish("license."+result.Action, result); err != nil {
		s.log.Warn("failed to publish lifecycle event", sl.Err(err))
	}
}
