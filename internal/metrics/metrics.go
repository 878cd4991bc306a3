// Package metrics регистрирует счётчики Prometheus сервиса лицензий.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Validations счётчик валидаций по итоговому статусу
// (active, expired, inactive, blocked, no_expiration, not_found).
var Validations = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "license_validations_total",
	Help: "Validation requests by outcome status.",
}, []string{"status"})

// WebhookEvents счётчик обработанных событий провайдера покупок по действию
// (created, extended, deactivated, duplicate, ignored).
var WebhookEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "license_webhook_events_total",
	Help: "Purchase provider webhook events by resulting action.",
}, []string{"action"})

// TrialsIssued счётчик выданных пробных кодов (created или reused).
var TrialsIssued = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "license_trials_issued_total",
	Help: "Trial issuance requests by result.",
}, []string{"result"})
