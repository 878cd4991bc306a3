package license

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/luthierpro/license-service/internal/models"
)

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestEvaluate(t *testing.T) {
	now := time.Date(2026, time.March, 15, 12, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		lic  models.License
		want Status
	}{
		{
			name: "активная mensal с датой в будущем",
			lic: models.License{
				PlanType:  models.PlanMensal,
				Status:    models.StatusAtivo,
				ExpiresAt: date(2026, time.April, 1),
			},
			want: StatusActive,
		},
		{
			name: "mensal истекает сегодня, действует до конца дня",
			lic: models.License{
				PlanType:  models.PlanMensal,
				Status:    models.StatusAtivo,
				ExpiresAt: date(2026, time.March, 15),
			},
			want: StatusActive,
		},
		{
			name: "mensal истекла вчера",
			lic: models.License{
				PlanType:  models.PlanMensal,
				Status:    models.StatusAtivo,
				ExpiresAt: date(2026, time.March, 14),
			},
			want: StatusExpired,
		},
		{
			name: "vitalicio без даты",
			lic: models.License{
				PlanType: models.PlanVitalicio,
				Status:   models.StatusAtivo,
			},
			want: StatusActive,
		},
		{
			name: "vitalicio с истёкшей датой игнорирует дату",
			lic: models.License{
				PlanType:  models.PlanVitalicio,
				Status:    models.StatusAtivo,
				ExpiresAt: date(2020, time.January, 1),
			},
			want: StatusActive,
		},
		{
			name: "mensal без даты — отказ no_expiration",
			lic: models.License{
				PlanType: models.PlanMensal,
				Status:   models.StatusAtivo,
			},
			want: StatusNoExpiration,
		},
		{
			name: "trial7 без даты — ещё не активирован",
			lic: models.License{
				PlanType: models.PlanTrial7,
				Status:   models.StatusAtivo,
			},
			want: StatusNoExpiration,
		},
		{
			name: "inativo даже с датой в будущем",
			lic: models.License{
				PlanType:  models.PlanMensal,
				Status:    models.StatusInativo,
				ExpiresAt: date(2027, time.January, 1),
			},
			want: StatusInactive,
		},
		{
			name: "inativo vitalicio",
			lic: models.License{
				PlanType: models.PlanVitalicio,
				Status:   models.StatusInativo,
			},
			want: StatusInactive,
		},
		{
			name: "блокировка сильнее всех остальных проверок",
			lic: models.License{
				PlanType:  models.PlanVitalicio,
				Status:    models.StatusAtivo,
				Blocked:   true,
				ExpiresAt: date(2027, time.January, 1),
			},
			want: StatusBlocked,
		},
		{
			name: "пустой статус трактуется как inactive",
			lic: models.License{
				PlanType:  models.PlanMensal,
				ExpiresAt: date(2027, time.January, 1),
			},
			want: StatusInactive,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Evaluate(&tt.lic, now)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.want != StatusActive, got.Denied())
		})
	}
}

func TestEndOfDay(t *testing.T) {
	d := time.Date(2026, time.March, 15, 0, 0, 0, 0, time.UTC)
	eod := EndOfDay(d)

	assert.Equal(t, time.Date(2026, time.March, 16, 0, 0, 0, 0, time.UTC), eod)

	// Последняя секунда дня ещё внутри срока, полночь следующего — уже нет.
	assert.True(t, time.Date(2026, time.March, 15, 23, 59, 59, 0, time.UTC).Before(eod))
	assert.False(t, eod.Before(eod))
}
