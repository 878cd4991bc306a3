package license

import (
	"time"

	"github.com/luthierpro/license-service/internal/models"
)

// Status результат оценки лицензии политикой истечения.
type Status string

const (
	// StatusActive лицензия действует.
	StatusActive Status = "active"
	// StatusInactive статус записи не ativo, даты не проверяются.
	StatusInactive Status = "inactive"
	// StatusExpired срок действия истёк.
	StatusExpired Status = "expired"
	// StatusNoExpiration дата истечения не установлена или нечитаема
	// у плана с ограниченным сроком. Трактуется как отказ: дата у trial7
	// проставляется при первой проверке, у mensal — событием покупки,
	// поэтому её отсутствие означает ещё не активированную запись.
	StatusNoExpiration Status = "no_expiration"
	// StatusBlocked запись жёстко заблокирована администратором.
	StatusBlocked Status = "blocked"
)

// Denied сообщает, означает ли статус отказ в доступе.
func (s Status) Denied() bool {
	return s != StatusActive
}

// EndOfDay возвращает момент, до которого включительно действует дата
// без времени: полночь UTC следующего дня. Лицензия с expires_at,
// равной сегодняшней дате, действует до конца дня.
func EndOfDay(dateOnly time.Time) time.Time {
	d := dateOnly.UTC()
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC).AddDate(0, 0, 1)
}

// Evaluate вычисляет статус лицензии на момент now. Чистая функция,
// без ввода-вывода. Порядок проверок фиксирован: блокировка, статус
// записи, вечный план, отсутствие даты, сравнение с датой.
func Evaluate(lic *models.License, now time.Time) Status {
	if lic.Blocked {
		return StatusBlocked
	}
	if lic.Status != models.StatusAtivo {
		return StatusInactive
	}
	if lic.PlanType == models.PlanVitalicio {
		// Вечный план: поле даты игнорируется, даже если заполнено.
		return StatusActive
	}
	if lic.ExpiresAt == nil {
		return StatusNoExpiration
	}
	if now.Before(EndOfDay(*lic.ExpiresAt)) {
		return StatusActive
	}
	return StatusExpired
}
