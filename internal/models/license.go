// Package models содержит доменные структуры лицензий,
// используемые в бизнес-логике и хранилище.
package models

import (
	"strings"
	"time"
)

// Типы планов лицензии. Вечная лицензия (vitalicio) никогда не истекает.
const (
	PlanMensal    = "mensal"
	PlanVitalicio = "vitalicio"
	PlanTrial7    = "trial7"
)

// Статусы лицензии. Статус меняется только событиями жизненного цикла
// (webhook покупки) или администратором, но не валидацией.
const (
	StatusAtivo   = "ativo"
	StatusInativo = "inativo"
)

// License представляет одну запись лицензии в хранилище.
//
// ExpiresAt хранит дату без времени (полночь UTC); nil означает,
// что дата истечения не установлена. IPHistory — множество различных IP,
// в хранилище сериализуется строкой с разделителем-запятой.
type License struct {
	ID          string     // Идентификатор записи, назначается хранилищем
	Code        string     // Основной ключ поиска, формат LP-XXXX-XXXX-XXXX
	LicenseKey  string     // Устаревший псевдоним кода, запасной ключ поиска
	Email       string     // Почта владельца, не уникальна
	Name        string     // Имя покупателя
	PlanType    string     // mensal | vitalicio | trial7
	Status      string     // ativo | inativo
	Blocked     bool       // Жёсткая блокировка, ставится только администратором
	ExpiresAt   *time.Time // Дата истечения (только дата), nil — не установлена
	UseCount    int        // Счётчик успешных валидаций, только растёт
	IPHistory   []string   // Множество различных IP за всё время
	Flagged     bool       // Липкий флаг подозрения на шаринг, false -> true только
	OrderID     string     // Идентификатор последней обработанной транзакции
	LastIP      string     // IP последней валидации
	LastUsed    *time.Time // Время последней валидации
	LastUA      string     // User-Agent последней валидации
	Notes       string
	MaxDevices  int // Зарезервировано под привязку устройств, логика не реализована
	DeviceCount int
	CreatedAt   time.Time
}

// HasIP сообщает, встречался ли уже данный IP в истории лицензии.
func (l *License) HasIP(ip string) bool {
	for _, known := range l.IPHistory {
		if known == ip {
			return true
		}
	}
	return false
}

// AddIP добавляет IP в историю, сохраняя семантику множества.
func (l *License) AddIP(ip string) {
	if ip == "" || l.HasIP(ip) {
		return
	}
	l.IPHistory = append(l.IPHistory, ip)
}

// DistinctIPCount возвращает количество различных IP в истории.
func (l *License) DistinctIPCount() int {
	return len(l.IPHistory)
}

// JoinIPHistory сериализует историю IP в строку для хранилища.
func (l *License) JoinIPHistory() string {
	return strings.Join(l.IPHistory, ",")
}

// SplitIPHistory разбирает строку из хранилища в множество IP,
// отбрасывая пустые элементы и дубликаты.
func SplitIPHistory(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	seen := make(map[string]struct{})
	for _, part := range strings.Split(raw, ",") {
		ip := strings.TrimSpace(part)
		if ip == "" {
			continue
		}
		if _, ok := seen[ip]; ok {
			continue
		}
		seen[ip] = struct{}{}
		out = append(out, ip)
	}
	return out
}

// NormalizeEmail приводит почту к канонической форме поиска.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
