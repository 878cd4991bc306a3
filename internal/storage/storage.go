// Package storage определяет контракт хранилища лицензий.
//
// Единственное персистентное хранилище сервиса — таблица licenses,
// доступная либо через внешний hosted-сервис (airtable), либо через
// PostgreSQL при self-hosted развёртывании. Хранилище не гарантирует
// уникальность кода: при нескольких совпадениях реализации возвращают
// первую запись в порядке выдачи хранилища (документированный tie-break).
package storage

import (
	"context"
	"errors"

	"github.com/luthierpro/license-service/internal/models"
)

// ErrLicenseNotFound возвращается при отсутствии записи по ключу поиска.
var ErrLicenseNotFound = errors.New("license not found")

// Store описывает операции над таблицей лицензий.
type Store interface {
	// FindByID возвращает лицензию по идентификатору записи.
	FindByID(ctx context.Context, id string) (*models.License, error)
	// FindByCode возвращает лицензию по полю code.
	FindByCode(ctx context.Context, code string) (*models.License, error)
	// FindByKey возвращает лицензию по устаревшему полю license_key.
	FindByKey(ctx context.Context, key string) (*models.License, error)
	// FindByEmail возвращает все лицензии владельца.
	FindByEmail(ctx context.Context, email string) ([]*models.License, error)
	// FindTrial возвращает незаблокированную trial7-лицензию владельца.
	FindTrial(ctx context.Context, email string) (*models.License, error)
	// Create создаёт запись и возвращает её с назначенным ID.
	Create(ctx context.Context, lic *models.License) (*models.License, error)
	// Update перезаписывает изменяемые поля записи одним вызовом.
	// Запись идентифицируется по lic.ID. Последняя запись побеждает,
	// оптимистических проверок версий нет.
	Update(ctx context.Context, lic *models.License) error
	// Delete удаляет запись по ID. Используется только админским контуром.
	Delete(ctx context.Context, id string) error
	// List возвращает все записи, отсортированные по code.
	List(ctx context.Context) ([]*models.License, error)
}
