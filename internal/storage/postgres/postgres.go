// Package postgres реализует хранилище лицензий на основе PostgreSQL
// для self-hosted развёртывания. Схема создаётся миграциями из каталога
// migrations. Семантика повторяет hosted-хранилище: уникальность кода
// не навязывается, при нескольких совпадениях возвращается первая запись
// в порядке создания.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	// Регистрация драйвера pgx для использования с database/sql.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/luthierpro/license-service/internal/models"
	"github.com/luthierpro/license-service/internal/storage"
)

// Storage инкапсулирует соединение с базой данных PostgreSQL.
type Storage struct {
	DB *sql.DB
}

// New создаёт подключение к PostgreSQL и проверяет его доступность.
func New(connectionString string) (*Storage, error) {
	const op = "postgres.New"

	db, err := sql.Open("pgx", connectionString)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err = db.PingContext(context.Background()); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &Storage{DB: db}, nil
}

const licenseColumns = `id, code, license_key, email, name, plan_type, status, blocked,
	expires_at, use_count, ip_history, flagged, order_id, last_ip, last_used, last_ua,
	notes, max_devices, device_count, created_at`

func scanLicense(row interface{ Scan(dest ...any) error }) (*models.License, error) {
	var (
		lic       models.License
		expiresAt sql.NullTime
		lastUsed  sql.NullTime
		ipHistory string
	)
	err := row.Scan(&lic.ID, &lic.Code, &lic.LicenseKey, &lic.Email, &lic.Name,
		&lic.PlanType, &lic.Status, &lic.Blocked, &expiresAt, &lic.UseCount,
		&ipHistory, &lic.Flagged, &lic.OrderID, &lic.LastIP, &lastUsed, &lic.LastUA,
		&lic.Notes, &lic.MaxDevices, &lic.DeviceCount, &lic.CreatedAt)
	if err != nil {
		return nil, err
	}
	if expiresAt.Valid {
		ts := expiresAt.Time.UTC().Truncate(24 * time.Hour)
		lic.ExpiresAt = &ts
	}
	if lastUsed.Valid {
		ts := lastUsed.Time
		lic.LastUsed = &ts
	}
	lic.IPHistory = models.SplitIPHistory(ipHistory)
	return &lic, nil
}

func (s *Storage) findOne(ctx context.Context, op, where string, arg any) (*models.License, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := fmt.Sprintf(`SELECT %s FROM licenses WHERE %s ORDER BY created_at LIMIT 1`,
		licenseColumns, where)
	lic, err := scanLicense(s.DB.QueryRowContext(ctx, query, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrLicenseNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return lic, nil
}

// FindByID возвращает лицензию по идентификатору записи.
func (s *Storage) FindByID(ctx context.Context, id string) (*models.License, error) {
	return s.findOne(ctx, "postgres.FindByID", "id = $1", id)
}

// FindByCode возвращает лицензию по полю code.
func (s *Storage) FindByCode(ctx context.Context, code string) (*models.License, error) {
	return s.findOne(ctx, "postgres.FindByCode", "code = $1", code)
}

// FindByKey возвращает лицензию по устаревшему полю license_key.
func (s *Storage) FindByKey(ctx context.Context, key string) (*models.License, error) {
	return s.findOne(ctx, "postgres.FindByKey", "license_key = $1", key)
}

// FindTrial возвращает незаблокированную trial7-лицензию владельца.
func (s *Storage) FindTrial(ctx context.Context, email string) (*models.License, error) {
	return s.findOne(ctx, "postgres.FindTrial",
		"email = $1 AND plan_type = 'trial7' AND NOT blocked", models.NormalizeEmail(email))
}

func (s *Storage) queryMany(ctx context.Context, op, query string, args ...any) ([]*models.License, error) {
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var result []*models.License
	for rows.Next() {
		lic, err := scanLicense(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		result = append(result, lic)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return result, nil
}

// FindByEmail возвращает все лицензии владельца.
func (s *Storage) FindByEmail(ctx context.Context, email string) ([]*models.License, error) {
	query := fmt.Sprintf(`SELECT %s FROM licenses WHERE email = $1 ORDER BY created_at`, licenseColumns)
	return s.queryMany(ctx, "postgres.FindByEmail", query, models.NormalizeEmail(email))
}

// List возвращает все записи, отсортированные по code.
func (s *Storage) List(ctx context.Context) ([]*models.License, error) {
	query := fmt.Sprintf(`SELECT %s FROM licenses ORDER BY code`, licenseColumns)
	return s.queryMany(ctx, "postgres.List", query)
}

// Create вставляет новую запись лицензии и возвращает её с назначенным ID.
func (s *Storage) Create(ctx context.Context, lic *models.License) (*models.License, error) {
	const op = "postgres.Create"
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `INSERT INTO licenses (code, license_key, email, name, plan_type, status, blocked,
			      expires_at, use_count, ip_history, flagged, order_id, last_ip, last_used, last_ua,
			      notes, max_devices, device_count)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
			  RETURNING id, created_at`
	created := *lic
	err := s.DB.QueryRowContext(ctx, query,
		lic.Code, lic.LicenseKey, lic.Email, lic.Name, lic.PlanType, lic.Status, lic.Blocked,
		nullTime(lic.ExpiresAt), lic.UseCount, lic.JoinIPHistory(), lic.Flagged, lic.OrderID,
		lic.LastIP, nullTime(lic.LastUsed), lic.LastUA, lic.Notes, lic.MaxDevices, lic.DeviceCount).
		Scan(&created.ID, &created.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &created, nil
}

// Update перезаписывает изменяемые поля записи по ID.
func (s *Storage) Update(ctx context.Context, lic *models.License) error {
	const op = "postgres.Update"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	query := `UPDATE licenses SET code = $2, license_key = $3, email = $4, name = $5,
			      plan_type = $6, status = $7, blocked = $8, expires_at = $9, use_count = $10,
			      ip_history = $11, flagged = $12, order_id = $13, last_ip = $14, last_used = $15,
			      last_ua = $16, notes = $17, max_devices = $18, device_count = $19
			  WHERE id = $1`
	res, err := s.DB.ExecContext(ctx, query, lic.ID,
		lic.Code, lic.LicenseKey, lic.Email, lic.Name, lic.PlanType, lic.Status, lic.Blocked,
		nullTime(lic.ExpiresAt), lic.UseCount, lic.JoinIPHistory(), lic.Flagged, lic.OrderID,
		lic.LastIP, nullTime(lic.LastUsed), lic.LastUA, lic.Notes, lic.MaxDevices, lic.DeviceCount)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return storage.ErrLicenseNotFound
	}
	return nil
}

// Delete удаляет запись по ID.
func (s *Storage) Delete(ctx context.Context, id string) error {
	const op = "postgres.Delete"
	select {
	case <-ctx.Done():
		return fmt.Errorf("%s: %w", op, ctx.Err())
	default:
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM licenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if affected == 0 {
		return storage.ErrLicenseNotFound
	}
	return nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
