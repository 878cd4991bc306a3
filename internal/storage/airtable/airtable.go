// Package airtable реализует хранилище лицензий поверх внешнего
// hosted-сервиса таблиц (Airtable REST API). Это хранилище по умолчанию:
// одна таблица licenses, поиск через filterByFormula, запись через
// PATCH/POST отдельных записей. Транзакций и проверки версий нет,
// последняя запись побеждает.
package airtable

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/luthierpro/license-service/internal/models"
	"github.com/luthierpro/license-service/internal/storage"
)

const dateOnly = "2006-01-02"

// Client инкапсулирует доступ к таблице лицензий через REST API.
type Client struct {
	apiURL     string
	baseID     string
	apiKey     string
	table      string
	httpClient *http.Client
}

// New создаёт клиент hosted-хранилища. apiURL в проде —
// https://api.airtable.com/v0, в тестах подменяется на httptest-сервер.
func New(apiURL, baseID, apiKey, table string) *Client {
	return &Client{
		apiURL:     strings.TrimSuffix(apiURL, "/"),
		baseID:     baseID,
		apiKey:     apiKey,
		table:      table,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

type record struct {
	ID          string         `json:"id,omitempty"`
	CreatedTime time.Time      `json:"createdTime,omitempty"`
	Fields      map[string]any `json:"fields"`
}

type recordList struct {
	Records []record `json:"records"`
	Offset  string   `json:"offset,omitempty"`
}

// escapeFormulaValue экранирует значение для подстановки в filterByFormula.
// Значения всегда оборачиваются в одинарные кавычки, чтобы исключить
// инъекцию в формулу.
func escapeFormulaValue(v string) string {
	return "'" + strings.ReplaceAll(v, "'", "\\'") + "'"
}

func (c *Client) tableURL() string {
	return fmt.Sprintf("%s/%s/%s", c.apiURL, c.baseID, url.PathEscape(c.table))
}

func (c *Client) do(ctx context.Context, method, rawURL string, body any) ([]byte, int, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, 0, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, rawURL, &buf)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return data, resp.StatusCode, nil
}

// query выполняет выборку по формуле, прозрачно проходя страницы выдачи.
func (c *Client) query(ctx context.Context, formula string, maxRecords int, sortByCode bool) ([]record, error) {
	const op = "airtable.query"

	var all []record
	offset := ""
	for {
		params := url.Values{}
		if formula != "" {
			params.Set("filterByFormula", formula)
		}
		if maxRecords > 0 {
			params.Set("maxRecords", fmt.Sprint(maxRecords))
		}
		if sortByCode {
			params.Set("sort[0][field]", "code")
		}
		if offset != "" {
			params.Set("offset", offset)
		}

		data, status, err := c.do(ctx, http.MethodGet, c.tableURL()+"?"+params.Encode(), nil)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("%s: unexpected status %d: %s", op, status, string(data))
		}

		var page recordList
		if err := json.Unmarshal(data, &page); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		all = append(all, page.Records...)

		if page.Offset == "" || (maxRecords > 0 && len(all) >= maxRecords) {
			return all, nil
		}
		offset = page.Offset
	}
}

func (c *Client) findOne(ctx context.Context, formula string) (*models.License, error) {
	recs, err := c.query(ctx, formula, 1, false)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, storage.ErrLicenseNotFound
	}
	// Уникальность кода хранилищем не гарантируется: берём первую запись
	// в порядке выдачи хранилища.
	return decode(recs[0]), nil
}

// FindByID возвращает лицензию по идентификатору записи.
func (c *Client) FindByID(ctx context.Context, id string) (*models.License, error) {
	const op = "airtable.FindByID"

	data, status, err := c.do(ctx, http.MethodGet, c.tableURL()+"/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if status == http.StatusNotFound {
		return nil, storage.ErrLicenseNotFound
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d: %s", op, status, string(data))
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return decode(rec), nil
}

// FindByCode возвращает лицензию по полю code.
func (c *Client) FindByCode(ctx context.Context, code string) (*models.License, error) {
	return c.findOne(ctx, fmt.Sprintf("{code} = %s", escapeFormulaValue(code)))
}

// FindByKey возвращает лицензию по устаревшему полю license_key.
func (c *Client) FindByKey(ctx context.Context, key string) (*models.License, error) {
	return c.findOne(ctx, fmt.Sprintf("{license_key} = %s", escapeFormulaValue(key)))
}

// FindByEmail возвращает все лицензии владельца.
func (c *Client) FindByEmail(ctx context.Context, email string) ([]*models.License, error) {
	recs, err := c.query(ctx, fmt.Sprintf("{email} = %s", escapeFormulaValue(models.NormalizeEmail(email))), 0, false)
	if err != nil {
		return nil, err
	}
	out := make([]*models.License, 0, len(recs))
	for _, r := range recs {
		out = append(out, decode(r))
	}
	return out, nil
}

// FindTrial возвращает незаблокированную trial7-лицензию владельца.
func (c *Client) FindTrial(ctx context.Context, email string) (*models.License, error) {
	formula := fmt.Sprintf("AND({email} = %s, {plan_type} = 'trial7', NOT({blocked}))",
		escapeFormulaValue(models.NormalizeEmail(email)))
	return c.findOne(ctx, formula)
}

// Create создаёт запись и возвращает её с назначенным хранилищем ID.
func (c *Client) Create(ctx context.Context, lic *models.License) (*models.License, error) {
	const op = "airtable.Create"

	data, status, err := c.do(ctx, http.MethodPost, c.tableURL(), record{Fields: encode(lic)})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, fmt.Errorf("%s: unexpected status %d: %s", op, status, string(data))
	}

	var created record
	if err := json.Unmarshal(data, &created); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return decode(created), nil
}

// Update перезаписывает изменяемые поля записи одним PATCH-запросом.
func (c *Client) Update(ctx context.Context, lic *models.License) error {
	const op = "airtable.Update"

	data, status, err := c.do(ctx, http.MethodPatch, c.tableURL()+"/"+url.PathEscape(lic.ID), record{Fields: encode(lic)})
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if status == http.StatusNotFound {
		return storage.ErrLicenseNotFound
	}
	if status != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d: %s", op, status, string(data))
	}
	return nil
}

// Delete удаляет запись по ID.
func (c *Client) Delete(ctx context.Context, id string) error {
	const op = "airtable.Delete"

	data, status, err := c.do(ctx, http.MethodDelete, c.tableURL()+"/"+url.PathEscape(id), nil)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if status == http.StatusNotFound {
		return storage.ErrLicenseNotFound
	}
	if status != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d: %s", op, status, string(data))
	}
	return nil
}

// List возвращает все записи, отсортированные по code.
func (c *Client) List(ctx context.Context) ([]*models.License, error) {
	recs, err := c.query(ctx, "", 0, true)
	if err != nil {
		return nil, err
	}
	out := make([]*models.License, 0, len(recs))
	for _, r := range recs {
		out = append(out, decode(r))
	}
	return out, nil
}

// encode сериализует лицензию в поля записи. expires_at и last_used
// включаются всегда: null очищает поле даты в хранилище (нужно для
// vitalicio без срока действия).
func encode(lic *models.License) map[string]any {
	fields := map[string]any{
		"code":         lic.Code,
		"license_key":  lic.LicenseKey,
		"email":        lic.Email,
		"name":         lic.Name,
		"plan_type":    lic.PlanType,
		"status":       lic.Status,
		"blocked":      lic.Blocked,
		"use_count":    lic.UseCount,
		"ip_history":   lic.JoinIPHistory(),
		"flagged":      lic.Flagged,
		"order_id":     lic.OrderID,
		"last_ip":      lic.LastIP,
		"last_ua":      lic.LastUA,
		"notes":        lic.Notes,
		"max_devices":  lic.MaxDevices,
		"device_count": lic.DeviceCount,
	}
	if lic.ExpiresAt != nil {
		fields["expires_at"] = lic.ExpiresAt.Format(dateOnly)
	} else {
		fields["expires_at"] = nil
	}
	if lic.LastUsed != nil {
		fields["last_used"] = lic.LastUsed.Format(time.RFC3339)
	} else {
		fields["last_used"] = nil
	}
	return fields
}

func decode(r record) *models.License {
	lic := &models.License{
		ID:          r.ID,
		Code:        str(r.Fields, "code"),
		LicenseKey:  str(r.Fields, "license_key"),
		Email:       str(r.Fields, "email"),
		Name:        str(r.Fields, "name"),
		PlanType:    strings.ToLower(str(r.Fields, "plan_type")),
		Status:      strings.ToLower(str(r.Fields, "status")),
		Blocked:     boolean(r.Fields, "blocked"),
		UseCount:    integer(r.Fields, "use_count"),
		IPHistory:   models.SplitIPHistory(str(r.Fields, "ip_history")),
		Flagged:     boolean(r.Fields, "flagged"),
		OrderID:     str(r.Fields, "order_id"),
		LastIP:      str(r.Fields, "last_ip"),
		LastUA:      str(r.Fields, "last_ua"),
		Notes:       str(r.Fields, "notes"),
		MaxDevices:  integer(r.Fields, "max_devices"),
		DeviceCount: integer(r.Fields, "device_count"),
		CreatedAt:   r.CreatedTime,
	}
	// Нечитаемая дата приравнивается к отсутствующей: политика истечения
	// трактует её как no_expiration.
	if raw := str(r.Fields, "expires_at"); raw != "" {
		if ts, err := time.Parse(dateOnly, raw); err == nil {
			lic.ExpiresAt = &ts
		}
	}
	if raw := str(r.Fields, "last_used"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			lic.LastUsed = &ts
		}
	}
	return lic
}

func str(fields map[string]any, key string) string {
	if v, ok := fields[key].(string); ok {
		return v
	}
	return ""
}

func boolean(fields map[string]any, key string) bool {
	if v, ok := fields[key].(bool); ok {
		return v
	}
	return false
}

func integer(fields map[string]any, key string) int {
	if v, ok := fields[key].(float64); ok {
		return int(v)
	}
	return 0
}
