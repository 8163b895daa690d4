package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"push-dispatcher/internal/domain"
	"push-dispatcher/internal/infra/metrics"
)

// Enqueue сохраняет запрос на уведомление. Пустые ID и CreatedAt заполняются.
func (p *Postgres) Enqueue(ctx context.Context, req domain.NotificationRequest) (domain.NotificationRequest, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.SendAfter.IsZero() {
		req.SendAfter = req.CreatedAt
	}
	if req.Data == nil {
		req.Data = map[string]any{}
	}
	data, err := json.Marshal(req.Data)
	if err != nil {
		return domain.NotificationRequest{}, fmt.Errorf("marshal data: %w", err)
	}
	target, err := json.Marshal(req.Target)
	if err != nil {
		return domain.NotificationRequest{}, fmt.Errorf("marshal target: %w", err)
	}

	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err = p.pool.Exec(ctx, `
INSERT INTO notification_requests (id, title, body, data, target, send_after, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`, req.ID, req.Title, req.Body, data, target, req.SendAfter, req.CreatedAt)
	metrics.ObserveNetworkRequest("postgres", "notification_requests_insert", "notification_requests", start, err)
	if err != nil {
		return domain.NotificationRequest{}, err
	}
	return req, nil
}

// ListDue возвращает созревшие запросы по возрастанию send_after.
// Запись с некорректным target возвращается с пустым Target и никому не доставляется.
func (p *Postgres) ListDue(ctx context.Context, now time.Time, limit int) ([]domain.NotificationRequest, error) {
	if limit <= 0 {
		limit = 20
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, title, body, data, target, send_after, created_at
FROM notification_requests
WHERE send_after <= $1
ORDER BY send_after ASC, created_at ASC
LIMIT $2
`, now, limit)
	metrics.ObserveNetworkRequest("postgres", "notification_requests_list_due", "notification_requests", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.NotificationRequest
	for rows.Next() {
		var (
			req       domain.NotificationRequest
			id        uuid.UUID
			dataRaw   []byte
			targetRaw []byte
		)
		if err := rows.Scan(&id, &req.Title, &req.Body, &dataRaw, &targetRaw, &req.SendAfter, &req.CreatedAt); err != nil {
			return nil, err
		}
		req.ID = id.String()
		req.Data = domain.CoerceData(dataRaw)
		if err := json.Unmarshal(targetRaw, &req.Target); err != nil {
			req.Target = domain.Target{}
		}
		out = append(out, req)
	}
	return out, rows.Err()
}

// Delete удаляет обработанный запрос.
func (p *Postgres) Delete(ctx context.Context, id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("parse request id: %w", err)
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err = p.pool.Exec(ctx, `DELETE FROM notification_requests WHERE id=$1`, parsed)
	metrics.ObserveNetworkRequest("postgres", "notification_requests_delete", "notification_requests", start, err)
	return err
}
