package repo

import (
	"context"
	"time"

	"push-dispatcher/internal/domain"
	"push-dispatcher/internal/infra/metrics"
)

// ListDeadlinesBetween возвращает сохранённые конкурсы с from <= deadline < to.
func (p *Postgres) ListDeadlinesBetween(ctx context.Context, from, to time.Time) ([]domain.SavedItem, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT id, user_id, title, deadline
FROM saved_items
WHERE deadline >= $1 AND deadline < $2
ORDER BY user_id, deadline, id
`, from, to)
	metrics.ObserveNetworkRequest("postgres", "saved_items_list_deadlines", "saved_items", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.SavedItem
	for rows.Next() {
		var item domain.SavedItem
		if err := rows.Scan(&item.ID, &item.UserID, &item.Title, &item.Deadline); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}
