package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"push-dispatcher/internal/domain"
	"push-dispatcher/internal/infra/metrics"
)

// SaveTickets сохраняет тикеты одной пачкой. Повторный тикет игнорируется.
func (p *Postgres) SaveTickets(ctx context.Context, tickets []domain.DeliveryTicket) error {
	if len(tickets) == 0 {
		return nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	batch := &pgx.Batch{}
	for _, t := range tickets {
		createdAt := t.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		platform := t.Platform
		if platform == "" {
			platform = domain.PlatformUnknown
		}
		batch.Queue(`
INSERT INTO delivery_tickets (ticket_id, token, user_id, topic, platform, processed, created_at)
VALUES ($1, $2, $3, $4, $5, FALSE, $6)
ON CONFLICT (ticket_id) DO NOTHING
`, t.TicketID, t.Token, t.UserID, t.Topic, platform, createdAt)
	}

	start := time.Now()
	err := p.pool.SendBatch(ctx, batch).Close()
	metrics.ObserveNetworkRequest("postgres", "delivery_tickets_insert", "delivery_tickets", start, err)
	return err
}

// ListUnprocessed возвращает самые старые несверенные тикеты не новее createdBefore.
func (p *Postgres) ListUnprocessed(ctx context.Context, createdBefore time.Time, limit int) ([]domain.DeliveryTicket, error) {
	if limit <= 0 {
		limit = 200
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT ticket_id, token, user_id, topic, platform, processed, created_at
FROM delivery_tickets
WHERE NOT processed AND created_at <= $1
ORDER BY created_at ASC
LIMIT $2
`, createdBefore, limit)
	metrics.ObserveNetworkRequest("postgres", "delivery_tickets_list_unprocessed", "delivery_tickets", start, err)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.DeliveryTicket
	for rows.Next() {
		var t domain.DeliveryTicket
		if err := rows.Scan(&t.TicketID, &t.Token, &t.UserID, &t.Topic, &t.Platform, &t.Processed, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MarkProcessed помечает тикеты обработанными одним запросом.
func (p *Postgres) MarkProcessed(ctx context.Context, ticketIDs []string) error {
	if len(ticketIDs) == 0 {
		return nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	_, err := p.pool.Exec(ctx, `UPDATE delivery_tickets SET processed=TRUE WHERE ticket_id = ANY($1::text[])`, ticketIDs)
	metrics.ObserveNetworkRequest("postgres", "delivery_tickets_mark_processed", "delivery_tickets", start, err)
	return err
}
