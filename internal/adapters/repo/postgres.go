package repo

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"push-dispatcher/internal/domain"
	"push-dispatcher/internal/infra/metrics"
)

// Postgres реализует репозитории на основе pgxpool.
type Postgres struct {
	pool *pgxpool.Pool
}

var (
	_ domain.RecipientRepo      = (*Postgres)(nil)
	_ domain.DeviceTokenRepo    = (*Postgres)(nil)
	_ domain.RequestRepo        = (*Postgres)(nil)
	_ domain.TicketRepo         = (*Postgres)(nil)
	_ domain.SavedItemRepo      = (*Postgres)(nil)
	_ domain.AccountRepo        = (*Postgres)(nil)
	_ domain.BusinessMetricRepo = (*Postgres)(nil)
)

// NewPostgres создаёт адаптер БД.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (p *Postgres) connCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, 5*time.Second)
}

// RecordBusinessMetric сохраняет бизнесовую метрику в БД.
func (p *Postgres) RecordBusinessMetric(ctx context.Context, metric domain.BusinessMetric) error {
	if metric.Event == "" {
		return nil
	}
	if metric.OccurredAt.IsZero() {
		metric.OccurredAt = time.Now().UTC()
	}

	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	var userID *string
	if metric.UserID != "" {
		userID = &metric.UserID
	}

	payload := []byte("{}")
	if metric.Metadata != nil {
		if data, err := json.Marshal(metric.Metadata); err == nil {
			payload = data
		}
	}

	start := time.Now()
	_, err := p.pool.Exec(ctx, `
INSERT INTO business_metrics (event, user_id, metadata, occurred_at)
VALUES ($1, $2, $3, $4)
`, metric.Event, userID, payload, metric.OccurredAt)
	metrics.ObserveNetworkRequest("postgres", "business_metrics_insert", "business_metrics", start, err)
	return err
}
