package repo

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"push-dispatcher/internal/infra/metrics"
)

// DeleteUserData удаляет настройки, сохранённые конкурсы и записи календаря
// пользователя в одной транзакции.
func (p *Postgres) DeleteUserData(ctx context.Context, userID string) error {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "accounts", start, err)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, stmt := range []struct {
		table string
		sql   string
	}{
		{"saved_items", `DELETE FROM saved_items WHERE user_id=$1`},
		{"calendar_entries", `DELETE FROM calendar_entries WHERE user_id=$1`},
		{"recipient_settings", `DELETE FROM recipient_settings WHERE user_id=$1`},
	} {
		start = time.Now()
		_, err = tx.Exec(ctx, stmt.sql, userID)
		metrics.ObserveNetworkRequest("postgres", stmt.table+"_delete", stmt.table, start, err)
		if err != nil {
			return err
		}
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "accounts", start, err)
	return err
}
