package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"push-dispatcher/internal/domain"
	"push-dispatcher/internal/infra/metrics"
)

const settingsColumns = `user_id, enabled, preferences, quiet_start, quiet_end, timezone, device_tokens, updated_at`

func scanSettings(row pgx.Row) (domain.RecipientSettings, error) {
	var (
		s          domain.RecipientSettings
		prefsRaw   []byte
		quietStart *int16
		quietEnd   *int16
		tokensRaw  []byte
	)
	if err := row.Scan(&s.UserID, &s.Enabled, &prefsRaw, &quietStart, &quietEnd, &s.Timezone, &tokensRaw, &s.UpdatedAt); err != nil {
		return domain.RecipientSettings{}, err
	}
	s.Preferences = decodePreferences(prefsRaw)
	if quietStart != nil && quietEnd != nil {
		s.QuietHours = &domain.QuietHours{StartHour: int(*quietStart), EndHour: int(*quietEnd)}
	}
	s.DeviceTokens = decodeTokens(tokensRaw)
	return s, nil
}

// decodePreferences читает только булевы значения известных тем.
func decodePreferences(raw []byte) domain.Preferences {
	var values map[string]any
	if err := json.Unmarshal(raw, &values); err != nil {
		return domain.Preferences{}
	}
	flags := make(map[string]bool, len(values))
	for key, value := range values {
		if b, ok := value.(bool); ok {
			flags[key] = b
		}
	}
	return domain.ParsePreferences(flags)
}

// decodeTokens пропускает элементы, которые не удаётся разобрать.
func decodeTokens(raw []byte) []domain.DeviceToken {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	tokens := make([]domain.DeviceToken, 0, len(items))
	for _, item := range items {
		var token domain.DeviceToken
		if err := json.Unmarshal(item, &token); err != nil {
			continue
		}
		tokens = append(tokens, token)
	}
	return tokens
}

func collectSettings(rows pgx.Rows) ([]domain.RecipientSettings, error) {
	defer rows.Close()
	var out []domain.RecipientSettings
	for rows.Next() {
		s, err := scanSettings(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// GetSettings возвращает настройки пользователя или domain.ErrNotFound.
func (p *Postgres) GetSettings(ctx context.Context, userID string) (domain.RecipientSettings, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	s, err := scanSettings(p.pool.QueryRow(ctx, `SELECT `+settingsColumns+` FROM recipient_settings WHERE user_id=$1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "recipient_settings_get", "recipient_settings", start, nil)
		return domain.RecipientSettings{}, domain.ErrNotFound
	}
	metrics.ObserveNetworkRequest("postgres", "recipient_settings_get", "recipient_settings", start, err)
	return s, err
}

// GetByIDs возвращает найденные настройки в порядке идентификаторов; отсутствующие пропускаются.
func (p *Postgres) GetByIDs(ctx context.Context, userIDs []string) ([]domain.RecipientSettings, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+settingsColumns+`
FROM recipient_settings
WHERE user_id = ANY($1::text[])
ORDER BY array_position($1::text[], user_id)
`, userIDs)
	metrics.ObserveNetworkRequest("postgres", "recipient_settings_get_many", "recipient_settings", start, err)
	if err != nil {
		return nil, err
	}
	return collectSettings(rows)
}

// ListEnabled возвращает всех пользователей с включёнными уведомлениями.
func (p *Postgres) ListEnabled(ctx context.Context) ([]domain.RecipientSettings, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `SELECT `+settingsColumns+` FROM recipient_settings WHERE enabled ORDER BY user_id`)
	metrics.ObserveNetworkRequest("postgres", "recipient_settings_list_enabled", "recipient_settings", start, err)
	if err != nil {
		return nil, err
	}
	return collectSettings(rows)
}

// ListByTopic возвращает пользователей, явно подписанных на тему. Флаг enabled
// здесь не проверяется, это делает вызывающая сторона.
func (p *Postgres) ListByTopic(ctx context.Context, topic domain.Topic) ([]domain.RecipientSettings, error) {
	if !topic.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidTopic, topic)
	}
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	rows, err := p.pool.Query(ctx, `
SELECT `+settingsColumns+`
FROM recipient_settings
WHERE preferences -> $1::text = 'true'::jsonb
ORDER BY user_id
`, string(topic))
	metrics.ObserveNetworkRequest("postgres", "recipient_settings_list_topic", "recipient_settings", start, err)
	if err != nil {
		return nil, err
	}
	return collectSettings(rows)
}

// UpsertSettings перечитывает настройки под блокировкой строки, применяет mutate
// и сохраняет результат. Отсутствующая запись создаётся со значениями по умолчанию.
func (p *Postgres) UpsertSettings(ctx context.Context, userID string, mutate func(*domain.RecipientSettings) error) (domain.RecipientSettings, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "recipient_settings", start, err)
	if err != nil {
		return domain.RecipientSettings{}, err
	}
	defer tx.Rollback(ctx)

	start = time.Now()
	_, err = tx.Exec(ctx, `
INSERT INTO recipient_settings (user_id) VALUES ($1)
ON CONFLICT (user_id) DO NOTHING
`, userID)
	metrics.ObserveNetworkRequest("postgres", "recipient_settings_ensure", "recipient_settings", start, err)
	if err != nil {
		return domain.RecipientSettings{}, err
	}

	start = time.Now()
	settings, err := scanSettings(tx.QueryRow(ctx, `SELECT `+settingsColumns+` FROM recipient_settings WHERE user_id=$1 FOR UPDATE`, userID))
	metrics.ObserveNetworkRequest("postgres", "recipient_settings_get_for_update", "recipient_settings", start, err)
	if err != nil {
		return domain.RecipientSettings{}, err
	}

	if err := mutate(&settings); err != nil {
		return domain.RecipientSettings{}, err
	}
	settings.UserID = userID
	if settings.Timezone == "" {
		settings.Timezone = domain.DefaultTimezone
	}

	if err := writeSettings(ctx, tx, settings); err != nil {
		return domain.RecipientSettings{}, err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "recipient_settings", start, err)
	if err != nil {
		return domain.RecipientSettings{}, err
	}
	return settings, nil
}

func writeSettings(ctx context.Context, tx pgx.Tx, s domain.RecipientSettings) error {
	prefs, err := json.Marshal(s.Preferences.Raw())
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}
	tokens := s.DeviceTokens
	if tokens == nil {
		tokens = []domain.DeviceToken{}
	}
	tokensRaw, err := json.Marshal(tokens)
	if err != nil {
		return fmt.Errorf("marshal device tokens: %w", err)
	}
	var quietStart, quietEnd *int16
	if s.QuietHours != nil {
		qs, qe := int16(s.QuietHours.StartHour), int16(s.QuietHours.EndHour)
		quietStart, quietEnd = &qs, &qe
	}

	start := time.Now()
	_, err = tx.Exec(ctx, `
UPDATE recipient_settings
SET enabled=$2, preferences=$3, quiet_start=$4, quiet_end=$5, timezone=$6, device_tokens=$7, updated_at=now()
WHERE user_id=$1
`, s.UserID, s.Enabled, prefs, quietStart, quietEnd, s.Timezone, tokensRaw)
	metrics.ObserveNetworkRequest("postgres", "recipient_settings_update", "recipient_settings", start, err)
	return err
}

// RegisterDeviceToken добавляет токен в начало списка внутри транзакции.
func (p *Postgres) RegisterDeviceToken(ctx context.Context, userID string, token domain.DeviceToken, limit int) ([]domain.DeviceToken, error) {
	settings, err := p.UpsertSettings(ctx, userID, func(s *domain.RecipientSettings) error {
		s.DeviceTokens = domain.RegisterToken(s.DeviceTokens, token, limit)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settings.DeviceTokens, nil
}

// RemoveDeviceToken удаляет ровно этот токен из актуального списка пользователя.
// Если записи нет или токена в ней уже нет, ничего не меняется.
func (p *Postgres) RemoveDeviceToken(ctx context.Context, userID, token string) (bool, error) {
	ctx, cancel := p.connCtx(ctx)
	defer cancel()

	start := time.Now()
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	metrics.ObserveNetworkRequest("postgres", "begin_tx", "recipient_settings", start, err)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	start = time.Now()
	settings, err := scanSettings(tx.QueryRow(ctx, `SELECT `+settingsColumns+` FROM recipient_settings WHERE user_id=$1 FOR UPDATE`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		metrics.ObserveNetworkRequest("postgres", "recipient_settings_get_for_update", "recipient_settings", start, nil)
		return false, nil
	}
	metrics.ObserveNetworkRequest("postgres", "recipient_settings_get_for_update", "recipient_settings", start, err)
	if err != nil {
		return false, err
	}

	next, removed := domain.WithoutToken(settings.DeviceTokens, token)
	if !removed {
		return false, nil
	}
	settings.DeviceTokens = next
	if err := writeSettings(ctx, tx, settings); err != nil {
		return false, err
	}

	start = time.Now()
	err = tx.Commit(ctx)
	metrics.ObserveNetworkRequest("postgres", "commit", "recipient_settings", start, err)
	if err != nil {
		return false, err
	}
	return true, nil
}
