// Package app собирает зависимости, общие для бинарников.
package app

import (
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"push-dispatcher/internal/adapters/expo"
	"push-dispatcher/internal/adapters/memory"
	"push-dispatcher/internal/adapters/repo"
	"push-dispatcher/internal/adapters/telegram"
	"push-dispatcher/internal/domain"
	"push-dispatcher/internal/infra/cache"
	"push-dispatcher/internal/infra/config"
	"push-dispatcher/internal/infra/db"
)

// Store объединяет все хранилища; реализуется repo.Postgres и memory.Store.
type Store interface {
	domain.RecipientRepo
	domain.DeviceTokenRepo
	domain.RequestRepo
	domain.TicketRepo
	domain.SavedItemRepo
	domain.AccountRepo
	domain.BusinessMetricRepo
}

var (
	_ Store = (*repo.Postgres)(nil)
	_ Store = (*memory.Store)(nil)
)

// ErrNoDatabase возвращается, если PG_DSN не задан вне dev-окружения.
var ErrNoDatabase = errors.New("PG_DSN is required outside dev")

// OpenStore подключается к Postgres и применяет миграции. В dev без PG_DSN
// возвращает хранилище в памяти.
func OpenStore(cfg config.AppConfig, logger zerolog.Logger) (Store, func(), error) {
	if cfg.PGDSN == "" {
		if cfg.AppEnv != "dev" {
			return nil, nil, ErrNoDatabase
		}
		logger.Warn().Msg("PG_DSN не задан, используется хранилище в памяти")
		return memory.NewStore(), func() {}, nil
	}
	pool, err := db.Connect(cfg.PGDSN)
	if err != nil {
		return nil, nil, err
	}
	if err := db.Migrate(pool); err != nil {
		pool.Close()
		return nil, nil, err
	}
	return repo.NewPostgres(pool), pool.Close, nil
}

// PushTransport выбирает транспорт: nil при PUSH_DISABLED, транспорт в памяти
// при PUSH_DRY_RUN, иначе клиент Expo.
func PushTransport(cfg config.AppConfig, logger zerolog.Logger) domain.PushTransport {
	switch {
	case cfg.Push.Disabled:
		logger.Warn().Msg("push: рассылка отключена (PUSH_DISABLED)")
		return nil
	case cfg.Push.DryRun:
		logger.Warn().Msg("push: режим dry-run, сообщения только пишутся в лог")
		return memory.NewTransport(cfg.Push.SendBatchSize, logger)
	default:
		return expo.NewClient(cfg.Push.AccessToken, cfg.Push.ExpoBaseURL, cfg.Push.RequestTimeout, cfg.Push.SendBatchSize)
	}
}

// Alerter создаёт отправителя алертов в Telegram; nil, если он не настроен.
func Alerter(cfg config.AppConfig, logger zerolog.Logger) domain.Alerter {
	if cfg.Alerts.TelegramToken == "" || cfg.Alerts.ChatID == 0 {
		return nil
	}
	bot, err := tgbotapi.NewBotAPI(cfg.Alerts.TelegramToken)
	if err != nil {
		logger.Error().Err(err).Msg("alerts: не удалось подключиться к Telegram, алерты отключены")
		return nil
	}
	return telegram.NewAlerter(bot, cfg.Alerts.ChatID, logger)
}

// Redis возвращает клиента Redis или nil, если REDIS_ADDR не задан.
func Redis(cfg config.AppConfig) *redis.Client {
	if cfg.RedisAddr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
}

// Locker выбирает блокировку задач: Redis, если он настроен, иначе локальную.
func Locker(client *redis.Client, logger zerolog.Logger) domain.Locker {
	if client == nil {
		logger.Warn().Msg("REDIS_ADDR не задан, блокировка задач только в пределах процесса")
		return cache.NewLocal()
	}
	return cache.NewRedis(client)
}
