package domain

import (
	"context"
	"time"
)

// RecipientRepo — хранилище push-настроек пользователей.
type RecipientRepo interface {
	GetSettings(ctx context.Context, userID string) (RecipientSettings, error)
	GetByIDs(ctx context.Context, userIDs []string) ([]RecipientSettings, error)
	ListEnabled(ctx context.Context) ([]RecipientSettings, error)
	ListByTopic(ctx context.Context, topic Topic) ([]RecipientSettings, error)
	UpsertSettings(ctx context.Context, userID string, mutate func(*RecipientSettings) error) (RecipientSettings, error)
}

// DeviceTokenRepo изменяет список токенов транзакционно: текущий список
// перечитывается внутри транзакции, к нему применяется изменение, результат записывается.
type DeviceTokenRepo interface {
	RegisterDeviceToken(ctx context.Context, userID string, token DeviceToken, limit int) ([]DeviceToken, error)
	RemoveDeviceToken(ctx context.Context, userID, token string) (bool, error)
}

// RequestRepo — очередь запросов на уведомления.
type RequestRepo interface {
	Enqueue(ctx context.Context, req NotificationRequest) (NotificationRequest, error)
	ListDue(ctx context.Context, now time.Time, limit int) ([]NotificationRequest, error)
	Delete(ctx context.Context, id string) error
}

// TicketRepo хранит тикеты доставки для последующей сверки.
type TicketRepo interface {
	SaveTickets(ctx context.Context, tickets []DeliveryTicket) error
	// ListUnprocessed возвращает несверенные тикеты, созданные не позже createdBefore.
	ListUnprocessed(ctx context.Context, createdBefore time.Time, limit int) ([]DeliveryTicket, error)
	MarkProcessed(ctx context.Context, ticketIDs []string) error
}

// SavedItemRepo читает сохранённые конкурсы по диапазону дедлайнов.
type SavedItemRepo interface {
	ListDeadlinesBetween(ctx context.Context, from, to time.Time) ([]SavedItem, error)
}

// AccountRepo удаляет данные пользователя при закрытии аккаунта.
type AccountRepo interface {
	DeleteUserData(ctx context.Context, userID string) error
}

// FileStore удаляет загруженные пользователем файлы.
type FileStore interface {
	DeleteUserFiles(ctx context.Context, userID string) (int, error)
}

// PushTransport — внешний провайдер push-уведомлений.
type PushTransport interface {
	// ValidToken проверяет формат токена до отправки.
	ValidToken(token string) bool
	// MaxBatchSize — максимальное число сообщений в одном вызове Send.
	MaxBatchSize() int
	// Send отправляет пачку; тикеты возвращаются в порядке сообщений.
	Send(ctx context.Context, messages []PushMessage) ([]PushTicket, error)
	// GetReceipts возвращает квитанции по идентификаторам тикетов.
	GetReceipts(ctx context.Context, ticketIDs []string) (map[string]PushReceipt, error)
}

// Alerter уведомляет операторов о проблемах рассылки.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

// Locker не даёт двум экземплярам выполнять одну задачу одновременно.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool, err error)
}
