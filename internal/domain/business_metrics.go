package domain

import (
	"context"
	"time"
)

// BusinessMetric описывает бизнесовое событие, которое сохраняется для последующего анализа.
type BusinessMetric struct {
	Event      string
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

const (
	// BusinessMetricEventDeviceRegistered фиксирует регистрацию токена устройства.
	BusinessMetricEventDeviceRegistered = "device_registered"
	// BusinessMetricEventDeviceUnregistered фиксирует отвязку устройства пользователем.
	BusinessMetricEventDeviceUnregistered = "device_unregistered"
	// BusinessMetricEventTokenInvalidated фиксирует удаление токена по квитанции провайдера.
	BusinessMetricEventTokenInvalidated = "token_invalidated"
	// BusinessMetricEventNotificationQueued фиксирует постановку запроса в очередь.
	BusinessMetricEventNotificationQueued = "notification_queued"
	// BusinessMetricEventAccountDeleted фиксирует удаление аккаунта.
	BusinessMetricEventAccountDeleted = "account_deleted"
	// BusinessMetricEventJobCompleted фиксирует завершение периодической задачи.
	BusinessMetricEventJobCompleted = "job_completed"
)

// BusinessMetricRepo сохраняет бизнесовые события.
type BusinessMetricRepo interface {
	RecordBusinessMetric(ctx context.Context, metric BusinessMetric) error
}
