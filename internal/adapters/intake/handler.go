package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"push-dispatcher/internal/domain"
	"push-dispatcher/internal/infra/metrics"
	"push-dispatcher/internal/infra/queue"
)

// ErrInvalidPayload возвращается для сообщений, которые нельзя поставить в очередь.
var ErrInvalidPayload = errors.New("invalid notification request")

// Handler принимает запросы на уведомления из брокера и кладёт их в очередь.
type Handler struct {
	requests domain.RequestRepo
	events   domain.BusinessMetricRepo
	validate *validator.Validate
	log      zerolog.Logger
	now      func() time.Time
}

// NewHandler создаёт обработчик. events может быть nil.
func NewHandler(requests domain.RequestRepo, events domain.BusinessMetricRepo, logger zerolog.Logger) *Handler {
	return &Handler{
		requests: requests,
		events:   events,
		validate: validator.New(),
		log:      logger,
		now:      time.Now,
	}
}

// Decode разбирает и проверяет тело сообщения.
func (h *Handler) Decode(body []byte) (domain.NotificationRequest, error) {
	var req domain.NotificationRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return domain.NotificationRequest{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := h.validate.Struct(req); err != nil {
		return domain.NotificationRequest{}, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if req.Target.Type == domain.TargetUser && len(req.Target.UserIDs) == 0 {
		return domain.NotificationRequest{}, fmt.Errorf("%w: %v", ErrInvalidPayload, domain.ErrInvalidTarget)
	}
	req.ID = ""
	req.CreatedAt = h.now().UTC()
	if req.SendAfter.IsZero() {
		req.SendAfter = req.CreatedAt
	}
	return req, nil
}

// Handle реализует queue.Handler.
func (h *Handler) Handle(ctx context.Context, body []byte) queue.Outcome {
	req, err := h.Decode(body)
	if err != nil {
		metrics.IntakeMessagesTotal.WithLabelValues("invalid").Inc()
		h.log.Warn().Err(err).Int("bytes", len(body)).Msg("intake: сообщение отклонено")
		return queue.Reject
	}
	saved, err := h.requests.Enqueue(ctx, req)
	if err != nil {
		metrics.IntakeMessagesTotal.WithLabelValues("store_error").Inc()
		h.log.Error().Err(err).Msg("intake: не удалось сохранить запрос")
		return queue.Requeue
	}
	metrics.IntakeMessagesTotal.WithLabelValues("queued").Inc()
	if h.events != nil {
		if err := h.events.RecordBusinessMetric(ctx, domain.BusinessMetric{
			Event:    domain.BusinessMetricEventNotificationQueued,
			Metadata: map[string]any{"request_id": saved.ID, "target": saved.Target.Label()},
		}); err != nil {
			h.log.Warn().Err(err).Msg("intake: не удалось записать событие")
		}
	}
	h.log.Info().
		Str("request", saved.ID).
		Str("target", string(saved.Target.Type)).
		Time("send_after", saved.SendAfter).
		Msg("intake: запрос поставлен в очередь")
	return queue.Ack
}
