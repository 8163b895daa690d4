package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"push-dispatcher/internal/domain"
	"push-dispatcher/internal/infra/metrics"
	"push-dispatcher/internal/usecase/dispatch"
	"push-dispatcher/internal/usecase/message"
	"push-dispatcher/internal/usecase/targets"
)

// DefaultPageSize — сколько созревших запросов берётся за один запуск.
const DefaultPageSize = 20

// Report — итог одного прохода по очереди.
type Report struct {
	Due            int
	Pending        int
	Delivered      int
	Skipped        int
	Failed         int
	DeleteFailures int
}

// Processor разбирает созревшие запросы очереди.
type Processor struct {
	requests   domain.RequestRepo
	resolver   *targets.Resolver
	dispatcher *dispatch.Dispatcher
	log        zerolog.Logger
	pageSize   int
}

// NewProcessor создаёт обработчик очереди.
func NewProcessor(requests domain.RequestRepo, resolver *targets.Resolver, dispatcher *dispatch.Dispatcher, logger zerolog.Logger, pageSize int) *Processor {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Processor{
		requests:   requests,
		resolver:   resolver,
		dispatcher: dispatcher,
		log:        logger,
		pageSize:   pageSize,
	}
}

// Run обрабатывает не больше одной страницы созревших запросов по возрастанию send_after.
// Запрос, который не удалось разрешить, остаётся в очереди до следующего запуска.
func (p *Processor) Run(ctx context.Context, now time.Time) (Report, error) {
	var report Report
	if !p.dispatcher.Configured() {
		p.log.Warn().Msg("queue: push transport is not configured")
		return report, nil
	}

	due, err := p.requests.ListDue(ctx, now, p.pageSize)
	if err != nil {
		return report, fmt.Errorf("список созревших запросов: %w", err)
	}
	report.Due = len(due)

	for _, req := range due {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		state := p.process(ctx, req, now)
		metrics.QueueRequestsTotal.WithLabelValues(string(state)).Inc()
		switch state {
		case domain.RequestPending:
			report.Pending++
			continue
		case domain.RequestFailed:
			report.Failed++
			continue
		case domain.RequestSkipped:
			report.Skipped++
		case domain.RequestDelivered:
			report.Delivered++
		}
		if err := p.requests.Delete(ctx, req.ID); err != nil {
			report.DeleteFailures++
			p.log.Error().Err(err).Str("request", req.ID).Msg("queue: не удалось удалить запрос")
		}
	}

	if report.Due > 0 {
		p.log.Info().
			Int("due", report.Due).
			Int("pending", report.Pending).
			Int("delivered", report.Delivered).
			Int("skipped", report.Skipped).
			Int("failed", report.Failed).
			Int("delete_failures", report.DeleteFailures).
			Msg("queue: проход завершён")
	}
	return report, nil
}

func (p *Processor) process(ctx context.Context, req domain.NotificationRequest, now time.Time) domain.RequestState {
	logger := p.log.With().Str("request", req.ID).Str("target", string(req.Target.Type)).Logger()

	// часы хранилища и воркера могут расходиться
	if req.StateAt(now) == domain.RequestPending {
		logger.Warn().Time("send_after", req.SendAfter).Msg("queue: запрос ещё не созрел")
		return domain.RequestPending
	}

	recipients, err := p.resolver.Resolve(ctx, req.Target)
	if err != nil {
		logger.Error().Err(err).Msg("queue: не удалось определить получателей")
		return domain.RequestFailed
	}
	if len(recipients) == 0 {
		logger.Info().Msg("queue: нет получателей")
		return domain.RequestSkipped
	}

	entries := message.Build(req, recipients, now)
	if len(entries) == 0 {
		logger.Info().Int("recipients", len(recipients)).Msg("queue: все получатели отфильтрованы")
		return domain.RequestSkipped
	}

	summary, err := p.dispatcher.Dispatch(ctx, entries)
	if err != nil {
		// тикеты потеряны, но сообщения уже ушли: повторять нельзя
		logger.Error().Err(err).Msg("queue: рассылка завершилась с ошибкой")
	}
	logger.Info().
		Int("entries", len(entries)).
		Int("succeeded", summary.Succeeded).
		Int("errored", summary.Errored).
		Msg("queue: запрос доставлен")
	return domain.RequestDelivered
}
