package receipts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"push-dispatcher/internal/domain"
	"push-dispatcher/internal/infra/metrics"
)

const (
	defaultBatchSize   = 200
	defaultConcurrency = 8
)

// DefaultMinAge — сколько тикет ждёт, прежде чем провайдер отдаст по нему квитанцию.
const DefaultMinAge = 15 * time.Minute

// Report — итог одной сверки квитанций.
type Report struct {
	Processed             int
	OK                    int
	Invalidated           int
	InvalidatedByPlatform map[string]int
	OtherErrors           int
	Missing               int
	RemoveFailures        int
}

// Reconciler сверяет квитанции доставки и удаляет токены удалённых приложений.
type Reconciler struct {
	tickets     domain.TicketRepo
	tokens      domain.DeviceTokenRepo
	transport   domain.PushTransport
	events      domain.BusinessMetricRepo
	log         zerolog.Logger
	batchSize   int
	minAge      time.Duration
	concurrency int
}

// NewReconciler создаёт сверщик. transport и events могут быть nil.
// Тикеты моложе minAge не сверяются.
func NewReconciler(tickets domain.TicketRepo, tokens domain.DeviceTokenRepo, transport domain.PushTransport, events domain.BusinessMetricRepo, logger zerolog.Logger, batchSize int, minAge time.Duration) *Reconciler {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if minAge <= 0 {
		minAge = DefaultMinAge
	}
	return &Reconciler{
		tickets:     tickets,
		tokens:      tokens,
		transport:   transport,
		events:      events,
		log:         logger,
		batchSize:   batchSize,
		minAge:      minAge,
		concurrency: defaultConcurrency,
	}
}

type removal struct {
	userID   string
	token    string
	platform string
}

// Run обрабатывает одну пачку несверенных тикетов старше minAge, начиная с самых старых.
// Если провайдер не ответил, тикеты остаются несверенными до следующего запуска.
func (r *Reconciler) Run(ctx context.Context, now time.Time) (Report, error) {
	report := Report{InvalidatedByPlatform: map[string]int{}}
	if r.transport == nil {
		r.log.Warn().Msg("receipts: push transport is not configured")
		return report, nil
	}

	batch, err := r.tickets.ListUnprocessed(ctx, now.Add(-r.minAge), r.batchSize)
	if err != nil {
		return report, fmt.Errorf("список несверенных тикетов: %w", err)
	}
	if len(batch) == 0 {
		return report, nil
	}

	ids := make([]string, 0, len(batch))
	for _, t := range batch {
		ids = append(ids, t.TicketID)
	}
	receipts, err := r.transport.GetReceipts(ctx, ids)
	if err != nil {
		return report, fmt.Errorf("получение квитанций: %w", err)
	}

	var removals []removal
	seen := map[removal]struct{}{}
	for _, t := range batch {
		receipt, ok := receipts[t.TicketID]
		switch {
		case !ok:
			report.Missing++
		case receipt.Status == domain.PushStatusOK:
			report.OK++
			metrics.ReceiptsTotal.WithLabelValues(platformLabel(t.Platform), "ok").Inc()
		case receipt.TokenInvalidated():
			rm := removal{userID: t.UserID, token: t.Token, platform: platformLabel(t.Platform)}
			if _, dup := seen[rm]; !dup {
				seen[rm] = struct{}{}
				removals = append(removals, rm)
			}
			metrics.ReceiptsTotal.WithLabelValues(rm.platform, "device_not_registered").Inc()
		default:
			report.OtherErrors++
			metrics.ReceiptsTotal.WithLabelValues(platformLabel(t.Platform), "error").Inc()
			r.log.Warn().
				Str("ticket", t.TicketID).
				Str("user", t.UserID).
				Str("token", t.Token).
				Str("code", receipt.ErrorCode()).
				Str("provider_message", receipt.Message).
				Msg("receipts: ошибка доставки")
		}
	}

	r.removeTokens(ctx, removals, &report)

	if err := r.tickets.MarkProcessed(ctx, ids); err != nil {
		return report, fmt.Errorf("отметка тикетов: %w", err)
	}
	report.Processed = len(batch)

	r.log.Info().
		Int("processed", report.Processed).
		Int("ok", report.OK).
		Int("invalidated", report.Invalidated).
		Interface("invalidated_by_platform", report.InvalidatedByPlatform).
		Int("other_errors", report.OtherErrors).
		Int("missing", report.Missing).
		Int("remove_failures", report.RemoveFailures).
		Msg("receipts: сверка завершена")
	return report, nil
}

// removeTokens удаляет токены параллельно. Сбой на одном пользователе не
// останавливает остальных.
func (r *Reconciler) removeTokens(ctx context.Context, removals []removal, report *Report) {
	if len(removals) == 0 {
		return
	}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for _, rm := range removals {
		g.Go(func() error {
			removed, err := r.tokens.RemoveDeviceToken(gctx, rm.userID, rm.token)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.RemoveFailures++
				r.log.Error().Err(err).Str("user", rm.userID).Str("token", rm.token).Msg("receipts: не удалось удалить токен")
				return nil
			}
			if !removed {
				return nil
			}
			report.Invalidated++
			report.InvalidatedByPlatform[rm.platform]++
			metrics.TokensRemovedTotal.WithLabelValues("device_not_registered").Inc()
			if r.events != nil {
				_ = r.events.RecordBusinessMetric(gctx, domain.BusinessMetric{
					Event:    domain.BusinessMetricEventTokenInvalidated,
					UserID:   rm.userID,
					Metadata: map[string]any{"platform": rm.platform},
				})
			}
			return nil
		})
	}
	_ = g.Wait()
}

func platformLabel(platform string) string {
	if platform == "" {
		return domain.PlatformUnknown
	}
	return platform
}
