package main

import (
	"context"
	"os/signal"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"

	"push-dispatcher/internal/app"
	"push-dispatcher/internal/domain"
	"push-dispatcher/internal/infra/config"
	applog "push-dispatcher/internal/infra/log"
	"push-dispatcher/internal/infra/metrics"
	"push-dispatcher/internal/usecase/deadlines"
	"push-dispatcher/internal/usecase/dispatch"
	"push-dispatcher/internal/usecase/jobs"
	"push-dispatcher/internal/usecase/queue"
	"push-dispatcher/internal/usecase/receipts"
	"push-dispatcher/internal/usecase/targets"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)
	log := applog.Component(logger, "scheduler")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := app.OpenStore(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("scheduler: нет подключения к БД")
	}
	defer closeStore()

	redisClient := app.Redis(cfg)
	if redisClient != nil {
		defer redisClient.Close()
	}

	loc, err := time.LoadLocation(cfg.Jobs.Timezone)
	if err != nil {
		log.Fatal().Err(err).Str("tz", cfg.Jobs.Timezone).Msg("scheduler: некорректный JOBS_TZ")
	}

	transport := app.PushTransport(cfg, log)
	dispatcher := dispatch.NewDispatcher(transport, store, app.Alerter(cfg, log), applog.Component(logger, "dispatch"))
	processor := queue.NewProcessor(store, targets.NewResolver(store), dispatcher, applog.Component(logger, "queue"), cfg.Jobs.QueuePageSize)
	digest := deadlines.NewService(store, store, dispatcher, applog.Component(logger, "deadlines"))
	reconciler := receipts.NewReconciler(store, store, transport, store, applog.Component(logger, "receipts"), cfg.Push.ReceiptBatchSize, cfg.Push.ReceiptMinAge)

	runner := jobs.NewRunner(app.Locker(redisClient, log), store, cfg.Jobs.Timeout, loc, log)
	schedule := []jobs.Job{
		{
			Name:     domain.JobNotificationQueue,
			Interval: cfg.Jobs.QueueInterval,
			Run: func(ctx context.Context, now time.Time) (map[string]any, error) {
				report, err := processor.Run(ctx, now)
				return map[string]any{
					"due":       report.Due,
					"delivered": report.Delivered,
					"skipped":   report.Skipped,
					"failed":    report.Failed,
				}, err
			},
		},
		{
			Name:     domain.JobContestDeadlines,
			Interval: cfg.Jobs.DeadlineInterval,
			At:       cfg.Jobs.DeadlineAt,
			Run: func(ctx context.Context, now time.Time) (map[string]any, error) {
				report, err := digest.Run(ctx, now)
				return map[string]any{
					"items":      report.Items,
					"users":      report.Users,
					"notified":   report.Notified,
					"suppressed": report.Suppressed,
				}, err
			},
		},
		{
			Name:     domain.JobReceiptCleanup,
			Interval: cfg.Jobs.ReceiptInterval,
			Run: func(ctx context.Context, now time.Time) (map[string]any, error) {
				report, err := reconciler.Run(ctx, now)
				return map[string]any{
					"processed":    report.Processed,
					"ok":           report.OK,
					"invalidated":  report.Invalidated,
					"other_errors": report.OtherErrors,
				}, err
			},
		},
	}

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	var wg sync.WaitGroup
	for _, job := range schedule {
		wg.Add(1)
		go func() {
			defer wg.Done()
			runner.Loop(ctx, job)
		}()
	}
	log.Info().Str("tz", loc.String()).Msg("scheduler: старт")
	<-ctx.Done()
	log.Info().Msg("scheduler: остановка")
	wg.Wait()
}
