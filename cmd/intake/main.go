package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"push-dispatcher/internal/adapters/intake"
	"push-dispatcher/internal/app"
	"push-dispatcher/internal/infra/config"
	applog "push-dispatcher/internal/infra/log"
	"push-dispatcher/internal/infra/metrics"
	"push-dispatcher/internal/infra/queue"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)
	log := applog.Component(logger, "intake")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := app.OpenStore(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("intake: нет подключения к БД")
	}
	defer closeStore()

	var consumer queue.Consumer
	switch cfg.Intake.Backend {
	case "redis":
		client := app.Redis(cfg)
		if client == nil {
			log.Fatal().Msg("intake: для INTAKE_BACKEND=redis нужен REDIS_ADDR")
		}
		defer client.Close()
		consumer = queue.NewRedisConsumer(client, cfg.Intake.RedisKey)
	case "rabbitmq":
		consumer, err = queue.NewRabbitConsumer(cfg.Intake.RabbitURL, cfg.Intake.Queue, cfg.Intake.Prefetch)
		if err != nil {
			log.Fatal().Err(err).Msg("intake: нет подключения к RabbitMQ")
		}
	default:
		log.Fatal().Str("backend", cfg.Intake.Backend).Msg("intake: неизвестный INTAKE_BACKEND")
	}
	defer consumer.Close()

	handler := intake.NewHandler(store, store, log)
	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)

	log.Info().Str("backend", cfg.Intake.Backend).Msg("intake: старт")
	if err := consumer.Consume(ctx, handler.Handle); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("intake: потребитель остановлен")
	}
	log.Info().Msg("intake: остановка")
}
