package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/prometheus/client_golang/prometheus"

	"push-dispatcher/internal/adapters/httpapi"
	"push-dispatcher/internal/adapters/storage"
	"push-dispatcher/internal/app"
	"push-dispatcher/internal/domain"
	"push-dispatcher/internal/infra/config"
	"push-dispatcher/internal/infra/firebase"
	httpinfra "push-dispatcher/internal/infra/http"
	applog "push-dispatcher/internal/infra/log"
	"push-dispatcher/internal/infra/metrics"
	"push-dispatcher/internal/usecase/devices"
)

func main() {
	cfg := config.Load()
	logger := applog.NewLogger(cfg.AppEnv)
	log := applog.Component(logger, "api")

	metrics.MustRegister(prometheus.DefaultRegisterer)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := app.OpenStore(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("api: нет подключения к БД")
	}
	defer closeStore()

	fb, err := firebase.Init(ctx, applog.Component(logger, "firebase"), firebase.Config{
		CredentialsPath: cfg.Firebase.CredentialsPath,
		ProjectID:       cfg.Firebase.ProjectID,
		StorageBucket:   cfg.Firebase.StorageBucket,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("api: не удалось инициализировать Firebase")
	}

	var files domain.FileStore
	if cfg.Firebase.StorageBucket != "" {
		client, err := fb.FirebaseApp.Storage(ctx)
		if err != nil {
			log.Fatal().Err(err).Msg("api: не удалось подключиться к Firebase Storage")
		}
		handle, err := client.DefaultBucket()
		if err != nil {
			log.Fatal().Err(err).Msg("api: бакет Firebase Storage недоступен")
		}
		files = storage.NewFileStore(storage.NewGCSBucket(handle, cfg.Firebase.StorageBucket))
	} else {
		log.Warn().Msg("api: FIREBASE_STORAGE_BUCKET не задан, файлы пользователей не удаляются")
	}

	svc := devices.NewService(devices.Deps{
		Recipients: store,
		Tokens:     store,
		Accounts:   store,
		Files:      files,
		Events:     store,
		Validator:  app.PushTransport(cfg, log),
	}, applog.Component(logger, "devices"))

	server := httpinfra.NewServer(applog.Component(logger, "http"))
	httpapi.NewHandler(svc, log).Register(server.Router, fb.AuthClient)

	metrics.StartServer(ctx, applog.Component(logger, "metrics"), cfg.MetricsAddr)
	go func() {
		if err := server.Start(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			log.Error().Err(err).Msg("api: сервер остановлен")
			stop()
		}
	}()
	<-ctx.Done()
	log.Info().Msg("api: остановка")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
