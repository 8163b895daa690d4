package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

var (
	PushMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "push_messages_total",
		Help: "Сообщения, переданные провайдеру, по теме и статусу",
	}, []string{"topic", "status"})

	PushBatchErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "push_batch_errors_total",
		Help: "Пачки, которые провайдер не принял целиком",
	})

	PushTicketPersistErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "push_ticket_persist_errors_total",
		Help: "Ошибки сохранения тикетов доставки",
	})

	ReceiptsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "push_receipts_total",
		Help: "Сверенные квитанции по платформе и результату",
	}, []string{"platform", "result"})

	TokensRemovedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "push_tokens_removed_total",
		Help: "Удалённые токены устройств по причине",
	}, []string{"reason"})

	QueueRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notification_requests_total",
		Help: "Обработанные запросы очереди по итоговому состоянию",
	}, []string{"state"})

	IntakeMessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "intake_messages_total",
		Help: "Сообщения из очереди приёма по результату",
	}, []string{"result"})

	JobDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "job_duration_seconds",
		Help:    "Длительность периодических задач",
		Buckets: prometheus.DefBuckets,
	}, []string{"job", "status"})

	JobSkippedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "job_skipped_total",
		Help: "Запуски, пропущенные из-за занятой блокировки",
	}, []string{"job"})

	NetworkRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "network_request_duration_seconds",
		Help:    "Длительность сетевых запросов",
		Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 15, 20, 25, 30, 45, 60, 90, 120},
	}, []string{"component", "operation", "target", "status"})

	NetworkRequestTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "network_request_total",
		Help: "Количество сетевых запросов",
	}, []string{"component", "operation", "target", "status"})
)

// MustRegister регистрирует метрики.
func MustRegister(registerer prometheus.Registerer) {
	registerer.MustRegister(
		PushMessagesTotal,
		PushBatchErrors,
		PushTicketPersistErrors,
		ReceiptsTotal,
		TokensRemovedTotal,
		QueueRequestsTotal,
		IntakeMessagesTotal,
		JobDuration,
		JobSkippedTotal,
		NetworkRequestDuration,
		NetworkRequestTotal,
	)
}

// Handler возвращает обработчик /metrics для встраивания в существующий роутер.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StartServer запускает HTTP сервер с эндпоинтом /metrics.
func StartServer(ctx context.Context, logger zerolog.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	srv := &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	shutdownCtx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-ctx.Done():
		case <-shutdownCtx.Done():
		}
		shutdownTimeout, timeoutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer timeoutCancel()
		if err := srv.Shutdown(shutdownTimeout); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: graceful shutdown failed")
		}
	}()

	go func() {
		logger.Info().Str("addr", addr).Msg("metrics: server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics: server stopped")
		}
		cancel()
	}()
}

// ObserveNetworkRequest записывает длительность и статус сетевого запроса.
func ObserveNetworkRequest(component, operation, target string, start time.Time, err error) {
	if component == "" {
		component = "unknown"
	}
	if operation == "" {
		operation = "unknown"
	}
	if target == "" {
		target = "unknown"
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	duration := time.Since(start).Seconds()
	NetworkRequestDuration.WithLabelValues(component, operation, target, status).Observe(duration)
	NetworkRequestTotal.WithLabelValues(component, operation, target, status).Inc()
}

// ObservePush учитывает результат отправки сообщений по теме.
func ObservePush(topic, status string, count int) {
	if count <= 0 {
		return
	}
	if topic == "" {
		topic = "unknown"
	}
	PushMessagesTotal.WithLabelValues(topic, status).Add(float64(count))
}

// ObserveJob записывает длительность периодической задачи.
func ObserveJob(job string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	JobDuration.WithLabelValues(job, status).Observe(time.Since(start).Seconds())
}
