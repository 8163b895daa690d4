package jobs

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"push-dispatcher/internal/domain"
	"push-dispatcher/internal/infra/metrics"
)

// Func выполняет один запуск задачи и возвращает поля для журнала событий.
type Func func(ctx context.Context, now time.Time) (map[string]any, error)

// Job — периодическая задача.
type Job struct {
	Name     domain.JobName
	Interval time.Duration
	// At, если задан, — локальное время первого запуска вида "09:00".
	At  string
	Run Func
}

// Runner запускает задачи под блокировкой и с таймаутом.
type Runner struct {
	locker  domain.Locker
	events  domain.BusinessMetricRepo
	timeout time.Duration
	loc     *time.Location
	log     zerolog.Logger
	now     func() time.Time
}

// NewRunner создаёт планировщик. events может быть nil.
func NewRunner(locker domain.Locker, events domain.BusinessMetricRepo, timeout time.Duration, loc *time.Location, logger zerolog.Logger) *Runner {
	if loc == nil {
		loc = time.UTC
	}
	return &Runner{
		locker:  locker,
		events:  events,
		timeout: timeout,
		loc:     loc,
		log:     logger,
		now:     time.Now,
	}
}

// RunOnce выполняет задачу, если её не выполняет другой экземпляр.
// Возвращает false, если блокировка занята.
func (r *Runner) RunOnce(ctx context.Context, job Job) (bool, error) {
	logger := r.log.With().Str("job", string(job.Name)).Logger()
	lockTTL := r.timeout + time.Minute
	release, ok, err := r.locker.TryLock(ctx, string(job.Name), lockTTL)
	if err != nil {
		logger.Error().Err(err).Msg("scheduler: не удалось взять блокировку")
		return false, fmt.Errorf("блокировка %s: %w", job.Name, err)
	}
	if !ok {
		metrics.JobSkippedTotal.WithLabelValues(string(job.Name)).Inc()
		logger.Info().Msg("scheduler: задача уже выполняется")
		return false, nil
	}
	defer release()

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	start := r.now()
	fields, err := job.Run(runCtx, start)
	metrics.ObserveJob(string(job.Name), start, err)
	if err != nil {
		logger.Error().Err(err).Dur("duration", time.Since(start)).Msg("scheduler: задача завершилась с ошибкой")
	} else {
		logger.Info().Dur("duration", time.Since(start)).Fields(fields).Msg("scheduler: задача выполнена")
	}

	if r.events != nil {
		metadata := map[string]any{"job": string(job.Name), "success": err == nil}
		for k, v := range fields {
			metadata[k] = v
		}
		if recErr := r.events.RecordBusinessMetric(context.WithoutCancel(ctx), domain.BusinessMetric{
			Event:    domain.BusinessMetricEventJobCompleted,
			Metadata: metadata,
		}); recErr != nil {
			logger.Warn().Err(recErr).Msg("scheduler: не удалось записать событие")
		}
	}
	return true, err
}

// Loop запускает задачу по расписанию до отмены ctx. Запуски привязаны к сетке
// At + k*Interval (или первому запуску + k*Interval) и не сдвигаются на время выполнения.
func (r *Runner) Loop(ctx context.Context, job Job) {
	if job.Interval <= 0 {
		r.log.Warn().Str("job", string(job.Name)).Msg("scheduler: интервал не задан, задача отключена")
		return
	}
	next := r.now()
	if job.At != "" {
		first, err := NextAt(next, job.At, r.loc)
		if err != nil {
			r.log.Error().Err(err).Str("job", string(job.Name)).Msg("scheduler: некорректное время запуска")
			return
		}
		r.log.Info().Str("job", string(job.Name)).Time("next", first).Msg("scheduler: ожидание первого запуска")
		next = first
	}

	timer := time.NewTimer(next.Sub(r.now()))
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		_, _ = r.RunOnce(ctx, job)
		next = nextRun(next, r.now(), job.Interval)
		timer.Reset(next.Sub(r.now()))
	}
}

// nextRun возвращает первый момент сетки scheduled + k*interval после now.
// Слоты, пропущенные из-за долгого запуска, не догоняются.
func nextRun(scheduled, now time.Time, interval time.Duration) time.Time {
	next := scheduled.Add(interval)
	if next.After(now) {
		return next
	}
	missed := now.Sub(next)/interval + 1
	return next.Add(missed * interval)
}

// NextAt возвращает ближайший момент после now, когда в loc будет at ("HH:MM").
func NextAt(now time.Time, at string, loc *time.Location) (time.Time, error) {
	hour, minute, err := parseClock(at)
	if err != nil {
		return time.Time{}, err
	}
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = next.AddDate(0, 0, 1)
	}
	return next, nil
}

func parseClock(at string) (int, int, error) {
	parts := strings.Split(strings.TrimSpace(at), ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("ожидали HH:MM, получили %q", at)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("некорректный час в %q", at)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("некорректные минуты в %q", at)
	}
	return hour, minute, nil
}
