package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"push-dispatcher/internal/domain"
	"push-dispatcher/internal/infra/metrics"
)

// ErrTransportNotConfigured возвращается, если push-транспорт не задан.
var ErrTransportNotConfigured = errors.New("push transport is not configured")

const defaultBatchSize = 100

// TopicSummary — счётчики по одной теме.
type TopicSummary struct {
	Attempted int
	Succeeded int
	Errored   int
}

// Summary — итог одной рассылки. Используется только для наблюдаемости.
type Summary struct {
	Attempted int
	Succeeded int
	Errored   int
	Invalid   int
	ByTopic   map[string]TopicSummary
	// Tickets — тикеты провайдера в порядке отправленных сообщений.
	// Сообщения из отклонённых пачек тикетов не имеют.
	Tickets []domain.PushTicket
}

func (s *Summary) add(topic string, attempted, succeeded, errored int) {
	s.Attempted += attempted
	s.Succeeded += succeeded
	s.Errored += errored
	ts := s.ByTopic[topic]
	ts.Attempted += attempted
	ts.Succeeded += succeeded
	ts.Errored += errored
	s.ByTopic[topic] = ts
}

// Dispatcher отправляет записи доставки пачками и сохраняет тикеты.
type Dispatcher struct {
	transport domain.PushTransport
	tickets   domain.TicketRepo
	alerter   domain.Alerter
	log       zerolog.Logger
	now       func() time.Time
}

// NewDispatcher создаёт диспетчер. transport и alerter могут быть nil.
func NewDispatcher(transport domain.PushTransport, tickets domain.TicketRepo, alerter domain.Alerter, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		tickets:   tickets,
		alerter:   alerter,
		log:       logger,
		now:       time.Now,
	}
}

// Configured сообщает, задан ли транспорт.
func (d *Dispatcher) Configured() bool {
	return d != nil && d.transport != nil
}

// Dispatch отправляет записи. Ошибка одной пачки или одного сообщения не
// прерывает остальные. Возвращаемая ошибка означает только сбой сохранения тикетов.
func (d *Dispatcher) Dispatch(ctx context.Context, entries []domain.DeliveryEntry) (Summary, error) {
	summary := Summary{ByTopic: map[string]TopicSummary{}}
	if !d.Configured() {
		d.log.Warn().Msg("dispatch: push transport is not configured")
		return summary, ErrTransportNotConfigured
	}

	valid := make([]domain.DeliveryEntry, 0, len(entries))
	for _, e := range entries {
		if !d.transport.ValidToken(e.Token) {
			summary.Invalid++
			d.log.Warn().Str("token", e.Token).Str("user", e.UserID).Str("topic", e.Topic).Msg("dispatch: токен не прошёл проверку формата")
			continue
		}
		valid = append(valid, e)
	}
	if len(valid) == 0 {
		return summary, nil
	}

	batchSize := d.transport.MaxBatchSize()
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}

	var pending []domain.DeliveryTicket
	for start := 0; start < len(valid); start += batchSize {
		end := start + batchSize
		if end > len(valid) {
			end = len(valid)
		}
		batch := valid[start:end]
		pending = append(pending, d.sendBatch(ctx, batch, &summary)...)
	}

	for topic, ts := range summary.ByTopic {
		metrics.ObservePush(topic, domain.PushStatusOK, ts.Succeeded)
		metrics.ObservePush(topic, domain.PushStatusError, ts.Errored)
	}

	d.log.Info().
		Int("attempted", summary.Attempted).
		Int("succeeded", summary.Succeeded).
		Int("errored", summary.Errored).
		Int("invalid", summary.Invalid).
		Int("tickets", len(pending)).
		Msg("dispatch: рассылка завершена")

	if summary.Errored > 0 {
		d.alert(ctx, summary)
	}

	if len(pending) == 0 {
		return summary, nil
	}
	if err := d.tickets.SaveTickets(ctx, pending); err != nil {
		metrics.PushTicketPersistErrors.Inc()
		d.log.Error().Err(err).Int("tickets", len(pending)).Msg("dispatch: не удалось сохранить тикеты")
		return summary, fmt.Errorf("сохранение тикетов: %w", err)
	}
	return summary, nil
}

func (d *Dispatcher) sendBatch(ctx context.Context, batch []domain.DeliveryEntry, summary *Summary) []domain.DeliveryTicket {
	messages := make([]domain.PushMessage, 0, len(batch))
	for _, e := range batch {
		messages = append(messages, domain.PushMessage{
			To:    e.Token,
			Title: e.Title,
			Body:  e.Body,
			Data:  e.Data,
			Sound: "default",
		})
	}

	tickets, err := d.transport.Send(ctx, messages)
	if err != nil {
		metrics.PushBatchErrors.Inc()
		d.log.Error().Err(err).Int("size", len(batch)).Msg("dispatch: провайдер отклонил пачку")
		for _, e := range batch {
			summary.add(e.Topic, 1, 0, 1)
		}
		return nil
	}

	createdAt := d.now().UTC()
	var persisted []domain.DeliveryTicket
	for i, e := range batch {
		if i >= len(tickets) {
			d.log.Error().Str("token", e.Token).Str("user", e.UserID).Msg("dispatch: провайдер не вернул тикет")
			summary.add(e.Topic, 1, 0, 1)
			continue
		}
		ticket := tickets[i]
		summary.Tickets = append(summary.Tickets, ticket)
		if ticket.Status != domain.PushStatusOK {
			summary.add(e.Topic, 1, 0, 1)
			d.log.Error().
				Str("token", e.Token).
				Str("user", e.UserID).
				Str("topic", e.Topic).
				Str("platform", e.Platform).
				Str("title", e.Title).
				Str("provider_message", ticket.Message).
				Interface("details", ticket.Details).
				Msg("dispatch: провайдер вернул ошибку для сообщения")
			continue
		}
		summary.add(e.Topic, 1, 1, 0)
		if ticket.ID == "" {
			continue
		}
		persisted = append(persisted, domain.DeliveryTicket{
			TicketID:  ticket.ID,
			Token:     e.Token,
			UserID:    e.UserID,
			Topic:     e.Topic,
			Platform:  e.Platform,
			CreatedAt: createdAt,
		})
	}
	return persisted
}

func (d *Dispatcher) alert(ctx context.Context, summary Summary) {
	if d.alerter == nil {
		return
	}
	topics := make([]string, 0, len(summary.ByTopic))
	for topic := range summary.ByTopic {
		topics = append(topics, topic)
	}
	sort.Strings(topics)

	var b strings.Builder
	fmt.Fprintf(&b, "push: %d из %d сообщений с ошибкой\n", summary.Errored, summary.Attempted)
	for _, topic := range topics {
		ts := summary.ByTopic[topic]
		if ts.Errored == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s: %d/%d\n", topic, ts.Errored, ts.Attempted)
	}
	if err := d.alerter.Alert(ctx, b.String()); err != nil {
		d.log.Warn().Err(err).Msg("dispatch: не удалось отправить оповещение")
	}
}
