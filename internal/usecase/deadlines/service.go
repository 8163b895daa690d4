package deadlines

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"push-dispatcher/internal/domain"
	"push-dispatcher/internal/usecase/dispatch"
	"push-dispatcher/internal/usecase/message"
)

// Window — горизонт, в пределах которого дедлайн считается близким.
const Window = 24 * time.Hour

// Title — заголовок сводки о дедлайнах.
const Title = "마감 임박 알림"

// DataType — значение data.type в сводке.
const DataType = "contest_deadline"

// Report — итог одного запуска сводки.
type Report struct {
	Items      int
	Users      int
	Notified   int
	Suppressed int
	Dispatch   dispatch.Summary
}

// Service рассылает пользователям сводку о конкурсах, у которых скоро дедлайн.
type Service struct {
	items      domain.SavedItemRepo
	recipients domain.RecipientRepo
	dispatcher *dispatch.Dispatcher
	log        zerolog.Logger
}

// NewService создаёт сервис сводки.
func NewService(items domain.SavedItemRepo, recipients domain.RecipientRepo, dispatcher *dispatch.Dispatcher, logger zerolog.Logger) *Service {
	return &Service{items: items, recipients: recipients, dispatcher: dispatcher, log: logger}
}

// Run рассылает по одной сводке каждому пользователю с дедлайнами в [now, now+24h).
func (s *Service) Run(ctx context.Context, now time.Time) (Report, error) {
	var report Report
	if !s.dispatcher.Configured() {
		s.log.Warn().Msg("deadlines: push transport is not configured")
		return report, nil
	}

	items, err := s.items.ListDeadlinesBetween(ctx, now, now.Add(Window))
	if err != nil {
		return report, fmt.Errorf("список дедлайнов: %w", err)
	}
	report.Items = len(items)
	if len(items) == 0 {
		s.log.Info().Msg("deadlines: нет ближайших дедлайнов")
		return report, nil
	}

	byUser := groupByUser(items)
	userIDs := make([]string, 0, len(byUser))
	for userID := range byUser {
		userIDs = append(userIDs, userID)
	}
	sort.Strings(userIDs)
	report.Users = len(userIDs)

	recipients, err := s.recipients.GetByIDs(ctx, userIDs)
	if err != nil {
		return report, fmt.Errorf("настройки получателей: %w", err)
	}

	builder := message.NewBuilder()
	for _, settings := range recipients {
		userItems := byUser[settings.UserID]
		if len(userItems) == 0 {
			continue
		}
		if !domain.ShouldDeliver(settings, domain.TopicReminders, now) {
			report.Suppressed++
			continue
		}
		if builder.Add(settings, Digest(userItems)) > 0 {
			report.Notified++
		}
	}

	entries := builder.Entries()
	if len(entries) == 0 {
		s.log.Info().Int("users", report.Users).Int("suppressed", report.Suppressed).Msg("deadlines: некому отправлять")
		return report, nil
	}

	summary, err := s.dispatcher.Dispatch(ctx, entries)
	report.Dispatch = summary
	if err != nil {
		return report, err
	}
	s.log.Info().
		Int("items", report.Items).
		Int("users", report.Users).
		Int("notified", report.Notified).
		Int("suppressed", report.Suppressed).
		Msg("deadlines: сводка разослана")
	return report, nil
}

// groupByUser группирует конкурсы и сортирует их по (дедлайн, id).
func groupByUser(items []domain.SavedItem) map[string][]domain.SavedItem {
	out := make(map[string][]domain.SavedItem)
	for _, item := range items {
		out[item.UserID] = append(out[item.UserID], item)
	}
	for _, list := range out {
		sort.Slice(list, func(i, j int) bool {
			if !list[i].Deadline.Equal(list[j].Deadline) {
				return list[i].Deadline.Before(list[j].Deadline)
			}
			return list[i].ID < list[j].ID
		})
	}
	return out
}

// Digest собирает текст сводки; items уже отсортированы, первый — ближайший.
func Digest(items []domain.SavedItem) message.Content {
	nearest := items[0]
	body := fmt.Sprintf("'%s' 마감이 24시간 이내로 다가왔어요.", nearest.Title)
	if len(items) > 1 {
		body = fmt.Sprintf("'%s' 외 %d개 공모전 마감이 24시간 이내로 다가왔어요.", nearest.Title, len(items)-1)
	}
	return message.Content{
		Title: Title,
		Body:  body,
		Data: map[string]any{
			"type":   DataType,
			"itemId": nearest.ID,
			"count":  len(items),
		},
		Topic: string(domain.TopicReminders),
	}
}
