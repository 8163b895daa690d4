package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"push-dispatcher/internal/domain"
)

// Store — хранилище в памяти процесса для локального запуска и тестов.
type Store struct {
	mu       sync.Mutex
	settings map[string]domain.RecipientSettings
	requests map[string]domain.NotificationRequest
	tickets  []domain.DeliveryTicket
	saved    []domain.SavedItem
	calendar map[string]int
	events   []domain.BusinessMetric
	failures map[string]error
}

var (
	_ domain.RecipientRepo      = (*Store)(nil)
	_ domain.DeviceTokenRepo    = (*Store)(nil)
	_ domain.RequestRepo        = (*Store)(nil)
	_ domain.TicketRepo         = (*Store)(nil)
	_ domain.SavedItemRepo      = (*Store)(nil)
	_ domain.AccountRepo        = (*Store)(nil)
	_ domain.BusinessMetricRepo = (*Store)(nil)
)

// NewStore создаёт пустое хранилище.
func NewStore() *Store {
	return &Store{
		settings: map[string]domain.RecipientSettings{},
		requests: map[string]domain.NotificationRequest{},
		calendar: map[string]int{},
		failures: map[string]error{},
	}
}

// FailOn заставляет операцию op возвращать err; nil снимает сбой.
func (s *Store) FailOn(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failures, op)
		return
	}
	s.failures[op] = err
}

func (s *Store) fail(op string) error {
	return s.failures[op]
}

// PutSettings записывает настройки как есть.
func (s *Store) PutSettings(settings domain.RecipientSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings[settings.UserID] = cloneSettings(settings)
}

// AddSavedItem добавляет сохранённый конкурс.
func (s *Store) AddSavedItem(item domain.SavedItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, item)
}

// AddCalendarEntry добавляет запись календаря пользователя.
func (s *Store) AddCalendarEntry(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calendar[userID]++
}

// SavedItemCount возвращает число сохранённых конкурсов пользователя.
func (s *Store) SavedItemCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, item := range s.saved {
		if item.UserID == userID {
			n++
		}
	}
	return n
}

// CalendarEntryCount возвращает число записей календаря пользователя.
func (s *Store) CalendarEntryCount(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calendar[userID]
}

// Tickets возвращает копию всех тикетов.
func (s *Store) Tickets() []domain.DeliveryTicket {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.DeliveryTicket(nil), s.tickets...)
}

// Requests возвращает копию очереди, отсортированную по send_after.
func (s *Store) Requests() []domain.NotificationRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedRequests()
}

// Events возвращает записанные бизнесовые события.
func (s *Store) Events() []domain.BusinessMetric {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.BusinessMetric(nil), s.events...)
}

func cloneSettings(in domain.RecipientSettings) domain.RecipientSettings {
	out := in
	out.Preferences = make(domain.Preferences, len(in.Preferences))
	for k, v := range in.Preferences {
		out.Preferences[k] = v
	}
	if in.QuietHours != nil {
		q := *in.QuietHours
		out.QuietHours = &q
	}
	out.DeviceTokens = append([]domain.DeviceToken(nil), in.DeviceTokens...)
	return out
}

// GetSettings возвращает настройки пользователя или domain.ErrNotFound.
func (s *Store) GetSettings(_ context.Context, userID string) (domain.RecipientSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetSettings"); err != nil {
		return domain.RecipientSettings{}, err
	}
	settings, ok := s.settings[userID]
	if !ok {
		return domain.RecipientSettings{}, domain.ErrNotFound
	}
	return cloneSettings(settings), nil
}

// GetByIDs возвращает найденные записи в порядке идентификаторов.
func (s *Store) GetByIDs(_ context.Context, userIDs []string) ([]domain.RecipientSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("GetByIDs"); err != nil {
		return nil, err
	}
	var out []domain.RecipientSettings
	for _, id := range userIDs {
		if settings, ok := s.settings[id]; ok {
			out = append(out, cloneSettings(settings))
		}
	}
	return out, nil
}

// ListEnabled возвращает пользователей с включёнными уведомлениями.
func (s *Store) ListEnabled(_ context.Context) ([]domain.RecipientSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListEnabled"); err != nil {
		return nil, err
	}
	return s.filterSettings(func(r domain.RecipientSettings) bool { return r.Enabled }), nil
}

// ListByTopic возвращает пользователей, явно подписанных на тему.
func (s *Store) ListByTopic(_ context.Context, topic domain.Topic) ([]domain.RecipientSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListByTopic"); err != nil {
		return nil, err
	}
	return s.filterSettings(func(r domain.RecipientSettings) bool {
		enabled, ok := r.Preferences[topic]
		return ok && enabled
	}), nil
}

func (s *Store) filterSettings(keep func(domain.RecipientSettings) bool) []domain.RecipientSettings {
	ids := make([]string, 0, len(s.settings))
	for id := range s.settings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	var out []domain.RecipientSettings
	for _, id := range ids {
		if settings := s.settings[id]; keep(settings) {
			out = append(out, cloneSettings(settings))
		}
	}
	return out
}

// UpsertSettings применяет mutate к актуальной записи под блокировкой хранилища.
func (s *Store) UpsertSettings(_ context.Context, userID string, mutate func(*domain.RecipientSettings) error) (domain.RecipientSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("UpsertSettings"); err != nil {
		return domain.RecipientSettings{}, err
	}
	current, ok := s.settings[userID]
	if !ok {
		current = domain.NewRecipientSettings(userID)
	}
	next := cloneSettings(current)
	if err := mutate(&next); err != nil {
		return domain.RecipientSettings{}, err
	}
	next.UserID = userID
	if next.Timezone == "" {
		next.Timezone = domain.DefaultTimezone
	}
	next.UpdatedAt = time.Now().UTC()
	s.settings[userID] = next
	return cloneSettings(next), nil
}

// RegisterDeviceToken добавляет токен в начало списка.
func (s *Store) RegisterDeviceToken(ctx context.Context, userID string, token domain.DeviceToken, limit int) ([]domain.DeviceToken, error) {
	settings, err := s.UpsertSettings(ctx, userID, func(r *domain.RecipientSettings) error {
		r.DeviceTokens = domain.RegisterToken(r.DeviceTokens, token, limit)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return settings.DeviceTokens, nil
}

// RemoveDeviceToken удаляет токен из актуального списка пользователя.
func (s *Store) RemoveDeviceToken(_ context.Context, userID, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("RemoveDeviceToken"); err != nil {
		return false, err
	}
	settings, ok := s.settings[userID]
	if !ok {
		return false, nil
	}
	next, removed := domain.WithoutToken(settings.DeviceTokens, token)
	if !removed {
		return false, nil
	}
	settings.DeviceTokens = next
	settings.UpdatedAt = time.Now().UTC()
	s.settings[userID] = settings
	return true, nil
}

// Enqueue сохраняет запрос.
func (s *Store) Enqueue(_ context.Context, req domain.NotificationRequest) (domain.NotificationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("Enqueue"); err != nil {
		return domain.NotificationRequest{}, err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	if req.SendAfter.IsZero() {
		req.SendAfter = req.CreatedAt
	}
	if req.Data == nil {
		req.Data = map[string]any{}
	}
	s.requests[req.ID] = req
	return req, nil
}

// ListDue возвращает созревшие запросы по возрастанию send_after.
func (s *Store) ListDue(_ context.Context, now time.Time, limit int) ([]domain.NotificationRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListDue"); err != nil {
		return nil, err
	}
	var out []domain.NotificationRequest
	for _, req := range s.sortedRequests() {
		if req.SendAfter.After(now) {
			continue
		}
		out = append(out, req)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) sortedRequests() []domain.NotificationRequest {
	out := make([]domain.NotificationRequest, 0, len(s.requests))
	for _, req := range s.requests {
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SendAfter.Equal(out[j].SendAfter) {
			return out[i].SendAfter.Before(out[j].SendAfter)
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Delete удаляет запрос.
func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("Delete"); err != nil {
		return err
	}
	delete(s.requests, id)
	return nil
}

// SaveTickets добавляет тикеты; повторный идентификатор игнорируется.
func (s *Store) SaveTickets(_ context.Context, tickets []domain.DeliveryTicket) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("SaveTickets"); err != nil {
		return err
	}
	known := make(map[string]struct{}, len(s.tickets))
	for _, t := range s.tickets {
		known[t.TicketID] = struct{}{}
	}
	for _, t := range tickets {
		if _, dup := known[t.TicketID]; dup {
			continue
		}
		if t.CreatedAt.IsZero() {
			t.CreatedAt = time.Now().UTC()
		}
		t.Processed = false
		s.tickets = append(s.tickets, t)
		known[t.TicketID] = struct{}{}
	}
	return nil
}

// ListUnprocessed возвращает самые старые несверенные тикеты не новее createdBefore.
func (s *Store) ListUnprocessed(_ context.Context, createdBefore time.Time, limit int) ([]domain.DeliveryTicket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListUnprocessed"); err != nil {
		return nil, err
	}
	var out []domain.DeliveryTicket
	for _, t := range s.tickets {
		if !t.Processed && !t.CreatedAt.After(createdBefore) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// MarkProcessed помечает тикеты обработанными.
func (s *Store) MarkProcessed(_ context.Context, ticketIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("MarkProcessed"); err != nil {
		return err
	}
	ids := make(map[string]struct{}, len(ticketIDs))
	for _, id := range ticketIDs {
		ids[id] = struct{}{}
	}
	for i := range s.tickets {
		if _, ok := ids[s.tickets[i].TicketID]; ok {
			s.tickets[i].Processed = true
		}
	}
	return nil
}

// ListDeadlinesBetween возвращает конкурсы с from <= deadline < to.
func (s *Store) ListDeadlinesBetween(_ context.Context, from, to time.Time) ([]domain.SavedItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("ListDeadlinesBetween"); err != nil {
		return nil, err
	}
	var out []domain.SavedItem
	for _, item := range s.saved {
		if !item.Deadline.Before(from) && item.Deadline.Before(to) {
			out = append(out, item)
		}
	}
	return out, nil
}

// DeleteUserData удаляет все данные пользователя.
func (s *Store) DeleteUserData(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("DeleteUserData"); err != nil {
		return err
	}
	delete(s.settings, userID)
	delete(s.calendar, userID)
	kept := s.saved[:0]
	for _, item := range s.saved {
		if item.UserID != userID {
			kept = append(kept, item)
		}
	}
	s.saved = kept
	return nil
}

// RecordBusinessMetric сохраняет событие.
func (s *Store) RecordBusinessMetric(_ context.Context, metric domain.BusinessMetric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.fail("RecordBusinessMetric"); err != nil {
		return err
	}
	if metric.OccurredAt.IsZero() {
		metric.OccurredAt = time.Now().UTC()
	}
	s.events = append(s.events, metric)
	return nil
}
