package devices

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"push-dispatcher/internal/adapters/memory"
	"push-dispatcher/internal/domain"
)

type stubFiles struct {
	deleted []string
	err     error
}

func (s *stubFiles) DeleteUserFiles(_ context.Context, userID string) (int, error) {
	s.deleted = append(s.deleted, userID)
	if s.err != nil {
		return 1, s.err
	}
	return 3, nil
}

func newService(store *memory.Store, files domain.FileStore) *Service {
	svc := NewService(Deps{
		Recipients: store,
		Tokens:     store,
		Accounts:   store,
		Files:      files,
		Events:     store,
		Validator:  memory.NewTransport(100, zerolog.Nop()),
	}, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2026, 10, 19, 3, 0, 0, 0, time.UTC) }
	return svc
}

func TestRegisterDeviceCreatesDefaults(t *testing.T) {
	store := memory.NewStore()
	svc := newService(store, nil)

	tokens, err := svc.RegisterDevice(context.Background(), "u1", domain.DeviceToken{Token: " ExponentPushToken[a] ", Platform: "iOS"})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if len(tokens) != 1 || tokens[0].Token != "ExponentPushToken[a]" || tokens[0].Platform != domain.PlatformIOS {
		t.Fatalf("неожиданный список токенов: %+v", tokens)
	}
	if tokens[0].LastSeen.IsZero() {
		t.Fatalf("ожидали отметку LastSeen")
	}
	settings, err := svc.GetSettings(context.Background(), "u1")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !settings.Enabled || settings.Timezone != domain.DefaultTimezone {
		t.Fatalf("ожидали настройки по умолчанию, получили %+v", settings)
	}
	if events := store.Events(); len(events) != 1 || events[0].Event != domain.BusinessMetricEventDeviceRegistered {
		t.Fatalf("ожидали событие регистрации, получили %+v", events)
	}
}

func TestRegisterDeviceRejectsMalformedToken(t *testing.T) {
	svc := newService(memory.NewStore(), nil)
	for _, token := range []string{"", "   ", "apns-raw-token"} {
		if _, err := svc.RegisterDevice(context.Background(), "u1", domain.DeviceToken{Token: token}); !errors.Is(err, domain.ErrInvalidToken) {
			t.Fatalf("для %q ожидали ErrInvalidToken, получили %v", token, err)
		}
	}
}

func TestRegisterDeviceCapsAtFive(t *testing.T) {
	svc := newService(memory.NewStore(), nil)
	var tokens []domain.DeviceToken
	var err error
	for _, id := range []string{"1", "2", "3", "4", "5", "6", "7"} {
		tokens, err = svc.RegisterDevice(context.Background(), "u1", domain.DeviceToken{Token: "ExponentPushToken[" + id + "]"})
		if err != nil {
			t.Fatalf("не ожидали ошибку: %v", err)
		}
	}
	if len(tokens) != domain.MaxDeviceTokens || tokens[0].Token != "ExponentPushToken[7]" {
		t.Fatalf("неожиданный список: %+v", tokens)
	}
}

func TestUnregisterDevice(t *testing.T) {
	store := memory.NewStore()
	svc := newService(store, nil)
	if _, err := svc.RegisterDevice(context.Background(), "u1", domain.DeviceToken{Token: "ExponentPushToken[a]"}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	removed, err := svc.UnregisterDevice(context.Background(), "u1", "ExponentPushToken[a]")
	if err != nil || !removed {
		t.Fatalf("ожидали удаление, получили %v, %v", removed, err)
	}
	removed, err = svc.UnregisterDevice(context.Background(), "u1", "ExponentPushToken[a]")
	if err != nil || removed {
		t.Fatalf("повторное удаление не должно ничего менять, получили %v, %v", removed, err)
	}
}

func TestUpdatePreferencesMerges(t *testing.T) {
	svc := newService(memory.NewStore(), nil)
	if _, err := svc.UpdatePreferences(context.Background(), "u1", map[string]bool{"contests": false}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	settings, err := svc.UpdatePreferences(context.Background(), "u1", map[string]bool{"reminders": true})
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if !settings.Preferences.Disabled(domain.TopicContests) || !settings.Preferences[domain.TopicReminders] {
		t.Fatalf("ожидали слияние предпочтений, получили %v", settings.Preferences)
	}
}

func TestUpdatePreferencesRejectsUnknownTopic(t *testing.T) {
	store := memory.NewStore()
	svc := newService(store, nil)
	_, err := svc.UpdatePreferences(context.Background(), "u1", map[string]bool{"contests": false, "sports": true})
	if !errors.Is(err, domain.ErrInvalidTopic) {
		t.Fatalf("ожидали ErrInvalidTopic, получили %v", err)
	}
	if _, err := store.GetSettings(context.Background(), "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("отклонённый запрос не должен создавать запись")
	}
}

func TestSetQuietHours(t *testing.T) {
	svc := newService(memory.NewStore(), nil)
	quiet := &domain.QuietHours{StartHour: 23, EndHour: 8}
	settings, err := svc.SetQuietHours(context.Background(), "u1", quiet)
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	quiet.StartHour = 1
	if settings.QuietHours == nil || settings.QuietHours.StartHour != 23 {
		t.Fatalf("ожидали сохранённую копию окна, получили %+v", settings.QuietHours)
	}
	if _, err := svc.SetQuietHours(context.Background(), "u1", &domain.QuietHours{StartHour: 24, EndHour: 8}); !errors.Is(err, domain.ErrInvalidQuietHours) {
		t.Fatalf("ожидали ErrInvalidQuietHours, получили %v", err)
	}
	settings, err = svc.SetQuietHours(context.Background(), "u1", nil)
	if err != nil || settings.QuietHours != nil {
		t.Fatalf("nil должен снимать окно, получили %+v, %v", settings.QuietHours, err)
	}
}

func TestSetEnabled(t *testing.T) {
	svc := newService(memory.NewStore(), nil)
	settings, err := svc.SetEnabled(context.Background(), "u1", false)
	if err != nil || settings.Enabled {
		t.Fatalf("ожидали выключенные уведомления, получили %+v, %v", settings, err)
	}
}

func TestSetTimezoneNormalizes(t *testing.T) {
	svc := newService(memory.NewStore(), nil)
	settings, err := svc.SetTimezone(context.Background(), "u1", "america/new york")
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if settings.Timezone != "America/New_York" {
		t.Fatalf("ожидали America/New_York, получили %s", settings.Timezone)
	}
	if _, err := svc.SetTimezone(context.Background(), "u1", "Mars/Olympus"); !errors.Is(err, domain.ErrInvalidTimezone) {
		t.Fatalf("ожидали ErrInvalidTimezone, получили %v", err)
	}
}

func TestNormalizeTimezone(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{raw: "Asia/Seoul", want: "Asia/Seoul"},
		{raw: "asia/seoul", want: "Asia/Seoul"},
		{raw: " Europe/Moscow ", want: "Europe/Moscow"},
		{raw: "america/argentina/buenos aires", want: "America/Argentina/Buenos_Aires"},
		{raw: "UTC", want: "UTC"},
	}
	for _, tt := range tests {
		got, err := NormalizeTimezone(tt.raw)
		if err != nil || got != tt.want {
			t.Fatalf("NormalizeTimezone(%q) = %q, %v; ожидали %q", tt.raw, got, err, tt.want)
		}
	}
	for _, raw := range []string{"", "Local", "nowhere"} {
		if _, err := NormalizeTimezone(raw); !errors.Is(err, domain.ErrInvalidTimezone) {
			t.Fatalf("для %q ожидали ErrInvalidTimezone", raw)
		}
	}
}

func TestDeleteAccountCascades(t *testing.T) {
	store := memory.NewStore()
	files := &stubFiles{}
	svc := newService(store, files)
	if _, err := svc.RegisterDevice(context.Background(), "u1", domain.DeviceToken{Token: "ExponentPushToken[a]"}); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	store.AddSavedItem(domain.SavedItem{ID: "i1", UserID: "u1", Title: "공모전", Deadline: time.Now()})
	store.AddSavedItem(domain.SavedItem{ID: "i2", UserID: "u2", Title: "공모전", Deadline: time.Now()})
	store.AddCalendarEntry("u1")

	if err := svc.DeleteAccount(context.Background(), "u1"); err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	if _, err := store.GetSettings(context.Background(), "u1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("настройки должны быть удалены")
	}
	if store.SavedItemCount("u1") != 0 || store.CalendarEntryCount("u1") != 0 {
		t.Fatalf("сохранённые конкурсы и календарь должны быть удалены")
	}
	if store.SavedItemCount("u2") != 1 {
		t.Fatalf("данные другого пользователя не должны пострадать")
	}
	if len(files.deleted) != 1 || files.deleted[0] != "u1" {
		t.Fatalf("ожидали удаление файлов u1, получили %v", files.deleted)
	}
}

func TestDeleteAccountIgnoresFileErrors(t *testing.T) {
	store := memory.NewStore()
	svc := newService(store, &stubFiles{err: errors.New("permission denied")})
	if err := svc.DeleteAccount(context.Background(), "u1"); err != nil {
		t.Fatalf("сбой удаления файлов не должен прерывать удаление аккаунта: %v", err)
	}
	events := store.Events()
	if len(events) != 1 || events[0].Event != domain.BusinessMetricEventAccountDeleted {
		t.Fatalf("ожидали событие удаления аккаунта, получили %+v", events)
	}
}

func TestDeleteAccountStopsOnStoreError(t *testing.T) {
	store := memory.NewStore()
	files := &stubFiles{}
	store.FailOn("DeleteUserData", errors.New("deadlock"))
	if err := newService(store, files).DeleteAccount(context.Background(), "u1"); err == nil {
		t.Fatalf("ожидали ошибку")
	}
	if len(files.deleted) != 0 {
		t.Fatalf("файлы не должны удаляться, если данные остались")
	}
}
