package devices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"push-dispatcher/internal/domain"
	"push-dispatcher/internal/infra/metrics"
)

// Service управляет push-настройками и устройствами пользователя.
type Service struct {
	recipients domain.RecipientRepo
	tokens     domain.DeviceTokenRepo
	accounts   domain.AccountRepo
	files      domain.FileStore
	events     domain.BusinessMetricRepo
	validator  domain.PushTransport
	log        zerolog.Logger
	now        func() time.Time
}

// Deps — зависимости сервиса. Files, Events и Validator необязательны.
type Deps struct {
	Recipients domain.RecipientRepo
	Tokens     domain.DeviceTokenRepo
	Accounts   domain.AccountRepo
	Files      domain.FileStore
	Events     domain.BusinessMetricRepo
	Validator  domain.PushTransport
}

// NewService создаёт сервис.
func NewService(deps Deps, logger zerolog.Logger) *Service {
	return &Service{
		recipients: deps.Recipients,
		tokens:     deps.Tokens,
		accounts:   deps.Accounts,
		files:      deps.Files,
		events:     deps.Events,
		validator:  deps.Validator,
		log:        logger,
		now:        time.Now,
	}
}

// GetSettings возвращает настройки; для нового пользователя — значения по умолчанию.
func (s *Service) GetSettings(ctx context.Context, userID string) (domain.RecipientSettings, error) {
	settings, err := s.recipients.GetSettings(ctx, userID)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.NewRecipientSettings(userID), nil
	}
	if err != nil {
		return domain.RecipientSettings{}, fmt.Errorf("получение настроек: %w", err)
	}
	return settings, nil
}

// RegisterDevice добавляет токен устройства в начало списка пользователя.
func (s *Service) RegisterDevice(ctx context.Context, userID string, device domain.DeviceToken) ([]domain.DeviceToken, error) {
	device.Token = strings.TrimSpace(device.Token)
	if device.Token == "" || (s.validator != nil && !s.validator.ValidToken(device.Token)) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidToken, device.Token)
	}
	device.Platform = normalizePlatform(device.Platform)
	device.LastSeen = s.now().UTC()

	tokens, err := s.tokens.RegisterDeviceToken(ctx, userID, device, domain.MaxDeviceTokens)
	if err != nil {
		return nil, fmt.Errorf("регистрация устройства: %w", err)
	}
	s.record(ctx, domain.BusinessMetricEventDeviceRegistered, userID, map[string]any{
		"platform":    device.Platform,
		"app_version": device.AppVersion,
	})
	return tokens, nil
}

// UnregisterDevice удаляет устройство по запросу владельца.
func (s *Service) UnregisterDevice(ctx context.Context, userID, token string) (bool, error) {
	removed, err := s.tokens.RemoveDeviceToken(ctx, userID, strings.TrimSpace(token))
	if err != nil {
		return false, fmt.Errorf("удаление устройства: %w", err)
	}
	if removed {
		metrics.TokensRemovedTotal.WithLabelValues("user_logout").Inc()
		s.record(ctx, domain.BusinessMetricEventDeviceUnregistered, userID, nil)
	}
	return removed, nil
}

// UpdatePreferences сливает переданные темы с текущими. Неизвестная тема
// отклоняет весь запрос.
func (s *Service) UpdatePreferences(ctx context.Context, userID string, changes map[string]bool) (domain.RecipientSettings, error) {
	parsed := make(domain.Preferences, len(changes))
	for key, enabled := range changes {
		topic, err := domain.ParseTopic(key)
		if err != nil {
			return domain.RecipientSettings{}, err
		}
		parsed[topic] = enabled
	}
	return s.update(ctx, userID, "обновление предпочтений", func(r *domain.RecipientSettings) error {
		if r.Preferences == nil {
			r.Preferences = domain.Preferences{}
		}
		for topic, enabled := range parsed {
			r.Preferences[topic] = enabled
		}
		return nil
	})
}

// SetEnabled включает или выключает все уведомления пользователя.
func (s *Service) SetEnabled(ctx context.Context, userID string, enabled bool) (domain.RecipientSettings, error) {
	return s.update(ctx, userID, "переключение уведомлений", func(r *domain.RecipientSettings) error {
		r.Enabled = enabled
		return nil
	})
}

// SetQuietHours задаёт часы тишины; nil их снимает.
func (s *Service) SetQuietHours(ctx context.Context, userID string, quiet *domain.QuietHours) (domain.RecipientSettings, error) {
	if quiet != nil {
		if err := quiet.Validate(); err != nil {
			return domain.RecipientSettings{}, err
		}
		copied := *quiet
		quiet = &copied
	}
	return s.update(ctx, userID, "часы тишины", func(r *domain.RecipientSettings) error {
		r.QuietHours = quiet
		return nil
	})
}

// SetTimezone сохраняет нормализованный часовой пояс.
func (s *Service) SetTimezone(ctx context.Context, userID, timezone string) (domain.RecipientSettings, error) {
	normalized, err := NormalizeTimezone(timezone)
	if err != nil {
		return domain.RecipientSettings{}, err
	}
	return s.update(ctx, userID, "обновление часового пояса", func(r *domain.RecipientSettings) error {
		r.Timezone = normalized
		return nil
	})
}

// DeleteAccount удаляет данные пользователя, затем его файлы. Ошибка удаления
// файлов только логируется.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	if err := s.accounts.DeleteUserData(ctx, userID); err != nil {
		return fmt.Errorf("удаление данных пользователя: %w", err)
	}
	files := 0
	if s.files != nil {
		n, err := s.files.DeleteUserFiles(ctx, userID)
		files = n
		if err != nil {
			s.log.Error().Err(err).Str("user", userID).Int("deleted", n).Msg("devices: не удалось удалить файлы пользователя")
		}
	}
	s.record(ctx, domain.BusinessMetricEventAccountDeleted, userID, map[string]any{"files": files})
	s.log.Info().Str("user", userID).Int("files", files).Msg("devices: аккаунт удалён")
	return nil
}

func (s *Service) update(ctx context.Context, userID, op string, mutate func(*domain.RecipientSettings) error) (domain.RecipientSettings, error) {
	settings, err := s.recipients.UpsertSettings(ctx, userID, mutate)
	if err != nil {
		return domain.RecipientSettings{}, fmt.Errorf("%s: %w", op, err)
	}
	return settings, nil
}

func (s *Service) record(ctx context.Context, event, userID string, metadata map[string]any) {
	if s.events == nil {
		return
	}
	if err := s.events.RecordBusinessMetric(ctx, domain.BusinessMetric{
		Event:    event,
		UserID:   userID,
		Metadata: metadata,
	}); err != nil {
		s.log.Warn().Err(err).Str("event", event).Msg("devices: не удалось записать событие")
	}
}

func normalizePlatform(raw string) string {
	switch p := strings.ToLower(strings.TrimSpace(raw)); p {
	case domain.PlatformIOS, domain.PlatformAndroid, domain.PlatformWeb:
		return p
	default:
		return domain.PlatformUnknown
	}
}
