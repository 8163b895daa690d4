package domain

import (
	"fmt"
	"time"
)

// DefaultTimezone применяется, если пользователь не указал часовой пояс.
const DefaultTimezone = "Asia/Seoul"

// MaxDeviceTokens — предел числа устройств на пользователя.
const MaxDeviceTokens = 5

// Платформы устройств.
const (
	PlatformIOS     = "ios"
	PlatformAndroid = "android"
	PlatformWeb     = "web"
	PlatformUnknown = "unknown"
)

// QuietHours — полуоткрытое окно [StartHour, EndHour) в локальном времени пользователя.
type QuietHours struct {
	StartHour int `json:"startHour" validate:"min=0,max=23"`
	EndHour   int `json:"endHour" validate:"min=0,max=23"`
}

// Validate проверяет диапазон часов.
func (q QuietHours) Validate() error {
	if q.StartHour < 0 || q.StartHour > 23 || q.EndHour < 0 || q.EndHour > 23 {
		return fmt.Errorf("%w: %d-%d", ErrInvalidQuietHours, q.StartHour, q.EndHour)
	}
	return nil
}

// DeviceToken описывает зарегистрированное устройство.
type DeviceToken struct {
	Token      string    `json:"token"`
	Platform   string    `json:"platform"`
	DeviceName string    `json:"deviceName,omitempty"`
	AppVersion string    `json:"appVersion,omitempty"`
	LastSeen   time.Time `json:"lastSeen"`
}

// RecipientSettings — push-настройки одного пользователя.
type RecipientSettings struct {
	UserID       string
	Enabled      bool
	Preferences  Preferences
	QuietHours   *QuietHours
	Timezone     string
	DeviceTokens []DeviceToken
	UpdatedAt    time.Time
}

// NewRecipientSettings возвращает настройки по умолчанию для нового пользователя.
func NewRecipientSettings(userID string) RecipientSettings {
	return RecipientSettings{
		UserID:      userID,
		Enabled:     true,
		Preferences: Preferences{},
		Timezone:    DefaultTimezone,
	}
}

// SavedItem — сохранённый пользователем конкурс с дедлайном.
type SavedItem struct {
	ID       string
	UserID   string
	Title    string
	Deadline time.Time
}
