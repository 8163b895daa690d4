package domain

import (
	"time"
	_ "time/tzdata"
)

// LocalHour возвращает час суток в часовом поясе пользователя.
// Пустой пояс трактуется как DefaultTimezone, неизвестный — как UTC.
func LocalHour(timezone string, now time.Time) int {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return now.UTC().Hour()
	}
	return now.In(loc).Hour()
}

// IsQuiet решает, попадает ли момент now в часы тишины пользователя.
func IsQuiet(settings RecipientSettings, now time.Time) bool {
	if settings.QuietHours == nil {
		return false
	}
	return quietAt(*settings.QuietHours, LocalHour(settings.Timezone, now))
}

func quietAt(q QuietHours, hour int) bool {
	switch {
	case q.StartHour == q.EndHour:
		// окно на все сутки
		return true
	case q.StartHour < q.EndHour:
		return hour >= q.StartHour && hour < q.EndHour
	default:
		return hour >= q.StartHour || hour < q.EndHour
	}
}

// ShouldDeliver — общий фильтр для всех источников уведомлений.
// Пустая тема означает рассылку без темы.
func ShouldDeliver(settings RecipientSettings, topic Topic, now time.Time) bool {
	if !settings.Enabled {
		return false
	}
	if topic != "" && settings.Preferences.Disabled(topic) {
		return false
	}
	return !IsQuiet(settings, now)
}
