package domain

// RegisterToken ставит токен в начало списка. Повторная регистрация того же
// токена переносит его вперёд с новыми метаданными, список обрезается до limit.
func RegisterToken(current []DeviceToken, token DeviceToken, limit int) []DeviceToken {
	if limit <= 0 {
		limit = MaxDeviceTokens
	}
	next := make([]DeviceToken, 0, len(current)+1)
	next = append(next, token)
	for _, existing := range current {
		if existing.Token == token.Token {
			continue
		}
		next = append(next, existing)
	}
	if len(next) > limit {
		next = next[:limit]
	}
	return next
}

// WithoutToken возвращает список без указанного токена и признак того, что он был найден.
func WithoutToken(current []DeviceToken, token string) ([]DeviceToken, bool) {
	next := make([]DeviceToken, 0, len(current))
	removed := false
	for _, existing := range current {
		if existing.Token == token {
			removed = true
			continue
		}
		next = append(next, existing)
	}
	return next, removed
}
