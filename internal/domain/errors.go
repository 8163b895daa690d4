package domain

import "errors"

var (
	// ErrNotFound возвращается, если запись не найдена.
	ErrNotFound = errors.New("not found")
	// ErrInvalidTopic возвращается для неизвестного ключа темы.
	ErrInvalidTopic = errors.New("invalid topic")
	// ErrInvalidTarget возвращается для некорректного описания адресатов.
	ErrInvalidTarget = errors.New("invalid target")
	// ErrInvalidToken возвращается, если токен устройства не проходит проверку формата.
	ErrInvalidToken = errors.New("invalid device token")
	// ErrInvalidQuietHours возвращается, если часы тишины вне диапазона [0,23].
	ErrInvalidQuietHours = errors.New("invalid quiet hours")
	// ErrInvalidTimezone возвращается, если указан некорректный часовой пояс.
	ErrInvalidTimezone = errors.New("invalid timezone")
)
