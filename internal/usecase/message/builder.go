package message

import (
	"strings"
	"time"

	"push-dispatcher/internal/domain"
)

// Content — общий текст и данные сообщения для всех устройств получателей.
type Content struct {
	Title string
	Body  string
	Data  map[string]any
	Topic string
}

// Builder накапливает записи доставки. Токен, встреченный повторно
// (одно устройство в двух аккаунтах), получает только первую запись.
type Builder struct {
	seen    map[string]struct{}
	entries []domain.DeliveryEntry
}

// NewBuilder создаёт пустой накопитель.
func NewBuilder() *Builder {
	return &Builder{seen: map[string]struct{}{}}
}

// Add добавляет по одной записи на каждый непустой токен получателя и
// возвращает число добавленных записей. Фильтры получателя здесь не проверяются.
func (b *Builder) Add(settings domain.RecipientSettings, content Content) int {
	added := 0
	for _, device := range settings.DeviceTokens {
		token := strings.TrimSpace(device.Token)
		if token == "" {
			continue
		}
		if _, dup := b.seen[token]; dup {
			continue
		}
		b.seen[token] = struct{}{}
		platform := device.Platform
		if platform == "" {
			platform = domain.PlatformUnknown
		}
		b.entries = append(b.entries, domain.DeliveryEntry{
			Token:    token,
			Title:    content.Title,
			Body:     content.Body,
			Data:     content.Data,
			UserID:   settings.UserID,
			Topic:    content.Topic,
			Platform: platform,
		})
		added++
	}
	return added
}

// Entries возвращает накопленные записи.
func (b *Builder) Entries() []domain.DeliveryEntry {
	return b.entries
}

// Build строит записи доставки для запроса из очереди. Получатель пропускается,
// если уведомления выключены, тема запроса явно отключена или сейчас часы тишины.
func Build(req domain.NotificationRequest, recipients []domain.RecipientSettings, now time.Time) []domain.DeliveryEntry {
	data := req.Data
	if data == nil {
		data = map[string]any{}
	}
	content := Content{
		Title: req.Title,
		Body:  req.Body,
		Data:  data,
		Topic: req.Target.Label(),
	}
	topic := req.Target.DeliveryTopic()
	builder := NewBuilder()
	for _, settings := range recipients {
		if !domain.ShouldDeliver(settings, topic, now) {
			continue
		}
		builder.Add(settings, content)
	}
	return builder.Entries()
}
