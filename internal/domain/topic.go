package domain

import (
	"fmt"
	"strings"
)

// Topic — категория уведомлений, которую пользователь может отключить.
type Topic string

const (
	TopicNewsletters Topic = "newsletters"
	TopicContests    Topic = "contests"
	TopicCommunity   Topic = "community"
	TopicReminders   Topic = "reminders"
)

// TopicLabelBroadcast используется в DeliveryEntry для рассылок без темы.
const TopicLabelBroadcast = "broadcast"

// Topics возвращает все известные темы в стабильном порядке.
func Topics() []Topic {
	return []Topic{TopicNewsletters, TopicContests, TopicCommunity, TopicReminders}
}

// Valid сообщает, является ли значение одной из известных тем.
func (t Topic) Valid() bool {
	switch t {
	case TopicNewsletters, TopicContests, TopicCommunity, TopicReminders:
		return true
	}
	return false
}

// ParseTopic разбирает строковый ключ темы.
func ParseTopic(raw string) (Topic, error) {
	t := Topic(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidTopic, raw)
	}
	return t, nil
}

// Preferences хранит явные включения/отключения тем.
// Отсутствующий ключ означает, что тема включена.
type Preferences map[Topic]bool

// ParsePreferences переводит сырые ключи в Preferences, отбрасывая неизвестные темы.
func ParsePreferences(raw map[string]bool) Preferences {
	prefs := make(Preferences, len(raw))
	for key, enabled := range raw {
		t, err := ParseTopic(key)
		if err != nil {
			continue
		}
		prefs[t] = enabled
	}
	return prefs
}

// Disabled сообщает, отключена ли тема явно.
func (p Preferences) Disabled(t Topic) bool {
	enabled, ok := p[t]
	return ok && !enabled
}

// Raw возвращает представление для хранения.
func (p Preferences) Raw() map[string]bool {
	raw := make(map[string]bool, len(p))
	for t, enabled := range p {
		raw[string(t)] = enabled
	}
	return raw
}
