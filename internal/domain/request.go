package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TargetType определяет способ выбора получателей.
type TargetType string

const (
	TargetAll   TargetType = "all"
	TargetTopic TargetType = "topic"
	TargetUser  TargetType = "user"
)

// Target описывает адресатов запроса на уведомление.
type Target struct {
	Type    TargetType `validate:"required"`
	Topic   Topic
	UserIDs []string
}

// AllTarget — рассылка всем включённым пользователям.
func AllTarget() Target { return Target{Type: TargetAll} }

// TopicTarget — рассылка подписчикам темы.
func TopicTarget(topic Topic) Target { return Target{Type: TargetTopic, Topic: topic} }

// UserTarget — рассылка конкретным пользователям.
func UserTarget(ids ...string) Target { return Target{Type: TargetUser, UserIDs: ids} }

// DeliveryTopic возвращает тему для фильтрации предпочтений; пустая строка — без темы.
func (t Target) DeliveryTopic() Topic {
	if t.Type == TargetTopic {
		return t.Topic
	}
	return ""
}

// Label возвращает метку темы для DeliveryEntry и метрик.
func (t Target) Label() string {
	if topic := t.DeliveryTopic(); topic != "" {
		return string(topic)
	}
	return TopicLabelBroadcast
}

type targetWire struct {
	Type string          `json:"type"`
	Key  string          `json:"key,omitempty"`
	IDs  json.RawMessage `json:"ids,omitempty"`
}

// UnmarshalJSON разбирает {type, key, ids}. Неизвестная тема — ошибка,
// неизвестный тип сохраняется как есть и никому не доставляется.
func (t *Target) UnmarshalJSON(data []byte) error {
	var wire targetWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	out := Target{Type: TargetType(strings.TrimSpace(wire.Type))}
	switch out.Type {
	case TargetTopic:
		topic, err := ParseTopic(wire.Key)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidTarget, err)
		}
		out.Topic = topic
	case TargetUser:
		ids, err := parseUserIDs(wire.IDs)
		if err != nil {
			return err
		}
		if len(ids) == 0 && strings.TrimSpace(wire.Key) != "" {
			ids = []string{strings.TrimSpace(wire.Key)}
		}
		out.UserIDs = ids
	}
	*t = out
	return nil
}

func parseUserIDs(raw json.RawMessage) ([]string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		return compactIDs(list), nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil {
		return compactIDs([]string{single}), nil
	}
	return nil, fmt.Errorf("%w: ids must be a string or a list of strings", ErrInvalidTarget)
}

func compactIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// MarshalJSON кодирует адресатов в том же формате, что принимает UnmarshalJSON.
func (t Target) MarshalJSON() ([]byte, error) {
	wire := struct {
		Type string   `json:"type"`
		Key  string   `json:"key,omitempty"`
		IDs  []string `json:"ids,omitempty"`
	}{Type: string(t.Type)}
	switch t.Type {
	case TargetTopic:
		wire.Key = string(t.Topic)
	case TargetUser:
		wire.IDs = t.UserIDs
	}
	return json.Marshal(wire)
}

// NotificationRequest — запись очереди уведомлений.
type NotificationRequest struct {
	ID        string         `json:"id,omitempty"`
	Title     string         `json:"title" validate:"required,max=200"`
	Body      string         `json:"body" validate:"required,max=2000"`
	Data      map[string]any `json:"data"`
	Target    Target         `json:"target"`
	SendAfter time.Time      `json:"sendAfter"`
	CreatedAt time.Time      `json:"createdAt,omitempty"`
}

// UnmarshalJSON приводит некорректное поле data к пустому объекту.
func (r *NotificationRequest) UnmarshalJSON(data []byte) error {
	type alias NotificationRequest
	wire := struct {
		*alias
		Data json.RawMessage `json:"data"`
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	r.Data = CoerceData(wire.Data)
	return nil
}

// CoerceData разбирает полезную нагрузку; всё, что не является JSON-объектом,
// превращается в пустой объект.
func CoerceData(raw []byte) map[string]any {
	if len(raw) == 0 {
		return map[string]any{}
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil || data == nil {
		return map[string]any{}
	}
	return data
}

// RequestState — состояние записи очереди.
type RequestState string

const (
	RequestPending   RequestState = "pending"
	RequestDue       RequestState = "due"
	RequestDelivered RequestState = "delivered"
	RequestSkipped   RequestState = "skipped_no_recipients"
	RequestFailed    RequestState = "failed"
)

// StateAt возвращает состояние необработанной записи в момент now.
func (r NotificationRequest) StateAt(now time.Time) RequestState {
	if r.SendAfter.After(now) {
		return RequestPending
	}
	return RequestDue
}
