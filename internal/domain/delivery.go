package domain

import "time"

// DeliveryEntry — одно сообщение на один токен устройства.
type DeliveryEntry struct {
	Token    string
	Title    string
	Body     string
	Data     map[string]any
	UserID   string
	Topic    string
	Platform string
}

// DeliveryTicket хранит выданный провайдером тикет до сверки квитанции.
type DeliveryTicket struct {
	TicketID  string
	Token     string
	UserID    string
	Topic     string
	Platform  string
	Processed bool
	CreatedAt time.Time
}

// PushMessage — сообщение в формате push-провайдера.
type PushMessage struct {
	To    string         `json:"to"`
	Title string         `json:"title,omitempty"`
	Body  string         `json:"body,omitempty"`
	Data  map[string]any `json:"data,omitempty"`
	Sound string         `json:"sound,omitempty"`
}

// Статусы ответа провайдера.
const (
	PushStatusOK    = "ok"
	PushStatusError = "error"
)

// PushErrorDeviceNotRegistered — код ошибки, означающий, что токен больше не действителен.
const PushErrorDeviceNotRegistered = "DeviceNotRegistered"

// PushTicket — ответ провайдера на одно отправленное сообщение.
type PushTicket struct {
	ID      string
	Status  string
	Message string
	Details map[string]any
}

// PushReceipt — итог доставки по ранее выданному тикету.
type PushReceipt struct {
	Status  string
	Message string
	Details map[string]any
}

// ErrorCode возвращает details.error, если провайдер его указал.
func (r PushReceipt) ErrorCode() string {
	return errorCode(r.Details)
}

// ErrorCode возвращает details.error, если провайдер его указал.
func (t PushTicket) ErrorCode() string {
	return errorCode(t.Details)
}

func errorCode(details map[string]any) string {
	if details == nil {
		return ""
	}
	code, _ := details["error"].(string)
	return code
}

// TokenInvalidated сообщает, что квитанция подтверждает удаление приложения с устройства.
func (r PushReceipt) TokenInvalidated() bool {
	return r.Status == PushStatusError && r.ErrorCode() == PushErrorDeviceNotRegistered
}
