package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"push-dispatcher/internal/domain"
)

// Transport — push-транспорт без сети: пишет сообщения в лог и выдаёт тикеты.
// Используется в режиме PUSH_DRY_RUN и в тестах.
type Transport struct {
	mu        sync.Mutex
	log       zerolog.Logger
	batchSize int
	seq       int
	calls     int

	sent       [][]domain.PushMessage
	failCalls  map[int]error
	ticketErrs map[string]domain.PushTicket
	receipts   map[string]domain.PushReceipt
	receiptErr error
	onReceipts func()
}

var _ domain.PushTransport = (*Transport)(nil)

// NewTransport создаёт транспорт с заданным размером пачки.
func NewTransport(batchSize int, logger zerolog.Logger) *Transport {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Transport{
		log:        logger,
		batchSize:  batchSize,
		failCalls:  map[int]error{},
		ticketErrs: map[string]domain.PushTicket{},
		receipts:   map[string]domain.PushReceipt{},
	}
}

// ValidToken принимает токены в формате Expo.
func (t *Transport) ValidToken(token string) bool {
	return (strings.HasPrefix(token, "ExponentPushToken[") || strings.HasPrefix(token, "ExpoPushToken[")) &&
		strings.HasSuffix(token, "]")
}

// MaxBatchSize возвращает размер пачки.
func (t *Transport) MaxBatchSize() int {
	return t.batchSize
}

// FailCall заставляет вызов Send с номером call (с нуля) вернуть err.
func (t *Transport) FailCall(call int, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failCalls[call] = err
}

// RejectToken заставляет провайдера вернуть тикет с ошибкой для токена.
func (t *Transport) RejectToken(token, code string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ticketErrs[token] = domain.PushTicket{
		Status:  domain.PushStatusError,
		Message: fmt.Sprintf("%s is rejected", token),
		Details: map[string]any{"error": code},
	}
}

// SetReceipt задаёт квитанцию для тикета.
func (t *Transport) SetReceipt(ticketID string, receipt domain.PushReceipt) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receipts[ticketID] = receipt
}

// FailReceipts заставляет GetReceipts вернуть err.
func (t *Transport) FailReceipts(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.receiptErr = err
}

// OnGetReceipts вызывает fn в начале GetReceipts.
func (t *Transport) OnGetReceipts(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onReceipts = fn
}

// Sent возвращает все отправленные пачки.
func (t *Transport) Sent() [][]domain.PushMessage {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]domain.PushMessage, len(t.sent))
	copy(out, t.sent)
	return out
}

// Calls возвращает число вызовов Send.
func (t *Transport) Calls() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls
}

// Send записывает пачку и выдаёт тикеты в порядке сообщений.
func (t *Transport) Send(ctx context.Context, messages []domain.PushMessage) ([]domain.PushTicket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	call := t.calls
	t.calls++
	if err, ok := t.failCalls[call]; ok {
		return nil, err
	}
	t.sent = append(t.sent, append([]domain.PushMessage(nil), messages...))
	tickets := make([]domain.PushTicket, 0, len(messages))
	for _, msg := range messages {
		if rejected, ok := t.ticketErrs[msg.To]; ok {
			tickets = append(tickets, rejected)
			continue
		}
		t.seq++
		tickets = append(tickets, domain.PushTicket{ID: fmt.Sprintf("dry-%06d", t.seq), Status: domain.PushStatusOK})
		t.log.Debug().Str("to", msg.To).Str("title", msg.Title).Msg("dry-run: push message")
	}
	return tickets, nil
}

// GetReceipts возвращает заданные квитанции; для остальных тикетов — ok.
func (t *Transport) GetReceipts(ctx context.Context, ticketIDs []string) (map[string]domain.PushReceipt, error) {
	t.mu.Lock()
	hook := t.onReceipts
	t.mu.Unlock()
	if hook != nil {
		hook()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.receiptErr != nil {
		return nil, t.receiptErr
	}
	out := make(map[string]domain.PushReceipt, len(ticketIDs))
	for _, id := range ticketIDs {
		if receipt, ok := t.receipts[id]; ok {
			out[id] = receipt
			continue
		}
		if strings.HasPrefix(id, "dry-") {
			out[id] = domain.PushReceipt{Status: domain.PushStatusOK}
		}
	}
	return out, nil
}
