package queue

import "context"

// Outcome — решение обработчика по одному сообщению.
type Outcome int

const (
	// Ack подтверждает сообщение.
	Ack Outcome = iota
	// Reject отбрасывает сообщение без повтора.
	Reject
	// Requeue возвращает сообщение в очередь.
	Requeue
)

func (o Outcome) String() string {
	switch o {
	case Ack:
		return "ack"
	case Reject:
		return "reject"
	case Requeue:
		return "requeue"
	default:
		return "unknown"
	}
}

// Handler обрабатывает тело одного сообщения.
type Handler func(ctx context.Context, body []byte) Outcome

// Consumer читает сообщения до отмены ctx.
type Consumer interface {
	Consume(ctx context.Context, handle Handler) error
	Close() error
}
