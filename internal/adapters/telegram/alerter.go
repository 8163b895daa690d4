package telegram

import (
	"context"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"push-dispatcher/internal/domain"
	"push-dispatcher/internal/infra/metrics"
)

const messageLimit = 4096

// Sender — часть tgbotapi.BotAPI, нужная для отправки сообщений.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Alerter отправляет операторские уведомления в чат Telegram.
type Alerter struct {
	bot    Sender
	chatID int64
	log    zerolog.Logger
}

var _ domain.Alerter = (*Alerter)(nil)

// NewAlerter создаёт отправителя операторских уведомлений.
func NewAlerter(bot Sender, chatID int64, logger zerolog.Logger) *Alerter {
	return &Alerter{bot: bot, chatID: chatID, log: logger}
}

// Alert отправляет текст, разбивая его на части по пределу Telegram.
func (a *Alerter) Alert(ctx context.Context, text string) error {
	for _, part := range splitLines(text, messageLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		msg := tgbotapi.NewMessage(a.chatID, part)
		msg.DisableWebPagePreview = true
		start := time.Now()
		_, err := a.bot.Send(msg)
		metrics.ObserveNetworkRequest("telegram_bot", "send_message", strconv.FormatInt(a.chatID, 10), start, err)
		if err != nil {
			a.log.Error().Err(err).Int64("chat", a.chatID).Msg("alerts: не удалось отправить сообщение")
			return err
		}
	}
	return nil
}

// splitLines собирает строки в части не длиннее limit рун.
// Строка длиннее limit режется по рунам.
func splitLines(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		parts   []string
		current strings.Builder
		size    int
	)
	flush := func() {
		if chunk := strings.Trim(current.String(), "\n"); chunk != "" {
			parts = append(parts, chunk)
		}
		current.Reset()
		size = 0
	}
	for _, line := range strings.Split(text, "\n") {
		runes := []rune(line)
		for len(runes) > limit {
			flush()
			parts = append(parts, string(runes[:limit]))
			runes = runes[limit:]
		}
		need := len(runes)
		if size > 0 {
			need++
		}
		if size+need > limit {
			flush()
			need = len(runes)
		}
		if size > 0 {
			current.WriteByte('\n')
		}
		current.WriteString(string(runes))
		size += need
	}
	flush()
	return parts
}
