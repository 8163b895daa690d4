package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PG_DSN", "postgres://localhost/push")
	t.Setenv("PUSH_SEND_BATCH_SIZE", "50")
	t.Setenv("JOB_TIMEOUT", "90s")

	cfg := Load()

	if cfg.PGDSN != "postgres://localhost/push" {
		t.Fatalf("ожидали DSN из окружения, получили %q", cfg.PGDSN)
	}
	if cfg.Push.SendBatchSize != 50 {
		t.Fatalf("ожидали размер пачки 50, получили %d", cfg.Push.SendBatchSize)
	}
	if cfg.Push.ReceiptBatchSize != 200 {
		t.Fatalf("ожидали размер пачки квитанций 200 по умолчанию, получили %d", cfg.Push.ReceiptBatchSize)
	}
	if cfg.Push.ReceiptMinAge != 15*time.Minute {
		t.Fatalf("ожидали возраст тикета 15m по умолчанию, получили %v", cfg.Push.ReceiptMinAge)
	}
	if cfg.Jobs.Timeout != 90*time.Second {
		t.Fatalf("ожидали таймаут 90s, получили %v", cfg.Jobs.Timeout)
	}
	if cfg.Jobs.QueuePageSize != 20 {
		t.Fatalf("ожидали страницу очереди 20, получили %d", cfg.Jobs.QueuePageSize)
	}
	if cfg.Intake.Backend != "rabbitmq" || cfg.Intake.Queue != "notification_requests" {
		t.Fatalf("неожиданная очередь приёма %s/%q", cfg.Intake.Backend, cfg.Intake.Queue)
	}
	if cfg.Push.DryRun || cfg.Push.Disabled {
		t.Fatalf("по умолчанию рассылка включена и идёт через провайдера")
	}
}
