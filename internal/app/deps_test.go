package app

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"push-dispatcher/internal/adapters/expo"
	"push-dispatcher/internal/adapters/memory"
	"push-dispatcher/internal/infra/cache"
	"push-dispatcher/internal/infra/config"
)

func TestPushTransportSelection(t *testing.T) {
	var cfg config.AppConfig
	cfg.Push.SendBatchSize = 50

	if _, ok := PushTransport(cfg, zerolog.Nop()).(*expo.Client); !ok {
		t.Fatalf("по умолчанию ожидали клиента Expo")
	}

	cfg.Push.DryRun = true
	transport, ok := PushTransport(cfg, zerolog.Nop()).(*memory.Transport)
	if !ok || transport.MaxBatchSize() != 50 {
		t.Fatalf("в dry-run ожидали транспорт в памяти с пачкой 50")
	}

	cfg.Push.Disabled = true
	if PushTransport(cfg, zerolog.Nop()) != nil {
		t.Fatalf("PUSH_DISABLED должен отключать транспорт")
	}
}

func TestOpenStoreWithoutDSN(t *testing.T) {
	cfg := config.AppConfig{AppEnv: "dev"}
	store, closeFn, err := OpenStore(cfg, zerolog.Nop())
	if err != nil {
		t.Fatalf("не ожидали ошибку: %v", err)
	}
	defer closeFn()
	if _, ok := store.(*memory.Store); !ok {
		t.Fatalf("в dev без DSN ожидали хранилище в памяти")
	}

	cfg.AppEnv = "prod"
	if _, _, err := OpenStore(cfg, zerolog.Nop()); !errors.Is(err, ErrNoDatabase) {
		t.Fatalf("вне dev ожидали ErrNoDatabase, получили %v", err)
	}
}

func TestLockerFallsBackToLocal(t *testing.T) {
	if _, ok := Locker(nil, zerolog.Nop()).(*cache.LocalLocker); !ok {
		t.Fatalf("без Redis ожидали локальную блокировку")
	}
	if Alerter(config.AppConfig{}, zerolog.Nop()) != nil {
		t.Fatalf("без токена алерты должны быть отключены")
	}
}
