package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"push-dispatcher/internal/domain"
)

// releaseScript удаляет ключ только если он всё ещё принадлежит владельцу.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisLocker реализует domain.Locker через Redis.
type RedisLocker struct {
	client *redis.Client
	prefix string
}

var _ domain.Locker = (*RedisLocker)(nil)

// NewRedis создаёт блокировщик задач.
func NewRedis(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client, prefix: "push-dispatcher:lock:"}
}

// TryLock захватывает ключ на ttl. Если ключ занят, возвращает ok=false без ошибки.
func (c *RedisLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (func(), bool, error) {
	fullKey := c.prefix + key
	owner := uuid.NewString()
	ok, err := c.client.SetNX(ctx, fullKey, owner, ttl).Result()
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, false, nil
	}
	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = releaseScript.Run(releaseCtx, c.client, []string{fullKey}, owner).Err()
	}
	return release, true, nil
}

// LocalLocker — блокировщик в памяти процесса для запуска без Redis.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

var _ domain.Locker = (*LocalLocker)(nil)

// NewLocal создаёт локальный блокировщик.
func NewLocal() *LocalLocker {
	return &LocalLocker{held: map[string]struct{}{}}
}

// TryLock захватывает ключ до вызова release; ttl не учитывается.
func (l *LocalLocker) TryLock(_ context.Context, key string, _ time.Duration) (func(), bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return nil, false, nil
	}
	l.held[key] = struct{}{}
	release := func() {
		l.mu.Lock()
		delete(l.held, key)
		l.mu.Unlock()
	}
	return release, true, nil
}
