package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const requeueDelay = time.Second

// RedisConsumer читает запросы из Redis-списка. Используется там, где
// брокера нет: продюсер делает LPUSH в тот же ключ.
type RedisConsumer struct {
	client *redis.Client
	key    string
}

var _ Consumer = (*RedisConsumer)(nil)

// NewRedisConsumer создаёт потребителя списка key.
func NewRedisConsumer(client *redis.Client, key string) *RedisConsumer {
	return &RedisConsumer{client: client, key: key}
}

// Push кладёт сообщение в список.
func (c *RedisConsumer) Push(ctx context.Context, body []byte) error {
	if err := c.client.LPush(ctx, c.key, body).Err(); err != nil {
		return fmt.Errorf("push message: %w", err)
	}
	return nil
}

// Consume блокирующе читает список. Requeue возвращает сообщение в конец
// очереди и делает паузу перед следующим чтением.
func (c *RedisConsumer) Consume(ctx context.Context, handle Handler) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		res, err := c.client.BRPop(ctx, time.Second, c.key).Result()
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				continue
			}
			if errors.Is(err, redis.Nil) {
				continue
			}
			return err
		}
		if len(res) != 2 {
			return errors.New("redis queue: unexpected response")
		}
		body := []byte(res[1])
		if handle(ctx, body) == Requeue {
			if err := c.Push(context.WithoutCancel(ctx), body); err != nil {
				return err
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(requeueDelay):
			}
		}
	}
}

// Close ничего не делает: клиентом владеет вызывающий.
func (c *RedisConsumer) Close() error { return nil }
