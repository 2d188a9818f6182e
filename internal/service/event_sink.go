package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
)

// EventSink receives lifecycle events and notifications after the
// transaction that produced them has committed.
type EventSink interface {
	Publish(ctx context.Context, events []model.Event, notifications []model.Notification) error
}

// RedisEventSink queues events and notifications for the persistence workers
// and publishes events on the quiz channel for live listeners.
type RedisEventSink struct {
	rdb *redis.Client
}

// NewRedisEventSink creates a new RedisEventSink.
func NewRedisEventSink(rdb *redis.Client) *RedisEventSink {
	return &RedisEventSink{rdb: rdb}
}

// Publish sends everything in one pipeline.
func (s *RedisEventSink) Publish(ctx context.Context, events []model.Event, notifications []model.Notification) error {
	if len(events) == 0 && len(notifications) == 0 {
		return nil
	}
	pipe := s.rdb.Pipeline()
	for _, e := range events {
		b, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		pipe.RPush(ctx, config.WorkerKey.PersistEventsQueue, b)
		pipe.Publish(ctx, config.CacheKey.QuizEventsChannel(e.QuizID.String()), b)
	}
	for _, n := range notifications {
		b, err := json.Marshal(n)
		if err != nil {
			return fmt.Errorf("marshal notification: %w", err)
		}
		pipe.RPush(ctx, config.WorkerKey.PersistNotificationsQueue, b)
	}
	_, err := pipe.Exec(ctx)
	return err
}
