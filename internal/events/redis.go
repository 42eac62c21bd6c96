package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/crmnexus/internal/logger"
	"github.com/crmnexus/internal/model"
	"github.com/redis/go-redis/v9"
)

const messagesChannel = "chat:messages"

// RedisBus — шина поверх Redis pub/sub. События видны всем инстансам API,
// подключённым к одному Redis.
type RedisBus struct {
	cli *redis.Client
}

func NewRedisBus(cli *redis.Client) *RedisBus {
	return &RedisBus{cli: cli}
}

func (b *RedisBus) PublishMessage(ctx context.Context, msg *model.Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("events.PublishMessage marshal: %w", err)
	}
	if err := b.cli.Publish(ctx, messagesChannel, payload).Err(); err != nil {
		return fmt.Errorf("events.PublishMessage publish: %w", err)
	}
	return nil
}

// Subscribe читает канал в отдельной горутине до отмены ctx.
// Непарсящиеся события логируются и пропускаются, подписка не рвётся.
func (b *RedisBus) Subscribe(ctx context.Context, h Handler) error {
	sub := b.cli.Subscribe(ctx, messagesChannel)
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("events.Subscribe: %w", err)
	}
	ch := sub.Channel()
	go func() {
		defer func() {
			if err := sub.Close(); err != nil {
				logger.Errorf("events: close subscription: %v", err)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var msg model.Message
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					logger.Errorf("events: bad payload: %v", err)
					continue
				}
				h(&msg)
			}
		}
	}()
	return nil
}

func (b *RedisBus) Close() error { return nil }
