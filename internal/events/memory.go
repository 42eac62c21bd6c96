package events

import (
	"context"
	"sync"

	"github.com/crmnexus/internal/model"
)

// MemoryBus — шина в памяти процесса для -dev и тестов.
// Доставка синхронная, в порядке публикации.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers []Handler
	closed   bool
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

func (b *MemoryBus) PublishMessage(ctx context.Context, msg *model.Message) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return nil
	}
	for _, h := range b.handlers {
		h(msg)
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, h Handler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, h)
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = nil
	return nil
}
