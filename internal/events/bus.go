// Package events — шина событий о новых сообщениях. После записи сообщения
// в БД оно публикуется в шину; хаб веб-сокетов подписан и раздаёт событие
// сессиям. Реализации: RedisBus (несколько инстансов API) и MemoryBus (-dev).
package events

import (
	"context"

	"github.com/crmnexus/internal/model"
)

// Handler вызывается для каждого входящего события. Порядок доставки
// соответствует порядку публикации в пределах одной шины.
type Handler func(msg *model.Message)

type Bus interface {
	// PublishMessage публикует вставленное сообщение. Вызывается строго
	// после успешного INSERT: подписчики рассчитывают, что сообщение уже в БД.
	PublishMessage(ctx context.Context, msg *model.Message) error
	// Subscribe регистрирует обработчик. Доставка идёт до отмены ctx.
	Subscribe(ctx context.Context, h Handler) error
	Close() error
}
