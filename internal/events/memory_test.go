package events

import (
	"context"
	"testing"
	"time"

	"github.com/crmnexus/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBusDeliversInOrder(t *testing.T) {
	b := NewMemoryBus()
	var got []string
	err := b.Subscribe(context.Background(), func(m *model.Message) {
		got = append(got, m.ID)
	})
	require.NoError(t, err)

	for _, id := range []string{"m1", "m2", "m3"} {
		require.NoError(t, b.PublishMessage(context.Background(), &model.Message{ID: id, CreatedAt: time.Now()}))
	}
	assert.Equal(t, []string{"m1", "m2", "m3"}, got)
}

func TestMemoryBusMultipleSubscribers(t *testing.T) {
	b := NewMemoryBus()
	var a, c int
	require.NoError(t, b.Subscribe(context.Background(), func(*model.Message) { a++ }))
	require.NoError(t, b.Subscribe(context.Background(), func(*model.Message) { c++ }))

	require.NoError(t, b.PublishMessage(context.Background(), &model.Message{ID: "m1"}))
	assert.Equal(t, 1, a)
	assert.Equal(t, 1, c)
}

func TestMemoryBusClosedDropsEvents(t *testing.T) {
	b := NewMemoryBus()
	var n int
	require.NoError(t, b.Subscribe(context.Background(), func(*model.Message) { n++ }))
	require.NoError(t, b.Close())

	require.NoError(t, b.PublishMessage(context.Background(), &model.Message{ID: "m1"}))
	assert.Zero(t, n)
}
