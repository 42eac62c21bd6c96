package repository

import (
	"testing"
	"time"

	"github.com/crmnexus/internal/model"
	"github.com/stretchr/testify/assert"
)

// История выбирается окном с конца переписки (DESC LIMIT) и отдаётся
// наружу в хронологическом порядке.
func TestReverseMessages(t *testing.T) {
	base := time.Now()
	messages := []model.Message{
		{ID: "m3", CreatedAt: base.Add(2 * time.Second)},
		{ID: "m2", CreatedAt: base.Add(time.Second)},
		{ID: "m1", CreatedAt: base},
	}
	reverseMessages(messages)
	assert.Equal(t, "m1", messages[0].ID)
	assert.Equal(t, "m2", messages[1].ID)
	assert.Equal(t, "m3", messages[2].ID)

	reverseMessages(nil)

	single := []model.Message{{ID: "only"}}
	reverseMessages(single)
	assert.Equal(t, "only", single[0].ID)
}
