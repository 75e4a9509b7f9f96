package jobs

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ternarybob/custodia/internal/common"
)

func TestQueueFIFO(t *testing.T) {
	q := NewQueue(3)

	require.NoError(t, q.Enqueue("a"))
	require.NoError(t, q.Enqueue("b"))
	require.NoError(t, q.Enqueue("c"))

	assert.Equal(t, "a", <-q.Dequeue())
	assert.Equal(t, "b", <-q.Dequeue())
	assert.Equal(t, "c", <-q.Dequeue())
}

func TestQueueOverflow(t *testing.T) {
	q := NewQueue(2)

	require.NoError(t, q.Enqueue("a"))
	require.NoError(t, q.Enqueue("b"))

	err := q.Enqueue("c")
	assert.True(t, errors.Is(err, common.ErrOverloaded))
	assert.Equal(t, 2, q.Len())

	// Draining frees capacity again
	<-q.Dequeue()
	assert.NoError(t, q.Enqueue("c"))
}
