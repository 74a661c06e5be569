package events

import (
	"context"
	"testing"
	"time"

	"github.com/Rrens/med-analyzer/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_OrderAndTerminal(t *testing.T) {
	queues := NewQueues(time.Minute)
	id := uuid.New()
	q := queues.Create(id)

	queues.Publish(id, domain.StatusEvent{Status: domain.StatusStarted, Stage: "created"})
	queues.Publish(id, domain.StatusEvent{Status: domain.StatusInProgress, Stage: "summarize_start"})
	queues.Publish(id, domain.StatusEvent{Status: domain.StatusCompleted, Stage: "done"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var stages []string
	for {
		ev, err := q.Next(ctx)
		require.NoError(t, err)
		stages = append(stages, ev.Stage)
		if ev.Terminal() {
			break
		}
	}

	assert.Equal(t, []string{"created", "summarize_start", "done"}, stages)
	assert.True(t, q.Finished())
}

func TestQueue_NextBlocksUntilPublish(t *testing.T) {
	queues := NewQueues(time.Minute)
	id := uuid.New()
	q := queues.GetOrCreate(id)

	go func() {
		time.Sleep(20 * time.Millisecond)
		queues.Publish(id, domain.StatusEvent{Status: domain.StatusFailed, Error: "boom"})
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, err := q.Next(ctx)

	require.NoError(t, err)
	assert.Equal(t, "boom", ev.Error)
}

func TestQueue_NextHonorsContext(t *testing.T) {
	q := NewQueues(time.Minute).Create(uuid.New())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := q.Next(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueues_RetentionRemovesFinishedQueue(t *testing.T) {
	queues := NewQueues(20 * time.Millisecond)
	id := uuid.New()
	queues.Create(id)

	queues.Publish(id, domain.StatusEvent{Status: domain.StatusCompleted})

	assert.Eventually(t, func() bool {
		_, ok := queues.Get(id)
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestQueues_Remove(t *testing.T) {
	queues := NewQueues(time.Minute)
	id := uuid.New()
	queues.Create(id)
	require.Equal(t, 1, queues.Len())

	queues.Remove(id)
	assert.Equal(t, 0, queues.Len())
}
