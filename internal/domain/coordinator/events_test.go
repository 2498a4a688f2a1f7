package coordinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubDeliversInOrder(t *testing.T) {
	h := NewHub()
	events, cancel := h.Subscribe(4)
	defer cancel()

	h.Publish(Event{Type: EventTaskQueued, TaskID: "task_1"})
	h.Publish(Event{Type: EventTaskFinished, TaskID: "task_1", Outcome: "success"})

	first := <-events
	assert.Equal(t, EventTaskQueued, first.Type)
	assert.False(t, first.At.IsZero(), "publish stamps the event")

	second := <-events
	assert.Equal(t, EventTaskFinished, second.Type)
	assert.Equal(t, "success", second.Outcome)
}

func TestHubFanOut(t *testing.T) {
	h := NewHub()
	a, cancelA := h.Subscribe(1)
	b, cancelB := h.Subscribe(1)
	defer cancelA()
	defer cancelB()

	require.Equal(t, 2, h.Subscribers())
	h.Publish(Event{Type: EventTaskStarted, TaskID: "task_2"})

	assert.Equal(t, "task_2", (<-a).TaskID)
	assert.Equal(t, "task_2", (<-b).TaskID)
}

func TestHubDropsWhenSubscriberLags(t *testing.T) {
	h := NewHub()
	events, cancel := h.Subscribe(1)
	defer cancel()

	for i := 0; i < 5; i++ {
		h.Publish(Event{Type: EventTaskQueued, TaskID: "task_3"})
	}

	assert.Len(t, events, 1, "overflow events are dropped, not queued")
}

func TestHubPublishAfterCancel(t *testing.T) {
	h := NewHub()
	events, cancel := h.Subscribe(1)
	cancel()
	cancel() // second cancel is a no-op

	assert.Equal(t, 0, h.Subscribers())
	h.Publish(Event{Type: EventTaskQueued, TaskID: "task_4"})

	_, open := <-events
	assert.False(t, open, "cancel closes the channel")
}

func TestHubSubscribeDefaultBuffer(t *testing.T) {
	h := NewHub()
	events, cancel := h.Subscribe(0)
	defer cancel()

	h.Publish(Event{Type: EventTaskQueued, TaskID: "task_5", At: time.Now()})
	select {
	case ev := <-events:
		assert.Equal(t, "task_5", ev.TaskID)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}
