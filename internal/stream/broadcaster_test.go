package stream

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skypro1111/stream-diarizer/internal/metrics"
)

func TestBroadcasterFanOut(t *testing.T) {
	b := NewBroadcaster(nil, nil)

	ch1, unsub1 := b.Subscribe(4)
	ch2, unsub2 := b.Subscribe(4)
	defer unsub2()
	assert.Equal(t, 2, b.SubscriberCount())

	b.Publish(Event{Type: EventPartial})

	assert.Equal(t, EventPartial, (<-ch1).Type)
	assert.Equal(t, EventPartial, (<-ch2).Type)

	unsub1()
	unsub1()
	_, open := <-ch1
	assert.False(t, open)
	assert.Equal(t, 1, b.SubscriberCount())
}

func TestBroadcasterDropsForSlowSubscriber(t *testing.T) {
	m := metrics.NewMetrics(prometheus.NewRegistry())
	b := NewBroadcaster(m, nil)

	ch, unsub := b.Subscribe(1)
	defer unsub()

	b.Publish(Event{Type: EventProgress})
	b.Publish(Event{Type: EventError})

	assert.Equal(t, EventProgress, (<-ch).Type)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EventsDropped))
}

func TestBroadcasterClose(t *testing.T) {
	b := NewBroadcaster(nil, nil)
	ch, unsub := b.Subscribe(1)

	b.Close()
	b.Close()
	unsub()

	_, open := <-ch
	assert.False(t, open)

	late, _ := b.Subscribe(1)
	_, open = <-late
	require.False(t, open)
	assert.NotPanics(t, func() { b.Publish(Event{Type: EventStopped}) })
}
