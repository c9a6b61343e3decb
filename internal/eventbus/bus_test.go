package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishFanout(t *testing.T) {
	b := New()
	all, unsubAll := b.Subscribe(4)
	defer unsubAll()
	failed, unsubFailed := b.Subscribe(4, TypeTaskFailed)
	defer unsubFailed()

	b.Publish(Event{Type: TypeTaskStarted, Data: "a"})
	b.Publish(Event{Type: TypeTaskFailed, Data: "b"})

	e := <-all
	assert.Equal(t, TypeTaskStarted, e.Type)
	assert.False(t, e.Time.IsZero())
	assert.Equal(t, TypeTaskFailed, (<-all).Type)

	select {
	case e := <-failed:
		assert.Equal(t, "b", e.Data)
	case <-time.After(time.Second):
		t.Fatal("expected filtered event")
	}
	select {
	case e := <-failed:
		t.Fatalf("unexpected event %v", e)
	default:
	}
}

func TestPublishNeverBlocks(t *testing.T) {
	b := New()
	_, unsub := b.Subscribe(1)
	defer unsub()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			b.Publish(Event{Type: TypeTaskFinished})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
	assert.EqualValues(t, 9, b.Dropped())
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsub := b.Subscribe(1)
	unsub()
	unsub()
	_, ok := <-ch
	require.False(t, ok)
	b.Publish(Event{Type: TypeTaskStarted})
}
