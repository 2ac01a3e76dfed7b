package web

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func receive(t *testing.T, messages <-chan Message) (Message, bool) {
	t.Helper()
	select {
	case msg, ok := <-messages:
		return msg, ok
	case <-time.After(time.Second):
		assert.Fail(t, "no message received")
		return Message{}, false
	}
}

func TestHub_PublishToAllSubscribers(t *testing.T) {
	hub := newHub()
	defer hub.Close()

	id1, messages1 := hub.Subscribe()
	id2, messages2 := hub.Subscribe()
	assert.NotEqual(t, id1, id2)

	hub.Publish(Message{Type: "test"})

	msg, ok := receive(t, messages1)
	assert.True(t, ok)
	assert.Equal(t, "test", msg.Type)
	msg, ok = receive(t, messages2)
	assert.True(t, ok)
	assert.Equal(t, "test", msg.Type)
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := newHub()
	defer hub.Close()
	id, messages := hub.Subscribe()

	hub.Unsubscribe(id)
	hub.Unsubscribe(id)

	_, ok := receive(t, messages)
	assert.False(t, ok)
}

func TestHub_DropUnresponsiveSubscribers(t *testing.T) {
	hub := newHub()
	defer hub.Close()
	_, messages := hub.Subscribe()

	for range subscriberBufferSize + 1 {
		hub.Publish(Message{Type: "test"})
	}
	// messages are handled in order, so the overflow was handled once the next message was taken
	hub.Publish(Message{Type: "next"})

	for range subscriberBufferSize {
		_, ok := receive(t, messages)
		assert.True(t, ok)
	}
	_, ok := receive(t, messages)
	assert.False(t, ok, "the unresponsive subscriber must be dropped")
}

func TestHub_Close(t *testing.T) {
	hub := newHub()
	_, messages := hub.Subscribe()

	hub.Close()
	hub.Close()

	_, ok := receive(t, messages)
	assert.False(t, ok)

	_, lateMessages := hub.Subscribe()
	_, ok = receive(t, lateMessages)
	assert.False(t, ok)
	hub.Publish(Message{Type: "ignored"})
}
