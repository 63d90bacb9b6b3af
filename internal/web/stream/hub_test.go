package stream

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_PublishReachesAllSubscribers(t *testing.T) {
	hub := NewHub(nil)
	a := hub.Subscribe()
	b := hub.Subscribe()

	hub.Publish(Event{Action: ActionCreated, Resource: "article", ID: "a1"})

	for _, ch := range []chan Event{a, b} {
		select {
		case event := <-ch:
			assert.Equal(t, "a1", event.ID)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive the event")
		}
	}
}

func TestHub_Unsubscribe(t *testing.T) {
	hub := NewHub(nil)
	ch := hub.Subscribe()
	require.Equal(t, 1, hub.SubscriberCount())

	hub.Unsubscribe(ch)
	assert.Equal(t, 0, hub.SubscriberCount())

	_, open := <-ch
	assert.False(t, open, "channel must be closed after unsubscribe")

	// double unsubscribe is a no-op
	hub.Unsubscribe(ch)
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewHub(nil)
	hub.Subscribe() // never drained

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			hub.Publish(Event{Action: ActionUpdated, Resource: "article", ID: "a1"})
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestHub_WebSocketHandler(t *testing.T) {
	hub := NewHub(nil)
	server := httptest.NewServer(hub.Handler())
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// wait until the server side registered its subscription
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 1, hub.SubscriberCount())

	hub.Publish(Event{Action: ActionDeleted, Resource: "article", ID: "a9"})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event Event
	require.NoError(t, conn.ReadJSON(&event))
	assert.Equal(t, ActionDeleted, event.Action)
	assert.Equal(t, "a9", event.ID)
}
