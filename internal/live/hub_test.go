package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_BroadcastsToClients(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Registration happens asynchronously; publish until the client sees it.
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	received := make(chan Message, 1)
	go func() {
		var m Message
		if err := conn.ReadJSON(&m); err == nil {
			received <- m
		}
	}()

	deadline := time.After(2 * time.Second)
	for {
		hub.Publish(TypeLeaderboardUpdated, map[string]int{"points": 40})
		select {
		case m := <-received:
			assert.Equal(t, TypeLeaderboardUpdated, m.Type)
			assert.Equal(t, map[string]any{"points": float64(40)}, m.Data)
			return
		case <-deadline:
			t.Fatal("no message received")
		case <-time.After(20 * time.Millisecond):
		}
	}
}

func TestHub_PublishAfterStopDoesNotBlock(t *testing.T) {
	hub := NewHub(nil)
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			hub.Publish(TypeActivityCreated, i)
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked after hub stopped")
	}
}
