package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/conformsync/internal/client/events"
	"github.com/dmitrijs2005/conformsync/internal/logging"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRemoteListener_URL(t *testing.T) {
	r, err := NewRemoteListener("https://example.org/api/", "u1", "dev", events.NewBus(1), logging.Discard())
	require.NoError(t, err)
	assert.Equal(t, "wss://example.org/api/ws?deviceId=dev&userId=u1", r.url)

	_, err = NewRemoteListener("ftp://example.org", "u1", "dev", events.NewBus(1), logging.Discard())
	require.Error(t, err)
}

func TestRemoteListener_PublishesForeignForceSync(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/ws", r.URL.Path)
		assert.Equal(t, "me", r.URL.Query().Get("deviceId"))

		conn, err := upgrader.Upgrade(w, r, nil)
		if !assert.NoError(t, err) {
			return
		}
		defer conn.Close()

		for _, msg := range []PushMessage{
			{Type: MessageForceSync, Table: "documents", UserID: "u1", DeviceID: "me"},
			{Type: MessageForceSync, Table: "documents", UserID: "u2", DeviceID: "other"},
			{Type: "hello"},
			{Type: MessageForceSync, Table: "exigences", UserID: "u1", DeviceID: "other"},
		} {
			if !assert.NoError(t, conn.WriteJSON(msg)) {
				return
			}
		}
		// keep the socket open until the client goes away
		_, _, _ = conn.ReadMessage()
	}))
	defer srv.Close()

	bus := events.NewBus(8)
	ch, cancel := bus.Subscribe(events.ForceSyncRequired)
	defer cancel()

	r, err := NewRemoteListener(srv.URL, "u1", "me", bus, logging.Discard())
	require.NoError(t, err)

	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	select {
	case ev := <-ch:
		assert.Equal(t, "exigences", ev.Table)
		assert.Equal(t, "other", ev.DeviceID)
	case <-time.After(2 * time.Second):
		t.Fatal("no ForceSyncRequired event")
	}
	assert.Empty(t, ch)

	stop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}
