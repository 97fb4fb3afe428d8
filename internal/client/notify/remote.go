package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/conformsync/internal/client/events"
	"github.com/dmitrijs2005/conformsync/internal/logging"
	"github.com/gorilla/websocket"
)

const (
	// MessageForceSync is pushed by the server after another device synced.
	MessageForceSync = "force-sync-required"

	pongWait       = 60 * time.Second
	maxMessageSize = 64 * 1024
	maxBackoff     = time.Minute
)

// PushMessage is the JSON frame sent by the server hub.
type PushMessage struct {
	Type     string `json:"type"`
	Table    string `json:"table,omitempty"`
	UserID   string `json:"userId,omitempty"`
	DeviceID string `json:"deviceId,omitempty"`
}

// RemoteListener keeps a websocket open to the server and republishes
// force-sync pushes from other devices as ForceSyncRequired events.
type RemoteListener struct {
	url      string
	userID   string
	deviceID string
	bus      *events.Bus
	log      logging.Logger
	dialer   *websocket.Dialer
	backoff  time.Duration
}

// NewRemoteListener derives the websocket endpoint from the API base URL:
// http(s)://host/api becomes ws(s)://host/api/ws.
func NewRemoteListener(apiBase, userID, deviceID string, bus *events.Bus, log logging.Logger) (*RemoteListener, error) {
	u, err := url.Parse(strings.TrimRight(apiBase, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse api base url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("api base url %q: unsupported scheme", apiBase)
	}
	u = u.JoinPath("ws")
	u.RawQuery = url.Values{"userId": {userID}, "deviceId": {deviceID}}.Encode()

	return &RemoteListener{
		url:      u.String(),
		userID:   userID,
		deviceID: deviceID,
		bus:      bus,
		log:      log,
		dialer:   websocket.DefaultDialer,
		backoff:  time.Second,
	}, nil
}

// Run reconnects with exponential backoff until ctx is done.
func (r *RemoteListener) Run(ctx context.Context) {
	backoff := r.backoff
	for {
		err := r.listen(ctx)
		if ctx.Err() != nil {
			return
		}
		r.log.Debug(ctx, "push channel closed", "error", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (r *RemoteListener) listen(ctx context.Context) error {
	conn, resp, err := r.dialer.DialContext(ctx, r.url, http.Header{})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return err
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPingHandler(func(data string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
	})

	r.log.Info(ctx, "push channel connected", "url", r.url)
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			return err
		}
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		r.handle(ctx, data)
	}
}

func (r *RemoteListener) handle(ctx context.Context, data []byte) {
	var msg PushMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		r.log.Warn(ctx, "invalid push message", "error", err)
		return
	}
	if msg.Type != MessageForceSync {
		return
	}
	if msg.DeviceID == r.deviceID || (msg.UserID != "" && msg.UserID != r.userID) {
		return
	}
	r.bus.Publish(events.Event{
		Topic:    events.ForceSyncRequired,
		Table:    msg.Table,
		UserID:   msg.UserID,
		DeviceID: msg.DeviceID,
	})
}
