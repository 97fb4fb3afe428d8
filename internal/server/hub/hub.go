// Package hub pushes force-sync notifications to the devices of a user
// over websockets.
package hub

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/dmitrijs2005/conformsync/internal/logging"
)

// MessageForceSync tells the other devices of a user to reload a table.
const MessageForceSync = "force-sync-required"

// Message is the JSON frame sent to devices.
type Message struct {
	Type     string `json:"type"`
	Table    string `json:"table,omitempty"`
	UserID   string `json:"userId,omitempty"`
	DeviceID string `json:"deviceId,omitempty"`
}

type clientKey struct {
	userID, deviceID string
}

// Hub maintains the set of connected devices.
type Hub struct {
	clients    map[clientKey]*Client
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	log        logging.Logger
}

func New(log logging.Logger) *Hub {
	return &Hub{
		clients:    make(map[clientKey]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		log:        log,
	}
}

// Run serves registrations until ctx is done, then disconnects everybody.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for k, c := range h.clients {
				close(c.send)
				delete(h.clients, k)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			// a device connecting again replaces its old connection
			if old, ok := h.clients[client.key()]; ok {
				close(old.send)
			}
			h.clients[client.key()] = client
			h.mu.Unlock()
			h.log.Info(ctx, "device connected", "user", client.UserID, "device", client.DeviceID)

		case client := <-h.unregister:
			h.mu.Lock()
			if cur, ok := h.clients[client.key()]; ok && cur == client {
				delete(h.clients, client.key())
				close(client.send)
				h.log.Info(ctx, "device disconnected", "user", client.UserID, "device", client.DeviceID)
			}
			h.mu.Unlock()
		}
	}
}

// Count returns the number of connected devices.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastToUser sends msg to every device of userID except exceptDevice
// and returns how many devices got it. Devices with a full buffer are
// skipped.
func (h *Hub) BroadcastToUser(userID, exceptDevice string, msg Message) int {
	payload, err := json.Marshal(msg)
	if err != nil {
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	sent := 0
	for k, c := range h.clients {
		if k.userID != userID || k.deviceID == exceptDevice {
			continue
		}
		select {
		case c.send <- payload:
			sent++
		default:
		}
	}
	return sent
}

// NotifySynced announces that deviceID replaced table for userID.
func (h *Hub) NotifySynced(userID, deviceID, table string) int {
	return h.BroadcastToUser(userID, deviceID, Message{
		Type:     MessageForceSync,
		Table:    table,
		UserID:   userID,
		DeviceID: deviceID,
	})
}
