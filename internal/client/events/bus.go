// Package events is the in-process publish/subscribe bus that connects the
// cache, the sync collections, the connectivity monitor and the notifiers.
package events

import (
	"sync"
	"sync/atomic"
)

// Topic identifies a kind of event.
type Topic string

const (
	EntityUpdated        Topic = "entity-updated"
	UserChanged          Topic = "user-changed"
	DatabaseUserChanged  Topic = "database-user-changed"
	SyncStart            Topic = "sync-start"
	SyncCompleted        Topic = "sync-completed"
	SyncFailed           Topic = "sync-failed"
	ForceSyncRequired    Topic = "force-sync-required"
	ConnectivityRestored Topic = "connectivity-restored"
	ConnectivityLost     Topic = "connectivity-lost"
)

// Event is delivered to subscribers. Only the fields relevant to Topic are set.
type Event struct {
	Topic  Topic
	Table  string
	UserID string
	// DeviceID is the origin device of a pushed event.
	DeviceID string
	// External marks cache updates made by another process.
	External bool
	// Manual marks sync events triggered by an explicit user action.
	Manual bool
	Err    error
}

// Name returns the legacy event name, e.g. "documentsUpdate" for a cache
// update of the documents table.
func (e Event) Name() string {
	if e.Topic == EntityUpdated && e.Table != "" {
		return e.Table + "Update"
	}
	return string(e.Topic)
}

type subscriber struct {
	id     uint64
	topics map[Topic]struct{}
	filter func(Event) bool
	ch     chan Event
	// box is set for queued subscriptions; ch is then fed by pump.
	box *mailbox
}

func (s *subscriber) wants(e Event) bool {
	if s.topics != nil {
		if _, ok := s.topics[e.Topic]; !ok {
			return false
		}
	}
	return s.filter == nil || s.filter(e)
}

func (s *subscriber) close() {
	if s.box != nil {
		close(s.box.done)
		return
	}
	close(s.ch)
}

// mailbox is an unbounded FIFO drained into a subscriber channel.
type mailbox struct {
	mu    sync.Mutex
	queue []Event
	wake  chan struct{}
	done  chan struct{}
}

func (m *mailbox) push(e Event) {
	m.mu.Lock()
	m.queue = append(m.queue, e)
	m.mu.Unlock()
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *mailbox) pump(out chan<- Event) {
	defer close(out)
	for {
		m.mu.Lock()
		if len(m.queue) == 0 {
			m.mu.Unlock()
			select {
			case <-m.wake:
				continue
			case <-m.done:
				return
			}
		}
		e := m.queue[0]
		m.queue[0] = Event{}
		m.queue = m.queue[1:]
		m.mu.Unlock()

		select {
		case out <- e:
		case <-m.done:
			return
		}
	}
}

// Bus fans events out to subscribers. Publish never blocks. A buffered
// subscription drops what does not fit and the drop is counted; a queued
// subscription keeps every event until it is read.
type Bus struct {
	mu      sync.RWMutex
	subs    map[uint64]*subscriber
	nextID  uint64
	buffer  int
	dropped atomic.Uint64
	closed  bool
}

func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = 64
	}
	return &Bus{subs: make(map[uint64]*subscriber), buffer: buffer}
}

// Subscribe returns a buffered channel receiving events of the given topics
// (all topics when none are given) and a function that cancels the
// subscription.
func (b *Bus) Subscribe(topics ...Topic) (<-chan Event, func()) {
	return b.subscribe(&subscriber{ch: make(chan Event, b.buffer)}, topics)
}

// SubscribeQueue is Subscribe without loss: events wait in an unbounded
// queue while the reader is busy. A non-nil filter further restricts the
// delivered events. The channel is closed shortly after cancellation.
func (b *Bus) SubscribeQueue(filter func(Event) bool, topics ...Topic) (<-chan Event, func()) {
	s := &subscriber{
		filter: filter,
		ch:     make(chan Event),
		box:    &mailbox{wake: make(chan struct{}, 1), done: make(chan struct{})},
	}
	go s.box.pump(s.ch)
	return b.subscribe(s, topics)
}

func (b *Bus) subscribe(s *subscriber, topics []Topic) (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s.id = b.nextID
	b.nextID++
	if len(topics) > 0 {
		s.topics = make(map[Topic]struct{}, len(topics))
		for _, t := range topics {
			s.topics[t] = struct{}{}
		}
	}
	if b.closed {
		s.close()
		return s.ch, func() {}
	}
	b.subs[s.id] = s

	var once sync.Once
	return s.ch, func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[s.id]; ok {
				delete(b.subs, s.id)
				s.close()
			}
		})
	}
}

func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, s := range b.subs {
		if !s.wants(e) {
			continue
		}
		if s.box != nil {
			s.box.push(e)
			continue
		}
		select {
		case s.ch <- e:
		default:
			b.dropped.Add(1)
		}
	}
}

// Dropped returns how many deliveries were skipped because of full buffers.
func (b *Bus) Dropped() uint64 { return b.dropped.Load() }

// Close closes every subscription channel. Later publishes are no-ops.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, s := range b.subs {
		s.close()
		delete(b.subs, id)
	}
}
