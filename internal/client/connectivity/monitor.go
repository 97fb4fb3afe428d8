// Package connectivity tracks whether the API server is reachable.
package connectivity

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/conformsync/internal/client/events"
	"github.com/dmitrijs2005/conformsync/internal/logging"
)

type Mode string

const (
	ModeUnknown Mode = "unknown"
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
)

const DefaultProbeTimeout = 3 * time.Second

// Prober checks reachability once. Any answer from the server counts.
type Prober interface {
	Probe(ctx context.Context) error
}

// Monitor probes the server periodically and publishes
// ConnectivityRestored / ConnectivityLost on transitions.
type Monitor struct {
	prober       Prober
	bus          *events.Bus
	log          logging.Logger
	interval     time.Duration
	probeTimeout time.Duration

	mu     sync.RWMutex
	mode   Mode
	pinned bool
}

func NewMonitor(p Prober, bus *events.Bus, log logging.Logger, interval time.Duration) *Monitor {
	return &Monitor{
		prober:       p,
		bus:          bus,
		log:          log,
		interval:     interval,
		probeTimeout: DefaultProbeTimeout,
		mode:         ModeUnknown,
	}
}

// Run probes immediately and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	m.Check(ctx)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.Check(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// Check runs one probe and returns the resulting mode. A pinned mode is
// returned without probing.
func (m *Monitor) Check(ctx context.Context) Mode {
	m.mu.RLock()
	pinned, mode := m.pinned, m.mode
	m.mu.RUnlock()
	if pinned {
		return mode
	}

	pctx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	err := m.prober.Probe(pctx)
	cancel()

	if ctx.Err() != nil {
		return m.Mode()
	}
	if err != nil {
		m.log.Debug(ctx, "probe failed", "error", err)
		m.setMode(ctx, ModeOffline, false)
		return ModeOffline
	}
	m.setMode(ctx, ModeOnline, false)
	return ModeOnline
}

func (m *Monitor) Mode() Mode {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.mode
}

func (m *Monitor) IsOnline() bool { return m.Mode() == ModeOnline }

// SetOnline forces the mode and stops probing from changing it until Unpin.
func (m *Monitor) SetOnline(online bool) {
	mode := ModeOffline
	if online {
		mode = ModeOnline
	}
	m.setMode(context.Background(), mode, true)
}

// Unpin lets probes drive the mode again.
func (m *Monitor) Unpin() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pinned = false
}

// Subscribe returns connectivity transitions as bus events.
func (m *Monitor) Subscribe() (<-chan events.Event, func()) {
	return m.bus.Subscribe(events.ConnectivityRestored, events.ConnectivityLost)
}

func (m *Monitor) setMode(ctx context.Context, mode Mode, pin bool) {
	m.mu.Lock()
	prev := m.mode
	m.mode = mode
	if pin {
		m.pinned = true
	}
	m.mu.Unlock()

	if prev == mode {
		return
	}
	m.log.Info(ctx, "connectivity changed", "from", prev, "to", mode)
	if mode == ModeOnline {
		m.bus.Publish(events.Event{Topic: events.ConnectivityRestored})
	} else {
		m.bus.Publish(events.Event{Topic: events.ConnectivityLost})
	}
}
