package connectivity

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/conformsync/internal/client/events"
	"github.com/dmitrijs2005/conformsync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProber struct {
	fail  atomic.Bool
	calls atomic.Int32
}

func (f *fakeProber) Probe(ctx context.Context) error {
	f.calls.Add(1)
	if f.fail.Load() {
		return errors.New("connection refused")
	}
	return nil
}

func topics(ch <-chan events.Event) []events.Topic {
	var out []events.Topic
	for {
		select {
		case ev := <-ch:
			out = append(out, ev.Topic)
		default:
			return out
		}
	}
}

func TestMonitor_Transitions(t *testing.T) {
	p := &fakeProber{}
	bus := events.NewBus(8)
	m := NewMonitor(p, bus, logging.Discard(), time.Hour)
	ch, cancel := m.Subscribe()
	defer cancel()

	assert.Equal(t, ModeUnknown, m.Mode())
	assert.False(t, m.IsOnline())

	ctx := context.Background()
	assert.Equal(t, ModeOnline, m.Check(ctx))
	assert.Equal(t, ModeOnline, m.Check(ctx))

	p.fail.Store(true)
	assert.Equal(t, ModeOffline, m.Check(ctx))
	p.fail.Store(false)
	m.Check(ctx)

	assert.Equal(t, []events.Topic{
		events.ConnectivityRestored,
		events.ConnectivityLost,
		events.ConnectivityRestored,
	}, topics(ch))
}

func TestMonitor_SetOnlinePins(t *testing.T) {
	p := &fakeProber{}
	m := NewMonitor(p, events.NewBus(4), logging.Discard(), time.Hour)

	m.SetOnline(false)
	assert.Equal(t, ModeOffline, m.Check(context.Background()))
	assert.Zero(t, p.calls.Load(), "pinned monitor does not probe")

	m.Unpin()
	assert.Equal(t, ModeOnline, m.Check(context.Background()))
}

func TestMonitor_RunStopsWithContext(t *testing.T) {
	p := &fakeProber{}
	m := NewMonitor(p, events.NewBus(4), logging.Discard(), 5*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return p.calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, m.IsOnline())
}
