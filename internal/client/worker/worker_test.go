package worker

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/conformsync/internal/client/api"
	"github.com/dmitrijs2005/conformsync/internal/client/events"
	"github.com/dmitrijs2005/conformsync/internal/client/syncer"
	"github.com/dmitrijs2005/conformsync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeColl struct {
	table   string
	mu      sync.Mutex
	pending bool
	calls   []syncer.Trigger
	err     error
}

func (f *fakeColl) Table() string                          { return f.table }
func (f *fakeColl) Start(context.Context) error            { return nil }
func (f *fakeColl) ReloadFromServer(context.Context) error { return nil }
func (f *fakeColl) ResetSyncFailed(context.Context) error  { return nil }
func (f *fakeColl) Close()                                 {}
func (f *fakeColl) SyncNow(ctx context.Context) (api.Result, error) {
	return f.Sync(ctx, syncer.TriggerManual)
}

func (f *fakeColl) Sync(_ context.Context, trig syncer.Trigger) (api.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, trig)
	f.pending = false
	return api.Result{Success: f.err == nil}, f.err
}

func (f *fakeColl) State() syncer.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return syncer.State{Table: f.table, Pending: f.pending}
}

func (f *fakeColl) triggers() []syncer.Trigger {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]syncer.Trigger(nil), f.calls...)
}

type fakeColls []*fakeColl

func (fc fakeColls) Collection(table string) (syncer.Syncable, error) {
	for _, c := range fc {
		if c.table == table {
			return c, nil
		}
	}
	return nil, syncer.ErrUnknownTable
}

func (fc fakeColls) Collections() []syncer.Syncable {
	out := make([]syncer.Syncable, len(fc))
	for i, c := range fc {
		out[i] = c
	}
	return out
}

type fakeID struct{}

func (fakeID) UserID() string                           { return "u1" }
func (fakeID) DeviceID(context.Context) (string, error) { return "dev-1", nil }

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestRegister_ValidatesTags(t *testing.T) {
	b := New(fakeColls{{table: "documents"}}, fakeID{}, events.NewBus(1), logging.Discard(), Options{})

	require.NoError(t, b.Register("sync:documents"))
	require.ErrorIs(t, b.Register("documents"), ErrInvalidTag)
	require.ErrorIs(t, b.Register("sync:"), ErrInvalidTag)
	require.ErrorIs(t, b.Register("sync:users"), ErrInvalidTag)
	assert.Equal(t, []string{"sync:documents"}, b.Registered())
}

func TestHandleTag_ThrottlesPerTag(t *testing.T) {
	docs := &fakeColl{table: "documents", pending: true}
	membres := &fakeColl{table: "membres", pending: true}
	clk := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := New(fakeColls{docs, membres}, fakeID{}, events.NewBus(1), logging.Discard(), Options{MinInterval: 10 * time.Second, Now: clk.Now})
	ctx := context.Background()

	require.NoError(t, b.HandleTag(ctx, Tag("documents")))
	docs.pending = true
	require.ErrorIs(t, b.HandleTag(ctx, Tag("documents")), ErrThrottled)
	require.NoError(t, b.HandleTag(ctx, Tag("membres")), "throttle is per tag")

	clk.advance(11 * time.Second)
	require.NoError(t, b.HandleTag(ctx, Tag("documents")))
	assert.Equal(t, []syncer.Trigger{syncer.TriggerBackground, syncer.TriggerBackground}, docs.triggers())
}

func TestHandleTag_SkipsTablesWithoutChanges(t *testing.T) {
	docs := &fakeColl{table: "documents"}
	b := New(fakeColls{docs}, fakeID{}, events.NewBus(1), logging.Discard(), Options{})

	require.NoError(t, b.HandleTag(context.Background(), Tag("documents")))
	assert.Empty(t, docs.triggers())
}

func TestRun_FiresRegisteredTagsOnReconnect(t *testing.T) {
	docs := &fakeColl{table: "documents"}
	bus := events.NewBus(4)
	clk := &clock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := New(fakeColls{docs}, fakeID{}, bus, logging.Discard(), Options{Now: clk.Now})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		b.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	require.NoError(t, b.Register(Tag("documents")))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, docs.triggers(), "nothing pending on registration")

	docs.mu.Lock()
	docs.pending = true
	docs.mu.Unlock()
	clk.advance(time.Minute)
	require.Eventually(t, func() bool {
		bus.Publish(events.Event{Topic: events.ConnectivityRestored})
		return len(docs.triggers()) == 1
	}, time.Second, 20*time.Millisecond)
}

func TestPost(t *testing.T) {
	docs := &fakeColl{table: "documents"}
	membres := &fakeColl{table: "membres", err: api.ErrTimeout}
	b := New(fakeColls{docs, membres}, fakeID{}, events.NewBus(1), logging.Discard(), Options{})
	ctx := context.Background()

	reply, err := b.Post(ctx, Message{Type: MsgGetAuthInfo})
	require.NoError(t, err)
	assert.Equal(t, Reply{Type: MsgGetAuthInfo, UserID: "u1", DeviceID: "dev-1"}, reply)

	reply, err = b.Post(ctx, Message{Type: MsgManualSync, Table: "documents"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"documents": "success"}, reply.Results)
	assert.Equal(t, []syncer.Trigger{syncer.TriggerManual}, docs.triggers())

	reply, err = b.Post(ctx, Message{Type: MsgManualSync})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"documents": "success", "membres": "timeout"}, reply.Results)

	_, err = b.Post(ctx, Message{Type: MsgManualSync, Table: "users"})
	require.ErrorIs(t, err, syncer.ErrUnknownTable)
	_, err = b.Post(ctx, Message{Type: "ping"})
	require.ErrorIs(t, err, ErrUnknownMessage)
}
