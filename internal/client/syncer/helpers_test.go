package syncer

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/conformsync/internal/client/api"
	"github.com/dmitrijs2005/conformsync/internal/client/cache"
	"github.com/dmitrijs2005/conformsync/internal/client/events"
	"github.com/dmitrijs2005/conformsync/internal/client/notify"
	"github.com/dmitrijs2005/conformsync/internal/client/storage"
	"github.com/dmitrijs2005/conformsync/internal/logging"
	"github.com/stretchr/testify/require"
)

type syncCall struct {
	table   string
	userID  string
	payload string
}

type fakeAPI struct {
	mu        sync.Mutex
	syncCalls []syncCall
	loadCalls []string
	syncErr   error
	loadErr   error
	loads     map[string][]json.RawMessage
	block     chan struct{}
	loadBlock chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{loads: map[string][]json.RawMessage{}}
}

func (f *fakeAPI) SyncTable(ctx context.Context, table, userID string, items any) (api.Result, error) {
	b, _ := json.Marshal(items)
	f.mu.Lock()
	f.syncCalls = append(f.syncCalls, syncCall{table: table, userID: userID, payload: string(b)})
	block, err := f.block, f.syncErr
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return api.Result{}, ctx.Err()
		}
	}
	if err != nil {
		return api.Result{}, err
	}
	return api.Result{Success: true}, nil
}

func (f *fakeAPI) LoadTable(ctx context.Context, table, userID string) ([]json.RawMessage, error) {
	f.mu.Lock()
	f.loadCalls = append(f.loadCalls, table)
	block := f.loadBlock
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.loadErr != nil {
		return nil, f.loadErr
	}
	return f.loads[table], nil
}

func (f *fakeAPI) setLoadBlock(ch chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadBlock = ch
}

func (f *fakeAPI) setSyncBlock(ch chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block = ch
}

func (f *fakeAPI) Diagnostic(ctx context.Context, action, userID, table string) (api.DiagnosticResult, error) {
	return api.DiagnosticResult{Success: true}, nil
}

func (f *fakeAPI) Probe(ctx context.Context) error { return nil }

func (f *fakeAPI) setSyncErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.syncErr = err
}

func (f *fakeAPI) syncs() []syncCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]syncCall(nil), f.syncCalls...)
}

func (f *fakeAPI) loadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.loadCalls)
}

type fakeOnline struct{ v atomic.Bool }

func (o *fakeOnline) IsOnline() bool { return o.v.Load() }

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recorder struct {
	mu      sync.Mutex
	notices []notify.Notice
}

func (r *recorder) Notify(_ context.Context, n notify.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) all() []notify.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]notify.Notice(nil), r.notices...)
}

type env struct {
	deps   Deps
	api    *fakeAPI
	online *fakeOnline
	store  *cache.Store
	kv     *storage.Memory
	bus    *events.Bus
	notes  *recorder
}

func newEnv(t *testing.T) *env {
	t.Helper()
	kv := storage.NewMemory()
	bus := events.NewBus(64)
	store := cache.New(kv, bus, logging.Discard())
	require.NoError(t, store.SetUser(context.Background(), "u1"))

	e := &env{
		api:    newFakeAPI(),
		online: &fakeOnline{},
		store:  store,
		kv:     kv,
		bus:    bus,
		notes:  &recorder{},
	}
	e.online.v.Store(true)
	e.deps = Deps{
		Cache:    store,
		API:      e.api,
		Online:   e.online,
		Bus:      bus,
		Notifier: e.notes,
		Log:      logging.Discard(),
		Policy: Policy{
			DebounceDelay:   20 * time.Millisecond,
			SyncInterval:    time.Hour,
			MinSyncInterval: 0,
			RequestTimeout:  time.Second,
			MaxAttempts:     3,
		},
	}
	return e
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}
