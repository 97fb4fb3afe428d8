package repair

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/dmitrijs2005/conformsync/internal/client/api"
	"github.com/dmitrijs2005/conformsync/internal/client/cache"
	"github.com/dmitrijs2005/conformsync/internal/client/events"
	"github.com/dmitrijs2005/conformsync/internal/client/models"
	"github.com/dmitrijs2005/conformsync/internal/client/notify"
	"github.com/dmitrijs2005/conformsync/internal/client/storage"
	"github.com/dmitrijs2005/conformsync/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	action, userID, table string
}

type fakeAPI struct {
	mu    sync.Mutex
	calls []call
	fail  map[string]bool
}

func (f *fakeAPI) SyncTable(context.Context, string, string, any) (api.Result, error) {
	return api.Result{Success: true}, nil
}

func (f *fakeAPI) LoadTable(context.Context, string, string) ([]json.RawMessage, error) {
	return nil, nil
}

func (f *fakeAPI) Diagnostic(_ context.Context, action, userID, table string) (api.DiagnosticResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{action, userID, table})
	if f.fail[action] {
		return api.DiagnosticResult{}, &api.ResponseError{Err: api.ErrRejected, Message: "nope"}
	}
	return api.DiagnosticResult{Success: true, Message: "ok"}, nil
}

func (f *fakeAPI) Probe(context.Context) error { return nil }

type fakeFleet struct {
	ops []string
}

func (f *fakeFleet) ResetAll(context.Context) error  { f.ops = append(f.ops, "reset"); return nil }
func (f *fakeFleet) ReloadAll(context.Context) error { f.ops = append(f.ops, "reload"); return nil }

type fakeBackup struct {
	err error
}

func (f fakeBackup) Snapshot(context.Context) (string, error) { return "snap-1", f.err }

type env struct {
	tool    *Tool
	api     *fakeAPI
	fleet   *fakeFleet
	cache   *cache.Store
	kv      storage.Storage
	notices []notify.Notice
}

func newEnv(t *testing.T, backup Snapshotter) *env {
	t.Helper()
	e := &env{api: &fakeAPI{fail: map[string]bool{}}, fleet: &fakeFleet{}, kv: storage.NewMemory()}
	e.cache = cache.New(e.kv, events.NewBus(32), logging.Discard())
	require.NoError(t, e.cache.SetUser(context.Background(), "u1"))
	e.tool = New(Options{
		API:    e.api,
		Cache:  e.cache,
		Fleet:  e.fleet,
		Backup: backup,
		Notifier: notify.Func(func(_ context.Context, n notify.Notice) {
			e.notices = append(e.notices, n)
		}),
		Tables: []string{models.TableDocuments, models.TableMembres},
	})
	return e
}

func TestRemoteActions(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	assert.True(t, e.tool.RepairSync(ctx))
	assert.True(t, e.tool.CheckTables(ctx))
	assert.True(t, e.tool.FixID(ctx, models.TableDocuments))

	e.api.fail[api.ActionResetQueue] = true
	assert.False(t, e.tool.ResetQueue(ctx))

	assert.Equal(t, []call{
		{api.ActionRepairSync, "u1", ""},
		{api.ActionCheckTables, "u1", ""},
		{api.ActionFixID, "u1", models.TableDocuments},
		{api.ActionResetQueue, "u1", ""},
	}, e.api.calls)
}

func TestRemoteActions_NoUser(t *testing.T) {
	fa := &fakeAPI{}
	tool := New(Options{API: fa, Cache: cache.New(storage.NewMemory(), events.NewBus(1), logging.Discard())})
	assert.False(t, tool.RepairSync(context.Background()))
	assert.Empty(t, fa.calls)
}

func TestRun(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()

	ok, err := e.tool.Run(ctx, api.ActionRemoveDuplicates, models.TableExigences)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = e.tool.Run(ctx, api.ActionFixID, "nope")
	require.Error(t, err)

	_, err = e.tool.Run(ctx, "explode", "")
	require.ErrorIs(t, err, ErrUnknownAction)
}

func TestClearLocalData(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	require.NoError(t, e.kv.Set(ctx, "documents_u1", []byte(`[]`)))
	require.NoError(t, e.kv.Set(ctx, "membres_u1", []byte(`[]`)))
	require.NoError(t, e.cache.MarkFailed(ctx, models.TableDocuments, 3))

	require.NoError(t, e.tool.ClearLocalData(ctx, models.TableDocuments))

	v, _ := e.kv.Get(ctx, "documents_u1")
	assert.Nil(t, v)
	v, _ = e.kv.Get(ctx, "sync_failed_documents")
	assert.Nil(t, v)
	v, _ = e.kv.Get(ctx, "membres_u1")
	assert.NotNil(t, v)
}

func TestRegenerateDeviceID(t *testing.T) {
	e := newEnv(t, nil)
	ctx := context.Background()
	var got string
	e.tool.onDeviceID = func(id string) { got = id }

	old, err := e.cache.DeviceID(ctx)
	require.NoError(t, err)

	id, err := e.tool.RegenerateDeviceID(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, old, id)
	assert.Equal(t, id, got)
}

func TestFullRepair_Order(t *testing.T) {
	e := newEnv(t, fakeBackup{})
	rep := e.tool.FullRepair(context.Background())

	assert.True(t, rep.OK())
	assert.Equal(t, "snap-1", rep.Snapshot)

	var actions []string
	for _, c := range e.api.calls {
		actions = append(actions, c.action+":"+c.table)
	}
	assert.Equal(t, []string{
		"reset_queue:",
		"repair_sync:",
		"remove_duplicates:documents",
		"fix_id:documents",
		"remove_duplicates:membres",
		"fix_id:membres",
		"check_tables:",
	}, actions)
	assert.Equal(t, []string{"reset", "reload"}, e.fleet.ops)

	require.Len(t, e.notices, 1)
	assert.Equal(t, notify.LevelSuccess, e.notices[0].Level)
}

func TestFullRepair_ReportsFailures(t *testing.T) {
	e := newEnv(t, fakeBackup{err: errors.New("disk full")})
	e.api.fail[api.ActionFixID] = true

	rep := e.tool.FullRepair(context.Background())

	assert.False(t, rep.OK())
	assert.Equal(t, []string{"snapshot", "fix_id:documents", "fix_id:membres"}, rep.Failed())
	assert.Equal(t, []string{"reset", "reload"}, e.fleet.ops, "later steps still run")

	require.Len(t, e.notices, 1)
	assert.Equal(t, notify.LevelWarning, e.notices[0].Level)
	assert.Contains(t, e.notices[0].Message, "fix_id:documents")
}
