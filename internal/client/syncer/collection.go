package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/dmitrijs2005/conformsync/internal/client/api"
	"github.com/dmitrijs2005/conformsync/internal/client/cache"
	"github.com/dmitrijs2005/conformsync/internal/client/events"
	"github.com/dmitrijs2005/conformsync/internal/client/models"
	"github.com/dmitrijs2005/conformsync/internal/client/notify"
	"github.com/dmitrijs2005/conformsync/internal/logging"
	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"
)

// Onliner reports the current connectivity.
type Onliner interface {
	IsOnline() bool
}

// Deps are the collaborators shared by all collections of a Manager.
type Deps struct {
	Cache    *cache.Store
	API      api.Client
	Online   Onliner
	Bus      *events.Bus
	Notifier notify.Notifier
	Metrics  *Metrics
	Log      logging.Logger
	Policy   Policy
	Now      func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Notifier == nil {
		d.Notifier = notify.Discard
	}
	if d.Log == nil {
		d.Log = logging.Discard()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	d.Policy = d.Policy.withDefaults()
	return d
}

type digest [blake2b.Size256]byte

// Collection is the synchronized collection of one table.
type Collection[T models.Entity] struct {
	table string
	deps  Deps
	log   logging.Logger

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	flight   singleflight.Group
	debounce *Debouncer
	unsub    func()

	// persistMu orders cache writes so a newer snapshot is never
	// overwritten by an older one.
	persistMu sync.Mutex

	mu    sync.Mutex
	items []T
	// owner is the user items belong to; writes always go to its partition.
	owner   string
	state   State
	version uint64
	synced  digest
	started bool
	closed  bool
}

func NewCollection[T models.Entity](table string, deps Deps) *Collection[T] {
	deps = deps.withDefaults()
	ctx, cancel := context.WithCancel(context.Background())
	c := &Collection[T]{
		table:  table,
		deps:   deps,
		log:    deps.Log.With("table", table),
		ctx:    ctx,
		cancel: cancel,
		items:  []T{},
		state:  State{Table: table, Load: LoadIdle, Phase: PhaseIdle},
	}
	c.debounce = NewDebouncer(deps.Policy.DebounceDelay, func() { c.runAuto(TriggerDebounce) })
	return c
}

func (c *Collection[T]) Table() string { return c.table }

// Items returns a copy of the current records.
func (c *Collection[T]) Items() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.items)
}

// Get returns the record with the given id.
func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexOf(id); i >= 0 {
		return c.items[i], true
	}
	var zero T
	return zero, false
}

func (c *Collection[T]) State() State {
	scheduled := c.debounce.Pending()
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.state
	s.Items = len(c.items)
	s.PushScheduled = scheduled
	return s
}

// Start loads the cache and, when a user is set and the server reachable,
// replaces it with the server copy. Unsynced local changes are pushed
// instead of being overwritten. Start may be called again after a user
// change; background loops are only started once.
func (c *Collection[T]) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	first := !c.started
	c.started = true
	c.mu.Unlock()

	if first {
		control, unsubControl := c.deps.Bus.SubscribeQueue(nil,
			events.ConnectivityRestored,
			events.UserChanged,
			events.DatabaseUserChanged,
			events.ForceSyncRequired,
		)
		external, unsubExternal := c.deps.Bus.SubscribeQueue(func(ev events.Event) bool {
			return ev.External && ev.Table == c.table
		}, events.EntityUpdated)
		c.unsub = func() {
			unsubControl()
			unsubExternal()
		}
		c.wg.Add(2)
		go c.listen(control, external)
		go c.periodic()
	}
	return c.bootstrap(ctx)
}

func (c *Collection[T]) bootstrap(ctx context.Context) error {
	if err := c.loadLocal(ctx); err != nil {
		if errors.Is(err, ErrNoUser) {
			return nil
		}
		return err
	}

	st := c.State()
	if st.Pending {
		c.log.Info(ctx, "unsynced local changes found, scheduling push")
		c.debounce.Trigger()
		return nil
	}
	if !c.deps.Online.IsOnline() {
		return nil
	}
	err := c.ReloadFromServer(ctx)
	switch {
	case err == nil:
	case errors.Is(err, ErrLocalChanges):
		c.log.Info(ctx, "local changes made during initial load, keeping them")
	default:
		c.log.Warn(ctx, "initial load failed, using cached data", "error", err)
		c.recordFailure(ctx, err)
	}
	return nil
}

// loadLocal replaces the records with the cached collection of the current
// user.
func (c *Collection[T]) loadLocal(ctx context.Context) error {
	userID := c.deps.Cache.UserID()
	items, err := cache.LoadFor[T](ctx, c.deps.Cache, userID, c.table)
	if err != nil {
		c.mu.Lock()
		c.items = []T{}
		c.owner = ""
		c.state = State{Table: c.table, Load: LoadIdle, Phase: PhaseIdle}
		c.version++
		c.mu.Unlock()
		return err
	}
	meta, err := c.deps.Cache.SyncMeta(ctx, c.table)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = items
	c.owner = userID
	c.version++
	c.state.LastSynced = meta.LastSynced
	c.state.SyncAttempts = meta.Attempts
	c.state.SyncFailed = meta.Failed()
	c.state.Pending = meta.Pending
	return nil
}

// ensureOwner reloads the cache when the current user is not the one the
// records belong to.
func (c *Collection[T]) ensureOwner(ctx context.Context) error {
	userID := c.deps.Cache.UserID()
	if userID == "" {
		return ErrNoUser
	}
	c.mu.Lock()
	owner := c.owner
	c.mu.Unlock()
	if owner == userID {
		return nil
	}
	return c.loadLocal(ctx)
}

// ReloadFromServer replaces the collection with the server copy. Records
// that fail validation are dropped. On error the current state is kept.
// Unsynced local changes, including those made while the request was in
// flight, are never overwritten: ErrLocalChanges is returned instead.
func (c *Collection[T]) ReloadFromServer(ctx context.Context) error {
	if err := c.ensureOwner(ctx); err != nil {
		return err
	}
	if !c.deps.Online.IsOnline() {
		return api.ErrOffline
	}

	c.mu.Lock()
	userID, version, prevLoad := c.owner, c.version, c.state.Load
	pending := c.state.Pending
	if !pending {
		c.state.Load = LoadLoading
	}
	c.mu.Unlock()
	if pending {
		return ErrLocalChanges
	}

	raws, err := c.deps.API.LoadTable(ctx, c.table, userID)
	if err != nil {
		c.setLoad(LoadError, err)
		return err
	}

	items := make([]T, 0, len(raws))
	for _, raw := range raws {
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			c.log.Warn(ctx, "skipping undecodable record", "error", err)
			continue
		}
		if err := item.Validate(); err != nil {
			c.log.Warn(ctx, "skipping invalid record", "error", err)
			continue
		}
		items = append(items, item)
	}

	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.Lock()
	if c.version != version || c.state.Pending || c.owner != userID {
		if c.state.Load == LoadLoading {
			c.state.Load = prevLoad
		}
		c.mu.Unlock()
		c.log.Info(ctx, "records changed during load, server copy discarded")
		return ErrLocalChanges
	}
	c.items = items
	c.version++
	c.synced = digestOf(items)
	c.state.Load = LoadSuccess
	c.state.Pending = false
	c.state.LastError = ""
	c.mu.Unlock()

	if err := cache.SaveFor(ctx, c.deps.Cache, userID, c.table, items); err != nil {
		return err
	}
	if err := c.deps.Cache.SetPendingFor(ctx, userID, c.table, false); err != nil {
		return err
	}
	c.log.Debug(ctx, "loaded from server", "items", len(items))
	return nil
}

func (c *Collection[T]) setLoad(ls LoadState, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state.Load = ls
	if err != nil {
		c.state.LastError = err.Error()
	}
}

// Add appends item, assigning an id when missing and stamping its dates.
func (c *Collection[T]) Add(ctx context.Context, item T) (T, error) {
	if s, ok := any(&item).(models.Stamper); ok {
		if item.EntityID() == "" {
			s.SetEntityID(uuid.NewString())
		}
		s.Stamp(c.deps.Now())
	}
	if err := item.Validate(); err != nil {
		return item, err
	}
	if err := c.ensureOwner(ctx); err != nil {
		return item, err
	}

	c.mu.Lock()
	if c.indexOf(item.EntityID()) >= 0 {
		c.mu.Unlock()
		return item, ErrDuplicateID
	}
	c.items = append(c.items, item)
	c.markDirty()
	c.mu.Unlock()

	return item, c.commit(ctx)
}

// Update replaces the record having item's id.
func (c *Collection[T]) Update(ctx context.Context, item T) (T, error) {
	if s, ok := any(&item).(models.Stamper); ok {
		s.Stamp(c.deps.Now())
	}
	if err := item.Validate(); err != nil {
		return item, err
	}
	if err := c.ensureOwner(ctx); err != nil {
		return item, err
	}

	c.mu.Lock()
	i := c.indexOf(item.EntityID())
	if i < 0 {
		c.mu.Unlock()
		return item, ErrNotFound
	}
	c.items[i] = item
	c.markDirty()
	c.mu.Unlock()

	return item, c.commit(ctx)
}

// Delete removes the records with the given ids. It fails with ErrNotFound
// when none of them exists.
func (c *Collection[T]) Delete(ctx context.Context, ids ...string) error {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	n, err := c.DeleteWhere(ctx, func(item T) bool {
		_, ok := set[item.EntityID()]
		return ok
	})
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteWhere removes every record matching pred and returns how many were
// removed. Nothing is persisted when no record matches.
func (c *Collection[T]) DeleteWhere(ctx context.Context, pred func(T) bool) (int, error) {
	if err := c.ensureOwner(ctx); err != nil {
		return 0, err
	}
	c.mu.Lock()
	before := len(c.items)
	c.items = slices.DeleteFunc(c.items, pred)
	n := before - len(c.items)
	if n > 0 {
		c.markDirty()
	}
	c.mu.Unlock()

	if n == 0 {
		return 0, nil
	}
	return n, c.commit(ctx)
}

// Reorder moves the records listed in ids to the front, in that order.
// Unknown ids are ignored; unlisted records keep their relative order.
func (c *Collection[T]) Reorder(ctx context.Context, ids []string) error {
	if err := c.ensureOwner(ctx); err != nil {
		return err
	}
	c.mu.Lock()
	pos := make(map[string]int, len(ids))
	for i, id := range ids {
		if _, dup := pos[id]; !dup {
			pos[id] = i
		}
	}
	slices.SortStableFunc(c.items, func(a, b T) int {
		pa, okA := pos[a.EntityID()]
		pb, okB := pos[b.EntityID()]
		switch {
		case okA && okB:
			return pa - pb
		case okA:
			return -1
		case okB:
			return 1
		}
		return 0
	})
	c.markDirty()
	c.mu.Unlock()

	return c.commit(ctx)
}

// Replace swaps the whole collection.
func (c *Collection[T]) Replace(ctx context.Context, items []T) error {
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		if err := item.Validate(); err != nil {
			return err
		}
		if _, dup := seen[item.EntityID()]; dup {
			return ErrDuplicateID
		}
		seen[item.EntityID()] = struct{}{}
	}
	if err := c.ensureOwner(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.items = slices.Clone(items)
	c.markDirty()
	c.mu.Unlock()

	return c.commit(ctx)
}

// markDirty records a local change. It must be called with mu held, in
// the same critical section as the change, so that an in-flight reload
// sees it.
func (c *Collection[T]) markDirty() {
	c.version++
	c.state.Pending = true
}

// commit persists the current records and schedules a debounced push.
func (c *Collection[T]) commit(ctx context.Context) error {
	c.persistMu.Lock()
	defer c.persistMu.Unlock()

	c.mu.Lock()
	c.state.Pending = true
	items := slices.Clone(c.items)
	owner := c.owner
	c.mu.Unlock()

	if err := cache.SaveFor(ctx, c.deps.Cache, owner, c.table, items); err != nil {
		return err
	}
	if err := c.deps.Cache.SetPendingFor(ctx, owner, c.table, true); err != nil {
		c.log.Warn(ctx, "failed to persist pending flag", "error", err)
	}
	c.debounce.Trigger()
	return nil
}

// SyncNow pushes immediately, ignoring the debounce and the failure circuit.
func (c *Collection[T]) SyncNow(ctx context.Context) (api.Result, error) {
	return c.Sync(ctx, TriggerManual)
}

// Sync pushes the collection. Concurrent callers never cause a second
// request: automatic triggers get ErrSyncInProgress while one is running,
// manual ones wait for and share its result.
func (c *Collection[T]) Sync(ctx context.Context, trig Trigger) (api.Result, error) {
	if c.ctx.Err() != nil {
		return api.Result{}, ErrClosed
	}
	if err := c.ensureOwner(ctx); err != nil {
		return api.Result{}, err
	}
	if !c.deps.Online.IsOnline() {
		if trig == TriggerManual {
			c.deps.Notifier.Notify(ctx, notify.Notice{
				Level:   notify.LevelWarning,
				Title:   "Offline",
				Message: "changes are kept locally and will be sent when the connection is back",
				Table:   c.table,
			})
		}
		return api.Result{}, api.ErrOffline
	}
	if err := c.admit(trig); err != nil {
		c.deps.Metrics.skip(c.table, err)
		return api.Result{}, err
	}
	if trig == TriggerManual {
		c.debounce.Cancel()
	}

	ch := c.flight.DoChan(c.table, func() (any, error) {
		return c.push(trig)
	})
	select {
	case r := <-ch:
		res, _ := r.Val.(api.Result)
		if trig == TriggerManual {
			c.notifyManual(ctx, res, r.Err)
		}
		return res, r.Err
	case <-ctx.Done():
		return api.Result{}, ctx.Err()
	}
}

func (c *Collection[T]) admit(trig Trigger) error {
	if !trig.Automatic() {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.IsSyncing {
		return ErrSyncInProgress
	}
	if c.state.CircuitOpen(c.deps.Policy.MaxAttempts) {
		return ErrCircuitOpen
	}
	if trig == TriggerPeriodic {
		if !c.state.LastAttempt.IsZero() && c.deps.Now().Sub(c.state.LastAttempt) < c.deps.Policy.MinSyncInterval {
			return ErrThrottled
		}
		if !c.state.Pending && digestOf(c.items) == c.synced {
			return ErrUnchanged
		}
	}
	return nil
}

func (c *Collection[T]) push(trig Trigger) (api.Result, error) {
	c.mu.Lock()
	items := slices.Clone(c.items)
	userID := c.owner
	version := c.version
	c.state.IsSyncing = true
	c.state.Phase = PhaseSyncing
	c.state.LastAttempt = c.deps.Now()
	c.mu.Unlock()

	log := c.log.With("trigger", trig)
	c.deps.Bus.Publish(events.Event{Topic: events.SyncStart, Table: c.table, UserID: userID, Manual: trig == TriggerManual})
	c.deps.Metrics.begin(c.table)

	reqCtx := logging.ContextWith(c.ctx, "table", c.table, "trigger", string(trig))
	ctx, cancel := context.WithTimeout(reqCtx, c.deps.Policy.RequestTimeout)
	start := time.Now()
	res, err := c.deps.API.SyncTable(ctx, c.table, userID, items)
	cancel()
	took := time.Since(start)
	c.deps.Metrics.end(c.table, trig, err, took)

	// Bookkeeping outlives Close so an interrupted push still leaves a
	// consistent cache.
	bg := context.WithoutCancel(c.ctx)

	if err == nil {
		c.persistMu.Lock()
		c.mu.Lock()
		if c.owner != userID {
			// The user changed while the request was in flight. The pushed
			// user's pending flag stays; a later push is idempotent.
			c.state.IsSyncing = false
			c.state.Phase = PhaseIdle
			c.mu.Unlock()
			c.persistMu.Unlock()
			log.Info(bg, "sync completed for previous user", "user", userID, "items", len(items))
			c.deps.Bus.Publish(events.Event{Topic: events.SyncCompleted, Table: c.table, UserID: userID, Manual: trig == TriggerManual})
			return res, nil
		}
		c.state.IsSyncing = false
		c.state.Phase = PhaseSynced
		c.state.LastSynced = c.deps.Now()
		c.state.SyncAttempts = 0
		c.state.SyncFailed = false
		c.state.LastError = ""
		c.synced = digestOf(items)
		stale := c.version != version
		c.state.Pending = stale
		lastSynced := c.state.LastSynced
		c.mu.Unlock()

		if err := c.deps.Cache.MarkSynced(bg, c.table, lastSynced); err != nil {
			log.Warn(bg, "failed to persist sync time", "error", err)
		}
		if !stale {
			if err := c.deps.Cache.SetPendingFor(bg, userID, c.table, false); err != nil {
				log.Warn(bg, "failed to clear pending flag", "error", err)
			}
		}
		c.persistMu.Unlock()

		log.Info(bg, "sync completed", "items", len(items), "took", took)
		c.deps.Bus.Publish(events.Event{Topic: events.SyncCompleted, Table: c.table, UserID: userID, Manual: trig == TriggerManual})
		if stale {
			c.debounce.Trigger()
		}
		return res, nil
	}

	attempts := c.recordFailure(bg, err)
	c.mu.Lock()
	c.state.IsSyncing = false
	c.mu.Unlock()

	log.Warn(bg, "sync failed", "error", err, "attempts", attempts, "config_error", api.IsConfigError(err))
	if trig.Automatic() && attempts >= c.deps.Policy.MaxAttempts {
		log.Warn(bg, "automatic sync suspended until reset", "attempts", attempts)
	}
	c.deps.Bus.Publish(events.Event{Topic: events.SyncFailed, Table: c.table, UserID: userID, Manual: trig == TriggerManual, Err: err})
	return res, err
}

// recordFailure updates the failure counter. Offline and cancellation do not
// count: the push is retried when connectivity comes back.
func (c *Collection[T]) recordFailure(ctx context.Context, err error) int {
	c.mu.Lock()
	c.state.LastError = err.Error()
	if errors.Is(err, api.ErrOffline) || errors.Is(err, context.Canceled) {
		c.state.Phase = PhaseIdle
		attempts := c.state.SyncAttempts
		c.mu.Unlock()
		return attempts
	}
	c.state.Phase = PhaseFailed
	c.state.SyncFailed = true
	c.state.SyncAttempts++
	attempts := c.state.SyncAttempts
	c.mu.Unlock()

	if perr := c.deps.Cache.MarkFailed(ctx, c.table, attempts); perr != nil {
		c.log.Warn(ctx, "failed to persist failure counter", "error", perr)
	}
	return attempts
}

// ResetSyncFailed closes the failure circuit and retries pending changes.
func (c *Collection[T]) ResetSyncFailed(ctx context.Context) error {
	c.mu.Lock()
	c.state.SyncFailed = false
	c.state.SyncAttempts = 0
	if c.state.Phase == PhaseFailed {
		c.state.Phase = PhaseIdle
	}
	pending := c.state.Pending
	c.mu.Unlock()

	if err := c.deps.Cache.MarkFailed(ctx, c.table, 0); err != nil {
		return err
	}
	if pending {
		c.debounce.Trigger()
	}
	return nil
}

func (c *Collection[T]) notifyManual(ctx context.Context, res api.Result, err error) {
	n := notify.Notice{Table: c.table}
	switch {
	case err == nil:
		n.Level, n.Title, n.Message = notify.LevelSuccess, "Sync completed", res.Message
	case errors.Is(err, api.ErrOffline):
		n.Level, n.Title, n.Message = notify.LevelWarning, "Server unreachable", "changes are kept locally"
	case api.IsConfigError(err):
		n.Level, n.Title, n.Message = notify.LevelError, "Server configuration error", api.Message(err)
	case errors.Is(err, api.ErrTimeout):
		n.Level, n.Title, n.Message = notify.LevelError, "Sync timed out", err.Error()
	case errors.Is(err, api.ErrRejected):
		n.Level, n.Title, n.Message = notify.LevelError, "Sync rejected", api.Message(err)
	default:
		n.Level, n.Title, n.Message = notify.LevelError, "Sync failed", err.Error()
	}
	c.deps.Notifier.Notify(ctx, n)
}

func (c *Collection[T]) runAuto(trig Trigger) {
	_, err := c.Sync(c.ctx, trig)
	switch {
	case err == nil, errors.Is(err, ErrClosed), errors.Is(err, ErrNoUser):
	case IsSkip(err), errors.Is(err, api.ErrOffline):
		c.log.Debug(c.ctx, "automatic sync skipped", "trigger", trig, "reason", Outcome(err))
	}
}

func (c *Collection[T]) periodic() {
	defer c.wg.Done()
	ticker := time.NewTicker(c.deps.Policy.SyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			if c.deps.Online.IsOnline() && c.deps.Cache.UserID() != "" {
				c.runAuto(TriggerPeriodic)
			}
		}
	}
}

func (c *Collection[T]) listen(control, external <-chan events.Event) {
	defer c.wg.Done()
	for {
		select {
		case <-c.ctx.Done():
			return
		case ev, ok := <-control:
			if !ok {
				return
			}
			c.handle(ev)
		case ev, ok := <-external:
			if !ok {
				return
			}
			c.handle(ev)
		}
	}
}

func (c *Collection[T]) handle(ev events.Event) {
	ctx := c.ctx
	switch ev.Topic {
	case events.ConnectivityRestored:
		// The push runs aside so a slow server does not hold back a user
		// change queued behind this event.
		if c.State().Pending {
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				c.runAuto(TriggerReconnect)
			}()
		}
	case events.EntityUpdated:
		if err := c.loadLocal(ctx); err != nil && !errors.Is(err, ErrNoUser) {
			c.log.Warn(ctx, "reload after external change failed", "error", err)
		}
	case events.UserChanged, events.DatabaseUserChanged:
		c.debounce.Cancel()
		if err := c.bootstrap(ctx); err != nil {
			c.log.Warn(ctx, "reload after user change failed", "error", err)
		}
	case events.ForceSyncRequired:
		if ev.Table != "" && ev.Table != c.table {
			return
		}
		if c.State().Pending {
			c.log.Info(ctx, "server asked for reload, keeping unsynced local changes")
			return
		}
		err := c.ReloadFromServer(ctx)
		switch {
		case err == nil:
		case errors.Is(err, ErrLocalChanges):
			c.log.Info(ctx, "server asked for reload, keeping unsynced local changes")
		default:
			c.log.Warn(ctx, "reload requested by server failed", "error", err)
		}
	}
}

// Close stops timers and background loops. Pending changes stay in the cache.
func (c *Collection[T]) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.debounce.Stop()
	if c.unsub != nil {
		c.unsub()
	}
	c.wg.Wait()
}

func (c *Collection[T]) indexOf(id string) int {
	return slices.IndexFunc(c.items, func(item T) bool { return item.EntityID() == id })
}

func digestOf[T any](items []T) digest {
	b, err := json.Marshal(items)
	if err != nil {
		return digest{}
	}
	return blake2b.Sum256(b)
}
