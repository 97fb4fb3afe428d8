// Package cache persists entity collections per user on top of a
// storage.Storage and keeps the per-table sync bookkeeping next to them.
//
// Collections live under "<table>_<userId>" as a JSON array. A corrupted
// value never surfaces as an error: it is logged and read as empty.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/conformsync/internal/client/events"
	"github.com/dmitrijs2005/conformsync/internal/client/storage"
	"github.com/dmitrijs2005/conformsync/internal/logging"
)

// ErrNoUser is returned when a collection is accessed before a user is set.
var ErrNoUser = errors.New("no current user")

// Store is the local cache of the current user.
type Store struct {
	kv  storage.Storage
	bus *events.Bus
	log logging.Logger

	mu     sync.RWMutex
	userID string
}

func New(kv storage.Storage, bus *events.Bus, log logging.Logger) *Store {
	return &Store{kv: kv, bus: bus, log: log}
}

// Key returns the storage key of a table's collection for a user.
func Key(table, userID string) string {
	return table + "_" + userID
}

// UserID returns the current user, empty when nobody is logged in.
func (s *Store) UserID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.userID
}

// SetUser switches the current user. Sync bookkeeping is not partitioned by
// user, so it is cleared whenever it belonged to someone else. Collections of
// the previous user stay in storage.
func (s *Store) SetUser(ctx context.Context, userID string) error {
	return s.switchUser(ctx, userID, events.UserChanged)
}

// SwitchDatabaseUser is SetUser for an administrator acting on behalf of
// another account; subscribers receive DatabaseUserChanged instead.
func (s *Store) SwitchDatabaseUser(ctx context.Context, userID string) error {
	return s.switchUser(ctx, userID, events.DatabaseUserChanged)
}

func (s *Store) switchUser(ctx context.Context, userID string, topic events.Topic) error {
	s.mu.Lock()
	prev := s.userID
	s.userID = userID
	s.mu.Unlock()

	if err := s.claimSyncMeta(ctx, userID); err != nil {
		return err
	}
	if prev == userID {
		return nil
	}
	s.log.Info(ctx, "current user changed", "user", userID)
	s.bus.Publish(events.Event{Topic: topic, UserID: userID})
	return nil
}

// Load reads the cached collection of table for the current user. Missing
// and unreadable values both yield an empty slice.
func Load[T any](ctx context.Context, s *Store, table string) ([]T, error) {
	return LoadFor[T](ctx, s, s.UserID(), table)
}

// LoadFor is Load for the collection of userID.
func LoadFor[T any](ctx context.Context, s *Store, userID, table string) ([]T, error) {
	if userID == "" {
		return nil, ErrNoUser
	}
	key := Key(table, userID)

	raw, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", key, err)
	}
	if len(raw) == 0 {
		return []T{}, nil
	}

	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		s.log.Warn(ctx, "corrupted cache entry, ignoring", "key", key, "error", err)
		return []T{}, nil
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

// Save overwrites the cached collection and announces the update.
func Save[T any](ctx context.Context, s *Store, table string, items []T) error {
	return SaveFor(ctx, s, s.UserID(), table, items)
}

// SaveFor is Save for the collection of userID, whoever is current.
func SaveFor[T any](ctx context.Context, s *Store, userID, table string, items []T) error {
	if userID == "" {
		return ErrNoUser
	}
	if items == nil {
		items = []T{}
	}
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encode %s: %w", table, err)
	}
	if err := s.kv.Set(ctx, Key(table, userID), raw); err != nil {
		return err
	}
	s.bus.Publish(events.Event{Topic: events.EntityUpdated, Table: table, UserID: userID})
	return nil
}

// ClearTable removes the collection of table for the current user together
// with its sync bookkeeping. The update is published as External so that a
// running collection drops its in-memory items.
func (s *Store) ClearTable(ctx context.Context, table string) error {
	userID := s.UserID()
	if userID == "" {
		return ErrNoUser
	}
	for _, key := range []string{Key(table, userID), lastSyncedKey(table), syncFailedKey(table), pendingKey(table, userID)} {
		if err := s.kv.Delete(ctx, key); err != nil {
			return err
		}
	}
	s.bus.Publish(events.Event{Topic: events.EntityUpdated, Table: table, UserID: userID, External: true})
	return nil
}

// Snapshot returns every stored key/value pair.
func (s *Store) Snapshot(ctx context.Context) (map[string][]byte, error) {
	return s.kv.List(ctx)
}

// Restore writes back the pairs of a snapshot. Keys absent from the
// snapshot are left untouched. Restored collections of the current user
// are announced as External updates.
func (s *Store) Restore(ctx context.Context, pairs map[string][]byte) error {
	userID := s.UserID()
	for k, v := range pairs {
		if err := s.kv.Set(ctx, k, v); err != nil {
			return err
		}
		if userID == "" {
			continue
		}
		if table, ok := collectionTable(k, userID); ok {
			s.bus.Publish(events.Event{Topic: events.EntityUpdated, Table: table, UserID: userID, External: true})
		}
	}
	return nil
}

// ForwardExternal publishes an External EntityUpdated for every watched
// change to a collection of the current user. It returns when changes is
// closed or ctx is done.
func (s *Store) ForwardExternal(ctx context.Context, changes <-chan storage.Change) {
	for {
		select {
		case <-ctx.Done():
			return
		case ch, ok := <-changes:
			if !ok {
				return
			}
			userID := s.UserID()
			table, ok := collectionTable(ch.Key, userID)
			if userID == "" || !ok {
				continue
			}
			s.log.Debug(ctx, "external cache change", "table", table, "deleted", ch.Deleted)
			s.bus.Publish(events.Event{Topic: events.EntityUpdated, Table: table, UserID: userID, External: true})
		}
	}
}

// collectionTable returns the table whose collection of userID is stored
// under key.
func collectionTable(key, userID string) (string, bool) {
	if isMetaKey(key) {
		return "", false
	}
	table, ok := strings.CutSuffix(key, "_"+userID)
	return table, ok && table != ""
}
