package cache

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	lastSyncedPrefix = "last_synced_"
	syncFailedPrefix = "sync_failed_"
	pendingPrefix    = "sync_pending_"
	deviceIDKey      = "device_id"
	syncOwnerKey     = "sync_owner"
)

func lastSyncedKey(table string) string { return lastSyncedPrefix + table }
func syncFailedKey(table string) string { return syncFailedPrefix + table }

// pendingKey is partitioned by user: unsynced edits must survive a switch
// to another account and back.
func pendingKey(table, userID string) string { return pendingPrefix + table + "_" + userID }

func isMetaKey(key string) bool {
	return strings.HasPrefix(key, lastSyncedPrefix) || strings.HasPrefix(key, syncFailedPrefix) || strings.HasPrefix(key, pendingPrefix)
}

// SyncMeta is the persisted part of a table's sync state.
type SyncMeta struct {
	LastSynced time.Time
	// Attempts counts consecutive failures; zero means the last sync succeeded.
	Attempts int
	// Pending is set while local changes have not reached the server.
	Pending bool
}

func (m SyncMeta) Failed() bool { return m.Attempts > 0 }

// SyncMeta reads the bookkeeping of table. Unparsable values read as zero.
func (s *Store) SyncMeta(ctx context.Context, table string) (SyncMeta, error) {
	var m SyncMeta

	raw, err := s.kv.Get(ctx, lastSyncedKey(table))
	if err != nil {
		return m, err
	}
	if len(raw) > 0 {
		if t, err := time.Parse(time.RFC3339Nano, string(raw)); err == nil {
			m.LastSynced = t
		}
	}

	raw, err = s.kv.Get(ctx, syncFailedKey(table))
	if err != nil {
		return m, err
	}
	if len(raw) > 0 {
		switch v := strings.TrimSpace(string(raw)); v {
		case "true":
			m.Attempts = 1
		default:
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				m.Attempts = n
			}
		}
	}

	if userID := s.UserID(); userID != "" {
		raw, err = s.kv.Get(ctx, pendingKey(table, userID))
		if err != nil {
			return m, err
		}
		m.Pending = len(raw) > 0
	}
	return m, nil
}

// SetPending records whether table has unsynced local changes of the
// current user.
func (s *Store) SetPending(ctx context.Context, table string, pending bool) error {
	return s.SetPendingFor(ctx, s.UserID(), table, pending)
}

// SetPendingFor is SetPending for the collection of userID.
func (s *Store) SetPendingFor(ctx context.Context, userID, table string, pending bool) error {
	if userID == "" {
		return ErrNoUser
	}
	if !pending {
		return s.kv.Delete(ctx, pendingKey(table, userID))
	}
	return s.kv.Set(ctx, pendingKey(table, userID), []byte("1"))
}

// MarkSynced records a successful sync at t and clears the failure counter.
func (s *Store) MarkSynced(ctx context.Context, table string, t time.Time) error {
	if err := s.kv.Set(ctx, lastSyncedKey(table), []byte(t.UTC().Format(time.RFC3339Nano))); err != nil {
		return err
	}
	return s.kv.Delete(ctx, syncFailedKey(table))
}

// MarkFailed stores the consecutive failure count of table.
func (s *Store) MarkFailed(ctx context.Context, table string, attempts int) error {
	if attempts <= 0 {
		return s.kv.Delete(ctx, syncFailedKey(table))
	}
	return s.kv.Set(ctx, syncFailedKey(table), []byte(strconv.Itoa(attempts)))
}

// claimSyncMeta drops the sync times and failure counters written for
// another user. Pending flags are per user and stay.
func (s *Store) claimSyncMeta(ctx context.Context, userID string) error {
	owner, err := s.kv.Get(ctx, syncOwnerKey)
	if err != nil {
		return err
	}
	if string(owner) == userID {
		return nil
	}
	if err := s.clearSyncMeta(ctx); err != nil {
		return err
	}
	if userID == "" {
		return s.kv.Delete(ctx, syncOwnerKey)
	}
	return s.kv.Set(ctx, syncOwnerKey, []byte(userID))
}

func (s *Store) clearSyncMeta(ctx context.Context) error {
	all, err := s.kv.List(ctx)
	if err != nil {
		return err
	}
	for key := range all {
		if strings.HasPrefix(key, lastSyncedPrefix) || strings.HasPrefix(key, syncFailedPrefix) {
			if err := s.kv.Delete(ctx, key); err != nil {
				return err
			}
		}
	}
	return nil
}

// DeviceID returns the persisted device id, generating one on first use.
func (s *Store) DeviceID(ctx context.Context) (string, error) {
	raw, err := s.kv.Get(ctx, deviceIDKey)
	if err != nil {
		return "", err
	}
	if len(raw) > 0 {
		return string(raw), nil
	}
	return s.RegenerateDeviceID(ctx)
}

// RegenerateDeviceID replaces the device id with a fresh UUID.
func (s *Store) RegenerateDeviceID(ctx context.Context) (string, error) {
	id := uuid.NewString()
	if err := s.kv.Set(ctx, deviceIDKey, []byte(id)); err != nil {
		return "", err
	}
	return id, nil
}
