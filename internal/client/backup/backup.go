// Package backup takes snappy-compressed snapshots of the local cache and
// stores them in a directory or an S3-compatible bucket. Snapshots are
// taken before destructive repairs and can be restored from the CLI.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dmitrijs2005/conformsync/internal/logging"
	"github.com/golang/snappy"
)

const (
	formatVersion = 1
	fileSuffix    = ".json.sz"
)

var ErrNoSnapshot = errors.New("no snapshot found")

// BlobStore keeps named blobs.
type BlobStore interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context) ([]string, error)
}

// Source is the cache being backed up.
type Source interface {
	UserID() string
	Snapshot(ctx context.Context) (map[string][]byte, error)
	Restore(ctx context.Context, pairs map[string][]byte) error
}

type snapshot struct {
	Version   int               `json:"version"`
	UserID    string            `json:"userId,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
	Entries   map[string][]byte `json:"entries"`
}

type Snapshotter struct {
	src   Source
	blobs BlobStore
	log   logging.Logger
	now   func() time.Time
}

func NewSnapshotter(src Source, blobs BlobStore, log logging.Logger) *Snapshotter {
	return &Snapshotter{src: src, blobs: blobs, log: log, now: time.Now}
}

// Snapshot stores the whole cache and returns the snapshot name.
func (s *Snapshotter) Snapshot(ctx context.Context) (string, error) {
	entries, err := s.src.Snapshot(ctx)
	if err != nil {
		return "", fmt.Errorf("read cache: %w", err)
	}

	now := s.now().UTC()
	snap := snapshot{Version: formatVersion, UserID: s.src.UserID(), CreatedAt: now, Entries: entries}
	raw, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("encode snapshot: %w", err)
	}

	name := fmt.Sprintf("snapshot-%s%s", now.Format("20060102T150405.000000000Z"), fileSuffix)
	if err := s.blobs.Put(ctx, name, snappy.Encode(nil, raw)); err != nil {
		return "", fmt.Errorf("store snapshot %s: %w", name, err)
	}
	s.log.Info(ctx, "cache snapshot stored", "name", name, "keys", len(entries), "bytes", len(raw))
	return name, nil
}

// List returns snapshot names, oldest first.
func (s *Snapshotter) List(ctx context.Context) ([]string, error) {
	names, err := s.blobs.List(ctx)
	if err != nil {
		return nil, err
	}
	names = slices.DeleteFunc(names, func(n string) bool { return !strings.HasSuffix(n, fileSuffix) })
	slices.Sort(names)
	return names, nil
}

// Restore writes the named snapshot back into the cache. An empty name
// selects the latest snapshot.
func (s *Snapshotter) Restore(ctx context.Context, name string) (string, error) {
	if name == "" {
		names, err := s.List(ctx)
		if err != nil {
			return "", err
		}
		if len(names) == 0 {
			return "", ErrNoSnapshot
		}
		name = names[len(names)-1]
	}

	compressed, err := s.blobs.Get(ctx, name)
	if err != nil {
		return "", fmt.Errorf("load snapshot %s: %w", name, err)
	}
	raw, err := snappy.Decode(nil, compressed)
	if err != nil {
		return "", fmt.Errorf("decompress snapshot %s: %w", name, err)
	}
	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return "", fmt.Errorf("decode snapshot %s: %w", name, err)
	}
	if snap.Version != formatVersion {
		return "", fmt.Errorf("snapshot %s: unsupported version %d", name, snap.Version)
	}

	if err := s.src.Restore(ctx, snap.Entries); err != nil {
		return "", err
	}
	s.log.Info(ctx, "cache snapshot restored", "name", name, "keys", len(snap.Entries))
	return name, nil
}
