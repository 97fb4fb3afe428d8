package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/blake2b"
)

const fileExt = ".json"

// FileStore keeps one file per key under a directory. Writes go through a
// temp file and rename so readers never observe a partial value.
type FileStore struct {
	dir string

	mu      sync.Mutex
	written map[string]lastWrite
}

type lastWrite struct {
	sum     [blake2b.Size256]byte
	deleted bool
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", dir, err)
	}
	return &FileStore{dir: dir, written: make(map[string]lastWrite)}, nil
}

// Dir returns the watched directory.
func (f *FileStore) Dir() string { return f.dir }

func (f *FileStore) path(key string) (string, error) {
	if key == "" || strings.ContainsAny(key, `/\`) || strings.HasPrefix(key, ".") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(f.dir, key+fileExt), nil
}

func (f *FileStore) Get(_ context.Context, key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return b, nil
}

func (f *FileStore) Set(_ context.Context, key string, value []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(f.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", key, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", key, err)
	}

	f.mu.Lock()
	f.written[key] = lastWrite{sum: blake2b.Sum256(value)}
	f.mu.Unlock()

	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("rename %s: %w", key, err)
	}
	return nil
}

func (f *FileStore) Delete(_ context.Context, key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.written[key] = lastWrite{deleted: true}
	f.mu.Unlock()

	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func (f *FileStore) List(ctx context.Context) (map[string][]byte, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", f.dir, err)
	}
	out := make(map[string][]byte)
	for _, e := range entries {
		key, ok := keyFromName(e.Name())
		if e.IsDir() || !ok {
			continue
		}
		v, err := f.Get(ctx, key)
		if err != nil {
			return nil, err
		}
		if v != nil {
			out[key] = v
		}
	}
	return out, nil
}

func (f *FileStore) Clear(ctx context.Context) error {
	all, err := f.List(ctx)
	if err != nil {
		return err
	}
	for key := range all {
		if err := f.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (f *FileStore) Close() error { return nil }

// ownWrite reports whether value is what this process last wrote under key.
// A nil value stands for a missing file.
func (f *FileStore) ownWrite(key string, value []byte, deleted bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	last, ok := f.written[key]
	if !ok {
		return false
	}
	if deleted {
		return last.deleted
	}
	return !last.deleted && last.sum == blake2b.Sum256(value)
}

func keyFromName(name string) (string, bool) {
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
		return "", false
	}
	return strings.TrimSuffix(name, fileExt), true
}
