package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/dmitrijs2005/conformsync/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// Change describes a key modified by another process.
type Change struct {
	Key     string
	Deleted bool
}

// Watcher reports writes to a FileStore directory that did not originate
// from the FileStore itself. Bursts on the same key are coalesced.
type Watcher struct {
	store    *FileStore
	log      logging.Logger
	debounce time.Duration

	fsw     *fsnotify.Watcher
	changes chan Change

	mu      sync.Mutex
	pending map[string]*time.Timer

	done     chan struct{}
	wg       sync.WaitGroup
	flushing sync.WaitGroup
	once     sync.Once
}

// NewWatcher starts watching store's directory.
func NewWatcher(store *FileStore, log logging.Logger, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(store.Dir()); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", store.Dir(), err)
	}

	w := &Watcher{
		store:    store,
		log:      log,
		debounce: debounce,
		fsw:      fsw,
		changes:  make(chan Change, 64),
		pending:  make(map[string]*time.Timer),
		done:     make(chan struct{}),
	}
	w.wg.Add(1)
	go w.loop()
	return w, nil
}

// Changes is closed by Close.
func (w *Watcher) Changes() <-chan Change { return w.changes }

func (w *Watcher) Close() error {
	var err error
	w.once.Do(func() {
		close(w.done)
		err = w.fsw.Close()
		w.wg.Wait()

		w.mu.Lock()
		for _, t := range w.pending {
			t.Stop()
		}
		w.pending = nil
		w.mu.Unlock()

		w.flushing.Wait()
		close(w.changes)
	})
	return err
}

func (w *Watcher) loop() {
	defer w.wg.Done()
	ctx := context.Background()

	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			key, ok := keyFromName(filepath.Base(ev.Name))
			if !ok {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) || ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
				w.schedule(key)
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn(ctx, "storage watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule(key string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil {
		return
	}
	if t, ok := w.pending[key]; ok {
		t.Reset(w.debounce)
		return
	}
	w.pending[key] = time.AfterFunc(w.debounce, func() { w.flush(key) })
}

func (w *Watcher) flush(key string) {
	w.mu.Lock()
	if w.pending == nil {
		w.mu.Unlock()
		return
	}
	delete(w.pending, key)
	w.flushing.Add(1)
	w.mu.Unlock()
	defer w.flushing.Done()

	p, err := w.store.path(key)
	if err != nil {
		return
	}
	ch := Change{Key: key}
	value, err := os.ReadFile(p)
	switch {
	case os.IsNotExist(err):
		ch.Deleted = true
	case err != nil:
		w.log.Warn(context.Background(), "storage watcher read failed", "key", key, "error", err)
		return
	}
	if w.store.ownWrite(key, value, ch.Deleted) {
		return
	}

	select {
	case <-w.done:
	case w.changes <- ch:
	}
}
