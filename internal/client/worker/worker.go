// Package worker runs background synchronization independently of the
// collections' own timers: registered "sync:<table>" tags are fired when
// connectivity returns and on a slow interval, each tag throttled on its own.
// It also answers the small message protocol used by front ends
// (manual_sync, get_auth_info).
package worker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dmitrijs2005/conformsync/internal/client/events"
	"github.com/dmitrijs2005/conformsync/internal/client/syncer"
	"github.com/dmitrijs2005/conformsync/internal/logging"
)

const (
	TagPrefix = "sync:"

	MsgManualSync  = "manual_sync"
	MsgGetAuthInfo = "get_auth_info"

	DefaultMinInterval = 10 * time.Second
)

var (
	ErrInvalidTag     = errors.New("invalid sync tag")
	ErrUnknownMessage = errors.New("unknown message type")
	ErrThrottled      = errors.New("tag attempted too recently")
)

// Tag returns the sync tag of a table.
func Tag(table string) string { return TagPrefix + table }

// Collections is the part of syncer.Manager the worker needs.
type Collections interface {
	Collection(table string) (syncer.Syncable, error)
	Collections() []syncer.Syncable
}

// Identity exposes who the client is acting for.
type Identity interface {
	UserID() string
	DeviceID(ctx context.Context) (string, error)
}

// Message is posted by a front end.
type Message struct {
	Type  string `json:"type"`
	Table string `json:"table,omitempty"`
}

// Reply answers a Message.
type Reply struct {
	Type     string            `json:"type"`
	UserID   string            `json:"userId,omitempty"`
	DeviceID string            `json:"deviceId,omitempty"`
	Results  map[string]string `json:"results,omitempty"`
}

type Options struct {
	MinInterval time.Duration
	// Interval re-fires every registered tag. Zero disables it.
	Interval time.Duration
	Now      func() time.Time
}

type Background struct {
	colls Collections
	id    Identity
	bus   *events.Bus
	log   logging.Logger
	opts  Options

	mu          sync.Mutex
	registered  map[string]struct{}
	lastAttempt map[string]time.Time

	fire chan string
}

func New(colls Collections, id Identity, bus *events.Bus, log logging.Logger, opts Options) *Background {
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Background{
		colls:       colls,
		id:          id,
		bus:         bus,
		log:         log.With("component", "worker"),
		opts:        opts,
		registered:  make(map[string]struct{}),
		lastAttempt: make(map[string]time.Time),
		fire:        make(chan string, 32),
	}
}

// Register adds a tag and schedules one run of it.
func (b *Background) Register(tag string) error {
	table, ok := strings.CutPrefix(tag, TagPrefix)
	if !ok || table == "" {
		return fmt.Errorf("%w: %q", ErrInvalidTag, tag)
	}
	if _, err := b.colls.Collection(table); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidTag, err)
	}

	b.mu.Lock()
	b.registered[tag] = struct{}{}
	b.mu.Unlock()

	select {
	case b.fire <- tag:
	default:
		b.log.Debug(context.Background(), "fire queue full, dropping", "tag", tag)
	}
	return nil
}

// RegisterAll registers the tag of every table.
func (b *Background) RegisterAll() {
	for _, s := range b.colls.Collections() {
		_ = b.Register(Tag(s.Table()))
	}
}

func (b *Background) Registered() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.registered))
	for t := range b.registered {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

// Run processes fired tags until ctx is done.
func (b *Background) Run(ctx context.Context) {
	sub, unsub := b.bus.Subscribe(events.ConnectivityRestored)
	defer unsub()

	var tick <-chan time.Time
	if b.opts.Interval > 0 {
		t := time.NewTicker(b.opts.Interval)
		defer t.Stop()
		tick = t.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case tag := <-b.fire:
			b.logResult(ctx, tag, b.HandleTag(ctx, tag))
		case _, ok := <-sub:
			if !ok {
				return
			}
			b.fireAll(ctx)
		case <-tick:
			b.fireAll(ctx)
		}
	}
}

func (b *Background) fireAll(ctx context.Context) {
	for _, tag := range b.Registered() {
		b.logResult(ctx, tag, b.HandleTag(ctx, tag))
	}
}

func (b *Background) logResult(ctx context.Context, tag string, err error) {
	switch {
	case err == nil:
	case errors.Is(err, ErrThrottled), syncer.IsSkip(err):
		b.log.Debug(ctx, "background sync skipped", "tag", tag, "reason", err)
	default:
		b.log.Warn(ctx, "background sync failed", "tag", tag, "error", err)
	}
}

// HandleTag runs one background sync of tag unless the tag ran less than
// MinInterval ago or its table has nothing to push.
func (b *Background) HandleTag(ctx context.Context, tag string) error {
	table, ok := strings.CutPrefix(tag, TagPrefix)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidTag, tag)
	}
	coll, err := b.colls.Collection(table)
	if err != nil {
		return err
	}

	now := b.opts.Now()
	b.mu.Lock()
	if last, ok := b.lastAttempt[tag]; ok && now.Sub(last) < b.opts.MinInterval {
		b.mu.Unlock()
		return ErrThrottled
	}
	b.lastAttempt[tag] = now
	b.mu.Unlock()

	if !coll.State().Pending {
		return nil
	}
	_, err = coll.Sync(ctx, syncer.TriggerBackground)
	return err
}

// Post handles a front end message.
func (b *Background) Post(ctx context.Context, msg Message) (Reply, error) {
	switch msg.Type {
	case MsgGetAuthInfo:
		dev, err := b.id.DeviceID(ctx)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Type: msg.Type, UserID: b.id.UserID(), DeviceID: dev}, nil

	case MsgManualSync:
		var targets []syncer.Syncable
		if msg.Table == "" {
			targets = b.colls.Collections()
		} else {
			s, err := b.colls.Collection(msg.Table)
			if err != nil {
				return Reply{}, err
			}
			targets = []syncer.Syncable{s}
		}

		reply := Reply{Type: msg.Type, Results: make(map[string]string, len(targets))}
		for _, s := range targets {
			_, err := s.SyncNow(ctx)
			reply.Results[s.Table()] = syncer.Outcome(err)
		}
		return reply, nil
	}
	return Reply{}, fmt.Errorf("%w: %q", ErrUnknownMessage, msg.Type)
}
