// Package repair runs diagnostic and repair actions against the server
// and the local cache. Nothing here is triggered automatically; every
// action is started by the user from the CLI or the shell.
package repair

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/conformsync/internal/client/api"
	"github.com/dmitrijs2005/conformsync/internal/client/cache"
	"github.com/dmitrijs2005/conformsync/internal/client/models"
	"github.com/dmitrijs2005/conformsync/internal/client/notify"
	"github.com/dmitrijs2005/conformsync/internal/logging"
)

var ErrUnknownAction = errors.New("unknown repair action")

// Fleet is the set of running collections.
type Fleet interface {
	ResetAll(ctx context.Context) error
	ReloadAll(ctx context.Context) error
}

type Snapshotter interface {
	Snapshot(ctx context.Context) (string, error)
}

type Options struct {
	API      api.Client
	Cache    *cache.Store
	Fleet    Fleet
	Backup   Snapshotter
	Notifier notify.Notifier
	Logger   logging.Logger
	// OnDeviceID is called with a regenerated device id.
	OnDeviceID func(id string)
	// Tables repaired per table by FullRepair; defaults to models.AllTables.
	Tables []string
}

type Tool struct {
	api        api.Client
	cache      *cache.Store
	fleet      Fleet
	backup     Snapshotter
	notifier   notify.Notifier
	log        logging.Logger
	onDeviceID func(string)
	tables     []string
}

func New(opts Options) *Tool {
	t := &Tool{
		api:        opts.API,
		cache:      opts.Cache,
		fleet:      opts.Fleet,
		backup:     opts.Backup,
		notifier:   opts.Notifier,
		log:        opts.Logger,
		onDeviceID: opts.OnDeviceID,
		tables:     opts.Tables,
	}
	if t.notifier == nil {
		t.notifier = notify.Discard
	}
	if t.log == nil {
		t.log = logging.Discard()
	}
	if len(t.tables) == 0 {
		t.tables = models.AllTables
	}
	return t
}

func (t *Tool) remote(ctx context.Context, action, table string) bool {
	userID := t.cache.UserID()
	if userID == "" {
		t.log.Warn(ctx, "repair action without user", "action", action)
		return false
	}
	res, err := t.api.Diagnostic(ctx, action, userID, table)
	if err != nil {
		t.log.Warn(ctx, "repair action failed", "action", action, "table", table, "error", err)
		return false
	}
	t.log.Info(ctx, "repair action done", "action", action, "table", table, "message", res.Message)
	return res.Success
}

func (t *Tool) RepairSync(ctx context.Context) bool {
	return t.remote(ctx, api.ActionRepairSync, "")
}

func (t *Tool) CheckTables(ctx context.Context) bool {
	return t.remote(ctx, api.ActionCheckTables, "")
}

func (t *Tool) ResetQueue(ctx context.Context) bool {
	return t.remote(ctx, api.ActionResetQueue, "")
}

func (t *Tool) RemoveDuplicates(ctx context.Context, table string) bool {
	return t.remote(ctx, api.ActionRemoveDuplicates, table)
}

func (t *Tool) FixID(ctx context.Context, table string) bool {
	return t.remote(ctx, api.ActionFixID, table)
}

// Run executes one remote action by name.
func (t *Tool) Run(ctx context.Context, action, table string) (bool, error) {
	switch action {
	case api.ActionRepairSync:
		return t.RepairSync(ctx), nil
	case api.ActionCheckTables:
		return t.CheckTables(ctx), nil
	case api.ActionResetQueue:
		return t.ResetQueue(ctx), nil
	case api.ActionRemoveDuplicates, api.ActionFixID:
		if !models.IsKnownTable(table) {
			return false, fmt.Errorf("%s: unknown table %q", action, table)
		}
		if action == api.ActionFixID {
			return t.FixID(ctx, table), nil
		}
		return t.RemoveDuplicates(ctx, table), nil
	}
	return false, fmt.Errorf("%w: %q", ErrUnknownAction, action)
}

// ClearLocalData drops the cached collections and their sync bookkeeping.
// With no tables given every table is cleared.
func (t *Tool) ClearLocalData(ctx context.Context, tables ...string) error {
	if len(tables) == 0 {
		tables = models.AllTables
	}
	for _, table := range tables {
		if err := t.cache.ClearTable(ctx, table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	t.log.Info(ctx, "local data cleared", "tables", len(tables))
	return nil
}

func (t *Tool) RegenerateDeviceID(ctx context.Context) (string, error) {
	id, err := t.cache.RegenerateDeviceID(ctx)
	if err != nil {
		return "", err
	}
	if t.onDeviceID != nil {
		t.onDeviceID(id)
	}
	t.log.Info(ctx, "device id regenerated", "device", id)
	return id, nil
}

// Step is one stage of a full repair.
type Step struct {
	Name  string
	Table string
	OK    bool
	Err   error
}

type Report struct {
	Snapshot string
	Steps    []Step
}

func (r Report) OK() bool {
	for _, s := range r.Steps {
		if !s.OK {
			return false
		}
	}
	return true
}

// Failed lists the names of failed steps, "name:table" for per table steps.
func (r Report) Failed() []string {
	var out []string
	for _, s := range r.Steps {
		if s.OK {
			continue
		}
		if s.Table != "" {
			out = append(out, s.Name+":"+s.Table)
		} else {
			out = append(out, s.Name)
		}
	}
	return out
}

// FullRepair backs up the cache, runs every server side repair, closes the
// local failure circuits and reloads from the server every table without
// unsynced local changes.
func (t *Tool) FullRepair(ctx context.Context) Report {
	var rep Report
	add := func(name, table string, ok bool, err error) {
		rep.Steps = append(rep.Steps, Step{Name: name, Table: table, OK: ok && err == nil, Err: err})
	}

	if t.backup != nil {
		name, err := t.backup.Snapshot(ctx)
		add("snapshot", "", err == nil, err)
		rep.Snapshot = name
	}

	add(api.ActionResetQueue, "", t.ResetQueue(ctx), nil)
	add(api.ActionRepairSync, "", t.RepairSync(ctx), nil)
	for _, table := range t.tables {
		add(api.ActionRemoveDuplicates, table, t.RemoveDuplicates(ctx, table), nil)
		add(api.ActionFixID, table, t.FixID(ctx, table), nil)
	}
	add(api.ActionCheckTables, "", t.CheckTables(ctx), nil)

	if t.fleet != nil {
		err := t.fleet.ResetAll(ctx)
		add("reset_failed", "", true, err)
		err = t.fleet.ReloadAll(ctx)
		add("reload", "", true, err)
	}

	if rep.OK() {
		t.notifier.Notify(ctx, notify.Notice{Level: notify.LevelSuccess, Title: "Repair completed"})
	} else {
		t.notifier.Notify(ctx, notify.Notice{
			Level:   notify.LevelWarning,
			Title:   "Repair completed with errors",
			Message: strings.Join(rep.Failed(), ", "),
		})
	}
	return rep
}
