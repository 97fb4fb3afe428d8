package cli

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/conformsync/internal/client/api"
	"github.com/dmitrijs2005/conformsync/internal/client/models"
	"github.com/dmitrijs2005/conformsync/internal/client/syncer"
	"github.com/dmitrijs2005/conformsync/internal/client/worker"
)

var errCancelled = errors.New("cancelled by user")

func (a *App) println(args ...any) {
	fmt.Fprintln(a.out, args...)
}

func (a *App) getStatus() string {
	s := ""
	if u := a.cache.UserID(); u != "" {
		s = "user " + u + " "
	}
	return fmt.Sprintf("(%s%s)", s, a.monitor.Mode())
}

// Status prints identity, connectivity and the sync state of every table.
func (a *App) Status(ctx context.Context) error {
	info, err := a.worker.Post(ctx, worker.Message{Type: worker.MsgGetAuthInfo})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "user: %s\ndevice: %s\nserver: %s (%s)\n", orNone(info.UserID), info.DeviceID, a.config.APIBase, a.monitor.Mode())

	maxAttempts := a.manager.Policy().MaxAttempts
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TABLE\tITEMS\tLOAD\tPHASE\tLAST SYNCED\tFAILURES\tPENDING\tCIRCUIT")
	for _, st := range a.manager.States() {
		last := "never"
		if !st.LastSynced.IsZero() {
			last = st.LastSynced.Local().Format(time.DateTime)
		}
		circuit := "closed"
		if st.CircuitOpen(maxAttempts) {
			circuit = "open"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\t%d\t%s\t%s\n",
			st.Table, st.Items, st.Load, st.Phase, last, st.SyncAttempts, pendingLabel(st), circuit)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if n := a.bus.Dropped(); n > 0 {
		fmt.Fprintf(a.out, "events dropped: %d\n", n)
	}
	return nil
}

func pendingLabel(st syncer.State) string {
	switch {
	case st.PushScheduled:
		return "scheduled"
	case st.Pending:
		return "yes"
	}
	return "no"
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}

// List prints the records of table, one JSON document per line.
func (a *App) List(ctx context.Context, table string) error {
	ed, err := a.manager.Editable(table)
	if err != nil {
		return err
	}
	items, err := ed.ItemsJSON()
	if err != nil {
		return err
	}
	if len(items) == 0 {
		a.println("(empty)")
		return nil
	}
	for _, it := range items {
		a.println(string(it))
	}
	return nil
}

// Add creates a record from name=value fields. When fields is empty they
// are read interactively.
func (a *App) Add(ctx context.Context, table string, fields []string) error {
	ed, err := a.manager.Editable(table)
	if err != nil {
		return err
	}
	if len(fields) == 0 {
		if fields, err = GetFields(a.reader, a.out); err != nil {
			return err
		}
	}
	raw, err := FieldsJSON(fields)
	if err != nil {
		return err
	}
	id, err := ed.AddJSON(ctx, raw)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Added %s record %s\n", table, id)
	return nil
}

func (a *App) Delete(ctx context.Context, table string, ids []string) error {
	if len(ids) == 0 {
		id, err := GetSimpleText(a.reader, "Enter record id to delete", a.out)
		if err != nil {
			return err
		}
		ids = []string{id}
	}
	cascaded, err := a.manager.Delete(ctx, table, ids...)
	if err != nil {
		return err
	}
	if cascaded > 0 {
		fmt.Fprintf(a.out, "Deleted %d record(s) and %d grouped item(s)\n", len(ids), cascaded)
	} else {
		fmt.Fprintf(a.out, "Deleted %d record(s)\n", len(ids))
	}
	return nil
}

// Sync pushes one table, or every table when table is empty, bypassing the
// debounce and the failure circuit.
func (a *App) Sync(ctx context.Context, table string) error {
	reply, err := a.worker.Post(ctx, worker.Message{Type: worker.MsgManualSync, Table: table})
	if err != nil {
		return err
	}
	tables := make([]string, 0, len(reply.Results))
	for t := range reply.Results {
		tables = append(tables, t)
	}
	slices.Sort(tables)

	failed := 0
	for _, t := range tables {
		if reply.Results[t] != "success" {
			failed++
		}
		fmt.Fprintf(a.out, "%-22s %s\n", t, reply.Results[t])
	}
	if failed > 0 {
		return fmt.Errorf("%d table(s) not synchronized", failed)
	}
	return nil
}

// Load replaces local data with the server copy.
func (a *App) Load(ctx context.Context, table string) error {
	if table == "" {
		return a.manager.ReloadAll(ctx)
	}
	s, err := a.manager.Collection(table)
	if err != nil {
		return err
	}
	return s.ReloadFromServer(ctx)
}

// SetOffline pins the client offline, or hands connectivity back to the
// probes and checks the server once.
func (a *App) SetOffline(ctx context.Context, offline bool) error {
	if offline {
		a.monitor.SetOnline(false)
		a.println("Offline: changes stay local until you go online.")
		return nil
	}
	a.monitor.Unpin()
	a.println("Connectivity:", a.monitor.Check(ctx))
	return nil
}

// Reset closes the failure circuit of one or every table.
func (a *App) Reset(ctx context.Context, table string) error {
	if table == "" {
		return a.manager.ResetAll(ctx)
	}
	s, err := a.manager.Collection(table)
	if err != nil {
		return err
	}
	return s.ResetSyncFailed(ctx)
}

// destructive lists the actions that change data on either side.
var destructive = []string{
	"full", "clear", "restore",
	api.ActionResetQueue, api.ActionRemoveDuplicates, api.ActionFixID,
}

// Repair runs a repair action. Besides the remote sync-debug.php actions it
// knows full, clear [table], device, backup and restore [name].
func (a *App) Repair(ctx context.Context, action, arg string) error {
	if slices.Contains(destructive, action) &&
		!Confirm(a.reader, fmt.Sprintf("Run %s? This changes stored data.", action), a.out) {
		return errCancelled
	}

	tool, err := a.repairTool(ctx)
	if err != nil {
		return err
	}

	switch action {
	case "full":
		rep := tool.FullRepair(ctx)
		if rep.Snapshot != "" {
			fmt.Fprintf(a.out, "snapshot: %s\n", rep.Snapshot)
		}
		for _, s := range rep.Steps {
			name := s.Name
			if s.Table != "" {
				name += " " + s.Table
			}
			status := "ok"
			if !s.OK {
				status = "FAILED"
			}
			fmt.Fprintf(a.out, "%-34s %s\n", name, status)
		}
		if !rep.OK() {
			return fmt.Errorf("repair failed: %s", strings.Join(rep.Failed(), ", "))
		}
		return nil

	case "clear":
		var tables []string
		if arg != "" {
			tables = []string{arg}
		}
		return tool.ClearLocalData(ctx, tables...)

	case "device":
		id, err := tool.RegenerateDeviceID(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "new device id: %s\n", id)
		return nil

	case "backup":
		snap, err := a.snapshotter(ctx)
		if err != nil {
			return err
		}
		name, err := snap.Snapshot(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "snapshot: %s\n", name)
		return nil

	case "restore":
		snap, err := a.snapshotter(ctx)
		if err != nil {
			return err
		}
		name, err := snap.Restore(ctx, arg)
		if err != nil {
			return err
		}
		fmt.Fprintf(a.out, "restored: %s\n", name)
		return nil
	}

	ok, err := tool.Run(ctx, action, arg)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s failed", action)
	}
	fmt.Fprintf(a.out, "%s: ok\n", action)
	return nil
}

// Tables prints the known table names.
func (a *App) Tables(context.Context) error {
	a.println(strings.Join(models.AllTables, "\n"))
	return nil
}
