package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"

	"github.com/dmitrijs2005/conformsync/internal/buildinfo"
	"github.com/dmitrijs2005/conformsync/internal/client/config"
	"github.com/dmitrijs2005/conformsync/internal/client/models"
	"github.com/spf13/cobra"
)

type runFn func(ctx context.Context, a *App, args []string) error

// NewRootCommand builds the conformsync command tree. rawArgs are the
// process arguments; configuration flags are read from them directly and
// ignored by cobra.
func NewRootCommand(rawArgs []string, in io.Reader, out io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "conformsync",
		Short: "Offline-first sync client for the compliance workspace",
		Long: `conformsync keeps a local cache of documents, exigences, membres,
bibliotheque and collaboration records and synchronizes it with the server.

Configuration: CONFORMSYNC_* variables, .env, -c <file.json>, and the flags
-a/--api, -u/--user, -i, --storage, --storage-path, --watch, --sync-interval,
--debounce, --push, --log-level, --log-json, --log-file, --metrics-addr,
--backup-dir, --s3-bucket.`,
		SilenceUsage: true,
	}
	root.SetIn(in)
	root.SetOut(out)
	root.SetErr(out)

	withApp := func(start bool, fn runFn) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(rawArgs)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			app, err := NewApp(ctx, cfg, in, out)
			if err != nil {
				return err
			}
			defer app.Close()
			if start {
				app.Start(ctx)
			}
			return fn(ctx, app, args)
		}
	}

	tableArg := func(args []string) string {
		if len(args) > 0 {
			return args[0]
		}
		return ""
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "daemon",
			Short: "Run the background sync loop, push listener and metrics endpoint",
			Args:  cobra.NoArgs,
			RunE: withApp(false, func(ctx context.Context, a *App, _ []string) error {
				return a.RunDaemon(ctx)
			}),
		},
		&cobra.Command{
			Use:   "shell",
			Short: "Interactive shell",
			Args:  cobra.NoArgs,
			RunE: withApp(true, func(ctx context.Context, a *App, _ []string) error {
				a.println("Welcome to conformsync (type 'help' for commands)")
				runREPL(ctx, a, a.getStatus, bufio.NewScanner(a.reader))
				return nil
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show identity, connectivity and sync state",
			Args:  cobra.NoArgs,
			RunE: withApp(true, func(ctx context.Context, a *App, _ []string) error {
				return a.Status(ctx)
			}),
		},
		&cobra.Command{
			Use:   "tables",
			Short: "List table names",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				for _, t := range models.AllTables {
					fmt.Fprintln(cmd.OutOrStdout(), t)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "sync [table]",
			Short: "Push local data now, bypassing debounce and the failure circuit",
			Args:  cobra.MaximumNArgs(1),
			RunE: withApp(true, func(ctx context.Context, a *App, args []string) error {
				return a.Sync(ctx, tableArg(args))
			}),
		},
		&cobra.Command{
			Use:   "load [table]",
			Short: "Replace local data with the server copy",
			Args:  cobra.MaximumNArgs(1),
			RunE: withApp(true, func(ctx context.Context, a *App, args []string) error {
				return a.Load(ctx, tableArg(args))
			}),
		},
		&cobra.Command{
			Use:   "list <table>",
			Short: "Print cached records as JSON lines",
			Args:  cobra.ExactArgs(1),
			RunE: withApp(true, func(ctx context.Context, a *App, args []string) error {
				return a.List(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "add <table> [name=value...]",
			Short: "Add a record and push it when online",
			Args:  cobra.MinimumNArgs(1),
			RunE: withApp(true, func(ctx context.Context, a *App, args []string) error {
				if err := a.Add(ctx, args[0], args[1:]); err != nil {
					return err
				}
				return a.flush(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "delete <table> <id>...",
			Short: "Delete records; deleting a group deletes its items",
			Args:  cobra.MinimumNArgs(2),
			RunE: withApp(true, func(ctx context.Context, a *App, args []string) error {
				if err := a.Delete(ctx, args[0], args[1:]); err != nil {
					return err
				}
				if group, ok := itemTableOf(args[0]); ok {
					if err := a.flush(ctx, group); err != nil {
						return err
					}
				}
				return a.flush(ctx, args[0])
			}),
		},
		&cobra.Command{
			Use:   "reset [table]",
			Short: "Re-enable automatic sync after repeated failures",
			Args:  cobra.MaximumNArgs(1),
			RunE: withApp(true, func(ctx context.Context, a *App, args []string) error {
				return a.Reset(ctx, tableArg(args))
			}),
		},
		&cobra.Command{
			Use:   "repair <action> [arg]",
			Short: "Run a repair action (full, clear, device, backup, restore, repair_sync, check_tables, reset_queue, remove_duplicates, fix_id)",
			Args:  cobra.RangeArgs(1, 2),
			RunE: withApp(true, func(ctx context.Context, a *App, args []string) error {
				arg := ""
				if len(args) > 1 {
					arg = args[1]
				}
				return a.Repair(ctx, args[0], arg)
			}),
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print build information",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				buildinfo.PrintBuildData(cmd.OutOrStdout())
			},
		},
	)

	for _, c := range append(root.Commands(), root) {
		c.FParseErrWhitelist = cobra.FParseErrWhitelist{UnknownFlags: true}
	}
	return root
}

// itemTableOf returns the item table of a group table.
func itemTableOf(groupTable string) (string, bool) {
	for _, t := range models.AllTables {
		if g, ok := models.GroupTableOf(t); ok && g == groupTable {
			return t, true
		}
	}
	return "", false
}

// flush pushes table right away when online. Offline, the change stays
// pending and is pushed by the next run that finds the server.
func (a *App) flush(ctx context.Context, table string) error {
	if !a.monitor.IsOnline() {
		a.println("Saved locally; it will be synchronized when the server is reachable.")
		return nil
	}
	return a.Sync(ctx, table)
}
