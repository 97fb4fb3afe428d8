package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn prints user-facing REPL output.
var printlnFn = fmt.Println

// execIface is the command surface of the REPL, implemented by App.
type execIface interface {
	Status(ctx context.Context) error
	Tables(ctx context.Context) error
	List(ctx context.Context, table string) error
	Add(ctx context.Context, table string, fields []string) error
	Delete(ctx context.Context, table string, ids []string) error
	Sync(ctx context.Context, table string) error
	Load(ctx context.Context, table string) error
	Reset(ctx context.Context, table string) error
	Repair(ctx context.Context, action, arg string) error
	SetOffline(ctx context.Context, offline bool) error
}

const replHelp = `Available commands:
  status                      identity, connectivity and sync state
  tables                      list table names
  (l)ist <table>              show records
  add <table> [name=value...] add a record (fields prompted when omitted)
  delete <table> [id...]      delete records (groups cascade)
  sync [table]                push now
  load [table]                reload from the server
  reset [table]               re-enable automatic sync after failures
  repair <action> [arg]       full, clear, device, backup, restore,
                              repair_sync, check_tables, reset_queue,
                              remove_duplicates, fix_id
  offline | online            stay local / probe the server again
  exit | quit                 leave`

// runREPL starts a simple read–eval–print loop.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Errors are printed and the loop
// goes on. The loop exits on scanner EOF or when the user types "exit" or
// "quit".
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("cs %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]
		arg := func(i int) string {
			if i < len(args) {
				return args[i]
			}
			return ""
		}

		var err error
		switch cmd {
		case "help":
			printlnFn(replHelp)
			continue

		case "status":
			err = a.Status(ctx)

		case "tables":
			err = a.Tables(ctx)

		case "l", "list", "add", "delete":
			if len(args) == 0 {
				printlnFn("Usage:", cmd, "<table>")
				continue
			}
			switch cmd {
			case "add":
				err = a.Add(ctx, args[0], args[1:])
			case "delete":
				err = a.Delete(ctx, args[0], args[1:])
			default:
				err = a.List(ctx, args[0])
			}

		case "sync":
			err = a.Sync(ctx, arg(0))

		case "load":
			err = a.Load(ctx, arg(0))

		case "reset":
			err = a.Reset(ctx, arg(0))

		case "repair":
			if len(args) == 0 {
				printlnFn("Usage: repair <action> [arg]")
				continue
			}
			err = a.Repair(ctx, args[0], arg(1))

		case "offline", "online":
			err = a.SetOffline(ctx, cmd == "offline")

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
			continue
		}

		if err != nil {
			printlnFn("Error:", err)
		}
	}
}
