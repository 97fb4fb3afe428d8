package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeExec struct {
	calls []string
	err   error
}

func (f *fakeExec) record(format string, args ...any) error {
	f.calls = append(f.calls, fmt.Sprintf(format, args...))
	return f.err
}

func (f *fakeExec) Status(context.Context) error { return f.record("status") }
func (f *fakeExec) Tables(context.Context) error { return f.record("tables") }
func (f *fakeExec) List(_ context.Context, table string) error {
	return f.record("list %s", table)
}
func (f *fakeExec) Add(_ context.Context, table string, fields []string) error {
	return f.record("add %s %v", table, fields)
}
func (f *fakeExec) Delete(_ context.Context, table string, ids []string) error {
	return f.record("delete %s %v", table, ids)
}
func (f *fakeExec) Sync(_ context.Context, table string) error  { return f.record("sync %s", table) }
func (f *fakeExec) Load(_ context.Context, table string) error  { return f.record("load %s", table) }
func (f *fakeExec) Reset(_ context.Context, table string) error { return f.record("reset %s", table) }
func (f *fakeExec) Repair(_ context.Context, action, arg string) error {
	return f.record("repair %s %s", action, arg)
}
func (f *fakeExec) SetOffline(_ context.Context, offline bool) error {
	return f.record("offline %t", offline)
}

func captureOutput(t *testing.T) *[]string {
	t.Helper()
	var lines []string
	origPrint := printlnFn
	printlnFn = func(a ...any) (int, error) {
		lines = append(lines, fmt.Sprint(a...))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = origPrint })
	return &lines
}

func TestRunREPL_Dispatch(t *testing.T) {
	captureOutput(t)

	input := strings.NewReader(strings.Join([]string{
		"help",
		"status",
		"",
		"l documents",
		"add membres nom=Durand prenom=Anne",
		"delete document_groups g1 g2",
		"sync",
		"sync exigences",
		"load membres",
		"reset",
		"repair fix_id documents",
		"tables",
		"offline",
		"online",
		"exit",
		"status",
	}, "\n"))

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "status" }, bufio.NewScanner(input))

	assert.Equal(t, []string{
		"status",
		"list documents",
		"add membres [nom=Durand prenom=Anne]",
		"delete document_groups [g1 g2]",
		"sync ",
		"sync exigences",
		"load membres",
		"reset ",
		"repair fix_id documents",
		"tables",
		"offline true",
		"offline false",
	}, exec.calls)
}

func TestRunREPL_UsageAndQuit(t *testing.T) {
	out := captureOutput(t)

	exec := &fakeExec{}
	runREPL(context.Background(), exec, func() string { return "s" }, bufio.NewScanner(strings.NewReader("list\nrepair\nfoobar\nquit\n")))

	assert.Empty(t, exec.calls)
	joined := strings.Join(*out, "\n")
	assert.Contains(t, joined, "Usage:list<table>")
	assert.Contains(t, joined, "Usage: repair <action> [arg]")
	assert.Contains(t, joined, "Unknown command:foobar")
	assert.Contains(t, joined, "Bye!")
}

func TestRunREPL_ReportsErrors(t *testing.T) {
	out := captureOutput(t)

	exec := &fakeExec{err: errors.New("offline")}
	runREPL(context.Background(), exec, func() string { return "s" }, bufio.NewScanner(strings.NewReader("sync\n")))

	assert.Equal(t, []string{"sync "}, exec.calls)
	assert.Contains(t, strings.Join(*out, "\n"), "Error:offline")
}
