// Package notify surfaces sync outcomes to the user and listens for server
// pushes that ask clients to reload.
package notify

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/conformsync/internal/logging"
)

type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notice is one user visible message.
type Notice struct {
	Level   Level
	Title   string
	Message string
	Table   string
}

type Notifier interface {
	Notify(ctx context.Context, n Notice)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notice)

func (f Func) Notify(ctx context.Context, n Notice) { f(ctx, n) }

// Log writes notices to a logger.
type Log struct {
	Logger logging.Logger
}

func (l Log) Notify(ctx context.Context, n Notice) {
	args := []any{"title", n.Title, "message", n.Message}
	if n.Table != "" {
		args = append(args, "table", n.Table)
	}
	switch n.Level {
	case LevelError:
		l.Logger.Error(ctx, "notice", args...)
	case LevelWarning:
		l.Logger.Warn(ctx, "notice", args...)
	default:
		l.Logger.Info(ctx, "notice", args...)
	}
}

// Writer prints notices as single lines, e.g. for the interactive shell.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

func (wr *Writer) Notify(_ context.Context, n Notice) {
	wr.mu.Lock()
	defer wr.mu.Unlock()
	if n.Message == "" {
		fmt.Fprintf(wr.w, "[%s] %s\n", n.Level, n.Title)
		return
	}
	fmt.Fprintf(wr.w, "[%s] %s: %s\n", n.Level, n.Title, n.Message)
}

// Multi fans a notice out to several notifiers.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, n Notice) {
	for _, nt := range m {
		nt.Notify(ctx, n)
	}
}

// Discard drops every notice.
var Discard Notifier = Func(func(context.Context, Notice) {})
