package cli

import (
	"context"
	"io"
	"os/signal"
	"syscall"
)

// Execute runs the command line given in args until it completes or the
// process receives SIGINT or SIGTERM.
func Execute(args []string, in io.Reader, out io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := NewRootCommand(args, in, out)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}
