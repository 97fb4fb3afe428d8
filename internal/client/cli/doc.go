// Package cli provides the conformsync command-line client.
//
// It wires configuration, local storage, the sync manager, the background
// worker and the repair tools, and exposes them as cobra subcommands plus an
// interactive shell (runREPL). One-shot commands start the collections,
// run, and close; the daemon command keeps everything running until it is
// interrupted.
package cli
