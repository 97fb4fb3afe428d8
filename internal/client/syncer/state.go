package syncer

import "time"

type LoadState string

const (
	LoadIdle    LoadState = "idle"
	LoadLoading LoadState = "loading"
	LoadSuccess LoadState = "success"
	LoadError   LoadState = "error"
)

type SyncPhase string

const (
	PhaseIdle    SyncPhase = "idle"
	PhaseSyncing SyncPhase = "syncing"
	PhaseSynced  SyncPhase = "synced"
	PhaseFailed  SyncPhase = "failed"
)

// State is a snapshot of a collection's load and sync status.
type State struct {
	Table        string
	Items        int
	Load         LoadState
	Phase        SyncPhase
	IsSyncing    bool
	LastSynced   time.Time
	LastAttempt  time.Time
	SyncFailed   bool
	SyncAttempts int
	// Pending is true while local changes have not been accepted by the server.
	Pending bool
	// PushScheduled is true while a debounced push is waiting to run.
	PushScheduled bool
	LastError     string
}

// CircuitOpen reports whether automatic syncs are suspended.
func (s State) CircuitOpen(maxAttempts int) bool {
	return s.SyncFailed && s.SyncAttempts >= maxAttempts
}
