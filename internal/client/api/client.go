package api

import (
	"context"
	"encoding/json"
)

// Result is the outcome of a sync request accepted by the server.
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// DiagnosticResult is the answer of a sync-debug.php action.
type DiagnosticResult struct {
	Success bool
	Message string
	// Raw holds the complete JSON answer for display.
	Raw json.RawMessage
}

// Diagnostic actions understood by sync-debug.php.
const (
	ActionRepairSync       = "repair_sync"
	ActionCheckTables      = "check_tables"
	ActionResetQueue       = "reset_queue"
	ActionRemoveDuplicates = "remove_duplicates"
	ActionFixID            = "fix_id"
)

type Client interface {
	// SyncTable replaces the server copy of table for userID with items.
	SyncTable(ctx context.Context, table, userID string, items any) (Result, error)
	// LoadTable returns the server copy of table for userID, one raw JSON
	// value per record.
	LoadTable(ctx context.Context, table, userID string) ([]json.RawMessage, error)
	Diagnostic(ctx context.Context, action, userID, table string) (DiagnosticResult, error)
	// Probe succeeds when the server answers at all.
	Probe(ctx context.Context) error
}
