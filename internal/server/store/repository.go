// Package store keeps the per user record collections of the reference
// server together with a queue of received sync requests.
package store

import (
	"context"
	"encoding/json"
	"errors"
)

var ErrInvalidRecord = errors.New("record is not a JSON object")

// Queue entry states.
const (
	QueuePending = "pending"
	QueueApplied = "applied"
)

// QueueEntry records one accepted sync request.
type QueueEntry struct {
	UserID   string
	Table    string
	DeviceID string
	Records  int
	Status   string
}

// TableStat counts the records of a table.
type TableStat struct {
	Table      string `json:"table"`
	Records    int    `json:"records"`
	Duplicates int    `json:"duplicates"`
	MissingIDs int    `json:"missingIds"`
}

type Repository interface {
	// Replace swaps the collection of table for userID (last write wins)
	// and appends a queue entry.
	Replace(ctx context.Context, userID, table, deviceID string, records []json.RawMessage) error
	Load(ctx context.Context, userID, table string) ([]json.RawMessage, error)
	// ApplyQueue marks pending queue entries of userID as applied.
	ApplyQueue(ctx context.Context, userID string) (int, error)
	// ResetQueue deletes the queue entries of userID.
	ResetQueue(ctx context.Context, userID string) (int, error)
	RemoveDuplicates(ctx context.Context, userID, table string) (int, error)
	FixIDs(ctx context.Context, userID, table string) (int, error)
	CheckTables(ctx context.Context, userID string) ([]TableStat, error)
	Ping(ctx context.Context) error
	Close() error
}
