package syncer

import (
	"errors"

	"github.com/dmitrijs2005/conformsync/internal/client/cache"
)

var (
	ErrSyncInProgress = errors.New("sync already in progress")
	ErrCircuitOpen    = errors.New("automatic sync suspended after repeated failures")
	ErrThrottled      = errors.New("sync attempted too recently")
	ErrUnchanged      = errors.New("nothing changed since last sync")
	ErrNotFound       = errors.New("record not found")
	ErrDuplicateID    = errors.New("duplicate record id")
	ErrUnknownTable   = errors.New("unknown table")
	ErrClosed         = errors.New("collection closed")
	ErrLocalChanges   = errors.New("local changes not synchronized yet")
	ErrNoUser         = cache.ErrNoUser
)

// IsSkip reports errors meaning an automatic sync was not attempted.
func IsSkip(err error) bool {
	return errors.Is(err, ErrSyncInProgress) || errors.Is(err, ErrCircuitOpen) ||
		errors.Is(err, ErrThrottled) || errors.Is(err, ErrUnchanged)
}
