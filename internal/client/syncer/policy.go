package syncer

import "time"

// Policy holds the timing knobs shared by every collection.
type Policy struct {
	// DebounceDelay collapses bursts of mutations into one push.
	DebounceDelay time.Duration
	// SyncInterval is the period of the background tick.
	SyncInterval time.Duration
	// MinSyncInterval is the minimum gap between two periodic attempts.
	MinSyncInterval time.Duration
	// RequestTimeout bounds each request.
	RequestTimeout time.Duration
	// MaxAttempts consecutive failures open the circuit.
	MaxAttempts int
}

func DefaultPolicy() Policy {
	return Policy{
		DebounceDelay:   1500 * time.Millisecond,
		SyncInterval:    5 * time.Minute,
		MinSyncInterval: 10 * time.Second,
		RequestTimeout:  15 * time.Second,
		MaxAttempts:     3,
	}
}

func (p Policy) withDefaults() Policy {
	d := DefaultPolicy()
	if p.DebounceDelay <= 0 {
		p.DebounceDelay = d.DebounceDelay
	}
	if p.SyncInterval <= 0 {
		p.SyncInterval = d.SyncInterval
	}
	if p.MinSyncInterval < 0 {
		p.MinSyncInterval = d.MinSyncInterval
	}
	if p.RequestTimeout <= 0 {
		p.RequestTimeout = d.RequestTimeout
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	return p
}

// Trigger tells why a sync runs.
type Trigger string

const (
	TriggerManual     Trigger = "manual"
	TriggerDebounce   Trigger = "debounce"
	TriggerPeriodic   Trigger = "periodic"
	TriggerReconnect  Trigger = "reconnect"
	TriggerBackground Trigger = "background"
)

// Automatic reports whether t is subject to the failure circuit.
func (t Trigger) Automatic() bool { return t != TriggerManual }
