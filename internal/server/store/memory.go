package store

import (
	"context"
	"encoding/json"
	"slices"
	"sync"
)

type tableKey struct {
	userID, table string
}

// Memory is a Repository kept in process memory.
type Memory struct {
	mu      sync.Mutex
	records map[tableKey][]json.RawMessage
	queue   []QueueEntry
}

func NewMemory() *Memory {
	return &Memory{records: make(map[tableKey][]json.RawMessage)}
}

func (m *Memory) Replace(_ context.Context, userID, table, deviceID string, records []json.RawMessage) error {
	if err := validate(records); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[tableKey{userID, table}] = slices.Clone(records)
	m.queue = append(m.queue, QueueEntry{UserID: userID, Table: table, DeviceID: deviceID, Records: len(records), Status: QueuePending})
	return nil
}

func (m *Memory) Load(_ context.Context, userID, table string) ([]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := slices.Clone(m.records[tableKey{userID, table}])
	if out == nil {
		out = []json.RawMessage{}
	}
	return out, nil
}

func (m *Memory) ApplyQueue(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for i := range m.queue {
		if m.queue[i].UserID == userID && m.queue[i].Status == QueuePending {
			m.queue[i].Status = QueueApplied
			n++
		}
	}
	return n, nil
}

func (m *Memory) ResetQueue(_ context.Context, userID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	before := len(m.queue)
	m.queue = slices.DeleteFunc(m.queue, func(e QueueEntry) bool { return e.UserID == userID })
	return before - len(m.queue), nil
}

// Queue returns a copy of the queue.
func (m *Memory) Queue() []QueueEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.queue)
}

func (m *Memory) RemoveDuplicates(_ context.Context, userID, table string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := tableKey{userID, table}
	out, n := dedupe(m.records[k])
	if n > 0 {
		m.records[k] = out
	}
	return n, nil
}

func (m *Memory) FixIDs(_ context.Context, userID, table string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := tableKey{userID, table}
	out, n, err := fixIDs(m.records[k])
	if err != nil {
		return 0, err
	}
	if n > 0 {
		m.records[k] = out
	}
	return n, nil
}

func (m *Memory) CheckTables(_ context.Context, userID string) ([]TableStat, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []TableStat
	for k, recs := range m.records {
		if k.userID == userID {
			out = append(out, stat(k.table, recs))
		}
	}
	slices.SortFunc(out, func(a, b TableStat) int {
		switch {
		case a.Table < b.Table:
			return -1
		case a.Table > b.Table:
			return 1
		}
		return 0
	})
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error { return nil }
