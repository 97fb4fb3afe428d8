package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rawList(items ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(items))
	for i, s := range items {
		out[i] = json.RawMessage(s)
	}
	return out
}

func TestDedupe_KeepsFirstPositionNewestCopy(t *testing.T) {
	in := rawList(
		`{"id":"a","date_modification":"2026-01-01","v":1}`,
		`{"id":"b","v":2}`,
		`{"id":"a","date_modification":"2026-02-01","v":3}`,
		`{"v":4}`,
		`{"id":"a","date_modification":"2025-12-01","v":5}`,
	)
	out, n := dedupe(in)
	assert.Equal(t, 2, n)
	require.Len(t, out, 3)
	assert.JSONEq(t, `{"id":"a","date_modification":"2026-02-01","v":3}`, string(out[0]))
	assert.JSONEq(t, `{"id":"b","v":2}`, string(out[1]))
	assert.JSONEq(t, `{"v":4}`, string(out[2]))
}

func TestFixIDs(t *testing.T) {
	out, n, err := fixIDs(rawList(`{"id":"a"}`, `{"nom":"x"}`, `{"id":""}`))
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, r := range out {
		h, err := readHeader(r)
		require.NoError(t, err)
		assert.NotEmpty(t, h.ID)
	}
	assert.Contains(t, string(out[1]), `"nom":"x"`)
}

func TestValidate_RejectsNonObjects(t *testing.T) {
	require.NoError(t, validate(rawList(`{}`)))
	require.ErrorIs(t, validate(rawList(`{}`, `[1]`)), ErrInvalidRecord)
	require.ErrorIs(t, validate(rawList(`null`)), ErrInvalidRecord)
}

func TestStat(t *testing.T) {
	s := stat("documents", rawList(`{"id":"a"}`, `{"id":"a"}`, `{}`))
	assert.Equal(t, TableStat{Table: "documents", Records: 3, Duplicates: 1, MissingIDs: 1}, s)
}

func TestMemory_Lifecycle(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	got, err := m.Load(ctx, "u1", "documents")
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	require.NoError(t, m.Replace(ctx, "u1", "documents", "d1", rawList(`{"id":"a"}`, `{"id":"a"}`, `{}`)))
	require.NoError(t, m.Replace(ctx, "u2", "membres", "d2", rawList(`{"id":"m"}`)))
	require.ErrorIs(t, m.Replace(ctx, "u1", "documents", "d1", rawList(`"x"`)), ErrInvalidRecord)

	stats, err := m.CheckTables(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, []TableStat{{Table: "documents", Records: 3, Duplicates: 1, MissingIDs: 1}}, stats)

	n, err := m.RemoveDuplicates(ctx, "u1", "documents")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = m.FixIDs(ctx, "u1", "documents")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, _ = m.Load(ctx, "u1", "documents")
	assert.Len(t, got, 2)

	n, err = m.ApplyQueue(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = m.ResetQueue(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	q := m.Queue()
	require.Len(t, q, 1)
	assert.Equal(t, "u2", q[0].UserID)
	assert.Equal(t, QueuePending, q[0].Status)
}
