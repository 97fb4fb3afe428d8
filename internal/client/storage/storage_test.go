package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Storage {
	t.Helper()
	ctx := context.Background()

	sq, err := OpenSQLite(ctx, filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sq.Close() })

	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	return map[string]Storage{
		"sqlite": sq,
		"file":   fs,
		"memory": NewMemory(),
	}
}

func TestBackends_Contract(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			v, err := s.Get(ctx, "absent")
			require.NoError(t, err)
			assert.Nil(t, v)

			require.NoError(t, s.Set(ctx, "documents_u1", []byte(`[{"id":"a"}]`)))
			require.NoError(t, s.Set(ctx, "documents_u1", []byte(`[{"id":"b"}]`)))
			require.NoError(t, s.Set(ctx, "device_id", []byte("dev")))

			v, err = s.Get(ctx, "documents_u1")
			require.NoError(t, err)
			assert.Equal(t, `[{"id":"b"}]`, string(v))

			all, err := s.List(ctx)
			require.NoError(t, err)
			assert.Len(t, all, 2)
			assert.Equal(t, []byte("dev"), all["device_id"])

			require.NoError(t, s.Delete(ctx, "device_id"))
			require.NoError(t, s.Delete(ctx, "device_id"))
			v, err = s.Get(ctx, "device_id")
			require.NoError(t, err)
			assert.Nil(t, v)

			require.NoError(t, s.Clear(ctx))
			all, err = s.List(ctx)
			require.NoError(t, err)
			assert.Empty(t, all)
		})
	}
}

func TestBackends_RejectEmptyKey(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.ErrorIs(t, s.Set(context.Background(), "", []byte("x")), ErrInvalidKey)
		})
	}
}

func TestFileStore_RejectsPathKeys(t *testing.T) {
	fs, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"../escape", "a/b", ".hidden"} {
		require.ErrorIs(t, fs.Set(context.Background(), key, []byte("x")), ErrInvalidKey, key)
	}
}

func TestOpenSQLite_MigrationsAreIdempotent(t *testing.T) {
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "cache.db")

	s1, err := OpenSQLite(ctx, dsn)
	require.NoError(t, err)
	require.NoError(t, s1.Set(ctx, "k", []byte("v")))
	require.NoError(t, s1.Close())

	s2, err := OpenSQLite(ctx, dsn)
	require.NoError(t, err)
	defer s2.Close()

	v, err := s2.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), v)
}

func TestMemory_ReturnsCopies(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	buf := []byte("abc")
	require.NoError(t, m.Set(ctx, "k", buf))
	buf[0] = 'z'

	v, err := m.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(v))
	v[0] = 'y'

	v2, _ := m.Get(ctx, "k")
	assert.Equal(t, "abc", string(v2))
}
