package storage

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *PebbleStore {
	t.Helper()
	s, err := NewPebbleStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSetGetRoundTrip(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Set([]byte("k"), []byte("v"), 0))

	value, found, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, []byte("v"), value)
}

func TestGetMissing(t *testing.T) {
	s := newStore(t)

	value, found, err := s.Get([]byte("absent"))
	require.NoError(t, err)
	require.False(t, found)
	require.Nil(t, value)
}

func TestEmptyValue(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Set([]byte("k"), nil, 0))

	value, found, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, found)
	require.Empty(t, value)
}

func TestTTLExpiry(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Set([]byte("k"), []byte("v"), 20*time.Millisecond))

	_, found, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.True(t, found, "value must be live before the TTL elapses")

	time.Sleep(30 * time.Millisecond)

	_, found, err = s.Get([]byte("k"))
	require.NoError(t, err)
	require.False(t, found, "value must be gone after the TTL elapses")

	exists, err := s.Exists([]byte("k"))
	require.NoError(t, err)
	require.False(t, exists)
}

func TestExists(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Set([]byte("here"), []byte("v"), 0))

	exists, err := s.Exists([]byte("here"))
	require.NoError(t, err)
	require.True(t, exists)

	exists, err = s.Exists([]byte("gone"))
	require.NoError(t, err)
	require.False(t, exists)
}

func TestBatchCommit(t *testing.T) {
	s := newStore(t)

	b := s.NewBatch()
	require.NoError(t, b.Set([]byte("a"), []byte("1"), 0))
	require.NoError(t, b.Set([]byte("b"), []byte("2"), time.Hour))
	require.NoError(t, b.Commit())
	require.NoError(t, b.Close())

	for _, key := range []string{"a", "b"} {
		_, found, err := s.Get([]byte(key))
		require.NoError(t, err)
		require.True(t, found, "key %s must be visible after commit", key)
	}
}

func TestDelete(t *testing.T) {
	s := newStore(t)

	require.NoError(t, s.Set([]byte("k"), []byte("v"), 0))
	require.NoError(t, s.Delete([]byte("k")))

	_, found, err := s.Get([]byte("k"))
	require.NoError(t, err)
	require.False(t, found)
}
