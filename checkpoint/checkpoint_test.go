package checkpoint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Interface compliance (compile-time assertion)
var _ Store = (*InMemoryStore)(nil)
var _ Store = (*FileStore)(nil)

func TestInMemoryStore_SaveGetListDelete(t *testing.T) {
	s := NewInMemoryStore()

	require.NoError(t, s.Save("run-1", "epoch-0001", []byte("state-1")))
	require.NoError(t, s.Save("run-1", "epoch-0002", []byte("state-2")))
	require.NoError(t, s.Save("run-2", "epoch-0001", []byte("other")))

	snap, err := s.Get("run-1", "epoch-0002")
	require.NoError(t, err)
	assert.Equal(t, []byte("state-2"), snap.Data)
	assert.False(t, snap.SavedAt.IsZero())

	names, err := s.List("run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"epoch-0001", "epoch-0002"}, names)

	require.NoError(t, s.Delete("run-1", "epoch-0001"))
	_, err = s.Get("run-1", "epoch-0001")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing snapshot is not an error.
	assert.NoError(t, s.Delete("run-1", "never-existed"))
}

func TestInMemoryStore_CopiesData(t *testing.T) {
	s := NewInMemoryStore()

	data := []byte("mutable")
	require.NoError(t, s.Save("run-1", "snap", data))
	data[0] = 'X'

	snap, err := s.Get("run-1", "snap")
	require.NoError(t, err)
	assert.Equal(t, []byte("mutable"), snap.Data)

	snap.Data[0] = 'Y'
	again, err := s.Get("run-1", "snap")
	require.NoError(t, err)
	assert.Equal(t, []byte("mutable"), again.Data)
}

func TestFileStore_RoundTrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Save("run-1", "epoch-0001", []byte("state")))
	require.NoError(t, s.Save("run-1", "epoch-0002", []byte("state-2")))

	snap, err := s.Get("run-1", "epoch-0001")
	require.NoError(t, err)
	assert.Equal(t, []byte("state"), snap.Data)

	names, err := s.List("run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"epoch-0001", "epoch-0002"}, names)

	require.NoError(t, s.Delete("run-1", "epoch-0001"))
	_, err = s.Get("run-1", "epoch-0001")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStore_ListMissingRunIsEmpty(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	names, err := s.List("never-ran")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestFileStore_RejectsUnsafeNames(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, s.Save("../escape", "snap", nil))
	assert.Error(t, s.Save("run-1", "a/b", nil))
	assert.Error(t, s.Save("", "snap", nil))
}
