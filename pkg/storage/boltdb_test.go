package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *BoltStore {
	t.Helper()
	s, err := NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetRoundTrip(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Put([]byte("results"), []byte("k1"), []byte("v1")))

	value, found, err := s.Get([]byte("results"), []byte("k1"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, []byte("v1"), value)
}

func TestGetMissingKeyReturnsNotFound(t *testing.T) {
	s := openTestStore(t)

	value, found, err := s.Get([]byte("results"), []byte("missing"))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, value)
}

func TestGetMissingBucketReturnsNotFound(t *testing.T) {
	s := openTestStore(t)

	value, found, err := s.Get([]byte("does-not-exist"), []byte("k"))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, value)
}

func TestForEachIteratesAllPairs(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put([]byte("results"), []byte("a"), []byte("1")))
	require.NoError(t, s.Put([]byte("results"), []byte("b"), []byte("2")))

	seen := map[string]string{}
	err := s.ForEach([]byte("results"), func(key, value []byte) error {
		seen[string(key)] = string(value)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "b": "2"}, seen)
}

func TestDeleteRemovesKey(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Put([]byte("results"), []byte("k1"), []byte("v1")))
	require.NoError(t, s.Delete([]byte("results"), []byte("k1")))

	_, found, err := s.Get([]byte("results"), []byte("k1"))
	require.NoError(t, err)
	assert.False(t, found)
}
