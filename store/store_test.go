package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scribeline/meter_api/shared"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := NewRegistry().Open(filepath.Join(t.TempDir(), "records.json"))
	require.NoError(t, err)
	return s
}

func TestStore_SetGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.json")

	s, err := NewRegistry().Open(path)
	require.NoError(t, err)

	require.NoError(t, s.Set("limit:alice:2024-06-01", 3))
	require.NoError(t, s.Set("note", map[string]interface{}{"style": "prep"}))

	v, ok := s.GetInt("limit:alice:2024-06-01")
	assert.True(t, ok)
	assert.Equal(t, int64(3), v)

	// A fresh registry re-reads from disk.
	reopened, err := NewRegistry().Open(path)
	require.NoError(t, err)

	v, ok = reopened.GetInt("limit:alice:2024-06-01")
	assert.True(t, ok)
	assert.Equal(t, int64(3), v)

	raw, ok := reopened.Get("note")
	require.True(t, ok)
	note, ok := raw.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "prep", note["style"])
}

func TestStore_MissingFileIsEmpty(t *testing.T) {
	s := newTestStore(t)
	assert.Equal(t, 0, s.Len())

	_, ok := s.Get("anything")
	assert.False(t, ok)
}

func TestStore_FlushLeavesValidFileAndNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.json")

	s, err := NewRegistry().Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("k", "v"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, sonic.Unmarshal(raw, &decoded))
	assert.Equal(t, "v", decoded["k"])

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestStore_DeleteAbsentKey(t *testing.T) {
	s := newTestStore(t)

	err := s.Delete("ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrKeyNotFound))
}

func TestStore_DeletePersists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.json")

	s, err := NewRegistry().Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Set("k", "v"))
	require.NoError(t, s.Delete("k"))

	reopened, err := NewRegistry().Open(path)
	require.NoError(t, err)
	_, ok := reopened.Get("k")
	assert.False(t, ok)
}

func TestStore_UnserializableValueRollsBack(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set("k", "old"))

	err := s.Set("k", make(chan int))
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrSerialization))

	// The previous value must survive both in memory and on disk.
	v, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, "old", v)

	reopened, err := NewRegistry().Open(s.Path())
	require.NoError(t, err)
	v, ok = reopened.Get("k")
	require.True(t, ok)
	assert.Equal(t, "old", v)
}

func TestStore_IOFailureRollsBack(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set("k", "old"))

	// A directory squatting on the temp path makes the flush write fail.
	// Works regardless of the uid the tests run under, unlike a chmod.
	require.NoError(t, os.Mkdir(s.Path()+".tmp", 0o755))

	err := s.Set("k", "new")
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrIO))

	v, ok := s.Get("k")
	require.True(t, ok)
	assert.Equal(t, "old", v)

	err = s.Set("fresh", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, shared.ErrIO))
	_, ok = s.Get("fresh")
	assert.False(t, ok)

	// Once the disk recovers, writes resume.
	require.NoError(t, os.Remove(s.Path()+".tmp"))
	require.NoError(t, s.Set("k", "new"))

	reopened, err := NewRegistry().Open(s.Path())
	require.NoError(t, err)
	v, ok = reopened.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", v)
}

func TestStore_TakeRemovesExactlyOnce(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Set("flag", "armed"))

	v, ok, err := s.Take("flag")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "armed", v)

	_, ok, err = s.Take("flag")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStore_ConcurrentWriters(t *testing.T) {
	s := newTestStore(t)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := s.Set(fmt.Sprintf("key-%d", i), i); err != nil {
				t.Errorf("set key-%d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, n, s.Len())

	reopened, err := NewRegistry().Open(s.Path())
	require.NoError(t, err)
	assert.Equal(t, n, reopened.Len())
}

func TestRegistry_SingletonPerPath(t *testing.T) {
	dir := t.TempDir()
	reg := NewRegistry()

	a, err := reg.Open(filepath.Join(dir, "x.json"))
	require.NoError(t, err)

	// A messier spelling of the same path still hits the same store.
	b, err := reg.Open(filepath.Join(dir, ".", "x.json"))
	require.NoError(t, err)
	assert.Same(t, a, b)

	c, err := reg.Open(filepath.Join(dir, "y.json"))
	require.NoError(t, err)
	assert.NotSame(t, a, c)
}

func TestDecode(t *testing.T) {
	type flag struct {
		Style string `json:"style"`
	}

	raw := map[string]interface{}{"style": "pas"}

	var f flag
	require.NoError(t, Decode(raw, &f))
	assert.Equal(t, "pas", f.Style)
}
