package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"radio-station/internal/storage"
)

type failingPersister struct{}

func (failingPersister) Save(context.Context, string, Snapshot) error { return errors.New("disk full") }
func (failingPersister) Load(context.Context, string) (Snapshot, bool, error) {
	return Snapshot{}, false, nil
}

func TestState_UpdateAndGet(t *testing.T) {
	ctx := context.Background()
	p := NewMemoryPersister()
	s := New("run-1", p)

	ok, err := s.Get(KeyWriterState, nil)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Update(ctx, map[string]any{
		KeyWriterState:     StateDone,
		WriterTaskKey("1"): []string{"a", "b"},
		KeyResearchTaskIDs: []string{"seg-1"},
	}))
	assert.Equal(t, int64(1), s.Version())
	assert.Equal(t, 1, p.Saves())

	var st string
	ok, err = s.Get(KeyWriterState, &st)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, StateDone, st)

	lines, ok, err := Value[[]string](s, WriterTaskKey("1"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"a", "b"}, lines)

	require.NoError(t, s.Set(ctx, KeyWriterState, "running"))
	assert.Equal(t, int64(2), s.Version())
	assert.Equal(t, []string{"writer:1:segments", "writer:state"}, s.Keys(PrefixWriter))
}

func TestState_PersistFailureKeepsMemory(t *testing.T) {
	s := New("run-1", failingPersister{})
	err := s.Update(context.Background(), map[string]any{KeyRunState: "running"})
	require.Error(t, err)
	assert.False(t, s.Has(KeyRunState))
	assert.Equal(t, int64(0), s.Version())
}

func TestState_ConcurrentDisjointWriters(t *testing.T) {
	ctx := context.Background()
	s := New("run-1", NewMemoryPersister())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, s.Set(ctx, MusicPlanKey(fmt.Sprint(i)), i))
		}(i)
	}
	wg.Wait()

	assert.Len(t, s.Keys(PrefixComposer), 20)
	assert.Equal(t, int64(20), s.Version())
}

func TestOpen_ResumesFromObjectStore(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	p := NewObjectPersister(store)

	s := New("run-9", p)
	s.SetClock(func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) })
	require.NoError(t, s.Update(ctx, map[string]any{KeyProgramStructure: map[string]string{"title": "morning"}}))

	exists, err := store.Exists(ctx, "runs/run-9/state.json")
	require.NoError(t, err)
	assert.True(t, exists)

	resumed, found, err := Open(ctx, "run-9", p)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(1), resumed.Version())
	assert.True(t, resumed.Has(KeyProgramStructure))
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC), resumed.Snapshot().UpdatedAt)

	fresh, found, err := Open(ctx, "run-unknown", p)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, fresh.Keys(""))
}
