package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/iterator"
)

type snapshotFeed struct {
	results chan func() (Snapshot, error)
}

func newSnapshotFeed() *snapshotFeed {
	return &snapshotFeed{results: make(chan func() (Snapshot, error), 8)}
}

func (f *snapshotFeed) next() (Snapshot, error) {
	return (<-f.results)()
}

func (f *snapshotFeed) value(t *testing.T, v any) {
	snap, err := NewSnapshot("venues", v)
	require.NoError(t, err)
	f.results <- func() (Snapshot, error) { return snap, nil }
}

func (f *snapshotFeed) fail(err error) {
	f.results <- func() (Snapshot, error) { return Snapshot{}, err }
}

type received struct {
	mu    sync.Mutex
	snaps []Snapshot
}

func (r *received) add(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, s)
}

func (r *received) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func TestFirestoreListenDeliversFirstSnapshotBeforeReturning(t *testing.T) {
	s := NewFirestore(nil, nil)
	feed := newSnapshotFeed()
	feed.value(t, map[string]any{"a": map[string]any{"name": "Stade"}})

	var got received
	require.NoError(t, s.listen(context.Background(), "venues", feed.next, got.add))
	require.Equal(t, 1, got.len())

	var first map[string]any
	require.NoError(t, got.snaps[0].Unmarshal(&first))
	assert.Contains(t, first, "a")

	feed.fail(errSkipSnapshot)
	feed.value(t, map[string]any{})
	assert.Eventually(t, func() bool { return got.len() == 2 }, time.Second, 5*time.Millisecond)

	feed.fail(iterator.Done)
	feed.value(t, map[string]any{"late": true})
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, got.len())
}

func TestFirestoreListenFailsOnFirstSnapshot(t *testing.T) {
	s := NewFirestore(nil, nil)
	feed := newSnapshotFeed()
	feed.fail(errors.New("permission denied"))

	var got received
	err := s.listen(context.Background(), "venues", feed.next, got.add)
	require.Error(t, err)
	assert.Equal(t, 0, got.len())
}
