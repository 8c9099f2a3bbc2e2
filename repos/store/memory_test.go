package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryReadWrite(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Write(ctx, "venues/a", map[string]any{"name": "Stade", "matches": []any{}}))

	snap, err := m.Read(ctx, "venues/a")
	require.NoError(t, err)
	require.True(t, snap.Exists())

	var doc map[string]any
	require.NoError(t, snap.Unmarshal(&doc))
	assert.Equal(t, "Stade", doc["name"])
	_, hasMatches := doc["matches"]
	assert.False(t, hasMatches, "Empty arrays are not stored")

	snap, err = m.Read(ctx, "venues/a/name")
	require.NoError(t, err)
	assert.Equal(t, "Stade", snap.Value())
}

func TestMemoryDeletePrunesParents(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	require.NoError(t, m.Write(ctx, "delegationBets/football/France", map[string]any{"votes": 2}))
	require.NoError(t, m.Write(ctx, "delegationBets/football/France", nil))

	snap, err := m.Read(ctx, "delegationBets")
	require.NoError(t, err)
	assert.False(t, snap.Exists())
}

func TestMemoryPush(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	first, err := m.Push(ctx, "venues", map[string]any{"name": "A"})
	require.NoError(t, err)
	second, err := m.Push(ctx, "venues", map[string]any{"name": "B"})
	require.NoError(t, err)
	assert.NotEqual(t, first, second)

	snap, err := m.Read(ctx, "venues")
	require.NoError(t, err)
	var all map[string]map[string]any
	require.NoError(t, snap.Unmarshal(&all))
	assert.Len(t, all, 2)
	assert.Equal(t, "B", all[second]["name"])
}

func TestMemorySubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewMemory()
	require.NoError(t, m.Write(ctx, "venues/a", map[string]any{"name": "A"}))

	var seen []Snapshot
	unsubscribe, err := m.Subscribe(ctx, "venues", func(s Snapshot) { seen = append(seen, s) })
	require.NoError(t, err)
	require.Len(t, seen, 1, "Subscribe fires once with the current value")

	require.NoError(t, m.Write(ctx, "venues/b", map[string]any{"name": "B"}))
	require.NoError(t, m.Write(ctx, "participants/u1", map[string]any{"name": "x"}))
	require.NoError(t, m.Write(ctx, "", nil))
	assert.Len(t, seen, 3, "Unrelated paths do not notify, ancestors do")
	assert.False(t, seen[2].Exists())

	unsubscribe()
	require.NoError(t, m.Write(ctx, "venues/c", map[string]any{"name": "C"}))
	assert.Len(t, seen, 3)
}

func TestMemorySubscribeStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	m := NewMemory()

	calls := 0
	_, err := m.Subscribe(ctx, "venues", func(Snapshot) { calls++ })
	require.NoError(t, err)
	cancel()

	assert.Eventually(t, func() bool {
		m.mu.RLock()
		defer m.mu.RUnlock()
		return len(m.subs) == 0
	}, time.Second, time.Millisecond)
	require.NoError(t, m.Write(context.Background(), "venues/a", map[string]any{"name": "A"}))
	assert.Equal(t, 1, calls)
}

func TestMemoryReentrantWrite(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	var echoes int
	_, err := m.Subscribe(ctx, "counter", func(s Snapshot) {
		echoes++
		var n int
		_ = s.Unmarshal(&n)
		if n > 0 && n < 3 {
			require.NoError(t, m.Write(ctx, "counter", n+1))
		}
	})
	require.NoError(t, err)
	require.NoError(t, m.Write(ctx, "counter", 1))

	snap, err := m.Read(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, float64(3), snap.Value())
	assert.Equal(t, 4, echoes)
}

func TestSplitPath(t *testing.T) {
	assert.Equal(t, []string{"venues", "a"}, SplitPath("/venues//a/"))
	assert.Empty(t, SplitPath(""))
	assert.Equal(t, "venues/a/matches", JoinPath("venues/", "/a", "matches"))
}
