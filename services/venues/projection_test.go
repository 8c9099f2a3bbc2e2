package venues

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cummap/backend/repos/store"
)

func startProjection(t *testing.T, st store.Store) *Projection {
	t.Helper()
	p := NewProjection(st, time.UTC, nil)
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(p.Stop)
	return p
}

func TestProjectionNormalizesLegacyDocuments(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()

	require.NoError(t, st.Write(ctx, "venues/sparse", map[string]any{
		"name":      "Gymnase",
		"sport":     "Basket",
		"latitude":  "48.1",
		"longitude": 2.2,
		"matches": []any{
			nil,
			map[string]any{"id": "b", "teams": "A - B", "startTime": "2026-04-16T09:00"},
			map[string]any{"id": "bad", "teams": "C - D", "startTime": "soon"},
		},
	}))
	require.NoError(t, st.Write(ctx, "venues/keyed", map[string]any{
		"name":        "Piscine",
		"coordinates": []any{45.5, 4.8},
		"matches": map[string]any{
			"10": map[string]any{"id": "late", "teams": "E - F", "startTime": "2026-04-16T18:00"},
			"2":  map[string]any{"id": "early", "teams": "G - H", "startTime": "2026-04-16T08:00", "endTime": "2026-04-16T09:30"},
		},
	}))
	require.NoError(t, st.Write(ctx, "venues/located", map[string]any{
		"name":     "Arena",
		"location": map[string]any{"lat": 43.3, "lng": 5.4},
	}))
	require.NoError(t, st.Write(ctx, "venues/junk", "not a venue"))

	p := startProjection(t, st)
	venues := p.Venues()
	require.Len(t, venues, 3)
	assert.Equal(t, []string{"Arena", "Gymnase", "Piscine"}, []string{venues[0].Name, venues[1].Name, venues[2].Name})

	gym, ok := p.Venue("sparse")
	require.True(t, ok)
	assert.Equal(t, 48.1, gym.Latitude)
	assert.Equal(t, 2.2, gym.Longitude)
	require.Len(t, gym.Matches, 1, "Holes and unparsable starts are skipped")
	assert.Equal(t, "b", gym.Matches[0].ID)
	assert.Equal(t, "Basket", gym.Matches[0].Sport)
	assert.Equal(t, "sparse", gym.Matches[0].VenueID)

	pool, _ := p.Venue("keyed")
	assert.Equal(t, 45.5, pool.Latitude)
	assert.Equal(t, 4.8, pool.Longitude)
	require.Len(t, pool.Matches, 2)
	assert.Equal(t, "early", pool.Matches[0].ID, "Index keys sort numerically")
	require.NotNil(t, pool.Matches[0].EndTime)

	arena, _ := p.Venue("located")
	assert.Equal(t, 43.3, arena.Latitude)
	assert.Empty(t, arena.Matches)

	_, ok = p.Venue("junk")
	assert.False(t, ok)
}

func TestProjectionFollowsEdits(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	p := startProjection(t, st)
	assert.Empty(t, p.Venues())

	updates, stop := p.Listen()
	defer stop()

	v, err := st.Push(ctx, venuesPath, VenueDoc{Name: "Stade", Sport: "Football"})
	require.NoError(t, err)

	select {
	case <-updates:
	case <-time.After(time.Second):
		t.Fatal("no update after write")
	}
	got, ok := p.Venue(v)
	require.True(t, ok)
	assert.Equal(t, "Stade", got.Name)

	require.NoError(t, st.Write(ctx, venuePath(v), nil))
	_, ok = p.Venue(v)
	assert.False(t, ok)
}

func TestProjectionMatchesOn(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.Write(ctx, "venues/a", VenueDoc{Name: "A", Sport: "Football", Matches: []MatchDoc{
		{ID: "1", Teams: "x", StartTime: "2026-04-16T10:00"},
		{ID: "2", Teams: "y", StartTime: "2026-04-17T10:00"},
	}}))
	require.NoError(t, st.Write(ctx, "venues/b", VenueDoc{Name: "B", Sport: "Rugby", Matches: []MatchDoc{
		{ID: "3", Teams: "z", StartTime: "2026-04-16T12:00"},
	}}))
	p := startProjection(t, st)

	day := time.Date(2026, 4, 16, 0, 0, 0, 0, time.UTC)
	assert.Len(t, p.MatchesOn(day, ""), 2)

	football := p.MatchesOn(day, "football")
	require.Len(t, football, 1)
	assert.Equal(t, "1", football[0].ID)

	assert.Empty(t, p.MatchesOn(day, "Tennis"))
	assert.Len(t, p.Matches(), 3)
}

func TestListenStopClosesChannel(t *testing.T) {
	p := startProjection(t, store.NewMemory())
	updates, stop := p.Listen()
	stop()
	stop()
	_, open := <-updates
	assert.False(t, open)
}
