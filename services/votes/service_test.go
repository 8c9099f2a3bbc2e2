package votes

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cummap/backend/repos/resend"
	"github.com/cummap/backend/repos/store"
)

type failingStore struct {
	*store.Memory
	failPath string
}

func (f *failingStore) Write(ctx context.Context, path string, value any) error {
	if path == f.failPath {
		return errors.New("permission denied")
	}
	return f.Memory.Write(ctx, path, value)
}

type recordingReporter struct {
	reports []resend.VoteReport
}

func (r *recordingReporter) SendVoteReport(_ context.Context, report resend.VoteReport) error {
	r.reports = append(r.reports, report)
	return nil
}

func seed(t *testing.T, st store.Store) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.Write(ctx, "participants", map[string]any{
		"u1": map[string]any{"name": "Ana", "delegation": "Lyon", "bets": map[string]any{"Football": "Lyon", "Rugby": "Paris"}},
		"u2": map[string]any{"name": "Ben", "delegation": "Paris", "bets": map[string]any{"Football": "Lyon"}},
		"u3": map[string]any{"name": "Cid", "delegation": "Nice", "bets": map[string]any{"Football": "Nice", "Tennis": ""}},
		"u4": "garbage",
	}))
	require.NoError(t, st.Write(ctx, "delegationBets", map[string]any{
		"Football": map[string]any{
			"Lyon":     map[string]any{"votes": 9, "winner": true},
			"Bordeaux": map[string]any{"votes": 4},
		},
	}))
}

func votes(t *testing.T, st store.Store) map[string]map[string]map[string]any {
	t.Helper()
	snap, err := st.Read(context.Background(), "delegationBets")
	require.NoError(t, err)
	var out map[string]map[string]map[string]any
	require.NoError(t, snap.Unmarshal(&out))
	return out
}

func TestSyncAllTallies(t *testing.T) {
	st := store.NewMemory()
	seed(t, st)
	svc := NewVotesService(st, 4, nil, nil)
	svc.now = func() time.Time { return time.UnixMilli(1000) }

	result, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Participants, "Undecodable participants are skipped")
	assert.Equal(t, 4, result.Written)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 2, result.Sports)

	got := votes(t, st)
	assert.Equal(t, 2.0, got["Football"]["Lyon"]["votes"])
	assert.Equal(t, true, got["Football"]["Lyon"]["winner"])
	assert.Equal(t, 1.0, got["Football"]["Nice"]["votes"])
	assert.Equal(t, 0.0, got["Football"]["Bordeaux"]["votes"], "Delegations without bets drop to zero")
	assert.Equal(t, 1.0, got["Rugby"]["Paris"]["votes"])
	assert.Equal(t, 1000.0, got["Rugby"]["Paris"]["updatedAt"])
	assert.NotContains(t, got, "Tennis")
}

func TestSyncAllIsIdempotent(t *testing.T) {
	st := store.NewMemory()
	seed(t, st)
	svc := NewVotesService(st, 2, nil, nil)

	_, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	first := votes(t, st)
	_, err = svc.SyncAll(context.Background())
	require.NoError(t, err)
	second := votes(t, st)

	for sport, delegations := range first {
		for delegation, entry := range delegations {
			assert.Equal(t, entry["votes"], second[sport][delegation]["votes"], "%s/%s", sport, delegation)
			assert.Equal(t, entry["winner"], second[sport][delegation]["winner"], "%s/%s", sport, delegation)
		}
	}
	assert.Equal(t, true, second["Football"]["Lyon"]["winner"])
}

func TestSyncAllIsolatesFailedWrites(t *testing.T) {
	st := &failingStore{Memory: store.NewMemory(), failPath: "delegationBets/Football/Nice"}
	seed(t, st)
	reporter := &recordingReporter{}
	svc := NewVotesService(st, 3, reporter, nil)

	result, err := svc.SyncAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, result.Written)
	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, result.Message(), "(1 failed)")

	got := votes(t, st)
	assert.Equal(t, 1.0, got["Rugby"]["Paris"]["votes"])
	assert.NotContains(t, got["Football"], "Nice")

	require.Len(t, reporter.reports, 1)
	report := reporter.reports[0]
	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Tallies, 4)
	assert.Equal(t, resend.Tally{Sport: "Football", Delegation: "Bordeaux", Votes: 0}, report.Tallies[0])
	assert.True(t, report.Tallies[1].Winner)
}

func TestSyncHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	st := store.NewMemory()
	seed(t, st)
	r := gin.New()
	NewHTTPHandler(HTTPOptions{Service: NewVotesService(st, 2, nil, nil), Router: r})

	req := httptest.NewRequest(http.MethodPost, "/syncAllDelegationVotes", strings.NewReader(""))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success":true`)
	assert.Contains(t, w.Body.String(), "Synced 4 delegation tallies")
}
