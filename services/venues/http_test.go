package venues

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cummap/backend/pkg/history"
	"github.com/cummap/backend/repos/store"
)

func newTestRouter(t *testing.T) (*gin.Engine, *store.Memory) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	st := store.NewMemory()
	svc := NewVenuesService(st, history.New(), time.UTC, nil)
	p := startProjection(t, st)

	r := gin.New()
	NewAdminHTTPHandler(AdminHTTPOptions{Service: svc, Router: r.Group("/admin/v1")})
	NewPublicHTTPHandler(PublicHTTPOptions{Projection: p, Router: r.Group("/public/v1")})
	return r, st
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAdminVenueLifecycle(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodPost, "/admin/v1/venues", `{"name":"Stade","latitude":48.8,"longitude":2.3,"sport":"Football"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Venue Venue `json:"venue"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	id := created.Venue.ID
	require.NotEmpty(t, id)

	w = do(r, http.MethodPost, "/admin/v1/venues/"+id+"/matches", `{"teams":"A - B","startTime":"2026-04-16T10:00"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = do(r, http.MethodGet, "/public/v1/venues/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"teams":"A - B"`)

	w = do(r, http.MethodPost, "/admin/v1/history/undo", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"applied":true`)

	w = do(r, http.MethodGet, "/public/v1/venues/"+id, "")
	assert.NotContains(t, w.Body.String(), `"teams":"A - B"`)

	w = do(r, http.MethodGet, "/admin/v1/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	var state struct {
		History history.State `json:"history"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &state))
	assert.Equal(t, 0, state.History.Cursor)
	assert.True(t, state.History.CanRedo)

	w = do(r, http.MethodDelete, "/admin/v1/venues/"+id, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(r, http.MethodGet, "/public/v1/venues/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAdminErrorMapping(t *testing.T) {
	r, st := newTestRouter(t)

	w := do(r, http.MethodPost, "/admin/v1/venues", `{"latitude":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/admin/v1/venues", `{"name":"   "}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPut, "/admin/v1/venues/missing", `{"name":"X"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodDelete, "/admin/v1/venues/missing/matches/m1", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPost, "/admin/v1/history/redo", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"applied":false`)

	w = do(r, http.MethodPost, "/admin/v1/venues", `{"name":"Stade"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created struct {
		Venue Venue `json:"venue"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	w = do(r, http.MethodPost, "/admin/v1/venues/"+created.Venue.ID+"/matches", `{"teams":"A - B","startTime":"2026-04-16T10:00"}`)
	require.Equal(t, http.StatusCreated, w.Code)

	require.NoError(t, st.Write(context.Background(), venuePath(created.Venue.ID), nil))
	w = do(r, http.MethodPost, "/admin/v1/history/undo", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), `"cursor":1`)
}

func TestPublicList(t *testing.T) {
	r, st := newTestRouter(t)
	require.NoError(t, st.Write(context.Background(), "venues/v1", VenueDoc{Name: "Stade"}))

	w := do(r, http.MethodGet, "/public/v1/venues", "")
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Venues []Venue `json:"venues"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Venues, 1)
	assert.Equal(t, "v1", body.Venues[0].ID)
}
