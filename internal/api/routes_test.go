package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joeblew999/plat-trees/internal/db"
	"github.com/joeblew999/plat-trees/internal/metrics"
	"github.com/joeblew999/plat-trees/internal/service"
)

func newTestAPI(t *testing.T, withDB bool) humatest.TestAPI {
	t.Helper()

	trees, err := service.NewTreeService(t.TempDir(), nil, nil)
	require.NoError(t, err)

	svc := &Services{Tree: trees}
	if withDB {
		conn, err := db.Open(db.Config{})
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })
		_, err = db.SyncTrees(t.Context(), conn, trees.List())
		require.NoError(t, err)
		svc.DB = conn
	}

	config := huma.DefaultConfig("plat-trees API", "1.0.0")
	config.CreateHooks = []func(huma.Config) huma.Config{}
	config.Transformers = append(config.Transformers, LinkTransformer())
	_, api := humatest.New(t, config)
	RegisterRoutes(api, svc, "testdata")
	return api
}

func decode[T any](t *testing.T, body []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(body, &v))
	return v
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t, false)

	resp := api.Get("/health")
	require.Equal(t, http.StatusOK, resp.Code)

	body := decode[HealthBody](t, resp.Body.Bytes())
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 5, body.Trees)
	assert.Contains(t, resp.Header().Values("Link"), `</api/v1/trees>; rel="trees"`)
}

func TestInfo(t *testing.T) {
	api := newTestAPI(t, true)

	resp := api.Get("/api/v1/info")
	require.Equal(t, http.StatusOK, resp.Code)

	body := decode[InfoBody](t, resp.Body.Bytes())
	assert.Equal(t, "plat-trees", body.Name)
	assert.True(t, body.DB)
	assert.Contains(t, body.Features, "duckdb")
}

func TestListTrees(t *testing.T) {
	api := newTestAPI(t, false)

	resp := api.Get("/api/v1/trees?owner=USER1@example.com&limit=2")
	require.Equal(t, http.StatusOK, resp.Code)

	var page struct {
		Total int            `json:"total"`
		Limit int            `json:"limit"`
		Data  []service.Tree `json:"data"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &page))
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Limit)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "1", page.Data[0].ID)

	links := resp.Header().Values("Link")
	assert.Contains(t, links, `</api/v1/trees?limit=2&offset=2&owner=USER1%40example.com>; rel="next"`)
}

func TestGetTree(t *testing.T) {
	api := newTestAPI(t, false)

	resp := api.Get("/api/v1/trees/4")
	require.Equal(t, http.StatusOK, resp.Code)
	tree := decode[service.Tree](t, resp.Body.Bytes())
	assert.Equal(t, "Demo User", tree.Owner)
	assert.Contains(t, resp.Header().Values("Link"), `</api/v1/trees/4>; rel="self"`)

	resp = api.Get("/api/v1/trees/404")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestListOwners(t *testing.T) {
	api := newTestAPI(t, false)

	resp := api.Get("/api/v1/owners")
	require.Equal(t, http.StatusOK, resp.Code)

	owners := decode[[]service.Owner](t, resp.Body.Bytes())
	require.Len(t, owners, 2)
	assert.Equal(t, service.Owner{Email: "user1@example.com", Name: "John Doe", Trees: 3}, owners[0])
}

func TestOwnerFocus(t *testing.T) {
	api := newTestAPI(t, false)

	resp := api.Get("/api/v1/owners/user1@example.com/focus")
	require.Equal(t, http.StatusOK, resp.Code)

	body := decode[OwnerFocusBody](t, resp.Body.Bytes())
	assert.True(t, body.Found)
	assert.Equal(t, "John Doe", body.Owner.Name)
	require.NotNil(t, body.Cell)
	assert.Equal(t, [2]int64{1487, -118}, body.Cell.Key)
	assert.Equal(t, 2, body.Cell.Count)
	assert.InDelta(t, 29.7429, body.Focus.Lon(), 1e-9)
	assert.InDelta(t, -2.34965, body.Focus.Lat(), 1e-9)
	require.NotNil(t, body.Camera)
	assert.Equal(t, 14.0, body.Camera.Zoom)

	resp = api.Get("/api/v1/owners/nobody@example.com/focus")
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestPostFocus(t *testing.T) {
	api := newTestAPI(t, false)

	resp := api.Post("/api/v1/focus", map[string]any{
		"points": [][2]float64{
			{29.741, -2.351}, {29.745, -2.355}, {29.748, -2.352},
			{29.005, -1.005}, {29.006, -1.006},
		},
	})
	require.Equal(t, http.StatusOK, resp.Code)
	body := decode[FocusBody](t, resp.Body.Bytes())
	assert.True(t, body.Found)
	assert.InDelta(t, 29.744666666, body.Focus.Lon(), 1e-6)
	assert.InDelta(t, -2.352666666, body.Focus.Lat(), 1e-6)

	resp = api.Post("/api/v1/focus", map[string]any{"points": [][2]float64{}})
	require.Equal(t, http.StatusOK, resp.Code)
	body = decode[FocusBody](t, resp.Body.Bytes())
	assert.False(t, body.Found)
	assert.Equal(t, 0.0, body.Focus.Lon())
	assert.Nil(t, body.Cell)
}

func TestPostVisible(t *testing.T) {
	api := newTestAPI(t, false)

	resp := api.Post("/api/v1/visible", map[string]any{
		"owner":  "user1@example.com",
		"bounds": map[string]any{"sw": []float64{29.73, -2.36}, "ne": []float64{29.76, -2.33}},
		"center": []float64{29.7406, -2.3505},
	})
	require.Equal(t, http.StatusOK, resp.Code)

	body := decode[VisibleBody](t, resp.Body.Bytes())
	ids := make([]string, len(body.Records))
	for i, r := range body.Records {
		ids[i] = r.ID
		require.NotNil(t, r.Tree)
	}
	assert.Equal(t, []string{"1", "3", "2"}, ids)
	assert.Equal(t, 0.0, body.Records[0].Meters)
	assert.Empty(t, body.Skipped)
}

func TestPostVisible_CallerPoints(t *testing.T) {
	api := newTestAPI(t, false)
	visible := metrics.FocusComputations.WithLabelValues("visible")
	before := testutil.ToFloat64(visible)

	resp := api.Post("/api/v1/visible", map[string]any{
		"bounds": map[string]any{"sw": []float64{-1, -1}, "ne": []float64{1, 1}},
		"points": []map[string]any{
			{"id": "far", "point": []float64{0.9, 0.9}},
			{"id": "out", "point": []float64{5, 5}},
			{"id": "near", "point": []float64{0.1, 0}},
		},
	})
	require.Equal(t, http.StatusOK, resp.Code)

	body := decode[VisibleBody](t, resp.Body.Bytes())
	assert.Equal(t, 0.0, body.Center.Lon())
	require.Len(t, body.Records, 2)
	assert.Equal(t, "near", body.Records[0].ID)
	assert.Equal(t, "far", body.Records[1].ID)
	assert.Nil(t, body.Records[0].Tree)
	assert.Equal(t, before+1, testutil.ToFloat64(visible))
}

func TestPostNavigate(t *testing.T) {
	api := newTestAPI(t, false)

	request := func(current string, direction int) map[string]any {
		return map[string]any{
			"owner":     "user1@example.com",
			"current":   current,
			"direction": direction,
			"bounds":    map[string]any{"sw": []float64{29.73, -2.36}, "ne": []float64{29.76, -2.33}},
			"center":    []float64{29.7406, -2.3505},
		}
	}

	resp := api.Post("/api/v1/navigate", request("1", 1))
	require.Equal(t, http.StatusOK, resp.Code)
	body := decode[NavigateBody](t, resp.Body.Bytes())
	assert.Equal(t, "3", body.Tree.ID)
	assert.Equal(t, 1, body.Index)
	assert.Equal(t, 3, body.Total)
	assert.Equal(t, 16.3, body.Camera.Zoom)
	assert.Equal(t, *body.Tree.Location, body.Camera.Center)

	resp = api.Post("/api/v1/navigate", request("1", -1))
	require.Equal(t, http.StatusOK, resp.Code)
	body = decode[NavigateBody](t, resp.Body.Bytes())
	assert.Equal(t, "2", body.Tree.ID)

	resp = api.Post("/api/v1/navigate", request("1", 2))
	assert.Equal(t, http.StatusUnprocessableEntity, resp.Code)

	resp = api.Post("/api/v1/navigate", map[string]any{
		"direction": 1,
		"bounds":    map[string]any{"sw": []float64{0, 0}, "ne": []float64{1, 1}},
	})
	assert.Equal(t, http.StatusNotFound, resp.Code)
}

func TestReloadTrees(t *testing.T) {
	api := newTestAPI(t, true)

	resp := api.Post("/api/v1/trees/reload")
	require.Equal(t, http.StatusOK, resp.Code)

	body := decode[ReloadBody](t, resp.Body.Bytes())
	assert.Equal(t, service.EmbeddedSource, body.Source)
	assert.Equal(t, 5, body.Trees)
	assert.Equal(t, 5, body.Mirrored)
}

func TestDB(t *testing.T) {
	api := newTestAPI(t, true)

	resp := api.Get("/api/v1/tables")
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, decode[TablesBody](t, resp.Body.Bytes()).Tables, "trees")

	resp = api.Post("/api/v1/query", map[string]any{
		"query": "SELECT id FROM trees WHERE owner_email = 'demo@example.com' ORDER BY id",
	})
	require.Equal(t, http.StatusOK, resp.Code)
	q := decode[QueryBody](t, resp.Body.Bytes())
	assert.Equal(t, 2, q.Count)
	assert.Equal(t, []string{"id"}, q.Columns)

	resp = api.Post("/api/v1/query", map[string]any{"query": "SELECT * FROM nope"})
	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestDB_Unavailable(t *testing.T) {
	api := newTestAPI(t, false)

	resp := api.Get("/api/v1/tables")
	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}
