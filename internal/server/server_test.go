package server

import (
	"bytes"
	"encoding/json"
	"io"
	"math"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cluster "github.com/georgeryan15/globalpower"
	"github.com/georgeryan15/globalpower/internal/metrics"
	"github.com/georgeryan15/globalpower/loader"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestServer(t *testing.T) (*Server, *cluster.Engine) {
	t.Helper()
	res, err := loader.Load("../../testdata/plants.geojson")
	require.NoError(t, err)
	m := metrics.New(prometheus.NewRegistry())
	e, err := cluster.NewEngine(res.Records, nil, cluster.WithObserver(m))
	require.NoError(t, err)
	return New(e, m, nil), e
}

func do(t *testing.T, s *Server, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

const worldMarkers = "/api/markers?west=-180&south=-85&east=180&north=85&zoom=1"

type markersResponse struct {
	Generation uuid.UUID `json:"generation"`
	Zoom       int       `json:"zoom"`
	Nodes      []struct {
		ID        int    `json:"id"`
		Kind      string `json:"kind"`
		NumPoints int    `json:"num_points"`
		Record    *struct {
			ID       string `json:"id"`
			Category string `json:"category"`
		} `json:"record"`
	} `json:"nodes"`
}

func TestHealthAndDomain(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, s, http.MethodGet, "/api/domain", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	d := decode[cluster.Domain](t, rec)
	assert.Len(t, d.Categories, 7)
	assert.Contains(t, d.Countries, "DEU")
}

func TestMarkers(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodGet, worldMarkers, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[markersResponse](t, rec)
	assert.Equal(t, resp.Generation.String(), rec.Header().Get("X-Generation"))
	assert.Equal(t, 1, resp.Zoom)

	total := 0
	for _, n := range resp.Nodes {
		total += n.NumPoints
		if n.Kind == "leaf" {
			require.NotNil(t, n.Record)
		}
	}
	assert.Equal(t, 100, total)
}

func TestMarkersBadRequest(t *testing.T) {
	s, _ := newTestServer(t)
	for _, target := range []string{
		"/api/markers?west=-180&south=-85&east=180&north=85",
		"/api/markers?west=x&south=-85&east=180&north=85&zoom=1",
		"/api/markers?west=-180&south=10&east=180&north=-10&zoom=1",
		"/api/markers?west=NaN&south=-85&east=180&north=85&zoom=1",
	} {
		rec := do(t, s, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestMarkersGeoJSON(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodGet, worldMarkers+"&format=geojson", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.NotEmpty(t, fc.Features)

	total := 0.0
	for _, f := range fc.Features {
		assert.Equal(t, "Point", f.Geometry.Type)
		assert.Len(t, f.Geometry.Coordinates, 2)
		total += f.Properties["point_count"].(float64)
		if f.Properties["cluster"] == false {
			assert.NotEmpty(t, f.Properties["id"])
		}
	}
	assert.Equal(t, 100.0, total)
}

func TestFilterRoundTrip(t *testing.T) {
	s, e := newTestServer(t)

	rec := do(t, s, http.MethodPut, "/api/filter", cluster.FilterInput{Categories: []cluster.Category{cluster.CategoryWind}})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[filterResponse](t, rec)
	assert.Equal(t, 12, resp.Active)
	assert.Equal(t, 100, resp.Total)
	assert.Equal(t, []cluster.Category{cluster.CategoryWind}, resp.Filter.Categories)
	assert.Equal(t, e.Index().Generation, resp.Generation)

	rec = do(t, s, http.MethodGet, "/api/filter", nil)
	assert.Equal(t, 12, decode[filterResponse](t, rec).Active)

	rec = do(t, s, http.MethodGet, worldMarkers, nil)
	total := 0
	for _, n := range decode[markersResponse](t, rec).Nodes {
		total += n.NumPoints
		if n.Record != nil {
			assert.Equal(t, "wind", n.Record.Category)
		}
	}
	assert.Equal(t, 12, total)

	rec = do(t, s, http.MethodPut, "/api/filter", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestFilterResponsesUnderConcurrentEdits(t *testing.T) {
	s, e := newTestServer(t)
	edits := []cluster.FilterInput{
		{Categories: []cluster.Category{cluster.CategoryWind}},
		{Categories: []cluster.Category{cluster.CategorySolar}},
		{Categories: []cluster.Category{cluster.CategoryHydro, cluster.CategoryGas}},
		{},
	}
	want := make([]int, len(edits))
	for i, in := range edits {
		want[i] = len(cluster.Evaluate(e.Records(), cluster.NewFilterState(e.Domain(), in)))
	}

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				k := (w + i) % len(edits)
				rec := do(t, s, http.MethodPut, "/api/filter", edits[k])
				if rec.Code != http.StatusOK {
					t.Errorf("status %d", rec.Code)
					return
				}
				var resp filterResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
					t.Error(err)
					return
				}
				if resp.Active != want[k] {
					t.Errorf("edit %d answered %d active records, want %d", k, resp.Active, want[k])
				}
			}
		}(w)
	}
	wg.Wait()
}

func TestTiles(t *testing.T) {
	s, e := newTestServer(t)

	rec := do(t, s, http.MethodGet, "/api/tiles/0/0/0", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[markersResponse](t, rec)
	assert.Equal(t, e.Index().Generation, resp.Generation)
	assert.Equal(t, resp.Generation.String(), rec.Header().Get("X-Generation"))
	total := 0
	for _, n := range resp.Nodes {
		total += n.NumPoints
	}
	assert.Equal(t, 100, total)

	rec = do(t, s, http.MethodGet, "/api/tiles/3/4/2", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	want := e.Tile(4, 2, 3)
	got := decode[markersResponse](t, rec)
	assert.Len(t, got.Nodes, len(want.Nodes))

	rec = do(t, s, http.MethodGet, "/api/tiles/2/1/1?format=geojson", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "FeatureCollection")

	for _, target := range []string{"/api/tiles/a/0/0", "/api/tiles/1/2/0", "/api/tiles/1/0/-1", "/api/tiles/40/0/0"} {
		rec = do(t, s, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}
}

func TestMarkerClick(t *testing.T) {
	s, _ := newTestServer(t)

	rec := do(t, s, http.MethodPost, "/api/markers/GP0001/click", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[struct{ Target cluster.Target }](t, rec)
	assert.InDelta(t, 5.22516, resp.Target.Center.Lon, 1e-9)
	assert.Equal(t, 6.0, resp.Target.Zoom)

	rec = do(t, s, http.MethodPost, "/api/markers/missing/click", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestClusterClick(t *testing.T) {
	s, e := newTestServer(t)
	list := e.Render(cluster.Viewport{Zoom: 1, Bounds: cluster.BBox{West: -180, South: -85, East: 180, North: 85}})

	var agg cluster.Node
	for _, n := range list.Nodes {
		if n.IsCluster() {
			agg = n
			break
		}
	}
	require.True(t, agg.IsCluster())

	current := cluster.Viewport{Center: cluster.GeoCoordinates{Lon: 1, Lat: 2}, Zoom: 1}
	type clickResponse struct {
		Target cluster.Target `json:"target"`
		Stale  bool           `json:"stale"`
	}
	body := clusterClickRequest{Generation: list.Generation, Viewport: current}

	rec := do(t, s, http.MethodPost, "/api/clusters/"+strconv.Itoa(agg.ID)+"/click", body)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[clickResponse](t, rec)
	assert.False(t, resp.Stale)
	assert.Greater(t, resp.Target.Zoom, 1.0)

	e.SetFilter(cluster.FilterInput{Categories: []cluster.Category{cluster.CategorySolar}})
	rec = do(t, s, http.MethodPost, "/api/clusters/"+strconv.Itoa(agg.ID)+"/click", body)
	require.Equal(t, http.StatusOK, rec.Code)
	resp = decode[clickResponse](t, rec)
	assert.True(t, resp.Stale)
	assert.Equal(t, cluster.Target{Center: current.Center, Zoom: current.Zoom}, resp.Target)

	rec = do(t, s, http.MethodPost, "/api/clusters/abc/click", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, s, http.MethodPost, "/api/clusters/1/click", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMetricsRoute(t *testing.T) {
	s, _ := newTestServer(t)
	do(t, s, http.MethodGet, worldMarkers, nil)

	rec := do(t, s, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "globalpower_structures_built_total 1")
	assert.Contains(t, rec.Body.String(), `globalpower_http_requests_total{route="/api/markers",status="200"} 1`)
}

func TestCORSPreflight(t *testing.T) {
	s, _ := newTestServer(t)
	rec := do(t, s, http.MethodOptions, "/api/filter", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestToFeatureCollectionSkipsUnknownNumbers(t *testing.T) {
	rec := &cluster.Record{ID: "x", Lon: 1, Lat: 2, Capacity: 5, Generation: math.NaN(), Year: math.NaN()}
	fc := toFeatureCollection(cluster.RenderList{Nodes: []cluster.Node{{ID: 0, Kind: cluster.Leaf, NumPoints: 1, Center: cluster.GeoCoordinates{Lon: 1, Lat: 2}, Record: rec}}})
	require.Len(t, fc.Features, 1)
	p := fc.Features[0].Properties
	assert.Equal(t, 5.0, p["capacity_mw"])
	assert.NotContains(t, p, "generation_gwh")
	assert.Equal(t, false, p["cluster"])

	_, err := fc.MarshalJSON()
	assert.NoError(t, err)
}
