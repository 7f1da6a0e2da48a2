package geometry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonas-p/go-shp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/vacancy-map/internal/fetcher"
	"github.com/sells-group/vacancy-map/internal/model"
)

const statesDoc = `{
  "type": "FeatureCollection",
  "features": [
    {"type":"Feature","id":"06","properties":{"name":"California"},
     "geometry":{"type":"Polygon","coordinates":[[[-124,42],[-120,42],[-114,35],[-124,42]]]}},
    {"type":"Feature","id":"1","properties":{"name":"Alabama"},
     "geometry":{"type":"Polygon","coordinates":[[[-88,35],[-85,35],[-85,31],[-88,35]]]}},
    {"type":"Feature","id":"XX","properties":{"name":"Nowhere"},
     "geometry":{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}},
    {"type":"Feature","id":"02","properties":{"name":"Alaska"},"geometry":null}
  ]
}`

const countiesEsri = `{
  "features": [
    {"attributes":{"GEOID":"06037","STATE":"06","COUNTY":"037","NAME":"Los Angeles County"},
     "geometry":{"rings":[[[-118.9,34.8],[-117.6,34.8],[-117.6,33.7],[-118.9,34.8]]]}},
    {"attributes":{"STATE":"06","COUNTY":1,"BASENAME":"Alameda"},
     "geometry":{"rings":[[[-122.3,37.9],[-121.5,37.9],[-121.5,37.4],[-122.3,37.9]],[[0,0],[1,1]]]}},
    {"attributes":{"STATE":"06","COUNTY":"003","NAME":"Alpine County"},"geometry":null}
  ]
}`

func newGetter() fetcher.Getter {
	return fetcher.New(fetcher.Options{Name: "test", Timeout: 5 * time.Second, RatePerSec: 1000})
}

func newTestFetcher(t *testing.T, handler http.HandlerFunc) *Fetcher {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	g := newGetter()
	return NewFetcher(
		NewRemoteStates(g, srv.URL+"/us-states.json", StateKeys{}),
		g,
		Options{QueryURL: srv.URL + "/MapServer", Layers: Layers{County: 82, Tract: 8, Block: 10}},
	)
}

func TestFetchGeometry_StateFiltersNationalDocument(t *testing.T) {
	var hits atomic.Int32
	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/us-states.json", r.URL.Path)
		hits.Add(1)
		_, _ = w.Write([]byte(statesDoc))
	})

	fc, err := f.FetchGeometry(context.Background(), model.LevelState, "6", "")
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	feat := fc.Features[0]
	assert.Equal(t, "06", feat.ID)
	assert.Equal(t, "06", feat.Properties[model.GEOIDProperty])
	assert.Equal(t, "California", feat.Properties[model.NameProperty])
	_, ok := feat.Geometry.(*geom.Polygon)
	assert.True(t, ok)

	all, err := f.FetchGeometry(context.Background(), model.LevelState, "", "")
	require.NoError(t, err)
	require.Len(t, all.Features, 2)
	assert.Equal(t, "01", all.Features[0].ID)
	assert.Equal(t, "06", all.Features[1].ID)

	// The national document is downloaded once.
	assert.Equal(t, int32(1), hits.Load())
}

func TestFetchGeometry_StateNotInDocument(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(statesDoc))
	})
	_, err := f.FetchGeometry(context.Background(), model.LevelState, "48", "")
	assert.True(t, errors.Is(err, model.ErrGeometryUnavailable))
}

func TestRemoteStates_FailureIsNotMemoized(t *testing.T) {
	var hits atomic.Int32
	f := newTestFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(statesDoc))
	})

	_, err := f.FetchGeometry(context.Background(), model.LevelState, "06", "")
	assert.True(t, errors.Is(err, model.ErrGeometryUnavailable))

	fc, err := f.FetchGeometry(context.Background(), model.LevelState, "06", "")
	require.NoError(t, err)
	assert.Len(t, fc.Features, 1)
}

func TestDecodeStates_IDProperty(t *testing.T) {
	doc := `{"type":"FeatureCollection","features":[
		{"type":"Feature","properties":{"STATEFP":"36","NAME":"New York"},
		 "geometry":{"type":"MultiPolygon","coordinates":[[[[-79,45],[-72,45],[-72,40],[-79,45]]]]}},
		{"type":"Feature","id":48,"properties":{"STATEFP":"48","NAME":"Texas"},
		 "geometry":{"type":"Polygon","coordinates":[[[-106,36],[-94,36],[-94,26],[-106,36]]]}}
	]}`
	feats, err := DecodeStates([]byte(doc), StateKeys{IDProperty: "STATEFP", NameProperty: "NAME"})
	require.NoError(t, err)
	require.Len(t, feats, 2)
	assert.Equal(t, "36", feats[0].ID)
	assert.Equal(t, "New York", feats[0].Properties[model.NameProperty])

	// Numeric top-level ids are accepted too.
	feats, err = DecodeStates([]byte(doc), StateKeys{})
	require.NoError(t, err)
	require.Len(t, feats, 2)
	assert.Equal(t, "36", feats[0].ID)
	assert.Equal(t, "48", feats[1].ID)
}

func TestDecodeStates_Malformed(t *testing.T) {
	for _, body := range []string{`nope`, `{"type":"Feature"}`, `{"type":"FeatureCollection","features":[]}`} {
		_, err := DecodeStates([]byte(body), StateKeys{})
		assert.True(t, errors.Is(err, model.ErrGeometryUnavailable), body)
	}
}

func TestFetchGeometry_CountiesFromEsri(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/MapServer/82/query", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "STATE='06'", q.Get("where"))
		assert.Equal(t, "*", q.Get("outFields"))
		assert.Equal(t, "4326", q.Get("outSR"))
		assert.Equal(t, "json", q.Get("f"))
		_, _ = w.Write([]byte(countiesEsri))
	})

	fc, err := f.FetchGeometry(context.Background(), model.LevelCounty, "06", "037")
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)

	la := fc.Features[0]
	assert.Equal(t, "06037", la.ID)
	assert.Equal(t, "06037", la.Properties[model.GEOIDProperty])
	assert.Equal(t, "Los Angeles County", la.Properties[model.NameProperty])
	assert.Equal(t, "037", la.Properties["COUNTY"])
	poly, ok := la.Geometry.(*geom.Polygon)
	require.True(t, ok)
	assert.Equal(t, 1, poly.NumLinearRings())
	assert.Equal(t, geom.Coord{-118.9, 34.8}, poly.LinearRing(0).Coord(0))

	// GEOID synthesized from STATE + COUNTY; degenerate ring dropped.
	alameda := fc.Features[1]
	assert.Equal(t, "06001", alameda.ID)
	assert.Equal(t, "Alameda", alameda.Properties[model.NameProperty])
	assert.Equal(t, 1, alameda.Geometry.(*geom.Polygon).NumLinearRings())
}

func TestDecodeEsri_NumericGEOIDRestoresLeadingZeros(t *testing.T) {
	body := []byte(`{"features":[
		{"attributes":{"GEOID":6037,"STATE":"06","COUNTY":"037","NAME":"Los Angeles County"},
		 "geometry":{"rings":[[[0,0],[1,0],[1,1],[0,0]]]}},
		{"attributes":{"GEOID":6001,"NAME":"Alameda County"},
		 "geometry":{"rings":[[[0,0],[1,0],[1,1],[0,0]]]}}]}`)

	fc, err := DecodeEsri(body, model.LevelCounty)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "06037", fc.Features[0].ID)
	assert.Equal(t, "06037", fc.Features[0].Properties[model.GEOIDProperty])
	assert.Equal(t, "06001", fc.Features[1].ID)
}

func TestDecodeEsri_MismatchedGEOIDFallsBackToComponents(t *testing.T) {
	body := []byte(`{"features":[
		{"attributes":{"GEOID":"48201","STATE":"06","COUNTY":"037","NAME":"Los Angeles County"},
		 "geometry":{"rings":[[[0,0],[1,0],[1,1],[0,0]]]}},
		{"attributes":{"GEOID":"bogus","STATE":"06","COUNTY":"1","NAME":"Alameda County"},
		 "geometry":{"rings":[[[0,0],[1,0],[1,1],[0,0]]]}}]}`)

	fc, err := DecodeEsri(body, model.LevelCounty)
	require.NoError(t, err)
	require.Len(t, fc.Features, 2)
	assert.Equal(t, "06037", fc.Features[0].ID)
	assert.Equal(t, "06001", fc.Features[1].ID)
}

func TestFetchGeometry_TractQueryFiltersCounty(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/MapServer/8/query", r.URL.Path)
		assert.NotContains(t, r.URL.RawQuery, "+")
		assert.Equal(t, "STATE='06' AND COUNTY='037'", r.URL.Query().Get("where"))
		_, _ = w.Write([]byte(`{"features":[
			{"attributes":{"STATE":"06","COUNTY":"037","TRACT":"101110","NAME":"Census Tract 1011.10"},
			 "geometry":{"rings":[[[0,0],[1,0],[1,1],[0,0]]]}}]}`))
	})

	fc, err := f.FetchGeometry(context.Background(), model.LevelTract, "6", "37")
	require.NoError(t, err)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, "06037101110", fc.Features[0].ID)
}

func TestFetchGeometry_BlockGroupLayer(t *testing.T) {
	f := newTestFetcher(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/MapServer/10/query", r.URL.Path)
		_, _ = w.Write([]byte(`{"features":[
			{"attributes":{"STATE":"06","COUNTY":"037","TRACT":"101110","BLKGRP":"2"},
			 "geometry":{"rings":[[[0,0],[1,0],[1,1],[0,0]]]}}]}`))
	})

	fc, err := f.FetchGeometry(context.Background(), model.LevelBlock, "06", "037")
	require.NoError(t, err)
	assert.Equal(t, "060371011102", fc.Features[0].ID)
}

func TestFetchGeometry_Failures(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"no features", http.StatusOK, `{"features":[]}`},
		{"features absent", http.StatusOK, `{}`},
		{"esri error", http.StatusOK, `{"error":{"code":400,"message":"Invalid query"}}`},
		{"http failure", http.StatusInternalServerError, ``},
		{"not json", http.StatusOK, `<html/>`},
		{"only unusable", http.StatusOK, `{"features":[{"attributes":{"STATE":"06","COUNTY":"1"},"geometry":{"rings":[[[0,0]]]}}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newTestFetcher(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := f.FetchGeometry(context.Background(), model.LevelCounty, "06", "")
			require.Error(t, err)
			assert.True(t, errors.Is(err, model.ErrGeometryUnavailable), err.Error())
		})
	}
}

func TestFetchGeometry_LevelAndScopeErrors(t *testing.T) {
	f := newTestFetcher(t, func(_ http.ResponseWriter, _ *http.Request) {
		t.Fatal("no request expected")
	})

	_, err := f.FetchGeometry(context.Background(), model.GeoLevel("zip"), "06", "")
	assert.True(t, errors.Is(err, model.ErrUnsupportedLevel))

	_, err = f.FetchGeometry(context.Background(), model.LevelTract, "06", "")
	assert.True(t, errors.Is(err, model.ErrInvalidIdentifier))
}

func TestQueryURL(t *testing.T) {
	f := NewFetcher(nil, nil, Options{QueryURL: "https://tigerweb.example/MapServer/", Layers: Layers{County: 82}})
	u, err := url.Parse(f.QueryURL(model.LevelCounty, "06", ""))
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(u.Path, "/MapServer/82/query"))
	assert.Equal(t, "STATE='06'", u.Query().Get("where"))
	assert.Equal(t, "true", u.Query().Get("returnGeometry"))
}

func TestShapefileStates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "states.shp")
	w, err := shp.Create(path, shp.POLYGON)
	require.NoError(t, err)
	require.NoError(t, w.SetFields([]shp.Field{
		shp.StringField("STATEFP", 2),
		shp.StringField("NAME", 40),
	}))

	square := shp.NewPolyLine([][]shp.Point{{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 0}}})
	poly := shp.Polygon(*square)
	for i, rec := range [][2]string{{"36", "New York"}, {"6", "California"}} {
		w.Write(&poly)
		require.NoError(t, w.WriteAttribute(i, 0, rec[0]))
		require.NoError(t, w.WriteAttribute(i, 1, rec[1]))
	}
	w.Close()

	src := NewShapefileStates(path)
	feats, err := src.States(context.Background())
	require.NoError(t, err)
	require.Len(t, feats, 2)
	assert.Equal(t, "06", feats[0].ID)
	assert.Equal(t, "California", feats[0].Properties[model.NameProperty])
	mp, ok := feats[1].Geometry.(*geom.MultiPolygon)
	require.True(t, ok)
	assert.Equal(t, 1, mp.NumPolygons())

	_, err = NewShapefileStates(filepath.Join(t.TempDir(), "missing.shp")).States(context.Background())
	assert.True(t, errors.Is(err, model.ErrGeometryUnavailable))
}

func TestShapeToMultiPolygon(t *testing.T) {
	poly := &shp.Polygon{
		NumParts: 2,
		Parts:    []int32{0, 4},
		Points: []shp.Point{
			{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 1, Y: 1}, {X: 0, Y: 0},
			{X: 5, Y: 5}, {X: 6, Y: 5}, {X: 5, Y: 5},
		},
	}
	mp := shapeToMultiPolygon(poly)
	require.NotNil(t, mp)
	// The second part has only three points and is dropped.
	assert.Equal(t, 1, mp.NumPolygons())

	assert.Nil(t, shapeToMultiPolygon(&shp.Polygon{}))
	assert.Nil(t, shapeToMultiPolygon(nil))
}
