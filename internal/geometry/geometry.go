// Package geometry fetches area boundaries and normalizes them into GeoJSON
// feature collections keyed by canonical GEOID. State outlines come from a
// national boundary document; counties, tracts and block groups come from
// an ArcGIS feature-query service whose Esri JSON is translated here, so
// nothing downstream sees either source format.
package geometry

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/vacancy-map/internal/fetcher"
	"github.com/sells-group/vacancy-map/internal/geoid"
	"github.com/sells-group/vacancy-map/internal/model"
)

// Layers maps sub-state levels to feature-service layer ids.
type Layers struct {
	County int
	Tract  int
	Block  int
}

// Options configures a Fetcher.
type Options struct {
	// QueryURL is the map service root; the layer id and "/query" are
	// appended.
	QueryURL string
	Layers   Layers
	OutSR    int
}

// Fetcher returns normalized boundaries for a level and scope.
type Fetcher struct {
	states StateSource
	getter fetcher.Getter
	opts   Options
}

// NewFetcher creates a Fetcher. states serves the state level; getter
// queries the feature service for everything finer.
func NewFetcher(states StateSource, getter fetcher.Getter, opts Options) *Fetcher {
	if opts.OutSR == 0 {
		opts.OutSR = 4326
	}
	return &Fetcher{states: states, getter: getter, opts: opts}
}

// States exposes the national boundary source, e.g. for selector options.
func (f *Fetcher) States() StateSource { return f.states }

// FetchGeometry returns the boundaries at level inside the given scope.
func (f *Fetcher) FetchGeometry(ctx context.Context, level model.GeoLevel, stateID, countyID string) (*geojson.FeatureCollection, error) {
	state, county, err := geoid.Required(level, stateID, countyID)
	if err != nil {
		return nil, err
	}

	if level == model.LevelState {
		return f.fetchStates(ctx, state)
	}
	return f.fetchSubState(ctx, level, state, county)
}

func (f *Fetcher) fetchStates(ctx context.Context, stateID string) (*geojson.FeatureCollection, error) {
	all, err := f.states.States(ctx)
	if err != nil {
		return nil, err
	}

	fc := &geojson.FeatureCollection{}
	for _, feat := range all {
		if stateID == "" || feat.ID == stateID {
			fc.Features = append(fc.Features, feat)
		}
	}
	if len(fc.Features) == 0 {
		return nil, model.NewError(model.ErrGeometryUnavailable, "no state boundary matches %q", stateID)
	}
	return fc, nil
}

func (f *Fetcher) fetchSubState(ctx context.Context, level model.GeoLevel, state, county string) (*geojson.FeatureCollection, error) {
	u := f.QueryURL(level, state, county)
	body, err := f.getter.Get(ctx, u)
	if err != nil {
		return nil, model.WrapError(model.ErrGeometryUnavailable, err, "boundary query for %s", level)
	}

	fc, err := DecodeEsri(body, level)
	if err != nil {
		return nil, err
	}
	zap.L().Debug("geometry: fetched boundaries",
		zap.String("component", "geometry"),
		zap.String("level", level.String()),
		zap.String("state", state),
		zap.String("county", county),
		zap.Int("features", len(fc.Features)),
	)
	return fc, nil
}

// QueryURL builds the feature-service request for a sub-state level. County
// boundaries are filtered by state; tracts and block groups by state and
// county.
func (f *Fetcher) QueryURL(level model.GeoLevel, state, county string) string {
	where := fmt.Sprintf("STATE='%s'", state)
	if level.NeedsCounty() {
		where += fmt.Sprintf(" AND COUNTY='%s'", county)
	}

	q := url.Values{}
	q.Set("where", where)
	q.Set("outFields", "*")
	q.Set("returnGeometry", "true")
	q.Set("outSR", strconv.Itoa(f.opts.OutSR))
	q.Set("f", "json")

	base := strings.TrimRight(f.opts.QueryURL, "/")
	return fmt.Sprintf("%s/%d/query?%s", base, f.layerID(level), strings.ReplaceAll(q.Encode(), "+", "%20"))
}

func (f *Fetcher) layerID(level model.GeoLevel) int {
	switch level {
	case model.LevelCounty:
		return f.opts.Layers.County
	case model.LevelTract:
		return f.opts.Layers.Tract
	case model.LevelBlock:
		return f.opts.Layers.Block
	}
	return 0
}
