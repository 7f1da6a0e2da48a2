// Package pipeline runs one fetch cycle: statistics and boundaries are
// fetched concurrently and joined into a layer.
package pipeline

import (
	"context"
	"time"

	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/vacancy-map/internal/choropleth"
	"github.com/sells-group/vacancy-map/internal/model"
	"github.com/sells-group/vacancy-map/internal/viewmodel"
)

// AttributeSource fetches area statistics.
type AttributeSource interface {
	FetchAttributes(ctx context.Context, level model.GeoLevel, stateID, countyID string) ([]model.AreaStatistic, error)
}

// GeometrySource fetches area boundaries.
type GeometrySource interface {
	FetchGeometry(ctx context.Context, level model.GeoLevel, stateID, countyID string) (*geojson.FeatureCollection, error)
}

// Loader produces the layer for a selection.
type Loader interface {
	Load(ctx context.Context, sel model.Selection) (*viewmodel.Layer, error)
}

// Pipeline is the production Loader.
type Pipeline struct {
	attrs AttributeSource
	geo   GeometrySource
	topN  int
	ramp  *choropleth.Ramp
}

// New creates a Pipeline. A nil ramp uses the default.
func New(attrs AttributeSource, geo GeometrySource, topN int, ramp *choropleth.Ramp) *Pipeline {
	if ramp == nil {
		ramp = choropleth.DefaultRamp()
	}
	return &Pipeline{attrs: attrs, geo: geo, topN: topN, ramp: ramp}
}

// Ramp returns the ramp layers are colored with.
func (p *Pipeline) Ramp() *choropleth.Ramp { return p.ramp }

// Load fetches both halves of the selection's data concurrently. The first
// failure cancels the other fetch and is returned unchanged.
func (p *Pipeline) Load(ctx context.Context, sel model.Selection) (*viewmodel.Layer, error) {
	log := zap.L().With(
		zap.String("component", "pipeline"),
		zap.String("level", sel.Level.String()),
		zap.String("state", sel.StateID),
		zap.String("county", sel.CountyID),
	)
	start := time.Now()

	var (
		stats []model.AreaStatistic
		fc    *geojson.FeatureCollection
	)

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := p.attrs.FetchAttributes(gCtx, sel.Level, sel.StateID, sel.CountyID)
		if err != nil {
			return err
		}
		stats = s
		return nil
	})
	g.Go(func() error {
		f, err := p.geo.FetchGeometry(gCtx, sel.Level, sel.StateID, sel.CountyID)
		if err != nil {
			return err
		}
		fc = f
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Warn("pipeline: fetch failed",
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Error(err),
		)
		return nil, err
	}

	layer := viewmodel.Join(fc, stats, viewmodel.Options{
		TopN:       p.topN,
		FocusGEOID: sel.FocusGEOID(),
		Ramp:       p.ramp,
	})
	log.Info("pipeline: layer ready",
		zap.Int("features", len(layer.Features.Features)),
		zap.Int("stats", len(layer.Stats)),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return layer, nil
}
