package geometry

import (
	"context"
	"sort"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/vacancy-map/internal/geoid"
	"github.com/sells-group/vacancy-map/internal/model"
)

// ShapefileStates reads state outlines from a local TIGER/Line or
// cartographic boundary shapefile (e.g. cb_2022_us_state_20m.shp).
type ShapefileStates struct {
	path string
	once loadOnce
}

// NewShapefileStates creates a StateSource for the shapefile at path.
func NewShapefileStates(path string) *ShapefileStates {
	return &ShapefileStates{path: path}
}

// States implements StateSource.
func (s *ShapefileStates) States(ctx context.Context) ([]*geojson.Feature, error) {
	return s.once.get(ctx, func(_ context.Context) ([]*geojson.Feature, error) {
		feats, err := ReadStateShapefile(s.path)
		if err != nil {
			return nil, model.WrapError(model.ErrGeometryUnavailable, err, "state shapefile")
		}
		return feats, nil
	})
}

// ReadStateShapefile converts every polygon record with a STATEFP (or
// GEOID) attribute into a MultiPolygon feature.
func ReadStateShapefile(path string) ([]*geojson.Feature, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "geometry: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fieldIdx := make(map[string]int)
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		fieldIdx[strings.ToUpper(name)] = i
	}
	attr := func(names ...string) string {
		for _, n := range names {
			if idx, ok := fieldIdx[n]; ok {
				if v := strings.TrimSpace(strings.TrimRight(reader.Attribute(idx), "\x00")); v != "" {
					return v
				}
			}
		}
		return ""
	}

	var feats []*geojson.Feature
	var skipped int
	for reader.Next() {
		_, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok {
			skipped++
			continue
		}
		id, err := geoid.NormalizeState(attr("STATEFP", "GEOID", "STATE"))
		if err != nil {
			skipped++
			continue
		}
		mp := shapeToMultiPolygon(poly)
		if mp == nil {
			skipped++
			continue
		}
		feats = append(feats, &geojson.Feature{
			ID:       id,
			Geometry: mp,
			Properties: map[string]any{
				model.GEOIDProperty: id,
				model.NameProperty:  attr("NAME"),
			},
		})
	}

	if skipped > 0 {
		zap.L().Debug("geometry: skipped shapefile records", zap.String("path", path), zap.Int("skipped", skipped))
	}
	if len(feats) == 0 {
		return nil, eris.Errorf("geometry: no state polygons in %s", path)
	}
	sort.SliceStable(feats, func(i, j int) bool { return feats[i].ID < feats[j].ID })
	return feats, nil
}

// shapeToMultiPolygon turns each shapefile part into one polygon.
func shapeToMultiPolygon(p *shp.Polygon) *geom.MultiPolygon {
	if p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	mp := geom.NewMultiPolygon(geom.XY)
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if end-start < 4 {
			continue
		}

		flat := make([]float64, 0, (end-start)*2)
		for j := start; j < end; j++ {
			flat = append(flat, p.Points[j].X, p.Points[j].Y)
		}
		poly := geom.NewPolygon(geom.XY)
		if err := poly.Push(geom.NewLinearRingFlat(geom.XY, flat)); err != nil {
			continue
		}
		if err := mp.Push(poly); err != nil {
			continue
		}
	}
	if mp.NumPolygons() == 0 {
		return nil
	}
	return mp
}
