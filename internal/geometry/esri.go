package geometry

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/vacancy-map/internal/geoid"
	"github.com/sells-group/vacancy-map/internal/model"
)

// esriResponse is the ArcGIS REST query response with f=json.
type esriResponse struct {
	Features []esriFeature `json:"features"`
	Error    *esriError    `json:"error"`
}

type esriFeature struct {
	Attributes map[string]any `json:"attributes"`
	Geometry   *esriGeometry  `json:"geometry"`
}

type esriGeometry struct {
	Rings [][][]float64 `json:"rings"`
}

type esriError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

// DecodeEsri translates an Esri JSON feature set into GeoJSON: each feature's
// rings become Polygon coordinates and its attribute bag becomes properties,
// with GEOID and NAME set canonically.
func DecodeEsri(body []byte, level model.GeoLevel) (*geojson.FeatureCollection, error) {
	var resp esriResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, model.WrapError(model.ErrGeometryUnavailable, eris.Wrap(err, "geometry: unmarshal esri json"), "malformed boundary response")
	}
	if resp.Error != nil {
		return nil, model.NewError(model.ErrGeometryUnavailable, "boundary service error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	if len(resp.Features) == 0 {
		return nil, model.NewError(model.ErrGeometryUnavailable, "boundary service returned no %s features", level)
	}

	fc := &geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(resp.Features))}
	var skipped int
	for _, ef := range resp.Features {
		feat, err := esriToFeature(ef, level)
		if err != nil {
			skipped++
			zap.L().Debug("geometry: skipping feature", zap.Error(err))
			continue
		}
		fc.Features = append(fc.Features, feat)
	}
	if skipped > 0 {
		zap.L().Warn("geometry: skipped unusable features",
			zap.String("level", level.String()),
			zap.Int("skipped", skipped),
		)
	}
	if len(fc.Features) == 0 {
		return nil, model.NewError(model.ErrGeometryUnavailable, "no usable %s features in boundary response", level)
	}
	return fc, nil
}

func esriToFeature(ef esriFeature, level model.GeoLevel) (*geojson.Feature, error) {
	if ef.Geometry == nil {
		return nil, eris.New("geometry: feature has no geometry")
	}
	poly, err := ringsToPolygon(ef.Geometry.Rings)
	if err != nil {
		return nil, err
	}

	id, err := esriGEOID(ef.Attributes, level)
	if err != nil {
		return nil, err
	}

	props := make(map[string]any, len(ef.Attributes)+2)
	for k, v := range ef.Attributes {
		props[k] = v
	}
	props[model.GEOIDProperty] = id
	props[model.NameProperty] = geoid.DisplayName(firstString(ef.Attributes, "NAME", "BASENAME"))

	return &geojson.Feature{ID: id, Geometry: poly, Properties: props}, nil
}

// ringsToPolygon keeps rings with at least four positions, the minimum for
// a closed linear ring.
func ringsToPolygon(rings [][][]float64) (*geom.Polygon, error) {
	coords := make([][]geom.Coord, 0, len(rings))
	for _, ring := range rings {
		pts := make([]geom.Coord, 0, len(ring))
		for _, p := range ring {
			if len(p) < 2 {
				continue
			}
			pts = append(pts, geom.Coord{p[0], p[1]})
		}
		if len(pts) < 4 {
			continue
		}
		coords = append(coords, pts)
	}
	if len(coords) == 0 {
		return nil, eris.New("geometry: feature has no usable rings")
	}
	poly, err := geom.NewPolygon(geom.XY).SetCoords(coords)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: build polygon")
	}
	return poly, nil
}

// esriGEOID prefers the service's GEOID attribute, padded to the level's
// width, and otherwise assembles one from the component code fields. An echoed
// id that disagrees with complete component fields is discarded.
func esriGEOID(attrs map[string]any, level model.GeoLevel) (string, error) {
	built, buildErr := componentGEOID(attrs, level)
	if raw := firstString(attrs, "GEOID"); raw != "" {
		id, err := geoid.Canonical(raw, level)
		switch {
		case err != nil:
			zap.L().Debug("geometry: ignoring malformed GEOID attribute", zap.String("geoid", raw), zap.Error(err))
		case buildErr != nil || id == built:
			return id, nil
		default:
			zap.L().Debug("geometry: GEOID attribute disagrees with component codes",
				zap.String("geoid", raw),
				zap.String("components", built),
			)
		}
	}
	return built, buildErr
}

func componentGEOID(attrs map[string]any, level model.GeoLevel) (string, error) {
	state := firstString(attrs, "STATE", "STATEFP")
	county := firstString(attrs, "COUNTY", "COUNTYFP")
	switch level {
	case model.LevelCounty:
		return geoid.BuildGEOID(state, county)
	case model.LevelTract:
		return geoid.BuildGEOID(state, county, firstString(attrs, "TRACT", "TRACTCE"))
	case model.LevelBlock:
		return geoid.BuildGEOID(state, county, firstString(attrs, "TRACT", "TRACTCE"), firstString(attrs, "BLKGRP", "BLKGRPCE"))
	}
	return geoid.BuildGEOID(state)
}

func firstString(attrs map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringValue(attrs[k]); s != "" {
			return s
		}
	}
	return ""
}

// stringValue renders JSON scalars as strings. Numeric codes lose any
// leading zeros upstream; the normalizer restores them.
func stringValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return fmt.Sprintf("%.0f", t)
	case json.Number:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}
