package viewmodel

import (
	"fmt"
	"sort"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
)

// mergeDuplicates collapses features sharing a GEOID into one feature.
// Boundary services split some multi-part areas across features.
func mergeDuplicates(features []*geojson.Feature) []*geojson.Feature {
	groups := make(map[string][]*geojson.Feature, len(features))
	order := make([]string, 0, len(features))
	for _, f := range features {
		if f == nil {
			continue
		}
		id := FeatureGEOID(f)
		if _, seen := groups[id]; !seen {
			order = append(order, id)
		}
		groups[id] = append(groups[id], f)
	}

	out := make([]*geojson.Feature, 0, len(order))
	for _, id := range order {
		if g := groups[id]; len(g) == 1 {
			out = append(out, g[0])
		} else {
			out = append(out, mergeGroup(id, g))
		}
	}
	return out
}

// mergeGroup orders the parts by geometry, then properties, so the merged
// feature is the same whatever order the parts arrived in. Earlier parts win
// property conflicts. Polygonal parts become one MultiPolygon; anything else
// keeps the first part's geometry.
func mergeGroup(id string, group []*geojson.Feature) *geojson.Feature {
	parts := make([]*geojson.Feature, len(group))
	copy(parts, group)
	sort.SliceStable(parts, func(i, j int) bool { return featureLess(parts[i], parts[j]) })

	props := make(map[string]any)
	for i := len(parts) - 1; i >= 0; i-- {
		for k, v := range parts[i].Properties {
			props[k] = v
		}
	}

	merged := &geojson.Feature{ID: id, Geometry: parts[0].Geometry, Properties: props}
	if mp, err := multiPolygon(parts); err == nil {
		merged.Geometry = mp
	}
	return merged
}

func multiPolygon(parts []*geojson.Feature) (*geom.MultiPolygon, error) {
	if parts[0].Geometry == nil {
		return nil, eris.New("viewmodel: part has no geometry")
	}
	mp := geom.NewMultiPolygon(parts[0].Geometry.Layout())
	for _, p := range parts {
		switch g := p.Geometry.(type) {
		case *geom.Polygon:
			if err := mp.Push(g); err != nil {
				return nil, eris.Wrap(err, "viewmodel: merge polygon")
			}
		case *geom.MultiPolygon:
			for i := 0; i < g.NumPolygons(); i++ {
				if err := mp.Push(g.Polygon(i)); err != nil {
					return nil, eris.Wrap(err, "viewmodel: merge polygon")
				}
			}
		default:
			return nil, eris.Errorf("viewmodel: cannot merge %T", p.Geometry)
		}
	}
	return mp, nil
}

func featureLess(a, b *geojson.Feature) bool {
	if c := compareGeometry(a.Geometry, b.Geometry); c != 0 {
		return c < 0
	}
	// fmt prints maps with sorted keys.
	return fmt.Sprint(a.Properties) < fmt.Sprint(b.Properties)
}

// compareGeometry orders by bounds, then by raw coordinates. Nil sorts last.
func compareGeometry(a, b geom.T) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	}
	ab, bb := a.Bounds(), b.Bounds()
	keys := []float64{ab.Min(0), bb.Min(0), ab.Min(1), bb.Min(1), ab.Max(0), bb.Max(0), ab.Max(1), bb.Max(1)}
	for i := 0; i < len(keys); i += 2 {
		if c := compareFloat(keys[i], keys[i+1]); c != 0 {
			return c
		}
	}
	af, bf := a.FlatCoords(), b.FlatCoords()
	for i := 0; i < len(af) && i < len(bf); i++ {
		if c := compareFloat(af[i], bf[i]); c != 0 {
			return c
		}
	}
	return len(af) - len(bf)
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
