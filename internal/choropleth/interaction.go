package choropleth

import (
	"github.com/twpayne/go-geom/encoding/geojson"
)

// Interaction is the capability a rendering surface invokes as the user
// moves over and clicks areas. Implementations must not assume the feature
// survives past the call.
type Interaction interface {
	OnHover(feature *geojson.Feature)
	OnHoverEnd(feature *geojson.Feature)
	OnActivate(feature *geojson.Feature)
}

// StyleFunc styles one feature.
type StyleFunc func(feature *geojson.Feature) PathStyle

// Surface draws a layer. Render replaces whatever the surface showed
// before.
type Surface interface {
	Render(fc *geojson.FeatureCollection, style StyleFunc, interaction Interaction) error
}

// Hooks adapts plain functions to Interaction. Nil hooks are no-ops.
type Hooks struct {
	Hover    func(*geojson.Feature)
	HoverEnd func(*geojson.Feature)
	Activate func(*geojson.Feature)
}

// OnHover implements Interaction.
func (h Hooks) OnHover(f *geojson.Feature) {
	if h.Hover != nil {
		h.Hover(f)
	}
}

// OnHoverEnd implements Interaction.
func (h Hooks) OnHoverEnd(f *geojson.Feature) {
	if h.HoverEnd != nil {
		h.HoverEnd(f)
	}
}

// OnActivate implements Interaction.
func (h Hooks) OnActivate(f *geojson.Feature) {
	if h.Activate != nil {
		h.Activate(f)
	}
}

// FeatureRate reads the vacancy rate a joined layer stored on the feature.
func FeatureRate(f *geojson.Feature) float64 {
	if f == nil {
		return 0
	}
	switch v := f.Properties[RateProperty].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

// Property keys written onto joined features.
const (
	RateProperty        = "vacancy_rate"
	RatePercentProperty = "vacancy_rate_percent"
	TotalProperty       = "total_units"
	VacantProperty      = "vacant_units"
	FillProperty        = "fill_color"
	PopupProperty       = "popup"
)

// RampStyle returns a StyleFunc coloring features by their stored rate.
func RampStyle(r *Ramp) StyleFunc {
	return func(f *geojson.Feature) PathStyle {
		return r.Style(FeatureRate(f))
	}
}

// StyleProperty is the feature property a GeoJSON surface stores styles in.
const StyleProperty = "style"

// GeoJSONSurface renders by producing a styled copy of the collection,
// suitable for a browser map to draw directly.
type GeoJSONSurface struct {
	Last *geojson.FeatureCollection
}

// Render implements Surface. Input features are not modified.
func (s *GeoJSONSurface) Render(fc *geojson.FeatureCollection, style StyleFunc, _ Interaction) error {
	out := &geojson.FeatureCollection{BBox: fc.BBox}
	out.Features = make([]*geojson.Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		props := make(map[string]any, len(f.Properties)+1)
		for k, v := range f.Properties {
			props[k] = v
		}
		if style != nil {
			props[StyleProperty] = style(f)
		}
		out.Features = append(out.Features, &geojson.Feature{ID: f.ID, BBox: f.BBox, Geometry: f.Geometry, Properties: props})
	}
	s.Last = out
	return nil
}
