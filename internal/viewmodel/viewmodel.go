// Package viewmodel joins boundary features with area statistics by GEOID
// into a renderable layer.
package viewmodel

import (
	"sort"

	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/vacancy-map/internal/choropleth"
	"github.com/sells-group/vacancy-map/internal/model"
)

// Options controls a join.
type Options struct {
	// TopN bounds the ranked list. Zero or negative disables it.
	TopN int
	// FocusGEOID picks the summary statistic.
	FocusGEOID string
	// Ramp colors features. Nil uses the default ramp.
	Ramp *choropleth.Ramp
}

// Layer is a joined, styled view of one fetch cycle.
type Layer struct {
	Features *geojson.FeatureCollection `json:"features"`
	Stats    []model.AreaStatistic      `json:"stats"`
	Summary  *model.AreaStatistic       `json:"summary,omitempty"`
	Top      []model.AreaStatistic      `json:"top"`
}

// Join enriches every feature with the statistic sharing its GEOID. Features
// without a match render with a zero rate. Features repeating a GEOID are
// merged into one. Output features are ordered by GEOID so the result does
// not depend on the order of either input. Inputs are not modified.
func Join(fc *geojson.FeatureCollection, stats []model.AreaStatistic, opts Options) *Layer {
	ramp := opts.Ramp
	if ramp == nil {
		ramp = choropleth.DefaultRamp()
	}

	byID := make(map[string]model.AreaStatistic, len(stats))
	for _, s := range stats {
		if _, dup := byID[s.GEOID]; !dup {
			byID[s.GEOID] = s
		}
	}

	out := &geojson.FeatureCollection{}
	if fc != nil {
		out.Features = make([]*geojson.Feature, 0, len(fc.Features))
		for _, f := range mergeDuplicates(fc.Features) {
			id := FeatureGEOID(f)
			s, ok := byID[id]
			if !ok {
				s = model.NewAreaStatistic(featureName(f), id, 0, 0)
			}

			props := make(map[string]any, len(f.Properties)+7)
			for k, v := range f.Properties {
				props[k] = v
			}
			props[model.GEOIDProperty] = id
			props[choropleth.RateProperty] = s.VacancyRate
			props[choropleth.RatePercentProperty] = s.VacancyRatePercent
			props[choropleth.TotalProperty] = s.TotalHousingUnits
			props[choropleth.VacantProperty] = s.VacantUnits
			props[choropleth.FillProperty] = ramp.Color(s.VacancyRate)
			props[choropleth.PopupProperty] = choropleth.Popup(s)

			out.Features = append(out.Features, &geojson.Feature{
				ID:         id,
				BBox:       f.BBox,
				Geometry:   f.Geometry,
				Properties: props,
			})
		}
		sort.Slice(out.Features, func(i, j int) bool { return out.Features[i].ID < out.Features[j].ID })
	}

	rows := make([]model.AreaStatistic, len(stats))
	copy(rows, stats)

	return &Layer{
		Features: out,
		Stats:    rows,
		Summary:  Summary(stats, opts.FocusGEOID),
		Top:      TopN(stats, opts.TopN),
	}
}

// Summary returns the statistic for focus, or the only statistic when
// exactly one is present. Nil otherwise.
func Summary(stats []model.AreaStatistic, focus string) *model.AreaStatistic {
	if focus != "" {
		for _, s := range stats {
			if s.GEOID == focus {
				c := s
				return &c
			}
		}
	}
	if len(stats) == 1 {
		s := stats[0]
		return &s
	}
	return nil
}

// TopN ranks statistics by rate, highest first. Ties keep input order.
func TopN(stats []model.AreaStatistic, n int) []model.AreaStatistic {
	if n <= 0 || len(stats) == 0 {
		return nil
	}
	ranked := make([]model.AreaStatistic, len(stats))
	copy(ranked, stats)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].VacancyRate > ranked[j].VacancyRate })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

// FeatureGEOID reads a feature's canonical id, falling back to its
// top-level id.
func FeatureGEOID(f *geojson.Feature) string {
	if id, ok := f.Properties[model.GEOIDProperty].(string); ok && id != "" {
		return id
	}
	return f.ID
}

func featureName(f *geojson.Feature) string {
	name, _ := f.Properties[model.NameProperty].(string)
	return name
}

// StatByGEOID finds a statistic in the layer.
func (l *Layer) StatByGEOID(id string) (model.AreaStatistic, bool) {
	if l == nil {
		return model.AreaStatistic{}, false
	}
	for _, s := range l.Stats {
		if s.GEOID == id {
			return s, true
		}
	}
	return model.AreaStatistic{}, false
}
