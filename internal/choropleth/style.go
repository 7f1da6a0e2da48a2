package choropleth

import (
	"fmt"

	"github.com/sells-group/vacancy-map/internal/model"
)

// PathStyle is a Leaflet-compatible vector path style.
type PathStyle struct {
	FillColor   string  `json:"fillColor,omitempty"`
	FillOpacity float64 `json:"fillOpacity"`
	Color       string  `json:"color"`
	Weight      int     `json:"weight"`
	Opacity     float64 `json:"opacity"`
	DashArray   string  `json:"dashArray"`
}

// Style returns the resting style for an area with the given rate.
func (r *Ramp) Style(rate float64) PathStyle {
	return PathStyle{
		FillColor:   r.Color(rate),
		FillOpacity: 0.7,
		Color:       "white",
		Weight:      2,
		Opacity:     1,
		DashArray:   "3",
	}
}

// HighlightStyle is applied on hover. FillColor is left empty so the
// surface keeps the area's ramp color.
func HighlightStyle() PathStyle {
	return PathStyle{
		FillOpacity: 0.7,
		Color:       "#666",
		Weight:      5,
		Opacity:     1,
	}
}

// Popup renders the hover/click text for an area.
func Popup(s model.AreaStatistic) string {
	return fmt.Sprintf("%s\nVacancy rate: %s%%\nVacant units: %d\nTotal housing units: %d",
		s.Name, s.VacancyRatePercent, s.VacantUnits, s.TotalHousingUnits)
}
