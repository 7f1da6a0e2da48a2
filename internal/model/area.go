package model

import (
	"math"
	"strconv"
)

// GEOIDProperty is the feature property that carries the canonical
// identifier on every normalized boundary feature.
const GEOIDProperty = "GEOID"

// NameProperty is the feature property that carries the display name.
const NameProperty = "NAME"

// AreaStatistic is the housing summary for one geographic area.
type AreaStatistic struct {
	Name               string  `json:"name"`
	GEOID              string  `json:"geoid"`
	TotalHousingUnits  int64   `json:"total_housing_units"`
	VacantUnits        int64   `json:"vacant_units"`
	VacancyRate        float64 `json:"vacancy_rate"`
	VacancyRatePercent string  `json:"vacancy_rate_percent"`
}

// NewAreaStatistic computes the derived vacancy rate for an area.
func NewAreaStatistic(name, geoid string, total, vacant int64) AreaStatistic {
	rate := VacancyRate(total, vacant)
	return AreaStatistic{
		Name:               name,
		GEOID:              geoid,
		TotalHousingUnits:  total,
		VacantUnits:        vacant,
		VacancyRate:        rate,
		VacancyRatePercent: FormatRate(rate),
	}
}

// VacancyRate returns vacant/total as a percentage rounded to one decimal.
// A non-positive total yields 0.
func VacancyRate(total, vacant int64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(float64(vacant)/float64(total)*1000) / 10
}

// FormatRate renders a rate with exactly one decimal place.
func FormatRate(rate float64) string {
	return strconv.FormatFloat(rate, 'f', 1, 64)
}
