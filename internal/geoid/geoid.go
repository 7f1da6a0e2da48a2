// Package geoid canonicalizes Census geographic identifiers so that rows from
// the statistics API and features from the boundary services join on the
// same key.
package geoid

import (
	"strings"

	"github.com/sells-group/vacancy-map/internal/model"
)

// Field widths of each GEOID component.
const (
	StateWidth      = 2
	CountyWidth     = 3
	TractWidth      = 6
	BlockGroupWidth = 1
)

// NormalizeState pads a state FIPS code to 2 digits.
func NormalizeState(raw string) (string, error) {
	return normalize(raw, StateWidth, "state")
}

// NormalizeCounty pads a county FIPS code to 3 digits.
func NormalizeCounty(raw string) (string, error) {
	return normalize(raw, CountyWidth, "county")
}

// NormalizeTract pads a tract code to 6 digits. Decimal tract names such as
// "1011.10" are not codes and are rejected.
func NormalizeTract(raw string) (string, error) {
	return normalize(raw, TractWidth, "tract")
}

// NormalizeBlockGroup validates a single-digit block group code.
func NormalizeBlockGroup(raw string) (string, error) {
	return normalize(raw, BlockGroupWidth, "block group")
}

func normalize(raw string, width int, what string) (string, error) {
	code := strings.TrimSpace(raw)
	if code == "" {
		return "", model.NewError(model.ErrInvalidIdentifier, "%s id is required", what)
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return "", model.NewError(model.ErrInvalidIdentifier, "%s id %q is not numeric", what, raw)
		}
	}
	if len(code) > width {
		// Accept over-padded input like "006" for a state as long as the
		// surplus is leading zeros.
		trimmed := strings.TrimLeft(code, "0")
		if len(trimmed) > width {
			return "", model.NewError(model.ErrInvalidIdentifier, "%s id %q exceeds %d digits", what, raw, width)
		}
		code = trimmed
	}
	return strings.Repeat("0", width-len(code)) + code, nil
}

// Canonical pads a complete GEOID to the full width of its level, restoring
// leading zeros lost when a service sends the id as a number.
func Canonical(raw string, level model.GeoLevel) (string, error) {
	width := StateWidth
	switch level {
	case model.LevelCounty:
		width += CountyWidth
	case model.LevelTract:
		width += CountyWidth + TractWidth
	case model.LevelBlock:
		width += CountyWidth + TractWidth + BlockGroupWidth
	}
	return normalize(raw, width, level.String()+" GEOID")
}

// BuildGEOID concatenates a normalized state id with any finer components
// (county, tract, block group), normalizing each to its width.
func BuildGEOID(stateID string, parts ...string) (string, error) {
	s, err := NormalizeState(stateID)
	if err != nil {
		return "", err
	}
	norms := []func(string) (string, error){NormalizeCounty, NormalizeTract, NormalizeBlockGroup}
	if len(parts) > len(norms) {
		return "", model.NewError(model.ErrInvalidIdentifier, "too many GEOID components")
	}
	var b strings.Builder
	b.WriteString(s)
	for i, p := range parts {
		n, err := norms[i](p)
		if err != nil {
			return "", err
		}
		b.WriteString(n)
	}
	return b.String(), nil
}

// DisplayName strips the trailing context Census appends to area names, as
// in "Los Angeles County, California" or
// "Census Tract 1011.10; Los Angeles County; California".
func DisplayName(raw string) string {
	name := strings.TrimSpace(raw)
	if i := strings.IndexAny(name, ",;"); i >= 0 {
		name = strings.TrimSpace(name[:i])
	}
	return name
}

// Required normalizes the ids a level needs. Ids the level does not use are
// passed through normalization only when present.
func Required(level model.GeoLevel, stateID, countyID string) (state, county string, err error) {
	if !level.Valid() {
		return "", "", model.NewError(model.ErrUnsupportedLevel, "unknown geography level %q", level)
	}
	if level.NeedsState() || strings.TrimSpace(stateID) != "" {
		if state, err = NormalizeState(stateID); err != nil {
			return "", "", err
		}
	}
	if level.NeedsCounty() || (level == model.LevelCounty && strings.TrimSpace(countyID) != "") {
		if county, err = NormalizeCounty(countyID); err != nil {
			return "", "", err
		}
	}
	return state, county, nil
}
