package model

import (
	"strings"
)

// GeoLevel identifies a Census summary level the map can render.
type GeoLevel string

const (
	LevelState  GeoLevel = "state"
	LevelCounty GeoLevel = "county"
	LevelTract  GeoLevel = "tract"
	// LevelBlock is served from the block group summary level; ACS does not
	// publish housing tables for individual blocks.
	LevelBlock GeoLevel = "block"
)

// Levels lists every supported level from coarsest to finest.
var Levels = []GeoLevel{LevelState, LevelCounty, LevelTract, LevelBlock}

// ParseLevel maps user input to a GeoLevel. Unknown values fail with
// ErrUnsupportedLevel.
func ParseLevel(s string) (GeoLevel, error) {
	switch GeoLevel(strings.ToLower(strings.TrimSpace(s))) {
	case LevelState:
		return LevelState, nil
	case LevelCounty:
		return LevelCounty, nil
	case LevelTract:
		return LevelTract, nil
	case LevelBlock, "block group", "block_group", "blockgroup":
		return LevelBlock, nil
	}
	return "", NewError(ErrUnsupportedLevel, "unknown geography level %q", s)
}

// Valid reports whether l is one of the four recognized levels.
func (l GeoLevel) Valid() bool {
	switch l {
	case LevelState, LevelCounty, LevelTract, LevelBlock:
		return true
	}
	return false
}

// NeedsState reports whether queries at this level are scoped to a state.
func (l GeoLevel) NeedsState() bool {
	return l == LevelCounty || l == LevelTract || l == LevelBlock
}

// NeedsCounty reports whether queries at this level are scoped to a county.
func (l GeoLevel) NeedsCounty() bool {
	return l == LevelTract || l == LevelBlock
}

// CensusGeography returns the geography name used in Census API
// for/in clauses.
func (l GeoLevel) CensusGeography() string {
	if l == LevelBlock {
		return "block group"
	}
	return string(l)
}

func (l GeoLevel) String() string { return string(l) }
