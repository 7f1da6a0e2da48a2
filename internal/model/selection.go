package model

// Selection is the user's drill-down position. It is the only state that
// survives from one fetch cycle to the next.
type Selection struct {
	StateID  string   `json:"state_id"`
	CountyID string   `json:"county_id"`
	Level    GeoLevel `json:"level"`
}

// HasState reports whether a state is selected.
func (s Selection) HasState() bool { return s.StateID != "" }

// HasCounty reports whether a county is selected.
func (s Selection) HasCounty() bool { return s.StateID != "" && s.CountyID != "" }

// FocusGEOID is the GEOID of the single area the selection points at: the
// county when one is chosen and the level is county, otherwise the state.
func (s Selection) FocusGEOID() string {
	switch {
	case s.Level == LevelCounty && s.HasCounty():
		return s.StateID + s.CountyID
	case s.Level == LevelState:
		return s.StateID
	}
	return ""
}
