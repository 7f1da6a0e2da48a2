package server

import (
	"context"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/sells-group/vacancy-map/internal/geoid"
	"github.com/sells-group/vacancy-map/internal/geometry"
	"github.com/sells-group/vacancy-map/internal/model"
	"github.com/sells-group/vacancy-map/internal/pipeline"
)

// Option is one entry in a selector.
type Option struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// StateOptions lists states from the national boundary source.
func StateOptions(ctx context.Context, src geometry.StateSource) ([]Option, error) {
	feats, err := src.States(ctx)
	if err != nil {
		return nil, err
	}
	opts := make([]Option, 0, len(feats))
	for _, f := range feats {
		name, _ := f.Properties[model.NameProperty].(string)
		opts = append(opts, Option{ID: f.ID, Name: name})
	}
	sortOptions(opts)
	return opts, nil
}

// CountyOptions lists a state's counties from the statistics service. IDs
// are the three-digit county codes.
func CountyOptions(ctx context.Context, src pipeline.AttributeSource, stateID string) ([]Option, error) {
	state, err := geoid.NormalizeState(stateID)
	if err != nil {
		return nil, err
	}
	stats, err := src.FetchAttributes(ctx, model.LevelCounty, state, "")
	if err != nil {
		return nil, err
	}
	opts := make([]Option, 0, len(stats))
	for _, s := range stats {
		if len(s.GEOID) != geoid.StateWidth+geoid.CountyWidth {
			continue
		}
		opts = append(opts, Option{ID: s.GEOID[geoid.StateWidth:], Name: s.Name})
	}
	sortOptions(opts)
	return opts, nil
}

// sortOptions orders by name the way an English reader expects, ignoring
// case and diacritics first. A collator is not safe for concurrent use, so
// each call builds its own.
func sortOptions(opts []Option) {
	c := collate.New(language.AmericanEnglish)
	sort.SliceStable(opts, func(i, j int) bool {
		if n := c.CompareString(opts[i].Name, opts[j].Name); n != 0 {
			return n < 0
		}
		return opts[i].ID < opts[j].ID
	})
}
