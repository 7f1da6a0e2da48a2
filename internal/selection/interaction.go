package selection

import (
	"context"

	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/vacancy-map/internal/choropleth"
	"github.com/sells-group/vacancy-map/internal/geoid"
	"github.com/sells-group/vacancy-map/internal/model"
	"github.com/sells-group/vacancy-map/internal/viewmodel"
)

// Hover records the area under the pointer for the info panel. Unknown ids
// clear it.
func (c *Controller) Hover(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.layer.StatByGEOID(id); ok {
		c.hovered = &s
		return
	}
	c.hovered = nil
}

// HoverEnd clears the hovered area.
func (c *Controller) HoverEnd() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hovered = nil
}

// Activate drills into an area: a state GEOID selects the state, a county
// GEOID in the selected state selects the county. Finer areas have nothing
// to drill into and return a nil cycle.
func (c *Controller) Activate(ctx context.Context, id string) (*Cycle, error) {
	switch len(id) {
	case geoid.StateWidth:
		return c.SelectState(ctx, id)
	case geoid.StateWidth + geoid.CountyWidth:
		state := c.View().Selection.StateID
		if state != id[:geoid.StateWidth] {
			return nil, model.NewError(model.ErrPreconditionNotMet, "county %s is outside the selected state", id)
		}
		return c.SelectCounty(ctx, id[geoid.StateWidth:])
	case geoid.StateWidth + geoid.CountyWidth + geoid.TractWidth,
		geoid.StateWidth + geoid.CountyWidth + geoid.TractWidth + geoid.BlockGroupWidth:
		return nil, nil
	}
	return nil, model.NewError(model.ErrInvalidIdentifier, "%q is not a GEOID", id)
}

// Interaction binds the controller to a rendering surface's hover and click
// events. Commands run with ctx's values.
func (c *Controller) Interaction(ctx context.Context) choropleth.Interaction {
	return choropleth.Hooks{
		Hover:    func(f *geojson.Feature) { c.Hover(viewmodel.FeatureGEOID(f)) },
		HoverEnd: func(*geojson.Feature) { c.HoverEnd() },
		Activate: func(f *geojson.Feature) {
			if _, err := c.Activate(ctx, viewmodel.FeatureGEOID(f)); err != nil {
				zap.L().Debug("selection: activate ignored", zap.String("geoid", f.ID), zap.Error(err))
			}
		},
	}
}
