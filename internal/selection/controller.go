// Package selection owns the drill-down selection and the layer currently
// shown for it. Every command starts a fetch cycle; only the most recently
// started cycle may commit its result.
package selection

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/vacancy-map/internal/geoid"
	"github.com/sells-group/vacancy-map/internal/model"
	"github.com/sells-group/vacancy-map/internal/pipeline"
	"github.com/sells-group/vacancy-map/internal/viewmodel"
)

// ErrSuperseded is returned by Cycle.Err when a newer cycle started before
// this one finished. Its result was discarded.
var ErrSuperseded = eris.New("selection: cycle superseded")

// Status is the controller's lifecycle state.
type Status string

// Controller statuses.
const (
	StatusIdle    Status = "idle"
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// View is an immutable snapshot of the controller.
type View struct {
	Selection     model.Selection      `json:"selection"`
	Status        Status               `json:"status"`
	Error         string               `json:"error,omitempty"`
	Layer         *viewmodel.Layer     `json:"-"`
	StateSummary  *model.AreaStatistic `json:"state_summary,omitempty"`
	CountySummary *model.AreaStatistic `json:"county_summary,omitempty"`
	Hovered       *model.AreaStatistic `json:"hovered,omitempty"`
	Cycle         uint64               `json:"cycle"`
	// CountyEnabled is true once a state is chosen; SubCountyEnabled once
	// a county is chosen (tract and block levels).
	CountyEnabled    bool `json:"county_enabled"`
	SubCountyEnabled bool `json:"sub_county_enabled"`
}

// Cycle is a handle on one fetch attempt.
type Cycle struct {
	Seq  uint64
	done chan struct{}
	err  error
}

// Done is closed once the cycle has committed, failed or been superseded.
func (c *Cycle) Done() <-chan struct{} { return c.done }

// Err reports the cycle outcome. Valid after Done is closed.
func (c *Cycle) Err() error { return c.err }

// Wait blocks until the cycle settles or ctx ends.
func (c *Cycle) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Controller serializes selection changes and commits cycle results.
type Controller struct {
	loader pipeline.Loader

	mu            sync.Mutex
	sel           model.Selection
	status        Status
	errMsg        string
	layer         *viewmodel.Layer
	stateSummary  *model.AreaStatistic
	countySummary *model.AreaStatistic
	hovered       *model.AreaStatistic
	seq           uint64
	current       *Cycle
	cancel        context.CancelFunc
}

// NewController creates an idle controller at the state level with nothing
// selected.
func NewController(loader pipeline.Loader) *Controller {
	return &Controller{
		loader: loader,
		sel:    model.Selection{Level: model.LevelState},
		status: StatusIdle,
	}
}

// View returns a snapshot.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return View{
		Selection:        c.sel,
		Status:           c.status,
		Error:            c.errMsg,
		Layer:            c.layer,
		StateSummary:     c.stateSummary,
		CountySummary:    c.countySummary,
		Hovered:          c.hovered,
		Cycle:            c.seq,
		CountyEnabled:    c.sel.HasState(),
		SubCountyEnabled: c.sel.HasCounty(),
	}
}

// Current returns the most recently started cycle, or nil.
func (c *Controller) Current() *Cycle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Load starts a cycle for the current selection without changing it, e.g.
// to draw the national map on first view.
func (c *Controller) Load(ctx context.Context) *Cycle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.start(ctx, false)
}

// SelectState chooses a state, clears any county and shows the state level.
// If the cycle fails the selection reverts to no state and the layer is
// cleared.
func (c *Controller) SelectState(ctx context.Context, raw string) (*Cycle, error) {
	state, err := geoid.NormalizeState(raw)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if state != c.sel.StateID {
		c.stateSummary = nil
	}
	c.sel = model.Selection{StateID: state, Level: model.LevelState}
	c.countySummary = nil
	return c.start(ctx, true), nil
}

// SelectCounty chooses a county within the selected state and shows the
// county level.
func (c *Controller) SelectCounty(ctx context.Context, raw string) (*Cycle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.sel.HasState() {
		return nil, model.NewError(model.ErrPreconditionNotMet, "select a state before choosing a county")
	}
	county, err := geoid.NormalizeCounty(raw)
	if err != nil {
		return nil, err
	}
	c.sel.CountyID = county
	c.sel.Level = model.LevelCounty
	return c.start(ctx, false), nil
}

// SetLevel changes the geography level. On failure the level is unchanged
// and no cycle starts.
func (c *Controller) SetLevel(ctx context.Context, raw string) (*Cycle, error) {
	level, err := model.ParseLevel(raw)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if level.NeedsState() && !c.sel.HasState() {
		return nil, model.NewError(model.ErrPreconditionNotMet, "select a state before viewing %s level", level)
	}
	if level.NeedsCounty() && !c.sel.HasCounty() {
		return nil, model.NewError(model.ErrPreconditionNotMet, "select a county before viewing %s level", level)
	}
	c.sel.Level = level
	return c.start(ctx, false), nil
}

// DismissError clears the error banner.
func (c *Controller) DismissError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.status != StatusError {
		return
	}
	c.errMsg = ""
	if c.layer != nil {
		c.status = StatusReady
	} else {
		c.status = StatusIdle
	}
}

// Reset abandons any in-flight cycle and returns to the initial state.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.seq++
	c.current = nil
	c.sel = model.Selection{Level: model.LevelState}
	c.status = StatusIdle
	c.errMsg = ""
	c.layer = nil
	c.stateSummary = nil
	c.countySummary = nil
	c.hovered = nil
}

// Close cancels any in-flight cycle.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

// start begins a cycle for the current selection. Caller holds mu. The
// cycle outlives the caller's cancellation; only a newer cycle, Reset or
// Close cancel it.
func (c *Controller) start(ctx context.Context, rollback bool) *Cycle {
	if c.cancel != nil {
		c.cancel()
	}
	c.seq++
	cycle := &Cycle{Seq: c.seq, done: make(chan struct{})}
	cctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	c.cancel = cancel
	c.current = cycle
	c.status = StatusLoading
	c.errMsg = ""

	go c.run(cctx, cancel, cycle, c.sel, rollback)
	return cycle
}

func (c *Controller) run(ctx context.Context, cancel context.CancelFunc, cycle *Cycle, sel model.Selection, rollback bool) {
	defer close(cycle.done)
	defer cancel()

	log := zap.L().With(
		zap.String("component", "selection"),
		zap.Uint64("cycle", cycle.Seq),
		zap.String("level", sel.Level.String()),
	)

	layer, err := c.loader.Load(ctx, sel)

	c.mu.Lock()
	defer c.mu.Unlock()

	if cycle.Seq != c.seq {
		log.Debug("selection: discarding superseded cycle", zap.Uint64("latest", c.seq))
		cycle.err = ErrSuperseded
		return
	}
	c.cancel = nil

	if err != nil {
		log.Warn("selection: cycle failed", zap.Error(err))
		cycle.err = err
		c.status = StatusError
		c.errMsg = model.UserMessage(err)
		if rollback {
			c.sel = model.Selection{Level: model.LevelState}
			c.layer = nil
			c.stateSummary = nil
			c.countySummary = nil
			c.hovered = nil
		}
		return
	}

	c.layer = layer
	c.hovered = nil
	switch sel.Level {
	case model.LevelState:
		if sel.HasState() {
			c.stateSummary = layer.Summary
		} else {
			c.stateSummary = nil
		}
	case model.LevelCounty:
		if c.stateSummary != nil && c.stateSummary.GEOID != sel.StateID {
			c.stateSummary = nil
		}
		c.countySummary = layer.Summary
	}
	c.status = StatusReady
	log.Debug("selection: cycle committed", zap.Int("features", len(layer.Features.Features)))
}
