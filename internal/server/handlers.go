package server

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/vacancy-map/internal/choropleth"
	"github.com/sells-group/vacancy-map/internal/export"
	"github.com/sells-group/vacancy-map/internal/model"
	"github.com/sells-group/vacancy-map/internal/selection"
	"github.com/sells-group/vacancy-map/internal/viewmodel"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	upstreams := make(map[string]string, len(s.deps.Breakers))
	for name, b := range s.deps.Breakers {
		upstreams[name] = b.State().String()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"sessions":  s.sessions.Len(),
		"upstreams": upstreams,
	})
}

func (s *Server) handleLevels(w http.ResponseWriter, _ *http.Request) {
	type level struct {
		ID          model.GeoLevel `json:"id"`
		NeedsState  bool           `json:"needs_state"`
		NeedsCounty bool           `json:"needs_county"`
	}
	out := make([]level, 0, len(model.Levels))
	for _, l := range model.Levels {
		out = append(out, level{ID: l, NeedsState: l.NeedsState(), NeedsCounty: l.NeedsCounty()})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleRamp(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"buckets":   s.deps.Ramp.Buckets,
		"highlight": choropleth.HighlightStyle(),
	})
}

func (s *Server) handleStates(w http.ResponseWriter, r *http.Request) {
	opts, err := StateOptions(r.Context(), s.deps.States)
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (s *Server) handleCounties(w http.ResponseWriter, r *http.Request) {
	opts, err := CountyOptions(r.Context(), s.deps.Counties, chi.URLParam(r, "state"))
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, opts)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	id, ctrl := s.sessions.Create()
	cycle := ctrl.Load(r.Context())
	zap.L().Info("server: session created", zap.String("session", id))
	writeJSON(w, http.StatusCreated, map[string]any{"id": id, "cycle": cycle.Seq})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if !s.sessions.Delete(chi.URLParam(r, "id")) {
		writeError(w, http.StatusNotFound, "not_found", "session not found", nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// controller resolves the session or writes a 404.
func (s *Server) controller(w http.ResponseWriter, r *http.Request) (*selection.Controller, bool) {
	id := chi.URLParam(r, "id")
	ctrl, ok := s.sessions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "not_found", "session not found", map[string]any{"id": id})
	}
	return ctrl, ok
}

type viewResponse struct {
	selection.View
	Top []model.AreaStatistic `json:"top"`
}

func toViewResponse(v selection.View) viewResponse {
	resp := viewResponse{View: v, Top: []model.AreaStatistic{}}
	if v.Layer != nil && v.Layer.Top != nil {
		resp.Top = v.Layer.Top
	}
	return resp
}

func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, toViewResponse(ctrl.View()))
}

func (s *Server) handleLayer(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}
	layer := ctrl.View().Layer
	if layer == nil {
		layer = &viewmodel.Layer{Features: &geojson.FeatureCollection{}}
	}
	var buf bytes.Buffer
	if err := export.WriteGeoJSON(&buf, layer, s.deps.Ramp); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", "could not render layer", nil)
		return
	}
	w.Header().Set("Content-Type", export.FormatGeoJSON.ContentType())
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "format must be geojson, json, csv or xlsx", nil)
		return
	}
	layer := ctrl.View().Layer
	if layer == nil {
		writeError(w, http.StatusNotFound, "not_found", "no layer loaded yet", nil)
		return
	}

	var buf bytes.Buffer
	if err := export.Write(&buf, format, layer, s.deps.Ramp); err != nil {
		zap.L().Error("server: export failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "export failed", nil)
		return
	}
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", `attachment; filename="vacancy.`+string(format)+`"`)
	_, _ = w.Write(buf.Bytes())
}

type commandRequest struct {
	ID    string `json:"id"`
	Level string `json:"level"`
	GEOID string `json:"geoid"`
}

// command runs a controller command from a JSON body and answers 202 with
// the started cycle.
func (s *Server) command(w http.ResponseWriter, r *http.Request, run func(ctx context.Context, ctrl *selection.Controller, req commandRequest) (*selection.Cycle, error)) {
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}
	var req commandRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", nil)
		return
	}
	cycle, err := run(r.Context(), ctrl, req)
	if err != nil {
		writeKindError(w, err)
		return
	}
	if cycle == nil {
		writeJSON(w, http.StatusOK, map[string]any{"status": "unchanged"})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"status": string(selection.StatusLoading), "cycle": cycle.Seq})
}

func (s *Server) handleSelectState(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, func(ctx context.Context, c *selection.Controller, req commandRequest) (*selection.Cycle, error) {
		return c.SelectState(ctx, req.ID)
	})
}

func (s *Server) handleSelectCounty(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, func(ctx context.Context, c *selection.Controller, req commandRequest) (*selection.Cycle, error) {
		return c.SelectCounty(ctx, req.ID)
	})
}

func (s *Server) handleSetLevel(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, func(ctx context.Context, c *selection.Controller, req commandRequest) (*selection.Cycle, error) {
		return c.SetLevel(ctx, req.Level)
	})
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	s.command(w, r, func(ctx context.Context, c *selection.Controller, req commandRequest) (*selection.Cycle, error) {
		return c.Activate(ctx, strings.TrimSpace(req.GEOID))
	})
}

func (s *Server) handleHover(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}
	var req commandRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request body", nil)
		return
	}
	ctrl.Interaction(r.Context()).OnHover(areaFeature(req.GEOID))
	writeJSON(w, http.StatusOK, map[string]any{"hovered": ctrl.View().Hovered})
}

func (s *Server) handleHoverEnd(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}
	ctrl.Interaction(r.Context()).OnHoverEnd(nil)
	w.WriteHeader(http.StatusNoContent)
}

// areaFeature stands in for the feature the browser reported an event on.
func areaFeature(id string) *geojson.Feature {
	id = strings.TrimSpace(id)
	return &geojson.Feature{ID: id, Properties: map[string]any{model.GEOIDProperty: id}}
}

// handleResetSelection abandons any in-flight load and returns the session
// to the national state-level view with nothing loaded.
func (s *Server) handleResetSelection(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}
	ctrl.Reset()
	writeJSON(w, http.StatusOK, toViewResponse(ctrl.View()))
}

// handleWait blocks until the current cycle settles, bounded by ?timeout=
// (a Go duration) or the server's wait cap.
func (s *Server) handleWait(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}
	timeout := s.opts.WaitTimeout
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "invalid timeout", map[string]any{"timeout": raw})
			return
		}
		if d < timeout {
			timeout = d
		}
	}

	if cycle := ctrl.Current(); cycle != nil {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		select {
		case <-cycle.Done():
		case <-ctx.Done():
			writeError(w, http.StatusGatewayTimeout, "timeout", "cycle still loading", map[string]any{"cycle": cycle.Seq})
			return
		}
	}
	writeJSON(w, http.StatusOK, toViewResponse(ctrl.View()))
}

func (s *Server) handleDismissError(w http.ResponseWriter, r *http.Request) {
	ctrl, ok := s.controller(w, r)
	if !ok {
		return
	}
	ctrl.DismissError()
	writeJSON(w, http.StatusOK, toViewResponse(ctrl.View()))
}
