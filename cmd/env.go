package main

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/vacancy-map/internal/census"
	"github.com/sells-group/vacancy-map/internal/choropleth"
	"github.com/sells-group/vacancy-map/internal/config"
	"github.com/sells-group/vacancy-map/internal/fetcher"
	"github.com/sells-group/vacancy-map/internal/geometry"
	"github.com/sells-group/vacancy-map/internal/pipeline"
	"github.com/sells-group/vacancy-map/internal/resilience"
)

// mapEnv holds the upstream clients and pipeline shared by serve, layer and
// states.
type mapEnv struct {
	Census   *census.Client
	Geometry *geometry.Fetcher
	Pipeline *pipeline.Pipeline
	Ramp     *choropleth.Ramp
	Breakers map[string]*resilience.Breaker
}

// initEnv builds one rate-limited, breaker-guarded HTTP client per upstream
// and the clients on top of them.
func initEnv(c *config.Config, mode string) (*mapEnv, error) {
	if err := c.Validate(mode); err != nil {
		return nil, err
	}

	breaker := resilience.NewBreakerConfig(c.Circuit.FailureThreshold, c.Circuit.CooldownSecs)
	censusHTTP := fetcher.New(fetcher.Options{
		Name:       "census",
		UserAgent:  c.HTTP.UserAgent,
		Timeout:    c.HTTP.Timeout(),
		RatePerSec: c.Census.RateLimitPS,
		Breaker:    breaker,
	})
	geoHTTP := fetcher.New(fetcher.Options{
		Name:       "geometry",
		UserAgent:  c.HTTP.UserAgent,
		Timeout:    c.HTTP.Timeout(),
		RatePerSec: c.Geometry.RateLimitPS,
		Breaker:    breaker,
	})

	var states geometry.StateSource
	if c.Geometry.StatesShapefile != "" {
		states = geometry.NewShapefileStates(c.Geometry.StatesShapefile)
	} else {
		states = geometry.NewRemoteStates(geoHTTP, c.Geometry.StatesURL, geometry.StateKeys{
			IDProperty:   c.Geometry.StateIDProperty,
			NameProperty: c.Geometry.StateNameProperty,
		})
	}

	ramp := choropleth.DefaultRamp()
	if c.Map.RampFile != "" {
		r, err := choropleth.LoadRamp(c.Map.RampFile)
		if err != nil {
			return nil, eris.Wrap(err, "load ramp")
		}
		ramp = r
	}

	censusClient := census.NewClient(censusHTTP, census.Options{
		BaseURL:   c.Census.BaseURL,
		APIKey:    c.Census.APIKey,
		TotalVar:  c.Census.TotalVar,
		VacantVar: c.Census.VacantVar,
	})
	geoFetcher := geometry.NewFetcher(states, geoHTTP, geometry.Options{
		QueryURL: c.Geometry.QueryURL,
		Layers: geometry.Layers{
			County: c.Geometry.Layers.County,
			Tract:  c.Geometry.Layers.Tract,
			Block:  c.Geometry.Layers.Block,
		},
		OutSR: c.Geometry.OutSR,
	})

	return &mapEnv{
		Census:   censusClient,
		Geometry: geoFetcher,
		Pipeline: pipeline.New(censusClient, geoFetcher, c.Map.TopN, ramp),
		Ramp:     ramp,
		Breakers: map[string]*resilience.Breaker{
			"census":   censusHTTP.Breaker(),
			"geometry": geoHTTP.Breaker(),
		},
	}, nil
}
