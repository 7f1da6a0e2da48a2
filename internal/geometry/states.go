package geometry

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/vacancy-map/internal/fetcher"
	"github.com/sells-group/vacancy-map/internal/geoid"
	"github.com/sells-group/vacancy-map/internal/model"
)

// StateSource supplies the national state boundary set, each feature keyed
// by its two-digit state GEOID (feature ID and GEOID property).
type StateSource interface {
	States(ctx context.Context) ([]*geojson.Feature, error)
}

// StateKeys names where a national document keeps each feature's id and
// display name.
type StateKeys struct {
	// IDProperty is the property holding the state FIPS code. Empty means
	// the feature's top-level "id" member.
	IDProperty   string
	NameProperty string
}

// loadOnce memoizes a successful load. Failures are not remembered so the
// next request tries again.
type loadOnce struct {
	mu       sync.Mutex
	features []*geojson.Feature
}

func (l *loadOnce) get(ctx context.Context, load func(ctx context.Context) ([]*geojson.Feature, error)) ([]*geojson.Feature, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.features != nil {
		return l.features, nil
	}
	feats, err := load(ctx)
	if err != nil {
		return nil, err
	}
	l.features = feats
	return feats, nil
}

// RemoteStates downloads a GeoJSON FeatureCollection of state outlines once
// per process.
type RemoteStates struct {
	url    string
	getter fetcher.Getter
	keys   StateKeys
	once   loadOnce
}

// NewRemoteStates creates a StateSource for the document at rawURL.
func NewRemoteStates(getter fetcher.Getter, rawURL string, keys StateKeys) *RemoteStates {
	return &RemoteStates{url: rawURL, getter: getter, keys: keys}
}

// States implements StateSource.
func (s *RemoteStates) States(ctx context.Context) ([]*geojson.Feature, error) {
	return s.once.get(ctx, func(ctx context.Context) ([]*geojson.Feature, error) {
		body, err := s.getter.Get(ctx, s.url)
		if err != nil {
			return nil, model.WrapError(model.ErrGeometryUnavailable, err, "state boundary document")
		}
		feats, err := DecodeStates(body, s.keys)
		if err != nil {
			return nil, err
		}
		zap.L().Info("geometry: loaded national state boundaries",
			zap.String("component", "geometry"),
			zap.Int("states", len(feats)),
		)
		return feats, nil
	})
}

type rawFeature struct {
	ID         json.RawMessage `json:"id"`
	Properties map[string]any  `json:"properties"`
	Geometry   json.RawMessage `json:"geometry"`
}

type rawCollection struct {
	Type     string       `json:"type"`
	Features []rawFeature `json:"features"`
}

// DecodeStates parses a national GeoJSON document, mapping the document's
// own id key onto the canonical GEOID. Features without a usable id or
// geometry are dropped. Output is ordered by GEOID.
func DecodeStates(body []byte, keys StateKeys) ([]*geojson.Feature, error) {
	var doc rawCollection
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, model.WrapError(model.ErrGeometryUnavailable, eris.Wrap(err, "geometry: unmarshal state document"), "malformed state boundary document")
	}
	if !strings.EqualFold(doc.Type, "FeatureCollection") {
		return nil, model.NewError(model.ErrGeometryUnavailable, "state boundary document is %q, want FeatureCollection", doc.Type)
	}

	nameKey := keys.NameProperty
	if nameKey == "" {
		nameKey = "name"
	}

	feats := make([]*geojson.Feature, 0, len(doc.Features))
	for _, rf := range doc.Features {
		id, err := geoid.NormalizeState(stateIDOf(rf, keys.IDProperty))
		if err != nil {
			continue
		}
		var g geom.T
		if err := geojson.Unmarshal(rf.Geometry, &g); err != nil || g == nil {
			continue
		}
		feats = append(feats, &geojson.Feature{
			ID:       id,
			Geometry: g,
			Properties: map[string]any{
				model.GEOIDProperty: id,
				model.NameProperty:  geoid.DisplayName(firstString(rf.Properties, nameKey, "NAME", "name")),
			},
		})
	}
	if len(feats) == 0 {
		return nil, model.NewError(model.ErrGeometryUnavailable, "state boundary document has no usable features")
	}
	sort.SliceStable(feats, func(i, j int) bool { return feats[i].ID < feats[j].ID })
	return feats, nil
}

func stateIDOf(rf rawFeature, idProperty string) string {
	if idProperty != "" {
		return firstString(rf.Properties, idProperty)
	}
	if len(rf.ID) > 0 {
		var s string
		if err := json.Unmarshal(rf.ID, &s); err == nil {
			return s
		}
		var n json.Number
		if err := json.Unmarshal(rf.ID, &n); err == nil {
			return n.String()
		}
	}
	return firstString(rf.Properties, "STATEFP", "STATE", "GEOID")
}
