// Package choropleth maps vacancy rates onto fill colors and describes how a
// rendering surface should style and react to each area.
package choropleth

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

// Bucket is one ramp step: rates at or above Min get Color.
type Bucket struct {
	Min   float64 `yaml:"min" json:"min"`
	Color string  `yaml:"color" json:"color"`
	Label string  `yaml:"label,omitempty" json:"label"`
}

// Ramp is an ordered set of buckets, highest threshold first. The last
// bucket catches everything below the previous threshold.
type Ramp struct {
	Buckets []Bucket `yaml:"buckets" json:"buckets"`
}

// DefaultRamp is a nine-step YlOrRd ramp over vacancy percent.
func DefaultRamp() *Ramp {
	r := &Ramp{Buckets: []Bucket{
		{Min: 25, Color: "#800026"},
		{Min: 20, Color: "#BD0026"},
		{Min: 15, Color: "#E31A1C"},
		{Min: 10, Color: "#FC4E2A"},
		{Min: 7, Color: "#FD8D3C"},
		{Min: 5, Color: "#FEB24C"},
		{Min: 3, Color: "#FED976"},
		{Min: 1, Color: "#FFEDA0"},
		{Min: 0, Color: "#FFFFCC"},
	}}
	r.label()
	return r
}

// LoadRamp reads a ramp from a YAML file with a top-level "ramp" key.
func LoadRamp(path string) (*Ramp, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "choropleth: read ramp %s", path)
	}

	var wrapper struct {
		Ramp Ramp `yaml:"ramp"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, eris.Wrap(err, "choropleth: parse ramp")
	}

	r := &wrapper.Ramp
	if err := r.Validate(); err != nil {
		return nil, err
	}
	sort.SliceStable(r.Buckets, func(i, j int) bool { return r.Buckets[i].Min > r.Buckets[j].Min })
	r.label()
	return r, nil
}

// Validate checks that the ramp has buckets and every bucket has a color.
func (r *Ramp) Validate() error {
	if r == nil || len(r.Buckets) == 0 {
		return eris.New("choropleth: ramp has no buckets")
	}
	for i, b := range r.Buckets {
		if !strings.HasPrefix(b.Color, "#") {
			return eris.Errorf("choropleth: bucket %d color %q is not a hex color", i, b.Color)
		}
	}
	return nil
}

// Color returns the fill color for a vacancy percent.
func (r *Ramp) Color(rate float64) string {
	for _, b := range r.Buckets {
		if rate >= b.Min {
			return b.Color
		}
	}
	return r.Buckets[len(r.Buckets)-1].Color
}

// label fills in missing legend labels ("25%+", "20–25%", "< 1%").
func (r *Ramp) label() {
	n := len(r.Buckets)
	for i := range r.Buckets {
		b := &r.Buckets[i]
		if b.Label != "" {
			continue
		}
		switch {
		case i == 0:
			b.Label = fmt.Sprintf("%s%%+", trimFloat(b.Min))
		case i == n-1:
			b.Label = fmt.Sprintf("< %s%%", trimFloat(r.Buckets[i-1].Min))
		default:
			b.Label = fmt.Sprintf("%s–%s%%", trimFloat(b.Min), trimFloat(r.Buckets[i-1].Min))
		}
	}
}

func trimFloat(f float64) string {
	return strings.TrimSuffix(strings.TrimRight(fmt.Sprintf("%.2f", f), "0"), ".")
}
