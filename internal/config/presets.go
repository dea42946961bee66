package config

import (
	"math"
	"sort"
)

// Preset is a named initial condition, optionally tied to a variant.
type Preset struct {
	Description string
	Variant     string
	Duration    float64
	InitState   []float64
}

var Presets = map[string]*Preset{
	"nominal": {
		Description: "both links tipped 0.1 rad the same way",
		InitState:   []float64{0, 0.1, 0.1, 0, 0, 0},
	},
	"small": {
		Description: "small opposing tilt",
		InitState:   []float64{0, 0.05, -0.05, 0, 0, 0},
	},
	"large": {
		Description: "large opposing tilt near the edge of the sliding region",
		Duration:    15.0,
		InitState:   []float64{0, 0.3, -0.2, 0, 0, 0},
	},
	"offset": {
		Description: "cart displaced with a mild tilt",
		InitState:   []float64{0.5, 0.1, 0.05, 0, 0, 0},
	},
	"kick": {
		Description: "upright links struck with angular rates",
		InitState:   []float64{0, 0, 0, 0, 0.5, -0.5},
	},
	"hanging": {
		Description: "links hanging down at rest, for swing-up",
		Variant:     "swing_up",
		Duration:    20.0,
		InitState:   []float64{0, math.Pi - 0.05, math.Pi - 0.05, 0, 0, 0},
	},
}

// GetPreset returns a copy of the named preset, or nil.
func GetPreset(name string) *Preset {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	out := *p
	out.InitState = append([]float64(nil), p.InitState...)
	return &out
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
