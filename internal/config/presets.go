package config

import (
	"sort"

	"github.com/san-kum/hydroflow/internal/dynamo"
)

var Presets = map[string]map[string]*Config{
	"network": {
		"storm": {
			Model: "network", Nodes: 5, Epsilon: 1e-3, BasicStep: 1, ReportStep: 60, Interval: 360,
			InitState: InitStateConfig{Discharge: 0.5, Subsurface: 0.3},
			Params:    ParamsConfig{Area: 2, ChannelK: 30, SubsurfaceK: 600, RunoffCoeff: 0.5},
			Forcing:   ForcingConfig{Rain: []float64{0, 5, 25, 12, 3, 0, 0, 0}},
		},
		"recession": {
			Model: "network", Nodes: 3, Epsilon: 1e-3, BasicStep: 1, ReportStep: 60, Interval: 720,
			Intervals: 4,
			InitState: InitStateConfig{Discharge: 4, Subsurface: 2},
			Params:    ParamsConfig{Area: 1, ChannelK: 45, SubsurfaceK: 900, RunoffCoeff: 0.4},
		},
		"dry": {
			Model: "network", Nodes: 2, Epsilon: 1e-3, BasicStep: 1, ReportStep: 30, Interval: 1440,
			Intervals: 2,
			InitState: InitStateConfig{Discharge: 0.05, Subsurface: 0},
			Params:    ParamsConfig{Area: 1, ChannelK: 20, SubsurfaceK: 600, RunoffCoeff: 0.4},
		},
		"summer": {
			Model: "network", Nodes: 4, Epsilon: 1e-3, BasicStep: 1, ReportStep: 60, Interval: 360,
			InitState: InitStateConfig{Discharge: 1, Subsurface: 1},
			Params:    ParamsConfig{Area: 1, ChannelK: 30, SubsurfaceK: 600, RunoffCoeff: 0.3, Evaporation: 0.1},
			Forcing: ForcingConfig{
				Rain: []float64{2, 8, 4, 0},
				Base: dynamo.Values{Temperature: 25, Humidity: 0.6, Pressure: 101.3, Radiation: 600},
			},
		},
	},
	"decay": {
		"default": {
			Model: "decay", Nodes: 1, Epsilon: 1e-6, BasicStep: 1, ReportStep: 60, Interval: 600,
			Intervals: 1,
			InitState: InitStateConfig{Discharge: 1},
			Params:    ParamsConfig{K: 0.01},
		},
	},
	"still": {
		"equilibrium": {
			Model: "still", Nodes: 1, Epsilon: 1e-3, BasicStep: 1, ReportStep: 60, Interval: 600,
			Intervals: 1,
			InitState: InitStateConfig{Discharge: 5, Subsurface: 2},
		},
	},
}

func GetPreset(model, preset string) *Config {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	cfg, ok := modelPresets[preset]
	if !ok {
		return nil
	}

	out := *cfg
	out.Forcing.Rain = append([]float64(nil), cfg.Forcing.Rain...)
	if out.Start.IsZero() {
		out.Start = DefaultConfig().Start
	}
	return &out
}

func ListPresets(model string) []string {
	modelPresets, ok := Presets[model]
	if !ok {
		return nil
	}
	names := make([]string, 0, len(modelPresets))
	for name := range modelPresets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ListModels returns every model with at least one preset.
func ListModels() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
