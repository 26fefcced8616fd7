package experiment

import (
	"fmt"
	"sort"

	"github.com/san-kum/hydroflow/internal/dynamo"
	"github.com/san-kum/hydroflow/internal/metrics"
	"github.com/san-kum/hydroflow/internal/models"
	"github.com/san-kum/hydroflow/internal/sim"
)

// Model is a derivative function that knows its state dimension.
type Model interface {
	dynamo.Derivative
	StateDim() int
}

type Registry struct {
	models map[string]func(params map[string]float64) Model
}

func NewRegistry() *Registry {
	r := &Registry{
		models: make(map[string]func(map[string]float64) Model),
	}

	r.models["network"] = func(params map[string]float64) Model {
		m := models.NewNetwork(nodes(params))
		positive(params, "area", &m.Area)
		positive(params, "channel_k", &m.ChannelK)
		positive(params, "subsurface_k", &m.SubsurfaceK)
		if v, ok := params["runoff_coeff"]; ok {
			m.RunoffCoeff = v
		}
		if v, ok := params["evaporation"]; ok {
			m.Evaporation = v
		}
		return m
	}
	r.models["decay"] = func(params map[string]float64) Model {
		m := models.NewDecay(params["k"])
		m.Dim = nodes(params)
		return m
	}
	r.models["still"] = func(params map[string]float64) Model {
		return models.NewStill(2 * nodes(params))
	}

	return r
}

func (r *Registry) GetModel(name string, params map[string]float64) (Model, error) {
	fn, ok := r.models[name]
	if !ok {
		return nil, fmt.Errorf("unknown model: %s", name)
	}
	return fn(params), nil
}

func (r *Registry) ListModels() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) DefaultMetrics(model string) []sim.Metric {
	return []sim.Metric{
		metrics.NewPeakDischarge(),
		metrics.NewMeanDischarge(),
		metrics.NewVolume(),
		metrics.NewDryness(sim.DryThreshold),
	}
}

func nodes(params map[string]float64) int {
	if n := int(params["nodes"]); n > 0 {
		return n
	}
	return 1
}

func positive(params map[string]float64, key string, dst *float64) {
	if v, ok := params[key]; ok && v > 0 {
		*dst = v
	}
}
