package dynamo

import (
	"fmt"
	"math"
)

type State []float64

func (s State) Clone() State {
	c := make(State, len(s))
	copy(c, s)
	return c
}

func (s State) IsValid() bool {
	for _, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// Check returns an *IntegrationError for the first component that is NaN or
// infinite, or nil when every component is finite.
func (s State) Check(t float64) error {
	for i, v := range s {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &IntegrationError{Time: t, Index: i, Value: v}
		}
	}
	return nil
}

// Lead returns the outlet component (index 0), or 0 for an empty state.
func (s State) Lead() float64 {
	if len(s) == 0 {
		return 0
	}
	return s[0]
}

func (s State) Norm() float64 {
	sum := 0.0
	for _, v := range s {
		sum += v * v
	}
	return math.Sqrt(sum)
}

// Derivative is the right-hand side of the network equations. Eval must
// return a vector with the same length as y and must not keep references to
// y or f after returning: both are reused between stages.
type Derivative interface {
	Eval(t float64, y State, f *Forcing, final bool) State
}

// DerivativeFunc adapts a plain function to the Derivative interface.
type DerivativeFunc func(t float64, y State, f *Forcing, final bool) State

func (fn DerivativeFunc) Eval(t float64, y State, f *Forcing, final bool) State {
	return fn(t, y, f, final)
}

// Forcing holds one value per network node for each meteorological driver.
type Forcing struct {
	Rain                []float64
	Radiation           []float64
	NetShortwave        []float64
	Temperature         []float64
	Humidity            []float64
	Windspeed           []float64
	Pressure            []float64
	SnowWaterEquivalent []float64
}

// Values is a single reading of every driver, used to build uniform forcing.
type Values struct {
	Rain                float64 `yaml:"rain" json:"rain"`
	Radiation           float64 `yaml:"radiation" json:"radiation"`
	NetShortwave        float64 `yaml:"net_shortwave" json:"net_shortwave"`
	Temperature         float64 `yaml:"temperature" json:"temperature"`
	Humidity            float64 `yaml:"humidity" json:"humidity"`
	Windspeed           float64 `yaml:"windspeed" json:"windspeed"`
	Pressure            float64 `yaml:"pressure" json:"pressure"`
	SnowWaterEquivalent float64 `yaml:"swe" json:"swe"`
}

// Uniform returns forcing for n nodes that all see the same values.
func Uniform(n int, v Values) *Forcing {
	fill := func(x float64) []float64 {
		a := make([]float64, n)
		for i := range a {
			a[i] = x
		}
		return a
	}
	return &Forcing{
		Rain:                fill(v.Rain),
		Radiation:           fill(v.Radiation),
		NetShortwave:        fill(v.NetShortwave),
		Temperature:         fill(v.Temperature),
		Humidity:            fill(v.Humidity),
		Windspeed:           fill(v.Windspeed),
		Pressure:            fill(v.Pressure),
		SnowWaterEquivalent: fill(v.SnowWaterEquivalent),
	}
}

// Nodes returns the number of network nodes described by the rain array.
func (f *Forcing) Nodes() int {
	if f == nil {
		return 0
	}
	return len(f.Rain)
}

// MeanRain returns the average rain over all nodes, 0 when there are none.
func (f *Forcing) MeanRain() float64 {
	n := f.Nodes()
	if n == 0 {
		return 0
	}
	sum := 0.0
	for _, r := range f.Rain {
		sum += r
	}
	return sum / float64(n)
}

// Validate checks that every populated driver array has one value per node.
func (f *Forcing) Validate() error {
	if f == nil {
		return nil
	}
	n := len(f.Rain)
	arrays := []struct {
		name   string
		values []float64
	}{
		{"radiation", f.Radiation},
		{"net_shortwave", f.NetShortwave},
		{"temperature", f.Temperature},
		{"humidity", f.Humidity},
		{"windspeed", f.Windspeed},
		{"pressure", f.Pressure},
		{"swe", f.SnowWaterEquivalent},
	}
	for _, a := range arrays {
		if a.values != nil && len(a.values) != n {
			return fmt.Errorf("%w: forcing %s has %d values, rain has %d", ErrDimensionMismatch, a.name, len(a.values), n)
		}
	}
	return nil
}

// Result collects the states reported at each target time of a run.
type Result struct {
	States     []State
	Times      []float64
	Metrics    map[string]float64
	StepsTaken int
}
