package models

import "github.com/san-kum/hydroflow/internal/dynamo"

// Decay drains every component at rate K per minute: dy/dt = -K*y.
type Decay struct {
	K   float64
	Dim int
}

func NewDecay(k float64) *Decay {
	return &Decay{K: k, Dim: 1}
}

func (d *Decay) StateDim() int {
	return d.Dim
}

func (d *Decay) Eval(t float64, y dynamo.State, f *dynamo.Forcing, final bool) dynamo.State {
	dy := make(dynamo.State, len(y))
	for i := range y {
		dy[i] = -d.K * y[i]
	}
	return dy
}

// Still never changes its state.
type Still struct {
	Dim int
}

func NewStill(dim int) *Still {
	return &Still{Dim: dim}
}

func (s *Still) StateDim() int {
	return s.Dim
}

func (s *Still) Eval(t float64, y dynamo.State, f *dynamo.Forcing, final bool) dynamo.State {
	return make(dynamo.State, len(y))
}
